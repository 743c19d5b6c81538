package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 50
	maxRunsLimit     = 500
	defaultStatsSpan = 24 * time.Hour
	maxStatsSpan     = 90 * 24 * time.Hour
)

// Analyzer is the part of analysis.Analyzer the HTTP layer needs.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	DetectParticipants(ctx context.Context, conversation string) analysis.Participants
	Features() analysis.FeatureTable
}

// RunLister reads recorded analysis runs. It is nil when no database is configured.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]analysis.Run, error)
	RunStats(ctx context.Context, since time.Time) ([]analysis.RunStats, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	analyzer Analyzer
	runs     RunLister
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, analyzer Analyzer, runs RunLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		analyzer: analyzer,
		runs:     runs,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/tiers", s.tiers)
		r.Get("/schema", s.schema)
		r.Post("/analyze", s.analyze)
		r.Post("/participants", s.participants)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/stats", s.runStats)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) tiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Features())
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	schema, err := analysis.OutputSchema()
	if err != nil {
		s.logger.Error("failed to build output schema", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build schema")
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

type analyzeResponse struct {
	RunID        string                 `json:"runId"`
	Tier         analysis.Tier          `json:"tier"`
	Participants analysis.Participants  `json:"participants"`
	Analysis     *analysis.ChatAnalysis `json:"analysis"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Conversation) == "" {
		writeError(w, http.StatusBadRequest, "conversation is required")
		return
	}

	// Missing names are resolved from the transcript before the prompt is built.
	if strings.TrimSpace(req.Me) == "" || strings.TrimSpace(req.Them) == "" {
		p := s.analyzer.DetectParticipants(r.Context(), req.Conversation)
		if strings.TrimSpace(req.Me) == "" {
			req.Me = p.Me
		}
		if strings.TrimSpace(req.Them) == "" {
			req.Them = p.Them
		}
	}

	res, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.logger.Error("analysis failed",
			"request_id", middleware.GetReqID(r.Context()),
			"reason", analysis.FailureReason(err),
			"error", err,
		)
		status := http.StatusBadGateway
		if anthropic.IsOverloaded(err) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, analysis.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		RunID:        res.RunID.String(),
		Tier:         res.Tier,
		Participants: analysis.Participants{Me: req.Me, Them: req.Them},
		Analysis:     res.Analysis,
	})
}

type participantsRequest struct {
	Conversation string `json:"conversation"`
}

func (s *Server) participants(w http.ResponseWriter, r *http.Request) {
	var req participantsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Conversation) == "" {
		writeError(w, http.StatusBadRequest, "conversation is required")
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.DetectParticipants(r.Context(), req.Conversation))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []analysis.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) runStats(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	span := defaultStatsSpan
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
			return
		}
		span = min(d, maxStatsSpan)
	}
	since := time.Now().UTC().Add(-span)

	stats, err := s.runs.RunStats(r.Context(), since)
	if err != nil {
		s.logger.Error("run stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run stats")
		return
	}
	if stats == nil {
		stats = []analysis.RunStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since, "tiers": stats})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
