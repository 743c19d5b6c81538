package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/hermes"
)

const defaultTimeout = 3 * time.Minute

// Bus is the part of the hermes client the processor publishes through.
type Bus interface {
	Publish(subject string, data any) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	DetectParticipants(ctx context.Context, conversation string) analysis.Participants
}

// Processor serves analysis requests arriving over NATS.
type Processor struct {
	analyzer Analyzer
	bus      Bus
	logger   *slog.Logger
	timeout  time.Duration
}

func New(a Analyzer, bus Bus, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		analyzer: a,
		bus:      bus,
		logger:   logger,
		timeout:  defaultTimeout,
	}
}

// SetTimeout bounds a single request, including the provider retry.
func (p *Processor) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// HandleAnalysisRequested is the NATS handler for tonecheck.analysis.requested.
// When the message carries a reply subject the outcome is sent there, otherwise
// it is published on the completed or failed subject.
func (p *Processor) HandleAnalysisRequested(subject, reply string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var evt hermes.AnalysisRequested
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse analysis request", "error", err)
		p.fail(reply, hermes.AnalysisFailed{Reason: "invalid_request", Message: "invalid analysis request"})
		return
	}
	if strings.TrimSpace(evt.Conversation) == "" {
		p.fail(reply, hermes.AnalysisFailed{
			RequestID: evt.RequestID,
			Reason:    "invalid_request",
			Message:   "conversation is required",
		})
		return
	}

	req := analysis.Request{
		Conversation: evt.Conversation,
		Me:           strings.TrimSpace(evt.Me),
		Them:         strings.TrimSpace(evt.Them),
		Tier:         evt.Tier,
		ExtraContext: evt.ExtraContext,
	}
	if req.Me == "" || req.Them == "" {
		detected := p.analyzer.DetectParticipants(ctx, req.Conversation)
		if req.Me == "" {
			req.Me = detected.Me
		}
		if req.Them == "" {
			req.Them = detected.Them
		}
	}

	p.logger.Info("processing analysis request",
		"request_id", evt.RequestID,
		"tier", req.Tier,
		"chars", len(req.Conversation),
	)

	res, err := p.analyzer.Analyze(ctx, req)
	if err != nil {
		reason := analysis.FailureReason(err)
		p.logger.Error("analysis failed", "request_id", evt.RequestID, "reason", reason, "error", err)
		p.fail(reply, hermes.AnalysisFailed{
			RequestID: evt.RequestID,
			Reason:    reason,
			Message:   analysis.UserMessage(err),
		})
		return
	}

	done := hermes.AnalysisCompleted{
		RequestID:    evt.RequestID,
		RunID:        res.RunID.String(),
		Tier:         res.Tier,
		Participants: analysis.Participants{Me: req.Me, Them: req.Them},
		Analysis:     res.Analysis,
		CompletedAt:  time.Now().UTC(),
	}
	if reply != "" {
		p.publish(reply, hermes.Outcome{Completed: &done})
	} else {
		p.publish(hermes.SubjectAnalysisCompleted, done)
	}

	p.logger.Info("analysis request processed",
		"request_id", evt.RequestID,
		"run_id", done.RunID,
		"tier", done.Tier,
	)
}

func (p *Processor) fail(reply string, f hermes.AnalysisFailed) {
	f.FailedAt = time.Now().UTC()
	if reply != "" {
		p.publish(reply, hermes.Outcome{Failed: &f})
		return
	}
	p.publish(hermes.SubjectAnalysisFailed, f)
}

func (p *Processor) publish(subject string, data any) {
	if err := p.bus.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}
