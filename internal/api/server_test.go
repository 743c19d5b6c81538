package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	result       *analysis.Result
	err          error
	participants analysis.Participants
	lastReq      analysis.Request
	detectCalls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeAnalyzer) DetectParticipants(_ context.Context, _ string) analysis.Participants {
	f.detectCalls++
	return f.participants
}

func (f *fakeAnalyzer) Features() analysis.FeatureTable {
	return analysis.DefaultFeatures()
}

type fakeRuns struct {
	runs      []analysis.Run
	stats     []analysis.RunStats
	err       error
	lastLimit int
	lastSince time.Time
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]analysis.Run, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func (f *fakeRuns) RunStats(_ context.Context, since time.Time) ([]analysis.RunStats, error) {
	f.lastSince = since
	return f.stats, f.err
}

func okResult() *analysis.Result {
	return &analysis.Result{
		RunID: uuid.New(),
		Tier:  analysis.TierPersonal,
		Analysis: &analysis.ChatAnalysis{
			ToneAnalysis:  analysis.ToneAnalysis{OverallTone: "Warm", EmotionalState: []analysis.Emotion{}},
			Communication: analysis.Communication{Patterns: []string{"Open questions"}},
		},
	}
}

func do(srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "secret", &fakeAnalyzer{}, nil, discardLogger())

	w := do(srv, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if body := decodeMap(t, w); body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakeAnalyzer{}, nil, discardLogger())

	if w := do(srv, "GET", "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := NewServer(8760, "secret", &fakeAnalyzer{}, nil, discardLogger())

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic secret"}, http.StatusUnauthorized},
		{"valid token", []string{"Authorization", "Bearer secret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(srv, "GET", "/api/v1/tiers", "", tt.header...); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestTiersEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakeAnalyzer{}, nil, discardLogger())

	w := do(srv, "GET", "/api/v1/tiers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var table analysis.FeatureTable
	if err := json.NewDecoder(w.Body).Decode(&table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !table.Profile(analysis.TierPro).Has(analysis.FeaturePowerDynamics) {
		t.Error("expected pro to include powerDynamics")
	}
	if table.Profile(analysis.TierFree).Has(analysis.FeatureRedFlags) {
		t.Error("expected free to exclude redFlags")
	}
}

func TestSchemaEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakeAnalyzer{}, nil, discardLogger())

	w := do(srv, "GET", "/api/v1/schema", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeMap(t, w)
	props, ok := body["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties, got %v", body)
	}
	if _, ok := props["healthScore"]; !ok {
		t.Error("expected healthScore property")
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	fa := &fakeAnalyzer{result: okResult()}
	srv := NewServer(8760, "", fa, nil, discardLogger())

	w := do(srv, "POST", "/api/v1/analyze", `{"conversation": "Alex: hi\nJamie: hey", "me": "Alex", "them": "Jamie", "tier": "personal"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fa.detectCalls != 0 {
		t.Error("names were supplied; detection should not run")
	}
	if fa.lastReq.Tier != analysis.TierPersonal || fa.lastReq.Me != "Alex" {
		t.Errorf("unexpected request passed through: %+v", fa.lastReq)
	}

	body := decodeMap(t, w)
	if body["runId"] != fa.result.RunID.String() {
		t.Errorf("expected run id, got %v", body["runId"])
	}
	a, ok := body["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("expected analysis object, got %v", body["analysis"])
	}
	if _, present := a["redFlags"]; present {
		t.Error("absent fields must not be serialized")
	}
	for _, internal := range []string{"strategy", "degraded", "quotes"} {
		if _, present := body[internal]; present {
			t.Errorf("diagnostic field %q must not be returned to callers", internal)
		}
	}
}

func TestAnalyzeEndpoint_DetectsMissingNames(t *testing.T) {
	fa := &fakeAnalyzer{
		result:       okResult(),
		participants: analysis.Participants{Me: "Sam", Them: "Riley"},
	}
	srv := NewServer(8760, "", fa, nil, discardLogger())

	w := do(srv, "POST", "/api/v1/analyze", `{"conversation": "Sam: hi\nRiley: hey", "them": "Riley R"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fa.detectCalls != 1 {
		t.Errorf("expected one detection call, got %d", fa.detectCalls)
	}
	if fa.lastReq.Me != "Sam" || fa.lastReq.Them != "Riley R" {
		t.Errorf("expected detected me and supplied them, got %+v", fa.lastReq)
	}
	participants := decodeMap(t, w)["participants"].(map[string]any)
	if participants["me"] != "Sam" {
		t.Errorf("expected participants in response, got %v", participants)
	}
}

func TestAnalyzeEndpoint_BadRequests(t *testing.T) {
	srv := NewServer(8760, "", &fakeAnalyzer{result: okResult()}, nil, discardLogger())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"conversation": `},
		{"missing conversation", `{"me": "Alex"}`},
		{"blank conversation", `{"conversation": "   "}`},
		{"too large", fmt.Sprintf(`{"conversation": %q}`, strings.Repeat("a", maxBodyBytes))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "POST", "/api/v1/analyze", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAnalyzeEndpoint_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{
			name: "overloaded",
			err:  fmt.Errorf("analysis call: %w", &anthropic.APIError{StatusCode: 529, Type: "overloaded_error"}),
			code: http.StatusServiceUnavailable,
			msg:  "high demand, try again shortly",
		},
		{
			name: "empty response",
			err:  fmt.Errorf("extract response: %w", analysis.ErrEmptyResponse),
			code: http.StatusBadGateway,
			msg:  "unable to process this conversation, please contact support",
		},
		{
			name: "provider error",
			err:  errors.New("api call: connection reset"),
			code: http.StatusBadGateway,
			msg:  "unable to process this conversation, please contact support",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(8760, "", &fakeAnalyzer{err: tt.err}, nil, discardLogger())
			w := do(srv, "POST", "/api/v1/analyze", `{"conversation": "a: hi", "me": "a", "them": "b"}`)

			if w.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, w.Code)
			}
			body := decodeMap(t, w)
			if body["error"] != tt.msg {
				t.Errorf("expected %q, got %v", tt.msg, body["error"])
			}
		})
	}
}

func TestParticipantsEndpoint(t *testing.T) {
	fa := &fakeAnalyzer{participants: analysis.Participants{Me: "Alex", Them: "Jamie"}}
	srv := NewServer(8760, "", fa, nil, discardLogger())

	w := do(srv, "POST", "/api/v1/participants", `{"conversation": "Alex: hi\nJamie: hey"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["me"] != "Alex" || body["them"] != "Jamie" {
		t.Errorf("unexpected participants %v", body)
	}

	if w := do(srv, "POST", "/api/v1/participants", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty conversation, got %d", w.Code)
	}
}

func TestRunsEndpoint(t *testing.T) {
	runs := &fakeRuns{runs: []analysis.Run{{ID: uuid.New(), Tier: analysis.TierPro, Strategy: "direct"}}}
	srv := NewServer(8760, "", &fakeAnalyzer{}, runs, discardLogger())

	w := do(srv, "GET", "/api/v1/runs?limit=5000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if runs.lastLimit != maxRunsLimit {
		t.Errorf("expected limit capped at %d, got %d", maxRunsLimit, runs.lastLimit)
	}
	if body := decodeMap(t, w); body["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", body["count"])
	}

	if w := do(srv, "GET", "/api/v1/runs?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", w.Code)
	}

	runs.err = errors.New("db down")
	if w := do(srv, "GET", "/api/v1/runs", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if runs.lastLimit != defaultRunsLimit {
		t.Errorf("expected default limit, got %d", runs.lastLimit)
	}
}

func TestRunsEndpoint_NotConfigured(t *testing.T) {
	srv := NewServer(8760, "", &fakeAnalyzer{}, nil, discardLogger())

	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/stats"} {
		if w := do(srv, "GET", path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestRunStatsEndpoint(t *testing.T) {
	runs := &fakeRuns{stats: []analysis.RunStats{{Tier: analysis.TierPro, Runs: 4, Failed: 1, Degraded: 1}}}
	srv := NewServer(8760, "", &fakeAnalyzer{}, runs, discardLogger())

	w := do(srv, "GET", "/api/v1/runs/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if age := time.Since(runs.lastSince); age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("expected default span of 24h, got %v", age)
	}
	body := decodeMap(t, w)
	tiers, ok := body["tiers"].([]any)
	if !ok || len(tiers) != 1 {
		t.Fatalf("expected 1 tier row, got %v", body["tiers"])
	}
	if row := tiers[0].(map[string]any); row["runs"] != float64(4) || row["failed"] != float64(1) {
		t.Errorf("unexpected row %v", row)
	}

	do(srv, "GET", "/api/v1/runs/stats?since=8760h", "")
	if age := time.Since(runs.lastSince); age > maxStatsSpan+time.Hour {
		t.Errorf("expected span capped at %v, got %v", maxStatsSpan, age)
	}

	for _, bad := range []string{"yesterday", "-1h", "0s"} {
		if w := do(srv, "GET", "/api/v1/runs/stats?since="+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("since=%s: expected 400, got %d", bad, w.Code)
		}
	}

	runs.err = errors.New("db down")
	if w := do(srv, "GET", "/api/v1/runs/stats", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestAnalyzeEndpoint_EndToEnd(t *testing.T) {
	reply := "```json\n" + `{"toneAnalysis": {"overallTone": "Friendly", "emotionalState": [{"emotion": "joy", "intensity": 0.6}]}, "communication": {"patterns": ["Warm greetings. Quick replies.", "Shared plans.", "Jokes."]}, "healthScore": {"score": 88}, "keyQuotes": [{"speaker": "Alex", "quote": "see you at eight", "analysis": "Makes a plan", "improvement": "none needed"}]}` + "\n```"

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		})
	}))
	defer provider.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(provider.URL)
	srv := NewServer(8760, "", analysis.New(llm, discardLogger()), nil, discardLogger())

	w := do(srv, "POST", "/api/v1/analyze", `{"conversation": "10/1/2024, 19:00 - Alex: see you at eight\n10/1/2024, 19:01 - Jamie: perfect", "tier": "free"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body analyzeResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Participants != (analysis.Participants{Me: "Alex", Them: "Jamie"}) {
		t.Errorf("expected detected participants, got %+v", body.Participants)
	}
	a := body.Analysis
	if len(a.Communication.Patterns) != 2 || a.Communication.Patterns[0] != "Warm greetings" {
		t.Errorf("expected free-tier pattern truncation, got %v", a.Communication.Patterns)
	}
	if a.HealthScore.Label != "Healthy" {
		t.Errorf("expected Healthy, got %q", a.HealthScore.Label)
	}
	if len(a.KeyQuotes) != 1 || a.KeyQuotes[0].Improvement != "" {
		t.Errorf("expected free key quote without improvement, got %+v", a.KeyQuotes)
	}
}
