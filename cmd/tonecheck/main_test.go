package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
	"github.com/MikeSquared-Agency/tonecheck/internal/config"
)

const testConversation = "Alex: You never listen to me.\nJamie: I'm sorry, I didn't mean to upset you."

const testReply = "```json\n" + `{
  "toneAnalysis": {"overallTone": "Strained", "emotionalState": [{"emotion": "frustration", "intensity": "0.7"}]},
  "communication": {"patterns": ["Alex generalizes. Jamie apologizes."], "suggestions": ["Use I statements"]},
  "redFlags": [{"type": "criticism", "description": "Alex uses absolutes", "severity": 4}],
  "healthScore": {"score": 40, "label": "Healthy", "color": "#000"},
  "keyQuotes": [
    {"speaker": "Alex", "quote": "You never listen to me.", "analysis": "absolute language", "improvement": "I feel unheard"},
    {"speaker": "Jamie", "quote": "Let's go to Paris tomorrow", "analysis": "invented"}
  ]
}` + "\n```"

func TestSetupLogging(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	tests := []struct {
		level     string
		debugLogs bool
		warnLogs  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"", false, true},
		{"WARN", false, true},
		{"error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			setupLogging(tt.level, &buf)

			ctx := context.Background()
			if got := slog.Default().Enabled(ctx, slog.LevelDebug); got != tt.debugLogs {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugLogs)
			}
			if got := slog.Default().Enabled(ctx, slog.LevelWarn); got != tt.warnLogs {
				t.Errorf("warn enabled = %v, want %v", got, tt.warnLogs)
			}

			slog.Error("probe", "k", "v")
			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("expected a JSON log line, got %q", buf.String())
			}
			if line["msg"] != "probe" {
				t.Errorf("expected msg probe, got %v", line["msg"])
			}
		})
	}
}

func TestNewLLM_NoKeyIsNil(t *testing.T) {
	if llm := newLLM(config.Config{}); llm != nil {
		t.Errorf("expected nil provider without an API key, got %T", llm)
	}
	if llm := newLLM(config.Config{AnthropicAPIKey: "sk-test", AnthropicModel: "m"}); llm == nil {
		t.Error("expected a provider with an API key")
	}
}

func TestNewLLM_ProviderSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"default anthropic", config.Config{Provider: "anthropic", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "*anthropic.Client"},
		{"openai", config.Config{Provider: "openai", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "*openai.Client"},
		{"openai case-insensitive", config.Config{Provider: "OpenAI", OpenAIAPIKey: "o"}, "*openai.Client"},
		{"openai without key", config.Config{Provider: "openai", AnthropicAPIKey: "a"}, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fmt.Sprintf("%T", newLLM(tt.cfg)); got != tt.want {
				t.Errorf("newLLM() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestModelName(t *testing.T) {
	cfg := config.Config{AnthropicModel: "claude", OpenAIModel: "gpt"}
	if got := modelName(cfg); got != "claude" {
		t.Errorf("expected claude, got %s", got)
	}
	cfg.Provider = "openai"
	if got := modelName(cfg); got != "gpt" {
		t.Errorf("expected gpt, got %s", got)
	}
}

func TestSchemaCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newSchemaCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"toneAnalysis"`) {
		t.Errorf("expected toneAnalysis in schema output, got %s", buf.String())
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "analyze": false, "replay": false, "participants": false, "batch": false, "schema": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.txt")
	if err := os.WriteFile(path, []byte(testConversation), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	got, err := readInput([]string{path}, strings.NewReader("ignored"))
	if err != nil || got != testConversation {
		t.Errorf("file input = %q, %v", got, err)
	}

	got, err = readInput(nil, strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Errorf("stdin input = %q, %v", got, err)
	}

	got, err = readInput([]string{"-"}, strings.NewReader("dash"))
	if err != nil || got != "dash" {
		t.Errorf("dash input = %q, %v", got, err)
	}

	if _, err := readInput(nil, strings.NewReader("  \n ")); err == nil {
		t.Error("expected error for empty conversation")
	}
	if _, err := readInput([]string{filepath.Join(dir, "missing.txt")}, nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAnalyzeLocal(t *testing.T) {
	setupLogging("error", io.Discard)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"content":     []map[string]any{{"type": "text", "text": testReply}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 900, "output_tokens": 300},
		})
	}))
	defer server.Close()

	client := anthropic.NewClient("sk-test", "test-model")
	client.SetTestTransport(server.URL)

	var out bytes.Buffer
	req := analysis.Request{Conversation: testConversation, Tier: analysis.TierPersonal}
	if err := analyzeLocal(context.Background(), config.Config{QuoteThreshold: 0.7}, client, req, &out); err != nil {
		t.Fatalf("analyzeLocal error: %v", err)
	}

	var got analyzeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got.RunID == "" {
		t.Error("expected run id")
	}
	if got.Tier != analysis.TierPersonal {
		t.Errorf("expected tier personal, got %s", got.Tier)
	}
	if got.Participants.Me != "Alex" || got.Participants.Them != "Jamie" {
		t.Errorf("expected detected participants, got %+v", got.Participants)
	}
	if len(got.Analysis.KeyQuotes) != 1 {
		t.Fatalf("expected the invented quote to be dropped, got %+v", got.Analysis.KeyQuotes)
	}
	if got.Analysis.HealthScore == nil || got.Analysis.HealthScore.Label != "Tension" {
		t.Errorf("expected label re-derived from score 40, got %+v", got.Analysis.HealthScore)
	}
}

func TestAnalyzeLocal_NoProvider(t *testing.T) {
	err := analyzeLocal(context.Background(), config.Config{}, nil, analysis.Request{Conversation: testConversation}, io.Discard)
	if !errors.Is(err, errNoAPIKey) {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestAnalyzeLocal_ProviderFailureIsUserFacing(t *testing.T) {
	setupLogging("error", io.Discard)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long"}}`))
	}))
	defer server.Close()

	client := anthropic.NewClient("sk-test", "test-model")
	client.SetTestTransport(server.URL)

	req := analysis.Request{Conversation: testConversation, Me: "Alex", Them: "Jamie"}
	err := analyzeLocal(context.Background(), config.Config{}, client, req, io.Discard)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "prompt is too long") {
		t.Errorf("provider detail leaked to the user: %v", err)
	}
}

func TestReplay(t *testing.T) {
	setupLogging("error", io.Discard)

	tests := []struct {
		name     string
		raw      string
		tier     analysis.Tier
		degraded bool
		strategy string
	}{
		{name: "fenced reply", raw: testReply, tier: analysis.TierFree, strategy: "direct"},
		{name: "unparseable reply", raw: `I could not analyze this. "overallTone": "Tense"`, tier: analysis.TierPro, degraded: true, strategy: analysis.StrategyRawFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			req := analysis.Request{Conversation: testConversation, Tier: tt.tier}
			if err := replay(config.Config{QuoteThreshold: 0.7}, tt.raw, req, &out); err != nil {
				t.Fatalf("replay error: %v", err)
			}

			var got replayOutput
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if got.Degraded != tt.degraded {
				t.Errorf("degraded = %v, want %v", got.Degraded, tt.degraded)
			}
			if got.Strategy != tt.strategy {
				t.Errorf("strategy = %q, want %q", got.Strategy, tt.strategy)
			}
			if got.Analysis == nil {
				t.Fatal("expected an analysis even when degraded")
			}
		})
	}
}

func TestFillParticipants(t *testing.T) {
	a := analysis.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := fillParticipants(context.Background(), a, analysis.Request{Conversation: testConversation, Them: "Sam"})
	if got.Me != "Alex" || got.Them != "Sam" {
		t.Errorf("expected Alex/Sam, got %s/%s", got.Me, got.Them)
	}

	got = fillParticipants(context.Background(), a, analysis.Request{Conversation: "no names here"})
	if got.Me != "Me" || got.Them != "Them" {
		t.Errorf("expected generic fallback, got %s/%s", got.Me, got.Them)
	}
}
