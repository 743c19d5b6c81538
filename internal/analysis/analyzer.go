package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

// StrategyRawFields marks an analysis recovered by regex extraction after every
// JSON repair strategy failed.
const StrategyRawFields = "raw_fields"

// Failure reasons recorded on runs and used by callers to pick a user message.
const (
	FailureOverloaded       = "overloaded"
	FailureEmptyResponse    = "empty_response"
	FailureUnexpectedFormat = "unexpected_format"
	FailureProvider         = "provider_error"
)

// LLM is the provider call the pipeline depends on.
type LLM interface {
	CreateMessage(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (*anthropic.Response, error)
}

// RunObserver is notified after every analysis attempt, successful or not.
type RunObserver interface {
	ObserveRun(ctx context.Context, run Run)
}

// Run is the diagnostic record of one analysis. It never carries conversation text.
type Run struct {
	ID                uuid.UUID `json:"id"`
	Tier              Tier      `json:"tier"`
	Strategy          string    `json:"strategy,omitempty"`
	Degraded          bool      `json:"degraded"`
	QuotesKept        int       `json:"quotesKept"`
	QuotesDropped     int       `json:"quotesDropped"`
	ConversationChars int       `json:"conversationChars"`
	InputTokens       int       `json:"inputTokens"`
	OutputTokens      int       `json:"outputTokens"`
	Failure           string    `json:"failure,omitempty"`
	DurationMS        int64     `json:"durationMs"`
	CreatedAt         time.Time `json:"createdAt"`
}

// RunStats aggregates recorded runs for one tier.
type RunStats struct {
	Tier          Tier    `json:"tier"`
	Runs          int     `json:"runs"`
	Failed        int     `json:"failed"`
	Degraded      int     `json:"degraded"`
	QuotesKept    int     `json:"quotesKept"`
	QuotesDropped int     `json:"quotesDropped"`
	AvgDurationMS float64 `json:"avgDurationMs"`
}

type Result struct {
	RunID    uuid.UUID     `json:"runId"`
	Tier     Tier          `json:"tier"`
	Strategy string        `json:"-"`
	Degraded bool          `json:"-"`
	Quotes   QuoteReport   `json:"-"`
	Analysis *ChatAnalysis `json:"analysis"`
}

type Analyzer struct {
	llm        LLM
	logger     *slog.Logger
	validator  QuoteValidator
	features   FeatureTable
	observers  []RunObserver
	retryDelay time.Duration
}

type Option func(*Analyzer)

func WithQuoteThreshold(threshold float64) Option {
	return func(a *Analyzer) { a.validator = NewQuoteValidator(threshold) }
}

func WithFeatures(features FeatureTable) Option {
	return func(a *Analyzer) { a.features = features }
}

func WithObserver(o RunObserver) Option {
	return func(a *Analyzer) { a.observers = append(a.observers, o) }
}

// WithRetryDelay sets the pause before the single retry of a failed provider call.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Analyzer) { a.retryDelay = d }
}

func New(llm LLM, logger *slog.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		llm:        llm,
		logger:     logger,
		validator:  NewQuoteValidator(DefaultQuoteThreshold),
		features:   DefaultFeatures(),
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Features returns the tier table the analyzer filters with.
func (a *Analyzer) Features() FeatureTable {
	return a.features
}

// Analyze runs the whole pipeline for req: prompt, provider call, text
// extraction, JSON recovery, quote validation and tier filtering. Errors are
// limited to provider failures, ErrEmptyResponse and ErrUnexpectedFormat; an
// unparseable reply still yields a degraded analysis.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req.Tier = ParseTier(string(req.Tier))
	run := Run{
		ID:                uuid.New(),
		Tier:              req.Tier,
		ConversationChars: utf8.RuneCountInString(req.Conversation),
		CreatedAt:         start.UTC(),
	}
	tmpl := TemplateFor(req.Tier)

	a.logger.Info("analyzing conversation",
		"run_id", run.ID,
		"tier", req.Tier,
		"template", tmpl.Name,
		"conversation_len", run.ConversationChars,
	)

	resp, err := a.complete(ctx, BuildPrompt(req, a.features), tmpl.MaxTokens)
	if err != nil {
		run.Failure = FailureReason(err)
		a.finish(ctx, run, start)
		a.logger.Error("analysis call failed", "run_id", run.ID, "reason", run.Failure, "error", err)
		return nil, fmt.Errorf("analysis call: %w", err)
	}
	run.InputTokens = resp.Usage.InputTokens
	run.OutputTokens = resp.Usage.OutputTokens

	text, err := ExtractText(resp.Content)
	if err != nil {
		run.Failure = FailureReason(err)
		a.finish(ctx, run, start)
		a.logger.Error("unusable model response", "run_id", run.ID, "stop_reason", resp.StopReason, "error", err)
		return nil, fmt.Errorf("extract response: %w", err)
	}

	res := a.process(text, req, run.ID)
	run.Strategy = res.Strategy
	run.Degraded = res.Degraded
	run.QuotesKept = res.Quotes.Kept
	run.QuotesDropped = res.Quotes.Dropped
	a.finish(ctx, run, start)
	return res, nil
}

// Process runs the post-provider half of the pipeline on text that was already
// extracted from a model response. Observers are not notified.
func (a *Analyzer) Process(raw string, req Request) *Result {
	req.Tier = ParseTier(string(req.Tier))
	return a.process(raw, req, uuid.New())
}

// DetectParticipants resolves the speaker names of a conversation.
func (a *Analyzer) DetectParticipants(ctx context.Context, conversation string) Participants {
	return DetectParticipants(ctx, a.llm, conversation, a.logger)
}

func (a *Analyzer) process(raw string, req Request, runID uuid.UUID) *Result {
	analysis, strategy, degraded := a.recoverAnalysis(raw, req)
	normalize(analysis, TemplateFor(req.Tier))
	report := a.validator.Validate(analysis, req.Conversation)
	filtered := Filter(analysis, FilterOptions{
		Tier:     req.Tier,
		Me:       req.Me,
		Them:     req.Them,
		Features: a.features,
	})

	a.logger.Info("analysis complete",
		"run_id", runID,
		"tier", req.Tier,
		"strategy", strategy,
		"degraded", degraded,
		"quotes_kept", report.Kept,
		"quotes_dropped", report.Dropped,
	)

	return &Result{
		RunID:    runID,
		Tier:     req.Tier,
		Strategy: strategy,
		Degraded: degraded,
		Quotes:   report,
		Analysis: filtered,
	}
}

// recoverAnalysis tries the JSON repair chain and falls back to raw field
// extraction, which itself falls back to ErrorAnalysis.
func (a *Analyzer) recoverAnalysis(raw string, req Request) (*ChatAnalysis, string, bool) {
	parsed, err := ParseTolerant(raw)
	if err == nil {
		decoded, skipped, derr := decodeAnalysis(parsed.JSON)
		if derr == nil {
			if len(skipped) > 0 {
				a.logger.Debug("dropped malformed fields", "fields", skipped)
			}
			return decoded, parsed.Strategy, false
		}
		err = derr
	}
	a.logger.Warn("falling back to raw field extraction", "error", err, "response_len", len(raw))
	return ExtractRawFields(raw, req.Me, req.Them, a.logger), StrategyRawFields, true
}

// complete calls the provider, retrying once on overload, 5xx or timeout.
func (a *Analyzer) complete(ctx context.Context, prompt string, maxTokens int) (*anthropic.Response, error) {
	if a.llm == nil {
		return nil, errors.New("no model client configured")
	}
	messages := []anthropic.Message{{Role: "user", Content: prompt}}

	resp, err := a.llm.CreateMessage(ctx, SystemPrompt, messages, maxTokens)
	if err == nil || !shouldRetry(ctx, err) {
		return resp, err
	}

	a.logger.Warn("retrying model call", "error", err, "delay", a.retryDelay)
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(a.retryDelay):
	}
	return a.llm.CreateMessage(ctx, SystemPrompt, messages, maxTokens)
}

func (a *Analyzer) finish(ctx context.Context, run Run, start time.Time) {
	run.DurationMS = time.Since(start).Milliseconds()
	ctx = context.WithoutCancel(ctx)
	for _, o := range a.observers {
		o.ObserveRun(ctx, run)
	}
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FailureReason classifies an Analyze error into one of the Failure constants.
func FailureReason(err error) string {
	switch {
	case anthropic.IsOverloaded(err):
		return FailureOverloaded
	case errors.Is(err, ErrEmptyResponse):
		return FailureEmptyResponse
	case errors.Is(err, ErrUnexpectedFormat):
		return FailureUnexpectedFormat
	default:
		return FailureProvider
	}
}

// UserMessage is the text shown to end users for an Analyze error. Provider
// details stay in the logs.
func UserMessage(err error) string {
	if anthropic.IsOverloaded(err) {
		return "high demand, try again shortly"
	}
	return "unable to process this conversation, please contact support"
}
