package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
)

const (
	// SubjectAnalysisRequested carries AnalysisRequested. Requests sent with a
	// reply subject get the outcome as the reply; otherwise it is published.
	SubjectAnalysisRequested = "tonecheck.analysis.requested"
	SubjectAnalysisCompleted = "tonecheck.analysis.completed"
	SubjectAnalysisFailed    = "tonecheck.analysis.failed"
	SubjectRunRecorded       = "tonecheck.run.recorded"
	SubjectServiceReady      = "tonecheck.service.ready"

	// QueueAnalyzers load-balances requests across service instances.
	QueueAnalyzers = "tonecheck-analyzers"
)

type AnalysisRequested struct {
	RequestID    string        `json:"request_id"`
	Conversation string        `json:"conversation"`
	Me           string        `json:"me,omitempty"`
	Them         string        `json:"them,omitempty"`
	Tier         analysis.Tier `json:"tier"`
	ExtraContext string        `json:"extra_context,omitempty"`
}

type AnalysisCompleted struct {
	RequestID    string                 `json:"request_id"`
	RunID        string                 `json:"run_id"`
	Tier         analysis.Tier          `json:"tier"`
	Participants analysis.Participants  `json:"participants"`
	Analysis     *analysis.ChatAnalysis `json:"analysis"`
	CompletedAt  time.Time              `json:"completed_at"`
}

// AnalysisFailed carries only a failure reason and a message safe to show users.
type AnalysisFailed struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	FailedAt  time.Time `json:"failed_at"`
}

// Outcome is the reply to a request-reply analysis. Exactly one field is set.
type Outcome struct {
	Completed *AnalysisCompleted `json:"completed,omitempty"`
	Failed    *AnalysisFailed    `json:"failed,omitempty"`
}
