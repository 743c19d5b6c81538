package batch

import "github.com/MikeSquared-Agency/tonecheck/internal/analysis"

// FileSummary is the outcome of analyzing one export.
type FileSummary struct {
	Path          string
	Tier          analysis.Tier
	Participants  analysis.Participants
	HealthScore   float64
	Label         string
	Degraded      bool
	QuotesDropped int
	Error         string // failure reason, empty on success
}
