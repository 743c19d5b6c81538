package processor

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/hermes"
)

// RunPublisher announces every finished analysis run on tonecheck.run.recorded.
type RunPublisher struct {
	bus    Bus
	logger *slog.Logger
}

func NewRunPublisher(bus Bus, logger *slog.Logger) *RunPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunPublisher{bus: bus, logger: logger}
}

func (r *RunPublisher) ObserveRun(_ context.Context, run analysis.Run) {
	if err := r.bus.Publish(hermes.SubjectRunRecorded, run); err != nil {
		r.logger.Error("failed to publish run", "run_id", run.ID, "error", err)
	}
}
