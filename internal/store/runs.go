package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
)

// WriteRun persists the diagnostic record of one analysis.
func (s *Store) WriteRun(ctx context.Context, run analysis.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, tier, strategy, degraded, quotes_kept, quotes_dropped,
			conversation_chars, input_tokens, output_tokens, failure, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, string(run.Tier), run.Strategy, run.Degraded, run.QuotesKept, run.QuotesDropped,
		run.ConversationChars, run.InputTokens, run.OutputTokens, run.Failure, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ObserveRun records runs as they finish. Write failures are logged and
// never reach the caller of Analyze.
func (s *Store) ObserveRun(ctx context.Context, run analysis.Run) {
	if err := s.WriteRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record run", "run_id", run.ID, "error", err)
	}
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]analysis.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tier, strategy, degraded, quotes_kept, quotes_dropped,
			conversation_chars, input_tokens, output_tokens, failure, duration_ms, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []analysis.Run
	for rows.Next() {
		var r analysis.Run
		var tier string
		if err := rows.Scan(&r.ID, &tier, &r.Strategy, &r.Degraded, &r.QuotesKept, &r.QuotesDropped,
			&r.ConversationChars, &r.InputTokens, &r.OutputTokens, &r.Failure, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Tier = analysis.Tier(tier)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunStats summarizes runs created at or after since, one row per tier.
func (s *Store) RunStats(ctx context.Context, since time.Time) ([]analysis.RunStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier,
			COUNT(*),
			COUNT(*) FILTER (WHERE failure <> ''),
			COUNT(*) FILTER (WHERE degraded),
			COALESCE(SUM(quotes_kept), 0),
			COALESCE(SUM(quotes_dropped), 0),
			COALESCE(AVG(duration_ms), 0)::float8
		FROM analysis_runs
		WHERE created_at >= $1
		GROUP BY tier
		ORDER BY tier`, since)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	var stats []analysis.RunStats
	for rows.Next() {
		var st analysis.RunStats
		var tier string
		if err := rows.Scan(&tier, &st.Runs, &st.Failed, &st.Degraded, &st.QuotesKept, &st.QuotesDropped, &st.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		st.Tier = analysis.Tier(tier)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
