package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
)

// Analyzer is the part of analysis.Analyzer a batch run needs.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	DetectParticipants(ctx context.Context, conversation string) analysis.Participants
}

// Notifier receives the end-of-run summary, with failures as a thread reply.
type Notifier interface {
	PostMessage(ctx context.Context, text string) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Config holds the batch command configuration.
type Config struct {
	Dir        string
	SingleFile string // process a single export only
	OutDir     string // where <name>.analysis.json is written (default: next to the export)
	StatePath  string
	Tier       analysis.Tier
	Me         string
	Them       string
	MinLines   int
	BatchSize  int           // pause after this many analyses
	Pause      time.Duration // length of the pause between batches
	DryRun     bool          // list what would be analyzed without calling the provider
}

// Runner analyzes every chat export in a directory, resuming where the last run stopped.
type Runner struct {
	cfg      Config
	analyzer Analyzer
	notifier Notifier
	out      io.Writer
	logger   *slog.Logger
}

func NewRunner(cfg Config, a Analyzer, out io.Writer, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, analyzer: a, out: out, logger: logger}
}

// SetNotifier posts run summaries to n. Without one the summary is only logged.
func (r *Runner) SetNotifier(n Notifier) {
	r.notifier = n
}

type export struct {
	path         string
	conversation string
}

// Run executes the batch.
func (r *Runner) Run(ctx context.Context) error {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	paths, err := r.discoverFiles()
	if err != nil {
		return fmt.Errorf("discover files: %w", err)
	}
	r.logger.Info("files discovered", "files", len(paths))

	// Processed files are still fingerprinted so later copies of them are skipped.
	var exports []export
	var fps []fingerprint
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("failed to read export", "path", path, "error", err)
			state.AddError(fmt.Sprintf("read %s: %v", path, err))
			continue
		}
		conversation := string(data)
		if countLines(conversation) < r.cfg.MinLines {
			continue
		}
		fps = append(fps, buildFingerprint(path, conversation))
		if !state.IsProcessed(path) {
			exports = append(exports, export{path: path, conversation: conversation})
		}
	}

	duplicates := findDuplicates(fps)
	var todo []export
	for _, e := range exports {
		if duplicates[e.path] {
			r.logger.Info("skipping duplicate export", "path", e.path)
			continue
		}
		todo = append(todo, e)
	}

	state.FilesRemaining = len(todo)
	r.logger.Info("files to process", "total", len(todo), "duplicates_skipped", len(duplicates))

	var summaries []FileSummary
	inBatch := 0

	for _, e := range todo {
		select {
		case <-ctx.Done():
			r.logger.Info("batch interrupted, saving state")
			_ = state.Save()
			return ctx.Err()
		default:
		}

		sum := r.processFile(ctx, e)
		summaries = append(summaries, sum)
		if sum.Error != "" {
			state.AddError(fmt.Sprintf("analyze %s: %s", e.path, sum.Error))
			_ = state.Save()
			continue
		}

		if !r.cfg.DryRun {
			state.Analyzed++
			state.QuotesDropped += sum.QuotesDropped
			if sum.Degraded {
				state.Degraded++
			}
			state.MarkProcessed(e.path)
		}
		state.FilesRemaining--
		_ = state.Save()

		if r.cfg.DryRun {
			continue
		}
		inBatch++
		if inBatch >= r.cfg.BatchSize && r.cfg.Pause > 0 {
			r.logger.Info("batch complete, pausing", "analyzed", state.Analyzed)
			inBatch = 0
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
		}
	}

	_ = state.Save()

	r.logger.Info("batch complete",
		"files_processed", len(summaries),
		"analyzed", state.Analyzed,
		"degraded", state.Degraded,
		"dry_run", r.cfg.DryRun,
	)

	summary := FormatSummary(summaries)
	r.postSummary(ctx, summary, state.Errors)

	fmt.Fprint(r.out, summary)
	fmt.Fprintf(r.out, "Errors: %d\n", len(state.Errors))
	if r.cfg.DryRun {
		fmt.Fprintf(r.out, "Mode: DRY RUN (no provider calls)\n")
	}
	fmt.Fprintf(r.out, "State file: %s\n", state.Path())

	return nil
}

func (r *Runner) postSummary(ctx context.Context, summary string, errs []string) {
	if r.notifier == nil || r.cfg.DryRun {
		r.logger.Info("batch summary", "summary", summary)
		return
	}

	ts, err := r.notifier.PostMessage(ctx, summary)
	if err != nil {
		r.logger.Warn("failed to post batch summary, logging instead", "error", err, "summary", summary)
		return
	}
	if len(errs) == 0 {
		return
	}
	if err := r.notifier.PostThread(ctx, ts, "Errors:\n"+strings.Join(errs, "\n")); err != nil {
		r.logger.Warn("failed to post batch errors", "error", err)
	}
}

func (r *Runner) processFile(ctx context.Context, e export) FileSummary {
	sum := FileSummary{Path: e.path}

	req := analysis.Request{
		Conversation: e.conversation,
		Me:           strings.TrimSpace(r.cfg.Me),
		Them:         strings.TrimSpace(r.cfg.Them),
		Tier:         analysis.ParseTier(string(r.cfg.Tier)),
	}
	sum.Tier = req.Tier

	if r.cfg.DryRun {
		r.logger.Info("would analyze", "path", e.path, "chars", len(e.conversation))
		return sum
	}

	if req.Me == "" || req.Them == "" {
		p := r.analyzer.DetectParticipants(ctx, req.Conversation)
		if req.Me == "" {
			req.Me = p.Me
		}
		if req.Them == "" {
			req.Them = p.Them
		}
	}
	sum.Participants = analysis.Participants{Me: req.Me, Them: req.Them}

	r.logger.Info("analyzing export", "path", e.path, "me", req.Me, "them", req.Them)

	res, err := r.analyzer.Analyze(ctx, req)
	if err != nil {
		r.logger.Error("analysis failed", "path", e.path, "reason", analysis.FailureReason(err), "error", err)
		sum.Error = analysis.FailureReason(err)
		return sum
	}

	sum.Degraded = res.Degraded
	sum.QuotesDropped = res.Quotes.Dropped
	if hs := res.Analysis.HealthScore; hs != nil {
		sum.HealthScore = float64(hs.Score)
		sum.Label = hs.Label
	}

	if err := r.writeResult(e.path, sum.Participants, res); err != nil {
		r.logger.Error("write result failed", "path", e.path, "error", err)
		sum.Error = "write_failed"
	}
	return sum
}

type fileResult struct {
	RunID        string                 `json:"runId"`
	Source       string                 `json:"source"`
	Tier         analysis.Tier          `json:"tier"`
	Participants analysis.Participants  `json:"participants"`
	Analysis     *analysis.ChatAnalysis `json:"analysis"`
}

// OutputPath is where the analysis of the export at path is written.
func (r *Runner) OutputPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".analysis.json"
	if r.cfg.OutDir != "" {
		return filepath.Join(expandHome(r.cfg.OutDir), name)
	}
	return filepath.Join(filepath.Dir(path), name)
}

func (r *Runner) writeResult(path string, p analysis.Participants, res *analysis.Result) error {
	data, err := json.MarshalIndent(fileResult{
		RunID:        res.RunID.String(),
		Source:       filepath.Base(path),
		Tier:         res.Tier,
		Participants: p,
		Analysis:     res.Analysis,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	out := r.OutputPath(path)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(out, data, 0o644)
}

// FormatSummary groups file summaries by health label.
func FormatSummary(summaries []FileSummary) string {
	byLabel := make(map[string][]FileSummary)
	for _, s := range summaries {
		label := s.Label
		switch {
		case s.Error != "":
			label = "Failed"
		case label == "":
			label = "Unscored"
		}
		byLabel[label] = append(byLabel[label], s)
	}

	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var sb strings.Builder
	sb.WriteString("=== Batch Summary ===\n")
	fmt.Fprintf(&sb, "Files processed: %d\n", len(summaries))

	for _, label := range labels {
		files := byLabel[label]
		fmt.Fprintf(&sb, "\n%s (%d files)\n", label, len(files))
		for _, f := range files {
			fmt.Fprintf(&sb, "  - %s [%s]", filepath.Base(f.Path), f.Tier)
			switch {
			case f.Error != "":
				fmt.Fprintf(&sb, ": %s", f.Error)
			case f.Label != "":
				fmt.Fprintf(&sb, ": %s vs %s, score %.0f", f.Participants.Me, f.Participants.Them, f.HealthScore)
			}
			if f.Degraded {
				sb.WriteString(" (degraded)")
			}
			if f.QuotesDropped > 0 {
				fmt.Fprintf(&sb, " (%d quotes dropped)", f.QuotesDropped)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	return sb.String()
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		path := expandHome(r.cfg.SingleFile)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("single file not found: %s", path)
		}
		return []string{path}, nil
	}

	dir := expandHome(r.cfg.Dir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
