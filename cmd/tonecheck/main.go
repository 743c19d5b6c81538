package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
	"github.com/MikeSquared-Agency/tonecheck/internal/config"
	"github.com/MikeSquared-Agency/tonecheck/internal/openai"
)

var rootCmd = &cobra.Command{
	Use:           "tonecheck",
	Short:         "tonecheck - conversation tone and health analysis",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var errNoAPIKey = errors.New("no model API key configured (set ANTHROPIC_API_KEY, or OPENAI_API_KEY with TONECHECK_PROVIDER=openai)")

func init() {
	rootCmd.AddCommand(newServeCmd(), newAnalyzeCmd(), newReplayCmd(), newParticipantsCmd(), newBatchCmd(), newSchemaCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// newLLM returns nil when the selected provider has no API key so that
// callers see an unset provider rather than one that fails on every call.
func newLLM(cfg config.Config) analysis.LLM {
	if strings.EqualFold(cfg.Provider, "openai") {
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	if cfg.AnthropicAPIKey == "" {
		return nil
	}
	return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
}

func modelName(cfg config.Config) string {
	if strings.EqualFold(cfg.Provider, "openai") {
		return cfg.OpenAIModel
	}
	return cfg.AnthropicModel
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the analysis document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := analysis.OutputSchema()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), schema)
		},
	}
}

func newAnalyzer(cfg config.Config, llm analysis.LLM, opts ...analysis.Option) *analysis.Analyzer {
	opts = append([]analysis.Option{analysis.WithQuoteThreshold(cfg.QuoteThreshold)}, opts...)
	return analysis.New(llm, slog.Default(), opts...)
}
