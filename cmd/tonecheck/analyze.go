package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/config"
	"github.com/MikeSquared-Agency/tonecheck/internal/hermes"
)

type requestFlags struct {
	tier         string
	me           string
	them         string
	extraContext string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.tier, "tier", "t", string(analysis.TierFree), "Subscription tier (free, personal, pro, instant, beta)")
	cmd.Flags().StringVar(&f.me, "me", "", "Name of the requesting participant (detected when empty)")
	cmd.Flags().StringVar(&f.them, "them", "", "Name of the other participant (detected when empty)")
	cmd.Flags().StringVar(&f.extraContext, "context", "", "Extra context appended to the prompt")
}

func (f *requestFlags) request(conversation string) analysis.Request {
	return analysis.Request{
		Conversation: conversation,
		Me:           strings.TrimSpace(f.me),
		Them:         strings.TrimSpace(f.them),
		Tier:         analysis.Tier(f.tier),
		ExtraContext: f.extraContext,
	}
}

func newAnalyzeCmd() *cobra.Command {
	var flags requestFlags
	var remote bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze [conversation-file]",
		Short: "Analyze a conversation read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

			conversation, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req := flags.request(conversation)
			if remote {
				return analyzeRemote(ctx, cfg, req, cmd.OutOrStdout())
			}
			return analyzeLocal(ctx, cfg, newLLM(cfg), req, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&remote, "remote", false, "Send the request to a running service over NATS")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "Overall time limit")
	return cmd
}

type analyzeOutput struct {
	RunID        string                 `json:"runId"`
	Tier         analysis.Tier          `json:"tier"`
	Participants analysis.Participants  `json:"participants"`
	Analysis     *analysis.ChatAnalysis `json:"analysis"`
}

func analyzeLocal(ctx context.Context, cfg config.Config, llm analysis.LLM, req analysis.Request, out io.Writer) error {
	if llm == nil {
		return errNoAPIKey
	}
	a := newAnalyzer(cfg, llm)
	req = fillParticipants(ctx, a, req)

	res, err := a.Analyze(ctx, req)
	if err != nil {
		slog.Error("analysis failed", "reason", analysis.FailureReason(err), "error", err)
		return errors.New(analysis.UserMessage(err))
	}
	return writeJSON(out, analyzeOutput{
		RunID:        res.RunID.String(),
		Tier:         res.Tier,
		Participants: analysis.Participants{Me: req.Me, Them: req.Them},
		Analysis:     res.Analysis,
	})
}

func analyzeRemote(ctx context.Context, cfg config.Config, req analysis.Request, out io.Writer) error {
	if cfg.NatsURL == "" {
		return errors.New("NATS_URL is required with --remote")
	}
	client, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := client.Request(ctx, hermes.SubjectAnalysisRequested, hermes.AnalysisRequested{
		RequestID:    uuid.NewString(),
		Conversation: req.Conversation,
		Me:           req.Me,
		Them:         req.Them,
		Tier:         req.Tier,
		ExtraContext: req.ExtraContext,
	})
	if err != nil {
		return err
	}

	var outcome hermes.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	switch {
	case outcome.Failed != nil:
		return errors.New(outcome.Failed.Message)
	case outcome.Completed == nil:
		return errors.New("empty reply from analysis service")
	}
	return writeJSON(out, analyzeOutput{
		RunID:        outcome.Completed.RunID,
		Tier:         outcome.Completed.Tier,
		Participants: outcome.Completed.Participants,
		Analysis:     outcome.Completed.Analysis,
	})
}

func newReplayCmd() *cobra.Command {
	var flags requestFlags
	var conversationPath string

	cmd := &cobra.Command{
		Use:   "replay <model-output-file>",
		Short: "Run a saved model reply through parsing, quote validation and tier filtering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read model output: %w", err)
			}
			var conversation string
			if conversationPath != "" {
				b, err := os.ReadFile(conversationPath)
				if err != nil {
					return fmt.Errorf("read conversation: %w", err)
				}
				conversation = string(b)
			}
			return replay(cfg, string(raw), flags.request(conversation), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&conversationPath, "conversation", "c", "", "Conversation the reply was produced for, used to validate quotes")
	return cmd
}

type replayOutput struct {
	Strategy string                 `json:"strategy"`
	Degraded bool                   `json:"degraded"`
	Quotes   analysis.QuoteReport   `json:"quotes"`
	Analysis *analysis.ChatAnalysis `json:"analysis"`
}

// replay never calls the provider. Missing names fall back to export prefixes
// or the generic pair.
func replay(cfg config.Config, raw string, req analysis.Request, out io.Writer) error {
	a := newAnalyzer(cfg, nil)
	req = fillParticipants(context.Background(), a, req)
	res := a.Process(raw, req)
	return writeJSON(out, replayOutput{
		Strategy: res.Strategy,
		Degraded: res.Degraded,
		Quotes:   res.Quotes,
		Analysis: res.Analysis,
	})
}

func newParticipantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participants [conversation-file]",
		Short: "Detect the two speaker names in a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

			conversation, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a := newAnalyzer(cfg, newLLM(cfg))
			return writeJSON(cmd.OutOrStdout(), a.DetectParticipants(cmd.Context(), conversation))
		},
	}
}

func fillParticipants(ctx context.Context, a *analysis.Analyzer, req analysis.Request) analysis.Request {
	if req.Me != "" && req.Them != "" {
		return req
	}
	p := a.DetectParticipants(ctx, req.Conversation)
	if req.Me == "" {
		req.Me = p.Me
	}
	if req.Them == "" {
		req.Them = p.Them
	}
	return req
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(args []string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read conversation: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("conversation is empty")
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
