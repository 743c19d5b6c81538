package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

// Client adapts the OpenAI Responses API to the Messages-shaped call the
// analysis pipeline makes, so either provider can sit behind analysis.LLM.
type Client struct {
	client oai.Client
	model  string
}

func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client: oai.NewClient(opts...),
		model:  model,
	}
}

func (c *Client) Model() string {
	return c.model
}

// CreateMessage sends system as instructions and messages as input items.
// The reply is returned as a single text block; provider errors are mapped to
// *anthropic.APIError so overload and retry classification stay uniform.
func (c *Client) CreateMessage(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (*anthropic.Response, error) {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, m := range messages {
		role := responses.EasyInputMessageRoleUser
		if m.Role == "assistant" {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: oai.Int(int64(maxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}
	if system != "" {
		params.Instructions = oai.String(system)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, &anthropic.APIError{
				StatusCode: apiErr.StatusCode,
				Type:       errorType(apiErr),
				Message:    apiErr.Message,
			}
		}
		return nil, fmt.Errorf("send request: %w", err)
	}

	out := &anthropic.Response{
		ID:         resp.ID,
		StopReason: stopReason(resp),
		Usage: anthropic.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	if text := resp.OutputText(); text != "" {
		raw, err := json.Marshal(text)
		if err != nil {
			return nil, fmt.Errorf("encode output text: %w", err)
		}
		out.Content = []anthropic.ContentBlock{{Type: "text", Text: raw}}
	}
	return out, nil
}

// errorType folds OpenAI rate limiting into the overload vocabulary.
func errorType(e *oai.Error) string {
	if e.Type == "rate_limit_exceeded" || e.Code == "rate_limit_exceeded" {
		return "rate_limit_error"
	}
	return e.Type
}

func stopReason(resp *responses.Response) string {
	if resp.Status == "incomplete" {
		if resp.IncompleteDetails.Reason == "max_output_tokens" {
			return "max_tokens"
		}
		return string(resp.IncompleteDetails.Reason)
	}
	return "end_turn"
}
