// Package llmclient is the shared chat-completion helper used by the
// memory reconciler and the adaptive summarizer for their internal LLM
// calls (fact extraction, reconciliation decisions, summary rollups).
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"github.com/manifold-ai/retromem/internal/observability"
)

// Message is a role/content chat turn.
type Message struct {
	Role    string
	Content string
}

// Client runs chat completions against an OpenAI-compatible endpoint.
type Client struct {
	client openai.Client
}

// New builds a Client. baseURL may be empty to use the SDK default.
func New(baseURL, apiKey string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(opts...)}
}

// Complete runs a single chat completion and returns the first choice's
// message content.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, temperature float64, maxTokens int) (string, error) {
	log := observability.LoggerWithTrace(ctx)
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toSDKMessages(messages),
		Temperature: param.NewOpt(temperature),
		MaxTokens:   param.NewOpt(int64(maxTokens)),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("llmclient: chat completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		log.Warn().Str("model", model).Dur("duration", dur).Msg("llmclient: chat completion returned no choices")
		return "", fmt.Errorf("chat completion returned no choices")
	}
	log.Debug().Str("model", model).Dur("duration", dur).
		Int("prompt_tokens", int(resp.Usage.PromptTokens)).
		Int("completion_tokens", int(resp.Usage.CompletionTokens)).
		Msg("llmclient: chat completion ok")
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON runs a completion whose system prompt already instructs the
// model to answer with JSON only, then unmarshals the response into out.
// There is no structured-output agent framework wired into this module;
// the instruction-plus-parse approach matches what the reconciler and
// summarizer prompts already ask the model to do.
func (c *Client) CompleteJSON(ctx context.Context, model string, messages []Message, temperature float64, maxTokens int, out any) error {
	raw, err := c.Complete(ctx, model, messages, temperature, maxTokens)
	if err != nil {
		return err
	}
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("model", model).
			Msg("llmclient: failed to parse model JSON output")
		return fmt.Errorf("parse model JSON output: %w (raw=%q)", err, raw)
	}
	return nil
}

func toSDKMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// stripCodeFence trims a leading/trailing ``` or ```json fence some models
// wrap JSON output in despite instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
