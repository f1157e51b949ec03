package summarize

import (
	"context"
	"strings"

	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/tokencount"
)

// Summarizer picks a summarization strategy by input length and runs it.
type Summarizer struct {
	llm *llmclient.Client
	cfg Config
}

// New wires a Summarizer against an LLM client and tunables.
func New(llm *llmclient.Client, cfg Config) *Summarizer {
	return &Summarizer{llm: llm, cfg: cfg.withDefaults()}
}

// Summarize selects NONE/BRIEF/MAP_REDUCE based on content length and
// returns the resulting summary. content is returned unchanged at
// LevelNone; brief produces a one-sentence summary; map-reduce chunks,
// summarizes, and collapses.
func (s *Summarizer) Summarize(ctx context.Context, content string, ct ContentType) (Result, error) {
	inputTokens := tokencount.Estimate(content)
	level := DetermineLevel(inputTokens)

	switch level {
	case LevelNone:
		return Result{
			Level:            LevelNone,
			Summary:          content,
			InputTokens:      inputTokens,
			OutputTokens:     inputTokens,
			CompressionRatio: 1.0,
		}, nil

	case LevelBrief:
		summary, err := s.brief(ctx, content)
		if err != nil {
			return Result{}, err
		}
		return s.finish(level, inputTokens, summary, 0), nil

	default:
		outcome, err := mapReduceSummarize(ctx, s.llm, content, ct, s.cfg)
		if err != nil {
			return Result{}, err
		}
		return s.finish(level, inputTokens, outcome.summary, outcome.collapseDepth), nil
	}
}

func (s *Summarizer) brief(ctx context.Context, content string) (string, error) {
	out, err := s.llm.Complete(ctx, s.cfg.Model, []llmclient.Message{
		{Role: "system", Content: briefPrompt},
		{Role: "user", Content: content},
	}, s.cfg.Temperature, 100)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *Summarizer) finish(level Level, inputTokens int, summary string, collapseDepth int) Result {
	outputTokens := tokencount.Estimate(summary)
	ratio := 1.0
	if inputTokens > 0 {
		ratio = float64(outputTokens) / float64(inputTokens)
	}
	return Result{
		Level:            level,
		Summary:          summary,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		CompressionRatio: ratio,
		CollapseDepth:    collapseDepth,
	}
}
