package reconciler

import (
	"context"
	"strings"

	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/observability"
)

// ExtractFacts runs the fact-extraction LLM call against the user's latest
// message only. A transient model failure degrades to an empty fact list
// rather than failing the request the extraction was triggered by.
func ExtractFacts(ctx context.Context, llm *llmclient.Client, model, userMessage string) []string {
	if strings.TrimSpace(userMessage) == "" {
		return nil
	}

	var facts []string
	err := llm.CompleteJSON(ctx, model, []llmclient.Message{
		{Role: "system", Content: factSystemPrompt},
		{Role: "user", Content: userMessage},
	}, 0, 256, &facts)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("reconciler: fact extraction failed, treating as no facts")
		return nil
	}

	out := make([]string, 0, len(facts))
	for _, f := range facts {
		if t := strings.TrimSpace(f); t != "" {
			out = append(out, t)
		}
	}
	return out
}
