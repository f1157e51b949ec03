package summarize

import (
	"context"
	"fmt"
	"sync"

	"github.com/manifold-ai/retromem/internal/chunker"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/tokencount"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

type mapReduceOutcome struct {
	summary       string
	collapseDepth int
}

// mapReduceSummarize chunks content, summarizes each chunk in parallel
// (bounded by cfg.MaxConcurrentChunks), then repeatedly collapses the
// resulting summaries in token-budgeted groups until they fit TokenMax or
// MaxCollapseDepth is reached, at which point a forced final synthesis
// runs regardless of size.
func mapReduceSummarize(ctx context.Context, llm *llmclient.Client, content string, ct ContentType, cfg Config) (mapReduceOutcome, error) {
	chunks := chunker.Chunk(content, chunker.Config{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
		Counter:   tokencount.Estimate,
	})
	if len(chunks) == 0 {
		return mapReduceOutcome{}, nil
	}

	summaries, err := mapSummarizeChunks(ctx, llm, chunks, ct, cfg)
	if err != nil {
		return mapReduceOutcome{}, err
	}
	if len(summaries) == 1 {
		return mapReduceOutcome{summary: summaries[0]}, nil
	}

	return collapseUntilFits(ctx, llm, summaries, ct, cfg)
}

// mapSummarizeChunks runs the per-chunk map phase with up to
// MaxConcurrentChunks calls in flight.
func mapSummarizeChunks(ctx context.Context, llm *llmclient.Client, chunks []string, ct ContentType, cfg Config) ([]string, error) {
	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrentChunks))
	summaries := make([]string, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, c := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			defer sem.Release(1)
			minW, maxW := wordRangeFor(c)
			summaries[i], errs[i] = summarizeOne(ctx, llm, mapPromptForContentType(ct, minW, maxW), c, cfg)
		}(i, c)
	}
	wg.Wait()

	out := make([]string, 0, len(chunks))
	for i, e := range errs {
		if e != nil {
			return nil, fmt.Errorf("summarize chunk %d: %w", i, e)
		}
		if summaries[i] != "" {
			out = append(out, summaries[i])
		}
	}
	return out, nil
}

func wordRangeFor(text string) (int, int) {
	return wordRange(estimateSummaryTokens(tokencount.Estimate(text)))
}

// collapseUntilFits greedily groups summaries to fit TokenMax and
// synthesizes each group, repeating until the total fits in one group or
// MaxCollapseDepth rounds have run. A forced final synthesis follows
// regardless, combining whatever survives into one summary.
func collapseUntilFits(ctx context.Context, llm *llmclient.Client, summaries []string, ct ContentType, cfg Config) (mapReduceOutcome, error) {
	depth := 0
	for totalTokens(summaries) > cfg.TokenMax && depth < cfg.MaxCollapseDepth {
		groups := groupByTokenBudget(summaries, cfg.TokenMax)
		if len(groups) == len(summaries) {
			// No group coalesced anything (no two adjacent summaries fit
			// the budget together); force progress by pairing them up regardless.
			groups = pairwiseGroup(summaries)
		}
		collapsed, err := collapseGroups(ctx, llm, groups, ct, cfg)
		if err != nil {
			return mapReduceOutcome{}, err
		}
		summaries = collapsed
		depth++
	}
	if depth >= cfg.MaxCollapseDepth {
		log.Warn().Int("depth", depth).Int("remaining_summaries", len(summaries)).
			Msg("summarize: max collapse depth reached, forcing final synthesis")
	}

	if len(summaries) == 1 {
		return mapReduceOutcome{summary: summaries[0], collapseDepth: depth}, nil
	}

	final, err := synthesizeFinal(ctx, llm, summaries, ct, cfg)
	if err != nil {
		return mapReduceOutcome{}, err
	}
	return mapReduceOutcome{summary: final, collapseDepth: depth}, nil
}

// groupByTokenBudget greedily packs summaries into groups whose combined
// token count does not exceed budget, preserving order.
func groupByTokenBudget(summaries []string, budget int) [][]string {
	var groups [][]string
	var cur []string
	curTokens := 0
	for _, s := range summaries {
		t := tokencount.Estimate(s)
		if len(cur) > 0 && curTokens+t > budget {
			groups = append(groups, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, s)
		curTokens += t
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func pairwiseGroup(summaries []string) [][]string {
	var groups [][]string
	for i := 0; i < len(summaries); i += 2 {
		if i+1 < len(summaries) {
			groups = append(groups, []string{summaries[i], summaries[i+1]})
		} else {
			groups = append(groups, []string{summaries[i]})
		}
	}
	return groups
}

func collapseGroups(ctx context.Context, llm *llmclient.Client, groups [][]string, ct ContentType, cfg Config) ([]string, error) {
	out := make([]string, len(groups))
	errs := make([]error, len(groups))
	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrentChunks))

	var wg sync.WaitGroup
	for i, g := range groups {
		if len(g) == 1 {
			out[i] = g[0]
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, g []string) {
			defer wg.Done()
			defer sem.Release(1)
			combined := formatSummariesForMeta(g)
			minW, maxW := wordRange(estimateSummaryTokens(totalTokens(g)))
			out[i], errs[i] = summarizeOne(ctx, llm, reducePromptForContentType(ct, minW, maxW), combined, cfg)
		}(i, g)
	}
	wg.Wait()

	for i, e := range errs {
		if e != nil {
			return nil, fmt.Errorf("collapse group %d: %w", i, e)
		}
	}
	return out, nil
}

func synthesizeFinal(ctx context.Context, llm *llmclient.Client, summaries []string, ct ContentType, cfg Config) (string, error) {
	_ = ct // final synthesis uses one prompt regardless of content type
	combined := formatSummariesForMeta(summaries)
	minW, maxW := wordRange(estimateSummaryTokens(totalTokens(summaries)))
	return summarizeOne(ctx, llm, finalSynthesisPromptFor(minW, maxW), combined, cfg)
}

func summarizeOne(ctx context.Context, llm *llmclient.Client, systemPrompt, text string, cfg Config) (string, error) {
	out, err := llm.Complete(ctx, cfg.Model, []llmclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}, cfg.Temperature, estimateSummaryTokens(tokencount.Estimate(text))*2)
	if err != nil {
		return "", err
	}
	return out, nil
}

func totalTokens(summaries []string) int {
	n := 0
	for _, s := range summaries {
		n += tokencount.Estimate(s)
	}
	return n
}
