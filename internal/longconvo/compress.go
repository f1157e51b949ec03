package longconvo

import (
	"context"

	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/tokencount"
	"github.com/rs/zerolog/log"
)

// Compressor runs LLM-backed asymmetric compression over a Conversation's
// segments once the usage ratio crosses CompressThreshold.
type Compressor struct {
	llm   *llmclient.Client
	model string
}

// NewCompressor wires a Compressor against the shared LLM transport.
func NewCompressor(llm *llmclient.Client, model string) *Compressor {
	return &Compressor{llm: llm, model: model}
}

// CompressConversation compresses segments until the target reduction is
// met or compression candidates are exhausted. It mutates c in place and
// returns the total tokens freed.
func (cp *Compressor) CompressConversation(ctx context.Context, c *Conversation) int {
	if !ShouldCompress(c) {
		return 0
	}

	targetTokens := int(float64(c.TargetContextTokens) * c.CompressThreshold * 0.9)
	tokensToFree := c.CurrentTotalTokens - targetTokens
	if tokensToFree <= 0 {
		return 0
	}

	candidates := SelectSegmentsToCompress(c, tokensToFree)
	if len(candidates) == 0 {
		log.Warn().Str("conversation_id", c.ID).Msg("longconvo: no segments available for compression")
		return 0
	}

	totalSaved := 0
	for _, seg := range candidates {
		idx := c.IndexOf(seg.ID)
		if idx < 0 {
			continue
		}
		before := c.Segments[idx].CurrentTokens
		updated := cp.compressSegment(ctx, c.Segments[idx])
		c.ReplaceAt(idx, updated)
		saved := before - updated.CurrentTokens
		totalSaved += saved
		if totalSaved >= tokensToFree {
			break
		}
	}
	return totalSaved
}

func (cp *Compressor) compressSegment(ctx context.Context, seg Segment) Segment {
	ratio := configFor(seg.Role).summaryTargetRatio
	prompt := compressionPrompt(seg.Role, seg.Content, ratio)

	summary, err := cp.llm.Complete(ctx, cp.model, []llmclient.Message{
		{Role: "user", Content: prompt},
	}, 0.2, estimateCompressedTokens(seg.OriginalTokens, ratio)*2)
	if err != nil || summary == "" {
		log.Warn().Err(err).Str("segment_id", seg.ID).Msg("longconvo: segment compression failed, keeping raw")
		return seg
	}

	seg.Summary = summary
	seg.CurrentTokens = tokencount.Estimate(summary)
	seg.State = StateSummarized
	return seg
}

func estimateCompressedTokens(originalTokens int, ratio float64) int {
	n := int(float64(originalTokens) * ratio)
	if n < 16 {
		n = 16
	}
	return n
}
