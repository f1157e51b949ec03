package longconvo

import (
	"context"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/tokencount"
	"github.com/rs/zerolog/log"
)

// Engine orchestrates long-conversation mode for one gateway: loading or
// creating a conversation's arena, building a token-budgeted context,
// appending the resulting turns, and compressing/deduplicating in the
// background once the usage threshold is crossed.
type Engine struct {
	store      *Store
	compressor *Compressor
	cfg        config.LongConversationConfig
	model      string
}

// New wires an Engine against its persistence store, LLM transport, and
// tunables.
func New(memoryRoot string, llm *llmclient.Client, model string, cfg config.LongConversationConfig) *Engine {
	return &Engine{
		store:      NewStore(memoryRoot),
		compressor: NewCompressor(llm, model),
		cfg:        cfg,
		model:      model,
	}
}

// BuildContextForTurn loads (or creates) the conversation, assembles the
// token-budgeted message list for the upcoming request, and returns it
// along with the loaded conversation so the caller can append the turn
// once the upstream response is known.
func (e *Engine) BuildContextForTurn(conversationID, systemPrompt, newMessage string) (*Conversation, []ContextMessage, error) {
	c, err := e.store.Load(conversationID, e.cfg.TargetContextTokens, e.cfg.RawRecentTokens, e.cfg.CompressThreshold, e.cfg.DedupJaccardThresh)
	if err != nil {
		return nil, nil, err
	}
	messages := BuildContext(c, newMessage, systemPrompt, e.cfg.TargetContextTokens)
	return c, messages, nil
}

// RecordTurn appends the user message and assistant response as new
// segments, applying reference-dedup to each before persisting, then
// compresses in the background if the conversation has crossed its
// threshold. Errors are logged rather than returned: this runs after the
// response has already been sent to the client.
func (e *Engine) RecordTurn(ctx context.Context, c *Conversation, userMessage, assistantContent string) {
	if userMessage != "" {
		e.appendAndDedup(c, RoleUser, userMessage)
	}
	if assistantContent != "" {
		e.appendAndDedup(c, RoleAssistant, assistantContent)
	}

	if err := e.store.SaveMetadata(c); err != nil {
		log.Error().Err(err).Str("conversation_id", c.ID).Msg("longconvo: persist metadata failed")
	}

	if ShouldCompress(c) {
		freed := e.compressor.CompressConversation(ctx, c)
		if freed > 0 {
			for i := range c.Segments {
				if c.Segments[i].State == StateSummarized {
					if err := e.store.SaveCompressed(c, i); err != nil {
						log.Error().Err(err).Str("conversation_id", c.ID).Msg("longconvo: persist compressed segment failed")
					}
				}
			}
			if err := e.store.SaveMetadata(c); err != nil {
				log.Error().Err(err).Str("conversation_id", c.ID).Msg("longconvo: persist metadata after compression failed")
			}
		}
	}
}

func (e *Engine) appendAndDedup(c *Conversation, role Role, content string) {
	seg := c.Append(role, content, tokencount.Estimate)
	idx := c.IndexOf(seg.ID)
	ApplyDedup(c, idx, tokencount.Estimate)
	if err := e.store.SaveSegment(c.ID, c.Segments[idx], idx+1); err != nil {
		log.Error().Err(err).Str("conversation_id", c.ID).Str("segment_id", seg.ID).Msg("longconvo: persist segment failed")
	}
}
