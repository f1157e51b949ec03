package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/ragcache"
	"github.com/manifold-ai/retromem/internal/retrieve"
	"github.com/manifold-ai/retromem/internal/summarize"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

// ragSource mirrors the {source, path, chunk_id, score} shape spec §6
// requires on the response's rag_sources field.
type ragSource struct {
	Source  string  `json:"source"`
	Path    string  `json:"path"`
	ChunkID any     `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// memoryHit mirrors the {role, content, created_at, score} shape spec §6
// requires on the response's memory_hits field.
type memoryHit struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	CreatedAt string  `json:"created_at"`
	Score     float64 `json:"score"`
}

// augmentation carries everything retrieval contributed to one request, so
// the caller can both inject context blocks into the forwarded body and
// attach the same data to the non-streaming response.
type augmentation struct {
	ragSources []ragSource
	memoryHits []memoryHit
}

// docsCacheEntry is the JSON shape cached for one rag retrieval call.
type docsCacheEntry struct {
	Block   string      `json:"block"`
	Sources []ragSource `json:"sources"`
}

// retrieveDocs runs document retrieval and renders the result as both a
// system-block string and a rag_sources list.
func (s *Server) retrieveDocs(ctx context.Context, query string, topK int) (string, []ragSource) {
	if s.docs == nil || topK == 0 {
		return "", nil
	}

	key := ragcache.Key("docs", query, strconv.Itoa(topK))
	var cached docsCacheEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached.Block, cached.Sources
	}

	results, err := s.docs.Retrieve(ctx, retrieve.Params{Query: query, TopK: topK})
	if err != nil || len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant documentation:\n")
	sources := make([]ragSource, 0, len(results))
	for _, r := range results {
		source, _ := r.Metadata["source"].(string)
		path, _ := r.Metadata["file_path"].(string)
		fmt.Fprintf(&b, "- %s\n", r.Content)
		sources = append(sources, ragSource{
			Source:  source,
			Path:    path,
			ChunkID: r.Metadata["chunk_id"],
			Score:   r.Score,
		})
	}
	block := s.compact(ctx, b.String(), summarize.ContentDocument)
	s.cache.Set(ctx, key, docsCacheEntry{Block: block, Sources: sources})
	return block, sources
}

// compact runs a context block through the Adaptive Summarizer before it's
// spent on prompt budget. Short blocks pass through unchanged at LevelNone
// (no LLM call); this only does real work once retrieval pulls back enough
// chunks to matter.
func (s *Server) compact(ctx context.Context, block string, ct summarize.ContentType) string {
	if s.summarizer == nil || block == "" {
		return block
	}
	result, err := s.summarizer.Summarize(ctx, block, ct)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("gateway: context block summarization failed, using raw block")
		return block
	}
	return result.Summary
}

// retrieveMemory runs memory retrieval plus the rolling short/long
// summaries for conversationID, rendering everything as one system block
// (summaries are kept as their own labelled sections per spec §4.F step 5,
// not mixed into the fact entries) plus a memory_hits list.
func (s *Server) retrieveMemory(ctx context.Context, conversationID, query string, topK int) (string, []memoryHit) {
	if s.memory == nil || topK == 0 || conversationID == "" {
		return "", nil
	}

	key := ragcache.Key("memory", conversationID, query, strconv.Itoa(topK))
	var cached memoryCacheEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached.Block, cached.Hits
	}

	results, err := s.memory.Retrieve(ctx, retrieve.Params{
		Query:         query,
		TopK:          topK,
		Where:         vectorstore.Where{"conversation_id": conversationID},
		IncludeGlobal: s.cfg.Retrieval.EnableGlobal,
		ScopeField:    "conversation_id",
		ScopeValue:    conversationID,
	})
	if err != nil {
		results = nil
	}

	var b strings.Builder
	hits := make([]memoryHit, 0, len(results))
	if len(results) > 0 {
		b.WriteString("Relevant memory:\n")
		for _, r := range results {
			role, _ := r.Metadata["role"].(string)
			createdAt, _ := r.Metadata["created_at"].(string)
			fmt.Fprintf(&b, "- %s\n", r.Content)
			hits = append(hits, memoryHit{Role: role, Content: r.Content, CreatedAt: createdAt, Score: r.Score})
		}
	}

	if s.recon != nil {
		if short, ok, _ := s.recon.ShortSummary(conversationID); ok && short != "" {
			b.WriteString("Conversation summary (short-term):\n")
			b.WriteString(short)
			b.WriteString("\n")
		}
		if long, ok, _ := s.recon.LongSummary(conversationID); ok && long != "" {
			b.WriteString("Conversation summary (long-term):\n")
			b.WriteString(long)
			b.WriteString("\n")
		}
	}
	block := s.compact(ctx, b.String(), summarize.ContentConversation)
	s.cache.Set(ctx, key, memoryCacheEntry{Block: block, Hits: hits})
	return block, hits
}

// memoryCacheEntry is the JSON shape cached for one memory retrieval call.
type memoryCacheEntry struct {
	Block string      `json:"block"`
	Hits  []memoryHit `json:"hits"`
}
