// Package retrieve implements the Retrieval Engine: candidate fetch,
// cross-encoder rerank, score blending (recency/salience/tag overlap), and
// MMR diversification, shared by document and memory retrieval.
package retrieve

import (
	"context"
	"fmt"
	"time"

	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/proxyerrors"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

// GlobalScope is the reserved conversation_id that memory entries visible
// to every conversation are stored under.
const GlobalScope = "global"

// Candidate is one item pulled from the vector store before reranking.
type Candidate struct {
	ID       string
	Content  string
	Distance float64 // lower is closer; populated from 1-cosine-similarity
	Metadata map[string]any
}

// Result is a ranked, MMR-selected candidate plus its final blended score.
type Result struct {
	Candidate
	Score float64
}

// Params controls a single retrieval call.
type Params struct {
	Query         string
	TopK          int
	Where         vectorstore.Where
	IncludeGlobal bool   // fetch an additional pass scoped to GlobalScope
	ScopeField    string // metadata field the global scope check applies to, e.g. "conversation_id"
	ScopeValue    string
}

// Config holds the tunables named in spec §4.F / §6.
type Config struct {
	MMRLambda      float64
	TagBoost       float64
	ScoreThreshold float64
}

// Engine runs retrieval against one vector store collection.
type Engine struct {
	store      vectorstore.Store
	embed      embedder.Embedder
	reranker   Reranker
	collection string
	cfg        Config
}

// New constructs an Engine over collection, querying embed for query
// vectors and reranker (NoopReranker if nil) for relevance scoring.
func New(store vectorstore.Store, embed embedder.Embedder, reranker Reranker, collection string, cfg Config) *Engine {
	if reranker == nil {
		reranker = NoopReranker{}
	}
	if cfg.MMRLambda <= 0 {
		cfg.MMRLambda = 0.7
	}
	if cfg.TagBoost <= 0 {
		cfg.TagBoost = 0.1
	}
	return &Engine{store: store, embed: embed, reranker: reranker, collection: collection, cfg: cfg}
}

// Retrieve runs the full pipeline: fetch 3x candidates (plus a global-scope
// pass), rerank, score-blend, MMR-select down to TopK. TopK == 0 disables
// retrieval and returns (nil, nil) untouched, per spec §4.F.
func (e *Engine) Retrieve(ctx context.Context, p Params) ([]Result, error) {
	if p.TopK == 0 {
		return nil, nil
	}
	vectors, err := e.embed.EmbedBatch(ctx, []string{p.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVector := vectors[0]

	fetchN := p.TopK * 3
	candidates, err := e.fetchCandidates(ctx, queryVector, fetchN, p.Where)
	if err != nil {
		return nil, err
	}

	if p.IncludeGlobal && p.ScopeField != "" && p.ScopeValue != GlobalScope {
		globalWhere := mergeWhere(p.Where, vectorstore.Where{p.ScopeField: GlobalScope})
		globalCandidates, err := e.fetchCandidates(ctx, queryVector, fetchN, globalWhere)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, globalCandidates...)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	scores, rerankErr := e.rerankScores(ctx, p.Query, candidates)
	blended := make([]float64, len(candidates))
	for i, c := range candidates {
		var relevance float64
		if rerankErr == nil && scores != nil {
			relevance = scores[i]
		}
		blended[i] = blendScore(relevance, c, p.Query, e.cfg.TagBoost, rerankErr != nil || scores == nil)
	}

	selected := mmrSelect(candidates, blended, p.TopK, e.cfg.MMRLambda)

	results := make([]Result, 0, len(selected))
	for _, sel := range selected {
		if sel.score < e.cfg.ScoreThreshold {
			continue
		}
		results = append(results, Result{Candidate: sel.candidate, Score: sel.score})
	}
	return results, nil
}

func (e *Engine) fetchCandidates(ctx context.Context, vector []float32, n int, where vectorstore.Where) ([]Candidate, error) {
	hits, err := e.store.Query(ctx, e.collection, vector, n, where)
	if err != nil {
		return nil, &proxyerrors.StoreError{Op: "retrieve query", Err: err}
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		content, _ := h.Metadata["content"].(string)
		out[i] = Candidate{ID: h.ID, Content: content, Distance: 1 - h.Score, Metadata: h.Metadata}
	}
	return out, nil
}

func (e *Engine) rerankScores(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	pairs := make([]Pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = Pair{Query: query, Doc: c.Content}
	}
	scores, err := e.reranker.Score(ctx, pairs)
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func mergeWhere(base vectorstore.Where, extra vectorstore.Where) vectorstore.Where {
	out := make(vectorstore.Where, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func metaCreatedAt(meta map[string]any) (time.Time, bool) {
	raw, ok := meta["created_at"]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func metaSalience(meta map[string]any) float64 {
	raw, ok := meta["salience"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return 0
	}
}

func metaTags(meta map[string]any) []string {
	raw, ok := meta["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}
