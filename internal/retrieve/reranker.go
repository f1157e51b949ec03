package retrieve

import "context"

// Pair is one (query, candidate document) pair submitted to a Reranker.
type Pair struct {
	Query string
	Doc   string
}

// Reranker scores candidate relevance to a query. Implementations wrap an
// external cross-encoder service; there is no embedded ML runtime here
// (this core does not host models). A Reranker may return (nil, nil) to
// signal "no opinion", which the engine treats as the spec's documented
// fallback to pure distance-based ordering.
type Reranker interface {
	Score(ctx context.Context, pairs []Pair) ([]float64, error)
}

// NoopReranker always abstains, forcing distance-led scoring. It is the
// default when no external rerank service is configured.
type NoopReranker struct{}

func (NoopReranker) Score(_ context.Context, _ []Pair) ([]float64, error) {
	return nil, nil
}
