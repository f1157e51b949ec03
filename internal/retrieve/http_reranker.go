package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRerankerConfig points at an external cross-encoder rerank service.
// The teacher's own inference stack has no such service in go.mod; this
// mirrors the embedder's HTTP client shape (spec §4.F calls for the
// reranker to be swappable, not embedded).
type HTTPRerankerConfig struct {
	BaseURL string
	Path    string // default "/rerank"
	APIKey  string
	Timeout time.Duration
}

type httpReranker struct {
	cfg HTTPRerankerConfig
}

// NewHTTPReranker builds a Reranker backed by an HTTP cross-encoder
// endpoint that accepts {"pairs": [["query","doc"], ...]} and returns
// {"scores": [...]}.
func NewHTTPReranker(cfg HTTPRerankerConfig) Reranker {
	if cfg.Path == "" {
		cfg.Path = "/rerank"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &httpReranker{cfg: cfg}
}

type rerankRequest struct {
	Pairs [][2]string `json:"pairs"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (h *httpReranker) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	reqPairs := make([][2]string, len(pairs))
	for i, p := range pairs {
		reqPairs[i] = [2]string{p.Query, p.Doc}
	}
	body, err := json.Marshal(rerankRequest{Pairs: reqPairs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+h.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank service returned status %d", resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(out.Scores) != len(pairs) {
		return nil, fmt.Errorf("rerank service returned %d scores for %d pairs", len(out.Scores), len(pairs))
	}
	return out.Scores, nil
}
