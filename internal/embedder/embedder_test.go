package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder_BearerAuthorization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		resp := embedResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	e := New(cfg)
	out, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{0.1, 0.2}, out[0])
}

func TestHTTPEmbedder_MismatchedCountErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1}}}}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	e := New(cfg)
	_, err := e.EmbedBatch(context.Background(), []string{"x", "y"})
	assert.Error(t, err)
}

func TestDeterministicEmbedder_IsStableAndNormalized(t *testing.T) {
	e := NewDeterministic(32, true, 7)
	out1, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	out2, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, out1, out2, "deterministic embedder must be stable across calls")

	var sum float64
	for _, x := range out1[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-4, "normalized vector should have unit L2 norm")
}

func TestDeterministicEmbedder_EmptyStringIsZeroVector(t *testing.T) {
	e := NewDeterministic(16, false, 0)
	out, err := e.EmbedBatch(context.Background(), []string{""})
	require.NoError(t, err)
	for _, x := range out[0] {
		assert.Zero(t, x)
	}
}
