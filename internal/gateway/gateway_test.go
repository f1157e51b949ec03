package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/forwarder"
	"github.com/manifold-ai/retromem/internal/retrieve"
	"github.com/manifold-ai/retromem/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs(t *testing.T, ctx context.Context, store vectorstore.Store, embed embedder.Embedder, collection, id, content string) {
	t.Helper()
	require.NoError(t, store.EnsureCollection(ctx, collection, embed.Dimension()))
	vecs, err := embed.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, collection, []vectorstore.Record{{
		ID:     id,
		Vector: vecs[0],
		Metadata: map[string]any{
			"content":   content,
			"source":    "manual.md",
			"file_path": "docs/manual.md",
			"chunk_id":  float64(0),
		},
	}}))
}

func newTestServer(t *testing.T, upstream *httptest.Server) (*Server, *retrieve.Engine, *retrieve.Engine) {
	t.Helper()
	t.Cleanup(upstream.Close)

	ctx := context.Background()
	embed := embedder.NewDeterministic(16, true, 1)
	docsStore := vectorstore.NewMemory()
	memStore := vectorstore.NewMemory()

	docs := retrieve.New(docsStore, embed, nil, "docs", retrieve.Config{})
	memory := retrieve.New(memStore, embed, nil, "memory", retrieve.Config{})
	seedDocs(t, ctx, docsStore, embed, "docs", "chunk-1", "the gateway speaks openai's chat completions format")

	cfg := config.Config{
		Retrieval: config.RetrievalConfig{DefaultTopK: 3, EnableGlobal: false},
	}
	fwd := forwarder.New(config.UpstreamConfig{BaseURL: upstream.URL, APIKey: "test-key"})

	srv, err := New(cfg, fwd, docs, memory, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	return srv, docs, memory
}

func TestHandleChatCompletions_AttachesRagSourcesOnNonStreamingResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "hi there"}}},
		})
	}))
	s, _, _ := newTestServer(t, upstream)

	body, _ := json.Marshal(map[string]any{
		"model":    "gpt-4o-mini",
		"messages": []any{map[string]string{"role": "user", "content": "what format does this speak?"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Contains(t, payload, "rag_sources")
	sources, ok := payload["rag_sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
}

func TestHandleChatCompletions_RagTopKZeroSkipsRetrieval(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-2", "choices": []any{}})
	}))
	s, _, _ := newTestServer(t, upstream)

	body, _ := json.Marshal(map[string]any{
		"model":     "gpt-4o-mini",
		"messages":  []any{map[string]string{"role": "user", "content": "what format does this speak?"}},
		"rag_top_k": 0,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.NotContains(t, payload, "rag_sources")

	msgs, _ := gotBody["messages"].([]any)
	require.Len(t, msgs, 1, "no system block should have been injected")
}

func TestHandleChatCompletions_UpstreamErrorPropagatesStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	s, _, _ := newTestServer(t, upstream)

	body, _ := json.Marshal(map[string]any{
		"model":    "gpt-4o-mini",
		"messages": []any{map[string]string{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandleChatCompletions_StreamRelaysUpstreamFramesVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		fl.Flush()
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		fl.Flush()
	}))
	s, _, _ := newTestServer(t, upstream)

	body, _ := json.Marshal(map[string]any{
		"model":    "gpt-4o-mini",
		"messages": []any{map[string]string{"role": "user", "content": "hi"}},
		"stream":   true,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data: {\"choices\"")
	assert.Contains(t, w.Body.String(), "[DONE]")
}

func TestHandleHealth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s, _, _ := newTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestHandleReindex_WithoutIndexerReturnsServiceUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s, _, _ := newTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/reindex", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerShutdown_WaitsForBackgroundTasksUpToTimeout(t *testing.T) {
	s := &Server{tasks: newBackgroundTasks()}
	started := make(chan struct{})
	s.tasks.Go(func() {
		close(started)
		time.Sleep(10 * time.Millisecond)
	})
	<-started
	s.Shutdown(time.Second)
}
