package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/entrystore"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLLMServer(t *testing.T, content string) *llmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "object": "chat.completion", "created": 1, "model": "m",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return llmclient.New(srv.URL, "test-key")
}

func newTestReconciler(t *testing.T, llmContent string) (*Reconciler, vectorstore.Store, *entrystore.Store) {
	t.Helper()
	store := vectorstore.NewMemory()
	embed := embedder.NewDeterministic(16, true, 1)
	require.NoError(t, store.EnsureCollection(context.Background(), "memory", embed.Dimension()))

	dir, err := os.MkdirTemp("", "reconciler-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	entries := entrystore.New(dir)

	llm := fakeLLMServer(t, llmContent)
	cfg := config.MemoryConfig{
		EnableSummarization: true,
		MaxEntries:          500,
		ShortSummaryTokens:  256,
		LongSummaryTokens:   512,
		Model:               "test-model",
	}
	return New(store, "memory", embed, entries, llm, cfg), store, entries
}

func TestProcessDecisions_AddUpdateDeleteNone(t *testing.T) {
	idMap := map[int]Fact{0: {ID: "orig-0", FactKey: "key-0"}, 1: {ID: "orig-1", FactKey: "key-1"}}
	now := time.Now()
	id1 := 0
	id2 := 1
	decisions := []Decision{
		{Event: "ADD", Text: "user likes tea"},
		{Event: "UPDATE", ID: &id1, Text: "user loves oolong tea"},
		{Event: "DELETE", ID: &id2},
		{Event: "NONE"},
	}

	toAdd, toDelete, replacementMap := processDecisions(decisions, idMap, "conv-1", "src-1", now)

	require.Len(t, toAdd, 2)
	assert.Equal(t, "user likes tea", toAdd[0].Content)
	assert.Equal(t, "user loves oolong tea", toAdd[1].Content)

	assert.ElementsMatch(t, []string{"orig-0", "orig-1"}, toDelete)
	assert.Equal(t, toAdd[1].ID, replacementMap["orig-0"])
	assert.Equal(t, "key-0", toAdd[1].FactKey, "an UPDATE must carry the replaced fact's FactKey forward")
	assert.NotEmpty(t, toAdd[0].FactKey, "a fresh ADD still gets its own FactKey")
}

func TestReconcileFacts_NoExistingAddsAllAsFresh(t *testing.T) {
	r, _, _ := newTestReconciler(t, `[]`)
	ctx := context.Background()

	toAdd, toDelete, replacementMap, err := r.ReconcileFacts(ctx, "conv-new", []string{"the user's cat is named Milo"}, "src-1", time.Now())
	require.NoError(t, err)
	assert.Empty(t, toDelete)
	assert.Empty(t, replacementMap)
	require.Len(t, toAdd, 1)
	assert.Equal(t, "the user's cat is named Milo", toAdd[0].Content)
}

func TestReconcileFacts_SafeguardRetainsFactsWhenNoKeepAction(t *testing.T) {
	r, store, entries := newTestReconciler(t, `[{"event":"DELETE","id":0}]`)
	ctx := context.Background()

	vecs, err := r.embed.EmbedBatch(ctx, []string{"an existing unrelated fact"})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "memory", []vectorstore.Record{{
		ID:     "existing-1",
		Vector: vecs[0],
		Metadata: map[string]any{
			"conversation_id": "conv-safeguard",
			"role":            "memory",
			"content":         "an existing unrelated fact",
		},
	}}))
	_, err = entries.WriteWithID("existing-1", entrystore.Metadata{
		ConversationID: "conv-safeguard",
		Role:           "memory",
		CreatedAt:      time.Now(),
	}, "an existing unrelated fact")
	require.NoError(t, err)

	toAdd, toDelete, replacementMap, err := r.ReconcileFacts(ctx, "conv-safeguard", []string{"the user got a new job"}, "src-2", time.Now())
	require.NoError(t, err)
	assert.Empty(t, toDelete, "safeguard should suppress the bare DELETE since it has no keep action")
	assert.Empty(t, replacementMap)
	require.Len(t, toAdd, 1)
	assert.Equal(t, "the user got a new job", toAdd[0].Content)
}

func TestPersistAndDeleteFacts_RoundTrip(t *testing.T) {
	r, store, entries := newTestReconciler(t, `[]`)
	ctx := context.Background()

	fact := Fact{ID: "fact-1", ConversationID: "conv-x", Content: "user prefers mornings", SourceID: "src", CreatedAt: time.Now().UTC()}
	require.NoError(t, r.PersistFacts(ctx, []Fact{fact}))

	entry, ok, err := entries.Get("fact-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user prefers mornings", entry.Content)

	records, err := store.Get(ctx, "memory", vectorstore.Where{"conversation_id": "conv-x"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, r.DeleteFacts(ctx, []string{"fact-1"}, nil))
	_, ok, err = entries.Get("fact-1")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err = store.Get(ctx, "memory", vectorstore.Where{"conversation_id": "conv-x"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvictIfNeeded_RemovesOldestFactsFirst(t *testing.T) {
	r, _, _ := newTestReconciler(t, `[]`)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		f := Fact{ID: "f" + string(rune('a'+i)), ConversationID: "conv-evict", Content: "fact", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, r.PersistFacts(ctx, []Fact{f}))
	}

	require.NoError(t, r.EvictIfNeeded(ctx, "conv-evict", 2))

	entries, err := r.entries.List("conv-evict", "memory")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEqual(t, "fa", e.ID[:2])
	}
}

func TestUpdateSummary_NoNewFactsReturnsPriorUnchanged(t *testing.T) {
	r, _, _ := newTestReconciler(t, `{"summary":"should not be called"}`)
	out, err := r.UpdateSummary(context.Background(), "prior summary text", nil, 256)
	require.NoError(t, err)
	assert.Equal(t, "prior summary text", out)
}

func TestTruncateToTokenBudget_TrimsOnWhitespace(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	out := truncateToTokenBudget(long, 10)
	assert.LessOrEqual(t, len(out), 40+1)
}
