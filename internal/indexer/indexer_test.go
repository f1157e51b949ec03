package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(t *testing.T) (*Indexer, string, vectorstore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "indexer-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store := vectorstore.NewMemory()
	embed := embedder.NewDeterministic(16, true, 1)
	idx := New(dir, 64, 8, store, embed)
	return idx, dir, store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReconcile_IndexesNewFiles(t *testing.T) {
	idx, dir, store := newTestIndexer(t)
	writeFile(t, dir, "doc.txt", "hello world, this is a test document about bikes.")

	ctx := context.Background()
	require.NoError(t, idx.LoadCatalog(ctx))
	require.NoError(t, idx.Reconcile(ctx))

	cat := idx.Catalog()
	require.Len(t, cat, 1)
	assert.Equal(t, "doc.txt", cat[0].RelativePath)

	records, err := store.Get(ctx, docsCollection, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestReconcile_SkipsUnchangedFiles(t *testing.T) {
	idx, dir, store := newTestIndexer(t)
	writeFile(t, dir, "doc.txt", "same content every time")

	ctx := context.Background()
	require.NoError(t, idx.Reconcile(ctx))
	first, _ := store.Get(ctx, docsCollection, nil)

	require.NoError(t, idx.Reconcile(ctx))
	second, _ := store.Get(ctx, docsCollection, nil)

	assert.Equal(t, len(first), len(second), "reindexing unchanged content should not duplicate chunks")
}

func TestReconcile_ReindexesChangedFiles(t *testing.T) {
	idx, dir, store := newTestIndexer(t)
	path := writeFile(t, dir, "doc.txt", "version one of the document")

	ctx := context.Background()
	require.NoError(t, idx.Reconcile(ctx))

	require.NoError(t, os.WriteFile(path, []byte("a completely different version two body"), 0o644))
	require.NoError(t, idx.Reconcile(ctx))

	records, err := store.Get(ctx, docsCollection, nil)
	require.NoError(t, err)
	for _, r := range records {
		content, _ := r.Metadata["content"].(string)
		assert.NotContains(t, content, "version one")
	}
}

func TestReconcile_RemovesStaleCatalogEntries(t *testing.T) {
	idx, dir, store := newTestIndexer(t)
	path := writeFile(t, dir, "doc.txt", "will be deleted from disk")

	ctx := context.Background()
	require.NoError(t, idx.Reconcile(ctx))
	require.NotEmpty(t, idx.Catalog())

	require.NoError(t, os.Remove(path))
	require.NoError(t, idx.Reconcile(ctx))

	assert.Empty(t, idx.Catalog())
	records, err := store.Get(ctx, docsCollection, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReconcile_SkipsHiddenFiles(t *testing.T) {
	idx, dir, _ := newTestIndexer(t)
	writeFile(t, dir, ".hidden", "should be ignored")
	writeFile(t, dir, "backup~", "should also be ignored")

	ctx := context.Background()
	require.NoError(t, idx.Reconcile(ctx))
	assert.Empty(t, idx.Catalog())
}

func TestHandleEvent_DebouncesRapidWrites(t *testing.T) {
	idx, dir, _ := newTestIndexer(t)
	path := writeFile(t, dir, "doc.txt", "initial")

	idx.inFlightMu.Lock()
	idx.inFlight[path] = true
	idx.inFlightMu.Unlock()

	// A write for a path already in flight is dropped: nothing is scheduled,
	// so Wait returns at once and the file is never indexed.
	idx.handleEvent(context.Background(), fsnotify.Event{Name: path, Op: fsnotify.Write})
	idx.wg.Wait()

	idx.inFlightMu.Lock()
	alreadyInFlight := idx.inFlight[path]
	idx.inFlightMu.Unlock()
	assert.True(t, alreadyInFlight)
	assert.Empty(t, idx.Catalog())
}
