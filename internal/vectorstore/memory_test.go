package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 3))

	require.NoError(t, s.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"source": "x"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"source": "y"}},
	}))

	results, err := s.Query(ctx, "docs", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID, "closest vector should rank first")

	require.NoError(t, s.Delete(ctx, "docs", []string{"a"}))
	results, err = s.Query(ctx, "docs", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestMemoryStore_QueryRespectsWhere(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Upsert(ctx, "mem", []Record{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"conversation_id": "c1"}},
		{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]any{"conversation_id": "c2"}},
	}))

	results, err := s.Query(ctx, "mem", []float32{1, 0}, 10, Where{"conversation_id": "c1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStore_Get(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Upsert(ctx, "mem", []Record{
		{ID: "a", Vector: []float32{1}, Metadata: map[string]any{"status": "active"}},
		{ID: "b", Vector: []float32{1}, Metadata: map[string]any{"status": "deleted"}},
	}))

	records, err := s.Get(ctx, "mem", Where{"status": Where{"$ne": "deleted"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}
