package entrystore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "entrystore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return New(dir)
}

func TestStore_WriteAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	meta := Metadata{ConversationID: "conv-1", Role: "memory", CreatedAt: time.Now(), Tags: []string{"bike", "name"}}

	entry, err := s.Write(meta, "fact about bikes")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)

	got, ok, err := s.Get(entry.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fact about bikes", got.Content)
	assert.Equal(t, "conv-1", got.Metadata.ConversationID)
	assert.Equal(t, []string{"bike", "name"}, got.Metadata.Tags)
}

func TestStore_ListFiltersByConversationAndRole(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	_, err := s.Write(Metadata{ConversationID: "c1", Role: "user", CreatedAt: now}, "hi")
	require.NoError(t, err)
	_, err = s.Write(Metadata{ConversationID: "c1", Role: "memory", CreatedAt: now}, "fact")
	require.NoError(t, err)
	_, err = s.Write(Metadata{ConversationID: "c2", Role: "user", CreatedAt: now}, "other convo")
	require.NoError(t, err)

	got, err := s.List("c1", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List("c1", "memory")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fact", got[0].Content)
}

func TestStore_SoftDeleteMovesToTombstoneAndRemovesFromSnapshot(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Write(Metadata{ConversationID: "c1", Role: "memory", CreatedAt: time.Now()}, "old fact")
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(entry.ID, "new-id-123"))

	_, ok, err := s.Get(entry.ID)
	require.NoError(t, err)
	assert.False(t, ok, "soft-deleted entry must not be retrievable via Get")

	got, err := s.List("c1", "")
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestStore_SoftDeleteOfMissingIDIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.SoftDelete("does-not-exist", ""))
}

func TestStore_WriteWithIDIsStable(t *testing.T) {
	s := newTestStore(t)
	meta := Metadata{ConversationID: "c1", Role: "summary_short", CreatedAt: time.Now()}

	first, err := s.WriteWithID("c1::summary-short", meta, "v1")
	require.NoError(t, err)
	assert.Equal(t, "c1::summary-short", first.ID)

	second, err := s.WriteWithID("c1::summary-short", meta, "v2")
	require.NoError(t, err)
	assert.Equal(t, "c1::summary-short", second.ID)

	got, ok, err := s.Get("c1::summary-short")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Content)
}

func TestStore_RebuildSnapshotFromDisk(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Write(Metadata{ConversationID: "c1", Role: "user", CreatedAt: time.Now()}, "hello")
	require.NoError(t, err)

	require.NoError(t, os.Remove(s.snapshotPath()))
	require.NoError(t, s.RebuildSnapshot())

	got, ok, err := s.Get(entry.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}
