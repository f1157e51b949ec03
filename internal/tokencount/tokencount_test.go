package tokencount

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"hello", 2},
		{"hello world", 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Estimate(tc.input), "Estimate(%q)", tc.input)
	}
}

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) Count(ctx context.Context, model, text string) (int, error) {
	return f.n, f.err
}

func TestCachedCounter_UsesInnerWhenHealthy(t *testing.T) {
	cc := NewCachedCounter(fakeCounter{n: 17}, 10)
	got := cc.Count(context.Background(), "gpt-4o-mini", "some text")
	assert.Equal(t, 17, got)
}

func TestCachedCounter_FallsBackToEstimateOnError(t *testing.T) {
	cc := NewCachedCounter(fakeCounter{err: errors.New("boom")}, 10)
	got := cc.Count(context.Background(), "gpt-4o-mini", "hello world")
	assert.Equal(t, Estimate("hello world"), got)
}

func TestCachedCounter_CachesResult(t *testing.T) {
	calls := 0
	counter := countingCounter{calls: &calls, n: 5}
	cc := NewCachedCounter(counter, 10)

	first := cc.Count(context.Background(), "m", "text")
	second := cc.Count(context.Background(), "m", "text")
	require.Equal(t, first, second)
	assert.Equal(t, 1, calls, "expected the wrapped counter to run once and the second call to hit cache")
}

type countingCounter struct {
	calls *int
	n     int
}

func (c countingCounter) Count(ctx context.Context, model, text string) (int, error) {
	*c.calls++
	return c.n, nil
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK, "recently accessed entry should survive eviction")
	assert.False(t, bOK, "least recently used entry should be evicted")
	assert.True(t, cOK)
}
