// Package tokencount provides the pluggable token counting used to size
// chunks, memory entries, and context budgets across the gateway. Accurate
// counting is optional; every path degrades to a char/4 heuristic rather
// than failing the caller.
package tokencount

import (
	"context"

	"github.com/manifold-ai/retromem/internal/proxyerrors"
)

// Counter counts tokens for a specific model's tokenizer.
type Counter interface {
	// Count returns the token count for text. Implementations that cannot
	// tokenize accurately should return a proxyerrors.TokenizerError rather
	// than a plain error; Estimate is used as the fallback in that case.
	Count(ctx context.Context, model, text string) (int, error)
}

// Estimate is the char/4 heuristic fallback: 0 for empty text, otherwise
// max(1, ceil(runes/4)).
func Estimate(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	tokens := (n + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// CachedCounter wraps a Counter with a per-(model,text) cache and falls
// back to Estimate whenever the wrapped Counter errors.
type CachedCounter struct {
	inner Counter
	cache *Cache
}

// NewCachedCounter wraps inner with a cache sized cacheSize.
func NewCachedCounter(inner Counter, cacheSize int) *CachedCounter {
	return &CachedCounter{inner: inner, cache: NewCache(cacheSize)}
}

// Count returns inner's token count for (model, text), falling back to the
// char/4 estimate on any tokenizer error. The result is cached either way.
func (c *CachedCounter) Count(ctx context.Context, model, text string) int {
	key := model + "\x00" + text
	if n, ok := c.cache.Get(key); ok {
		return n
	}
	n, err := c.count(ctx, model, text)
	c.cache.Set(key, n)
	_ = err // tokenizer errors are non-fatal; Estimate already substituted
	return n
}

func (c *CachedCounter) count(ctx context.Context, model, text string) (int, error) {
	if c.inner == nil {
		return Estimate(text), nil
	}
	n, err := c.inner.Count(ctx, model, text)
	if err != nil {
		return Estimate(text), &proxyerrors.TokenizerError{Model: model, Err: err}
	}
	return n, nil
}
