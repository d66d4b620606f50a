package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes an Embedder by text. Re-embedding a day note after an
// append only pays for the chunks whose text changed.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding up to size vectors.
func NewCached(inner Embedder, size int) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, "doc:", text, c.inner.Embed)
}

// Identity implements Identifier. The cache does not change the vector
// space of the wrapped embedder.
func (c *Cached) Identity() string {
	return Identity(c.inner)
}

// EmbedQuery implements QueryEmbedder.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, "query:", text, func(ctx context.Context, text string) ([]float32, error) {
		return EmbedQuery(ctx, c.inner, text)
	})
}

func (c *Cached) lookup(ctx context.Context, kind, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	key := cacheKey(kind, text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}
	vec, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if !c.cache.Set(key, append([]float32(nil), vec...), 1) {
		embedLog.Debugf("embedding cache rejected entry")
	}
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

func cacheKey(kind, text string) string {
	sum := sha256.Sum256([]byte(text))
	return kind + hex.EncodeToString(sum[:])
}
