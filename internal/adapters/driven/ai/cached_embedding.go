package ai

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// DefaultQueryCacheTTL is how long a question's embedding is reused
const DefaultQueryCacheTTL = 10 * time.Minute

var _ driven.EmbeddingService = (*CachedEmbedding)(nil)

// CachedEmbedding memoises EmbedQuery results. Document batches pass through
// uncached since each chunk is embedded once per ingestion.
type CachedEmbedding struct {
	driven.EmbeddingService
	cache *cache.Cache
}

// NewCachedEmbedding wraps inner with a query cache. ttl <= 0 uses DefaultQueryCacheTTL.
func NewCachedEmbedding(inner driven.EmbeddingService, ttl time.Duration) *CachedEmbedding {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &CachedEmbedding{
		EmbeddingService: inner,
		cache:            cache.New(ttl, 2*ttl),
	}
}

// EmbedQuery returns the cached vector for query when present.
func (c *CachedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	key := c.Model() + "\x00" + query
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}

	vec, err := c.EmbeddingService.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, vec)
	return vec, nil
}

// Len returns the number of cached queries.
func (c *CachedEmbedding) Len() int {
	return c.cache.ItemCount()
}

// Close flushes the cache and closes the wrapped service.
func (c *CachedEmbedding) Close() error {
	c.cache.Flush()
	return c.EmbeddingService.Close()
}
