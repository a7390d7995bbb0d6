package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

func TestCachedEmbedding_EmbedQuery(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	cached := NewCachedEmbedding(inner, 0)
	ctx := context.Background()

	first, err := cached.EmbedQuery(ctx, "what changed in v2?")
	require.NoError(t, err)
	second, err := cached.EmbedQuery(ctx, "what changed in v2?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.Calls())
	assert.Equal(t, 1, cached.Len())

	_, err = cached.EmbedQuery(ctx, "another question")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls())
}

func TestCachedEmbedding_ErrorsNotCached(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	inner.FailNext(1)
	cached := NewCachedEmbedding(inner, 0)

	_, err := cached.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, 0, cached.Len())

	_, err = cached.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedding_BatchesPassThrough(t *testing.T) {
	inner := mocks.NewMockEmbeddingService()
	cached := NewCachedEmbedding(inner, 0)

	_, err := cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 2, inner.Calls())
	assert.Equal(t, 0, cached.Len())
	assert.Equal(t, inner.Dimensions(), cached.Dimensions())
	assert.NoError(t, cached.Close())
}
