package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

func TestSupportsIterativeScan(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"0.8.0", true},
		{"0.8.1", true},
		{"0.10.0", true},
		{"1.0", true},
		{"0.7.4", false},
		{"0.5.1", false},
		{"", false},
		{"dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, supportsIterativeScan(tt.version))
		})
	}
}

func TestEfSearch(t *testing.T) {
	assert.Equal(t, minEfSearch, efSearch(1))
	assert.Equal(t, 80, efSearch(20))
	assert.Equal(t, maxEfSearch, efSearch(5000))
}

func TestSortScored(t *testing.T) {
	hit := func(id string, index int, score float64) *domain.ScoredChunk {
		return &domain.ScoredChunk{Chunk: &domain.Chunk{ID: id, Index: index}, Score: score}
	}
	hits := []*domain.ScoredChunk{
		hit("c", 2, 0.5),
		hit("b", 1, 0.9),
		hit("e", 0, 0.5),
		hit("a", 0, 0.5),
	}

	sortScored(hits)

	var ids []string
	for _, h := range hits {
		ids = append(ids, h.Chunk.ID)
	}
	assert.Equal(t, []string{"b", "a", "e", "c"}, ids)
}
