package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticIndex_AddSearch(t *testing.T) {
	idx := NewSemanticIndex()

	require.NoError(t, idx.Add("static", "doc-a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("static", "doc-b", []float32{0, 1, 0}))
	require.NoError(t, idx.Add("static", "doc-c", []float32{0.9, 0.1, 0}))

	hits, err := idx.Search("static", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-a", hits[0].DocID)
	assert.Equal(t, "doc-c", hits[1].DocID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSemanticIndex_BackendsNeverMix(t *testing.T) {
	idx := NewSemanticIndex()
	require.NoError(t, idx.Add("static", "doc-a", []float32{1, 0}))
	require.NoError(t, idx.Add("ollama:nomic", "doc-b", []float32{0, 1, 0, 0}))

	hits, err := idx.Search("static", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-a", hits[0].DocID)

	assert.Equal(t, 1, idx.Count("static"))
	assert.Equal(t, 1, idx.Count("ollama:nomic"))
	assert.ElementsMatch(t, []string{"static", "ollama:nomic"}, idx.Backends())
}

func TestSemanticIndex_DimensionMismatch(t *testing.T) {
	idx := NewSemanticIndex()
	require.NoError(t, idx.Add("static", "doc-a", []float32{1, 0, 0}))

	err := idx.Add("static", "doc-b", []float32{1, 0})
	require.Error(t, err)

	_, err = idx.Search("static", []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestSemanticIndex_UnknownBackendIsEmpty(t *testing.T) {
	idx := NewSemanticIndex()
	hits, err := idx.Search("nope", []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSemanticIndex_ReplaceAndDelete(t *testing.T) {
	idx := NewSemanticIndex()
	require.NoError(t, idx.Add("static", "doc-a", []float32{1, 0}))
	require.NoError(t, idx.Add("static", "doc-b", []float32{0, 1}))

	// Replacing moves doc-a away from the query vector
	require.NoError(t, idx.Add("static", "doc-a", []float32{0, 1}))

	hits, err := idx.Search("static", []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.InDelta(t, 1.0, h.Score, 1e-6)
	}

	idx.Delete("doc-a")
	assert.False(t, idx.Contains("static", "doc-a"))
	assert.Equal(t, 1, idx.Count("static"))

	hits, err = idx.Search("static", []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].DocID)
}
