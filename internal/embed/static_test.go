package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	text := "kind: action\ntool: git\noutcome: success"

	a, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_Dimensions(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "resolve merge conflict")
	require.NoError(t, err)

	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.BackendID())
}

func TestStaticEmbedder_NormalizedOutput(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "agents coordinate a handoff")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedder_EmptyInput(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	for _, input := range []string{"", "   ", "\n\t"} {
		vec, err := e.Embed(context.Background(), input)
		require.NoError(t, err)
		assert.Len(t, vec, StaticDimensions)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestStaticEmbedder_SimilarTextsScoreCloser(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	base, err := e.Embed(ctx, "successful git commit on main branch")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "successful git push to main branch")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "database latency anomaly detected")
	require.NoError(t, err)

	assert.Greater(t, dot(base, near), dot(base, far))
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"first record", "second record", "third record"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Batch output matches single-text output
	single, err := e.Embed(context.Background(), texts[1])
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestStaticEmbedder_ClosedRejectsCalls(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"taskRunner", []string{"task", "Runner"}},
		{"task_runner", []string{"task", "runner"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"simple", []string{"simple"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, splitIdentifier(tt.input))
		})
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
