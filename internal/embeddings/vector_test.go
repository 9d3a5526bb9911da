package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbed_Deterministic(t *testing.T) {
	a := LocalEmbed("contract renewal for the new quarter")
	b := LocalEmbed("contract renewal for the new quarter")
	assert.Equal(t, a, b)
	assert.Len(t, a, LocalDim)
}

func TestLocalEmbed_EmptyText(t *testing.T) {
	vec := LocalEmbed("")
	require.Len(t, vec, LocalDim)
	for _, v := range vec {
		assert.Zero(t, v)
	}

	// stopwords and short words only
	vec = LocalEmbed("the is at on a an")
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalEmbed_Normalized(t *testing.T) {
	vec := LocalEmbed("invoice payment delayed shipment invoice")
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestSimilarity(t *testing.T) {
	vec := LocalEmbed("quarterly business review agenda")

	assert.InDelta(t, 1.0, Similarity(vec, vec), 1e-9)
	assert.Zero(t, Similarity(vec, nil))
	assert.Zero(t, Similarity(vec, []float64{1, 0}))

	// unrelated texts should score below identical ones
	other := LocalEmbed("completely different words entirely")
	assert.Less(t, Similarity(vec, other), 1.0)
}

func TestSimilarity_RelatedTextsScoreHigher(t *testing.T) {
	base := LocalEmbed("invoice payment overdue")
	related := LocalEmbed("invoice payment reminder")
	unrelated := LocalEmbed("kubernetes cluster deployment")

	assert.Greater(t, Similarity(base, related), Similarity(base, unrelated))
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float64{0.5, -0.25, 0}
	encoded, err := EncodeVector(vec)
	require.NoError(t, err)

	decoded, err := DecodeVector(encoded)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVector_DoublyEncoded(t *testing.T) {
	decoded, err := DecodeVector(`"[0.1, 0.2, 0.3]"`)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, decoded)
}

func TestDecodeVector_Invalid(t *testing.T) {
	_, err := DecodeVector("")
	assert.Error(t, err)

	_, err = DecodeVector("not json")
	assert.Error(t, err)

	_, err = DecodeVector(`"not a vector"`)
	assert.Error(t, err)
}

func TestFloat32To64(t *testing.T) {
	out := Float32To64([]float32{1, 0.5})
	assert.Equal(t, []float64{1, 0.5}, out)
}
