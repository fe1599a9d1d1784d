package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

func norm(v domain.Vector) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestPostprocessMeanPooling(t *testing.T) {
	rows := []domain.Vector{{2, 0}, {0, 2}}

	v, err := Postprocess(rows, PoolingMean)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(v), 1e-6)
	assert.InDelta(t, v[0], v[1], 1e-6)
}

func TestPostprocessCLSPooling(t *testing.T) {
	rows := []domain.Vector{{3, 4}, {100, 100}}

	v, err := Postprocess(rows, PoolingCLS)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	// input rows are not mutated
	assert.Equal(t, domain.Vector{3, 4}, rows[0])
}

func TestPostprocessZeroVector(t *testing.T) {
	v, err := Postprocess([]domain.Vector{{0, 0, 0}}, PoolingMean)
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{0, 0, 0}, v)
}

func TestPostprocessNoRows(t *testing.T) {
	_, err := Postprocess(nil, PoolingMean)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestParsePooling(t *testing.T) {
	p, err := ParsePooling("")
	require.NoError(t, err)
	assert.Equal(t, PoolingMean, p)

	p, err = ParsePooling("cls")
	require.NoError(t, err)
	assert.Equal(t, PoolingCLS, p)

	_, err = ParsePooling("max")
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine(domain.Vector{1, 1}, domain.Vector{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, Cosine(domain.Vector{1, 0}, domain.Vector{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine(domain.Vector{0, 0}, domain.Vector{1, 0}))
}
