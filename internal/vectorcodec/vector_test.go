package vectorcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	in := []float32{1.5, -2.25, 0, 3.125, 100.0625}
	out := Unpack(Pack(in))
	require.Equal(t, len(in), len(out))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-6)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, Cosine(nil, []float32{1, 2, 3}))
}

func TestCosineIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestRankCosineSkipsZeroNormAndOrders(t *testing.T) {
	query := []float32{1, 0}
	rows := []VectorRow{
		{ID: 1, Vector: Pack([]float32{1, 0}), Norm: 1},
		{ID: 2, Vector: Pack([]float32{0, 1}), Norm: 1},
		{ID: 3, Vector: Pack([]float32{0, 0}), Norm: 0},
		{ID: 4, Vector: nil, Norm: 1},
	}
	ranked := RankCosine(query, rows, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].ID)
	assert.Equal(t, int64(2), ranked[1].ID)
}

func TestRankRRFDeterministicTiebreak(t *testing.T) {
	lists := [][]int64{
		{10, 20, 30},
		{30, 10, 20},
	}
	r1 := RankRRF(lists, 60, 0)
	r2 := RankRRF(lists, 60, 0)
	require.Equal(t, r1, r2)

	// id 10 appears at rank0 in list1 and rank1 in list2: highest combined score.
	assert.Equal(t, int64(10), r1[0].ID)
}

func TestRankRRFEmpty(t *testing.T) {
	assert.Empty(t, RankRRF(nil, 60, 10))
	assert.Empty(t, RankRRF([][]int64{{}, {}}, 60, 10))
}

func TestRankRRFTieBreakAscendingID(t *testing.T) {
	// Both ids get identical contributions -> tie broken by ascending id.
	lists := [][]int64{{5}, {2}}
	out := RankRRF(lists, 60, 0)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, int64(5), out[1].ID)
}
