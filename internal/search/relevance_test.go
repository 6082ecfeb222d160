package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDCG(t *testing.T) {
	require.InDelta(t, 7.0, DCG([]float64{3}, 5), 1e-9)
	require.InDelta(t, 7.0+3.0/math.Log2(3), DCG([]float64{3, 2}, 5), 1e-9)
	require.InDelta(t, 7.0, DCG([]float64{3, 2}, 1), 1e-9)
	require.Zero(t, DCG(nil, 5))
}

func TestNDCG(t *testing.T) {
	require.Equal(t, 1.0, NDCG(nil, nil, 5))
	require.Equal(t, 1.0, NDCG([]float64{0, 0}, nil, 5))
	require.Equal(t, 0.0, NDCG([]float64{1}, []float64{0}, 5))
	require.InDelta(t, 1.0, NDCG([]float64{3, 3, 2}, []float64{3, 3, 2}, 5), 1e-12)
	require.Less(t, NDCG([]float64{2, 3, 3}, []float64{3, 3, 2}, 5), 1.0)
}

func TestMRR(t *testing.T) {
	require.Equal(t, 1.0, MRR([]float64{3, 0}))
	require.Equal(t, 0.5, MRR([]float64{0, 1}))
	require.Zero(t, MRR([]float64{0, 0}))
	require.Zero(t, MRR(nil))
}

func TestPrecisionRecall(t *testing.T) {
	require.Equal(t, 1.0, PrecisionAt([]float64{3}, 3))
	require.InDelta(t, 2.0/3.0, PrecisionAt([]float64{3, 0, 2, 1}, 3), 1e-12)
	require.Zero(t, PrecisionAt(nil, 3))
	require.Equal(t, 1.0, RecallAt(nil, 0, 5))
	require.Equal(t, 0.5, RecallAt([]float64{3, 0}, 2, 5))
}

func TestScore(t *testing.T) {
	judgments := map[string]Grade{"a": Highly, "b": Relevant, "c": Marginal}
	m := Score([]string{"x", "a", "b"}, judgments)
	require.Equal(t, 0.5, m.MRR)
	require.InDelta(t, 2.0/3.0, m.Precision3, 1e-12)
	require.InDelta(t, 2.0/3.0, m.Recall5, 1e-12)

	m = Score([]string{"x"}, map[string]Grade{})
	require.Equal(t, Metrics{NDCG5: 1, MRR: 0, Precision3: 0, Recall5: 1}, m)
}
