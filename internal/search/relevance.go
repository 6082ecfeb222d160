package search

import (
	"math"
	"sort"
)

// Grade is a relevance judgment.
type Grade int

const (
	NotRelevant Grade = iota
	Marginal
	Relevant
	Highly
)

// Gain returns the grade as a float for DCG.
func (g Grade) Gain() float64 { return float64(g) }

// DCG returns discounted cumulative gain over the first k relevances.
func DCG(rels []float64, k int) float64 {
	var sum float64
	for i, rel := range rels {
		if i >= k {
			break
		}
		sum += (math.Exp2(rel) - 1) / math.Log2(float64(i)+2)
	}
	return sum
}

// NDCG normalizes DCG by the ideal ordering. With no judged gain, an empty
// ranking scores 1 and anything else 0.
func NDCG(rels, ideal []float64, k int) float64 {
	dcg := DCG(rels, k)
	idcg := DCG(ideal, k)
	if idcg == 0 {
		if dcg == 0 {
			return 1
		}
		return 0
	}
	return dcg / idcg
}

// MRR returns the reciprocal rank of the first relevant result.
func MRR(rels []float64) float64 {
	for i, rel := range rels {
		if rel > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// PrecisionAt returns the relevant fraction of the top k.
func PrecisionAt(rels []float64, k int) float64 {
	found := 0
	for i, rel := range rels {
		if i >= k {
			break
		}
		if rel > 0 {
			found++
		}
	}
	return float64(found) / float64(max(1, min(k, len(rels))))
}

// RecallAt returns the share of all relevant documents found in the top k.
func RecallAt(rels []float64, totalRelevant, k int) float64 {
	if totalRelevant == 0 {
		return 1
	}
	found := 0
	for i, rel := range rels {
		if i >= k {
			break
		}
		if rel > 0 {
			found++
		}
	}
	return float64(found) / float64(totalRelevant)
}

// Metrics are the per-query scores.
type Metrics struct {
	NDCG5      float64 `json:"ndcg5"`
	MRR        float64 `json:"mrr"`
	Precision3 float64 `json:"precision3"`
	Recall5    float64 `json:"recall5"`
}

// Score grades a ranked title list against judgments keyed by title.
func Score(titles []string, judgments map[string]Grade) Metrics {
	rels := make([]float64, len(titles))
	for i, t := range titles {
		rels[i] = judgments[t].Gain()
	}
	ideal := make([]float64, 0, len(judgments))
	total := 0
	for _, g := range judgments {
		ideal = append(ideal, g.Gain())
		if g > NotRelevant {
			total++
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	return Metrics{
		NDCG5:      NDCG(rels, ideal, 5),
		MRR:        MRR(rels),
		Precision3: PrecisionAt(rels, 3),
		Recall5:    RecallAt(rels, total, 5),
	}
}
