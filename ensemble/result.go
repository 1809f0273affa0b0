package ensemble

import (
	"sort"

	"github.com/Tutortoise/rice-leaf-service/models"
)

const DefaultTopK = 3

// rank returns class indices ordered by descending probability, ties by index.
func rank(p models.ProbabilityVector) []int {
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return p[idx[a]] > p[idx[b]]
	})
	return idx
}

// TopK returns the k most probable classes. k <= 0 selects DefaultTopK and k is
// capped at the number of classes.
func TopK(aggregate models.ProbabilityVector, classes *models.ClassTable, k int) []models.ClassScore {
	if k <= 0 {
		k = DefaultTopK
	}
	order := rank(aggregate)
	k = min(k, len(order))

	out := make([]models.ClassScore, k)
	for i, idx := range order[:k] {
		out[i] = models.ClassScore{Class: classes.Name(idx), Confidence: aggregate[idx]}
	}
	return out
}

func assemble(aggregate models.ProbabilityVector, u Uncertainty, classes *models.ClassTable, topK, viewCount int) *models.Prediction {
	top := TopK(aggregate, classes, topK)

	possible := make([]string, len(u.Shortlist))
	for i, idx := range u.Shortlist {
		possible[i] = classes.Name(idx)
	}

	return &models.Prediction{
		PredictedClass:      top[0].Class,
		Confidence:          top[0].Confidence,
		TopPredictions:      top,
		IsUncertain:         u.IsUncertain,
		PossibleClasses:     possible,
		ConfidenceMargin:    u.Margin,
		TTADisagreement:     u.Disagreement,
		DarkBackgroundRatio: u.DarkBackgroundRatio,
		ViewCount:           viewCount,
		UncertainReasons:    u.Reasons,
	}
}
