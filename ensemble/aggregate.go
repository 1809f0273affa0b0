// Package ensemble combines per-view classifier outputs into one prediction and
// decides whether that prediction can be trusted.
package ensemble

import (
	"fmt"

	"github.com/Tutortoise/rice-leaf-service/models"
	"gonum.org/v1/gonum/floats"
)

// Mean returns the element-wise unweighted mean of the vectors, summed in slice order.
func Mean(vectors []models.ProbabilityVector) (models.ProbabilityVector, error) {
	if len(vectors) == 0 {
		return nil, models.Invariant("cannot aggregate", models.ErrEmptyViews)
	}

	n := len(vectors[0])
	sum := make([]float64, n)
	for i, v := range vectors {
		if len(v) != n {
			return nil, models.Invariant(fmt.Sprintf("view %d has %d scores, view 0 has %d", i, len(v), n), models.ErrClassCountMismatch)
		}
		floats.Add(sum, v)
	}
	floats.Scale(1/float64(len(vectors)), sum)

	return models.ProbabilityVector(sum), nil
}
