package models

import (
	"fmt"
	"math"
	"time"
)

// SumTolerance bounds how far a probability vector may drift from 1.
const SumTolerance = 1e-3

// ProbabilityVector holds one probability per class, indexed like the ClassTable.
type ProbabilityVector []float64

// ArgMax returns the index of the largest entry. Ties resolve to the lowest index.
func (p ProbabilityVector) ArgMax() int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// Validate checks the vector against the class count and the probability invariants.
func (p ProbabilityVector) Validate(classCount int) error {
	if len(p) != classCount {
		return Invariant(fmt.Sprintf("classifier returned %d scores for %d classes", len(p), classCount), ErrClassCountMismatch)
	}

	var sum float64
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Invariant(fmt.Sprintf("score %d is not a probability: %v", i, v), nil)
		}
		sum += v
	}
	if math.Abs(sum-1) > SumTolerance {
		return Invariant(fmt.Sprintf("scores sum to %.6f", sum), nil)
	}
	return nil
}

type ClassScore struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Prediction is the result of one ensemble prediction. It is never mutated after assembly.
type Prediction struct {
	PredictedClass      string       `json:"predicted_class"`
	Confidence          float64      `json:"confidence"`
	TopPredictions      []ClassScore `json:"top_predictions"`
	IsUncertain         bool         `json:"is_uncertain"`
	PossibleClasses     []string     `json:"possible_classes"`
	ConfidenceMargin    float64      `json:"confidence_margin"`
	TTADisagreement     float64      `json:"tta_disagreement"`
	DarkBackgroundRatio float64      `json:"dark_background_ratio"`
	ViewCount           int          `json:"view_count"`
	UncertainReasons    []string     `json:"uncertain_reasons,omitempty"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Sample      time.Duration
	Inference   time.Duration
	Aggregate   time.Duration
	Total       time.Duration
}
