// Package classifier turns views into tensors and tensors into class probabilities.
package classifier

import (
	"context"

	"github.com/Tutortoise/rice-leaf-service/models"
)

type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// Tensor is a single image laid out for the model, batch dimension implied.
type Tensor struct {
	Data   []float32
	Height int
	Width  int
	Layout Layout
}

// Classifier scores one tensor. Implementations must be deterministic and safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, t Tensor) (models.ProbabilityVector, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, t Tensor) (models.ProbabilityVector, error)

func (f Func) Classify(ctx context.Context, t Tensor) (models.ProbabilityVector, error) {
	return f(ctx, t)
}
