package ensemble

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"

	"github.com/Tutortoise/rice-leaf-service/classifier"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/Tutortoise/rice-leaf-service/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pattern(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 3), B: uint8(x*y%200 + 40), A: 255})
		}
	}
	return img
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func constant(v models.ProbabilityVector) classifier.Classifier {
	return classifier.Func(func(context.Context, classifier.Tensor) (models.ProbabilityVector, error) {
		return append(models.ProbabilityVector(nil), v...), nil
	})
}

func newPredictor(t *testing.T, c classifier.Classifier, names ...string) *Predictor {
	t.Helper()
	classes, err := models.NewClassTable(names)
	require.NoError(t, err)
	return NewPredictor(c, classes, views.NewSampler(32), classifier.NewPreprocessor(32, 32, classifier.LayoutNHWC, 1), zap.NewNop())
}

func TestMean(t *testing.T) {
	a := models.ProbabilityVector{0.7, 0.2, 0.1}
	b := models.ProbabilityVector{0.1, 0.3, 0.6}

	ab, err := Mean([]models.ProbabilityVector{a, b})
	require.NoError(t, err)
	ba, err := Mean([]models.ProbabilityVector{b, a})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64(ab), []float64(ba), 1e-12)
	assert.InDeltaSlice(t, []float64{0.4, 0.25, 0.35}, []float64(ab), 1e-12)

	same, err := Mean([]models.ProbabilityVector{a, a, a})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64(a), []float64(same), 1e-12)
}

func TestMeanRejectsBadInput(t *testing.T) {
	_, err := Mean(nil)
	assert.ErrorIs(t, err, models.ErrEmptyViews)
	assert.Equal(t, models.KindInvariant, models.KindOf(err))

	_, err = Mean([]models.ProbabilityVector{{0.5, 0.5}, {1}})
	assert.ErrorIs(t, err, models.ErrClassCountMismatch)
}

func TestEstimate(t *testing.T) {
	agree := []models.ProbabilityVector{{0.8, 0.1, 0.1}, {0.7, 0.2, 0.1}, {0.9, 0.05, 0.05}}
	agg, err := Mean(agree)
	require.NoError(t, err)

	u, err := Estimate(agree, agg, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, u.Disagreement)
	assert.InDelta(t, 0.8, u.Confidence, 1e-9)
	assert.InDelta(t, 0.8-0.35/3, u.Margin, 1e-9)
	assert.False(t, u.IsUncertain)
	assert.Empty(t, u.Reasons)
	assert.Equal(t, []int{0, 1}, u.Shortlist)
}

func TestEstimateFlags(t *testing.T) {
	tests := []struct {
		name    string
		perView []models.ProbabilityVector
		dark    float64
		reason  string
	}{
		{
			name:    "low confidence",
			perView: []models.ProbabilityVector{{0.4, 0.3, 0.3}},
			reason:  ReasonLowConfidence,
		},
		{
			name:    "low margin",
			perView: []models.ProbabilityVector{{0.52, 0.48, 0}},
			reason:  ReasonLowMargin,
		},
		{
			name:    "dark background",
			perView: []models.ProbabilityVector{{0.9, 0.05, 0.05}},
			dark:    0.5,
			reason:  ReasonDarkBackground,
		},
		{
			name: "views disagree",
			perView: []models.ProbabilityVector{
				{0.9, 0.1, 0}, {0.9, 0.1, 0}, {0.9, 0.1, 0},
				{0.4, 0.6, 0}, {0.4, 0.6, 0},
			},
			reason: ReasonDisagreement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := Mean(tt.perView)
			require.NoError(t, err)
			u, err := Estimate(tt.perView, agg, tt.dark)
			require.NoError(t, err)
			assert.True(t, u.IsUncertain)
			assert.Contains(t, u.Reasons, tt.reason)
			assert.Len(t, u.Shortlist, 2)
		})
	}
}

func TestDisagreementHalfSplit(t *testing.T) {
	perView := []models.ProbabilityVector{{0.6, 0.4}, {0.4, 0.6}, {0.6, 0.4}, {0.4, 0.6}}
	assert.Equal(t, 0.5, Disagreement(perView))

	agg, err := Mean(perView)
	require.NoError(t, err)
	u, err := Estimate(perView, agg, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, u.Margin, 1e-12)
	assert.True(t, u.IsUncertain)
}

func TestDarkBackgroundRatio(t *testing.T) {
	assert.Equal(t, 1.0, DarkBackgroundRatio(fill(256, 256, color.NRGBA{A: 255})))
	assert.Equal(t, 0.0, DarkBackgroundRatio(fill(64, 32, color.NRGBA{R: 120, G: 160, B: 40, A: 255})))
	assert.Equal(t, 1.0, DarkBackgroundRatio(fill(10, 10, color.NRGBA{R: 20, G: 20, B: 20, A: 255})))
	assert.Equal(t, 0.0, DarkBackgroundRatio(fill(10, 10, color.NRGBA{R: 21, G: 0, B: 0, A: 255})))

	half := fill(100, 100, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			half.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	assert.InDelta(t, 0.5, DarkBackgroundRatio(half), 1e-9)
}

func TestTopK(t *testing.T) {
	classes, err := models.NewClassTable([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	agg := models.ProbabilityVector{0.1, 0.4, 0.1, 0.4}

	top := TopK(agg, classes, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "d", "a"}, []string{top[0].Class, top[1].Class, top[2].Class})

	assert.Len(t, TopK(agg, classes, 0), DefaultTopK)
	assert.Len(t, TopK(agg, classes, -2), DefaultTopK)
	assert.Len(t, TopK(agg, classes, 10), 4)
}

func TestPredictConfident(t *testing.T) {
	p := newPredictor(t, constant(models.ProbabilityVector{0.9, 0.05, 0.05}), "healthy", "blast", "brown_spot")

	pred, err := p.Predict(context.Background(), pattern(120, 80), 0)
	require.NoError(t, err)

	assert.Equal(t, "healthy", pred.PredictedClass)
	assert.InDelta(t, 0.9, pred.Confidence, 1e-9)
	assert.InDelta(t, 0.85, pred.ConfidenceMargin, 1e-9)
	assert.Equal(t, 0.0, pred.TTADisagreement)
	assert.False(t, pred.IsUncertain)
	assert.Len(t, pred.TopPredictions, 3)
	assert.Equal(t, []string{"healthy", "blast"}, pred.PossibleClasses)
	assert.GreaterOrEqual(t, pred.ViewCount, 1)
	assert.LessOrEqual(t, pred.ViewCount, 21)
}

func TestPredictDarkImageIsUncertain(t *testing.T) {
	p := newPredictor(t, constant(models.ProbabilityVector{0.9, 0.05, 0.05}), "healthy", "blast", "brown_spot")

	pred, err := p.Predict(context.Background(), fill(256, 256, color.NRGBA{A: 255}), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, pred.ViewCount)
	assert.Equal(t, 1.0, pred.DarkBackgroundRatio)
	assert.True(t, pred.IsUncertain)
	assert.Contains(t, pred.UncertainReasons, ReasonDarkBackground)
	assert.Len(t, pred.TopPredictions, 2)
}

func TestPredictAlternatingViews(t *testing.T) {
	var calls atomic.Int64
	alternating := classifier.Func(func(context.Context, classifier.Tensor) (models.ProbabilityVector, error) {
		if calls.Add(1)%2 == 1 {
			return models.ProbabilityVector{0.6, 0.4}, nil
		}
		return models.ProbabilityVector{0.4, 0.6}, nil
	})
	p := newPredictor(t, alternating, "healthy", "blast")

	pred, err := p.Predict(context.Background(), pattern(120, 80), 2)
	require.NoError(t, err)

	n := pred.ViewCount
	require.Greater(t, n, 2)
	majority := (n + 1) / 2
	assert.InDelta(t, 1-float64(majority)/float64(n), pred.TTADisagreement, 1e-9)
	assert.Equal(t, int64(n), calls.Load())
	assert.Less(t, pred.ConfidenceMargin, MinMargin)
	assert.True(t, pred.IsUncertain)
	assert.ElementsMatch(t, []string{"healthy", "blast"}, pred.PossibleClasses)
}

func TestPredictClassCountMismatch(t *testing.T) {
	p := newPredictor(t, constant(models.ProbabilityVector{0.5, 0.5}), "healthy", "blast", "brown_spot")

	_, err := p.Predict(context.Background(), pattern(40, 40), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrClassCountMismatch)
	assert.Equal(t, models.KindInvariant, models.KindOf(err))
}

func TestPredictPropagatesClassifierError(t *testing.T) {
	cause := errors.New("session run failed")
	failing := classifier.Func(func(context.Context, classifier.Tensor) (models.ProbabilityVector, error) {
		return nil, cause
	})
	p := newPredictor(t, failing, "healthy", "blast")

	_, err := p.Predict(context.Background(), pattern(40, 40), 0)
	assert.ErrorIs(t, err, cause)
}

func TestPredictRejectsEmptyImage(t *testing.T) {
	p := newPredictor(t, constant(models.ProbabilityVector{1}), "healthy")

	_, err := p.Predict(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)), 0)
	assert.ErrorIs(t, err, models.ErrEmptyImage)
	assert.Equal(t, models.KindInput, models.KindOf(err))
}

type captureRecorder struct {
	preds []*models.Prediction
}

func (c *captureRecorder) ObservePrediction(p *models.Prediction, _ models.ProcessingTimings) {
	c.preds = append(c.preds, p)
}

func TestPredictRecorderAndRequestID(t *testing.T) {
	rec := &captureRecorder{}
	classes, err := models.NewClassTable([]string{"healthy", "blast"})
	require.NoError(t, err)
	p := NewPredictor(constant(models.ProbabilityVector{0.7, 0.3}), classes, views.NewSampler(16),
		classifier.NewPreprocessor(16, 16, classifier.LayoutNCHW, 1.0/255), zap.NewNop(),
		WithWorkers(1), WithTopK(1), WithRecorder(rec))

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFrom(ctx))
	assert.NotEmpty(t, RequestIDFrom(context.Background()))

	pred, err := p.Predict(ctx, pattern(30, 30), 0)
	require.NoError(t, err)
	require.Len(t, rec.preds, 1)
	assert.Same(t, pred, rec.preds[0])
	assert.Len(t, pred.TopPredictions, 1)
	assert.False(t, math.IsNaN(pred.Confidence))
}
