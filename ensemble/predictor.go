package ensemble

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/Tutortoise/rice-leaf-service/classifier"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/Tutortoise/rice-leaf-service/views"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder observes completed predictions.
type Recorder interface {
	ObservePrediction(p *models.Prediction, timings models.ProcessingTimings)
}

type Option func(*Predictor)

// WithWorkers bounds how many views are classified concurrently within one request.
func WithWorkers(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithTopK(k int) Option {
	return func(p *Predictor) {
		if k > 0 {
			p.topK = k
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Predictor) {
		p.recorder = r
	}
}

// Predictor runs the sample, classify, aggregate and estimate pipeline for one image.
// It holds no per-request state and is safe for concurrent use.
type Predictor struct {
	classifier classifier.Classifier
	classes    *models.ClassTable
	sampler    *views.Sampler
	pre        *classifier.Preprocessor
	logger     *zap.Logger
	workers    int
	topK       int
	recorder   Recorder
}

func NewPredictor(c classifier.Classifier, classes *models.ClassTable, sampler *views.Sampler, pre *classifier.Preprocessor, logger *zap.Logger, opts ...Option) *Predictor {
	p := &Predictor{
		classifier: c,
		classes:    classes,
		sampler:    sampler,
		pre:        pre,
		logger:     logger.Named("predictor"),
		workers:    runtime.GOMAXPROCS(0),
		topK:       DefaultTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Predictor) Classes() *models.ClassTable {
	return p.classes
}

// Predict classifies img. topK <= 0 uses the predictor default.
func (p *Predictor) Predict(ctx context.Context, img image.Image, topK int) (*models.Prediction, error) {
	timings := models.ProcessingTimings{RequestID: RequestIDFrom(ctx)}
	start := time.Now()

	if img == nil || img.Bounds().Empty() {
		return nil, models.Input("image has no pixels", models.ErrEmptyImage)
	}
	if topK <= 0 {
		topK = p.topK
	}

	stepStart := time.Now()
	sampled := p.sampler.Sample(img)
	dark := DarkBackgroundRatio(img)
	timings.Sample = time.Since(stepStart)
	if len(sampled) == 0 {
		return nil, models.Invariant("sampler produced no views", models.ErrEmptyViews)
	}

	stepStart = time.Now()
	perView, err := p.classifyViews(ctx, sampled)
	if err != nil {
		return nil, err
	}
	timings.Inference = time.Since(stepStart)

	stepStart = time.Now()
	aggregate, err := Mean(perView)
	if err != nil {
		return nil, err
	}
	u, err := Estimate(perView, aggregate, dark)
	if err != nil {
		return nil, err
	}
	prediction := assemble(aggregate, u, p.classes, topK, len(sampled))
	timings.Aggregate = time.Since(stepStart)
	timings.Total = time.Since(start)

	p.logTimings(timings, prediction)
	if p.recorder != nil {
		p.recorder.ObservePrediction(prediction, timings)
	}
	return prediction, nil
}

// classifyViews fans the views out to the classifier and joins the results in view order.
func (p *Predictor) classifyViews(ctx context.Context, sampled []views.View) ([]models.ProbabilityVector, error) {
	results := make([]models.ProbabilityVector, len(sampled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range sampled {
		i := i
		g.Go(func() error {
			tensor, err := p.pre.Tensor(sampled[i].Image)
			if err != nil {
				return err
			}
			probs, err := p.classifier.Classify(gctx, tensor)
			if err != nil {
				return err
			}
			if err := probs.Validate(p.classes.Len()); err != nil {
				return fmt.Errorf("view %d (%s): %w", i, sampled[i].Kind, err)
			}
			results[i] = probs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Predictor) logTimings(t models.ProcessingTimings, pred *models.Prediction) {
	if ce := p.logger.Check(zap.DebugLevel, "prediction timings"); ce != nil {
		ce.Write(
			zap.String("request_id", t.RequestID),
			zap.Duration("sample", t.Sample),
			zap.Duration("inference", t.Inference),
			zap.Duration("aggregate", t.Aggregate),
			zap.Duration("total", t.Total),
			zap.Int("views", pred.ViewCount),
			zap.String("class", pred.PredictedClass),
			zap.Bool("uncertain", pred.IsUncertain),
		)
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id in ctx, or a fresh one.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
