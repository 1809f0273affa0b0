package classifier

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Tutortoise/rice-leaf-service/models"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

type ONNXConfig struct {
	ModelPath      string
	LibraryPath    string
	InputSize      int
	Layout         Layout
	InputName      string
	OutputName     string
	NumClasses     int
	PoolSize       int
	AcquireTimeout time.Duration
	IntraOpThreads int
	ApplySoftmax   bool
}

// ONNX classifies tensors with a pool of ONNX Runtime sessions.
type ONNX struct {
	cfg    ONNXConfig
	pool   *SessionPool
	logger *zap.Logger
}

func NewONNX(cfg ONNXConfig, logger *zap.Logger) (*ONNX, error) {
	logger = logger.Named("onnx")

	if cfg.InputSize <= 0 {
		cfg.InputSize = InputWidth
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutNHWC
	}
	if cfg.InputName == "" {
		cfg.InputName = DefaultInputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = DefaultOutputName
	}
	if cfg.NumClasses <= 0 {
		return nil, models.Configuration("model class count must be positive", nil)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, models.Configuration(fmt.Sprintf("model not found at %q", cfg.ModelPath), err)
	}

	libPath, err := ResolveLibraryPath(cfg.LibraryPath, cfg.ModelPath)
	if err != nil {
		return nil, models.Configuration("onnxruntime unavailable", err)
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, models.Configuration("failed to initialize ONNX environment", err)
	}

	o := &ONNX{cfg: cfg, logger: logger}
	pool, err := NewSessionPool(cfg.PoolSize, cfg.AcquireTimeout, o.initSession, logger)
	if err != nil {
		return nil, models.Configuration("failed to create model session pool", err)
	}
	o.pool = pool

	logger.Info("model loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("library", libPath),
		zap.Int("classes", cfg.NumClasses),
		zap.Int("pool_size", pool.size),
		zap.Strings("cpu_features", CPUFeatures()),
	)
	return o, nil
}

func (o *ONNX) inputShape() ort.Shape {
	s := int64(o.cfg.InputSize)
	if o.cfg.Layout == LayoutNCHW {
		return ort.NewShape(1, 3, s, s)
	}
	return ort.NewShape(1, s, s, 3)
}

func (o *ONNX) initSession() (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if o.cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(o.cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](o.inputShape())
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.cfg.NumClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		o.cfg.ModelPath,
		[]string{o.cfg.InputName},
		[]string{o.cfg.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

func (o *ONNX) Classify(ctx context.Context, t Tensor) (models.ProbabilityVector, error) {
	if t.Height != o.cfg.InputSize || t.Width != o.cfg.InputSize || t.Layout != o.cfg.Layout {
		return nil, models.Invariant(fmt.Sprintf("tensor %dx%d/%s does not match model input %dx%d/%s",
			t.Height, t.Width, t.Layout, o.cfg.InputSize, o.cfg.InputSize, o.cfg.Layout), nil)
	}

	session, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	copy(session.Input.GetData(), t.Data)

	if err := session.Session.Run(); err != nil {
		o.pool.Discard(session, err)
		return nil, fmt.Errorf("model inference: %w", err)
	}

	raw := session.Output.GetData()
	probs := make(models.ProbabilityVector, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
	}
	o.pool.Release(session)

	if o.cfg.ApplySoftmax {
		softmax(probs)
	}
	return probs, nil
}

func (o *ONNX) Stats() PoolStats {
	return o.pool.Stats()
}

func (o *ONNX) Close() {
	o.pool.Destroy()
}

// softmax converts logits to probabilities in place.
func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	maxLogit := v[0]
	for _, x := range v[1:] {
		maxLogit = math.Max(maxLogit, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxLogit)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
