package main

import (
	"sync/atomic"

	"github.com/Tutortoise/rice-leaf-service/classifier"
	"github.com/Tutortoise/rice-leaf-service/config"
	"github.com/Tutortoise/rice-leaf-service/ensemble"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/Tutortoise/rice-leaf-service/views"
	"go.uber.org/zap"
)

// modelState owns the loaded ONNX classifier, whether it was loaded eagerly or on
// first use.
type modelState struct {
	onnx atomic.Pointer[classifier.ONNX]
}

func (m *modelState) Stats() classifier.PoolStats {
	if o := m.onnx.Load(); o != nil {
		return o.Stats()
	}
	return classifier.PoolStats{}
}

func (m *modelState) Close() {
	if o := m.onnx.Load(); o != nil {
		o.Close()
	}
	classifier.DestroyEnvironment()
}

func onnxConfig(cfg config.ModelConfig, numClasses int) classifier.ONNXConfig {
	return classifier.ONNXConfig{
		ModelPath:      cfg.Path,
		LibraryPath:    cfg.LibraryPath,
		InputSize:      cfg.InputSize,
		Layout:         classifier.Layout(cfg.Layout),
		InputName:      cfg.InputName,
		OutputName:     cfg.OutputName,
		NumClasses:     numClasses,
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		IntraOpThreads: cfg.IntraOpThreads,
		ApplySoftmax:   cfg.ApplySoftmax,
	}
}

// buildPredictor loads the class table and wires the classifier into the ensemble
// pipeline. With lazy loading the model is opened by the first prediction.
func buildPredictor(cfg *config.Config, logger *zap.Logger, opts ...ensemble.Option) (*ensemble.Predictor, *modelState, error) {
	classes, err := models.LoadClassTable(cfg.Model.ClassNamesPath)
	if err != nil {
		return nil, nil, err
	}

	state := &modelState{}
	load := func() (classifier.Classifier, error) {
		o, err := classifier.NewONNX(onnxConfig(cfg.Model, classes.Len()), logger.Named("inference"))
		if err != nil {
			return nil, err
		}
		state.onnx.Store(o)
		return o, nil
	}

	var c classifier.Classifier
	if cfg.Model.LazyLoad {
		c = classifier.NewLazy(load)
	} else if c, err = load(); err != nil {
		return nil, nil, err
	}

	size := cfg.Model.InputSize
	pre := classifier.NewPreprocessor(size, size, classifier.Layout(cfg.Model.Layout), float32(cfg.Model.PixelScale))

	opts = append([]ensemble.Option{
		ensemble.WithTopK(cfg.Inference.TopK),
		ensemble.WithWorkers(cfg.Inference.Workers),
	}, opts...)
	p := ensemble.NewPredictor(c, classes, views.NewSampler(size), pre, logger, opts...)
	return p, state, nil
}
