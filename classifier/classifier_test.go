package classifier

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocessorTensorShape(t *testing.T) {
	p := NewPreprocessor(32, 32, LayoutNHWC, 1)

	for _, size := range []image.Point{{32, 32}, {64, 64}, {7, 7}, {100, 40}} {
		tensor, err := p.Tensor(solid(size.X, size.Y, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
		require.NoError(t, err)
		assert.Equal(t, 32, tensor.Height)
		assert.Equal(t, 32, tensor.Width)
		assert.Len(t, tensor.Data, 32*32*3)
	}
}

func TestPreprocessorLayouts(t *testing.T) {
	view := solid(16, 16, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	nhwc, err := NewPreprocessor(8, 8, LayoutNHWC, 1).Tensor(view)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{200, 100, 50}, nhwc.Data[:3], 1)
	assert.Equal(t, LayoutNHWC, nhwc.Layout)

	nchw, err := NewPreprocessor(8, 8, LayoutNCHW, 1.0/255).Tensor(view)
	require.NoError(t, err)
	assert.InDelta(t, 200.0/255, nchw.Data[0], 1.0/255)
	assert.InDelta(t, 100.0/255, nchw.Data[64], 1.0/255)
	assert.InDelta(t, 50.0/255, nchw.Data[128], 1.0/255)
}

func TestPreprocessorRejectsEmptyView(t *testing.T) {
	_, err := NewPreprocessor(8, 8, LayoutNHWC, 1).Tensor(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
	assert.Equal(t, models.KindInvariant, models.KindOf(err))

	_, err = NewPreprocessor(8, 8, Layout("chw"), 1).Tensor(solid(4, 4, color.NRGBA{A: 255}))
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestLazyLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	stub := Func(func(ctx context.Context, _ Tensor) (models.ProbabilityVector, error) {
		return models.ProbabilityVector{1}, nil
	})
	lazy := NewLazy(func() (Classifier, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return stub, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probs, err := lazy.Classify(context.Background(), Tensor{})
			assert.NoError(t, err)
			assert.Equal(t, models.ProbabilityVector{1}, probs)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestLazyKeepsLoadFailure(t *testing.T) {
	var loads atomic.Int32
	cause := errors.New("model file missing")
	lazy := NewLazy(func() (Classifier, error) {
		loads.Add(1)
		return nil, cause
	})

	for i := 0; i < 3; i++ {
		_, err := lazy.Classify(context.Background(), Tensor{})
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, models.KindConfiguration, models.KindOf(err))
	}
	assert.Equal(t, int32(1), loads.Load())
}

func newTestPool(t *testing.T, size int, timeout time.Duration) *SessionPool {
	t.Helper()
	pool, err := NewSessionPool(size, timeout, func() (*ModelSession, error) {
		return &ModelSession{}, nil
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return pool
}

func TestSessionPoolAcquireRelease(t *testing.T) {
	pool := newTestPool(t, 2, 50*time.Millisecond)
	ctx := context.Background()

	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	pool.Release(a)
	pool.Release(b)

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Live)
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, int64(2), stats.TotalAcquired)
	assert.Equal(t, int64(2), stats.TotalReleased)
	assert.Equal(t, int64(1), stats.AcquireFailures)
}

func TestSessionPoolContextCancel(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionPoolDiscardAndReplenish(t *testing.T) {
	pool := newTestPool(t, 1, 20*time.Millisecond)

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Discard(s, errors.New("run failed"))
	assert.Equal(t, 0, pool.Stats().Live)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	pool.replenish()
	assert.Equal(t, 1, pool.Stats().Live)
	s, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s)
}

func TestSessionPoolClosed(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	pool.Destroy()

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNewSessionPoolFactoryError(t *testing.T) {
	calls := 0
	_, err := NewSessionPool(3, time.Second, func() (*ModelSession, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("boom")
		}
		return &ModelSession{}, nil
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	v := []float64{1, 2, 3}
	softmax(v)
	assert.InDelta(t, 1.0, v[0]+v[1]+v[2], 1e-12)
	assert.Greater(t, v[2], v[1])
	assert.Greater(t, v[1], v[0])
}

func TestResolveLibraryPath(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "custom.so")
	require.NoError(t, os.WriteFile(lib, []byte{}, 0o644))

	got, err := ResolveLibraryPath(lib, "")
	require.NoError(t, err)
	assert.Equal(t, lib, got)

	t.Setenv(libraryPathEnvName, lib)
	got, err = ResolveLibraryPath(filepath.Join(dir, "missing.so"), "")
	require.NoError(t, err)
	assert.Equal(t, lib, got)

	modelDir := filepath.Join(dir, "artifacts")
	require.NoError(t, os.MkdirAll(filepath.Join(modelDir, "lib"), 0o755))
	bundled := filepath.Join(modelDir, "lib", libraryName())
	require.NoError(t, os.WriteFile(bundled, []byte{}, 0o644))
	t.Setenv(libraryPathEnvName, "")
	got, err = ResolveLibraryPath("", filepath.Join(modelDir, "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, bundled, got)
}

func TestNewONNXMissingModel(t *testing.T) {
	_, err := NewONNX(ONNXConfig{ModelPath: filepath.Join(t.TempDir(), "none.onnx"), NumClasses: 3}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}
