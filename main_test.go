package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tutortoise/rice-leaf-service/imageio"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPredictor struct {
	pred *models.Prediction
	err  error
	topK int
}

func (f *fixedPredictor) Predict(_ context.Context, _ image.Image, topK int) (*models.Prediction, error) {
	f.topK = topK
	return f.pred, f.err
}

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", models.Input("missing", imageio.ErrNotFound), exitImageNotFound},
		{"invalid", models.Input("bad", errors.Join(imageio.ErrInvalidImage, errors.New("eof"))), exitInvalidImage},
		{"empty", models.Input("empty", models.ErrEmptyImage), exitInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ee *exitError
			require.ErrorAs(t, classifyExit(tt.err), &ee)
			assert.Equal(t, tt.code, ee.code)
		})
	}

	other := errors.New("boom")
	assert.Same(t, other, classifyExit(other))
}

func TestPredictImageWritesJSON(t *testing.T) {
	p := &fixedPredictor{pred: &models.Prediction{
		PredictedClass: "blast",
		Confidence:     0.9,
		ViewCount:      5,
	}}

	var out bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	require.NoError(t, predictImage(context.Background(), p, img, 2, &out))
	assert.Equal(t, 2, p.topK)

	var got models.Prediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "blast", got.PredictedClass)
	assert.Equal(t, 5, got.ViewCount)
}

func TestPredictImageMapsErrors(t *testing.T) {
	p := &fixedPredictor{err: models.Input("empty", models.ErrEmptyImage)}
	err := predictImage(context.Background(), p, image.NewNRGBA(image.Rect(0, 0, 1, 1)), 3, &bytes.Buffer{})

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, exitInvalidImage, ee.code)
}

func TestRunExitCodes(t *testing.T) {
	t.Setenv("RICELEAF_CONFIG", "")
	dir := t.TempDir()

	garbage := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))

	assert.Equal(t, exitImageNotFound, run([]string{"predict", "--image", filepath.Join(dir, "missing.jpg")}))
	assert.Equal(t, exitInvalidImage, run([]string{"predict", "--image", garbage}))
	assert.Equal(t, exitFailure, run([]string{"predict"}))
	assert.Equal(t, exitFailure, run([]string{"no-such-command"}))
}
