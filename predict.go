package main

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"

	"github.com/Tutortoise/rice-leaf-service/api"
	"github.com/Tutortoise/rice-leaf-service/imageio"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPredictCommand(flags *globalFlags) *cobra.Command {
	var (
		imagePath string
		topK      int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify a single image and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// Fail on a bad path before paying for model load.
			img, err := imageio.Open(imagePath)
			if err != nil {
				return classifyExit(err)
			}

			predictor, model, err := buildPredictor(cfg, logger)
			if err != nil {
				return err
			}
			defer model.Close()

			logger.Debug("predicting", zap.String("image", imagePath), zap.Int("top_k", topK))
			return predictImage(cmd.Context(), predictor, img, topK, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the leaf image")
	cmd.Flags().IntVar(&topK, "top-k", 3, "number of ranked classes to report")
	cmd.MarkFlagRequired("image")
	return cmd
}

func predictImage(ctx context.Context, p api.Predictor, img image.Image, topK int, w io.Writer) error {
	pred, err := p.Predict(ctx, img, topK)
	if err != nil {
		return classifyExit(err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}

// classifyExit maps image loading failures to their exit codes.
func classifyExit(err error) error {
	switch {
	case errors.Is(err, imageio.ErrNotFound):
		return &exitError{code: exitImageNotFound, err: err}
	case errors.Is(err, imageio.ErrInvalidImage), errors.Is(err, models.ErrEmptyImage):
		return &exitError{code: exitInvalidImage, err: err}
	}
	return err
}
