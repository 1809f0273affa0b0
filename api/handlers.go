package api

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/Tutortoise/rice-leaf-service/auth"
	"github.com/Tutortoise/rice-leaf-service/imageio"
	"github.com/Tutortoise/rice-leaf-service/models"
	"go.uber.org/zap"
)

// Predictor is the prediction pipeline the handlers drive.
type Predictor interface {
	Predict(ctx context.Context, img image.Image, topK int) (*models.Prediction, error)
}

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	Authenticate(accessToken string) (string, error)
}

type PredictionResponse struct {
	*models.Prediction
	Message string `json:"message"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type handlers struct {
	predictor      Predictor
	auth           Authenticator
	maxUploadBytes int64
	logger         *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			sendErrorResponse(w, "invalid_request", "top_k must be an integer.", err.Error(), http.StatusBadRequest)
			return
		}
		topK = n
	}

	data, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		sendErrorResponse(w, "invalid_request", "Please upload a non-empty image file.", err.Error(), http.StatusBadRequest)
		return
	}

	decodeStart := time.Now()
	img, format, err := imageio.DecodeBytes(data)
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Invalid image format.", err.Error(), http.StatusBadRequest)
		return
	}
	decodeTime := time.Since(decodeStart)

	prediction, err := h.predictor.Predict(r.Context(), img, topK)
	if err != nil {
		h.logger.Error("prediction failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		sendError(w, err)
		return
	}

	h.logger.Debug("image decoded",
		zap.String("request_id", requestID(r.Context())),
		zap.String("format", format),
		zap.Int("bytes", len(data)),
		zap.Duration("decode", decodeTime),
	)

	writeJSON(w, http.StatusOK, PredictionResponse{
		Prediction: prediction,
		Message:    predictionMessage(prediction),
	})
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		sendErrorResponse(w, "invalid_request", "username and password are required.", "", http.StatusBadRequest)
		return
	}

	tokens, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if !auth.IsAuthError(err) {
			h.logger.Error("login failed", zap.Error(err))
		}
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		sendErrorResponse(w, "invalid_request", "refreshToken is required.", "", http.StatusBadRequest)
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if !auth.IsAuthError(err) {
			h.logger.Error("refresh failed", zap.Error(err))
		}
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}
