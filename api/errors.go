package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Tutortoise/rice-leaf-service/auth"
	"github.com/Tutortoise/rice-leaf-service/classifier"
	"github.com/Tutortoise/rice-leaf-service/models"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func sendErrorResponse(w http.ResponseWriter, code, message, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// sendError maps err onto a status code and error body. Auth failures carry no details.
func sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		sendErrorResponse(w, "invalid_credentials", "Invalid credentials.", "", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrRefreshRevoked):
		sendErrorResponse(w, "invalid_refresh_token", "Refresh token expired or revoked.", "", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken):
		sendErrorResponse(w, "invalid_token", "Invalid or expired token.", "", http.StatusUnauthorized)
	case errors.Is(err, classifier.ErrAcquireTimeout), errors.Is(err, classifier.ErrPoolClosed):
		sendErrorResponse(w, "model_busy", "The model is busy, please retry.", err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		sendErrorResponse(w, "request_cancelled", "The request was cancelled before completion.", err.Error(), http.StatusServiceUnavailable)
	default:
		switch models.KindOf(err) {
		case models.KindInput:
			sendErrorResponse(w, "invalid_image", "The uploaded image could not be used.", err.Error(), http.StatusBadRequest)
		case models.KindConfiguration:
			sendErrorResponse(w, "model_unavailable", "The model is not available.", err.Error(), http.StatusInternalServerError)
		case models.KindInvariant:
			sendErrorResponse(w, "inference_error", "The model returned an unusable result.", err.Error(), http.StatusInternalServerError)
		default:
			sendErrorResponse(w, "processing_error", "Prediction failed.", err.Error(), http.StatusInternalServerError)
		}
	}
}
