// Package api serves predictions and token endpoints over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// APIPrefix is the versioned mount point. Every route is also served unprefixed.
const APIPrefix = "/api/v1"

const defaultMaxUploadBytes = 10 << 20

type Options struct {
	Predictor Predictor
	Auth      Authenticator
	// Metrics serves /metrics when set. It also receives per-route request counts.
	Metrics interface {
		RequestObserver
		Handler() http.Handler
	}
	// RateLimit wraps the router when set.
	RateLimit      func(http.Handler) http.Handler
	AllowedOrigins []string
	ProtectPredict bool
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewHandler builds the full HTTP handler: request logging, CORS and rate limiting
// around the mux router.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger.Named("api")
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	h := &handlers{
		predictor:      opts.Predictor,
		auth:           opts.Auth,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         logger,
	}

	r := mux.NewRouter()
	if opts.Metrics != nil {
		r.Use(withMetrics(opts.Metrics))
	}
	registerRoutes(r, h, opts)
	registerRoutes(r.PathPrefix(APIPrefix).Subrouter(), h, opts)

	var handler http.Handler = r
	if opts.RateLimit != nil {
		handler = opts.RateLimit(handler)
	}
	handler = withCORS(opts.AllowedOrigins, handler)
	return withRequestLogging(logger, handler)
}

func registerRoutes(r *mux.Router, h *handlers, opts Options) {
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.handleRefresh).Methods(http.MethodPost)

	var predict http.Handler = http.HandlerFunc(h.handlePredict)
	if opts.ProtectPredict {
		predict = requireBearer(opts.Auth, predict)
	}
	r.Handle("/predict", predict).Methods(http.MethodPost)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}
}
