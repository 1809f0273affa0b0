package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Observer is notified of every rejected request.
type Observer interface {
	RateLimited(path string)
}

type Config struct {
	Window            time.Duration
	MaxRequests       int
	TrustForwardedFor bool
	Paths             []string
}

type Limiter struct {
	store    Store
	cfg      Config
	paths    map[string]struct{}
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

func NewLimiter(store Store, cfg Config, observer Observer, logger *zap.Logger) *Limiter {
	paths := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		paths[p] = struct{}{}
	}
	return &Limiter{
		store:    store,
		cfg:      cfg,
		paths:    paths,
		observer: observer,
		logger:   logger.Named("ratelimit"),
		now:      time.Now,
	}
}

// Middleware counts POST requests to the configured paths by client address and
// path. Rejections get 429 with Retry-After in whole seconds, at least 1. When the
// store fails the request is let through and the failure logged.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := l.paths[r.URL.Path]; !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := ClientIP(r, l.cfg.TrustForwardedFor) + ":" + r.URL.Path
		d, err := l.store.Hit(r.Context(), key, l.now(), l.cfg.Window, l.cfg.MaxRequests)
		if err != nil {
			l.logger.Error("rate limit store unavailable", zap.String("key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.MaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		if l.observer != nil {
			l.observer.RateLimited(r.URL.Path)
		}
		l.logger.Debug("request throttled", zap.String("key", key), zap.Duration("retry_after", d.RetryAfter))

		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "rate_limited",
			"message": "Rate limit exceeded. Please retry later.",
		})
	})
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// ClientIP returns the first X-Forwarded-For entry when trusted, else the host part
// of RemoteAddr.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(fwd) != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
