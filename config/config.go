// Package config holds the service configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Tutortoise/rice-leaf-service/logging"
	"github.com/Tutortoise/rice-leaf-service/models"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ModelConfig struct {
	Path           string        `mapstructure:"path"`
	ClassNamesPath string        `mapstructure:"class_names_path"`
	LibraryPath    string        `mapstructure:"onnxruntime_library"`
	InputSize      int           `mapstructure:"input_size"`
	Layout         string        `mapstructure:"layout"`
	PixelScale     float64       `mapstructure:"pixel_scale"`
	ApplySoftmax   bool          `mapstructure:"apply_softmax"`
	InputName      string        `mapstructure:"input_name"`
	OutputName     string        `mapstructure:"output_name"`
	PoolSize       int           `mapstructure:"pool_size"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	IntraOpThreads int           `mapstructure:"intra_op_threads"`
	LazyLoad       bool          `mapstructure:"lazy_load"`
}

type InferenceConfig struct {
	TopK    int `mapstructure:"top_k"`
	Workers int `mapstructure:"workers"`
}

type AuthConfig struct {
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	RefreshStore   string        `mapstructure:"refresh_store"`
	ProtectPredict bool          `mapstructure:"protect_predict"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Window            time.Duration `mapstructure:"window"`
	MaxRequests       int           `mapstructure:"max_requests"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
	Backend           string        `mapstructure:"backend"`
	Paths             []string      `mapstructure:"paths"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Inference InferenceConfig `mapstructure:"inference"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       logging.Config  `mapstructure:"log"`
}

// UsesRedis reports whether any store is configured to use Redis.
func (c *Config) UsesRedis() bool {
	return c.Auth.RefreshStore == BackendRedis || (c.RateLimit.Enabled && c.RateLimit.Backend == BackendRedis)
}

// Validate checks structural settings. Credential strength is checked separately
// by auth.ValidateSecurity when the HTTP surface starts.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.MaxUploadBytes > 0, "server.max_upload_bytes must be positive")

	check(c.Model.Path != "", "model.path is required")
	check(c.Model.ClassNamesPath != "", "model.class_names_path is required")
	check(c.Model.InputSize > 0, "model.input_size must be positive")
	check(c.Model.Layout == "nhwc" || c.Model.Layout == "nchw", "model.layout must be nhwc or nchw, got %q", c.Model.Layout)
	check(c.Model.PixelScale > 0, "model.pixel_scale must be positive")
	check(c.Model.PoolSize > 0, "model.pool_size must be positive")
	check(c.Model.AcquireTimeout > 0, "model.acquire_timeout must be positive")

	check(c.Inference.TopK > 0, "inference.top_k must be positive")
	check(c.Inference.Workers >= 0, "inference.workers must not be negative")

	check(c.Auth.AccessTTL > 0, "auth.access_ttl must be positive")
	check(c.Auth.RefreshTTL > 0, "auth.refresh_ttl must be positive")
	check(validBackend(c.Auth.RefreshStore), "auth.refresh_store must be memory or redis, got %q", c.Auth.RefreshStore)

	if c.RateLimit.Enabled {
		check(c.RateLimit.Window > 0, "rate_limit.window must be positive")
		check(c.RateLimit.MaxRequests > 0, "rate_limit.max_requests must be positive")
		check(validBackend(c.RateLimit.Backend), "rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}

	if c.UsesRedis() {
		check(c.Redis.Addr != "", "redis.addr is required when a redis backend is selected")
	}

	if err := errors.Join(errs...); err != nil {
		return models.Configuration("invalid configuration", err)
	}
	return nil
}

func validBackend(name string) bool {
	return slices.Contains([]string{BackendMemory, BackendRedis}, name)
}
