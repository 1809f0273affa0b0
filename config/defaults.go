package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAddr           = ":8000"
	DefaultMaxUploadBytes = 10 << 20

	DefaultModelPath      = "models/rice_leaf.onnx"
	DefaultClassNamesPath = "models/class_names.json"
	DefaultInputSize      = 224
	DefaultPoolSize       = 4

	DefaultTopK = 3

	DefaultIssuer     = "rice-disease-api"
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 604800 * time.Second

	DefaultRateWindow      = 60 * time.Second
	DefaultRateMaxRequests = 60

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "riceleaf:"
)

// RateLimitedPaths are the POST routes throttled by default.
var RateLimitedPaths = []string{
	"/predict",
	"/auth/login",
	"/auth/refresh",
	"/api/v1/predict",
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
}

// setDefaults registers every key with viper so environment overrides resolve
// even when the key is absent from the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("model.path", DefaultModelPath)
	v.SetDefault("model.class_names_path", DefaultClassNamesPath)
	v.SetDefault("model.onnxruntime_library", "")
	v.SetDefault("model.input_size", DefaultInputSize)
	v.SetDefault("model.layout", "nhwc")
	v.SetDefault("model.pixel_scale", 1.0)
	v.SetDefault("model.apply_softmax", false)
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")
	v.SetDefault("model.pool_size", DefaultPoolSize)
	v.SetDefault("model.acquire_timeout", 5*time.Second)
	v.SetDefault("model.intra_op_threads", 0)
	v.SetDefault("model.lazy_load", false)

	v.SetDefault("inference.top_k", DefaultTopK)
	v.SetDefault("inference.workers", 0)

	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", DefaultIssuer)
	v.SetDefault("auth.access_ttl", DefaultAccessTTL)
	v.SetDefault("auth.refresh_ttl", DefaultRefreshTTL)
	v.SetDefault("auth.refresh_store", BackendMemory)
	v.SetDefault("auth.protect_predict", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", DefaultRateWindow)
	v.SetDefault("rate_limit.max_requests", DefaultRateMaxRequests)
	v.SetDefault("rate_limit.trust_forwarded_for", false)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.paths", RateLimitedPaths)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stderr"})
}
