package config

import (
	"fmt"
	"strings"

	"github.com/Tutortoise/rice-leaf-service/logging"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. RICELEAF_MODEL_PATH.
const EnvPrefix = "RICELEAF"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the YAML file at path, applies RICELEAF_* overrides and defaults, and
// validates the result. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, models.Configuration(fmt.Sprintf("failed to read config file %q", path), err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, models.Configuration("failed to decode configuration", err)
	}
	cfg.Model.Layout = strings.ToLower(cfg.Model.Layout)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch reloads path on change and applies the new log level. Other settings
// require a restart. It returns immediately; the watch runs in the background.
func Watch(path string, level zap.AtomicLevel, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	logger = logger.Named("config")

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return models.Configuration(fmt.Sprintf("failed to read config file %q", path), err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		name := v.GetString("log.level")
		lvl, err := logging.ParseLevel(name)
		if err != nil {
			logger.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if lvl != level.Level() {
			level.SetLevel(lvl)
			logger.Info("log level changed", zap.String("file", e.Name), zap.String("op", e.Op.String()), zap.Stringer("level", lvl))
		}
	})
	v.WatchConfig()
	return nil
}
