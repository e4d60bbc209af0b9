package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	TwoCaptcha TwoCaptchaConfig `yaml:"twocaptcha" mapstructure:"twocaptcha"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Predict    PredictConfig    `yaml:"predict" mapstructure:"predict"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig configures the racing-data source client.
type SourceConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	PageTimeoutSecs int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	SnapshotDir     string  `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// TwoCaptchaConfig holds captcha provider credentials.
type TwoCaptchaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds settings for the optional commentary layer.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SessionConfig configures coordinator behavior.
type SessionConfig struct {
	ProfileWorkers    int `yaml:"profile_workers" mapstructure:"profile_workers"`
	GlobalTimeoutMins int `yaml:"global_timeout_mins" mapstructure:"global_timeout_mins"`
	BreakerThreshold  int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// PredictConfig configures the prediction engine.
type PredictConfig struct {
	WeightsFile string `yaml:"weights_file" mapstructure:"weights_file"`
}

// ServerConfig configures the status-poll server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunConfig carries the parameters of one analysis run. It is threaded
// explicitly through every component call, never read from ambient state.
type RunConfig struct {
	SessionID        string // optional; generated when empty
	Track            string
	Date             string // provider format MM/DD/YYYY after normalization
	Model            string
	MaxHorses        int // 0 = unlimited; caps the worklist for bounded test runs
	BreakerThreshold int
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RACEDAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "raceday.db")
	v.SetDefault("source.base_url", "https://www.equibase.com")
	v.SetDefault("source.page_timeout_secs", 12)
	v.SetDefault("source.requests_per_sec", 1.0)
	v.SetDefault("source.snapshot_dir", "logs/html")
	v.SetDefault("twocaptcha.base_url", "https://2captcha.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("session.profile_workers", 8)
	v.SetDefault("session.global_timeout_mins", 30)
	v.SetDefault("session.breaker_threshold", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
