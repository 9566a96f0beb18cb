// Package config loads the application configuration from config.yaml, the
// QAEVAL_ environment prefix and built-in defaults, in that order of
// precedence (env wins).
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Classifier ServiceConfig    `yaml:"classifier" mapstructure:"classifier"`
	Scoring    ServiceConfig    `yaml:"scoring" mapstructure:"scoring"`
	Assistants AssistantsConfig `yaml:"assistants" mapstructure:"assistants"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the enrichment database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig points at the read-only production Q&A log.
type SourceConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// SyncConfig tunes the incremental synchronizer.
type SyncConfig struct {
	BatchLimit int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// ServiceConfig holds settings for one external HTTP service.
type ServiceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call deadline.
func (c ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AssistantsConfig locates the assistant roster file. Empty path means the
// embedded default roster.
type AssistantsConfig struct {
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// AnthropicConfig holds Anthropic API settings for SDK-backed assistants.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig holds the static phase tuning; the runtime tunables store
// can override each value with delayed effect.
type PipelineConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	BadcaseThreshold int `yaml:"badcase_threshold" mapstructure:"badcase_threshold"`
}

// SchedulerConfig configures the phase tick loop.
type SchedulerConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	MinBacklog   int `yaml:"min_backlog" mapstructure:"min_backlog"`
}

// Interval returns the tick interval.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QAEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("source.table", "qa_logs.conversations")
	v.SetDefault("sync.batch_limit", 1000)
	v.SetDefault("classifier.base_url", "http://localhost:8081")
	v.SetDefault("classifier.rps", 10)
	v.SetDefault("classifier.timeout_secs", 30)
	v.SetDefault("scoring.base_url", "http://localhost:8082")
	v.SetDefault("scoring.rps", 5)
	v.SetDefault("scoring.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.badcase_threshold", 3)
	v.SetDefault("scheduler.interval_secs", 60)
	v.SetDefault("scheduler.min_backlog", 1)
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

// Validate checks that the configuration is usable for the given mode.
// Modes: "sync" needs the source log; "serve" and "run" need the pipeline
// services; "migrate" needs only the store.
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "migrate":
		needStore()
	case "sync":
		needStore()
		if c.Source.DatabaseURL == "" {
			problems = append(problems, "source.database_url is required")
		}
	case "run", "serve":
		needStore()
		if c.Classifier.BaseURL == "" {
			problems = append(problems, "classifier.base_url is required")
		}
		if c.Scoring.BaseURL == "" {
			problems = append(problems, "scoring.base_url is required")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 64 {
			problems = append(problems, "pipeline.concurrency must be between 1 and 64")
		}
		if c.Pipeline.BadcaseThreshold < 1 || c.Pipeline.BadcaseThreshold > 5 {
			problems = append(problems, "pipeline.badcase_threshold must be between 1 and 5")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if mode == "serve" && c.Source.DatabaseURL == "" {
			problems = append(problems, "source.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
