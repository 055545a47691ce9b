// Package config loads application configuration from file, environment,
// and defaults, and initializes the global logger.
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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`                 // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres dsn
}

// PipelineConfig configures cost computation runs.
type PipelineConfig struct {
	LookbackDays int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	RecipeUnit   string `yaml:"recipe_unit" mapstructure:"recipe_unit"` // default unit for auto-created products
}

// ImportConfig configures extract parsing.
type ImportConfig struct {
	Delimiter        string  `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding         string  `yaml:"encoding" mapstructure:"encoding"`
	HasHeader        bool    `yaml:"has_header" mapstructure:"has_header"`
	SheetName        string  `yaml:"sheet_name" mapstructure:"sheet_name"`
	MaxMalformedRate float64 `yaml:"max_malformed_rate" mapstructure:"max_malformed_rate"` // warn above this fraction of skipped rows
}

// FetchConfig configures remote extract downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	PerHostRate float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
	FTPUser     string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// ServerConfig configures the cost query HTTP server.
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
	v.SetEnvPrefix("COST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cost.db")
	v.SetDefault("pipeline.lookback_days", 90)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.recipe_unit", "g")
	v.SetDefault("import.delimiter", ",")
	v.SetDefault("import.encoding", "utf-8")
	v.SetDefault("import.has_header", true)
	v.SetDefault("import.max_malformed_rate", 0.2)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.per_host_rate", 5)
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

// DelimiterRune returns the configured CSV delimiter as a rune, defaulting
// to a comma.
func (c ImportConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return ','
	}
	return []rune(c.Delimiter)[0]
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
