package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rpggio/fundflow/internal/domain/fee"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FUNDFLOW_"

// Transport modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Transport TransportConfig `yaml:"transport" toml:"transport" envPrefix:"TRANSPORT_"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	DB        DBConfig        `yaml:"db" toml:"db" envPrefix:"DB_"`
	Tokens    DBConfig        `yaml:"tokens" toml:"tokens" envPrefix:"TOKENS_"`
	Log       LogConfig       `yaml:"log" toml:"log" envPrefix:"LOG_"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine" envPrefix:"ENGINE_"`
	NATS      NATSConfig      `yaml:"nats" toml:"nats" envPrefix:"NATS_"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" envPrefix:"METRICS_"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host" env:"HOST"`
	Port int    `yaml:"port" toml:"port" env:"PORT"`
}

type TransportConfig struct {
	Mode string `yaml:"mode" toml:"mode" env:"MODE"`
}

// AuthConfig controls bearer authentication. With auth disabled every caller
// acts as DefaultIdentity.
type AuthConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	DefaultIdentity string `yaml:"default_identity" toml:"default_identity" env:"DEFAULT_IDENTITY"`
}

type DBConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level" env:"LEVEL"`
	// Path sends logs to a size-capped file instead of the console.
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// EngineConfig holds the accounts and fee parameters of the engine.
type EngineConfig struct {
	Authority    string `yaml:"authority" toml:"authority" env:"AUTHORITY"`
	Treasury     string `yaml:"treasury" toml:"treasury" env:"TREASURY"`
	Custody      string `yaml:"custody" toml:"custody" env:"CUSTODY"`
	FeeRate      uint64 `yaml:"fee_rate" toml:"fee_rate" env:"FEE_RATE"`
	FeePrecision uint64 `yaml:"fee_precision" toml:"fee_precision" env:"FEE_PRECISION"`
}

// Fees returns the fee parameters.
func (c EngineConfig) Fees() fee.Config {
	return fee.Config{Rate: c.FeeRate, Precision: c.FeePrecision}
}

type NATSConfig struct {
	// URL enables event publishing to NATS when set.
	URL           string `yaml:"url" toml:"url" env:"URL"`
	SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" toml:"path" env:"PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: ModeHTTP,
		},
		Auth: AuthConfig{
			Enabled:         true,
			DefaultIdentity: "local",
		},
		DB: DBConfig{
			Path: "fundflow.db",
		},
		Tokens: DBConfig{
			Path: "fundflow-tokens.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			Authority:    "dao",
			Treasury:     "treasury",
			Custody:      "fundflow",
			FeeRate:      50,
			FeePrecision: fee.DefaultPrecision,
		},
		NATS: NATSConfig{
			SubjectPrefix: "fundflow.events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, then the file at path (or
// FUNDFLOW_CONFIG_PATH when path is empty), then FUNDFLOW_* variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Transport.Mode {
	case ModeHTTP, ModeStdio:
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q", ModeHTTP, ModeStdio, c.Transport.Mode))
	}
	if c.Transport.Mode == ModeHTTP && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if strings.TrimSpace(c.Tokens.Path) == "" {
		errs = append(errs, errors.New("tokens.path is required"))
	}
	if !c.Auth.Enabled && strings.TrimSpace(c.Auth.DefaultIdentity) == "" {
		errs = append(errs, errors.New("auth.default_identity is required when auth is disabled"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	for name, value := range map[string]string{
		"engine.authority": c.Engine.Authority,
		"engine.treasury":  c.Engine.Treasury,
		"engine.custody":   c.Engine.Custody,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if err := c.Engine.Fees().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Level)
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}
	return nil
}
