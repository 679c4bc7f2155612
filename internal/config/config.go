package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all decaytrack configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Model    ModelConfig    `toml:"model"`
	Alerts   AlertsConfig   `toml:"alerts"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ModelConfig holds the tunable constants of the decay formula.
type ModelConfig struct {
	BaseK           float64 `toml:"base_k"`           // per-day rate at baseline, ln2/14 by default
	SleepPenalty    float64 `toml:"sleep_penalty"`    // sleep_factor(S) = 1 + penalty*(1-S)
	PracticeWeight  float64 `toml:"practice_weight"`  // usage_frequency increment per practice review
	RevisionWeight  float64 `toml:"revision_weight"`  // revision_frequency increment per passive review
	ForgetThreshold float64 `toml:"forget_threshold"` // retention % considered forgotten
}

type AlertsConfig struct {
	Enabled       bool    `toml:"enabled"`
	RedisURL      string  `toml:"redis_url"` // empty: alerts are logged only
	Stream        string  `toml:"stream"`
	Group         string  `toml:"group"`
	Threshold     float64 `toml:"threshold"`      // retention % below which an alert fires
	IntervalHours int     `toml:"interval_hours"` // decay check period
}

type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`   // empty: dev mode, X-User-ID is trusted
	DefaultUser string `toml:"default_user"` // dev mode only, when no X-User-ID is sent
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38383,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Model: ModelConfig{
			BaseK:           math.Ln2 / 14,
			SleepPenalty:    2.5,
			PracticeWeight:  2,
			RevisionWeight:  1,
			ForgetThreshold: 10,
		},
		Alerts: AlertsConfig{
			Enabled:       true,
			Stream:        "decay_alerts",
			Group:         "workers",
			Threshold:     60,
			IntervalHours: 6,
		},
		Auth: AuthConfig{
			DefaultUser: "1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config path: ~/.decaytrack/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".decaytrack", "config.toml"), nil
}

// Load reads defaults, then the TOML file at path (if it exists), then a
// .env file in the working directory, then DECAYTRACK_* environment overrides.
// An empty path means DefaultPath().
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DECAYTRACK_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DECAYTRACK_REDIS_URL"); v != "" {
		c.Alerts.RedisURL = v
	}
	if v := os.Getenv("DECAYTRACK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DECAYTRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DECAYTRACK_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DECAYTRACK_PORT must be an integer, got %q", v)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	m := c.Model
	if m.BaseK <= 0 {
		return fmt.Errorf("config: model.base_k must be positive, got %g", m.BaseK)
	}
	if m.SleepPenalty <= 0 {
		return fmt.Errorf("config: model.sleep_penalty must be positive, got %g", m.SleepPenalty)
	}
	if m.PracticeWeight <= 0 || m.RevisionWeight <= 0 {
		return fmt.Errorf("config: model practice/revision weights must be positive")
	}
	if m.ForgetThreshold <= 0 || m.ForgetThreshold >= 100 {
		return fmt.Errorf("config: model.forget_threshold must be in (0,100), got %g", m.ForgetThreshold)
	}
	if c.Alerts.IntervalHours < 1 {
		return fmt.Errorf("config: alerts.interval_hours must be at least 1, got %d", c.Alerts.IntervalHours)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
