// Package config loads consoom settings from YAML or TOML, with .env and
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as "30s", "1h" in both
// YAML and TOML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

type Config struct {
	Database struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"database" toml:"database"`

	Sync struct {
		Interval        Duration `yaml:"interval" toml:"interval"`
		FetchTimeout    Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
		UserAgent       string   `yaml:"user_agent" toml:"user_agent"`
		BreakerFailures uint32   `yaml:"breaker_failures" toml:"breaker_failures"`
		BreakerCooldown Duration `yaml:"breaker_cooldown" toml:"breaker_cooldown"`
	} `yaml:"sync" toml:"sync"`

	Server struct {
		Addr                string `yaml:"addr" toml:"addr"`
		ImportRatePerMinute int    `yaml:"import_rate_per_minute" toml:"import_rate_per_minute"`
	} `yaml:"server" toml:"server"`

	Auth struct {
		JWTSecret string   `yaml:"jwt_secret" toml:"jwt_secret"`
		TokenTTL  Duration `yaml:"token_ttl" toml:"token_ttl"`
	} `yaml:"auth" toml:"auth"`

	Cron struct {
		Secret string `yaml:"secret" toml:"secret"`
	} `yaml:"cron" toml:"cron"`

	Goals struct {
		MovieTarget int `yaml:"movie_target" toml:"movie_target"`
		BookTarget  int `yaml:"book_target" toml:"book_target"`
	} `yaml:"goals" toml:"goals"`

	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./consoom.db"
	cfg.Sync.Interval = Duration(time.Hour)
	cfg.Sync.FetchTimeout = Duration(30 * time.Second)
	cfg.Sync.UserAgent = "Consoom/1.0"
	cfg.Sync.BreakerFailures = 5
	cfg.Sync.BreakerCooldown = Duration(2 * time.Minute)
	cfg.Server.Addr = ":8080"
	cfg.Server.ImportRatePerMinute = 20
	cfg.Auth.TokenTTL = Duration(720 * time.Hour)
	cfg.Goals.MovieTarget = 52
	cfg.Goals.BookTarget = 24
	cfg.Log.Level = "info"
	cfg.Log.Format = "auto"
	return cfg
}

// Load reads path on top of the defaults. A missing file is not an error.
// A .env file in the working directory is loaded first, without replacing
// variables already set, and CONSOOM_* variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Database.Path, "CONSOOM_DB_PATH")
	setString(&c.Auth.JWTSecret, "CONSOOM_JWT_SECRET")
	setString(&c.Cron.Secret, "CONSOOM_CRON_SECRET")
	setString(&c.Server.Addr, "CONSOOM_LISTEN_ADDR")
	setString(&c.Log.Level, "CONSOOM_LOG_LEVEL")
	setString(&c.Log.Format, "CONSOOM_LOG_FORMAT")
}

// Write saves cfg to path in the format implied by its extension, creating
// parent directories. It refuses to overwrite an existing file.
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	// The file can carry secrets.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
