package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"portfoliowatch/internal/logging"
)

type Server struct {
	Port              string `json:"port" toml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" toml:"request_timeout_sec"`
	// AdminToken guards the mutating position routes when set.
	AdminToken string `json:"admin_token" toml:"admin_token"`
}

type Binance struct {
	BaseURL              string `json:"base_url" toml:"base_url"`
	RefreshIntervalMs    int    `json:"refresh_interval_ms" toml:"refresh_interval_ms"`
	RequestTimeoutMs     int    `json:"request_timeout_ms" toml:"request_timeout_ms"`
	MaxConcurrency       int    `json:"max_concurrency" toml:"max_concurrency"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" toml:"max_requests_per_minute"`
	Burst                int    `json:"burst" toml:"burst"`
	MinRequestIntervalMs int    `json:"min_request_interval_ms" toml:"min_request_interval_ms"`
	QuoteCacheTTLSec     int    `json:"quote_cache_ttl_sec" toml:"quote_cache_ttl_sec"`
	QuoteCacheMaxItems   int    `json:"quote_cache_max_items" toml:"quote_cache_max_items"`
}

func (b Binance) RefreshInterval() time.Duration {
	return time.Duration(b.RefreshIntervalMs) * time.Millisecond
}

func (b Binance) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutMs) * time.Millisecond
}

func (b Binance) MinRequestInterval() time.Duration {
	return time.Duration(b.MinRequestIntervalMs) * time.Millisecond
}

func (b Binance) QuoteCacheTTL() time.Duration {
	return time.Duration(b.QuoteCacheTTLSec) * time.Second
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Store struct {
	Driver      string `json:"driver" toml:"driver"`
	DatabaseURL string `json:"database_url" toml:"database_url"`
	// SeedDemo fills an empty store with the sample positions.
	SeedDemo bool `json:"seed_demo" toml:"seed_demo"`
}

type Config struct {
	Server  Server         `json:"server" toml:"server"`
	Binance Binance        `json:"binance" toml:"binance"`
	Store   Store          `json:"store" toml:"store"`
	Logging logging.Config `json:"logging" toml:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Binance: Binance{
			BaseURL:              "https://api.binance.com",
			RefreshIntervalMs:    60000,
			RequestTimeoutMs:     10000,
			MaxConcurrency:       8,
			MaxRequestsPerMinute: 600,
			Burst:                20,
			QuoteCacheTTLSec:     30,
			QuoteCacheMaxItems:   5000,
		},
		Store:   Store{Driver: DriverMemory, SeedDemo: true},
		Logging: logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads config from path, JSON or TOML by extension. With an empty path
// CONFIG_FILE is used, then config.toml or config.json in the working
// directory when present; otherwise defaults. Environment variables override
// file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		for _, candidate := range []string{"config.toml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, b []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(b, cfg)
	}
	return json.Unmarshal(b, cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Port) == "":
		return errors.New("config: server.port is empty")
	case c.Server.RequestTimeoutSec <= 0:
		return errors.New("config: server.request_timeout_sec must be positive")
	case c.Binance.BaseURL == "":
		return errors.New("config: binance.base_url is empty")
	case c.Binance.RefreshIntervalMs <= 0:
		return errors.New("config: binance.refresh_interval_ms must be positive")
	case c.Binance.RequestTimeoutMs < 0:
		return errors.New("config: binance.request_timeout_ms must not be negative")
	case c.Binance.MaxRequestsPerMinute < 0 || c.Binance.MinRequestIntervalMs < 0:
		return errors.New("config: binance rate limits must not be negative")
	case c.Binance.QuoteCacheTTLSec < 0:
		return errors.New("config: binance.quote_cache_ttl_sec must not be negative")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PORT", &cfg.Server.Port},
		{"ADMIN_TOKEN", &cfg.Server.AdminToken},
		{"BINANCE_BASE_URL", &cfg.Binance.BaseURL},
		{"STORE_DRIVER", &cfg.Store.Driver},
		{"DATABASE_URL", &cfg.Store.DatabaseURL},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"LOG_FORMAT", &cfg.Logging.Format},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec},
		{"PRICE_REFRESH_INTERVAL_MS", &cfg.Binance.RefreshIntervalMs},
		{"PRICE_REQUEST_TIMEOUT_MS", &cfg.Binance.RequestTimeoutMs},
		{"BINANCE_MAX_CONCURRENCY", &cfg.Binance.MaxConcurrency},
		{"BINANCE_MAX_RPM", &cfg.Binance.MaxRequestsPerMinute},
		{"BINANCE_BURST", &cfg.Binance.Burst},
		{"BINANCE_MIN_INTERVAL_MS", &cfg.Binance.MinRequestIntervalMs},
		{"QUOTE_CACHE_TTL_SEC", &cfg.Binance.QuoteCacheTTLSec},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		x, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", i.key, err)
		}
		*i.dst = x
	}

	if v := os.Getenv("SEED_DEMO"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			cfg.Store.SeedDemo = true
		case "0", "false", "no", "n":
			cfg.Store.SeedDemo = false
		}
	}
	return nil
}
