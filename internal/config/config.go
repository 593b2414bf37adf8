// Package config loads bidwatch settings from YAML with BIDWATCH_*
// environment overrides.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bidwatch/internal/adapters/http/middleware"
	"bidwatch/internal/adapters/ocr"
	"bidwatch/internal/adapters/storage"
	"bidwatch/internal/domain/activity"
	"bidwatch/internal/domain/watcher"
)

const (
	defaultDBPath     = "bidwatch.db"
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"
	defaultNotifyFrom = "bidwatch <alerts@bidwatch.local>"
	defaultPGConns    = 10
)

// Config defines all runtime configuration.
type Config struct {
	Env string `yaml:"env"` // development or production

	DBPath           string `yaml:"db_path"`
	PostgresDSN      string `yaml:"postgres_dsn"` // selects the Postgres bid store when set
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`

	ListenAddr string `yaml:"listen_addr"`
	CSRFKey    string `yaml:"csrf_key"` // 64 hex characters
	APIToken   string `yaml:"api_token"`

	MyName        string   `yaml:"my_name"`
	SellerAliases []string `yaml:"seller_aliases"`

	Interval            time.Duration `yaml:"interval"`
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	MaxWatchers         int           `yaml:"max_watchers"`
	Backoff             time.Duration `yaml:"backoff"`

	OCRURL       string        `yaml:"ocr_url"`
	OCRCacheSize int           `yaml:"ocr_cache_size"`
	OCRTimeout   time.Duration `yaml:"ocr_timeout"`

	CookiesPath       string        `yaml:"cookies_path"`
	BrowserHeadless   bool          `yaml:"browser_headless"`
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`

	ResendKey  string   `yaml:"resend_key"`
	NotifyFrom string   `yaml:"notify_from"`
	NotifyTo   []string `yaml:"notify_to"`

	LogLevel    string        `yaml:"log_level"`
	SlowQuery   time.Duration `yaml:"slow_query"`   // SQLite statements at or above this log at WARN
	SlowRequest time.Duration `yaml:"slow_request"` // API requests at or above this log at WARN
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Env:                 "development",
		DBPath:              defaultDBPath,
		PostgresMaxConns:    defaultPGConns,
		ListenAddr:          defaultListenAddr,
		Interval:            watcher.DefaultInterval,
		InactivityThreshold: activity.DefaultInactivityMinutes * time.Minute,
		MaxWatchers:         watcher.MaxConcurrent,
		Backoff:             watcher.DefaultBackoff,
		OCRCacheSize:        ocr.DefaultCacheSize,
		OCRTimeout:          30 * time.Second,
		BrowserHeadless:     true,
		NavigationTimeout:   45 * time.Second,
		NotifyFrom:          defaultNotifyFrom,
		LogLevel:            defaultLogLevel,
		SlowQuery:           storage.DefaultSlowQuery,
		SlowRequest:         middleware.DefaultSlowRequest,
	}
}

// Load reads path (when non-empty), applies environment overrides and validates.
// PRE: path is empty or names a readable YAML file
// POST: returned Config passes Validate
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays BIDWATCH_* variables.
func (c *Config) applyEnv() error {
	c.Env = envOrDefault("BIDWATCH_ENV", c.Env)
	c.DBPath = envOrDefault("BIDWATCH_DB", c.DBPath)
	c.PostgresDSN = envOrDefault("BIDWATCH_POSTGRES_DSN", c.PostgresDSN)
	c.ListenAddr = envOrDefault("BIDWATCH_ADDR", c.ListenAddr)
	c.CSRFKey = envOrDefault("BIDWATCH_CSRF_KEY", c.CSRFKey)
	c.APIToken = envOrDefault("BIDWATCH_API_TOKEN", c.APIToken)
	c.MyName = envOrDefault("BIDWATCH_MY_NAME", c.MyName)
	c.OCRURL = envOrDefault("BIDWATCH_OCR_URL", c.OCRURL)
	c.CookiesPath = envOrDefault("BIDWATCH_COOKIES", c.CookiesPath)
	c.ResendKey = envOrDefault("BIDWATCH_RESEND_KEY", c.ResendKey)
	c.NotifyFrom = envOrDefault("BIDWATCH_NOTIFY_FROM", c.NotifyFrom)
	c.LogLevel = envOrDefault("BIDWATCH_LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("BIDWATCH_NOTIFY_TO"); v != "" {
		c.NotifyTo = splitList(v)
	}
	if v := os.Getenv("BIDWATCH_SELLER_ALIASES"); v != "" {
		c.SellerAliases = splitList(v)
	}
	if v := os.Getenv("BIDWATCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BIDWATCH_INTERVAL: %w", err)
		}
		c.Interval = d
	}
	if v := os.Getenv("BIDWATCH_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BIDWATCH_HEADLESS: %w", err)
		}
		c.BrowserHeadless = b
	}
	return nil
}

// Validate ensures configuration is complete and valid.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.Interval < watcher.MinInterval {
		return fmt.Errorf("interval must be at least %s, got %s", watcher.MinInterval, c.Interval)
	}
	if c.InactivityThreshold < time.Minute {
		return errors.New("inactivity_threshold must be at least 1m")
	}
	if c.MaxWatchers <= 0 {
		return errors.New("max_watchers must be positive")
	}
	if c.Backoff <= 0 {
		return errors.New("backoff must be positive")
	}
	if c.SlowQuery <= 0 || c.SlowRequest <= 0 {
		return errors.New("slow_query and slow_request must be positive")
	}
	if c.OCRCacheSize <= 0 {
		return errors.New("ocr_cache_size must be positive")
	}
	if c.PostgresDSN != "" && c.PostgresMaxConns <= 0 {
		return errors.New("postgres_max_conns must be positive")
	}
	if c.CSRFKey != "" {
		if key, err := hex.DecodeString(c.CSRFKey); err != nil || len(key) != 32 {
			return errors.New("csrf_key must be 64 hex characters (32 bytes)")
		}
	} else if c.IsProduction() {
		return errors.New("csrf_key is required in production")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// CSRFSecret returns the configured CSRF key, or a random one for development.
func (c Config) CSRFSecret() ([]byte, error) {
	if c.CSRFKey != "" {
		return hex.DecodeString(c.CSRFKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	slog.Warn("csrf_key_random", "hint", "set BIDWATCH_CSRF_KEY so form tokens survive restarts")
	return key, nil
}

// InactivityMinutes returns the inactivity threshold in whole minutes.
func (c Config) InactivityMinutes() int {
	return int(c.InactivityThreshold / time.Minute)
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error: %q", s)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
