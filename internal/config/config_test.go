package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bidwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_Defaults tests that an empty path yields valid defaults.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interval != time.Minute || cfg.MaxWatchers != 20 || cfg.Backoff != 10*time.Second {
		t.Errorf("scheduling defaults = %v %d %v", cfg.Interval, cfg.MaxWatchers, cfg.Backoff)
	}
	if cfg.InactivityMinutes() != 10 {
		t.Errorf("InactivityMinutes = %d, want 10", cfg.InactivityMinutes())
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
	if cfg.SlowQuery != 50*time.Millisecond || cfg.SlowRequest != 200*time.Millisecond {
		t.Errorf("slow thresholds = %v %v", cfg.SlowQuery, cfg.SlowRequest)
	}
}

// TestLoad_YAML tests file values including durations and lists.
func TestLoad_YAML(t *testing.T) {
	path := writeTempConfig(t, `
db_path: /tmp/bids.db
my_name: Tay
seller_aliases: [Shop Owner, Admin Page]
interval: 45s
inactivity_threshold: 15m
notify_to:
  - me@example.com
log_level: debug
slow_query: 20ms
slow_request: 1s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/bids.db" || cfg.MyName != "Tay" || cfg.Interval != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"Shop Owner", "Admin Page"}, cfg.SellerAliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if cfg.InactivityMinutes() != 15 || cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("threshold=%d level=%v", cfg.InactivityMinutes(), cfg.SlogLevel())
	}
	if cfg.SlowQuery != 20*time.Millisecond || cfg.SlowRequest != time.Second {
		t.Errorf("slow thresholds = %v %v", cfg.SlowQuery, cfg.SlowRequest)
	}
}

// TestLoad_EnvOverrides tests BIDWATCH_* precedence over the file.
func TestLoad_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "my_name: FromFile\ninterval: 45s\n")
	t.Setenv("BIDWATCH_MY_NAME", "FromEnv")
	t.Setenv("BIDWATCH_INTERVAL", "2m")
	t.Setenv("BIDWATCH_NOTIFY_TO", "a@example.com, b@example.com,")
	t.Setenv("BIDWATCH_HEADLESS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MyName != "FromEnv" || cfg.Interval != 2*time.Minute || cfg.BrowserHeadless {
		t.Errorf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, cfg.NotifyTo); diff != "" {
		t.Errorf("notify_to mismatch (-want +got):\n%s", diff)
	}
}

// TestValidate tests rejection of invalid settings.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short interval", func(c *Config) { c.Interval = 10 * time.Second }, "interval"},
		{"no watchers", func(c *Config) { c.MaxWatchers = 0 }, "max_watchers"},
		{"bad csrf", func(c *Config) { c.CSRFKey = "abc" }, "csrf_key"},
		{"production without csrf", func(c *Config) { c.Env = "production" }, "csrf_key"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"empty db", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"zero slow query", func(c *Config) { c.SlowQuery = 0 }, "slow_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

// TestLoad_Errors tests unreadable and malformed files.
func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeTempConfig(t, "interval: [not a duration\n")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

// TestCSRFSecret tests configured and generated keys.
func TestCSRFSecret(t *testing.T) {
	cfg := Defaults()
	cfg.CSRFKey = strings.Repeat("ab", 32)
	key, err := cfg.CSRFSecret()
	if err != nil || len(key) != 32 || key[0] != 0xab {
		t.Errorf("configured key = %x, %v", key, err)
	}
	cfg.CSRFKey = ""
	key, err = cfg.CSRFSecret()
	if err != nil || len(key) != 32 {
		t.Errorf("generated key = %x, %v", key, err)
	}
}
