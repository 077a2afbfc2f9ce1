package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/logging"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moex.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.ISS.PageSize != 100 {
		t.Errorf("ISS.PageSize = %d, want 100", cfg.ISS.PageSize)
	}
	if cfg.Sweep.Board != "TQCB" {
		t.Errorf("Sweep.Board = %q, want TQCB", cfg.Sweep.Board)
	}
	if cfg.RedisOptions() != nil {
		t.Error("Redis should be disabled by default")
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.ISS.BaseURL != "https://iss.moex.com/iss" {
		t.Errorf("ISS.BaseURL = %q", cfg.ISS.BaseURL)
	}
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	path := writeFile(t, `
iss:
  user_agent: "bond-screener/2.0"
  timeout: 10s
retry:
  listing_max_attempts: 50
  detail_delay: 1s
redis:
  enabled: true
  addr: "redis:6379"
  password: "${TEST_REDIS_PASSWORD}"
sweep:
  concurrency: 4
log:
  level: debug
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.ISS.UserAgent != "bond-screener/2.0" {
		t.Errorf("ISS.UserAgent = %q", cfg.ISS.UserAgent)
	}
	if cfg.ISS.Timeout != 10*time.Second {
		t.Errorf("ISS.Timeout = %v, want 10s", cfg.ISS.Timeout)
	}
	if cfg.ISS.PageSize != 100 {
		t.Errorf("ISS.PageSize = %d, default should survive a partial file", cfg.ISS.PageSize)
	}
	if cfg.Redis.Password != "s3cret" {
		t.Errorf("Redis.Password = %q, want expanded value", cfg.Redis.Password)
	}

	opts := cfg.RedisOptions()
	if opts == nil || opts.Addr != "redis:6379" {
		t.Errorf("RedisOptions() = %+v", opts)
	}

	listing := cfg.ListingPolicy()
	if listing.MaxAttempts != 50 || listing.Delay != 5*time.Second {
		t.Errorf("ListingPolicy() = %+v", listing)
	}
	detail := cfg.DetailPolicy()
	if detail.MaxAttempts != 3 || detail.Delay != time.Second {
		t.Errorf("DetailPolicy() = %+v", detail)
	}

	bc := cfg.BondsConfig()
	if bc.Concurrency != 4 || bc.Board != "TQCB" {
		t.Errorf("BondsConfig() = %+v", bc)
	}

	if lc := cfg.LoggingConfig(); lc.Level != logging.LevelDebug {
		t.Errorf("LoggingConfig().Level = %q, want debug", lc.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
iss:
  user_agent: "from-file"
sweep:
  board: TQOB
`)
	t.Setenv("MOEX_ISS_USER_AGENT", "from-env")
	t.Setenv("MOEX_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MOEX_RETRY_LISTING_MAX_ELAPSED", "30m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ISS.UserAgent != "from-env" {
		t.Errorf("ISS.UserAgent = %q, want from-env", cfg.ISS.UserAgent)
	}
	if cfg.Sweep.Board != "TQOB" {
		t.Errorf("Sweep.Board = %q, want TQOB from file", cfg.Sweep.Board)
	}
	if cfg.RateLimit.RPS != 2.5 {
		t.Errorf("RateLimit.RPS = %v, want 2.5", cfg.RateLimit.RPS)
	}
	if cfg.Retry.ListingMaxElapsed != 30*time.Minute {
		t.Errorf("Retry.ListingMaxElapsed = %v, want 30m", cfg.Retry.ListingMaxElapsed)
	}

	cc := cfg.ClientConfig(nil)
	if cc.UserAgent != "from-env" || cc.RateLimit != 2.5 {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeFile(t, "iss: [not, a, map]")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoadAndValidate_RejectsForeignPageSize(t *testing.T) {
	for _, size := range []string{"50", "200"} {
		t.Run(size, func(t *testing.T) {
			path := writeFile(t, "iss:\n  page_size: "+size+"\n")
			if _, err := LoadAndValidate(path); err == nil || !strings.Contains(err.Error(), "iss.page_size") {
				t.Errorf("LoadAndValidate() error = %v, want iss.page_size rejection", err)
			}
		})
	}

	path := writeFile(t, "iss:\n  page_size: 100\n")
	if _, err := LoadAndValidate(path); err != nil {
		t.Errorf("LoadAndValidate() with the ISS page size error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"relative base url", func(c *Config) { c.ISS.BaseURL = "iss.moex.com" }, "iss.base_url"},
		{"empty user agent", func(c *Config) { c.ISS.UserAgent = "" }, "iss.user_agent"},
		{"zero page size", func(c *Config) { c.ISS.PageSize = 0 }, "iss.page_size"},
		{"page size above ISS pages", func(c *Config) { c.ISS.PageSize = 200 }, "iss.page_size"},
		{"page size below ISS pages", func(c *Config) { c.ISS.PageSize = 50 }, "iss.page_size"},
		{"negative listing attempts", func(c *Config) { c.Retry.ListingMaxAttempts = -1 }, "retry.listing_max_attempts"},
		{"zero detail attempts", func(c *Config) { c.Retry.DetailMaxAttempts = 0 }, "retry.detail_max_attempts"},
		{"zero rps", func(c *Config) { c.RateLimit.RPS = 0 }, "rate_limit.rps"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"zero concurrency", func(c *Config) { c.Sweep.Concurrency = 0 }, "sweep.concurrency"},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
