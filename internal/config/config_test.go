package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig tests that defaults are sensible.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	c := NewConfig()

	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.MaxPages != DefaultMaxPages {
		t.Errorf("MaxPages = %d, want %d", c.MaxPages, DefaultMaxPages)
	}
	if c.OutDir != DefaultOutDir {
		t.Errorf("OutDir = %q, want %q", c.OutDir, DefaultOutDir)
	}
	if !c.RespectRobots {
		t.Error("RespectRobots should default to true")
	}
	if c.UserAgent == "" {
		t.Error("UserAgent should have a default")
	}
}

// TestConfigValidate tests validation error cases.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		c := NewConfig()
		c.Targets = []string{"https://example.com/"}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "no targets",
			mutate:  func(c *Config) { c.Targets = nil },
			wantErr: ErrNoTarget,
		},
		{
			name:    "no out dir",
			mutate:  func(c *Config) { c.OutDir = "" },
			wantErr: ErrNoOutDir,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "zero max pages",
			mutate:  func(c *Config) { c.MaxPages = 0 },
			wantErr: ErrInvalidMaxPages,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: ErrInvalidBatchSize,
		},
		{
			name:    "negative max body size",
			mutate:  func(c *Config) { c.MaxBodySize = -1 },
			wantErr: ErrInvalidMaxBodySize,
		},
		{
			name:    "conflicting report formats",
			mutate:  func(c *Config) { c.JSONReport, c.MarkdownReport = true, true },
			wantErr: ErrConflictingReportFormats,
		},
		{
			name:    "conflicting tor modes",
			mutate:  func(c *Config) { c.SocksProxy, c.EmbeddedTor = "127.0.0.1:9050", true },
			wantErr: ErrConflictingTorModes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfigFile tests YAML config loading and site merging.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("got %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("loads and merges site config", func(t *testing.T) {
		t.Parallel()

		content := `defaults:
  userAgent: "default-agent"
  ignorePatterns:
    - "/logout*"
sites:
  example.com:
    cookie: "session=abc"
    restrictPathPrefix: "/docs"
`
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sc := cf.GetSiteConfig("example.com")
		if sc.Cookie != "session=abc" {
			t.Errorf("Cookie = %q, want session=abc", sc.Cookie)
		}
		if sc.UserAgent != "default-agent" {
			t.Errorf("UserAgent = %q, want inherited default", sc.UserAgent)
		}
		if sc.RestrictPathPrefix != "/docs" {
			t.Errorf("RestrictPathPrefix = %q, want /docs", sc.RestrictPathPrefix)
		}
		if len(sc.IgnorePatterns) != 1 || sc.IgnorePatterns[0] != "/logout*" {
			t.Errorf("IgnorePatterns = %v, want inherited defaults", sc.IgnorePatterns)
		}

		other := cf.GetSiteConfig("other.com")
		if other.Cookie != "" {
			t.Errorf("unknown site should only get defaults, got cookie %q", other.Cookie)
		}
	})

	t.Run("site headers do not leak into defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{
				Headers: map[string]string{"X-Base": "1"},
			},
			Sites: map[string]SiteConfig{
				"example.com": {
					Headers: map[string]string{"X-Site": "2"},
				},
			},
		}

		sc := cf.GetSiteConfig("example.com")
		if sc.Headers["X-Base"] != "1" || sc.Headers["X-Site"] != "2" {
			t.Errorf("merged headers = %v, want both X-Base and X-Site", sc.Headers)
		}

		other := cf.GetSiteConfig("other.com")
		if _, ok := other.Headers["X-Site"]; ok {
			t.Error("site-specific header leaked into defaults")
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(":\nnot yaml: ["), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}
