package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/model"
)

// newTestLogger returns a logger that discards all output.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestNewSnapshotCmd tests the snapshot command creation.
func TestNewSnapshotCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates command with correct use", func(t *testing.T) {
		t.Parallel()
		cmd := NewSnapshotCmd()
		if cmd.Use != "snapshot [url...]" {
			t.Errorf("expected Use 'snapshot [url...]', got %q", cmd.Use)
		}
	})

	t.Run("has shared build flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewSnapshotCmd()
		for _, name := range []string{
			"out", "list", "batch", "timeout", "user-agent", "inspect-images",
			"socks-proxy", "tor", "tor-timeout", "config",
			"json", "markdown", "report-file", "no-history",
		} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q to be registered", name)
			}
		}
	})

	t.Run("has no crawl scope flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewSnapshotCmd()
		for _, name := range []string{"max-pages", "follow-subdomains", "restrict-path", "no-robots"} {
			if cmd.Flags().Lookup(name) != nil {
				t.Errorf("expected flag %q to be absent on snapshot", name)
			}
		}
	})
}

// TestNewCrawlCmd tests the crawl command creation.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates command with correct use", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		if cmd.Use != "crawl [url...]" {
			t.Errorf("expected Use 'crawl [url...]', got %q", cmd.Use)
		}
	})

	t.Run("has crawl scope flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		for _, name := range []string{"max-pages", "follow-subdomains", "restrict-path", "no-robots"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q to be registered", name)
			}
		}
	})

	t.Run("has shared build flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		for _, name := range []string{"out", "list", "batch", "timeout", "json"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q to be registered", name)
			}
		}
	})
}

// TestGetVerboseFlag tests the verbose flag retrieval.
func TestGetVerboseFlag(t *testing.T) {
	t.Run("returns false when flag not set", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		if getVerboseFlag(cmd) {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		root := NewRootCmd()
		_ = root.PersistentFlags().Set("verbose", "true")

		snapshotCmd, _, err := root.Find([]string{"snapshot"})
		if err != nil {
			t.Fatalf("failed to find snapshot command: %v", err)
		}

		if !getVerboseFlag(snapshotCmd) {
			t.Error("expected true from parent verbose flag")
		}
	})
}

// TestBuildConfig tests configuration building from flags.
func TestBuildConfig(t *testing.T) {
	t.Run("builds config with default values", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://example.com" {
			t.Errorf("expected targets [https://example.com], got %v", cfg.Targets)
		}
		if cfg.Crawl {
			t.Error("expected Crawl to be false for snapshot")
		}
		if cfg.OutDir != config.DefaultOutDir {
			t.Errorf("expected OutDir %q, got %q", config.DefaultOutDir, cfg.OutDir)
		}
		if cfg.Timeout != config.DefaultTimeout {
			t.Errorf("expected Timeout %v, got %v", config.DefaultTimeout, cfg.Timeout)
		}
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to be true by default")
		}
		if cfg.DBDir == "" {
			t.Error("expected DBDir to be set")
		}
	})

	t.Run("builds config with crawl flags", func(t *testing.T) {
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("max-pages", "50")
		_ = cmd.Flags().Set("follow-subdomains", "true")
		_ = cmd.Flags().Set("restrict-path", "/docs/")
		_ = cmd.Flags().Set("no-robots", "true")

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.Crawl {
			t.Error("expected Crawl to be true")
		}
		if cfg.MaxPages != 50 {
			t.Errorf("expected MaxPages 50, got %d", cfg.MaxPages)
		}
		if !cfg.FollowSubdomains {
			t.Error("expected FollowSubdomains to be true")
		}
		if cfg.RestrictPathPrefix != "/docs/" {
			t.Errorf("expected RestrictPathPrefix '/docs/', got %q", cfg.RestrictPathPrefix)
		}
		if cfg.RespectRobots {
			t.Error("expected RespectRobots to be false with --no-robots")
		}
	})

	t.Run("builds config with custom timeout and user agent", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("timeout", "5s")
		_ = cmd.Flags().Set("user-agent", "test-agent/1.0")

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Timeout != 5*time.Second {
			t.Errorf("expected Timeout 5s, got %v", cfg.Timeout)
		}
		if cfg.UserAgent != "test-agent/1.0" {
			t.Errorf("expected UserAgent 'test-agent/1.0', got %q", cfg.UserAgent)
		}
	})

	t.Run("builds config with JSON flag", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("json", "true")

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.JSONReport {
			t.Error("expected JSONReport to be true")
		}
	})

	t.Run("builds config with report file", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("report-file", "/tmp/manifest.json")

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.ReportFile != "/tmp/manifest.json" {
			t.Errorf("expected ReportFile '/tmp/manifest.json', got %q", cfg.ReportFile)
		}
	})

	t.Run("no-history disables history", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("no-history", "true")

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SaveHistory {
			t.Error("expected SaveHistory to be false with --no-history")
		}
	})

	t.Run("builds config with multiple targets", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		cfg, err := buildConfig(cmd, []string{
			"https://a.example.com", "https://b.example.com", "https://c.example.com",
		}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Targets) != 3 {
			t.Errorf("expected 3 targets, got %d", len(cfg.Targets))
		}
	})

	t.Run("appends targets from list file", func(t *testing.T) {
		listPath := filepath.Join(t.TempDir(), "urls.txt")
		content := "https://one.example.com\n\n# comment\nhttps://two.example.com\n"
		if err := os.WriteFile(listPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write list: %v", err)
		}

		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("list", listPath)

		cfg, err := buildConfig(cmd, []string{"https://zero.example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{
			"https://zero.example.com",
			"https://one.example.com",
			"https://two.example.com",
		}
		if len(cfg.Targets) != len(want) {
			t.Fatalf("expected %d targets, got %v", len(want), cfg.Targets)
		}
		for i, target := range want {
			if cfg.Targets[i] != target {
				t.Errorf("targets[%d] = %q, want %q", i, cfg.Targets[i], target)
			}
		}
	})

	t.Run("builds config with valid config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), ".sitesnap")
		content := []byte(`
defaults:
  userAgent: "default-agent"
sites:
  example.com:
    cookie: session=xyz
`)
		if err := os.WriteFile(configPath, content, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("config", configPath)

		cfg, err := buildConfig(cmd, []string{"https://example.com"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SiteConfigs == nil {
			t.Fatal("expected SiteConfigs to be loaded")
		}
		if cfg.SiteConfigs.Defaults.UserAgent != "default-agent" {
			t.Errorf("expected default user agent, got %q", cfg.SiteConfigs.Defaults.UserAgent)
		}
		if cfg.SiteConfigs.GetSiteConfig("example.com").Cookie != "session=xyz" {
			t.Error("expected site cookie to be loaded")
		}
	})

	t.Run("returns error for missing explicit config file", func(t *testing.T) {
		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

		if _, err := buildConfig(cmd, []string{"https://example.com"}, false); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("returns error for invalid config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("{invalid yaml"), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewSnapshotCmd()
		_ = cmd.Flags().Set("config", configPath)

		if _, err := buildConfig(cmd, []string{"https://example.com"}, false); err == nil {
			t.Fatal("expected error for invalid config file")
		}
	})
}

// TestReadTargetList tests URL list file parsing.
func TestReadTargetList(t *testing.T) {
	t.Parallel()

	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "urls.txt")
		content := `# bundle these
https://example.com

  https://example.org
# not this one
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write list: %v", err)
		}

		targets, err := readTargetList(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(targets) != 2 {
			t.Fatalf("expected 2 targets, got %v", targets)
		}
		if targets[0] != "https://example.com" || targets[1] != "https://example.org" {
			t.Errorf("unexpected targets: %v", targets)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := readTargetList(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

// TestGetSiteConfig tests site configuration retrieval.
func TestGetSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns zero value for nil SiteConfigs", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{SiteConfigs: nil}
		result := getSiteConfig(cfg, "example.com")
		if result.Cookie != "" {
			t.Error("expected empty cookie")
		}
	})

	t.Run("returns merged site config", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{
			SiteConfigs: &config.File{
				Defaults: config.SiteConfig{UserAgent: "default-agent"},
				Sites: map[string]config.SiteConfig{
					"example.com": {Cookie: "session=abc"},
				},
			},
		}
		result := getSiteConfig(cfg, "example.com")
		if result.Cookie != "session=abc" {
			t.Errorf("expected cookie 'session=abc', got %q", result.Cookie)
		}
		if result.UserAgent != "default-agent" {
			t.Errorf("expected inherited user agent, got %q", result.UserAgent)
		}
	})

	t.Run("returns defaults for unknown host", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{
			SiteConfigs: &config.File{
				Defaults: config.SiteConfig{Cookie: "default=cookie"},
				Sites:    map[string]config.SiteConfig{},
			},
		}
		result := getSiteConfig(cfg, "other.com")
		if result.Cookie != "default=cookie" {
			t.Errorf("expected default cookie, got %q", result.Cookie)
		}
	})
}

// TestTargetHost tests host extraction from start URLs.
func TestTargetHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "plain https URL", target: "https://example.com/page", want: "example.com"},
		{name: "URL with port", target: "http://127.0.0.1:8080/", want: "127.0.0.1:8080"},
		{name: "onion URL", target: "http://exampleonion.onion/", want: "exampleonion.onion"},
		{name: "hostless string falls back verbatim", target: "not-a-url", want: "not-a-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := targetHost(tt.target); got != tt.want {
				t.Errorf("targetHost(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

// TestSanitizeHostDir tests directory name sanitization.
func TestSanitizeHostDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "bare host unchanged", host: "example.com", want: "example.com"},
		{name: "port separator replaced", host: "127.0.0.1:8080", want: "127.0.0.1_8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeHostDir(tt.host); got != tt.want {
				t.Errorf("sanitizeHostDir(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

// TestNewBuildPipeline tests per-target pipeline assembly.
func TestNewBuildPipeline(t *testing.T) {
	t.Parallel()

	newTestConfig := func(outDir string) *config.Config {
		cfg := config.NewConfig()
		cfg.OutDir = outDir
		cfg.Targets = []string{"https://example.com"}
		return cfg
	}

	t.Run("snapshot pipeline has no crawl or history step", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t.TempDir())

		p, snap, err := newBuildPipeline(cfg, nil, nil, newTestLogger(), "https://example.com", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		names := p.StepNames()
		want := []string{"fetch_page", "consolidate_head", "rewrite_body", "write_bundle"}
		if len(names) != len(want) {
			t.Fatalf("expected steps %v, got %v", want, names)
		}
		for i, name := range want {
			if names[i] != name {
				t.Errorf("step[%d] = %q, want %q", i, names[i], name)
			}
		}

		if snap.StartURL != "https://example.com" {
			t.Errorf("expected StartURL to be set, got %q", snap.StartURL)
		}
		if snap.OutDir != cfg.OutDir {
			t.Errorf("expected OutDir %q, got %q", cfg.OutDir, snap.OutDir)
		}
	})

	t.Run("crawl pipeline includes crawl step", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t.TempDir())
		cfg.Crawl = true
		cfg.MaxPages = 10

		p, _, err := newBuildPipeline(cfg, nil, nil, newTestLogger(), "https://example.com", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		found := false
		for _, name := range p.StepNames() {
			if name == "crawl" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected crawl step in %v", p.StepNames())
		}
	})

	t.Run("crawl with page budget of one skips the spider", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t.TempDir())
		cfg.Crawl = true
		cfg.MaxPages = 1

		p, _, err := newBuildPipeline(cfg, nil, nil, newTestLogger(), "https://example.com", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, name := range p.StepNames() {
			if name == "crawl" {
				t.Errorf("expected no crawl step with a one-page budget, got %v", p.StepNames())
			}
		}
	})

	t.Run("per-host mode nests the output directory", func(t *testing.T) {
		t.Parallel()
		outDir := t.TempDir()
		cfg := newTestConfig(outDir)

		_, snap, err := newBuildPipeline(cfg, nil, nil, newTestLogger(), "http://127.0.0.1:9999/", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := filepath.Join(outDir, "127.0.0.1_9999")
		if snap.OutDir != want {
			t.Errorf("expected OutDir %q, got %q", want, snap.OutDir)
		}
	})
}

// TestNewFetchClient tests fetch client construction with site overrides.
func TestNewFetchClient(t *testing.T) {
	t.Parallel()

	t.Run("creates client without site overrides", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		if newFetchClient(cfg, nil, config.SiteConfig{}) == nil {
			t.Error("expected non-nil client")
		}
	})

	t.Run("creates client with cookie and headers", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		site := config.SiteConfig{
			Cookie:    "session=abc",
			UserAgent: "site-agent",
			Headers:   map[string]string{"Authorization": "Bearer x"},
		}
		if newFetchClient(cfg, nil, site) == nil {
			t.Error("expected non-nil client")
		}
	})
}

// TestOutputReport tests manifest report output.
func TestOutputReport(t *testing.T) {
	newSnap := func() *model.Snapshot {
		snap := model.NewSnapshot("https://example.com", "/tmp/bundle")
		snap.FinalURL = "https://example.com/"
		snap.PagesCrawled = 1
		snap.FinishedAt = time.Now()
		return snap
	}

	t.Run("writes JSON report to file", func(t *testing.T) {
		reportPath := filepath.Join(t.TempDir(), "manifest.json")
		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = reportPath

		if err := outputReport(cfg, newSnap()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(reportPath) //nolint:gosec // Test temp file
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
	})

	t.Run("creates parent directories for report file", func(t *testing.T) {
		reportPath := filepath.Join(t.TempDir(), "nested", "dir", "manifest.txt")
		cfg := config.NewConfig()
		cfg.ReportFile = reportPath

		if err := outputReport(cfg, newSnap()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(reportPath); err != nil {
			t.Errorf("expected report file to exist: %v", err)
		}
	})

	t.Run("writes markdown report to file", func(t *testing.T) {
		reportPath := filepath.Join(t.TempDir(), "manifest.md")
		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = reportPath

		if err := outputReport(cfg, newSnap()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(reportPath) //nolint:gosec // Test temp file
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "#") {
			t.Error("expected markdown headings in report")
		}
	})

	t.Run("writes simple report to file", func(t *testing.T) {
		reportPath := filepath.Join(t.TempDir(), "manifest.txt")
		cfg := config.NewConfig()
		cfg.ReportFile = reportPath

		if err := outputReport(cfg, newSnap()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(reportPath) //nolint:gosec // Test temp file
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "example.com") {
			t.Error("expected target URL in report")
		}
	})
}
