package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitesnap/internal/config"
)

// tinyPNG is a 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

// newTestSite serves a small site with a stylesheet, a script, an
// image, and one linked page carrying its own image.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
<title>Test Site</title>
<link rel="stylesheet" href="/site.css">
</head>
<body>
<h1>Welcome</h1>
<img src="/logo.png" alt="logo">
<a href="/about">About</a>
<script src="/app.js"></script>
</body>
</html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>About</title></head>
<body>
<img src="/pic.png" alt="pic">
<a href="/">Home</a>
</body>
</html>`))
	})
	mux.HandleFunc("/site.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body { color: rebeccapurple; }"))
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("console.log('ready');"))
	})
	serveImage := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(tinyPNG)
	}
	mux.HandleFunc("/logo.png", serveImage)
	mux.HandleFunc("/pic.png", serveImage)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// newBuildTestConfig returns a Config suitable for offline tests:
// history disabled, direct transport, short timeout.
func newBuildTestConfig(t *testing.T, targets ...string) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Targets = targets
	cfg.OutDir = t.TempDir()
	cfg.Timeout = 10 * time.Second
	cfg.SaveHistory = false
	return cfg
}

// TestRunBuildSequential exercises the full snapshot path against a
// local HTTP server: fetch, consolidate, rewrite, and bundle write.
func TestRunBuildSequential(t *testing.T) {
	server := newTestSite(t)

	reportPath := filepath.Join(t.TempDir(), "manifest.json")
	cfg := newBuildTestConfig(t, server.URL)
	cfg.JSONReport = true
	cfg.ReportFile = reportPath

	if err := runBuild(context.Background(), cfg, newTestLogger()); err != nil {
		t.Fatalf("runBuild() error = %v", err)
	}

	for _, rel := range []string{
		"index.html",
		filepath.FromSlash("assets/css/styles.css"),
		filepath.FromSlash("assets/js/main.js"),
		filepath.FromSlash("assets/media/uploads/images/logo.png"),
	} {
		if _, err := os.Stat(filepath.Join(cfg.OutDir, rel)); err != nil {
			t.Errorf("expected bundle file %s: %v", rel, err)
		}
	}

	html, err := os.ReadFile(filepath.Join(cfg.OutDir, "index.html")) //nolint:gosec // Test temp file
	if err != nil {
		t.Fatalf("failed to read index.html: %v", err)
	}
	if !strings.Contains(string(html), "assets/media/uploads/images/logo.png") {
		t.Error("expected image reference to be rewritten to the local path")
	}
	if strings.Contains(string(html), server.URL) {
		t.Error("expected no absolute references to the origin server")
	}

	data, err := os.ReadFile(reportPath) //nolint:gosec // Test temp file
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
}

// TestRunBuildCrawl exercises crawl mode: the linked page's image must
// land in the shared assets tree even though only the start page is
// rendered.
func TestRunBuildCrawl(t *testing.T) {
	server := newTestSite(t)

	cfg := newBuildTestConfig(t, server.URL)
	cfg.Crawl = true
	cfg.MaxPages = 10
	cfg.RespectRobots = false

	if err := runBuild(context.Background(), cfg, newTestLogger()); err != nil {
		t.Fatalf("runBuild() error = %v", err)
	}

	crawledImage := filepath.Join(cfg.OutDir,
		filepath.FromSlash("assets/media/uploads/images/pic.png"))
	if _, err := os.Stat(crawledImage); err != nil {
		t.Errorf("expected crawled page's image in the bundle: %v", err)
	}
}

// TestRunBuildBatch exercises the concurrent batch path with per-host
// output directories.
func TestRunBuildBatch(t *testing.T) {
	serverA := newTestSite(t)
	serverB := newTestSite(t)

	cfg := newBuildTestConfig(t, serverA.URL, serverB.URL)
	cfg.BatchSize = 2

	if err := runBuild(context.Background(), cfg, newTestLogger()); err != nil {
		t.Fatalf("runBuild() error = %v", err)
	}

	for _, target := range cfg.Targets {
		hostDir := sanitizeHostDir(targetHost(target))
		index := filepath.Join(cfg.OutDir, hostDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			t.Errorf("expected per-host bundle %s: %v", index, err)
		}
	}
}

// TestRunBuildErrors covers target validation and transport gating.
func TestRunBuildErrors(t *testing.T) {
	t.Run("rejects malformed start URL", func(t *testing.T) {
		cfg := newBuildTestConfig(t, "://missing-scheme")

		if err := runBuild(context.Background(), cfg, newTestLogger()); err == nil {
			t.Fatal("expected error for malformed start URL")
		}
	})

	t.Run("rejects onion target without Tor transport", func(t *testing.T) {
		cfg := newBuildTestConfig(t, "http://exampleonion.onion/")

		err := runBuild(context.Background(), cfg, newTestLogger())
		if err == nil {
			t.Fatal("expected error for onion target without transport")
		}
		if !strings.Contains(err.Error(), "--socks-proxy") {
			t.Errorf("expected transport hint in error, got %v", err)
		}
	})

	t.Run("build failure is reported, not fatal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		cfg := newBuildTestConfig(t, server.URL)

		// A failed start page fetch aborts that target's build but the
		// run itself still succeeds so later targets can proceed.
		if err := runBuild(context.Background(), cfg, newTestLogger()); err != nil {
			t.Fatalf("runBuild() error = %v", err)
		}
	})
}

// TestBuildTransport tests transport selection.
func TestBuildTransport(t *testing.T) {
	t.Parallel()

	t.Run("direct transport for clearnet targets", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Targets = []string{"https://example.com"}

		client, cleanup, err := buildTransport(context.Background(), cfg, newTestLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client != nil {
			t.Error("expected nil client for direct transport")
		}
		if cleanup != nil {
			t.Error("expected no cleanup for direct transport")
		}
	})

	t.Run("SOCKS proxy transport", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.SocksProxy = "127.0.0.1:9050"
		cfg.Targets = []string{"http://exampleonion.onion/"}

		client, cleanup, err := buildTransport(context.Background(), cfg, newTestLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client == nil {
			t.Error("expected non-nil SOCKS client")
		}
		if cleanup != nil {
			t.Error("expected no cleanup for external proxy")
		}
	})

	t.Run("onion target without transport errors", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Targets = []string{"http://exampleonion.onion/"}

		_, _, err := buildTransport(context.Background(), cfg, newTestLogger())
		if err == nil {
			t.Fatal("expected error for onion target without transport")
		}
	})
}
