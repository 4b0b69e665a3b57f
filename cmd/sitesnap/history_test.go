package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/model"
)

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates command with correct use", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		if cmd.Use != "history [host]" {
			t.Errorf("expected Use 'history [host]', got %q", cmd.Use)
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		for _, name := range []string{"hosts", "id", "json"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q to be registered", name)
			}
		}
	})

	t.Run("rejects more than one host argument", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		if err := cmd.Args(cmd, []string{"a.com", "b.com"}); err == nil {
			t.Error("expected error for two positional arguments")
		}
	})
}

// captureStdout runs fn while redirecting os.Stdout and returns what
// was written. Tests using it must not run in parallel.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	_ = w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read captured output: %v", err)
	}
	return buf.String(), fnErr
}

// newHistoryTestDB opens a snapshot database in a temp directory.
//
// The command entry point is not exercised here: the xdg library caches
// XDG_DATA_HOME at package init, so t.Setenv cannot repoint it. The
// helpers take a *database.SnapshotDB and are tested against a
// temp-dir database directly.
func newHistoryTestDB(t *testing.T) *database.SnapshotDB {
	t.Helper()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// saveTestSnapshot records one build for a host and returns its ID.
func saveTestSnapshot(t *testing.T, db *database.SnapshotDB, host, startURL string) int64 {
	t.Helper()

	snap := model.NewSnapshot(startURL, "/tmp/bundle")
	snap.FinalURL = startURL
	snap.PagesCrawled = 3
	snap.Assets = []model.AssetRecord{
		{
			SourceURL: startURL + "/logo.png",
			LocalPath: "assets/media/uploads/images/logo.png",
			Category:  model.CategoryImage,
			Size:      64,
		},
	}
	snap.FailedURLs = []string{startURL + "/gone.css"}

	id, err := db.SaveSnapshot(context.Background(), host, snap)
	if err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	return id
}

// TestListSnapshotHosts tests host listing.
// Not using t.Parallel() because these tests capture os.Stdout.
func TestListSnapshotHosts(t *testing.T) {
	t.Run("empty database prints guidance", func(t *testing.T) {
		db := newHistoryTestDB(t)

		out, err := captureStdout(t, func() error {
			return listSnapshotHosts(context.Background(), db)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No recorded builds found") {
			t.Errorf("expected empty-state message, got %q", out)
		}
	})

	t.Run("lists hosts with builds", func(t *testing.T) {
		db := newHistoryTestDB(t)
		saveTestSnapshot(t, db, "example.com", "https://example.com")
		saveTestSnapshot(t, db, "example.org", "https://example.org")

		out, err := captureStdout(t, func() error {
			return listSnapshotHosts(context.Background(), db)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "example.com") || !strings.Contains(out, "example.org") {
			t.Errorf("expected both hosts in output, got %q", out)
		}
		if !strings.Contains(out, "(2)") {
			t.Errorf("expected host count in output, got %q", out)
		}
	})
}

// TestListSnapshotHistory tests build record listing.
// Not using t.Parallel() because these tests capture os.Stdout.
func TestListSnapshotHistory(t *testing.T) {
	t.Run("empty database prints guidance", func(t *testing.T) {
		db := newHistoryTestDB(t)

		out, err := captureStdout(t, func() error {
			return listSnapshotHistory(context.Background(), db, "", false)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No recorded builds found") {
			t.Errorf("expected empty-state message, got %q", out)
		}
	})

	t.Run("unknown host prints host-specific message", func(t *testing.T) {
		db := newHistoryTestDB(t)

		out, err := captureStdout(t, func() error {
			return listSnapshotHistory(context.Background(), db, "nope.example", false)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No builds found for nope.example") {
			t.Errorf("expected host-specific message, got %q", out)
		}
	})

	t.Run("lists builds as a table", func(t *testing.T) {
		db := newHistoryTestDB(t)
		saveTestSnapshot(t, db, "example.com", "https://example.com")

		out, err := captureStdout(t, func() error {
			return listSnapshotHistory(context.Background(), db, "example.com", false)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"ID", "Pages", "Assets", "Failed", "ok"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in table output, got %q", want, out)
			}
		}
	})

	t.Run("filters by host", func(t *testing.T) {
		db := newHistoryTestDB(t)
		saveTestSnapshot(t, db, "example.com", "https://example.com")
		saveTestSnapshot(t, db, "example.org", "https://example.org")

		out, err := captureStdout(t, func() error {
			return listSnapshotHistory(context.Background(), db, "example.com", false)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Builds for example.com (1)") {
			t.Errorf("expected filtered header, got %q", out)
		}
	})

	t.Run("outputs JSON metadata", func(t *testing.T) {
		db := newHistoryTestDB(t)
		saveTestSnapshot(t, db, "example.com", "https://example.com")

		out, err := captureStdout(t, func() error {
			return listSnapshotHistory(context.Background(), db, "example.com", true)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var records []database.SnapshotMetadata
		if err := json.Unmarshal([]byte(out), &records); err != nil {
			t.Fatalf("output is not valid JSON: %v\n%s", err, out)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		if records[0].PagesCrawled != 3 {
			t.Errorf("expected PagesCrawled 3, got %d", records[0].PagesCrawled)
		}
	})
}

// TestShowStoredManifest tests stored manifest display.
// Not using t.Parallel() because these tests capture os.Stdout.
func TestShowStoredManifest(t *testing.T) {
	t.Run("prints the stored manifest report", func(t *testing.T) {
		db := newHistoryTestDB(t)
		id := saveTestSnapshot(t, db, "example.com", "https://example.com")

		out, err := captureStdout(t, func() error {
			return showStoredManifest(context.Background(), db, id)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "https://example.com") {
			t.Errorf("expected start URL in report, got %q", out)
		}
		if !strings.Contains(out, "logo.png") {
			t.Errorf("expected asset listing in verbose report, got %q", out)
		}
	})

	t.Run("unknown build ID returns error", func(t *testing.T) {
		db := newHistoryTestDB(t)

		_, err := captureStdout(t, func() error {
			return showStoredManifest(context.Background(), db, 9999)
		})
		if err == nil {
			t.Fatal("expected error for unknown build ID")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not-found error, got %v", err)
		}
	})
}
