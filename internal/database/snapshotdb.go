package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitesnap/internal/model"
)

// SnapshotDB provides SQLite-based storage for bundle build history.
// Every finished build saves its manifest here, so repeated snapshots
// of the same site can be listed and compared later.
//
// Design decision: We use a single database file for all hosts rather
// than one file per site. This simplifies history queries across sites
// and backup/restore operations.
type SnapshotDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures SnapshotDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a SnapshotDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*SnapshotDB, error) {
	dbPath := filepath.Join(dbDir, "sitesnap.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string.
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer, and history writes are rare
	// enough that a single connection never becomes a bottleneck.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &SnapshotDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *SnapshotDB) Close() error {
	return sdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (sdb *SnapshotDB) createTables() error {
	schema := `
	-- Snapshots store one row per finished bundle build
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		start_url TEXT NOT NULL,
		final_url TEXT,
		out_dir TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		pages_crawled INTEGER DEFAULT 0,
		queued_remaining INTEGER DEFAULT 0,
		asset_count INTEGER DEFAULT 0,
		asset_bytes INTEGER DEFAULT 0,
		css_bytes INTEGER DEFAULT 0,
		js_bytes INTEGER DEFAULT 0,
		failed_count INTEGER DEFAULT 0,
		error_message TEXT,
		manifest_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_host ON snapshots(host);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);

	-- Assets store one row per localized asset of a build
	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		source_url TEXT NOT NULL,
		local_path TEXT NOT NULL,
		content_type TEXT,
		category TEXT,
		size INTEGER DEFAULT 0,
		exif_flagged INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_assets_snapshot ON assets(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_assets_source ON assets(source_url);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveSnapshot stores a finished build manifest and its asset rows.
// It returns the new snapshot's database ID.
func (sdb *SnapshotDB) SaveSnapshot(ctx context.Context, host string, snap *model.Snapshot) (int64, error) {
	manifestJSON, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize manifest: %w", err)
	}

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO snapshots (host, start_url, final_url, out_dir, pages_crawled,
		queued_remaining, asset_count, asset_bytes, css_bytes, js_bytes,
		failed_count, error_message, manifest_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		host,
		snap.StartURL,
		snap.FinalURL,
		snap.OutDir,
		snap.PagesCrawled,
		snap.QueuedRemaining,
		len(snap.Assets),
		snap.TotalAssetBytes(),
		snap.CSSBytes,
		snap.JSBytes,
		len(snap.FailedURLs),
		snap.ErrorMessage,
		string(manifestJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	for _, a := range snap.Assets {
		flagged := 0
		if len(a.ExifWarnings) > 0 {
			flagged = 1
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO assets (snapshot_id, source_url, local_path, content_type, category, size, exif_flagged)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, a.SourceURL, a.LocalPath, a.ContentType, string(a.Category), a.Size, flagged); err != nil {
			return 0, fmt.Errorf("failed to insert asset row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return id, nil
}

// SnapshotMetadata contains summary information about a stored build.
// This is used for displaying history without loading the full manifest.
type SnapshotMetadata struct {
	// ID is the unique identifier of the snapshot in the database.
	ID int64

	// Host is the authority of the snapshotted start URL.
	Host string

	// StartURL is the URL the build started from.
	StartURL string

	// OutDir is where the bundle was written.
	OutDir string

	// CreatedAt is when the build finished.
	CreatedAt time.Time

	// PagesCrawled, AssetCount, AssetBytes, and FailedCount summarize
	// the build without the full manifest.
	PagesCrawled int
	AssetCount   int
	AssetBytes   int64
	FailedCount  int

	// ErrorMessage is non-empty if the build aborted.
	ErrorMessage string
}

// History retrieves stored build metadata, newest first. An empty host
// returns the history of every host.
func (sdb *SnapshotDB) History(ctx context.Context, host string) ([]SnapshotMetadata, error) {
	query := `
	SELECT id, host, start_url, out_dir, created_at, pages_crawled,
		asset_count, asset_bytes, failed_count, error_message
	FROM snapshots
	`
	args := make([]any, 0, 1)
	if host != "" {
		query += " WHERE host = ?"
		args = append(args, host)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var results []SnapshotMetadata
	for rows.Next() {
		var meta SnapshotMetadata
		var createdAt string
		var errorMessage sql.NullString

		if err := rows.Scan(
			&meta.ID,
			&meta.Host,
			&meta.StartURL,
			&meta.OutDir,
			&createdAt,
			&meta.PagesCrawled,
			&meta.AssetCount,
			&meta.AssetBytes,
			&meta.FailedCount,
			&errorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.CreatedAt = parseTimestamp(createdAt)
		meta.ErrorMessage = errorMessage.String
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetSnapshotByID retrieves a full stored manifest by its database ID.
// It returns (nil, nil) when no such snapshot exists.
func (sdb *SnapshotDB) GetSnapshotByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	var manifestJSON string
	err := sdb.db.QueryRowContext(ctx,
		`SELECT manifest_json FROM snapshots WHERE id = ?`, id).Scan(&manifestJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(manifestJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &snap, nil
}

// ListHosts returns every host with at least one stored build.
func (sdb *SnapshotDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := sdb.db.QueryContext(ctx,
		`SELECT DISTINCT host FROM snapshots ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

// HasRecentSnapshot checks if a start URL was bundled within the
// specified duration.
func (sdb *SnapshotDB) HasRecentSnapshot(ctx context.Context, startURL string, duration time.Duration) (bool, error) {
	// SQLite datetime modifier format
	modifier := fmt.Sprintf("-%d seconds", int(duration.Seconds()))

	var count int
	err := sdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM snapshots
	WHERE start_url = ? AND created_at > datetime('now', ?)
	`, startURL, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent snapshot: %w", err)
	}

	return count > 0, nil
}

// AssetHistory returns the asset rows of one stored build in
// localization order.
func (sdb *SnapshotDB) AssetHistory(ctx context.Context, snapshotID int64) ([]model.AssetRecord, error) {
	rows, err := sdb.db.QueryContext(ctx, `
	SELECT source_url, local_path, content_type, category, size
	FROM assets
	WHERE snapshot_id = ?
	ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var records []model.AssetRecord
	for rows.Next() {
		var rec model.AssetRecord
		var category string
		if err := rows.Scan(&rec.SourceURL, &rec.LocalPath, &rec.ContentType, &category, &rec.Size); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		rec.Category = model.Category(category)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
