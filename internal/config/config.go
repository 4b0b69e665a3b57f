package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Where the original behavior matters for
// reproducing snapshots (user agent, timeout, page budget) the defaults
// match what real sites have been tested against.
const (
	// DefaultTimeout is the per-request timeout. 25 seconds is generous
	// enough for slow asset servers without letting a single stuck CDN
	// stall the whole build.
	DefaultTimeout = 25 * time.Second

	// DefaultMaxPages limits crawl-mode prefetching. 200 pages covers
	// typical small sites; larger crawls should raise it deliberately
	// via --max-pages.
	DefaultMaxPages = 200

	// DefaultOutDir is where the bundle is written when -o is omitted.
	DefaultOutDir = "./snapshot"

	// DefaultUserAgent impersonates a mainstream browser. Many sites
	// serve degraded or blocked responses to obvious bot agents, and a
	// snapshot should capture what a browser would have received.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits the response body size read per fetch.
	// 10MB accommodates large hero images while preventing memory
	// exhaustion from unexpected responses.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultBatchSize is the number of concurrent snapshots when
	// processing a URL list. Snapshots are I/O heavy; 4 keeps total
	// connection counts polite.
	DefaultBatchSize = 4

	// DefaultConcurrency is the worker pool size for crawl-mode asset
	// prefetching.
	DefaultConcurrency = 8

	// DefaultTorStartupTimeout is the maximum time to wait for the
	// embedded Tor daemon to bootstrap when --tor is used.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "sitesnap"
)

// Config holds all configuration options for sitesnap.
// This struct is populated from CLI flags and passed through the
// application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Targets is the list of start URLs to snapshot.
	// Must contain at least one URL.
	Targets []string

	// OutDir is the bundle output directory root. In batch mode each
	// target gets a per-host subdirectory beneath it.
	OutDir string

	// Crawl enables the BFS prefetch mode: after the single-page
	// snapshot, same-origin pages are visited to warm the asset cache.
	Crawl bool

	// MaxPages is the crawl-mode page budget (including the start page).
	MaxPages int

	// Timeout is the per-request timeout for page and asset fetches.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent with every request and
	// the agent name checked against robots.txt rules.
	UserAgent string

	// FollowSubdomains extends the same-origin crawl policy to
	// subdomains of the start host.
	FollowSubdomains bool

	// RestrictPathPrefix, when non-empty, limits crawling to URLs whose
	// path begins with this prefix.
	RestrictPathPrefix string

	// RespectRobots gates crawled URLs through robots.txt.
	// Asset fetches for the page being snapshotted are never gated;
	// only the crawl scheduler consults robots rules.
	RespectRobots bool

	// InspectImages enables EXIF inspection of localized JPEG/TIFF
	// images, flagging GPS coordinates and device serials that would
	// leak if the snapshot is published.
	InspectImages bool

	// SocksProxy is an optional SOCKS5 proxy address ("host:port").
	// Required for .onion targets unless EmbeddedTor is set.
	SocksProxy string

	// EmbeddedTor launches a bundled Tor daemon for the duration of the
	// run instead of relying on an external proxy.
	EmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap time.
	TorStartupTimeout time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// BatchSize is the number of concurrent snapshots in list mode.
	BatchSize int

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use the default.
	MaxBodySize int64

	// ConfigFilePath is the path to the configuration file. If empty,
	// .sitesnap is searched in the current directory and then the home
	// directory.
	ConfigFilePath string

	// SiteConfigs holds per-site overrides loaded from the config file.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the manifest report format.
	// Mutually exclusive; the default is a human-readable summary.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the manifest report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory for the snapshot history database. When
	// set, each run's manifest is recorded for the history subcommand.
	DBDir string

	// SaveHistory indicates whether to record the run in the database.
	// Automatically true when DBDir is configured.
	SaveHistory bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeout, page budget,
// user agent). This also documents what the defaults are.
func NewConfig() *Config {
	return &Config{
		OutDir:            DefaultOutDir,
		MaxPages:          DefaultMaxPages,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		RespectRobots:     true,
		BatchSize:         DefaultBatchSize,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for sitesnap.
// On Linux: ~/.local/share/sitesnap
// On macOS: ~/Library/Application Support/sitesnap
// On Windows: %LOCALAPPDATA%\sitesnap
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitesnap.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}

	if c.OutDir == "" {
		return ErrNoOutDir
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.SocksProxy != "" && c.EmbeddedTor {
		return ErrConflictingTorModes
	}

	return nil
}
