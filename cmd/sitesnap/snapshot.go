package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/sitesnap/internal/asset"
	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/fetch"
	"github.com/nao1215/sitesnap/internal/log"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/pipeline"
	"github.com/nao1215/sitesnap/internal/report"
	"github.com/nao1215/sitesnap/internal/snapshot"
	"github.com/nao1215/sitesnap/internal/tor"
	"github.com/nao1215/sitesnap/internal/urlnorm"
	"github.com/spf13/cobra"
)

// NewSnapshotCmd creates the snapshot command.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot [url...]",
		Short: "Bundle a web page into a self-contained offline snapshot",
		Long: `Snapshot fetches a page and rewrites it into an offline bundle:

  index.html              the page, with every reference made relative
  assets/css/styles.css   all stylesheets, inline and external, in document order
  assets/js/main.js       all scripts, inline and external, in document order
  assets/media/           localized media, favicons, and other fetched files

Asset fetch failures are non-fatal: the original reference is kept
verbatim and the URL is listed in the manifest report.

Examples:
  # Snapshot a single page into ./snapshot
  sitesnap snapshot https://example.com

  # Choose the output directory
  sitesnap snapshot -o ./example https://example.com

  # Snapshot every URL in a file, four at a time
  sitesnap snapshot --list urls.txt -o ./bundles

  # Snapshot an onion site through an external Tor proxy
  sitesnap snapshot --socks-proxy 127.0.0.1:9050 http://exampleonion.onion

  # Emit the manifest report as JSON
  sitesnap snapshot --json https://example.com

Configuration file (.sitesnap) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildCmd(cmd, args, false)
		},
	}

	addBuildFlags(cmd)

	return cmd
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Snapshot a page and prefetch assets from same-origin pages",
		Long: `Crawl builds the same bundle as 'snapshot', then walks same-origin
pages breadth-first from the start page and localizes their media into
the shared assets tree. The bundle's index.html is still the start page;
crawling only widens asset coverage.

Crawled URLs are gated in order: already visited, same origin, path
prefix, ignore/follow patterns, robots.txt, page budget.

Examples:
  # Crawl up to 200 pages (the default budget)
  sitesnap crawl https://example.com

  # Limit the crawl and keep it under /docs/
  sitesnap crawl --max-pages 50 --restrict-path /docs/ https://example.com

  # Include subdomains and ignore robots.txt
  sitesnap crawl --follow-subdomains --no-robots https://example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildCmd(cmd, args, true)
		},
	}

	addBuildFlags(cmd)

	// Crawl scope flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch, including the start page")
	cmd.Flags().Bool("follow-subdomains", false,
		"Treat subdomains of the start host as same-origin")
	cmd.Flags().String("restrict-path", "",
		"Only crawl URLs whose path begins with this prefix")
	cmd.Flags().Bool("no-robots", false,
		"Do not consult robots.txt when scheduling pages")

	return cmd
}

// addBuildFlags registers the flags shared by snapshot and crawl.
func addBuildFlags(cmd *cobra.Command) {
	// Output flags
	cmd.Flags().StringP("out", "o", config.DefaultOutDir,
		"Bundle output directory (per-host subdirectories in list mode)")

	// Batch flags
	cmd.Flags().StringP("list", "l", "",
		"Read start URLs from a file, one per line")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent builds in list mode")

	// Fetch behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout for page and asset fetches")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header for every request")
	cmd.Flags().Bool("inspect-images", false,
		"Scan localized JPEG/TIFF images for EXIF data that would leak if published")

	// Tor transport flags
	cmd.Flags().String("socks-proxy", "",
		"SOCKS5 proxy address for all fetches (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and fetch through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitesnap in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON manifest report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown manifest report (mutually exclusive with --json)")
	cmd.Flags().String("report-file", "",
		"Write the manifest report to a file instead of stdout")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record this build in the history database")
}

// runBuildCmd executes the snapshot or crawl command.
func runBuildCmd(cmd *cobra.Command, args []string, crawl bool) error {
	cfg, err := buildConfig(cmd, args, crawl)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runBuild(ctx, cfg, logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string, crawl bool) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Crawl = crawl
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	cfg.OutDir, err = cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.InspectImages, err = cmd.Flags().GetBool("inspect-images")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.SocksProxy, err = cmd.Flags().GetString("socks-proxy")
	if err != nil {
		return nil, err
	}

	cfg.EmbeddedTor, err = cmd.Flags().GetBool("tor")
	if err != nil {
		return nil, err
	}

	cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
	if err != nil {
		return nil, err
	}

	if crawl {
		cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
		if err != nil {
			return nil, err
		}

		cfg.FollowSubdomains, err = cmd.Flags().GetBool("follow-subdomains")
		if err != nil {
			return nil, err
		}

		cfg.RestrictPathPrefix, err = cmd.Flags().GetString("restrict-path")
		if err != nil {
			return nil, err
		}

		noRobots, err := cmd.Flags().GetBool("no-robots")
		if err != nil {
			return nil, err
		}
		cfg.RespectRobots = !noRobots
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site-specific configurations from the config file.
	// An explicitly specified file must exist; the default search is
	// allowed to come up empty.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report-file")
	if err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	cfg.DBDir = config.XDGDataDir()

	// Positional URLs plus an optional list file
	cfg.Targets = args

	listFile, err := cmd.Flags().GetString("list")
	if err != nil {
		return nil, err
	}
	if listFile != "" {
		fromFile, err := readTargetList(listFile)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, fromFile...)
	}

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// readTargetList reads start URLs from a file, one per line.
// Blank lines and lines starting with '#' are skipped.
func readTargetList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list file path
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}

	return targets, nil
}

// runBuild executes the builds described by cfg.
func runBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Reject malformed targets before any network or disk work.
	for i, target := range cfg.Targets {
		canonical, err := urlnorm.Canonicalize(target)
		if err != nil {
			return fmt.Errorf("invalid start URL %q: %w", target, err)
		}
		cfg.Targets[i] = canonical.String()
	}

	logger.Info("starting build",
		"targets", cfg.Targets,
		"crawl", cfg.Crawl,
		"out_dir", cfg.OutDir,
	)

	// History database (best effort: a failure to open disables it)
	var db *database.SnapshotDB
	if cfg.SaveHistory {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("history database unavailable", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close()
			logger.Debug("history database opened", "dir", cfg.DBDir)
		}
	}

	transport, cleanup, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		return runBatchBuild(ctx, cfg, transport, db, logger)
	}

	return runSequentialBuild(ctx, cfg, transport, db, logger)
}

// buildTransport resolves the HTTP transport for all fetches: direct,
// external SOCKS proxy, or embedded Tor. The returned cleanup func (if
// any) stops the embedded daemon.
func buildTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.Client, func(), error) {
	switch {
	case cfg.SocksProxy != "":
		client, err := tor.NewClient(cfg.SocksProxy, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SOCKS client: %w", err)
		}
		logger.Info("using external SOCKS proxy", "address", cfg.SocksProxy)
		return client, nil, nil

	case cfg.EmbeddedTor:
		fmt.Println("Starting embedded Tor daemon...")
		fmt.Printf("This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embedded := tor.NewEmbeddedTor(
			tor.WithStartupTimeout(cfg.TorStartupTimeout),
		)
		if err := embedded.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}

		client, err := embedded.NewClient(cfg.Timeout)
		if err != nil {
			_ = embedded.Stop() //nolint:errcheck // Best effort cleanup
			return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
		}

		logger.Info("embedded Tor daemon started", "socks_addr", embedded.SocksAddr())
		fmt.Printf("Embedded Tor daemon started (SOCKS proxy: %s)\n\n", embedded.SocksAddr())

		cleanup := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		return client, cleanup, nil

	default:
		// Onion targets cannot be reached without a Tor transport.
		for _, target := range cfg.Targets {
			if tor.IsOnionURL(target) {
				return nil, nil, fmt.Errorf("onion target %s requires --socks-proxy or --tor", target)
			}
		}
		return nil, nil, nil
	}
}

// runSequentialBuild builds targets one at a time.
func runSequentialBuild(ctx context.Context, cfg *config.Config, transport *tor.Client, db *database.SnapshotDB, logger *slog.Logger) error {
	multiTarget := len(cfg.Targets) > 1

	for _, target := range cfg.Targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p, snap, err := newBuildPipeline(cfg, transport, db, logger, target, multiTarget)
		if err != nil {
			return err
		}

		fmt.Printf("Building %s...\n", target)
		startTime := time.Now()

		if err := p.Execute(ctx, snap); err != nil {
			logger.Error("build failed", "url", target, "error", err)
			fmt.Fprintf(os.Stderr, "Build error for %s: %v\n", target, err)
			continue
		}

		elapsed := time.Since(startTime)
		fmt.Printf("Bundle written to %s in %s\n\n", snap.OutDir, elapsed.Round(time.Millisecond))

		if err := outputReport(cfg, snap); err != nil {
			logger.Error("report failed", "url", target, "error", err)
		}
	}

	return nil
}

// runBatchBuild builds multiple targets concurrently using BatchProcessor.
func runBatchBuild(ctx context.Context, cfg *config.Config, transport *tor.Client, db *database.SnapshotDB, logger *slog.Logger) error {
	fmt.Printf("Starting batch build of %d targets (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.BatchSize)

	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(
		func(startURL string) (*pipeline.Pipeline, *model.Snapshot, error) {
			return newBuildPipeline(cfg, transport, db, logger, startURL, true)
		},
		pipeline.WithBatchConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Stream results as they complete
	var mu sync.Mutex
	err := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(snap *model.Snapshot, index int) {
		mu.Lock()
		defer mu.Unlock()

		if snap.Error != nil {
			fmt.Fprintf(os.Stderr, "[%d/%d] Build failed: %s: %v\n",
				index+1, len(cfg.Targets), snap.StartURL, snap.Error)
			return
		}

		fmt.Printf("[%d/%d] Bundle written: %s -> %s\n",
			index+1, len(cfg.Targets), snap.StartURL, snap.OutDir)

		if err := outputReport(cfg, snap); err != nil {
			logger.Error("report failed", "url", snap.StartURL, "error", err)
		}
	})

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch build completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// newBuildPipeline assembles a pipeline and fresh manifest for one
// start URL. Each target gets its own engine, asset store, and output
// directory, so no build state leaks between targets.
func newBuildPipeline(cfg *config.Config, transport *tor.Client, db *database.SnapshotDB, logger *slog.Logger, target string, perHostDir bool) (*pipeline.Pipeline, *model.Snapshot, error) {
	host := targetHost(target)
	siteConfig := getSiteConfig(cfg, host)

	outDir := cfg.OutDir
	if perHostDir {
		outDir = filepath.Join(cfg.OutDir, sanitizeHostDir(host))
	}

	layout, err := asset.NewLayout(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare output directory %s: %w", outDir, err)
	}

	client := newFetchClient(cfg, transport, siteConfig)

	store := asset.NewStore(layout, client,
		asset.WithLogger(logger),
		asset.WithImageInspection(cfg.InspectImages),
	)

	engine := snapshot.NewEngine(layout, store, client, snapshot.WithLogger(logger))

	var spider *crawler.Spider
	if cfg.Crawl && cfg.MaxPages > 1 {
		spider = newSpider(cfg, siteConfig, client, store, logger)
	}

	p := pipeline.BuildPipeline(engine, spider, db, pipeline.WithLogger(logger))

	return p, model.NewSnapshot(target, outDir), nil
}

// newFetchClient builds the fetch client for a target, applying
// site-specific overrides from the config file.
func newFetchClient(cfg *config.Config, transport *tor.Client, siteConfig config.SiteConfig) *fetch.Client {
	userAgent := cfg.UserAgent
	if siteConfig.UserAgent != "" {
		userAgent = siteConfig.UserAgent
	}

	opts := []fetch.Option{
		fetch.WithUserAgent(userAgent),
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	}
	if siteConfig.Cookie != "" {
		opts = append(opts, fetch.WithCookie(siteConfig.Cookie))
	}
	if len(siteConfig.Headers) > 0 {
		opts = append(opts, fetch.WithHeaders(siteConfig.Headers))
	}
	if transport != nil {
		opts = append(opts, fetch.WithHTTPClient(transport.NewHTTPClient()))
	}

	return fetch.NewClient(opts...)
}

// newSpider builds the crawl scheduler for a target. The spider's page
// budget excludes the start page, which the engine already fetched.
func newSpider(cfg *config.Config, siteConfig config.SiteConfig, client *fetch.Client, store *asset.Store, logger *slog.Logger) *crawler.Spider {
	pathPrefix := cfg.RestrictPathPrefix
	if siteConfig.RestrictPathPrefix != "" {
		pathPrefix = siteConfig.RestrictPathPrefix
	}

	opts := []crawler.SpiderOption{
		crawler.WithMaxPages(cfg.MaxPages - 1),
		crawler.WithSpiderUserAgent(cfg.UserAgent),
		crawler.WithFollowSubdomains(cfg.FollowSubdomains),
		crawler.WithRespectRobots(cfg.RespectRobots),
		crawler.WithConcurrency(config.DefaultConcurrency),
		crawler.WithSpiderLogger(logger),
	}
	if pathPrefix != "" {
		opts = append(opts, crawler.WithPathPrefix(pathPrefix))
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(siteConfig.IgnorePatterns))
	}
	if len(siteConfig.FollowPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(siteConfig.FollowPatterns))
	}

	return crawler.NewSpider(client, store, opts...)
}

// getSiteConfig returns the per-site configuration for a host, merged
// over the config file defaults.
func getSiteConfig(cfg *config.Config, host string) config.SiteConfig {
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	return cfg.SiteConfigs.GetSiteConfig(host)
}

// targetHost extracts the host from a start URL, falling back to the
// raw string for anything unparsable.
func targetHost(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Host
}

// sanitizeHostDir makes a host usable as a directory name.
func sanitizeHostDir(host string) string {
	return strings.ReplaceAll(host, ":", "_")
}

// outputReport writes the manifest report in the requested format.
func outputReport(cfg *config.Config, snap *model.Snapshot) error {
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}

		// 0600: reports can carry cookies' side effects (URLs with
		// tokens) and EXIF findings.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(snap)
	return err
}
