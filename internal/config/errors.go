package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no start URL or list file is specified.
	ErrNoTarget = errors.New("no target specified: provide a URL or use --list")

	// ErrNoOutDir is returned when the output directory is empty.
	ErrNoOutDir = errors.New("no output directory specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate fetch failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxPages is returned when the crawl page budget is not
	// positive. The budget always includes the start page, so it must be
	// at least 1.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTorModes is returned when both an external SOCKS
	// proxy and the embedded Tor daemon are requested.
	ErrConflictingTorModes = errors.New("conflicting tor modes: --socks-proxy and --tor cannot be used together")
)
