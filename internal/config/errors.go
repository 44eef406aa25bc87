package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while still printing a human-readable message.
var (
	// ErrInvalidPattern is returned when the match pattern is not a valid
	// regular expression. The compile error is wrapped alongside it.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidTimeout is returned when the probe timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTorStartupTimeout is returned when the embedded Tor startup
	// timeout is not positive.
	ErrInvalidTorStartupTimeout = errors.New("invalid tor startup timeout: must be positive")

	// ErrInvalidProgressInterval is returned when the progress interval is negative.
	// Use 0 to disable progress output.
	ErrInvalidProgressInterval = errors.New("invalid progress interval: must be non-negative")

	// ErrInvalidProbePort is returned when the probe port is outside 1-65535.
	ErrInvalidProbePort = errors.New("invalid probe port: must be between 1 and 65535")

	// ErrInvalidConcurrency is returned when the probe concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrNoOutputDir is returned when matches should be saved but no output
	// directory is configured.
	ErrNoOutputDir = errors.New("no output directory: set --output or use --no-save")
)
