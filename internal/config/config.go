package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "oniongen"

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid IPv6 resolution surprises.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout bounds a single probe connection. Hidden service
	// descriptor lookups are slow, so this is generous.
	DefaultTimeout = 60 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultProgressInterval is how often generate prints the running counters.
	DefaultProgressInterval = 5 * time.Second

	// DefaultProbePort is the virtual port probed on a hidden service.
	DefaultProbePort = 80

	// DefaultProbeConcurrency is the number of addresses probed at once.
	DefaultProbeConcurrency = 4

	// keysDirName is the directory under the data dir that holds saved keys.
	keysDirName = "keys"
)

// Config holds all configuration options for oniongen.
// It is populated from defaults, then the .oniongen file, then CLI flags,
// and passed down explicitly rather than kept in global state.
type Config struct {
	// Pattern is the regular expression matched against each generated
	// address (without the ".onion" suffix). Empty means no address matches.
	Pattern string

	// IgnoreCase makes Pattern case-insensitive.
	// Addresses are always lowercase, so this only matters for patterns
	// written with uppercase letters.
	IgnoreCase bool

	// GenerateMax stops generation after this many candidates. 0 is unlimited.
	GenerateMax uint64

	// MatchMax stops generation after this many matches. 0 is unlimited.
	MatchMax uint64

	// OutputDir is the root under which one hidden service directory per
	// match is created, named after the hostname.
	// Defaults to <XDG data dir>/oniongen/keys.
	OutputDir string

	// NoSave counts matches without writing any key material to disk.
	NoSave bool

	// AuditFile, when set, receives one "address,key" line per candidate.
	// The file holds private keys and is created with 0600 permissions.
	AuditFile string

	// DBDir is the directory holding the SQLite session ledger.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB records sessions and matches in the ledger.
	SaveToDB bool

	// ProgressInterval is how often counters are printed during generation.
	// 0 disables progress output.
	ProgressInterval time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .oniongen is searched in the current directory and then
	// in the user's home directory.
	ConfigFilePath string

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stdout.
	ReportFile string

	// UseExternalTor disables the embedded Tor daemon for probe and uses
	// the proxy at TorProxyAddress instead.
	UseExternalTor bool

	// TorProxyAddress is the external Tor SOCKS5 proxy in "host:port" form.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used when UseExternalTor is false.
	TorStartupTimeout time.Duration

	// Timeout is the per-address probe timeout.
	Timeout time.Duration

	// ProbePort is the hidden service port dialed by probe.
	ProbePort int

	// ProbeConcurrency is the number of addresses probed at once.
	ProbeConcurrency int
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:         DefaultOutputDir(),
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		ProgressInterval:  DefaultProgressInterval,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Timeout:           DefaultTimeout,
		ProbePort:         DefaultProbePort,
		ProbeConcurrency:  DefaultProbeConcurrency,
	}
}

// XDGDataDir returns the XDG data directory for oniongen.
// On Linux: ~/.local/share/oniongen
// On macOS: ~/Library/Application Support/oniongen
// On Windows: %LOCALAPPDATA%\oniongen
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for oniongen.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for oniongen.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultOutputDir returns the default root for saved hidden service directories.
func DefaultOutputDir() string {
	return filepath.Join(XDGDataDir(), keysDirName)
}

// MatchPattern returns Pattern with the case-insensitive flag applied
// when IgnoreCase is set.
func (c *Config) MatchPattern() string {
	if c.Pattern == "" || !c.IgnoreCase {
		return c.Pattern
	}
	return "(?i)" + c.Pattern
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.MatchPattern()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
	}

	if !c.NoSave && c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.ProgressInterval < 0 {
		return ErrInvalidProgressInterval
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}

	if c.ProbePort < 1 || c.ProbePort > 65535 {
		return ErrInvalidProbePort
	}

	if c.ProbeConcurrency < 1 {
		return ErrInvalidConcurrency
	}

	return nil
}
