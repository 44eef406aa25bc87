package config

import "time"

// GenerateSection holds the generate defaults from the configuration file.
// Zero values leave the built-in default untouched.
type GenerateSection struct {
	// Pattern is the default match pattern.
	Pattern string `yaml:"pattern,omitempty"`

	// IgnoreCase makes the pattern case-insensitive.
	IgnoreCase bool `yaml:"ignoreCase,omitempty"`

	// GenerateMax limits the number of generated candidates.
	GenerateMax uint64 `yaml:"generateMax,omitempty"`

	// MatchMax limits the number of matches.
	MatchMax uint64 `yaml:"matchMax,omitempty"`

	// Output is the root for saved hidden service directories.
	Output string `yaml:"output,omitempty"`

	// NoSave disables writing key material.
	NoSave bool `yaml:"noSave,omitempty"`

	// AuditFile receives one line per candidate.
	AuditFile string `yaml:"auditFile,omitempty"`

	// DBDir is the ledger directory.
	DBDir string `yaml:"dbDir,omitempty"`

	// NoDB disables the ledger.
	NoDB bool `yaml:"noDB,omitempty"`

	// Progress is the progress interval, e.g. "10s".
	Progress time.Duration `yaml:"progress,omitempty"`
}

// ProbeSection holds the probe defaults from the configuration file.
type ProbeSection struct {
	// ExternalTor uses TorProxy instead of the embedded daemon.
	ExternalTor bool `yaml:"externalTor,omitempty"`

	// TorProxy is the external SOCKS5 proxy address.
	TorProxy string `yaml:"torProxy,omitempty"`

	// TorTimeout is the embedded daemon startup timeout.
	TorTimeout time.Duration `yaml:"torTimeout,omitempty"`

	// Timeout is the per-address probe timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Port is the probed virtual port.
	Port int `yaml:"port,omitempty"`

	// Concurrency is the number of addresses probed at once.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// File represents the structure of the .oniongen configuration file.
type File struct {
	Generate GenerateSection `yaml:"generate,omitempty"`
	Probe    ProbeSection    `yaml:"probe,omitempty"`
}

// Apply overlays the non-zero values of the file onto c.
// CLI flags are applied afterwards and win over both.
func (f *File) Apply(c *Config) {
	if f == nil {
		return
	}

	g := f.Generate
	if g.Pattern != "" {
		c.Pattern = g.Pattern
	}
	if g.IgnoreCase {
		c.IgnoreCase = true
	}
	if g.GenerateMax != 0 {
		c.GenerateMax = g.GenerateMax
	}
	if g.MatchMax != 0 {
		c.MatchMax = g.MatchMax
	}
	if g.Output != "" {
		c.OutputDir = g.Output
	}
	if g.NoSave {
		c.NoSave = true
	}
	if g.AuditFile != "" {
		c.AuditFile = g.AuditFile
	}
	if g.DBDir != "" {
		c.DBDir = g.DBDir
	}
	if g.NoDB {
		c.SaveToDB = false
	}
	if g.Progress != 0 {
		c.ProgressInterval = g.Progress
	}

	p := f.Probe
	if p.ExternalTor {
		c.UseExternalTor = true
	}
	if p.TorProxy != "" {
		c.TorProxyAddress = p.TorProxy
	}
	if p.TorTimeout != 0 {
		c.TorStartupTimeout = p.TorTimeout
	}
	if p.Timeout != 0 {
		c.Timeout = p.Timeout
	}
	if p.Port != 0 {
		c.ProbePort = p.Port
	}
	if p.Concurrency != 0 {
		c.ProbeConcurrency = p.Concurrency
	}
}
