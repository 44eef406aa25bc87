package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig documents the defaults; a failure here means a default changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default TorProxyAddress is 127.0.0.1:9050", func(t *testing.T) {
		t.Parallel()
		if cfg.TorProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected TorProxyAddress to be '127.0.0.1:9050', got '%s'", cfg.TorProxyAddress)
		}
	})

	t.Run("default Timeout is 60 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 60*time.Second {
			t.Errorf("expected Timeout to be 60s, got %v", cfg.Timeout)
		}
	})

	t.Run("default TorStartupTimeout is 3 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.TorStartupTimeout != 3*time.Minute {
			t.Errorf("expected TorStartupTimeout to be 3m, got %v", cfg.TorStartupTimeout)
		}
	})

	t.Run("limits are unlimited", func(t *testing.T) {
		t.Parallel()
		if cfg.GenerateMax != 0 || cfg.MatchMax != 0 {
			t.Errorf("expected unlimited limits, got %d/%d", cfg.GenerateMax, cfg.MatchMax)
		}
	})

	t.Run("matches are saved under the data dir", func(t *testing.T) {
		t.Parallel()
		if cfg.NoSave {
			t.Error("expected NoSave to be false")
		}
		if cfg.OutputDir != filepath.Join(XDGDataDir(), "keys") {
			t.Errorf("unexpected OutputDir %q", cfg.OutputDir)
		}
	})

	t.Run("ledger is enabled in the data dir", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("default ProbePort is 80", func(t *testing.T) {
		t.Parallel()
		if cfg.ProbePort != 80 {
			t.Errorf("expected ProbePort to be 80, got %d", cfg.ProbePort)
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "valid pattern", modify: func(c *Config) { c.Pattern = "^ab[c-f]" }},
		{name: "empty pattern is valid", modify: func(c *Config) { c.Pattern = "" }},
		{name: "bad pattern", modify: func(c *Config) { c.Pattern = "ab(" }, want: ErrInvalidPattern},
		{name: "no output dir", modify: func(c *Config) { c.OutputDir = "" }, want: ErrNoOutputDir},
		{name: "no output dir with no-save", modify: func(c *Config) { c.OutputDir = ""; c.NoSave = true }},
		{name: "negative progress", modify: func(c *Config) { c.ProgressInterval = -time.Second }, want: ErrInvalidProgressInterval},
		{name: "zero progress disables output", modify: func(c *Config) { c.ProgressInterval = 0 }},
		{name: "json and markdown", modify: func(c *Config) { c.JSONReport = true; c.MarkdownReport = true }, want: ErrConflictingReportFormats},
		{name: "json only", modify: func(c *Config) { c.JSONReport = true }},
		{name: "markdown only", modify: func(c *Config) { c.MarkdownReport = true }},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative timeout", modify: func(c *Config) { c.Timeout = -time.Second }, want: ErrInvalidTimeout},
		{name: "zero tor startup timeout", modify: func(c *Config) { c.TorStartupTimeout = 0 }, want: ErrInvalidTorStartupTimeout},
		{name: "port zero", modify: func(c *Config) { c.ProbePort = 0 }, want: ErrInvalidProbePort},
		{name: "port too large", modify: func(c *Config) { c.ProbePort = 65536 }, want: ErrInvalidProbePort},
		{name: "port 443", modify: func(c *Config) { c.ProbePort = 443 }},
		{name: "zero concurrency", modify: func(c *Config) { c.ProbeConcurrency = 0 }, want: ErrInvalidConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pattern    string
		ignoreCase bool
		want       string
	}{
		{name: "pattern unchanged", pattern: "^abc", want: "^abc"},
		{name: "ignore case adds flag", pattern: "^ABC", ignoreCase: true, want: "(?i)^ABC"},
		{name: "empty pattern stays empty", pattern: "", ignoreCase: true, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Pattern: tt.pattern, IgnoreCase: tt.ignoreCase}
			if got := cfg.MatchPattern(); got != tt.want {
				t.Errorf("MatchPattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileApply(t *testing.T) {
	t.Parallel()

	t.Run("zero file keeps defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		want := *cfg
		(&File{}).Apply(cfg)

		if *cfg != want {
			t.Errorf("expected defaults to be unchanged, got %+v", cfg)
		}
	})

	t.Run("nil file is ignored", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		want := *cfg
		var f *File
		f.Apply(cfg)

		if *cfg != want {
			t.Errorf("expected defaults to be unchanged, got %+v", cfg)
		}
	})

	t.Run("set values override defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		f := &File{
			Generate: GenerateSection{
				Pattern:     "^tor",
				IgnoreCase:  true,
				GenerateMax: 1000,
				MatchMax:    2,
				Output:      "/srv/keys",
				NoSave:      true,
				AuditFile:   "audit.csv",
				DBDir:       "/srv/db",
				NoDB:        true,
				Progress:    10 * time.Second,
			},
			Probe: ProbeSection{
				ExternalTor: true,
				TorProxy:    "127.0.0.1:9150",
				TorTimeout:  time.Minute,
				Timeout:     30 * time.Second,
				Port:        443,
				Concurrency: 8,
			},
		}
		f.Apply(cfg)

		if cfg.Pattern != "^tor" || !cfg.IgnoreCase {
			t.Errorf("unexpected pattern settings %q/%v", cfg.Pattern, cfg.IgnoreCase)
		}
		if cfg.GenerateMax != 1000 || cfg.MatchMax != 2 {
			t.Errorf("unexpected limits %d/%d", cfg.GenerateMax, cfg.MatchMax)
		}
		if cfg.OutputDir != "/srv/keys" || !cfg.NoSave || cfg.AuditFile != "audit.csv" {
			t.Errorf("unexpected output settings %+v", cfg)
		}
		if cfg.DBDir != "/srv/db" || cfg.SaveToDB {
			t.Errorf("unexpected ledger settings %q/%v", cfg.DBDir, cfg.SaveToDB)
		}
		if cfg.ProgressInterval != 10*time.Second {
			t.Errorf("expected progress 10s, got %v", cfg.ProgressInterval)
		}
		if !cfg.UseExternalTor || cfg.TorProxyAddress != "127.0.0.1:9150" {
			t.Errorf("unexpected tor settings %v/%q", cfg.UseExternalTor, cfg.TorProxyAddress)
		}
		if cfg.TorStartupTimeout != time.Minute || cfg.Timeout != 30*time.Second || cfg.ProbePort != 443 || cfg.ProbeConcurrency != 8 {
			t.Errorf("unexpected probe settings %+v", cfg)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.oniongen")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".oniongen")
		content := `generate:
  pattern: "^tor"
  generateMax: 1000000
  matchMax: 3
  output: /srv/keys
  progress: 10s
probe:
  externalTor: true
  timeout: 45s
  port: 8080
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cf.Generate.Pattern != "^tor" {
			t.Errorf("expected pattern ^tor, got %q", cf.Generate.Pattern)
		}
		if cf.Generate.GenerateMax != 1000000 || cf.Generate.MatchMax != 3 {
			t.Errorf("unexpected limits %d/%d", cf.Generate.GenerateMax, cf.Generate.MatchMax)
		}
		if cf.Generate.Output != "/srv/keys" {
			t.Errorf("expected output /srv/keys, got %q", cf.Generate.Output)
		}
		if cf.Generate.Progress != 10*time.Second {
			t.Errorf("expected progress 10s, got %v", cf.Generate.Progress)
		}
		if !cf.Probe.ExternalTor || cf.Probe.Timeout != 45*time.Second || cf.Probe.Port != 8080 {
			t.Errorf("unexpected probe section %+v", cf.Probe)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".oniongen")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("empty file yields zero sections", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".oniongen")
		if err := os.WriteFile(configPath, nil, 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *cf != (File{}) {
			t.Errorf("expected empty file, got %+v", cf)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("generate: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})

	t.Run("finds file in current directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("generate: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		t.Chdir(dir)

		cwd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(cwd, DefaultConfigFile)
		if result := FindConfigFile(""); result != want {
			t.Errorf("expected %q, got %q", want, result)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	dirs := map[string]string{
		"XDGDataDir":   XDGDataDir(),
		"XDGConfigDir": XDGConfigDir(),
		"XDGCacheDir":  XDGCacheDir(),
	}
	for name, dir := range dirs {
		t.Run(name+" ends with the app name", func(t *testing.T) {
			t.Parallel()
			if filepath.Base(dir) != AppName {
				t.Errorf("%s = %q, want suffix %q", name, dir, AppName)
			}
		})
	}
}
