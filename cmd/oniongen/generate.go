package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/oniongen/internal/config"
	"github.com/nao1215/oniongen/internal/database"
	"github.com/nao1215/oniongen/internal/generator"
	"github.com/nao1215/oniongen/internal/hsdir"
	oglog "github.com/nao1215/oniongen/internal/log"
	"github.com/nao1215/oniongen/internal/model"
	"github.com/nao1215/oniongen/internal/onion"
	"github.com/nao1215/oniongen/internal/report"
)

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [pattern]",
		Short: "Generate onion addresses until one matches a pattern",
		Long: `Generate creates Tor v3 onion service identities one after another and
tests each address (without ".onion") against a regular expression.

Every match is written to <output>/<address>/ as a hidden service directory.
Generation stops when a limit is reached or on Ctrl+C.

Examples:
  # Find one address starting with "tor"
  oniongen generate -m 1 '^tor'

  # Count how many of one million addresses contain "onion"
  oniongen generate -n 1000000 --no-save onion

  # Keep every candidate key in an audit file
  oniongen generate -m 3 -a audit.csv '^abc'

  # Write a Markdown report
  oniongen generate -m 1 --markdown -r report.md '^tor'`,
		Args: cobra.MaximumNArgs(1),
		RunE: runGenerateCmd,
	}

	// Limits and matching
	cmd.Flags().Uint64P("generate-max", "n", 0,
		"Stop after generating this many addresses (0 = unlimited)")
	cmd.Flags().Uint64P("match-max", "m", 0,
		"Stop after this many matches (0 = unlimited)")
	cmd.Flags().BoolP("ignore-case", "i", false,
		"Match the pattern case-insensitively")

	// Output
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir(),
		"Root directory for matched hidden service directories")
	cmd.Flags().Bool("no-save", false,
		"Count matches without writing any key material")
	cmd.Flags().StringP("audit-file", "a", "",
		"Append one \"address,key\" line per candidate to this file (contains private keys)")
	cmd.Flags().Duration("progress", config.DefaultProgressInterval,
		"Progress output interval (0 disables)")

	// Ledger
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite session ledger")
	cmd.Flags().Bool("no-db", false,
		"Do not record the session in the ledger")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .oniongen in current or home directory)")

	// Report
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().Bool("markdown", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runGenerateCmd executes the generate command.
func runGenerateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildGenerateConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runGenerate(ctx, cfg, logger, cmd.OutOrStdout())
}

// loadConfigFile applies the configuration file to cfg.
// An explicitly given path must exist; the default locations are optional.
func loadConfigFile(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
		}
		return nil
	}

	file, err := config.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	file.Apply(cfg)
	return nil
}

// buildGenerateConfig creates a Config from defaults, the configuration
// file and the flags the user actually set, in that order.
func buildGenerateConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := loadConfigFile(cmd, cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	var err error

	cfg.Verbose = getVerboseFlag(cmd)

	if len(args) > 0 {
		cfg.Pattern = args[0]
	}
	if flags.Changed("ignore-case") {
		if cfg.IgnoreCase, err = flags.GetBool("ignore-case"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("generate-max") {
		if cfg.GenerateMax, err = flags.GetUint64("generate-max"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("match-max") {
		if cfg.MatchMax, err = flags.GetUint64("match-max"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("output") {
		if cfg.OutputDir, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-save") {
		if cfg.NoSave, err = flags.GetBool("no-save"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("audit-file") {
		if cfg.AuditFile, err = flags.GetString("audit-file"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("progress") {
		if cfg.ProgressInterval, err = flags.GetDuration("progress"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-db") {
		noDB, err := flags.GetBool("no-db")
		if err != nil {
			return nil, err
		}
		cfg.SaveToDB = !noDB
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// engineLimit converts a configured limit, where 0 means unlimited.
func engineLimit(n uint64) uint64 {
	if n == 0 {
		return generator.Unlimited
	}
	return n
}

// newIdentity is the engine's factory.
func newIdentity() (generator.Identity, error) {
	id, err := onion.Generate(nil)
	if err != nil {
		// Return an untyped nil so the engine sees no identity.
		return nil, err
	}
	return id, nil
}

// runGenerate runs one generation session and writes its report.
func runGenerate(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	pattern, err := generator.CompilePattern(cfg.Pattern, cfg.IgnoreCase)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	if pattern == nil {
		logger.Warn("no pattern given, addresses are generated but never matched")
	}

	// The ledger outlives an interrupt, so it never sees ctx's cancellation.
	dbCtx := context.WithoutCancel(ctx)

	var db *database.MatchDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	recorder := newMatchRecorder(db, logger)

	opts := []generator.Option{
		generator.WithLogger(logger),
		generator.WithPattern(pattern),
		generator.WithGenerateMax(engineLimit(cfg.GenerateMax)),
		generator.WithMatchMax(engineLimit(cfg.MatchMax)),
	}
	if cfg.NoSave {
		opts = append(opts, generator.WithDirectoryPicker(recorder.recordUnsaved))
	} else {
		opts = append(opts,
			generator.WithDirectoryPicker(hsdir.PickUnder(cfg.OutputDir)),
			generator.WithPersister(recorder.persistWith(hsdir.NewWriter(logger))),
		)
	}

	engine, err := generator.New(newIdentity, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.AuditFile != "" {
		detach, closeAudit, err := attachAuditFile(engine, cfg.AuditFile)
		if err != nil {
			return err
		}
		defer closeAudit()
		defer detach()
	}

	if cfg.ProgressInterval > 0 {
		detach := engine.Audit().Attach(newProgressHandler(engine, out, cfg.ProgressInterval))
		defer detach()
	}

	fmt.Fprintln(out, "Generating onion addresses...")

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start generation: %w", err)
	}

	st := engine.Stats()
	rep := model.NewSessionReport(st.SessionID, cfg.MatchPattern(), st.StartedAt)
	rep.GenerateMax = cfg.GenerateMax
	rep.MatchMax = cfg.MatchMax

	if db != nil {
		if err := db.BeginSession(dbCtx, rep); err != nil {
			logger.Error("failed to record session", "error", err)
		}
	}
	recorder.begin(rep)
	logger.Debug("session started", "session", rep.ID)

	sessionErr := waitForEngine(ctx, engine, logger)

	st = engine.Stats()
	rep.Finish(st.FinishedAt, st.Generated, st.Matched, sessionStatus(st, sessionErr), sessionErr)

	if db != nil {
		if err := db.FinishSession(dbCtx, rep); err != nil {
			logger.Error("failed to finish session", "error", err)
		}
	}

	if err := outputReport(cfg, rep, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return sessionErr
}

// waitForEngine blocks until the session ends. Cancellation of ctx stops
// the engine, and the session then ends normally as stopped.
func waitForEngine(ctx context.Context, engine *generator.Engine, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("received shutdown signal, stopping...")
			engine.Stop()
		case <-engine.Done():
		}
		return nil
	})

	g.Go(func() error {
		return engine.Wait(context.Background())
	})

	return g.Wait()
}

// sessionStatus maps the end of a session to its recorded status.
func sessionStatus(st generator.Stats, err error) model.SessionStatus {
	switch {
	case err != nil:
		return model.StatusFailed
	case st.Generated >= st.GenerateMax || st.Matched >= st.MatchMax:
		return model.StatusCompleted
	default:
		return model.StatusStopped
	}
}

// attachAuditFile appends audit lines to path. The file is created with
// 0600 permissions because every line carries a private key.
func attachAuditFile(engine *generator.Engine, path string) (detach func(), closeFile func(), err error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // User-provided audit path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	detach = engine.Audit().Attach(oglog.NewLineHandler(f))
	return detach, func() { _ = f.Close() }, nil
}

// progressHandler is an audit sink that prints the running counters at
// most once per interval. It ignores the record content.
type progressHandler struct {
	engine    *generator.Engine
	out       io.Writer
	sometimes *rate.Sometimes
}

func newProgressHandler(engine *generator.Engine, out io.Writer, interval time.Duration) *progressHandler {
	return &progressHandler{
		engine:    engine,
		out:       out,
		sometimes: &rate.Sometimes{Interval: interval},
	}
}

func (h *progressHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *progressHandler) Handle(context.Context, slog.Record) error {
	h.sometimes.Do(func() {
		st := h.engine.Stats()
		elapsed := st.Elapsed()
		perSecond := 0.0
		if elapsed > 0 {
			perSecond = float64(st.Generated) / elapsed.Seconds()
		}
		fmt.Fprintf(h.out, "  generated %s, matched %s (%s/s, %s)\n",
			formatCount(st.Generated),
			formatCount(st.Matched),
			humanize.CommafWithDigits(perSecond, 1),
			elapsed.Round(time.Second),
		)
	})
	return nil
}

// formatCount formats n with thousands separators.
func formatCount(n uint64) string {
	if n > math.MaxInt64 {
		n = math.MaxInt64
	}
	return humanize.Comma(int64(n))
}

func (h *progressHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *progressHandler) WithGroup(string) slog.Handler { return h }

// matchRecorder records matches in the session report and the ledger.
// Matches found before begin is called are held until then, since the
// ledger needs the session row first.
type matchRecorder struct {
	mu      sync.Mutex
	db      *database.MatchDB
	logger  *slog.Logger
	report  *model.SessionReport
	pending []model.Match
}

func newMatchRecorder(db *database.MatchDB, logger *slog.Logger) *matchRecorder {
	return &matchRecorder{db: db, logger: logger}
}

// begin attaches the session report and flushes pending matches.
func (r *matchRecorder) begin(rep *model.SessionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report = rep
	for _, m := range r.pending {
		r.store(m)
	}
	r.pending = nil
}

func (r *matchRecorder) record(m model.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.report == nil {
		r.pending = append(r.pending, m)
		return
	}
	r.store(m)
}

// store must be called with r.mu held.
func (r *matchRecorder) store(m model.Match) {
	r.report.AddMatch(m)
	if r.db == nil {
		return
	}
	if err := r.db.InsertMatch(context.Background(), r.report.ID, m); err != nil {
		r.logger.Error("failed to record match", "address", m.Address, "error", err)
	}
}

// recordUnsaved is a DirectoryPicker that records the match and declines
// to give it a location, so nothing is written to disk.
func (r *matchRecorder) recordUnsaved(id generator.Identity) (string, bool) {
	r.record(model.Match{Address: id.Address(), FoundAt: time.Now()})
	return "", false
}

// persistWith wraps p so that each successfully persisted match is recorded.
func (r *matchRecorder) persistWith(p generator.Persister) generator.Persister {
	return generator.PersisterFunc(func(ctx context.Context, id generator.Identity, dir string) error {
		if err := p.Persist(ctx, id, dir); err != nil {
			return err
		}
		r.record(model.Match{Address: id.Address(), Directory: dir, FoundAt: time.Now()})
		return nil
	})
}

// openReportOutput returns the report destination and a close function.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list where keys are stored, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// newReportWriter returns the writer for the configured format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReport writes the session report in the requested format.
func outputReport(cfg *config.Config, rep *model.SessionReport, stdout io.Writer) error {
	w, closeOutput, err := openReportOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()

	_, err = newReportWriter(cfg, w).Write(rep)
	return err
}
