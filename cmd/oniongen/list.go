package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/oniongen/internal/config"
	"github.com/nao1215/oniongen/internal/database"
	"github.com/nao1215/oniongen/internal/model"
)

// errNoSession is returned when the requested session is not in the ledger.
var errNoSession = errors.New("session not found")

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [session-id]",
		Short: "List recorded matches and sessions",
		Long: `List reads the session ledger written by generate.

Without arguments it prints every recorded match. With a session ID it
prints the full report of that session. With --sessions it prints the
most recent sessions.

Examples:
  # All matched addresses
  oniongen list

  # The last 10 sessions
  oniongen list --sessions --limit 10

  # One session as Markdown
  oniongen list --markdown 5f0c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runListCmd,
	}

	cmd.Flags().BoolP("sessions", "s", false,
		"List sessions instead of matches")
	cmd.Flags().IntP("limit", "l", 20,
		"Maximum number of sessions to list (0 = all)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite session ledger")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().Bool("markdown", false,
		"Output Markdown (mutually exclusive with --json)")

	return cmd
}

// listOptions holds the parsed list flags.
type listOptions struct {
	sessions  bool
	limit     int
	sessionID string
	cfg       *config.Config
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	opts := listOptions{cfg: cfg}
	flags := cmd.Flags()

	if opts.sessions, err = flags.GetBool("sessions"); err != nil {
		return err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if len(args) > 0 {
		opts.sessionID = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := setupLogger(cmd)

	// A read command never creates the ledger.
	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBDir, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Debug("database opened", "path", db.Path())

	return runList(cmd, db, opts)
}

// runList prints sessions, one session, or matches.
func runList(cmd *cobra.Command, db *database.MatchDB, opts listOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.sessionID != "":
		rep, err := db.GetSession(ctx, opts.sessionID)
		if err != nil {
			return err
		}
		if rep == nil {
			return fmt.Errorf("%w: %s", errNoSession, opts.sessionID)
		}
		_, err = newReportWriter(opts.cfg, out).Write(rep)
		return err

	case opts.sessions:
		sessions, err := db.ListSessions(ctx, opts.limit)
		if err != nil {
			return err
		}
		_, err = newReportWriter(opts.cfg, out).WriteSessions(sessions)
		return err

	default:
		matches, err := db.ListMatches(ctx, "")
		if err != nil {
			return err
		}
		if opts.cfg.JSONReport {
			return writeMatchesJSON(out, matches)
		}
		return writeMatchesTable(out, matches)
	}
}

// writeMatchesJSON writes matches as an indented JSON array.
func writeMatchesJSON(w io.Writer, matches []model.Match) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(matches)
}

// writeMatchesTable writes one aligned line per match.
func writeMatchesTable(w io.Writer, matches []model.Match) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "No matches recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOSTNAME\tFOUND\tDIRECTORY")
	for _, m := range matches {
		dir := m.Directory
		if dir == "" {
			dir = "(not saved)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Hostname(), m.FoundAt.Local().Format("2006-01-02 15:04:05"), dir)
	}
	return tw.Flush()
}
