package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/oniongen/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "oniongen.db"

// ErrSessionNotFound is returned when a session ID is not in the ledger.
var ErrSessionNotFound = errors.New("session not found")

// MatchDB is the SQLite ledger of generation sessions and their matches.
// Key material is never stored; a match row points at the directory that
// holds the keys.
type MatchDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures MatchDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a MatchDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*MatchDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

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

	// mode=rw refuses to create a missing file, mode=rwc allows it.
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

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MatchDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Close closes the database connection.
func (mdb *MatchDB) Close() error {
	return mdb.db.Close()
}

// Path returns the database file path.
func (mdb *MatchDB) Path() string {
	return mdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (mdb *MatchDB) createTables() error {
	schema := `
	-- One row per generation session
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		pattern TEXT NOT NULL DEFAULT '',
		generate_max INTEGER NOT NULL DEFAULT 0,
		match_max INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		generated INTEGER NOT NULL DEFAULT 0,
		matched INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	-- Matched addresses; keys live in the directory, never here
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		address TEXT NOT NULL,
		directory TEXT NOT NULL DEFAULT '',
		found_at TEXT NOT NULL,
		UNIQUE(address)
	);

	CREATE INDEX IF NOT EXISTS idx_matches_session ON matches(session_id);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// BeginSession records a new session.
func (mdb *MatchDB) BeginSession(ctx context.Context, report *model.SessionReport) error {
	query := `
	INSERT INTO sessions (id, pattern, generate_max, match_max, started_at, status)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := mdb.db.ExecContext(ctx, query,
		report.ID,
		report.Pattern,
		toInt64(report.GenerateMax),
		toInt64(report.MatchMax),
		formatTimestamp(report.StartedAt),
		string(report.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	return nil
}

// FinishSession stores the final counters and status of a session.
func (mdb *MatchDB) FinishSession(ctx context.Context, report *model.SessionReport) error {
	query := `
	UPDATE sessions
	SET finished_at = ?, generated = ?, matched = ?, status = ?, error = ?
	WHERE id = ?
	`

	result, err := mdb.db.ExecContext(ctx, query,
		formatTimestamp(report.FinishedAt),
		toInt64(report.Generated),
		toInt64(report.Matched),
		string(report.Status),
		report.Error,
		report.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, report.ID)
	}
	return nil
}

// InsertMatch records a matched address for a session.
// A repeated address updates the existing row.
func (mdb *MatchDB) InsertMatch(ctx context.Context, sessionID string, m model.Match) error {
	query := `
	INSERT INTO matches (session_id, address, directory, found_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		session_id = excluded.session_id,
		directory = excluded.directory,
		found_at = excluded.found_at
	`

	_, err := mdb.db.ExecContext(ctx, query,
		sessionID,
		m.Address,
		m.Directory,
		formatTimestamp(m.FoundAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// GetSession retrieves a session and its matches.
// It returns nil without error when the session does not exist.
func (mdb *MatchDB) GetSession(ctx context.Context, id string) (*model.SessionReport, error) {
	query := `
	SELECT id, pattern, generate_max, match_max, started_at, finished_at, generated, matched, status, error
	FROM sessions
	WHERE id = ?
	`

	report, err := scanSession(mdb.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	matches, err := mdb.ListMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	report.Matches = matches

	return report, nil
}

// ListSessions returns sessions, newest first. limit <= 0 returns all.
// Matches are not loaded; use GetSession or ListMatches.
func (mdb *MatchDB) ListSessions(ctx context.Context, limit int) ([]*model.SessionReport, error) {
	query := `
	SELECT id, pattern, generate_max, match_max, started_at, finished_at, generated, matched, status, error
	FROM sessions
	ORDER BY started_at DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.SessionReport
	for rows.Next() {
		report, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, report)
	}

	return sessions, rows.Err()
}

// ListMatches returns matches in the order they were found.
// An empty sessionID lists matches from every session.
func (mdb *MatchDB) ListMatches(ctx context.Context, sessionID string) ([]model.Match, error) {
	query := `
	SELECT address, directory, found_at
	FROM matches
	WHERE 1=1
	`
	args := make([]any, 0, 1)

	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY found_at, id"

	rows, err := mdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := make([]model.Match, 0)
	for rows.Next() {
		var m model.Match
		var foundAt string

		if err := rows.Scan(&m.Address, &m.Directory, &foundAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.FoundAt = parseTimestamp(foundAt)
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// CountMatches returns the number of matches for a session, or for all
// sessions when sessionID is empty.
func (mdb *MatchDB) CountMatches(ctx context.Context, sessionID string) (int, error) {
	query := "SELECT COUNT(*) FROM matches"
	args := make([]any, 0, 1)
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}

	var count int
	if err := mdb.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.SessionReport, error) {
	var (
		report      model.SessionReport
		generateMax int64
		matchMax    int64
		generated   int64
		matched     int64
		startedAt   string
		finishedAt  string
		status      string
	)

	err := row.Scan(
		&report.ID,
		&report.Pattern,
		&generateMax,
		&matchMax,
		&startedAt,
		&finishedAt,
		&generated,
		&matched,
		&status,
		&report.Error,
	)
	if err != nil {
		return nil, err
	}

	report.GenerateMax = toUint64(generateMax)
	report.MatchMax = toUint64(matchMax)
	report.Generated = toUint64(generated)
	report.Matched = toUint64(matched)
	report.StartedAt = parseTimestamp(startedAt)
	report.FinishedAt = parseTimestamp(finishedAt)
	report.Status = model.SessionStatus(status)

	return &report, nil
}

// toInt64 clamps v into SQLite's signed integer range.
func toInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func toUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// timestampLayout has a fixed width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
