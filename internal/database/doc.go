// Package database provides the SQLite ledger for oniongen.
//
// MatchDB stores:
//   - one row per generation session with its limits, counters and status
//   - one row per matched address with the directory it was written to
//
// Secret keys are never written to the database. They stay in the hidden
// service directories the ledger points at.
//
// The driver is modernc.org/sqlite, a CGO-free SQLite, so the database is
// a single file and the binary cross-compiles.
package database
