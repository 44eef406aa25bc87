// Package model defines the data structures shared by the database,
// report and command packages.
//
//   - SessionReport: the summary of one generation session
//   - Match: an address that matched the session pattern
//   - SessionStatus: how a session ended
//
// The types serialize to JSON for reports and are stored by the
// database package.
package model
