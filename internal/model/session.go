package model

import (
	"time"
)

// SessionStatus is how a generation session ended.
type SessionStatus string

const (
	// StatusRunning marks a session that has not finished yet.
	StatusRunning SessionStatus = "running"

	// StatusCompleted means a generate or match limit was reached.
	StatusCompleted SessionStatus = "completed"

	// StatusStopped means the session was stopped before reaching a limit,
	// for example by SIGINT.
	StatusStopped SessionStatus = "stopped"

	// StatusFailed means a collaborator failure ended the session.
	StatusFailed SessionStatus = "failed"
)

// String returns the status name.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid reports whether s is a known status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// Match is one address that matched the session pattern.
type Match struct {
	// Address is the 56-character address without the ".onion" suffix.
	Address string `json:"address"`

	// Directory is where the hidden service directory was written.
	// Empty when the match was counted but not saved.
	Directory string `json:"directory,omitempty"`

	// FoundAt is when the match was recorded.
	FoundAt time.Time `json:"found_at"`
}

// Hostname returns the address with the ".onion" suffix.
func (m Match) Hostname() string {
	return m.Address + ".onion"
}

// Saved reports whether the match was written to disk.
func (m Match) Saved() bool {
	return m.Directory != ""
}

// SessionReport summarizes one generation session.
type SessionReport struct {
	// ID is the session UUID.
	ID string `json:"id"`

	// Pattern is the regular expression matched against addresses.
	Pattern string `json:"pattern,omitempty"`

	// GenerateMax and MatchMax are the configured limits.
	// Zero means unlimited.
	GenerateMax uint64 `json:"generate_max,omitempty"`
	MatchMax    uint64 `json:"match_max,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	Generated uint64 `json:"generated"`
	Matched   uint64 `json:"matched"`

	Status SessionStatus `json:"status"`

	// Error is the failure message for a failed session.
	Error string `json:"error,omitempty"`

	// Matches lists the matches recorded during the session.
	Matches []Match `json:"matches,omitempty"`
}

// NewSessionReport creates a running report for the given session.
func NewSessionReport(id, pattern string, startedAt time.Time) *SessionReport {
	return &SessionReport{
		ID:        id,
		Pattern:   pattern,
		StartedAt: startedAt,
		Status:    StatusRunning,
		Matches:   make([]Match, 0),
	}
}

// AddMatch appends a match to the report.
func (r *SessionReport) AddMatch(m Match) {
	r.Matches = append(r.Matches, m)
}

// Unmatched returns the number of generated addresses that did not match.
func (r *SessionReport) Unmatched() uint64 {
	if r.Matched > r.Generated {
		return 0
	}
	return r.Generated - r.Matched
}

// Duration returns how long the session ran. A running session is
// measured to now.
func (r *SessionReport) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Rate returns generated addresses per second.
func (r *SessionReport) Rate() float64 {
	d := r.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(r.Generated) / d
}

// MatchRatio returns matched / generated, or 0 before anything was generated.
func (r *SessionReport) MatchRatio() float64 {
	if r.Generated == 0 {
		return 0
	}
	return float64(r.Matched) / float64(r.Generated)
}

// SavedCount returns the number of matches written to disk.
func (r *SessionReport) SavedCount() int {
	n := 0
	for _, m := range r.Matches {
		if m.Saved() {
			n++
		}
	}
	return n
}

// Finish records the end of the session.
func (r *SessionReport) Finish(finishedAt time.Time, generated, matched uint64, status SessionStatus, err error) {
	r.FinishedAt = finishedAt
	r.Generated = generated
	r.Matched = matched
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
}
