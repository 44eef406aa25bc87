package generator

import (
	"errors"
	"fmt"
)

// Engine state errors.
var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("generation session already running")

	// ErrRunning is returned by operations that are only valid between
	// sessions, such as ResetCount and the setters.
	ErrRunning = errors.New("operation not allowed while a session is running")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("engine is closed")

	// ErrNoFactory is returned by New when no identity factory is given.
	ErrNoFactory = errors.New("identity factory is required")

	// ErrNoPersister is returned when a picker produced a location but no
	// persister is configured.
	ErrNoPersister = errors.New("no persister configured for matched identity")
)

// Operations reported in SessionError.
const (
	OpCreate  = "create identity"
	OpAudit   = "write audit log"
	OpPick    = "pick directory"
	OpPersist = "persist identity"
)

// SessionError describes a collaborator failure that ended a session.
type SessionError struct {
	// SessionID identifies the session that failed.
	SessionID string
	// Op is the step that failed, one of the Op constants.
	Op string
	// Address is the candidate being processed, if one had been created.
	Address string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("session %s: %s %s: %v", e.SessionID, e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// panicError wraps a value recovered from a collaborator panic.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
