// Package generator runs the onion identity generation loop.
//
// An Engine owns one background goroutine per session. The goroutine
// creates a candidate identity, writes it to the audit stream, tests its
// address against an optional pattern, persists matches and counts, until
// the generate or match limit is reached or Stop is called.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	oglog "github.com/nao1215/oniongen/internal/log"
)

// Identity is a generated candidate. The engine owns it for one iteration
// and closes it when the iteration ends.
type Identity interface {
	// Address is the text the pattern is matched against.
	Address() string
	// KeyString serializes the key, including the secret half when asked.
	KeyString(includePrivate bool) string
	// Close releases the identity and any key material it holds.
	Close() error
}

// Factory creates one candidate identity. It may be expensive.
type Factory func() (Identity, error)

// DirectoryPicker chooses where a matched identity is persisted.
// Returning ok == false records the match without persisting it.
type DirectoryPicker func(id Identity) (dir string, ok bool)

// Persister writes a matched identity to dir.
type Persister interface {
	Persist(ctx context.Context, id Identity, dir string) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, id Identity, dir string) error

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context, id Identity, dir string) error {
	return f(ctx, id, dir)
}

// State is the lifecycle state of an Engine.
type State int

const (
	// StateIdle means no session is running.
	StateIdle State = iota
	// StateRunning means the loop is executing.
	StateRunning
	// StateStopping means Stop was called and the loop has not exited yet.
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Unlimited is the default generate and match limit.
const Unlimited uint64 = math.MaxUint64

// closedChan is returned by Done before the first session.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// session is one run of the loop, from Start until the loop exits.
type session struct {
	id       string
	started  time.Time
	finished time.Time
	done     chan struct{}
	err      error
}

// loopConfig is the collaborator set captured when a session starts.
type loopConfig struct {
	pattern   *regexp.Regexp
	picker    DirectoryPicker
	persister Persister
}

// Engine generates onion identities in the background.
//
// Start and Stop never block. Counters and Running may be read from any
// goroutine. Everything else is configured between sessions; setters
// return ErrRunning while a session is active.
type Engine struct {
	factory Factory
	logger  *slog.Logger
	audit   *oglog.ForwardingHandler

	running       atomic.Bool
	stopRequested atomic.Bool

	generated   atomic.Uint64
	matched     atomic.Uint64
	generateMax atomic.Uint64
	matchMax    atomic.Uint64

	// mu guards the fields below and serializes Start, Close and the setters.
	mu        sync.Mutex
	closed    bool
	pattern   *regexp.Regexp
	picker    DirectoryPicker
	persister Persister
	session   *session
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAuditSink attaches a sink to the audit stream at construction time.
// It may be given more than once.
func WithAuditSink(sink slog.Handler) Option {
	return func(e *Engine) {
		e.audit.Attach(sink)
	}
}

// WithPattern sets the pattern candidate addresses are matched against.
func WithPattern(pattern *regexp.Regexp) Option {
	return func(e *Engine) {
		e.pattern = pattern
	}
}

// WithDirectoryPicker sets the directory picker.
func WithDirectoryPicker(picker DirectoryPicker) Option {
	return func(e *Engine) {
		e.picker = picker
	}
}

// WithPersister sets the persister used for matches that got a directory.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithGenerateMax sets the total number of identities to generate.
func WithGenerateMax(n uint64) Option {
	return func(e *Engine) {
		e.generateMax.Store(n)
	}
}

// WithMatchMax sets the total number of matches to find.
func WithMatchMax(n uint64) Option {
	return func(e *Engine) {
		e.matchMax.Store(n)
	}
}

// New creates an idle Engine that draws candidates from factory.
func New(factory Factory, opts ...Option) (*Engine, error) {
	if factory == nil {
		return nil, ErrNoFactory
	}

	e := &Engine{
		factory: factory,
		audit:   oglog.NewForwardingHandler(),
	}
	e.generateMax.Store(Unlimited)
	e.matchMax.Store(Unlimited)

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// CompilePattern compiles a regular expression for address matching.
// An empty expression yields a nil pattern, which matches nothing.
func CompilePattern(expr string, ignoreCase bool) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// Start begins a new session on a background goroutine and returns at once.
// Counters are not reset; call ResetCount between sessions for a fresh count.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.stopRequested.Store(false)

	s := &session{
		id:      uuid.NewString(),
		started: time.Now(),
		done:    make(chan struct{}),
	}
	e.session = s

	go e.run(s, loopConfig{
		pattern:   e.pattern,
		picker:    e.picker,
		persister: e.persister,
	})
	return nil
}

// Stop asks the running session to end. It returns immediately; use Done
// or Wait to observe the loop exiting. Calling Stop while idle is harmless.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Close stops the running session, if any, and waits for its loop to exit.
// After Close, Start returns ErrClosed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	s := e.session
	e.mu.Unlock()

	e.Stop()
	if s != nil {
		<-s.done
	}
	return nil
}

// Done returns a channel closed when the current or most recent session
// ends. Before the first Start it returns a closed channel.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return closedChan
	}
	return e.session.done
}

// Wait blocks until the current session ends or ctx is done. It returns the
// session's failure, nil for a normal end, or ctx.Err().
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()

	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure that ended the most recent session, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	return e.session.err
}

// ResetCount zeroes both counters. It returns ErrRunning during a session.
func (e *Engine) ResetCount() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return ErrRunning
	}
	e.generated.Store(0)
	e.matched.Store(0)
	return nil
}

// Running reports whether the loop is executing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	if !e.running.Load() {
		return StateIdle
	}
	if e.stopRequested.Load() {
		return StateStopping
	}
	return StateRunning
}

// GeneratedCount returns the number of completed iterations.
func (e *Engine) GeneratedCount() uint64 {
	return e.generated.Load()
}

// MatchedCount returns the number of matches, persisted or not.
func (e *Engine) MatchedCount() uint64 {
	return e.matched.Load()
}

// GenerateMax returns the generate limit.
func (e *Engine) GenerateMax() uint64 {
	return e.generateMax.Load()
}

// MatchMax returns the match limit.
func (e *Engine) MatchMax() uint64 {
	return e.matchMax.Load()
}

// SetGenerateMax sets the generate limit.
func (e *Engine) SetGenerateMax(n uint64) error {
	return e.whileIdle(func() { e.generateMax.Store(n) })
}

// SetMatchMax sets the match limit.
func (e *Engine) SetMatchMax(n uint64) error {
	return e.whileIdle(func() { e.matchMax.Store(n) })
}

// Pattern returns the configured pattern, or nil.
func (e *Engine) Pattern() *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pattern
}

// SetPattern sets the pattern. nil disables matching.
func (e *Engine) SetPattern(p *regexp.Regexp) error {
	return e.whileIdle(func() { e.pattern = p })
}

// SetDirectoryPicker sets the directory picker. nil records matches only.
func (e *Engine) SetDirectoryPicker(picker DirectoryPicker) error {
	return e.whileIdle(func() { e.picker = picker })
}

// SetPersister sets the persister.
func (e *Engine) SetPersister(p Persister) error {
	return e.whileIdle(func() { e.persister = p })
}

// Audit returns the audit stream. Attach sinks to it to receive one
// "address,key" record per generated candidate.
func (e *Engine) Audit() *oglog.ForwardingHandler {
	return e.audit
}

// SessionID returns the ID of the current or most recent session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ""
	}
	return e.session.id
}

func (e *Engine) whileIdle(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return ErrRunning
	}
	fn()
	return nil
}

// Stats is a point-in-time view of an Engine.
type Stats struct {
	SessionID   string
	State       State
	Generated   uint64
	Matched     uint64
	GenerateMax uint64
	MatchMax    uint64
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Elapsed returns the session duration, measured to now while running.
func (s Stats) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Stats returns the current counters and session information.
func (e *Engine) Stats() Stats {
	st := Stats{
		State:       e.State(),
		Generated:   e.generated.Load(),
		Matched:     e.matched.Load(),
		GenerateMax: e.generateMax.Load(),
		MatchMax:    e.matchMax.Load(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.session; s != nil {
		st.SessionID = s.id
		st.StartedAt = s.started
		st.FinishedAt = s.finished
		st.Err = s.err
	}
	return st
}

// run executes one session and returns the engine to idle.
func (e *Engine) run(s *session, cfg loopConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := e.logger.With("session", s.id)
	audit := e.audit.WithAttrs([]slog.Attr{slog.String("session", s.id)})

	pattern := ""
	if cfg.pattern != nil {
		pattern = cfg.pattern.String()
	}
	logger.Info("beginning onion address generation",
		"pattern", pattern,
		"generate_max", e.generateMax.Load(),
		"match_max", e.matchMax.Load(),
	)

	err := e.loop(ctx, s.id, cfg, logger, audit)

	if err != nil {
		logger.Error("onion address generation failed",
			"generated", e.generated.Load(),
			"matched", e.matched.Load(),
			"error", err,
		)
	} else {
		logger.Info("stopped onion address generation",
			"generated", e.generated.Load(),
			"matched", e.matched.Load(),
		)
	}

	e.mu.Lock()
	s.err = err
	s.finished = time.Now()
	e.stopRequested.Store(false)
	e.running.Store(false)
	e.mu.Unlock()

	close(s.done)
}

func (e *Engine) loop(ctx context.Context, sessionID string, cfg loopConfig, logger *slog.Logger, audit slog.Handler) error {
	for !e.stopRequested.Load() &&
		e.generated.Load() < e.generateMax.Load() &&
		e.matched.Load() < e.matchMax.Load() {
		completed, err := e.iterate(ctx, sessionID, cfg, logger, audit)
		if err != nil {
			return err
		}
		if !completed {
			return nil
		}
	}
	return nil
}

// iterate runs one generate, audit, match, persist, count cycle. It reports
// completed == false when a stop request abandoned the iteration, which is
// then not counted.
func (e *Engine) iterate(ctx context.Context, sessionID string, cfg loopConfig, logger *slog.Logger, audit slog.Handler) (completed bool, err error) {
	op := OpCreate
	address := ""

	defer func() {
		if r := recover(); r != nil {
			completed = false
			err = &SessionError{SessionID: sessionID, Op: op, Address: address, Err: &panicError{value: r}}
		}
	}()

	logger.Debug("generating onion")
	id, err := e.factory()
	if err != nil {
		return false, &SessionError{SessionID: sessionID, Op: OpCreate, Err: err}
	}
	if id == nil {
		return false, &SessionError{SessionID: sessionID, Op: OpCreate, Err: errors.New("factory returned no identity")}
	}
	defer func() {
		if cerr := id.Close(); cerr != nil {
			logger.Warn("failed to release identity", "address", address, "error", cerr)
		}
	}()

	address = id.Address()
	logger.Debug("onion generated", "address", address)

	if e.stopRequested.Load() {
		return false, nil
	}

	op = OpAudit
	if err := writeAudit(ctx, audit, address, id.KeyString(true)); err != nil {
		return false, &SessionError{SessionID: sessionID, Op: OpAudit, Address: address, Err: err}
	}

	if e.stopRequested.Load() {
		return false, nil
	}

	if cfg.pattern != nil && cfg.pattern.MatchString(address) {
		logger.Info("found matching onion", "address", address)

		if cfg.picker != nil {
			op = OpPick
			if dir, ok := cfg.picker(id); ok {
				op = OpPersist
				if cfg.persister == nil {
					return false, &SessionError{SessionID: sessionID, Op: OpPersist, Address: address, Err: ErrNoPersister}
				}
				if err := cfg.persister.Persist(ctx, id, dir); err != nil {
					return false, &SessionError{SessionID: sessionID, Op: OpPersist, Address: address, Err: err}
				}
				logger.Debug("persisted matching onion", "address", address, "dir", dir)
			}
		}
		e.matched.Add(1)
	}

	e.generated.Add(1)
	return true, nil
}

// writeAudit records one "address,key" line. The handler is called directly
// so that sink failures reach the loop instead of being dropped by slog.Logger.
func writeAudit(ctx context.Context, audit slog.Handler, address, key string) error {
	if !audit.Enabled(ctx, slog.LevelInfo) {
		return nil
	}
	r := slog.NewRecord(time.Now(), slog.LevelInfo, address+","+key, 0)
	return audit.Handle(ctx, r)
}
