package log

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// LineHandler writes the message of each record as a single line and
// drops attributes. It is the audit file format: one "address,key" line
// per generated identity.
type LineHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
}

// NewLineHandler returns a LineHandler writing records at Info and above to w.
func NewLineHandler(w io.Writer) *LineHandler {
	return &LineHandler{mu: &sync.Mutex{}, w: w, level: slog.LevelInfo}
}

// Enabled reports whether level is at or above Info.
func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes r.Message followed by a newline.
func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, len(r.Message)+1)
	buf = append(buf, r.Message...)
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns h; line output carries no attributes.
func (h *LineHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup returns h.
func (h *LineHandler) WithGroup(string) slog.Handler { return h }

// DefaultBufferSize is the number of lines a BufferHandler keeps by default.
const DefaultBufferSize = 1024

// BufferHandler keeps the messages of the most recent records in memory.
// When full, the oldest line is overwritten. It is safe for concurrent use.
type BufferHandler struct {
	mu    sync.Mutex
	lines []string
	next  int
	total uint64
}

// NewBufferHandler returns a BufferHandler holding up to capacity lines.
// A non-positive capacity uses DefaultBufferSize.
func NewBufferHandler(capacity int) *BufferHandler {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &BufferHandler{lines: make([]string, 0, capacity)}
}

// Enabled accepts every level.
func (b *BufferHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores r.Message.
func (b *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) < cap(b.lines) {
		b.lines = append(b.lines, r.Message)
	} else {
		b.lines[b.next] = r.Message
		b.next = (b.next + 1) % len(b.lines)
	}
	b.total++
	return nil
}

// WithAttrs returns b.
func (b *BufferHandler) WithAttrs([]slog.Attr) slog.Handler { return b }

// WithGroup returns b.
func (b *BufferHandler) WithGroup(string) slog.Handler { return b }

// Lines returns the retained lines, oldest first.
func (b *BufferHandler) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

// Total returns the number of records ever handled, including overwritten ones.
func (b *BufferHandler) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
