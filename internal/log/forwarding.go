package log

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ForwardingHandler is an slog.Handler that fans records out to sinks
// attached at runtime. The producer writes to it without knowing where the
// records end up; consumers attach and detach sinks at any time.
//
// With no sinks attached it is disabled at every level and Handle is a
// no-op. It is safe for concurrent use.
type ForwardingHandler struct {
	hub    *sinkHub
	attrs  []slog.Attr
	groups []string
}

type sinkHub struct {
	mu     sync.RWMutex
	nextID uint64
	sinks  map[uint64]slog.Handler
	order  []uint64
}

// NewForwardingHandler returns a handler forwarding to the given sinks.
func NewForwardingHandler(sinks ...slog.Handler) *ForwardingHandler {
	h := &ForwardingHandler{hub: &sinkHub{sinks: make(map[uint64]slog.Handler)}}
	for _, s := range sinks {
		h.Attach(s)
	}
	return h
}

// Attach adds a sink and returns a function that detaches it again.
// Handlers derived through WithAttrs or WithGroup share the same sinks.
func (h *ForwardingHandler) Attach(sink slog.Handler) (detach func()) {
	if sink == nil {
		return func() {}
	}

	hub := h.hub
	hub.mu.Lock()
	id := hub.nextID
	hub.nextID++
	hub.sinks[id] = sink
	hub.order = append(hub.order, id)
	hub.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			delete(hub.sinks, id)
			for i, v := range hub.order {
				if v == id {
					hub.order = append(hub.order[:i], hub.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of attached sinks.
func (h *ForwardingHandler) Len() int {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	return len(h.hub.order)
}

func (h *ForwardingHandler) snapshot() []slog.Handler {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()

	out := make([]slog.Handler, 0, len(h.hub.order))
	for _, id := range h.hub.order {
		out = append(out, h.hub.sinks[id])
	}
	return out
}

// Enabled reports whether any attached sink accepts level.
func (h *ForwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.snapshot() {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes r to every sink enabled at its level, in attach order.
// Every sink sees the record even if an earlier one fails; the failures are
// joined into the returned error.
func (h *ForwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	sinks := h.snapshot()
	if len(sinks) == 0 {
		return nil
	}

	rec := h.decorate(r)
	var errs []error
	for _, s := range sinks {
		if !s.Enabled(ctx, rec.Level) {
			continue
		}
		if err := s.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// decorate applies the handler's own attrs and groups to r.
func (h *ForwardingHandler) decorate(r slog.Record) slog.Record {
	if len(h.attrs) == 0 && len(h.groups) == 0 {
		return r
	}

	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	out.AddAttrs(h.attrs...)
	out.AddAttrs(nest(h.groups, attrs)...)
	return out
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *ForwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := h.clone()
	next.attrs = append(next.attrs, nest(h.groups, attrs)...)
	return next
}

// WithGroup returns a handler that nests subsequent attrs under name.
func (h *ForwardingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.groups = append(next.groups, name)
	return next
}

func (h *ForwardingHandler) clone() *ForwardingHandler {
	return &ForwardingHandler{
		hub:    h.hub,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func nest(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(attrs) == 0 {
		return nil
	}
	for i := len(groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: groups[i], Value: slog.GroupValue(attrs...)}}
	}
	return attrs
}
