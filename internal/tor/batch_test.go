package tor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingDialer tracks the peak number of concurrent dials.
type countingDialer struct {
	active atomic.Int32
	peak   atomic.Int32
	fail   map[string]bool
}

func (d *countingDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	host, _, _ := net.SplitHostPort(address)
	if d.fail[host] {
		return nil, errors.New("unreachable")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func TestNewBatchProber(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProber(&stubDialer{}, 80)
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected a default logger")
		}
	})

	t.Run("non-positive concurrency is ignored", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProber(&stubDialer{}, 80, WithConcurrency(0), WithConcurrency(-2))
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
	})
}

func TestBatchProberProbeAll(t *testing.T) {
	t.Parallel()

	t.Run("reports every address in its slot", func(t *testing.T) {
		t.Parallel()

		hostnames := make([]string, 6)
		for i := range hostnames {
			hostnames[i] = newHostname(t)
		}
		d := &countingDialer{fail: map[string]bool{hostnames[1]: true, hostnames[4]: true}}

		bp := NewBatchProber(d, 80,
			WithConcurrency(2),
			WithBatchLogger(slog.New(slog.DiscardHandler)),
		)

		var mu sync.Mutex
		results := make([]*ProbeResult, len(hostnames))
		err := bp.ProbeAll(t.Context(), hostnames, func(r *ProbeResult, i int) {
			mu.Lock()
			defer mu.Unlock()
			results[i] = r
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i, r := range results {
			if r == nil {
				t.Fatalf("missing result %d", i)
			}
			if r.Hostname != hostnames[i] {
				t.Errorf("result %d: hostname %q, expected %q", i, r.Hostname, hostnames[i])
			}
			want := ProbePublished
			if i == 1 || i == 4 {
				want = ProbeUnreachable
			}
			if r.Status != want {
				t.Errorf("result %d: expected %s, got %s", i, want, r.Status)
			}
		}
		if peak := d.peak.Load(); peak > 2 {
			t.Errorf("expected at most 2 concurrent probes, saw %d", peak)
		}
	})

	t.Run("invalid address fails the batch", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProber(&countingDialer{}, 80, WithBatchLogger(slog.New(slog.DiscardHandler)))
		err := bp.ProbeAll(t.Context(), []string{newHostname(t), "not-an-onion"}, func(*ProbeResult, int) {})
		if err == nil {
			t.Error("expected error for invalid address")
		}
	})

	t.Run("cancelled context stops the batch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		var calls atomic.Int32
		bp := NewBatchProber(&countingDialer{}, 80, WithBatchLogger(slog.New(slog.DiscardHandler)))
		err := bp.ProbeAll(ctx, []string{newHostname(t), newHostname(t)}, func(*ProbeResult, int) {
			calls.Add(1)
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no callbacks, got %d", calls.Load())
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProber(&countingDialer{}, 80)
		if err := bp.ProbeAll(t.Context(), nil, func(*ProbeResult, int) {}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
