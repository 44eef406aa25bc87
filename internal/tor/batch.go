package tor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of addresses probed at once.
const DefaultConcurrency = 4

// BatchProber probes several addresses concurrently through one Dialer.
// Each probe opens its own Tor circuit, so the limit stays small.
type BatchProber struct {
	dialer      Dialer
	port        int
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProber.
type BatchOption func(*BatchProber)

// WithBatchLogger sets a custom logger for batch probing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProber) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent probes.
// Values below 1 are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProber) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProber creates a BatchProber dialing port on every address.
func NewBatchProber(d Dialer, port int, opts ...BatchOption) *BatchProber {
	bp := &BatchProber{
		dialer:      d,
		port:        port,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProbeAll probes every hostname and calls callback as each result arrives.
// The callback runs on the probing goroutine and must be safe for
// concurrent use. The index is the hostname's position in hostnames.
//
// An invalid address stops the batch and is returned, as is cancellation
// of ctx. Unreachable addresses are results, not errors.
func (bp *BatchProber) ProbeAll(ctx context.Context, hostnames []string, callback func(result *ProbeResult, index int)) error {
	bp.logger.Debug("starting batch probe",
		"total", len(hostnames),
		"concurrency", bp.concurrency,
		"port", bp.port,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, hostname := range hostnames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result, err := Probe(ctx, bp.dialer, hostname, bp.port)
			if err != nil {
				return err
			}

			bp.logger.Debug("probe finished",
				"hostname", result.Hostname,
				"status", string(result.Status),
				"latency", result.Latency,
			)
			callback(result, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Debug("batch probe complete",
		"total", len(hostnames),
		"elapsed", time.Since(startTime),
	)
	return err
}
