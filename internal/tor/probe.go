package tor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nao1215/oniongen/internal/onion"
)

// ProbeStatus is the outcome of probing a hidden service address.
type ProbeStatus string

const (
	// ProbePublished means a connection to the address succeeded, so a
	// descriptor for it is already on the network.
	ProbePublished ProbeStatus = "published"

	// ProbeUnreachable means no service answered before the timeout.
	ProbeUnreachable ProbeStatus = "unreachable"
)

// Dialer opens connections through Tor. *Client satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeResult holds the result for one address.
type ProbeResult struct {
	Hostname string
	Port     int
	Status   ProbeStatus
	Latency  time.Duration

	// Err is the dial error for unreachable addresses.
	Err error
}

// Probe dials hostname:port through d and reports whether anything answered.
//
// hostname is normalized first and must be a valid v3 address. A dial error
// yields ProbeUnreachable with Err set. Cancellation of ctx is returned as
// an error rather than a status, since it says nothing about the address.
func Probe(ctx context.Context, d Dialer, hostname string, port int) (*ProbeResult, error) {
	host, err := onion.NormalizeAddress(hostname)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", hostname, err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("probe %s: %w: %d", host, ErrInvalidPort, port)
	}

	result := &ProbeResult{Hostname: host, Port: port}
	start := time.Now()

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	result.Latency = time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		result.Status = ProbeUnreachable
		result.Err = err
		return result, nil
	}
	_ = conn.Close()

	result.Status = ProbePublished
	return result, nil
}
