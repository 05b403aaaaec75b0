// Package channel implements the Channel Endpoint and Channel Selector
// of spec.md §4.2-§4.3: a single logical (host, port) link over which
// frames are exchanged, and the scorer that picks which channel should
// carry the next outbound segment.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mpat-go/mpat/frame"
	"github.com/mpat-go/mpat/metrics"
	"github.com/mpat-go/mpat/tcp"
	"github.com/mpat-go/mpat/logging"
)

// ErrChannel wraps every transport-level failure from an Endpoint
// exchange; spec.md §7 calls this a ChannelError.
var ErrChannel = errors.New("channel: transport error")

// Endpoint is one logical (host, port) link. It owns no long-lived
// connection: every exchange dials fresh, per spec.md §4.2 and §9's
// "per-frame connect cost" note.
type Endpoint struct {
	Name string
	Addr string

	// Dialer is overridable for tests; defaults to a zero-value
	// net.Dialer (no timeout, matching spec.md §5's "wait indefinitely"
	// reference behavior).
	Dialer net.Dialer
}

// NewEndpoint builds an Endpoint for the given name and host:port address.
func NewEndpoint(name, addr string) *Endpoint {
	return &Endpoint{Name: name, Addr: addr}
}

// SendAndAwait opens a fresh connection, writes frameBytes, reads
// exactly four response bytes, and closes the connection. It returns
// the response token and the measured round-trip latency (dial start
// to response read), which the caller feeds into a Selector via
// Update. Any I/O error, connect failure, or short read is reported as
// ErrChannel, per spec.md §4.2.
func (e *Endpoint) SendAndAwait(ctx context.Context, frameBytes []byte) (resp [4]byte, latency time.Duration, err error) {
	start := time.Now()

	conn, dialErr := e.Dialer.DialContext(ctx, "tcp", e.Addr)
	if dialErr != nil {
		return resp, 0, fmt.Errorf("%w: dial %s (%s): %v", ErrChannel, e.Name, e.Addr, dialErr)
	}
	defer conn.Close()

	if _, writeErr := conn.Write(frameBytes); writeErr != nil {
		return resp, 0, fmt.Errorf("%w: write to %s: %v", ErrChannel, e.Name, writeErr)
	}

	resp, readErr := frame.ReadResponse(conn)
	latency = time.Since(start)
	if readErr != nil {
		return resp, latency, fmt.Errorf("%w: read response from %s: %v", ErrChannel, e.Name, readErr)
	}

	metrics.ChannelLatencyHistogram.WithLabelValues(e.Name).Observe(latency.Seconds())

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if info, infoErr := tcp.GetInfo(tcpConn); infoErr == nil && info != nil {
			metrics.KernelRTTHistogram.WithLabelValues(e.Name).Observe(float64(info.RTT) / 1e6)
			logging.WithField("channel", e.Name).Debugf("TCP_INFO: state=%s rtt=%dus cwnd=%d", info.State, info.RTT, info.SndCwnd)
		} else if infoErr != nil {
			logging.WithField("channel", e.Name).Debugf("TCP_INFO unavailable: %v", infoErr)
		}
	}

	return resp, latency, nil
}
