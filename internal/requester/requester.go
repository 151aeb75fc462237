// Package requester implements the client side of the status-query
// protocol: one request, one response, round-trip time measured.
package requester

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/woozymasta/beacon/internal/protocol"
)

// ErrTimeout is returned when no response arrives within the caller's
// timeout. The requester never retries; retry and backoff policy belong to
// the caller.
var ErrTimeout = errors.New("status query timed out")

// readBufferSize comfortably holds any valid response plus slack for
// oversized garbage, which decoding then rejects.
const readBufferSize = 512

// Requester issues status queries against one server address. It holds no
// state across calls beyond the transport handle; Status may be called
// repeatedly and from multiple goroutines (calls are serialized internally
// so socket deadlines cannot interleave).
type Requester struct {
	conn  *net.UDPConn
	raddr *net.UDPAddr
	mu    sync.Mutex
}

// New resolves the server address and binds a local UDP socket for queries.
// The socket is deliberately unconnected so the requester can match the
// response peer itself and stray ICMP errors do not surface as read errors.
func New(address string) (*Requester, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", address, err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("bind query socket: %w", err)
	}

	return &Requester{conn: conn, raddr: raddr}, nil
}

// Close releases the underlying socket.
func (r *Requester) Close() error {
	return r.conn.Close()
}

// Status sends one status request and waits up to timeout for the response.
// It returns the decoded record and the measured round-trip duration.
// Failure modes: ErrTimeout when nothing arrives in time,
// protocol.ErrMalformed when a response arrives but does not decode, and
// transport errors as-is.
func (r *Requester) Status(timeout time.Duration) (protocol.StatusRecord, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	deadline := start.Add(timeout)

	if err := r.conn.SetDeadline(deadline); err != nil {
		return protocol.StatusRecord{}, 0, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := r.conn.WriteToUDP(protocol.EncodeRequest(), r.raddr); err != nil {
		return protocol.StatusRecord{}, 0, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, peer, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return protocol.StatusRecord{}, 0, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return protocol.StatusRecord{}, 0, fmt.Errorf("await response: %w", err)
		}

		// only the queried server may answer
		if !peer.IP.Equal(r.raddr.IP) || peer.Port != r.raddr.Port {
			continue
		}

		record, err := protocol.DecodeResponse(buf[:n])
		if err != nil {
			return protocol.StatusRecord{}, 0, err
		}

		return record, time.Since(start), nil
	}
}
