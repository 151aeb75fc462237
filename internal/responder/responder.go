// Package responder implements the server side of the status-query
// protocol: a UDP receive loop fanning requests out to a bounded worker
// pool. The responder keeps no per-client state and never replies to
// malformed input.
package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/beacon/internal/metrics"
	"github.com/woozymasta/beacon/internal/protocol"
	"github.com/woozymasta/beacon/internal/status"
)

// Options tunes the responder. Zero values select the defaults.
type Options struct {
	// Workers is the number of concurrent request handlers.
	Workers int

	// QueueSize bounds the receive-to-handler queue; datagrams arriving
	// while the queue is full are dropped and counted.
	QueueSize int

	// SendTimeout bounds how long a response send may block.
	SendTimeout time.Duration

	// RateLimit allows this many requests per RateWindow from each peer
	// address. 0 disables per-peer limiting.
	RateLimit int

	// RateWindow is the per-peer limit window.
	RateWindow time.Duration
}

const (
	defaultWorkers     = 8
	defaultQueueSize   = 1024
	defaultSendTimeout = 5 * time.Second
	defaultRateWindow  = time.Minute

	// readBufferSize holds any valid request plus slack for oversized
	// garbage, which decoding then rejects.
	readBufferSize = 64

	limiterSweepEvery = 5 * time.Minute
	limiterMaxIdle    = 10 * time.Minute
)

// Responder owns the bound UDP socket and answers status queries from the
// live feed.
type Responder struct {
	conn    *net.UDPConn
	feed    *status.Feed
	limiter *peerLimiter
	queue   chan datagram
	opts    Options
	wg      sync.WaitGroup
}

// datagram is one received request awaiting a handler.
type datagram struct {
	data []byte
	peer netip.AddrPort
}

// New binds the UDP socket and prepares the responder. The feed is only
// ever read; publishing stays with the owning producer.
func New(bindAddress string, feed *status.Feed, opts Options) (*Responder, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = defaultRateWindow
	}

	laddr, err := net.ResolveUDPAddr("udp", bindAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", bindAddress, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind %q: %w", bindAddress, err)
	}

	r := &Responder{
		conn:  conn,
		feed:  feed,
		queue: make(chan datagram, opts.QueueSize),
		opts:  opts,
	}

	if opts.RateLimit > 0 {
		r.limiter = newPeerLimiter(opts.RateLimit, opts.RateWindow)
	}

	return r, nil
}

// LocalAddr returns the bound address, useful when binding port 0.
func (r *Responder) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Run serves queries until ctx is cancelled or the socket becomes unusable.
// Per-packet problems are logged and counted, never fatal. On cancellation
// the socket is closed, in-flight handlers are drained and ctx.Err() is
// returned; any other return value is a fatal transport error.
func (r *Responder) Run(ctx context.Context, counters *metrics.Counters) error {
	log.Info().Str("address", r.conn.LocalAddr().String()).Msg("Status responder listening")

	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(counters)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.Close()
	})
	defer stop()

	if r.limiter != nil {
		go r.sweepLimiter(ctx)
	}

	err := r.receiveLoop(counters)

	close(r.queue)
	r.wg.Wait()
	_ = r.conn.Close()

	if ctx.Err() != nil {
		log.Info().Msg("Status responder stopped")
		return ctx.Err()
	}

	return err
}

// receiveLoop reads datagrams and hands them to the worker queue. It copies
// every payload because the read buffer is reused across iterations.
func (r *Responder) receiveLoop(counters *metrics.Counters) error {
	buf := make([]byte, readBufferSize)

	for {
		n, peer, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Debug().Err(err).Msg("Transient receive error")
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		counters.IncReceived()

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case r.queue <- datagram{data: data, peer: peer}:
		default:
			counters.IncDropped()
			log.Warn().Str("peer", peer.String()).Msg("Handler queue full, request dropped")
		}
	}
}

// worker handles queued requests until the queue is closed.
func (r *Responder) worker(counters *metrics.Counters) {
	defer r.wg.Done()

	for d := range r.queue {
		r.handle(d, counters)
	}
}

// handle answers one request: decode, read the latest record, encode, send.
// Malformed and over-limit requests get no reply so the responder cannot be
// used as a reflection amplifier.
func (r *Responder) handle(d datagram, counters *metrics.Counters) {
	start := time.Now()

	if err := protocol.DecodeRequest(d.data); err != nil {
		counters.IncMalformed()
		log.Debug().Err(err).Str("peer", d.peer.String()).Int("size", len(d.data)).Msg("Malformed request")
		return
	}

	if r.limiter != nil && !r.limiter.allow(d.peer.Addr()) {
		counters.IncRateLimited()
		log.Trace().Str("peer", d.peer.String()).Msg("Request dropped by peer rate limit")
		return
	}

	resp, err := protocol.EncodeResponse(r.feed.Latest())
	if err != nil {
		counters.IncSendErrors()
		log.Error().Err(err).Msg("Current status record is not encodable")
		return
	}

	// Concurrent handlers may each push the shared write deadline forward;
	// every send still completes or fails within a bounded window.
	_ = r.conn.SetWriteDeadline(time.Now().Add(r.opts.SendTimeout))

	if _, err := r.conn.WriteToUDPAddrPort(resp, d.peer); err != nil {
		counters.IncSendErrors()
		log.Debug().Err(err).Str("peer", d.peer.String()).Msg("Failed to send response")
		return
	}

	counters.IncAnswered()
	counters.ObserveLatency(time.Since(start))
}

// sweepLimiter periodically evicts idle peers from the limiter table.
func (r *Responder) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.limiter.sweep(limiterMaxIdle)
		}
	}
}
