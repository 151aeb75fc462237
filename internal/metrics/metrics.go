// Package metrics provides the responder's operational counters. All
// counters are monotonic and safe for concurrent increment from any number
// of handler goroutines; readers take a point-in-time snapshot copy instead
// of aliasing the live counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counters is the live, concurrently mutated counter set.
type Counters struct {
	received    atomic.Uint64
	answered    atomic.Uint64
	malformed   atomic.Uint64
	rateLimited atomic.Uint64
	dropped     atomic.Uint64
	sendErrors  atomic.Uint64

	// server-side handling latency, nanoseconds
	latencyCount atomic.Uint64
	latencySum   atomic.Uint64
}

// Snapshot is a consistent per-field copy of the counters, shaped for the
// operator API.
type Snapshot struct {
	// Received counts every datagram read from the socket.
	Received uint64 `json:"received"`

	// Answered counts successfully sent responses.
	Answered uint64 `json:"answered"`

	// Malformed counts requests that failed to decode. Never answered.
	Malformed uint64 `json:"malformed"`

	// RateLimited counts requests dropped by the per-peer limiter.
	RateLimited uint64 `json:"rate_limited"`

	// Dropped counts datagrams discarded because the handler queue was full.
	Dropped uint64 `json:"dropped"`

	// SendErrors counts encode or send failures for otherwise valid requests.
	SendErrors uint64 `json:"send_errors"`

	// LatencyCount and LatencyMeanMS describe server-side handling time
	// from datagram receipt to response send.
	LatencyCount  uint64  `json:"latency_count"`
	LatencyMeanMS float64 `json:"latency_mean_ms"`
}

// New creates a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

// IncReceived records one datagram read from the transport.
func (c *Counters) IncReceived() { c.received.Add(1) }

// IncAnswered records one response handed to the transport.
func (c *Counters) IncAnswered() { c.answered.Add(1) }

// IncMalformed records one undecodable request.
func (c *Counters) IncMalformed() { c.malformed.Add(1) }

// IncRateLimited records one request dropped by the peer rate limiter.
func (c *Counters) IncRateLimited() { c.rateLimited.Add(1) }

// IncDropped records one datagram discarded due to queue overflow.
func (c *Counters) IncDropped() { c.dropped.Add(1) }

// IncSendErrors records one encode or transport send failure.
func (c *Counters) IncSendErrors() { c.sendErrors.Add(1) }

// ObserveLatency records one request's server-side handling duration.
func (c *Counters) ObserveLatency(d time.Duration) {
	c.latencyCount.Add(1)
	c.latencySum.Add(uint64(d.Nanoseconds()))
}

// Snapshot returns a copy of the current counter values. Each field is read
// atomically; the snapshot as a whole is eventually consistent with respect
// to in-flight increments.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Received:     c.received.Load(),
		Answered:     c.answered.Load(),
		Malformed:    c.malformed.Load(),
		RateLimited:  c.rateLimited.Load(),
		Dropped:      c.dropped.Load(),
		SendErrors:   c.sendErrors.Load(),
		LatencyCount: c.latencyCount.Load(),
	}

	if s.LatencyCount > 0 {
		mean := float64(c.latencySum.Load()) / float64(s.LatencyCount)
		s.LatencyMeanMS = mean / float64(time.Millisecond)
	}

	return s
}
