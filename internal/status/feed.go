// Package status implements the live status feed: a single-writer,
// many-reader holder for the latest StatusRecord with change notification.
package status

import (
	"sync"
	"sync/atomic"

	"github.com/woozymasta/beacon/internal/protocol"
)

// Feed holds the current StatusRecord. Readers get the latest committed
// value without locking; the (single) producer swaps in a new immutable
// snapshot on publish, so a reader never observes a torn record and once a
// Publish returns every subsequent read sees that record or a later one.
type Feed struct {
	current atomic.Pointer[protocol.StatusRecord]

	mu      sync.Mutex
	changed chan struct{}
}

// NewFeed creates a feed seeded with an initial record.
func NewFeed(initial protocol.StatusRecord) *Feed {
	f := &Feed{changed: make(chan struct{})}
	f.current.Store(&initial)

	return f
}

// Latest returns the most recently published record. Never blocks.
func (f *Feed) Latest() protocol.StatusRecord {
	return *f.current.Load()
}

// Watch returns the current record together with a channel that is closed
// by the next Publish. Callers re-arm by calling Watch again after a wake.
func (f *Feed) Watch() (protocol.StatusRecord, <-chan struct{}) {
	f.mu.Lock()
	ch := f.changed
	f.mu.Unlock()

	return *f.current.Load(), ch
}

// Publish installs a new current record and wakes all watchers. Only the
// owning producer may call it.
func (f *Feed) Publish(r protocol.StatusRecord) {
	f.mu.Lock()
	f.current.Store(&r)
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}
