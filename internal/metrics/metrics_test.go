package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestSnapshotZeroValue(t *testing.T) {
	c := New()

	s := c.Snapshot()
	if s != (Snapshot{}) {
		t.Errorf("fresh counters snapshot=%+v, want zero", s)
	}
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	const workers = 16
	const perWorker = 1000

	c := New()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				c.IncReceived()
				c.IncAnswered()
				c.IncMalformed()
				c.ObserveLatency(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := uint64(workers * perWorker)

	if s.Received != want {
		t.Errorf("Received=%d, want %d", s.Received, want)
	}
	if s.Answered != want {
		t.Errorf("Answered=%d, want %d", s.Answered, want)
	}
	if s.Malformed != want {
		t.Errorf("Malformed=%d, want %d", s.Malformed, want)
	}
	if s.LatencyCount != want {
		t.Errorf("LatencyCount=%d, want %d", s.LatencyCount, want)
	}
	if s.LatencyMeanMS < 0.99 || s.LatencyMeanMS > 1.01 {
		t.Errorf("LatencyMeanMS=%f, want ~1.0", s.LatencyMeanMS)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	c.IncReceived()

	s := c.Snapshot()
	c.IncReceived()

	if s.Received != 1 {
		t.Errorf("snapshot mutated by later increment: Received=%d", s.Received)
	}
	if got := c.Snapshot().Received; got != 2 {
		t.Errorf("live Received=%d, want 2", got)
	}
}
