package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/beacon/internal/metrics"
	"github.com/woozymasta/beacon/internal/protocol"
	"github.com/woozymasta/beacon/internal/responder"
	"github.com/woozymasta/beacon/internal/status"
	"github.com/woozymasta/beacon/internal/storage"
)

func TestNewParsesTargets(t *testing.T) {
	m, err := New(nil, nil, Options{Targets: []string{"10.0.0.1:14006", "a2s:10.0.0.2:27016"}})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	if m.targets[0].kind != KindBeacon || m.targets[0].address != "10.0.0.1:14006" {
		t.Errorf("targets[0]=%+v, want beacon target", m.targets[0])
	}
	if m.targets[1].kind != KindA2S || m.targets[1].address != "10.0.0.2:27016" {
		t.Errorf("targets[1]=%+v, want a2s target", m.targets[1])
	}
}

func TestNewRejectsBadTarget(t *testing.T) {
	if _, err := New(nil, nil, Options{Targets: []string{"no-port-here"}}); err == nil {
		t.Error("expected error for target without port")
	}
}

func TestPruneEnforcesRetention(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "retention.db"))
	if err != nil {
		t.Fatalf("storage.New() err=%v", err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	probes := []storage.Probe{
		{Address: "a:1", OK: true, PolledAt: now.Add(-2 * time.Hour)},
		{Address: "a:1", OK: true, PolledAt: now},
	}
	for _, p := range probes {
		if err := store.InsertProbe(p); err != nil {
			t.Fatalf("InsertProbe err=%v", err)
		}
	}

	m, err := New(store, nil, Options{Retention: time.Hour})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	m.prune()

	remaining, err := store.RecentProbes("a:1", 10)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("len(remaining)=%d, want only the fresh probe", len(remaining))
	}
	if remaining[0].PolledAt.Before(now.Add(-time.Minute)) {
		t.Errorf("surviving probe=%+v, want the recent one", remaining[0])
	}
}

func TestPruneDisabledByDefault(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "noprune.db"))
	if err != nil {
		t.Fatalf("storage.New() err=%v", err)
	}
	defer func() { _ = store.Close() }()

	old := storage.Probe{Address: "a:1", OK: true, PolledAt: time.Now().UTC().Add(-240 * time.Hour)}
	if err := store.InsertProbe(old); err != nil {
		t.Fatalf("InsertProbe err=%v", err)
	}

	m, err := New(store, nil, Options{})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	m.prune()

	remaining, err := store.RecentProbes("a:1", 10)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("len(remaining)=%d, want history kept with retention off", len(remaining))
	}
}

func TestPollRoundRecordsProbes(t *testing.T) {
	record := protocol.StatusRecord{
		BuildID:   [8]byte{'v', '1', '.', '2', '.', '3'},
		Players:   9,
		PlayerCap: 60,
		Mode:      protocol.BattleMode{Tag: protocol.ModeGlobalPvP},
	}

	srv, err := responder.New("127.0.0.1:0", status.NewFeed(record), responder.Options{})
	if err != nil {
		t.Fatalf("responder.New() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx, metrics.New()) }()

	store, err := storage.New(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("storage.New() err=%v", err)
	}
	defer func() { _ = store.Close() }()

	addr := srv.LocalAddr().String()
	dead := "127.0.0.1:9" // discard port, nothing listens there

	m, err := New(store, nil, Options{
		Targets: []string{addr, dead},
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	m.pollRound()

	targets, err := store.GetTargets()
	if err != nil {
		t.Fatalf("GetTargets() err=%v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("len(targets)=%d, want 2", len(targets))
	}

	good, err := store.RecentProbes(addr, 1)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(good) != 1 || !good[0].OK {
		t.Fatalf("probe for live target=%+v, want ok", good)
	}
	if good[0].Players != 9 || good[0].PlayerCap != 60 || good[0].Mode != "pvp" {
		t.Errorf("probe=%+v, want players 9/60 mode pvp", good[0])
	}
	if good[0].PingMS <= 0 {
		t.Errorf("PingMS=%f, want > 0", good[0].PingMS)
	}

	bad, err := store.RecentProbes(dead, 1)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(bad) != 1 || bad[0].OK || bad[0].Error == "" {
		t.Fatalf("probe for dead target=%+v, want failure with error text", bad)
	}
}
