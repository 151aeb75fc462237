package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestUpsertTargetIncrementsCount(t *testing.T) {
	repo := openTestRepo(t)

	now := time.Now().UTC()
	target := Target{
		Address:     "10.0.0.1:14006",
		Kind:        "beacon",
		CountryCode: "DE",
		FirstSeen:   now,
		LastSeen:    now,
	}

	if err := repo.UpsertTarget(target); err != nil {
		t.Fatalf("first upsert err=%v", err)
	}

	// second poll, country unknown this time
	target.CountryCode = ""
	target.LastSeen = now.Add(time.Minute)
	if err := repo.UpsertTarget(target); err != nil {
		t.Fatalf("second upsert err=%v", err)
	}

	targets, err := repo.GetTargets()
	if err != nil {
		t.Fatalf("GetTargets() err=%v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("len(targets)=%d, want 1", len(targets))
	}

	got := targets[0]
	if got.Count != 2 {
		t.Errorf("Count=%d, want 2", got.Count)
	}
	if got.CountryCode != "DE" {
		t.Errorf("CountryCode=%q, want empty value to be ignored on update", got.CountryCode)
	}
}

func TestProbeHistoryNewestFirst(t *testing.T) {
	repo := openTestRepo(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		p := Probe{
			Address:   "10.0.0.1:14006",
			OK:        true,
			BuildID:   "abc123",
			Players:   i,
			PlayerCap: 100,
			Mode:      "pve",
			PingMS:    1.5,
			PolledAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.InsertProbe(p); err != nil {
			t.Fatalf("InsertProbe(%d) err=%v", i, err)
		}
	}

	probes, err := repo.RecentProbes("10.0.0.1:14006", 3)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(probes) != 3 {
		t.Fatalf("len(probes)=%d, want 3", len(probes))
	}
	for i, p := range probes {
		if want := 4 - i; p.Players != want {
			t.Errorf("probes[%d].Players=%d, want %d (newest first)", i, p.Players, want)
		}
	}
}

func TestDeleteTargetRemovesHistory(t *testing.T) {
	repo := openTestRepo(t)

	now := time.Now().UTC()
	if err := repo.UpsertTarget(Target{Address: "a:1", Kind: "beacon", FirstSeen: now, LastSeen: now}); err != nil {
		t.Fatalf("UpsertTarget err=%v", err)
	}
	if err := repo.InsertProbe(Probe{Address: "a:1", OK: false, Error: "timeout", PolledAt: now}); err != nil {
		t.Fatalf("InsertProbe err=%v", err)
	}

	if err := repo.DeleteTarget("a:1"); err != nil {
		t.Fatalf("DeleteTarget err=%v", err)
	}

	targets, err := repo.GetTargets()
	if err != nil {
		t.Fatalf("GetTargets() err=%v", err)
	}
	if len(targets) != 0 {
		t.Errorf("len(targets)=%d, want 0", len(targets))
	}

	probes, err := repo.RecentProbes("a:1", 10)
	if err != nil {
		t.Fatalf("RecentProbes() err=%v", err)
	}
	if len(probes) != 0 {
		t.Errorf("len(probes)=%d, want 0", len(probes))
	}
}

func TestPruneProbes(t *testing.T) {
	repo := openTestRepo(t)

	now := time.Now().UTC()
	old := Probe{Address: "a:1", OK: true, PolledAt: now.Add(-48 * time.Hour)}
	fresh := Probe{Address: "a:1", OK: true, PolledAt: now}

	for _, p := range []Probe{old, fresh} {
		if err := repo.InsertProbe(p); err != nil {
			t.Fatalf("InsertProbe err=%v", err)
		}
	}

	n, err := repo.PruneProbes(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneProbes err=%v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
}
