// Package monitor polls configured servers on a schedule and records the
// results. Beacon targets are queried with the native status protocol;
// Source-engine targets are queried over A2S.
package monitor

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/beacon/internal/geoip"
	"github.com/woozymasta/beacon/internal/requester"
	"github.com/woozymasta/beacon/internal/storage"
)

// Target kinds.
const (
	KindBeacon = "beacon"
	KindA2S    = "a2s"
)

// Options tunes the monitor.
type Options struct {
	// Targets lists addresses to poll: "host:port" for beacon servers,
	// "a2s:host:port" for Source-engine servers.
	Targets []string

	// Interval between poll rounds.
	Interval time.Duration

	// Timeout for each individual query.
	Timeout time.Duration

	// Workers bounds per-round concurrency.
	Workers int

	// Retention prunes probe history older than this after each round.
	// 0 keeps everything.
	Retention time.Duration
}

type target struct {
	address string
	kind    string
}

// Monitor owns the poll loop.
type Monitor struct {
	store   *storage.Repository
	geo     *geoip.Provider
	targets []target
	opts    Options
}

// New parses the target list and prepares the monitor. The GeoIP provider
// may be nil.
func New(store *storage.Repository, geo *geoip.Provider, opts Options) (*Monitor, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}

	targets := make([]target, 0, len(opts.Targets))
	for _, raw := range opts.Targets {
		tg := target{address: raw, kind: KindBeacon}
		if rest, ok := strings.CutPrefix(raw, KindA2S+":"); ok {
			tg = target{address: rest, kind: KindA2S}
		}

		if _, _, err := net.SplitHostPort(tg.address); err != nil {
			return nil, fmt.Errorf("invalid monitor target %q: %w", raw, err)
		}
		targets = append(targets, tg)
	}

	return &Monitor{store: store, geo: geo, targets: targets, opts: opts}, nil
}

// Run polls all targets once immediately, then every interval, until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if len(m.targets) == 0 {
		return
	}

	log.Info().Int("targets", len(m.targets)).Dur("interval", m.opts.Interval).Msg("Monitor started")

	m.pollRound()
	m.prune()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Monitor stopped")
			return
		case <-ticker.C:
			m.pollRound()
			m.prune()
		}
	}
}

// prune enforces the probe history retention window, when one is set.
func (m *Monitor) prune() {
	if m.opts.Retention <= 0 {
		return
	}

	n, err := m.store.PruneProbes(time.Now().UTC().Add(-m.opts.Retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune probe history")
		return
	}

	if n > 0 {
		log.Debug().Int64("deleted", n).Dur("retention", m.opts.Retention).Msg("Pruned probe history")
	}
}

// pollRound fans the target list out over a fixed worker pool and waits for
// the round to finish.
func (m *Monitor) pollRound() {
	jobs := make(chan target, len(m.targets))
	var wg sync.WaitGroup

	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tg := range jobs {
				m.poll(tg)
			}
		}()
	}

	for _, tg := range m.targets {
		jobs <- tg
	}
	close(jobs)

	wg.Wait()
}

// poll queries one target and records the outcome.
func (m *Monitor) poll(tg target) {
	var probe storage.Probe
	switch tg.kind {
	case KindA2S:
		probe = m.probeA2S(tg.address)
	default:
		probe = m.probeBeacon(tg.address)
	}
	probe.Address = tg.address
	probe.PolledAt = time.Now().UTC()

	host, _, _ := net.SplitHostPort(tg.address)

	now := time.Now().UTC()
	err := m.store.UpsertTarget(storage.Target{
		Address:     tg.address,
		Kind:        tg.kind,
		CountryCode: m.geo.CountryCode(host),
		FirstSeen:   now,
		LastSeen:    now,
	})
	if err != nil {
		log.Error().Err(err).Str("address", tg.address).Msg("Failed to upsert target")
		return
	}

	if err := m.store.InsertProbe(probe); err != nil {
		log.Error().Err(err).Str("address", tg.address).Msg("Failed to record probe")
		return
	}

	log.Debug().
		Str("address", tg.address).
		Str("kind", tg.kind).
		Bool("ok", probe.OK).
		Float64("ping_ms", probe.PingMS).
		Msg("Target polled")
}

// probeBeacon queries a beacon server with the native protocol.
func (m *Monitor) probeBeacon(address string) storage.Probe {
	client, err := requester.New(address)
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}
	defer func() { _ = client.Close() }()

	record, ping, err := client.Status(m.opts.Timeout)
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}

	return storage.Probe{
		OK:        true,
		BuildID:   hex.EncodeToString(record.BuildID[:]),
		Players:   int(record.Players),
		PlayerCap: int(record.PlayerCap),
		Mode:      record.Mode.Tag.String(),
		PingMS:    float64(ping.Microseconds()) / 1000,
	}
}

// probeA2S queries a Source-engine server with A2S_INFO.
func (m *Monitor) probeA2S(address string) storage.Probe {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}

	client, err := a2s.New(host, port)
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}
	defer func() { _ = client.Close() }()

	client.Timeout = m.opts.Timeout

	start := time.Now()
	info, err := client.GetInfo()
	if err != nil {
		return storage.Probe{Error: err.Error()}
	}

	return storage.Probe{
		OK:        true,
		BuildID:   info.Version,
		Players:   int(info.Players),
		PlayerCap: int(info.MaxPlayers),
		Mode:      info.Game,
		PingMS:    float64(time.Since(start).Microseconds()) / 1000,
	}
}
