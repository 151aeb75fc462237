package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/beacon/internal/protocol"
	"github.com/woozymasta/beacon/internal/requester"
	"github.com/woozymasta/beacon/internal/storage"
)

// statusPayload is the JSON shape of a StatusRecord on the operator API.
// The build id travels as text and is truncated of trailing NULs on output.
type statusPayload struct {
	BuildID    string `json:"build_id"`
	Players    uint16 `json:"players"`
	PlayerCap  uint16 `json:"player_cap"`
	Mode       string `json:"mode"`
	DefaultPvP bool   `json:"default_pvp,omitempty"`
}

func payloadFromRecord(r protocol.StatusRecord) statusPayload {
	return statusPayload{
		BuildID:    strings.TrimRight(string(r.BuildID[:]), "\x00"),
		Players:    r.Players,
		PlayerCap:  r.PlayerCap,
		Mode:       r.Mode.Tag.String(),
		DefaultPvP: r.Mode.DefaultPvP,
	}
}

func (p statusPayload) record() (protocol.StatusRecord, error) {
	var r protocol.StatusRecord

	if len(p.BuildID) > protocol.BuildIDLen {
		return r, fmt.Errorf("build_id %q longer than %d bytes", p.BuildID, protocol.BuildIDLen)
	}
	copy(r.BuildID[:], p.BuildID)

	tag, err := protocol.ParseModeTag(p.Mode)
	if err != nil {
		return r, err
	}

	r.Players = p.Players
	r.PlayerCap = p.PlayerCap
	r.Mode.Tag = tag
	if tag == protocol.ModePerPlayer {
		r.Mode.DefaultPvP = p.DefaultPvP
	}

	return r, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleMetrics returns a snapshot of the responder counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.counters.Snapshot())
}

// handleGetStatus returns the currently served status record.
func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, payloadFromRecord(s.feed.Latest()))
}

// handlePublishStatus lets the owning application push a new status record.
// Every response the responder sends from this point on reflects it.
func (s *Server) handlePublishStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	record, err := payload.record()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.feed.Publish(record)

	log.Info().
		Uint16("players", record.Players).
		Uint16("player_cap", record.PlayerCap).
		Str("mode", record.Mode.Tag.String()).
		Msg("Status record published")

	writeJSON(w, payloadFromRecord(record))
}

// handleQuery performs a live status query against an arbitrary beacon
// server, a diagnostics proxy for operators.
// Query params: ?addr=host:port[&timeout=2s]
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		http.Error(w, "Missing addr", http.StatusBadRequest)
		return
	}

	timeout := defaultQueryTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid timeout", http.StatusBadRequest)
			return
		}
		timeout = parsed
	}

	client, err := requester.New(addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = client.Close() }()

	record, ping, err := client.Status(timeout)
	if err != nil {
		// a broken answer is worth telling apart from a silent target
		code := http.StatusGatewayTimeout
		if errors.Is(err, protocol.ErrMalformed) {
			code = http.StatusBadGateway
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, struct {
		statusPayload
		PingMS float64 `json:"ping_ms"`
	}{
		statusPayload: payloadFromRecord(record),
		PingMS:        float64(ping.Microseconds()) / 1000,
	})
}

// handleTargets returns the monitor's target list with aggregate stats.
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}

	targets, err := s.store.GetTargets()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch targets")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if targets == nil {
		targets = []storage.Target{}
	}

	writeJSON(w, targets)
}

// handleProbes returns recent probe history for one target.
// Query params: ?addr=host:port[&limit=50]
func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}

	addr := r.URL.Query().Get("addr")
	if addr == "" {
		http.Error(w, "Missing addr", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	probes, err := s.store.RecentProbes(addr, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch probes")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if probes == nil {
		probes = []storage.Probe{}
	}

	writeJSON(w, probes)
}

// handleDeleteTarget removes a target and its history.
// Query params: ?addr=host:port
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}

	addr := r.URL.Query().Get("addr")
	if addr == "" {
		http.Error(w, "Missing addr", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteTarget(addr); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("Failed to delete target")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("addr", addr).Msg("Target deleted manually")

	writeJSON(w, map[string]string{"status": "ok", "message": "Target deleted"})
}
