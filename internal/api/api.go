// Package api implements the operator-facing HTTP surface: metrics
// snapshots, the current status record, the producer's publish endpoint and
// the monitor's probe history. It is an operations interface, separate from
// the UDP query protocol, and every endpoint requires the bearer token.
package api

import (
	"net/http"
	"time"

	"github.com/woozymasta/beacon/internal/metrics"
	"github.com/woozymasta/beacon/internal/status"
	"github.com/woozymasta/beacon/internal/storage"
)

// maxBodySize bounds incoming request bodies.
const maxBodySize = 4096

// defaultQueryTimeout is used by the live query proxy when the caller does
// not pass one.
const defaultQueryTimeout = 3 * time.Second

// Server holds the dependencies required to handle operator requests.
type Server struct {
	// feed is the live status source; GET reads it, POST publishes to it on
	// behalf of the external producer.
	feed *status.Feed

	// counters is the responder's live counter set; only snapshots leave
	// this package.
	counters *metrics.Counters

	// store provides probe history. Nil when storage is disabled, which
	// turns the history endpoints into 404s.
	store *storage.Repository

	// authToken is the bearer token required on every endpoint.
	authToken string
}

// New creates the operator API server.
func New(feed *status.Feed, counters *metrics.Counters, store *storage.Repository, authToken string) *Server {
	return &Server{
		feed:      feed,
		counters:  counters,
		store:     store,
		authToken: authToken,
	}
}

// Handler configures the HTTP routes and returns the root handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/metrics", http.HandlerFunc(s.handleMetrics))
	mux.Handle("GET /api/status", http.HandlerFunc(s.handleGetStatus))
	mux.Handle("POST /api/status", http.HandlerFunc(s.handlePublishStatus))
	mux.Handle("GET /api/query", http.HandlerFunc(s.handleQuery))
	mux.Handle("GET /api/targets", http.HandlerFunc(s.handleTargets))
	mux.Handle("GET /api/probes", http.HandlerFunc(s.handleProbes))
	mux.Handle("DELETE /api/target", http.HandlerFunc(s.handleDeleteTarget))

	return LoggingMiddleware(AdminAuthMiddleware(s.authToken, mux))
}
