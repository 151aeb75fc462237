// main is the entry point of the beacond status-query daemon.
// It initializes the configuration, logger, database, GeoIP provider and the
// status feed, then runs the UDP responder, the monitor and the operator API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/beacon/internal/api"
	"github.com/woozymasta/beacon/internal/config"
	"github.com/woozymasta/beacon/internal/geoip"
	"github.com/woozymasta/beacon/internal/logger"
	"github.com/woozymasta/beacon/internal/metrics"
	"github.com/woozymasta/beacon/internal/monitor"
	"github.com/woozymasta/beacon/internal/responder"
	"github.com/woozymasta/beacon/internal/status"
	"github.com/woozymasta/beacon/internal/storage"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting beacond service...")

	initial, err := cfg.Status.Record()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid initial status record")
	}

	feed := status.NewFeed(initial)
	counters := metrics.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// GeoIP update
	var geoProvider *geoip.Provider
	if cfg.GeoIP.Path != "" {
		log.Info().Msg("Checking GeoIP database...")
		if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		geoProvider, err = geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
			geoProvider = nil
		} else {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// UDP responder
	resp, err := responder.New(cfg.Responder.Address, feed, responder.Options{
		Workers:     cfg.Responder.Workers,
		QueueSize:   cfg.Responder.QueueSize,
		SendTimeout: cfg.Responder.SendTimeout,
		RateLimit:   cfg.RateLimit.Count,
		RateWindow:  cfg.RateLimit.Window,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind query responder")
	}

	respErr := make(chan error, 1)
	go func() { respErr <- resp.Run(ctx, counters) }()

	// Background monitor
	mon, err := monitor.New(store, geoProvider, monitor.Options{
		Targets:   cfg.Monitor.Targets,
		Interval:  cfg.Monitor.Interval,
		Timeout:   cfg.Monitor.Timeout,
		Workers:   cfg.Monitor.Workers,
		Retention: cfg.Storage.Retention,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid monitor configuration")
	}
	go mon.Run(ctx)

	// Operator API
	var httpServer *http.Server
	if cfg.API.Address != "" {
		httpServer = &http.Server{
			Addr:         cfg.API.Address,
			Handler:      api.New(feed, counters, store, cfg.API.AuthToken).Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info().Str("address", cfg.API.Address).Msg("Operator API listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("Operator API failed")
			}
		}()
	}

	// Wait for a shutdown signal or a fatal transport error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
		if err := <-respErr; err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Responder exited with error")
		}
	case err := <-respErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Responder failed")
		}
		cancel()
	}

	// Shut down the operator API
	if httpServer != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("Operator API forced to shutdown")
		}
	}

	log.Info().Msg("Server exited")
}
