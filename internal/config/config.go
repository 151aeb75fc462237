// Package config handles the parsing and validation of application
// configuration from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/beacon/internal/logger"
	"github.com/woozymasta/beacon/internal/protocol"
	"github.com/woozymasta/beacon/internal/vars"
)

// Config represents the complete beacond flags configuration.
type Config struct {
	Responder Responder     `group:"Responder Options" env-namespace:"BEACON"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"BEACON_RATE_LIMIT"`
	Status    Status        `group:"Initial Status Options" namespace:"status" env-namespace:"BEACON_STATUS"`
	API       API           `group:"Operator API Options" namespace:"api" env-namespace:"BEACON_API"`
	Monitor   Monitor       `group:"Monitor Options" namespace:"monitor" env-namespace:"BEACON_MONITOR"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"BEACON_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"BEACON_GEOIP"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"BEACON_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Responder holds UDP query responder configuration.
type Responder struct {
	Address     string        `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"UDP listen address for status queries" default:":14006"`
	Workers     int           `long:"workers" env:"WORKERS" description:"Concurrent request handlers" default:"8"`
	QueueSize   int           `long:"queue-size" env:"QUEUE_SIZE" description:"Pending request queue depth" default:"1024"`
	SendTimeout time.Duration `long:"send-timeout" env:"SEND_TIMEOUT" description:"Upper bound for sending one response" default:"5s"`
}

// RateLimit holds per-peer rate limiting configuration for the responder.
type RateLimit struct {
	Count  int           `long:"count" env:"COUNT" description:"Requests allowed per peer per window, 0 disables limiting" default:"0"`
	Window time.Duration `long:"window" env:"WINDOW" description:"Per-peer limit window" default:"1m"`
}

// Status holds the initial status record served until a producer publishes
// a fresh one.
type Status struct {
	BuildID    string `long:"build-id" env:"BUILD_ID" description:"Opaque build identifier, at most 8 bytes" default:""`
	Players    uint   `long:"players" env:"PLAYERS" description:"Initial connected player count" default:"0"`
	PlayerCap  uint   `long:"player-cap" env:"PLAYER_CAP" description:"Advertised player capacity" default:"0"`
	Mode       string `long:"mode" env:"MODE" description:"Battle mode (pvp, pve or per-player)" default:"pve"`
	DefaultPvP bool   `long:"default-pvp" env:"DEFAULT_PVP" description:"Per-player mode only: default to PvP"`
}

// API holds the operator HTTP API configuration.
type API struct {
	Address   string `long:"address" env:"ADDRESS" description:"Operator API listen address, empty disables the API" default:":8080"`
	AuthToken string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Operator API bearer token"`
}

// Monitor holds the background target poller configuration.
type Monitor struct {
	Targets  []string      `short:"m" long:"target" env:"TARGETS" description:"Target to poll, host:port for beacon or a2s:host:port for Source-engine servers" env-delim:","`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Poll round interval" default:"60s"`
	Timeout  time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-target query timeout" default:"3s"`
	Workers  int           `long:"workers" env:"WORKERS" description:"Concurrent poll workers" default:"4"`
}

// Storage holds database configuration.
type Storage struct {
	Path      string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database for probe history" default:"beacon.db"`
	Retention time.Duration `long:"retention" env:"RETENTION" description:"Delete probe history older than this after each poll round, 0 keeps everything" default:"0"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file, empty disables country lookup" default:""`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the
// help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if cfg.API.Address != "" && cfg.API.AuthToken == "" {
		fmt.Fprintln(os.Stderr,
			"Required flag `--api-auth-token' or environment variable `BEACON_API_AUTH_TOKEN` was not specified!")
		os.Exit(1)
	}

	if _, err := cfg.Status.Record(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid initial status:", err)
		os.Exit(1)
	}

	return &cfg
}

// Record converts the configured initial status into a StatusRecord.
func (s Status) Record() (protocol.StatusRecord, error) {
	var r protocol.StatusRecord

	if len(s.BuildID) > protocol.BuildIDLen {
		return r, fmt.Errorf("build id %q longer than %d bytes", s.BuildID, protocol.BuildIDLen)
	}
	copy(r.BuildID[:], s.BuildID)

	if s.Players > 0xffff || s.PlayerCap > 0xffff {
		return r, fmt.Errorf("player counts must fit in 16 bits")
	}
	r.Players = uint16(s.Players)
	r.PlayerCap = uint16(s.PlayerCap)

	tag, err := protocol.ParseModeTag(s.Mode)
	if err != nil {
		return r, err
	}
	r.Mode.Tag = tag
	if tag == protocol.ModePerPlayer {
		r.Mode.DefaultPvP = s.DefaultPvP
	}

	return r, nil
}
