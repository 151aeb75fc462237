// main is the entry point of beaconq, a small CLI for querying beacon
// servers (and, optionally, Source-engine servers over A2S) and measuring
// round-trip latency.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/beacon/internal/requester"
	"github.com/woozymasta/beacon/internal/vars"
)

type options struct {
	Timeout  time.Duration `short:"t" long:"timeout" description:"Query timeout" default:"3s"`
	Count    int           `short:"c" long:"count" description:"Number of queries to send" default:"1"`
	Interval time.Duration `short:"i" long:"interval" description:"Delay between repeated queries" default:"1s"`
	A2S      bool          `long:"a2s" description:"Query with the A2S protocol instead of the beacon protocol"`
	JSON     bool          `short:"j" long:"json" description:"Print results as JSON"`
	Version  bool          `short:"v" long:"version" description:"Print version and build info"`

	Args struct {
		Address string `positional-arg-name:"address" description:"Server address (host:port)"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		vars.Print()
		os.Exit(0)
	}

	if opts.Args.Address == "" {
		fmt.Fprintln(os.Stderr, "Server address is required, e.g.: beaconq 127.0.0.1:14006")
		os.Exit(1)
	}

	if opts.A2S {
		os.Exit(queryA2S(opts))
	}
	os.Exit(queryBeacon(opts))
}

// result is the JSON output shape for one beacon query.
type result struct {
	BuildID   string  `json:"build_id"`
	Mode      string  `json:"mode"`
	PingMS    float64 `json:"ping_ms"`
	Players   uint16  `json:"players"`
	PlayerCap uint16  `json:"player_cap"`
}

func queryBeacon(opts options) int {
	client, err := requester.New(opts.Args.Address)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	failures := 0
	for i := 0; i < opts.Count; i++ {
		if i > 0 {
			time.Sleep(opts.Interval)
		}

		record, ping, err := client.Status(opts.Timeout)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			failures++
			continue
		}

		r := result{
			BuildID:   strings.TrimRight(string(record.BuildID[:]), "\x00"),
			Mode:      record.Mode.Tag.String(),
			PingMS:    float64(ping.Microseconds()) / 1000,
			Players:   record.Players,
			PlayerCap: record.PlayerCap,
		}

		if opts.JSON {
			_ = json.NewEncoder(os.Stdout).Encode(r)
			continue
		}

		fmt.Printf("%s: build=%q players=%d/%d mode=%s ping=%.3fms\n",
			opts.Args.Address, r.BuildID, r.Players, r.PlayerCap, r.Mode, r.PingMS)
	}

	if failures == opts.Count {
		return 1
	}

	return 0
}

func queryA2S(opts options) int {
	host, portStr, err := net.SplitHostPort(opts.Args.Address)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid port:", portStr)
		return 1
	}

	client, err := a2s.New(host, port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	client.Timeout = opts.Timeout

	failures := 0
	for i := 0; i < opts.Count; i++ {
		if i > 0 {
			time.Sleep(opts.Interval)
		}

		start := time.Now()
		info, err := client.GetInfo()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			failures++
			continue
		}
		ping := float64(time.Since(start).Microseconds()) / 1000

		if opts.JSON {
			_ = json.NewEncoder(os.Stdout).Encode(info)
			continue
		}

		fmt.Printf("%s: name=%q map=%s players=%d/%d version=%s ping=%.3fms\n",
			opts.Args.Address, info.Name, info.Map, info.Players, info.MaxPlayers, info.Version, ping)
	}

	if failures == opts.Count {
		return 1
	}

	return 0
}
