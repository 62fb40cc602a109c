package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/mtr/internal/version"
)

type Args struct {
	Destination string
	Source      string // local IPv4 address to send from, empty means any
	MaxTTL      uint
	NoDNS       bool

	// Cycles
	Count        uint // continuous mode, 0 = until interrupted
	Report       bool
	ReportCycles uint
	FinalHop     string // final hop policy: lowest, fastest

	// Timing
	Interval time.Duration
	Timeout  time.Duration

	// Output
	Json        bool   // output json to stdout
	JsonFile    string // output json to file while showing text or TUI
	TUI         bool   // interactive Bubble Tea interface
	MetricsAddr string // serve Prometheus metrics, empty means disabled

	// Path hashing
	HashAlgorithm string // hash algorithm: crc32, sha256

	// Logging
	Log      string // log file path, empty means no logging
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool
	var intervalMs, timeoutMs uint

	// Set custom usage message
	flag.Usage = func() {
		println("mtr - parallel ping and traceroute")
		println()
		println("Probes every hop towards a destination in parallel and keeps live loss and RTT statistics.")
		println()
		println("Usage:")
		println("  mtr [OPTIONS] DESTINATION")
		println()
		println("Examples:")
		println("  mtr <destination>                    # Continuous mode, live table")
		println("  mtr -r -C 20 <destination>           # 20 cycles, then print a report")
		println("  mtr -c 10 -J <destination>           # 10 cycles, JSON to stdout")
		println("  mtr --tui -j path.json <destination> # Save JSON while showing TUI")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Raw ICMP sockets require root or CAP_NET_RAW.")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVarP(&args.Source, "address", "a", "", "Source IPv4 address")
	flag.UintVarP(&args.Count, "count", "c", 0, "Number of cycles in continuous mode (0 = infinite)")
	flag.UintVarP(&intervalMs, "interval", "i", 500, "Milliseconds between cycles")
	flag.UintVarP(&args.MaxTTL, "max-ttl", "m", 30, "Maximum TTL hops")
	flag.BoolVarP(&args.NoDNS, "no-dns", "n", false, "Do not resolve IP addresses to hostnames")
	flag.BoolVarP(&args.Report, "report", "r", false, "Report mode: run silently and print a summary")
	flag.UintVarP(&args.ReportCycles, "report-cycles", "C", 10, "Number of cycles in report mode")
	flag.UintVarP(&timeoutMs, "timeout", "t", 500, "Per-probe timeout in milliseconds")
	flag.StringVar(&args.FinalHop, "final-hop", "lowest", "Final hop when several hops answer from the destination: lowest or fastest")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file (keeps text or TUI)")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout (disables text and TUI)")
	flag.BoolVar(&args.TUI, "tui", false, "Interactive terminal interface")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9108")
	flag.StringVar(&args.HashAlgorithm, "hash-algorithm", "crc32", "Path hash algorithm: crc32 or sha256")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = no logging)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	args.Interval = time.Duration(intervalMs) * time.Millisecond
	args.Timeout = time.Duration(timeoutMs) * time.Millisecond

	args.Destination = flag.Arg(0)
	if args.Destination == "" {
		return args, errors.New("destination is required")
	}

	switch {
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.TUI && (args.Json || args.Report):
		return args, errors.New("cannot use --tui with --json or --report")
	case args.HashAlgorithm != "crc32" && args.HashAlgorithm != "sha256":
		return args, errors.New("hash algorithm must be either 'crc32' or 'sha256'")
	case args.FinalHop != "lowest" && args.FinalHop != "fastest":
		return args, errors.New("final hop policy must be either 'lowest' or 'fastest'")
	case args.MaxTTL < 1 || args.MaxTTL > 255:
		return args, errors.New("maximum TTL must be between 1 and 255")
	case args.ReportCycles == 0:
		return args, errors.New("report cycles must be greater than 0")
	case args.Timeout <= 0:
		return args, errors.New("timeout must be greater than 0")
	}

	if args.Source != "" {
		ip, err := netip.ParseAddr(args.Source)
		if err != nil || !ip.Is4() {
			return args, errors.New("source address must be an IPv4 address")
		}
	}

	return args, nil
}

// Cycles returns how many cycles the run is limited to, 0 meaning unlimited.
func (a Args) Cycles() uint {
	if a.Report {
		return a.ReportCycles
	}
	return a.Count
}

// ModeName returns the run mode based on args
func (a Args) ModeName() string {
	if a.Report {
		return "report"
	}
	return "continuous"
}
