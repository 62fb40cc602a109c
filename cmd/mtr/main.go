package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tkjaer/mtr/internal/config"
	"github.com/tkjaer/mtr/internal/probe"
)

func main() {
	os.Exit(run())
}

func run() int {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Debug("Starting mtr",
		"destination", args.Destination,
		"mode", args.ModeName(),
		"max_ttl", args.MaxTTL,
	)

	pm, err := probe.NewProbeManager(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pm.Close()

	// Ctrl+C and SIGTERM end the run gracefully
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pm.Run(ctx); err != nil {
		slog.Error("Probe manager error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	slog.Debug("mtr completed", "state", pm.State())
	return 0
}
