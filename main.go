/*
Copyright 2025 Yousaf Gill. All rights reserved.
Use of this source code is governed by the MIT license
that can be found in the LICENSE file.

chunkserve is a concurrent bulk file server and its download client. Files
are streamed over plain TCP in fixed-size chunks; transfers larger than one
chunk end with a two-byte end marker, smaller ones with the connection close.

The program operates in two modes:

 1. Server Mode: serves files from a base directory, one worker per
    connection, recording every transfer in an append-only log

 2. Client Mode: requests a file by name and saves the stream locally,
    giving up when the server goes silent
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chunkserve/internal/client"
	"chunkserve/internal/config"
	"chunkserve/internal/logging"
	"chunkserve/internal/server"
)

// Client exit codes
const (
	exitOK       = 0
	exitFailed   = 1
	exitTimedOut = 2
)

func main() {
	// Parse command line arguments
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailed)
	}

	// Setup structured logging
	logging.SetupLogger(cfg.LogLevel, os.Stderr)
	logging.LogConfig(cfg)

	if cfg.IsServer {
		// Cancel on SIGINT/SIGTERM so the server can drain its workers
		ctx := setupSignalHandling()
		if err := server.Run(ctx, cfg); err != nil {
			logging.LogError(err, "server")
			os.Exit(exitFailed)
		}
		return
	}

	// The client has no cancel signal: a transfer ends on close, marker or
	// idle timeout, and an interrupt simply kills the process
	os.Exit(runClient(context.Background(), cfg))
}

// runClient maps the receiver's terminal state to a process exit code
func runClient(ctx context.Context, cfg *config.Config) int {
	state, err := client.Run(ctx, cfg)
	switch state {
	case client.Done:
		return exitOK
	case client.TimedOut:
		logging.LogError(err, "client")
		fmt.Fprintf(os.Stderr, "File server timed out: %v\n", err)
		return exitTimedOut
	default:
		logging.LogError(err, "client")
		fmt.Fprintf(os.Stderr, "Transfer of %s failed: %v\n", cfg.Filename, err)
		return exitFailed
	}
}

// setupSignalHandling returns a context cancelled by the first SIGINT or
// SIGTERM
func setupSignalHandling() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	return ctx
}
