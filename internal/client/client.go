package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/filesystem"
	"chunkserve/internal/logging"
	"chunkserve/internal/progress"
	"chunkserve/internal/protocol"
)

// Run fetches cfg.Filename from cfg.ServerAddress into cfg.OutputDir and
// returns the terminal state together with its error
func Run(ctx context.Context, cfg *config.Config) (State, error) {
	slog.Info("Starting client", "server", cfg.ServerAddress, "filename", cfg.Filename)

	stats := &progress.Stats{StartTime: time.Now(), Filename: cfg.Filename}
	receiver := &Receiver{
		DialTimeout: cfg.DialTimeout,
		IdleTimeout: cfg.IdleTimeout,
		BufferSize:  protocol.ChunkSize,
		Stats:       stats,
	}

	var outFile *os.File
	open := func() (io.Writer, error) {
		f, err := filesystem.CreateOutputFile(cfg.OutputDir, cfg.Filename)
		if err != nil {
			return nil, err
		}
		outFile = f
		return f, nil
	}

	var reporter *progress.Reporter
	if cfg.ShowProgress {
		reporter = progress.NewReporter(stats, os.Stderr)
		reporter.Start()
	}

	logging.LogSessionStart("CLIENT", cfg.Filename, cfg.ServerAddress)
	res := receiver.Receive(ctx, cfg.ServerAddress, cfg.Filename, open)

	if reporter != nil {
		reporter.Stop()
	}

	if outFile != nil {
		if err := outFile.Close(); err != nil && res.Err == nil {
			res = Result{State: Failed, Bytes: res.Bytes, Err: err, Duration: res.Duration}
		}
	}

	logging.LogSessionEnd(res.State.String(), res.Bytes, res.Duration)

	if res.State != Done {
		return res.State, res.Err
	}

	logging.LogTransferComplete(cfg.Filename, res.Bytes, res.Duration)
	fmt.Printf("%s downloaded successfully!\n", cfg.Filename)

	if cfg.Checksum && outFile != nil {
		sum, err := checksum(outFile.Name())
		if err != nil {
			logging.LogError(err, "checksum")
		} else {
			fmt.Printf("%s  %s\n", sum, outFile.Name())
		}
	}

	return Done, nil
}

// checksum returns the MD5 of the file at path
func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return filesystem.CalculateFileHash(f)
}
