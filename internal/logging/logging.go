package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
)

// SetupLogger installs a structured text logger writing to w as the default
func SetupLogger(level string, w io.Writer) {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: false,
	}

	handler := slog.NewTextHandler(w, opts)
	logger := slog.New(handler).With(slog.Int("pid", os.Getpid()))

	slog.SetDefault(logger)
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogConfig logs the current configuration
func LogConfig(cfg *config.Config) {
	if cfg.IsServer {
		slog.Info("Server configuration",
			"listen_address", cfg.ListenAddress,
			"base_dir", cfg.BaseDir,
			"log_file", cfg.LogFile,
			"request_timeout_seconds", cfg.RequestTimeout.Seconds(),
			"write_timeout_seconds", cfg.WriteTimeout.Seconds(),
			"retries", cfg.Retries)
		return
	}

	slog.Info("Client configuration",
		"server_address", cfg.ServerAddress,
		"output_dir", cfg.OutputDir,
		"idle_timeout_seconds", cfg.IdleTimeout.Seconds(),
		"progress", cfg.ShowProgress)
}

// LogError logs an error with appropriate context
func LogError(err error, context string) {
	var (
		netErr    *errors.NetworkError
		fsErr     *errors.FileSystemError
		notFound  *errors.NotFoundError
		protoErr  *errors.ProtocolError
		idleErr   *errors.IdleTimeoutError
		validErr  *errors.ValidationError
		transient *errors.TransientWriteError
	)

	switch {
	case errors.As(err, &netErr):
		slog.Error("Network error",
			"context", context,
			"operation", netErr.Op,
			"address", netErr.Addr,
			"error", netErr.Err,
			"error_type", "network")
	case errors.As(err, &idleErr):
		slog.Error("Idle timeout",
			"context", context,
			"idle_seconds", idleErr.Idle.Seconds(),
			"received_bytes", idleErr.Received,
			"error_type", "timeout")
	case errors.As(err, &notFound):
		slog.Error("File not found",
			"context", context,
			"name", notFound.Name,
			"error_type", "not_found")
	case errors.As(err, &transient):
		slog.Error("Write failed after retries",
			"context", context,
			"written_bytes", transient.Written,
			"error", transient.Err,
			"error_type", "transient_write")
	case errors.As(err, &fsErr):
		slog.Error("File system error",
			"context", context,
			"operation", fsErr.Op,
			"path", fsErr.Path,
			"error", fsErr.Err,
			"error_type", "filesystem")
	case errors.As(err, &protoErr):
		slog.Error("Protocol error",
			"context", context,
			"operation", protoErr.Op,
			"message", protoErr.Message,
			"error_type", "protocol")
	case errors.As(err, &validErr):
		slog.Error("Validation error",
			"context", context,
			"field", validErr.Field,
			"message", validErr.Message,
			"error_type", "validation")
	default:
		slog.Error("Unhandled error",
			"context", context,
			"error", err,
			"error_type", "unknown")
	}
}

// LogTransferProgress logs receive progress. The total is unknown on the
// wire, so only the running count and rate are reported.
func LogTransferProgress(filename string, transferred int64, rate float64) {
	slog.Info("Transfer progress",
		"filename", filename,
		"transferred_mb", float64(transferred)/(1024*1024),
		"transfer_rate_mbps", rate)
}

// LogTransferComplete logs successful transfer completion
func LogTransferComplete(filename string, size int64, duration time.Duration) {
	rate := 0.0
	if duration > 0 {
		rate = float64(size) / (1024 * 1024) / duration.Seconds()
	}
	slog.Info("Transfer completed successfully",
		"filename", filename,
		"total_size_mb", float64(size)/(1024*1024),
		"duration_ms", duration.Milliseconds(),
		"average_rate_mbps", rate,
		"timestamp", time.Now().Format("15:04:05"))
}

// LogSessionStart logs the start of a transfer session
func LogSessionStart(mode string, filename string, peer string) {
	slog.Info("Transfer session started",
		"mode", mode,
		"filename", filename,
		"peer", peer,
		"session_start", time.Now().Format("15:04:05"))
}

// LogSessionEnd logs the end of a transfer session
func LogSessionEnd(outcome string, totalBytes int64, duration time.Duration) {
	avgRate := 0.0
	if duration > 0 {
		avgRate = float64(totalBytes) / (1024 * 1024) / duration.Seconds()
	}
	slog.Info("Transfer session ended",
		"status", outcome,
		"total_bytes_transferred", totalBytes,
		"session_duration_ms", duration.Milliseconds(),
		"average_throughput_mbps", avgRate,
		"session_end", time.Now().Format("15:04:05"))
}
