package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"chunkserve/internal/errors"
)

// Constants for default values
const (
	DefaultLogLevel       = "info"
	DefaultIdleTimeout    = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultRetries        = 2
	DefaultRetryDelay     = 50 * time.Millisecond
	DefaultOutputDir      = "."

	// File system constants
	LogDirPerms  = 0755
	LogFilePerms = 0644
	OutFilePerms = 0644

	// Network constants
	KeepAlivePeriod = 30 * time.Second

	EnvLogLevel = "CHUNKSERVE_LOG_LEVEL"
)

const usage = `usage:
  chunkserve -server [flags] <listen-port> <file-base-directory> <log-file-path>
  chunkserve [flags] <server-ip> <port> <filename>`

// Config holds all configuration parameters for the application
type Config struct {
	IsServer bool
	LogLevel string

	// Server mode settings
	ListenAddress  string
	BaseDir        string
	LogFile        string
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	Retries        int
	RetryDelay     time.Duration

	// Client mode settings
	ServerAddress string
	Filename      string
	OutputDir     string
	DialTimeout   time.Duration
	IdleTimeout   time.Duration
	ShowProgress  bool
	Checksum      bool
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if c.IsServer {
		if c.ListenAddress == "" {
			return fmt.Errorf("listen address is required in server mode")
		}
		if c.BaseDir == "" {
			return fmt.Errorf("file base directory is required in server mode")
		}
		if c.LogFile == "" {
			return fmt.Errorf("log file path is required in server mode")
		}
		if c.RequestTimeout <= 0 || c.WriteTimeout <= 0 {
			return fmt.Errorf("timeouts must be positive")
		}
		return nil
	}

	if c.ServerAddress == "" {
		return fmt.Errorf("server address is required in client mode")
	}
	if c.Filename == "" {
		return fmt.Errorf("filename is required in client mode")
	}
	if c.IdleTimeout <= 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// ParseFlags parses command line arguments and returns a Config
func ParseFlags() (*Config, error) {
	return parseFlagSet(flag.CommandLine, os.Args[1:])
}

// parseFlagSet parses args into a Config using an isolated flag set so tests
// do not touch the global command line. Flags override the environment.
func parseFlagSet(fs *flag.FlagSet, args []string) (*Config, error) {
	logLevel := DefaultLogLevel
	if env := os.Getenv(EnvLogLevel); env != "" {
		logLevel = env
	}

	cfg := &Config{}

	fs.BoolVar(&cfg.IsServer, "server", false, "Run in server mode")
	fs.StringVar(&cfg.LogLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")

	// Server flags
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", DefaultRequestTimeout, "Time to wait for a client request (server mode)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", DefaultWriteTimeout, "Deadline for a single chunk write (server mode)")
	fs.IntVar(&cfg.Retries, "retries", DefaultRetries, "Retries for a chunk write that failed transiently (server mode)")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", DefaultRetryDelay, "Backoff step between chunk write retries (server mode)")

	// Client flags
	fs.StringVar(&cfg.OutputDir, "output", DefaultOutputDir, "Directory to store the received file (client mode)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", DefaultDialTimeout, "Connection timeout (client mode)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", DefaultIdleTimeout, "Abort when no data arrives for this long (client mode)")
	fs.BoolVar(&cfg.ShowProgress, "progress", false, "Show progress during transfer (client mode)")
	fs.BoolVar(&cfg.Checksum, "checksum", false, "Print MD5 of the received file (client mode)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	positional := fs.Args()
	if len(positional) != 3 {
		return nil, errors.NewValidationError("arguments", positional, usage)
	}

	if cfg.IsServer {
		port, err := parsePort(positional[0])
		if err != nil {
			return nil, err
		}
		cfg.ListenAddress = net.JoinHostPort("", strconv.Itoa(port))
		cfg.BaseDir = positional[1]
		cfg.LogFile = positional[2]
	} else {
		port, err := parsePort(positional[1])
		if err != nil {
			return nil, err
		}
		cfg.ServerAddress = net.JoinHostPort(positional[0], strconv.Itoa(port))
		cfg.Filename = positional[2]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parsePort parses a decimal TCP port in the range 1-65535
func parsePort(s string) (int, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.NewValidationError("port", s, "not a number in range 1-65535")
	}
	if port == 0 {
		return 0, errors.NewValidationError("port", s, "port must be positive")
	}
	return int(port), nil
}

// String returns a string representation of the config for logging
func (c *Config) String() string {
	if c.IsServer {
		return fmt.Sprintf("Config{Mode: Server, Listen: %s, Retries: %d, WriteTimeout: %s}",
			c.ListenAddress, c.Retries, c.WriteTimeout)
	}
	return fmt.Sprintf("Config{Mode: Client, Server: %s, IdleTimeout: %s, Progress: %v}",
		c.ServerAddress, c.IdleTimeout, c.ShowProgress)
}
