package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
	"chunkserve/internal/filesystem"
	"chunkserve/internal/logging"
	"chunkserve/internal/network"
	"chunkserve/internal/protocol"
	"chunkserve/internal/transferlog"

	"github.com/google/uuid"
)

// Accept backoff bounds for retryable accept failures
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// worker is the handle retained for one connection's task
type worker struct {
	id      uuid.UUID
	conn    net.Conn
	started time.Time
}

// Server accepts connections and hands each one to its own worker. Workers
// share only the transfer log and the read-only file root.
type Server struct {
	cfg      *config.Config
	root     *filesystem.Root
	log      *transferlog.Logger
	streamer *Streamer

	mu       sync.Mutex
	listener net.Listener
	workers  map[uuid.UUID]*worker
	closing  atomic.Bool
	wg       sync.WaitGroup

	finished   chan *worker
	reaperDone chan struct{}
	closeOnce  sync.Once
}

// New creates a server and starts its reaper
func New(cfg *config.Config, root *filesystem.Root, log *transferlog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		root:       root,
		log:        log,
		streamer:   NewStreamer(cfg),
		workers:    make(map[uuid.UUID]*worker),
		finished:   make(chan *worker, 64),
		reaperDone: make(chan struct{}),
	}
	go s.reap()
	return s
}

// Run starts the server with the given configuration and blocks until ctx
// is cancelled or accepting fails.
func Run(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting server", "address", cfg.ListenAddress, "base_dir", cfg.BaseDir)

	root, err := filesystem.OpenRoot(cfg.BaseDir)
	if err != nil {
		return err
	}
	defer root.Close()

	logFile, err := filesystem.OpenAppendFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return errors.NewNetworkError("listen", cfg.ListenAddress, err)
	}

	srv := New(cfg, root, transferlog.New(logFile))

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		slog.Info("Shutting down, waiting for workers", "active_workers", srv.ActiveWorkers())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Workers still running at shutdown", "error", err)
		}
	}()

	slog.Info("Server ready to accept connections", "address", listener.Addr().String())
	if err := srv.Serve(listener); err != nil {
		return err
	}

	// The log file and root stay open until every worker is done with them
	<-shutdownDone
	return nil
}

// Serve accepts connections on ln until Shutdown is called or an accept
// fails for a reason other than an interruption. It never waits for a worker.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if network.IsRetryableAccept(err) {
				delay = nextAcceptDelay(delay)
				slog.Warn("Accept interrupted, retrying", "error", err, "retry_in", delay)
				time.Sleep(delay)
				continue
			}
			return errors.NewNetworkError("accept", ln.Addr().String(), err)
		}
		delay = 0

		s.spawn(conn)
	}
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minAcceptDelay
	}
	return min(delay*2, maxAcceptDelay)
}

// spawn registers a worker for conn and starts it
func (s *Server) spawn(conn net.Conn) {
	w := &worker{id: uuid.New(), conn: conn, started: time.Now()}

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.workers[w.id] = w
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() { s.finished <- w }()
		s.handleConnection(w)
	}()
}

// reap joins finished workers. It runs apart from the accept loop so
// bookkeeping never delays an accept.
func (s *Server) reap() {
	defer close(s.reaperDone)

	for w := range s.finished {
		s.mu.Lock()
		delete(s.workers, w.id)
		s.mu.Unlock()
		s.wg.Done()

		slog.Debug("Worker reaped",
			"transfer_id", w.id.String(),
			"lifetime_ms", time.Since(w.started).Milliseconds())
	}
}

// ActiveWorkers returns the number of workers not yet reaped
func (s *Server) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Addr returns the address being served, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for running workers. If ctx ends first
// the remaining connections are closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	go func() {
		s.wg.Wait()
		s.closeOnce.Do(func() { close(s.finished) })
	}()

	select {
	case <-s.reaperDone:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, w := range s.workers {
			w.conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// handleConnection runs one worker to completion. Whatever happens inside,
// including a panic, ends as exactly one transfer log entry, and the
// connection is closed afterwards.
func (s *Server) handleConnection(w *worker) {
	conn := w.conn
	defer conn.Close()

	ip, port := network.PeerAddress(conn.RemoteAddr())
	entry := transferlog.Entry{PeerIP: ip, PeerPort: port, Start: w.started}

	log := slog.With(
		"transfer_id", w.id.String(),
		"remote_addr", conn.RemoteAddr().String())
	log.Debug("New connection")

	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panicked", "panic", r)
			entry.Result = transferlog.Result{
				Outcome:  transferlog.Failed,
				Reason:   fmt.Errorf("worker panic: %v", r),
				Finished: time.Now(),
			}
		}
		if err := s.log.Record(entry); err != nil {
			logging.LogError(err, "transfer_log")
		}
	}()

	if err := network.OptimizeTCPConnection(conn); err != nil {
		log.Warn("Failed to optimize TCP connection", "error", err)
	}

	entry.Filename, entry.Result = s.transfer(log, conn)
}

// transfer reads the request and streams the named file
func (s *Server) transfer(log *slog.Logger, conn net.Conn) (string, transferlog.Result) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.RequestTimeout)); err != nil {
		return "", failed(errors.NewNetworkError("set_read_deadline", conn.RemoteAddr().String(), err))
	}

	name, err := protocol.ReadRequest(conn)
	if err != nil {
		logging.LogError(err, "read_request")
		return "", failed(err)
	}

	file, info, err := s.root.Open(name)
	if err != nil {
		log.Info("Requested file not available", "filename", name, "error", err)
		return name, transferlog.Result{
			Outcome:  transferlog.NotFound,
			Reason:   err,
			Finished: time.Now(),
		}
	}
	defer file.Close()

	logging.LogSessionStart("SERVER", name, conn.RemoteAddr().String())
	log.Debug("Streaming file", "filename", name, "size", info.Size)

	started := time.Now()
	written, err := s.streamer.Stream(file, conn)
	if err != nil {
		logging.LogError(err, "stream")
		logging.LogSessionEnd("FAILED", written, time.Since(started))
		result := failed(err)
		result.Bytes = written
		return name, result
	}

	logging.LogTransferComplete(name, written, time.Since(started))
	return name, transferlog.Result{
		Outcome:  transferlog.Delivered,
		Bytes:    written,
		Finished: time.Now(),
	}
}

func failed(err error) transferlog.Result {
	return transferlog.Result{
		Outcome:  transferlog.Failed,
		Reason:   err,
		Finished: time.Now(),
	}
}
