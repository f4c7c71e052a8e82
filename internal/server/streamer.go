package server

import (
	"io"
	"log/slog"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
	"chunkserve/internal/network"
	"chunkserve/internal/protocol"
)

// Streamer sends one file over one connection as a sequence of chunks. All
// counters live on the stack of a single Stream call, so one Streamer may be
// shared by every worker.
type Streamer struct {
	// Retries bounds how often a transiently failed write is attempted again
	Retries int
	// RetryDelay is the linear backoff step between attempts
	RetryDelay time.Duration
	// WriteTimeout is the deadline armed before each write; expiry counts as
	// a transient failure
	WriteTimeout time.Duration
}

// NewStreamer builds a Streamer from the server configuration
func NewStreamer(cfg *config.Config) *Streamer {
	return &Streamer{
		Retries:      cfg.Retries,
		RetryDelay:   cfg.RetryDelay,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Stream copies src to conn chunk by chunk and returns the number of data
// bytes handed to the connection. A transient write failure rewinds src over
// the bytes that did not go out and tries again, at most Retries times in a
// row; any other failure, or exhausting the retries, ends the transfer with
// an error. When more than one chunk of data was sent the end marker follows
// as its own write.
func (s *Streamer) Stream(src io.ReadSeeker, conn io.Writer) (int64, error) {
	buf := make([]byte, protocol.ChunkSize)

	var written int64
	retries := 0

	for {
		n, readErr := protocol.ReadChunk(src, buf)
		if readErr != nil && readErr != io.EOF {
			return written, errors.NewFileSystemError("read_chunk", "", readErr)
		}

		if n > 0 {
			sent, err := s.write(conn, buf[:n])
			written += int64(sent)

			if err != nil {
				if !errors.Is(err, errors.ErrTransientWrite) || retries >= s.Retries {
					return written, err
				}

				if _, err := src.Seek(int64(sent-n), io.SeekCurrent); err != nil {
					return written, errors.NewFileSystemError("rewind", "", err)
				}

				retries++
				slog.Debug("Retrying chunk write",
					"attempt", retries+1,
					"unsent_bytes", n-sent,
					"error", err)
				s.backoff(retries)
				continue
			}

			retries = 0
		}

		if readErr == io.EOF {
			break
		}
	}

	if protocol.NeedsSentinel(written) {
		if err := s.writeSentinel(conn); err != nil {
			return written, err
		}
	}

	return written, nil
}

// writeSentinel sends the end marker, retrying transient failures the same
// way data chunks are retried
func (s *Streamer) writeSentinel(conn io.Writer) error {
	marker := protocol.Sentinel()
	off := 0

	for attempt := 0; ; attempt++ {
		sent, err := s.write(conn, marker[off:])
		off += sent
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.ErrTransientWrite) || attempt >= s.Retries {
			return err
		}
		s.backoff(attempt + 1)
	}
}

// write performs one write call under the configured deadline and classifies
// its failure
func (s *Streamer) write(conn io.Writer, p []byte) (int, error) {
	if err := network.SetWriteDeadline(conn, s.WriteTimeout); err != nil {
		return 0, errors.NewNetworkError("set_write_deadline", "", err)
	}

	n, err := conn.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err == nil {
		return n, nil
	}

	if network.IsTransient(err) || err == io.ErrShortWrite {
		return n, errors.NewTransientWriteError(n, err)
	}
	return n, errors.NewNetworkError("write", "", err)
}

func (s *Streamer) backoff(retry int) {
	if s.RetryDelay > 0 {
		time.Sleep(time.Duration(retry) * s.RetryDelay)
	}
}
