package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"chunkserve/internal/errors"
	"chunkserve/internal/network"
	"chunkserve/internal/progress"
	"chunkserve/internal/protocol"
)

// State is a step of the receive state machine
type State int

const (
	Connecting State = iota
	Requesting
	Receiving
	Done
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Requesting:
		return "REQUESTING"
	case Receiving:
		return "RECEIVING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	case TimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == TimedOut
}

// Result describes how a receive attempt ended
type Result struct {
	State    State
	Bytes    int64 // bytes written to the output
	Err      error
	Duration time.Duration
}

// OpenFunc supplies the output once the request has been sent
type OpenFunc func() (io.Writer, error)

// Receiver fetches one file from a server
type Receiver struct {
	DialTimeout time.Duration
	IdleTimeout time.Duration
	BufferSize  int
	Stats       *progress.Stats // optional
}

// Receive connects to addr, requests filename and writes the stream to the
// output returned by open. Bytes already written stay in the output whatever
// the final state is.
func (r *Receiver) Receive(ctx context.Context, addr, filename string, open OpenFunc) Result {
	started := time.Now()
	res := r.receive(ctx, addr, filename, open)
	res.Duration = time.Since(started)
	return res
}

func (r *Receiver) receive(ctx context.Context, addr, filename string, open OpenFunc) Result {
	// CONNECTING
	dialer := net.Dialer{Timeout: r.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return r.fail(Connecting, 0, errors.NewNetworkError("dial", addr, err))
	}
	defer conn.Close()

	if err := network.OptimizeTCPConnection(conn); err != nil {
		slog.Warn("Failed to optimize TCP connection", "error", err)
	}

	// REQUESTING
	r.transition(Connecting, Requesting)
	request, err := protocol.EncodeRequest(filename)
	if err != nil {
		return r.fail(Requesting, 0, err)
	}
	if _, err := conn.Write(request); err != nil {
		return r.fail(Requesting, 0, errors.NewNetworkError("send_request", addr, err))
	}

	out, err := open()
	if err != nil {
		return r.fail(Requesting, 0, err)
	}

	// RECEIVING
	r.transition(Requesting, Receiving)
	return r.receiveStream(conn, out)
}

// receiveStream drives the read loop. Each read waits on a deadline measured
// from the last byte received, so silence longer than IdleTimeout ends the
// transfer without polling.
func (r *Receiver) receiveStream(conn net.Conn, out io.Writer) Result {
	bufSize := r.BufferSize
	if bufSize <= 0 {
		bufSize = protocol.ChunkSize
	}
	buf := make([]byte, bufSize)

	var filter protocol.SentinelFilter
	var written int64

	commit := func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		n, err := out.Write(p)
		written += int64(n)
		if r.Stats != nil {
			r.Stats.UpdateTransferred(int64(n))
		}
		if err != nil {
			return errors.NewFileSystemError("write_output", "", err)
		}
		return nil
	}

	lastData := time.Now()
	for {
		if err := conn.SetReadDeadline(lastData.Add(r.IdleTimeout)); err != nil {
			return r.fail(Receiving, written, errors.NewNetworkError("set_read_deadline", conn.RemoteAddr().String(), err))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if werr := commit(filter.Feed(buf[:n])); werr != nil {
				return r.fail(Receiving, written, werr)
			}
			lastData = time.Now()
		}

		switch {
		case err == nil:
			continue

		case err == io.EOF:
			rest, complete := filter.Finish()
			if werr := commit(rest); werr != nil {
				return r.fail(Receiving, written, werr)
			}
			if !complete {
				return r.fail(Receiving, written, errors.NewProtocolError("receive",
					"stream closed without end marker", errors.ErrIncomplete))
			}
			return r.done(written)

		case network.IsTimeout(err):
			if filter.Terminated() {
				slog.Debug("End marker received, peer left connection open")
				return r.done(written)
			}
			rest, _ := filter.Finish()
			if werr := commit(rest); werr != nil {
				return r.fail(Receiving, written, werr)
			}
			r.transition(Receiving, TimedOut)
			return Result{
				State: TimedOut,
				Bytes: written,
				Err:   errors.NewIdleTimeoutError(r.IdleTimeout, filter.Total()),
			}

		default:
			return r.fail(Receiving, written, errors.NewNetworkError("read", conn.RemoteAddr().String(), err))
		}
	}
}

func (r *Receiver) transition(from, to State) {
	slog.Debug("Receiver state change", "from", from.String(), "to", to.String())
}

func (r *Receiver) fail(from State, written int64, err error) Result {
	r.transition(from, Failed)
	return Result{State: Failed, Bytes: written, Err: err}
}

func (r *Receiver) done(written int64) Result {
	r.transition(Receiving, Done)
	return Result{State: Done, Bytes: written}
}
