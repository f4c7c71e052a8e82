package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
	"chunkserve/internal/progress"
	"chunkserve/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection, reads the request and hands the
// connection to serve. The returned channel yields the request received.
func fakeServer(t *testing.T, serve func(conn net.Conn)) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	requests := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		name, err := protocol.ReadRequest(conn)
		if err != nil {
			return
		}
		requests <- name
		serve(conn)
	}()

	return ln.Addr().String(), requests
}

func receive(addr, name string, idle time.Duration) (Result, []byte) {
	var buf bytes.Buffer
	r := &Receiver{DialTimeout: time.Second, IdleTimeout: idle}
	res := r.Receive(context.Background(), addr, name, func() (io.Writer, error) {
		return &buf, nil
	})
	return res, buf.Bytes()
}

func chunks(data []byte) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := min(len(data), protocol.DataSize)
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CONNECTING", Connecting.String())
	assert.Equal(t, "RECEIVING", Receiving.String())
	assert.Equal(t, "TIMED_OUT", TimedOut.String())
	assert.Equal(t, "UNKNOWN", State(42).String())

	assert.True(t, Done.Terminal())
	assert.True(t, Failed.Terminal())
	assert.True(t, TimedOut.Terminal())
	assert.False(t, Receiving.Terminal())
}

func TestReceive_SmallFileClosedWithoutMarker(t *testing.T) {
	addr, requests := fakeServer(t, func(conn net.Conn) {
		conn.Write([]byte("short content"))
	})

	res, got := receive(addr, "notes.txt", 2*time.Second)
	require.Equal(t, Done, res.State, "error: %v", res.Err)
	assert.Equal(t, "short content", string(got))
	assert.Equal(t, int64(len("short content")), res.Bytes)
	assert.Equal(t, "notes.txt", <-requests)
}

func TestReceive_MarkerAsSeparateWrite(t *testing.T) {
	data := bytes.Repeat([]byte("chunked!"), 600)
	addr, _ := fakeServer(t, func(conn net.Conn) {
		for _, c := range chunks(data) {
			conn.Write(c)
		}
		conn.Write(protocol.Sentinel())
	})

	res, got := receive(addr, "big.bin", 2*time.Second)
	require.Equal(t, Done, res.State, "error: %v", res.Err)
	assert.Equal(t, data, got)
}

func TestReceive_MarkerCoalescedWithData(t *testing.T) {
	data := bytes.Repeat([]byte{0x24, 0x00, 0x7f}, 1500)
	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(append(append([]byte{}, data...), protocol.Sentinel()...))
	})

	res, got := receive(addr, "big.bin", 2*time.Second)
	require.Equal(t, Done, res.State, "error: %v", res.Err)
	assert.Equal(t, data, got)
}

func TestReceive_MarkerThenConnectionLeftOpen(t *testing.T) {
	data := bytes.Repeat([]byte{'q'}, 3*protocol.DataSize)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(data)
		conn.Write(protocol.Sentinel())
		<-release
	})

	res, got := receive(addr, "big.bin", 200*time.Millisecond)
	require.Equal(t, Done, res.State, "error: %v", res.Err)
	assert.Equal(t, data, got)
}

func TestReceive_SingleChunkEqualToMarker(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(protocol.Sentinel())
	})

	res, got := receive(addr, "odd.bin", 2*time.Second)
	require.Equal(t, Done, res.State)
	assert.Equal(t, protocol.Sentinel(), got)
}

func TestReceive_NothingSent(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn) {})

	res, got := receive(addr, "missing.txt", 2*time.Second)
	assert.Equal(t, Done, res.State)
	assert.Empty(t, got)
}

func TestReceive_MultiChunkWithoutMarkerFails(t *testing.T) {
	data := bytes.Repeat([]byte{'m'}, 2*protocol.DataSize)
	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(data)
	})

	res, got := receive(addr, "cut.bin", 2*time.Second)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrIncomplete)
	assert.Equal(t, data, got, "received bytes stay in the output")
}

func TestReceive_IdleTimeoutKeepsPartialData(t *testing.T) {
	partial := bytes.Repeat([]byte{'p'}, 5000)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(partial)
		<-release
	})

	started := time.Now()
	res, got := receive(addr, "stalled.bin", 200*time.Millisecond)

	assert.Equal(t, TimedOut, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrTimeout)
	assert.Equal(t, partial, got)
	assert.Equal(t, int64(len(partial)), res.Bytes)
	assert.GreaterOrEqual(t, time.Since(started), 200*time.Millisecond)

	var idleErr *errors.IdleTimeoutError
	require.True(t, errors.As(res.Err, &idleErr))
	assert.Equal(t, int64(len(partial)), idleErr.Received)
}

func TestReceive_IdleTimerRestartsOnData(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	addr, _ := fakeServer(t, func(conn net.Conn) {
		// Total silence exceeds the idle limit, each gap stays under it
		for i := 0; i < 5; i++ {
			conn.Write([]byte("tick"))
			time.Sleep(100 * time.Millisecond)
		}
		<-release
	})

	res, got := receive(addr, "slow.txt", 300*time.Millisecond)
	assert.Equal(t, TimedOut, res.State)
	assert.Equal(t, "tickticktickticktick", string(got))
}

func TestReceive_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	opened := false
	r := &Receiver{DialTimeout: time.Second, IdleTimeout: time.Second}
	res := r.Receive(context.Background(), addr, "a.txt", func() (io.Writer, error) {
		opened = true
		return io.Discard, nil
	})

	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrNetwork)
	assert.False(t, opened, "no output is created before the request is sent")
}

func TestReceive_InvalidRequest(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn) {})

	res, _ := receive(addr, "bad\x00name", time.Second)
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrValidation)
}

func TestReceive_OutputFailure(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write([]byte("data"))
	})

	r := &Receiver{DialTimeout: time.Second, IdleTimeout: time.Second}
	res := r.Receive(context.Background(), addr, "a.txt", func() (io.Writer, error) {
		return nil, errors.NewFileSystemError("create", "a.txt", os.ErrPermission)
	})

	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrFileSystem)
}

func TestReceive_UpdatesStats(t *testing.T) {
	data := bytes.Repeat([]byte{'s'}, 4*protocol.DataSize)
	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write(data)
		conn.Write(protocol.Sentinel())
	})

	stats := &progress.Stats{StartTime: time.Now()}
	r := &Receiver{DialTimeout: time.Second, IdleTimeout: time.Second, Stats: stats}
	res := r.Receive(context.Background(), addr, "a.bin", func() (io.Writer, error) {
		return io.Discard, nil
	})

	require.Equal(t, Done, res.State)
	assert.Equal(t, int64(len(data)), stats.GetTransferred())
}

func TestRun_WritesIntoOutputDir(t *testing.T) {
	content := bytes.Repeat([]byte("payload "), 1000)
	addr, requests := fakeServer(t, func(conn net.Conn) {
		for _, c := range chunks(content) {
			conn.Write(c)
		}
		conn.Write(protocol.Sentinel())
	})

	outDir := filepath.Join(t.TempDir(), "downloads")
	cfg := &config.Config{
		ServerAddress: addr,
		Filename:      "docs/report.txt",
		OutputDir:     outDir,
		DialTimeout:   time.Second,
		IdleTimeout:   2 * time.Second,
		Checksum:      true,
	}

	state, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, Done, state)
	assert.Equal(t, "docs/report.txt", <-requests)

	got, err := os.ReadFile(filepath.Join(outDir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRun_TimedOutKeepsPartialFile(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	addr, _ := fakeServer(t, func(conn net.Conn) {
		conn.Write([]byte("first part"))
		<-release
	})

	outDir := t.TempDir()
	cfg := &config.Config{
		ServerAddress: addr,
		Filename:      "partial.txt",
		OutputDir:     outDir,
		DialTimeout:   time.Second,
		IdleTimeout:   200 * time.Millisecond,
	}

	state, err := Run(context.Background(), cfg)
	assert.Equal(t, TimedOut, state)
	assert.ErrorIs(t, err, errors.ErrTimeout)

	got, err := os.ReadFile(filepath.Join(outDir, "partial.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first part", string(got))
}

func TestRun_DialFailureCreatesNoFile(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	outDir := t.TempDir()
	cfg := &config.Config{
		ServerAddress: addr,
		Filename:      "never.txt",
		OutputDir:     outDir,
		DialTimeout:   time.Second,
		IdleTimeout:   time.Second,
	}

	state, err := Run(context.Background(), cfg)
	assert.Equal(t, Failed, state)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(outDir, "never.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
