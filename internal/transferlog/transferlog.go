// Package transferlog records the terminal outcome of every transfer as one
// line in an append-only file.
package transferlog

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"chunkserve/internal/errors"
)

// TimeLayout formats timestamps in log lines
const TimeLayout = time.ANSIC

// Result texts written for transfers that did not complete
const (
	TextNotFound = "file not found"
	TextFailed   = "transmission not completed"
)

// Outcome classifies how a transfer ended
type Outcome int

const (
	Delivered Outcome = iota
	NotFound
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one request. Exactly one is produced per
// connection.
type Result struct {
	Outcome  Outcome
	Reason   error
	Bytes    int64
	Finished time.Time
}

// Text returns the result column of a log line: the completion time for a
// delivered file, a fixed message otherwise.
func (r Result) Text() string {
	switch r.Outcome {
	case Delivered:
		return r.Finished.Format(TimeLayout)
	case NotFound:
		return TextNotFound
	default:
		return TextFailed
	}
}

// Entry is one immutable log record
type Entry struct {
	PeerIP   string
	PeerPort int
	Filename string
	Start    time.Time
	Result   Result
}

// Line renders the entry as a single newline-terminated line:
// <peer-ip> <peer-port> <filename> <start> <result>
func (e Entry) Line() string {
	return fmt.Sprintf("%s %d %s %s %s\n",
		e.PeerIP,
		e.PeerPort,
		quoteName(e.Filename),
		e.Start.Format(TimeLayout),
		e.Result.Text())
}

// quoteName keeps a filename on one field of one line
func quoteName(name string) string {
	if name == "" {
		return "-"
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return strconv.Quote(name)
	}
	return name
}

// Logger appends entries to a sink. Appends are serialized and each entry
// reaches the sink in a single Write call, so concurrent workers never
// interleave partial lines. Nothing is buffered in the logger.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// New returns a Logger appending to w
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Record appends one entry and mirrors it to the structured log
func (l *Logger) Record(e Entry) error {
	line := e.Line()

	l.mu.Lock()
	_, err := io.WriteString(l.w, line)
	if err != nil && l.err == nil {
		l.err = err
	}
	l.mu.Unlock()

	attrs := []any{
		"peer_ip", e.PeerIP,
		"peer_port", e.PeerPort,
		"filename", e.Filename,
		"outcome", e.Result.Outcome.String(),
		"bytes", e.Result.Bytes,
	}
	if e.Result.Reason != nil {
		attrs = append(attrs, "reason", e.Result.Reason)
	}
	slog.Info("Transfer recorded", attrs...)

	if err != nil {
		return errors.NewFileSystemError("append_log", "transfer log", err)
	}
	return nil
}

// Err returns the first write error the logger encountered, if any
func (l *Logger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
