package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"chunkserve/internal/errors"
)

// Wire constants shared by both peers. Neither is configurable: the receiver
// decides whether an end marker is expected by comparing the byte count with
// DataSize, so both sides must agree on it.
const (
	ChunkSize      = 1024
	DataSize       = ChunkSize - 1 // data bytes carried by one chunk write
	MaxRequestSize = ChunkSize
)

// sentinel marks end-of-stream for transfers larger than one chunk. It is
// always sent as its own write, never concatenated with data.
var sentinel = [...]byte{'$', 0x00}

const sentinelLen = len(sentinel)

// Sentinel returns a copy of the end-of-stream marker
func Sentinel() []byte {
	s := make([]byte, sentinelLen)
	copy(s, sentinel[:])
	return s
}

// IsSentinel reports whether p is exactly the end-of-stream marker
func IsSentinel(p []byte) bool {
	return bytes.Equal(p, sentinel[:])
}

// NeedsSentinel reports whether a transfer of the given size spans more than
// one chunk and therefore has to be terminated with the marker.
func NeedsSentinel(written int64) bool {
	return written > DataSize
}

// EncodeChunk bounds buf to the data size of a single chunk. The codec applies
// no transformation; chunking is purely a size discipline.
func EncodeChunk(buf []byte) []byte {
	if len(buf) > DataSize {
		return buf[:DataSize]
	}
	return buf
}

// ReadChunk fills at most DataSize bytes of buf from r. It returns io.EOF,
// possibly together with n > 0, once r is exhausted; every chunk except the
// last one is therefore full.
func ReadChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, EncodeChunk(buf))
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF, io.EOF:
		return n, io.EOF
	default:
		return n, err
	}
}

// EncodeRequest validates a filename and returns the bytes sent as the request
func EncodeRequest(name string) ([]byte, error) {
	if name == "" {
		return nil, errors.NewValidationError("filename", name, "filename is empty")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return nil, errors.NewValidationError("filename", name, "filename contains a NUL byte")
	}
	if len(name) > MaxRequestSize {
		return nil, errors.NewValidationError("filename", name,
			fmt.Sprintf("filename longer than %d bytes", MaxRequestSize))
	}
	return []byte(name), nil
}

// ParseRequest extracts the filename from the first payload read from a
// connection. The name ends at the first NUL byte, so C-style terminated
// requests are accepted too; trailing line endings are ignored.
func ParseRequest(p []byte) (string, error) {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	name := strings.TrimRight(string(p), "\r\n")
	if name == "" {
		return "", errors.NewProtocolError("parse_request", "empty filename", nil)
	}
	return name, nil
}

// ReadRequest performs the single read that carries a request. There is no
// length field: whatever the first read returns, up to MaxRequestSize bytes,
// is the request.
func ReadRequest(r io.Reader) (string, error) {
	buf := make([]byte, MaxRequestSize)
	n, err := r.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return "", errors.NewProtocolError("read_request", "no request received", err)
	}
	return ParseRequest(buf[:n])
}
