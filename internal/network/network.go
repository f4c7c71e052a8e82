package network

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
)

// OptimizeTCPConnection applies TCP options suited to the chunked stream
func OptimizeTCPConnection(conn net.Conn) error {
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return nil // Not a TCP connection, skip optimizations
	}

	// Enable keep-alive to detect dead connections
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return errors.NewNetworkError("set_keepalive", conn.RemoteAddr().String(), err)
	}

	if err := tcpConn.SetKeepAlivePeriod(config.KeepAlivePeriod); err != nil {
		slog.Warn("Failed to set TCP keepalive period", "error", err)
	}

	// Each chunk and the end marker go out as their own segment
	if err := tcpConn.SetNoDelay(true); err != nil {
		slog.Warn("Failed to disable Nagle's algorithm", "error", err)
	}

	return nil
}

// PeerAddress splits a remote address into IP and port. Addresses that are
// not host:port pairs are returned whole with port 0.
func PeerAddress(addr net.Addr) (string, int) {
	if addr == nil {
		return "-", 0
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String(), tcpAddr.Port
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

// IsTimeout reports whether err is a deadline expiry
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether a failed write may succeed if attempted again:
// a would-block or interrupted system call, or an expired write deadline.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return IsTimeout(err) || isTransientErrno(err)
}

// IsRetryableAccept reports whether an accept failure should be retried
// instead of stopping the listener loop.
func IsRetryableAccept(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return false
	}
	return IsTimeout(err) || isRetryableAcceptErrno(err)
}

// SetWriteDeadline arms a write deadline on conn if it supports one. A zero
// timeout clears the deadline.
func SetWriteDeadline(conn any, timeout time.Duration) error {
	d, ok := conn.(interface{ SetWriteDeadline(time.Time) error })
	if !ok {
		return nil
	}
	if timeout <= 0 {
		return d.SetWriteDeadline(time.Time{})
	}
	return d.SetWriteDeadline(time.Now().Add(timeout))
}
