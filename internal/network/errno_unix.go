//go:build unix

package network

import (
	"chunkserve/internal/errors"

	"golang.org/x/sys/unix"
)

func isTransientErrno(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.ENOBUFS)
}

func isRetryableAcceptErrno(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EPROTO)
}
