//go:build !unix

package network

func isTransientErrno(err error) bool {
	return false
}

func isRetryableAcceptErrno(err error) bool {
	return false
}
