package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error types for different categories of failures
var (
	ErrNetwork        = errors.New("network error")
	ErrFileSystem     = errors.New("file system error")
	ErrProtocol       = errors.New("protocol error")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("file not found")
	ErrTransientWrite = errors.New("transient write error")
	ErrTimeout        = errors.New("timeout error")
	ErrIncomplete     = errors.New("transmission not completed")
)

// NetworkError represents connection-level failures: listen, accept, dial,
// and hard read/write errors.
type NetworkError struct {
	Op   string
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s to %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// NotFoundError is returned when a requested file cannot be opened
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s: %v", e.Name, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransientWriteError wraps a write failure that may succeed if retried
// (would-block, interrupted, write deadline). Written is the number of bytes
// the failed call still managed to hand to the connection.
type TransientWriteError struct {
	Written int
	Err     error
}

func (e *TransientWriteError) Error() string {
	return fmt.Sprintf("transient write error after %d bytes: %v", e.Written, e.Err)
}

func (e *TransientWriteError) Unwrap() error {
	return e.Err
}

func (e *TransientWriteError) Is(target error) bool {
	return target == ErrTransientWrite
}

// IdleTimeoutError is returned when no bytes arrive within the idle threshold
type IdleTimeoutError struct {
	Idle     time.Duration
	Received int64
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("timeout error: no data for %s after %d bytes", e.Idle, e.Received)
}

func (e *IdleTimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// FileSystemError represents file system-related errors
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("file system error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

func (e *FileSystemError) Is(target error) bool {
	return target == ErrFileSystem
}

// ProtocolError represents protocol-related errors
type ProtocolError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error during %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s='%v': %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Is and As forward to the standard library so callers importing this
// package under its own name do not need a second errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Helper functions for creating errors

func NewNetworkError(op, addr string, err error) error {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

func NewNotFoundError(name string, err error) error {
	return &NotFoundError{Name: name, Err: err}
}

func NewTransientWriteError(written int, err error) error {
	return &TransientWriteError{Written: written, Err: err}
}

func NewIdleTimeoutError(idle time.Duration, received int64) error {
	return &IdleTimeoutError{Idle: idle, Received: received}
}

func NewFileSystemError(op, path string, err error) error {
	return &FileSystemError{Op: op, Path: path, Err: err}
}

func NewProtocolError(op, message string, err error) error {
	return &ProtocolError{Op: op, Message: message, Err: err}
}

func NewValidationError(field string, value interface{}, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}
