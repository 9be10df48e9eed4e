// Package errors provides error types and classification for media upload
// and merge operations.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error represents a pipeline operation error with context about the
// operation that failed. It wraps the underlying transport or filesystem
// error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "upload.chunk", "merge.status")
	Op string

	// Session is the upload or merge session id (if applicable)
	Session string

	// Path is the local source file path (if applicable)
	Path string

	// Err is the underlying error from the transport or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Session != "" && e.Path != "" {
		return fmt.Sprintf("media.%s session %s file %s: %v", e.Op, e.Session, e.Path, e.Err)
	}
	if e.Session != "" {
		return fmt.Sprintf("media.%s session %s: %v", e.Op, e.Session, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("media.%s file %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("media.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithSession adds session id context to an existing error.
func (e *Error) WithSession(id string) *Error {
	e.Session = id
	return e
}

// WithPath adds source file context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewSessionError creates a new Error with session context.
func NewSessionError(op, session string, err error) *Error {
	return &Error{
		Op:      op,
		Session: session,
		Err:     err,
	}
}

// NewPathError creates a new Error with source file context.
func NewPathError(op, path string, err error) *Error {
	return &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// Sentinel errors forming the failure taxonomy. Retry policy and callers
// match on these with errors.Is(); every terminal failure produced by the
// pipeline carries exactly one of them in its chain.
var (
	// ErrNetwork indicates the request never completed due to a connectivity
	// problem (DNS, reset, unreachable host). Retryable.
	ErrNetwork = errors.New("media: network unavailable")

	// ErrTimeout indicates the operation exceeded its deadline. Retryable.
	ErrTimeout = errors.New("media: operation timeout")

	// ErrServer indicates the backend answered with a 5xx (or rate-limit)
	// response. Retryable.
	ErrServer = errors.New("media: server error")

	// ErrAuth indicates the backend rejected the bearer token (401/403).
	// Never retried.
	ErrAuth = errors.New("media: authentication rejected")

	// ErrValidation indicates malformed input, locally or per a 4xx
	// response. Never retried.
	ErrValidation = errors.New("media: invalid input")

	// ErrNotFound indicates the referenced remote resource does not exist
	// (e.g. an unknown merge session id). Never retried.
	ErrNotFound = errors.New("media: not found")

	// ErrStorage indicates a local filesystem failure while reading source
	// media or persisting queue state.
	ErrStorage = errors.New("media: local storage failure")

	// ErrCancelled indicates the caller cancelled the operation. Clean
	// terminal state, not a user-facing failure.
	ErrCancelled = errors.New("media: operation cancelled")

	// ErrQueued indicates the upload was handed to the offline queue instead
	// of completing; it will be replayed when connectivity returns.
	ErrQueued = errors.New("media: queued while offline")
)

// IsNetwork checks if an error indicates a connectivity failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsTimeout checks if an error indicates a deadline was exceeded.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsServer checks if an error indicates a backend-side failure.
func IsServer(err error) bool {
	return errors.Is(err, ErrServer)
}

// IsAuth checks if an error indicates the bearer token was rejected.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsValidation checks if an error indicates invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error indicates a missing remote resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage checks if an error indicates a local filesystem failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsCancelled checks if an error indicates caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsQueued checks if an error indicates the upload moved to the offline queue.
func IsQueued(err error) bool {
	return errors.Is(err, ErrQueued)
}

// IsRetryable reports whether the failure kind is transient and eligible for
// another attempt under the backoff policy.
func IsRetryable(err error) bool {
	return IsNetwork(err) || IsTimeout(err) || IsServer(err)
}

// FromStatus maps a non-2xx HTTP response to a classified Error. The detail
// string, when present, is the response body or its message field.
func FromStatus(op string, status int, detail string) *Error {
	msg := fmt.Sprintf("http %d", status)
	if detail != "" {
		msg = fmt.Sprintf("http %d: %s", status, detail)
	}
	return NewError(op, statusKind(status)).WithMessage(msg)
}

func statusKind(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 404:
		return ErrNotFound
	case status == 408:
		return ErrTimeout
	case status == 429:
		return ErrServer
	case status >= 500:
		return ErrServer
	case status >= 400:
		return ErrValidation
	default:
		return ErrServer
	}
}

// FromTransport maps a failed round trip (no HTTP response produced) to a
// classified Error. Context cancellation and deadline expiry keep their
// original error in the chain alongside the taxonomy sentinel.
func FromTransport(op string, err error) *Error {
	return NewError(op, fmt.Errorf("%w: %w", transportKind(err), err))
}

func transportKind(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout
		}
		return ErrNetwork
	}
}
