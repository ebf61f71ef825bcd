package errors

import (
	"errors"
	"fmt"
)

// MessagingError is the base interface for all connector errors.
type MessagingError interface {
	error
	IsMessagingError() bool
}

// Compile-time verification that all error types implement MessagingError.
var (
	_ MessagingError = (*RetriesExhaustedError)(nil)
	_ MessagingError = (*ConnectionError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrRequestTimeout indicates a request or handshake exceeded its timeout.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrExchangeStopped indicates the message exchange has stopped and can
	// no longer correlate responses.
	ErrExchangeStopped = errors.New("message exchange stopped")

	// ErrConnectorClosed indicates the connector has been closed and cannot
	// be reused.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrTransportClosed indicates the underlying transport is no longer
	// delivering messages.
	ErrTransportClosed = errors.New("transport closed")
)

// RetriesExhaustedError indicates a handshake failed the configured number
// of consecutive times.
type RetriesExhaustedError struct {
	// Attempts is the configured maximum number of connection attempts.
	Attempts int

	// Err is the failure from the final attempt.
	Err error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// IsMessagingError implements MessagingError.
func (e *RetriesExhaustedError) IsMessagingError() bool { return true }

// ConnectionError indicates the connector required a ready connection but
// its status is error.
type ConnectionError struct {
	// Status is the connector status observed when readiness was required.
	Status string

	// Err is the underlying connection failure, when known.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection not ready (status %q): %v", e.Status, e.Err)
	}

	return fmt.Sprintf("connection not ready (status %q)", e.Status)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsMessagingError implements MessagingError.
func (e *ConnectionError) IsMessagingError() bool { return true }
