package swm

import "github.com/Tiro-health/smart-web-messaging/internal/errors"

// Re-export error types from internal package

// RetriesExhaustedError indicates a handshake failed the configured
// number of consecutive times.
type RetriesExhaustedError = errors.RetriesExhaustedError

// ConnectionError indicates the connector required a ready connection
// but its status is error.
type ConnectionError = errors.ConnectionError

// MessagingError is the base interface for all connector errors.
type MessagingError = errors.MessagingError

// Re-export sentinel errors from internal package.
var (
	// ErrRequestTimeout indicates a request or handshake exceeded its timeout.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrExchangeStopped indicates the message exchange has stopped.
	ErrExchangeStopped = errors.ErrExchangeStopped

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.ErrConnectorClosed

	// ErrTransportClosed indicates the underlying transport is gone.
	ErrTransportClosed = errors.ErrTransportClosed
)
