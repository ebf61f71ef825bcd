// Package config provides configuration types for the messaging connector.
package config

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout bounds a single request or handshake exchange.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultMaxRetries is the number of consecutive handshake attempts
	// ConnectWithRetry performs before giving up.
	DefaultMaxRetries = 3
)

// Options configures a connector. Immutable after construction.
type Options struct {
	// Logger receives debug, info, warn, and error messages during
	// protocol operations. Nil disables logging.
	Logger *slog.Logger

	// Timeout bounds each request/response exchange, including the
	// handshake performed by Connect.
	Timeout time.Duration

	// MaxRetries is the number of handshake attempts ConnectWithRetry
	// performs before failing with a retries-exhausted error.
	MaxRetries int

	// RetryBackoffMin and RetryBackoffMax configure an exponential delay
	// between handshake attempts. Both zero means attempts run
	// back to back.
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration

	// AutoConnect makes the constructor start a background
	// ConnectWithRetry instead of waiting for an explicit call.
	AutoConnect bool
}

// Normalize fills unset fields with defaults.
func (o *Options) Normalize() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
}

// ConnectionParams identifies one logical connection on a shared transport.
// Immutable after construction.
type ConnectionParams struct {
	// Origin restricts outbound delivery to peers matching it. Empty or
	// "*" means unrestricted. Enforcement is the transport's job.
	Origin string

	// Handle is an opaque namespace identifier. Inbound requests whose
	// messagingHandle differs are ignored, which lets multiple connectors
	// share one transport.
	Handle string
}
