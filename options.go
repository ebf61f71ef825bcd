package swm

import (
	"log/slog"
	"time"

	"github.com/Tiro-health/smart-web-messaging/internal/config"
)

// Option configures a connector using the functional options pattern.
type Option func(*config.Options)

// applyOptions applies functional options onto a fresh Options struct.
// Defaults for unset fields are filled by the connector.
func applyOptions(opts []Option) *config.Options {
	options := &config.Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *config.Options) {
		o.Logger = logger
	}
}

// WithTimeout bounds each request/response exchange, including the
// handshake performed by Connect. Defaults to 500ms.
func WithTimeout(timeout time.Duration) Option {
	return func(o *config.Options) {
		o.Timeout = timeout
	}
}

// WithMaxRetries sets how many handshake attempts ConnectWithRetry
// performs before failing. Defaults to 3.
func WithMaxRetries(maxRetries int) Option {
	return func(o *config.Options) {
		o.MaxRetries = maxRetries
	}
}

// WithRetryBackoff adds an exponential delay between handshake
// attempts, growing from min towards max. Without this option attempts
// run back to back.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(o *config.Options) {
		o.RetryBackoffMin = minDelay
		o.RetryBackoffMax = maxDelay
	}
}

// WithAutoConnect makes the constructor start a background
// ConnectWithRetry instead of waiting for an explicit call. Failures
// are logged, not surfaced; use Dial when the outcome matters.
func WithAutoConnect() Option {
	return func(o *config.Options) {
		o.AutoConnect = true
	}
}
