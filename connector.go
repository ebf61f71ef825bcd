package swm

import (
	"context"
	"fmt"
	"iter"
)

// Connector is one endpoint of a logical messaging connection.
//
// A connector is bound to a transport and a connection handle at
// construction and is single-use: after Close(), create a new one
// with New().
//
// Example usage:
//
//	c := swm.New(transport, swm.ConnectionParams{Handle: "h1"})
//	defer c.Close()
//
//	if err := c.EnsureConnection(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := c.SendMessage(ctx, "form.persist", payload)
type Connector interface {
	// Connect performs a single handshake attempt. A Connect call made
	// while a handshake is already in flight joins it and returns its
	// outcome rather than starting a second one.
	Connect(ctx context.Context) error

	// ConnectWithRetry calls Connect up to the configured MaxRetries
	// times, then fails with a *RetriesExhaustedError.
	ConnectWithRetry(ctx context.Context) error

	// EnsureConnection is a no-op when connected; otherwise it runs
	// ConnectWithRetry and fails with a *ConnectionError if the status
	// ends up as error.
	EnsureConnection(ctx context.Context) error

	// SendMessage sends a request and waits for the first matching
	// response. The wait is bounded only by ctx: an unanswered request
	// blocks until ctx is done. For multi-part responses only the first
	// part is delivered; use SendStream for the full sequence.
	SendMessage(ctx context.Context, messageType string, payload map[string]any) (*Response, error)

	// SendStream sends a request and yields every response part until a
	// terminal part arrives, ctx is done, or the connector closes.
	SendStream(ctx context.Context, messageType string, payload map[string]any) iter.Seq2[*Response, error]

	// On registers a handler for inbound requests of the given type,
	// overwriting any existing handler for that type.
	On(messageType string, handler Handler)

	// RemoveHandler removes the handler for the given type and reports
	// whether one was registered.
	RemoveHandler(messageType string) bool

	// HasHandler reports whether a handler is registered for the given type.
	HasHandler(messageType string) bool

	// RegisteredMessageTypes returns the message types with a registered
	// handler, in no particular order.
	RegisteredMessageTypes() []string

	// HandlerCount returns the number of registered handlers.
	HandlerCount() int

	// OnStatusChange registers a listener invoked synchronously on every
	// status transition, in registration order. The returned function
	// removes the listener.
	OnStatusChange(fn StatusListener) (remove func())

	// Status returns the current connection status.
	Status() Status

	// IsReady reports whether the connection is established.
	IsReady() bool

	// Close sends a fire-and-forget teardown notice, stops message
	// processing, and clears all handlers and listeners. The status is
	// reset to disconnected. Safe to call multiple times.
	Close() error
}

// New creates a connector over the given transport.
//
// The connector starts disconnected; call Connect, ConnectWithRetry, or
// EnsureConnection to establish the connection, or pass WithAutoConnect
// to start connecting in the background immediately. The caller keeps
// ownership of the transport and closes it after the connector.
func New(transport Transport, params ConnectionParams, opts ...Option) Connector {
	return newConnectorImpl(transport, params, opts)
}

// Dial creates a connector and ensures the connection is established
// before returning. On failure the connector is closed.
func Dial(ctx context.Context, transport Transport, params ConnectionParams, opts ...Option) (Connector, error) {
	c := New(transport, params, opts...)

	if err := c.EnsureConnection(ctx); err != nil {
		_ = c.Close()

		return nil, fmt.Errorf("dial: %w", err)
	}

	return c, nil
}
