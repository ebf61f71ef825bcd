package swm

import (
	"context"
	"iter"

	"github.com/Tiro-health/smart-web-messaging/internal/connector"
)

// connectorWrapper adapts the internal connector to the public interface.
type connectorWrapper struct {
	impl *connector.Connector
}

// Compile-time check that *connectorWrapper implements the Connector interface.
var _ Connector = (*connectorWrapper)(nil)

// newConnectorImpl creates the internal connector implementation.
func newConnectorImpl(transport Transport, params ConnectionParams, opts []Option) Connector {
	return &connectorWrapper{impl: connector.New(transport, params, applyOptions(opts))}
}

// Connect performs a single handshake attempt.
func (c *connectorWrapper) Connect(ctx context.Context) error {
	return c.impl.Connect(ctx)
}

// ConnectWithRetry calls Connect up to the configured MaxRetries times.
func (c *connectorWrapper) ConnectWithRetry(ctx context.Context) error {
	return c.impl.ConnectWithRetry(ctx)
}

// EnsureConnection establishes the connection unless already connected.
func (c *connectorWrapper) EnsureConnection(ctx context.Context) error {
	return c.impl.EnsureConnection(ctx)
}

// SendMessage sends a request and waits for the first matching response.
func (c *connectorWrapper) SendMessage(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) (*Response, error) {
	return c.impl.SendMessage(ctx, messageType, payload)
}

// SendStream sends a request and yields every response part.
func (c *connectorWrapper) SendStream(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) iter.Seq2[*Response, error] {
	return c.impl.SendStream(ctx, messageType, payload)
}

// On registers a handler for inbound requests of the given type.
func (c *connectorWrapper) On(messageType string, handler Handler) {
	c.impl.On(messageType, handler)
}

// RemoveHandler removes the handler for the given type.
func (c *connectorWrapper) RemoveHandler(messageType string) bool {
	return c.impl.RemoveHandler(messageType)
}

// HasHandler reports whether a handler is registered for the given type.
func (c *connectorWrapper) HasHandler(messageType string) bool {
	return c.impl.HasHandler(messageType)
}

// RegisteredMessageTypes returns the message types with a registered handler.
func (c *connectorWrapper) RegisteredMessageTypes() []string {
	return c.impl.RegisteredMessageTypes()
}

// HandlerCount returns the number of registered handlers.
func (c *connectorWrapper) HandlerCount() int {
	return c.impl.HandlerCount()
}

// OnStatusChange registers a status listener.
func (c *connectorWrapper) OnStatusChange(fn StatusListener) (remove func()) {
	return c.impl.OnStatusChange(fn)
}

// Status returns the current connection status.
func (c *connectorWrapper) Status() Status {
	return c.impl.Status()
}

// IsReady reports whether the connection is established.
func (c *connectorWrapper) IsReady() bool {
	return c.impl.IsReady()
}

// Close tears the connector down.
func (c *connectorWrapper) Close() error {
	return c.impl.Close()
}
