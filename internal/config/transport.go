package config

import "context"

// Envelope is an inbound message together with its transport-reported
// source endpoint.
type Envelope struct {
	// Data is the decoded message object.
	Data map[string]any

	// Source identifies the endpoint that sent the message. A connector
	// ignores envelopes whose Source equals its own transport's LocalID,
	// which keeps it from processing its own echoed messages.
	Source string
}

// Transport delivers opaque messages between two execution contexts.
// Implement this to bridge a connector over any message-passing primitive
// (an in-process pair, a websocket relay, a browser postMessage shim).
//
// No ordering or delivery guarantees are assumed: the transport may drop,
// duplicate, or reorder messages. The protocol layer tolerates all three
// through id-based correlation.
type Transport interface {
	// Send delivers a complete JSON message to the peer endpoint.
	// A non-empty targetOrigin other than "*" instructs the transport to
	// refuse delivery to peers not matching it.
	// Send must be safe for concurrent use.
	Send(ctx context.Context, data []byte, targetOrigin string) error

	// Receive returns channels yielding inbound envelopes and transport
	// errors. Both channels are closed when the transport shuts down.
	Receive(ctx context.Context) (<-chan Envelope, <-chan error)

	// LocalID identifies this endpoint. Messages sent through this
	// transport arrive at the peer with Source == LocalID.
	LocalID() string

	// Close terminates the transport and releases resources.
	// Safe to call multiple times.
	Close() error
}
