package swm

import (
	"github.com/Tiro-health/smart-web-messaging/internal/config"
	"github.com/Tiro-health/smart-web-messaging/internal/connector"
	"github.com/Tiro-health/smart-web-messaging/internal/protocol"
)

// Reserved message types used by the protocol itself. Application-level
// message types are caller-defined and opaque to the core.
const (
	// MessageTypeHandshake is the connection establishment request. The
	// host side must answer it for Connect to succeed; any response
	// object is accepted.
	MessageTypeHandshake = protocol.MessageTypeHandshake

	// MessageTypeClose is the fire-and-forget teardown notice sent by
	// Close. No response is expected.
	MessageTypeClose = protocol.MessageTypeClose
)

// ConnectionParams identifies one logical connection on a shared
// transport.
type ConnectionParams = config.ConnectionParams

// Envelope is an inbound message with its transport-reported source.
type Envelope = config.Envelope

// Request is an outbound or inbound application request.
type Request = protocol.Request

// Response correlates back to a request.
type Response = protocol.Response

// Handler handles an unsolicited inbound request.
type Handler = protocol.Handler

// Status is the connection lifecycle state of a connector.
type Status = connector.Status

// Connection lifecycle states.
const (
	StatusDisconnected = connector.StatusDisconnected
	StatusConnecting   = connector.StatusConnecting
	StatusConnected    = connector.StatusConnected
	StatusError        = connector.StatusError
)

// StatusListener is invoked on every status transition.
type StatusListener = connector.StatusListener
