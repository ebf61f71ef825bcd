// Package connector implements the connection state machine on top of
// the protocol exchange: handshake, retry policy, status notification,
// and teardown.
package connector
