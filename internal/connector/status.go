package connector

// Status is the connection lifecycle state of a connector.
//
// A connector starts disconnected, moves to connecting when a handshake
// begins, then to connected on success or error on failure. A fresh
// Connect call re-enters connecting from any non-connecting state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// StatusListener is invoked on every status transition, including
// transitions that leave the status unchanged.
type StatusListener func(Status)
