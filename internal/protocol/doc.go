// Package protocol implements request/response correlation over an
// unordered message transport.
//
// The Exchange assigns a unique id to every outgoing request, tracks
// in-flight requests, and matches inbound responses back to the waiting
// caller. Because matching is id-based, duplicate or out-of-order
// delivery by the transport cannot corrupt protocol state.
//
// The Exchange also dispatches unsolicited inbound requests to handlers
// registered per message type, synthesizing a response when a handler
// returns a payload.
//
// Example usage:
//
//	ex := protocol.NewExchange(log, transport, params)
//	ex.Start(ctx)
//
//	// Request/response with the caller's deadline
//	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
//	defer cancel()
//	resp, err := ex.SendMessage(ctx, "form.persist", payload)
package protocol
