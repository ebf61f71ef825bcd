package protocol

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Reserved message types used by the connection state machine.
const (
	// MessageTypeHandshake is the connection establishment request. Any
	// response object is accepted as success.
	MessageTypeHandshake = "status.handshake"

	// MessageTypeClose is the fire-and-forget teardown notice. No
	// response is expected or awaited.
	MessageTypeClose = "ui.close"
)

// Request is an outbound or inbound application request.
//
// Wire format:
//
//	{
//	  "messagingHandle": "h1",
//	  "messageId": "01J3...",
//	  "messageType": "form.persist",
//	  "payload": {...}
//	}
type Request struct {
	// MessagingHandle scopes the request to one logical connection when
	// multiple connectors share a transport.
	MessagingHandle string `json:"messagingHandle"`

	// MessageID uniquely identifies this request for response correlation.
	MessageID string `json:"messageId"`

	// MessageType selects the handler on the receiving side.
	MessageType string `json:"messageType"`

	// Payload carries the application data.
	Payload map[string]any `json:"payload"`
}

// Response correlates back to a request via ResponseToMessageID.
//
// Wire format:
//
//	{
//	  "messageId": "01J4...",
//	  "responseToMessageId": "01J3...",
//	  "additionalResponseExpected": false,
//	  "payload": {...}
//	}
type Response struct {
	// MessageID uniquely identifies this response message.
	MessageID string `json:"messageId"`

	// ResponseToMessageID is the MessageID of the originating request.
	ResponseToMessageID string `json:"responseToMessageId"`

	// AdditionalResponseExpected signals that more parts follow for the
	// same request. A false value is terminal.
	AdditionalResponseExpected bool `json:"additionalResponseExpected"`

	// Payload carries the application data.
	Payload map[string]any `json:"payload"`
}

// Handler handles an unsolicited inbound request.
//
// A non-nil payload map is sent back to the peer as a terminal response.
// Returning (nil, nil) suppresses the response. A returned error is
// logged and contained; it never reaches the peer or other handlers.
type Handler func(ctx context.Context, req *Request) (map[string]any, error)

// newMessageID creates a fresh random message id. ULIDs carry 80 bits of
// entropy, enough to make collisions negligible under any request volume.
func newMessageID() string {
	return ulid.Make().String()
}

// responseFromData interprets a decoded message as a Response. A message
// is a response candidate only if it carries a responseToMessageId.
func responseFromData(data map[string]any) (*Response, bool) {
	inReplyTo, ok := data["responseToMessageId"].(string)
	if !ok || inReplyTo == "" {
		return nil, false
	}

	resp := &Response{ResponseToMessageID: inReplyTo}

	if id, ok := data["messageId"].(string); ok {
		resp.MessageID = id
	}

	if more, ok := data["additionalResponseExpected"].(bool); ok {
		resp.AdditionalResponseExpected = more
	}

	if payload, ok := data["payload"].(map[string]any); ok {
		resp.Payload = payload
	}

	return resp, true
}

// requestFromData interprets a decoded message as a Request. The caller
// has already verified messagingHandle and messageType.
func requestFromData(data map[string]any) *Request {
	req := &Request{}

	if handle, ok := data["messagingHandle"].(string); ok {
		req.MessagingHandle = handle
	}

	if id, ok := data["messageId"].(string); ok {
		req.MessageID = id
	}

	if msgType, ok := data["messageType"].(string); ok {
		req.MessageType = msgType
	}

	if payload, ok := data["payload"].(map[string]any); ok {
		req.Payload = payload
	}

	return req
}
