// Package swm implements a bidirectional request/response protocol for
// SMART Web Messaging style communication between two execution
// contexts, such as an embedded web form and its host shell.
//
// The protocol runs over any asynchronous, unordered, at-most-once
// message transport. Requests carry unique ids; responses correlate
// back to them, so duplicate or out-of-order delivery cannot corrupt
// state. Reliability is best-effort only, provided by the timeout and
// retry layer on top.
//
// # Basic Usage
//
// Connect two sides over an in-process transport pair:
//
//	host, embed := memory.Pair()
//
//	filler := swm.New(embed, swm.ConnectionParams{Handle: "h1"},
//	    swm.WithTimeout(500*time.Millisecond),
//	    swm.WithMaxRetries(3),
//	)
//	defer filler.Close()
//
//	if err := filler.EnsureConnection(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := filler.SendMessage(ctx, "form.persist", map[string]any{
//	    "data": form,
//	})
//
// # Handling Requests
//
// Unsolicited inbound requests dispatch to handlers registered per
// message type; a returned payload is sent back as the response:
//
//	filler.On("form.checkValidity", func(ctx context.Context, req *swm.Request) (map[string]any, error) {
//	    return map[string]any{"valid": true}, nil
//	})
//
// The host side answers the connection handshake the same way, with a
// handler for swm.MessageTypeHandshake.
//
// # Multi-part Responses
//
// When the peer answers one request with a sequence of parts
// (additionalResponseExpected set on all but the last), consume them
// with SendStream:
//
//	for part, err := range filler.SendStream(ctx, "form.search", query) {
//	    if err != nil {
//	        break
//	    }
//	    // process part...
//	}
//
// SendMessage delivers only the first part of such a sequence.
//
// # Logging
//
// For detailed operation tracking, inject a logger:
//
//	filler := swm.New(embed, params, swm.WithLogger(slog.Default()))
package swm
