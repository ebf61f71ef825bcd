// Package memory provides an in-process transport pair for connecting
// two connectors without any external machinery. It is the default
// choice for tests and for embedding both sides of a connection in one
// process.
//
// The pair mimics the guarantees of a browser postMessage channel:
// asynchronous delivery, no ordering promise to the protocol layer, and
// origin-restricted sends. Drop and duplicate knobs let tests exercise
// the protocol's tolerance for an unreliable transport.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Tiro-health/smart-web-messaging/internal/config"
	"github.com/Tiro-health/smart-web-messaging/internal/errors"
)

// inboxBuffer is the per-subscription delivery buffer. Messages beyond
// it are dropped, which the protocol layer already tolerates.
const inboxBuffer = 64

// Endpoint is one side of an in-process transport pair.
//
// Every Receive call creates an independent subscription that observes
// every envelope, so multiple connectors can share one endpoint the way
// multiple listeners share a browser window.
type Endpoint struct {
	id     string
	origin string
	peer   *Endpoint

	mu        sync.Mutex
	closed    bool
	subs      []*subscription
	dropNext  int
	duplicate int
}

type subscription struct {
	envelopes chan config.Envelope
	errs      chan error
}

// Compile-time check that *Endpoint implements the transport contract.
var _ config.Transport = (*Endpoint)(nil)

// Pair creates two linked endpoints with no origin identity. Messages
// sent on one arrive on the other.
func Pair() (*Endpoint, *Endpoint) {
	return PairWithOrigins("", "")
}

// PairWithOrigins creates two linked endpoints carrying origin
// identities. A send with a target origin restriction is refused when
// the peer's origin does not match.
func PairWithOrigins(originA, originB string) (*Endpoint, *Endpoint) {
	a := &Endpoint{id: uuid.NewString(), origin: originA}
	b := &Endpoint{id: uuid.NewString(), origin: originB}
	a.peer = b
	b.peer = a

	return a, b
}

// LocalID identifies this endpoint. Envelopes delivered to the peer
// report it as their source.
func (e *Endpoint) LocalID() string {
	return e.id
}

// Origin returns the origin identity this endpoint was created with.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Send decodes data and delivers it to the peer endpoint. A non-empty
// targetOrigin other than "*" makes delivery conditional on the peer's
// origin matching it.
func (e *Endpoint) Send(_ context.Context, data []byte, targetOrigin string) error {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	if targetOrigin != "" && targetOrigin != "*" && e.peer.origin != targetOrigin {
		return fmt.Errorf("origin %q does not match peer origin %q", targetOrigin, e.peer.origin)
	}

	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()

		return errors.ErrTransportClosed
	}

	copies := 1
	if e.dropNext > 0 {
		e.dropNext--
		copies = 0
	} else if e.duplicate > 0 {
		e.duplicate--
		copies = 2
	}

	e.mu.Unlock()

	for range copies {
		e.peer.deliver(config.Envelope{Data: msg, Source: e.id})
	}

	return nil
}

// deliver fans an envelope out to all subscriptions, dropping it for
// subscribers whose buffer is full.
func (e *Endpoint) deliver(env config.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	for _, sub := range e.subs {
		select {
		case sub.envelopes <- env:
		default:
		}
	}
}

// Receive creates a new subscription observing every inbound envelope.
// Its channels close when the endpoint closes.
func (e *Endpoint) Receive(_ context.Context) (<-chan config.Envelope, <-chan error) {
	sub := &subscription{
		envelopes: make(chan config.Envelope, inboxBuffer),
		errs:      make(chan error, 1),
	}

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()

	return sub.envelopes, sub.errs
}

// Close shuts the endpoint down. Subsequent sends from the peer are
// dropped and all subscription channels close. Safe to call multiple
// times.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true

	for _, sub := range e.subs {
		close(sub.envelopes)
		close(sub.errs)
	}

	e.subs = nil

	return nil
}

// DropNext makes the endpoint silently discard its next n sends,
// simulating transport loss.
func (e *Endpoint) DropNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dropNext = n
}

// DuplicateNext makes the endpoint deliver its next n sends twice,
// simulating transport duplication.
func (e *Endpoint) DuplicateNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.duplicate = n
}
