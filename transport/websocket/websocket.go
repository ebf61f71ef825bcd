// Package websocket bridges a connector over a websocket connection,
// for the case where the two execution contexts live in different
// processes and meet through a relay.
//
// Frames are JSON envelopes carrying the sender's endpoint id, an
// optional target origin restriction, and the opaque protocol message.
// The relay forwards frames verbatim; origin filtering happens on the
// receiving transport.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tiro-health/smart-web-messaging/internal/config"
	"github.com/Tiro-health/smart-web-messaging/internal/errors"
)

const (
	// handshakeTimeout bounds the websocket opening handshake.
	handshakeTimeout = 45 * time.Second

	// pingInterval is how often the keepalive ping runs.
	pingInterval = 30 * time.Second

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// envelopeBuffer is the inbound delivery buffer.
	envelopeBuffer = 64
)

// frame is the on-wire envelope relayed between contexts.
type frame struct {
	Source       string          `json:"source"`
	TargetOrigin string          `json:"targetOrigin,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// Transport carries protocol messages over one websocket connection.
type Transport struct {
	log    *slog.Logger
	conn   *websocket.Conn
	id     string
	origin string

	// writeMu serializes data frame writes; gorilla allows only one
	// concurrent writer.
	writeMu sync.Mutex

	// subMu guards the subscription list. Every Receive call creates an
	// independent subscription observing every inbound envelope.
	subMu sync.Mutex
	subs  []*subscription

	eg        *errgroup.Group
	closeOnce sync.Once
	done      chan struct{}
}

type subscription struct {
	envelopes chan config.Envelope
	errs      chan error
}

// Compile-time check that *Transport implements the transport contract.
var _ config.Transport = (*Transport)(nil)

// Dial connects to a relay and returns a transport speaking for the
// given origin. An empty origin receives only unrestricted frames.
func Dial(ctx context.Context, log *slog.Logger, rawURL, origin string) (*Transport, error) {
	d := websocket.Dialer{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := d.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	return New(log, conn, origin), nil
}

// New wraps an established websocket connection, e.g. one accepted
// server-side through an Upgrader, and starts its read and keepalive
// pumps.
func New(log *slog.Logger, conn *websocket.Conn, origin string) *Transport {
	t := &Transport{
		log:    log.With("component", "ws-transport"),
		conn:   conn,
		id:     uuid.NewString(),
		origin: origin,
		eg:     &errgroup.Group{},
		done:   make(chan struct{}),
	}

	t.eg.Go(t.readPump)
	t.eg.Go(t.pingLoop)

	return t
}

// LocalID identifies this endpoint on the relay.
func (t *Transport) LocalID() string {
	return t.id
}

// Send writes one protocol message as a frame. A non-empty targetOrigin
// other than "*" is carried on the frame and filtered by the receiving
// transport.
func (t *Transport) Send(_ context.Context, data []byte, targetOrigin string) error {
	select {
	case <-t.done:
		return errors.ErrTransportClosed
	default:
	}

	f := frame{
		Source:       t.id,
		TargetOrigin: targetOrigin,
		Data:         json.RawMessage(data),
	}

	b, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Receive creates a new subscription observing every inbound envelope.
// Its channels close when the connection ends.
func (t *Transport) Receive(_ context.Context) (<-chan config.Envelope, <-chan error) {
	sub := &subscription{
		envelopes: make(chan config.Envelope, envelopeBuffer),
		errs:      make(chan error, 1),
	}

	t.subMu.Lock()
	t.subs = append(t.subs, sub)
	t.subMu.Unlock()

	return sub.envelopes, sub.errs
}

// broadcast fans an envelope out to all subscriptions, dropping it for
// subscribers whose buffer is full.
func (t *Transport) broadcast(env config.Envelope) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for _, sub := range t.subs {
		select {
		case sub.envelopes <- env:
		default:
		}
	}
}

// closeSubscriptions closes all subscription channels exactly once, via
// readPump shutdown.
func (t *Transport) closeSubscriptions(readErr error) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for _, sub := range t.subs {
		if readErr != nil {
			select {
			case sub.errs <- readErr:
			default:
			}
		}

		close(sub.envelopes)
		close(sub.errs)
	}

	t.subs = nil
}

// readPump reads frames until the connection fails or Close is called.
func (t *Transport) readPump() error {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				// Expected during shutdown.
				t.closeSubscriptions(nil)
			default:
				t.log.Debug("Websocket read failed", "error", err)
				t.closeSubscriptions(err)
			}

			return nil
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.log.Warn("Dropping malformed frame", "error", err)

			continue
		}

		if f.TargetOrigin != "" && f.TargetOrigin != "*" && f.TargetOrigin != t.origin {
			t.log.Debug("Dropping frame for other origin", "target_origin", f.TargetOrigin)

			continue
		}

		var msg map[string]any
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			t.log.Warn("Dropping frame with malformed data", "error", err)

			continue
		}

		t.broadcast(config.Envelope{Data: msg, Source: f.Source})
	}
}

// pingLoop keeps the connection alive while idle.
func (t *Transport) pingLoop() error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.log.Debug("Keepalive ping failed", "error", err)

				return nil
			}

		case <-t.done:
			return nil
		}
	}
}

// Close sends a close frame, tears the connection down, and waits for
// the pumps to stop. Safe to call multiple times.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

		if err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			t.log.Debug("Close frame not sent", "error", err)
		}

		if err := t.conn.Close(); err != nil {
			t.log.Debug("Websocket close failed", "error", err)
		}

		_ = t.eg.Wait()
	})

	return nil
}
