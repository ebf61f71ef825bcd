package connector

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/Tiro-health/smart-web-messaging/internal/config"
	"github.com/Tiro-health/smart-web-messaging/internal/errors"
	"github.com/Tiro-health/smart-web-messaging/internal/protocol"
)

// Connector owns the connection lifecycle for one logical messaging
// connection: the status.handshake exchange, the retry policy, status
// change notification, and teardown. Request correlation and handler
// dispatch are delegated to the protocol exchange.
type Connector struct {
	log      *slog.Logger
	opts     *config.Options
	exchange *protocol.Exchange

	// statusMu guards status; it is never held while listeners run.
	statusMu sync.RWMutex
	status   Status

	// mu guards the pending handshake and the closed flag.
	mu        sync.Mutex
	handshake *handshake
	closed    bool

	listenersMu    sync.Mutex
	listeners      []statusEntry
	nextListenerID int

	closeOnce sync.Once
}

// handshake is a joinable in-flight connection attempt. Concurrent
// Connect calls share one handshake instead of issuing duplicates.
type handshake struct {
	done chan struct{}
	err  error
}

type statusEntry struct {
	id int
	fn StatusListener
}

// New creates a connector over the given transport and starts its read
// loop. The connector owns no transport state; the caller remains
// responsible for closing the transport after Close().
//
// With AutoConnect set, a background ConnectWithRetry starts
// immediately and logs its eventual failure instead of surfacing it.
func New(transport config.Transport, params config.ConnectionParams, opts *config.Options) *Connector {
	if opts == nil {
		opts = &config.Options{}
	}

	opts.Normalize()

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Connector{
		log:      log.With("component", "connector", "handle", params.Handle),
		opts:     opts,
		exchange: protocol.NewExchange(log, transport, params),
		status:   StatusDisconnected,
	}

	// The read loop outlives any caller deadline and stops on Close().
	_ = c.exchange.Start(context.Background())

	if opts.AutoConnect {
		go func() {
			if err := c.ConnectWithRetry(context.Background()); err != nil {
				c.log.Warn("Auto-connect failed", "error", err)
			}
		}()
	}

	return c
}

// Connect performs a single handshake attempt.
//
// While a handshake is already in flight, Connect joins it and returns
// its outcome rather than issuing a duplicate. Otherwise it moves the
// status to connecting, sends a status.handshake request bounded by the
// configured timeout, and moves to connected on success.
//
// On failure the status becomes error unless a concurrent transition
// already moved it away from connecting.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.ErrConnectorClosed
	}

	// A non-nil handshake means an attempt is in flight; join it rather
	// than issuing a duplicate.
	if c.handshake != nil {
		h := c.handshake
		c.mu.Unlock()

		c.log.Debug("Joining in-flight handshake")

		select {
		case <-h.done:
			return h.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h := &handshake{done: make(chan struct{})}
	c.handshake = h
	c.mu.Unlock()

	c.setStatus(StatusConnecting)

	err := c.performHandshake(ctx)

	c.mu.Lock()

	if c.handshake == h {
		c.handshake = nil
	}

	c.mu.Unlock()

	if err == nil {
		c.setStatus(StatusConnected)
		c.log.Debug("Handshake succeeded")
	} else {
		// A concurrent reset may have moved the status already; only an
		// uninterrupted connecting state becomes error.
		if c.setStatusIf(StatusConnecting, StatusError) {
			c.log.Warn("Handshake failed", "error", err)
		}
	}

	h.err = err

	close(h.done)

	return err
}

// performHandshake sends one status.handshake request. Any response
// object counts as success.
func (c *Connector) performHandshake(ctx context.Context) error {
	hsCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	_, err := c.exchange.SendMessage(hsCtx, protocol.MessageTypeHandshake, map[string]any{})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("handshake: %w after %s", errors.ErrRequestTimeout, c.opts.Timeout)
		}

		return fmt.Errorf("handshake: %w", err)
	}

	return nil
}

// ConnectWithRetry calls Connect up to the configured MaxRetries times.
// Each failure is logged and swallowed until attempts are exhausted,
// then the call fails with a retries-exhausted error naming the
// configured count. Attempts run back to back unless a retry backoff
// is configured.
func (c *Connector) ConnectWithRetry(ctx context.Context) error {
	var b *backoff.Backoff
	if c.opts.RetryBackoffMin > 0 || c.opts.RetryBackoffMax > 0 {
		b = &backoff.Backoff{Min: c.opts.RetryBackoffMin, Max: c.opts.RetryBackoffMax}
	}

	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		c.log.Warn("Connection attempt failed",
			"attempt", attempt,
			"max_retries", c.opts.MaxRetries,
			"error", err,
		)

		if stderrors.Is(err, errors.ErrConnectorClosed) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if b != nil && attempt < c.opts.MaxRetries {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return &errors.RetriesExhaustedError{Attempts: c.opts.MaxRetries, Err: lastErr}
}

// EnsureConnection is a no-op when already connected; otherwise it runs
// ConnectWithRetry and fails with a connection error if the status ends
// up as error.
func (c *Connector) EnsureConnection(ctx context.Context) error {
	if c.Status() == StatusConnected {
		return nil
	}

	err := c.ConnectWithRetry(ctx)

	if status := c.Status(); status == StatusError {
		return &errors.ConnectionError{Status: status.String(), Err: err}
	}

	return err
}

// SendMessage sends a request and waits for the first matching response.
// The wait is bounded only by ctx; see protocol.Exchange.SendMessage.
func (c *Connector) SendMessage(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) (*protocol.Response, error) {
	return c.exchange.SendMessage(ctx, messageType, payload)
}

// SendStream sends a request and yields every response part until a
// terminal part arrives. See protocol.Exchange.SendStream.
func (c *Connector) SendStream(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) iter.Seq2[*protocol.Response, error] {
	return c.exchange.SendStream(ctx, messageType, payload)
}

// On registers a handler for inbound requests of the given type,
// overwriting any existing handler.
func (c *Connector) On(messageType string, handler protocol.Handler) {
	c.exchange.On(messageType, handler)
}

// RemoveHandler removes the handler for the given type and reports
// whether one was registered.
func (c *Connector) RemoveHandler(messageType string) bool {
	return c.exchange.RemoveHandler(messageType)
}

// HasHandler reports whether a handler is registered for the given type.
func (c *Connector) HasHandler(messageType string) bool {
	return c.exchange.HasHandler(messageType)
}

// RegisteredMessageTypes returns the message types with a registered handler.
func (c *Connector) RegisteredMessageTypes() []string {
	return c.exchange.RegisteredMessageTypes()
}

// HandlerCount returns the number of registered handlers.
func (c *Connector) HandlerCount() int {
	return c.exchange.HandlerCount()
}

// OnStatusChange registers a listener invoked synchronously on every
// status transition, in registration order. The returned function
// removes the listener.
func (c *Connector) OnStatusChange(fn StatusListener) func() {
	c.listenersMu.Lock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners = append(c.listeners, statusEntry{id: id, fn: fn})

	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()

		c.listeners = slices.DeleteFunc(c.listeners, func(en statusEntry) bool {
			return en.id == id
		})
	}
}

// Status returns the current connection status.
func (c *Connector) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()

	return c.status
}

// IsReady reports whether the connection is established.
func (c *Connector) IsReady() bool {
	return c.Status() == StatusConnected
}

// Close sends a fire-and-forget ui.close notice, stops the exchange,
// and clears all handlers and status listeners. The status is reset to
// disconnected and listeners observe that final transition before they
// are cleared. Safe to call multiple times.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
		defer cancel()

		if err := c.exchange.Notify(ctx, protocol.MessageTypeClose, map[string]any{}); err != nil {
			c.log.Debug("Close notice not delivered", "error", err)
		}

		c.exchange.Stop()
		c.exchange.ClearHandlers()

		c.setStatus(StatusDisconnected)

		c.listenersMu.Lock()
		c.listeners = nil
		c.listenersMu.Unlock()

		c.log.Debug("Connector closed")
	})

	return nil
}

// setStatus records a transition and notifies listeners, even when the
// status is unchanged.
func (c *Connector) setStatus(status Status) {
	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()

	c.notifyListeners(status)
}

// setStatusIf records a transition only when the current status matches
// from, and reports whether it did.
func (c *Connector) setStatusIf(from, to Status) bool {
	c.statusMu.Lock()

	if c.status != from {
		c.statusMu.Unlock()

		return false
	}

	c.status = to

	c.statusMu.Unlock()

	c.notifyListeners(to)

	return true
}

func (c *Connector) notifyListeners(status Status) {
	c.listenersMu.Lock()

	entries := make([]statusEntry, len(c.listeners))
	copy(entries, c.listeners)

	c.listenersMu.Unlock()

	for _, en := range entries {
		en.fn(status)
	}
}
