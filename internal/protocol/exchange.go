package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/Tiro-health/smart-web-messaging/internal/config"
	"github.com/Tiro-health/smart-web-messaging/internal/errors"
)

// partsBuffer is the per-request buffer for multi-part responses. Parts
// arriving while the buffer is full are dropped, matching the lossy
// transport the protocol already tolerates.
const partsBuffer = 16

// Exchange correlates outbound requests with inbound responses and
// dispatches unsolicited inbound requests to registered handlers.
//
// The Exchange handles:
//   - Stamping outgoing requests with the connection handle and a unique id
//   - Routing inbound responses to the waiting caller
//   - Multi-part response delivery via SendStream
//   - Handler registration for inbound requests from the peer
//
// The Exchange must be started with Start() before use and manages its
// own goroutine for reading and routing messages.
type Exchange struct {
	log       *slog.Logger
	transport config.Transport
	handle    string
	origin    string

	// Waiter registry, one entry per in-flight outgoing request.
	// Entries are evicted on every exit path of the waiting caller, so
	// an unanswered request never leaks a registration.
	pendingMu sync.Mutex
	pending   map[string]*pendingCall

	// Handler registry for inbound requests, one handler per type.
	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// pendingCall tracks an outgoing request awaiting one or more responses.
type pendingCall struct {
	messageType string
	parts       chan *Response
}

// NewExchange creates a new message exchange bound to one connection
// handle. The transport must be ready before calling Start().
func NewExchange(log *slog.Logger, transport config.Transport, params config.ConnectionParams) *Exchange {
	return &Exchange{
		log:       log.With("component", "exchange"),
		transport: transport,
		handle:    params.Handle,
		origin:    params.Origin,
		pending:   make(map[string]*pendingCall, 10),
		handlers:  make(map[string]Handler, 10),
		done:      make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (e *Exchange) closeDone() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// setFatalError stores a fatal error and broadcasts to all waiters by
// closing done.
func (e *Exchange) setFatalError(err error) {
	e.errMu.Lock()

	if e.fatalErr == nil {
		e.fatalErr = err
	}

	e.errMu.Unlock()

	e.closeDone()
}

// FatalError returns the fatal transport error if one occurred.
func (e *Exchange) FatalError() error {
	e.errMu.RLock()
	defer e.errMu.RUnlock()

	return e.fatalErr
}

// Done returns a channel that is closed when the exchange stops.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Start begins reading envelopes from the transport and routing them.
//
// This method spawns a goroutine that routes responses to waiting
// callers and dispatches requests to handlers. The goroutine stops when
// the context is cancelled or the transport closes.
func (e *Exchange) Start(ctx context.Context) error {
	e.log.Debug("Starting message exchange")

	ctx, e.cancel = context.WithCancel(ctx)

	envelopes, errs := e.transport.Receive(ctx)

	e.wg.Add(1)

	go e.readLoop(ctx, envelopes, errs)

	return nil
}

// Stop shuts down the exchange. Outstanding SendMessage and SendStream
// calls fail with ErrExchangeStopped, and running handlers see their
// context cancelled. Safe to call multiple times.
func (e *Exchange) Stop() {
	e.closeDone()

	if e.cancel != nil {
		e.cancel()
	}

	e.wg.Wait()
	e.log.Debug("Message exchange stopped")
}

// SendMessage sends a request and blocks until the first matching
// response arrives, the context is done, or the exchange stops.
//
// SendMessage applies no timeout of its own; bound the wait through ctx.
// It delivers only the first part of a multi-part response and then
// deregisters the waiter - callers expecting a response sequence must
// use SendStream instead.
func (e *Exchange) SendMessage(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) (*Response, error) {
	messageID, call, err := e.sendRequest(ctx, messageType, payload)
	if err != nil {
		return nil, err
	}

	defer e.evict(messageID)

	select {
	case resp := <-call.parts:
		e.log.Debug("Received response", "message_id", messageID, "message_type", messageType)

		return resp, nil

	case <-e.done:
		if err := e.FatalError(); err != nil {
			e.log.Warn("Transport error during request", "message_id", messageID, "error", err)

			return nil, fmt.Errorf("transport error: %w", err)
		}

		return nil, errors.ErrExchangeStopped

	case <-ctx.Done():
		e.log.Debug("Request abandoned", "message_id", messageID, "cause", ctx.Err())

		return nil, ctx.Err()
	}
}

// SendStream sends a request and yields every matching response part
// until a terminal part arrives (additionalResponseExpected false), the
// context is done, or the exchange stops.
//
// The returned sequence is single-use. The waiter is deregistered when
// iteration ends for any reason, including an early break.
func (e *Exchange) SendStream(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		messageID, call, err := e.sendRequest(ctx, messageType, payload)
		if err != nil {
			yield(nil, err)

			return
		}

		defer e.evict(messageID)

		for {
			select {
			case resp := <-call.parts:
				if !yield(resp, nil) {
					return
				}

				if !resp.AdditionalResponseExpected {
					return
				}

			case <-e.done:
				if err := e.FatalError(); err != nil {
					yield(nil, fmt.Errorf("transport error: %w", err))

					return
				}

				yield(nil, errors.ErrExchangeStopped)

				return

			case <-ctx.Done():
				yield(nil, ctx.Err())

				return
			}
		}
	}
}

// Notify sends a request without registering a waiter. Used for
// fire-and-forget notices such as ui.close.
func (e *Exchange) Notify(ctx context.Context, messageType string, payload map[string]any) error {
	req := &Request{
		MessagingHandle: e.handle,
		MessageID:       newMessageID(),
		MessageType:     messageType,
		Payload:         payload,
	}

	return e.send(ctx, req)
}

// sendRequest registers a waiter, then builds and sends the request.
// The waiter is registered before sending so a response racing the send
// cannot slip past correlation.
func (e *Exchange) sendRequest(
	ctx context.Context,
	messageType string,
	payload map[string]any,
) (string, *pendingCall, error) {
	messageID := newMessageID()

	call := &pendingCall{
		messageType: messageType,
		parts:       make(chan *Response, partsBuffer),
	}

	e.pendingMu.Lock()
	e.pending[messageID] = call
	e.pendingMu.Unlock()

	req := &Request{
		MessagingHandle: e.handle,
		MessageID:       messageID,
		MessageType:     messageType,
		Payload:         payload,
	}

	e.log.Debug("Sending request", "message_id", messageID, "message_type", messageType)

	if err := e.send(ctx, req); err != nil {
		e.evict(messageID)

		return "", nil, err
	}

	return messageID, call, nil
}

// send marshals a message and hands it to the transport with the
// connection's origin restriction.
func (e *Exchange) send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		e.log.Error("Failed to marshal message", "error", err)

		return fmt.Errorf("marshal message: %w", err)
	}

	if err := e.transport.Send(ctx, data, e.origin); err != nil {
		e.log.Error("Failed to send message", "error", err)

		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// evict removes a waiter from the registry.
func (e *Exchange) evict(messageID string) {
	e.pendingMu.Lock()
	delete(e.pending, messageID)
	e.pendingMu.Unlock()
}

// On registers a handler for inbound requests of the given type.
//
// Only one handler can be registered per message type. Registering a
// handler for the same type twice overwrites the previous handler.
func (e *Exchange) On(messageType string, handler Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()

	e.log.Debug("Registering handler", "message_type", messageType)
	e.handlers[messageType] = handler
}

// RemoveHandler removes the handler for the given type and reports
// whether one was registered.
func (e *Exchange) RemoveHandler(messageType string) bool {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()

	_, exists := e.handlers[messageType]
	delete(e.handlers, messageType)

	return exists
}

// HasHandler reports whether a handler is registered for the given type.
func (e *Exchange) HasHandler(messageType string) bool {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()

	_, exists := e.handlers[messageType]

	return exists
}

// RegisteredMessageTypes returns the message types with a registered
// handler, in no particular order.
func (e *Exchange) RegisteredMessageTypes() []string {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()

	types := make([]string, 0, len(e.handlers))
	for messageType := range e.handlers {
		types = append(types, messageType)
	}

	return types
}

// HandlerCount returns the number of registered handlers.
func (e *Exchange) HandlerCount() int {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()

	return len(e.handlers)
}

// ClearHandlers removes all registered handlers.
func (e *Exchange) ClearHandlers() {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()

	clear(e.handlers)
}

// readLoop reads envelopes from the transport and routes them.
func (e *Exchange) readLoop(
	ctx context.Context,
	envelopes <-chan config.Envelope,
	errs <-chan error,
) {
	defer e.wg.Done()
	defer e.log.Debug("Exchange read loop stopped")

	for {
		select {
		case env, ok := <-envelopes:
			if !ok {
				e.setFatalError(errors.ErrTransportClosed)

				return
			}

			e.handleEnvelope(ctx, env)

		case err, ok := <-errs:
			if !ok {
				return
			}

			if err != nil {
				e.log.Debug("Transport error in exchange", "error", err)
				e.setFatalError(err)

				return
			}

		case <-e.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleEnvelope routes one inbound envelope.
func (e *Exchange) handleEnvelope(ctx context.Context, env config.Envelope) {
	// A message reported as coming from this endpoint is our own echo.
	if env.Source == e.transport.LocalID() {
		e.log.Debug("Ignoring self-sourced message", "source", env.Source)

		return
	}

	if env.Data == nil {
		return
	}

	if resp, ok := responseFromData(env.Data); ok {
		e.handleResponse(resp)

		return
	}

	e.dispatchRequest(ctx, env.Data)
}

// handleResponse routes a response to the waiting caller. The waiter
// stays registered while more parts are expected; a terminal part claims
// and removes it.
func (e *Exchange) handleResponse(resp *Response) {
	e.pendingMu.Lock()

	call, exists := e.pending[resp.ResponseToMessageID]
	if exists && !resp.AdditionalResponseExpected {
		delete(e.pending, resp.ResponseToMessageID)
	}

	e.pendingMu.Unlock()

	if !exists {
		// Either a late response to an already abandoned request or a
		// response meant for another connector on this transport.
		e.log.Debug("Dropping unmatched response", "response_to", resp.ResponseToMessageID)

		return
	}

	select {
	case call.parts <- resp:
	default:
		e.log.Warn("Response buffer full, dropping part",
			"response_to", resp.ResponseToMessageID,
			"message_type", call.messageType,
		)
	}
}

// dispatchRequest invokes the registered handler for an unsolicited
// inbound request, applying the namespace filter first.
func (e *Exchange) dispatchRequest(ctx context.Context, data map[string]any) {
	// Namespace filter: requests for other connectors sharing this
	// transport are dropped silently.
	handle, _ := data["messagingHandle"].(string)
	if handle != e.handle {
		return
	}

	messageType, _ := data["messageType"].(string)
	if messageType == "" {
		return
	}

	req := requestFromData(data)

	e.handlersMu.RLock()
	handler, exists := e.handlers[messageType]
	e.handlersMu.RUnlock()

	if !exists {
		e.log.Warn("No handler registered for message type", "message_type", messageType)

		return
	}

	e.log.Debug("Dispatching request", "message_id", req.MessageID, "message_type", messageType)

	// Run the handler on its own goroutine so a slow handler cannot
	// stall correlation of concurrent responses.
	e.wg.Go(func() {
		e.runHandler(ctx, handler, req)
	})
}

// runHandler invokes one handler and sends back a terminal response when
// it returns a payload. Handler failures are contained here: they are
// logged and never crash the read loop or reach the peer.
func (e *Exchange) runHandler(ctx context.Context, handler Handler, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Handler panicked",
				"message_type", req.MessageType,
				"message_id", req.MessageID,
				"panic", r,
			)
		}
	}()

	payload, err := handler(ctx, req)
	if err != nil {
		e.log.Warn("Handler returned error",
			"message_type", req.MessageType,
			"message_id", req.MessageID,
			"error", err,
		)

		return
	}

	if payload == nil {
		return
	}

	resp := &Response{
		MessageID:                  newMessageID(),
		ResponseToMessageID:        req.MessageID,
		AdditionalResponseExpected: false,
		Payload:                    payload,
	}

	if err := e.send(ctx, resp); err != nil {
		if ctx.Err() != nil {
			e.log.Debug("Could not send handler response during shutdown", "error", err)

			return
		}

		e.log.Error("Failed to send handler response", "message_id", req.MessageID, "error", err)
	}
}
