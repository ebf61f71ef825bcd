package swm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiro-health/smart-web-messaging/transport/memory"
)

// startHost creates a connector on the given endpoint that accepts
// handshakes for the handle, standing in for the hosting side of the
// connection.
func startHost(t *testing.T, end *memory.Endpoint, handle string) Connector {
	t.Helper()

	host := New(end, ConnectionParams{Handle: handle})
	t.Cleanup(func() { _ = host.Close() })

	host.On(MessageTypeHandshake, func(_ context.Context, _ *Request) (map[string]any, error) {
		return map[string]any{}, nil
	})

	return host
}

func TestEndToEnd_ConnectAndExchange(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	host := startHost(t, hostEnd, "h1")
	host.On("scratchpad.create", func(_ context.Context, req *Request) (map[string]any, error) {
		return map[string]any{
			"status":   "200 OK",
			"location": "Basic/123",
			"echo":     req.Payload["resourceType"],
		}, nil
	})

	app := New(appEnd, ConnectionParams{Handle: "h1"}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.EnsureConnection(context.Background()))
	require.True(t, app.IsReady())

	resp, err := app.SendMessage(context.Background(), "scratchpad.create",
		map[string]any{"resourceType": "Basic"})
	require.NoError(t, err)
	require.Equal(t, "200 OK", resp.Payload["status"])
	require.Equal(t, "Basic/123", resp.Payload["location"])
	require.Equal(t, "Basic", resp.Payload["echo"])
	require.False(t, resp.AdditionalResponseExpected)
}

func TestEndToEnd_BidirectionalRequests(t *testing.T) {
	// Both sides can originate requests on the same connection.
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	host := startHost(t, hostEnd, "h1")

	app := New(appEnd, ConnectionParams{Handle: "h1"}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app.Close() })

	app.On("ui.launchActivity", func(_ context.Context, req *Request) (map[string]any, error) {
		return map[string]any{"activity": req.Payload["activityType"], "accepted": true}, nil
	})

	require.NoError(t, app.EnsureConnection(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := host.SendMessage(ctx, "ui.launchActivity",
		map[string]any{"activityType": "order-sign"})
	require.NoError(t, err)
	require.Equal(t, "order-sign", resp.Payload["activity"])
	require.Equal(t, true, resp.Payload["accepted"])
}

func TestMultipleConnectorsShareTransport(t *testing.T) {
	// Two logical connections with distinct handles over one transport
	// pair. Each connector sees only its own traffic.
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	host1 := startHost(t, hostEnd, "handle-one")
	host1.On("whoami", func(_ context.Context, _ *Request) (map[string]any, error) {
		return map[string]any{"host": "one"}, nil
	})

	host2 := startHost(t, hostEnd, "handle-two")
	host2.On("whoami", func(_ context.Context, _ *Request) (map[string]any, error) {
		return map[string]any{"host": "two"}, nil
	})

	app1 := New(appEnd, ConnectionParams{Handle: "handle-one"}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app1.Close() })

	app2 := New(appEnd, ConnectionParams{Handle: "handle-two"}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app2.Close() })

	require.NoError(t, app1.EnsureConnection(context.Background()))
	require.NoError(t, app2.EnsureConnection(context.Background()))

	resp1, err := app1.SendMessage(context.Background(), "whoami", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "one", resp1.Payload["host"])

	resp2, err := app2.SendMessage(context.Background(), "whoami", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "two", resp2.Payload["host"])
}

func TestDial(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	startHost(t, hostEnd, "h1")

	c, err := Dial(context.Background(), appEnd, ConnectionParams{Handle: "h1"},
		WithTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.True(t, c.IsReady())
}

func TestDial_NoResponder(t *testing.T) {
	// Nobody answers handshakes: Dial must exhaust its attempts, take at
	// least retries times the timeout, and leave a closed connector.
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	start := time.Now()

	_, err := Dial(context.Background(), appEnd, ConnectionParams{Handle: "h1"},
		WithTimeout(50*time.Millisecond),
		WithMaxRetries(2),
	)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestConnectionSurvivesLossyTransport(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	startHost(t, hostEnd, "h1")

	// The first handshake is lost in transit; the retry gets through.
	appEnd.DropNext(1)

	app := New(appEnd, ConnectionParams{Handle: "h1"},
		WithTimeout(100*time.Millisecond),
		WithMaxRetries(3),
	)
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.ConnectWithRetry(context.Background()))
	require.True(t, app.IsReady())
}

func TestAutoConnect(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	startHost(t, hostEnd, "h1")

	app := New(appEnd, ConnectionParams{Handle: "h1"},
		WithTimeout(time.Second),
		WithAutoConnect(),
	)
	t.Cleanup(func() { _ = app.Close() })

	require.Eventually(t, func() bool {
		return app.Status() == StatusConnected
	}, 2*time.Second, time.Millisecond)
}

func TestSendStream_MultiPartResponse(t *testing.T) {
	// The responding side here is a raw endpoint speaking the wire
	// format directly, so it can emit a response sequence.
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	envelopes, _ := hostEnd.Receive(context.Background())

	sendRaw := func(msg map[string]any) {
		data, err := json.Marshal(msg)
		assert.NoError(t, err)
		assert.NoError(t, hostEnd.Send(context.Background(), data, ""))
	}

	go func() {
		for env := range envelopes {
			id, _ := env.Data["messageId"].(string)

			switch env.Data["messageType"] {
			case MessageTypeHandshake:
				sendRaw(map[string]any{
					"messageId":                  "hs-resp",
					"responseToMessageId":        id,
					"additionalResponseExpected": false,
					"payload":                    map[string]any{},
				})

			case "form.search":
				for i, more := range []bool{true, true, false} {
					sendRaw(map[string]any{
						"messageId":                  newRawID(id, i),
						"responseToMessageId":        id,
						"additionalResponseExpected": more,
						"payload":                    map[string]any{"page": float64(i + 1)},
					})
				}
			}
		}
	}()

	app := New(appEnd, ConnectionParams{Handle: "h1"}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.EnsureConnection(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	parts, err := CollectParts(app.SendStream(ctx, "form.search", map[string]any{}))
	require.NoError(t, err)
	require.Len(t, parts, 3)
	require.Equal(t, float64(1), parts[0].Payload["page"])
	require.True(t, parts[0].AdditionalResponseExpected)
	require.Equal(t, float64(3), parts[2].Payload["page"])
	require.False(t, parts[2].AdditionalResponseExpected)
}

func newRawID(base string, i int) string {
	return base + "-part-" + string(rune('a'+i))
}

func TestClose_SendsTeardownNotice(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	host := startHost(t, hostEnd, "h1")

	closeSeen := make(chan struct{}, 1)

	host.On(MessageTypeClose, func(_ context.Context, _ *Request) (map[string]any, error) {
		closeSeen <- struct{}{}

		// Teardown notices get no response.
		return nil, nil
	})

	app := New(appEnd, ConnectionParams{Handle: "h1"}, WithTimeout(time.Second))
	require.NoError(t, app.EnsureConnection(context.Background()))

	require.NoError(t, app.Close())

	select {
	case <-closeSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("host never saw the teardown notice")
	}

	require.Equal(t, StatusDisconnected, app.Status())
}

func TestStatusListeners_ObserveLifecycle(t *testing.T) {
	appEnd, hostEnd := memory.Pair()
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	startHost(t, hostEnd, "h1")

	app := New(appEnd, ConnectionParams{Handle: "h1"}, WithTimeout(time.Second))

	var (
		mu          sync.Mutex
		transitions []Status
	)

	app.OnStatusChange(func(s Status) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	require.NoError(t, app.Connect(context.Background()))
	require.NoError(t, app.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Status{StatusConnecting, StatusConnected, StatusDisconnected}, transitions)
}

func TestOriginRestrictedConnection(t *testing.T) {
	appEnd, hostEnd := memory.PairWithOrigins(
		"https://app.example.org",
		"https://ehr.example.org",
	)
	t.Cleanup(func() {
		appEnd.Close()
		hostEnd.Close()
	})

	startHost(t, hostEnd, "h1")

	// Correct peer origin: the handshake goes through.
	app := New(appEnd, ConnectionParams{
		Handle: "h1",
		Origin: "https://ehr.example.org",
	}, WithTimeout(time.Second))
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.Connect(context.Background()))

	// Wrong peer origin: every send is refused and the handshake fails.
	wrong := New(appEnd, ConnectionParams{
		Handle: "h2",
		Origin: "https://evil.example.org",
	}, WithTimeout(100*time.Millisecond))
	t.Cleanup(func() { _ = wrong.Close() })

	require.Error(t, wrong.Connect(context.Background()))
}
