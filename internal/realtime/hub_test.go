package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startHub(t *testing.T) (*Hub, *httptest.Server, string) {
	t.Helper()
	hub := NewHub(quiet())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("uid"))
	}))
	return hub, srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return c
}

func TestHub_PushReachesOnlyRecipient(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, srv, url := startHub(t)
	defer srv.Close()

	maria := dial(t, url+"?uid=u-1")
	juan := dial(t, url+"?uid=u-2")
	require.Eventually(t, func() bool {
		return hub.Connections("u-1") == 1 && hub.Connections("u-2") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Push(context.Background(), "u-1", []byte(`{"title":"Order Shipped"}`)))

	_ = maria.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := maria.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Order Shipped"}`, string(msg))

	_ = juan.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = juan.ReadMessage()
	assert.Error(t, err)

	_ = maria.Close()
	_ = juan.Close()
	require.Eventually(t, func() bool {
		return hub.Connections("u-1") == 0 && hub.Connections("u-2") == 0
	}, 2*time.Second, 10*time.Millisecond)
	hub.Close()
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, srv, url := startHub(t)
	defer srv.Close()

	c := dial(t, url+"?uid=u-1")
	defer c.Close()
	require.Eventually(t, func() bool { return hub.Connections("u-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)

	late, _, err := websocket.DefaultDialer.Dial(url+"?uid=u-1", nil)
	if err == nil {
		_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = late.ReadMessage()
		assert.Error(t, err)
		_ = late.Close()
	}
	assert.Zero(t, hub.Connections("u-1"))
}

func TestHub_PushWithoutConnectionsIsNoop(t *testing.T) {
	hub := NewHub(quiet())
	assert.NoError(t, hub.Push(context.Background(), "nobody", []byte(`{}`)))
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(quiet(), "https://shop.thriftian.test/")
	for origin, want := range map[string]bool{
		"":                               true,
		"http://api.thriftian.test:8081": true,
		"https://shop.thriftian.test":    true,
		"HTTPS://Shop.Thriftian.test":    true,
		"https://evil.example":           false,
		"https://api.thriftian.test.evil.example": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "http://api.thriftian.test:8081/ws/notifications", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, hub.checkOrigin(r), origin)
	}
}

func TestHub_RejectsCrossSiteUpgrade(t *testing.T) {
	hub, srv, url := startHub(t)
	defer srv.Close()
	defer hub.Close()

	c, resp, err := websocket.DefaultDialer.Dial(url+"?uid=u-1", http.Header{"Origin": {"https://evil.example"}})
	if c != nil {
		_ = c.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Connections("u-1"))
}
