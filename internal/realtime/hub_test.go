package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestHub_DeliversOnlyToTargetUser(t *testing.T) {
	h := startHub(t)
	a1, a2, b := NewClient("a"), NewClient("a"), NewClient("b")
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	waitFor(t, func() bool { return h.ConnectionCount("a") == 2 && h.ConnectionCount("b") == 1 })

	h.Deliver("a", map[string]string{"hello": "a"})

	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.Send():
			require.JSONEq(t, `{"hello":"a"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	select {
	case msg := <-b.Send():
		t.Fatalf("unexpected delivery to b: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := NewClient("a")
	h.Register(c)
	waitFor(t, func() bool { return h.ConnectionCount("a") == 1 })

	h.Unregister(c)
	waitFor(t, func() bool { return h.ConnectionCount("a") == 0 })
	_, ok := <-c.Send()
	require.False(t, ok)

	// A second unregister of the same client is a no-op.
	h.Unregister(c)
}

func TestHub_DeliverWithoutConnectionsIsDropped(t *testing.T) {
	h := startHub(t)
	h.Deliver("nobody", "x")
	require.Len(t, h.deliver, 0)
}

func TestServe_PushesOverWebsocket(t *testing.T) {
	h := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, func() bool { return h.ConnectionCount("u1") == 1 })
	h.Deliver("u1", map[string]any{"type": "message.sent"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "message.sent", got["type"])

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return h.ConnectionCount("u1") == 0 })
}
