package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/events"
)

type recordingIntents struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingIntents) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recordingIntents) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingIntents) OpenConversation(peer string) error {
	r.record("open:" + peer)
	return nil
}

func (r *recordingIntents) CloseConversation() { r.record("close") }

func (r *recordingIntents) MarkRead(ctx context.Context, peer string) error {
	r.record("read:" + peer)
	return nil
}

func (r *recordingIntents) Send(ctx context.Context, peer, content string, attachment *string) (domain.Message, error) {
	r.record("send:" + peer + ":" + content)
	return domain.Message{}, nil
}

func (r *recordingIntents) Delete(ctx context.Context, id string, forAll bool) error {
	r.record("delete:" + id)
	return nil
}

func (r *recordingIntents) Accept(ctx context.Context, id string) error {
	r.record("accept:" + id)
	return domain.ErrActionUnavailable
}

func (r *recordingIntents) Cancel(ctx context.Context, id string) error {
	r.record("cancel:" + id)
	return nil
}

func TestCheckOrigin(t *testing.T) {
	check := makeCheckOrigin([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, check(req), "missing origin")

	req.Header.Set("Origin", "HTTP://LOCALHOST:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.False(t, makeCheckOrigin(nil)(req))
	assert.True(t, makeCheckOrigin([]string{"*"})(req))
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(u, h)
}

func TestHandlerRelaysEventsAndIntents(t *testing.T) {
	const origin = "http://localhost:5173"
	bus := events.NewBus(nil)
	defer bus.Close()
	hub := NewHub(nil)
	intents := &recordingIntents{}

	ch, unsub := bus.Subscribe(8)
	defer unsub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, ch)

	srv := httptest.NewServer(MakeHandler(hub, intents, []string{origin}, nil))
	defer srv.Close()

	_, resp, err := dial(t, srv, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, origin)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(events.Event{Kind: events.InventoryUpdated, InventoryID: "I1"})
	var got events.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.InventoryUpdated, got.Kind)
	assert.Equal(t, "I1", got.InventoryID)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "open_chat", "peer_id": "R1"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "message", "peer_id": "R1", "content": "hi"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "accept", "message_id": "m1"}))

	var errMsg map[string]any
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "accept", errMsg["intent"])

	assert.Equal(t, []string{"open:R1", "send:R1:hi", "accept:m1"}, intents.snapshot())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}
