package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	before := hub.Connections(userID)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Connections(userID) == before+1 },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var n Notification
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func TestNotification_Validate(t *testing.T) {
	ok := Notification{UserID: "u1", Kind: KindPurchase, Message: "sold"}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, Notification{Kind: KindFollow, Message: "m"}.Validate(), ErrNoRecipient)
	assert.ErrorIs(t, Notification{UserID: "u", Kind: "like", Message: "m"}.Validate(), ErrUnknownKind)
	assert.ErrorIs(t, Notification{UserID: "u", Kind: KindSystem}.Validate(), ErrEmptyMessage)

	assert.Equal(t, "u1|purchase|sold", ok.DedupKey())
}

func TestHub_PublishDelivers(t *testing.T) {
	clock := newManualClock()
	hub := NewHub(NewDeduper(0, clock), nil, WithHubClock(clock))
	t.Cleanup(hub.Close)
	srv := newTestHubServer(t, hub)

	first := dial(t, srv, hub, "u1")
	second := dial(t, srv, hub, "u1")
	other := dial(t, srv, hub, "u2")

	delivered := hub.Publish(context.Background(), Notification{UserID: "u1", Kind: KindFollow, Message: "new follower"})
	require.True(t, delivered)

	for _, conn := range []*websocket.Conn{first, second} {
		n := readNotification(t, conn)
		assert.Equal(t, "u1", n.UserID)
		assert.Equal(t, KindFollow, n.Kind)
		assert.Equal(t, "new follower", n.Message)
		assert.NotEmpty(t, n.ID)
		assert.True(t, n.CreatedAt.Equal(clock.Now()))
	}

	// u2 receives nothing.
	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_PublishSuppressesDuplicates(t *testing.T) {
	clock := newManualClock()
	hub := NewHub(NewDeduper(3*time.Second, clock), nil, WithHubClock(clock))
	t.Cleanup(hub.Close)
	srv := newTestHubServer(t, hub)
	conn := dial(t, srv, hub, "u1")
	ctx := context.Background()

	n := Notification{UserID: "u1", Kind: KindFavorite, Message: "liked your beat"}
	assert.True(t, hub.Publish(ctx, n))
	assert.False(t, hub.Publish(ctx, n))

	clock.Advance(3 * time.Second)
	assert.True(t, hub.Publish(ctx, n))

	assert.Equal(t, "liked your beat", readNotification(t, conn).Message)
	assert.Equal(t, "liked your beat", readNotification(t, conn).Message)
}

func TestHub_PublishWithoutConnections(t *testing.T) {
	hub := NewHub(nil, nil)
	assert.False(t, hub.Publish(context.Background(), Notification{UserID: "nobody", Kind: KindSystem, Message: "m"}))
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil, nil)
	t.Cleanup(hub.Close)
	srv := newTestHubServer(t, hub)

	conn := dial(t, srv, hub, "u1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Connections("u1") == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	c := &client{userID: "u1", send: make(chan []byte, 1)}
	hub.register(c)

	ctx := context.Background()
	assert.True(t, hub.Publish(ctx, Notification{UserID: "u1", Kind: KindSystem, Message: "one"}))
	// Buffer is full and nobody drains it.
	assert.False(t, hub.Publish(ctx, Notification{UserID: "u1", Kind: KindSystem, Message: "two"}))
	assert.Equal(t, 0, hub.Connections("u1"))

	// The queued message is still readable, then the channel is closed.
	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok)
}
