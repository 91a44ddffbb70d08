package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveSubscribers upgrades every request into a Subscriber registered on hub
func serveSubscribers(t *testing.T, hub *Hub, filter YearFilter, greeting []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := NewSubscriber(conn, 5, filter)
		if greeting != nil {
			_ = sub.Send(greeting)
		}
		hub.Register(sub)
		defer hub.Unregister(sub)
		sub.Run()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestSubscriber_GreetingThenFilteredEvents(t *testing.T) {
	hub := NewHub()
	greeting, err := ActualsSnapshot(nil).ToJSON()
	require.NoError(t, err)
	srv := serveSubscribers(t, hub, YearFilter{2025: {}}, greeting)

	conn := dial(t, srv)
	assert.Equal(t, "actuals.snapshot", readEvent(t, conn).Type)
	require.Eventually(t, func() bool { return hub.ClientCount(5) == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(5, ActualsRefreshed(&domain.BudgetScenario{FiscalYear: 2024}))
	hub.Publish(5, ActualsRefreshed(&domain.BudgetScenario{FiscalYear: 2025}))

	evt := readEvent(t, conn)
	assert.Equal(t, "actuals.refreshed", evt.Type)
	assert.Equal(t, 2025, evt.FiscalYear)
}

func TestSubscriber_PeerCloseUnregisters(t *testing.T) {
	hub := NewHub()
	srv := serveSubscribers(t, hub, nil, nil)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount(5) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.ClientCount(5) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscriber_CloseAllSendsCloseFrame(t *testing.T) {
	hub := NewHub()
	srv := serveSubscribers(t, hub, nil, nil)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount(5) == 1 }, time.Second, 5*time.Millisecond)

	hub.CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSubscriber_SendAfterClose(t *testing.T) {
	hub := NewHub()
	subs := make(chan *Subscriber, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := NewSubscriber(conn, 5, nil)
		subs <- sub
		sub.Run()
	}))
	t.Cleanup(srv.Close)

	dial(t, srv)
	sub := <-subs
	require.NoError(t, sub.Send([]byte(`{}`)))
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "second close is a no-op")
	<-sub.Done()

	assert.ErrorIs(t, sub.Send([]byte(`{}`)), ErrClientClosed)
	assert.True(t, sub.Wants(2031))
	assert.Equal(t, int32(5), sub.WorkspaceID())
	assert.Equal(t, 0, hub.ClientCount(5))
}
