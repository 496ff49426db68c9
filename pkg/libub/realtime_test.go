package libub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/libub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Listen(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/events" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"tag":"not_found","message":"unknown collection"}}`))
			return
		}

		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"collection":"events","type":"INSERT","id":"e1","commit_timestamp":"2025-03-01T10:00:00Z"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"collection":"notices","type":"INSERT","id":"n1"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"collection":"events","type":"DELETE","id":"e1"}`))

		<-release
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	_, err = client.Listen(context.Background(), "unknown")
	assert.EqualError(t, err, "unknown collection")

	notifications, err := client.Listen(context.Background(), "events")
	require.NoError(t, err)

	assert.Equal(t, cms.Notification{Collection: "events", Type: "INSERT", ID: "e1"}, receive(t, notifications))
	assert.Equal(t, cms.Notification{Collection: "events", Type: "DELETE", ID: "e1"}, receive(t, notifications))

	close(release)
	select {
	case _, ok := <-notifications:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed on connection loss")
	}
}

func TestClient_Listen_Cancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	notifications, err := client.Listen(ctx, "events")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-notifications:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed on cancellation")
	}
}

func receive(t *testing.T, notifications <-chan cms.Notification) cms.Notification {
	t.Helper()

	select {
	case n, ok := <-notifications:
		require.True(t, ok)
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
	return cms.Notification{}
}
