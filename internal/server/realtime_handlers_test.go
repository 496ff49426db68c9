package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRealtime(t *testing.T) {
	ts := serve(t)
	admin := login(t, ts.URL)

	ws := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(ws, nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	_, err = admin.Insert(ctx, "notices", json.RawMessage(`{"title":"Other collection"}`))
	require.NoError(t, err)
	created, err := admin.Insert(ctx, "events", json.RawMessage(`{"title":"Assembly","date":"2025-03-10"}`))
	require.NoError(t, err)

	var record struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(created, &record))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame struct {
		Collection      string    `json:"collection"`
		Type            string    `json:"type"`
		ID              string    `json:"id"`
		CommitTimestamp time.Time `json:"commit_timestamp"`
	}
	require.NoError(t, conn.ReadJSON(&frame))

	assert.Equal(t, "events", frame.Collection)
	assert.Equal(t, "INSERT", frame.Type)
	assert.Equal(t, record.ID, frame.ID)
	assert.WithinDuration(t, time.Now(), frame.CommitTimestamp, 5*time.Second)
}

func TestRequestRealtime_UnknownCollection(t *testing.T) {
	ts := serve(t)

	ws := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime/v1/unknown"
	_, res, err := websocket.DefaultDialer.Dial(ws, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
