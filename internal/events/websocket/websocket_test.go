package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/events/websocket"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

func TestStreamURL(t *testing.T) {
	tests := map[string]struct {
		endpoint string
		expURL   string
		expErr   bool
	}{
		"HTTP endpoints should use ws.": {
			endpoint: "http://localhost:5000",
			expURL:   "ws://localhost:5000/ws",
		},
		"HTTPS endpoints should use wss.": {
			endpoint: "https://backend.example.com/",
			expURL:   "wss://backend.example.com/ws",
		},
		"Endpoint paths should be kept.": {
			endpoint: "http://proxy:8080/tuberip?x=1",
			expURL:   "ws://proxy:8080/tuberip/ws",
		},
		"Websocket endpoints should be kept.": {
			endpoint: "ws://localhost:5000",
			expURL:   "ws://localhost:5000/ws",
		},
		"Unknown schemes should fail.": {
			endpoint: "ftp://localhost",
			expErr:   true,
		},
		"Endpoints without host should fail.": {
			endpoint: "http://",
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := websocket.StreamURL(test.endpoint, websocket.DefaultPath)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expURL, got)
		})
	}
}

func TestDialerWithHub(t *testing.T) {
	require := require.New(t)

	hub := websocket.NewHub(log.Noop)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, err := websocket.NewDialer(websocket.DialerConfig{})
	require.NoError(err)

	conn, err := d.Dial(context.Background(), srv.URL)
	require.NoError(err)
	defer conn.Close()

	data, err := conn.ReadMessage()
	require.NoError(err)
	f, err := events.DecodeFrame(data)
	require.NoError(err)
	require.Equal(events.EventConnect, f.Event)
	require.NotEmpty(f.SessionID)

	require.Eventually(func() bool { return len(hub.Sessions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(hub.Emit(f.SessionID, events.EventProgress, map[string]any{"taskId": "t1", "progress": 10}))

	data, err = conn.ReadMessage()
	require.NoError(err)
	f, err = events.DecodeFrame(data)
	require.NoError(err)
	require.Equal(events.EventProgress, f.Event)

	taskID, u, _, err := events.DecodeProgress(f.Data)
	require.NoError(err)
	require.Equal("t1", taskID)
	require.Equal(10.0, *u.Progress)

	require.Error(hub.Emit("missing", events.EventProgress, map[string]any{}))
}

func TestClientOverWebsocket(t *testing.T) {
	hub := websocket.NewHub(log.Noop)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, err := websocket.NewDialer(websocket.DialerConfig{})
	require.NoError(t, err)

	c, err := events.NewClient(events.ClientConfig{
		Dialer:     d,
		Endpoint:   srv.URL,
		MinBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	updates := make(chan model.TaskUpdate, 10)
	c.OnProgress(func(taskID string, u model.TaskUpdate) { updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errC := make(chan error, 1)
	go func() { errC <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.SessionID() != "" }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Emit(c.SessionID(), events.EventProgress, map[string]any{"taskId": "t1", "status": "finished", "filename": "a.mp4"}))

	select {
	case u := <-updates:
		assert.Equal(t, model.TaskStatusFinished, *u.Status)
		assert.Equal(t, "a.mp4", *u.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update")
	}

	// Server side drops, the client should get a new session.
	old := c.SessionID()
	hub.CloseAll()
	require.Eventually(t, func() bool {
		sid := c.SessionID()
		return sid != "" && sid != old
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errC)
}
