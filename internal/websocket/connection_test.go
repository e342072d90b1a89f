package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tatami/pkg/types"
)

// wsPair upgrades one connection through a throwaway test server and returns
// both ends.
func wsPair(t *testing.T) (server *Conn, client *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- NewConn(ws, 8, time.Second)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection never arrived")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func TestConnIDIsStable(t *testing.T) {
	server, _ := wsPair(t)
	assert.NotEmpty(t, server.ID())
	assert.Equal(t, server.ID(), server.ID())
}

func TestConnSendDeliversFrame(t *testing.T) {
	server, client := wsPair(t)

	env, err := types.NewEnvelope(types.EventStatsChanged, types.Stats{OnlineTeachers: 1})
	require.NoError(t, err)
	require.NoError(t, server.Send(env))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)

	var got types.Envelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, types.EventStatsChanged, got.Type)
}

func TestConnSendAfterClose(t *testing.T) {
	server, _ := wsPair(t)
	require.NoError(t, server.Close())

	env, err := types.NewEnvelope(types.EventStatsChanged, types.Stats{})
	require.NoError(t, err)
	assert.ErrorIs(t, server.Send(env), ErrConnectionClosed)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	server, _ := wsPair(t)
	require.NoError(t, server.Close())
	assert.NoError(t, server.Close())
}
