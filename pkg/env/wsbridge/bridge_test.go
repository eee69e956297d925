package wsbridge

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/turboresource/pkg/env"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, f Frame) Frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var ack Frame
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

func TestBridgeAppliesFrames(t *testing.T) {
	events := env.NewEvents()
	var focus, online atomic.Int32
	events.OnFocus(func() { focus.Add(1) })
	events.OnOnline(func() { online.Add(1) })

	srv := httptest.NewServer(New(events))
	defer srv.Close()
	conn := dial(t, srv)

	ack := roundTrip(t, conn, Frame{Type: FrameBlur})
	assert.Equal(t, FrameAck, ack.Type)
	assert.Empty(t, ack.Error)
	assert.False(t, events.Focused())

	roundTrip(t, conn, Frame{Type: FrameFocus})
	assert.True(t, events.Focused())

	roundTrip(t, conn, Frame{Type: FrameOffline})
	assert.False(t, events.IsOnline())
	roundTrip(t, conn, Frame{Type: FrameOnline})
	assert.True(t, events.IsOnline())

	roundTrip(t, conn, Frame{Type: FrameVisibility, State: "hidden"})
	roundTrip(t, conn, Frame{Type: FrameVisibility, State: "visible"})

	assert.EqualValues(t, 2, focus.Load())
	assert.EqualValues(t, 1, online.Load())
}

func TestBridgeRejectsUnknownFrames(t *testing.T) {
	events := env.NewEvents()
	srv := httptest.NewServer(New(events))
	defer srv.Close()
	conn := dial(t, srv)

	ack := roundTrip(t, conn, Frame{Type: "resize"})
	assert.Equal(t, FrameAck, ack.Type)
	assert.NotEmpty(t, ack.Error)

	ack = roundTrip(t, conn, Frame{Type: FrameVisibility, State: "prerender"})
	assert.NotEmpty(t, ack.Error)
	assert.Equal(t, env.VisibilityVisible, events.Visibility())
}

func TestBridgeTracksClients(t *testing.T) {
	b := New(env.NewEvents())
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dial(t, srv)
	roundTrip(t, conn, Frame{Type: FrameFocus})
	assert.Equal(t, 1, b.ClientCount())

	conn.Close()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBridgeClose(t *testing.T) {
	b := New(env.NewEvents())
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dial(t, srv)
	roundTrip(t, conn, Frame{Type: FrameFocus})

	b.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	f, err := Decode([]byte(`{"type":"visibility","state":"hidden"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameVisibility, f.Type)
	assert.Equal(t, "hidden", f.State)

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}
