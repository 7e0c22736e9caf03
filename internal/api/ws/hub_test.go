package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/oceanlens/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestPlaybackHandleRequiresViewer(t *testing.T) {
	hub, url := startHub(t)
	handle := NewPlaybackHandle(hub)

	assert.ErrorIs(t, handle.Play(), ErrNoViewer)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, handle.Play())
	evt := readEvent(t, conn)
	assert.Equal(t, dto.EventPlaybackCommand, evt.Type)
	assert.Equal(t, "play", evt.Command)

	handle.SetMuted(true)
	assert.Equal(t, "mute", readEvent(t, conn).Command)
}

func TestTopicFilter(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url+"?topics=insights")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(&dto.WSEvent{Type: dto.EventSession})
	hub.Broadcast(&dto.WSEvent{Type: dto.EventInsights, Insights: &dto.InsightsView{DetectionID: 102, Status: "ready"}})

	evt := readEvent(t, conn)
	assert.Equal(t, dto.EventInsights, evt.Type)
	assert.Equal(t, int64(102), evt.Insights.DetectionID)
}

func TestInboundMediaEvents(t *testing.T) {
	hub, url := startHub(t)

	got := make(chan dto.WSInbound, 1)
	hub.OnInbound(func(in dto.WSInbound) { got <- in })

	conn := dial(t, url)
	require.NoError(t, conn.WriteJSON(dto.WSInbound{Type: "media", Event: "ended"}))

	select {
	case in := <-got:
		assert.Equal(t, "ended", in.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event not dispatched")
	}
}
