package camsim

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialFeed(t *testing.T, feed *DetectionFeed) *websocket.Conn {
	t.Helper()

	want := feed.ConnectionCount() + 1
	srv := httptest.NewServer(http.HandlerFunc(feed.HandleEvents))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return feed.ConnectionCount() == want
	}, time.Second, 10*time.Millisecond)

	return conn
}

func TestBroadcastReachesConnectedViewer(t *testing.T) {
	feed := NewDetectionFeed(zap.NewNop().Sugar())
	conn := dialFeed(t, feed)

	feed.Broadcast(detectionMessage{
		Type:       "face_detection",
		CameraID:   "cam-1",
		CameraName: "Lobby Entrance",
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg detectionMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "face_detection", msg.Type)
	assert.Equal(t, "cam-1", msg.CameraID)
}

func TestBroadcastReachesEveryViewer(t *testing.T) {
	feed := NewDetectionFeed(zap.NewNop().Sugar())
	first := dialFeed(t, feed)
	second := dialFeed(t, feed)

	feed.Broadcast(detectionMessage{Type: "face_detection", CameraID: "cam-2"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg detectionMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "cam-2", msg.CameraID)
	}
}

func TestViewerDisconnectUnregisters(t *testing.T) {
	feed := NewDetectionFeed(zap.NewNop().Sugar())
	conn := dialFeed(t, feed)

	conn.Close()

	require.Eventually(t, func() bool {
		return feed.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastWithNoViewers(t *testing.T) {
	feed := NewDetectionFeed(zap.NewNop().Sugar())

	feed.Broadcast(detectionMessage{Type: "face_detection", CameraID: "cam-1"})
	assert.Equal(t, 0, feed.ConnectionCount())
}
