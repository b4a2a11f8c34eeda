package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
	apperrors "faceview/pkg/errors"
)

const pingWriteWait = 5 * time.Second

// WebSocketClient is the gorilla-backed ports.ChannelClient. One instance
// serves the router for the life of the process; Dial may be called again
// after Close to establish a fresh connection.
type WebSocketClient struct {
	url              string
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	pongTimeout      time.Duration
	maxMessageSize   int64
	logger           *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

func NewWebSocketClient(url string, handshakeTimeout, pingInterval, pongTimeout time.Duration, maxMessageSize int64, logger *zap.SugaredLogger) *WebSocketClient {
	return &WebSocketClient{
		url:              url,
		handshakeTimeout: handshakeTimeout,
		pingInterval:     pingInterval,
		pongTimeout:      pongTimeout,
		maxMessageSize:   maxMessageSize,
		logger:           logger,
	}
}

// Dial connects to the event channel endpoint. The read deadline is armed
// immediately and pushed forward by every pong and every inbound message, so
// a silent peer is detected within one pong timeout.
func (c *WebSocketClient) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return apperrors.NewChannelError("event channel dial failed", err)
	}

	conn.SetReadLimit(c.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	done := make(chan struct{})
	c.conn = conn
	c.done = done
	go c.pingLoop(conn, done)

	c.logger.Infow("event channel connected", "url", c.url)
	return nil
}

// ReadMessage blocks until the next raw message arrives. The connection
// snapshot is taken outside the read so Close can interrupt a blocked read.
func (c *WebSocketClient) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, domain.ErrChannelClosed
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, apperrors.NewChannelError("event channel read failed", err)
	}
	conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	return data, nil
}

// Close tears down the current connection. Idempotent; a subsequent Dial
// starts over with a fresh connection and ping loop.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.done = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(done)

	deadline := time.Now().Add(pingWriteWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

func (c *WebSocketClient) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(pingWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				c.logger.Debugw("event channel ping failed", "error", err)
				return
			}
		}
	}
}
