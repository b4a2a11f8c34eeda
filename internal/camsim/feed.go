package camsim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"faceview/pkg/optimize"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// feedConn serializes writes; the broadcaster and the per-connection ping
// loop would otherwise write concurrently.
type feedConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *feedConn) writeText(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *feedConn) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// DetectionFeed fans recognizer events out to every viewer connected to the
// /events endpoint. Viewers are anonymous; they only listen.
type DetectionFeed struct {
	connections map[int]*feedConn
	nextConnID  int
	mu          sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	encodeBuf *optimize.BufferPool

	logger *zap.SugaredLogger
}

func NewDetectionFeed(logger *zap.SugaredLogger) *DetectionFeed {
	return &DetectionFeed{
		connections:  make(map[int]*feedConn),
		pingInterval: 30 * time.Second, // Default ping interval
		readTimeout:  60 * time.Second, // Default read timeout
		writeTimeout: 10 * time.Second, // Default write timeout
		encodeBuf:    optimize.NewBufferPool(),
		logger:       logger,
	}
}

// HandleEvents upgrades the request and keeps the connection registered until
// the viewer goes away. Viewers send no application messages, so the reader
// goroutine exists only to answer pings and notice disconnects.
func (f *DetectionFeed) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	fc := &feedConn{conn: conn}

	f.mu.Lock()
	connID := f.nextConnID
	f.nextConnID++
	f.connections[connID] = fc
	f.mu.Unlock()

	f.logger.Infow("viewer connected to event feed", "conn_id", connID, "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(f.pingInterval)
	defer pingTicker.Stop()

	errorChan := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		}
	}()

	for {
		select {
		case <-pingTicker.C:
			if err := fc.ping(f.writeTimeout); err != nil {
				f.logger.Infow("error sending ping", "conn_id", connID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.logger.Infow("error reading from viewer", "conn_id", connID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	f.mu.Lock()
	delete(f.connections, connID)
	f.mu.Unlock()

	f.logger.Infow("viewer disconnected from event feed", "conn_id", connID)
}

// Broadcast sends one JSON message to every connected viewer. The message is
// encoded once and the same bytes go to each connection. Slow or broken
// connections are logged and skipped; their own handler cleans them up.
func (f *DetectionFeed) Broadcast(message interface{}) {
	buf := f.encodeBuf.Get()
	defer f.encodeBuf.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		f.logger.Errorw("error encoding event", "error", err)
		return
	}

	// WriteMessage copies the payload before returning, so the buffer can go
	// back to the pool once the loop finishes.
	data := buf.Bytes()

	f.mu.RLock()
	defer f.mu.RUnlock()

	for connID, fc := range f.connections {
		if err := fc.writeText(data, f.writeTimeout); err != nil {
			f.logger.Infow("error sending event to viewer", "conn_id", connID, "error", err)
		}
	}
}

// ConnectionCount returns the number of currently connected viewers.
func (f *DetectionFeed) ConnectionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.connections)
}
