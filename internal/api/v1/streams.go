package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/results"
)

// Constants for WebSocket connections
const (
	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client
	pongWait = 60 * time.Second

	// Send pings to client with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from client
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleResultsWebSocket handles GET /api/v1/results/ws. Results are written
// as JSON text messages; client messages are read only to track pongs and
// detect disconnects.
func (c *Controller) HandleResultsWebSocket(ctx echo.Context) error {
	broadcaster := c.pipeline.Results()
	if broadcaster == nil {
		return c.HandleError(ctx, nil, "Result stream not available", http.StatusServiceUnavailable)
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", logger.Error(err), logger.String("ip", ctx.RealIP()))
		// the upgrader already wrote an error response
		return nil
	}

	sub := broadcaster.Subscribe()
	log := c.log.WithContext(ctx.Request().Context()).
		With(logger.String("client_id", generateCorrelationID()), logger.String("ip", ctx.RealIP()))
	log.Debug("websocket client connected")

	readDone := make(chan struct{})
	go readPump(conn, readDone, log)

	writePump(c, conn, sub.C(), readDone, log)

	sub.Unsubscribe()
	_ = conn.Close()
	<-readDone
	log.Debug("websocket client disconnected", logger.Uint64("dropped", sub.Dropped()))
	return nil
}

// writePump sends results and pings until the client goes away, the
// subscription closes or the API shuts down.
func writePump(c *Controller, conn *websocket.Conn, stream <-chan *results.ClassificationResult, readDone <-chan struct{}, log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteJSON(r); err != nil {
				log.Debug("websocket write failed", logger.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readDone:
			return

		case <-c.ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// readPump drains client messages until the connection fails, then closes done.
func readPump(conn *websocket.Conn, done chan<- struct{}, log logger.Logger) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug("websocket read error", logger.Error(err))
			}
			return
		}
	}
}
