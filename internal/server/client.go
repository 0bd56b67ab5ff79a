package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds how long a single write may block.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the
	// connection. Pings go out at a fraction of this.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBufferSize is the per-client outbound queue. A client that
	// falls this far behind is disconnected rather than blocking the
	// rest of the server.
	sendBufferSize = 64
)

// client is one websocket connection owned by the hub. Reads and writes
// each run on their own goroutine; everything else talks to the client
// through the send channel.
type client struct {
	gateway  *Gateway
	conn     *websocket.Conn
	userID   int64
	username string
	logger   *zap.Logger

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newClient(g *Gateway, conn *websocket.Conn, userID int64, username string) *client {
	return &client{
		gateway:  g,
		conn:     conn,
		userID:   userID,
		username: username,
		logger:   g.logger.With(zap.Int64("user_id", userID)),
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// enqueue queues an outbound frame, dropping the client if its buffer
// is full.
func (c *client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("client send buffer full, disconnecting")
		c.close()
	}
}

// close tears the connection down. Safe to call from any goroutine,
// repeatedly.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump consumes inbound frames and dispatches commands until the
// connection dies.
func (c *client) readPump() {
	defer func() {
		c.gateway.hub.unregister(c)
		c.gateway.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		c.gateway.dispatch(c, payload)
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
