package server

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// client is one websocket connection bound to an authenticated session.
type client struct {
	server  *Server
	conn    *websocket.Conn
	session *session.Session
	send    chan []byte
}

func newClient(s *Server, conn *websocket.Conn, sess *session.Session) *client {
	return &client{
		server:  s,
		conn:    conn,
		session: sess,
		send:    make(chan []byte, sendBuffer),
	}
}

// enqueue hands a message to the write pump. Slow consumers are dropped
// rather than allowed to block the broadcaster.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("client send buffer full, dropping connection",
			zap.String("user_id", c.session.UserID))
		c.conn.Close()
	}
}

// readPump reads intents off the socket until it closes, then reports
// the disconnect.
func (c *client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.server.sessions.Touch(c.session.ID)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read failed",
					zap.String("user_id", c.session.UserID),
					zap.Error(err))
			}
			return
		}
		c.server.dispatch(c, data)
	}
}

// writePump flushes queued messages and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
