package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one WebSocket peer. Only writePump writes to conn.
type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte

	quitOnce sync.Once
	quit     chan struct{}
}

func newClient(conn *websocket.Conn, remote string, queue int) *client {
	return &client{
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, queue),
		quit:   make(chan struct{}),
	}
}

// enqueue reports false when the queue is full or the client is closed.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.quit:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
