package httpapi

import (
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/slidecast/backend/internal/stream"
)

var (
	errConnClosed    = errors.New("connection closed")
	errClientTooSlow = errors.New("client not keeping up")
)

// client adapts one websocket connection to stream.Sink. Writes go through a
// buffered channel drained by a single writePump goroutine, so the keepalive
// and poll loops can Send concurrently without interleaving frames.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	defer close(c.done)
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) Send(ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- data:
		return nil
	default:
		// A full buffer means the consumer stopped draining; failing the
		// Send closes the stream rather than queueing unboundedly.
		return errClientTooSlow
	}
}

// close stops the writePump. Call only after the last Send has returned.
func (c *client) close() {
	close(c.send)
}
