package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/italolelis/imgbb_downloader/internal/events"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// frame is the envelope of every message in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

// client is the events.Sink of one connection. Jobs publish from their own
// goroutines; a single writer drains the queue onto the socket.
type client struct {
	id   string
	conn *websocket.Conn
	send chan events.Event

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan events.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// Publish queues e for the client. After disconnect every event is dropped.
// Progress is dropped when the queue is full; statuses wait for room.
func (c *client) Publish(e events.Event) {
	if _, ok := e.(events.Progress); ok {
		select {
		case c.send <- e:
		case <-c.done:
		default:
		}

		return
	}

	select {
	case c.send <- e:
	case <-c.done:
	}
}

func (c *client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// writePump is the only goroutine writing to the connection. A failed write
// closes the client, which drops further events and unblocks the reader.
func (c *client) writePump(pingInterval time.Duration) (err error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	defer func() {
		if err != nil {
			c.close()
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))

			return nil
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteJSON(outFrame{Event: e.Name(), Data: e}); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
