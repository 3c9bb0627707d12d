package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftware/deskhand/internal/bus"
	"github.com/driftware/deskhand/pkg/protocol"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
	maxWSMessageSize = 4 * 1024
)

// Client is one WebSocket observer. It owns a bus subscription and
// relays events as EventFrames with a per-connection sequence number.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
		done:   make(chan struct{}),
	}
}

func (c *Client) run() {
	defer c.close()
	defer c.conn.Close()
	defer c.server.bus.Unsubscribe(c.id)

	events := c.server.bus.Subscribe(c.id)

	hello := protocol.HelloFrame{
		Type:     protocol.FrameTypeHello,
		Version:  protocol.ProtocolVersion,
		ServerID: c.server.serverID,
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(hello); err != nil {
		return
	}

	go c.readPump()
	c.writePump(events)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump exists to process control frames and detect disconnects.
// Data frames from clients are discarded: the stream is one-way.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *Client) writePump(events <-chan bus.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			seq++
			frame := protocol.EventFrame{
				Type:    protocol.FrameTypeEvent,
				Event:   ev.Type,
				RunID:   ev.RunID,
				Seq:     seq,
				Time:    ev.Time,
				Payload: ev.Payload,
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
