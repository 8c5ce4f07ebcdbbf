package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/model"
)

const (
	sendBufferSize = 256

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a live peer always gets
	// a ping before its deadline lapses.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated websocket connection. Its lifecycle is
// Connecting -> Authenticated -> (JoinedRoom)* -> Disconnected; the
// session was already validated before the upgrade, so an unauthenticated
// connection never reaches this type.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint64
	send   chan []byte
	rooms  map[uint64]struct{}

	closeOnce sync.Once
}

// ServeConn registers an upgraded, authenticated connection and starts its
// read/write pumps.
func (h *Hub) ServeConn(conn *websocket.Conn, userID uint64) {
	c := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[uint64]struct{}),
	}
	h.register(c)
	go c.writePump()
	go c.readPump()
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() uint64 { return c.userID }

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump consumes inbound events until the socket drops. A stuck
// connection is handled purely by disconnect detection: a peer that stops
// answering pings misses its read deadline and is dropped.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		var ev model.ClientEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}

		switch ev.Type {
		case model.EventJoin:
			if ev.ConversationID != 0 {
				c.hub.join(c, ev.ConversationID)
			}
		case model.EventLeave:
			if ev.ConversationID != 0 {
				c.hub.leave(c, ev.ConversationID)
			}
		case model.EventAnnounce:
			c.hub.announce(ctx, c, ev)
		default:
			c.hub.logger.Debug("ignoring unknown client event", zap.String("type", string(ev.Type)))
		}
	}
}

// writePump drains the send channel to the socket and keeps the peer
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: the hub dropped us.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
