package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is enough for SDP bodies.
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection.
	sendQueueSize = 256
)

// Client wraps a single participant's websocket connection. It is the
// connection handle the registry indexes: the router never duplicates it and
// it dies with the socket.
//
// Broadcasts deliver to member snapshots taken under the registry lock, but
// delivery itself happens after the lock is released, so a snapshotted
// recipient may disconnect in between. The closed flag under mu keeps such a
// late delivery from hitting a closed send channel.
type Client struct {
	router *Router
	conn   *websocket.Conn
	log    *log.Entry

	mu     sync.Mutex
	send   chan *protocol.Message
	closed bool
}

// NewClient wires a freshly upgraded websocket connection to the router.
// The caller starts the pumps.
func NewClient(router *Router, conn *websocket.Conn) *Client {
	return &Client{
		router: router,
		conn:   conn,
		send:   make(chan *protocol.Message, sendQueueSize),
		log:    router.log.WithField("remote", conn.RemoteAddr().String()),
	}
}

// deliver queues a message for the write pump. A disconnected recipient or a
// slow consumer loses the message rather than stalling the sender's pump or
// another room.
func (c *Client) deliver(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.WithField("type", msg.Type).Debug("delivery to disconnected participant, dropped")
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.WithField("type", msg.Type).Warn("send queue full, dropping message")
	}
}

// closeSend closes the outbound queue so the write pump exits. Idempotent;
// deliveries after this point are dropped.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps messages from the websocket connection to the router.
//
// The application runs ReadPump in a per-connection goroutine, so router
// dispatch happens in arrival order for each participant. When the socket
// dies the participant is treated as having left its room.
func (c *Client) ReadPump() {
	defer func() {
		c.router.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("read error")
			}
			return
		}
		c.router.Dispatch(c, &msg)
	}
}

// WritePump pumps messages from the router to the websocket connection and
// sends periodic pings. There is at most one writer per connection.
func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.WithError(err).Debug("write error")
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
