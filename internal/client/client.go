// Package client implements the participant side: the websocket signaling
// client, the event handler that fans server messages out, and the session
// that ties signaling, negotiation and mesh status together.
package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Message, 32),
		outgoing:  make(chan *protocol.Message, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		c.shutdown()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.incoming <- &msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.shutdown()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the server. It never blocks: a dead connection
// or a full queue loses the message instead, the same policy the relay
// applies to its own deliveries. Negotiation timers call Send with a pair's
// lock held, so blocking here would wedge that pair's teardown.
func (c *Client) Send(msg *protocol.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	default:
		log.WithField("type", msg.Type).Debug("outgoing queue full, dropping message")
	}
}

// Incoming returns the channel of messages from the server. It closes when
// the connection dies.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close shuts the connection down. Safe to call concurrently and more than
// once.
func (c *Client) Close() {
	c.shutdown()
}

// shutdown releases everything blocked on done. The pumps call it when they
// exit so Send stops parking messages the moment the connection dies.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
