package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one admin dashboard connection. The feed is one way: anything the
// browser sends is discarded.
type Client struct {
	hub   *Hub
	conn  *ws.Conn
	admin string
	send  chan []byte
}

// NewClient creates a Client for conn registered to hub.
func NewClient(hub *Hub, conn *ws.Conn, admin string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		admin: admin,
		send:  make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and writes queued notifications until the
// connection closes or ctx ends.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
