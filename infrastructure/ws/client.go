package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"presencehub/domain/event"
	"presencehub/errors"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

// frame is the wire envelope for server-to-client events.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client wraps one websocket connection and implements contract.Conn.
// Deliver never blocks: events go through a buffered send channel drained
// by the write loop; a full buffer fails the delivery instead of stalling
// the registry or the engines.
type Client struct {
	id        string
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte
	closeOnce sync.Once
	open      atomic.Bool
}

func newClient(ctx context.Context, conn *websocket.Conn, bufferSize int) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
		send:   make(chan []byte, bufferSize),
	}
	c.open.Store(true)
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) IsOpen() bool { return c.open.Load() }

func (c *Client) Deliver(ctx context.Context, e event.Event) error {
	if !c.open.Load() {
		return fmt.Errorf("%w: connection %s", errors.ErrStaleHandle, c.id)
	}
	bytes, err := json.Marshal(frame{Event: e.Name(), Data: e})
	if err != nil {
		return err
	}
	select {
	case c.send <- bytes:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

// Close signals the transport to shut the connection down. It never blocks,
// so it is safe to call while the registry lock is held.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.cancel()
		go c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case bytes := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, bytes)
			cancel()
			if err != nil {
				c.Close("write failure")
				return
			}
		}
	}
}
