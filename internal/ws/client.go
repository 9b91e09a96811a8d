// Package ws is the websocket transport for the sync protocol: one Client
// per connection with a read pump dispatching into the engine and a write
// pump draining a buffered send channel.
package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rohseh303/Paper/internal/engine"
	"github.com/rohseh303/Paper/internal/protocol"
)

const sendBuffer = 256

// Client is one connected editor. It satisfies session.Conn.
type Client struct {
	id   string
	conn *websocket.Conn
	log  *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		log:  log.With(zap.String("conn", id)),
		send: make(chan []byte, sendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Enqueue queues a frame for delivery without blocking. Frames for a closed
// connection are dropped, as are frames that would overflow a slow client's
// buffer.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("send buffer full, dropping frame")
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// readPump decodes frames and dispatches them to the engine until the
// connection drops. A malformed frame is logged and skipped; it never takes
// the connection (or anyone else's) down.
func (c *Client) readPump(ctx context.Context, eng *engine.Engine) {
	defer func() {
		eng.Disconnect(c)
		c.close()
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("connection closed", zap.Error(err))
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				c.log.Warn("unknown message type", zap.Error(err))
			} else {
				c.log.Warn("malformed frame", zap.Error(err))
			}
			continue
		}
		c.dispatch(ctx, eng, env)
	}
}

func (c *Client) dispatch(ctx context.Context, eng *engine.Engine, env *protocol.Envelope) {
	switch env.Type {
	case protocol.GetDocument:
		if err := eng.GetDocument(ctx, c, env.DocumentID); err != nil {
			c.log.Error("get-document failed",
				zap.String("documentId", env.DocumentID), zap.Error(err))
		}
	case protocol.SendChanges:
		eng.SendChanges(ctx, c, env.DocumentID, env.Delta)
	case protocol.SaveDocument:
		eng.SaveDocument(ctx, env.DocumentID, env.Snapshot)
	case protocol.TextSelection:
		eng.TextSelection(c, env.DocumentID, env.Text, env.Changes)
	case protocol.RequestDocList:
		eng.DocumentList(ctx, c)
	}
}

// writePump sends queued frames until the send channel closes.
func (c *Client) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Info("write failed", zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
