package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tatami/pkg/types"
)

// Conn wraps one websocket connection. Writes are serialized through a single
// writer goroutine draining a buffered channel; Send never blocks, so the
// coordination loop cannot be stalled by a slow client. The uuid assigned
// here is the connection's logical participant id for its whole life.
type Conn struct {
	id           string
	ws           *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConn wraps an upgraded websocket and starts its writer goroutine.
func NewConn(ws *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Conn {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:           uuid.New().String(),
		ws:           ws,
		sendCh:       make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	go c.writeLoop()
	return c
}

// ID returns the logical participant id.
func (c *Conn) ID() string {
	return c.id
}

// Send queues one event for delivery. A full buffer or closed connection
// returns an error instead of blocking; the caller treats delivery as best
// effort.
func (c *Conn) Send(env *types.Envelope) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}
