package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// WSConn adapts a gorilla websocket to Conn. A read pump decodes frames
// into a buffered channel; frames over the rate limit or that fail to
// decode are dropped and logged.
type WSConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	in      chan Envelope
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	name    string
}

// NewWSConn starts reading from ws. A nil limiter disables throttling.
func NewWSConn(ws *websocket.Conn, limiter *rate.Limiter, name string) *WSConn {
	c := &WSConn{
		ws:      ws,
		in:      make(chan Envelope, 32),
		done:    make(chan struct{}),
		limiter: limiter,
		name:    name,
	}
	go c.readPump()
	return c
}

// NewLimiter allows perSecond messages with the given burst.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (c *WSConn) readPump() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws %s read: %v", c.name, err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			log.Printf("ws %s: rate limit exceeded, dropping message", c.name)
			continue
		}
		var e Envelope
		if err := json.Unmarshal(data, &e); err != nil {
			log.Printf("ws %s: %v: %v", c.name, ErrMalformed, err)
			continue
		}
		select {
		case c.in <- e:
		case <-c.done:
			return
		}
	}
}

// Send writes one frame, honouring the context deadline.
func (c *WSConn) Send(ctx context.Context, e Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(deadline)
	err := c.ws.WriteJSON(e)
	c.writeMu.Unlock()
	if err != nil {
		c.Close()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Receive waits for the next frame.
func (c *WSConn) Receive(ctx context.Context) (Envelope, error) {
	// frames already read are delivered even after the socket closed
	select {
	case e := <-c.in:
		return e, nil
	default:
	}
	select {
	case e := <-c.in:
		return e, nil
	case <-c.done:
		return Envelope{}, ErrClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Done is closed when the connection goes away.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Close shuts the socket. It is safe to call more than once.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		// WriteControl may run concurrently with WriteJSON
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
