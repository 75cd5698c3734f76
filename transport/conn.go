package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/CareBridge/events"
)

// ErrConnClosed is returned by writes after the connection has shut down.
var ErrConnClosed = errors.New("transport: connection closed")

type connConfig struct {
	writeWait  time.Duration
	closeGrace time.Duration
	queueDepth int
}

// Conn is one live media stream connection. A single writer goroutine owns
// all WebSocket writes; WriteMedia and WriteClear hand frames to it through
// a bounded queue, so they are safe from any goroutine and never interleave
// on the wire.
type Conn struct {
	ws  *websocket.Conn
	cfg connConfig

	out        chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	mu        sync.Mutex
	streamSID string
	emitter   *events.Emitter
	err       error
}

func newConn(ws *websocket.Conn, cfg connConfig) *Conn {
	return &Conn{
		ws:         ws,
		cfg:        cfg,
		out:        make(chan []byte, cfg.queueDepth),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// bind attaches the stream identity once the start frame arrives. Outbound
// frames carry the stream SID from then on.
func (c *Conn) bind(streamSID string, emitter *events.Emitter) {
	c.mu.Lock()
	c.streamSID = streamSID
	c.emitter = emitter
	c.mu.Unlock()
}

func (c *Conn) stream() (string, *events.Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSID, c.emitter
}

// WriteMedia queues one frame of wire audio for the far end.
func (c *Conn) WriteMedia(ctx context.Context, payload []byte) error {
	sid, emitter := c.stream()
	data, err := encodeMedia(sid, payload)
	if err != nil {
		return err
	}
	if err := c.enqueue(ctx, data); err != nil {
		return err
	}
	emitter.TransportFrame(directionOut, wireEventMedia)
	return nil
}

// WriteClear tells the far end to drop any audio it has queued.
func (c *Conn) WriteClear(ctx context.Context) error {
	sid, emitter := c.stream()
	data, err := encodeClear(sid)
	if err != nil {
		return err
	}
	if err := c.enqueue(ctx, data); err != nil {
		return err
	}
	emitter.TransportFrame(directionOut, wireEventClear)
	return nil
}

func (c *Conn) enqueue(ctx context.Context, data []byte) error {
	if c.closed() {
		return c.closeErr()
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeErr returns the first write failure, or ErrConnClosed after a clean
// shutdown.
func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrConnClosed
}

// close shuts the connection down. The first cause wins; nil marks a clean
// close.
func (c *Conn) close(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writeLoop owns the WebSocket write side. On shutdown it flushes whatever
// is already queued so farewell audio is not clipped, then sends a close
// frame and tears the socket down.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.done:
			c.flush()
			c.writeClose()
			_ = c.ws.Close()
			return
		case data := <-c.out:
			if err := c.write(data); err != nil {
				c.close(err)
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) flush() {
	for {
		select {
		case data := <-c.out:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.closeGrace))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
}
