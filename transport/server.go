// Package transport implements the telephony media-stream endpoint: a
// WebSocket server speaking the provider's JSON frame protocol. It routes
// inbound frames to call sessions and carries synthesized audio back, and
// owns no session logic of its own.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/events"
	"github.com/AltairaLabs/CareBridge/logger"
)

// Default server tuning.
const (
	DefaultWriteWait      = 10 * time.Second
	DefaultCloseGrace     = 5 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultQueueDepth     = 64

	// DefaultDrainTimeout bounds how long a closing connection waits for
	// its session to speak a farewell and finish.
	DefaultDrainTimeout = 30 * time.Second
)

// Stream consumes inbound events for one started media stream. Sessions
// created by the bridge package satisfy it.
type Stream interface {
	// HandleMedia delivers one chunk of caller wire audio.
	HandleMedia(payload []byte)

	// HandleStop signals that the far end stopped the stream.
	HandleStop()

	// HandleTransportError signals that the connection failed or sent an
	// undecodable frame.
	HandleTransportError(err error)

	// Done is closed when the stream's session has ended.
	Done() <-chan struct{}
}

var _ Stream = (*bridge.Session)(nil)

// StreamStart describes a newly started media stream.
type StreamStart struct {
	StreamSID  string
	CallSID    string
	AccountSID string

	// Caller is the caller's phone number when the TwiML forwarded it as
	// a custom parameter, empty otherwise.
	Caller string

	// Parameters holds the raw custom parameters from the start frame.
	Parameters map[string]string
}

// Handler starts a Stream for a newly started media stream. Implementations
// construct the session, launch whatever goroutine drives it, and return
// without blocking for the call's duration. The writer is how the session's
// audio reaches this connection.
type Handler func(ctx context.Context, start StreamStart, writer bridge.MediaWriter) (Stream, error)

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithBus attaches an event bus; transport frame events are published to it
// per call.
func WithBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.bus = bus
	}
}

// WithWriteWait sets the per-message write deadline.
func WithWriteWait(d time.Duration) ServerOption {
	return func(s *Server) {
		s.writeWait = d
	}
}

// WithMaxMessageSize sets the inbound message read limit in bytes.
func WithMaxMessageSize(n int64) ServerOption {
	return func(s *Server) {
		s.maxMessageSize = n
	}
}

// WithQueueDepth sets the outbound frame queue depth per connection.
func WithQueueDepth(n int) ServerOption {
	return func(s *Server) {
		s.queueDepth = n
	}
}

// WithDrainTimeout bounds the wait for a session to finish after its
// connection stops reading.
func WithDrainTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.drainTimeout = d
	}
}

// Server upgrades media-stream connections and routes their frames. It is
// an http.Handler; mount it on the path the voice webhook's TwiML points
// at.
type Server struct {
	handler Handler
	bus     *events.EventBus

	writeWait      time.Duration
	closeGrace     time.Duration
	maxMessageSize int64
	queueDepth     int
	drainTimeout   time.Duration

	upgrader websocket.Upgrader

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a media-stream server delegating started streams to
// the handler.
func NewServer(handler Handler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("transport: handler is required")
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	s := &Server{
		handler:        handler,
		writeWait:      DefaultWriteWait,
		closeGrace:     DefaultCloseGrace,
		maxMessageSize: DefaultMaxMessageSize,
		queueDepth:     DefaultQueueDepth,
		drainTimeout:   DefaultDrainTimeout,
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
		conns:          make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	// The telephony provider sends no Origin header.
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s, nil
}

// ServeHTTP upgrades one media-stream connection and serves it until the
// stream ends or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.maxMessageSize)

	conn := newConn(ws, connConfig{
		writeWait:  s.writeWait,
		closeGrace: s.closeGrace,
		queueDepth: s.queueDepth,
	})
	s.track(conn)
	defer s.untrack(conn)
	go conn.writeLoop()

	ctx, cancel := context.WithCancel(s.rootCtx)
	defer cancel()

	logger.Debug("media stream connection accepted", "remote", r.RemoteAddr)
	stream := s.readFrames(ctx, conn)
	if stream != nil {
		select {
		case <-stream.Done():
		case <-time.After(s.drainTimeout):
			logger.Warn("session did not finish before drain timeout")
		}
	}
	conn.close(nil)
	<-conn.writerDone
}

// readFrames consumes inbound frames until the connection ends, routing
// them to the stream started on it. It returns that stream, if any, so the
// caller can wait out its farewell.
func (s *Server) readFrames(ctx context.Context, conn *Conn) Stream {
	var stream Stream
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			switch {
			case conn.closed():
				// Closed from our side; the session is already ending.
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Debug("media stream closed by peer", "error", err)
				if stream != nil {
					stream.HandleStop()
				}
			default:
				logger.Warn("media stream read failed", "error", err)
				if stream != nil {
					stream.HandleTransportError(err)
				}
			}
			return stream
		}

		f, err := decodeFrame(data)
		if err != nil {
			logger.Warn("undecodable frame", "error", err)
			if stream != nil {
				stream.HandleTransportError(err)
			}
			conn.close(err)
			return stream
		}

		if f.Event != wireEventStart {
			_, emitter := conn.stream()
			emitter.TransportFrame(directionIn, f.Event)
		}

		switch f.Event {
		case wireEventConnected:
			logger.Debug("media stream handshake")

		case wireEventStart:
			if stream != nil {
				logger.Warn("duplicate start frame ignored", "stream_sid", f.StreamSID)
				continue
			}
			st, err := s.startStream(ctx, conn, f)
			if err != nil {
				logger.Error("stream start rejected", "error", err)
				conn.close(err)
				return nil
			}
			stream = st

		case wireEventMedia:
			if stream == nil {
				continue
			}
			payload, err := f.decodeMediaPayload()
			if err != nil {
				logger.Warn("undecodable media payload", "error", err)
				stream.HandleTransportError(err)
				conn.close(err)
				return stream
			}
			stream.HandleMedia(payload)

		case wireEventDTMF:
			if f.DTMF != nil {
				logger.Debug("dtmf received", "digit", f.DTMF.Digit)
			}

		case wireEventMark:
			// Playback checkpoints are not used.

		case wireEventStop:
			logger.Debug("media stream stopped by peer")
			if stream != nil {
				stream.HandleStop()
			}
			return stream

		default:
			logger.Debug("skipping unknown frame", "event", f.Event)
		}
	}
}

// startStream binds the stream identity to the connection and hands the
// stream to the handler. The connection closes itself once the session
// ends.
func (s *Server) startStream(ctx context.Context, conn *Conn, f *frame) (Stream, error) {
	if f.Start == nil {
		return nil, fmt.Errorf("start frame missing body")
	}
	start := StreamStart{
		StreamSID:  f.Start.StreamSID,
		CallSID:    f.Start.CallSID,
		AccountSID: f.Start.AccountSID,
		Caller:     callerParam(f.Start.CustomParameters),
		Parameters: f.Start.CustomParameters,
	}
	if start.StreamSID == "" {
		start.StreamSID = f.StreamSID
	}
	if start.StreamSID == "" {
		return nil, fmt.Errorf("start frame missing stream sid")
	}

	emitter := events.NewEmitter(s.bus, start.CallSID, start.StreamSID)
	conn.bind(start.StreamSID, emitter)
	emitter.TransportFrame(directionIn, wireEventStart)
	logger.CallEvent(start.StreamSID, "stream_started",
		"call_sid", start.CallSID,
		"caller", logger.RedactPhone(start.Caller),
	)

	stream, err := s.handler(ctx, start, conn)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-stream.Done():
			conn.close(nil)
		case <-conn.done:
		}
	}()
	return stream, nil
}

func (s *Server) track(conn *Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Shutdown stops accepting streams, ends live sessions, and waits for
// connections to drain. The context bounds the wait.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	s.rootCancel()
	for _, conn := range conns {
		conn.close(nil)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
