package bridge

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/CareBridge/audio"
)

// Default dispatcher framing: 160 bytes of mu-law every 20ms is exactly
// real time at 8 kHz.
const (
	DefaultFrameSize     = 160
	DefaultFrameInterval = 20 * time.Millisecond

	// dispatchBurstFrames is how many frames may go out immediately before
	// pacing engages, priming the far end's jitter buffer.
	dispatchBurstFrames = 5
)

// MediaWriter delivers outbound wire audio to the caller. The transport
// implements it on top of the WebSocket connection.
type MediaWriter interface {
	// WriteMedia sends one frame of wire-format audio.
	WriteMedia(ctx context.Context, payload []byte) error

	// WriteClear tells the far end to drop any audio it has queued but
	// not yet played. Sent before termination farewells.
	WriteClear(ctx context.Context) error
}

// DispatcherParams configures outbound frame pacing.
type DispatcherParams struct {
	// FrameSize is the number of wire bytes per outbound frame
	// (default: 160).
	FrameSize int

	// FrameInterval is the playback duration of one frame, and therefore
	// the pacing interval (default: 20ms).
	FrameInterval time.Duration
}

// DefaultDispatcherParams returns real-time pacing for 8 kHz mu-law.
func DefaultDispatcherParams() DispatcherParams {
	return DispatcherParams{
		FrameSize:     DefaultFrameSize,
		FrameInterval: DefaultFrameInterval,
	}
}

// Validate checks that dispatcher parameters are within acceptable ranges.
func (p DispatcherParams) Validate() error {
	if p.FrameSize <= 0 {
		return &audio.ValidationError{Field: "FrameSize", Message: "must be positive"}
	}
	if p.FrameInterval <= 0 {
		return &audio.ValidationError{Field: "FrameInterval", Message: "must be positive"}
	}
	return nil
}

// Dispatcher streams synthesized wire audio to the caller in fixed frames
// at real-time rate. Pacing keeps the telephony provider's receive buffer
// from overrunning while a short initial burst keeps start latency low.
type Dispatcher struct {
	writer  MediaWriter
	params  DispatcherParams
	limiter *rate.Limiter
}

// NewDispatcher creates a Dispatcher writing through the given MediaWriter.
func NewDispatcher(writer MediaWriter, params DispatcherParams) (*Dispatcher, error) {
	if writer == nil {
		return nil, NewBridgeError("dispatch", KindTransport, "media writer is required", nil)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		writer:  writer,
		params:  params,
		limiter: rate.NewLimiter(rate.Every(params.FrameInterval), dispatchBurstFrames),
	}, nil
}

// Send splits wire audio into frames and transmits each after the rate
// limiter admits it. A write failure aborts the remaining frames and is
// fatal to the session; context cancellation aborts between frames and is
// not.
func (d *Dispatcher) Send(ctx context.Context, wire []byte) error {
	for off := 0; off < len(wire); off += d.params.FrameSize {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		end := off + d.params.FrameSize
		if end > len(wire) {
			end = len(wire)
		}
		if err := d.writer.WriteMedia(ctx, wire[off:end]); err != nil {
			return NewBridgeError("dispatch", KindTransport, "frame write failed", err)
		}
	}
	return nil
}
