package recording

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MediaSink receives replayed wire frames. A live bridge session satisfies
// it, so recorded calls can be rerun against new pipeline builds without a
// carrier on the line.
type MediaSink interface {
	HandleMedia(payload []byte)
	HandleStop()
}

// ReplayOption adjusts replay behavior.
type ReplayOption func(*Replayer)

// WithSpeed scales playback timing: 2 halves every gap between frames, 0.5
// doubles it. Multipliers at or below zero are ignored.
func WithSpeed(multiplier float64) ReplayOption {
	return func(r *Replayer) {
		if multiplier > 0 {
			r.speed = multiplier
		}
	}
}

// Replayer streams a recorded frame log into a session with the original
// relative timing between frames.
type Replayer struct {
	path  string
	speed float64
}

// NewReplayer replays the frame log at path in real time unless an option
// changes the speed.
func NewReplayer(path string, opts ...ReplayOption) *Replayer {
	r := &Replayer{path: path, speed: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replay feeds every frame to sink, sleeping between frames to honor the
// recorded spacing. It returns after the stop line, at the end of the log,
// or when ctx is canceled. Logs from interrupted captures may lack a stop
// line; the sink still gets HandleStop.
func (r *Replayer) Replay(ctx context.Context, sink MediaSink) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open frame log: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	var (
		base  time.Time
		first = true
		start = time.Now()
		line  = 0
	)
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var fr frameRecord
		if err := json.Unmarshal(raw, &fr); err != nil {
			return fmt.Errorf("frame log line %d: %w", line, err)
		}
		if first {
			base, first = fr.Timestamp, false
		}
		if err := r.waitUntil(ctx, start, fr.Timestamp.Sub(base)); err != nil {
			return err
		}

		switch fr.Event {
		case frameEventMedia:
			payload, err := base64.StdEncoding.DecodeString(fr.Payload)
			if err != nil {
				return fmt.Errorf("frame log line %d: %w", line, err)
			}
			sink.HandleMedia(payload)
		case frameEventStop:
			sink.HandleStop()
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read frame log: %w", err)
	}
	sink.HandleStop()
	return nil
}

// waitUntil sleeps until the speed-scaled offset from the replay start has
// elapsed.
func (r *Replayer) waitUntil(ctx context.Context, start time.Time, offset time.Duration) error {
	due := time.Duration(float64(offset) / r.speed)
	wait := due - time.Since(start)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
