// Package recording captures calls for offline review and replay. Each
// recorded call produces a WAV file of the decoded caller audio and a JSONL
// frame log of the wire traffic, and the shared manifest.jsonl in the
// recordings directory gains one line per finished call. Capture is off
// unless the bridge is wired with a Recorder.
package recording

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/logger"
)

const (
	manifestName = "manifest.jsonl"

	dirPerm  = 0o750
	filePerm = 0o600

	// captureQueueFrames is the per-call hand-off queue depth, about five
	// seconds of wire audio. Frames beyond it are dropped, never blocked
	// on, so a slow disk cannot back-pressure the session loop.
	captureQueueFrames = 256

	// maxLogLine bounds one frame log line when scanning it back.
	maxLogLine = 1 << 20
)

// Frame log event names, matching the wire protocol's event field.
const (
	frameEventStart = "start"
	frameEventMedia = "media"
	frameEventStop  = "stop"
)

// frameRecord is one line of a frame log. Media payloads hold the mu-law
// wire bytes, base64 encoded.
type frameRecord struct {
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	CallSID   string    `json:"call_sid,omitempty"`
	StreamSID string    `json:"stream_sid,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// ManifestEntry is one line of manifest.jsonl, describing a finished call.
type ManifestEntry struct {
	CallSID       string        `json:"call_sid"`
	StreamSID     string        `json:"stream_sid,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	Duration      time.Duration `json:"duration"`
	AudioFile     string        `json:"audio_file"`
	FrameFile     string        `json:"frame_file"`
	AudioBytes    int64         `json:"audio_bytes"`
	DroppedFrames int           `json:"dropped_frames,omitempty"`
}

// Recorder creates per-call captures under one directory. Multiple bridge
// processes may share a directory: manifest appends run under an exclusive
// file lock, and capture file names carry the call SID.
type Recorder struct {
	dir        string
	sampleRate int
}

// NewRecorder prepares dir and returns a Recorder that writes into it.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		return nil, errors.New("recording: empty directory")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Recorder{dir: dir, sampleRate: audio.DefaultWireSampleRate}, nil
}

// Dir returns the recordings directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Begin opens the capture files for one call and starts its writer. The
// returned Capture must be closed when the call ends, or its WAV header
// stays unpatched and the manifest never learns about the call.
func (r *Recorder) Begin(callSID, streamSID string) (*Capture, error) {
	if callSID == "" {
		return nil, errors.New("recording: empty call SID")
	}
	base := sanitizeName(callSID)
	c := &Capture{
		callSID:    callSID,
		streamSID:  streamSID,
		rec:        r,
		wavPath:    filepath.Join(r.dir, base+".wav"),
		framesPath: filepath.Join(r.dir, base+".frames.jsonl"),
		frames:     make(chan tappedFrame, captureQueueFrames),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		started:    time.Now().UTC(),
	}

	wav, err := createWAVFile(c.wavPath, r.sampleRate)
	if err != nil {
		return nil, err
	}
	log, err := openFrameLog(c.framesPath)
	if err != nil {
		_ = wav.Close()
		_ = os.Remove(c.wavPath)
		return nil, err
	}
	c.wav, c.log = wav, log

	start := frameRecord{
		Timestamp: c.started,
		Event:     frameEventStart,
		CallSID:   callSID,
		StreamSID: streamSID,
	}
	if err := log.append(start); err != nil {
		_ = log.Close()
		_ = wav.Close()
		_ = os.Remove(c.framesPath)
		_ = os.Remove(c.wavPath)
		return nil, fmt.Errorf("write start frame: %w", err)
	}

	go c.writeLoop()
	return c, nil
}

// appendManifest adds one line to the directory manifest. The append runs
// under an exclusive lock on the manifest file so concurrent writers
// interleave whole lines.
func (r *Recorder) appendManifest(entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(r.dir, manifestName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := lockFileExclusive(f); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	defer func() { _ = unlockFile(f) }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return nil
}

// LoadManifest reads every entry of a recordings directory manifest. A
// missing manifest means no finished calls, not an error.
func LoadManifest(dir string) ([]ManifestEntry, error) {
	f, err := os.Open(filepath.Join(dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []ManifestEntry
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e ManifestEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

// tappedFrame carries one decoded frame and its arrival time to the writer.
type tappedFrame struct {
	ts  time.Time
	pcm []byte
}

// Capture records one call. It implements the bridge audio tap: CallerAudio
// hands frames to a writer goroutine and never blocks the session loop.
type Capture struct {
	callSID    string
	streamSID  string
	rec        *Recorder
	wavPath    string
	framesPath string

	frames     chan tappedFrame
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error

	started time.Time
	dropped atomic.Int64

	// Writer goroutine state. Close reads it only after writerDone.
	wav      *wavFile
	log      *frameLog
	pcmBytes int64
	writeErr error
}

// CallerAudio receives decoded caller audio from the session. It never
// blocks; frames beyond the queue depth are dropped and counted.
func (c *Capture) CallerAudio(_ string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.frames <- tappedFrame{ts: time.Now().UTC(), pcm: pcm}:
	default:
		c.dropped.Add(1)
	}
}

// Close drains pending frames, patches the WAV header, appends the stop
// line, and records the call in the directory manifest. Safe to call more
// than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.writerDone
		c.closeErr = c.finalize()
	})
	return c.closeErr
}

func (c *Capture) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case f := <-c.frames:
			c.write(f)
		case <-c.done:
			for {
				select {
				case f := <-c.frames:
					c.write(f)
				default:
					return
				}
			}
		}
	}
}

// write appends one frame to the WAV file and the frame log. After the
// first write failure the capture goes quiet and drops the rest.
func (c *Capture) write(f tappedFrame) {
	if c.writeErr != nil {
		return
	}
	if err := c.wav.appendPCM(f.pcm); err != nil {
		c.fail("wav", err)
		return
	}
	c.pcmBytes += int64(len(f.pcm))

	wire, err := audio.EncodeMuLaw(f.pcm)
	if err != nil {
		c.fail("encode", err)
		return
	}
	rec := frameRecord{
		Timestamp: f.ts,
		Event:     frameEventMedia,
		Payload:   base64.StdEncoding.EncodeToString(wire),
	}
	if err := c.log.append(rec); err != nil {
		c.fail("frame log", err)
	}
}

func (c *Capture) fail(op string, err error) {
	c.writeErr = fmt.Errorf("%s: %w", op, err)
	logger.Warn("call capture failed, dropping remaining audio",
		"call_sid", c.callSID,
		"error", c.writeErr)
}

func (c *Capture) finalize() error {
	ended := time.Now().UTC()
	var errs []error
	if c.writeErr != nil {
		errs = append(errs, c.writeErr)
	}
	if err := c.log.append(frameRecord{Timestamp: ended, Event: frameEventStop}); err != nil {
		errs = append(errs, fmt.Errorf("write stop frame: %w", err))
	}
	if err := c.log.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.wav.Close(); err != nil {
		errs = append(errs, err)
	}

	dropped := c.dropped.Load()
	if dropped > 0 {
		logger.Warn("call capture dropped frames",
			"call_sid", c.callSID,
			"dropped", dropped)
	}

	entry := ManifestEntry{
		CallSID:       c.callSID,
		StreamSID:     c.streamSID,
		StartedAt:     c.started,
		EndedAt:       ended,
		Duration:      ended.Sub(c.started),
		AudioFile:     filepath.Base(c.wavPath),
		FrameFile:     filepath.Base(c.framesPath),
		AudioBytes:    c.pcmBytes,
		DroppedFrames: int(dropped),
	}
	if err := c.rec.appendManifest(entry); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// wavFile streams PCM to disk behind a standard 44-byte header. The RIFF
// and data chunk sizes are patched when the file is closed.
type wavFile struct {
	f         *os.File
	w         *bufio.Writer
	dataBytes int
}

func createWAVFile(path string, sampleRate int) (*wavFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(audio.WrapPCMAsWAV(nil, sampleRate, 1, 16)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return &wavFile{f: f, w: w}, nil
}

func (wf *wavFile) appendPCM(pcm []byte) error {
	n, err := wf.w.Write(pcm)
	wf.dataBytes += n
	return err
}

func (wf *wavFile) Close() error {
	err := wf.w.Flush()

	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(36+wf.dataBytes))
	if _, werr := wf.f.WriteAt(sz[:], 4); werr != nil && err == nil {
		err = werr
	}
	binary.LittleEndian.PutUint32(sz[:], uint32(wf.dataBytes))
	if _, werr := wf.f.WriteAt(sz[:], 40); werr != nil && err == nil {
		err = werr
	}

	if cerr := wf.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// frameLog appends JSONL records to a capture's frame log file.
type frameLog struct {
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

func openFrameLog(path string) (*frameLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("create frame log: %w", err)
	}
	w := bufio.NewWriter(f)
	return &frameLog{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (fl *frameLog) append(rec frameRecord) error {
	return fl.enc.Encode(rec)
}

func (fl *frameLog) Close() error {
	err := fl.w.Flush()
	if cerr := fl.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close frame log: %w", err)
	}
	return nil
}

// sanitizeName keeps wire-supplied call SIDs safe to use as file names.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		}
		return '_'
	}, s)
}
