package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/CareBridge/agent"
	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/profile"
	"github.com/AltairaLabs/CareBridge/stt"
	"github.com/AltairaLabs/CareBridge/transcript"
	"github.com/AltairaLabs/CareBridge/tts"
)

// testChunkSamples keeps test chunks small: 160 mu-law bytes (20ms) per
// gate evaluation instead of the production half second.
const testChunkSamples = 160

type fakeSTT struct {
	mu      sync.Mutex
	calls   int
	results []string // consumed in order, last repeats
	err     error
}

func (f *fakeSTT) Name() string               { return "stt-fake" }
func (f *fakeSTT) SupportedFormats() []string { return []string{stt.FormatWAV} }

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ stt.TranscriptionConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.results) == 0 {
		return "", nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTTS struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeTTS) Name() string                        { return "tts-fake" }
func (f *fakeTTS) SupportedVoices() []tts.Voice        { return nil }
func (f *fakeTTS) SupportedFormats() []tts.AudioFormat { return []tts.AudioFormat{tts.FormatPCM8} }

func (f *fakeTTS) Synthesize(_ context.Context, text string, _ tts.SynthesisConfig) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	// 20ms of PCM16 at the telephone rate.
	return io.NopCloser(bytes.NewReader(make([]byte, 320))), nil
}

func (f *fakeTTS) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.texts)
}

func (f *fakeTTS) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeAgent struct {
	mu       sync.Mutex
	replies  []string // consumed in order, last repeats
	err      error
	contexts []agent.SessionContext
}

func (f *fakeAgent) Name() string { return "agent-fake" }

func (f *fakeAgent) Reply(_ context.Context, _ string, sc agent.SessionContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, sc)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

func (f *fakeAgent) Summarize(context.Context, []agent.Message) (string, error) {
	return "{}", nil
}

func (f *fakeAgent) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

func (f *fakeAgent) sessionContexts() []agent.SessionContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.contexts)
}

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	clears   int
	writeErr error
}

func (c *fakeConn) WriteMedia(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, slices.Clone(payload))
	return nil
}

func (c *fakeConn) WriteClear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) clearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

type fakeTap struct {
	mu     sync.Mutex
	chunks int
}

func (f *fakeTap) CallerAudio(_ string, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks++
}

func (f *fakeTap) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks
}

var (
	_ stt.Service   = (*fakeSTT)(nil)
	_ tts.Service   = (*fakeTTS)(nil)
	_ agent.Service = (*fakeAgent)(nil)
	_ MediaWriter   = (*fakeConn)(nil)
	_ AudioTap      = (*fakeTap)(nil)
)

// silenceWire returns a chunk of mu-law silence.
func silenceWire(t *testing.T, samples int) []byte {
	t.Helper()
	wire, err := audio.EncodeMuLaw(make([]byte, samples*2))
	require.NoError(t, err)
	return wire
}

// speechWire returns a speech-shaped mu-law chunk: 300 Hz tone in bursts,
// which clears the energy gate's RMS, zero-crossing, and dynamic-range
// checks.
func speechWire(t *testing.T, samples int) []byte {
	t.Helper()
	pcm := make([]byte, 0, samples*2)
	quarter := samples / 4
	for q := 0; q < 4; q++ {
		amp := 0.3
		if q%2 == 1 {
			amp = 0.03
		}
		for i := 0; i < quarter; i++ {
			sample := int16(amp * 32767 * math.Sin(2*math.Pi*300*float64(i)/8000))
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
		}
	}
	wire, err := audio.EncodeMuLaw(pcm)
	require.NoError(t, err)
	return wire
}

// sessionFixture wires a session to in-memory fakes. Tests mutate cfg and
// collab before the session is constructed.
type sessionFixture struct {
	s           *Session
	conn        *fakeConn
	sttSvc      *fakeSTT
	ttsSvc      *fakeTTS
	agentSvc    *fakeAgent
	transcripts *transcript.MemoryStore
	reports     chan CallReport

	cfg    SessionConfig
	collab Collaborators
}

func startSession(t *testing.T, mutate func(*sessionFixture)) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		conn:        &fakeConn{},
		sttSvc:      &fakeSTT{results: []string{"I am feeling fine today"}},
		ttsSvc:      &fakeTTS{},
		agentSvc:    &fakeAgent{replies: []string{"That's wonderful to hear. Did you sleep well?"}},
		transcripts: transcript.NewMemoryStore(),
		reports:     make(chan CallReport, 1),
	}

	gate := audio.DefaultGateParams()
	gate.Mode = audio.GateModeEnergy
	gate.CalibrationChunks = 1

	call := DefaultCallParams()
	call.ProfileTimeout = 250 * time.Millisecond
	call.TurnTimeout = 2 * time.Second

	f.cfg = SessionConfig{
		StreamSID: "MZtest",
		CallSID:   "CAtest",
		Caller:    "+15550100",
		Gate:      gate,
		Call:      call,
		Turns: TurnParams{
			ChunkSize:       testChunkSamples,
			SustainedChunks: 2,
			Cooldown:        time.Millisecond,
			SilenceChunks:   3,
			PromptGrace:     5 * time.Millisecond,
			MaxAttempts:     2,
		},
		Dispatcher: DispatcherParams{FrameSize: 160, FrameInterval: time.Millisecond},
		Synthesis:  tts.SynthesisConfig{Voice: "test", Format: tts.FormatPCM8, Speed: 1.0},
		Writer:     f.conn,
	}
	f.collab = Collaborators{
		STT:         f.sttSvc,
		TTS:         f.ttsSvc,
		Agent:       f.agentSvc,
		Transcripts: f.transcripts,
		OnEnded:     func(r CallReport) { f.reports <- r },
	}
	if mutate != nil {
		mutate(f)
	}

	s, err := NewSession(f.cfg, f.collab)
	require.NoError(t, err)
	s.tick = 20 * time.Millisecond
	f.s = s

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return f
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		3*time.Second, 2*time.Millisecond, "waiting for state %s", want)
}

func waitForDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not end, state %s", s.State())
	}
}

func receiveReport(t *testing.T, f *sessionFixture) CallReport {
	t.Helper()
	select {
	case r := <-f.reports:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no call report delivered")
		return CallReport{}
	}
}

// feedUtterance waits out the post-greeting cooldown, calibrates the gate
// with one silent chunk, then delivers sustained speech.
func (f *sessionFixture) feedUtterance(t *testing.T) {
	t.Helper()
	waitForState(t, f.s, StateListening)
	time.Sleep(10 * time.Millisecond)

	f.s.HandleMedia(silenceWire(t, testChunkSamples))
	speech := speechWire(t, testChunkSamples)
	f.s.HandleMedia(speech)
	f.s.HandleMedia(speech)
}

func TestNewSessionValidation(t *testing.T) {
	writer := &fakeConn{}
	collab := func() Collaborators {
		return Collaborators{STT: &fakeSTT{}, TTS: &fakeTTS{}, Agent: &fakeAgent{}}
	}

	t.Run("missing stt", func(t *testing.T) {
		c := collab()
		c.STT = nil
		_, err := NewSession(SessionConfig{Writer: writer}, c)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindSessionInit))
	})

	t.Run("missing tts", func(t *testing.T) {
		c := collab()
		c.TTS = nil
		_, err := NewSession(SessionConfig{Writer: writer}, c)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindSessionInit))
	})

	t.Run("missing agent", func(t *testing.T) {
		c := collab()
		c.Agent = nil
		_, err := NewSession(SessionConfig{Writer: writer}, c)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindSessionInit))
	})

	t.Run("missing writer", func(t *testing.T) {
		_, err := NewSession(SessionConfig{}, collab())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindSessionInit))
	})

	t.Run("invalid turn params", func(t *testing.T) {
		_, err := NewSession(SessionConfig{Writer: writer, Turns: TurnParams{ChunkSize: -1}}, collab())
		assert.Error(t, err)
	})
}

func TestNewSessionDefaults(t *testing.T) {
	s, err := NewSession(SessionConfig{Writer: &fakeConn{}},
		Collaborators{STT: &fakeSTT{}, TTS: &fakeTTS{}, Agent: &fakeAgent{}})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID(), "stream SID is generated when absent")
	assert.Equal(t, s.ID(), s.CallSID(), "call SID falls back to the stream SID")
	assert.Equal(t, StateInitializing, s.State())
	assert.Equal(t, DefaultMaxDuration, s.call.MaxDuration)
	assert.Equal(t, DefaultGreeting, s.call.Greeting)
	assert.Equal(t, DefaultChunkSize, s.turns.Params().ChunkSize)
}

func TestSessionGreetsThenListens(t *testing.T) {
	f := startSession(t, nil)

	waitForState(t, f.s, StateListening)

	spoken := f.ttsSvc.spoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, DefaultGreeting, spoken[0])
	assert.Greater(t, f.conn.frameCount(), 0, "greeting audio reached the wire")
}

func TestSessionRunsTurn(t *testing.T) {
	f := startSession(t, nil)

	f.feedUtterance(t)

	require.Eventually(t, func() bool { return f.sttSvc.callCount() == 1 },
		3*time.Second, 2*time.Millisecond, "sustained speech should start a turn")
	require.Eventually(t, func() bool { return f.ttsSvc.spokenCount() == 2 },
		3*time.Second, 2*time.Millisecond, "the reply should be synthesized")
	waitForState(t, f.s, StateListening)

	assert.Equal(t, 1, f.agentSvc.replyCount())
	spoken := f.ttsSvc.spoken()
	assert.Equal(t, "That's wonderful to hear. Did you sleep well?", spoken[1])

	entries, err := f.transcripts.List(context.Background(), "MZtest")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, agent.RoleAssistant, entries[0].Role)
	assert.Equal(t, DefaultGreeting, entries[0].Text)
	assert.Equal(t, agent.RoleUser, entries[1].Role)
	assert.Equal(t, "I am feeling fine today", entries[1].Text)
	assert.Equal(t, agent.RoleAssistant, entries[2].Role)
}

func TestSessionPersonalizesFromProfile(t *testing.T) {
	profiles := profile.NewMemoryStore()
	require.NoError(t, profiles.Add(&profile.CallerProfile{
		ID:        "senior-001",
		FirstName: "Margaret",
		LastName:  "Chen",
		Phone:     "+15550100",
	}))

	f := startSession(t, func(f *sessionFixture) {
		f.collab.Profiles = profiles
	})

	f.feedUtterance(t)
	require.Eventually(t, func() bool { return f.agentSvc.replyCount() == 1 },
		3*time.Second, 2*time.Millisecond)

	contexts := f.agentSvc.sessionContexts()
	require.Len(t, contexts, 1)
	assert.Contains(t, contexts[0].SystemPrompt, "Margaret",
		"the persona prompt carries the caller's name")
}

func TestSessionUnknownCallerIsUnpersonalized(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.collab.Profiles = profile.NewMemoryStore() // empty roster
	})

	f.feedUtterance(t)
	require.Eventually(t, func() bool { return f.agentSvc.replyCount() == 1 },
		3*time.Second, 2*time.Millisecond)

	contexts := f.agentSvc.sessionContexts()
	require.Len(t, contexts, 1)
	assert.Empty(t, contexts[0].SystemPrompt, "no persona without a profile")
}

func TestSessionEmptyTranscriptIsSilence(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.sttSvc.results = []string{""}
	})

	f.feedUtterance(t)

	require.Eventually(t, func() bool { return f.sttSvc.callCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.agentSvc.replyCount(), "no agent call without recognized speech")
	assert.Equal(t, 1, f.ttsSvc.spokenCount(), "greeting only")
	assert.Equal(t, StateListening, f.s.State())
}

func TestSessionAgentFailureKeepsListening(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.agentSvc.err = errors.New("rate limited")
	})

	f.feedUtterance(t)

	require.Eventually(t, func() bool { return f.agentSvc.replyCount() == 1 },
		3*time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, f.ttsSvc.spokenCount(), "failed turn speaks nothing")
	assert.Equal(t, StateListening, f.s.State(), "session survives the failed turn")
}

func TestSessionExitPhraseEndsCall(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.sttSvc.results = []string{"okay goodbye"}
	})

	f.feedUtterance(t)
	waitForDone(t, f.s)

	r := receiveReport(t, f)
	assert.Equal(t, "exit_phrase", r.Reason)
	assert.Equal(t, 1, r.Turns)
	assert.Equal(t, "MZtest", r.SessionID)
	assert.Equal(t, "CAtest", r.CallSID)

	assert.Equal(t, 0, f.agentSvc.replyCount(), "exit phrases bypass the agent")
	spoken := f.ttsSvc.spoken()
	require.Len(t, spoken, 2)
	assert.Equal(t, DefaultFarewell, spoken[1])

	entries, err := f.transcripts.List(context.Background(), "MZtest")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "okay goodbye", entries[1].Text)
	assert.Equal(t, DefaultFarewell, entries[2].Text)
}

func TestSessionAgentFarewellEndsCall(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.agentSvc.replies = []string{"It was lovely chatting with you. Take care!"}
	})

	f.feedUtterance(t)
	waitForDone(t, f.s)

	r := receiveReport(t, f)
	assert.Equal(t, "agent_farewell", r.Reason)
	assert.Equal(t, 1, r.Turns)
	require.Len(t, r.History, 3, "greeting, caller turn, farewell reply")
	assert.Equal(t, agent.RoleAssistant, r.History[0].Role)
	assert.Equal(t, agent.RoleUser, r.History[1].Role)
	assert.Equal(t, "It was lovely chatting with you. Take care!", r.History[2].Content)
}

func TestSessionSilenceEscalatesToTermination(t *testing.T) {
	f := startSession(t, nil)

	waitForState(t, f.s, StateListening)
	time.Sleep(10 * time.Millisecond)

	quiet := silenceWire(t, testChunkSamples)
	deadline := time.Now().Add(3 * time.Second)
	for f.s.State() != StateEnded {
		require.True(t, time.Now().Before(deadline), "silence never exhausted the session")
		f.s.HandleMedia(quiet)
		time.Sleep(3 * time.Millisecond)
	}
	waitForDone(t, f.s)

	spoken := f.ttsSvc.spoken()
	require.Len(t, spoken, 4, "greeting, two prompts, no-response farewell")
	assert.Equal(t, DefaultReengagementPrompt, spoken[1])
	assert.Equal(t, DefaultReengagementPrompt, spoken[2])
	assert.Equal(t, DefaultNoResponseFarewell, spoken[3])
	assert.Equal(t, 1, f.conn.clearCount(), "queued audio is flushed before the farewell")

	select {
	case r := <-f.reports:
		t.Fatalf("no report expected for a zero-turn call, got %+v", r)
	default:
	}
}

func TestSessionStop(t *testing.T) {
	f := startSession(t, nil)
	waitForState(t, f.s, StateListening)

	f.s.HandleStop()
	waitForDone(t, f.s)
	assert.Equal(t, StateEnded, f.s.State())

	// Late events after the end are ignored.
	f.s.HandleStop()
	f.s.HandleMedia(silenceWire(t, testChunkSamples))
}

func TestSessionDurationPolicy(t *testing.T) {
	f := startSession(t, func(f *sessionFixture) {
		f.cfg.Call.WarnAfter = 120 * time.Millisecond
		f.cfg.Call.MaxDuration = 320 * time.Millisecond
	})

	waitForDone(t, f.s)

	spoken := f.ttsSvc.spoken()
	require.Len(t, spoken, 3, "greeting, time warning, time-up farewell")
	assert.Equal(t, DefaultTimeWarning, spoken[1])
	assert.Equal(t, DefaultTimeUpFarewell, spoken[2])
	assert.Equal(t, 1, f.conn.clearCount())
}

func TestSessionTransportFailureEndsCall(t *testing.T) {
	bad := &fakeConn{writeErr: errors.New("connection reset")}
	f := startSession(t, func(f *sessionFixture) {
		f.conn = bad
		f.cfg.Writer = bad
	})

	waitForDone(t, f.s)

	assert.Equal(t, StateEnded, f.s.State())
	assert.Equal(t, 1, f.ttsSvc.spokenCount(), "greeting was synthesized before the write failed")
	assert.Equal(t, 0, bad.frameCount())
}

func TestSessionInboundFailureEndsCall(t *testing.T) {
	f := startSession(t, nil)

	f.feedUtterance(t)
	require.Eventually(t, func() bool { return f.ttsSvc.spokenCount() == 2 },
		3*time.Second, 2*time.Millisecond, "reply spoken before the stream fails")

	f.s.HandleTransportError(errors.New("websocket: close 1006"))
	waitForDone(t, f.s)

	report := receiveReport(t, f)
	assert.Equal(t, "transport_error", report.Reason)
	assert.Equal(t, 1, report.Turns)

	// Duplicate failure reports after the end are no-ops.
	f.s.HandleTransportError(errors.New("late"))
}

func TestSessionAudioTap(t *testing.T) {
	tap := &fakeTap{}
	f := startSession(t, func(f *sessionFixture) {
		f.collab.Tap = tap
	})

	f.feedUtterance(t)

	require.Eventually(t, func() bool { return tap.chunkCount() >= 3 },
		3*time.Second, 2*time.Millisecond, "every decoded chunk reaches the tap")
}

func TestSessionMediaQueueDrops(t *testing.T) {
	s, err := NewSession(SessionConfig{Writer: &fakeConn{}},
		Collaborators{STT: &fakeSTT{}, TTS: &fakeTTS{}, Agent: &fakeAgent{}})
	require.NoError(t, err)

	payload := []byte{0xff}
	for i := 0; i < mediaQueueFrames+40; i++ {
		s.HandleMedia(payload)
	}
	assert.Equal(t, int64(40), s.dropped.Load(), "overflow frames are dropped, not blocked on")
}
