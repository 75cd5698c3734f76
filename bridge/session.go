package bridge

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/CareBridge/agent"
	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/events"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/profile"
	"github.com/AltairaLabs/CareBridge/stt"
	"github.com/AltairaLabs/CareBridge/transcript"
	"github.com/AltairaLabs/CareBridge/tts"
)

const (
	// mediaQueueFrames is the inbound frame queue depth, about five
	// seconds of wire audio. Frames beyond it are dropped, never blocked
	// on, so a stalled session cannot back-pressure the transport.
	mediaQueueFrames = 256

	// resultQueueSize bounds completion reports from session workers. At
	// most one turn and one speech operation are ever in flight.
	resultQueueSize = 8

	// recentSummaryCount is how many past call summaries seed the agent
	// persona.
	recentSummaryCount = 3

	// defaultTick drives the duration policy checks.
	defaultTick = time.Second
)

// Turn pipeline stages, used in events, metrics, and failure logs.
const (
	stageTranscribe = "transcribe"
	stageReply      = "reply"
	stageSynthesize = "synthesize"
)

// Session end reasons.
const (
	reasonRemoteStop = "remote_stop"
	reasonShutdown   = "shutdown"
	reasonTransport  = "transport_error"
	reasonNoResponse = "no_response"
	reasonTimeLimit  = "time_limit"

	endReasonExit     = "exit_phrase"
	endReasonFarewell = "agent_farewell"
)

// AudioTap receives decoded caller audio for capture. Calls arrive on the
// session goroutine, so implementations must hand work off instead of
// blocking.
type AudioTap interface {
	CallerAudio(sessionID string, pcm []byte)
}

// Collaborators are the external services a session converses through.
// STT, TTS, Agent, and the MediaWriter in SessionConfig are required;
// everything else degrades gracefully when nil.
type Collaborators struct {
	STT   stt.Service
	TTS   tts.Service
	Agent agent.Service

	// Profiles personalizes calls. Lookup failures never abort a call.
	Profiles profile.Store

	// Transcripts records what was said. Append failures are logged only.
	Transcripts transcript.Store

	// Bus receives session events for metrics and tracing.
	Bus *events.EventBus

	// Tap captures decoded caller audio for recording.
	Tap AudioTap

	// OnEnded runs after a call with at least one caller turn ends. It is
	// invoked on its own goroutine.
	OnEnded func(CallReport)
}

// CallReport summarizes an ended call for post-call processing.
type CallReport struct {
	SessionID string
	CallSID   string
	Caller    string
	Profile   *profile.CallerProfile
	History   []agent.Message
	StartedAt time.Time
	Duration  time.Duration
	Reason    string
	Turns     int
	Prompts   int
}

// SessionConfig configures one call session. Zero-valued parameter structs
// take their package defaults.
type SessionConfig struct {
	// StreamSID identifies the media stream; it becomes the session ID.
	StreamSID string

	// CallSID is the telephony provider's call identifier.
	CallSID string

	// Caller is the caller's phone number, when the stream carries it.
	Caller string

	Gate       audio.GateParams
	Transcoder audio.TranscoderParams
	Turns      TurnParams
	Call       CallParams
	Dispatcher DispatcherParams

	Transcription stt.TranscriptionConfig
	Synthesis     tts.SynthesisConfig

	// Writer delivers outbound frames to the caller.
	Writer MediaWriter

	// TurnSem bounds concurrent provider pipelines across all sessions.
	// Nil creates a per-session bound of one.
	TurnSem *semaphore.Weighted
}

// Session is the state machine for one live call. A single goroutine (Run)
// owns all mutable state; collaborator calls and outbound audio run on
// worker goroutines that report back through a channel, so the event loop
// stays responsive to inbound frames and stop signals.
type Session struct {
	id      string
	callSID string
	caller  string

	call   CallParams
	sttCfg stt.TranscriptionConfig
	ttsCfg tts.SynthesisConfig

	transcoder *audio.Transcoder
	gate       *audio.Gate
	turns      *TurnController
	dispatcher *Dispatcher
	writer     MediaWriter
	turnSem    *semaphore.Weighted

	sttSvc      stt.Service
	ttsSvc      tts.Service
	agentSvc    agent.Service
	profiles    profile.Store
	transcripts transcript.Store
	emitter     *events.Emitter
	tap         AudioTap
	onEnded     func(CallReport)

	ctx      context.Context
	cancel   context.CancelFunc
	media    chan []byte
	results  chan result
	stopCh   chan struct{}
	stopOnce sync.Once
	failCh   chan struct{}
	failOnce sync.Once
	failErr  error
	done     chan struct{}
	closed   atomic.Bool
	mirror   atomic.Int32
	dropped  atomic.Int64
	tick     time.Duration

	// Event-loop state. Touched only by the Run goroutine.
	state       State
	busy        bool
	buffer      []byte
	assembly    []byte
	profile     *profile.CallerProfile
	persona     string
	history     []agent.Message
	userTurns   int
	startedAt   time.Time
	timeWarned  bool
	endReason   string
	pendingEnd  string
	speakCancel context.CancelFunc
}

// speechPurpose distinguishes what a finished speech operation was saying.
type speechPurpose int

const (
	purposeGreeting speechPurpose = iota
	purposeReply
	purposePrompt
	purposeWarning
	purposeFarewell
)

func (p speechPurpose) String() string {
	switch p {
	case purposeGreeting:
		return "greeting"
	case purposeReply:
		return "reply"
	case purposePrompt:
		return "prompt"
	case purposeWarning:
		return "warning"
	case purposeFarewell:
		return "farewell"
	default:
		return "unknown"
	}
}

type asyncOp int

const (
	opBootstrap asyncOp = iota
	opTurn
	opSpeech
)

// result is a completion report from a session worker goroutine.
type result struct {
	op      asyncOp
	err     error
	purpose speechPurpose
	text    string
	prof    *profile.CallerProfile
	persona string
	turn    *turnOutcome
}

// turnOutcome is what one turn pipeline produced.
type turnOutcome struct {
	turnID     string
	started    time.Time
	transcript string
	reply      string
	audio      []byte
	endReason  string
	stage      string
	err        error

	transcribeDur time.Duration
	replyDur      time.Duration
	synthDur      time.Duration
}

// NewSession creates a session for one media stream. It validates all
// parameters up front so a live call never trips over configuration.
func NewSession(cfg SessionConfig, collab Collaborators) (*Session, error) {
	if collab.STT == nil {
		return nil, NewBridgeError("session", KindSessionInit, "stt service is required", nil)
	}
	if collab.TTS == nil {
		return nil, NewBridgeError("session", KindSessionInit, "tts service is required", nil)
	}
	if collab.Agent == nil {
		return nil, NewBridgeError("session", KindSessionInit, "agent service is required", nil)
	}
	if cfg.Writer == nil {
		return nil, NewBridgeError("session", KindSessionInit, "media writer is required", nil)
	}

	if cfg.StreamSID == "" {
		cfg.StreamSID = uuid.NewString()
	}
	if cfg.CallSID == "" {
		cfg.CallSID = cfg.StreamSID
	}
	if cfg.Gate == (audio.GateParams{}) {
		cfg.Gate = audio.DefaultGateParams()
	}
	if cfg.Turns == (TurnParams{}) {
		cfg.Turns = DefaultTurnParams()
	}
	if cfg.Dispatcher == (DispatcherParams{}) {
		cfg.Dispatcher = DefaultDispatcherParams()
	}
	if cfg.Transcription == (stt.TranscriptionConfig{}) {
		cfg.Transcription = stt.DefaultTranscriptionConfig()
	}
	if cfg.Synthesis == (tts.SynthesisConfig{}) {
		cfg.Synthesis = tts.DefaultSynthesisConfig()
	}
	cfg.Call = cfg.Call.withDefaults()
	if err := cfg.Call.Validate(); err != nil {
		return nil, err
	}

	if cfg.Transcoder == (audio.TranscoderParams{}) {
		cfg.Transcoder = audio.DefaultTranscoderParams()
	}
	// Raw PCM synthesis declares its own rate; align the transcoder so
	// resampling matches what the provider actually sends.
	if cfg.Synthesis.Format.Name == "pcm" && cfg.Synthesis.Format.SampleRate > 0 {
		cfg.Transcoder.SynthSampleRate = cfg.Synthesis.Format.SampleRate
		if cfg.Synthesis.Format.Channels > 0 {
			cfg.Transcoder.SynthChannels = cfg.Synthesis.Format.Channels
		}
	}

	transcoder, err := audio.NewTranscoder(cfg.Transcoder)
	if err != nil {
		return nil, err
	}
	gate, err := audio.NewGate(cfg.Gate)
	if err != nil {
		return nil, err
	}
	turns, err := NewTurnController(cfg.Turns)
	if err != nil {
		return nil, err
	}
	dispatcher, err := NewDispatcher(cfg.Writer, cfg.Dispatcher)
	if err != nil {
		return nil, err
	}

	sem := cfg.TurnSem
	if sem == nil {
		sem = semaphore.NewWeighted(1)
	}

	s := &Session{
		id:          cfg.StreamSID,
		callSID:     cfg.CallSID,
		caller:      cfg.Caller,
		call:        cfg.Call,
		sttCfg:      cfg.Transcription,
		ttsCfg:      cfg.Synthesis,
		transcoder:  transcoder,
		gate:        gate,
		turns:       turns,
		dispatcher:  dispatcher,
		writer:      cfg.Writer,
		turnSem:     sem,
		sttSvc:      collab.STT,
		ttsSvc:      collab.TTS,
		agentSvc:    collab.Agent,
		profiles:    collab.Profiles,
		transcripts: collab.Transcripts,
		emitter:     events.NewEmitter(collab.Bus, cfg.CallSID, cfg.StreamSID),
		tap:         collab.Tap,
		onEnded:     collab.OnEnded,
		media:       make(chan []byte, mediaQueueFrames),
		results:     make(chan result, resultQueueSize),
		stopCh:      make(chan struct{}),
		failCh:      make(chan struct{}),
		done:        make(chan struct{}),
		tick:        defaultTick,
		state:       StateInitializing,
	}
	s.mirror.Store(int32(StateInitializing))
	return s, nil
}

// ID returns the session identifier (the media stream SID).
func (s *Session) ID() string {
	return s.id
}

// CallSID returns the telephony provider's call identifier.
func (s *Session) CallSID() string {
	return s.callSID
}

// State returns a snapshot of the current session state. It is safe to
// call from any goroutine.
func (s *Session) State() State {
	return State(s.mirror.Load())
}

// Done returns a channel closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleMedia queues one decoded wire payload for the session. It never
// blocks; frames beyond the queue depth are dropped and counted.
func (s *Session) HandleMedia(payload []byte) {
	if s.closed.Load() || len(payload) == 0 {
		return
	}
	select {
	case s.media <- payload:
	default:
		s.dropped.Add(1)
	}
}

// HandleStop signals that the far end stopped the stream. The session ends
// immediately from any state; in-flight work is abandoned.
func (s *Session) HandleStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// HandleTransportError signals that the inbound stream failed: a dropped
// connection or an undecodable frame. The session ends immediately; only
// the first error is kept.
func (s *Session) HandleTransportError(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failCh)
	})
}

// Run drives the session until it ends: greeting, listening, turns, and
// termination policy all execute on this goroutine. It returns nil when
// the session ends for any call-level reason; the error return is reserved
// for the context.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(logger.WithSession(ctx, s.id))
	s.ctx = runCtx
	s.cancel = cancel
	defer cancel()

	s.startedAt = time.Now()
	logger.DebugContext(runCtx, "session starting", "call_sid", s.callSID)
	s.launchBootstrap()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for s.state != StateEnded {
		select {
		case <-runCtx.Done():
			s.endSession(reasonShutdown)
		case <-s.stopCh:
			s.endSession(reasonRemoteStop)
		case <-s.failCh:
			logger.ErrorContext(runCtx, "inbound stream failed", "error", s.failErr)
			s.endSession(reasonTransport)
		case payload := <-s.media:
			s.onMedia(payload)
		case r := <-s.results:
			s.onResult(r)
		case <-ticker.C:
			s.checkDuration()
		}
	}
	return nil
}

// report delivers a worker result to the event loop, dropping it if the
// session ended first.
func (s *Session) report(r result) {
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
}

// launchBootstrap looks up the caller profile off the event loop. The
// session greets unpersonalized when the lookup fails or times out.
func (s *Session) launchBootstrap() {
	go func() {
		r := result{op: opBootstrap}
		if s.profiles != nil && s.caller != "" {
			ctx, cancel := context.WithTimeout(s.ctx, s.call.ProfileTimeout)
			defer cancel()

			prof, err := s.profiles.LookupByPhone(ctx, s.caller)
			switch {
			case err == nil:
				r.prof = prof
				summaries, herr := s.profiles.RecentSummaries(ctx, prof.ID, recentSummaryCount)
				if herr != nil {
					logger.WarnContext(ctx, "recent summaries unavailable", "error", herr)
				}
				r.persona = profile.PersonaPrompt(prof, summaries)
			case errors.Is(err, profile.ErrNotFound):
				logger.DebugContext(ctx, "no profile for caller")
			default:
				r.err = NewBridgeError("bootstrap", KindSessionInit, "profile lookup failed", err)
			}
		}
		s.report(r)
	}()
}

func (s *Session) onResult(r result) {
	switch r.op {
	case opBootstrap:
		s.finishBootstrap(r)
	case opTurn:
		s.finishTurn(r.turn)
	case opSpeech:
		s.finishSpeech(r)
	}
}

func (s *Session) finishBootstrap(r result) {
	if s.state != StateInitializing {
		return
	}
	if r.err != nil {
		logger.Warn("continuing unpersonalized", "session_id", s.id, "error", r.err)
	}
	s.profile = r.prof
	s.persona = r.persona

	s.emitter.CallStarted(logger.RedactPhone(s.caller), s.profile != nil)
	logger.CallEvent(s.id, "call_started",
		"caller", logger.RedactPhone(s.caller),
		"has_profile", s.profile != nil,
	)
	s.transition(StateGreeting, "start")
	s.launchLine(s.call.Greeting, purposeGreeting)
}

// onMedia assembles inbound payloads into gate-sized chunks.
func (s *Session) onMedia(payload []byte) {
	switch s.state {
	case StateEnded, StateTerminating:
		return
	}

	s.assembly = append(s.assembly, payload...)
	size := s.turns.Params().ChunkSize
	for len(s.assembly) >= size {
		s.processChunk(s.assembly[:size:size])
		s.assembly = append(s.assembly[:0], s.assembly[size:]...)
	}
}

// processChunk runs one chunk through decode, calibration, the gate, and
// the turn-taking rules.
func (s *Session) processChunk(chunk []byte) {
	pcm, err := s.transcoder.DecodePayload(chunk)
	if err != nil {
		logger.Debug("dropping undecodable chunk", "session_id", s.id, "error", err)
		return
	}
	if s.tap != nil {
		s.tap.CallerAudio(s.id, pcm)
	}

	// While the agent is speaking, cooling down, or the session is not in
	// a listening phase, inbound audio only trains calibration.
	if !s.gateable() || s.turns.Muted() {
		if !s.gate.Calibrated() {
			s.gate.Evaluate(pcm)
		}
		return
	}

	d := s.gate.Evaluate(pcm)
	s.emitter.GateDecision(d.Speech, d.Calibrating, d.Mode.String(), d.RMS, d.Threshold, d.VoicedRatio)
	if d.Calibrating {
		return
	}

	if d.Speech {
		s.buffer = append(s.buffer, chunk...)
		triggered := s.turns.ObserveSpeech()
		switch s.state {
		case StateListening:
			if triggered {
				s.beginTurn()
			} else {
				s.transition(StateAccumulating, "speech")
			}
		case StateAccumulating:
			if triggered {
				s.beginTurn()
			}
		}
		return
	}

	escalate := s.turns.ObserveSilence()
	s.buffer = nil
	if s.state == StateAccumulating {
		s.transition(StateListening, "speech_lapsed")
	}
	if escalate && s.state == StateListening {
		s.escalateSilence()
	}
}

// gateable reports whether the session is in a phase that accepts caller
// speech.
func (s *Session) gateable() bool {
	return s.state == StateListening || s.state == StateAccumulating || s.state == StateProcessing
}

// beginTurn hands the buffered utterance to the turn pipeline. The busy
// flag makes a second concurrent turn structurally impossible.
func (s *Session) beginTurn() {
	turnID := uuid.NewString()
	wire := s.buffer
	s.buffer = nil
	s.busy = true
	s.turns.BeginTurn()
	s.transition(StateProcessing, "sustained_speech")
	s.emitter.TurnStarted(turnID, len(wire))

	persona := s.persona
	history := slices.Clone(s.history)
	go s.runTurn(turnID, wire, persona, history)
}

// runTurn executes one full turn off the event loop: transcode, transcribe,
// exit check, reply, farewell check, synthesize. It runs under the shared
// turn semaphore and reports a single outcome.
func (s *Session) runTurn(turnID string, wire []byte, persona string, history []agent.Message) {
	out := &turnOutcome{turnID: turnID, started: time.Now()}
	ctx, cancel := context.WithTimeout(logger.WithTurn(s.ctx, turnID), s.call.TurnTimeout)
	defer cancel()

	if err := s.turnSem.Acquire(ctx, 1); err != nil {
		out.stage, out.err = stageTranscribe, err
		s.report(result{op: opTurn, turn: out})
		return
	}
	defer s.turnSem.Release(1)

	wav, err := s.transcoder.ToEngineFormat(wire)
	if err != nil {
		out.stage, out.err = stageTranscribe, err
		s.report(result{op: opTurn, turn: out})
		return
	}

	start := time.Now()
	s.emitter.ProviderCallStarted(s.sttSvc.Name(), stageTranscribe)
	text, err := s.sttSvc.Transcribe(ctx, wav, s.sttCfg)
	out.transcribeDur = time.Since(start)
	if err != nil {
		s.emitter.ProviderCallFailed(s.sttSvc.Name(), stageTranscribe, err, out.transcribeDur)
		logger.ProviderError(ctx, s.sttSvc.Name(), stageTranscribe, err)
		out.stage, out.err = stageTranscribe, err
		s.report(result{op: opTurn, turn: out})
		return
	}
	s.emitter.ProviderCallCompleted(s.sttSvc.Name(), stageTranscribe, out.transcribeDur)
	logger.ProviderResult(ctx, s.sttSvc.Name(), stageTranscribe, out.transcribeDur.Milliseconds())

	out.transcript = strings.TrimSpace(text)
	if out.transcript == "" {
		s.report(result{op: opTurn, turn: out})
		return
	}
	s.appendTranscript(ctx, agent.RoleUser, out.transcript)

	if s.call.MatchesExit(out.transcript) {
		out.endReason = endReasonExit
		out.reply = s.call.Farewell
		start = time.Now()
		speech, synthErr := s.synthesizeWire(ctx, out.reply)
		out.synthDur = time.Since(start)
		if synthErr != nil {
			out.stage, out.err = stageSynthesize, synthErr
		} else {
			out.audio = speech
			s.appendTranscript(ctx, agent.RoleAssistant, out.reply)
		}
		s.report(result{op: opTurn, turn: out})
		return
	}

	start = time.Now()
	s.emitter.ProviderCallStarted(s.agentSvc.Name(), stageReply)
	reply, err := s.agentSvc.Reply(ctx, out.transcript, agent.SessionContext{
		SystemPrompt: persona,
		History:      history,
	})
	out.replyDur = time.Since(start)
	if err != nil {
		s.emitter.ProviderCallFailed(s.agentSvc.Name(), stageReply, err, out.replyDur)
		logger.ProviderError(ctx, s.agentSvc.Name(), stageReply, err)
		out.stage, out.err = stageReply, err
		s.report(result{op: opTurn, turn: out})
		return
	}
	s.emitter.ProviderCallCompleted(s.agentSvc.Name(), stageReply, out.replyDur)
	logger.ProviderResult(ctx, s.agentSvc.Name(), stageReply, out.replyDur.Milliseconds())

	out.reply = strings.TrimSpace(reply)
	if out.reply == "" {
		out.stage = stageReply
		out.err = NewBridgeError(stageReply, KindGeneration, "agent returned an empty reply", nil)
		s.report(result{op: opTurn, turn: out})
		return
	}
	if s.call.MatchesFarewell(out.reply) {
		out.endReason = endReasonFarewell
	}

	start = time.Now()
	speech, synthErr := s.synthesizeWire(ctx, out.reply)
	out.synthDur = time.Since(start)
	if synthErr != nil {
		out.stage, out.err = stageSynthesize, synthErr
		s.report(result{op: opTurn, turn: out})
		return
	}
	out.audio = speech
	s.appendTranscript(ctx, agent.RoleAssistant, out.reply)
	s.report(result{op: opTurn, turn: out})
}

// finishTurn applies a turn outcome to the state machine. Outcomes arriving
// after a stop or farewell supersede are discarded.
func (s *Session) finishTurn(t *turnOutcome) {
	s.busy = false
	if s.state != StateProcessing {
		return
	}

	if t.transcript != "" {
		s.userTurns++
		s.history = append(s.history, agent.Message{Role: agent.RoleUser, Content: t.transcript})
	}
	elapsed := time.Since(t.started)

	switch {
	case t.err != nil && t.stage == stageTranscribe:
		s.emitter.TurnFailed(t.turnID, t.stage, t.err, elapsed)
		logger.Warn("turn abandoned", "session_id", s.id, "stage", t.stage, "error", t.err)
		s.transition(StateListening, "transcribe_failed")

	case t.transcript == "":
		logger.Debug("no speech recognized", "session_id", s.id, "turn_id", t.turnID)
		s.transition(StateListening, "no_speech")

	case t.endReason == endReasonExit:
		s.completeTurn(t, elapsed)
		s.endReason = endReasonExit
		s.transition(StateTerminating, endReasonExit)
		if t.audio == nil {
			s.endSession(endReasonExit)
			return
		}
		s.history = append(s.history, agent.Message{Role: agent.RoleAssistant, Content: t.reply})
		s.launchSpeech(t.audio, purposeFarewell)

	case t.err != nil && t.stage == stageReply:
		s.emitter.TurnFailed(t.turnID, t.stage, t.err, elapsed)
		logger.Warn("turn abandoned", "session_id", s.id, "stage", t.stage, "error", t.err)
		s.transition(StateListening, "reply_failed")

	case t.err != nil && t.stage == stageSynthesize:
		s.emitter.TurnFailed(t.turnID, t.stage, t.err, elapsed)
		logger.Warn("reply audio skipped", "session_id", s.id, "error", t.err)
		s.transition(StateListening, "synthesis_failed")

	default:
		s.history = append(s.history, agent.Message{Role: agent.RoleAssistant, Content: t.reply})
		s.completeTurn(t, elapsed)
		if t.endReason == endReasonFarewell {
			s.pendingEnd = endReasonFarewell
		}
		s.transition(StateSpeaking, "reply_ready")
		s.launchSpeech(t.audio, purposeReply)
	}
}

func (s *Session) completeTurn(t *turnOutcome, elapsed time.Duration) {
	s.emitter.TurnCompleted(&events.TurnCompletedData{
		TurnID:        t.turnID,
		Transcript:    t.transcript,
		ReplyChars:    len(t.reply),
		Duration:      elapsed,
		TranscribeDur: t.transcribeDur,
		ReplyDur:      t.replyDur,
		SynthesizeDur: t.synthDur,
	})
}

// launchLine synthesizes and speaks a fixed line: greeting, prompt, time
// warning, or farewell.
func (s *Session) launchLine(text string, purpose speechPurpose) {
	s.turns.BeginAgentSpeech()
	ctx, cancel := context.WithCancel(logger.WithStage(s.ctx, purpose.String()))
	s.speakCancel = cancel

	go func() {
		defer cancel()
		if err := s.turnSem.Acquire(ctx, 1); err != nil {
			s.report(result{op: opSpeech, purpose: purpose, text: text, err: err})
			return
		}
		sctx, scancel := context.WithTimeout(ctx, s.call.TurnTimeout)
		wire, err := s.synthesizeWire(sctx, text)
		scancel()
		s.turnSem.Release(1)
		if err != nil {
			s.report(result{op: opSpeech, purpose: purpose, text: text, err: err})
			return
		}
		s.appendTranscript(ctx, agent.RoleAssistant, text)
		err = s.dispatcher.Send(ctx, wire)
		s.report(result{op: opSpeech, purpose: purpose, text: text, err: err})
	}()
}

// launchSpeech streams already-synthesized wire audio to the caller.
func (s *Session) launchSpeech(wire []byte, purpose speechPurpose) {
	s.turns.BeginAgentSpeech()
	ctx, cancel := context.WithCancel(s.ctx)
	s.speakCancel = cancel

	go func() {
		defer cancel()
		err := s.dispatcher.Send(ctx, wire)
		s.report(result{op: opSpeech, purpose: purpose, err: err})
	}()
}

// finishSpeech applies a completed speech operation. Speech superseded by a
// farewell reports here too and is ignored so it cannot unmute the session
// mid-farewell.
func (s *Session) finishSpeech(r result) {
	if s.state == StateEnded {
		return
	}
	if s.state == StateTerminating && r.purpose != purposeFarewell {
		return
	}
	s.speakCancel = nil
	s.turns.EndAgentSpeech()

	if r.err != nil {
		if IsKind(r.err, KindTransport) {
			logger.Error("outbound audio write failed", "session_id", s.id, "error", r.err)
			s.endSession(reasonTransport)
			return
		}
		logger.Warn("spoken line skipped", "session_id", s.id, "purpose", r.purpose.String(), "error", r.err)
	} else if r.purpose != purposeReply && r.text != "" {
		s.history = append(s.history, agent.Message{Role: agent.RoleAssistant, Content: r.text})
	}

	switch r.purpose {
	case purposeGreeting:
		if s.state == StateGreeting {
			s.transition(StateListening, "greeted")
		}
	case purposePrompt:
		if s.state == StatePrompting {
			s.transition(StateListening, "prompted")
		}
	case purposeWarning:
		// The session stayed in Listening for the warning.
	case purposeReply:
		if s.pendingEnd != "" {
			reason := s.pendingEnd
			s.pendingEnd = ""
			s.endSession(reason)
			return
		}
		if s.state == StateSpeaking {
			s.transition(StateListening, "reply_spoken")
		}
	case purposeFarewell:
		s.endSession(s.endReason)
	}
}

// escalateSilence fires when silence has crossed the threshold: either the
// next re-engagement prompt, or termination once attempts are spent.
func (s *Session) escalateSilence() {
	if s.turns.Exhausted() {
		logger.CallEvent(s.id, "no_response_limit", "attempts", s.turns.Attempts())
		s.beginFarewell(reasonNoResponse, s.call.NoResponseFarewell)
		return
	}
	attempt := s.turns.RecordPrompt()
	s.emitter.PromptEscalated(attempt, s.turns.Params().MaxAttempts)
	logger.CallEvent(s.id, "prompt_escalated", "attempt", attempt, "max_attempts", s.turns.Params().MaxAttempts)
	s.transition(StatePrompting, "silence")
	s.launchLine(s.call.ReengagementPrompt, purposePrompt)
}

// checkDuration enforces the call length policy: one warning at WarnAfter,
// termination at MaxDuration.
func (s *Session) checkDuration() {
	if s.state == StateEnded || s.state == StateTerminating {
		return
	}
	elapsed := time.Since(s.startedAt)
	if elapsed >= s.call.MaxDuration {
		logger.CallEvent(s.id, "time_limit", "elapsed_ms", elapsed.Milliseconds())
		s.beginFarewell(reasonTimeLimit, s.call.TimeUpFarewell)
		return
	}
	if elapsed >= s.call.WarnAfter && !s.timeWarned && s.state == StateListening {
		s.timeWarned = true
		logger.CallEvent(s.id, "time_warning", "elapsed_ms", elapsed.Milliseconds())
		s.launchLine(s.call.TimeWarning, purposeWarning)
	}
}

// beginFarewell cancels any speech in flight, flushes the far end's queued
// audio, and speaks the final line. The session ends when it finishes.
func (s *Session) beginFarewell(reason, line string) {
	s.endReason = reason
	if s.speakCancel != nil {
		s.speakCancel()
	}
	s.transition(StateTerminating, reason)
	if err := s.writer.WriteClear(s.ctx); err != nil {
		logger.Warn("clear message failed", "session_id", s.id, "error", err)
	}
	s.launchLine(line, purposeFarewell)
}

// endSession is the single exit path. Every termination reason funnels
// through here exactly once.
func (s *Session) endSession(reason string) {
	if s.state == StateEnded {
		return
	}
	if s.endReason == "" {
		s.endReason = reason
	}
	from := s.state
	s.state = StateEnded
	s.mirror.Store(int32(StateEnded))
	s.closed.Store(true)
	s.cancel()

	s.emitter.StateChanged(from.String(), StateEnded.String(), reason)
	duration := time.Since(s.startedAt)
	s.emitter.CallEnded(reason, duration, s.userTurns, s.turns.Attempts())
	logger.CallEvent(s.id, "call_ended",
		"reason", reason,
		"duration_ms", duration.Milliseconds(),
		"turns", s.userTurns,
		"prompts", s.turns.Attempts(),
		"dropped_frames", s.dropped.Load(),
	)

	if s.onEnded != nil && s.userTurns > 0 {
		go s.onEnded(s.buildReport(reason, duration))
	}
	close(s.done)
}

func (s *Session) buildReport(reason string, duration time.Duration) CallReport {
	return CallReport{
		SessionID: s.id,
		CallSID:   s.callSID,
		Caller:    s.caller,
		Profile:   s.profile,
		History:   slices.Clone(s.history),
		StartedAt: s.startedAt,
		Duration:  duration,
		Reason:    reason,
		Turns:     s.userTurns,
		Prompts:   s.turns.Attempts(),
	}
}

// transition moves the state machine and publishes the change.
func (s *Session) transition(to State, trigger string) {
	from := s.state
	if !from.CanTransitionTo(to) {
		logger.Warn("unexpected state transition",
			"session_id", s.id, "from", from.String(), "to", to.String(), "trigger", trigger)
	}
	s.state = to
	s.mirror.Store(int32(to))
	s.emitter.StateChanged(from.String(), to.String(), trigger)
	logger.Debug("session state", "session_id", s.id, "from", from.String(), "to", to.String(), "trigger", trigger)
}

// synthesizeWire turns text into wire-format audio through the TTS service
// and the transcoder.
func (s *Session) synthesizeWire(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	s.emitter.ProviderCallStarted(s.ttsSvc.Name(), stageSynthesize)

	rc, err := s.ttsSvc.Synthesize(ctx, text, s.ttsCfg)
	if err != nil {
		s.emitter.ProviderCallFailed(s.ttsSvc.Name(), stageSynthesize, err, time.Since(start))
		logger.ProviderError(ctx, s.ttsSvc.Name(), stageSynthesize, err)
		return nil, NewBridgeError(stageSynthesize, KindSynthesis, "synthesis request failed", err)
	}
	defer rc.Close()

	synth, err := io.ReadAll(rc)
	if err != nil {
		s.emitter.ProviderCallFailed(s.ttsSvc.Name(), stageSynthesize, err, time.Since(start))
		return nil, NewBridgeError(stageSynthesize, KindSynthesis, "failed to read synthesized audio", err)
	}

	wire, err := s.transcoder.FromEngineFormat(synth)
	if err != nil {
		s.emitter.ProviderCallFailed(s.ttsSvc.Name(), stageSynthesize, err, time.Since(start))
		return nil, NewBridgeError(stageSynthesize, KindSynthesis, "failed to encode wire audio", err)
	}

	s.emitter.ProviderCallCompleted(s.ttsSvc.Name(), stageSynthesize, time.Since(start))
	logger.ProviderResult(ctx, s.ttsSvc.Name(), stageSynthesize, time.Since(start).Milliseconds())
	return wire, nil
}

// appendTranscript records one utterance, logging failures instead of
// letting persistence end a call.
func (s *Session) appendTranscript(ctx context.Context, role, text string) {
	if s.transcripts == nil {
		return
	}
	if err := s.transcripts.Append(ctx, s.id, role, text); err != nil {
		logger.WarnContext(ctx, "transcript append failed", "role", role, "error", err)
	}
}
