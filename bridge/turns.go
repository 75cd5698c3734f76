package bridge

import (
	"time"

	"github.com/AltairaLabs/CareBridge/audio"
)

// Default turn-taking parameter values, sized for 8 kHz mu-law wire audio
// gated in half-second chunks.
const (
	DefaultChunkSize       = 4000 // wire bytes per gate evaluation, 500ms
	DefaultSustainedChunks = 2
	DefaultCooldown        = 1 * time.Second
	DefaultSilenceChunks   = 10
	DefaultPromptGrace     = 6 * time.Second
	DefaultMaxAttempts     = 3
)

// TurnParams configures turn-taking: when sustained speech triggers a turn,
// how long input stays muted after the agent speaks, and how silence
// escalates into prompts and eventually termination.
type TurnParams struct {
	// ChunkSize is the number of wire bytes gathered before each gate
	// evaluation (default: 4000, 500ms of mu-law at 8 kHz).
	ChunkSize int

	// SustainedChunks is the number of consecutive speech chunks required
	// to trigger a turn (default: 2).
	SustainedChunks int

	// Cooldown mutes inbound audio after the agent finishes speaking, so
	// trailing echo is not heard as caller speech (default: 1s).
	Cooldown time.Duration

	// SilenceChunks is the number of consecutive silent chunks before a
	// re-engagement prompt fires (default: 10, five seconds).
	SilenceChunks int

	// PromptGrace is how long after agent speech the silence escalation
	// stays disarmed, giving the caller time to answer (default: 6s).
	PromptGrace time.Duration

	// MaxAttempts is the number of re-engagement prompts spoken before
	// the session gives up and terminates (default: 3).
	MaxAttempts int
}

// DefaultTurnParams returns sensible defaults for check-in calls.
func DefaultTurnParams() TurnParams {
	return TurnParams{
		ChunkSize:       DefaultChunkSize,
		SustainedChunks: DefaultSustainedChunks,
		Cooldown:        DefaultCooldown,
		SilenceChunks:   DefaultSilenceChunks,
		PromptGrace:     DefaultPromptGrace,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// Validate checks that turn parameters are within acceptable ranges.
func (p TurnParams) Validate() error {
	if p.ChunkSize <= 0 {
		return &audio.ValidationError{Field: "ChunkSize", Message: "must be positive"}
	}
	if p.SustainedChunks <= 0 {
		return &audio.ValidationError{Field: "SustainedChunks", Message: "must be positive"}
	}
	if p.Cooldown < 0 {
		return &audio.ValidationError{Field: "Cooldown", Message: "must be non-negative"}
	}
	if p.SilenceChunks <= 0 {
		return &audio.ValidationError{Field: "SilenceChunks", Message: "must be positive"}
	}
	if p.PromptGrace < 0 {
		return &audio.ValidationError{Field: "PromptGrace", Message: "must be non-negative"}
	}
	if p.MaxAttempts <= 0 {
		return &audio.ValidationError{Field: "MaxAttempts", Message: "must be positive"}
	}
	return nil
}

// TurnController owns the turn-taking bookkeeping for one session: speech
// and silence chunk counts, the post-speech mute window, the silence grace
// deadline, and the re-engagement attempt counter.
//
// Like the gate, a controller belongs to a single session goroutine and is
// not safe for concurrent use.
type TurnController struct {
	params TurnParams

	speechChunks  int
	silenceChunks int
	attempts      int

	agentSpeaking bool
	muteUntil     time.Time
	noPromptUntil time.Time

	now func() time.Time
}

// NewTurnController creates a TurnController with the given parameters.
func NewTurnController(params TurnParams) (*TurnController, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &TurnController{
		params: params,
		now:    time.Now,
	}, nil
}

// Params returns the controller's configuration.
func (c *TurnController) Params() TurnParams {
	return c.params
}

// Muted reports whether inbound audio is currently discarded: either the
// agent is speaking or the post-speech cooldown has not elapsed.
func (c *TurnController) Muted() bool {
	return c.agentSpeaking || c.now().Before(c.muteUntil)
}

// BeginAgentSpeech mutes input for the duration of agent audio.
func (c *TurnController) BeginAgentSpeech() {
	c.agentSpeaking = true
}

// EndAgentSpeech arms the post-speech cooldown and the silence grace
// window. Called when agent audio finishes streaming.
func (c *TurnController) EndAgentSpeech() {
	c.agentSpeaking = false
	now := c.now()
	c.muteUntil = now.Add(c.params.Cooldown)
	c.noPromptUntil = now.Add(c.params.PromptGrace)
}

// ObserveSpeech records a chunk that passed the gate. It resets the silence
// run and reports whether the sustained-speech threshold has been reached.
func (c *TurnController) ObserveSpeech() bool {
	c.speechChunks++
	c.silenceChunks = 0
	return c.speechChunks >= c.params.SustainedChunks
}

// ObserveSilence records a chunk that failed the gate. It resets the speech
// run and reports whether silence should escalate: the silence threshold is
// reached and the grace deadline has passed.
func (c *TurnController) ObserveSilence() bool {
	c.silenceChunks++
	c.speechChunks = 0
	if c.silenceChunks < c.params.SilenceChunks {
		return false
	}
	return !c.now().Before(c.noPromptUntil)
}

// Exhausted reports whether the re-engagement attempt limit is spent. The
// next escalation terminates the call instead of prompting again.
func (c *TurnController) Exhausted() bool {
	return c.attempts >= c.params.MaxAttempts
}

// RecordPrompt consumes one re-engagement attempt: the attempt counter
// increments, the silence run restarts, and a fresh grace deadline is set
// covering the prompt's synthesis. Returns the new attempt count.
func (c *TurnController) RecordPrompt() int {
	c.attempts++
	c.silenceChunks = 0
	c.noPromptUntil = c.now().Add(c.params.PromptGrace)
	return c.attempts
}

// BeginTurn clears both chunk runs when buffered speech is handed to the
// turn pipeline.
func (c *TurnController) BeginTurn() {
	c.speechChunks = 0
	c.silenceChunks = 0
}

// Attempts returns the number of re-engagement prompts spoken so far.
func (c *TurnController) Attempts() int {
	return c.attempts
}

// SpeechChunks returns the current consecutive speech chunk count.
func (c *TurnController) SpeechChunks() int {
	return c.speechChunks
}

// SilenceChunks returns the current consecutive silence chunk count.
func (c *TurnController) SilenceChunks() int {
	return c.silenceChunks
}
