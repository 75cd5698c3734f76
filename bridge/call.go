package bridge

import (
	"strings"
	"time"

	"github.com/AltairaLabs/CareBridge/audio"
)

// Default call policy values.
const (
	DefaultMaxDuration    = 5 * time.Minute
	DefaultWarnAfter      = 4*time.Minute + 30*time.Second
	DefaultProfileTimeout = 2 * time.Second
	DefaultTurnTimeout    = 30 * time.Second

	// shortExitMaxLen bounds the short-utterance exit check: replies under
	// this length containing an exit word end the call.
	shortExitMaxLen = 10
)

// Default spoken lines. Operators override these per deployment; the
// defaults keep a bare config conversational.
const (
	DefaultGreeting           = "Hello! This is Sarah, your daily wellness companion. How are you doing today?"
	DefaultReengagementPrompt = "I didn't catch that. Are you still there?"
	DefaultTimeWarning        = "We have about 30 seconds left on our call. Is there anything urgent you need to mention?"
	DefaultTimeUpFarewell     = "Our time is up for today. We can continue tomorrow. Take care!"
	DefaultFarewell           = "Thank you for chatting with me today. Take care!"
	DefaultNoResponseFarewell = "I wasn't able to hear you, so I'll let you go for now. Take care!"
)

// DefaultExitPhrases returns the caller utterances that end a call
// gracefully when they appear anywhere in a transcript.
func DefaultExitPhrases() []string {
	return []string{
		"goodbye", "good bye", "bye", "bye bye",
		"end call", "hang up", "gotta go", "have to go",
		"need to go", "talk later", "talk to you later",
		"see you later", "i'm done", "that's all",
		"thanks bye", "okay bye", "alright bye",
	}
}

// DefaultShortExitWords returns words that end a call when a transcript is
// short enough to be a brush-off rather than conversation.
func DefaultShortExitWords() []string {
	return []string{"bye", "done"}
}

// DefaultFarewellIndicators returns phrases in the agent's own reply that
// signal it is wrapping up, so the session hangs up after speaking them
// instead of waiting for more input.
func DefaultFarewellIndicators() []string {
	return []string{
		"take care", "goodbye", "talk to you tomorrow",
		"speak with you tomorrow", "until tomorrow",
		"see you tomorrow", "call you tomorrow",
	}
}

// CallParams configures per-call policy: the duration budget, the spoken
// lines for greetings, prompts, warnings and farewells, and the phrase
// lists that end a conversation.
type CallParams struct {
	// MaxDuration is the hard call length limit (default: 5m). When it is
	// reached the session speaks TimeUpFarewell and terminates.
	MaxDuration time.Duration

	// WarnAfter is when the single time warning is spoken (default: 4m30s).
	WarnAfter time.Duration

	// ProfileTimeout bounds the caller profile lookup at call start
	// (default: 2s). A slow or failed lookup degrades the session to
	// unpersonalized instead of delaying the greeting.
	ProfileTimeout time.Duration

	// TurnTimeout bounds one full turn pipeline: transcription, reply,
	// and synthesis together (default: 30s).
	TurnTimeout time.Duration

	// Spoken lines.
	Greeting           string
	ReengagementPrompt string
	TimeWarning        string
	TimeUpFarewell     string
	Farewell           string
	NoResponseFarewell string

	// ExitPhrases end the call when found in a caller transcript.
	ExitPhrases []string

	// ShortExitWords end the call when the transcript is shorter than ten
	// characters and contains one of them.
	ShortExitWords []string

	// FarewellIndicators end the call after the agent's reply containing
	// one is spoken.
	FarewellIndicators []string
}

// DefaultCallParams returns the standard five-minute check-in policy.
func DefaultCallParams() CallParams {
	return CallParams{
		MaxDuration:        DefaultMaxDuration,
		WarnAfter:          DefaultWarnAfter,
		ProfileTimeout:     DefaultProfileTimeout,
		TurnTimeout:        DefaultTurnTimeout,
		Greeting:           DefaultGreeting,
		ReengagementPrompt: DefaultReengagementPrompt,
		TimeWarning:        DefaultTimeWarning,
		TimeUpFarewell:     DefaultTimeUpFarewell,
		Farewell:           DefaultFarewell,
		NoResponseFarewell: DefaultNoResponseFarewell,
		ExitPhrases:        DefaultExitPhrases(),
		ShortExitWords:     DefaultShortExitWords(),
		FarewellIndicators: DefaultFarewellIndicators(),
	}
}

// withDefaults fills every unset field so a partially configured policy
// still has a spoken line and a phrase list for each situation.
func (p CallParams) withDefaults() CallParams {
	if p.MaxDuration == 0 {
		p.MaxDuration = DefaultMaxDuration
	}
	if p.WarnAfter == 0 {
		p.WarnAfter = DefaultWarnAfter
	}
	if p.ProfileTimeout == 0 {
		p.ProfileTimeout = DefaultProfileTimeout
	}
	if p.TurnTimeout == 0 {
		p.TurnTimeout = DefaultTurnTimeout
	}
	if p.Greeting == "" {
		p.Greeting = DefaultGreeting
	}
	if p.ReengagementPrompt == "" {
		p.ReengagementPrompt = DefaultReengagementPrompt
	}
	if p.TimeWarning == "" {
		p.TimeWarning = DefaultTimeWarning
	}
	if p.TimeUpFarewell == "" {
		p.TimeUpFarewell = DefaultTimeUpFarewell
	}
	if p.Farewell == "" {
		p.Farewell = DefaultFarewell
	}
	if p.NoResponseFarewell == "" {
		p.NoResponseFarewell = DefaultNoResponseFarewell
	}
	if p.ExitPhrases == nil {
		p.ExitPhrases = DefaultExitPhrases()
	}
	if p.ShortExitWords == nil {
		p.ShortExitWords = DefaultShortExitWords()
	}
	if p.FarewellIndicators == nil {
		p.FarewellIndicators = DefaultFarewellIndicators()
	}
	return p
}

// Validate checks that call parameters are within acceptable ranges.
func (p CallParams) Validate() error {
	if p.MaxDuration <= 0 {
		return &audio.ValidationError{Field: "MaxDuration", Message: "must be positive"}
	}
	if p.WarnAfter <= 0 || p.WarnAfter >= p.MaxDuration {
		return &audio.ValidationError{Field: "WarnAfter", Message: "must be positive and before MaxDuration"}
	}
	if p.ProfileTimeout <= 0 {
		return &audio.ValidationError{Field: "ProfileTimeout", Message: "must be positive"}
	}
	if p.TurnTimeout <= 0 {
		return &audio.ValidationError{Field: "TurnTimeout", Message: "must be positive"}
	}
	return nil
}

// MatchesExit reports whether a caller transcript asks to end the call.
func (p CallParams) MatchesExit(transcript string) bool {
	t := strings.ToLower(strings.TrimSpace(transcript))
	if t == "" {
		return false
	}
	for _, phrase := range p.ExitPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	if len(t) < shortExitMaxLen {
		for _, word := range p.ShortExitWords {
			if strings.Contains(t, word) {
				return true
			}
		}
	}
	return false
}

// MatchesFarewell reports whether the agent's reply is itself a goodbye.
func (p CallParams) MatchesFarewell(reply string) bool {
	r := strings.ToLower(reply)
	for _, indicator := range p.FarewellIndicators {
		if strings.Contains(r, indicator) {
			return true
		}
	}
	return false
}
