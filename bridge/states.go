package bridge

import "slices"

// State is the phase of a live call session. Exactly one state is active at
// any time, and only the session's own goroutine changes it.
type State int

const (
	// StateInitializing covers profile lookup before the greeting.
	StateInitializing State = iota
	// StateGreeting is the opening line being synthesized and spoken.
	StateGreeting
	// StateListening is the idle state: gating inbound audio, waiting for
	// sustained speech or escalating silence.
	StateListening
	// StateAccumulating is listening with a partial run of speech chunks,
	// below the sustained threshold.
	StateAccumulating
	// StateProcessing is a turn in flight: transcribe, reply, synthesize.
	StateProcessing
	// StateSpeaking is reply audio streaming to the caller.
	StateSpeaking
	// StatePrompting is a re-engagement prompt being spoken after silence.
	StatePrompting
	// StateTerminating is the farewell being spoken before the session ends.
	StateTerminating
	// StateEnded is terminal. The session accepts nothing after it.
	StateEnded
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateAccumulating:
		return "accumulating"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StatePrompting:
		return "prompting"
	case StateTerminating:
		return "terminating"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is the session's final state.
func (s State) Terminal() bool {
	return s == StateEnded
}

// validNext maps each state to the states it may legally transition to.
// A stop event or the duration hard limit may additionally force any
// non-terminal state to Terminating or Ended.
var validNext = map[State][]State{
	StateInitializing: {StateGreeting},
	StateGreeting:     {StateListening},
	StateListening:    {StateAccumulating, StateProcessing, StatePrompting},
	StateAccumulating: {StateListening, StateProcessing},
	StateProcessing:   {StateListening, StateSpeaking},
	StateSpeaking:     {StateListening},
	StatePrompting:    {StateListening},
	StateTerminating:  {},
	StateEnded:        {},
}

// CanTransitionTo reports whether a transition from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	if s == next {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == StateEnded || next == StateTerminating {
		return true
	}
	return slices.Contains(validNext[s], next)
}
