package events

import (
	"time"
)

// EventType identifies the type of event emitted by the bridge.
type EventType string

const (
	// EventCallStarted marks a call session starting.
	EventCallStarted EventType = "call.started"
	// EventCallEnded marks a call session ending.
	EventCallEnded EventType = "call.ended"
	// EventCallStateChanged marks a session state transition.
	EventCallStateChanged EventType = "call.state_changed"

	// EventGateDecision marks a voice activity classification.
	EventGateDecision EventType = "gate.decision"

	// EventTurnStarted marks a conversation turn entering processing.
	EventTurnStarted EventType = "turn.started"
	// EventTurnCompleted marks a turn finishing its full pipeline.
	EventTurnCompleted EventType = "turn.completed"
	// EventTurnFailed marks a turn abandoned by a stage failure.
	EventTurnFailed EventType = "turn.failed"

	// EventProviderCallStarted marks a provider call start.
	EventProviderCallStarted EventType = "provider.call.started"
	// EventProviderCallCompleted marks a provider call completion.
	EventProviderCallCompleted EventType = "provider.call.completed"
	// EventProviderCallFailed marks a provider call failure.
	EventProviderCallFailed EventType = "provider.call.failed"

	// EventPromptEscalated marks a silence re-engagement prompt.
	EventPromptEscalated EventType = "prompt.escalated"

	// EventTransportFrame marks a wire frame moving in either direction.
	EventTransportFrame EventType = "transport.frame"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a bridge event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	CallSID   string
	StreamSID string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// CallStartedData contains data for call start events.
type CallStartedData struct {
	baseEventData
	Caller     string // redacted caller number
	HasProfile bool   // whether a caller profile was found
}

// CallEndedData contains data for call end events.
type CallEndedData struct {
	baseEventData
	Reason   string
	Duration time.Duration
	Turns    int
	Prompts  int // re-engagement prompts spoken
}

// StateChangedData contains data for session state transitions.
type StateChangedData struct {
	baseEventData
	From  string
	To    string
	Event string
}

// GateDecisionData contains data for voice activity classifications.
type GateDecisionData struct {
	baseEventData
	Speech      bool
	Calibrating bool
	Mode        string
	RMS         float64
	Threshold   float64
	VoicedRatio float64
}

// TurnStartedData contains data for turn start events.
type TurnStartedData struct {
	baseEventData
	TurnID      string
	BufferBytes int
}

// TurnCompletedData contains data for turn completion events.
type TurnCompletedData struct {
	baseEventData
	TurnID        string
	Transcript    string
	ReplyChars    int
	Duration      time.Duration
	TranscribeDur time.Duration
	ReplyDur      time.Duration
	SynthesizeDur time.Duration
}

// TurnFailedData contains data for turn failure events.
type TurnFailedData struct {
	baseEventData
	TurnID   string
	Stage    string // "transcribe", "reply", or "synthesize"
	Error    error
	Duration time.Duration
}

// ProviderCallStartedData contains data for provider call start events.
type ProviderCallStartedData struct {
	baseEventData
	Provider  string
	Operation string
}

// ProviderCallCompletedData contains data for provider call completion events.
type ProviderCallCompletedData struct {
	baseEventData
	Provider  string
	Operation string
	Duration  time.Duration
}

// ProviderCallFailedData contains data for provider call failure events.
type ProviderCallFailedData struct {
	baseEventData
	Provider  string
	Operation string
	Error     error
	Duration  time.Duration
}

// PromptEscalatedData contains data for silence re-engagement events.
type PromptEscalatedData struct {
	baseEventData
	Attempt     int
	MaxAttempts int
}

// TransportFrameData contains data for wire frame events.
type TransportFrameData struct {
	baseEventData
	Direction string // "in" or "out"
	Event     string // wire event name, e.g. "media", "start", "stop"
}
