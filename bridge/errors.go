package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure by its containment policy. Only
// KindTransport and KindNoResponse end a session; every other kind is
// contained within the turn that raised it.
type Kind int

const (
	// KindTransport is a connection or malformed-frame failure. The
	// session ends, the process continues.
	KindTransport Kind = iota

	// KindSessionInit is a profile lookup or bootstrap failure. The
	// session degrades to unpersonalized and continues.
	KindSessionInit

	// KindRecognitionEmpty means no speech was recognized in a turn's
	// audio. Treated as silence, never as an error.
	KindRecognitionEmpty

	// KindGeneration means the agent reply was unavailable. The turn is
	// skipped and the session keeps listening.
	KindGeneration

	// KindSynthesis means a reply could not be spoken. The audio is
	// skipped and the session keeps listening.
	KindSynthesis

	// KindNoResponse means the re-engagement limit was reached. The
	// session terminates gracefully through the farewell path.
	KindNoResponse
)

// String returns a human-readable representation of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindSessionInit:
		return "session_init"
	case KindRecognitionEmpty:
		return "recognition_empty"
	case KindGeneration:
		return "generation"
	case KindSynthesis:
		return "synthesis"
	case KindNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// BridgeError represents a classified failure inside a call session.
type BridgeError struct {
	// Op is the operation that failed, e.g. "dispatch" or "transcribe".
	Op string

	// Kind selects the containment policy for this failure.
	Kind Kind

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// NewBridgeError creates a new BridgeError.
func NewBridgeError(op string, kind Kind, message string, cause error) *BridgeError {
	return &BridgeError{
		Op:      op,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bridge %s [%s]: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("bridge %s [%s]: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *BridgeError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a BridgeError of the given kind.
func IsKind(err error, kind Kind) bool {
	var be *BridgeError
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind
}
