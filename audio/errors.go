package audio

// CodecError reports a failed audio format conversion. Callers treat it as
// "no usable audio" for the affected chunk or turn; it never ends a call.
type CodecError struct {
	Op     string // conversion that failed, e.g. "decode-mulaw"
	Reason string
	Cause  error
}

func (e *CodecError) Error() string {
	msg := "audio: " + e.Op + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *CodecError) Unwrap() error {
	return e.Cause
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}
