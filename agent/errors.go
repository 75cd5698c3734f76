package agent

import (
	"errors"
	"fmt"
)

// Common errors for agent services.
var (
	// ErrEmptyUtterance is returned when the caller transcript is empty.
	ErrEmptyUtterance = errors.New("utterance is empty")

	// ErrEmptyConversation is returned when there are no turns to summarize.
	ErrEmptyConversation = errors.New("conversation is empty")

	// ErrRateLimited is returned when the provider rate limits requests.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrContentFiltered is returned when the provider refuses to reply.
	ErrContentFiltered = errors.New("reply blocked by provider content filter")
)

// GenerationError represents an error while generating a reply.
type GenerationError struct {
	// Provider is the agent provider name.
	Provider string

	// Code is the provider-specific error code or type.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the request can be retried.
	Retryable bool
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(provider, code, message string, cause error, retryable bool) *GenerationError {
	return &GenerationError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s generation error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s generation error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *GenerationError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*GenerationError)
	if !ok {
		return false
	}
	return e.Provider == t.Provider && e.Code == t.Code
}
