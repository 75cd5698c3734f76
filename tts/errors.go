package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by all providers.
var (
	// ErrEmptyText is returned by Synthesize when there is nothing to say.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrUnknownVoice is returned when the provider rejects the voice ID.
	ErrUnknownVoice = errors.New("tts: unknown voice")

	// ErrThrottled is returned when the provider rate-limits the account.
	ErrThrottled = errors.New("tts: rate limited")
)

// APIError is a synthesis request the provider answered with an error.
// Status is the HTTP status code; Code and Detail carry the provider's
// error body when it sent one.
type APIError struct {
	Provider string
	Status   int
	Code     string
	Detail   string
}

func (e *APIError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s tts: %s (%s)", e.Provider, detail, e.Code)
	}
	return fmt.Sprintf("%s tts: %s", e.Provider, detail)
}

// Unwrap maps well-known statuses onto the package sentinels so callers
// can match with errors.Is without caring which provider answered.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusNotFound:
		return ErrUnknownVoice
	}
	return nil
}

// Temporary reports whether retrying could succeed. Rate limits and
// server-side failures tend to clear; auth and validation errors do not.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
