package stt

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by all providers.
var (
	// ErrEmptyAudio is returned by Transcribe when the clip is empty.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrClipTooShort is returned when the provider refuses a clip as
	// too short to recognize.
	ErrClipTooShort = errors.New("stt: clip too short")

	// ErrThrottled is returned when the provider rate-limits the account.
	ErrThrottled = errors.New("stt: rate limited")
)

// APIError is a transcription request the provider answered with an
// error. Status is the HTTP status code; Code and Detail carry the
// provider's error body when it sent one.
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
		return fmt.Sprintf("%s stt: %s (%s)", e.Provider, detail, e.Code)
	}
	return fmt.Sprintf("%s stt: %s", e.Provider, detail)
}

// Unwrap maps well-known faults onto the package sentinels so callers
// can match with errors.Is without caring which provider answered.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return ErrThrottled
	case e.Code == "audio_too_short":
		return ErrClipTooShort
	}
	return nil
}

// Temporary reports whether retrying could succeed. Rate limits and
// server-side failures tend to clear; auth and validation errors do not.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
