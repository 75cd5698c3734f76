// Package transcript persists what was said on each call, one entry per
// utterance. The session appends as turns complete; the assessment worker
// and care dashboards read the transcript back after the call ends.
package transcript

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for transcript stores.
var (
	// ErrInvalidSession is returned when the session ID is empty.
	ErrInvalidSession = errors.New("invalid session ID")

	// ErrEmptyText is returned when there is no utterance text to record.
	ErrEmptyText = errors.New("utterance text is empty")
)

// Entry is one utterance in a call transcript.
type Entry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists call transcripts. Append failures are logged by the session
// and never end a call; losing one line of transcript is better than hanging
// up on a caller.
type Store interface {
	// Append adds an utterance to a session's transcript.
	Append(ctx context.Context, sessionID, role, text string) error

	// List returns a session's transcript in spoken order. Returns an
	// empty slice (not an error) for sessions with no recorded speech.
	List(ctx context.Context, sessionID string) ([]Entry, error)
}

// newEntry validates the append arguments and stamps a fresh entry.
func newEntry(sessionID, role, text string) (Entry, error) {
	if sessionID == "" {
		return Entry{}, ErrInvalidSession
	}
	if strings.TrimSpace(text) == "" {
		return Entry{}, ErrEmptyText
	}
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}, nil
}
