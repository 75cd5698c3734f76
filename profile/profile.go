// Package profile provides the caller directory and its Redis context cache.
// The bridge looks up who it is talking to by phone number before the first
// word is spoken, and records a summary of each finished call against the
// profile so the next call can pick up where this one left off.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common errors for profile stores.
var (
	// ErrNotFound is returned when no profile is registered for a number.
	ErrNotFound = errors.New("no profile registered for this number")

	// ErrInvalidPhone is returned when the phone number is empty.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidProfile is returned when a profile is missing required fields.
	ErrInvalidProfile = errors.New("invalid profile")
)

// CallerProfile describes the person the bridge is calling. The session uses
// it to seed the agent persona; the core never interprets it beyond that.
type CallerProfile struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Phone       string   `json:"phone"`
	DateOfBirth string   `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Conditions  []string `json:"conditions,omitempty"`
	Medications []string `json:"medications,omitempty"`

	// EmergencyContact is who to mention if the caller reports trouble.
	EmergencyContact string `json:"emergency_contact,omitempty"`
	Physician        string `json:"physician,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// FullName returns the caller's display name.
func (p *CallerProfile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return "there"
	}
	return name
}

// CallSummary records the assessment of one finished call.
type CallSummary struct {
	CallSID         string    `json:"call_sid"`
	Timestamp       time.Time `json:"timestamp"`
	Mood            string    `json:"mood,omitempty"`
	Concerns        []string  `json:"concerns,omitempty"`
	MedicationTaken *bool     `json:"medication_taken,omitempty"`
	Summary         string    `json:"summary"`

	// Fields holds extracted assessment values beyond the typed ones,
	// keyed by the configured query name.
	Fields map[string]any `json:"fields,omitempty"`
}

// Store is the caller directory. Implementations must be safe for use from
// concurrent call sessions.
type Store interface {
	// LookupByPhone finds the profile registered for a phone number.
	// Returns ErrNotFound for unknown numbers.
	LookupByPhone(ctx context.Context, phone string) (*CallerProfile, error)

	// RecordSummary appends a post-call summary to the profile's history.
	RecordSummary(ctx context.Context, profileID string, summary CallSummary) error

	// RecentSummaries returns up to n summaries for a profile, newest
	// first. Returns nil (not an error) when there is no history yet.
	RecentSummaries(ctx context.Context, profileID string, n int) ([]CallSummary, error)
}

// NormalizePhone reduces a phone number to digits with an optional leading
// plus, so "+1 (555) 010-0199" and "+15550100199" address the same profile.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
