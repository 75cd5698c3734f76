package profile

import (
	"fmt"
	"strings"
	"time"
)

// basePersona is the persona every personalized call starts from. Guardrails
// stay in the prompt even when the rest is generated from the profile.
const basePersona = "You are a caring companion calling %s for their daily wellness check-in. " +
	"Greet them by name. Ask how they are feeling and whether they took their medication. " +
	"Never give medical, financial, or legal advice; suggest speaking with their doctor or " +
	"family instead. If they describe an emergency, tell them to hang up and call 911. " +
	"Keep every reply to one or two short sentences, since your words are spoken aloud " +
	"over the phone."

// PersonaPrompt renders a system prompt for a call to this caller, folding
// in what the directory knows and what recent calls found. Summaries are
// expected newest first, as RecentSummaries returns them.
func PersonaPrompt(p *CallerProfile, summaries []CallSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, basePersona, p.FullName())

	if age, ok := ageFromDOB(p.DateOfBirth, time.Now()); ok {
		fmt.Fprintf(&b, "\n\n%s is %d years old.", p.FirstName, age)
	}
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "\nKnown conditions: %s.", strings.Join(p.Conditions, ", "))
	}
	if len(p.Medications) > 0 {
		fmt.Fprintf(&b, "\nMedications to ask about: %s.", strings.Join(p.Medications, ", "))
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "\nNotes from the care team: %s", p.Notes)
	}

	if len(summaries) > 0 {
		last := summaries[0]
		if last.Summary != "" {
			fmt.Fprintf(&b, "\n\nFrom the last call: %s", last.Summary)
		}
		if len(last.Concerns) > 0 {
			fmt.Fprintf(&b, "\nFollow up gently on: %s.", strings.Join(last.Concerns, ", "))
		}
	}

	return b.String()
}

// ageFromDOB computes age in years from a YYYY-MM-DD date of birth.
func ageFromDOB(dob string, now time.Time) (int, bool) {
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return 0, false
	}

	age := now.Year() - born.Year()
	if now.Month() < born.Month() ||
		(now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 || age > 130 {
		return 0, false
	}
	return age, true
}
