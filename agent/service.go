package agent

import (
	"context"
	"strings"
)

// Conversation roles shared by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Default generation parameters tuned for spoken replies.
const (
	// DefaultTemperature keeps replies warm without rambling.
	DefaultTemperature = 0.7

	// DefaultMaxTokens bounds a reply to a few spoken sentences.
	DefaultMaxTokens = 500
)

// DefaultSystemPrompt frames the agent when the session has no persona of its
// own (no caller profile was found). Replies must stay short because they are
// synthesized and played over the phone.
const DefaultSystemPrompt = "You are a caring companion making a brief wellness check-in call. " +
	"Ask how the person is feeling and whether they took their medication, and listen " +
	"for anything concerning. Never give medical, financial, or legal advice; suggest " +
	"speaking with their doctor or family instead. Keep every reply to one or two short " +
	"sentences, since your words are spoken aloud over the phone."

// DefaultSummaryPrompt asks for a machine-readable post-call assessment. The
// response shape matches the JMESPath queries the assessment package runs
// against it.
const DefaultSummaryPrompt = "Review the finished check-in call transcript below. Respond with " +
	`only a JSON object of the form {"assessment":{"mood":"...","concerns":["..."],` +
	`"medication_taken":true,"summary":"..."}} and no other text.`

// Message is a single conversation turn. The JSON shape matches the
// chat-completions wire format so providers can send history verbatim.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionContext carries what the agent knows about the call: the persona
// prompt (seeded from the caller profile when one was found) and the prior
// turns of this conversation, oldest first. The current utterance is passed
// separately to Reply and is not part of History.
type SessionContext struct {
	SystemPrompt string
	History      []Message
}

// Service generates conversational replies for a live call.
//
// Reply and Summarize are long-latency synchronous calls; the session runs
// them off the transport path and honors context cancellation when the call
// hangs up mid-request.
type Service interface {
	// Name returns the provider identifier.
	Name() string

	// Reply generates the agent's next utterance in response to the
	// caller's transcript. An empty reply is not an error; the session
	// skips the turn.
	Reply(ctx context.Context, utterance string, sc SessionContext) (string, error)

	// Summarize produces a post-call assessment of the given turns as a
	// JSON document.
	Summarize(ctx context.Context, turns []Message) (string, error)
}

// systemPrompt returns the session persona, falling back to the default.
func systemPrompt(sc SessionContext) string {
	if sc.SystemPrompt != "" {
		return sc.SystemPrompt
	}
	return DefaultSystemPrompt
}

// formatTranscript renders turns as "role: text" lines for summary requests.
func formatTranscript(turns []Message) string {
	var b strings.Builder
	for _, m := range turns {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
