package logger

import (
	"log/slog"
	"regexp"
	"strings"
)

// Patterns that must never reach a log line: provider API keys, bearer
// tokens, and caller phone numbers. The handler runs every string
// attribute and message through them.
var (
	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),      // OpenAI keys
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),    // Google keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), // bearer tokens
	}

	// phonePattern matches E.164 numbers. Redaction keeps the last four
	// digits so a call can still be matched against operator records.
	phonePattern = regexp.MustCompile(`\+\d{7,15}`)
)

// Redact hides key and phone matches in s. Keys keep a four-character
// prefix, phone numbers their last four digits.
func Redact(s string) string {
	for _, p := range keyPatterns {
		s = p.ReplaceAllStringFunc(s, redactKey)
	}
	return phonePattern.ReplaceAllStringFunc(s, RedactPhone)
}

func redactKey(m string) string {
	if strings.HasPrefix(m, "Bearer") {
		return "Bearer [REDACTED]"
	}
	if len(m) > 8 {
		return m[:4] + "...[REDACTED]"
	}
	return "[REDACTED]"
}

// RedactPhone hides all but the last four digits of a phone number.
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "[REDACTED]"
	}
	return "[REDACTED]" + phone[len(phone)-4:]
}

// scrubAttr redacts string-valued attributes. Other kinds pass through;
// LogValuer attributes resolve at the sink, after their own masking.
func scrubAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Redact(a.Value.String()))
	}
	return a
}
