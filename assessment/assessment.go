// Package assessment turns finished calls into structured wellness records.
// The bridge hands each ended call's report to a small worker pool, off the
// transport path: the agent produces a JSON summary of the conversation,
// configured JMESPath queries pull fields out of it, and the result lands on
// the caller's profile history and the call transcript. A summary that does
// not parse degrades to raw text rather than being lost.
package assessment

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/AltairaLabs/CareBridge/agent"
	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/events"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/profile"
	"github.com/AltairaLabs/CareBridge/transcript"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultQueueSize = 16
	defaultWorkers   = 2

	// opSummarize names the provider operation in events and metrics.
	opSummarize = "summarize"

	// summaryRole marks the assessment entry in the call transcript.
	summaryRole = "summary"
)

// Query names that bind to typed CallSummary fields. Results of any other
// configured query land in CallSummary.Fields under the query name.
const (
	queryMood       = "mood"
	queryConcerns   = "concerns"
	queryMedication = "medication_taken"
	querySummary    = "summary"
)

// DefaultQueries matches the JSON shape DefaultSummaryPrompt asks the agent
// to produce.
func DefaultQueries() map[string]string {
	return map[string]string{
		queryMood:       "assessment.mood",
		queryConcerns:   "assessment.concerns",
		queryMedication: "assessment.medication_taken",
		querySummary:    "assessment.summary",
	}
}

// Config tunes the post-call workers. The zero value takes defaults.
type Config struct {
	// Queries maps field names to JMESPath expressions run against the
	// agent's summary JSON. Empty means DefaultQueries.
	Queries map[string]string

	// Timeout bounds one call's assessment, including the agent request.
	Timeout time.Duration

	// QueueSize bounds ended calls waiting for assessment.
	QueueSize int

	// Workers is the number of concurrent assessment workers.
	Workers int
}

// Assessor runs post-call assessments. Create one with NewAssessor, feed it
// through Submit (the bridge's OnEnded hook), and Close it during shutdown
// to drain queued calls.
type Assessor struct {
	agentSvc    agent.Service
	profiles    profile.Store
	transcripts transcript.Store
	bus         *events.EventBus

	queries map[string]string
	timeout time.Duration

	mu        sync.RWMutex
	closed    bool
	queue     chan bridge.CallReport
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// NewAssessor starts the assessment workers. The bus is optional; when set,
// summarize provider calls show up in metrics and traces like any other
// provider call.
func NewAssessor(agentSvc agent.Service, profiles profile.Store, transcripts transcript.Store, bus *events.EventBus, cfg Config) *Assessor {
	queries := cfg.Queries
	if len(queries) == 0 {
		queries = DefaultQueries()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	a := &Assessor{
		agentSvc:    agentSvc,
		profiles:    profiles,
		transcripts: transcripts,
		bus:         bus,
		queries:     queries,
		timeout:     timeout,
		queue:       make(chan bridge.CallReport, queueSize),
	}
	a.workers.Add(workers)
	for range workers {
		go a.worker()
	}
	return a
}

// Submit queues an ended call for assessment. It never blocks: reports are
// dropped, with a log line, when the queue is full or the assessor closed.
func (a *Assessor) Submit(report bridge.CallReport) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}
	select {
	case a.queue <- report:
	default:
		logger.Warn("assessment queue full, dropping call report",
			"call_sid", report.CallSID,
			"session_id", report.SessionID)
	}
}

// Close stops accepting reports, drains queued calls, and waits for the
// workers to finish. Safe to call more than once.
func (a *Assessor) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		close(a.queue)
		a.workers.Wait()
	})
}

func (a *Assessor) worker() {
	defer a.workers.Done()
	for report := range a.queue {
		a.assess(report)
	}
}

func (a *Assessor) assess(report bridge.CallReport) {
	if len(report.History) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(logger.WithSession(context.Background(), report.SessionID), a.timeout)
	defer cancel()

	emitter := events.NewEmitter(a.bus, report.CallSID, "")

	start := time.Now()
	emitter.ProviderCallStarted(a.agentSvc.Name(), opSummarize)
	raw, err := a.agentSvc.Summarize(ctx, report.History)
	elapsed := time.Since(start)
	if err != nil {
		emitter.ProviderCallFailed(a.agentSvc.Name(), opSummarize, err, elapsed)
		logger.ProviderError(ctx, a.agentSvc.Name(), opSummarize, err, "call_sid", report.CallSID)
		return
	}
	emitter.ProviderCallCompleted(a.agentSvc.Name(), opSummarize, elapsed)
	logger.ProviderResult(ctx, a.agentSvc.Name(), opSummarize, elapsed.Milliseconds(), "call_sid", report.CallSID)

	summary := a.extract(raw)
	summary.CallSID = report.CallSID
	summary.Timestamp = time.Now().UTC()

	if report.Profile != nil {
		if err := a.profiles.RecordSummary(ctx, report.Profile.ID, summary); err != nil {
			logger.Error("recording call summary failed",
				"call_sid", report.CallSID,
				"profile_id", report.Profile.ID,
				"error", err)
		}
	}
	if summary.Summary != "" {
		if err := a.transcripts.Append(ctx, report.SessionID, summaryRole, summary.Summary); err != nil {
			logger.Warn("appending summary to transcript failed",
				"session_id", report.SessionID,
				"error", err)
		}
	}

	logger.Info("call assessed",
		"call_sid", report.CallSID,
		"mood", summary.Mood,
		"concerns", len(summary.Concerns),
		"has_profile", report.Profile != nil)
}

// extract runs the configured queries against the agent's summary. When the
// response is not JSON, or every query misses, the raw text stands in as
// the summary.
func (a *Assessor) extract(raw string) profile.CallSummary {
	out := profile.CallSummary{Summary: strings.TrimSpace(raw)}
	doc := parseSummaryJSON(raw)
	if doc == nil {
		return out
	}

	for field, expr := range a.queries {
		v, err := jmespath.Search(expr, doc)
		if err != nil || v == nil {
			continue
		}
		switch field {
		case queryMood:
			if s, ok := v.(string); ok {
				out.Mood = s
			}
		case queryConcerns:
			out.Concerns = toStringSlice(v)
		case queryMedication:
			if b, ok := v.(bool); ok {
				out.MedicationTaken = &b
			}
		case querySummary:
			if s, ok := v.(string); ok && s != "" {
				out.Summary = s
			}
		default:
			if out.Fields == nil {
				out.Fields = make(map[string]any)
			}
			out.Fields[field] = v
		}
	}
	return out
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*\\n([\\s\\S]*?)\\n```")

// parseSummaryJSON unmarshals the agent's response, tolerating code fences
// and prose around the JSON object. Returns nil when no JSON can be found.
func parseSummaryJSON(raw string) any {
	if doc := tryUnmarshal(raw); doc != nil {
		return doc
	}
	if m := fencedJSON.FindStringSubmatch(raw); len(m) > 1 {
		if doc := tryUnmarshal(strings.TrimSpace(m[1])); doc != nil {
			return doc
		}
	}
	if idx := strings.Index(raw, "{"); idx >= 0 {
		if frag := balancedJSON(raw[idx:]); frag != "" {
			if doc := tryUnmarshal(frag); doc != nil {
				return doc
			}
		}
	}
	return nil
}

func tryUnmarshal(s string) any {
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil
	}
	return doc
}

// balancedJSON returns the shortest balanced object starting at content[0],
// or "" when the braces never close.
func balancedJSON(content string) string {
	depth, inString, escaped := 0, false, false
	for i := 0; i < len(content); i++ {
		switch ch := content[i]; {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case ch == '{' && !inString:
			depth++
		case ch == '}' && !inString:
			depth--
			if depth == 0 {
				return content[:i+1]
			}
		}
	}
	return ""
}

// toStringSlice flattens a query result into concern strings. Non-string
// items are skipped; a bare string becomes a one-element slice.
func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	}
	return nil
}
