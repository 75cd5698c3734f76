package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/CareBridge/events"
)

// Span keys share one namespace; the prefix keeps a turn ID from ever
// colliding with a call SID.
func callKey(sid string) string { return "call:" + sid }
func turnKey(id string) string  { return "turn:" + id }

// providerKey scopes a provider span to its call. Turn stages run
// sequentially, so at most one request per operation is live per call.
func providerKey(callSID, operation string) string {
	return "provider:" + callSID + ":" + operation
}

// spanEntry pairs a live span with the context that parents its children.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // parent for child spans
}

// spanFinish is the recorded outcome of a span: closing attributes plus
// an error message, empty on success.
type spanFinish struct {
	errMsg string
	attrs  []attribute.KeyValue
}

// apply closes span with the recorded outcome.
func (f *spanFinish) apply(span trace.Span) {
	span.SetAttributes(f.attrs...)
	if f.errMsg != "" {
		span.SetStatus(codes.Error, f.errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// OTelEventListener maps call events onto OTel spans as they happen. Each
// call gets a server root span; turns and provider requests become child
// spans under it. Gate decisions and transport frames fire far too often
// to trace and are ignored, while state changes and prompt escalations
// land on the call span as span events.
//
// The bus delivers through a worker pool, so a completion can overtake
// the start it belongs to. An outcome with no live span is parked in
// deferred and applied the moment the start shows up.
type OTelEventListener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	live     map[string]*spanEntry
	deferred map[string]*spanFinish
}

// NewOTelEventListener returns a listener that traces call events with tracer.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:   tracer,
		live:     make(map[string]*spanEntry),
		deferred: make(map[string]*spanFinish),
	}
}

// OnEvent dispatches one event. Safe for concurrent use, so it can be
// subscribed on the bus directly.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // high-rate event types are deliberately untraced
	switch evt.Type {
	case events.EventCallStarted:
		l.startCall(evt)
	case events.EventCallEnded:
		l.endCall(evt)
	case events.EventCallStateChanged:
		l.recordStateChange(evt)
	case events.EventTurnStarted:
		l.startTurn(evt)
	case events.EventTurnCompleted:
		l.completeTurn(evt)
	case events.EventTurnFailed:
		l.failTurn(evt)
	case events.EventProviderCallStarted:
		l.startProvider(evt)
	case events.EventProviderCallCompleted:
		l.completeProvider(evt)
	case events.EventProviderCallFailed:
		l.failProvider(evt)
	case events.EventPromptEscalated:
		l.recordEscalation(evt)
	}
}

// beginSpan opens a span under parent and tracks it by key. An outcome
// that arrived early is applied right away and the span never goes live.
func (l *OTelEventListener) beginSpan(
	parent context.Context, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	ctx, span := l.tracer.Start(parent, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)

	l.mu.Lock()
	fin, early := l.deferred[key]
	if early {
		delete(l.deferred, key)
	} else {
		l.live[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if early {
		fin.apply(span)
	}
}

// settle closes the span tracked under key, or parks the outcome until
// the start arrives.
func (l *OTelEventListener) settle(key string, fin *spanFinish) {
	l.mu.Lock()
	entry, ok := l.live[key]
	if ok {
		delete(l.live, key)
	} else {
		l.deferred[key] = fin
	}
	l.mu.Unlock()

	if ok {
		fin.apply(entry.span)
	}
}

// callRoot returns the call's root span context so children nest under
// it, or Background when the call was never seen.
func (l *OTelEventListener) callRoot(callSID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.live[callKey(callSID)]; ok {
		return entry.ctx
	}
	return context.Background()
}

// addCallEvent attaches a span event to the call root span, if it is live.
func (l *OTelEventListener) addCallEvent(callSID, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.live[callKey(callSID)]
	l.mu.Unlock()
	if ok {
		entry.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (l *OTelEventListener) startCall(evt *events.Event) {
	attrs := []attribute.KeyValue{
		attribute.String("call.sid", evt.CallSID),
		attribute.String("stream.sid", evt.StreamSID),
	}
	if data, ok := evt.Data.(*events.CallStartedData); ok {
		// Caller arrives pre-redacted from the emitter.
		attrs = append(attrs,
			attribute.String("call.caller", data.Caller),
			attribute.Bool("call.has_profile", data.HasProfile),
		)
	}
	l.beginSpan(context.Background(), callKey(evt.CallSID), "carebridge.call",
		trace.SpanKindServer, attrs...)
}

func (l *OTelEventListener) endCall(evt *events.Event) {
	fin := &spanFinish{}
	if data, ok := evt.Data.(*events.CallEndedData); ok {
		fin.attrs = []attribute.KeyValue{
			attribute.String("call.end_reason", data.Reason),
			attribute.Int64("call.duration_ms", data.Duration.Milliseconds()),
			attribute.Int("call.turns", data.Turns),
			attribute.Int("call.prompts", data.Prompts),
		}
	}
	l.settle(callKey(evt.CallSID), fin)
}

func (l *OTelEventListener) recordStateChange(evt *events.Event) {
	data, ok := evt.Data.(*events.StateChangedData)
	if !ok {
		return
	}
	l.addCallEvent(evt.CallSID, "call.state_changed",
		attribute.String("state.from", data.From),
		attribute.String("state.to", data.To),
		attribute.String("state.event", data.Event),
	)
}

func (l *OTelEventListener) recordEscalation(evt *events.Event) {
	data, ok := evt.Data.(*events.PromptEscalatedData)
	if !ok {
		return
	}
	l.addCallEvent(evt.CallSID, "prompt.escalated",
		attribute.Int("prompt.attempt", data.Attempt),
		attribute.Int("prompt.max_attempts", data.MaxAttempts),
	)
}

func (l *OTelEventListener) startTurn(evt *events.Event) {
	data, ok := evt.Data.(*events.TurnStartedData)
	if !ok {
		return
	}
	l.beginSpan(l.callRoot(evt.CallSID), turnKey(data.TurnID), "carebridge.turn",
		trace.SpanKindInternal,
		attribute.String("turn.id", data.TurnID),
		attribute.Int("turn.buffer_bytes", data.BufferBytes),
	)
}

func (l *OTelEventListener) completeTurn(evt *events.Event) {
	data, ok := evt.Data.(*events.TurnCompletedData)
	if !ok {
		return
	}
	// Transcript text stays off the span; only its size is recorded.
	l.settle(turnKey(data.TurnID), &spanFinish{attrs: []attribute.KeyValue{
		attribute.Int64("turn.duration_ms", data.Duration.Milliseconds()),
		attribute.Int64("turn.transcribe_ms", data.TranscribeDur.Milliseconds()),
		attribute.Int64("turn.reply_ms", data.ReplyDur.Milliseconds()),
		attribute.Int64("turn.synthesize_ms", data.SynthesizeDur.Milliseconds()),
		attribute.Int("turn.transcript_chars", len(data.Transcript)),
		attribute.Int("turn.reply_chars", data.ReplyChars),
	}})
}

func (l *OTelEventListener) failTurn(evt *events.Event) {
	data, ok := evt.Data.(*events.TurnFailedData)
	if !ok {
		return
	}
	l.settle(turnKey(data.TurnID), &spanFinish{
		errMsg: data.Error.Error(),
		attrs: []attribute.KeyValue{
			attribute.Int64("turn.duration_ms", data.Duration.Milliseconds()),
			attribute.String("turn.stage", data.Stage),
		},
	})
}

func (l *OTelEventListener) startProvider(evt *events.Event) {
	data, ok := evt.Data.(*events.ProviderCallStartedData)
	if !ok {
		return
	}
	l.beginSpan(l.callRoot(evt.CallSID), providerKey(evt.CallSID, data.Operation),
		"carebridge.provider."+data.Provider,
		trace.SpanKindClient,
		attribute.String("provider.name", data.Provider),
		attribute.String("provider.operation", data.Operation),
	)
}

func (l *OTelEventListener) completeProvider(evt *events.Event) {
	data, ok := evt.Data.(*events.ProviderCallCompletedData)
	if !ok {
		return
	}
	l.settle(providerKey(evt.CallSID, data.Operation), &spanFinish{attrs: []attribute.KeyValue{
		attribute.Int64("provider.duration_ms", data.Duration.Milliseconds()),
	}})
}

func (l *OTelEventListener) failProvider(evt *events.Event) {
	data, ok := evt.Data.(*events.ProviderCallFailedData)
	if !ok {
		return
	}
	l.settle(providerKey(evt.CallSID, data.Operation), &spanFinish{
		errMsg: data.Error.Error(),
		attrs: []attribute.KeyValue{
			attribute.Int64("provider.duration_ms", data.Duration.Milliseconds()),
		},
	})
}
