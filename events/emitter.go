package events

import "time"

// Emitter provides helpers for publishing call events with shared metadata.
// A nil Emitter is valid and discards all events, so sessions can run
// without a bus attached.
type Emitter struct {
	bus       *EventBus
	callSID   string
	streamSID string
}

// NewEmitter creates an emitter scoped to a single call.
func NewEmitter(bus *EventBus, callSID, streamSID string) *Emitter {
	return &Emitter{
		bus:       bus,
		callSID:   callSID,
		streamSID: streamSID,
	}
}

// emit publishes an event with shared call fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		CallSID:   e.callSID,
		StreamSID: e.streamSID,
		Data:      data,
	}

	e.bus.Publish(event)
}

// CallStarted emits the call.started event.
func (e *Emitter) CallStarted(caller string, hasProfile bool) {
	e.emit(EventCallStarted, &CallStartedData{
		Caller:     caller,
		HasProfile: hasProfile,
	})
}

// CallEnded emits the call.ended event.
func (e *Emitter) CallEnded(reason string, duration time.Duration, turns, prompts int) {
	e.emit(EventCallEnded, &CallEndedData{
		Reason:   reason,
		Duration: duration,
		Turns:    turns,
		Prompts:  prompts,
	})
}

// StateChanged emits the call.state_changed event.
func (e *Emitter) StateChanged(from, to, trigger string) {
	e.emit(EventCallStateChanged, &StateChangedData{
		From:  from,
		To:    to,
		Event: trigger,
	})
}

// GateDecision emits the gate.decision event.
func (e *Emitter) GateDecision(speech, calibrating bool, mode string, rms, threshold, voicedRatio float64) {
	e.emit(EventGateDecision, &GateDecisionData{
		Speech:      speech,
		Calibrating: calibrating,
		Mode:        mode,
		RMS:         rms,
		Threshold:   threshold,
		VoicedRatio: voicedRatio,
	})
}

// TurnStarted emits the turn.started event.
func (e *Emitter) TurnStarted(turnID string, bufferBytes int) {
	e.emit(EventTurnStarted, &TurnStartedData{
		TurnID:      turnID,
		BufferBytes: bufferBytes,
	})
}

// TurnCompleted emits the turn.completed event.
func (e *Emitter) TurnCompleted(data *TurnCompletedData) {
	if data == nil {
		return
	}
	e.emit(EventTurnCompleted, data)
}

// TurnFailed emits the turn.failed event.
func (e *Emitter) TurnFailed(turnID, stage string, err error, duration time.Duration) {
	e.emit(EventTurnFailed, &TurnFailedData{
		TurnID:   turnID,
		Stage:    stage,
		Error:    err,
		Duration: duration,
	})
}

// ProviderCallStarted emits the provider.call.started event.
func (e *Emitter) ProviderCallStarted(provider, operation string) {
	e.emit(EventProviderCallStarted, &ProviderCallStartedData{
		Provider:  provider,
		Operation: operation,
	})
}

// ProviderCallCompleted emits the provider.call.completed event.
func (e *Emitter) ProviderCallCompleted(provider, operation string, duration time.Duration) {
	e.emit(EventProviderCallCompleted, &ProviderCallCompletedData{
		Provider:  provider,
		Operation: operation,
		Duration:  duration,
	})
}

// ProviderCallFailed emits the provider.call.failed event.
func (e *Emitter) ProviderCallFailed(provider, operation string, err error, duration time.Duration) {
	e.emit(EventProviderCallFailed, &ProviderCallFailedData{
		Provider:  provider,
		Operation: operation,
		Error:     err,
		Duration:  duration,
	})
}

// PromptEscalated emits the prompt.escalated event.
func (e *Emitter) PromptEscalated(attempt, maxAttempts int) {
	e.emit(EventPromptEscalated, &PromptEscalatedData{
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	})
}

// TransportFrame emits the transport.frame event.
func (e *Emitter) TransportFrame(direction, wireEvent string) {
	e.emit(EventTransportFrame, &TransportFrameData{
		Direction: direction,
		Event:     wireEvent,
	})
}
