package prometheus

import (
	"github.com/AltairaLabs/CareBridge/events"
)

// Metric label values.
const (
	statusSuccess = "success"
	statusError   = "error"

	resultSpeech      = "speech"
	resultSilence     = "silence"
	resultCalibrating = "calibrating"
)

// MetricsListener translates bus events into the call metrics. Register it
// on an EventBus with SubscribeAll; events without a metric fall through.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle records the metrics for one event. Events whose payload is missing
// or of an unexpected type are skipped.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventCallStarted:
		RecordCallStart()

	case events.EventCallEnded:
		if d, ok := event.Data.(*events.CallEndedData); ok {
			RecordCallEnd(d.Reason, d.Duration.Seconds())
		}

	case events.EventCallStateChanged:
		if d, ok := event.Data.(*events.StateChangedData); ok {
			RecordStateTransition(d.To)
		}

	case events.EventGateDecision:
		if d, ok := event.Data.(*events.GateDecisionData); ok {
			switch {
			case d.Calibrating:
				RecordGateDecision(resultCalibrating)
			case d.Speech:
				RecordGateDecision(resultSpeech)
			default:
				RecordGateDecision(resultSilence)
			}
		}

	case events.EventTurnCompleted:
		if d, ok := event.Data.(*events.TurnCompletedData); ok {
			RecordTurnCompleted(d.Duration.Seconds(), d.TranscribeDur.Seconds(),
				d.ReplyDur.Seconds(), d.SynthesizeDur.Seconds())
		}

	case events.EventTurnFailed:
		if d, ok := event.Data.(*events.TurnFailedData); ok {
			RecordTurnFailed(d.Stage)
		}

	case events.EventProviderCallCompleted:
		if d, ok := event.Data.(*events.ProviderCallCompletedData); ok {
			RecordProviderRequest(d.Provider, d.Operation, statusSuccess, d.Duration.Seconds())
		}

	case events.EventProviderCallFailed:
		if d, ok := event.Data.(*events.ProviderCallFailedData); ok {
			RecordProviderRequest(d.Provider, d.Operation, statusError, d.Duration.Seconds())
		}

	case events.EventPromptEscalated:
		RecordPromptEscalation()

	case events.EventTransportFrame:
		if d, ok := event.Data.(*events.TransportFrameData); ok {
			RecordTransportFrame(d.Direction, d.Event)
		}
	}
}

// Listener returns Handle as an events.Listener for bus registration.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
