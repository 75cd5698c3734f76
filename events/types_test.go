package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Every payload must satisfy EventData through the embedded marker.
var _ = []EventData{
	baseEventData{},
	&CallStartedData{},
	&CallEndedData{},
	&StateChangedData{},
	&GateDecisionData{},
	&TurnStartedData{},
	&TurnCompletedData{},
	&TurnFailedData{},
	&ProviderCallStartedData{},
	&ProviderCallCompletedData{},
	&ProviderCallFailedData{},
	&PromptEscalatedData{},
	&TransportFrameData{},
}

// The dotted names feed dashboards and log filters; renaming one silently
// breaks them, so the values are pinned here.
func TestEventTypeNames(t *testing.T) {
	want := map[EventType]string{
		EventCallStarted:           "call.started",
		EventCallEnded:             "call.ended",
		EventCallStateChanged:      "call.state_changed",
		EventGateDecision:          "gate.decision",
		EventTurnStarted:           "turn.started",
		EventTurnCompleted:         "turn.completed",
		EventTurnFailed:            "turn.failed",
		EventProviderCallStarted:   "provider.call.started",
		EventProviderCallCompleted: "provider.call.completed",
		EventProviderCallFailed:    "provider.call.failed",
		EventPromptEscalated:       "prompt.escalated",
		EventTransportFrame:        "transport.frame",
	}
	for typ, name := range want {
		assert.Equal(t, name, string(typ))
	}
}
