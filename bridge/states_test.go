package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitializing, "initializing"},
		{StateGreeting, "greeting"},
		{StateListening, "listening"},
		{StateAccumulating, "accumulating"},
		{StateProcessing, "processing"},
		{StateSpeaking, "speaking"},
		{StatePrompting, "prompting"},
		{StateTerminating, "terminating"},
		{StateEnded, "ended"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateEnded.Terminal())
	assert.False(t, StateTerminating.Terminal())
	assert.False(t, StateListening.Terminal())
}

func TestStateCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"initializing to greeting", StateInitializing, StateGreeting, true},
		{"greeting to listening", StateGreeting, StateListening, true},
		{"listening to accumulating", StateListening, StateAccumulating, true},
		{"listening to processing", StateListening, StateProcessing, true},
		{"listening to prompting", StateListening, StatePrompting, true},
		{"accumulating to listening", StateAccumulating, StateListening, true},
		{"accumulating to processing", StateAccumulating, StateProcessing, true},
		{"processing to speaking", StateProcessing, StateSpeaking, true},
		{"processing to listening", StateProcessing, StateListening, true},
		{"speaking to listening", StateSpeaking, StateListening, true},
		{"prompting to listening", StatePrompting, StateListening, true},

		{"listening to speaking skips processing", StateListening, StateSpeaking, false},
		{"greeting to processing", StateGreeting, StateProcessing, false},
		{"initializing to listening", StateInitializing, StateListening, false},
		{"same state", StateListening, StateListening, false},

		// A stop or the duration limit can force termination from anywhere.
		{"greeting to ended", StateGreeting, StateEnded, true},
		{"processing to terminating", StateProcessing, StateTerminating, true},
		{"speaking to terminating", StateSpeaking, StateTerminating, true},
		{"terminating to ended", StateTerminating, StateEnded, true},

		{"ended is terminal", StateEnded, StateListening, false},
		{"ended to terminating", StateEnded, StateTerminating, false},
		{"terminating to listening", StateTerminating, StateListening, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}
