package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carebridge"

var (
	// callsActive is a gauge of currently active call sessions.
	callsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of currently active call sessions",
		},
	)

	// callDuration is a histogram of total call duration in seconds.
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Histogram of total call duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 240, 300, 360},
		},
		[]string{"reason"},
	)

	// gateDecisionsTotal is a counter of voice activity gate classifications.
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total number of voice activity gate classifications",
		},
		[]string{"result"}, // result: speech, silence, calibrating
	)

	// turnStageDuration is a histogram of turn pipeline stage duration.
	turnStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_duration_seconds",
			Help:      "Duration of turn pipeline stages in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"}, // stage: transcribe, reply, synthesize, total
	)

	// turnsTotal is a counter of conversation turns.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"status"}, // status: success, error
	)

	// turnFailuresTotal is a counter of turns abandoned by a stage failure.
	turnFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_failures_total",
			Help:      "Total number of turns abandoned by a pipeline stage failure",
		},
		[]string{"stage"},
	)

	// providerRequestDuration is a histogram of provider API call duration.
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of speech and agent provider calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	// providerRequestsTotal is a counter of provider API calls.
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of speech and agent provider calls",
		},
		[]string{"provider", "operation", "status"}, // status: success, error
	)

	// promptEscalationsTotal is a counter of silence re-engagement prompts.
	promptEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_escalations_total",
			Help:      "Total number of silence re-engagement prompts spoken",
		},
	)

	// stateTransitionsTotal is a counter of session state transitions.
	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions by target state",
		},
		[]string{"to"},
	)

	// transportFramesTotal is a counter of media stream wire frames.
	transportFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_frames_total",
			Help:      "Total number of media stream frames by direction and wire event",
		},
		[]string{"direction", "event"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		callsActive,
		callDuration,
		gateDecisionsTotal,
		turnStageDuration,
		turnsTotal,
		turnFailuresTotal,
		providerRequestDuration,
		providerRequestsTotal,
		promptEscalationsTotal,
		stateTransitionsTotal,
		transportFramesTotal,
	}
)

// RecordCallStart records a call session starting.
func RecordCallStart() {
	callsActive.Inc()
}

// RecordCallEnd records a call session ending.
func RecordCallEnd(reason string, durationSeconds float64) {
	callsActive.Dec()
	callDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordGateDecision records a voice activity classification.
func RecordGateDecision(result string) {
	gateDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordTurnCompleted records a successful turn and its stage durations.
func RecordTurnCompleted(totalSeconds, transcribeSeconds, replySeconds, synthesizeSeconds float64) {
	turnsTotal.WithLabelValues(statusSuccess).Inc()
	turnStageDuration.WithLabelValues("total").Observe(totalSeconds)
	turnStageDuration.WithLabelValues("transcribe").Observe(transcribeSeconds)
	turnStageDuration.WithLabelValues("reply").Observe(replySeconds)
	turnStageDuration.WithLabelValues("synthesize").Observe(synthesizeSeconds)
}

// RecordTurnFailed records a turn abandoned by the given stage.
func RecordTurnFailed(stage string) {
	turnsTotal.WithLabelValues(statusError).Inc()
	if stage != "" {
		turnFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// RecordProviderRequest records a provider API call.
func RecordProviderRequest(provider, operation, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider, operation).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordPromptEscalation records a silence re-engagement prompt.
func RecordPromptEscalation() {
	promptEscalationsTotal.Inc()
}

// RecordStateTransition records a session entering the given state.
func RecordStateTransition(to string) {
	stateTransitionsTotal.WithLabelValues(to).Inc()
}

// RecordTransportFrame records a media stream wire frame.
func RecordTransportFrame(direction, event string) {
	transportFramesTotal.WithLabelValues(direction, event).Inc()
}
