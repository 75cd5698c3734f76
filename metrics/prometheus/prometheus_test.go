package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/CareBridge/events"
)

// resetCallMetrics zeroes the collectors so counts from one test cannot
// leak into another. promptEscalationsTotal is a plain counter and cannot
// be reset; tests on it compare before/after.
func resetCallMetrics() {
	callsActive.Set(0)
	callDuration.Reset()
	gateDecisionsTotal.Reset()
	turnStageDuration.Reset()
	turnsTotal.Reset()
	turnFailuresTotal.Reset()
	providerRequestDuration.Reset()
	providerRequestsTotal.Reset()
	stateTransitionsTotal.Reset()
	transportFramesTotal.Reset()
}

// publishAll delivers events through a real bus so the test exercises the
// same dispatch path the app wires up, then drains it.
func publishAll(t *testing.T, l *MetricsListener, evs ...*events.Event) {
	t.Helper()
	bus := events.NewEventBus()
	bus.SubscribeAll(l.Handle)
	for _, ev := range evs {
		require.True(t, bus.Publish(ev))
	}
	bus.Close()
}

func TestCallLifecycleMetrics(t *testing.T) {
	resetCallMetrics()

	RecordCallStart()
	RecordCallStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(callsActive))

	RecordCallEnd("agent_farewell", 95)
	RecordCallEnd("time_limit", 360)
	assert.Zero(t, testutil.ToFloat64(callsActive))

	// One duration series per end reason.
	assert.Equal(t, 2, testutil.CollectAndCount(callDuration))
}

func TestGateDecisionMetrics(t *testing.T) {
	resetCallMetrics()

	RecordGateDecision("speech")
	RecordGateDecision("silence")
	RecordGateDecision("silence")
	RecordGateDecision("calibrating")

	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("speech")))
	assert.Equal(t, 2.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("silence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("calibrating")))
}

func TestTurnMetrics(t *testing.T) {
	resetCallMetrics()

	RecordTurnCompleted(3.2, 0.8, 1.5, 0.9)
	RecordTurnCompleted(2.1, 0.5, 1.0, 0.6)
	RecordTurnFailed("transcribe")

	assert.Equal(t, 2.0, testutil.ToFloat64(turnsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(turnFailuresTotal.WithLabelValues("transcribe")))

	// transcribe, reply, synthesize and total stage series.
	assert.Equal(t, 4, testutil.CollectAndCount(turnStageDuration))
}

// gatherFamily collects one metric family through a registry so tests can
// inspect the wire DTOs rather than only summed values.
func gatherFamily(t *testing.T, c prometheus.Collector, name string) *dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s was not gathered", name)
	return nil
}

func TestTurnStageHistogramSamples(t *testing.T) {
	resetCallMetrics()

	RecordTurnCompleted(3.2, 0.8, 1.5, 0.9)
	RecordTurnCompleted(2.1, 0.5, 1.0, 0.6)

	mf := gatherFamily(t, turnStageDuration, "carebridge_turn_stage_duration_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())

	byStage := make(map[string]*dto.Histogram)
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "stage" {
				byStage[lp.GetValue()] = m.GetHistogram()
			}
		}
	}
	require.Len(t, byStage, 4)
	assert.Equal(t, uint64(2), byStage["total"].GetSampleCount())
	assert.InDelta(t, 5.3, byStage["total"].GetSampleSum(), 1e-9)
	assert.InDelta(t, 1.3, byStage["transcribe"].GetSampleSum(), 1e-9)
}

func TestTurnFailedWithoutStage(t *testing.T) {
	resetCallMetrics()

	RecordTurnFailed("")

	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("error")))
	assert.Zero(t, testutil.CollectAndCount(turnFailuresTotal))
}

func TestProviderRequestMetrics(t *testing.T) {
	resetCallMetrics()

	RecordProviderRequest("openai", "transcribe", "success", 0.8)
	RecordProviderRequest("elevenlabs", "synthesize", "error", 0.5)

	assert.Equal(t, 1.0,
		testutil.ToFloat64(providerRequestsTotal.WithLabelValues("openai", "transcribe", "success")))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(providerRequestsTotal.WithLabelValues("elevenlabs", "synthesize", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(providerRequestDuration))
}

func TestListener_CallAndStateEvents(t *testing.T) {
	resetCallMetrics()

	publishAll(t, NewMetricsListener(),
		&events.Event{Type: events.EventCallStarted, Data: &events.CallStartedData{}},
		&events.Event{Type: events.EventCallStateChanged,
			Data: &events.StateChangedData{From: "greeting", To: "listening"}},
		&events.Event{Type: events.EventCallEnded,
			Data: &events.CallEndedData{Reason: "remote_stop", Duration: 90 * time.Second, Turns: 4}},
	)

	assert.Zero(t, testutil.ToFloat64(callsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(stateTransitionsTotal.WithLabelValues("listening")))
	assert.Equal(t, 1, testutil.CollectAndCount(callDuration))
}

func TestListener_CalibratingWinsOverSpeech(t *testing.T) {
	resetCallMetrics()
	l := NewMetricsListener()

	l.Handle(&events.Event{Type: events.EventGateDecision,
		Data: &events.GateDecisionData{Calibrating: true, Speech: true}})
	l.Handle(&events.Event{Type: events.EventGateDecision,
		Data: &events.GateDecisionData{Speech: true}})
	l.Handle(&events.Event{Type: events.EventGateDecision,
		Data: &events.GateDecisionData{}})

	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("calibrating")))
	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("speech")))
	assert.Equal(t, 1.0, testutil.ToFloat64(gateDecisionsTotal.WithLabelValues("silence")))
}

func TestListener_TurnAndProviderEvents(t *testing.T) {
	resetCallMetrics()

	publishAll(t, NewMetricsListener(),
		&events.Event{Type: events.EventTurnCompleted, Data: &events.TurnCompletedData{
			Duration:      3 * time.Second,
			TranscribeDur: 800 * time.Millisecond,
			ReplyDur:      1500 * time.Millisecond,
			SynthesizeDur: 700 * time.Millisecond,
		}},
		&events.Event{Type: events.EventTurnFailed,
			Data: &events.TurnFailedData{Stage: "reply", Duration: 2 * time.Second}},
		&events.Event{Type: events.EventProviderCallCompleted, Data: &events.ProviderCallCompletedData{
			Provider: "openai", Operation: "reply", Duration: 2 * time.Second,
		}},
		&events.Event{Type: events.EventProviderCallFailed, Data: &events.ProviderCallFailedData{
			Provider: "deepgram", Operation: "transcribe", Duration: time.Second,
		}},
	)

	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(turnFailuresTotal.WithLabelValues("reply")))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(providerRequestsTotal.WithLabelValues("openai", "reply", "success")))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(providerRequestsTotal.WithLabelValues("deepgram", "transcribe", "error")))
}

func TestListener_EscalationAndFrames(t *testing.T) {
	resetCallMetrics()
	before := testutil.ToFloat64(promptEscalationsTotal)

	publishAll(t, NewMetricsListener(),
		&events.Event{Type: events.EventPromptEscalated,
			Data: &events.PromptEscalatedData{Attempt: 1, MaxAttempts: 3}},
		&events.Event{Type: events.EventTransportFrame,
			Data: &events.TransportFrameData{Direction: "in", Event: "media"}},
	)

	assert.Equal(t, 1.0, testutil.ToFloat64(promptEscalationsTotal)-before)
	assert.Equal(t, 1.0, testutil.ToFloat64(transportFramesTotal.WithLabelValues("in", "media")))
}

func TestListener_ToleratesForeignAndNilData(t *testing.T) {
	resetCallMetrics()
	l := NewMetricsListener()

	// Events without a metric, and events whose payload is missing or
	// belongs to a different event type, must not panic.
	l.Handle(&events.Event{Type: events.EventTurnStarted, Data: &events.TurnStartedData{}})
	l.Handle(&events.Event{Type: events.EventCallEnded})
	l.Handle(&events.Event{Type: events.EventTurnCompleted, Data: &events.CallStartedData{}})

	assert.Zero(t, testutil.CollectAndCount(turnsTotal), "mismatched payloads record nothing")
	assert.Zero(t, testutil.CollectAndCount(callDuration))
}

func TestListener_AsFunc(t *testing.T) {
	resetCallMetrics()

	fn := NewMetricsListener().Listener()
	require.NotNil(t, fn)

	fn(&events.Event{Type: events.EventCallStarted, Data: &events.CallStartedData{}})
	assert.Equal(t, 1.0, testutil.ToFloat64(callsActive))
}

func TestExporter_ServesBridgeMetrics(t *testing.T) {
	resetCallMetrics()
	RecordGateDecision("speech")

	e := NewExporter(":9091")
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err, "scrape output parses as the text exposition format")

	gate, ok := families["carebridge_gate_decisions_total"]
	require.True(t, ok, "bridge collectors are exposed")
	require.Len(t, gate.GetMetric(), 1)
	assert.Equal(t, 1.0, gate.GetMetric()[0].GetCounter().GetValue())
	assert.Contains(t, families, "go_goroutines", "runtime collectors are exposed")
}

func TestExporter_HealthEndpoint(t *testing.T) {
	e := NewExporterWithRegistry(":9092", prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestExporter_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	heartbeats := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dialer_heartbeats_total",
		Help: "Dialer heartbeats.",
	})
	reg.MustRegister(heartbeats)
	heartbeats.Inc()

	e := NewExporterWithRegistry(":9093", reg)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dialer_heartbeats_total 1")
}

func TestExporter_StartShutdown(t *testing.T) {
	e := NewExporterWithRegistry("127.0.0.1:0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start() }()
	time.Sleep(100 * time.Millisecond)

	// A second Start on a running exporter is a no-op.
	require.NoError(t, e.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
