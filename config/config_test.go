package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/CareBridge/assessment"
	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/stt"
)

const minimalManifest = `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec: {}
`

const fullManifest = `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec:
  listen: ":18080"
  metricsListen: ":19090"
  maxConcurrentTurns: 4
  gate:
    mode: energy
    sampleRate: 16000
    calibrationChunks: 8
    ambientMultiplier: 2.5
    minEnergyFloor: 0.02
    zcrMin: 0.05
    zcrMax: 0.4
    dynamicRangeFloor: 0.006
    dynamicRangeWindows: 6
    centroidMinHz: 250
    centroidMaxHz: 2800
    frameDuration: 30ms
    aggressiveness: 2
    voicedWindowFrames: 8
    voicedWindowRatio: 0.5
  turns:
    chunkSize: 8000
    sustainedChunks: 3
    cooldown: 2s
    silenceChunks: 15
    promptGrace: 10s
    maxAttempts: 2
  call:
    maxDuration: 10m
    warnAfter: 9m
    profileTimeout: 3s
    turnTimeout: 45s
    greeting: "Hello from the full manifest."
    reengagementPrompt: "Are you still there?"
    timeWarning: "We have about thirty seconds left."
    timeUpFarewell: "We are out of time, goodbye."
    farewell: "Goodbye now."
    noResponseFarewell: "I could not hear you, goodbye."
    exitPhrases: ["goodbye now"]
    shortExitWords: ["bye"]
    farewellIndicators: ["take care"]
  dispatcher:
    frameSize: 320
    frameInterval: 40ms
  providers:
    stt:
      provider: openai
      baseUrl: "http://stt.local/v1"
      model: gpt-4o-transcribe
      language: es
      prompt: "Wellness check-in call."
    tts:
      provider: elevenlabs
      baseUrl: "http://tts.local"
      model: eleven_turbo_v2_5
      voice: river
      speed: 1.1
      sampleRate: 16000
    agent:
      provider: bedrock
      model: "anthropic.claude-3-haiku-20240307-v1:0"
      temperature: 0.5
      maxTokens: 300
      region: us-east-1
  assessment:
    queries:
      mood: "mood"
      pain: "concerns[0]"
    timeout: 20s
    queueSize: 8
    workers: 3
  cache:
    enabled: true
    addr: "redis.local:6379"
    password: sekrit
    db: 1
    ttl: 30m
    lockTtl: 10s
    prefix: cb-test
  recording:
    enabled: true
    dir: /var/lib/carebridge/recordings
  telemetry:
    enabled: true
    endpoint: "http://otel.local:4318"
  logging:
    level: debug
    format: json
    fields:
      env: staging
    packages:
      transport: trace
      metrics.prometheus: warn
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalManifest))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Spec.Listen)
	assert.Equal(t, DefaultMetricsListen, cfg.Spec.MetricsListen)
	assert.Equal(t, DefaultMaxConcurrentTurns, cfg.Spec.MaxConcurrentTurns)
	assert.Equal(t, ProviderOpenAI, cfg.Spec.Providers.STT.Provider)
	assert.Equal(t, ProviderElevenLabs, cfg.Spec.Providers.TTS.Provider)
	assert.Equal(t, ProviderOpenAI, cfg.Spec.Providers.Agent.Provider)
	assert.Equal(t, DefaultRedisAddr, cfg.Spec.Cache.Addr)
	assert.Equal(t, DefaultRecordingDir, cfg.Spec.Recording.Dir)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Spec.Telemetry.Endpoint)
	assert.Equal(t, assessment.DefaultQueries(), cfg.Spec.Assessment.Queries)
	assert.False(t, cfg.Spec.Cache.Enabled)
	assert.False(t, cfg.Spec.Recording.Enabled)
	assert.False(t, cfg.Spec.Telemetry.Enabled)

	gp, err := cfg.Spec.GateParams()
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultGateParams(), gp)

	tp, err := cfg.Spec.TurnParams()
	require.NoError(t, err)
	assert.Equal(t, bridge.DefaultTurnParams(), tp)

	cp, err := cfg.Spec.CallParams()
	require.NoError(t, err)
	assert.Equal(t, bridge.DefaultCallParams(), cp)

	dp, err := cfg.Spec.DispatcherParams()
	require.NoError(t, err)
	assert.Equal(t, bridge.DefaultDispatcherParams(), dp)

	xp, err := cfg.Spec.TranscoderParams()
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultTranscoderParams(), xp)

	assert.Equal(t, stt.DefaultTranscriptionConfig(), cfg.Spec.TranscriptionConfig())

	opts, err := cfg.Spec.CacheOptions()
	require.NoError(t, err)
	assert.Empty(t, opts)

	assert.Equal(t, logger.Options{}, cfg.Spec.LoggerOptions())
}

func TestParse_FullManifest(t *testing.T) {
	cfg, err := Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.Spec.Listen)
	assert.Equal(t, ":19090", cfg.Spec.MetricsListen)
	assert.Equal(t, 4, cfg.Spec.MaxConcurrentTurns)

	gp, err := cfg.Spec.GateParams()
	require.NoError(t, err)
	assert.Equal(t, audio.GateModeEnergy, gp.Mode)
	assert.Equal(t, 16000, gp.SampleRate)
	assert.Equal(t, 8, gp.CalibrationChunks)
	assert.Equal(t, 2.5, gp.AmbientMultiplier)
	assert.Equal(t, 0.02, gp.MinEnergyFloor)
	assert.Equal(t, 0.05, gp.ZCRMin)
	assert.Equal(t, 0.4, gp.ZCRMax)
	assert.Equal(t, 0.006, gp.DynamicRangeFloor)
	assert.Equal(t, 6, gp.DynamicRangeWindows)
	assert.Equal(t, 250.0, gp.CentroidMinHz)
	assert.Equal(t, 2800.0, gp.CentroidMaxHz)
	assert.Equal(t, 30*time.Millisecond, gp.FrameDuration)
	assert.Equal(t, 2, gp.Aggressiveness)
	assert.Equal(t, 8, gp.VoicedWindowFrames)
	assert.Equal(t, 0.5, gp.VoicedWindowRatio)

	tp, err := cfg.Spec.TurnParams()
	require.NoError(t, err)
	assert.Equal(t, 8000, tp.ChunkSize)
	assert.Equal(t, 3, tp.SustainedChunks)
	assert.Equal(t, 2*time.Second, tp.Cooldown)
	assert.Equal(t, 15, tp.SilenceChunks)
	assert.Equal(t, 10*time.Second, tp.PromptGrace)
	assert.Equal(t, 2, tp.MaxAttempts)

	cp, err := cfg.Spec.CallParams()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cp.MaxDuration)
	assert.Equal(t, 9*time.Minute, cp.WarnAfter)
	assert.Equal(t, 3*time.Second, cp.ProfileTimeout)
	assert.Equal(t, 45*time.Second, cp.TurnTimeout)
	assert.Equal(t, "Hello from the full manifest.", cp.Greeting)
	assert.Equal(t, "Are you still there?", cp.ReengagementPrompt)
	assert.Equal(t, "We have about thirty seconds left.", cp.TimeWarning)
	assert.Equal(t, "We are out of time, goodbye.", cp.TimeUpFarewell)
	assert.Equal(t, "Goodbye now.", cp.Farewell)
	assert.Equal(t, "I could not hear you, goodbye.", cp.NoResponseFarewell)
	assert.Equal(t, []string{"goodbye now"}, cp.ExitPhrases)
	assert.Equal(t, []string{"bye"}, cp.ShortExitWords)
	assert.Equal(t, []string{"take care"}, cp.FarewellIndicators)

	dp, err := cfg.Spec.DispatcherParams()
	require.NoError(t, err)
	assert.Equal(t, 320, dp.FrameSize)
	assert.Equal(t, 40*time.Millisecond, dp.FrameInterval)

	xp, err := cfg.Spec.TranscoderParams()
	require.NoError(t, err)
	assert.Equal(t, 16000, xp.WireSampleRate)
	assert.Equal(t, 16000, xp.SynthSampleRate)

	sc := cfg.Spec.TranscriptionConfig()
	assert.Equal(t, "gpt-4o-transcribe", sc.Model)
	assert.Equal(t, "es", sc.Language)
	assert.Equal(t, "Wellness check-in call.", sc.Prompt)
	assert.Equal(t, "http://stt.local/v1", cfg.Spec.Providers.STT.BaseURL)

	yc := cfg.Spec.SynthesisConfig()
	assert.Equal(t, "river", yc.Voice)
	assert.Equal(t, "eleven_turbo_v2_5", yc.Model)
	assert.Equal(t, 1.1, yc.Speed)
	assert.Equal(t, 16000, yc.Format.SampleRate)

	assert.Equal(t, ProviderBedrock, cfg.Spec.Providers.Agent.Provider)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", cfg.Spec.Providers.Agent.Model)
	require.NotNil(t, cfg.Spec.Providers.Agent.Temperature)
	assert.Equal(t, 0.5, *cfg.Spec.Providers.Agent.Temperature)
	assert.Equal(t, 300, cfg.Spec.Providers.Agent.MaxTokens)
	assert.Equal(t, "us-east-1", cfg.Spec.Providers.Agent.Region)

	ac, err := cfg.Spec.AssessmentConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mood": "mood", "pain": "concerns[0]"}, ac.Queries)
	assert.Equal(t, 20*time.Second, ac.Timeout)
	assert.Equal(t, 8, ac.QueueSize)
	assert.Equal(t, 3, ac.Workers)

	assert.True(t, cfg.Spec.Cache.Enabled)
	assert.Equal(t, "redis.local:6379", cfg.Spec.Cache.Addr)
	assert.Equal(t, "sekrit", cfg.Spec.Cache.Password)
	assert.Equal(t, 1, cfg.Spec.Cache.DB)
	opts, err := cfg.Spec.CacheOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	assert.True(t, cfg.Spec.Recording.Enabled)
	assert.Equal(t, "/var/lib/carebridge/recordings", cfg.Spec.Recording.Dir)
	assert.True(t, cfg.Spec.Telemetry.Enabled)
	assert.Equal(t, "http://otel.local:4318", cfg.Spec.Telemetry.Endpoint)

	lo := cfg.Spec.LoggerOptions()
	assert.Equal(t, "debug", lo.Level)
	assert.Equal(t, logger.FormatJSON, lo.Format)
	assert.Equal(t, map[string]string{"env": "staging"}, lo.Fields)
	assert.Equal(t, map[string]string{"transport": "trace", "metrics.prometheus": "warn"}, lo.Packages)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvListen, ":28080")
	t.Setenv(EnvMetricsListen, ":29090")
	t.Setenv(EnvRedisAddr, "env-redis:6379")
	t.Setenv(EnvRedisPassword, "env-secret")
	t.Setenv(EnvOTLPEndpoint, "http://env-otel:4318")
	t.Setenv(EnvRecordingDir, "/env/recordings")

	cfg, err := Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, ":28080", cfg.Spec.Listen)
	assert.Equal(t, ":29090", cfg.Spec.MetricsListen)
	assert.Equal(t, "env-redis:6379", cfg.Spec.Cache.Addr)
	assert.Equal(t, "env-secret", cfg.Spec.Cache.Password)
	assert.Equal(t, "http://env-otel:4318", cfg.Spec.Telemetry.Endpoint)
	assert.Equal(t, "/env/recordings", cfg.Spec.Recording.Dir)
}

func TestParse_RejectsWrongGroup(t *testing.T) {
	manifest := `apiVersion: other.example.com/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec: {}
`
	_, err := Parse([]byte(manifest))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carebridge.altairalabs.ai")
}

func TestParse_RejectsFutureVersion(t *testing.T) {
	manifest := `apiVersion: carebridge.altairalabs.ai/v2
kind: BridgeConfig
metadata:
  name: test-bridge
spec: {}
`
	_, err := Parse([]byte(manifest))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported apiVersion")
}

func TestLoad_WithRoster(t *testing.T) {
	tmpDir := t.TempDir()

	rosterContent := `apiVersion: carebridge.altairalabs.ai/v1
kind: CallerRoster
metadata:
  name: test-roster
spec:
  callers:
    - id: caller-001
      firstName: Margaret
      lastName: Chen
      phone: "+15550100199"
      dateOfBirth: "1948-03-22"
      conditions: ["hypertension"]
      medications: ["lisinopril 10mg"]
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "roster.yaml"), []byte(rosterContent), 0600))

	configContent := `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec:
  roster: roster.yaml
`
	configPath := filepath.Join(tmpDir, "bridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, cfg.Dir)
	require.Len(t, cfg.Roster, 1)
	assert.Equal(t, "caller-001", cfg.Roster[0].ID)

	store, err := cfg.RosterStore()
	require.NoError(t, err)
	p, err := store.LookupByPhone(t.Context(), "+1 (555) 010-0199")
	require.NoError(t, err)
	assert.Equal(t, "Margaret Chen", p.FullName())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	require.Error(t, err)
}

func TestLoad_MissingRosterFile(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec:
  roster: no-such-roster.yaml
`
	configPath := filepath.Join(tmpDir, "bridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-roster.yaml")
}

func TestSpec_ValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		spec  Spec
		field string
	}{
		{
			name:  "bad gate mode",
			spec:  Spec{Gate: GateSpec{Mode: "psychic"}},
			field: "gate.mode",
		},
		{
			name:  "bad cooldown duration",
			spec:  Spec{Turns: TurnsSpec{Cooldown: "fast"}},
			field: "turns.cooldown",
		},
		{
			name:  "negative prompt grace",
			spec:  Spec{Turns: TurnsSpec{PromptGrace: "-3s"}},
			field: "turns.promptGrace",
		},
		{
			name:  "bad frame interval",
			spec:  Spec{Dispatcher: DispatcherSpec{FrameInterval: "whenever"}},
			field: "dispatcher.frameInterval",
		},
		{
			name:  "bad assessment timeout",
			spec:  Spec{Assessment: AssessmentSpec{Timeout: "later"}},
			field: "assessment.timeout",
		},
		{
			name:  "bad cache ttl",
			spec:  Spec{Cache: CacheSpec{TTL: "forever"}},
			field: "cache.ttl",
		},
		{
			name:  "unknown stt provider",
			spec:  Spec{Providers: ProvidersSpec{STT: STTSpec{Provider: "carrier-pigeon"}}},
			field: "providers.stt.provider",
		},
		{
			name:  "unknown tts provider",
			spec:  Spec{Providers: ProvidersSpec{TTS: TTSSpec{Provider: "espeak"}}},
			field: "providers.tts.provider",
		},
		{
			name:  "unknown agent provider",
			spec:  Spec{Providers: ProvidersSpec{Agent: AgentSpec{Provider: "eliza"}}},
			field: "providers.agent.provider",
		},
		{
			name:  "tts speed out of range",
			spec:  Spec{Providers: ProvidersSpec{TTS: TTSSpec{Speed: 9.0}}},
			field: "providers.tts.speed",
		},
		{
			name:  "unknown log level",
			spec:  Spec{Logging: LoggingSpec{Level: "loud"}},
			field: "logging.level",
		},
		{
			name:  "unknown log format",
			spec:  Spec{Logging: LoggingSpec{Format: "xml"}},
			field: "logging.format",
		},
		{
			name:  "unknown package override level",
			spec:  Spec{Logging: LoggingSpec{Packages: map[string]string{"transport": "loud"}}},
			field: "logging.packages.transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)

			var ve *audio.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSpec_ValidateCrossFieldErrors(t *testing.T) {
	zcrMin := 0.5
	spec := Spec{Gate: GateSpec{ZCRMin: &zcrMin, ZCRMax: 0.1}}
	err := spec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate:")

	spec = Spec{Call: CallSpec{MaxDuration: "1m", WarnAfter: "2m"}}
	err = spec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call:")
}

func TestSpec_ValidateEmptyIsValid(t *testing.T) {
	var spec Spec
	require.NoError(t, spec.Validate())
}

func TestCheckAPIVersion(t *testing.T) {
	tests := []struct {
		name       string
		apiVersion string
		wantErr    bool
	}{
		{"current version", "carebridge.altairalabs.ai/v1", false},
		{"minor revision", "carebridge.altairalabs.ai/v1.2", false},
		{"future major", "carebridge.altairalabs.ai/v2", true},
		{"wrong group", "telephony.altairalabs.ai/v1", true},
		{"no slash", "v1", true},
		{"not a version", "carebridge.altairalabs.ai/latest", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAPIVersion(tt.apiVersion)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
