package config

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/AltairaLabs/CareBridge/profile"
)

// Manifest kinds accepted by this package.
const (
	KindBridgeConfig = "BridgeConfig"
	KindCallerRoster = "CallerRoster"
)

// Provider identifiers accepted in the providers section.
const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderBedrock    = "bedrock"
)

// Defaults applied to an unset spec.
const (
	DefaultListen             = ":8080"
	DefaultMetricsListen      = ":9090"
	DefaultMaxConcurrentTurns = 8
	DefaultRedisAddr          = "localhost:6379"
	DefaultRecordingDir       = "recordings"
	DefaultOTLPEndpoint       = "http://localhost:4318"
)

// BridgeConfig is the deployment manifest in K8s-style manifest format.
type BridgeConfig struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty"`
	Spec       Spec              `yaml:"spec"`

	// Roster holds the caller directory loaded from spec.roster
	// (populated by Load, not serialized).
	Roster []*profile.CallerProfile `yaml:"-"`

	// Dir is the directory containing the manifest file, used to resolve
	// relative paths (populated by Load).
	Dir string `yaml:"-"`
}

// Spec is the bridge configuration. Every tunable the audio gate, the turn
// controller, the call policy, and the dispatcher expose is a named field
// here; unset fields take the documented package defaults.
type Spec struct {
	// Listen is the WebSocket server address (default ":8080").
	Listen string `yaml:"listen,omitempty"`

	// MetricsListen is the Prometheus exporter address (default ":9090").
	MetricsListen string `yaml:"metricsListen,omitempty"`

	// MaxConcurrentTurns bounds in-flight provider pipelines across all
	// sessions (default: 8).
	MaxConcurrentTurns int `yaml:"maxConcurrentTurns,omitempty"`

	Gate       GateSpec       `yaml:"gate,omitempty"`
	Turns      TurnsSpec      `yaml:"turns,omitempty"`
	Call       CallSpec       `yaml:"call,omitempty"`
	Dispatcher DispatcherSpec `yaml:"dispatcher,omitempty"`
	Providers  ProvidersSpec  `yaml:"providers,omitempty"`
	Assessment AssessmentSpec `yaml:"assessment,omitempty"`
	Cache      CacheSpec      `yaml:"cache,omitempty"`
	Recording  RecordingSpec  `yaml:"recording,omitempty"`
	Telemetry  TelemetrySpec  `yaml:"telemetry,omitempty"`
	Logging    LoggingSpec    `yaml:"logging,omitempty"`

	// RosterFile names a CallerRoster manifest with the static caller
	// directory, resolved relative to this file.
	RosterFile string `yaml:"roster,omitempty"`
}

// GateSpec tunes the voice activity gate. Fields where zero is a meaningful
// setting (disabling a check, the permissive aggressiveness level) are
// pointers so an explicit zero is distinguishable from unset.
type GateSpec struct {
	// Mode selects "frame" (default) or "energy" detection.
	Mode string `yaml:"mode,omitempty"`

	// Layered additionally applies the energy heuristics on top of frame
	// detection (default: false).
	Layered bool `yaml:"layered,omitempty"`

	// SampleRate is the wire PCM rate in Hz (default: 8000). It also sets
	// the transcoder's wire-side rate.
	SampleRate int `yaml:"sampleRate,omitempty"`

	// CalibrationChunks is the number of leading chunks used to learn the
	// ambient noise level (default: 5).
	CalibrationChunks int `yaml:"calibrationChunks,omitempty"`

	// AmbientMultiplier scales ambient RMS into the speech threshold
	// (default: 3.0).
	AmbientMultiplier float64 `yaml:"ambientMultiplier,omitempty"`

	// MinEnergyFloor is the lowest allowed speech threshold
	// (default: 0.010).
	MinEnergyFloor *float64 `yaml:"minEnergyFloor,omitempty"`

	// ZCRMin and ZCRMax bound the zero-crossing band
	// (defaults: 0.02-0.35).
	ZCRMin *float64 `yaml:"zcrMin,omitempty"`
	ZCRMax float64  `yaml:"zcrMax,omitempty"`

	// DynamicRangeFloor is the minimum sub-window RMS spread
	// (default: 0.004).
	DynamicRangeFloor *float64 `yaml:"dynamicRangeFloor,omitempty"`

	// DynamicRangeWindows is the sub-window count for the spread
	// measurement (default: 4).
	DynamicRangeWindows int `yaml:"dynamicRangeWindows,omitempty"`

	// CentroidMinHz and CentroidMaxHz bound the spectral centroid band;
	// explicit zero disables the check (defaults: 200-3000).
	CentroidMinHz *float64 `yaml:"centroidMinHz,omitempty"`
	CentroidMaxHz *float64 `yaml:"centroidMaxHz,omitempty"`

	// FrameDuration is the frame size for frame-level detection, as a
	// duration string (default: "20ms").
	FrameDuration string `yaml:"frameDuration,omitempty"`

	// Aggressiveness tightens frame classification, 0 (permissive) to 3
	// (strict) (default: 1).
	Aggressiveness *int `yaml:"aggressiveness,omitempty"`

	// VoicedWindowFrames is the sliding window length in frames
	// (default: 5).
	VoicedWindowFrames int `yaml:"voicedWindowFrames,omitempty"`

	// VoicedWindowRatio is the voiced fraction required to pass a chunk
	// (default: 0.6).
	VoicedWindowRatio float64 `yaml:"voicedWindowRatio,omitempty"`
}

// TurnsSpec tunes turn-taking. Durations are strings ("1s", "500ms").
type TurnsSpec struct {
	// ChunkSize is the wire bytes gathered per gate evaluation
	// (default: 4000, 500ms of mu-law at 8 kHz).
	ChunkSize int `yaml:"chunkSize,omitempty"`

	// SustainedChunks is the consecutive speech chunks required to
	// trigger a turn (default: 2).
	SustainedChunks int `yaml:"sustainedChunks,omitempty"`

	// Cooldown mutes inbound audio after agent speech (default: "1s").
	Cooldown string `yaml:"cooldown,omitempty"`

	// SilenceChunks is the consecutive silent chunks before a
	// re-engagement prompt (default: 10).
	SilenceChunks int `yaml:"silenceChunks,omitempty"`

	// PromptGrace disarms silence escalation after agent speech
	// (default: "6s").
	PromptGrace string `yaml:"promptGrace,omitempty"`

	// MaxAttempts is the re-engagement prompts spoken before giving up
	// (default: 3).
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
}

// CallSpec tunes per-call policy: the duration budget, the spoken lines,
// and the phrase lists that end a conversation.
type CallSpec struct {
	// MaxDuration is the hard call length limit (default: "5m").
	MaxDuration string `yaml:"maxDuration,omitempty"`

	// WarnAfter is when the single time warning is spoken
	// (default: "4m30s").
	WarnAfter string `yaml:"warnAfter,omitempty"`

	// ProfileTimeout bounds the caller lookup at call start
	// (default: "2s").
	ProfileTimeout string `yaml:"profileTimeout,omitempty"`

	// TurnTimeout bounds one full turn pipeline (default: "30s").
	TurnTimeout string `yaml:"turnTimeout,omitempty"`

	// Spoken lines. Empty fields take the built-in lines.
	Greeting           string `yaml:"greeting,omitempty"`
	ReengagementPrompt string `yaml:"reengagementPrompt,omitempty"`
	TimeWarning        string `yaml:"timeWarning,omitempty"`
	TimeUpFarewell     string `yaml:"timeUpFarewell,omitempty"`
	Farewell           string `yaml:"farewell,omitempty"`
	NoResponseFarewell string `yaml:"noResponseFarewell,omitempty"`

	// ExitPhrases end the call when found in a caller transcript.
	ExitPhrases []string `yaml:"exitPhrases,omitempty"`

	// ShortExitWords end the call when a short transcript contains one.
	ShortExitWords []string `yaml:"shortExitWords,omitempty"`

	// FarewellIndicators end the call after an agent reply containing
	// one is spoken.
	FarewellIndicators []string `yaml:"farewellIndicators,omitempty"`
}

// DispatcherSpec tunes outbound frame pacing.
type DispatcherSpec struct {
	// FrameSize is the wire bytes per outbound frame (default: 160).
	FrameSize int `yaml:"frameSize,omitempty"`

	// FrameInterval is the pacing interval, as a duration string
	// (default: "20ms").
	FrameInterval string `yaml:"frameInterval,omitempty"`
}

// ProvidersSpec selects and tunes the collaborator services.
type ProvidersSpec struct {
	STT   STTSpec   `yaml:"stt,omitempty"`
	TTS   TTSSpec   `yaml:"tts,omitempty"`
	Agent AgentSpec `yaml:"agent,omitempty"`
}

// STTSpec configures the transcription provider.
type STTSpec struct {
	// Provider is the STT provider; "openai" (Whisper) is the only
	// supported value and the default.
	Provider string `yaml:"provider,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"baseUrl,omitempty"`

	// Model is the transcription model (default: "whisper-1").
	Model string `yaml:"model,omitempty"`

	// Language is the transcription language hint (default: "en").
	Language string `yaml:"language,omitempty"`

	// Prompt is the vocabulary hint passed with each upload, tuned for
	// check-in calls (medication names, appointment phrases).
	Prompt string `yaml:"prompt,omitempty"`

	// APIKey sets the key explicitly. Prefer the environment variable the
	// credentials resolver reads; a key in a manifest ends up in config
	// management history.
	APIKey string `yaml:"apiKey,omitempty"`

	// APIKeyFile names a file holding the key, resolved relative to this
	// manifest. Suits mounted K8s secrets.
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`

	// APIKeyEnv names a specific environment variable to read the key
	// from.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`

	// APIKeySecret references a cloud secret,
	// "azkv://<vault-host>/<name>" or "gcpsm://<project>/<name>".
	APIKeySecret string `yaml:"apiKeySecret,omitempty"`
}

// TTSSpec configures the synthesis provider.
type TTSSpec struct {
	// Provider is "elevenlabs" (default) or "openai".
	Provider string `yaml:"provider,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"baseUrl,omitempty"`

	// Model is the synthesis model; empty takes the provider default.
	Model string `yaml:"model,omitempty"`

	// Voice is the provider voice ID; empty takes the provider default.
	Voice string `yaml:"voice,omitempty"`

	// Speed is the speech rate multiplier, 0.25-4.0 (default: 1.0).
	Speed float64 `yaml:"speed,omitempty"`

	// SampleRate is the PCM rate the provider returns (default: 24000).
	// Providers that support 8000 let the bridge skip resampling.
	SampleRate int `yaml:"sampleRate,omitempty"`

	// APIKey sets the key explicitly; prefer the environment variable.
	APIKey string `yaml:"apiKey,omitempty"`

	// APIKeyFile, APIKeyEnv, and APIKeySecret follow the same resolution
	// rules as the STT section.
	APIKeyFile   string `yaml:"apiKeyFile,omitempty"`
	APIKeyEnv    string `yaml:"apiKeyEnv,omitempty"`
	APIKeySecret string `yaml:"apiKeySecret,omitempty"`
}

// AgentSpec configures the conversation engine.
type AgentSpec struct {
	// Provider is "openai" (default) or "bedrock".
	Provider string `yaml:"provider,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"baseUrl,omitempty"`

	// Model is the chat model; empty takes the provider default.
	Model string `yaml:"model,omitempty"`

	// Temperature is the sampling temperature, 0-2; unset takes the
	// provider default.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens caps reply length; zero takes the provider default.
	MaxTokens int `yaml:"maxTokens,omitempty"`

	// Region is the AWS region for the Bedrock provider
	// (default: "us-west-2").
	Region string `yaml:"region,omitempty"`

	// RoleARN is an AWS role the Bedrock provider assumes before signing,
	// for cross-account Bedrock access.
	RoleARN string `yaml:"roleArn,omitempty"`

	// APIKey sets the key explicitly; prefer the environment variable.
	// Ignored by the Bedrock provider, which signs with AWS credentials.
	APIKey string `yaml:"apiKey,omitempty"`

	// APIKeyFile, APIKeyEnv, and APIKeySecret follow the same resolution
	// rules as the STT section.
	APIKeyFile   string `yaml:"apiKeyFile,omitempty"`
	APIKeyEnv    string `yaml:"apiKeyEnv,omitempty"`
	APIKeySecret string `yaml:"apiKeySecret,omitempty"`
}

// AssessmentSpec configures post-call assessment.
type AssessmentSpec struct {
	// Queries maps summary field names to JMESPath expressions evaluated
	// against the agent's JSON summary. Unset takes the built-in
	// mood/concerns/medication/summary queries.
	Queries map[string]string `yaml:"queries,omitempty"`

	// Timeout bounds one summarization call (default: "30s").
	Timeout string `yaml:"timeout,omitempty"`

	// QueueSize bounds ended calls waiting for assessment (default: 16).
	QueueSize int `yaml:"queueSize,omitempty"`

	// Workers is the post-call worker count (default: 2).
	Workers int `yaml:"workers,omitempty"`
}

// CacheSpec configures the Redis connection shared by the profile context
// cache and the transcript store.
type CacheSpec struct {
	// Enabled turns the Redis-backed stores on. When false the bridge
	// runs on the in-memory roster alone and transcripts are not
	// persisted.
	Enabled bool `yaml:"enabled,omitempty"`

	// Addr is the Redis address (default: "localhost:6379").
	Addr string `yaml:"addr,omitempty"`

	// Password authenticates to Redis (optional).
	Password string `yaml:"password,omitempty"`

	// DB is the Redis database number (default: 0).
	DB int `yaml:"db,omitempty"`

	// TTL bounds how long a cached profile lives (default: "15m").
	TTL string `yaml:"ttl,omitempty"`

	// LockTTL bounds how long one load may hold a per-number lock
	// (default: "5s").
	LockTTL string `yaml:"lockTtl,omitempty"`

	// Prefix namespaces the Redis keys (default: "carebridge").
	Prefix string `yaml:"prefix,omitempty"`
}

// RecordingSpec configures per-call capture.
type RecordingSpec struct {
	// Enabled turns call recording on (default: off).
	Enabled bool `yaml:"enabled,omitempty"`

	// Dir is the recordings directory (default: "recordings").
	Dir string `yaml:"dir,omitempty"`
}

// TelemetrySpec configures trace export.
type TelemetrySpec struct {
	// Enabled turns OTLP trace export on (default: off).
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the OTLP/HTTP collector URL
	// (default: "http://localhost:4318").
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LoggingSpec configures structured log output.
type LoggingSpec struct {
	// Level is the default log level: trace, debug, info, warn or error
	// (default: "info", or LOG_LEVEL when set).
	Level string `yaml:"level,omitempty"`

	// Format selects the "text" (default) or "json" encoding.
	Format string `yaml:"format,omitempty"`

	// Fields are attached to every record, such as environment or
	// cluster tags.
	Fields map[string]string `yaml:"fields,omitempty"`

	// Packages overrides the level per package, dots for slashes
	// ("transport", "metrics.prometheus"). An entry covers its
	// subpackages unless a more specific entry exists.
	Packages map[string]string `yaml:"packages,omitempty"`
}
