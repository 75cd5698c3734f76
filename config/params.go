package config

import (
	"fmt"
	"time"

	"github.com/AltairaLabs/CareBridge/assessment"
	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/logger"
	"github.com/AltairaLabs/CareBridge/profile"
	"github.com/AltairaLabs/CareBridge/stt"
	"github.com/AltairaLabs/CareBridge/tts"
)

// Validate checks the spec beyond what the JSON Schema covers: duration
// strings parse, cross-field parameter constraints hold, and provider names
// are known. Errors carry the failing field.
func (s *Spec) Validate() error {
	if s.MaxConcurrentTurns < 0 {
		return &audio.ValidationError{Field: "maxConcurrentTurns", Message: "must be non-negative"}
	}

	if _, err := s.GateParams(); err != nil {
		return err
	}
	if _, err := s.TurnParams(); err != nil {
		return err
	}
	if _, err := s.CallParams(); err != nil {
		return err
	}
	if _, err := s.DispatcherParams(); err != nil {
		return err
	}
	if _, err := s.TranscoderParams(); err != nil {
		return err
	}
	if err := s.validateProviders(); err != nil {
		return err
	}
	if _, err := s.AssessmentConfig(); err != nil {
		return err
	}
	if _, err := s.CacheOptions(); err != nil {
		return err
	}
	if err := s.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (s *Spec) validateLogging() error {
	if v := s.Logging.Level; v != "" && !logger.ValidLevel(v) {
		return &audio.ValidationError{Field: "logging.level", Message: "must be trace, debug, info, warn or error"}
	}
	switch s.Logging.Format {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		return &audio.ValidationError{Field: "logging.format", Message: "must be text or json"}
	}
	for pkg, level := range s.Logging.Packages {
		if !logger.ValidLevel(level) {
			return &audio.ValidationError{Field: "logging.packages." + pkg, Message: "must be trace, debug, info, warn or error"}
		}
	}
	return nil
}

func (s *Spec) validateProviders() error {
	switch s.Providers.STT.Provider {
	case "", ProviderOpenAI:
	default:
		return &audio.ValidationError{Field: "providers.stt.provider", Message: "must be openai"}
	}
	switch s.Providers.TTS.Provider {
	case "", ProviderElevenLabs, ProviderOpenAI:
	default:
		return &audio.ValidationError{Field: "providers.tts.provider", Message: "must be elevenlabs or openai"}
	}
	switch s.Providers.Agent.Provider {
	case "", ProviderOpenAI, ProviderBedrock:
	default:
		return &audio.ValidationError{Field: "providers.agent.provider", Message: "must be openai or bedrock"}
	}

	if v := s.Providers.TTS.Speed; v != 0 && (v < 0.25 || v > 4.0) {
		return &audio.ValidationError{Field: "providers.tts.speed", Message: "must be between 0.25 and 4.0"}
	}
	if t := s.Providers.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		return &audio.ValidationError{Field: "providers.agent.temperature", Message: "must be between 0 and 2"}
	}
	return nil
}

// GateParams maps the gate section onto audio.GateParams, overlaying set
// fields on the package defaults.
func (s *Spec) GateParams() (audio.GateParams, error) {
	p := audio.DefaultGateParams()

	switch s.Gate.Mode {
	case "", audio.GateModeFrame.String():
	case audio.GateModeEnergy.String():
		p.Mode = audio.GateModeEnergy
	default:
		return p, &audio.ValidationError{Field: "gate.mode", Message: "must be frame or energy"}
	}
	p.Layered = s.Gate.Layered

	if s.Gate.SampleRate != 0 {
		p.SampleRate = s.Gate.SampleRate
	}
	if s.Gate.CalibrationChunks != 0 {
		p.CalibrationChunks = s.Gate.CalibrationChunks
	}
	if s.Gate.AmbientMultiplier != 0 {
		p.AmbientMultiplier = s.Gate.AmbientMultiplier
	}
	if s.Gate.MinEnergyFloor != nil {
		p.MinEnergyFloor = *s.Gate.MinEnergyFloor
	}
	if s.Gate.ZCRMin != nil {
		p.ZCRMin = *s.Gate.ZCRMin
	}
	if s.Gate.ZCRMax != 0 {
		p.ZCRMax = s.Gate.ZCRMax
	}
	if s.Gate.DynamicRangeFloor != nil {
		p.DynamicRangeFloor = *s.Gate.DynamicRangeFloor
	}
	if s.Gate.DynamicRangeWindows != 0 {
		p.DynamicRangeWindows = s.Gate.DynamicRangeWindows
	}
	if s.Gate.CentroidMinHz != nil {
		p.CentroidMinHz = *s.Gate.CentroidMinHz
	}
	if s.Gate.CentroidMaxHz != nil {
		p.CentroidMaxHz = *s.Gate.CentroidMaxHz
	}
	if s.Gate.FrameDuration != "" {
		d, err := parseDuration("gate.frameDuration", s.Gate.FrameDuration)
		if err != nil {
			return p, err
		}
		p.FrameDuration = d
	}
	if s.Gate.Aggressiveness != nil {
		p.Aggressiveness = *s.Gate.Aggressiveness
	}
	if s.Gate.VoicedWindowFrames != 0 {
		p.VoicedWindowFrames = s.Gate.VoicedWindowFrames
	}
	if s.Gate.VoicedWindowRatio != 0 {
		p.VoicedWindowRatio = s.Gate.VoicedWindowRatio
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("gate: %w", err)
	}
	return p, nil
}

// TurnParams maps the turns section onto bridge.TurnParams.
func (s *Spec) TurnParams() (bridge.TurnParams, error) {
	p := bridge.DefaultTurnParams()

	if s.Turns.ChunkSize != 0 {
		p.ChunkSize = s.Turns.ChunkSize
	}
	if s.Turns.SustainedChunks != 0 {
		p.SustainedChunks = s.Turns.SustainedChunks
	}
	if s.Turns.Cooldown != "" {
		d, err := parseDuration("turns.cooldown", s.Turns.Cooldown)
		if err != nil {
			return p, err
		}
		p.Cooldown = d
	}
	if s.Turns.SilenceChunks != 0 {
		p.SilenceChunks = s.Turns.SilenceChunks
	}
	if s.Turns.PromptGrace != "" {
		d, err := parseDuration("turns.promptGrace", s.Turns.PromptGrace)
		if err != nil {
			return p, err
		}
		p.PromptGrace = d
	}
	if s.Turns.MaxAttempts != 0 {
		p.MaxAttempts = s.Turns.MaxAttempts
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("turns: %w", err)
	}
	return p, nil
}

// CallParams maps the call section onto bridge.CallParams.
func (s *Spec) CallParams() (bridge.CallParams, error) {
	p := bridge.DefaultCallParams()

	if s.Call.MaxDuration != "" {
		d, err := parseDuration("call.maxDuration", s.Call.MaxDuration)
		if err != nil {
			return p, err
		}
		p.MaxDuration = d
	}
	if s.Call.WarnAfter != "" {
		d, err := parseDuration("call.warnAfter", s.Call.WarnAfter)
		if err != nil {
			return p, err
		}
		p.WarnAfter = d
	}
	if s.Call.ProfileTimeout != "" {
		d, err := parseDuration("call.profileTimeout", s.Call.ProfileTimeout)
		if err != nil {
			return p, err
		}
		p.ProfileTimeout = d
	}
	if s.Call.TurnTimeout != "" {
		d, err := parseDuration("call.turnTimeout", s.Call.TurnTimeout)
		if err != nil {
			return p, err
		}
		p.TurnTimeout = d
	}

	if s.Call.Greeting != "" {
		p.Greeting = s.Call.Greeting
	}
	if s.Call.ReengagementPrompt != "" {
		p.ReengagementPrompt = s.Call.ReengagementPrompt
	}
	if s.Call.TimeWarning != "" {
		p.TimeWarning = s.Call.TimeWarning
	}
	if s.Call.TimeUpFarewell != "" {
		p.TimeUpFarewell = s.Call.TimeUpFarewell
	}
	if s.Call.Farewell != "" {
		p.Farewell = s.Call.Farewell
	}
	if s.Call.NoResponseFarewell != "" {
		p.NoResponseFarewell = s.Call.NoResponseFarewell
	}
	if s.Call.ExitPhrases != nil {
		p.ExitPhrases = s.Call.ExitPhrases
	}
	if s.Call.ShortExitWords != nil {
		p.ShortExitWords = s.Call.ShortExitWords
	}
	if s.Call.FarewellIndicators != nil {
		p.FarewellIndicators = s.Call.FarewellIndicators
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("call: %w", err)
	}
	return p, nil
}

// DispatcherParams maps the dispatcher section onto bridge.DispatcherParams.
func (s *Spec) DispatcherParams() (bridge.DispatcherParams, error) {
	p := bridge.DefaultDispatcherParams()

	if s.Dispatcher.FrameSize != 0 {
		p.FrameSize = s.Dispatcher.FrameSize
	}
	if s.Dispatcher.FrameInterval != "" {
		d, err := parseDuration("dispatcher.frameInterval", s.Dispatcher.FrameInterval)
		if err != nil {
			return p, err
		}
		p.FrameInterval = d
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("dispatcher: %w", err)
	}
	return p, nil
}

// TranscoderParams derives the audio transcoder formats: the wire rate
// follows the gate's sample rate, the synthesis rate follows the TTS
// provider's PCM rate.
func (s *Spec) TranscoderParams() (audio.TranscoderParams, error) {
	p := audio.DefaultTranscoderParams()

	if s.Gate.SampleRate != 0 {
		p.WireSampleRate = s.Gate.SampleRate
	}
	if s.Providers.TTS.SampleRate != 0 {
		p.SynthSampleRate = s.Providers.TTS.SampleRate
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("providers.tts: %w", err)
	}
	return p, nil
}

// TranscriptionConfig maps the STT provider settings onto the per-call
// transcription config.
func (s *Spec) TranscriptionConfig() stt.TranscriptionConfig {
	cfg := stt.DefaultTranscriptionConfig()
	if s.Providers.STT.Model != "" {
		cfg.Model = s.Providers.STT.Model
	}
	if s.Providers.STT.Language != "" {
		cfg.Language = s.Providers.STT.Language
	}
	if s.Providers.STT.Prompt != "" {
		cfg.Prompt = s.Providers.STT.Prompt
	}
	return cfg
}

// SynthesisConfig maps the TTS provider settings onto the per-call
// synthesis config.
func (s *Spec) SynthesisConfig() tts.SynthesisConfig {
	cfg := tts.DefaultSynthesisConfig()
	if s.Providers.TTS.Voice != "" {
		cfg.Voice = s.Providers.TTS.Voice
	}
	if s.Providers.TTS.Model != "" {
		cfg.Model = s.Providers.TTS.Model
	}
	if s.Providers.TTS.Speed != 0 {
		cfg.Speed = s.Providers.TTS.Speed
	}
	if s.Providers.TTS.SampleRate != 0 {
		cfg.Format.SampleRate = s.Providers.TTS.SampleRate
	}
	return cfg
}

// AssessmentConfig maps the assessment section onto assessment.Config.
func (s *Spec) AssessmentConfig() (assessment.Config, error) {
	cfg := assessment.Config{
		Queries:   s.Assessment.Queries,
		QueueSize: s.Assessment.QueueSize,
		Workers:   s.Assessment.Workers,
	}
	if s.Assessment.Timeout != "" {
		d, err := parseDuration("assessment.timeout", s.Assessment.Timeout)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// LoggerOptions maps the logging section onto logger.Options for
// logger.Configure.
func (s *Spec) LoggerOptions() logger.Options {
	return logger.Options{
		Level:    s.Logging.Level,
		Format:   s.Logging.Format,
		Fields:   s.Logging.Fields,
		Packages: s.Logging.Packages,
	}
}

// CacheOptions maps the cache section onto profile cache options. Unset
// fields are omitted so the cache package defaults apply.
func (s *Spec) CacheOptions() ([]profile.CacheOption, error) {
	var opts []profile.CacheOption
	if s.Cache.TTL != "" {
		d, err := parseDuration("cache.ttl", s.Cache.TTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, profile.WithCacheTTL(d))
	}
	if s.Cache.LockTTL != "" {
		d, err := parseDuration("cache.lockTtl", s.Cache.LockTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, profile.WithLockTTL(d))
	}
	if s.Cache.Prefix != "" {
		opts = append(opts, profile.WithCachePrefix(s.Cache.Prefix))
	}
	return opts, nil
}

// parseDuration parses a duration string, reporting the yaml field on
// failure.
func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &audio.ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)}
	}
	if d < 0 {
		return 0, &audio.ValidationError{Field: field, Message: "must be non-negative"}
	}
	return d, nil
}
