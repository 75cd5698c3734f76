package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/CareBridge/assessment"
)

// Environment overrides. They win over manifest values so a baked image can
// be repointed per deployment; API keys are resolved separately by the
// credentials package.
const (
	EnvListen        = "CAREBRIDGE_LISTEN"
	EnvMetricsListen = "CAREBRIDGE_METRICS_LISTEN"
	EnvRedisAddr     = "CAREBRIDGE_REDIS_ADDR"
	EnvRedisPassword = "CAREBRIDGE_REDIS_PASSWORD"
	EnvOTLPEndpoint  = "CAREBRIDGE_OTLP_ENDPOINT"
	EnvRecordingDir  = "CAREBRIDGE_RECORDING_DIR"
)

// Load reads and validates a bridge manifest from a YAML file. When
// spec.roster names a roster file it is loaded too, relative to the
// manifest, making the returned config self-contained.
func Load(filename string) (*BridgeConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(filename)

	if cfg.Spec.RosterFile != "" {
		roster, err := LoadRoster(resolveFilePath(filename, cfg.Spec.RosterFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load roster %s: %w", cfg.Spec.RosterFile, err)
		}
		cfg.Roster = roster
	}

	return cfg, nil
}

// Parse validates and unmarshals a bridge manifest from YAML data. Schema
// validation runs first (structure, types, kind, unknown fields), then the
// apiVersion compatibility check, then environment overrides and defaults,
// then semantic validation of the resulting spec.
func Parse(data []byte) (*BridgeConfig, error) {
	if err := ValidateBridgeConfig(data); err != nil {
		return nil, err
	}

	var cfg BridgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Schema validation already confirmed required fields and the kind
	// value are correct.

	if err := CheckAPIVersion(cfg.APIVersion); err != nil {
		return nil, err
	}

	cfg.Spec.applyEnvOverrides()
	cfg.Spec.applyDefaults()

	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides replaces addresses and secrets with their environment
// values when set.
func (s *Spec) applyEnvOverrides() {
	if v := os.Getenv(EnvListen); v != "" {
		s.Listen = v
	}
	if v := os.Getenv(EnvMetricsListen); v != "" {
		s.MetricsListen = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		s.Cache.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		s.Cache.Password = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		s.Telemetry.Endpoint = v
	}
	if v := os.Getenv(EnvRecordingDir); v != "" {
		s.Recording.Dir = v
	}
}

// applyDefaults fills unset top-level fields. Parameter-struct fields keep
// their unset markers; the mapping accessors in params.go overlay package
// defaults per field.
func (s *Spec) applyDefaults() {
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.MetricsListen == "" {
		s.MetricsListen = DefaultMetricsListen
	}
	if s.MaxConcurrentTurns == 0 {
		s.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	if s.Providers.STT.Provider == "" {
		s.Providers.STT.Provider = ProviderOpenAI
	}
	if s.Providers.TTS.Provider == "" {
		s.Providers.TTS.Provider = ProviderElevenLabs
	}
	if s.Providers.Agent.Provider == "" {
		s.Providers.Agent.Provider = ProviderOpenAI
	}
	if len(s.Assessment.Queries) == 0 {
		s.Assessment.Queries = assessment.DefaultQueries()
	}
	if s.Cache.Addr == "" {
		s.Cache.Addr = DefaultRedisAddr
	}
	if s.Recording.Dir == "" {
		s.Recording.Dir = DefaultRecordingDir
	}
	if s.Telemetry.Endpoint == "" {
		s.Telemetry.Endpoint = DefaultOTLPEndpoint
	}
}

// resolveFilePath resolves a file path relative to the directory of a base
// file. Absolute paths pass through unchanged.
func resolveFilePath(basePath, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(filepath.Dir(basePath), filePath)
}
