// Package config provides configuration management for the CareBridge server.
//
// This package handles YAML-based configuration loading and validation for:
//   - Server listen addresses (WebSocket bridge and metrics exporter)
//   - Voice gate, turn-taking, call policy, and dispatcher tuning
//   - STT/TTS/agent provider selection and settings
//   - Redis context cache and post-call assessment settings
//   - Recording, telemetry, and the static caller roster
//
// Configuration files are K8s-style manifests (apiVersion/kind/metadata/spec)
// validated against an embedded JSON Schema before unmarshaling, with the
// apiVersion checked for semver compatibility against the supported range.
// Environment variables override secrets and addresses so a baked image can
// be repointed per deployment without editing the manifest.
//
// The package is organized into:
//   - types.go: Manifest and spec type definitions
//   - loader.go: Loading, env overrides, and defaults
//   - params.go: Mapping specs onto runtime parameter structs
//   - schema_validator.go: Embedded JSON Schema validation
//   - roster.go: Caller roster manifests
//   - version.go: apiVersion compatibility
package config
