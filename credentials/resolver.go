package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key sources recorded in Key.Source. Environment sources are recorded as
// "env:<NAME>" with the variable that supplied the key.
const (
	SourceConfig           = "config"
	SourceFile             = "file"
	SourceAzureKeyVault    = "azure-key-vault"
	SourceGCPSecretManager = "gcp-secret-manager"
)

// DefaultEnvVars maps providers to their conventional environment variables,
// consulted after the CAREBRIDGE_<PROVIDER>_API_KEY form.
var DefaultEnvVars = map[string][]string{
	"openai":     {"OPENAI_API_KEY"},
	"elevenlabs": {"ELEVENLABS_API_KEY", "XI_API_KEY"},
}

// KeyConfig holds one provider section's credential settings.
type KeyConfig struct {
	// Provider is the provider name the key is for.
	Provider string

	// Value is the explicit key from the manifest.
	Value string

	// File names a file holding the key, resolved against ConfigDir when
	// relative.
	File string

	// EnvVar names a specific environment variable to read.
	EnvVar string

	// SecretRef points at a cloud secret, "azkv://<vault-host>/<name>" or
	// "gcpsm://<project>/<name>".
	SecretRef string

	// ConfigDir is the directory of the manifest file.
	ConfigDir string
}

// ResolveKey resolves a provider API key. The chain, first hit wins:
//
//  1. explicit value from the manifest
//  2. key file
//  3. the named environment variable
//  4. CAREBRIDGE_<PROVIDER>_API_KEY, then the provider's conventional
//     variables (OPENAI_API_KEY, ELEVENLABS_API_KEY, ...)
//  5. cloud secret reference
//
// An exhausted chain is an error: a missing key should stop startup, not
// surface as an auth failure on a live call.
func ResolveKey(ctx context.Context, cfg KeyConfig) (Key, error) {
	if cfg.Provider == "" {
		return Key{}, fmt.Errorf("provider is required")
	}

	if cfg.Value != "" {
		return Key{Provider: cfg.Provider, Source: SourceConfig, Value: cfg.Value}, nil
	}

	if cfg.File != "" {
		value, err := readKeyFile(cfg.File, cfg.ConfigDir)
		if err != nil {
			return Key{}, fmt.Errorf("failed to read credential file: %w", err)
		}
		return Key{Provider: cfg.Provider, Source: SourceFile, Value: value}, nil
	}

	if cfg.EnvVar != "" {
		value := os.Getenv(cfg.EnvVar)
		if value == "" {
			return Key{}, fmt.Errorf("environment variable %s is not set", cfg.EnvVar)
		}
		return Key{Provider: cfg.Provider, Source: "env:" + cfg.EnvVar, Value: value}, nil
	}

	names := defaultEnvNames(cfg.Provider)
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return Key{Provider: cfg.Provider, Source: "env:" + name, Value: value}, nil
		}
	}

	if cfg.SecretRef != "" {
		return resolveSecretRef(ctx, cfg.Provider, cfg.SecretRef)
	}

	return Key{}, fmt.Errorf("no API key for %s: set %s or providers.%s.apiKey in the manifest",
		cfg.Provider, strings.Join(names, " or "), cfg.Provider)
}

// defaultEnvNames returns the environment variables tried for a provider, in
// order.
func defaultEnvNames(provider string) []string {
	names := []string{"CAREBRIDGE_" + strings.ToUpper(provider) + "_API_KEY"}
	return append(names, DefaultEnvVars[provider]...)
}

// readKeyFile reads an API key from a file.
func readKeyFile(path, configDir string) (string, error) {
	if !filepath.IsAbs(path) && configDir != "" {
		path = filepath.Join(configDir, path)
	}

	//nolint:gosec // G304: File path is from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	// Trim whitespace and newlines
	return strings.TrimSpace(string(data)), nil
}
