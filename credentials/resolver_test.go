package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearDefaultEnv blanks every environment variable the default chain for a
// provider would consult, so ambient keys cannot leak into a test.
func clearDefaultEnv(t *testing.T, provider string) {
	t.Helper()
	for _, name := range defaultEnvNames(provider) {
		t.Setenv(name, "")
	}
}

func TestResolveKey_ExplicitValue(t *testing.T) {
	key, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		Value:    "sk-explicit",
	})
	require.NoError(t, err)

	assert.Equal(t, "openai", key.Provider)
	assert.Equal(t, SourceConfig, key.Source)
	assert.Equal(t, "sk-explicit", key.Value)
}

func TestResolveKey_File(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "api_key.txt")
	require.NoError(t, os.WriteFile(path, []byte("sk-file\n"), 0600))

	key, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		File:     path,
	})
	require.NoError(t, err)

	assert.Equal(t, SourceFile, key.Source)
	assert.Equal(t, "sk-file", key.Value)
}

func TestResolveKey_FileRelative(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "api_key.txt"), []byte("sk-relative"), 0600))

	key, err := ResolveKey(t.Context(), KeyConfig{
		Provider:  "elevenlabs",
		File:      "api_key.txt",
		ConfigDir: tmpDir,
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-relative", key.Value)
}

func TestResolveKey_FileNotFound(t *testing.T) {
	_, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		File:     "/nonexistent/path/to/key.txt",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read credential file")
}

func TestResolveKey_NamedEnv(t *testing.T) {
	t.Setenv("TEST_BRIDGE_KEY", "sk-named")

	key, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		EnvVar:   "TEST_BRIDGE_KEY",
	})
	require.NoError(t, err)

	assert.Equal(t, "env:TEST_BRIDGE_KEY", key.Source)
	assert.Equal(t, "sk-named", key.Value)
}

func TestResolveKey_NamedEnvNotSet(t *testing.T) {
	_, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		EnvVar:   "NONEXISTENT_ENV_VAR_12345",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not set")
}

func TestResolveKey_BridgeEnvWinsOverConventional(t *testing.T) {
	clearDefaultEnv(t, "openai")
	t.Setenv("CAREBRIDGE_OPENAI_API_KEY", "sk-bridge")
	t.Setenv("OPENAI_API_KEY", "sk-conventional")

	key, err := ResolveKey(t.Context(), KeyConfig{Provider: "openai"})
	require.NoError(t, err)

	assert.Equal(t, "env:CAREBRIDGE_OPENAI_API_KEY", key.Source)
	assert.Equal(t, "sk-bridge", key.Value)
}

func TestResolveKey_ConventionalEnv(t *testing.T) {
	clearDefaultEnv(t, "openai")
	t.Setenv("OPENAI_API_KEY", "sk-conventional")

	key, err := ResolveKey(t.Context(), KeyConfig{Provider: "openai"})
	require.NoError(t, err)

	assert.Equal(t, "env:OPENAI_API_KEY", key.Source)
	assert.Equal(t, "sk-conventional", key.Value)
}

func TestResolveKey_ElevenLabsEnvFallback(t *testing.T) {
	clearDefaultEnv(t, "elevenlabs")
	t.Setenv("XI_API_KEY", "xi-key")

	key, err := ResolveKey(t.Context(), KeyConfig{Provider: "elevenlabs"})
	require.NoError(t, err)

	assert.Equal(t, "env:XI_API_KEY", key.Source)
	assert.Equal(t, "xi-key", key.Value)
}

func TestResolveKey_PriorityOrder(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "api_key.txt")
	require.NoError(t, os.WriteFile(path, []byte("sk-file"), 0600))
	t.Setenv("TEST_BRIDGE_KEY", "sk-named")
	t.Setenv("OPENAI_API_KEY", "sk-conventional")

	// Explicit value beats everything.
	key, err := ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		Value:    "sk-explicit",
		File:     path,
		EnvVar:   "TEST_BRIDGE_KEY",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", key.Value)

	// File beats the environment.
	key, err = ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		File:     path,
		EnvVar:   "TEST_BRIDGE_KEY",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-file", key.Value)

	// A named variable beats the default chain.
	key, err = ResolveKey(t.Context(), KeyConfig{
		Provider: "openai",
		EnvVar:   "TEST_BRIDGE_KEY",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-named", key.Value)
}

func TestResolveKey_MissingFailsFast(t *testing.T) {
	clearDefaultEnv(t, "openai")

	_, err := ResolveKey(t.Context(), KeyConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAREBRIDGE_OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestResolveKey_NoProvider(t *testing.T) {
	_, err := ResolveKey(t.Context(), KeyConfig{Value: "sk-test"})
	require.Error(t, err)
}

func TestKey_StringHidesValue(t *testing.T) {
	key := Key{Provider: "openai", Source: "env:OPENAI_API_KEY", Value: "sk-secret-value"}

	s := key.String()
	assert.NotContains(t, s, "sk-secret-value")
	assert.Contains(t, s, "openai")
	assert.Contains(t, s, "env:OPENAI_API_KEY")
}

func TestKey_LogValueHidesValue(t *testing.T) {
	key := Key{Provider: "openai", Source: "config", Value: "sk-secret-value"}

	v := key.LogValue()
	assert.Equal(t, key.String(), v.String())
	assert.NotContains(t, v.String(), "sk-secret-value")
}
