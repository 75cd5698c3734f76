package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/CareBridge/audio"
	"github.com/AltairaLabs/CareBridge/bridge"
	"github.com/AltairaLabs/CareBridge/config"
	"github.com/AltairaLabs/CareBridge/recording"
	"github.com/AltairaLabs/CareBridge/transport"
)

const minimalManifest = `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec: {}
`

// setTestKeys puts provider keys in the environment the way a deployment
// would.
func setTestKeys(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
}

// clearAllKeys blanks every variable the key resolution chain consults.
func clearAllKeys(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CAREBRIDGE_OPENAI_API_KEY", "OPENAI_API_KEY",
		"CAREBRIDGE_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY", "XI_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func loadManifest(t *testing.T, body string) *config.BridgeConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carebridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildApp_Defaults(t *testing.T) {
	setTestKeys(t)
	cfg := loadManifest(t, minimalManifest)

	app, err := buildApp(t.Context(), cfg)
	require.NoError(t, err)
	defer app.close()

	assert.Equal(t, ":8080", app.httpSrv.Addr)
	assert.NotNil(t, app.wsServer)
	assert.NotNil(t, app.exporter)
	assert.NotNil(t, app.bus)
	assert.NotNil(t, app.assessor)
	assert.NotNil(t, app.turnSem)

	assert.Nil(t, app.recorder)
	assert.Nil(t, app.rdb)
	assert.Nil(t, app.tracers)

	assert.Equal(t, audio.DefaultGateParams(), app.session.Gate)
	assert.Equal(t, bridge.DefaultDispatcherParams(), app.session.Dispatcher)

	assert.Equal(t, "openai-whisper", app.collab.STT.Name())
	assert.Equal(t, "elevenlabs", app.collab.TTS.Name())
	assert.Equal(t, "openai-chat", app.collab.Agent.Name())
	assert.NotNil(t, app.collab.Profiles)
	assert.NotNil(t, app.collab.Transcripts)
	assert.NotNil(t, app.collab.OnEnded)
}

func TestBuildApp_ProviderSelection(t *testing.T) {
	setTestKeys(t)
	cfg := loadManifest(t, `apiVersion: carebridge.altairalabs.ai/v1
kind: BridgeConfig
metadata:
  name: test-bridge
spec:
  providers:
    tts:
      provider: openai
      voice: alloy
    agent:
      provider: openai
      model: gpt-4o-mini
      temperature: 0.4
`)

	app, err := buildApp(t.Context(), cfg)
	require.NoError(t, err)
	defer app.close()

	assert.Equal(t, "openai", app.collab.TTS.Name())
	assert.Equal(t, "openai-chat", app.collab.Agent.Name())
	assert.Equal(t, "alloy", app.session.Synthesis.Voice)
}

func TestBuildApp_MissingKeyFailsFast(t *testing.T) {
	clearAllKeys(t)
	cfg := loadManifest(t, minimalManifest)

	app, err := buildApp(t.Context(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "no API key")
}

func TestBuildApp_ListenOverride(t *testing.T) {
	setTestKeys(t)
	cfg := loadManifest(t, minimalManifest)
	cfg.Spec.Listen = ":18080"

	app, err := buildApp(t.Context(), cfg)
	require.NoError(t, err)
	defer app.close()

	assert.Equal(t, ":18080", app.httpSrv.Addr)
}

// nullWriter swallows outbound media, standing in for a connection.
type nullWriter struct{}

func (nullWriter) WriteMedia(context.Context, []byte) error { return nil }
func (nullWriter) WriteClear(context.Context) error         { return nil }

func TestHandleStream(t *testing.T) {
	setTestKeys(t)
	cfg := loadManifest(t, minimalManifest)

	app, err := buildApp(t.Context(), cfg)
	require.NoError(t, err)
	defer app.close()

	start := transport.StreamStart{StreamSID: "MZstream", CallSID: "CAcall"}
	stream, err := app.handleStream(t.Context(), start, nullWriter{})
	require.NoError(t, err)

	sess, ok := stream.(*bridge.Session)
	require.True(t, ok)
	assert.Equal(t, "MZstream", sess.ID())
	assert.Equal(t, "CAcall", sess.CallSID())

	stream.HandleStop()
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after stop")
	}
}

func TestHandleStream_Recording(t *testing.T) {
	setTestKeys(t)
	dir := t.TempDir()
	recDir := filepath.Join(dir, "recordings")
	cfg := loadManifest(t, minimalManifest)
	cfg.Spec.Recording.Enabled = true
	cfg.Spec.Recording.Dir = recDir

	app, err := buildApp(t.Context(), cfg)
	require.NoError(t, err)
	defer app.close()
	require.NotNil(t, app.recorder)

	start := transport.StreamStart{StreamSID: "MZrec", CallSID: "CArec"}
	stream, err := app.handleStream(t.Context(), start, nullWriter{})
	require.NoError(t, err)

	stream.HandleStop()
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after stop")
	}

	// The capture closes on its own goroutine after the session ends.
	require.Eventually(t, func() bool {
		entries, err := recording.LoadManifest(recDir)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond)

	entries, err := recording.LoadManifest(recDir)
	require.NoError(t, err)
	assert.Equal(t, "CArec", entries[0].CallSID)
}
