package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewElevenLabs_Defaults(t *testing.T) {
	svc := NewElevenLabs("el-test")

	assert.Equal(t, "elevenlabs", svc.Name())
	assert.Equal(t, elevenLabsAPI, svc.baseURL)
	assert.Equal(t, ElevenLabsModelTurbo, svc.model)
}

func TestNewElevenLabs_Options(t *testing.T) {
	custom := &http.Client{}
	svc := NewElevenLabs("el-test",
		WithElevenLabsBaseURL("http://localhost:9999"),
		WithElevenLabsClient(custom),
		WithElevenLabsModel(ElevenLabsModelMultilingual),
	)

	assert.Equal(t, "http://localhost:9999", svc.baseURL)
	assert.Same(t, custom, svc.client)
	assert.Equal(t, ElevenLabsModelMultilingual, svc.model)
}

func TestElevenLabs_Synthesize_EmptyText(t *testing.T) {
	svc := NewElevenLabs("el-test")
	_, err := svc.Synthesize(context.Background(), "", SynthesisConfig{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestElevenLabs_Synthesize_TelephonePCM(t *testing.T) {
	var (
		gotPath   string
		gotQuery  string
		gotAccept string
		gotBody   elevenLabsPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("output_format")
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "el-test", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte("pcm samples"))
	}))
	defer srv.Close()

	svc := NewElevenLabs("el-test", WithElevenLabsBaseURL(srv.URL))
	rc, err := svc.Synthesize(context.Background(), "Time for your check-in.", SynthesisConfig{
		Voice:  "voice-123",
		Format: FormatPCM8,
	})
	require.NoError(t, err)
	defer rc.Close()

	audio, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pcm samples", string(audio))

	assert.Equal(t, "/text-to-speech/voice-123", gotPath)
	assert.Equal(t, "pcm_8000", gotQuery)
	assert.Equal(t, "audio/pcm", gotAccept)
	assert.Equal(t, "Time for your check-in.", gotBody.Text)
	assert.Equal(t, ElevenLabsModelTurbo, gotBody.ModelID)
	require.NotNil(t, gotBody.VoiceSettings)
	assert.InDelta(t, 0.5, gotBody.VoiceSettings.Stability, 0.001)
}

func TestElevenLabs_Synthesize_DefaultVoice(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	svc := NewElevenLabs("el-test", WithElevenLabsBaseURL(srv.URL))
	rc, err := svc.Synthesize(context.Background(), "Hello", SynthesisConfig{})
	require.NoError(t, err)
	rc.Close()

	assert.True(t, strings.HasSuffix(gotPath, "/"+elevenLabsRachel),
		"empty voice should fall back to Rachel, got %s", gotPath)
}

func TestElevenLabs_Synthesize_VoiceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]any{"status": "voice_not_found", "message": "no such voice"},
		})
	}))
	defer srv.Close()

	svc := NewElevenLabs("el-test", WithElevenLabsBaseURL(srv.URL))
	_, err := svc.Synthesize(context.Background(), "Hello", SynthesisConfig{Voice: "bogus"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "voice_not_found", apiErr.Code)
	assert.Equal(t, "no such voice", apiErr.Detail)
	assert.False(t, apiErr.Temporary())
	assert.ErrorIs(t, err, ErrUnknownVoice)
}

func TestElevenLabsFormat(t *testing.T) {
	assert.Equal(t, "pcm_8000", elevenLabsFormat(FormatPCM8))
	assert.Equal(t, "pcm_24000", elevenLabsFormat(FormatPCM16))
	assert.Equal(t, "mp3_44100_128", elevenLabsFormat(FormatMP3))
	assert.Equal(t, "mp3_44100_128", elevenLabsFormat(AudioFormat{}))
}

func TestElevenLabs_SupportedFormats(t *testing.T) {
	svc := NewElevenLabs("el-test")
	assert.Contains(t, svc.SupportedFormats(), FormatPCM8)
}
