package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ElevenLabs model IDs.
const (
	ElevenLabsModelTurbo        = "eleven_turbo_v2_5"
	ElevenLabsModelMultilingual = "eleven_multilingual_v2"
	ElevenLabsModelEnglish      = "eleven_monolingual_v1"
)

const (
	elevenLabsAPI     = "https://api.elevenlabs.io/v1"
	elevenLabsTimeout = 60 * time.Second

	// Rachel, the stock voice used when the config names none.
	elevenLabsRachel = "21m00Tcm4TlvDq8ikWAM"
)

// ElevenLabs speaks through the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	key     string
	baseURL string
	model   string
	client  *http.Client
}

// ElevenLabsOption configures NewElevenLabs.
type ElevenLabsOption func(*ElevenLabs)

// WithElevenLabsBaseURL points the service at a different API host.
func WithElevenLabsBaseURL(url string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.baseURL = url }
}

// WithElevenLabsClient replaces the default HTTP client.
func WithElevenLabsClient(c *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) { e.client = c }
}

// WithElevenLabsModel sets the model used when a request names none.
func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.model = model }
}

// NewElevenLabs builds the service. The default model is the turbo
// variant, which keeps synthesis latency low enough for live calls, and
// the default client traces requests through otelhttp.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) *ElevenLabs {
	e := &ElevenLabs{
		key:     apiKey,
		baseURL: elevenLabsAPI,
		model:   ElevenLabsModelTurbo,
		client: &http.Client{
			Timeout:   elevenLabsTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns "elevenlabs".
func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenLabsPayload struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id,omitempty"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize streams speech for text. The voice falls back to Rachel
// and the model to the service default when the config leaves them
// empty; Speed is ignored because the API has no rate control.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := config.Voice
	if voice == "" {
		voice = elevenLabsRachel
	}
	model := config.Model
	if model == "" {
		model = e.model
	}

	payload, err := json.Marshal(elevenLabsPayload{
		Text:    text,
		ModelID: model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: %w", err)
	}

	format := elevenLabsFormat(config.Format)
	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, voice, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: %w", err)
	}
	req.Header.Set("xi-api-key", e.key)
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(format, "pcm_") {
		req.Header.Set("Accept", "audio/pcm")
	} else {
		req.Header.Set("Accept", "audio/mpeg")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, elevenLabsFault(resp)
	}
	return resp.Body, nil
}

// elevenLabsFormat picks the output_format parameter. PCM requests map
// onto the nearest fixed rate the API offers; everything else is MP3.
func elevenLabsFormat(f AudioFormat) string {
	if f.Name == "pcm" {
		if f.SampleRate == FormatPCM8.SampleRate {
			return "pcm_8000"
		}
		return "pcm_24000"
	}
	return "mp3_44100_128"
}

func elevenLabsFault(resp *http.Response) error {
	var body struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{
		Provider: "elevenlabs",
		Status:   resp.StatusCode,
		Code:     body.Detail.Status,
		Detail:   body.Detail.Message,
	}
}

// SupportedVoices lists a few stock voices suited to call audio.
// Accounts usually carry their own cloned voices on top; the voices
// endpoint has the full list.
func (e *ElevenLabs) SupportedVoices() []Voice {
	return []Voice{
		{ID: elevenLabsRachel, Name: "Rachel", Language: "en", Gender: "female", Description: "calm American voice"},
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Language: "en", Gender: "female", Description: "soft American voice"},
		{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Language: "en", Gender: "male", Description: "even American voice"},
		{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Language: "en", Gender: "male", Description: "deep narrative voice"},
	}
}

// SupportedFormats lists the encodings the bridge requests from
// ElevenLabs.
func (e *ElevenLabs) SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatPCM8, FormatPCM16, FormatMP3}
}
