package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OpenAI synthesis models.
const (
	// ModelTTS1 is the latency-optimized model.
	ModelTTS1 = "tts-1"
	// ModelTTS1HD trades latency for quality.
	ModelTTS1HD = "tts-1-hd"
)

// Stock OpenAI voice IDs.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

const (
	openAIAPI        = "https://api.openai.com/v1"
	openAISpeechPath = "/audio/speech"
	openAITimeout    = 30 * time.Second
)

// OpenAI speaks through the OpenAI speech endpoint.
type OpenAI struct {
	key     string
	baseURL string
	model   string
	client  *http.Client
}

// OpenAIOption configures NewOpenAI.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL points the service at a different API host.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) { o.baseURL = url }
}

// WithOpenAIClient replaces the default HTTP client.
func WithOpenAIClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) { o.client = c }
}

// WithOpenAIModel sets the model used when a request names none.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAI) { o.model = model }
}

// NewOpenAI builds the service. The default model is tts-1, the
// latency-optimized variant, and the default client traces requests
// through otelhttp.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		key:     apiKey,
		baseURL: openAIAPI,
		model:   ModelTTS1,
		client: &http.Client{
			Timeout:   openAITimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name returns "openai".
func (o *OpenAI) Name() string { return "openai" }

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize streams speech for text. Unset config fields fall back to
// Alloy at normal speed with the service's default model.
func (o *OpenAI) Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	body := openAISpeechRequest{
		Model:          config.Model,
		Input:          text,
		Voice:          config.Voice,
		ResponseFormat: openAIFormat(config.Format),
		Speed:          config.Speed,
	}
	if body.Model == "" {
		body.Model = o.model
	}
	if body.Voice == "" {
		body.Voice = VoiceAlloy
	}
	if body.Speed == 0 {
		body.Speed = 1.0
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+openAISpeechPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, openAISpeechFault(resp)
	}
	return resp.Body, nil
}

// openAIFormats are the response_format values the endpoint accepts.
var openAIFormats = map[string]bool{
	"mp3":  true,
	"opus": true,
	"aac":  true,
	"flac": true,
	"wav":  true,
	"pcm":  true,
}

// openAIFormat passes known format names through and falls back to MP3.
// Raw PCM comes back at 24 kHz, matching FormatPCM16.
func openAIFormat(f AudioFormat) string {
	if openAIFormats[f.Name] {
		return f.Name
	}
	return "mp3"
}

func openAISpeechFault(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{
		Provider: "openai",
		Status:   resp.StatusCode,
		Code:     body.Error.Code,
		Detail:   body.Error.Message,
	}
}

// SupportedVoices lists the six stock voices.
func (o *OpenAI) SupportedVoices() []Voice {
	return []Voice{
		{ID: VoiceAlloy, Name: "Alloy", Language: "en", Gender: "neutral", Description: "balanced default voice"},
		{ID: VoiceEcho, Name: "Echo", Language: "en", Gender: "male", Description: "clear voice"},
		{ID: VoiceFable, Name: "Fable", Language: "en", Gender: "female", Description: "expressive, British accent"},
		{ID: VoiceOnyx, Name: "Onyx", Language: "en", Gender: "male", Description: "deep voice"},
		{ID: VoiceNova, Name: "Nova", Language: "en", Gender: "female", Description: "warm voice"},
		{ID: VoiceShimmer, Name: "Shimmer", Language: "en", Gender: "female", Description: "soft, even voice"},
	}
}

// SupportedFormats lists the catalog formats the endpoint can produce.
// The API also offers opus, aac and flac; the bridge never asks for
// those on the live path.
func (o *OpenAI) SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatPCM16, FormatWAV, FormatMP3}
}
