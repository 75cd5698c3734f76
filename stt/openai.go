package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/CareBridge/audio"
)

// ModelWhisper1 is the hosted Whisper recognition model.
const ModelWhisper1 = "whisper-1"

const (
	openAIAPI            = "https://api.openai.com/v1"
	openAITranscribePath = "/audio/transcriptions"
	openAITimeout        = 60 * time.Second
)

// OpenAI transcribes through the OpenAI audio transcription endpoint.
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

// NewOpenAI builds the service around Whisper. The default client
// traces requests through otelhttp.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		key:     apiKey,
		baseURL: openAIAPI,
		model:   ModelWhisper1,
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

// Name returns "openai-whisper".
func (o *OpenAI) Name() string { return "openai-whisper" }

// Transcribe uploads one utterance and returns the recognized text.
// Raw PCM is wrapped in a WAV header first; the endpoint will not take
// a bare sample stream.
func (o *OpenAI) Transcribe(ctx context.Context, clip []byte, config TranscriptionConfig) (string, error) {
	if len(clip) == 0 {
		return "", ErrEmptyAudio
	}

	upload := clip
	format := config.Format
	if format == "" {
		format = FormatWAV
	}
	if format == FormatPCM {
		rate, channels, depth := pcmLayout(config)
		upload = audio.WrapPCMAsWAV(clip, rate, channels, depth)
		format = FormatWAV
	}

	model := config.Model
	if model == "" {
		model = o.model
	}

	body, contentType, err := transcribeForm(upload, "clip."+format, model, config)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+openAITranscribePath, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.key)
	req.Header.Set("Content-Type", contentType)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", whisperFault(resp.StatusCode, raw)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return out.Text, nil
}

// pcmLayout fills unset PCM fields with the telephone-band defaults.
func pcmLayout(cfg TranscriptionConfig) (rate, channels, depth int) {
	rate, channels, depth = cfg.SampleRate, cfg.Channels, cfg.BitDepth
	if rate == 0 {
		rate = DefaultSampleRate
	}
	if channels == 0 {
		channels = DefaultChannels
	}
	if depth == 0 {
		depth = DefaultBitDepth
	}
	return rate, channels, depth
}

// transcribeForm assembles the multipart upload: the clip plus the
// model and hint fields the endpoint accepts.
func transcribeForm(clip []byte, filename, model string, cfg TranscriptionConfig) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(clip); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("model", model); err != nil {
		return nil, "", err
	}
	if cfg.Language != "" {
		if err := form.WriteField("language", cfg.Language); err != nil {
			return nil, "", err
		}
	}
	if cfg.Prompt != "" {
		if err := form.WriteField("prompt", cfg.Prompt); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func whisperFault(status int, raw []byte) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return &APIError{Provider: "openai-whisper", Status: status, Detail: strings.TrimSpace(string(raw))}
	}
	return &APIError{
		Provider: "openai-whisper",
		Status:   status,
		Code:     body.Error.Code,
		Detail:   body.Error.Message,
	}
}

// SupportedFormats lists the upload formats the endpoint accepts, plus
// FormatPCM, which this service wraps as WAV itself.
func (o *OpenAI) SupportedFormats() []string {
	return []string{
		FormatPCM,
		FormatWAV,
		"flac",
		"m4a",
		"mp3",
		"mp4",
		"mpeg",
		"ogg",
		"webm",
	}
}
