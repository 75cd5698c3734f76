// Package stt turns caller speech into text. Providers implement
// Service; the bridge hands them the telephone-band WAV clips the audio
// transcoder assembles from gated utterances. An OpenAI Whisper
// implementation is included.
package stt

import "context"

// Audio formats accepted by Transcribe.
const (
	FormatPCM = "pcm"
	FormatWAV = "wav"
)

// Telephone-band layout of the clips the transcoder produces.
const (
	DefaultSampleRate = 8000
	DefaultChannels   = 1
	DefaultBitDepth   = 16
)

// Service is a speech-to-text provider. Implementations are safe for
// concurrent use; the bridge shares one instance across all live calls.
type Service interface {
	// Name identifies the provider in logs and call events.
	Name() string

	// Transcribe converts one utterance to text. The clip layout is
	// described by config; a blocked request ends when ctx does.
	Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error)

	// SupportedFormats lists the format names Transcribe accepts.
	SupportedFormats() []string
}

// TranscriptionConfig describes the clip handed to Transcribe and the
// provider options for the request. Start from
// DefaultTranscriptionConfig; the zero value carries no layout.
type TranscriptionConfig struct {
	// Format names the container, FormatWAV or FormatPCM. Raw PCM is
	// wrapped in a WAV header before upload.
	Format string

	// SampleRate, Channels and BitDepth describe raw PCM layout. WAV
	// input carries its own header, so they are ignored for it.
	SampleRate int
	Channels   int
	BitDepth   int

	// Language hints the spoken language as an ISO 639-1 code.
	Language string

	// Model overrides the provider's default recognition model.
	Model string

	// Prompt biases recognition toward expected vocabulary. The
	// check-in configuration seeds it with medication and appointment
	// phrasing, which helps on narrowband audio.
	Prompt string
}

// DefaultTranscriptionConfig matches the telephone-band WAV clips the
// audio transcoder produces.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Format:     FormatWAV,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
		Language:   "en",
	}
}
