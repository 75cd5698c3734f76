// Package tts turns reply text into audio for the outbound leg of a
// call. Providers implement Service; the bridge asks them for raw PCM
// and lets the audio transcoder resample and mu-law encode the result
// for the wire. ElevenLabs and OpenAI implementations are included.
package tts

import (
	"context"
	"io"
)

// Service is a text-to-speech provider. Implementations are safe for
// concurrent use; the bridge shares one instance across all live calls.
type Service interface {
	// Name identifies the provider in logs and call events.
	Name() string

	// Synthesize speaks text and streams back encoded audio. The caller
	// owns the reader and must close it.
	Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error)

	// SupportedVoices lists voices this provider can speak with.
	SupportedVoices() []Voice

	// SupportedFormats lists output encodings Synthesize can produce.
	SupportedFormats() []AudioFormat
}

// SynthesisConfig selects the voice and output shape for one request.
// Unset fields fall back to provider defaults.
type SynthesisConfig struct {
	// Voice is the provider-specific voice ID.
	Voice string

	// Model overrides the provider's default synthesis model.
	Model string

	// Format is the requested output encoding.
	Format AudioFormat

	// Speed scales the speech rate where the provider supports it.
	Speed float64
}

// DefaultSynthesisConfig requests raw PCM at the synthesis rate, the
// shape the call pipeline feeds into the transcoder. The voice is left
// empty so each provider picks its own default.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Format: FormatPCM16,
		Speed:  1.0,
	}
}

// Voice is one synthesis voice a provider offers.
type Voice struct {
	ID          string
	Name        string
	Language    string
	Gender      string
	Description string
}

// AudioFormat describes an output encoding. BitDepth is zero for
// compressed formats.
type AudioFormat struct {
	Name       string
	MIMEType   string
	SampleRate int
	BitDepth   int
	Channels   int
}

// String returns the format name.
func (f AudioFormat) String() string {
	return f.Name
}

// Formats the bridge knows how to handle.
var (
	// FormatPCM8 is raw 16-bit PCM at the telephone rate. Providers
	// that produce it directly let the transcoder skip resampling.
	FormatPCM8 = AudioFormat{Name: "pcm", MIMEType: "audio/pcm", SampleRate: 8000, BitDepth: 16, Channels: 1}

	// FormatPCM16 is raw 16-bit PCM at the common 24 kHz synthesis rate.
	FormatPCM16 = AudioFormat{Name: "pcm", MIMEType: "audio/pcm", SampleRate: 24000, BitDepth: 16, Channels: 1}

	// FormatWAV is FormatPCM16 with a RIFF header.
	FormatWAV = AudioFormat{Name: "wav", MIMEType: "audio/wav", SampleRate: 24000, BitDepth: 16, Channels: 1}

	// FormatMP3 suits stored greetings and playback, not the live path.
	FormatMP3 = AudioFormat{Name: "mp3", MIMEType: "audio/mpeg", SampleRate: 24000, Channels: 1}
)
