package audio

import (
	"fmt"
)

// Transcoder format defaults.
const (
	DefaultWireSampleRate  = SampleRate8kHz
	DefaultSynthSampleRate = SampleRate24kHz
	DefaultSynthChannels   = 1
	engineBitsPerSample    = 16
)

// TranscoderParams configures the wire-side and engine-side audio formats.
type TranscoderParams struct {
	// WireSampleRate is the telephone leg's sample rate in Hz (default: 8000).
	WireSampleRate int

	// SynthSampleRate is the rate assumed for synthesized audio that arrives
	// as raw PCM without a WAV header (default: 24000).
	SynthSampleRate int

	// SynthChannels is the channel count assumed for raw synthesized PCM
	// (default: 1).
	SynthChannels int
}

// DefaultTranscoderParams returns the formats used by Twilio-style media
// streams on the wire side and common TTS engines on the synthesis side.
func DefaultTranscoderParams() TranscoderParams {
	return TranscoderParams{
		WireSampleRate:  DefaultWireSampleRate,
		SynthSampleRate: DefaultSynthSampleRate,
		SynthChannels:   DefaultSynthChannels,
	}
}

// Validate checks that transcoder parameters are within acceptable ranges.
func (p TranscoderParams) Validate() error {
	if p.WireSampleRate <= 0 {
		return &ValidationError{Field: "WireSampleRate", Message: "must be positive"}
	}
	if p.SynthSampleRate <= 0 {
		return &ValidationError{Field: "SynthSampleRate", Message: "must be positive"}
	}
	if p.SynthChannels != 1 && p.SynthChannels != 2 {
		return &ValidationError{Field: "SynthChannels", Message: "must be 1 or 2"}
	}
	return nil
}

// Transcoder converts between the G.711 mu-law wire format and the linear
// PCM / WAV formats the speech engines consume. It is stateless and safe
// for concurrent use.
type Transcoder struct {
	params TranscoderParams
}

// NewTranscoder creates a Transcoder with the given parameters.
func NewTranscoder(params TranscoderParams) (*Transcoder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Transcoder{params: params}, nil
}

// DecodePayload expands one wire media payload into 16-bit linear PCM for
// gating and accumulation.
func (t *Transcoder) DecodePayload(payload []byte) ([]byte, error) {
	return DecodeMuLaw(payload)
}

// ToEngineFormat expands a buffered mu-law utterance and wraps it as a mono
// 16-bit WAV at the wire rate, the upload format the STT engines accept.
func (t *Transcoder) ToEngineFormat(wire []byte) ([]byte, error) {
	pcm, err := DecodeMuLaw(wire)
	if err != nil {
		return nil, err
	}
	return WrapPCMAsWAV(pcm, t.params.WireSampleRate, 1, engineBitsPerSample), nil
}

// FromEngineFormat converts synthesized audio into the mu-law wire format.
// It accepts a WAV container (format read from the header) or raw PCM16 at
// the configured synthesis rate, downmixes stereo to mono, resamples to the
// wire rate, and compands the result.
func (t *Transcoder) FromEngineFormat(synth []byte) ([]byte, error) {
	if len(synth) == 0 {
		return nil, &CodecError{Op: "encode-wire", Reason: "empty synthesis payload"}
	}

	pcm := synth
	rate := t.params.SynthSampleRate
	channels := t.params.SynthChannels
	if isWAV(synth) {
		data, info, err := ParseWAV(synth)
		if err != nil {
			return nil, err
		}
		if info.BitsPerSample != engineBitsPerSample {
			return nil, &CodecError{Op: "encode-wire", Reason: fmt.Sprintf("unsupported bit depth %d", info.BitsPerSample)}
		}
		pcm, rate, channels = data, info.SampleRate, info.Channels
	}

	switch channels {
	case 1:
	case 2:
		mono, err := DownmixStereo(pcm)
		if err != nil {
			return nil, &CodecError{Op: "encode-wire", Reason: "downmix failed", Cause: err}
		}
		pcm = mono
	default:
		return nil, &CodecError{Op: "encode-wire", Reason: fmt.Sprintf("unsupported channel count %d", channels)}
	}

	resampled, err := ResamplePCM16(pcm, rate, t.params.WireSampleRate)
	if err != nil {
		return nil, &CodecError{Op: "encode-wire", Reason: "resample failed", Cause: err}
	}
	return EncodeMuLaw(resampled)
}

// isWAV reports whether the payload starts with a RIFF/WAVE header.
func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
