package audio

import (
	"encoding/binary"
	"fmt"
)

// WAV container constants.
const (
	wavHeaderSize   = 44
	wavFmtChunkSize = 16
	wavFormatPCM    = 1
)

// WrapPCMAsWAV wraps raw PCM audio data in a 44-byte RIFF/WAV header.
// This is necessary for APIs like OpenAI Whisper that expect file uploads.
//
// Parameters:
//   - pcmData: Raw PCM audio bytes (little-endian, signed)
//   - sampleRate: Sample rate in Hz (e.g., 8000)
//   - channels: Number of channels (1=mono, 2=stereo)
//   - bitsPerSample: Bits per sample (typically 16)
//
// Returns a byte slice containing WAV-formatted audio.
func WrapPCMAsWAV(pcmData []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcmData)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	// WAV header is 44 bytes
	wav := make([]byte, wavHeaderSize+dataSize)

	// RIFF header
	copy(wav[0:4], "RIFF")
	putLE32(wav[4:8], uint32(36+dataSize)) // #nosec G115 -- sizes fit a WAV container
	copy(wav[8:12], "WAVE")

	// fmt subchunk
	copy(wav[12:16], "fmt ")
	putLE32(wav[16:20], wavFmtChunkSize)
	putLE16(wav[20:22], wavFormatPCM)
	putLE16(wav[22:24], uint16(channels))      // #nosec G115 -- validated channel count
	putLE32(wav[24:28], uint32(sampleRate))    // #nosec G115 -- validated sample rate
	putLE32(wav[28:32], uint32(byteRate))      // #nosec G115 -- derived from validated rates
	putLE16(wav[32:34], uint16(blockAlign))    // #nosec G115 -- derived from validated format
	putLE16(wav[34:36], uint16(bitsPerSample)) // #nosec G115 -- validated bit depth

	// data subchunk
	copy(wav[36:40], "data")
	putLE32(wav[40:44], uint32(dataSize)) // #nosec G115 -- sizes fit a WAV container
	copy(wav[44:], pcmData)

	return wav
}

// WAVInfo describes the format of a parsed WAV container.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ParseWAV extracts the PCM payload and format description from a WAV
// container. It accepts the canonical 44-byte layout as well as containers
// carrying extra chunks before the data chunk. The returned slice aliases
// the input.
func ParseWAV(wav []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(wav) < wavHeaderSize {
		return nil, info, &CodecError{Op: "parse-wav", Reason: "container shorter than header"}
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, info, &CodecError{Op: "parse-wav", Reason: "missing RIFF/WAVE magic"}
	}

	// Walk chunks after the RIFF header; fmt must precede data.
	pos := 12
	haveFmt := false
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(wav) {
			return nil, info, &CodecError{Op: "parse-wav", Reason: "chunk " + id + " overruns container"}
		}

		switch id {
		case "fmt ":
			if size < wavFmtChunkSize {
				return nil, info, &CodecError{Op: "parse-wav", Reason: "fmt chunk too short"}
			}
			format := int(binary.LittleEndian.Uint16(wav[body:]))
			if format != wavFormatPCM {
				return nil, info, &CodecError{Op: "parse-wav", Reason: fmt.Sprintf("unsupported audio format %d", format)}
			}
			info.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, info, &CodecError{Op: "parse-wav", Reason: "data chunk before fmt"}
			}
			return wav[body : body+size], info, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}
	return nil, info, &CodecError{Op: "parse-wav", Reason: "no data chunk"}
}

// MuLawToWAV decodes a mu-law byte stream and wraps it as mono 16-bit WAV
// at the given sample rate.
func MuLawToWAV(data []byte, sampleRate int) ([]byte, error) {
	pcm, err := DecodeMuLaw(data)
	if err != nil {
		return nil, err
	}
	return WrapPCMAsWAV(pcm, sampleRate, 1, 16), nil
}

// putLE16 writes a uint16 in little-endian format.
func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// putLE32 writes a uint32 in little-endian format.
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
