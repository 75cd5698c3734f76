package audio

import (
	"encoding/binary"
	"fmt"
)

// Sample rates the bridge moves audio between.
const (
	SampleRate24kHz = 24000 // synthesis output
	SampleRate16kHz = 16000 // transcription input
	SampleRate8kHz  = 8000  // telephone wire rate (G.711)
)

// decodePCM16 unpacks little-endian 16-bit PCM into samples.
func decodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return samples
}

// encodePCM16 packs samples back into little-endian bytes.
func encodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(s))
	}
	return data
}

// lerpResample maps samples onto a new rate with linear interpolation.
// That is enough for speech headed to the telephone band; material that
// must stay flat at higher frequencies would need a polyphase filter.
func lerpResample(samples []int16, fromRate, toRate int) []int16 {
	out := make([]int16, int(float64(len(samples))*float64(toRate)/float64(fromRate)))
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := float64(samples[idx+1])
		out[i] = int16(s0 + frac*(s1-s0))
	}
	return out
}

// ResamplePCM16 converts little-endian 16-bit PCM from one sample rate to
// another. Same-rate input comes back as a fresh copy.
func ResamplePCM16(input []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if len(input)%bytesPerSample != 0 {
		return nil, fmt.Errorf("input length %d is not whole 16-bit samples", len(input))
	}
	if fromRate == toRate {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}

	samples := decodePCM16(input)
	if len(samples) == 0 {
		return []byte{}, nil
	}
	return encodePCM16(lerpResample(samples, fromRate, toRate)), nil
}

// ResampleTo8k takes synthesized audio down to the telephone wire rate.
func ResampleTo8k(input []byte, fromRate int) ([]byte, error) {
	return ResamplePCM16(input, fromRate, SampleRate8kHz)
}

// DownmixStereo averages interleaved stereo PCM16 frames into mono.
func DownmixStereo(input []byte) ([]byte, error) {
	const frameBytes = 2 * bytesPerSample
	if len(input)%frameBytes != 0 {
		return nil, fmt.Errorf("input length %d is not whole stereo frames", len(input))
	}

	samples := decodePCM16(input)
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int(samples[i*2])
		right := int(samples[i*2+1])
		// #nosec G115 -- the average of two int16 values fits int16
		mono[i] = int16((left + right) / 2)
	}
	return encodePCM16(mono), nil
}
