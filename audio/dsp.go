package audio

import (
	"encoding/binary"
	"math"
)

const (
	// bytesPerSample is the width of one 16-bit PCM sample.
	bytesPerSample = 2
	// maxAmplitude is the full-scale magnitude of 16-bit signed audio.
	maxAmplitude = 32768.0
	// centroidMaxSamples caps the direct DFT used for the spectral centroid.
	centroidMaxSamples = 512
)

// RMS computes the root mean square of 16-bit little-endian PCM audio,
// normalized to 0.0-1.0.
func RMS(pcm []byte) float64 {
	numSamples := len(pcm) / bytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		normalized := float64(sample) / maxAmplitude
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}

// ZeroCrossingRate computes the fraction of adjacent sample pairs whose
// signs differ, in 0.0-1.0. Voiced speech at telephone rates sits in a
// narrow band; line hum falls below it and broadband noise above it.
func ZeroCrossingRate(pcm []byte) float64 {
	numSamples := len(pcm) / bytesPerSample
	if numSamples < 2 {
		return 0
	}

	crossings := 0
	// #nosec G115 -- overflow is intentional for signed PCM conversion
	prev := int16(binary.LittleEndian.Uint16(pcm))
	for i := 1; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		cur := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		if (prev >= 0) != (cur >= 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(numSamples-1)
}

// DynamicRange measures the spread between the loudest and quietest
// sub-window RMS of the chunk. Speech alternates bursts and gaps; a steady
// tone or hum has near-zero spread.
func DynamicRange(pcm []byte, subWindows int) float64 {
	numSamples := len(pcm) / bytesPerSample
	if numSamples == 0 || subWindows <= 0 {
		return 0
	}
	if subWindows > numSamples {
		subWindows = numSamples
	}

	windowBytes := (numSamples / subWindows) * bytesPerSample
	minRMS := math.MaxFloat64
	maxRMS := 0.0
	for w := 0; w < subWindows; w++ {
		r := RMS(pcm[w*windowBytes : (w+1)*windowBytes])
		if r < minRMS {
			minRMS = r
		}
		if r > maxRMS {
			maxRMS = r
		}
	}
	return maxRMS - minRMS
}

// SpectralCentroid estimates the amplitude-weighted mean frequency of the
// chunk in Hz using a direct DFT, analyzing at most centroidMaxSamples
// samples to bound cost. Returns 0 for silent or too-short input.
func SpectralCentroid(pcm []byte, sampleRate int) float64 {
	numSamples := len(pcm) / bytesPerSample
	if numSamples < 2 || sampleRate <= 0 {
		return 0
	}
	if numSamples > centroidMaxSamples {
		numSamples = centroidMaxSamples
	}

	samples := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		samples[i] = float64(sample) / maxAmplitude
	}

	var weighted, total float64
	for k := 1; k <= numSamples/2; k++ {
		angle := 2 * math.Pi * float64(k) / float64(numSamples)
		var re, im float64
		for n := 0; n < numSamples; n++ {
			re += samples[n] * math.Cos(angle*float64(n))
			im -= samples[n] * math.Sin(angle*float64(n))
		}
		mag := math.Hypot(re, im)
		weighted += float64(k) * float64(sampleRate) / float64(numSamples) * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
