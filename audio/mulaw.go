package audio

import (
	"encoding/binary"
)

// G.711 mu-law companding constants.
const (
	muLawBias = 0x84  // segment offset added before exponent search
	muLawClip = 32635 // largest linear magnitude representable after biasing
)

// DecodeMuLawSample expands one 8-bit mu-law byte into a 16-bit linear
// PCM sample.
func DecodeMuLawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + muLawBias
	value <<= uint(exp)
	value -= muLawBias
	if sign != 0 {
		// #nosec G115 -- value is bounded by the mu-law segment table
		return int16(-value)
	}
	// #nosec G115 -- value is bounded by the mu-law segment table
	return int16(value)
}

// EncodeMuLawSample compands one 16-bit linear PCM sample into an 8-bit
// mu-law byte.
func EncodeMuLawSample(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exp := byte(7)
	for mask := 0x4000; s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte(s>>(exp+3)) & 0x0F
	return ^(sign | exp<<4 | mant)
}

// DecodeMuLaw expands a mu-law byte stream into 16-bit little-endian PCM
// at the same sample rate. Each input byte yields one output sample.
func DecodeMuLaw(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &CodecError{Op: "decode-mulaw", Reason: "empty payload"}
	}

	pcm := make([]byte, len(data)*bytesPerSample)
	for i, u := range data {
		// #nosec G115 -- intentional signed PCM byte encoding
		binary.LittleEndian.PutUint16(pcm[i*bytesPerSample:], uint16(DecodeMuLawSample(u)))
	}
	return pcm, nil
}

// EncodeMuLaw compands 16-bit little-endian PCM into a mu-law byte stream.
// The input length must be even; each sample yields one output byte.
func EncodeMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, &CodecError{Op: "encode-mulaw", Reason: "empty payload"}
	}
	if len(pcm)%bytesPerSample != 0 {
		return nil, &CodecError{Op: "encode-mulaw", Reason: "truncated sample at end of payload"}
	}

	out := make([]byte, len(pcm)/bytesPerSample)
	for i := range out {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = EncodeMuLawSample(sample)
	}
	return out, nil
}
