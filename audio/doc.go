// Package audio provides the media plumbing for telephone calls: G.711
// mu-law transcoding, WAV framing, resampling, and a self-calibrating
// voice activity gate for real-time caller audio.
//
// # Architecture
//
// Audio processing follows a two-stage approach:
//
//  1. Transcoder converts between the 8 kHz mu-law wire format and the
//     linear PCM / WAV formats the speech engines consume.
//  2. Gate classifies each decoded chunk as speech or non-speech, learning
//     the call's ambient noise level from the first chunks.
//
// # Usage Example
//
//	tc, _ := audio.NewTranscoder(audio.DefaultTranscoderParams())
//	gate, _ := audio.NewGate(audio.DefaultGateParams())
//
//	for payload := range mediaStream {
//	    pcm, err := tc.DecodePayload(payload)
//	    if err != nil {
//	        continue // no usable audio in this chunk
//	    }
//	    if d := gate.Evaluate(pcm); d.Speech {
//	        // accumulate payload for transcription
//	    }
//	}
package audio
