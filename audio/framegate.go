package audio

// frameThresholdScale maps Aggressiveness (0-3) to a multiplier on the
// calibrated threshold for per-frame classification.
var frameThresholdScale = [4]float64{0.8, 1.0, 1.3, 1.6}

// frameClassifier implements frame-level onset detection. Each chunk is
// split into fixed frames classified voiced or unvoiced by energy, and the
// chunk passes when a sliding window of recent frames is sufficiently
// voiced. Frame history carries across chunks so an onset spanning a chunk
// boundary still registers; isolated clicks never fill a window.
type frameClassifier struct {
	frameSamples int
	window       int
	scale        float64

	history []bool // classifications of the last window-1 frames
	carry   []byte // partial frame held over from the previous chunk
}

func newFrameClassifier(params GateParams) *frameClassifier {
	frameSamples := int(float64(params.SampleRate) * params.FrameDuration.Seconds())
	if frameSamples < 1 {
		frameSamples = 1
	}
	return &frameClassifier{
		frameSamples: frameSamples,
		window:       params.VoicedWindowFrames,
		scale:        frameThresholdScale[params.Aggressiveness],
	}
}

// bestVoicedRatio classifies the chunk's frames against the threshold and
// returns the highest voiced fraction of any sliding window ending in this
// chunk. Windows are always scored against the full window length, so a
// lone voiced frame cannot pass a multi-frame window.
func (f *frameClassifier) bestVoicedRatio(pcm []byte, threshold float64) float64 {
	data := pcm
	if len(f.carry) > 0 {
		data = append(append([]byte{}, f.carry...), pcm...)
		f.carry = nil
	}

	frameBytes := f.frameSamples * bytesPerSample
	frameThreshold := threshold * f.scale

	flags := append([]bool{}, f.history...)
	newFrames := 0
	for len(data) >= frameBytes {
		flags = append(flags, RMS(data[:frameBytes]) >= frameThreshold)
		data = data[frameBytes:]
		newFrames++
	}
	if len(data) > 0 {
		f.carry = append([]byte{}, data...)
	}
	if newFrames == 0 {
		return 0
	}

	best := 0.0
	for end := len(flags) - newFrames; end < len(flags); end++ {
		start := end + 1 - f.window
		if start < 0 {
			start = 0
		}
		voiced := 0
		for i := start; i <= end; i++ {
			if flags[i] {
				voiced++
			}
		}
		if ratio := float64(voiced) / float64(f.window); ratio > best {
			best = ratio
		}
	}

	if keep := f.window - 1; len(flags) > keep {
		flags = flags[len(flags)-keep:]
	}
	f.history = flags
	return best
}

func (f *frameClassifier) reset() {
	f.history = nil
	f.carry = nil
}
