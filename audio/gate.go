package audio

import (
	"time"
)

// Default gate parameter values, tuned for 8 kHz telephone audio.
const (
	DefaultCalibrationChunks   = 5
	DefaultAmbientMultiplier   = 3.0
	DefaultMinEnergyFloor      = 0.010
	DefaultZCRMin              = 0.02
	DefaultZCRMax              = 0.35
	DefaultDynamicRangeFloor   = 0.004
	DefaultDynamicRangeWindows = 4
	DefaultCentroidMinHz       = 200.0
	DefaultCentroidMaxHz       = 3000.0
	DefaultGateSampleRate      = SampleRate8kHz
	DefaultFrameDuration       = 20 * time.Millisecond
	DefaultAggressiveness      = 1
	DefaultVoicedWindowFrames  = 5
	DefaultVoicedWindowRatio   = 0.6
)

// GateMode selects the detection strategy.
type GateMode int

const (
	// GateModeFrame classifies fixed-size frames and passes a chunk on a
	// sufficiently voiced sliding window of recent frames.
	GateModeFrame GateMode = iota
	// GateModeEnergy applies whole-chunk energy heuristics: RMS threshold,
	// zero-crossing band, dynamic range, and optional spectral centroid.
	GateModeEnergy
)

// String returns a human-readable representation of the gate mode.
func (m GateMode) String() string {
	switch m {
	case GateModeFrame:
		return "frame"
	case GateModeEnergy:
		return "energy"
	default:
		return "unknown"
	}
}

// GateParams configures the voice activity gate.
type GateParams struct {
	// Mode selects frame-level onset detection (default) or whole-chunk
	// energy heuristics.
	Mode GateMode

	// Layered additionally applies the whole-chunk energy heuristics on
	// top of frame detection, so a chunk must clear both. It has no effect
	// in energy mode (default: false).
	Layered bool

	// SampleRate is the PCM sample rate in Hz (default: 8000).
	SampleRate int

	// CalibrationChunks is the number of leading chunks used to learn the
	// ambient noise level (default: 5). Calibration chunks are classified
	// as neither speech nor silence.
	CalibrationChunks int

	// AmbientMultiplier scales the measured ambient RMS into the speech
	// threshold (default: 3.0).
	AmbientMultiplier float64

	// MinEnergyFloor is the lowest allowed speech threshold, protecting
	// very quiet lines from hair-trigger detection (default: 0.010).
	MinEnergyFloor float64

	// ZCRMin and ZCRMax bound the zero-crossing band for voiced speech
	// (defaults: 0.02-0.35). Chunks outside it are rejected as hum or
	// broadband noise.
	ZCRMin float64
	ZCRMax float64

	// DynamicRangeFloor is the minimum sub-window RMS spread (default:
	// 0.004). Steady tones sit below it.
	DynamicRangeFloor float64

	// DynamicRangeWindows is the number of sub-windows used to measure
	// dynamic range (default: 4).
	DynamicRangeWindows int

	// CentroidMinHz and CentroidMaxHz bound the spectral centroid band.
	// Setting either to zero disables the centroid check (defaults:
	// 200-3000).
	CentroidMinHz float64
	CentroidMaxHz float64

	// FrameDuration is the frame size for frame-level detection
	// (default: 20ms).
	FrameDuration time.Duration

	// Aggressiveness tightens frame classification, 0 (permissive) to 3
	// (strict) (default: 1).
	Aggressiveness int

	// VoicedWindowFrames is the sliding window length in frames
	// (default: 5).
	VoicedWindowFrames int

	// VoicedWindowRatio is the fraction of voiced frames within the window
	// required to pass a chunk (default: 0.6).
	VoicedWindowRatio float64
}

// DefaultGateParams returns sensible defaults for telephone-quality audio.
func DefaultGateParams() GateParams {
	return GateParams{
		Mode:                GateModeFrame,
		SampleRate:          DefaultGateSampleRate,
		CalibrationChunks:   DefaultCalibrationChunks,
		AmbientMultiplier:   DefaultAmbientMultiplier,
		MinEnergyFloor:      DefaultMinEnergyFloor,
		ZCRMin:              DefaultZCRMin,
		ZCRMax:              DefaultZCRMax,
		DynamicRangeFloor:   DefaultDynamicRangeFloor,
		DynamicRangeWindows: DefaultDynamicRangeWindows,
		CentroidMinHz:       DefaultCentroidMinHz,
		CentroidMaxHz:       DefaultCentroidMaxHz,
		FrameDuration:       DefaultFrameDuration,
		Aggressiveness:      DefaultAggressiveness,
		VoicedWindowFrames:  DefaultVoicedWindowFrames,
		VoicedWindowRatio:   DefaultVoicedWindowRatio,
	}
}

// Validate checks that gate parameters are within acceptable ranges.
func (p GateParams) Validate() error {
	if p.Mode != GateModeFrame && p.Mode != GateModeEnergy {
		return &ValidationError{Field: "Mode", Message: "must be GateModeFrame or GateModeEnergy"}
	}
	if p.SampleRate <= 0 {
		return &ValidationError{Field: "SampleRate", Message: "must be positive"}
	}
	if p.CalibrationChunks <= 0 {
		return &ValidationError{Field: "CalibrationChunks", Message: "must be positive"}
	}
	if p.AmbientMultiplier <= 0 {
		return &ValidationError{Field: "AmbientMultiplier", Message: "must be positive"}
	}
	if p.MinEnergyFloor < 0 || p.MinEnergyFloor > 1 {
		return &ValidationError{Field: "MinEnergyFloor", Message: "must be between 0.0 and 1.0"}
	}
	if p.ZCRMin < 0 || p.ZCRMax > 1 || p.ZCRMin >= p.ZCRMax {
		return &ValidationError{Field: "ZCRMin", Message: "must satisfy 0 <= min < max <= 1"}
	}
	if p.DynamicRangeFloor < 0 {
		return &ValidationError{Field: "DynamicRangeFloor", Message: "must be non-negative"}
	}
	if p.DynamicRangeWindows <= 0 {
		return &ValidationError{Field: "DynamicRangeWindows", Message: "must be positive"}
	}
	if p.CentroidMinHz < 0 || p.CentroidMaxHz < 0 {
		return &ValidationError{Field: "CentroidMinHz", Message: "must be non-negative"}
	}
	if p.CentroidMinHz > 0 && p.CentroidMaxHz > 0 && p.CentroidMinHz >= p.CentroidMaxHz {
		return &ValidationError{Field: "CentroidMaxHz", Message: "must be greater than CentroidMinHz"}
	}
	if p.Mode == GateModeFrame {
		if p.FrameDuration <= 0 {
			return &ValidationError{Field: "FrameDuration", Message: "must be positive"}
		}
		if p.Aggressiveness < 0 || p.Aggressiveness >= len(frameThresholdScale) {
			return &ValidationError{Field: "Aggressiveness", Message: "must be between 0 and 3"}
		}
		if p.VoicedWindowFrames <= 0 {
			return &ValidationError{Field: "VoicedWindowFrames", Message: "must be positive"}
		}
		if p.VoicedWindowRatio <= 0 || p.VoicedWindowRatio > 1 {
			return &ValidationError{Field: "VoicedWindowRatio", Message: "must be between 0.0 and 1.0"}
		}
	}
	return nil
}

// GateDecision is the classification of one audio chunk together with the
// signal measurements that produced it.
type GateDecision struct {
	// Speech is true when the chunk cleared the gate.
	Speech bool
	// Calibrating is true while the gate is still learning the ambient
	// level; such chunks are neither speech nor silence.
	Calibrating bool
	// Threshold is the speech threshold in effect (0 until calibrated).
	Threshold float64
	// Mode is the detection strategy that produced the decision.
	Mode GateMode

	// Signal measurements for diagnostics and metrics. VoicedRatio is only
	// set in frame mode; ZCR, DynamicRange, and Centroid in energy mode
	// and in layered frame mode once the frame detector has passed.
	RMS          float64
	ZCR          float64
	DynamicRange float64
	Centroid     float64
	VoicedRatio  float64
}

// Gate classifies decoded caller audio as speech or non-speech. The first
// CalibrationChunks chunks train an ambient noise estimate; every later
// chunk is judged against the learned threshold.
//
// A Gate is owned by a single call session and is not safe for concurrent
// use.
type Gate struct {
	params GateParams

	calibrationRMS []float64
	threshold      float64
	calibrated     bool

	frames *frameClassifier // nil in energy mode
}

// NewGate creates a Gate with the given parameters.
func NewGate(params GateParams) (*Gate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	g := &Gate{
		params:         params,
		calibrationRMS: make([]float64, 0, params.CalibrationChunks),
	}
	if params.Mode == GateModeFrame {
		g.frames = newFrameClassifier(params)
	}
	return g, nil
}

// Evaluate classifies one chunk of 16-bit little-endian PCM at the
// configured sample rate.
func (g *Gate) Evaluate(pcm []byte) GateDecision {
	d := GateDecision{Mode: g.params.Mode, RMS: RMS(pcm)}

	if !g.calibrated {
		g.calibrationRMS = append(g.calibrationRMS, d.RMS)
		if len(g.calibrationRMS) >= g.params.CalibrationChunks {
			g.threshold = g.learnThreshold()
			g.calibrated = true
		}
		d.Calibrating = true
		return d
	}

	d.Threshold = g.threshold
	switch g.params.Mode {
	case GateModeFrame:
		d.VoicedRatio = g.frames.bestVoicedRatio(pcm, g.threshold)
		d.Speech = d.VoicedRatio >= g.params.VoicedWindowRatio
		if d.Speech && g.params.Layered {
			d.ZCR = ZeroCrossingRate(pcm)
			d.DynamicRange = DynamicRange(pcm, g.params.DynamicRangeWindows)
			if g.centroidEnabled() {
				d.Centroid = SpectralCentroid(pcm, g.params.SampleRate)
			}
			d.Speech = g.energyPass(d)
		}
	case GateModeEnergy:
		d.ZCR = ZeroCrossingRate(pcm)
		d.DynamicRange = DynamicRange(pcm, g.params.DynamicRangeWindows)
		if g.centroidEnabled() {
			d.Centroid = SpectralCentroid(pcm, g.params.SampleRate)
		}
		d.Speech = g.energyPass(d)
	}
	return d
}

// learnThreshold converts the recorded ambient samples into the speech
// threshold: mean ambient RMS scaled by AmbientMultiplier, never below
// MinEnergyFloor.
func (g *Gate) learnThreshold() float64 {
	var sum float64
	for _, r := range g.calibrationRMS {
		sum += r
	}
	mean := sum / float64(len(g.calibrationRMS))

	threshold := mean * g.params.AmbientMultiplier
	if threshold < g.params.MinEnergyFloor {
		threshold = g.params.MinEnergyFloor
	}
	return threshold
}

// energyPass applies the whole-chunk heuristics: energy above the learned
// threshold, zero crossings inside the voiced band, enough burst-to-gap
// spread, and a speech-band centroid when enabled.
func (g *Gate) energyPass(d GateDecision) bool {
	if d.RMS < g.threshold {
		return false
	}
	if d.ZCR < g.params.ZCRMin || d.ZCR > g.params.ZCRMax {
		return false
	}
	if d.DynamicRange < g.params.DynamicRangeFloor {
		return false
	}
	if g.centroidEnabled() && (d.Centroid < g.params.CentroidMinHz || d.Centroid > g.params.CentroidMaxHz) {
		return false
	}
	return true
}

func (g *Gate) centroidEnabled() bool {
	return g.params.CentroidMinHz > 0 && g.params.CentroidMaxHz > 0
}

// Threshold returns the learned speech threshold, or 0 while calibrating.
func (g *Gate) Threshold() float64 {
	if !g.calibrated {
		return 0
	}
	return g.threshold
}

// Calibrated reports whether ambient calibration has completed.
func (g *Gate) Calibrated() bool {
	return g.calibrated
}

// Reset clears calibration and frame history for a new call.
func (g *Gate) Reset() {
	g.calibrationRMS = g.calibrationRMS[:0]
	g.threshold = 0
	g.calibrated = false
	if g.frames != nil {
		g.frames.reset()
	}
}
