package feature

// Config holds MFCC extraction parameters.
type Config struct {
	SampleRate    int
	FrameLenMs    float64 // frame length in milliseconds
	FrameShiftMs  float64 // frame shift in milliseconds
	PreEmphCoeff  float64
	NumMelFilters int
	NumCepstra    int
	LowFreq       float64
	HighFreq      float64
	FFTSize       int
	CepLifter     int
	DeltaWindow   int // regression window for deltas; 0 disables delta features

	// Warp is the VTLN frequency-warp factor (1.0 = no warping). The warp
	// is applied to the mel filterbank center frequencies, so the output
	// shape is identical for every warp value.
	Warp float64

	// VTLNLow and VTLNHigh bound the linearly warped band. VTLNHigh, if
	// negative, is an offset from HighFreq.
	VTLNLow  float64
	VTLNHigh float64
}

// DefaultConfig returns the standard configuration: 13 cepstra with delta
// and delta-delta appended (regression window 3).
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FrameLenMs:    25.0,
		FrameShiftMs:  10.0,
		PreEmphCoeff:  0.97,
		NumMelFilters: 26,
		NumCepstra:    13,
		LowFreq:       20,
		HighFreq:      7800,
		FFTSize:       512,
		CepLifter:     22,
		DeltaWindow:   3,
		Warp:          1.0,
		VTLNLow:       100,
		VTLNHigh:      -500,
	}
}

// Warped returns a copy of the config with the given warp factor.
func (c Config) Warped(warp float64) Config {
	c.Warp = warp
	return c
}

// FeatureDim returns the total feature vector dimension.
func (c Config) FeatureDim() int {
	if c.DeltaWindow > 0 {
		return 3 * c.NumCepstra
	}
	return c.NumCepstra
}
