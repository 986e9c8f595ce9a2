package feature

// VADConfig configures the energy-based voice activity decision. The
// decision reads the first cepstral coefficient, which tracks log frame
// energy after the DCT.
type VADConfig struct {
	EnergyThreshold float64 // absolute floor on c0
	EnergyMeanScale float64 // added fraction of the utterance mean c0
	FramesContext   int     // neighbor frames voted on each side
	ProportionVoted float64 // fraction of context votes needed
}

// DefaultVADConfig returns the standard energy VAD parameters.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 5.0,
		EnergyMeanScale: 0.5,
		FramesContext:   2,
		ProportionVoted: 0.6,
	}
}

// VAD returns a per-frame boolean mask, true for voiced frames.
func VAD(feats [][]float64, cfg VADConfig) []bool {
	T := len(feats)
	mask := make([]bool, T)
	if T == 0 {
		return mask
	}

	threshold := cfg.EnergyThreshold
	if cfg.EnergyMeanScale > 0 {
		mean := 0.0
		for t := 0; t < T; t++ {
			mean += feats[t][0]
		}
		mean /= float64(T)
		threshold += cfg.EnergyMeanScale * mean
	}

	raw := make([]bool, T)
	for t := 0; t < T; t++ {
		raw[t] = feats[t][0] > threshold
	}

	if cfg.FramesContext <= 0 {
		copy(mask, raw)
		return mask
	}
	for t := 0; t < T; t++ {
		voted, voiced := 0, 0
		for u := t - cfg.FramesContext; u <= t+cfg.FramesContext; u++ {
			if u < 0 || u >= T {
				continue
			}
			voted++
			if raw[u] {
				voiced++
			}
		}
		mask[t] = float64(voiced) >= cfg.ProportionVoted*float64(voted)
	}
	return mask
}
