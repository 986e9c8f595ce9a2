package feature

import "math"

// SlidingCMVNConfig configures sliding-window cepstral mean (and variance)
// normalization.
type SlidingCMVNConfig struct {
	Window        int  // window size in frames, centered on the current frame
	NormalizeVar  bool // also scale to unit variance within the window
	MinWindowSize int  // floor on the effective window near utterance edges
}

// DefaultSlidingCMVNConfig matches the usual setup for warp training:
// a 300 frame centered window, mean only.
func DefaultSlidingCMVNConfig() SlidingCMVNConfig {
	return SlidingCMVNConfig{Window: 300, NormalizeVar: false, MinWindowSize: 100}
}

// SlidingCMVN normalizes each frame by the mean (and optionally variance) of
// a window centered on it. Returns a new matrix of the same shape.
func SlidingCMVN(feats [][]float64, cfg SlidingCMVNConfig) [][]float64 {
	T := len(feats)
	if T == 0 {
		return nil
	}
	dim := len(feats[0])
	out := make([][]float64, T)
	data := make([]float64, T*dim)

	win := cfg.Window
	if win <= 0 {
		win = 300
	}
	for t := 0; t < T; t++ {
		lo := t - win/2
		hi := lo + win
		if lo < 0 {
			lo = 0
			hi = win
		}
		if hi > T {
			hi = T
			lo = T - win
			if lo < 0 {
				lo = 0
			}
		}
		if hi-lo < cfg.MinWindowSize && cfg.MinWindowSize > 0 {
			lo, hi = 0, T
		}
		n := float64(hi - lo)

		row := data[t*dim : (t+1)*dim]
		for d := 0; d < dim; d++ {
			sum, sumsq := 0.0, 0.0
			for u := lo; u < hi; u++ {
				v := feats[u][d]
				sum += v
				sumsq += v * v
			}
			mean := sum / n
			row[d] = feats[t][d] - mean
			if cfg.NormalizeVar {
				variance := sumsq/n - mean*mean
				if variance > 1e-10 {
					row[d] /= math.Sqrt(variance)
				}
			}
		}
		out[t] = row
	}
	return out
}
