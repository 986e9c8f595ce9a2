package feature

import (
	"math"
	"testing"
)

func TestSlidingCMVNRemovesMean(t *testing.T) {
	// Constant features over a window larger than the utterance: every
	// output frame is exactly zero.
	T, dim := 50, 3
	feats := make([][]float64, T)
	for i := range feats {
		feats[i] = []float64{4.0, -2.0, 10.0}
	}
	cfg := SlidingCMVNConfig{Window: 300, MinWindowSize: 100}
	out := SlidingCMVN(feats, cfg)
	for ti := range out {
		for d := 0; d < dim; d++ {
			if out[ti][d] != 0 {
				t.Fatalf("out[%d][%d] = %f, want 0", ti, d, out[ti][d])
			}
		}
	}
}

func TestSlidingCMVNVariance(t *testing.T) {
	// Alternating +1/-1 has mean 0 and variance 1 in every even window, so
	// variance normalization leaves it unchanged.
	T := 40
	feats := make([][]float64, T)
	for i := range feats {
		v := 1.0
		if i%2 == 1 {
			v = -1.0
		}
		feats[i] = []float64{v}
	}
	cfg := SlidingCMVNConfig{Window: 10, NormalizeVar: true}
	out := SlidingCMVN(feats, cfg)
	for ti := range out {
		if math.Abs(math.Abs(out[ti][0])-1.0) > 1e-9 {
			t.Fatalf("out[%d] = %f, want magnitude 1", ti, out[ti][0])
		}
	}
}

func TestSlidingCMVNWindowIsLocal(t *testing.T) {
	// A step signal: with a small window the normalized values far from
	// the step should be near zero on both sides.
	T := 200
	feats := make([][]float64, T)
	for i := range feats {
		v := 0.0
		if i >= 100 {
			v = 10.0
		}
		feats[i] = []float64{v}
	}
	out := SlidingCMVN(feats, SlidingCMVNConfig{Window: 20})
	if math.Abs(out[10][0]) > 1e-9 {
		t.Errorf("out[10] = %f, want 0", out[10][0])
	}
	if math.Abs(out[190][0]) > 1e-9 {
		t.Errorf("out[190] = %f, want 0", out[190][0])
	}
}

func TestSlidingCMVNEmpty(t *testing.T) {
	if out := SlidingCMVN(nil, DefaultSlidingCMVNConfig()); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}
