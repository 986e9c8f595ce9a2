package mathutil

import (
	"math"
	"testing"
)

func TestIdentityAffine(t *testing.T) {
	m := Identity(3)
	if len(m) != 3 || len(m[0]) != 4 {
		t.Fatalf("shape = %dx%d, want 3x4", len(m), len(m[0]))
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if m[i][j] != want {
				t.Errorf("m[%d][%d] = %f, want %f", i, j, m[i][j], want)
			}
		}
	}
}

func TestApplyAffineIdentity(t *testing.T) {
	x := []float64{1.5, -2.0, 0.25}
	dst := make([]float64, 3)
	ApplyAffine(dst, Identity(3), x)
	for i := range x {
		if dst[i] != x[i] {
			t.Errorf("dst[%d] = %f, want %f", i, dst[i], x[i])
		}
	}
}

func TestApplyAffineOffset(t *testing.T) {
	// W = [2 0 | 1; 0 3 | -1], x = (1, 1) -> (3, 2)
	w := Mat{{2, 0, 1}, {0, 3, -1}}
	dst := make([]float64, 2)
	ApplyAffine(dst, w, []float64{1, 1})
	if dst[0] != 3 || dst[1] != 2 {
		t.Errorf("dst = %v, want [3 2]", dst)
	}
}

func TestCloneMatIndependent(t *testing.T) {
	m := NewMat(2, 2)
	m[0][0] = 1
	c := CloneMat(m)
	c[0][0] = 9
	if m[0][0] != 1 {
		t.Errorf("clone aliases the original")
	}
}

func TestLogSumExp(t *testing.T) {
	// log(e^0 + e^0) = log 2
	got := LogSumExp([]float64{0, 0})
	if math.Abs(got-math.Log(2)) > 1e-12 {
		t.Errorf("LogSumExp = %f, want %f", got, math.Log(2))
	}
	// one dominant term
	got = LogSumExp([]float64{-1000, 5})
	if math.Abs(got-5) > 1e-12 {
		t.Errorf("LogSumExp = %f, want 5", got)
	}
}

func TestLogAddMatchesLogSumExp(t *testing.T) {
	a, b := -1.2, 0.7
	if d := math.Abs(LogAdd(a, b) - LogSumExp([]float64{a, b})); d > 1e-12 {
		t.Errorf("LogAdd and LogSumExp disagree by %g", d)
	}
}
