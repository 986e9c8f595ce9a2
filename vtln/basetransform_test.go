package vtln

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"

	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// randomCollection fills a collection with gaussian frames.
func randomCollection(t *testing.T, seed int64, keys []string, frames, dim int) *feature.Collection {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	c := feature.NewCollection()
	for _, key := range keys {
		data := mathutil.NewMat(frames, dim)
		for f := range data {
			for d := 0; d < dim; d++ {
				data[f][d] = rng.NormFloat64()
			}
		}
		if err := c.Add(key, data, nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return c
}

func TestMappingTransformIdentityFit(t *testing.T) {
	// Mapping a collection onto itself must recover the identity.
	dim := 3
	c := randomCollection(t, 1, []string{"u1", "u2"}, 60, dim)
	m, _ := NewModel(dim, 3, 1)
	if err := ComputeMappingTransform(m, c, c, 0, 0.9, nil, logging.Nop()); err != nil {
		t.Fatalf("ComputeMappingTransform: %v", err)
	}
	w, _ := m.Warp(0)
	if w != 0.9 {
		t.Errorf("warp = %f, want 0.9", w)
	}
	tr, _ := m.Transform(0)
	for i := 0; i < dim; i++ {
		for j := 0; j <= dim; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(tr[i][j]-want) > 1e-8 {
				t.Errorf("transform[%d][%d] = %f, want %f", i, j, tr[i][j], want)
			}
		}
	}
}

func TestMappingTransformVarianceRenormalization(t *testing.T) {
	// Warped = S * unwarped for a diagonal scale S. The least-squares fit
	// recovers S, and the variance renormalization then rescales each row
	// so the output variance matches the input variance, cancelling S.
	dim := 2
	scale := []float64{2.0, 0.5}
	unwarped := randomCollection(t, 2, []string{"u"}, 80, dim)
	warped := feature.NewCollection()
	for _, key := range unwarped.Keys() {
		f := unwarped.Get(key)
		data := mathutil.NewMat(f.NumFrames(), dim)
		for ti, x := range f.Data {
			for d := 0; d < dim; d++ {
				data[ti][d] = scale[d] * x[d]
			}
		}
		if err := warped.Add(key, data, nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	m, _ := NewModel(dim, 1, 0)
	if err := ComputeMappingTransform(m, unwarped, warped, 0, 1.1, nil, logging.Nop()); err != nil {
		t.Fatalf("ComputeMappingTransform: %v", err)
	}
	tr, _ := m.Transform(0)
	for d := 0; d < dim; d++ {
		if math.Abs(tr[d][d]-1.0) > 1e-6 {
			t.Errorf("transform[%d][%d] = %f, want 1.0 after renormalization", d, d, tr[d][d])
		}
	}
}

func TestMappingTransformWeightScaleInvariance(t *testing.T) {
	dim := 2
	unwarped := randomCollection(t, 3, []string{"u"}, 50, dim)
	warped := randomCollection(t, 4, []string{"u"}, 50, dim)

	uniform := map[string][]float64{"u": mathutil.NewVecFill(50, 1.0)}
	doubled := map[string][]float64{"u": mathutil.NewVecFill(50, 2.0)}

	a, _ := NewModel(dim, 1, 0)
	b, _ := NewModel(dim, 1, 0)
	if err := ComputeMappingTransform(a, unwarped, warped, 0, 1.0, uniform, logging.Nop()); err != nil {
		t.Fatalf("uniform: %v", err)
	}
	if err := ComputeMappingTransform(b, unwarped, warped, 0, 1.0, doubled, logging.Nop()); err != nil {
		t.Fatalf("doubled: %v", err)
	}
	ta, _ := a.Transform(0)
	tb, _ := b.Transform(0)
	for i := range ta {
		for j := range ta[i] {
			if math.Abs(ta[i][j]-tb[i][j]) > 1e-9 {
				t.Fatalf("transform[%d][%d] differs under weight scaling: %f vs %f", i, j, ta[i][j], tb[i][j])
			}
		}
	}
}

func TestMappingTransformMismatches(t *testing.T) {
	dim := 2
	unwarped := randomCollection(t, 5, []string{"u1", "u2"}, 30, dim)
	m, _ := NewModel(dim, 1, 0)

	// Warped side missing an utterance.
	partial := randomCollection(t, 6, []string{"u1"}, 30, dim)
	if err := ComputeMappingTransform(m, unwarped, partial, 0, 1.0, nil, logging.Nop()); !errors.Is(err, ErrDataMismatch) {
		t.Errorf("missing pair err = %v, want ErrDataMismatch", err)
	}

	// Frame-count mismatch.
	short := randomCollection(t, 7, []string{"u1", "u2"}, 20, dim)
	if err := ComputeMappingTransform(m, unwarped, short, 0, 1.0, nil, logging.Nop()); !errors.Is(err, ErrDataMismatch) {
		t.Errorf("row mismatch err = %v, want ErrDataMismatch", err)
	}

	// Missing weight vector.
	warped := randomCollection(t, 8, []string{"u1", "u2"}, 30, dim)
	weights := map[string][]float64{"u1": mathutil.NewVecFill(30, 1.0)}
	if err := ComputeMappingTransform(m, unwarped, warped, 0, 1.0, weights, logging.Nop()); !errors.Is(err, ErrDataMismatch) {
		t.Errorf("missing weights err = %v, want ErrDataMismatch", err)
	}

	// Out-of-range class.
	if err := ComputeMappingTransform(m, unwarped, warped, 5, 1.0, nil, logging.Nop()); !errors.Is(err, ErrValidation) {
		t.Errorf("bad class err = %v, want ErrValidation", err)
	}
}
