package vtln

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/lvtln-go/acoustic"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// Accs accumulates the Gaussian-mixture sufficient statistics of one unit
// (utterance, or all utterances of one speaker) needed to evaluate and
// refine an affine transform:
//
//	β           total posterior mass
//	K[i]        Σ_t Σ_m γ_m(t) μ_m,i/σ²_m,i · x⁺(t)ᵀ
//	G[i]        Σ_t Σ_m γ_m(t) 1/σ²_m,i · x⁺(t) x⁺(t)ᵀ
//
// over augmented frames x⁺ = [x; 1]. Built fresh per estimation call and
// discarded afterwards.
type Accs struct {
	dim  int
	Beta float64
	K    mathutil.Mat    // [dim][dim+1]
	G    []*mat.SymDense // dim matrices of (dim+1)x(dim+1)

	// scratch
	xplus []float64
	xpVec *mat.VecDense
	aBuf  []float64
	bBuf  []float64
}

// NewAccs creates zeroed statistics for feature dimension dim.
func NewAccs(dim int) *Accs {
	a := &Accs{
		dim:   dim,
		K:     mathutil.NewMat(dim, dim+1),
		G:     make([]*mat.SymDense, dim),
		xplus: make([]float64, dim+1),
		aBuf:  make([]float64, dim),
		bBuf:  make([]float64, dim),
	}
	a.xpVec = mat.NewVecDense(dim+1, a.xplus)
	for i := range a.G {
		a.G[i] = mat.NewSymDense(dim+1, nil)
	}
	return a
}

// Dim returns the feature dimension the stats were built for.
func (a *Accs) Dim() int { return a.dim }

// AccumulateFrame adds one frame's contribution given the selected Gaussian
// posteriors. The per-Gaussian sums over means and inverse variances are
// reduced to two per-dimension coefficients first, so the expensive outer
// products happen once per frame, not once per Gaussian.
func (a *Accs) AccumulateFrame(gmm *acoustic.GMM, x []float64, post acoustic.FramePosterior) error {
	if len(x) != a.dim {
		return errors.Wrapf(ErrDataMismatch, "frame dim %d, stats dim %d", len(x), a.dim)
	}
	for d := 0; d < a.dim; d++ {
		a.aBuf[d] = 0
		a.bBuf[d] = 0
	}
	gammaSum := 0.0
	for _, gp := range post {
		if gp.Index < 0 || gp.Index >= len(gmm.Components) {
			return errors.Wrapf(ErrDataMismatch, "gaussian index %d outside mixture of %d", gp.Index, len(gmm.Components))
		}
		comp := &gmm.Components[gp.Index]
		invVar := comp.InvVariance()
		gammaSum += gp.Weight
		for d := 0; d < a.dim; d++ {
			iv := gp.Weight * invVar[d]
			a.aBuf[d] += iv * comp.Mean[d]
			a.bBuf[d] += iv
		}
	}
	if gammaSum == 0 {
		return nil
	}

	copy(a.xplus, x)
	a.xplus[a.dim] = 1.0

	a.Beta += gammaSum
	for d := 0; d < a.dim; d++ {
		mathutil.AddScaledVec(a.K[d], a.aBuf[d], a.xplus)
		a.G[d].SymRankOne(a.G[d], a.bBuf[d], a.xpVec)
	}
	return nil
}
