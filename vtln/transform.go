package vtln

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// NormType constrains how a class transform is refined from unit statistics.
type NormType string

const (
	// NormNone uses each class transform as is.
	NormNone NormType = "none"
	// NormOffset re-optimizes only the offset column, keeping the linear
	// part fixed to the base class transform.
	NormOffset NormType = "offset"
	// NormDiag re-optimizes a per-dimension scale and offset on top of the
	// base class transform.
	NormDiag NormType = "diag"
)

// ParseNormType validates a normalization type string.
func ParseNormType(s string) (NormType, error) {
	switch NormType(s) {
	case NormNone, NormOffset, NormDiag:
		return NormType(s), nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown norm type %q", s)
}

// TransformResult is the outcome of class selection for one unit.
type TransformResult struct {
	ClassIndex int
	Warp       float64
	Transform  mathutil.Mat // dim x (dim+1)
	ObjfImpr   float64      // auxiliary-function improvement over no transform
	Count      float64      // posterior mass (frame count) behind the stats
}

// ComputeTransform selects the warp class whose (refined) transform gives
// the largest auxiliary-function improvement over the identity, and returns
// the refined transform. With no accumulated stats the default class is
// returned with zero improvement.
func (m *Model) ComputeTransform(accs *Accs, norm NormType, logdetScale float64,
	logger *zap.SugaredLogger) (*TransformResult, error) {
	if !m.initialized() {
		return nil, errors.Wrap(ErrNotInitialized, "model")
	}
	if _, err := ParseNormType(string(norm)); err != nil {
		return nil, err
	}
	if accs.Dim() != m.dim {
		return nil, errors.Wrapf(ErrDataMismatch, "stats dim %d, model dim %d", accs.Dim(), m.dim)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	if accs.Beta == 0 {
		logger.Warnw("no stats accumulated, returning default class",
			"class", m.defaultClass)
		return &TransformResult{
			ClassIndex: m.defaultClass,
			Warp:       m.warps[m.defaultClass],
			Transform:  mathutil.CloneMat(m.transforms[m.defaultClass]),
		}, nil
	}

	baseline := auxF(mathutil.Identity(m.dim), accs, logdetScale)

	bestObjf := math.Inf(-1)
	bestClass := -1
	var bestW mathutil.Mat
	for c := range m.transforms {
		w := mathutil.CloneMat(m.transforms[c])
		switch norm {
		case NormOffset:
			refineOffset(w, accs)
		case NormDiag:
			refineDiagonal(w, accs)
		}
		objf := auxF(w, accs, logdetScale)
		if objf > bestObjf {
			bestObjf = objf
			bestClass = c
			bestW = w
		}
	}

	return &TransformResult{
		ClassIndex: bestClass,
		Warp:       m.warps[bestClass],
		Transform:  bestW,
		ObjfImpr:   bestObjf - baseline,
		Count:      accs.Beta,
	}, nil
}

// auxF evaluates the Gaussian-mixture auxiliary function
//
//	logdetScale·β·log|det A| + tr(W Kᵀ) − ½ Σ_i wᵢ Gᵢ wᵢᵀ
//
// for an affine transform W with linear part A. Transforms with a singular
// or reflecting linear part score -Inf.
func auxF(w mathutil.Mat, accs *Accs, logdetScale float64) float64 {
	dim := accs.Dim()

	obj := 0.0
	if logdetScale != 0 {
		a := mat.NewDense(dim, dim, nil)
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				a.Set(i, j, w[i][j])
			}
		}
		logdet, sign := mat.LogDet(a)
		if sign <= 0 || math.IsInf(logdet, 0) {
			return math.Inf(-1)
		}
		obj += logdetScale * accs.Beta * logdet
	}

	gw := mat.NewVecDense(dim+1, nil)
	for i := 0; i < dim; i++ {
		wi := mat.NewVecDense(dim+1, w[i])
		gw.MulVec(accs.G[i], wi)
		obj += mathutil.DotVec(w[i], accs.K[i]) - 0.5*mat.Dot(wi, gw)
	}
	return obj
}

// refineOffset solves the offset column in closed form with the linear part
// held fixed: oᵢ = (K(i,d) − Σ_j A(i,j)·Gᵢ(d,j)) / Gᵢ(d,d).
func refineOffset(w mathutil.Mat, accs *Accs) {
	dim := accs.Dim()
	for i := 0; i < dim; i++ {
		gdd := accs.G[i].At(dim, dim)
		if gdd <= 0 {
			continue
		}
		num := accs.K[i][dim]
		for j := 0; j < dim; j++ {
			num -= w[i][j] * accs.G[i].At(dim, j)
		}
		w[i][dim] = num / gdd
	}
}

// refineDiagonal optimizes, per dimension, a scale dᵢ and offset bᵢ applied
// on top of the base class row aᵢ, maximizing
//
//	β·log dᵢ + dᵢ(aᵢ·Kᵢ) + bᵢK(i,d) − ½(dᵢ²aᵢGᵢaᵢᵀ + 2dᵢbᵢ(Gᵢaᵢ)_d + bᵢ²Gᵢ(d,d))
//
// whose stationary point reduces to a quadratic in dᵢ after substituting the
// optimal offset.
func refineDiagonal(w mathutil.Mat, accs *Accs) {
	dim := accs.Dim()
	aext := make([]float64, dim+1)
	aVec := mat.NewVecDense(dim+1, aext)
	ga := mat.NewVecDense(dim+1, nil)
	for i := 0; i < dim; i++ {
		copy(aext, w[i][:dim])
		aext[dim] = 0

		ga.MulVec(accs.G[i], aVec)
		gaa := mat.Dot(aVec, ga)
		gab := ga.AtVec(dim)
		gbb := accs.G[i].At(dim, dim)
		if gbb <= 0 {
			continue
		}
		k := mathutil.DotVec(aext, accs.K[i])
		kOff := accs.K[i][dim]

		p := k - kOff*gab/gbb
		q := gaa - gab*gab/gbb

		d := 1.0
		if q > 1e-20 {
			d = (p + math.Sqrt(p*p+4*q*accs.Beta)) / (2 * q)
		}
		b := (kOff - d*gab) / gbb

		for j := 0; j < dim; j++ {
			w[i][j] *= d
		}
		w[i][dim] = b
	}
}
