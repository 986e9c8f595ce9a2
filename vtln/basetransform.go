package vtln

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// ComputeMappingTransform fits class classIdx of the model to the weighted
// least-squares solution mapping unwarped frames to warped frames, then
// writes it into the model together with the known warp value.
//
// For every paired frame (x, y) with weight w the accumulation is
//
//	Q += w·x⁺x⁺ᵀ   L += w·y·x⁺ᵀ   β += w
//
// over the augmented frame x⁺ = [x; 1]; each output row solves the normal
// equations Q wᵢ = Lᵢ. The fitted row is then rescaled so the predicted
// output variance matches the input variance of that dimension, correcting
// the shrinkage bias of the least-squares fit.
//
// weights may be nil, meaning uniform weight 1 per frame. If non-nil it must
// contain a weight vector for every utterance of the collection.
func ComputeMappingTransform(m *Model, unwarped, warped *feature.Collection,
	classIdx int, warp float64, weights map[string][]float64, logger *zap.SugaredLogger) error {
	if !m.initialized() {
		return errors.Wrap(ErrNotInitialized, "model")
	}
	dim := m.dim
	if err := m.checkClass(classIdx); err != nil {
		return err
	}
	if unwarped.Dim() != dim || warped.Dim() != dim {
		return errors.Wrapf(ErrDataMismatch, "collection dims %d/%d, model dim %d",
			unwarped.Dim(), warped.Dim(), dim)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	q := mat.NewSymDense(dim+1, nil)
	l := mathutil.NewMat(dim, dim+1)
	c := mathutil.NewVec(dim)
	beta := 0.0
	sumXplus := mathutil.NewVec(dim + 1)
	sumsqX := mathutil.NewVec(dim)
	sumsqDiff := mathutil.NewVec(dim)

	xplus := make([]float64, dim+1)
	xplusVec := mat.NewVecDense(dim+1, xplus)

	for _, key := range unwarped.Keys() {
		fy := warped.Get(key)
		if fy == nil {
			return errors.Wrapf(ErrDataMismatch, "no warped features for key %q", key)
		}
		fx := unwarped.Get(key)
		if fx.NumFrames() != fy.NumFrames() {
			return errors.Wrapf(ErrDataMismatch, "%q: %d vs %d rows", key, fx.NumFrames(), fy.NumFrames())
		}

		var w []float64
		if weights != nil {
			var ok bool
			if w, ok = weights[key]; !ok {
				return errors.Wrapf(ErrDataMismatch, "no weights for utterance %q", key)
			}
			if len(w) != fx.NumFrames() {
				return errors.Wrapf(ErrDataMismatch, "%q: %d weights for %d frames", key, len(w), fx.NumFrames())
			}
		}

		for t, x := range fx.Data {
			weight := 1.0
			if w != nil {
				weight = w[t]
			}
			y := fy.Data[t]

			copy(xplus, x)
			xplus[dim] = 1.0

			q.SymRankOne(q, weight, xplusVec)
			for i := 0; i < dim; i++ {
				mathutil.AddScaledVec(l[i], weight*y[i], xplus)
			}
			beta += weight
			mathutil.AddScaledVec(sumXplus, weight, xplus)
			for d := 0; d < dim; d++ {
				diff := x[d] - y[d]
				sumsqX[d] += weight * x[d] * x[d]
				sumsqDiff[d] += weight * diff * diff
				c[d] += weight * y[d] * y[d]
			}
		}
	}
	if beta <= 0 {
		return errors.Wrap(ErrDataMismatch, "no frames accumulated")
	}

	var chol mat.Cholesky
	if !chol.Factorize(q) {
		return errors.Errorf("class %d: normal equations not positive definite", classIdx)
	}

	a := mathutil.NewMat(dim, dim+1)
	wi := mat.NewVecDense(dim+1, nil)
	li := mat.NewVecDense(dim+1, nil)
	qw := mat.NewVecDense(dim+1, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j <= dim; j++ {
			li.SetVec(j, l[i][j])
		}
		if err := chol.SolveVecTo(wi, li); err != nil {
			return errors.Wrapf(err, "class %d row %d", classIdx, i)
		}
		w := wi.RawVector().Data

		qw.MulVec(q, wi)
		wQw := mat.Dot(wi, qw)

		fitErr := (wQw - 2*mat.Dot(wi, li) + c[i]) / beta
		sqdiff := sumsqDiff[i] / beta
		scatter := sumsqX[i] / beta
		logger.Debugw("base transform row",
			"class", classIdx, "dim", i,
			"fit-error", fitErr, "feature-diff", sqdiff, "orig-sumsq", scatter)

		// Rescale so the predicted variance of the output matches the
		// input variance. The predicted variance comes from the fitted
		// row and the accumulated second moments, not from raw frames.
		xMean := sumXplus[i] / beta
		xVar := scatter - xMean*xMean
		yMean := mathutil.DotVec(w, sumXplus) / beta
		yVar := wQw/beta - yMean*yMean

		scale := 1.0
		if xVar > 0 && yVar > 0 {
			scale = math.Sqrt(xVar / yVar)
		} else {
			logger.Warnw("non-positive variance, skipping rescale",
				"class", classIdx, "dim", i, "x-var", xVar, "y-var", yVar)
		}
		for j := 0; j < dim; j++ {
			a[i][j] = scale * w[j]
		}
		// Offset column stays zero: the class is its linear part, offsets
		// are re-estimated per unit during refinement.
	}

	if err := m.SetTransform(classIdx, a); err != nil {
		return err
	}
	return m.SetWarp(classIdx, warp)
}
