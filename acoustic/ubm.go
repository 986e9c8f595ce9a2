package acoustic

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// GaussPost is one selected Gaussian index with its posterior weight.
type GaussPost struct {
	Index  int
	Weight float64
}

// FramePosterior is the posterior over the selected Gaussians of one frame.
// Weights are normalized over the selection, not the full mixture.
type FramePosterior []GaussPost

// Posterior holds one FramePosterior per frame of an utterance.
type Posterior []FramePosterior

// UBMConfig holds training parameters for the universal background model.
type UBMConfig struct {
	NumGauss    int
	NumIters    int     // EM iterations during initial training
	TopN        int     // Gaussians selected per frame
	MinVariance float64 // variance floor
	Seed        int64   // initialization seed; training is deterministic given it
}

// DefaultUBMConfig returns the standard UBM training parameters.
func DefaultUBMConfig() UBMConfig {
	return UBMConfig{
		NumGauss:    64,
		NumIters:    4,
		TopN:        30,
		MinVariance: 0.01,
		Seed:        7,
	}
}

// UBM is a speaker-independent diagonal-covariance GMM with the training
// operations needed for adaptation: Gaussian selection, weighted statistics
// accumulation and re-estimation.
type UBM struct {
	cfg     UBMConfig
	gmm     *GMM
	trained bool
}

// NewUBM creates an untrained UBM.
func NewUBM(cfg UBMConfig) *UBM {
	if cfg.NumGauss <= 0 {
		cfg.NumGauss = DefaultUBMConfig().NumGauss
	}
	if cfg.NumIters <= 0 {
		cfg.NumIters = DefaultUBMConfig().NumIters
	}
	if cfg.MinVariance <= 0 {
		cfg.MinVariance = DefaultUBMConfig().MinVariance
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultUBMConfig().TopN
	}
	return &UBM{cfg: cfg}
}

// GMM returns the underlying mixture, nil before initialization.
func (u *UBM) GMM() *GMM { return u.gmm }

// Dim returns the feature dimension, 0 before initialization.
func (u *UBM) Dim() int {
	if u.gmm == nil {
		return 0
	}
	return u.gmm.Dim
}

// Trained reports whether the model has been through at least one
// re-estimation.
func (u *UBM) Trained() bool { return u.trained }

// Clone returns a deep copy sharing no state with the receiver.
func (u *UBM) Clone() *UBM {
	out := &UBM{cfg: u.cfg, trained: u.trained}
	if u.gmm != nil {
		out.gmm = u.gmm.Clone()
	}
	return out
}

// Train initializes the mixture from the global data statistics and runs
// EM over the collection. Deterministic for a fixed seed and data.
func (u *UBM) Train(c *feature.Collection, logger *zap.SugaredLogger) error {
	if c.Len() == 0 {
		return errors.New("acoustic: empty collection")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	dim := c.Dim()
	u.initFromData(c, dim)

	for iter := 0; iter < u.cfg.NumIters; iter++ {
		stats, err := u.Accumulate(c)
		if err != nil {
			return err
		}
		logger.Debugw("ubm EM pass",
			"iter", iter+1, "of", u.cfg.NumIters,
			"avg-loglike", stats.LogLike/stats.Frames)
		if err := u.Estimate(stats); err != nil {
			return err
		}
	}
	u.trained = true
	return nil
}

// initFromData seeds all components near the global mean with the global
// diagonal variance.
func (u *UBM) initFromData(c *feature.Collection, dim int) {
	mean := mathutil.NewVec(dim)
	sq := mathutil.NewVec(dim)
	n := 0.0
	for _, key := range c.Keys() {
		for _, row := range c.Get(key).Data {
			floats.Add(mean, row)
			for d, v := range row {
				sq[d] += v * v
			}
			n++
		}
	}
	variance := mathutil.NewVec(dim)
	for d := range mean {
		mean[d] /= n
		variance[d] = sq[d]/n - mean[d]*mean[d]
		if variance[d] < u.cfg.MinVariance {
			variance[d] = u.cfg.MinVariance
		}
	}

	rng := rand.New(rand.NewSource(u.cfg.Seed))
	k := u.cfg.NumGauss
	means := make(mathutil.Mat, k)
	variances := make(mathutil.Mat, k)
	logWeights := make([]float64, k)
	for i := 0; i < k; i++ {
		means[i] = mathutil.NewVec(dim)
		variances[i] = mathutil.NewVec(dim)
		for d := 0; d < dim; d++ {
			means[i][d] = mean[d] + 0.5*rng.NormFloat64()*math.Sqrt(variance[d])
			variances[i][d] = variance[d]
		}
		logWeights[i] = -math.Log(float64(k))
	}
	u.gmm = NewGMMWithParams(means, variances, logWeights)
}

// UBMStats accumulates zeroth, first and second order weighted statistics
// for mixture re-estimation.
type UBMStats struct {
	Occ     []float64    // [k] component occupancy
	MeanAcc mathutil.Mat // [k][dim] Σ γ x
	VarAcc  mathutil.Mat // [k][dim] Σ γ x²
	Frames  float64
	LogLike float64
}

// NewUBMStats creates zeroed statistics for k components of dimension dim.
func NewUBMStats(k, dim int) *UBMStats {
	return &UBMStats{
		Occ:     mathutil.NewVec(k),
		MeanAcc: mathutil.NewMat(k, dim),
		VarAcc:  mathutil.NewMat(k, dim),
	}
}

// Merge adds other into s. Shapes must match.
func (s *UBMStats) Merge(other *UBMStats) error {
	if len(s.Occ) != len(other.Occ) || len(s.MeanAcc[0]) != len(other.MeanAcc[0]) {
		return errors.New("acoustic: merging stats of different shapes")
	}
	floats.Add(s.Occ, other.Occ)
	for i := range s.MeanAcc {
		floats.Add(s.MeanAcc[i], other.MeanAcc[i])
		floats.Add(s.VarAcc[i], other.VarAcc[i])
	}
	s.Frames += other.Frames
	s.LogLike += other.LogLike
	return nil
}

// Accumulate computes EM statistics for the whole collection, iterating
// utterances in key order.
func (u *UBM) Accumulate(c *feature.Collection) (*UBMStats, error) {
	if u.gmm == nil {
		return nil, errors.New("acoustic: UBM not initialized")
	}
	if c.Dim() != u.gmm.Dim {
		return nil, errors.Errorf("acoustic: feature dim %d vs model dim %d", c.Dim(), u.gmm.Dim)
	}
	k := len(u.gmm.Components)
	stats := NewUBMStats(k, u.gmm.Dim)
	ll := make([]float64, k)
	for _, key := range c.Keys() {
		for _, x := range c.Get(key).Data {
			tot := u.gmm.ComponentLogLikes(x, ll)
			stats.LogLike += tot
			stats.Frames++
			for m := 0; m < k; m++ {
				d := ll[m] - tot
				if d < -36.0 {
					continue
				}
				post := math.Exp(d)
				stats.Occ[m] += post
				meanRow := stats.MeanAcc[m]
				varRow := stats.VarAcc[m]
				for dd, xd := range x {
					scaled := post * xd
					meanRow[dd] += scaled
					varRow[dd] += scaled * xd
				}
			}
		}
	}
	return stats, nil
}

// Estimate updates weights, means and variances from accumulated statistics,
// flooring variances. Components with negligible occupancy keep their old
// parameters.
func (u *UBM) Estimate(stats *UBMStats) error {
	if u.gmm == nil {
		return errors.New("acoustic: UBM not initialized")
	}
	totOcc := floats.Sum(stats.Occ)
	if totOcc <= 0 {
		return errors.New("acoustic: no occupancy in stats")
	}
	dim := u.gmm.Dim
	for m := range u.gmm.Components {
		occ := stats.Occ[m]
		if occ < 1e-10 {
			continue
		}
		comp := &u.gmm.Components[m]
		comp.LogWeight = math.Log(occ / totOcc)
		for d := 0; d < dim; d++ {
			comp.Mean[d] = stats.MeanAcc[m][d] / occ
			v := stats.VarAcc[m][d]/occ - comp.Mean[d]*comp.Mean[d]
			if v < u.cfg.MinVariance {
				v = u.cfg.MinVariance
			}
			comp.Variance[d] = v
		}
		comp.Precompute()
	}
	u.trained = true
	return nil
}

// SelectGaussians computes, for every utterance, the per-frame posteriors of
// the top scoring Gaussians. Ties break on component index so the result is
// deterministic.
func (u *UBM) SelectGaussians(c *feature.Collection) (map[string]Posterior, error) {
	if u.gmm == nil {
		return nil, errors.New("acoustic: UBM not initialized")
	}
	if c.Dim() != u.gmm.Dim {
		return nil, errors.Errorf("acoustic: feature dim %d vs model dim %d", c.Dim(), u.gmm.Dim)
	}
	k := len(u.gmm.Components)
	topN := u.cfg.TopN
	if topN > k {
		topN = k
	}

	out := make(map[string]Posterior, c.Len())
	ll := make([]float64, k)
	idx := make([]int, k)
	for _, key := range c.Keys() {
		data := c.Get(key).Data
		post := make(Posterior, len(data))
		for t, x := range data {
			u.gmm.ComponentLogLikes(x, ll)
			for i := range idx {
				idx[i] = i
			}
			sort.SliceStable(idx, func(a, b int) bool { return ll[idx[a]] > ll[idx[b]] })
			sel := idx[:topN]

			selLL := make([]float64, topN)
			for i, m := range sel {
				selLL[i] = ll[m]
			}
			norm := mathutil.LogSumExp(selLL)
			fp := make(FramePosterior, topN)
			for i, m := range sel {
				fp[i] = GaussPost{Index: m, Weight: math.Exp(selLL[i] - norm)}
			}
			post[t] = fp
		}
		out[key] = post
	}
	return out, nil
}
