package acoustic

import (
	"math"

	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// Gaussian is a single multivariate Gaussian component with diagonal
// covariance.
type Gaussian struct {
	Mean      []float64 // [dim]
	Variance  []float64 // [dim] diagonal covariance
	LogWeight float64   // log mixture weight

	// Precomputed values
	logNormConst float64
	invVariance  []float64 // 1/Variance, precomputed to avoid division in hot loops
}

// Precompute recalculates cached normalization constants and inverse
// variances. Must be called after updating Mean, Variance, or LogWeight.
func (g *Gaussian) Precompute() {
	dim := len(g.Mean)
	sumLog := 0.0
	for _, v := range g.Variance {
		sumLog += math.Log(v)
	}
	g.logNormConst = float64(dim)/2.0*math.Log(2*math.Pi) + 0.5*sumLog
	g.invVariance = make([]float64, dim)
	for i := range g.Variance {
		g.invVariance[i] = 1.0 / g.Variance[i]
	}
}

// InvVariance returns the precomputed inverse variance vector.
func (g *Gaussian) InvVariance() []float64 { return g.invVariance }

// LogProb computes the log probability of observation x under this Gaussian.
func (g *Gaussian) LogProb(x []float64) float64 {
	maha := 0.0
	for i, xi := range x {
		d := xi - g.Mean[i]
		maha += d * d * g.invVariance[i]
	}
	return -0.5*maha - g.logNormConst
}

// GMM is a Gaussian mixture model with diagonal covariance.
type GMM struct {
	Components []Gaussian
	Dim        int
}

// NewGMMWithParams creates a GMM from given parameters.
func NewGMMWithParams(means, variances [][]float64, logWeights []float64) *GMM {
	k := len(means)
	dim := len(means[0])
	g := &GMM{
		Components: make([]Gaussian, k),
		Dim:        dim,
	}
	for i := range g.Components {
		mean := make([]float64, dim)
		variance := make([]float64, dim)
		copy(mean, means[i])
		copy(variance, variances[i])
		g.Components[i] = Gaussian{
			Mean:      mean,
			Variance:  variance,
			LogWeight: logWeights[i],
		}
		g.Components[i].Precompute()
	}
	return g
}

// LogProb computes log P(x | GMM) = log Σ_k w_k N(x; μ_k, σ_k).
func (g *GMM) LogProb(x []float64) float64 {
	logSum := mathutil.LogZero
	for i := range g.Components {
		lp := g.Components[i].LogWeight + g.Components[i].LogProb(x)
		logSum = mathutil.LogAdd(logSum, lp)
	}
	return logSum
}

// ComponentLogLikes writes log(w_k N(x; μ_k, σ_k)) for every component into
// dst and returns the total log-likelihood of x.
func (g *GMM) ComponentLogLikes(x []float64, dst []float64) float64 {
	for i := range g.Components {
		dst[i] = g.Components[i].LogWeight + g.Components[i].LogProb(x)
	}
	return mathutil.LogSumExp(dst)
}

// Clone returns a deep copy of the GMM.
func (g *GMM) Clone() *GMM {
	out := &GMM{
		Components: make([]Gaussian, len(g.Components)),
		Dim:        g.Dim,
	}
	for i := range g.Components {
		c := &g.Components[i]
		out.Components[i] = Gaussian{
			Mean:      append([]float64(nil), c.Mean...),
			Variance:  append([]float64(nil), c.Variance...),
			LogWeight: c.LogWeight,
		}
		out.Components[i].Precompute()
	}
	return out
}
