// Package lvtln estimates vocal tract length normalization warp factors
// with a set of linear feature-space transforms trained jointly with a
// diagonal-covariance Gaussian mixture background model.
package lvtln

import (
	"go.uber.org/zap"

	"github.com/ieee0824/lvtln-go/acoustic"
	"github.com/ieee0824/lvtln-go/audio"
	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/vtln"
)

// Estimator is the top-level warp-factor estimator.
type Estimator struct {
	Cfg     vtln.TrainerConfig
	UBM     *acoustic.UBM // optional pre-trained background model
	GroupBy vtln.GroupBy
	Logger  *zap.SugaredLogger

	result *Estimated
}

// Estimated holds the outputs of a completed estimation run.
type Estimated struct {
	Warps map[string]float64
	Model *vtln.Model
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTrainerConfig sets custom training parameters.
func WithTrainerConfig(cfg vtln.TrainerConfig) Option {
	return func(e *Estimator) {
		e.Cfg = cfg
	}
}

// WithNumIters sets the number of EM refinement passes.
func WithNumIters(n int) Option {
	return func(e *Estimator) {
		e.Cfg.NumIters = n
	}
}

// WithWarpGrid sets the warp search grid.
func WithWarpGrid(min, max, step float64) Option {
	return func(e *Estimator) {
		e.Cfg.MinWarp = min
		e.Cfg.MaxWarp = max
		e.Cfg.WarpStep = step
	}
}

// WithNormType sets the transform refinement constraint.
func WithNormType(n vtln.NormType) Option {
	return func(e *Estimator) {
		e.Cfg.NormType = n
	}
}

// WithBySpeaker toggles pooling statistics per speaker.
func WithBySpeaker(enabled bool) Option {
	return func(e *Estimator) {
		e.Cfg.BySpeaker = enabled
	}
}

// WithFeatureConfig sets custom MFCC parameters.
func WithFeatureConfig(cfg feature.Config) Option {
	return func(e *Estimator) {
		e.Cfg.Features = cfg
	}
}

// WithUBMSize sets the number of background-model Gaussians.
func WithUBMSize(numGauss int) Option {
	return func(e *Estimator) {
		e.Cfg.UBM.NumGauss = numGauss
	}
}

// WithNJobs sets the number of parallel feature-extraction workers.
func WithNJobs(n int) Option {
	return func(e *Estimator) {
		e.Cfg.NJobs = n
	}
}

// WithUBM supplies a pre-trained background model instead of training one
// from the input utterances.
func WithUBM(ubm *acoustic.UBM) Option {
	return func(e *Estimator) {
		e.UBM = ubm
	}
}

// WithGroupBy chooses whether results are keyed per utterance or per
// speaker.
func WithGroupBy(g vtln.GroupBy) Option {
	return func(e *Estimator) {
		e.GroupBy = g
	}
}

// WithLogger attaches a logger to the estimation run.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Estimator) {
		e.Logger = logger
	}
}

// NewEstimator creates an Estimator with default configuration, results
// grouped by speaker.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		Cfg:     vtln.DefaultTrainerConfig(),
		GroupBy: vtln.GroupBySpeaker,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EstimateFiles reads WAV files and estimates warp factors for them. The
// speakers map assigns a speaker label to each utterance name; it may be
// nil when training per utterance.
func (e *Estimator) EstimateFiles(paths map[string]string, speakers map[string]string) (map[string]float64, error) {
	utts := make([]vtln.Utterance, 0, len(paths))
	for name, path := range paths {
		samples, rate, err := audio.ReadWAVFile(path)
		if err != nil {
			return nil, err
		}
		utts = append(utts, vtln.Utterance{
			Name:       name,
			Speaker:    speakers[name],
			Samples:    samples,
			SampleRate: rate,
		})
	}
	return e.EstimateSamples(utts)
}

// EstimateSamples estimates warp factors for raw audio utterances.
func (e *Estimator) EstimateSamples(utts []vtln.Utterance) (map[string]float64, error) {
	tr := vtln.NewTrainer(e.Cfg, e.Logger)
	warps, err := tr.Train(utts, e.UBM, e.GroupBy)
	if err != nil {
		return nil, err
	}
	e.result = &Estimated{Warps: warps, Model: tr.Model()}
	return warps, nil
}

// Result returns the outputs of the last successful run, nil before any.
func (e *Estimator) Result() *Estimated { return e.result }

// WarpConfig returns the feature configuration with the given warp factor
// applied, for extracting normalized features downstream.
func (e *Estimator) WarpConfig(warp float64) feature.Config {
	return e.Cfg.Features.Warped(warp)
}
