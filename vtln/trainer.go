package vtln

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ieee0824/lvtln-go/acoustic"
	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// GroupBy selects how the final warp mapping is keyed.
type GroupBy string

const (
	// GroupByUtterance keys the result by utterance name.
	GroupByUtterance GroupBy = "utterance"
	// GroupBySpeaker keys the result by speaker label. Requires the
	// trainer to run in by-speaker mode.
	GroupBySpeaker GroupBy = "speaker"
)

// Utterance is one training input: named audio samples with an optional
// speaker label.
type Utterance struct {
	Name       string
	Speaker    string
	Samples    []float64
	SampleRate int
}

// TrainerConfig holds every knob of warp-factor training.
type TrainerConfig struct {
	NumIters    int      // EM refinement passes
	MinWarp     float64  // smallest warp on the grid
	MaxWarp     float64  // largest warp on the grid
	WarpStep    float64  // grid spacing
	LogdetScale float64  // log-determinant penalty weight in class selection
	NormType    NormType // transform refinement constraint
	Subsample   int      // keep every nth frame when fitting
	BySpeaker   bool     // pool statistics per speaker instead of per utterance
	NJobs       int      // feature-extraction workers

	Features feature.Config
	CMVN     *feature.SlidingCMVNConfig // nil disables sliding normalization
	VAD      feature.VADConfig
	UBM      acoustic.UBMConfig
}

// DefaultTrainerConfig returns the standard training setup: a dense
// 0.85..1.25 grid, offset normalization, speaker pooling and a 64 Gaussian
// UBM.
func DefaultTrainerConfig() TrainerConfig {
	cmvn := feature.DefaultSlidingCMVNConfig()
	return TrainerConfig{
		NumIters:    15,
		MinWarp:     0.85,
		MaxWarp:     1.25,
		WarpStep:    0.01,
		LogdetScale: 0.0,
		NormType:    NormOffset,
		Subsample:   5,
		BySpeaker:   true,
		NJobs:       1,
		Features:    feature.DefaultConfig(),
		CMVN:        &cmvn,
		VAD:         feature.DefaultVADConfig(),
		UBM:         acoustic.DefaultUBMConfig(),
	}
}

// Trainer estimates per-speaker (or per-utterance) warp factors by training
// a set of linear VTLN transforms jointly with a UBM. A Trainer is not safe
// for concurrent use; the model and UBM are owned exclusively by a running
// Train call.
type Trainer struct {
	cfg TrainerConfig
	log *zap.SugaredLogger

	model      *Model
	transforms map[string]mathutil.Mat // per utterance, after broadcast
	warps      map[string]float64      // per utterance, after broadcast
}

// NewTrainer creates a trainer. A nil logger disables logging.
func NewTrainer(cfg TrainerConfig, logger *zap.SugaredLogger) *Trainer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Trainer{cfg: cfg, log: logger}
}

// Model returns the trained warp-class model, nil before Train succeeds.
func (t *Trainer) Model() *Model { return t.model }

// Warps returns the per-utterance warp factors of the last successful
// training run.
func (t *Trainer) Warps() map[string]float64 { return t.warps }

// Transforms returns the per-utterance affine transforms of the last
// successful training run.
func (t *Trainer) Transforms() map[string]mathutil.Mat { return t.transforms }

// Train computes warp factors for the given utterances. If ubm is nil a
// fresh one is trained; a supplied UBM must already be trained. The result
// is keyed by utterance or by speaker according to groupBy. Any error aborts
// the run with no partial result; the trainer's model state must then be
// discarded.
func (t *Trainer) Train(utts []Utterance, ubm *acoustic.UBM, groupBy GroupBy) (map[string]float64, error) {
	utt2spk, err := t.validate(utts, groupBy)
	if err != nil {
		return nil, err
	}

	// Reference features: raw MFCC drives both VAD and the base-transform
	// sweep; the sliding-normalized variant is what the UBM sees.
	raw, err := t.extractAll(utts, t.cfg.Features)
	if err != nil {
		return nil, err
	}
	vadMasks := make(map[string][]bool, raw.Len())
	for _, key := range raw.Keys() {
		vadMasks[key] = feature.VAD(raw.Get(key).Data, t.cfg.VAD)
	}

	orig := raw
	if t.cfg.CMVN != nil {
		orig = feature.NewCollection()
		for _, key := range raw.Keys() {
			f := raw.Get(key)
			if err := orig.Add(key, feature.SlidingCMVN(f.Data, *t.cfg.CMVN), f.Times); err != nil {
				return nil, err
			}
		}
	}
	if orig, err = trimAndSubsample(orig, vadMasks, t.cfg.Subsample); err != nil {
		return nil, err
	}

	// UBM.
	if ubm == nil {
		ubm = acoustic.NewUBM(t.cfg.UBM)
		t.log.Infow("training UBM", "num-gauss", t.cfg.UBM.NumGauss)
		if err := ubm.Train(orig, t.log); err != nil {
			return nil, err
		}
	} else {
		if !ubm.Trained() {
			return nil, errors.Wrap(ErrNotInitialized, "supplied UBM has not been trained")
		}
		if ubm.Dim() != orig.Dim() {
			return nil, errors.Wrapf(ErrDataMismatch, "ubm dim %d, features dim %d", ubm.Dim(), orig.Dim())
		}
	}

	// Model over the warp grid.
	dim := ubm.Dim()
	numClasses := NumClasses(t.cfg.MinWarp, t.cfg.MaxWarp, t.cfg.WarpStep)
	model, err := NewModel(dim, numClasses, DefaultClass(t.cfg.MinWarp, t.cfg.WarpStep))
	if err != nil {
		return nil, err
	}
	t.log.Infow("initializing base transforms",
		"dim", dim, "classes", numClasses, "default-class", model.DefaultClassIndex())

	// Warp-grid sweep. The unwarped side is the raw features (no sliding
	// normalization), trimmed and subsampled the same way as each warped
	// extraction.
	unwarpedSub, err := trimAndSubsample(raw, vadMasks, t.cfg.Subsample)
	if err != nil {
		return nil, err
	}
	for c := 0; c < numClasses; c++ {
		warp := t.cfg.MinWarp + float64(c)*t.cfg.WarpStep
		t.log.Infow("computing base transform",
			"warp", warp, "class", c+1, "of", numClasses)

		warpedRaw, err := t.extractAll(utts, t.cfg.Features.Warped(warp))
		if err != nil {
			return nil, err
		}
		warpedSub, err := trimAndSubsample(warpedRaw, vadMasks, t.cfg.Subsample)
		if err != nil {
			return nil, err
		}
		if err := ComputeMappingTransform(model, unwarpedSub, warpedSub, c, warp, nil, t.log); err != nil {
			return nil, err
		}
	}

	// Initial assignment.
	t.log.Infow("computing transforms", "iterations", t.cfg.NumIters)
	posteriors, err := ubm.SelectGaussians(orig)
	if err != nil {
		return nil, err
	}
	results, err := Estimate(model, ubm, orig, posteriors, utt2spk, t.cfg.NormType, t.cfg.LogdetScale, t.log)
	if err != nil {
		return nil, err
	}

	// EM refinement. Each pass consumes the previous pass's UBM snapshot
	// and produces a new one; the original features stay untouched.
	for i := 0; i < t.cfg.NumIters; i++ {
		t.log.Debugw("updating model", "pass", i+1, "of", t.cfg.NumIters)

		adapted, err := applyTransforms(orig, results, utt2spk)
		if err != nil {
			return nil, err
		}

		next := ubm.Clone()
		stats, err := next.Accumulate(adapted)
		if err != nil {
			return nil, err
		}
		if err := next.Estimate(stats); err != nil {
			return nil, err
		}
		ubm = next

		if posteriors, err = ubm.SelectGaussians(orig); err != nil {
			return nil, err
		}
		if results, err = Estimate(model, ubm, orig, posteriors, utt2spk, t.cfg.NormType, t.cfg.LogdetScale, t.log); err != nil {
			return nil, err
		}
	}

	// Project unit results onto utterances.
	t.model = model
	t.transforms = make(map[string]mathutil.Mat, len(utts))
	t.warps = make(map[string]float64, len(utts))
	for _, key := range orig.Keys() {
		unit := key
		if utt2spk != nil {
			unit = utt2spk[key]
		}
		t.transforms[key] = results[unit].Transform
		t.warps[key] = results[unit].Warp
	}

	t.log.Infow("done training warp model")
	if groupBy == GroupBySpeaker {
		out := make(map[string]float64, len(results))
		for spk, res := range results {
			out[spk] = res.Warp
		}
		return out, nil
	}
	out := make(map[string]float64, len(t.warps))
	for utt, w := range t.warps {
		out[utt] = w
	}
	return out, nil
}

// validate checks the configuration and the utterance set, returning the
// utterance-to-speaker mapping when pooling by speaker.
func (t *Trainer) validate(utts []Utterance, groupBy GroupBy) (map[string]string, error) {
	if groupBy != GroupByUtterance && groupBy != GroupBySpeaker {
		return nil, errors.Wrapf(ErrValidation, "group_by must be %q or %q, got %q",
			GroupByUtterance, GroupBySpeaker, groupBy)
	}
	if groupBy == GroupBySpeaker && !t.cfg.BySpeaker {
		return nil, errors.Wrap(ErrValidation,
			"asked to group warps by speaker but they are computed per utterance")
	}
	if _, err := ParseNormType(string(t.cfg.NormType)); err != nil {
		return nil, err
	}
	if t.cfg.MinWarp > t.cfg.MaxWarp {
		return nil, errors.Wrapf(ErrValidation, "min warp %g > max warp %g", t.cfg.MinWarp, t.cfg.MaxWarp)
	}
	if t.cfg.WarpStep <= 0 {
		return nil, errors.Wrapf(ErrValidation, "warp step %g", t.cfg.WarpStep)
	}
	if t.cfg.NumIters < 0 {
		return nil, errors.Wrapf(ErrValidation, "negative iteration count %d", t.cfg.NumIters)
	}
	if len(utts) == 0 {
		return nil, errors.Wrap(ErrValidation, "no utterances")
	}

	seen := make(map[string]bool, len(utts))
	for _, u := range utts {
		if u.Name == "" {
			return nil, errors.Wrap(ErrValidation, "utterance with empty name")
		}
		if seen[u.Name] {
			return nil, errors.Wrapf(ErrValidation, "duplicate utterance name %q", u.Name)
		}
		seen[u.Name] = true
	}

	if !t.cfg.BySpeaker {
		return nil, nil
	}
	utt2spk := make(map[string]string, len(utts))
	for _, u := range utts {
		if u.Speaker == "" {
			return nil, errors.Wrapf(ErrValidation,
				"speaker based training requested but utterance %q has no speaker", u.Name)
		}
		utt2spk[u.Name] = u.Speaker
	}
	return utt2spk, nil
}

// extractAll runs feature extraction for every utterance on NJobs workers
// and assembles the results into a collection. The collection's sorted-key
// ordering makes the result independent of worker scheduling.
func (t *Trainer) extractAll(utts []Utterance, cfg feature.Config) (*feature.Collection, error) {
	workers := t.cfg.NJobs
	if workers < 1 {
		workers = 1
	}

	type extracted struct {
		data  mathutil.Mat
		times []float64
	}
	var (
		mu      sync.Mutex
		results = make(map[string]extracted, len(utts))
		firstEr error
	)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, utt := range utts {
		wg.Add(1)
		sem <- struct{}{}
		go func(u Utterance) {
			defer wg.Done()
			defer func() { <-sem }()

			c := cfg
			if u.SampleRate > 0 {
				c.SampleRate = u.SampleRate
			}
			ext, err := feature.NewExtractor(c)
			if err == nil {
				var data mathutil.Mat
				data, err = ext.Extract(u.Samples)
				if err == nil {
					mu.Lock()
					results[u.Name] = extracted{data: data, times: ext.FrameTimes(len(data))}
					mu.Unlock()
					return
				}
			}
			mu.Lock()
			if firstEr == nil {
				firstEr = errors.Wrapf(err, "utterance %q", u.Name)
			}
			mu.Unlock()
		}(utt)
	}
	wg.Wait()
	if firstEr != nil {
		return nil, firstEr
	}

	out := feature.NewCollection()
	for _, u := range utts {
		r := results[u.Name]
		if err := out.Add(u.Name, r.data, r.times); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func trimAndSubsample(c *feature.Collection, masks map[string][]bool, subsample int) (*feature.Collection, error) {
	trimmed, err := c.Trim(masks)
	if err != nil {
		return nil, err
	}
	return trimmed.Subsample(subsample)
}

// applyTransforms maps every utterance's frames through its unit's affine
// transform, producing the adapted collection the UBM re-estimates on.
func applyTransforms(orig *feature.Collection, results map[string]*UnitResult,
	utt2spk map[string]string) (*feature.Collection, error) {
	out := feature.NewCollection()
	dim := orig.Dim()
	for _, key := range orig.Keys() {
		unit := key
		if utt2spk != nil {
			unit = utt2spk[key]
		}
		res, ok := results[unit]
		if !ok {
			return nil, errors.Wrapf(ErrDataMismatch, "no transform for unit %q", unit)
		}
		f := orig.Get(key)
		adapted := mathutil.NewMat(f.NumFrames(), dim)
		for t, x := range f.Data {
			mathutil.ApplyAffine(adapted[t], res.Transform, x)
		}
		if err := out.Add(key, adapted, f.Times); err != nil {
			return nil, err
		}
	}
	return out, nil
}
