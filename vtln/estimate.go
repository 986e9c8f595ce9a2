package vtln

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ieee0824/lvtln-go/acoustic"
	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// UnitResult holds the selected warp class and refined transform for one
// unit (utterance or speaker).
type UnitResult struct {
	ClassIndex int
	Warp       float64
	Transform  mathutil.Mat
	ObjfImpr   float64
	Count      float64
}

// Estimate selects and refines a warp-class transform for every unit. When
// utt2spk is non-nil the units are speakers and each speaker's statistics
// pool all of that speaker's utterances; otherwise the units are the
// utterances themselves. The returned map is keyed by unit.
func Estimate(m *Model, ubm *acoustic.UBM, feats *feature.Collection,
	posteriors map[string]acoustic.Posterior, utt2spk map[string]string,
	norm NormType, logdetScale float64, logger *zap.SugaredLogger) (map[string]*UnitResult, error) {
	if !m.initialized() {
		return nil, errors.Wrap(ErrNotInitialized, "model")
	}
	if ubm == nil || ubm.GMM() == nil {
		return nil, errors.Wrap(ErrNotInitialized, "ubm")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	units := groupUnits(feats, utt2spk)
	results := make(map[string]*UnitResult, len(units))

	classCounts := make([]int, m.NumClassesOf())
	totImpr, totCount := 0.0, 0.0

	for _, unit := range units {
		accs := NewAccs(m.dim)
		for _, utt := range unit.utts {
			post, ok := posteriors[utt]
			if !ok {
				return nil, errors.Wrapf(ErrDataMismatch, "no posterior for utterance %q", utt)
			}
			f := feats.Get(utt)
			if len(post) != f.NumFrames() {
				return nil, errors.Wrapf(ErrDataMismatch, "%q: posterior has %d frames, features %d",
					utt, len(post), f.NumFrames())
			}
			for t, x := range f.Data {
				if err := accs.AccumulateFrame(ubm.GMM(), x, post[t]); err != nil {
					return nil, errors.Wrapf(err, "utterance %q frame %d", utt, t)
				}
			}
		}

		res, err := m.ComputeTransform(accs, norm, logdetScale, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "unit %q", unit.key)
		}
		results[unit.key] = &UnitResult{
			ClassIndex: res.ClassIndex,
			Warp:       res.Warp,
			Transform:  res.Transform,
			ObjfImpr:   res.ObjfImpr,
			Count:      res.Count,
		}
		classCounts[res.ClassIndex]++
		totImpr += res.ObjfImpr
		totCount += res.Count

		if res.Count > 0 {
			logger.Debugw("unit transform",
				"unit", unit.key, "class", res.ClassIndex, "warp", res.Warp,
				"auxf-impr-per-frame", res.ObjfImpr/res.Count, "frames", res.Count)
		}
	}

	if totCount > 0 {
		var hist strings.Builder
		for c, n := range classCounts {
			if c > 0 {
				hist.WriteByte(' ')
			}
			fmt.Fprintf(&hist, "%d", n)
		}
		logger.Debugw("class distribution",
			"counts", hist.String(),
			"auxf-impr-per-frame", totImpr/totCount, "frames", totCount)
	}
	return results, nil
}

// unitGroup is one estimation unit with its utterances in sorted order.
type unitGroup struct {
	key  string
	utts []string
}

// groupUnits partitions the collection's utterances into estimation units,
// sorted by unit key so estimation order is deterministic.
func groupUnits(feats *feature.Collection, utt2spk map[string]string) []unitGroup {
	if utt2spk == nil {
		keys := feats.Keys()
		units := make([]unitGroup, len(keys))
		for i, k := range keys {
			units[i] = unitGroup{key: k, utts: []string{k}}
		}
		return units
	}
	bySpk := make(map[string][]string)
	for _, utt := range feats.Keys() {
		spk := utt2spk[utt]
		bySpk[spk] = append(bySpk[spk], utt)
	}
	spks := make([]string, 0, len(bySpk))
	for spk := range bySpk {
		spks = append(spks, spk)
	}
	sort.Strings(spks)
	units := make([]unitGroup, len(spks))
	for i, spk := range spks {
		units[i] = unitGroup{key: spk, utts: bySpk[spk]}
	}
	return units
}
