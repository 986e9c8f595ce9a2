package vtln

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/ieee0824/lvtln-go/acoustic"
	"github.com/ieee0824/lvtln-go/feature"
	"github.com/ieee0824/lvtln-go/internal/logging"
)

// trainedUBM trains a small mixture on the collection.
func trainedUBM(t *testing.T, c *feature.Collection) *acoustic.UBM {
	t.Helper()
	cfg := acoustic.DefaultUBMConfig()
	cfg.NumGauss = 4
	cfg.TopN = 2
	u := acoustic.NewUBM(cfg)
	if err := u.Train(c, logging.Nop()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return u
}

func TestEstimatePerUtterance(t *testing.T) {
	c := randomCollection(t, 21, []string{"u1", "u2", "u3"}, 50, 2)
	ubm := trainedUBM(t, c)
	posts, err := ubm.SelectGaussians(c)
	if err != nil {
		t.Fatalf("SelectGaussians: %v", err)
	}
	m, _ := NewModel(2, 3, 1)

	results, err := Estimate(m, ubm, c, posts, nil, NormOffset, 0, logging.Nop())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("%d results, want one per utterance", len(results))
	}
	for _, key := range c.Keys() {
		res, ok := results[key]
		if !ok {
			t.Fatalf("no result for %q", key)
		}
		if res.ClassIndex < 0 || res.ClassIndex >= 3 {
			t.Errorf("%q: class %d out of range", key, res.ClassIndex)
		}
		if res.Count <= 0 {
			t.Errorf("%q: count %f, want positive", key, res.Count)
		}
		if len(res.Transform) != 2 || len(res.Transform[0]) != 3 {
			t.Errorf("%q: transform shape %dx%d", key, len(res.Transform), len(res.Transform[0]))
		}
	}
}

func TestEstimateBySpeakerPools(t *testing.T) {
	c := randomCollection(t, 22, []string{"u1", "u2", "u3"}, 50, 2)
	ubm := trainedUBM(t, c)
	posts, err := ubm.SelectGaussians(c)
	if err != nil {
		t.Fatalf("SelectGaussians: %v", err)
	}
	m, _ := NewModel(2, 3, 1)

	utt2spk := map[string]string{"u1": "spkA", "u2": "spkA", "u3": "spkB"}
	results, err := Estimate(m, ubm, c, posts, utt2spk, NormOffset, 0, logging.Nop())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("%d results, want one per speaker", len(results))
	}
	a, ok := results["spkA"]
	if !ok {
		t.Fatal("no result for spkA")
	}
	// spkA pools two utterances of 50 frames each.
	if a.Count <= results["spkB"].Count {
		t.Errorf("pooled count %f should exceed single-utterance count %f", a.Count, results["spkB"].Count)
	}
}

func TestEstimateErrors(t *testing.T) {
	c := randomCollection(t, 23, []string{"u1"}, 50, 2)
	ubm := trainedUBM(t, c)
	posts, _ := ubm.SelectGaussians(c)
	m, _ := NewModel(2, 3, 1)

	// Missing posterior.
	if _, err := Estimate(m, ubm, c, map[string]acoustic.Posterior{}, nil, NormOffset, 0, logging.Nop()); !errors.Is(err, ErrDataMismatch) {
		t.Errorf("missing posterior err = %v, want ErrDataMismatch", err)
	}

	// Frame-count mismatch.
	bad := map[string]acoustic.Posterior{"u1": posts["u1"][:10]}
	if _, err := Estimate(m, ubm, c, bad, nil, NormOffset, 0, logging.Nop()); !errors.Is(err, ErrDataMismatch) {
		t.Errorf("frame mismatch err = %v, want ErrDataMismatch", err)
	}

	// Uninitialized inputs.
	if _, err := Estimate(nil, ubm, c, posts, nil, NormOffset, 0, logging.Nop()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("nil model err = %v, want ErrNotInitialized", err)
	}
	if _, err := Estimate(m, acoustic.NewUBM(acoustic.DefaultUBMConfig()), c, posts, nil, NormOffset, 0, logging.Nop()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("untrained ubm err = %v, want ErrNotInitialized", err)
	}
}
