package feature

import (
	"testing"

	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

func mat(rows ...[]float64) mathutil.Mat { return rows }

func TestCollectionSortedKeys(t *testing.T) {
	c := NewCollection()
	for _, key := range []string{"b", "a", "c"} {
		if err := c.Add(key, mat([]float64{1, 2}), nil); err != nil {
			t.Fatalf("Add(%q): %v", key, err)
		}
	}
	keys := c.Keys()
	want := []string{"a", "b", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if c.Len() != 3 || c.Dim() != 2 {
		t.Errorf("Len = %d, Dim = %d; want 3, 2", c.Len(), c.Dim())
	}
}

func TestCollectionKeysIsACopy(t *testing.T) {
	c := NewCollection()
	for _, key := range []string{"a", "b", "c"} {
		if err := c.Add(key, mat([]float64{1}), nil); err != nil {
			t.Fatalf("Add(%q): %v", key, err)
		}
	}
	keys := c.Keys()
	keys[0], keys[2] = keys[2], keys[0]

	again := c.Keys()
	want := []string{"a", "b", "c"}
	if len(again) != len(want) {
		t.Fatalf("keys = %v, want %v", again, want)
	}
	for i := range want {
		if again[i] != want[i] {
			t.Fatalf("keys = %v after caller mutation, want %v", again, want)
		}
	}
}

func TestCollectionAddErrors(t *testing.T) {
	c := NewCollection()
	if err := c.Add("u", mat([]float64{1, 2}), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add("u", mat([]float64{1, 2}), nil); err == nil {
		t.Error("expected duplicate-key error")
	}
	if err := c.Add("v", mat([]float64{1, 2, 3}), nil); err == nil {
		t.Error("expected dimension-mismatch error")
	}
	if err := c.Add("w", mat([]float64{1, 2}, []float64{3}), nil); err == nil {
		t.Error("expected ragged-row error")
	}
	if err := c.Add("x", mat([]float64{1, 2}), []float64{0.0, 0.1}); err == nil {
		t.Error("expected times-length error")
	}
	if err := c.Add("y", nil, nil); err == nil {
		t.Error("expected empty-features error")
	}
}

func TestTrim(t *testing.T) {
	c := NewCollection()
	data := mat([]float64{0}, []float64{1}, []float64{2}, []float64{3})
	if err := c.Add("u", data, []float64{0.0, 0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	trimmed, err := c.Trim(map[string][]bool{"u": {true, false, true, false}})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	f := trimmed.Get("u")
	if f.NumFrames() != 2 {
		t.Fatalf("frames = %d, want 2", f.NumFrames())
	}
	if f.Data[0][0] != 0 || f.Data[1][0] != 2 {
		t.Errorf("kept frames %v, want rows 0 and 2", f.Data)
	}
	if f.Times[1] != 0.2 {
		t.Errorf("Times[1] = %f, want 0.2", f.Times[1])
	}

	if _, err := c.Trim(map[string][]bool{}); err == nil {
		t.Error("expected missing-mask error")
	}
	if _, err := c.Trim(map[string][]bool{"u": {true}}); err == nil {
		t.Error("expected mask-size error")
	}
	if _, err := c.Trim(map[string][]bool{"u": {false, false, false, false}}); err == nil {
		t.Error("expected no-voiced-frames error")
	}
}

func TestSubsample(t *testing.T) {
	c := NewCollection()
	data := mat([]float64{0}, []float64{1}, []float64{2}, []float64{3}, []float64{4})
	if err := c.Add("u", data, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sub, err := c.Subsample(2)
	if err != nil {
		t.Fatalf("Subsample: %v", err)
	}
	f := sub.Get("u")
	if f.NumFrames() != 3 {
		t.Fatalf("frames = %d, want 3", f.NumFrames())
	}
	if f.Data[2][0] != 4 {
		t.Errorf("Data[2][0] = %f, want 4", f.Data[2][0])
	}

	// n <= 1 is a no-op.
	same, err := c.Subsample(1)
	if err != nil {
		t.Fatalf("Subsample(1): %v", err)
	}
	if same != c {
		t.Error("Subsample(1) should return the collection unchanged")
	}
	if c.TotalFrames() != 5 {
		t.Errorf("TotalFrames = %d, want 5", c.TotalFrames())
	}
}
