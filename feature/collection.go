package feature

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// Features holds one utterance's feature matrix and per-frame center times.
type Features struct {
	Data  mathutil.Mat // [numFrames][dim]
	Times []float64    // [numFrames], seconds
}

// NumFrames returns the number of frames.
func (f *Features) NumFrames() int { return len(f.Data) }

// Collection is an ordered mapping from utterance key to a fixed-shape
// feature matrix. Every member has the same column count, checked when the
// member is added. Iteration is always in sorted key order so that any
// computation over a collection is deterministic.
type Collection struct {
	dim   int
	keys  []string
	items map[string]*Features
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{items: make(map[string]*Features)}
}

// Add inserts an utterance. The first insertion fixes the collection's
// dimension; later insertions must match it, and all rows must have the
// same length as the times vector.
func (c *Collection) Add(key string, data mathutil.Mat, times []float64) error {
	if _, ok := c.items[key]; ok {
		return errors.Errorf("feature: duplicate key %q", key)
	}
	if len(data) == 0 {
		return errors.Errorf("feature: empty features for %q", key)
	}
	dim := len(data[0])
	for i, row := range data {
		if len(row) != dim {
			return errors.Errorf("feature: ragged row %d for %q: %d vs %d columns", i, key, len(row), dim)
		}
	}
	if times != nil && len(times) != len(data) {
		return errors.Errorf("feature: %d times for %d frames in %q", len(times), len(data), key)
	}
	if c.dim == 0 {
		c.dim = dim
	} else if dim != c.dim {
		return errors.Errorf("feature: dimension mismatch for %q: %d vs %d", key, dim, c.dim)
	}
	c.items[key] = &Features{Data: data, Times: times}
	i := sort.SearchStrings(c.keys, key)
	c.keys = append(c.keys, "")
	copy(c.keys[i+1:], c.keys[i:])
	c.keys[i] = key
	return nil
}

// Dim returns the feature dimension (0 for an empty collection).
func (c *Collection) Dim() int { return c.dim }

// Len returns the number of utterances.
func (c *Collection) Len() int { return len(c.keys) }

// Keys returns a copy of the utterance keys in sorted order. Mutating the
// returned slice cannot disturb the collection's iteration order.
func (c *Collection) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Get returns the features for key, or nil if absent.
func (c *Collection) Get(key string) *Features { return c.items[key] }

// Trim keeps, for each utterance, only the frames whose mask entry is true.
// Every utterance must have a mask of matching length.
func (c *Collection) Trim(masks map[string][]bool) (*Collection, error) {
	out := NewCollection()
	for _, key := range c.keys {
		f := c.items[key]
		mask, ok := masks[key]
		if !ok {
			return nil, errors.Errorf("feature: no mask for %q", key)
		}
		if len(mask) != len(f.Data) {
			return nil, errors.Errorf("feature: mask size %d vs %d frames for %q", len(mask), len(f.Data), key)
		}
		kept := 0
		for _, m := range mask {
			if m {
				kept++
			}
		}
		if kept == 0 {
			return nil, errors.Errorf("feature: no voiced frames in %q", key)
		}
		data := make(mathutil.Mat, 0, kept)
		times := make([]float64, 0, kept)
		for t, m := range mask {
			if m {
				data = append(data, f.Data[t])
				if f.Times != nil {
					times = append(times, f.Times[t])
				}
			}
		}
		if f.Times == nil {
			times = nil
		}
		if err := out.Add(key, data, times); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Subsample keeps every nth frame of every utterance. n <= 1 returns the
// collection unchanged.
func (c *Collection) Subsample(n int) (*Collection, error) {
	if n <= 1 {
		return c, nil
	}
	out := NewCollection()
	for _, key := range c.keys {
		f := c.items[key]
		data := make(mathutil.Mat, 0, (len(f.Data)+n-1)/n)
		times := make([]float64, 0, cap(data))
		for t := 0; t < len(f.Data); t += n {
			data = append(data, f.Data[t])
			if f.Times != nil {
				times = append(times, f.Times[t])
			}
		}
		if f.Times == nil {
			times = nil
		}
		if err := out.Add(key, data, times); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TotalFrames returns the frame count summed over all utterances.
func (c *Collection) TotalFrames() int {
	n := 0
	for _, key := range c.keys {
		n += len(c.items[key].Data)
	}
	return n
}
