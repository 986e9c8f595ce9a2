package vtln

import (
	"encoding/gob"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/ieee0824/lvtln-go/internal/mathutil"
)

// Model holds the discretized warp grid: an ordered set of warp classes,
// each an affine transform of shape dim x (dim+1) with its scalar warp
// factor. Classes are ordered by ascending warp. The model is mutated only
// while base transforms are being fitted; estimation reads it.
type Model struct {
	dim          int
	defaultClass int
	warps        []float64
	transforms   []mathutil.Mat
}

// NumClasses returns the size of the warp grid spanned by
// [minWarp, maxWarp] at warpStep spacing.
func NumClasses(minWarp, maxWarp, warpStep float64) int {
	return int(1.5 + (maxWarp-minWarp)/warpStep)
}

// DefaultClass returns the index of the class whose warp is closest to 1.0
// (no warping).
func DefaultClass(minWarp, warpStep float64) int {
	return int(0.5 + (1.0-minWarp)/warpStep)
}

// NewModel creates a model of the given dimension with numClasses classes,
// each initialized to the identity transform at warp 1.0.
func NewModel(dim, numClasses, defaultClass int) (*Model, error) {
	if dim <= 0 {
		return nil, errors.Wrapf(ErrValidation, "model dimension %d", dim)
	}
	if numClasses < 1 {
		return nil, errors.Wrapf(ErrValidation, "%d warp classes", numClasses)
	}
	if defaultClass < 0 || defaultClass >= numClasses {
		return nil, errors.Wrapf(ErrValidation, "default class %d outside [0, %d)", defaultClass, numClasses)
	}
	m := &Model{
		dim:          dim,
		defaultClass: defaultClass,
		warps:        make([]float64, numClasses),
		transforms:   make([]mathutil.Mat, numClasses),
	}
	for c := range m.transforms {
		m.warps[c] = 1.0
		m.transforms[c] = mathutil.Identity(dim)
	}
	return m, nil
}

// initialized reports whether the model has been constructed. A zero Model
// (or nil) is not usable.
func (m *Model) initialized() bool {
	return m != nil && m.dim > 0 && len(m.transforms) > 0
}

// Dim returns the feature dimension.
func (m *Model) Dim() int { return m.dim }

// NumClassesOf returns the number of warp classes.
func (m *Model) NumClassesOf() int { return len(m.transforms) }

// DefaultClassIndex returns the index of the no-warp class.
func (m *Model) DefaultClassIndex() int { return m.defaultClass }

// Warp returns the warp factor of class c.
func (m *Model) Warp(c int) (float64, error) {
	if err := m.checkClass(c); err != nil {
		return 0, err
	}
	return m.warps[c], nil
}

// SetWarp sets the warp factor of class c.
func (m *Model) SetWarp(c int, warp float64) error {
	if err := m.checkClass(c); err != nil {
		return err
	}
	m.warps[c] = warp
	return nil
}

// Transform returns a copy of class c's transform.
func (m *Model) Transform(c int) (mathutil.Mat, error) {
	if err := m.checkClass(c); err != nil {
		return nil, err
	}
	return mathutil.CloneMat(m.transforms[c]), nil
}

// SetTransform replaces class c's transform. The matrix must be
// dim x (dim+1).
func (m *Model) SetTransform(c int, w mathutil.Mat) error {
	if err := m.checkClass(c); err != nil {
		return err
	}
	if len(w) != m.dim || len(w[0]) != m.dim+1 {
		return errors.Wrapf(ErrDataMismatch, "transform shape %dx%d, want %dx%d",
			len(w), len(w[0]), m.dim, m.dim+1)
	}
	m.transforms[c] = mathutil.CloneMat(w)
	return nil
}

func (m *Model) checkClass(c int) error {
	if !m.initialized() {
		return errors.Wrap(ErrNotInitialized, "model")
	}
	if c < 0 || c >= len(m.transforms) {
		return errors.Wrapf(ErrValidation, "class index %d outside [0, %d)", c, len(m.transforms))
	}
	return nil
}

// ClosestClass returns the index of the class whose warp is nearest to warp.
func (m *Model) ClosestClass(warp float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, w := range m.warps {
		if d := math.Abs(w - warp); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// serializedModel mirrors Model for gob encoding.
type serializedModel struct {
	Dim          int
	DefaultClass int
	Warps        []float64
	Transforms   [][][]float64
}

// Save writes the model as a binary blob. The target must not exist; an
// existing file is left untouched.
func (m *Model) Save(path string) error {
	if !m.initialized() {
		return errors.Wrap(ErrNotInitialized, "model")
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Wrapf(ErrIOConflict, "%s: file already exists", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	sm := serializedModel{
		Dim:          m.dim,
		DefaultClass: m.defaultClass,
		Warps:        m.warps,
		Transforms:   make([][][]float64, len(m.transforms)),
	}
	for c, w := range m.transforms {
		sm.Transforms[c] = w
	}
	return errors.Wrapf(gob.NewEncoder(f).Encode(sm), "encode %s", path)
}

// LoadModel reads a model saved by Save. The path must exist.
func LoadModel(path string) (*Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrIOConflict, "%s: file not found", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var sm serializedModel
	if err := gob.NewDecoder(f).Decode(&sm); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	m, err := NewModel(sm.Dim, len(sm.Transforms), sm.DefaultClass)
	if err != nil {
		return nil, err
	}
	copy(m.warps, sm.Warps)
	for c, w := range sm.Transforms {
		m.transforms[c] = w
	}
	return m, nil
}
