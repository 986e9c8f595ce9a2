package feature

import (
	"math"

	"github.com/pkg/errors"
)

// Extractor computes MFCC features for one configuration. All lookup tables
// (window, warped filterbank, DCT, lifter, FFT twiddles) are built once at
// construction, so extracting many utterances at the same warp is cheap.
type Extractor struct {
	cfg        Config
	frameLen   int
	frameShift int
	window     []float64
	filters    []sparseFilter
	dct        [][]float64 // [numCepstra][numFilters]
	lifter     []float64
	bitrev     []int
	cosTbl     []float64
	sinTbl     []float64
}

// sparseFilter stores only the non-zero range of a triangular mel filter.
type sparseFilter struct {
	start  int
	coeffs []float64
}

// NewExtractor validates cfg and precomputes all tables.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.Errorf("feature: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Warp <= 0 {
		return nil, errors.Errorf("feature: invalid warp factor %g", cfg.Warp)
	}
	if cfg.FFTSize&(cfg.FFTSize-1) != 0 || cfg.FFTSize == 0 {
		return nil, errors.Errorf("feature: FFT size %d is not a power of two", cfg.FFTSize)
	}
	frameLen := int(cfg.FrameLenMs * float64(cfg.SampleRate) / 1000.0)
	frameShift := int(cfg.FrameShiftMs * float64(cfg.SampleRate) / 1000.0)
	if frameLen <= 0 || frameShift <= 0 {
		return nil, errors.Errorf("feature: invalid frame length/shift %gms/%gms", cfg.FrameLenMs, cfg.FrameShiftMs)
	}
	if frameLen > cfg.FFTSize {
		return nil, errors.Errorf("feature: frame length %d exceeds FFT size %d", frameLen, cfg.FFTSize)
	}
	if cfg.NumCepstra > cfg.NumMelFilters {
		return nil, errors.Errorf("feature: %d cepstra from %d mel filters", cfg.NumCepstra, cfg.NumMelFilters)
	}

	e := &Extractor{
		cfg:        cfg,
		frameLen:   frameLen,
		frameShift: frameShift,
	}

	e.window = make([]float64, frameLen)
	for i := range e.window {
		e.window[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(frameLen-1))
	}

	e.buildFilterbank()
	e.buildDCT()

	if cfg.CepLifter > 0 {
		e.lifter = make([]float64, cfg.NumCepstra)
		for i := range e.lifter {
			e.lifter[i] = 1.0 + float64(cfg.CepLifter)/2.0*math.Sin(math.Pi*float64(i)/float64(cfg.CepLifter))
		}
	}

	e.buildFFTTables()
	return e, nil
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Dim returns the output feature dimension.
func (e *Extractor) Dim() int { return e.cfg.FeatureDim() }

// Extract computes MFCC features from raw audio samples.
// Returns a matrix of shape [numFrames][FeatureDim].
func (e *Extractor) Extract(samples []float64) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("feature: empty samples")
	}
	if len(samples) < e.frameLen {
		return nil, errors.New("feature: audio too short for a single frame")
	}

	// Pre-emphasis.
	emph := make([]float64, len(samples))
	emph[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		emph[i] = samples[i] - e.cfg.PreEmphCoeff*samples[i-1]
	}

	nFrames := 1 + (len(emph)-e.frameLen)/e.frameShift
	nBins := e.cfg.FFTSize/2 + 1

	re := make([]float64, e.cfg.FFTSize)
	im := make([]float64, e.cfg.FFTSize)
	power := make([]float64, nBins)
	melBuf := make([]float64, e.cfg.NumMelFilters)

	nc := e.cfg.NumCepstra
	cepAll := make([]float64, nFrames*nc)
	feats := make([][]float64, nFrames)
	for t := 0; t < nFrames; t++ {
		frame := emph[t*e.frameShift : t*e.frameShift+e.frameLen]
		e.powerSpectrum(frame, re, im, power)
		e.applyFilterbank(power, melBuf)

		cep := cepAll[t*nc : (t+1)*nc]
		for k := range e.dct {
			sum := 0.0
			row := e.dct[k]
			for j, c := range row {
				sum += melBuf[j] * c
			}
			cep[k] = sum
		}
		if e.lifter != nil {
			for i := range cep {
				cep[i] *= e.lifter[i]
			}
		}
		feats[t] = cep
	}

	if e.cfg.DeltaWindow > 0 {
		feats = appendDeltas(feats, e.cfg.DeltaWindow)
	}
	return feats, nil
}

// FrameTimes returns the center time in seconds of each of n frames.
func (e *Extractor) FrameTimes(n int) []float64 {
	times := make([]float64, n)
	shift := float64(e.frameShift) / float64(e.cfg.SampleRate)
	half := float64(e.frameLen) / float64(e.cfg.SampleRate) / 2
	for i := range times {
		times[i] = float64(i)*shift + half
	}
	return times
}

// warpFreq maps a frequency through the piecewise-linear VTLN warping
// function: a central band [l, h] is scaled by 1/warp, and the segments
// below l and above h are linear so that LowFreq and HighFreq stay fixed.
func (e *Extractor) warpFreq(freq float64) float64 {
	warp := e.cfg.Warp
	if warp == 1.0 {
		return freq
	}
	low, high := e.cfg.LowFreq, e.cfg.HighFreq
	vl := e.cfg.VTLNLow * math.Max(1.0, warp)
	vh := e.cfg.VTLNHigh
	if vh < 0 {
		vh += high
	}
	vh *= math.Min(1.0, warp)

	scale := 1.0 / warp
	fl := scale * vl
	fh := scale * vh
	switch {
	case freq <= low || freq >= high:
		return freq
	case freq < vl:
		return low + (fl-low)/(vl-low)*(freq-low)
	case freq < vh:
		return scale * freq
	default:
		return high + (high-fh)/(high-vh)*(freq-high)
	}
}

func (e *Extractor) buildFilterbank() {
	cfg := e.cfg
	nBins := cfg.FFTSize/2 + 1
	lowMel := hzToMel(cfg.LowFreq)
	highMel := hzToMel(cfg.HighFreq)
	step := (highMel - lowMel) / float64(cfg.NumMelFilters+1)

	// Warp the mel points in the Hz domain, then quantize to FFT bins.
	bins := make([]int, cfg.NumMelFilters+2)
	for i := range bins {
		hz := e.warpFreq(melToHz(lowMel + float64(i)*step))
		bins[i] = int(math.Floor(hz * float64(cfg.FFTSize) / float64(cfg.SampleRate)))
	}

	e.filters = make([]sparseFilter, cfg.NumMelFilters)
	for i := 0; i < cfg.NumMelFilters; i++ {
		left, center, right := bins[i], bins[i+1], bins[i+2]
		full := make([]float64, nBins)
		for j := left; j < center && j < nBins; j++ {
			if center != left && j >= 0 {
				full[j] = float64(j-left) / float64(center-left)
			}
		}
		for j := center; j <= right && j < nBins; j++ {
			if right != center && j >= 0 {
				full[j] = float64(right-j) / float64(right-center)
			}
		}

		start, end, found := 0, 0, false
		for j, v := range full {
			if v != 0 {
				if !found {
					start = j
					found = true
				}
				end = j + 1
			}
		}
		if found {
			e.filters[i] = sparseFilter{start: start, coeffs: append([]float64(nil), full[start:end]...)}
		}
	}
}

func (e *Extractor) applyFilterbank(power, dst []float64) {
	for i, sf := range e.filters {
		sum := 0.0
		end := sf.start + len(sf.coeffs)
		if end > len(power) {
			end = len(power)
		}
		ps := power[sf.start:end]
		for j, p := range ps {
			sum += p * sf.coeffs[j]
		}
		if sum < 1e-30 {
			sum = 1e-30
		}
		dst[i] = math.Log(sum)
	}
}

func (e *Extractor) buildDCT() {
	cfg := e.cfg
	e.dct = make([][]float64, cfg.NumCepstra)
	for k := 0; k < cfg.NumCepstra; k++ {
		e.dct[k] = make([]float64, cfg.NumMelFilters)
		for j := 0; j < cfg.NumMelFilters; j++ {
			e.dct[k][j] = math.Cos(math.Pi * float64(k) * (float64(j) + 0.5) / float64(cfg.NumMelFilters))
		}
	}
}

func (e *Extractor) buildFFTTables() {
	n := e.cfg.FFTSize
	e.bitrev = make([]int, n)
	bits := 0
	for 1<<bits < n {
		bits++
	}
	for i := 0; i < n; i++ {
		r := 0
		for b := 0; b < bits; b++ {
			r = r<<1 | (i>>b)&1
		}
		e.bitrev[i] = r
	}
	e.cosTbl = make([]float64, n/2)
	e.sinTbl = make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		ang := -2 * math.Pi * float64(i) / float64(n)
		e.cosTbl[i] = math.Cos(ang)
		e.sinTbl[i] = math.Sin(ang)
	}
}

// powerSpectrum windows the frame, runs an in-place radix-2 FFT and writes
// the one-sided power spectrum into power.
func (e *Extractor) powerSpectrum(frame, re, im, power []float64) {
	n := e.cfg.FFTSize
	for i := range re {
		re[i] = 0
		im[i] = 0
	}
	for i, s := range frame {
		re[e.bitrev[i]] = s * e.window[i]
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		tstep := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				c := e.cosTbl[k*tstep]
				s := e.sinTbl[k*tstep]
				i0, i1 := start+k, start+k+half
				tr := re[i1]*c - im[i1]*s
				ti := re[i1]*s + im[i1]*c
				re[i1] = re[i0] - tr
				im[i1] = im[i0] - ti
				re[i0] += tr
				im[i0] += ti
			}
		}
	}

	for i := range power {
		power[i] = re[i]*re[i] + im[i]*im[i]
	}
}

// appendDeltas appends first and second order regression deltas to each
// frame, tripling the feature dimension.
func appendDeltas(feats [][]float64, window int) [][]float64 {
	T := len(feats)
	if T == 0 {
		return feats
	}
	dim := len(feats[0])

	d1 := delta(feats, window)
	d2 := delta(d1, window)

	out := make([][]float64, T)
	data := make([]float64, T*3*dim)
	for t := 0; t < T; t++ {
		row := data[t*3*dim : (t+1)*3*dim]
		copy(row[:dim], feats[t])
		copy(row[dim:2*dim], d1[t])
		copy(row[2*dim:], d2[t])
		out[t] = row
	}
	return out
}

// delta computes regression deltas with the given window.
func delta(feats [][]float64, window int) [][]float64 {
	T := len(feats)
	dim := len(feats[0])
	denom := 0.0
	for n := 1; n <= window; n++ {
		denom += 2 * float64(n) * float64(n)
	}

	out := make([][]float64, T)
	data := make([]float64, T*dim)
	for t := 0; t < T; t++ {
		row := data[t*dim : (t+1)*dim]
		for n := 1; n <= window; n++ {
			prev, next := t-n, t+n
			if prev < 0 {
				prev = 0
			}
			if next >= T {
				next = T - 1
			}
			for d := 0; d < dim; d++ {
				row[d] += float64(n) * (feats[next][d] - feats[prev][d])
			}
		}
		for d := 0; d < dim; d++ {
			row[d] /= denom
		}
		out[t] = row
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}
