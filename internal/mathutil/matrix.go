package mathutil

// Vec is a float64 vector.
type Vec = []float64

// Mat is a 2D float64 matrix stored as row-major [][]float64.
type Mat = [][]float64

// NewMat creates a rows x cols matrix initialized to zero.
// The rows share one backing slice so the matrix is a single allocation.
func NewMat(rows, cols int) Mat {
	m := make(Mat, rows)
	data := make([]float64, rows*cols)
	for i := range m {
		m[i] = data[i*cols : (i+1)*cols]
	}
	return m
}

// CloneMat returns a deep copy of m.
func CloneMat(m Mat) Mat {
	if len(m) == 0 {
		return nil
	}
	out := NewMat(len(m), len(m[0]))
	for i := range m {
		copy(out[i], m[i])
	}
	return out
}

// Identity creates an n x (n+1) affine matrix whose linear part is the
// identity and whose offset column is zero.
func Identity(n int) Mat {
	m := NewMat(n, n+1)
	for i := 0; i < n; i++ {
		m[i][i] = 1.0
	}
	return m
}

// DotVec returns the dot product of a and b.
func DotVec(a, b Vec) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// AddScaledVec stores dst + alpha*src in dst.
func AddScaledVec(dst Vec, alpha float64, src Vec) {
	for i := range dst {
		dst[i] += alpha * src[i]
	}
}

// NewVec creates a vector of length n initialized to zero.
func NewVec(n int) Vec {
	return make(Vec, n)
}

// NewVecFill creates a vector of length n filled with val.
func NewVecFill(n int, val float64) Vec {
	v := make(Vec, n)
	for i := range v {
		v[i] = val
	}
	return v
}

// ApplyAffine computes W * [x; 1] for an affine matrix W of shape
// dim x (dim+1), writing the result into dst.
func ApplyAffine(dst Vec, w Mat, x Vec) {
	dim := len(x)
	for i := range w {
		row := w[i]
		s := row[dim]
		for j := 0; j < dim; j++ {
			s += row[j] * x[j]
		}
		dst[i] = s
	}
}
