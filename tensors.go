package coboost

// tensors.go has the kernels for tensor-product and centered effects: the
// row-wise Kronecker product, the anisotropic penalty sum and the centering
// rotation.

import (
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// rowWiseKronecker returns the n x (p*q) matrix whose i-th row is
// kron(A[i,:], B[i,:]).  A and B must have the same number of rows.
func rowWiseKronecker(a, b *mat.Dense) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()

	if ar != br {
		return nil, Wrapper(ErrData, "rowWiseKronecker: row counts differ")
	}

	out := mat.NewDense(ar, ac*bc, nil)

	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			av := a.At(i, j)
			if av == 0 {
				continue
			}

			for k := 0; k < bc; k++ {
				out.Set(i, j*bc+k, av*b.At(i, k))
			}
		}
	}

	return out, nil
}

// rowWiseKroneckerSparse is the sparse variant.  Both inputs are stored
// transposed (params x samples) and so is the result: row j*bRows+k of the
// output corresponds to the product of parameter rows j of A and k of B.
func rowWiseKroneckerSparse(a, b *sparse.CSR) (*sparse.CSR, error) {
	aRows, aCols := a.Dims()
	bRows, bCols := b.Dims()

	if aCols != bCols {
		return nil, Wrapper(ErrData, "rowWiseKroneckerSparse: sample counts differ")
	}

	// gather the non-zeros of b by sample for the merge below
	bByCol := make([][]int, bCols)
	bVals := make([][]float64, bCols)
	b.DoNonZero(func(i, j int, v float64) {
		bByCol[j] = append(bByCol[j], i)
		bVals[j] = append(bVals[j], v)
	})

	var (
		rows []int
		cols []int
		vals []float64
	)

	a.DoNonZero(func(i, j int, v float64) {
		for t, bi := range bByCol[j] {
			rows = append(rows, i*bRows+bi)
			cols = append(cols, j)
			vals = append(vals, v*bVals[j][t])
		}
	})

	return sparse.NewCOO(aRows*bRows, aCols, rows, cols, vals).ToCSR(), nil
}

// penaltySumKronecker returns the anisotropic tensor-product penalty
// Pa (x) I + I (x) Pb.
func penaltySumKronecker(pa, pb *mat.Dense) *mat.Dense {
	ra, _ := pa.Dims()
	rb, _ := pb.Dims()

	out := mat.NewDense(ra*rb, ra*rb, nil)

	for i := 0; i < ra; i++ {
		for j := 0; j < ra; j++ {
			v := pa.At(i, j)
			if v == 0 {
				continue
			}

			for k := 0; k < rb; k++ {
				out.Set(i*rb+k, j*rb+k, v)
			}
		}
	}

	for k := 0; k < ra; k++ {
		for i := 0; i < rb; i++ {
			for j := 0; j < rb; j++ {
				out.Set(k*rb+i, k*rb+j, out.At(k*rb+i, k*rb+j)+pb.At(i, j))
			}
		}
	}

	return out
}

// centerRotation computes the rotation Z whose columns span the orthogonal
// complement of X1'X2 within the column space of X1.  X1*Z is then column-
// orthogonal to X2.  The rotation comes from a QR decomposition of X1'X2,
// keeping the trailing columns of Q past the rank of R.
func centerRotation(x1, x2 *mat.Dense) (*mat.Dense, error) {
	cross := &mat.Dense{}
	cross.Mul(x1.T(), x2)

	if cr, cc := cross.Dims(); cr <= cc {
		return nil, Wrapper(ErrNumeric, "centerRotation: first design has no dimensions beyond the second")
	}

	var qr mat.QR
	qr.Factorize(cross)

	q := &mat.Dense{}
	qr.QTo(q)

	r := &mat.Dense{}
	qr.RTo(r)

	rank := triangularRank(r)

	qr2, qc := q.Dims()
	if rank >= qc {
		return nil, Wrapper(ErrNumeric, "centerRotation: no orthogonal complement left after centering")
	}

	z := mat.DenseCopyOf(q.Slice(0, qr2, rank, qc))

	return z, nil
}

// triangularRank counts the diagonal entries of an upper-triangular matrix
// above a scaled machine tolerance.
func triangularRank(r *mat.Dense) int {
	rr, rc := r.Dims()

	n := rr
	if rc < n {
		n = rc
	}

	maxAbs := 0.0
	for i := 0; i < n; i++ {
		if a := math.Abs(r.At(i, i)); a > maxAbs {
			maxAbs = a
		}
	}

	dim := rr
	if rc > dim {
		dim = rc
	}

	tol := float64(dim) * maxAbs * 2.220446049250313e-16

	rank := 0
	for i := 0; i < n; i++ {
		if math.Abs(r.At(i, i)) > tol {
			rank++
		}
	}

	return rank
}
