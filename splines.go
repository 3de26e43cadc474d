package coboost

// splines.go has the B-spline kernels: span search, knot creation, the De Boor
// basis (dense and sparse) and the difference penalty matrix.

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// findSpan returns the index i with knots[i] <= x < knots[i+1] by binary
// search.  Two special cases the search cannot handle: x below the second knot
// returns 0 and x equal to the last knot returns len(knots)-1.  The knot vector
// must be sorted.
func findSpan(x float64, knots []float64) int {
	if x < knots[1] {
		return 0
	}

	if x == knots[len(knots)-1] {
		return len(knots) - 1
	}

	low, high := 0, len(knots)-1
	mid := (low + high) / 2

	for x < knots[mid] || x >= knots[mid+1] {
		if x < knots[mid] {
			high = mid
		} else {
			low = mid
		}

		mid = (low + high) / 2
	}

	return mid
}

// createKnots builds the equidistant knot vector for nKnots inner knots of the
// given degree: nKnots+2 values spanning [min(x), max(x)] wrapped by degree
// boundary knots on either side.
func createKnots(x []float64, nKnots, degree int) []float64 {
	knots := make([]float64, nKnots+2*(degree+1))

	innerMin, innerMax := x[0], x[0]
	for _, v := range x {
		if v < innerMin {
			innerMin = v
		}

		if v > innerMax {
			innerMax = v
		}
	}

	knotRange := (innerMax - innerMin) / float64(nKnots+1)

	for i := 0; i <= nKnots+1; i++ {
		knots[degree+i] = innerMin + float64(i)*knotRange
	}

	for i := 0; i < degree; i++ {
		knots[i] = innerMin - float64(degree-i)*knotRange
		knots[degree+nKnots+i+2] = innerMax + float64(i+1)*knotRange
	}

	return knots
}

// deBoorRow evaluates the degree+1 non-zero basis functions at x.  The returned
// index is the basis column of the first non-zero, so the values occupy columns
// [idx, idx+degree].  Queries outside the inner knot range (new data beyond the
// training range) are clamped to its boundary.
func deBoorRow(x float64, degree int, knots []float64) (int, []float64) {
	nCols := len(knots) - (degree + 1)

	if lo := knots[degree]; x < lo {
		x = lo
	}

	if hi := knots[len(knots)-1-degree]; x > hi {
		x = hi
	}

	idx := findSpan(x, knots)
	// x at the upper inner boundary pushes the span past the last basis column
	if idx > nCols-1 {
		idx = nCols - 1
	}

	n := make([]float64, degree+1)
	n[0] = 1.0

	left := make([]float64, degree+1)
	right := make([]float64, degree+1)

	for j := 1; j <= degree; j++ {
		left[j] = x - knots[idx+1-j]
		right[j] = knots[idx+j] - x

		saved := 0.0

		for r := 0; r < j; r++ {
			temp := n[r] / (right[r+1] + left[j-r])
			n[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}

		n[j] = saved
	}

	return idx - degree, n
}

// splineBasisDense returns the n x p B-spline design matrix for the query
// points x.
func splineBasisDense(x []float64, degree int, knots []float64) *mat.Dense {
	nCols := len(knots) - (degree + 1)
	basis := mat.NewDense(len(x), nCols, nil)

	for row, v := range x {
		idx, n := deBoorRow(v, degree, knots)
		for i, val := range n {
			basis.Set(row, idx+i, val)
		}
	}

	return basis
}

// splineBasisSparse returns the B-spline design for the query points x as a
// p x n sparse matrix, stored transposed so that a fitted parameter times the
// matrix gives the predictions without transposing the sparse storage.
func splineBasisSparse(x []float64, degree int, knots []float64) *sparse.CSR {
	nCols := len(knots) - (degree + 1)
	nnz := (degree + 1) * len(x)

	rows := make([]int, 0, nnz)
	cols := make([]int, 0, nnz)
	vals := make([]float64, 0, nnz)

	for col, v := range x {
		idx, n := deBoorRow(v, degree, knots)
		for i, val := range n {
			rows = append(rows, idx+i)
			cols = append(cols, col)
			vals = append(vals, val)
		}
	}

	return sparse.NewCOO(nCols, len(x), rows, cols, vals).ToCSR()
}

// penaltyMat returns the difference penalty D'D for nParams parameters and the
// given difference order.  D is the first-difference matrix applied
// `differences` times, trimming one row and column between applications.
func penaltyMat(nParams, differences int) (*mat.Dense, error) {
	if differences < 1 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("penaltyMat: differences = %d, must be at least 1", differences))
	}

	if nParams <= differences {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("penaltyMat: %d parameters cannot carry %d differences", nParams, differences))
	}

	diffs := mat.NewDense(nParams-1, nParams, nil)
	for i := 0; i < nParams-1; i++ {
		diffs.Set(i, i, -1)
		diffs.Set(i, i+1, 1)
	}

	reduced := mat.DenseCopyOf(diffs)
	for k := 0; k < differences-1; k++ {
		r, c := reduced.Dims()
		reduced = mat.DenseCopyOf(reduced.Slice(1, r, 1, c))

		next := &mat.Dense{}
		next.Mul(reduced, diffs)
		diffs = next
	}

	pen := &mat.Dense{}
	pen.Mul(diffs.T(), diffs)

	return pen, nil
}
