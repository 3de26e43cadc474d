package coboost

// binning.go implements quantile binning and the matrix crossproducts on binned
// designs (Li & Wood, "Faster model matrix crossproducts for large generalized
// linear models with discretized covariates", Algorithm 3).

import (
	"fmt"
	"math"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// binVector replaces x by floor(n^(1/binRoot)) quantile-bin representatives.
func binVector(x []float64, binRoot int) ([]float64, error) {
	nBins := int(math.Floor(math.Pow(float64(len(x)), 1.0/float64(binRoot))))
	if nBins < 2 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("binVector: bin root %d leaves %d bins", binRoot, nBins))
	}

	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	bins := make([]float64, nBins)
	for i := 0; i < nBins; i++ {
		p := float64(i) / float64(nBins-1)
		bins[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}

	return bins, nil
}

// binIndex maps every observation to its bin row.  Bins must be sorted; the
// half gap between the first two bins decides the cutover.
func binIndex(x, bins []float64) []int {
	idx := make([]int, len(x))
	delta := (bins[1] - bins[0]) / 2

	for i, v := range x {
		j := 0
		for j < len(bins)-1 && bins[j]+delta < v {
			j++
		}

		idx[i] = j
	}

	return idx
}

// cumulateWeights accumulates w over the binning index: c[j] = sum of w[i] for
// k[i] == j.  A single weight of 1 counts observations per bin.
func cumulateWeights(nUnique int, k []int, w []float64) []float64 {
	wcum := make([]float64, nUnique)

	if len(w) == 1 && w[0] == 1 {
		for _, ind := range k {
			wcum[ind]++
		}

		return wcum
	}

	for i, ind := range k {
		wcum[ind] += w[i]
	}

	return wcum
}

// binnedMatMult computes X'WX on a binned design: X holds the unique rows, k
// maps observations to rows and w are per-observation weights.
func binnedMatMult(x *mat.Dense, k []int, w []float64) *mat.Dense {
	u, _ := x.Dims()
	wcum := cumulateWeights(u, k, w)

	scaled := mat.DenseCopyOf(x)
	for i := 0; i < u; i++ {
		row := scaled.RawRowView(i)
		for j := range row {
			row[j] *= wcum[i]
		}
	}

	out := &mat.Dense{}
	out.Mul(scaled.T(), x)

	return out
}

// binnedMatMultResponse computes X'Wy on a binned design.
func binnedMatMultResponse(x *mat.Dense, y []float64, k []int, w []float64) []float64 {
	u, p := x.Dims()

	wcum := make([]float64, u)
	if len(w) == 1 && w[0] == 1 {
		for i, ind := range k {
			wcum[ind] += y[i]
		}
	} else {
		for i, ind := range k {
			wcum[ind] += w[i] * y[i]
		}
	}

	out := make([]float64, p)
	for i := 0; i < u; i++ {
		if wcum[i] == 0 {
			continue
		}

		for j := 0; j < p; j++ {
			out[j] += wcum[i] * x.At(i, j)
		}
	}

	return out
}

// binnedSparseMatMult is binnedMatMult for a sparse design stored transposed
// (params x unique rows).
func binnedSparseMatMult(x *sparse.CSR, k []int, w []float64) *mat.Dense {
	p, u := x.Dims()
	wcum := cumulateWeights(u, k, w)

	// gather non-zeros by unique row
	colIdx := make([][]int, u)
	colVal := make([][]float64, u)
	x.DoNonZero(func(i, j int, v float64) {
		colIdx[j] = append(colIdx[j], i)
		colVal[j] = append(colVal[j], v)
	})

	out := mat.NewDense(p, p, nil)
	for j := 0; j < u; j++ {
		if wcum[j] == 0 {
			continue
		}

		for a, ia := range colIdx[j] {
			va := wcum[j] * colVal[j][a]
			for b, ib := range colIdx[j] {
				out.Set(ia, ib, out.At(ia, ib)+va*colVal[j][b])
			}
		}
	}

	return out
}

// binnedSparseMatMultResponse is binnedMatMultResponse for a sparse design
// stored transposed.
func binnedSparseMatMultResponse(x *sparse.CSR, y []float64, k []int, w []float64) []float64 {
	p, u := x.Dims()

	wcum := make([]float64, u)
	if len(w) == 1 && w[0] == 1 {
		for i, ind := range k {
			wcum[ind] += y[i]
		}
	} else {
		for i, ind := range k {
			wcum[ind] += w[i] * y[i]
		}
	}

	out := make([]float64, p)
	x.DoNonZero(func(i, j int, v float64) {
		out[i] += v * wcum[j]
	})

	return out
}

// binnedSparsePrediction expands a fit on the unique rows back to all
// observations: temp = theta' * X, out[i] = temp[k[i]].
func binnedSparsePrediction(x *sparse.CSR, theta []float64, k []int) []float64 {
	_, u := x.Dims()

	temp := make([]float64, u)
	x.DoNonZero(func(i, j int, v float64) {
		temp[j] += theta[i] * v
	})

	out := make([]float64, len(k))
	for i, ind := range k {
		out[i] = temp[ind]
	}

	return out
}

// binnedDensePrediction is binnedSparsePrediction for a dense unique-row design.
func binnedDensePrediction(x *mat.Dense, theta []float64, k []int) []float64 {
	u, p := x.Dims()

	temp := make([]float64, u)
	for i := 0; i < u; i++ {
		for j := 0; j < p; j++ {
			temp[i] += x.At(i, j) * theta[j]
		}
	}

	out := make([]float64, len(k))
	for i, ind := range k {
		out[i] = temp[ind]
	}

	return out
}
