package coboost

// design.go has the per-factory data object: the transformed design matrix, the
// penalty, the optional binning index and the factorization cache used to
// refit base-learners quickly.

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Cache tags of a DesignData.  The tag decides how train solves for the
// coefficients.
const (
	CacheIdentity = "identity"
	CacheInverse  = "inverse"
	CacheCholesky = "cholesky"
)

// DesignData owns the factory-specific representation of a feature: exactly one
// of a dense design (rows x params) or a sparse design stored transposed
// (params x rows), an optional penalty matrix, an optional binning index and
// the factorization cache.  Once the factory has set the cache the object is
// immutable.
type DesignData struct {
	dataID  string
	dense   *mat.Dense
	sparse  *sparse.CSR
	penalty *mat.Dense
	binIdx  []int

	cacheTag  string
	cacheVec  []float64
	cacheInv  *mat.Dense
	cacheChol *mat.Cholesky
}

// newDenseDesign wraps a dense rows x params design.
func newDenseDesign(dataID string, x *mat.Dense) *DesignData {
	return &DesignData{dataID: dataID, dense: x}
}

// newSparseDesign wraps a sparse design stored transposed (params x rows).
func newSparseDesign(dataID string, x *sparse.CSR) *DesignData {
	return &DesignData{dataID: dataID, sparse: x}
}

// DataID is the id of the underlying feature column.
func (dd *DesignData) DataID() string { return dd.dataID }

// UsesSparse is true if the sparse representation is populated.
func (dd *DesignData) UsesSparse() bool { return dd.sparse != nil }

// UsesBinning is true if the design holds unique bin rows only.
func (dd *DesignData) UsesBinning() bool { return dd.binIdx != nil }

// BinningIndex maps original observations to unique bin rows.
func (dd *DesignData) BinningIndex() []int { return dd.binIdx }

// AsDense returns the dense design (nil for sparse factories).
func (dd *DesignData) AsDense() *mat.Dense { return dd.dense }

// AsSparse returns the transposed sparse design (nil for dense factories).
func (dd *DesignData) AsSparse() *sparse.CSR { return dd.sparse }

// Penalty returns the penalty matrix, already scaled by its multiplier.
func (dd *DesignData) Penalty() *mat.Dense { return dd.penalty }

// CacheTag returns the factorization cache tag.
func (dd *DesignData) CacheTag() string { return dd.cacheTag }

// Rows is the number of observations the design was built from.
func (dd *DesignData) Rows() int {
	if dd.UsesBinning() {
		return len(dd.binIdx)
	}

	if dd.UsesSparse() {
		_, n := dd.sparse.Dims()
		return n
	}

	n, _ := dd.dense.Dims()

	return n
}

// Cols is the number of parameters of the design.
func (dd *DesignData) Cols() int {
	if dd.UsesSparse() {
		p, _ := dd.sparse.Dims()
		return p
	}

	_, p := dd.dense.Dims()

	return p
}

func (dd *DesignData) setPenalty(p *mat.Dense) { dd.penalty = p }

func (dd *DesignData) setBinning(idx []int) { dd.binIdx = idx }

// setCacheIdentity stores a small vector cache for closed-form training
// (polynomial slope pair, ridge reciprocals, indicator reciprocal).
func (dd *DesignData) setCacheIdentity(v []float64) {
	dd.cacheTag = CacheIdentity
	dd.cacheVec = v
}

// setCache stores the factorization of m under the given tag: the explicit
// inverse for "inverse" or a Cholesky factorization for "cholesky".
func (dd *DesignData) setCache(tag string, m *mat.Dense) error {
	switch tag {
	case CacheInverse:
		inv := &mat.Dense{}
		if err := inv.Inverse(m); err != nil {
			return Wrapper(ErrNumeric, fmt.Sprintf("setCache: singular crossproduct for %s", dd.dataID))
		}

		dd.cacheInv = inv
	case CacheCholesky:
		p, _ := m.Dims()

		sym := mat.NewSymDense(p, nil)
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				sym.SetSym(i, j, m.At(i, j))
			}
		}

		chol := &mat.Cholesky{}
		if ok := chol.Factorize(sym); !ok {
			return Wrapper(ErrNumeric, fmt.Sprintf("setCache: crossproduct for %s is not positive definite", dd.dataID))
		}

		dd.cacheChol = chol
	default:
		return Wrapper(ErrConfig, fmt.Sprintf("setCache: unknown cache tag %s for %s", tag, dd.dataID))
	}

	dd.cacheTag = tag

	return nil
}

// setCholesky stores an already computed Cholesky factorization (centered
// factories inherit a rotated factor instead of refactorizing).
func (dd *DesignData) setCholesky(chol *mat.Cholesky) {
	dd.cacheTag = CacheCholesky
	dd.cacheChol = chol
}

// setInverse stores an already computed inverse.
func (dd *DesignData) setInverse(inv *mat.Dense) {
	dd.cacheTag = CacheInverse
	dd.cacheInv = inv
}

// xtResiduals computes X'r, binning-aware, in the parameter dimension.
func (dd *DesignData) xtResiduals(r []float64) []float64 {
	one := []float64{1}

	if dd.UsesSparse() {
		if dd.UsesBinning() {
			return binnedSparseMatMultResponse(dd.sparse, r, dd.binIdx, one)
		}

		p, _ := dd.sparse.Dims()
		out := make([]float64, p)
		dd.sparse.DoNonZero(func(i, j int, v float64) {
			out[i] += v * r[j]
		})

		return out
	}

	if dd.UsesBinning() {
		return binnedMatMultResponse(dd.dense, r, dd.binIdx, one)
	}

	n, p := dd.dense.Dims()
	out := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out[j] += dd.dense.At(i, j) * r[i]
		}
	}

	return out
}

// crossproduct computes X'X, binning-aware.
func (dd *DesignData) crossproduct() *mat.Dense {
	one := []float64{1}

	if dd.UsesSparse() {
		if dd.UsesBinning() {
			return binnedSparseMatMult(dd.sparse, dd.binIdx, one)
		}

		_, n := dd.sparse.Dims()

		k := make([]int, n)
		for i := range k {
			k[i] = i
		}

		return binnedSparseMatMult(dd.sparse, k, one)
	}

	if dd.UsesBinning() {
		return binnedMatMult(dd.dense, dd.binIdx, one)
	}

	out := &mat.Dense{}
	out.Mul(dd.dense.T(), dd.dense)

	return out
}

// linearPredictor evaluates design * theta on the training rows, expanding
// binned designs back to all observations and using the transposed product for
// sparse storage.
func (dd *DesignData) linearPredictor(theta []float64) []float64 {
	if dd.UsesSparse() {
		if dd.UsesBinning() {
			return binnedSparsePrediction(dd.sparse, theta, dd.binIdx)
		}

		_, n := dd.sparse.Dims()
		out := make([]float64, n)
		dd.sparse.DoNonZero(func(i, j int, v float64) {
			out[j] += theta[i] * v
		})

		return out
	}

	if dd.UsesBinning() {
		return binnedDensePrediction(dd.dense, theta, dd.binIdx)
	}

	n, p := dd.dense.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out[i] += dd.dense.At(i, j) * theta[j]
		}
	}

	return out
}

// solve computes the coefficients for the right-hand side X'r according to the
// cache tag.
func (dd *DesignData) solve(xtr []float64) ([]float64, error) {
	switch dd.cacheTag {
	case CacheCholesky:
		theta := mat.NewVecDense(len(xtr), nil)
		if err := dd.cacheChol.SolveVecTo(theta, mat.NewVecDense(len(xtr), xtr)); err != nil {
			return nil, Wrapper(ErrNumeric, fmt.Sprintf("solve: Cholesky solve failed for %s", dd.dataID))
		}

		return theta.RawVector().Data, nil
	case CacheInverse:
		theta := make([]float64, len(xtr))
		r, c := dd.cacheInv.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				theta[i] += dd.cacheInv.At(i, j) * xtr[j]
			}
		}

		return theta, nil
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("solve: cache tag %q cannot solve for %s", dd.cacheTag, dd.dataID))
	}
}
