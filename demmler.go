package coboost

// demmler.go maps a target degrees of freedom to the penalty multiplier of a
// regularized base-learner.  The effective degrees of freedom of the smoother
// S = X(X'X+lambda*P)^-1 X' is tr(2S - SS'), which in the Demmler-Reinsch basis
// becomes a function of the singular values of C^-T P C^-1 with C the Cholesky
// factor of X'X.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	demmlerEps        = 1e-9
	demmlerUpperBound = 1e15
	rootMaxIter       = 500
)

// effectiveDF evaluates 2*sum(1/(1+lambda*s)) - sum(1/(1+lambda*s)^2) for the
// singular values s.
func effectiveDF(lambda float64, singularValues []float64) float64 {
	df := 0.0
	for _, s := range singularValues {
		d := 1 / (1 + lambda*s)
		df += 2*d - d*d
	}

	return df
}

// findLambda solves effectiveDF(lambda) = df on [lower, upper] by bisection of
// the sign-changing bracket, roughly 30 bits of relative precision and at most
// rootMaxIter steps.
func findLambda(singularValues []float64, df, lower, upper float64) (float64, error) {
	objective := func(lambda float64) float64 {
		return effectiveDF(lambda, singularValues) - df
	}

	fLow, fHigh := objective(lower), objective(upper)
	if fLow == 0 {
		return lower, nil
	}

	if fHigh == 0 {
		return upper, nil
	}

	if fLow*fHigh > 0 {
		return 0, Wrapper(ErrNumeric, fmt.Sprintf("findLambda: no sign change on [%g, %g] for df = %g", lower, upper, df))
	}

	const relTol = 1.0 / (1 << 29) // ~30 bits

	a, b, fa := lower, upper, fLow
	for iter := 0; iter < rootMaxIter; iter++ {
		mid := (a + b) / 2

		if b-a <= relTol*math.Max(1, math.Abs(mid)) {
			break
		}

		fm := objective(mid)

		switch {
		case fm == 0:
			return mid, nil
		case fa*fm < 0:
			b = mid
		default:
			a, fa = mid, fm
		}
	}

	return (a + b) / 2, nil
}

// demmlerReinsch returns the penalty multiplier lambda for which the smoother
// defined by xtx and penalty has the requested degrees of freedom.
func demmlerReinsch(xtx, penalty *mat.Dense, df float64) (float64, error) {
	p, _ := xtx.Dims()

	if rank := denseRank(xtx); df > float64(rank) {
		return 0, Wrapper(ErrNumeric, fmt.Sprintf("demmlerReinsch: df = %g exceeds design rank %d", df, rank))
	}

	// X'X + eps*P keeps the factorization positive definite
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, xtx.At(i, j)+demmlerEps*penalty.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return 0, Wrapper(ErrNumeric, "demmlerReinsch: X'X + eps*P is not positive definite")
	}

	u := &mat.TriDense{}
	chol.UTo(u)

	uInv := &mat.Dense{}
	if err := uInv.Inverse(u); err != nil {
		return 0, Wrapper(ErrNumeric, "demmlerReinsch: singular Cholesky factor")
	}

	pu := &mat.Dense{}
	pu.Mul(penalty, uInv)

	ld := &mat.Dense{}
	ld.Mul(uInv.T(), pu)

	var svd mat.SVD
	if ok := svd.Factorize(ld, mat.SVDNone); !ok {
		return 0, Wrapper(ErrNumeric, "demmlerReinsch: SVD failed")
	}

	return findLambda(svd.Values(nil), df, 0, demmlerUpperBound)
}

// denseRank is the numerical rank from the singular values.
func denseRank(a *mat.Dense) int {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return 0
	}

	vals := svd.Values(nil)

	r, c := a.Dims()
	dim := r
	if c > dim {
		dim = c
	}

	tol := float64(dim) * vals[0] * 2.220446049250313e-16

	rank := 0
	for _, v := range vals {
		if v > tol {
			rank++
		}
	}

	return rank
}
