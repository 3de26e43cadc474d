package coboost

// linesearch.go finds the optimal step size of one boosting update with Brent
// minimization of the empirical risk along the selected base-learner.

import (
	"math"
)

const (
	stepSizeLower = 0.0
	stepSizeUpper = 100.0
)

// stepRisk is the empirical risk at step size s along the candidate direction.
func stepRisk(s float64, loss Loss, target, modelPrediction, learnerPrediction []float64) float64 {
	f := make([]float64, len(modelPrediction))
	for i := range f {
		f[i] = modelPrediction[i] + s*learnerPrediction[i]
	}

	pw := loss.Pointwise(target, f)

	sum := 0.0
	for _, v := range pw {
		sum += v
	}

	return sum / float64(len(modelPrediction))
}

// brentMinimize minimizes fn on [a, b] with Brent's method (golden-section
// steps guarded parabolic interpolation), full double precision and at most
// maxIter iterations.
func brentMinimize(fn func(float64) float64, a, b float64, maxIter int) float64 {
	const golden = 0.3819660112501051
	tol := math.Sqrt(2.220446049250313e-16)

	x := a + golden*(b-a)
	w, v := x, x
	fx := fn(x)
	fw, fv := fx, fx

	var d, e float64

	for iter := 0; iter < maxIter; iter++ {
		mid := (a + b) / 2
		tol1 := tol*math.Abs(x) + 1e-12
		tol2 := 2 * tol1

		if math.Abs(x-mid) <= tol2-(b-a)/2 {
			break
		}

		useGolden := true

		if math.Abs(e) > tol1 {
			// try a parabolic fit through x, v, w
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)

			if q > 0 {
				p = -p
			}
			q = math.Abs(q)

			if math.Abs(p) < math.Abs(q*e/2) && p > q*(a-x) && p < q*(b-x) {
				e = d
				d = p / q
				useGolden = false
			}
		}

		if useGolden {
			if x < mid {
				e = b - x
			} else {
				e = a - x
			}
			d = golden * e
		}

		u := x + d
		if math.Abs(d) < tol1 {
			if d >= 0 {
				u = x + tol1
			} else {
				u = x - tol1
			}
		}

		fu := fn(u)

		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, fv = w, fw
			w, fw = x, fx
			x, fx = u, fu

			continue
		}

		if u < x {
			a = u
		} else {
			b = u
		}

		if fu <= fw || w == x {
			v, fv = w, fw
			w, fw = u, fu
		} else if fu <= fv || v == x || v == w {
			v, fv = u, fu
		}
	}

	return x
}

// findOptimalStepSize minimizes the empirical risk over step sizes in
// [stepSizeLower, stepSizeUpper].
func findOptimalStepSize(loss Loss, target, modelPrediction, learnerPrediction []float64) float64 {
	return brentMinimize(func(s float64) float64 {
		return stepRisk(s, loss, target, modelPrediction, learnerPrediction)
	}, stepSizeLower, stepSizeUpper, rootMaxIter)
}
