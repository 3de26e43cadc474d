package coboost

// learner.go has the transient base-learner: one coefficient vector fit to the
// current pseudo-residuals through the factory's cached factorization.

import (
	"fmt"
)

// BaseLearner is created by a factory for a single candidate evaluation.  It
// borrows the factory's DesignData; only the winning learner of an iteration
// survives, its coefficients copied into the tracker.
type BaseLearner struct {
	id          string
	factoryKey  string
	dataID      string
	learnerType string

	data  *DesignData
	theta []float64

	// closed-form simple linear regression path
	slopeX       []float64
	useIntercept bool

	// user-supplied train/predict of a custom factory
	customTrain   func(residuals []float64) ([]float64, error)
	customPredict func(theta []float64) []float64
}

// ID is the per-iteration label of the learner.
func (bl *BaseLearner) ID() string { return bl.id }

// FactoryKey is the registry key of the factory that created the learner.
func (bl *BaseLearner) FactoryKey() string { return bl.factoryKey }

// DataID is the feature the learner fits.
func (bl *BaseLearner) DataID() string { return bl.dataID }

// LearnerType is the factory's learner-type string.
func (bl *BaseLearner) LearnerType() string { return bl.learnerType }

// Theta returns the fitted coefficients.
func (bl *BaseLearner) Theta() []float64 { return bl.theta }

// Train fits the coefficients to the residuals.  The solve is dispatched on
// the cache tag of the factory's DesignData.
func (bl *BaseLearner) Train(residuals []float64) error {
	if bl.customTrain != nil {
		theta, err := bl.customTrain(residuals)
		if err != nil {
			return Wrapper(err, fmt.Sprintf("(*BaseLearner).Train: %s", bl.factoryKey))
		}

		bl.theta = theta

		return nil
	}

	switch bl.data.CacheTag() {
	case CacheIdentity:
		if bl.slopeX != nil {
			bl.trainSlope(residuals)
			return nil
		}

		// elementwise ridge solution: theta_j = xtr_j / (count_j + lambda)
		xtr := bl.data.xtResiduals(residuals)
		recip := bl.data.cacheVec

		if len(xtr) != len(recip) {
			return Wrapper(ErrNumeric, fmt.Sprintf("(*BaseLearner).Train: cache size %d does not match %d parameters for %s", len(recip), len(xtr), bl.factoryKey))
		}

		bl.theta = make([]float64, len(xtr))
		for j := range xtr {
			bl.theta[j] = recip[j] * xtr[j]
		}

		return nil
	case CacheCholesky, CacheInverse:
		theta, err := bl.data.solve(bl.data.xtResiduals(residuals))
		if err != nil {
			return Wrapper(err, fmt.Sprintf("(*BaseLearner).Train: %s", bl.factoryKey))
		}

		bl.theta = theta

		return nil
	default:
		return Wrapper(ErrConfig, fmt.Sprintf("(*BaseLearner).Train: unknown cache tag %q for %s", bl.data.CacheTag(), bl.factoryKey))
	}
}

// trainSlope is the closed-form simple linear regression on the cached
// (mean(x), sum((x-mean)^2)) pair.
func (bl *BaseLearner) trainSlope(residuals []float64) {
	xMean := bl.data.cacheVec[0]
	ssx := bl.data.cacheVec[1]

	rMean := 0.0
	if bl.useIntercept {
		for _, r := range residuals {
			rMean += r
		}
		rMean /= float64(len(residuals))
	}

	slope := 0.0
	for i, x := range bl.slopeX {
		slope += (x - xMean) * (residuals[i] - rMean)
	}
	slope /= ssx

	if bl.useIntercept {
		b0 := rMean - slope*xMean
		bl.theta = []float64{b0, slope}

		return
	}

	bl.theta = []float64{slope}
}

// Predict evaluates design * theta on the training rows.
func (bl *BaseLearner) Predict() []float64 {
	if bl.customPredict != nil {
		return bl.customPredict(bl.theta)
	}

	return bl.data.linearPredictor(bl.theta)
}

// PredictAt evaluates the learner on a freshly instantiated design.
func (bl *BaseLearner) PredictAt(dd *DesignData) []float64 {
	return dd.linearPredictor(bl.theta)
}
