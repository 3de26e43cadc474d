package coboost

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoost_SlopeOnly(t *testing.T) {
	// y = 2 + 3x fit in a single unshrunken iteration
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 + 3*v
	}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(1))
	assert.Nil(t, e)

	assert.Nil(t, b.Train(1))
	assert.Equal(t, 1, b.CurrentIteration())
	assert.True(t, b.IsTrained())

	// offset is the mean, the tracked effect restores intercept and slope
	assert.InDelta(t, 18.5, b.Offset(), 1e-10)

	theta := b.Parameters()["x_poly1"]
	assert.InDelta(t, 2.0, b.Offset()+theta[0], 1e-10)
	assert.InDelta(t, 3.0, theta[1], 1e-10)

	// risk history: offset risk, then an exact fit
	risk := b.RiskHistory()
	assert.Equal(t, 2, len(risk))
	assert.InDelta(t, 37.125, risk[0], 1e-10)
	assert.InDelta(t, 0.0, risk[1], 1e-10)

	for i, p := range b.InSamplePrediction(false) {
		assert.InDelta(t, y[i], p, 1e-10)
	}

	assert.Equal(t, []string{"x_poly1"}, b.SelectedLearners())
}

func TestBoost_Shrinkage(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 + 3*v
	}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(0.1))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(1))

	// the slope moves a tenth of the way to the least-squares fit
	theta := b.Parameters()["x_poly1"]
	assert.InDelta(t, 0.3, theta[1], 1e-10)

	// prediction = mean + 0.1 * (ols prediction - mean)
	yBar := 18.5
	for i, p := range b.InSamplePrediction(false) {
		assert.InDelta(t, yBar+0.1*(y[i]-yBar), p, 1e-10)
	}

	risk := b.RiskHistory()
	assert.Less(t, risk[1], risk[0])
}

func TestBoost_SelectsBestFactory(t *testing.T) {
	rng := rand.New(rand.NewSource(17))

	n := 60
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)

	// y depends on x2 only
	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		y[i] = 4 * x2[i]
	}

	f1, e := NewPolynomialFactory(numericSource(t, "x1", x1), 1, true, 0)
	assert.Nil(t, e)

	f2, e := NewPolynomialFactory(numericSource(t, "x2", x2), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(f1))
	assert.Nil(t, fl.Register(f2))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(0.5))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(10))

	for _, key := range b.SelectedLearners() {
		assert.Equal(t, "x2_poly1", key)
	}
}

func TestBoost_ParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(23))

	n := 80
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)

	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		y[i] = math.Sin(x1[i]) + 0.5*x2[i] + rng.NormFloat64()*0.1
	}

	build := func(parallel bool) *Boost {
		f1, e := NewPSplineFactory(numericSource(t, "x1", x1), 3, 8, 0, 4, 2, 0, CacheCholesky)
		assert.Nil(t, e)

		f2, e := NewPolynomialFactory(numericSource(t, "x2", x2), 1, true, 0)
		assert.Nil(t, e)

		fl := NewFactoryList()
		assert.Nil(t, fl.Register(f1))
		assert.Nil(t, fl.Register(f2))

		resp, e := NewRegressionResponse(y)
		assert.Nil(t, e)

		b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(parallel), fl, nil, WithLearningRate(0.1))
		assert.Nil(t, e)
		assert.Nil(t, b.Train(30))

		return b
	}

	serial := build(false)
	par := build(true)

	assert.Equal(t, serial.SelectedLearners(), par.SelectedLearners())

	ps, pp := serial.InSamplePrediction(false), par.InSamplePrediction(false)
	for i := range ps {
		assert.InDelta(t, ps[i], pp[i], 1e-12)
	}
}

func TestBoost_TrackerReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(29))

	n := 70
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)

	for i := 0; i < n; i++ {
		x1[i] = float64(i) / float64(n-1)
		x2[i] = rng.NormFloat64()
		y[i] = math.Sin(2*math.Pi*x1[i]) + x2[i] + rng.NormFloat64()*0.05
	}

	build := func() *Boost {
		f1, e := NewPSplineFactory(numericSource(t, "x1", x1), 3, 8, 0, 4, 2, 0, CacheCholesky)
		assert.Nil(t, e)

		f2, e := NewPolynomialFactory(numericSource(t, "x2", x2), 1, true, 0)
		assert.Nil(t, e)

		fl := NewFactoryList()
		assert.Nil(t, fl.Register(f1))
		assert.Nil(t, fl.Register(f2))

		resp, e := NewRegressionResponse(y)
		assert.Nil(t, e)

		b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(0.1))
		assert.Nil(t, e)

		return b
	}

	// reference run
	ref := build()
	assert.Nil(t, ref.Train(60))

	// fresh run, rewound halfway, then continued to the same iteration
	b := build()
	assert.Nil(t, b.Train(60))
	assert.Nil(t, b.SetToIteration(30))
	assert.Equal(t, 30, b.CurrentIteration())

	// the rewound state equals a fresh replay of the prefix
	p30, e := ref.ParametersAtIteration(30)
	assert.Nil(t, e)

	for key, acc := range b.Parameters() {
		for j := range acc {
			assert.InDelta(t, p30[key][j], acc[j], 1e-10)
		}
	}

	assert.Nil(t, b.ContinueTraining(nil, 30))
	assert.Equal(t, 60, b.CurrentIteration())

	for key, acc := range ref.Parameters() {
		got := b.Parameters()[key]
		assert.Equal(t, len(acc), len(got))

		for j := range acc {
			assert.InDelta(t, acc[j], got[j], 1e-8)
		}
	}
}

func TestBoost_SetToIterationPrediction(t *testing.T) {
	n := 50
	x := make([]float64, n)
	y := make([]float64, n)

	for i := 0; i < n; i++ {
		x[i] = float64(i) / float64(n-1)
		y[i] = math.Sin(2 * math.Pi * x[i])
	}

	f1, e := NewPSplineFactory(numericSource(t, "x", x), 3, 8, 0, 4, 2, 0, CacheCholesky)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(f1))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(0.1))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(40))

	sources, e := NewSourceMap(numericSource(t, "x", x))
	assert.Nil(t, e)

	// predict-at-k agrees with rewinding and predicting
	at20, e := b.PredictAtIteration(sources, 20, false)
	assert.Nil(t, e)

	assert.Nil(t, b.SetToIteration(20))

	inSample := b.InSamplePrediction(false)
	pred, e := b.Predict(sources, false)
	assert.Nil(t, e)

	for i := range pred {
		assert.InDelta(t, inSample[i], pred[i], 1e-10)
		assert.InDelta(t, at20[i], pred[i], 1e-10)
	}

	// the risk history shrank to the rewound prefix
	assert.Equal(t, 21, len(b.RiskHistory()))

	// beyond the trained history is a range error
	assert.NotNil(t, b.SetToIteration(100))

	_, e = b.PredictAtIteration(sources, 100, false)
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrRange)
}

func TestBoost_Binomial(t *testing.T) {
	rng := rand.New(rand.NewSource(41))

	n := 80
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)

	// separable-ish classes driven by both features
	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()

		score := 2*x1[i] - x2[i] + rng.NormFloat64()*0.3
		if score > 0 {
			y[i] = 1
		} else {
			y[i] = -1
		}
	}

	f1, e := NewPolynomialFactory(numericSource(t, "x1", x1), 1, true, 0)
	assert.Nil(t, e)

	f2, e := NewPolynomialFactory(numericSource(t, "x2", x2), 1, true, 0)
	assert.Nil(t, e)

	f3, e := NewPSplineFactory(numericSource(t, "x1", x1), 3, 8, 0, 3, 2, 0, CacheCholesky)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(f1))
	assert.Nil(t, fl.Register(f2))
	assert.Nil(t, fl.Register(f3))

	resp, e := NewBinaryResponse(y)
	assert.Nil(t, e)

	oobSources, e := NewSourceMap(numericSource(t, "x1", x1), numericSource(t, "x2", x2))
	assert.Nil(t, e)

	oobResp, e := NewBinaryResponse(y)
	assert.Nil(t, e)

	oob := NewOobRiskLogger("oob", false, NewBinomialLoss(), 1e-9, 5, oobSources, oobResp)

	ll, e := NewLoggerList(oob)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewBinomialLoss(), NewCoordinateDescent(false), fl, ll, WithLearningRate(0.1))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(200))

	assert.Nil(t, b.SetToIteration(150))

	// probabilities on the response scale
	prob := b.InSamplePrediction(true)
	correct := 0

	for i, p := range prob {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)

		pred := -1.0
		if p > 0.5 {
			pred = 1.0
		}

		if pred == y[i] {
			correct++
		}
	}

	assert.Greater(t, float64(correct)/float64(n), 0.8)
}

func TestBoost_LineSearch(t *testing.T) {
	x := make([]float64, 30)
	y := make([]float64, 30)

	for i := range x {
		x[i] = float64(i)
		y[i] = 5 - 0.5*x[i]
	}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	opt := NewCoordinateDescentLineSearch(false)

	b, e := NewBoost(resp, NewQuadraticLoss(), opt, fl, nil, WithLearningRate(0.3))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(5))

	// the learner fits the residuals exactly, so every searched step is ~1
	steps := opt.StepSizes()
	assert.Equal(t, 5, len(steps))
	for _, s := range steps {
		assert.InDelta(t, 1.0, s, 1e-3)
	}

	s1, e := opt.StepAt(1)
	assert.Nil(t, e)
	assert.InDelta(t, 1.0, s1, 1e-3)

	_, e = opt.StepAt(9)
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrRange)
}

func TestBoost_ConfigErrors(t *testing.T) {
	x := []float64{1, 2, 3}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))

	resp, e := NewRegressionResponse([]float64{1, 2, 3})
	assert.Nil(t, e)

	// learning rate outside (0, 1]
	_, e = NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(1.5))
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrConfig)

	// empty registry
	_, e = NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), NewFactoryList(), nil)
	assert.NotNil(t, e)

	// row mismatch between response and factories
	respShort, e := NewRegressionResponse([]float64{1, 2})
	assert.Nil(t, e)

	_, e = NewBoost(respShort, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil)
	assert.NotNil(t, e)

	// continuing an untrained model
	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil)
	assert.Nil(t, e)
	assert.NotNil(t, b.ContinueTraining(nil, 5))

	// predicting with a missing source propagates a lookup error
	assert.Nil(t, b.Train(2))

	empty, e := NewSourceMap(numericSource(t, "zz", []float64{1}))
	assert.Nil(t, e)

	_, e = b.Predict(empty, false)
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrLookup)
}
