package coboost

import (
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestMatrixEncoding(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, -2.5, 3e-17, 4, 5, 6.000000000000001})

	back, e := jsonToDense(denseToJSON(m))
	assert.Nil(t, e)

	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, m.At(i, j), back.At(i, j))
		}
	}

	v := []float64{0.1, 0.2, 0.3}
	backV, e := jsonToVec(vecToJSON(v))
	assert.Nil(t, e)
	assert.Equal(t, v, backV)

	k := []int{3, 1, 4, 1, 5}
	backK, e := jsonToUvec(uvecToJSON(k))
	assert.Nil(t, e)
	assert.Equal(t, k, backK)

	x := []float64{0, 0.25, 0.5, 0.75, 1}
	knots := createKnots(x, 3, 2)
	sp := splineBasisSparse(x, 2, knots)

	backS, e := jsonToSparse(sparseToJSON(sp))
	assert.Nil(t, e)

	r, c := sp.Dims()
	br, bc := backS.Dims()
	assert.Equal(t, r, br)
	assert.Equal(t, c, bc)

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Equal(t, sp.At(i, j), backS.At(i, j))
		}
	}

	_, e = jsonToDense(matJSON{Type: "arma::uvec", Mat: "1 1 1"})
	assert.NotNil(t, e)
}

func TestLossRoundTrip(t *testing.T) {
	for _, l := range []Loss{NewQuadraticLoss(), NewAbsoluteLossWithOffset(2.5), NewBinomialLoss()} {
		js, e := LossToJSON(l)
		assert.Nil(t, e)

		back, e := LossFromJSON(js)
		assert.Nil(t, e)
		assert.Equal(t, l.Name(), back.Name())

		off1, use1 := l.customOffset()
		off2, use2 := back.customOffset()
		assert.Equal(t, use1, use2)
		assert.Equal(t, off1, off2)
	}

	cl, e := NewCustomLoss(
		func(y, f []float64) []float64 { return y },
		func(y, f []float64) []float64 { return y },
		func(y []float64) float64 { return 0 })
	assert.Nil(t, e)

	_, e = LossToJSON(cl)
	assert.NotNil(t, e)
}

func TestLoggerRoundTrip(t *testing.T) {
	it := NewIterationLogger("iters", true, 50)
	it.iterations = []float64{1, 2, 3}

	js, e := LoggerToJSON(it)
	assert.Nil(t, e)

	back, e := LoggerFromJSON(js)
	assert.Nil(t, e)

	itBack, ok := back.(*IterationLogger)
	assert.True(t, ok)
	assert.Equal(t, it.maxIter, itBack.maxIter)
	assert.Equal(t, it.iterations, itBack.iterations)

	ib := NewInbagRiskLogger("inbag", true, NewQuadraticLoss(), 1e-6, 3)
	ib.risk = []float64{2, 1, 0.5}
	ib.countPatience = 1

	js, e = LoggerToJSON(ib)
	assert.Nil(t, e)

	back, e = LoggerFromJSON(js)
	assert.Nil(t, e)

	ibBack, ok := back.(*InbagRiskLogger)
	assert.True(t, ok)
	assert.Equal(t, ib.risk, ibBack.risk)
	assert.Equal(t, ib.countPatience, ibBack.countPatience)
	assert.Equal(t, "QuadraticLoss", ibBack.loss.Name())
}

func TestTrackerRoundTrip(t *testing.T) {
	tr := NewTracker()
	tr.Insert(trackerLearner("x_poly1", []float64{1, 2}), 0.1)
	tr.Insert(trackerLearner("z_spline", []float64{3}), 0.1)

	js, e := TrackerToJSON(tr)
	assert.Nil(t, e)

	back, e := TrackerFromJSON(js)
	assert.Nil(t, e)
	assert.Equal(t, tr.Len(), back.Len())
	assert.Equal(t, tr.SelectedKeys(), back.SelectedKeys())

	want := tr.Parameters()
	for key, acc := range back.Parameters() {
		for j := range acc {
			assert.Equal(t, want[key][j], acc[j])
		}
	}
}

func TestBoostRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(37))

	n := 60
	x := make([]float64, n)
	grp := make([]string, n)
	y := make([]float64, n)

	groups := []string{"a", "b", "c"}
	effect := map[string]float64{"a": 1, "b": -1, "c": 0.5}

	for i := 0; i < n; i++ {
		x[i] = float64(i) / float64(n-1)
		grp[i] = groups[rng.Intn(3)]
		y[i] = math.Sin(2*math.Pi*x[i]) + effect[grp[i]] + rng.NormFloat64()*0.05
	}

	xSrc := numericSource(t, "x", x)

	gSrc, e := NewCategoricalSource("grp", grp)
	assert.Nil(t, e)

	f1, e := NewPSplineFactory(xSrc, 3, 8, 0, 4, 2, 0, CacheCholesky)
	assert.Nil(t, e)

	f2, e := NewCategoricalRidgeFactory(gSrc, 2)
	assert.Nil(t, e)

	f3, e := NewPolynomialFactory(xSrc, 2, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(f1))
	assert.Nil(t, fl.Register(f2))
	assert.Nil(t, fl.Register(f3))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(0.1))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(50))

	js, e := b.ToJSON()
	assert.Nil(t, e)

	back, e := BoostFromJSON(js)
	assert.Nil(t, e)
	assert.Equal(t, b.CurrentIteration(), back.CurrentIteration())
	assert.Equal(t, b.Offset(), back.Offset())
	assert.Equal(t, b.SelectedLearners(), back.SelectedLearners())

	// predictions on the training inputs agree to round-off
	sources, e := NewSourceMap(xSrc, gSrc)
	assert.Nil(t, e)

	want, e := b.Predict(sources, false)
	assert.Nil(t, e)

	got, e := back.Predict(sources, false)
	assert.Nil(t, e)

	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}

	// replays agree too
	want20, e := b.PredictAtIteration(sources, 20, false)
	assert.Nil(t, e)

	got20, e := back.PredictAtIteration(sources, 20, false)
	assert.Nil(t, e)

	for i := range want20 {
		assert.InDelta(t, want20[i], got20[i], 1e-12)
	}

	// the reloaded model keeps training
	assert.Nil(t, back.ContinueTraining(nil, 10))
	assert.Equal(t, 60, back.CurrentIteration())
}

func TestBoostSaveLoad(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{2, 4, 6, 8, 10, 12, 14, 16}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))

	resp, e := NewRegressionResponse(y)
	assert.Nil(t, e)

	b, e := NewBoost(resp, NewQuadraticLoss(), NewCoordinateDescent(false), fl, nil, WithLearningRate(1))
	assert.Nil(t, e)
	assert.Nil(t, b.Train(1))

	fileName := os.TempDir() + "/coboost_test_model.json"
	defer func() { _ = os.Remove(fileName) }()

	assert.Nil(t, b.Save(fileName))

	back, e := LoadBoost(fileName)
	assert.Nil(t, e)

	sources, e := NewSourceMap(numericSource(t, "x", []float64{0, 10}))
	assert.Nil(t, e)

	pred, e := back.Predict(sources, false)
	assert.Nil(t, e)
	assert.InDelta(t, 0.0, pred[0], 1e-8)
	assert.InDelta(t, 20.0, pred[1], 1e-8)
}
