package coboost

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func numericSource(t *testing.T, id string, x []float64) *FeatureSource {
	src, e := NewNumericSource(id, x)
	assert.Nil(t, e)

	return src
}

func TestPolynomialFactory_Linear(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	r := make([]float64, len(x))
	for i, v := range x {
		r[i] = 2 + 3*v
	}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)
	assert.Equal(t, "x_poly1", pf.Key())
	assert.Equal(t, CacheIdentity, pf.DesignData().CacheTag())

	bl := pf.NewLearner("(1) poly1")
	assert.Nil(t, bl.Train(r))

	// exact data gives the exact line
	theta := bl.Theta()
	assert.InDelta(t, 2.0, theta[0], 1e-10)
	assert.InDelta(t, 3.0, theta[1], 1e-10)

	pred := bl.Predict()
	for i := range r {
		assert.InDelta(t, r[i], pred[i], 1e-10)
	}

	// prediction on new data instantiates a fresh design
	newSources, e := NewSourceMap(numericSource(t, "x", []float64{0, 11}))
	assert.Nil(t, e)

	out, e := pf.LinearPredictorAt(theta, newSources)
	assert.Nil(t, e)
	assert.InDelta(t, 2.0, out[0], 1e-10)
	assert.InDelta(t, 35.0, out[1], 1e-10)

	// degree 0 and categorical sources are rejected
	_, e = NewPolynomialFactory(numericSource(t, "x", x), 0, true, 0)
	assert.NotNil(t, e)

	cat, e := NewCategoricalSource("c", []string{"a", "b"})
	assert.Nil(t, e)
	_, e = NewPolynomialFactory(cat, 1, true, 0)
	assert.NotNil(t, e)
}

func TestPolynomialFactory_Quadratic(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	n := 40
	x := make([]float64, n)
	r := make([]float64, n)

	for i := 0; i < n; i++ {
		x[i] = rng.Float64()*4 - 2
		r[i] = 1 - x[i] + 0.5*x[i]*x[i] + rng.NormFloat64()*0.01
	}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 2, true, 0)
	assert.Nil(t, e)
	assert.Equal(t, CacheInverse, pf.DesignData().CacheTag())

	bl := pf.NewLearner("(1) poly2")
	assert.Nil(t, bl.Train(r))

	// the inverse-cache solve equals the normal equations
	design := polyDesign(x, 2, true)

	xtx := &mat.Dense{}
	xtx.Mul(design.T(), design)

	xtr := mat.NewVecDense(3, nil)
	xtr.MulVec(design.T(), mat.NewVecDense(n, r))

	want := mat.NewVecDense(3, nil)
	assert.Nil(t, want.SolveVec(xtx, xtr))

	for j := 0; j < 3; j++ {
		assert.InDelta(t, want.AtVec(j), bl.Theta()[j], 1e-8)
	}
}

func TestPSplineFactory(t *testing.T) {
	n := 100
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) / float64(n-1)
	}

	sf, e := NewPSplineFactory(numericSource(t, "x", x), 3, 10, 0, 4, 2, 0, CacheCholesky)
	assert.Nil(t, e)
	assert.Equal(t, "x_spline", sf.Key())
	assert.True(t, sf.UsesSparse())
	assert.Greater(t, sf.Lambda(), 0.0)

	// the derived multiplier hits the requested degrees of freedom
	basis := splineBasisDense(x, 3, sf.Knots())

	xtx := &mat.Dense{}
	xtx.Mul(basis.T(), basis)

	pen, e := penaltyMat(10+3+1, 2)
	assert.Nil(t, e)

	assert.InDelta(t, 4.0, traceDF(xtx, pen, sf.Lambda()), 1e-4)

	r := make([]float64, n)
	for i := range r {
		r[i] = x[i] * (1 - x[i])
	}

	bl := sf.NewLearner("(1) spline")
	assert.Nil(t, bl.Train(r))
	assert.Equal(t, 14, len(bl.Theta()))

	// in-sample predictor agrees with the instantiate-and-multiply path
	sources, e := NewSourceMap(numericSource(t, "x", x))
	assert.Nil(t, e)

	inSample := sf.LinearPredictor(bl.Theta())

	at, e := sf.LinearPredictorAt(bl.Theta(), sources)
	assert.Nil(t, e)

	for i := range inSample {
		assert.InDelta(t, inSample[i], at[i], 1e-10)
	}

	// both penalty and df set is a config error
	_, e = NewPSplineFactory(numericSource(t, "x", x), 3, 10, 1, 4, 2, 0, CacheCholesky)
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrConfig)

	// unknown cache tag
	_, e = NewPSplineFactory(numericSource(t, "x", x), 3, 10, 0, 4, 2, 0, "identity")
	assert.NotNil(t, e)
}

func TestPSplineFactory_Binning(t *testing.T) {
	n := 400
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) / float64(n-1)
	}

	sf, e := NewPSplineFactory(numericSource(t, "x", x), 3, 8, 2, 0, 2, 2, CacheCholesky)
	assert.Nil(t, e)
	assert.True(t, sf.DesignData().UsesBinning())
	assert.Equal(t, n, len(sf.DesignData().BinningIndex()))

	r := make([]float64, n)
	for i := range r {
		r[i] = x[i]
	}

	bl := sf.NewLearner("(1) spline")
	assert.Nil(t, bl.Train(r))

	// predictions expand the binned design back to all rows
	assert.Equal(t, n, len(bl.Predict()))
}

func TestCategoricalRidgeFactory(t *testing.T) {
	labels := []string{"a", "b", "a", "c", "b", "a"}

	src, e := NewCategoricalSource("grp", labels)
	assert.Nil(t, e)

	rf, e := NewCategoricalRidgeFactory(src, 0)
	assert.Nil(t, e)
	assert.Equal(t, "grp_ridge", rf.Key())
	assert.Equal(t, 3, len(rf.Dictionary()))

	// with no penalty the fit is the class mean of the residuals
	r := []float64{1, 4, 3, 10, 6, 2}

	bl := rf.NewLearner("(1) ridge")
	assert.Nil(t, bl.Train(r))

	theta := bl.Theta()
	assert.InDelta(t, 2.0, theta[rf.Dictionary()["a"]], 1e-10)
	assert.InDelta(t, 5.0, theta[rf.Dictionary()["b"]], 1e-10)
	assert.InDelta(t, 10.0, theta[rf.Dictionary()["c"]], 1e-10)

	// a positive df shrinks every class towards zero
	rfPen, e := NewCategoricalRidgeFactory(src, 2)
	assert.Nil(t, e)
	assert.Greater(t, rfPen.Lambda(), 0.0)

	blPen := rfPen.NewLearner("(1) ridge")
	assert.Nil(t, blPen.Train(r))

	for j := range blPen.Theta() {
		assert.Less(t, absFloat(blPen.Theta()[j]), absFloat(theta[j])+1e-12)
	}

	// numeric sources are rejected
	_, e = NewCategoricalRidgeFactory(numericSource(t, "x", []float64{1, 2}), 0)
	assert.NotNil(t, e)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

func TestCategoricalBinaryFactory(t *testing.T) {
	labels := []string{"a", "b", "a", "c", "a", "b"}

	src, e := NewCategoricalSource("grp", labels)
	assert.Nil(t, e)

	bf, e := NewCategoricalBinaryFactory(src, "a")
	assert.Nil(t, e)
	assert.Equal(t, "grp_binary_a", bf.Key())

	r := []float64{3, 100, 6, 100, 9, 100}

	bl := bf.NewLearner("(1) binary")
	assert.Nil(t, bl.Train(r))

	// the fit is the mean residual of the target class
	assert.Equal(t, 1, len(bl.Theta()))
	assert.InDelta(t, 6.0, bl.Theta()[0], 1e-10)

	pred := bl.Predict()
	assert.InDelta(t, 6.0, pred[0], 1e-10)
	assert.InDelta(t, 0.0, pred[1], 1e-10)

	// a class that never occurs is a config error
	_, e = NewCategoricalBinaryFactory(src, "zz")
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrConfig)
}

func TestTensorFactory(t *testing.T) {
	rng := rand.New(rand.NewSource(9))

	n := 60
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	r := make([]float64, n)

	for i := 0; i < n; i++ {
		x1[i] = rng.Float64()
		x2[i] = rng.Float64()
		r[i] = x1[i] * x2[i]
	}

	f1, e := NewPSplineFactory(numericSource(t, "x1", x1), 2, 4, 0, 3, 1, 0, CacheCholesky)
	assert.Nil(t, e)

	f2, e := NewPSplineFactory(numericSource(t, "x2", x2), 2, 4, 0, 3, 1, 0, CacheCholesky)
	assert.Nil(t, e)

	tf, e := NewTensorFactory(f1, f2)
	assert.Nil(t, e)
	assert.Equal(t, "x1_x2_tensor", tf.Key())
	assert.True(t, tf.UsesSparse())

	p1 := f1.DesignData().Cols()
	p2 := f2.DesignData().Cols()
	assert.Equal(t, p1*p2, tf.DesignData().Cols())

	bl := tf.NewLearner("(1) tensor")
	assert.Nil(t, bl.Train(r))

	// the cholesky solve matches the explicit normal equations
	design := toDense(tf.DesignData())

	xtx := &mat.Dense{}
	xtx.Mul(design.T(), design)
	xtx.Add(xtx, tf.DesignData().Penalty())

	xtr := mat.NewVecDense(p1*p2, nil)
	xtr.MulVec(design.T(), mat.NewVecDense(n, r))

	want := mat.NewVecDense(p1*p2, nil)
	assert.Nil(t, want.SolveVec(xtx, xtr))

	for j := 0; j < p1*p2; j++ {
		assert.InDelta(t, want.AtVec(j), bl.Theta()[j], 1e-4)
	}

	// instantiating on the training sources reproduces the in-sample fit
	sources, e := NewSourceMap(numericSource(t, "x1", x1), numericSource(t, "x2", x2))
	assert.Nil(t, e)

	inSample := tf.LinearPredictor(bl.Theta())

	at, e := tf.LinearPredictorAt(bl.Theta(), sources)
	assert.Nil(t, e)

	for i := range inSample {
		assert.InDelta(t, inSample[i], at[i], 1e-10)
	}
}

func TestCenteredFactory(t *testing.T) {
	n := 80
	x := make([]float64, n)
	r := make([]float64, n)

	for i := 0; i < n; i++ {
		x[i] = float64(i) / float64(n-1)
		r[i] = x[i] * x[i]
	}

	spline, e := NewPSplineFactory(numericSource(t, "x", x), 3, 6, 0, 4, 2, 0, CacheCholesky)
	assert.Nil(t, e)

	linear, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	cf, e := NewCenteredFactory(spline, linear)
	assert.Nil(t, e)
	assert.Equal(t, "x_centered", cf.Key())
	assert.False(t, cf.UsesSparse())

	// the centered design lost the dimensions spanned by the linear part
	assert.Equal(t, spline.DesignData().Cols()-2, cf.DesignData().Cols())

	// and is orthogonal to it
	centered := cf.DesignData().AsDense()
	lin := linear.DesignData().AsDense()

	cross := &mat.Dense{}
	cross.Mul(centered.T(), lin)

	cr, cc := cross.Dims()
	for i := 0; i < cr; i++ {
		for j := 0; j < cc; j++ {
			assert.InDelta(t, 0.0, cross.At(i, j), 1e-8)
		}
	}

	bl := cf.NewLearner("(1) centered")
	assert.Nil(t, bl.Train(r))
	assert.Equal(t, n, len(bl.Predict()))

	// a child with an identity cache cannot be centered
	_, e = NewCenteredFactory(linear, spline)
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrConfig)
}

func TestFactoryList(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}

	pf, e := NewPolynomialFactory(numericSource(t, "x", x), 1, true, 0)
	assert.Nil(t, e)

	fl := NewFactoryList()
	assert.Nil(t, fl.Register(pf))
	assert.NotNil(t, fl.Register(pf))

	got, e := fl.Get("x_poly1")
	assert.Nil(t, e)
	assert.Equal(t, pf.Key(), got.Key())

	_, e = fl.Get("nope")
	assert.NotNil(t, e)
	assert.ErrorIs(t, e, ErrLookup)
}
