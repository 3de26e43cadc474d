package coboost

// factory.go has the base-learner factories.  A factory owns the precomputed
// design and factorization cache for one candidate effect and emits fresh
// base-learners bound to that data.

import (
	"fmt"
	"strconv"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Factory is one candidate explanatory effect.  Factories are immutable after
// construction and may be shared read-only by the optimizer, the tracker and
// the coordinator.
type Factory interface {
	// DataID is the id of the underlying feature (or feature pair).
	DataID() string
	// LearnerType tags the kind of effect, e.g. "poly1" or "spline".
	LearnerType() string
	// Key is DataID + "_" + LearnerType, unique across the registry.
	Key() string
	// UsesSparse is true if the design is stored sparse.
	UsesSparse() bool
	// DesignData returns the training design and cache.
	DesignData() *DesignData
	// Instantiate rebuilds the design on held-out sources, without binning.
	Instantiate(sources SourceMap) (*DesignData, error)
	// LinearPredictor evaluates design * theta on the training data.
	LinearPredictor(theta []float64) []float64
	// LinearPredictorAt evaluates theta on held-out sources.
	LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error)
	// NewLearner emits a base-learner borrowing the design and cache.
	NewLearner(id string) *BaseLearner
}

// factoryBase carries the members every factory shares.
type factoryBase struct {
	dataID      string
	learnerType string
	data        *DesignData
}

func (fb *factoryBase) DataID() string { return fb.dataID }

func (fb *factoryBase) LearnerType() string { return fb.learnerType }

func (fb *factoryBase) Key() string { return fb.dataID + "_" + fb.learnerType }

func (fb *factoryBase) UsesSparse() bool { return fb.data.UsesSparse() }

func (fb *factoryBase) DesignData() *DesignData { return fb.data }

func (fb *factoryBase) LinearPredictor(theta []float64) []float64 {
	return fb.data.linearPredictor(theta)
}

func (fb *factoryBase) newLearner(id string) *BaseLearner {
	return &BaseLearner{
		id:          id,
		factoryKey:  fb.Key(),
		dataID:      fb.dataID,
		learnerType: fb.learnerType,
		data:        fb.data,
	}
}

// linearPredictorAt instantiates the design on sources and multiplies.
func linearPredictorAt(f Factory, theta []float64, sources SourceMap) ([]float64, error) {
	dd, err := f.Instantiate(sources)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("LinearPredictorAt: %s", f.Key()))
	}

	return dd.linearPredictor(theta), nil
}

// FactoryList is the ordered registry of candidate factories.  Iteration
// follows insertion order, which also fixes the tie-break in the optimizer.
type FactoryList struct {
	keys []string
	m    map[string]Factory
}

// NewFactoryList creates an empty registry.
func NewFactoryList() *FactoryList {
	return &FactoryList{m: make(map[string]Factory)}
}

// Register adds a factory; keys must be unique.
func (fl *FactoryList) Register(f Factory) error {
	if _, ok := fl.m[f.Key()]; ok {
		return Wrapper(ErrConfig, fmt.Sprintf("(*FactoryList).Register: duplicate factory key %s", f.Key()))
	}

	fl.keys = append(fl.keys, f.Key())
	fl.m[f.Key()] = f

	return nil
}

// Get returns the factory for key or a LookupError.
func (fl *FactoryList) Get(key string) (Factory, error) {
	f, ok := fl.m[key]
	if !ok {
		return nil, Wrapper(ErrLookup, fmt.Sprintf("(*FactoryList).Get: factory %s not registered", key))
	}

	return f, nil
}

// Keys returns the registry keys in insertion order.
func (fl *FactoryList) Keys() []string { return fl.keys }

// Len is the number of registered factories.
func (fl *FactoryList) Len() int { return len(fl.keys) }

// polyDesign builds [1 | x | x^2 | ... | x^degree], dropping the leading ones
// column if intercept is false.
func polyDesign(x []float64, degree int, intercept bool) *mat.Dense {
	cols := degree
	if intercept {
		cols++
	}

	out := mat.NewDense(len(x), cols, nil)

	for i, v := range x {
		c := 0
		if intercept {
			out.Set(i, 0, 1)
			c = 1
		}

		pw := 1.0
		for d := 1; d <= degree; d++ {
			pw *= v
			out.Set(i, c, pw)
			c++
		}
	}

	return out
}

// PolynomialFactory fits polynomial effects of a numeric feature.
type PolynomialFactory struct {
	factoryBase

	src          *FeatureSource
	degree       int
	useIntercept bool
	binRoot      int

	// expanded effective column for the closed-form linear fit
	slopeX []float64
}

// NewPolynomialFactory precomputes the polynomial design of degree >= 1 on a
// numeric source.  A bin root > 0 replaces the column by its quantile-bin
// representatives.
func NewPolynomialFactory(src *FeatureSource, degree int, intercept bool, binRoot int) (*PolynomialFactory, error) {
	if degree < 1 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPolynomialFactory: degree = %d, must be at least 1 for %s", degree, src.DataID))
	}

	if !src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPolynomialFactory: %s is not numeric", src.DataID))
	}

	pf := &PolynomialFactory{
		src:          src,
		degree:       degree,
		useIntercept: intercept,
		binRoot:      binRoot,
	}
	pf.dataID = src.DataID
	pf.learnerType = "poly" + strconv.Itoa(degree)

	xcol := src.Numeric
	var binIdx []int

	if binRoot > 0 {
		bins, err := binVector(src.Numeric, binRoot)
		if err != nil {
			return nil, Wrapper(err, fmt.Sprintf("NewPolynomialFactory: %s", src.DataID))
		}

		binIdx = binIndex(src.Numeric, bins)
		xcol = bins
	}

	pf.data = newDenseDesign(src.DataID, polyDesign(xcol, degree, intercept))
	if binIdx != nil {
		pf.data.setBinning(binIdx)
	}

	if degree == 1 && intercept {
		// the effective column after binning, expanded back to all rows
		pf.slopeX = xcol
		if binIdx != nil {
			pf.slopeX = make([]float64, len(binIdx))
			for i, ind := range binIdx {
				pf.slopeX[i] = xcol[ind]
			}
		}

		xMean := 0.0
		for _, v := range pf.slopeX {
			xMean += v
		}
		xMean /= float64(len(pf.slopeX))

		ssx := 0.0
		for _, v := range pf.slopeX {
			ssx += (v - xMean) * (v - xMean)
		}

		pf.data.setCacheIdentity([]float64{xMean, ssx})

		return pf, nil
	}

	if err := pf.data.setCache(CacheInverse, pf.data.crossproduct()); err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewPolynomialFactory: %s", src.DataID))
	}

	return pf, nil
}

func (pf *PolynomialFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	src, err := sources.Get(pf.dataID)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*PolynomialFactory).Instantiate: %s", pf.Key()))
	}

	if !src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("(*PolynomialFactory).Instantiate: %s is not numeric", pf.dataID))
	}

	return newDenseDesign(pf.dataID, polyDesign(src.Numeric, pf.degree, pf.useIntercept)), nil
}

func (pf *PolynomialFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(pf, theta, sources)
}

func (pf *PolynomialFactory) NewLearner(id string) *BaseLearner {
	bl := pf.newLearner(id)
	bl.slopeX = pf.slopeX
	bl.useIntercept = pf.useIntercept

	return bl
}

// PSplineFactory fits penalized B-spline effects of a numeric feature.
type PSplineFactory struct {
	factoryBase

	src         *FeatureSource
	degree      int
	nKnots      int
	penalty     float64
	df          float64
	differences int
	binRoot     int
	cacheKind   string
	knots       []float64
}

// NewPSplineFactory precomputes the sparse spline basis, the difference penalty
// and the factorization cache.  Exactly one of penalty > 0 or df > 0 must be
// given; a positive df derives the penalty multiplier with Demmler-Reinsch.
func NewPSplineFactory(src *FeatureSource, degree, nKnots int, penalty, df float64, differences, binRoot int, cacheTag string) (*PSplineFactory, error) {
	if !src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPSplineFactory: %s is not numeric", src.DataID))
	}

	if degree < 1 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPSplineFactory: degree = %d, must be at least 1 for %s", degree, src.DataID))
	}

	if (penalty > 0) == (df > 0) {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPSplineFactory: exactly one of penalty or df must be positive for %s", src.DataID))
	}

	if cacheTag != CacheCholesky && cacheTag != CacheInverse {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewPSplineFactory: cache tag %q not supported for %s", cacheTag, src.DataID))
	}

	sf := &PSplineFactory{
		src:         src,
		degree:      degree,
		nKnots:      nKnots,
		penalty:     penalty,
		df:          df,
		differences: differences,
		binRoot:     binRoot,
		cacheKind:   cacheTag,
	}
	sf.dataID = src.DataID
	sf.learnerType = "spline"
	sf.knots = createKnots(src.Numeric, nKnots, degree)

	xcol := src.Numeric
	var binIdx []int

	if binRoot > 0 {
		bins, err := binVector(src.Numeric, binRoot)
		if err != nil {
			return nil, Wrapper(err, fmt.Sprintf("NewPSplineFactory: %s", src.DataID))
		}

		binIdx = binIndex(src.Numeric, bins)
		xcol = bins
	}

	sf.data = newSparseDesign(src.DataID, splineBasisSparse(xcol, degree, sf.knots))
	if binIdx != nil {
		sf.data.setBinning(binIdx)
	}

	pen, err := penaltyMat(nKnots+degree+1, differences)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewPSplineFactory: %s", src.DataID))
	}

	xtx := sf.data.crossproduct()

	if df > 0 {
		lambda, e := demmlerReinsch(xtx, pen, df)
		if e != nil {
			return nil, Wrapper(e, fmt.Sprintf("NewPSplineFactory: df calibration failed for %s", src.DataID))
		}

		sf.penalty = lambda
	}

	pen.Scale(sf.penalty, pen)
	sf.data.setPenalty(pen)

	xtxPen := &mat.Dense{}
	xtxPen.Add(xtx, pen)

	if err := sf.data.setCache(cacheTag, xtxPen); err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewPSplineFactory: %s", src.DataID))
	}

	return sf, nil
}

// Lambda returns the penalty multiplier, user-set or derived from df.
func (sf *PSplineFactory) Lambda() float64 { return sf.penalty }

// Knots returns the knot vector.
func (sf *PSplineFactory) Knots() []float64 { return sf.knots }

func (sf *PSplineFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	src, err := sources.Get(sf.dataID)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*PSplineFactory).Instantiate: %s", sf.Key()))
	}

	if !src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("(*PSplineFactory).Instantiate: %s is not numeric", sf.dataID))
	}

	return newSparseDesign(sf.dataID, splineBasisSparse(src.Numeric, sf.degree, sf.knots)), nil
}

func (sf *PSplineFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(sf, theta, sources)
}

func (sf *PSplineFactory) NewLearner(id string) *BaseLearner {
	return sf.newLearner(id)
}

// CategoricalRidgeFactory fits a ridge-penalized one-hot effect of a
// categorical feature.
type CategoricalRidgeFactory struct {
	factoryBase

	src        *FeatureSource
	df         float64
	lambda     float64
	dictionary map[string]int
	classes    []string
}

// NewCategoricalRidgeFactory builds the one-hot design with a dictionary in
// order of first appearance.  A positive df derives the ridge penalty with
// Demmler-Reinsch on the diagonal crossproduct.
func NewCategoricalRidgeFactory(src *FeatureSource, df float64) (*CategoricalRidgeFactory, error) {
	if src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCategoricalRidgeFactory: %s is not categorical", src.DataID))
	}

	rf := &CategoricalRidgeFactory{src: src, df: df, dictionary: make(map[string]int)}
	rf.dataID = src.DataID
	rf.learnerType = "ridge"

	for _, label := range src.Labels {
		if _, ok := rf.dictionary[label]; !ok {
			rf.dictionary[label] = len(rf.dictionary)
			rf.classes = append(rf.classes, label)
		}
	}

	rf.data = newSparseDesign(src.DataID, oneHotSparse(src.Labels, rf.dictionary))

	p := len(rf.dictionary)

	counts := make([]float64, p)
	for _, label := range src.Labels {
		counts[rf.dictionary[label]]++
	}

	if df > 0 {
		if df > float64(p) {
			return nil, Wrapper(ErrNumeric, fmt.Sprintf("NewCategoricalRidgeFactory: df = %g exceeds %d classes for %s", df, p, src.DataID))
		}

		diag := mat.NewDense(p, p, nil)
		eye := mat.NewDense(p, p, nil)
		for j := 0; j < p; j++ {
			diag.Set(j, j, counts[j])
			eye.Set(j, j, 1)
		}

		lambda, err := demmlerReinsch(diag, eye, df)
		if err != nil {
			return nil, Wrapper(err, fmt.Sprintf("NewCategoricalRidgeFactory: df calibration failed for %s", src.DataID))
		}

		rf.lambda = lambda
	}

	pen := mat.NewDense(p, p, nil)
	for j := 0; j < p; j++ {
		pen.Set(j, j, rf.lambda)
	}
	rf.data.setPenalty(pen)

	recip := make([]float64, p)
	for j := 0; j < p; j++ {
		recip[j] = 1 / (counts[j] + rf.lambda)
	}
	rf.data.setCacheIdentity(recip)

	return rf, nil
}

// Lambda returns the ridge penalty derived from df.
func (rf *CategoricalRidgeFactory) Lambda() float64 { return rf.lambda }

// Dictionary maps class labels to design columns.
func (rf *CategoricalRidgeFactory) Dictionary() map[string]int {
	out := make(map[string]int, len(rf.dictionary))
	for k, v := range rf.dictionary {
		out[k] = v
	}

	return out
}

func (rf *CategoricalRidgeFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	src, err := sources.Get(rf.dataID)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*CategoricalRidgeFactory).Instantiate: %s", rf.Key()))
	}

	if src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("(*CategoricalRidgeFactory).Instantiate: %s is not categorical", rf.dataID))
	}

	return newSparseDesign(rf.dataID, oneHotSparse(src.Labels, rf.dictionary)), nil
}

func (rf *CategoricalRidgeFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(rf, theta, sources)
}

func (rf *CategoricalRidgeFactory) NewLearner(id string) *BaseLearner {
	return rf.newLearner(id)
}

// oneHotSparse builds the transposed one-hot indicator (classes x samples).
// Labels missing from the dictionary get an all-zero column.
func oneHotSparse(labels []string, dictionary map[string]int) *sparse.CSR {
	var (
		rows []int
		cols []int
		vals []float64
	)

	for i, label := range labels {
		j, ok := dictionary[label]
		if !ok {
			continue
		}

		rows = append(rows, j)
		cols = append(cols, i)
		vals = append(vals, 1)
	}

	return sparse.NewCOO(len(dictionary), len(labels), rows, cols, vals).ToCSR()
}

// CategoricalBinaryFactory fits the mean effect of a single class of a
// categorical feature.
type CategoricalBinaryFactory struct {
	factoryBase

	src   *FeatureSource
	class string
}

// NewCategoricalBinaryFactory builds the 1 x n indicator design for the target
// class.
func NewCategoricalBinaryFactory(src *FeatureSource, class string) (*CategoricalBinaryFactory, error) {
	if src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCategoricalBinaryFactory: %s is not categorical", src.DataID))
	}

	nPos := 0
	for _, label := range src.Labels {
		if label == class {
			nPos++
		}
	}

	if nPos == 0 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCategoricalBinaryFactory: class %s not present in %s", class, src.DataID))
	}

	bf := &CategoricalBinaryFactory{src: src, class: class}
	bf.dataID = src.DataID
	bf.learnerType = "binary_" + class

	bf.data = newSparseDesign(src.DataID, oneHotSparse(src.Labels, map[string]int{class: 0}))
	bf.data.setCacheIdentity([]float64{1 / float64(nPos)})

	return bf, nil
}

// Class returns the target class label.
func (bf *CategoricalBinaryFactory) Class() string { return bf.class }

func (bf *CategoricalBinaryFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	src, err := sources.Get(bf.dataID)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*CategoricalBinaryFactory).Instantiate: %s", bf.Key()))
	}

	if src.IsNumeric() {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("(*CategoricalBinaryFactory).Instantiate: %s is not categorical", bf.dataID))
	}

	return newSparseDesign(bf.dataID, oneHotSparse(src.Labels, map[string]int{bf.class: 0})), nil
}

func (bf *CategoricalBinaryFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(bf, theta, sources)
}

func (bf *CategoricalBinaryFactory) NewLearner(id string) *BaseLearner {
	return bf.newLearner(id)
}

// TensorFactory fits the row-wise Kronecker interaction of two factories.
type TensorFactory struct {
	factoryBase

	child1 Factory
	child2 Factory
}

// NewTensorFactory combines the children's designs with a row-wise Kronecker
// product and their penalties with the anisotropic penalty sum.  The design is
// sparse if either child is sparse.
func NewTensorFactory(f1, f2 Factory) (*TensorFactory, error) {
	tf := &TensorFactory{child1: f1, child2: f2}
	tf.dataID = f1.DataID() + "_" + f2.DataID()
	tf.learnerType = "tensor"

	d1, d2 := f1.DesignData(), f2.DesignData()

	binIdx, err := sharedBinning(d1, d2)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewTensorFactory: %s", tf.Key()))
	}

	dd, err := kroneckerDesign(tf.dataID, d1, d2)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewTensorFactory: %s", tf.Key()))
	}
	tf.data = dd

	if binIdx != nil {
		tf.data.setBinning(binIdx)
	}

	pen := penaltySumKronecker(penaltyOrZero(d1), penaltyOrZero(d2))
	tf.data.setPenalty(pen)

	xtxPen := &mat.Dense{}
	xtxPen.Add(tf.data.crossproduct(), pen)

	if err := tf.data.setCache(CacheCholesky, xtxPen); err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewTensorFactory: %s", tf.Key()))
	}

	return tf, nil
}

// Children returns the two child factories.
func (tf *TensorFactory) Children() (Factory, Factory) { return tf.child1, tf.child2 }

func (tf *TensorFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	dd1, err := tf.child1.Instantiate(sources)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*TensorFactory).Instantiate: %s", tf.Key()))
	}

	dd2, err := tf.child2.Instantiate(sources)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*TensorFactory).Instantiate: %s", tf.Key()))
	}

	return kroneckerDesign(tf.dataID, dd1, dd2)
}

func (tf *TensorFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(tf, theta, sources)
}

func (tf *TensorFactory) NewLearner(id string) *BaseLearner {
	return tf.newLearner(id)
}

// kroneckerDesign builds the row-wise Kronecker of two designs, sparse if
// either input is sparse.
func kroneckerDesign(dataID string, d1, d2 *DesignData) (*DesignData, error) {
	if d1.UsesSparse() || d2.UsesSparse() {
		s1, s2 := toSparseTransposed(d1), toSparseTransposed(d2)

		kron, err := rowWiseKroneckerSparse(s1, s2)
		if err != nil {
			return nil, err
		}

		return newSparseDesign(dataID, kron), nil
	}

	kron, err := rowWiseKronecker(d1.AsDense(), d2.AsDense())
	if err != nil {
		return nil, err
	}

	return newDenseDesign(dataID, kron), nil
}

// sharedBinning checks the children agree on binning and returns the common
// index (nil when neither child bins).
func sharedBinning(d1, d2 *DesignData) ([]int, error) {
	if d1.UsesBinning() != d2.UsesBinning() {
		return nil, Wrapper(ErrConfig, "binning must be applied to both children or neither")
	}

	if !d1.UsesBinning() {
		return nil, nil
	}

	k1, k2 := d1.BinningIndex(), d2.BinningIndex()
	if len(k1) != len(k2) {
		return nil, Wrapper(ErrConfig, "children bin over differing row counts")
	}

	for i := range k1 {
		if k1[i] != k2[i] {
			return nil, Wrapper(ErrConfig, "children bin with differing indices")
		}
	}

	return k1, nil
}

func penaltyOrZero(dd *DesignData) *mat.Dense {
	if dd.Penalty() != nil {
		return dd.Penalty()
	}

	p := dd.Cols()

	return mat.NewDense(p, p, nil)
}

// toSparseTransposed returns the design in transposed sparse form, converting
// a dense design if needed.
func toSparseTransposed(dd *DesignData) *sparse.CSR {
	if dd.UsesSparse() {
		return dd.AsSparse()
	}

	n, p := dd.AsDense().Dims()

	var (
		rows []int
		cols []int
		vals []float64
	)

	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if v := dd.AsDense().At(i, j); v != 0 {
				rows = append(rows, j)
				cols = append(cols, i)
				vals = append(vals, v)
			}
		}
	}

	return sparse.NewCOO(p, n, rows, cols, vals).ToCSR()
}

// toDense returns the design in dense rows x params form, converting the
// transposed sparse storage if needed.
func toDense(dd *DesignData) *mat.Dense {
	if !dd.UsesSparse() {
		return dd.AsDense()
	}

	p, n := dd.AsSparse().Dims()
	out := mat.NewDense(n, p, nil)
	dd.AsSparse().DoNonZero(func(i, j int, v float64) {
		out.Set(j, i, v)
	})

	return out
}

// CenteredFactory centers one factory's design against another, removing the
// identifiability confound of tensor-product models.
type CenteredFactory struct {
	factoryBase

	child1   Factory
	child2   Factory
	rotation *mat.Dense
}

// NewCenteredFactory rotates child1's design to be column-orthogonal to
// child2's.  The children must agree on binning, and child1 must carry a
// cholesky or inverse cache to inherit.
func NewCenteredFactory(f1, f2 Factory) (*CenteredFactory, error) {
	cf := &CenteredFactory{child1: f1, child2: f2}
	cf.dataID = f1.DataID()
	cf.learnerType = "centered"

	d1, d2 := f1.DesignData(), f2.DesignData()

	if tag := d1.CacheTag(); tag != CacheCholesky && tag != CacheInverse {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCenteredFactory: can just inherit cholesky or inverse cache types, %s has %q", f1.Key(), tag))
	}

	binIdx, err := sharedBinning(d1, d2)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewCenteredFactory: %s", cf.Key()))
	}

	x1, x2 := toDense(d1), toDense(d2)

	z, err := centerRotation(x1, x2)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("NewCenteredFactory: %s", cf.Key()))
	}
	cf.rotation = z

	design := &mat.Dense{}
	design.Mul(x1, z)

	cf.data = newDenseDesign(cf.dataID, design)
	if binIdx != nil {
		cf.data.setBinning(binIdx)
	}

	pen := rotateSym(z, penaltyOrZero(d1))
	cf.data.setPenalty(pen)

	switch d1.CacheTag() {
	case CacheCholesky:
		u := &mat.TriDense{}
		d1.cacheChol.UTo(u)

		full := &mat.Dense{}
		full.Mul(u.T(), u)

		if err := cf.data.setCache(CacheCholesky, rotateSym(z, full)); err != nil {
			return nil, Wrapper(err, fmt.Sprintf("NewCenteredFactory: %s", cf.Key()))
		}
	case CacheInverse:
		cf.data.setInverse(rotateSym(z, d1.cacheInv))
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCenteredFactory: can just inherit cholesky or inverse cache types, %s has %q", f1.Key(), d1.CacheTag()))
	}

	return cf, nil
}

// Rotation returns the centering rotation Z.
func (cf *CenteredFactory) Rotation() *mat.Dense { return cf.rotation }

// Children returns the centered factory and the factory centered against.
func (cf *CenteredFactory) Children() (Factory, Factory) { return cf.child1, cf.child2 }

func (cf *CenteredFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	dd1, err := cf.child1.Instantiate(sources)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*CenteredFactory).Instantiate: %s", cf.Key()))
	}

	design := &mat.Dense{}
	design.Mul(toDense(dd1), cf.rotation)

	return newDenseDesign(cf.dataID, design), nil
}

func (cf *CenteredFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	return linearPredictorAt(cf, theta, sources)
}

func (cf *CenteredFactory) NewLearner(id string) *BaseLearner {
	return cf.newLearner(id)
}

// rotateSym computes Z' * m * Z.
func rotateSym(z *mat.Dense, m *mat.Dense) *mat.Dense {
	mz := &mat.Dense{}
	mz.Mul(m, z)

	out := &mat.Dense{}
	out.Mul(z.T(), mz)

	return out
}

// CustomFactory wraps user-supplied instantiate, train and predict functions.
// It cannot be serialized.
type CustomFactory struct {
	factoryBase

	src *FeatureSource

	InstantiateFn func(src *FeatureSource) *mat.Dense
	TrainFn       func(residuals []float64, design *mat.Dense) []float64
	PredictFn     func(design *mat.Dense, theta []float64) []float64
}

// NewCustomFactory builds a factory from the three user functions with error
// checking.
func NewCustomFactory(src *FeatureSource, learnerType string, instantiateFn func(*FeatureSource) *mat.Dense,
	trainFn func([]float64, *mat.Dense) []float64, predictFn func(*mat.Dense, []float64) []float64) (*CustomFactory, error) {
	if instantiateFn == nil || trainFn == nil || predictFn == nil {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewCustomFactory: all three functions must be set for %s", src.DataID))
	}

	cf := &CustomFactory{src: src, InstantiateFn: instantiateFn, TrainFn: trainFn, PredictFn: predictFn}
	cf.dataID = src.DataID
	cf.learnerType = learnerType
	cf.data = newDenseDesign(src.DataID, instantiateFn(src))

	return cf, nil
}

func (cf *CustomFactory) Instantiate(sources SourceMap) (*DesignData, error) {
	src, err := sources.Get(cf.dataID)
	if err != nil {
		return nil, Wrapper(err, fmt.Sprintf("(*CustomFactory).Instantiate: %s", cf.Key()))
	}

	return newDenseDesign(cf.dataID, cf.InstantiateFn(src)), nil
}

func (cf *CustomFactory) LinearPredictor(theta []float64) []float64 {
	pred := cf.PredictFn(cf.data.AsDense(), theta)

	return pred
}

func (cf *CustomFactory) LinearPredictorAt(theta []float64, sources SourceMap) ([]float64, error) {
	dd, err := cf.Instantiate(sources)
	if err != nil {
		return nil, err
	}

	return cf.PredictFn(dd.AsDense(), theta), nil
}

func (cf *CustomFactory) NewLearner(id string) *BaseLearner {
	bl := cf.newLearner(id)
	bl.customTrain = func(residuals []float64) ([]float64, error) {
		return cf.TrainFn(residuals, cf.data.AsDense()), nil
	}
	bl.customPredict = func(theta []float64) []float64 {
		return cf.PredictFn(cf.data.AsDense(), theta)
	}

	return bl
}
