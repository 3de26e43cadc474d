package coboost

// boost.go wires response, optimizer, factories, tracker and loggers into the
// boosting coordinator.

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Boost is the boosting coordinator.  It owns the response, the tracker, the
// risk history and the logger list; factories are shared read-only.
type Boost struct {
	resp      *Response
	loss      Loss
	opt       Optimizer
	factories *FactoryList
	loggers   *LoggerList
	tracker   *Tracker

	lr        float64
	stopIfAll bool
	trace     int

	currentIter int
	trained     bool
	risk        []float64
}

// BoostOpts functions set options on a Boost.
type BoostOpts func(b *Boost)

// WithLearningRate sets the shrinkage, in (0, 1].
func WithLearningRate(lr float64) BoostOpts {
	return func(b *Boost) {
		b.lr = lr
	}
}

// WithStopIfAll requires all stoppers to fire before training stops.  The
// default stops on the first stopper.
func WithStopIfAll(stopIfAll bool) BoostOpts {
	return func(b *Boost) {
		b.stopIfAll = stopIfAll
	}
}

// WithTrace prints the logger status every trace iterations while training.
func WithTrace(trace int) BoostOpts {
	return func(b *Boost) {
		b.trace = trace
	}
}

// NewBoost creates a coordinator with error checking.  The default learning
// rate is 0.05.
func NewBoost(resp *Response, loss Loss, opt Optimizer, factories *FactoryList, loggers *LoggerList, opts ...BoostOpts) (*Boost, error) {
	if factories == nil || factories.Len() == 0 {
		return nil, Wrapper(ErrConfig, "NewBoost: no factories registered")
	}

	if loggers == nil {
		var err error
		if loggers, err = NewLoggerList(); err != nil {
			return nil, err
		}
	}

	b := &Boost{
		resp:      resp,
		loss:      loss,
		opt:       opt,
		factories: factories,
		loggers:   loggers,
		tracker:   NewTracker(),
		lr:        0.05,
	}

	for _, o := range opts {
		o(b)
	}

	if b.lr <= 0 || b.lr > 1 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewBoost: learning rate %g not in (0, 1]", b.lr))
	}

	for _, key := range factories.Keys() {
		f, _ := factories.Get(key)
		if f.DesignData().Rows() != resp.Len() {
			return nil, Wrapper(ErrConfig, fmt.Sprintf("NewBoost: factory %s built on %d rows, response has %d", key, f.DesignData().Rows(), resp.Len()))
		}
	}

	return b, nil
}

// Train runs the boosting loop up to iteration m, or earlier if the logger
// list stops it.
func (b *Boost) Train(m int) error {
	if b.currentIter == 0 {
		if err := b.resp.ConstantInitialization(b.loss); err != nil {
			return Wrapper(err, "(*Boost).Train")
		}

		b.resp.InitializePrediction()
		b.risk = []float64{b.resp.EmpiricalRisk(b.loss)}
	}

	if err := b.loop(m); err != nil {
		return err
	}

	b.trained = true

	if Verbose && b.trace > 0 {
		fmt.Printf("trained %d iterations, final risk = %.6g\n", b.currentIter, b.risk[len(b.risk)-1])
	}

	return nil
}

// loop is the shared training loop of Train and ContinueTraining.
func (b *Boost) loop(m int) error {
	for b.currentIter < m && !b.loggers.ShouldStop(b.stopIfAll) {
		b.resp.UpdatePseudoResiduals(b.loss)

		winner, err := b.opt.FindBest(strconv.Itoa(b.currentIter+1), b.resp, b.factories)
		if err != nil {
			return Wrapper(err, "(*Boost).Train")
		}

		pred := winner.Predict()
		step := b.opt.StepSize(b.loss, b.resp, pred)

		if err := b.resp.UpdatePrediction(b.opt.ApplyUpdate(b.lr, step, pred)); err != nil {
			return Wrapper(err, "(*Boost).Train")
		}

		b.tracker.Insert(winner, b.lr*step)

		b.currentIter++
		b.risk = append(b.risk, b.resp.EmpiricalRisk(b.loss))

		if err := b.loggers.LogStep(b.currentIter, b.resp, winner, b.lr, step, b.opt, b.factories); err != nil {
			return Wrapper(err, "(*Boost).Train")
		}

		if Verbose && b.trace > 0 && b.currentIter%b.trace == 0 {
			fmt.Printf("%s: risk = %.6g\n", b.loggers.Status(), b.risk[len(b.risk)-1])
		}
	}

	return nil
}

// ContinueTraining resumes the loop for mAdditional more iterations.  With a
// nil logger list the registered loggers carry on: time loggers re-base their
// clock and iteration stoppers raise their cap; otherwise the new list takes
// over.
func (b *Boost) ContinueTraining(newLoggers *LoggerList, mAdditional int) error {
	if !b.trained {
		return Wrapper(ErrConfig, "(*Boost).ContinueTraining: model is not trained")
	}

	// a SetToIteration may have rewound the model; drop the stale tail
	if err := b.tracker.Truncate(b.currentIter); err != nil {
		return Wrapper(err, "(*Boost).ContinueTraining")
	}

	target := b.currentIter + mAdditional

	switch newLoggers {
	case nil:
		for _, id := range b.loggers.IDs() {
			lg, _ := b.loggers.Get(id)

			switch l := lg.(type) {
			case *TimeLogger:
				l.Rebase()
			case *IterationLogger:
				l.UpdateMaxIterations(target)
			}
		}
	default:
		b.loggers = newLoggers
	}

	return b.loop(target)
}

// Predict sums the accumulated effects on new sources, starting from the
// offset, and applies the response transform if asResponse.
func (b *Boost) Predict(sources SourceMap, asResponse bool) ([]float64, error) {
	return b.predictWithParams(sources, b.tracker.Parameters(), asResponse)
}

// PredictAtIteration replays the first k iterations and predicts on new
// sources with that model state.
func (b *Boost) PredictAtIteration(sources SourceMap, k int, asResponse bool) ([]float64, error) {
	params, err := b.tracker.ParametersAtIteration(k)
	if err != nil {
		return nil, Wrapper(err, "(*Boost).PredictAtIteration")
	}

	return b.predictWithParams(sources, params, asResponse)
}

func (b *Boost) predictWithParams(sources SourceMap, params map[string][]float64, asResponse bool) ([]float64, error) {
	var pred []float64

	for _, src := range sources {
		pred = make([]float64, src.Len())
		break
	}

	if pred == nil {
		return nil, Wrapper(ErrData, "(*Boost).Predict: empty source map")
	}

	for i := range pred {
		pred[i] = b.resp.Offset
	}

	for _, key := range b.factories.Keys() {
		theta, ok := params[key]
		if !ok {
			continue
		}

		f, err := b.factories.Get(key)
		if err != nil {
			return nil, Wrapper(err, "(*Boost).Predict")
		}

		effect, err := f.LinearPredictorAt(theta, sources)
		if err != nil {
			return nil, Wrapper(err, "(*Boost).Predict")
		}

		if len(effect) != len(pred) {
			return nil, Wrapper(ErrData, fmt.Sprintf("(*Boost).Predict: effect %s has %d rows, expected %d", key, len(effect), len(pred)))
		}

		for i, v := range effect {
			pred[i] += v
		}
	}

	if asResponse {
		return b.loss.ResponseTransform(pred), nil
	}

	return pred, nil
}

// SetToIteration rewinds (or forwards) the model state to iteration k: the
// tracker map, the in-sample prediction and the risk history prefix.
func (b *Boost) SetToIteration(k int) error {
	if err := b.tracker.SetToIteration(k); err != nil {
		return Wrapper(err, "(*Boost).SetToIteration")
	}

	b.currentIter = k
	b.resp.InitializePrediction()

	params := b.tracker.Parameters()

	for _, key := range b.factories.Keys() {
		theta, ok := params[key]
		if !ok {
			continue
		}

		f, err := b.factories.Get(key)
		if err != nil {
			return Wrapper(err, "(*Boost).SetToIteration")
		}

		if err := b.resp.UpdatePrediction(f.LinearPredictor(theta)); err != nil {
			return Wrapper(err, "(*Boost).SetToIteration")
		}
	}

	if len(b.risk) > k+1 {
		b.risk = b.risk[:k+1]
	}

	return nil
}

// CurrentIteration is the iteration of the current model state.
func (b *Boost) CurrentIteration() int { return b.currentIter }

// IsTrained is true after a successful Train.
func (b *Boost) IsTrained() bool { return b.trained }

// Offset is the constant initialization f0.
func (b *Boost) Offset() float64 { return b.resp.Offset }

// LearningRate returns the shrinkage.
func (b *Boost) LearningRate() float64 { return b.lr }

// RiskHistory returns the in-bag risk per iteration, starting with the risk of
// the offset-only model.
func (b *Boost) RiskHistory() []float64 { return b.risk }

// SelectedLearners returns the winning factory key per iteration.
func (b *Boost) SelectedLearners() []string { return b.tracker.SelectedKeys() }

// Parameters returns the accumulated coefficient map.
func (b *Boost) Parameters() map[string][]float64 { return b.tracker.Parameters() }

// ParametersAtIteration replays the first k iterations into a fresh map.
func (b *Boost) ParametersAtIteration(k int) (map[string][]float64, error) {
	return b.tracker.ParametersAtIteration(k)
}

// ParameterMatrix returns the accumulated coefficients of every iteration with
// stable column names.
func (b *Boost) ParameterMatrix() ([]string, *mat.Dense) {
	return b.tracker.ParameterMatrix()
}

// InSamplePrediction returns the training prediction, on the response scale if
// asResponse.
func (b *Boost) InSamplePrediction(asResponse bool) []float64 {
	return b.resp.Prediction(b.loss, asResponse)
}

// Loggers returns the current logger list.
func (b *Boost) Loggers() *LoggerList { return b.loggers }

// Response returns the training response.
func (b *Boost) Response() *Response { return b.resp }

// Factories returns the factory registry.
func (b *Boost) Factories() *FactoryList { return b.factories }

// Summary prints a short description of the trained model.
func (b *Boost) Summary() {
	if !b.trained {
		fmt.Println("model is not trained")
		return
	}

	fmt.Printf("component-wise boosting model\n")
	fmt.Printf("\toffset          %f\n", b.resp.Offset)
	fmt.Printf("\titerations      %d\n", b.currentIter)
	fmt.Printf("\tlearning rate   %f\n", b.lr)
	fmt.Printf("\tinitial risk    %f\n", b.risk[0])
	fmt.Printf("\tfinal risk      %f\n", b.risk[len(b.risk)-1])

	counts := make(map[string]int)
	for _, key := range b.tracker.SelectedKeys() {
		counts[key]++
	}

	fmt.Println("\tselected base-learners:")
	for _, key := range b.factories.Keys() {
		if counts[key] > 0 {
			fmt.Printf("\t\t%-30s %d\n", key, counts[key])
		}
	}
}
