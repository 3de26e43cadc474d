package coboost

// logger.go has the composable training loggers.  Every logger records one
// value per iteration; any logger flagged as stopper may veto continuation.

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Logger observes every completed boosting iteration and may stop training.
type Logger interface {
	// ID is the unique identifier within a LoggerList.
	ID() string
	// IsStopper is true if the logger participates in the stop decision.
	IsStopper() bool
	// LogStep records the iteration that just completed.
	LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error
	// ReachedStopCriteria is true if the logger's stop condition holds.  It is
	// always false for non-stoppers.
	ReachedStopCriteria() bool
	// LoggedData returns the append-only log vector.
	LoggedData() []float64
	// Clear drops the logged data before a retraining run.
	Clear()
	// Status is a short console string of the logger's latest value.
	Status() string
}

// IterationLogger counts iterations and stops at a maximum.
type IterationLogger struct {
	id         string
	stopper    bool
	maxIter    int
	iterations []float64
}

// NewIterationLogger creates an iteration logger stopping at maxIter.
func NewIterationLogger(id string, isStopper bool, maxIter int) *IterationLogger {
	return &IterationLogger{id: id, stopper: isStopper, maxIter: maxIter}
}

func (lg *IterationLogger) ID() string { return lg.id }

func (lg *IterationLogger) IsStopper() bool { return lg.stopper }

func (lg *IterationLogger) LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error {
	lg.iterations = append(lg.iterations, float64(iter))

	return nil
}

func (lg *IterationLogger) ReachedStopCriteria() bool {
	if !lg.stopper || len(lg.iterations) == 0 {
		return false
	}

	return lg.iterations[len(lg.iterations)-1] >= float64(lg.maxIter)
}

func (lg *IterationLogger) LoggedData() []float64 { return lg.iterations }

func (lg *IterationLogger) Clear() { lg.iterations = nil }

func (lg *IterationLogger) Status() string {
	if len(lg.iterations) == 0 {
		return fmt.Sprintf("0/%d", lg.maxIter)
	}

	return fmt.Sprintf("%d/%d", int(lg.iterations[len(lg.iterations)-1]), lg.maxIter)
}

// UpdateMaxIterations raises the iteration cap before continued training.
func (lg *IterationLogger) UpdateMaxIterations(maxIter int) { lg.maxIter = maxIter }

// Time units of a TimeLogger.
const (
	TimeMinutes      = "minutes"
	TimeSeconds      = "seconds"
	TimeMicroseconds = "microseconds"
)

// TimeLogger tracks elapsed wall time and stops at a cap.  On retraining the
// clock restarts and the drift keeps the logged values cumulative.
type TimeLogger struct {
	id      string
	stopper bool
	maxTime float64
	unit    string

	initTime     time.Time
	started      bool
	retrainDrift float64
	elapsed      []float64
}

// NewTimeLogger creates a time logger with the given unit, one of minutes,
// seconds or microseconds.
func NewTimeLogger(id string, isStopper bool, maxTime float64, unit string) (*TimeLogger, error) {
	switch unit {
	case TimeMinutes, TimeSeconds, TimeMicroseconds:
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("NewTimeLogger: time unit has to be one of 'microseconds', 'seconds' or 'minutes', got %q", unit))
	}

	return &TimeLogger{id: id, stopper: isStopper, maxTime: maxTime, unit: unit}, nil
}

func (lg *TimeLogger) ID() string { return lg.id }

func (lg *TimeLogger) IsStopper() bool { return lg.stopper }

func (lg *TimeLogger) LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error {
	if !lg.started {
		lg.initTime = time.Now()
		lg.started = true
	}

	since := time.Since(lg.initTime)

	var interim float64
	switch lg.unit {
	case TimeMinutes:
		interim = since.Minutes()
	case TimeSeconds:
		interim = since.Seconds()
	case TimeMicroseconds:
		interim = float64(since.Microseconds())
	}

	lg.elapsed = append(lg.elapsed, interim+lg.retrainDrift)

	return nil
}

func (lg *TimeLogger) ReachedStopCriteria() bool {
	if !lg.stopper || len(lg.elapsed) == 0 {
		return false
	}

	return lg.elapsed[len(lg.elapsed)-1] >= lg.maxTime
}

func (lg *TimeLogger) LoggedData() []float64 { return lg.elapsed }

func (lg *TimeLogger) Clear() { lg.elapsed = nil }

func (lg *TimeLogger) Status() string {
	if len(lg.elapsed) == 0 {
		return lg.id + " = 0"
	}

	return fmt.Sprintf("%s = %.2g", lg.id, lg.elapsed[len(lg.elapsed)-1])
}

// Rebase restarts the clock for continued training, folding the elapsed time
// into the drift so the log stays cumulative.
func (lg *TimeLogger) Rebase() {
	lg.initTime = time.Now()
	if len(lg.elapsed) > 0 {
		lg.retrainDrift += lg.elapsed[len(lg.elapsed)-1]
	}
}

// InbagRiskLogger tracks the empirical risk on the training data and stops
// after `patience` consecutive iterations with relative improvement below eps.
type InbagRiskLogger struct {
	id       string
	stopper  bool
	loss     Loss
	eps      float64
	patience int

	risk          []float64
	countPatience int
}

// NewInbagRiskLogger creates an in-bag risk logger.  The loss may differ from
// the training loss.
func NewInbagRiskLogger(id string, isStopper bool, loss Loss, eps float64, patience int) *InbagRiskLogger {
	return &InbagRiskLogger{id: id, stopper: isStopper, loss: loss, eps: eps, patience: patience}
}

func (lg *InbagRiskLogger) ID() string { return lg.id }

func (lg *InbagRiskLogger) IsStopper() bool { return lg.stopper }

func (lg *InbagRiskLogger) LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error {
	lg.risk = append(lg.risk, resp.EmpiricalRisk(lg.loss))

	return nil
}

func (lg *InbagRiskLogger) ReachedStopCriteria() bool {
	if !lg.stopper || len(lg.risk) < 2 {
		return false
	}

	prev, last := lg.risk[len(lg.risk)-2], lg.risk[len(lg.risk)-1]

	if (prev-last)/prev <= lg.eps {
		lg.countPatience++
	} else {
		lg.countPatience = 0
	}

	return lg.countPatience == lg.patience
}

func (lg *InbagRiskLogger) LoggedData() []float64 { return lg.risk }

func (lg *InbagRiskLogger) Clear() {
	lg.risk = nil
	lg.countPatience = 0
}

func (lg *InbagRiskLogger) Status() string {
	if len(lg.risk) == 0 {
		return lg.id + " = NA"
	}

	return fmt.Sprintf("%s = %.4g", lg.id, lg.risk[len(lg.risk)-1])
}

// OobRiskLogger tracks the risk on held-out data.  The held-out prediction is
// advanced incrementally: per iteration the selected factory's design is
// instantiated on the held-out sources (cached on first sight) and the
// winner's fit is added through the optimizer's update rule.
type OobRiskLogger struct {
	id       string
	stopper  bool
	loss     Loss
	eps      float64
	patience int

	oobSources SourceMap
	oobResp    *Response
	instCache  map[string]*DesignData

	risk          []float64
	countPatience int
}

// NewOobRiskLogger creates an out-of-bag risk logger on the held-out sources
// and response.
func NewOobRiskLogger(id string, isStopper bool, loss Loss, eps float64, patience int, oobSources SourceMap, oobResp *Response) *OobRiskLogger {
	return &OobRiskLogger{
		id:         id,
		stopper:    isStopper,
		loss:       loss,
		eps:        eps,
		patience:   patience,
		oobSources: oobSources,
		oobResp:    oobResp,
		instCache:  make(map[string]*DesignData),
	}
}

func (lg *OobRiskLogger) ID() string { return lg.id }

func (lg *OobRiskLogger) IsStopper() bool { return lg.stopper }

func (lg *OobRiskLogger) LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error {
	if iter == 1 {
		if err := lg.oobResp.ConstantInitialization(lg.loss); err != nil {
			return Wrapper(err, fmt.Sprintf("(*OobRiskLogger).LogStep: %s", lg.id))
		}

		lg.oobResp.InitializePrediction()
	}

	dd, ok := lg.instCache[winner.FactoryKey()]
	if !ok {
		f, err := factories.Get(winner.FactoryKey())
		if err != nil {
			return Wrapper(err, fmt.Sprintf("(*OobRiskLogger).LogStep: %s", lg.id))
		}

		dd, err = f.Instantiate(lg.oobSources)
		if err != nil {
			return Wrapper(err, fmt.Sprintf("(*OobRiskLogger).LogStep: %s", lg.id))
		}

		lg.instCache[winner.FactoryKey()] = dd
	}

	oobPred := winner.PredictAt(dd)
	if err := lg.oobResp.UpdatePrediction(opt.ApplyUpdate(learningRate, step, oobPred)); err != nil {
		return Wrapper(err, fmt.Sprintf("(*OobRiskLogger).LogStep: %s", lg.id))
	}

	lg.risk = append(lg.risk, lg.oobResp.EmpiricalRisk(lg.loss))

	return nil
}

func (lg *OobRiskLogger) ReachedStopCriteria() bool {
	if !lg.stopper || len(lg.risk) < 2 {
		return false
	}

	prev, last := lg.risk[len(lg.risk)-2], lg.risk[len(lg.risk)-1]

	if (prev-last)/prev <= lg.eps {
		lg.countPatience++
	} else {
		lg.countPatience = 0
	}

	return lg.countPatience == lg.patience
}

func (lg *OobRiskLogger) LoggedData() []float64 { return lg.risk }

func (lg *OobRiskLogger) Clear() {
	lg.risk = nil
	lg.countPatience = 0
}

func (lg *OobRiskLogger) Status() string {
	if len(lg.risk) == 0 {
		return lg.id + " = NA"
	}

	return fmt.Sprintf("%s = %.4g", lg.id, lg.risk[len(lg.risk)-1])
}

// OobPrediction returns the held-out prediction, transformed to the response
// scale if asResponse.
func (lg *OobRiskLogger) OobPrediction(asResponse bool) []float64 {
	return lg.oobResp.Prediction(lg.loss, asResponse)
}

// LoggerList is the ordered collection of loggers of one training run.
type LoggerList struct {
	ids        []string
	m          map[string]Logger
	numStopper int
}

// NewLoggerList registers the given loggers in order.
func NewLoggerList(loggers ...Logger) (*LoggerList, error) {
	ll := &LoggerList{m: make(map[string]Logger)}

	for _, lg := range loggers {
		if err := ll.Register(lg); err != nil {
			return nil, err
		}
	}

	return ll, nil
}

// Register appends a logger; ids must be unique.
func (ll *LoggerList) Register(lg Logger) error {
	if _, ok := ll.m[lg.ID()]; ok {
		return Wrapper(ErrConfig, fmt.Sprintf("(*LoggerList).Register: duplicate logger id %s", lg.ID()))
	}

	ll.ids = append(ll.ids, lg.ID())
	ll.m[lg.ID()] = lg

	if lg.IsStopper() {
		ll.numStopper++
	}

	return nil
}

// Get returns the logger with the given id.
func (ll *LoggerList) Get(id string) (Logger, error) {
	lg, ok := ll.m[id]
	if !ok {
		return nil, Wrapper(ErrLookup, fmt.Sprintf("(*LoggerList).Get: logger %s not registered", id))
	}

	return lg, nil
}

// IDs returns the logger ids in registration order.
func (ll *LoggerList) IDs() []string { return ll.ids }

// Len is the number of registered loggers.
func (ll *LoggerList) Len() int { return len(ll.ids) }

// LogStep forwards the completed iteration to every logger in order.
func (ll *LoggerList) LogStep(iter int, resp *Response, winner *BaseLearner, learningRate, step float64, opt Optimizer, factories *FactoryList) error {
	for _, id := range ll.ids {
		if err := ll.m[id].LogStep(iter, resp, winner, learningRate, step, opt, factories); err != nil {
			return Wrapper(err, "(*LoggerList).LogStep")
		}
	}

	return nil
}

// ShouldStop is true iff all stoppers fired (global) or any stopper fired
// (not global).  Without stoppers it is always false.
func (ll *LoggerList) ShouldStop(global bool) bool {
	if ll.numStopper == 0 {
		return false
	}

	fired := 0
	for _, id := range ll.ids {
		if ll.m[id].ReachedStopCriteria() {
			fired++
		}
	}

	if global {
		return fired == ll.numStopper
	}

	return fired >= 1
}

// Clear drops every logger's data.
func (ll *LoggerList) Clear() {
	for _, id := range ll.ids {
		ll.m[id].Clear()
	}
}

// LoggerData aggregates the logged vectors into one matrix, a column per
// logger in registration order.  Shorter logs are padded with zeros.
func (ll *LoggerList) LoggerData() ([]string, *mat.Dense) {
	rows := 0
	for _, id := range ll.ids {
		if n := len(ll.m[id].LoggedData()); n > rows {
			rows = n
		}
	}

	if rows == 0 || len(ll.ids) == 0 {
		return ll.ids, nil
	}

	out := mat.NewDense(rows, len(ll.ids), nil)
	for c, id := range ll.ids {
		for r, v := range ll.m[id].LoggedData() {
			out.Set(r, c, v)
		}
	}

	return ll.ids, out
}

// Status joins the loggers' status strings for the iteration trace.
func (ll *LoggerList) Status() string {
	s := ""
	for i, id := range ll.ids {
		if i > 0 {
			s += ": "
		}

		s += ll.m[id].Status()
	}

	return s
}
