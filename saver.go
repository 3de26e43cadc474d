package coboost

// saver.go has the JSON form of the model components.  Objects carry a
// top-level Class tag; matrix and vector fields use an ascii payload whose
// loading is the exact inverse of saving.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// matJSON is the wire form of dense matrices, sparse matrices and index
// vectors.
type matJSON struct {
	Type string `json:"type"`
	Mat  string `json:"mat"`
}

func formatFloats(sb *strings.Builder, vals []float64) {
	for _, v := range vals {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
}

// denseToJSON encodes a dense matrix as "rows cols v11 v12 ..." row-major.
func denseToJSON(m *mat.Dense) matJSON {
	r, c := m.Dims()

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(r))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(c))

	for i := 0; i < r; i++ {
		formatFloats(&sb, m.RawRowView(i))
	}

	return matJSON{Type: "arma::mat", Mat: sb.String()}
}

func jsonToDense(mj matJSON) (*mat.Dense, error) {
	if mj.Type != "arma::mat" {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("jsonToDense: unexpected matrix type %q", mj.Type))
	}

	fields := strings.Fields(mj.Mat)
	if len(fields) < 2 {
		return nil, Wrapper(ErrConfig, "jsonToDense: malformed matrix payload")
	}

	r, e1 := strconv.Atoi(fields[0])
	c, e2 := strconv.Atoi(fields[1])

	if e1 != nil || e2 != nil || len(fields) != 2+r*c {
		return nil, Wrapper(ErrConfig, "jsonToDense: malformed matrix payload")
	}

	data := make([]float64, r*c)
	for i := range data {
		v, err := strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return nil, Wrapper(ErrConfig, fmt.Sprintf("jsonToDense: bad value %q", fields[2+i]))
		}

		data[i] = v
	}

	return mat.NewDense(r, c, data), nil
}

// vecToJSON encodes a vector as an n x 1 dense matrix.
func vecToJSON(v []float64) matJSON {
	return denseToJSON(mat.NewDense(len(v), 1, append([]float64(nil), v...)))
}

func jsonToVec(mj matJSON) ([]float64, error) {
	m, err := jsonToDense(mj)
	if err != nil {
		return nil, err
	}

	r, c := m.Dims()
	if c != 1 {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("jsonToVec: expected one column, got %d", c))
	}

	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, 0)
	}

	return out, nil
}

// uvecToJSON encodes an index vector.
func uvecToJSON(k []int) matJSON {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(k)))

	for _, v := range k {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(v))
	}

	return matJSON{Type: "arma::uvec", Mat: sb.String()}
}

func jsonToUvec(mj matJSON) ([]int, error) {
	if mj.Type != "arma::uvec" {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("jsonToUvec: unexpected type %q", mj.Type))
	}

	fields := strings.Fields(mj.Mat)
	if len(fields) < 1 {
		return nil, Wrapper(ErrConfig, "jsonToUvec: malformed payload")
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || len(fields) != 1+n {
		return nil, Wrapper(ErrConfig, "jsonToUvec: malformed payload")
	}

	out := make([]int, n)
	for i := range out {
		v, e := strconv.Atoi(fields[1+i])
		if e != nil {
			return nil, Wrapper(ErrConfig, "jsonToUvec: malformed payload")
		}

		out[i] = v
	}

	return out, nil
}

// sparseToJSON encodes a sparse matrix in coordinate form:
// "rows cols nnz (i j v)...".
func sparseToJSON(s *sparse.CSR) matJSON {
	r, c := s.Dims()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d %d %d", r, c, s.NNZ()))

	s.DoNonZero(func(i, j int, v float64) {
		sb.WriteString(fmt.Sprintf(" %d %d %s", i, j, strconv.FormatFloat(v, 'g', -1, 64)))
	})

	return matJSON{Type: "arma::sp_mat", Mat: sb.String()}
}

func jsonToSparse(mj matJSON) (*sparse.CSR, error) {
	if mj.Type != "arma::sp_mat" {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("jsonToSparse: unexpected type %q", mj.Type))
	}

	fields := strings.Fields(mj.Mat)
	if len(fields) < 3 {
		return nil, Wrapper(ErrConfig, "jsonToSparse: malformed payload")
	}

	r, e1 := strconv.Atoi(fields[0])
	c, e2 := strconv.Atoi(fields[1])
	nnz, e3 := strconv.Atoi(fields[2])

	if e1 != nil || e2 != nil || e3 != nil || len(fields) != 3+3*nnz {
		return nil, Wrapper(ErrConfig, "jsonToSparse: malformed payload")
	}

	rows := make([]int, nnz)
	cols := make([]int, nnz)
	vals := make([]float64, nnz)

	for t := 0; t < nnz; t++ {
		i, ei := strconv.Atoi(fields[3+3*t])
		j, ej := strconv.Atoi(fields[4+3*t])
		v, ev := strconv.ParseFloat(fields[5+3*t], 64)

		if ei != nil || ej != nil || ev != nil {
			return nil, Wrapper(ErrConfig, "jsonToSparse: malformed payload")
		}

		rows[t], cols[t], vals[t] = i, j, v
	}

	return sparse.NewCOO(r, c, rows, cols, vals).ToCSR(), nil
}

// lossJSON is the json-friendly form of the built-in losses.
type lossJSON struct {
	Class     string  `json:"Class"`
	Offset    float64 `json:"offset"`
	UseOffset bool    `json:"use_offset"`
}

// LossToJSON serializes a built-in loss.  Custom losses cannot be serialized.
func LossToJSON(l Loss) (json.RawMessage, error) {
	if l.Name() == "CustomLoss" {
		return nil, Wrapper(ErrConfig, "LossToJSON: custom losses cannot be serialized")
	}

	off, use := l.customOffset()

	return json.Marshal(lossJSON{Class: l.Name(), Offset: off, UseOffset: use})
}

// LossFromJSON is the inverse of LossToJSON.
func LossFromJSON(js json.RawMessage) (Loss, error) {
	var lj lossJSON
	if err := json.Unmarshal(js, &lj); err != nil {
		return nil, Wrapper(ErrConfig, "LossFromJSON: "+err.Error())
	}

	switch lj.Class {
	case "QuadraticLoss":
		if lj.UseOffset {
			return NewQuadraticLossWithOffset(lj.Offset), nil
		}
		return NewQuadraticLoss(), nil
	case "AbsoluteLoss":
		if lj.UseOffset {
			return NewAbsoluteLossWithOffset(lj.Offset), nil
		}
		return NewAbsoluteLoss(), nil
	case "BinomialLoss":
		if lj.UseOffset {
			return NewBinomialLossWithOffset(lj.Offset), nil
		}
		return NewBinomialLoss(), nil
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("LossFromJSON: no known class %q", lj.Class))
	}
}

// responseJSON is the json-friendly form of a Response.
type responseJSON struct {
	Class       string  `json:"Class"`
	Task        string  `json:"task"`
	Y           matJSON `json:"y"`
	Offset      float64 `json:"offset"`
	Prediction  matJSON `json:"prediction"`
	Initialized bool    `json:"initialized"`
}

// ResponseToJSON serializes a response with its current prediction.
func ResponseToJSON(r *Response) (json.RawMessage, error) {
	return json.Marshal(responseJSON{
		Class:       "Response",
		Task:        r.Task,
		Y:           vecToJSON(r.Y),
		Offset:      r.Offset,
		Prediction:  vecToJSON(r.prediction),
		Initialized: r.initialized,
	})
}

// ResponseFromJSON is the inverse of ResponseToJSON.
func ResponseFromJSON(js json.RawMessage) (*Response, error) {
	var rj responseJSON
	if err := json.Unmarshal(js, &rj); err != nil {
		return nil, Wrapper(ErrConfig, "ResponseFromJSON: "+err.Error())
	}

	y, err := jsonToVec(rj.Y)
	if err != nil {
		return nil, Wrapper(err, "ResponseFromJSON")
	}

	pred, err := jsonToVec(rj.Prediction)
	if err != nil {
		return nil, Wrapper(err, "ResponseFromJSON")
	}

	r := newResponse(rj.Task, y)
	r.Offset = rj.Offset
	r.initialized = rj.Initialized
	copy(r.prediction, pred)

	return r, nil
}

// trackerJSON is the json-friendly form of the tracker.
type trackerJSON struct {
	Class  string    `json:"Class"`
	Keys   []string  `json:"keys"`
	Deltas []matJSON `json:"deltas"`
}

// TrackerToJSON serializes the per-step delta log.
func TrackerToJSON(tr *Tracker) (json.RawMessage, error) {
	tj := trackerJSON{Class: "Tracker"}
	for _, e := range tr.entries {
		tj.Keys = append(tj.Keys, e.key)
		tj.Deltas = append(tj.Deltas, vecToJSON(e.delta))
	}

	return json.Marshal(tj)
}

// TrackerFromJSON is the inverse of TrackerToJSON.  The accumulated map is the
// sum over all entries; rewind with SetToIteration afterwards if needed.
func TrackerFromJSON(js json.RawMessage) (*Tracker, error) {
	var tj trackerJSON
	if err := json.Unmarshal(js, &tj); err != nil {
		return nil, Wrapper(ErrConfig, "TrackerFromJSON: "+err.Error())
	}

	if len(tj.Keys) != len(tj.Deltas) {
		return nil, Wrapper(ErrConfig, "TrackerFromJSON: keys and deltas differ in length")
	}

	tr := NewTracker()

	for i, key := range tj.Keys {
		delta, err := jsonToVec(tj.Deltas[i])
		if err != nil {
			return nil, Wrapper(err, "TrackerFromJSON")
		}

		tr.entries = append(tr.entries, trackEntry{key: key, delta: delta})

		acc, ok := tr.params[key]
		if !ok {
			acc = make([]float64, len(delta))
			tr.params[key] = acc
		}

		for j, d := range delta {
			acc[j] += d
		}
	}

	return tr, nil
}

// optimizerJSON is the json-friendly form of the optimizers.
type optimizerJSON struct {
	Class string  `json:"Class"`
	Steps matJSON `json:"steps"`
}

// OptimizerToJSON serializes the optimizer kind and recorded step sizes.
func OptimizerToJSON(o Optimizer) (json.RawMessage, error) {
	switch opt := o.(type) {
	case *CoordinateDescentLineSearch:
		return json.Marshal(optimizerJSON{Class: "CoordinateDescentLineSearch", Steps: vecToJSON(opt.steps)})
	case *CoordinateDescent:
		return json.Marshal(optimizerJSON{Class: "CoordinateDescent"})
	default:
		return nil, Wrapper(ErrConfig, "OptimizerToJSON: unknown optimizer")
	}
}

// OptimizerFromJSON is the inverse of OptimizerToJSON.
func OptimizerFromJSON(js json.RawMessage) (Optimizer, error) {
	var oj optimizerJSON
	if err := json.Unmarshal(js, &oj); err != nil {
		return nil, Wrapper(ErrConfig, "OptimizerFromJSON: "+err.Error())
	}

	switch oj.Class {
	case "CoordinateDescent":
		return NewCoordinateDescent(false), nil
	case "CoordinateDescentLineSearch":
		opt := NewCoordinateDescentLineSearch(false)
		if oj.Steps.Mat != "" {
			steps, err := jsonToVec(oj.Steps)
			if err != nil {
				return nil, Wrapper(err, "OptimizerFromJSON")
			}
			opt.steps = steps
		}

		return opt, nil
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("OptimizerFromJSON: no known class %q", oj.Class))
	}
}

// loggerJSON is the json-friendly form of the loggers.  Kind-specific fields
// are zero for the other kinds.
type loggerJSON struct {
	Class     string  `json:"Class"`
	ID        string  `json:"id"`
	IsStopper bool    `json:"is_stopper"`
	Logged    matJSON `json:"logged"`

	MaxIter int `json:"max_iter,omitempty"`

	MaxTime      float64 `json:"max_time,omitempty"`
	TimeUnit     string  `json:"time_unit,omitempty"`
	RetrainDrift float64 `json:"retrain_drift,omitempty"`

	Loss          json.RawMessage `json:"loss,omitempty"`
	Eps           float64         `json:"eps,omitempty"`
	Patience      int             `json:"patience,omitempty"`
	CountPatience int             `json:"count_patience,omitempty"`

	OobSources  []json.RawMessage `json:"oob_sources,omitempty"`
	OobResponse json.RawMessage   `json:"oob_response,omitempty"`
}

// LoggerToJSON serializes one logger with its logged data.
func LoggerToJSON(lg Logger) (json.RawMessage, error) {
	switch l := lg.(type) {
	case *IterationLogger:
		return json.Marshal(loggerJSON{Class: "IterationLogger", ID: l.id, IsStopper: l.stopper, Logged: vecToJSON(l.iterations), MaxIter: l.maxIter})
	case *TimeLogger:
		return json.Marshal(loggerJSON{Class: "TimeLogger", ID: l.id, IsStopper: l.stopper, Logged: vecToJSON(l.elapsed),
			MaxTime: l.maxTime, TimeUnit: l.unit, RetrainDrift: l.retrainDrift})
	case *InbagRiskLogger:
		lj, err := LossToJSON(l.loss)
		if err != nil {
			return nil, Wrapper(err, "LoggerToJSON")
		}

		return json.Marshal(loggerJSON{Class: "InbagRiskLogger", ID: l.id, IsStopper: l.stopper, Logged: vecToJSON(l.risk),
			Loss: lj, Eps: l.eps, Patience: l.patience, CountPatience: l.countPatience})
	case *OobRiskLogger:
		lj, err := LossToJSON(l.loss)
		if err != nil {
			return nil, Wrapper(err, "LoggerToJSON")
		}

		rj, err := ResponseToJSON(l.oobResp)
		if err != nil {
			return nil, Wrapper(err, "LoggerToJSON")
		}

		out := loggerJSON{Class: "OobRiskLogger", ID: l.id, IsStopper: l.stopper, Logged: vecToJSON(l.risk),
			Loss: lj, Eps: l.eps, Patience: l.patience, CountPatience: l.countPatience, OobResponse: rj}

		for _, src := range l.oobSources {
			sj, err := SourceToJSON(src)
			if err != nil {
				return nil, Wrapper(err, "LoggerToJSON")
			}

			out.OobSources = append(out.OobSources, sj)
		}

		return json.Marshal(out)
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("LoggerToJSON: logger %s cannot be serialized", lg.ID()))
	}
}

// LoggerFromJSON is the inverse of LoggerToJSON.
func LoggerFromJSON(js json.RawMessage) (Logger, error) {
	var lj loggerJSON
	if err := json.Unmarshal(js, &lj); err != nil {
		return nil, Wrapper(ErrConfig, "LoggerFromJSON: "+err.Error())
	}

	logged, err := jsonToVec(lj.Logged)
	if err != nil {
		return nil, Wrapper(err, "LoggerFromJSON")
	}

	switch lj.Class {
	case "IterationLogger":
		lg := NewIterationLogger(lj.ID, lj.IsStopper, lj.MaxIter)
		lg.iterations = logged

		return lg, nil
	case "TimeLogger":
		lg, err := NewTimeLogger(lj.ID, lj.IsStopper, lj.MaxTime, lj.TimeUnit)
		if err != nil {
			return nil, Wrapper(err, "LoggerFromJSON")
		}

		lg.elapsed = logged
		lg.retrainDrift = lj.RetrainDrift

		return lg, nil
	case "InbagRiskLogger":
		loss, err := LossFromJSON(lj.Loss)
		if err != nil {
			return nil, Wrapper(err, "LoggerFromJSON")
		}

		lg := NewInbagRiskLogger(lj.ID, lj.IsStopper, loss, lj.Eps, lj.Patience)
		lg.risk = logged
		lg.countPatience = lj.CountPatience

		return lg, nil
	case "OobRiskLogger":
		loss, err := LossFromJSON(lj.Loss)
		if err != nil {
			return nil, Wrapper(err, "LoggerFromJSON")
		}

		oobResp, err := ResponseFromJSON(lj.OobResponse)
		if err != nil {
			return nil, Wrapper(err, "LoggerFromJSON")
		}

		oobSources := make(SourceMap)
		for _, sj := range lj.OobSources {
			src, e := SourceFromJSON(sj)
			if e != nil {
				return nil, Wrapper(e, "LoggerFromJSON")
			}

			oobSources[src.DataID] = src
		}

		lg := NewOobRiskLogger(lj.ID, lj.IsStopper, loss, lj.Eps, lj.Patience, oobSources, oobResp)
		lg.risk = logged
		lg.countPatience = lj.CountPatience

		return lg, nil
	default:
		return nil, Wrapper(ErrConfig, fmt.Sprintf("LoggerFromJSON: no known class %q", lj.Class))
	}
}

// sourceJSON is the json-friendly form of a FeatureSource.
type sourceJSON struct {
	Class   string   `json:"Class"`
	DataID  string   `json:"data_id"`
	Numeric *matJSON `json:"numeric,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// SourceToJSON serializes one feature column.
func SourceToJSON(src *FeatureSource) (json.RawMessage, error) {
	sj := sourceJSON{Class: "FeatureSource", DataID: src.DataID, Labels: src.Labels}
	if src.IsNumeric() {
		nj := vecToJSON(src.Numeric)
		sj.Numeric = &nj
	}

	return json.Marshal(sj)
}

// SourceFromJSON is the inverse of SourceToJSON.
func SourceFromJSON(js json.RawMessage) (*FeatureSource, error) {
	var sj sourceJSON
	if err := json.Unmarshal(js, &sj); err != nil {
		return nil, Wrapper(ErrConfig, "SourceFromJSON: "+err.Error())
	}

	if sj.Numeric != nil {
		x, err := jsonToVec(*sj.Numeric)
		if err != nil {
			return nil, Wrapper(err, "SourceFromJSON")
		}

		return NewNumericSource(sj.DataID, x)
	}

	return NewCategoricalSource(sj.DataID, sj.Labels)
}

// FactoryConfig is the declarative form of one factory.  Tensor and centered
// factories reference previously configured factories by key.
type FactoryConfig struct {
	Kind        string  `json:"kind"`
	DataID      string  `json:"data_id,omitempty"`
	Degree      int     `json:"degree,omitempty"`
	Intercept   bool    `json:"intercept,omitempty"`
	BinRoot     int     `json:"bin_root,omitempty"`
	NKnots      int     `json:"n_knots,omitempty"`
	Penalty     float64 `json:"penalty,omitempty"`
	Df          float64 `json:"df,omitempty"`
	Differences int     `json:"differences,omitempty"`
	CacheTag    string  `json:"cache_tag,omitempty"`
	ClassLabel  string  `json:"class_label,omitempty"`
	Child1Key   string  `json:"child1_key,omitempty"`
	Child2Key   string  `json:"child2_key,omitempty"`
}

// Factory kinds of FactoryConfig.
const (
	KindPolynomial        = "polynomial"
	KindPSpline           = "pspline"
	KindCategoricalRidge  = "categorical_ridge"
	KindCategoricalBinary = "categorical_binary"
	KindTensor            = "tensor"
	KindCentered          = "centered"
)

// ConfigOf extracts the declarative config of a factory.  P-spline penalties
// are emitted in resolved form so a rebuild skips the df calibration and
// reproduces the multiplier exactly.
func ConfigOf(f Factory) (FactoryConfig, error) {
	switch ft := f.(type) {
	case *PolynomialFactory:
		return FactoryConfig{Kind: KindPolynomial, DataID: ft.dataID, Degree: ft.degree, Intercept: ft.useIntercept, BinRoot: ft.binRoot}, nil
	case *PSplineFactory:
		return FactoryConfig{
			Kind:        KindPSpline,
			DataID:      ft.dataID,
			Degree:      ft.degree,
			NKnots:      ft.nKnots,
			Penalty:     ft.penalty,
			Differences: ft.differences,
			BinRoot:     ft.binRoot,
			CacheTag:    ft.cacheKind,
		}, nil
	case *CategoricalRidgeFactory:
		return FactoryConfig{Kind: KindCategoricalRidge, DataID: ft.dataID, Df: ft.df}, nil
	case *CategoricalBinaryFactory:
		return FactoryConfig{Kind: KindCategoricalBinary, DataID: ft.dataID, ClassLabel: ft.class}, nil
	case *TensorFactory:
		return FactoryConfig{Kind: KindTensor, Child1Key: ft.child1.Key(), Child2Key: ft.child2.Key()}, nil
	case *CenteredFactory:
		return FactoryConfig{Kind: KindCentered, Child1Key: ft.child1.Key(), Child2Key: ft.child2.Key()}, nil
	default:
		return FactoryConfig{}, Wrapper(ErrConfig, fmt.Sprintf("ConfigOf: factory %s cannot be serialized", f.Key()))
	}
}

// BuildFactoryList constructs and registers factories from configs, in order.
// Tensor and centered configs may reference any factory configured before
// them.
func BuildFactoryList(configs []FactoryConfig, sources SourceMap) (*FactoryList, error) {
	fl := NewFactoryList()

	for _, cfg := range configs {
		var (
			f   Factory
			err error
		)

		switch cfg.Kind {
		case KindPolynomial:
			var src *FeatureSource
			if src, err = sources.Get(cfg.DataID); err == nil {
				f, err = NewPolynomialFactory(src, cfg.Degree, cfg.Intercept, cfg.BinRoot)
			}
		case KindPSpline:
			var src *FeatureSource
			if src, err = sources.Get(cfg.DataID); err == nil {
				f, err = NewPSplineFactory(src, cfg.Degree, cfg.NKnots, cfg.Penalty, cfg.Df, cfg.Differences, cfg.BinRoot, cfg.CacheTag)
			}
		case KindCategoricalRidge:
			var src *FeatureSource
			if src, err = sources.Get(cfg.DataID); err == nil {
				f, err = NewCategoricalRidgeFactory(src, cfg.Df)
			}
		case KindCategoricalBinary:
			var src *FeatureSource
			if src, err = sources.Get(cfg.DataID); err == nil {
				f, err = NewCategoricalBinaryFactory(src, cfg.ClassLabel)
			}
		case KindTensor:
			var f1, f2 Factory
			if f1, err = fl.Get(cfg.Child1Key); err == nil {
				if f2, err = fl.Get(cfg.Child2Key); err == nil {
					f, err = NewTensorFactory(f1, f2)
				}
			}
		case KindCentered:
			var f1, f2 Factory
			if f1, err = fl.Get(cfg.Child1Key); err == nil {
				if f2, err = fl.Get(cfg.Child2Key); err == nil {
					f, err = NewCenteredFactory(f1, f2)
				}
			}
		default:
			err = Wrapper(ErrConfig, fmt.Sprintf("BuildFactoryList: unknown factory kind %q", cfg.Kind))
		}

		if err != nil {
			return nil, Wrapper(err, "BuildFactoryList")
		}

		if err := fl.Register(f); err != nil {
			return nil, Wrapper(err, "BuildFactoryList")
		}
	}

	return fl, nil
}

// boostJSON is the json-friendly form of the whole model.
type boostJSON struct {
	Class        string            `json:"Class"`
	LearningRate float64           `json:"learning_rate"`
	StopIfAll    bool              `json:"stop_if_all"`
	CurrentIter  int               `json:"current_iter"`
	Trained      bool              `json:"trained"`
	Risk         matJSON           `json:"risk"`
	Loss         json.RawMessage   `json:"loss"`
	Optimizer    json.RawMessage   `json:"optimizer"`
	Response     json.RawMessage   `json:"response"`
	Tracker      json.RawMessage   `json:"tracker"`
	Factories    []FactoryConfig   `json:"factories"`
	Sources      []json.RawMessage `json:"sources"`
}

// ToJSON serializes the model: configs, delta log, response state and the
// training sources needed to rebuild the designs on load.
func (b *Boost) ToJSON() ([]byte, error) {
	bj := boostJSON{
		Class:        "Boost",
		LearningRate: b.lr,
		StopIfAll:    b.stopIfAll,
		CurrentIter:  b.currentIter,
		Trained:      b.trained,
		Risk:         vecToJSON(b.risk),
	}

	var err error

	if bj.Loss, err = LossToJSON(b.loss); err != nil {
		return nil, Wrapper(err, "(*Boost).ToJSON")
	}

	if bj.Optimizer, err = OptimizerToJSON(b.opt); err != nil {
		return nil, Wrapper(err, "(*Boost).ToJSON")
	}

	if bj.Response, err = ResponseToJSON(b.resp); err != nil {
		return nil, Wrapper(err, "(*Boost).ToJSON")
	}

	if bj.Tracker, err = TrackerToJSON(b.tracker); err != nil {
		return nil, Wrapper(err, "(*Boost).ToJSON")
	}

	seen := make(map[string]bool)

	for _, key := range b.factories.Keys() {
		f, _ := b.factories.Get(key)

		cfg, err := ConfigOf(f)
		if err != nil {
			return nil, Wrapper(err, "(*Boost).ToJSON")
		}

		bj.Factories = append(bj.Factories, cfg)

		for _, src := range factorySources(f) {
			if seen[src.DataID] {
				continue
			}
			seen[src.DataID] = true

			sj, err := SourceToJSON(src)
			if err != nil {
				return nil, Wrapper(err, "(*Boost).ToJSON")
			}

			bj.Sources = append(bj.Sources, sj)
		}
	}

	return json.MarshalIndent(bj, "", "  ")
}

// factorySources collects the feature columns a factory was built on.
func factorySources(f Factory) []*FeatureSource {
	switch ft := f.(type) {
	case *PolynomialFactory:
		return []*FeatureSource{ft.src}
	case *PSplineFactory:
		return []*FeatureSource{ft.src}
	case *CategoricalRidgeFactory:
		return []*FeatureSource{ft.src}
	case *CategoricalBinaryFactory:
		return []*FeatureSource{ft.src}
	case *TensorFactory:
		return append(factorySources(ft.child1), factorySources(ft.child2)...)
	case *CenteredFactory:
		return append(factorySources(ft.child1), factorySources(ft.child2)...)
	default:
		return nil
	}
}

// Save writes the JSON form to fileName.
func (b *Boost) Save(fileName string) (err error) {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	js, err := b.ToJSON()
	if err != nil {
		return err
	}

	_, err = f.Write(js)

	return err
}

// BoostFromJSON rebuilds a model from its JSON form.  The factories are
// reconstructed from the serialized configs and training sources, so the
// loaded model predicts, replays and continues training like the original.
func BoostFromJSON(js []byte) (*Boost, error) {
	var bj boostJSON
	if err := json.Unmarshal(js, &bj); err != nil {
		return nil, Wrapper(ErrConfig, "BoostFromJSON: "+err.Error())
	}

	if bj.Class != "Boost" {
		return nil, Wrapper(ErrConfig, fmt.Sprintf("BoostFromJSON: no known class %q", bj.Class))
	}

	sources := make(SourceMap)
	for _, sj := range bj.Sources {
		src, err := SourceFromJSON(sj)
		if err != nil {
			return nil, Wrapper(err, "BoostFromJSON")
		}

		sources[src.DataID] = src
	}

	factories, err := BuildFactoryList(bj.Factories, sources)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	loss, err := LossFromJSON(bj.Loss)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	opt, err := OptimizerFromJSON(bj.Optimizer)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	resp, err := ResponseFromJSON(bj.Response)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	tracker, err := TrackerFromJSON(bj.Tracker)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	risk, err := jsonToVec(bj.Risk)
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	loggers, err := NewLoggerList()
	if err != nil {
		return nil, Wrapper(err, "BoostFromJSON")
	}

	b := &Boost{
		resp:        resp,
		loss:        loss,
		opt:         opt,
		factories:   factories,
		loggers:     loggers,
		tracker:     tracker,
		lr:          bj.LearningRate,
		stopIfAll:   bj.StopIfAll,
		currentIter: bj.CurrentIter,
		trained:     bj.Trained,
		risk:        risk,
	}

	// the accumulated map must reflect the saved iteration, not the full log
	if bj.CurrentIter < tracker.Len() {
		if err := tracker.SetToIteration(bj.CurrentIter); err != nil {
			return nil, Wrapper(err, "BoostFromJSON")
		}
	}

	return b, nil
}

// LoadBoost reads a model saved with Save.
func LoadBoost(fileName string) (*Boost, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	js, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return BoostFromJSON(js)
}
