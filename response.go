package coboost

// response.go holds the target, the running prediction and the pseudo-residuals
// of a training run.

import (
	"fmt"
)

// Task tags for Response.
const (
	TaskRegression           = "regression"
	TaskBinaryClassification = "binary_classification"
)

// Response owns the target vector, the model prediction at the current
// iteration and the most recent pseudo-residuals.
type Response struct {
	Task   string
	Y      []float64
	Offset float64

	prediction      []float64
	pseudoResiduals []float64
	initialized     bool
}

// NewRegressionResponse creates a regression response with error checking.
func NewRegressionResponse(y []float64) (*Response, error) {
	if len(y) == 0 {
		return nil, Wrapper(ErrData, "NewRegressionResponse: empty target")
	}

	return newResponse(TaskRegression, y), nil
}

// NewBinaryResponse creates a binary-classification response.  Labels must be
// coded as -1 and +1.
func NewBinaryResponse(y []float64) (*Response, error) {
	if len(y) == 0 {
		return nil, Wrapper(ErrData, "NewBinaryResponse: empty target")
	}

	if err := checkBinaryLabels(y); err != nil {
		return nil, Wrapper(err, "NewBinaryResponse")
	}

	return newResponse(TaskBinaryClassification, y), nil
}

func newResponse(task string, y []float64) *Response {
	return &Response{
		Task:            task,
		Y:               y,
		prediction:      make([]float64, len(y)),
		pseudoResiduals: make([]float64, len(y)),
	}
}

// Len is the number of observations.
func (r *Response) Len() int { return len(r.Y) }

// ConstantInitialization sets the offset to the loss-optimal constant.
func (r *Response) ConstantInitialization(loss Loss) error {
	f0, err := loss.ConstantInitializer(r.Y)
	if err != nil {
		return Wrapper(err, "(*Response).ConstantInitialization")
	}

	r.Offset = f0
	r.initialized = true

	return nil
}

// InitializePrediction resets the prediction to the offset.
func (r *Response) InitializePrediction() {
	for i := range r.prediction {
		r.prediction[i] = r.Offset
	}
}

// UpdatePrediction adds delta to the prediction.
func (r *Response) UpdatePrediction(delta []float64) error {
	if len(delta) != len(r.prediction) {
		return Wrapper(ErrData, fmt.Sprintf("(*Response).UpdatePrediction: update has %d rows, expected %d", len(delta), len(r.prediction)))
	}

	for i, d := range delta {
		r.prediction[i] += d
	}

	return nil
}

// UpdatePseudoResiduals sets the residuals to the negative loss gradient at the
// current prediction.
func (r *Response) UpdatePseudoResiduals(loss Loss) {
	grad := loss.Gradient(r.Y, r.prediction)
	for i, g := range grad {
		r.pseudoResiduals[i] = -g
	}
}

// PseudoResiduals returns the most recent pseudo-residuals.
func (r *Response) PseudoResiduals() []float64 { return r.pseudoResiduals }

// EmpiricalRisk is the mean pointwise loss at the current prediction.
func (r *Response) EmpiricalRisk(loss Loss) float64 {
	pw := loss.Pointwise(r.Y, r.prediction)

	sum := 0.0
	for _, v := range pw {
		sum += v
	}

	return sum / float64(len(pw))
}

// Prediction returns the current prediction, transformed to the response scale
// if asResponse.
func (r *Response) Prediction(loss Loss, asResponse bool) []float64 {
	if asResponse {
		return loss.ResponseTransform(r.prediction)
	}

	out := make([]float64, len(r.prediction))
	copy(out, r.prediction)

	return out
}
