package coboost

// loss.go defines the loss family: pointwise loss, gradient, loss-optimal
// constant and the transformation from score to response scale.

import (
	"fmt"
	"math"
	"sort"
)

// Loss is one member of the closed loss family.  The built-in members are
// QuadraticLoss, AbsoluteLoss and BinomialLoss; CustomLoss wraps user
// functions.  A loss may carry a custom offset which replaces the loss-optimal
// constant.
type Loss interface {
	// Name identifies the loss for printing and serialization.
	Name() string
	// Pointwise evaluates the loss elementwise.
	Pointwise(y, f []float64) []float64
	// Gradient evaluates the loss gradient with respect to f elementwise.
	Gradient(y, f []float64) []float64
	// ConstantInitializer returns the risk-minimizing constant for y, or the
	// custom offset if one is set.
	ConstantInitializer(y []float64) (float64, error)
	// ResponseTransform maps the trained score to the response scale.
	ResponseTransform(score []float64) []float64

	customOffset() (float64, bool)
}

// QuadraticLoss is the squared error loss (y-f)^2 / 2.
type QuadraticLoss struct {
	offset    float64
	useOffset bool
}

// NewQuadraticLoss returns the quadratic loss with the loss-optimal constant.
func NewQuadraticLoss() *QuadraticLoss {
	return &QuadraticLoss{}
}

// NewQuadraticLossWithOffset fixes the constant initialization at offset.
func NewQuadraticLossWithOffset(offset float64) *QuadraticLoss {
	return &QuadraticLoss{offset: offset, useOffset: true}
}

func (l *QuadraticLoss) Name() string { return "QuadraticLoss" }

func (l *QuadraticLoss) Pointwise(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		d := y[i] - f[i]
		out[i] = d * d / 2
	}

	return out
}

func (l *QuadraticLoss) Gradient(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = f[i] - y[i]
	}

	return out
}

func (l *QuadraticLoss) ConstantInitializer(y []float64) (float64, error) {
	if l.useOffset {
		return l.offset, nil
	}

	sum := 0.0
	for _, v := range y {
		sum += v
	}

	return sum / float64(len(y)), nil
}

func (l *QuadraticLoss) ResponseTransform(score []float64) []float64 {
	out := make([]float64, len(score))
	copy(out, score)

	return out
}

func (l *QuadraticLoss) customOffset() (float64, bool) { return l.offset, l.useOffset }

// AbsoluteLoss is the absolute error loss |y-f|.
type AbsoluteLoss struct {
	offset    float64
	useOffset bool
}

// NewAbsoluteLoss returns the absolute loss with the loss-optimal constant.
func NewAbsoluteLoss() *AbsoluteLoss {
	return &AbsoluteLoss{}
}

// NewAbsoluteLossWithOffset fixes the constant initialization at offset.
func NewAbsoluteLossWithOffset(offset float64) *AbsoluteLoss {
	return &AbsoluteLoss{offset: offset, useOffset: true}
}

func (l *AbsoluteLoss) Name() string { return "AbsoluteLoss" }

func (l *AbsoluteLoss) Pointwise(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = math.Abs(y[i] - f[i])
	}

	return out
}

func (l *AbsoluteLoss) Gradient(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		switch {
		case f[i] > y[i]:
			out[i] = 1
		case f[i] < y[i]:
			out[i] = -1
		}
	}

	return out
}

func (l *AbsoluteLoss) ConstantInitializer(y []float64) (float64, error) {
	if l.useOffset {
		return l.offset, nil
	}

	sorted := make([]float64, len(y))
	copy(sorted, y)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2, nil
}

func (l *AbsoluteLoss) ResponseTransform(score []float64) []float64 {
	out := make([]float64, len(score))
	copy(out, score)

	return out
}

func (l *AbsoluteLoss) customOffset() (float64, bool) { return l.offset, l.useOffset }

// BinomialLoss is the binomial loss log(1+exp(-2yf)) for labels in {-1,+1}.
// The trained score is half the log odds; the response transform maps it back
// to a probability.
type BinomialLoss struct {
	offset    float64
	useOffset bool
}

// NewBinomialLoss returns the binomial loss with the loss-optimal constant.
func NewBinomialLoss() *BinomialLoss {
	return &BinomialLoss{}
}

// NewBinomialLossWithOffset fixes the constant initialization at offset.
// Offsets outside [-1, 1] are not accepted and the loss falls back to the
// loss-optimal constant.
func NewBinomialLossWithOffset(offset float64) *BinomialLoss {
	if offset > 1 || offset < -1 {
		if Verbose {
			fmt.Println("BinomialLoss allows just values between -1 and 1 as offset. Continuing with default offset.")
		}

		return &BinomialLoss{}
	}

	return &BinomialLoss{offset: offset, useOffset: true}
}

func (l *BinomialLoss) Name() string { return "BinomialLoss" }

func (l *BinomialLoss) Pointwise(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = math.Log(1 + math.Exp(-2*y[i]*f[i]))
	}

	return out
}

func (l *BinomialLoss) Gradient(y, f []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = -2 * y[i] / (1 + math.Exp(2*y[i]*f[i]))
	}

	return out
}

func (l *BinomialLoss) ConstantInitializer(y []float64) (float64, error) {
	if err := checkBinaryLabels(y); err != nil {
		return 0, err
	}

	if l.useOffset {
		return l.offset, nil
	}

	pos := 0.0
	for _, v := range y {
		pos += (v + 1) / 2
	}

	p := pos / float64(len(y))

	return 0.5 * math.Log(p/(1-p)), nil
}

func (l *BinomialLoss) ResponseTransform(score []float64) []float64 {
	out := make([]float64, len(score))
	for i, s := range score {
		out[i] = 1 / (1 + math.Exp(-2*s))
	}

	return out
}

func (l *BinomialLoss) customOffset() (float64, bool) { return l.offset, l.useOffset }

// checkBinaryLabels verifies y holds exactly the two labels -1 and +1.
func checkBinaryLabels(y []float64) error {
	seen := make(map[float64]bool)
	for _, v := range y {
		if v != -1 && v != 1 {
			return Wrapper(ErrLabel, fmt.Sprintf("binomial labels must be coded as -1 and 1, got %v", v))
		}

		seen[v] = true
	}

	if len(seen) != 2 {
		return Wrapper(ErrLabel, "binomial loss needs both labels -1 and 1 present")
	}

	return nil
}

// CustomLoss wraps user-supplied loss, gradient and initializer functions.
// It cannot be serialized.
type CustomLoss struct {
	LossFn     func(y, f []float64) []float64
	GradientFn func(y, f []float64) []float64
	InitFn     func(y []float64) float64
}

// NewCustomLoss builds a loss from the three user functions with error
// checking.
func NewCustomLoss(lossFn, gradFn func(y, f []float64) []float64, initFn func(y []float64) float64) (*CustomLoss, error) {
	if lossFn == nil || gradFn == nil || initFn == nil {
		return nil, Wrapper(ErrConfig, "NewCustomLoss: all three functions must be set")
	}

	return &CustomLoss{LossFn: lossFn, GradientFn: gradFn, InitFn: initFn}, nil
}

func (l *CustomLoss) Name() string { return "CustomLoss" }

func (l *CustomLoss) Pointwise(y, f []float64) []float64 { return l.LossFn(y, f) }

func (l *CustomLoss) Gradient(y, f []float64) []float64 { return l.GradientFn(y, f) }

func (l *CustomLoss) ConstantInitializer(y []float64) (float64, error) {
	return l.InitFn(y), nil
}

func (l *CustomLoss) ResponseTransform(score []float64) []float64 {
	out := make([]float64, len(score))
	copy(out, score)

	return out
}

func (l *CustomLoss) customOffset() (float64, bool) { return 0, false }
