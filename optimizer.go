package coboost

// optimizer.go selects the best base-learner per boosting step and computes the
// step size of the update.

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Optimizer picks the winning base-learner of an iteration and supplies the
// step size used to shrink its contribution.
type Optimizer interface {
	// FindBest trains one candidate per factory on the pseudo-residuals and
	// returns the one with the smallest residual sum of squares.  Ties break
	// by registry insertion order.
	FindBest(iterID string, resp *Response, factories *FactoryList) (*BaseLearner, error)
	// StepSize returns the step size for the candidate prediction and records
	// it for later replay.
	StepSize(loss Loss, resp *Response, candidate []float64) float64
	// StepAt returns the recorded step size of iteration iter (1-based).
	StepAt(iter int) (float64, error)
	// ApplyUpdate scales the candidate prediction by learning rate and step.
	ApplyUpdate(learningRate, step float64, candidate []float64) []float64
}

// CoordinateDescent is greedy selection by residual sum of squares with a
// constant step size of 1.  With parallel set, candidates are evaluated
// concurrently; the reduction still walks the registry in insertion order, so
// the winner is identical to the serial version.
type CoordinateDescent struct {
	parallel bool
}

// NewCoordinateDescent returns the plain coordinate-descent optimizer.
func NewCoordinateDescent(parallel bool) *CoordinateDescent {
	return &CoordinateDescent{parallel: parallel}
}

func (cd *CoordinateDescent) FindBest(iterID string, resp *Response, factories *FactoryList) (*BaseLearner, error) {
	if cd.parallel {
		return findBestParallel(iterID, resp, factories)
	}

	return findBestSerial(iterID, resp, factories)
}

func (cd *CoordinateDescent) StepSize(loss Loss, resp *Response, candidate []float64) float64 {
	return 1
}

func (cd *CoordinateDescent) StepAt(iter int) (float64, error) {
	return 1, nil
}

func (cd *CoordinateDescent) ApplyUpdate(learningRate, step float64, candidate []float64) []float64 {
	out := make([]float64, len(candidate))
	for i, v := range candidate {
		out[i] = learningRate * step * v
	}

	return out
}

// CoordinateDescentLineSearch adds a per-step line search over the step size,
// recording every step so replays reconstruct the exact updates.
type CoordinateDescentLineSearch struct {
	CoordinateDescent

	steps []float64
}

// NewCoordinateDescentLineSearch returns the line-search optimizer.
func NewCoordinateDescentLineSearch(parallel bool) *CoordinateDescentLineSearch {
	return &CoordinateDescentLineSearch{CoordinateDescent: CoordinateDescent{parallel: parallel}}
}

func (cd *CoordinateDescentLineSearch) StepSize(loss Loss, resp *Response, candidate []float64) float64 {
	s := findOptimalStepSize(loss, resp.Y, resp.Prediction(loss, false), candidate)
	cd.steps = append(cd.steps, s)

	return s
}

func (cd *CoordinateDescentLineSearch) StepAt(iter int) (float64, error) {
	if iter < 1 || iter > len(cd.steps) {
		return 0, Wrapper(ErrRange, fmt.Sprintf("StepAt: step size of iteration %d is not trained", iter))
	}

	return cd.steps[iter-1], nil
}

// StepSizes returns all recorded step sizes.
func (cd *CoordinateDescentLineSearch) StepSizes() []float64 { return cd.steps }

// candidateSSE is the squared distance between residuals and the candidate fit.
func candidateSSE(residuals, pred []float64) float64 {
	sse := 0.0
	for i := range residuals {
		d := residuals[i] - pred[i]
		sse += d * d
	}

	return sse
}

func findBestSerial(iterID string, resp *Response, factories *FactoryList) (*BaseLearner, error) {
	best := (*BaseLearner)(nil)
	bestSSE := math.Inf(1)

	for _, key := range factories.Keys() {
		f, err := factories.Get(key)
		if err != nil {
			return nil, Wrapper(err, "findBestSerial")
		}

		bl := f.NewLearner("(" + iterID + ") " + f.LearnerType())
		if err := bl.Train(resp.PseudoResiduals()); err != nil {
			return nil, Wrapper(err, "findBestSerial")
		}

		if sse := candidateSSE(resp.PseudoResiduals(), bl.Predict()); sse < bestSSE {
			bestSSE = sse
			best = bl
		}
	}

	return best, nil
}

func findBestParallel(iterID string, resp *Response, factories *FactoryList) (*BaseLearner, error) {
	type result struct {
		bl  *BaseLearner
		sse float64
	}

	results := make([]result, factories.Len())

	g := new(errgroup.Group)

	for ind, key := range factories.Keys() {
		ind, key := ind, key

		g.Go(func() error {
			f, err := factories.Get(key)
			if err != nil {
				return err
			}

			bl := f.NewLearner("(" + iterID + ") " + f.LearnerType())
			if err := bl.Train(resp.PseudoResiduals()); err != nil {
				return err
			}

			results[ind] = result{bl: bl, sse: candidateSSE(resp.PseudoResiduals(), bl.Predict())}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Wrapper(err, "findBestParallel")
	}

	// reduce in registry order so ties break exactly like the serial walk
	best := (*BaseLearner)(nil)
	bestSSE := math.Inf(1)

	for _, r := range results {
		if r.sse < bestSSE {
			bestSSE = r.sse
			best = r.bl
		}
	}

	return best, nil
}
