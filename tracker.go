package coboost

// tracker.go logs the shrunken coefficients of every boosting step and can
// replay any prefix of iterations.

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// trackEntry is one boosting step: the winning factory's key and its shrunken
// coefficient delta nu * s * theta.
type trackEntry struct {
	key   string
	delta []float64
}

// Tracker is the ordered sequence of per-step deltas plus the materialized map
// of accumulated coefficients per factory key.
type Tracker struct {
	entries []trackEntry
	params  map[string][]float64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{params: make(map[string][]float64)}
}

// Insert appends the winning learner with delta = scale * theta, where scale is
// the learning rate times the step size, and folds the delta into the
// accumulated map.
func (tr *Tracker) Insert(bl *BaseLearner, scale float64) {
	delta := make([]float64, len(bl.Theta()))
	for i, v := range bl.Theta() {
		delta[i] = scale * v
	}

	tr.entries = append(tr.entries, trackEntry{key: bl.FactoryKey(), delta: delta})

	acc, ok := tr.params[bl.FactoryKey()]
	if !ok {
		acc = make([]float64, len(delta))
		tr.params[bl.FactoryKey()] = acc
	}

	for i, d := range delta {
		acc[i] += d
	}
}

// Len is the number of logged iterations.
func (tr *Tracker) Len() int { return len(tr.entries) }

// SelectedKeys returns the winning factory key of every iteration in order.
func (tr *Tracker) SelectedKeys() []string {
	out := make([]string, len(tr.entries))
	for i, e := range tr.entries {
		out[i] = e.key
	}

	return out
}

// Parameters returns a copy of the accumulated coefficient map.
func (tr *Tracker) Parameters() map[string][]float64 {
	out := make(map[string][]float64, len(tr.params))
	for k, v := range tr.params {
		c := make([]float64, len(v))
		copy(c, v)
		out[k] = c
	}

	return out
}

// ParametersAtIteration replays the first k entries into a fresh map.
func (tr *Tracker) ParametersAtIteration(k int) (map[string][]float64, error) {
	if k > len(tr.entries) || k < 0 {
		return nil, Wrapper(ErrRange, fmt.Sprintf("(*Tracker).ParametersAtIteration: iteration %d beyond trained history of %d", k, len(tr.entries)))
	}

	out := make(map[string][]float64)

	for i := 0; i < k; i++ {
		e := tr.entries[i]

		acc, ok := out[e.key]
		if !ok {
			acc = make([]float64, len(e.delta))
			out[e.key] = acc
		}

		for j, d := range e.delta {
			acc[j] += d
		}
	}

	return out, nil
}

// SetToIteration replaces the accumulated map with the replay of the first k
// entries.  The entry log keeps the full history so a later SetToIteration can
// move forward again.
func (tr *Tracker) SetToIteration(k int) error {
	params, err := tr.ParametersAtIteration(k)
	if err != nil {
		return Wrapper(err, "(*Tracker).SetToIteration")
	}

	tr.params = params

	return nil
}

// Truncate drops all entries past iteration k.  Continue-training after a
// SetToIteration starts appending from here.
func (tr *Tracker) Truncate(k int) error {
	if k > len(tr.entries) || k < 0 {
		return Wrapper(ErrRange, fmt.Sprintf("(*Tracker).Truncate: iteration %d beyond trained history of %d", k, len(tr.entries)))
	}

	tr.entries = tr.entries[:k]

	return nil
}

// ParameterMatrix returns the accumulated coefficients at every iteration: row
// m holds the model of iteration m+1, columns are the factories' coefficient
// vectors concatenated in sorted key order.  Vector-valued factories get
// column names key_x1, key_x2, ...
func (tr *Tracker) ParameterMatrix() ([]string, *mat.Dense) {
	// final dimension of every key's coefficient vector
	dims := make(map[string]int)
	for _, e := range tr.entries {
		dims[e.key] = len(e.delta)
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	offsets := make(map[string]int, len(keys))
	cols := 0
	names := make([]string, 0)

	for _, k := range keys {
		offsets[k] = cols
		cols += dims[k]

		if dims[k] > 1 {
			for i := 1; i <= dims[k]; i++ {
				names = append(names, fmt.Sprintf("%s_x%d", k, i))
			}
		} else {
			names = append(names, k)
		}
	}

	out := mat.NewDense(len(tr.entries), cols, nil)
	acc := make([]float64, cols)

	for i, e := range tr.entries {
		off := offsets[e.key]
		for j, d := range e.delta {
			acc[off+j] += d
		}

		for j, v := range acc {
			out.Set(i, j, v)
		}
	}

	return names, out
}
