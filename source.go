package coboost

// source.go has the feature-column types shared by every factory.

import (
	"fmt"
)

// FeatureSource is an immutable column of one input feature.  Exactly one of
// Numeric or Labels is populated.  A source is created once, before training,
// and borrowed read-only by every factory that references it.
type FeatureSource struct {
	DataID  string
	Numeric []float64
	Labels  []string
}

// NewNumericSource creates a numeric feature column with error checking.
func NewNumericSource(dataID string, x []float64) (*FeatureSource, error) {
	if dataID == "" {
		return nil, Wrapper(ErrData, "NewNumericSource: empty data id")
	}

	if len(x) == 0 {
		return nil, Wrapper(ErrData, fmt.Sprintf("NewNumericSource: %s has no data", dataID))
	}

	return &FeatureSource{DataID: dataID, Numeric: x}, nil
}

// NewCategoricalSource creates a categorical feature column with error checking.
func NewCategoricalSource(dataID string, labels []string) (*FeatureSource, error) {
	if dataID == "" {
		return nil, Wrapper(ErrData, "NewCategoricalSource: empty data id")
	}

	if len(labels) == 0 {
		return nil, Wrapper(ErrData, fmt.Sprintf("NewCategoricalSource: %s has no data", dataID))
	}

	return &FeatureSource{DataID: dataID, Labels: labels}, nil
}

// IsNumeric returns true if the source holds a numeric column.
func (fs *FeatureSource) IsNumeric() bool {
	return fs.Numeric != nil
}

// Len is the number of observations in the column.
func (fs *FeatureSource) Len() int {
	if fs.IsNumeric() {
		return len(fs.Numeric)
	}

	return len(fs.Labels)
}

// SourceMap maps data ids to feature columns.  It is the form in which held-out
// data is handed to Predict and to the out-of-bag logger.
type SourceMap map[string]*FeatureSource

// NewSourceMap builds a SourceMap with error checking: ids must be unique and
// all columns must have the same number of rows.
func NewSourceMap(sources ...*FeatureSource) (SourceMap, error) {
	sm := make(SourceMap)

	n := 0
	for _, src := range sources {
		if _, ok := sm[src.DataID]; ok {
			return nil, Wrapper(ErrData, fmt.Sprintf("NewSourceMap: duplicate data id %s", src.DataID))
		}

		if n > 0 && src.Len() != n {
			return nil, Wrapper(ErrData, fmt.Sprintf("NewSourceMap: %s has %d rows, expected %d", src.DataID, src.Len(), n))
		}

		n = src.Len()
		sm[src.DataID] = src
	}

	return sm, nil
}

// Get returns the source for dataID or a LookupError.
func (sm SourceMap) Get(dataID string) (*FeatureSource, error) {
	src, ok := sm[dataID]
	if !ok {
		return nil, Wrapper(ErrLookup, fmt.Sprintf("SourceMap: data id %s not found", dataID))
	}

	return src, nil
}
