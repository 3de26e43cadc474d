package coboost

// errors.go defines the error taxonomy and the Wrapper helper.

import (
	"github.com/pkg/errors"
)

// Sentinel errors.  Every error returned by the package wraps one of these so
// callers can classify failures with errors.Is.
var (
	// ErrConfig - invalid field combination (both penalty and df set, unknown
	// cache tag, mismatched binning between centering children, degree 0, ...)
	ErrConfig = errors.New("config error")

	// ErrLookup - factory key or data id missing from the registry or a
	// held-out source map
	ErrLookup = errors.New("lookup error")

	// ErrNumeric - root bracket without sign change, Cholesky of a non-PSD
	// matrix, singular solve
	ErrNumeric = errors.New("numeric error")

	// ErrRange - iteration index beyond trained history
	ErrRange = errors.New("range error")

	// ErrLabel - binomial target outside {-1,+1}
	ErrLabel = errors.New("label error")

	// ErrData - malformed feature data (wrong column count, empty source, ...)
	ErrData = errors.New("data error")

	// ErrChData - errors reading feature data through chutils
	ErrChData = errors.New("chdata error")
)

// Wrapper adds a message to err while keeping the sentinel reachable by
// errors.Is.
func Wrapper(err error, text string) error {
	return errors.Wrap(err, text)
}
