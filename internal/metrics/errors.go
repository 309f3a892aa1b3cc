package metrics

import "github.com/pkg/errors"

// ErrInvalidArgument is returned when a caller hands the metrics package
// input it cannot score: empty batches, non-positive weights, k values
// outside [1, numClasses] and mismatched shapes.
var ErrInvalidArgument = errors.New("metrics: invalid argument")

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
