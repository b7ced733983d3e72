package resistor

import (
	"errors"

	apperrors "github.com/jittakal/resistor/internal/errors"
)

var (
	// ErrNoWorker is returned by New when the worker is the zero value.
	ErrNoWorker = errors.New("resistor: worker is required")
	// ErrWorkerShape is returned by New when a record worker is paired with a
	// buffer size above one, or a batch worker with a buffer size of one.
	ErrWorkerShape = errors.New("resistor: worker shape does not match buffer size")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("resistor: invalid config")
)

// Permanent marks a worker error that must not be retried.
func Permanent(err error) error {
	return apperrors.Permanent(err)
}
