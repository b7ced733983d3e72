// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrSinkClosed     = errors.New("sink is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// ProcessingError represents an error while pushing one Kafka message into the engine.
type ProcessingError struct {
	Topic     string
	Partition int32
	Offset    int64
	EventID   string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: topic=%s partition=%d offset=%d event_id=%s: %v",
		e.Topic, e.Partition, e.Offset, e.EventID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ValidationError represents an event validation failure.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: event_id=%s field=%s: %s",
		e.EventID, e.Field, e.Reason)
}

// SinkError represents a failed sink operation on one batch.
type SinkError struct {
	Sink      string
	Operation string
	Target    string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error: sink=%s operation=%s target=%s: %v",
		e.Sink, e.Operation, e.Target, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failed operation may succeed on a second attempt.
// Encoding failures are deterministic and never are.
func (e *SinkError) IsRetryable() bool {
	return e.Operation != "encode" && e.Operation != "marshal"
}

// PermanentError marks a worker failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsRetryable always reports false.
func (e *PermanentError) IsRetryable() bool { return false }

// Permanent wraps err so that the retrier gives up on the first failure.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
