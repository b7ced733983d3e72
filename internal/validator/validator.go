// Package validator provides CloudEvents validation.
package validator

import (
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ event.Validator = (*CloudEventsValidator)(nil)

// CloudEventsValidator validates CloudEvents before they are pushed into the engine.
type CloudEventsValidator struct {
	maxDataBytes int
}

// NewCloudEventsValidator creates a new CloudEvents validator. maxDataBytes
// limits the payload size; zero means unlimited.
func NewCloudEventsValidator(maxDataBytes int) *CloudEventsValidator {
	return &CloudEventsValidator{maxDataBytes: maxDataBytes}
}

// Validate validates a CloudEvent. Events in spec version 0.3 are upgraded to 1.0 in place.
func (v *CloudEventsValidator) Validate(e *cloudevents.Event) error {
	if e == nil {
		return &errors.ValidationError{Field: "event", Reason: "event is nil"}
	}

	required := []struct {
		field string
		value string
	}{
		{"id", e.ID()},
		{"source", e.Source()},
		{"specversion", e.SpecVersion()},
		{"type", e.Type()},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{
				EventID: e.ID(),
				Field:   r.field,
				Reason:  "required field is missing",
			}
		}
	}

	switch e.SpecVersion() {
	case cloudevents.VersionV1:
	case cloudevents.VersionV03:
		e.SetSpecVersion(cloudevents.VersionV1)
	default:
		return &errors.ValidationError{
			EventID: e.ID(),
			Field:   "specversion",
			Reason:  fmt.Sprintf("unsupported version: %s (supported: 0.3, 1.0)", e.SpecVersion()),
		}
	}

	if v.maxDataBytes > 0 && len(e.Data()) > v.maxDataBytes {
		return &errors.ValidationError{
			EventID: e.ID(),
			Field:   "data",
			Reason:  fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(e.Data()), v.maxDataBytes),
		}
	}

	if err := e.Validate(); err != nil {
		return &errors.ValidationError{
			EventID: e.ID(),
			Field:   "event",
			Reason:  err.Error(),
		}
	}

	return nil
}
