package validator

import (
	stderrors "errors"
	"strings"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/resistor/internal/errors"
)

func validEvent() *cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID("test-id")
	e.SetSource("test-source")
	e.SetType("test.event")
	return &e
}

func TestCloudEventsValidator_ValidateSuccess(t *testing.T) {
	v := NewCloudEventsValidator(0)

	withData := validEvent()
	if err := withData.SetData(cloudevents.ApplicationJSON, map[string]string{"test": "data"}); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}

	tests := []struct {
		name  string
		event *cloudevents.Event
	}{
		{"valid 1.0 event", validEvent()},
		{"valid event with data", withData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(tt.event); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestCloudEventsValidator_UpgradesV03(t *testing.T) {
	v := NewCloudEventsValidator(0)

	e := cloudevents.NewEvent(cloudevents.VersionV03)
	e.SetID("test-id")
	e.SetSource("test-source")
	e.SetType("test.event")

	if err := v.Validate(&e); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if e.SpecVersion() != cloudevents.VersionV1 {
		t.Errorf("SpecVersion() = %q, want %q", e.SpecVersion(), cloudevents.VersionV1)
	}
}

func TestCloudEventsValidator_ValidateErrors(t *testing.T) {
	v := NewCloudEventsValidator(8)

	tests := []struct {
		name      string
		event     func() *cloudevents.Event
		wantField string
	}{
		{
			name:      "nil event",
			event:     func() *cloudevents.Event { return nil },
			wantField: "event",
		},
		{
			name: "missing id",
			event: func() *cloudevents.Event {
				e := validEvent()
				e.SetID("")
				return e
			},
			wantField: "id",
		},
		{
			name: "missing source",
			event: func() *cloudevents.Event {
				e := validEvent()
				e.SetSource("")
				return e
			},
			wantField: "source",
		},
		{
			name: "missing type",
			event: func() *cloudevents.Event {
				e := validEvent()
				e.SetType("")
				return e
			},
			wantField: "type",
		},
		{
			name: "payload too large",
			event: func() *cloudevents.Event {
				e := validEvent()
				_ = e.SetData(cloudevents.ApplicationJSON, map[string]string{"key": "a long value"})
				return e
			},
			wantField: "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event())
			var validationErr *errors.ValidationError
			if !stderrors.As(err, &validationErr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if validationErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", validationErr.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Error() = %q, want it to mention %q", err.Error(), tt.wantField)
			}
		})
	}
}
