package decoder

import (
	"errors"
	"fmt"

	"greenlane/backend/libs/schema"
	"greenlane/backend/services/pricing-worker/internal/models"
)

// Kind classifies a decode failure.
type Kind int

const (
	// KindEncoding means the payload bytes are not UTF-8 text.
	KindEncoding Kind = iota + 1
	// KindSchema means the text is not a telemetry object.
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Error is returned for payloads that can never be decoded. It is not retryable.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode telemetry (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const telemetrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["car_id", "lat", "lon", "battery", "velocity", "timestamp", "event_type"],
  "properties": {
    "car_id": {"type": "string"},
    "lat": {"type": "number"},
    "lon": {"type": "number"},
    "battery": {"type": "number"},
    "velocity": {"type": "number"},
    "timestamp": {"type": "integer"},
    "event_type": {"type": "string"}
  }
}`

var telemetryValidator = schema.MustCompile("telemetry-event.json", telemetrySchema)

// Decode parses one stream payload into a telemetry event. Unknown fields are ignored.
func Decode(raw []byte) (models.TelemetryEvent, error) {
	var event models.TelemetryEvent
	if err := telemetryValidator.Decode(raw, &event); err != nil {
		kind := KindSchema
		if errors.Is(err, schema.ErrEncoding) {
			kind = KindEncoding
		}
		return models.TelemetryEvent{}, &Error{Kind: kind, Err: err}
	}
	return event, nil
}
