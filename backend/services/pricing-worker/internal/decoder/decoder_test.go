package decoder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenlane/backend/services/pricing-worker/internal/models"
)

const validPayload = `{"car_id":"car-7","lat":40.712800,"lon":-74.006000,"battery":55.00,"velocity":31.25,"timestamp":1700000000123,"event_type":"telemetry"}`

func TestDecodeValid(t *testing.T) {
	event, err := Decode([]byte(validPayload))
	require.NoError(t, err)

	assert.Equal(t, models.TelemetryEvent{
		CarID:     "car-7",
		Latitude:  40.7128,
		Longitude: -74.006,
		Battery:   55,
		Velocity:  31.25,
		Timestamp: 1700000000123,
		EventType: "telemetry",
	}, event)
}

func TestDecodeRoundTrip(t *testing.T) {
	event, err := Decode([]byte(validPayload))
	require.NoError(t, err)

	encoded, err := json.Marshal(event)
	require.NoError(t, err)

	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(validPayload), &want))
	require.NoError(t, json.Unmarshal(encoded, &got))
	assert.Equal(t, want, got)
}

func TestDecodeAcceptsEmptyCarID(t *testing.T) {
	event, err := Decode([]byte(`{"car_id":"","lat":1,"lon":2,"battery":3,"velocity":4,"timestamp":5,"event_type":"t"}`))
	require.NoError(t, err)
	assert.Empty(t, event.CarID)
	assert.Equal(t, int64(5), event.Timestamp)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	event, err := Decode([]byte(`{"car_id":"car-1","lat":1,"lon":2,"battery":3,"velocity":4,"timestamp":5,"event_type":"telemetry","firmware":"v2","extra":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "car-1", event.CarID)
	assert.Equal(t, int64(5), event.Timestamp)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		kind Kind
	}{
		{"invalid utf8", []byte("{\"car_id\":\"\xff\"}"), KindEncoding},
		{"not json", []byte("telemetry"), KindSchema},
		{"array", []byte(`[1,2,3]`), KindSchema},
		{"missing car id", []byte(`{"lat":1,"lon":2,"battery":3,"velocity":4,"timestamp":5,"event_type":"t"}`), KindSchema},
		{"missing timestamp", []byte(`{"car_id":"c","lat":1,"lon":2,"battery":3,"velocity":4,"event_type":"t"}`), KindSchema},
		{"battery as string", []byte(`{"car_id":"c","lat":1,"lon":2,"battery":"full","velocity":4,"timestamp":5,"event_type":"t"}`), KindSchema},
		{"fractional timestamp", []byte(`{"car_id":"c","lat":1,"lon":2,"battery":3,"velocity":4,"timestamp":5.5,"event_type":"t"}`), KindSchema},
		{"null event type", []byte(`{"car_id":"c","lat":1,"lon":2,"battery":3,"velocity":4,"timestamp":5,"event_type":null}`), KindSchema},
		{"empty", []byte{}, KindSchema},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				event models.TelemetryEvent
				err   error
			)
			assert.NotPanics(t, func() { event, err = Decode(tc.raw) })
			require.Error(t, err)

			var decodeErr *Error
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tc.kind, decodeErr.Kind)
			assert.Equal(t, models.TelemetryEvent{}, event)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "encoding", KindEncoding.String())
	assert.Equal(t, "schema", KindSchema.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
