package models

// TelemetryEvent is one vehicle sample read from the fleet stream.
type TelemetryEvent struct {
	CarID     string  `json:"car_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Battery   float64 `json:"battery"`
	Velocity  float64 `json:"velocity"`
	Timestamp int64   `json:"timestamp"`
	EventType string  `json:"event_type"`
}
