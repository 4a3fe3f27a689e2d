package models

import "time"

// SessionRecord is one row of charging_sessions.
type SessionRecord struct {
	Time      time.Time `db:"time" json:"time"`
	SessionID string    `db:"session_id" json:"session_id"`
	StationID string    `db:"station_id" json:"station_id"`
	CarID     string    `db:"car_id" json:"car_id"`
	KWhUsage  float64   `db:"kwh_usage" json:"kwh_usage"`
	PriceRate float64   `db:"price_rate" json:"price_rate"`
	// SourceRef identifies the stream message the record came from (topic/partition/offset).
	// Only written when idempotent inserts are enabled.
	SourceRef string `db:"source_ref" json:"source_ref,omitempty"`
}
