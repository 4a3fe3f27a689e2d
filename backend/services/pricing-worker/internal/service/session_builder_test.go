package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"greenlane/backend/services/pricing-worker/internal/models"
)

func TestBuildSessionRecordFormulas(t *testing.T) {
	event := models.TelemetryEvent{CarID: "car-7", Battery: 55.0, Timestamp: 42, EventType: "telemetry"}
	quote := models.PriceQuote{PricePerKWh: 0.31, GridLoad: "Medium"}

	record := BuildSessionRecord(event, quote, time.Unix(1000, 0))

	assert.Equal(t, "session-car-7-1000", record.SessionID)
	assert.Equal(t, "station-7", record.StationID)
	assert.Equal(t, "car-7", record.CarID)
	assert.InDelta(t, 15.5, record.KWhUsage, 1e-9)
	assert.InDelta(t, 0.31, record.PriceRate, 1e-9)
	assert.True(t, record.Time.Equal(time.Unix(1000, 0)))
	assert.Empty(t, record.SourceRef)
}

func TestBuildSessionRecordDeterministic(t *testing.T) {
	event := models.TelemetryEvent{CarID: "car-123", Battery: 80}
	quote := models.PriceQuote{PricePerKWh: 0.2}
	capture := time.Unix(1700000000, 250_000_000)

	assert.Equal(t, BuildSessionRecord(event, quote, capture), BuildSessionRecord(event, quote, capture))
}

func TestStationDependsOnlyOnVehicle(t *testing.T) {
	event := models.TelemetryEvent{CarID: "car-123", Battery: 10}

	a := BuildSessionRecord(event, models.PriceQuote{PricePerKWh: 0.1}, time.Unix(1, 0))
	b := BuildSessionRecord(event, models.PriceQuote{PricePerKWh: 0.9}, time.Unix(999999, 0))

	assert.Equal(t, "station-3", a.StationID)
	assert.Equal(t, a.StationID, b.StationID)
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestStationForVehicle(t *testing.T) {
	cases := map[string]string{
		"car-0":   "station-0",
		"car-9":   "station-9",
		"car-123": "station-3",
		"car-a":   "station-9",
		"car-":    "station-7",
		"":        "station-0",
	}
	for carID, want := range cases {
		assert.Equal(t, want, StationForVehicle(carID), carID)
	}
}

func TestEstimateEnergyUsage(t *testing.T) {
	assert.InDelta(t, 10.0, EstimateEnergyUsage(0), 1e-9)
	assert.InDelta(t, 20.0, EstimateEnergyUsage(100), 1e-9)
}
