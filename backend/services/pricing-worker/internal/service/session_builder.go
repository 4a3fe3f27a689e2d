package service

import (
	"fmt"
	"time"
	"unicode/utf8"

	"greenlane/backend/services/pricing-worker/internal/models"
)

const stationBuckets = 10

// BuildSessionRecord fuses one telemetry event with the quote in effect when it was
// processed. captureTime is the persistence time and is supplied by the caller.
func BuildSessionRecord(event models.TelemetryEvent, quote models.PriceQuote, captureTime time.Time) models.SessionRecord {
	return models.SessionRecord{
		Time:      captureTime.UTC(),
		SessionID: SessionID(event.CarID, captureTime),
		StationID: StationForVehicle(event.CarID),
		CarID:     event.CarID,
		KWhUsage:  EstimateEnergyUsage(event.Battery),
		PriceRate: quote.PricePerKWh,
	}
}

// SessionID formats session-<car>-<epoch seconds>.
func SessionID(carID string, captureTime time.Time) string {
	return fmt.Sprintf("session-%s-%d", carID, captureTime.Unix())
}

// StationForVehicle maps a vehicle to one of ten station buckets using the last
// character of its id. Digits map to themselves, so car-7 charges at station-7.
func StationForVehicle(carID string) string {
	bucket := 0
	if r, _ := utf8.DecodeLastRuneInString(carID); r != utf8.RuneError {
		bucket = (int(r) - '0') % stationBuckets
		if bucket < 0 {
			bucket += stationBuckets
		}
	}
	return fmt.Sprintf("station-%d", bucket)
}
