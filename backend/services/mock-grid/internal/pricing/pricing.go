// Package pricing simulates a time-of-day grid tariff.
package pricing

import (
	"math"
	"time"
)

const (
	basePrice = 0.25
	amplitude = 0.15
	// solarDiscount applies while solar generation covers demand.
	solarDiscount = 0.9
)

// Quote is the price offered for the current hour.
type Quote struct {
	Timestamp    int64   `json:"timestamp"`
	PricePerKWh  float64 `json:"price_per_kwh"`
	GridLoad     string  `json:"grid_load"`
	EnergySource string  `json:"energy_source"`
	Hour         int     `json:"hour"`
}

// QuoteAt prices energy for the local hour of now. The curve peaks at 12:00 and bottoms
// out at 00:00; load is decided from the undiscounted price.
func QuoteAt(now time.Time) Quote {
	hour := now.Hour()
	price := basePrice + amplitude*math.Sin(float64(hour-6)*math.Pi/12)

	source := EnergySource(hour)
	load := GridLoad(price)
	if source == "Solar" {
		price *= solarDiscount
	}

	return Quote{
		Timestamp:    now.UnixMilli(),
		PricePerKWh:  math.Round(price*100) / 100,
		GridLoad:     load,
		EnergySource: source,
		Hour:         hour,
	}
}

// GridLoad buckets a price into High, Medium or Low.
func GridLoad(price float64) string {
	switch {
	case price > 0.35:
		return "High"
	case price > 0.25:
		return "Medium"
	default:
		return "Low"
	}
}

// EnergySource names the dominant supply for an hour of day.
func EnergySource(hour int) string {
	switch {
	case hour >= 8 && hour <= 18:
		return "Solar"
	case hour >= 19 && hour <= 22:
		return "Wind"
	default:
		return "Grid"
	}
}
