package models

// PriceQuote is the grid price returned by the pricing endpoint.
type PriceQuote struct {
	Timestamp    int64   `json:"timestamp"`
	PricePerKWh  float64 `json:"price_per_kwh"`
	GridLoad     string  `json:"grid_load"`
	EnergySource string  `json:"energy_source"`
	Hour         int     `json:"hour"`
}
