package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"greenlane/backend/services/mock-grid/internal/pricing"
)

// NewPricingHandler returns GET /api/pricing handler. now defaults to time.Now.
func NewPricingHandler(now func() time.Time, logger *zap.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		quote := pricing.QuoteAt(now())
		logger.Debug("price quoted",
			zap.Int("hour", quote.Hour),
			zap.Float64("price_per_kwh", quote.PricePerKWh),
			zap.String("grid_load", quote.GridLoad),
			zap.String("energy_source", quote.EnergySource),
		)
		writeJSON(w, http.StatusOK, quote)
	}
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
