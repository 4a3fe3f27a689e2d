package service

// EstimateEnergyUsage returns the kWh charged for a session. It is a placeholder
// simulation (10 kWh base plus a tenth of the battery level), not a physical model.
func EstimateEnergyUsage(battery float64) float64 {
	return 10.0 + battery/10.0
}
