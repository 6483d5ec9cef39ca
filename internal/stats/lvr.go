package stats

// HealthStatus is the three-way liquidity-to-volume risk classification.
type HealthStatus string

const (
	Healthy   HealthStatus = "Healthy"
	Elevated  HealthStatus = "Elevated"
	HighRisk  HealthStatus = "High Risk"
)

// LVR returns volume24h / liquidity, or ok=false when either input is
// absent or liquidity is not strictly positive. Zero or negative liquidity
// is rejected outright, never clamped.
func LVR(volume24h, liquidity float64, volumeOK, liquidityOK bool) (float64, bool) {
	if !volumeOK || !liquidityOK || liquidity <= 0 {
		return 0, false
	}
	return volume24h / liquidity, true
}

// ClassifyLVR maps an LVR value to a health label. Boundaries are
// closed-below, open-above: Healthy < 2.0 <= Elevated < 10.0 <= HighRisk.
func ClassifyLVR(lvr float64) HealthStatus {
	switch {
	case lvr < 2.0:
		return Healthy
	case lvr < 10.0:
		return Elevated
	default:
		return HighRisk
	}
}
