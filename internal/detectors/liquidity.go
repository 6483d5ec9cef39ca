package detectors

import (
	"polysentry/internal/alerts"
	"polysentry/internal/state"
	"polysentry/internal/stats"
)

// LiquidityWarning emits a warning for every spike from this cycle whose
// market has an LVR strictly above lvrThreshold. It never fires for a
// market without a same-cycle spike: the input is the spike list itself,
// not the full market set.
func LiquidityWarning(spikes []alerts.Spike, events []*state.MonitoredEvent, lvrThreshold float64) []alerts.LiquidityWarning {
	var out []alerts.LiquidityWarning

	for _, spike := range spikes {
		m := findMarket(events, spike.EventName, spike.MarketQuestion, spike.Outcome)
		if m == nil || !m.LVROK || m.LVR <= lvrThreshold {
			continue
		}

		out = append(out, alerts.LiquidityWarning{
			EventName:      spike.EventName,
			MarketQuestion: spike.MarketQuestion,
			Outcome:        spike.Outcome,
			PriceBefore:    spike.PriceBefore,
			PriceAfter:     spike.PriceAfter,
			ChangePercent:  spike.ChangePercent,
			Direction:      spike.Direction,
			LVR:            m.LVR,
			HealthStatus:   stats.ClassifyLVR(m.LVR),
			Volume24h:      m.Volume24h,
			Liquidity:      m.Liquidity,
			DetectedAt:     spike.DetectedAt,
		})
	}

	return out
}

func findMarket(events []*state.MonitoredEvent, eventName, question, outcome string) *state.MonitoredMarket {
	for _, e := range events {
		if e.Name != eventName {
			continue
		}
		for _, m := range e.Markets {
			if m.Question == question && m.Outcome == outcome {
				return m
			}
		}
	}
	return nil
}
