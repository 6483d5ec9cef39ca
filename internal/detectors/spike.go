// Package detectors implements the five anomaly detectors run each cycle:
// spike, liquidity warning, closed-market transition, z-score, and MAD.
// Detectors are pure functions over state plus (for the cooldown-aware
// pair) the cooldown manager; they never mutate market state themselves.
package detectors

import (
	"math"
	"time"

	"polysentry/internal/alerts"
	"polysentry/internal/state"
)

// Spike emits an alert for every non-closed market whose price moved at
// least threshold percent since the previous observation. A market with no
// previous price (first observation) or a previous price of zero never
// fires, per the first-observation rule.
func Spike(eventName string, markets []*state.MonitoredMarket, threshold float64, now time.Time) []alerts.Spike {
	var out []alerts.Spike

	for _, m := range markets {
		if m.IsClosed {
			continue
		}
		if !m.PreviousPriceOK || m.PreviousPrice == 0 {
			continue
		}
		if !m.CurrentPriceOK {
			continue
		}

		delta := m.CurrentPrice - m.PreviousPrice
		changePercent := math.Abs(delta) / m.PreviousPrice * 100

		if changePercent < threshold {
			continue
		}

		direction := alerts.DirectionDown
		if delta > 0 {
			direction = alerts.DirectionUp
		}

		out = append(out, alerts.Spike{
			EventName:      eventName,
			MarketQuestion: m.Question,
			Outcome:        m.Outcome,
			PriceBefore:    m.PreviousPrice,
			PriceAfter:     m.CurrentPrice,
			ChangePercent:  changePercent,
			Direction:      direction,
			DetectedAt:     now,
		})
	}

	return out
}
