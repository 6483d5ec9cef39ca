package detectors

import (
	"math"
	"time"

	"polysentry/internal/alerts"
	"polysentry/internal/cooldown"
	"polysentry/internal/state"
	"polysentry/internal/stats"
)

// ZScore runs the MAD-scaled z-score test over every token's volume windows
// (1h and 4h), gated by the cooldown manager. A window that is not yet
// valid (below min_observations) is skipped, as is a window whose z-score
// is undefined (zero MAD).
func ZScore(tokenStats map[string]*state.MarketStatistics, labels map[string]state.TokenLabel, threshold float64, cd *cooldown.Manager, now time.Time) []alerts.ZScore {
	var out []alerts.ZScore

	for tokenID, ms := range tokenStats {
		for _, window := range []struct {
			name string
			w    *stats.RollingWindow
		}{
			{string(alerts.Window1h), ms.Volume1h},
			{string(alerts.Window4h), ms.Volume4h},
		} {
			if !window.w.IsValid() {
				continue
			}

			values := window.w.Values()
			current, ok := window.w.Last()
			if !ok {
				continue
			}

			z, ok := stats.ZScore(current, values)
			if !ok || math.Abs(z) <= threshold {
				continue
			}

			key := cooldown.Key{MarketID: tokenID, Metric: string(alerts.MetricVolume), Window: window.name}
			if !cd.ShouldAlert(key, z, now) {
				continue
			}
			cd.RecordAlert(key, z, now)

			label := labels[tokenID]
			out = append(out, alerts.ZScore{
				EventName:    label.EventName,
				Outcome:      label.Outcome,
				TokenID:      tokenID,
				Metric:       alerts.MetricVolume,
				Window:       alerts.Window(window.name),
				CurrentValue: current,
				Median:       stats.Median(values),
				MAD:          stats.MAD(values),
				Score:        z,
				Threshold:    threshold,
				DetectedAt:   now,
			})
		}
	}

	return out
}
