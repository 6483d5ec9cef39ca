package detectors

import (
	"time"

	"polysentry/internal/alerts"
	"polysentry/internal/cooldown"
	"polysentry/internal/state"
	"polysentry/internal/stats"
)

// MAD runs the MAD-multiplier test over every token's price windows (1h and
// 4h), gated by the cooldown manager. Sign is not carried in the score;
// above/below median is derived from the values directly.
func MAD(tokenStats map[string]*state.MarketStatistics, labels map[string]state.TokenLabel, multiplier float64, cd *cooldown.Manager, now time.Time) []alerts.MAD {
	var out []alerts.MAD

	for tokenID, ms := range tokenStats {
		for _, window := range []struct {
			name string
			w    *stats.RollingWindow
		}{
			{string(alerts.Window1h), ms.Price1h},
			{string(alerts.Window4h), ms.Price4h},
		} {
			if !window.w.IsValid() {
				continue
			}

			values := window.w.Values()
			current, ok := window.w.Last()
			if !ok {
				continue
			}

			median := stats.Median(values)
			mad := stats.MAD(values)
			if mad <= 0 {
				continue
			}

			achieved := (current - median) / mad
			aboveMedian := achieved >= 0
			if achieved < 0 {
				achieved = -achieved
			}
			if achieved <= multiplier {
				continue
			}

			key := cooldown.Key{MarketID: tokenID, Metric: string(alerts.MetricPrice), Window: window.name}
			if !cd.ShouldAlert(key, achieved, now) {
				continue
			}
			cd.RecordAlert(key, achieved, now)

			label := labels[tokenID]
			out = append(out, alerts.MAD{
				EventName:    label.EventName,
				Outcome:      label.Outcome,
				TokenID:      tokenID,
				Metric:       alerts.MetricPrice,
				Window:       alerts.Window(window.name),
				CurrentValue: current,
				Median:       median,
				MAD:          mad,
				Multiplier:   achieved,
				Threshold:    multiplier,
				AboveMedian:  aboveMedian,
				DetectedAt:   now,
			})
		}
	}

	return out
}
