package detectors

import (
	"strconv"
	"time"

	"polysentry/internal/alerts"
	"polysentry/internal/state"
)

// ClosedMarket detects the false -> true closed transition for each market
// in a freshly fetched raw snapshot, comparing against priorEvent (the
// state as it stood before this cycle's mutation; nil if the event was not
// previously tracked). A market with no prior observation cannot have
// transitioned, so it never fires on first sight. allClosed reports whether
// every market in the snapshot is now closed, the orchestrator's signal to
// remove the event entirely.
func ClosedMarket(eventSlug string, eventName string, priorEvent *state.MonitoredEvent, raw state.RawEventSnapshot, now time.Time) (out []alerts.ClosedMarket, allClosed bool) {
	if len(raw.Markets) == 0 {
		return nil, false
	}

	allClosed = true

	for _, rm := range raw.Markets {
		if !rm.Closed {
			allClosed = false
		}

		outcomes := state.ParseArrayField(rm.Outcomes)
		prices := state.ParseArrayField(rm.OutcomePrices)

		for _, outcome := range outcomes {
			prior := findPriorMarket(priorEvent, rm.Question, outcome)
			if prior == nil || !rm.Closed || prior.IsClosed {
				continue
			}

			finalPrice, finalPriceOK := finalPriceForOutcome(outcome, prices)
			if !finalPriceOK {
				finalPrice, finalPriceOK = prior.CurrentPrice, prior.CurrentPriceOK
			}

			out = append(out, alerts.ClosedMarket{
				EventName:      eventName,
				EventSlug:      eventSlug,
				MarketQuestion: rm.Question,
				Outcome:        outcome,
				FinalPrice:     finalPrice,
				FinalPriceOK:   finalPriceOK,
				DetectedAt:     now,
			})
		}
	}

	return out, allClosed
}

// finalPriceForOutcome applies the fixed outcome-to-index mapping: "Yes" is
// index 0, anything else is index 1. Non-binary markets are not handled.
func finalPriceForOutcome(outcome string, prices []string) (float64, bool) {
	idx := 1
	if outcome == "Yes" {
		idx = 0
	}
	if idx >= len(prices) {
		return 0, false
	}
	v, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func findPriorMarket(priorEvent *state.MonitoredEvent, question, outcome string) *state.MonitoredMarket {
	if priorEvent == nil {
		return nil
	}
	for _, m := range priorEvent.Markets {
		if m.Question == question && m.Outcome == outcome {
			return m
		}
	}
	return nil
}
