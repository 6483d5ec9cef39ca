package detectors

import (
	"math"
	"testing"
	"time"

	"polysentry/internal/alerts"
	"polysentry/internal/cooldown"
	"polysentry/internal/state"
	"polysentry/internal/stats"
)

func market(question, outcome string, prev, cur float64, prevOK, curOK, closed bool) *state.MonitoredMarket {
	m := &state.MonitoredMarket{
		Question:        question,
		Outcome:         outcome,
		PreviousPrice:   prev,
		PreviousPriceOK: prevOK,
		CurrentPrice:    cur,
		CurrentPriceOK:  curOK,
		IsClosed:        closed,
	}
	return m
}

func TestSpikeUp(t *testing.T) {
	m := market("Q", "Yes", 0.50, 0.60, true, true, false)
	got := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now())
	if len(got) != 1 {
		t.Fatalf("expected 1 spike, got %d", len(got))
	}
	if got[0].Direction != alerts.DirectionUp || math.Abs(got[0].ChangePercent-20.0) > 1e-9 {
		t.Fatalf("unexpected spike: %+v", got[0])
	}
}

func TestSpikeSuppressedByFirstPollRule(t *testing.T) {
	m := market("Q", "Yes", 0, 0.80, false, true, false)
	if got := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now()); len(got) != 0 {
		t.Fatalf("expected no spike on first observation, got %d", len(got))
	}
}

func TestSpikeSuppressedWhenClosed(t *testing.T) {
	m := market("Q", "Yes", 0.5, 0.9, true, true, true)
	if got := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now()); len(got) != 0 {
		t.Fatalf("expected no spike for closed market, got %d", len(got))
	}
}

func TestSpikeThresholdBoundaryFiresAtExact(t *testing.T) {
	m := market("Q", "Yes", 0.50, 0.525, true, true, false) // exactly 5%
	if got := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now()); len(got) != 1 {
		t.Fatalf("expected spike to fire at exact threshold, got %d", len(got))
	}
}

func TestLiquidityWarningGatedOnSpike(t *testing.T) {
	m := market("Q", "Yes", 0.50, 0.60, true, true, false)
	m.LVR, m.LVROK = 10.0, true
	event := &state.MonitoredEvent{Name: "Event", Markets: []*state.MonitoredMarket{m}}

	spikes := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now())
	if len(spikes) != 1 {
		t.Fatalf("expected 1 spike")
	}

	warnings := LiquidityWarning(spikes, []*state.MonitoredEvent{event}, 8.0)
	if len(warnings) != 1 || warnings[0].HealthStatus != stats.HighRisk {
		t.Fatalf("expected 1 high-risk liquidity warning, got %+v", warnings)
	}
}

func TestLiquidityWarningNotFiredBelowThreshold(t *testing.T) {
	m := market("Q", "Yes", 0.50, 0.60, true, true, false)
	m.LVR, m.LVROK = 1.0, true
	event := &state.MonitoredEvent{Name: "Event", Markets: []*state.MonitoredMarket{m}}
	spikes := Spike("Event", []*state.MonitoredMarket{m}, 5.0, time.Now())

	if got := LiquidityWarning(spikes, []*state.MonitoredEvent{event}, 8.0); len(got) != 0 {
		t.Fatalf("expected no liquidity warning below threshold, got %d", len(got))
	}
}

func TestLiquidityWarningNeverFiresWithoutSpike(t *testing.T) {
	event := &state.MonitoredEvent{Name: "Event"}
	if got := LiquidityWarning(nil, []*state.MonitoredEvent{event}, 8.0); len(got) != 0 {
		t.Fatalf("expected no warnings without spikes, got %d", len(got))
	}
}

func TestZScoreDetectorMADZeroYieldsNoAlert(t *testing.T) {
	ms := &state.MarketStatistics{
		Volume1h: stats.NewRollingWindowWithMin(time.Hour, 1),
		Volume4h: stats.NewRollingWindowWithMin(time.Hour, 1),
		Price1h:  stats.NewRollingWindowWithMin(time.Hour, 1),
		Price4h:  stats.NewRollingWindowWithMin(time.Hour, 1),
	}
	now := time.Now()
	for i := 0; i < 5; i++ {
		ms.Volume1h.Add(3, now)
	}

	cd := cooldown.New(0, 1.0)
	got := ZScore(map[string]*state.MarketStatistics{"tok": ms}, nil, 3.5, cd, now)
	if len(got) != 0 {
		t.Fatalf("expected no alert when mad=0, got %d", len(got))
	}
}

func TestMADDetectorOverOutliers(t *testing.T) {
	ms := &state.MarketStatistics{
		Volume1h: stats.NewRollingWindowWithMin(time.Hour, 1),
		Volume4h: stats.NewRollingWindowWithMin(time.Hour, 1),
		Price1h:  stats.NewRollingWindowWithMin(time.Hour, 1),
		Price4h:  stats.NewRollingWindowWithMin(time.Hour, 1),
	}
	now := time.Now()
	for _, v := range []float64{1, 2, 3, 4, 100} {
		ms.Price1h.Add(v, now)
	}

	cd := cooldown.New(0, 1.0)
	got := MAD(map[string]*state.MarketStatistics{"tok": ms}, nil, 3.0, cd, now)
	if len(got) != 1 {
		t.Fatalf("expected 1 MAD alert, got %d", len(got))
	}
	if got[0].Multiplier != 97.0 {
		t.Fatalf("expected multiplier 97.0, got %v", got[0].Multiplier)
	}
}

func TestClosedMarketTransitionRemovesEvent(t *testing.T) {
	prior := &state.MonitoredEvent{
		Slug: "evt",
		Name: "Event",
		Markets: []*state.MonitoredMarket{
			market("Q", "Yes", 0, 0.5, false, true, false),
			market("Q", "No", 0, 0.5, false, true, false),
		},
	}

	raw := state.RawEventSnapshot{
		Slug:  "evt",
		Title: "Event",
		Markets: []state.RawMarket{
			{
				Question:      "Q",
				Outcomes:      rawJSON(`["Yes","No"]`),
				OutcomePrices: rawJSON(`["1.0","0.0"]`),
				Closed:        true,
			},
		},
	}

	out, allClosed := ClosedMarket("evt", "Event", prior, raw, time.Now())
	if !allClosed {
		t.Fatalf("expected allClosed=true")
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 closed-market alerts, got %d", len(out))
	}
}

func TestClosedMarketNoTransitionOnFirstSight(t *testing.T) {
	raw := state.RawEventSnapshot{
		Slug:  "evt",
		Title: "Event",
		Markets: []state.RawMarket{
			{Question: "Q", Outcomes: rawJSON(`["Yes","No"]`), OutcomePrices: rawJSON(`["1.0","0.0"]`), Closed: true},
		},
	}
	out, _ := ClosedMarket("evt", "Event", nil, raw, time.Now())
	if len(out) != 0 {
		t.Fatalf("expected no alert for an event seen for the first time, got %d", len(out))
	}
}

func rawJSON(s string) []byte { return []byte(s) }
