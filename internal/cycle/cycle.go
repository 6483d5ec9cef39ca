// Package cycle implements the poll-detect-alert cycle: one pass of
// fetching event and token snapshots, running the five detectors in their
// fixed order, and handing surviving alerts to the outbound notifier and
// the alert fan-out publisher.
package cycle

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"polysentry/internal/alerts"
	"polysentry/internal/clob"
	"polysentry/internal/config"
	"polysentry/internal/cooldown"
	"polysentry/internal/detectors"
	"polysentry/internal/gamma"
	"polysentry/internal/metrics"
	"polysentry/internal/state"
)

// Sink receives every alert that survives detection and cooldown, for
// outbound delivery and fan-out. Send is best-effort: a failure is logged
// by the implementation and never aborts the cycle.
type Sink interface {
	Send(ctx context.Context, a alerts.Alert)
}

// Orchestrator owns the store and cooldown manager and drives one cycle at
// a time. It is the sole mutator of both, so it requires no internal
// locking: the scheduler that calls Run must not call it concurrently.
type Orchestrator struct {
	cfg      *config.Config
	gamma    *gamma.Client
	clob     *clob.Client
	store    *state.Store
	cooldown *cooldown.Manager
	sink     Sink
	metrics  *metrics.PrometheusMetrics
	logger   *zap.Logger
}

// New builds an Orchestrator over a fresh, empty store.
func New(cfg *config.Config, gammaClient *gamma.Client, clobClient *clob.Client, sink Sink, m *metrics.PrometheusMetrics, logger *zap.Logger) *Orchestrator {
	cooldownDuration := time.Duration(cfg.CooldownMinutes) * time.Minute
	return &Orchestrator{
		cfg:      cfg,
		gamma:    gammaClient,
		clob:     clobClient,
		store:    state.New(logger),
		cooldown: cooldown.New(cooldownDuration, cfg.EscalationThreshold),
		sink:     sink,
		metrics:  m,
		logger:   logger,
	}
}

// Run executes one full cycle against wall time now. Every step after
// cooldown cleanup is wrapped so an error at one slug or token never stops
// the rest of the cycle or the next one.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		o.metrics.RecordCycle(time.Since(start))
	}()

	o.cooldown.CleanupStale(now)

	for _, slug := range o.cfg.Slugs {
		o.runSlug(ctx, slug, now)
	}

	o.metrics.SetTrackedEvents(len(o.store.Events()))

	tokenIDs := o.cfg.ClobTokenIDs
	if len(tokenIDs) == 0 {
		tokenIDs = o.store.ActiveTokenIDs()
	}

	if len(tokenIDs) > 0 {
		observations := o.clob.FetchAll(ctx, tokenIDs)
		o.store.ApplyTokenSnapshot(observations, now)
		for _, tokenID := range tokenIDs {
			obs, ok := observations[tokenID]
			result := "ok"
			if !ok || !obs.PriceOK || !obs.TotalBookSizeOK {
				result = "missing"
			}
			o.metrics.RecordTokenFetch(result)

			if ok && obs.PriceOK && obs.Price != 0 {
				o.recordPriceDivergence(ctx, tokenID, obs.Price)
			}
		}
	}

	o.metrics.SetTrackedTokens(len(o.store.AllMarketStats()))

	labels := o.store.TokenLabels()
	allStats := o.store.AllMarketStats()

	if o.cfg.Detectors.Enabled(config.DetectorZScore) {
		for _, z := range detectors.ZScore(allStats, labels, o.cfg.ZScoreThreshold, o.cooldown, now) {
			o.emit(ctx, alerts.FromZScore(z))
		}
	}

	if o.cfg.Detectors.Enabled(config.DetectorMAD) {
		for _, m := range detectors.MAD(allStats, labels, o.cfg.MADMultiplier, o.cooldown, now) {
			o.emit(ctx, alerts.FromMAD(m))
		}
	}
}

// runSlug fetches one slug's event snapshot, runs closed-market detection
// against the prior state, applies the snapshot, and then runs spike and
// liquidity-warning detection against the new state.
func (o *Orchestrator) runSlug(ctx context.Context, slug string, now time.Time) {
	raw, ok := o.gamma.FetchEvent(ctx, slug)
	if !ok {
		o.metrics.RecordEventFetch(slug, "missing")
		o.metrics.RecordCycleError("fetch_event")
		return
	}
	o.metrics.RecordEventFetch(slug, "ok")

	priorEvent, hadPrior := o.store.Event(slug)

	if o.cfg.Detectors.Enabled(config.DetectorClosed) {
		var closedAlerts []alerts.ClosedMarket
		var allClosed bool
		if hadPrior {
			closedAlerts, allClosed = detectors.ClosedMarket(slug, priorEvent.Name, priorEvent, raw, now)
		} else {
			closedAlerts, allClosed = detectors.ClosedMarket(slug, raw.Title, nil, raw, now)
		}
		for _, c := range closedAlerts {
			o.emit(ctx, alerts.FromClosedMarket(c))
		}
		if allClosed && len(raw.Markets) > 0 {
			o.store.RemoveEvent(slug)
			return
		}
	}

	parsed := state.ParseEventSnapshot(raw)
	event := o.store.ApplyEventSnapshot(parsed, now)

	var spikes []alerts.Spike
	if o.cfg.Detectors.Enabled(config.DetectorSpike) {
		spikes = detectors.Spike(event.Name, event.Markets, o.cfg.SpikeThreshold, now)
		for _, s := range spikes {
			o.emit(ctx, alerts.FromSpike(s))
		}

		if o.cfg.Detectors.Enabled(config.DetectorLVR) && len(spikes) > 0 {
			for _, w := range detectors.LiquidityWarning(spikes, []*state.MonitoredEvent{event}, o.cfg.LVRThreshold) {
				o.emit(ctx, alerts.FromLiquidityWarning(w))
			}
		}
	}
}

// recordPriceDivergence cross-checks the CLOB last-traded price against the
// midpoint already folded into the store, purely for the
// polysentry_price_midpoint_divergence ops metric. Never an input to a
// detector: a missing or zero price simply skips the observation.
func (o *Orchestrator) recordPriceDivergence(ctx context.Context, tokenID string, midpoint float64) {
	price, ok := o.clob.FetchPrice(ctx, tokenID)
	if !ok {
		return
	}
	o.metrics.RecordPriceDivergence(math.Abs(price-midpoint) / midpoint)
}

// emit records the alert's metric and hands it to the sink. It never
// blocks the cycle on delivery failure; the sink logs its own errors.
func (o *Orchestrator) emit(ctx context.Context, a alerts.Alert) {
	o.metrics.RecordAlert(string(a.Kind))
	o.sink.Send(ctx, a)
}
