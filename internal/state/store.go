package state

import (
	"time"

	"go.uber.org/zap"
)

// marketKey is the (question, outcome) pair the reconciler matches on, per
// the data model's matching rule for apply_event_snapshot.
type marketKey struct {
	question string
	outcome  string
}

// TokenObservation is one token's fresh (price, total_book_size) pair for a
// single tick. Either component may be absent; an entry missing either is
// skipped entirely by ApplyTokenSnapshot.
type TokenObservation struct {
	Price           float64
	PriceOK         bool
	TotalBookSize   float64
	TotalBookSizeOK bool
}

// Store owns the events mapping and the per-token statistics mapping. It is
// the sole mutator of both; the orchestrator drives it sequentially within
// one cycle, so no internal locking is needed.
type Store struct {
	events      map[string]*MonitoredEvent
	marketStats map[string]*MarketStatistics
	logger      *zap.Logger
}

// New returns an empty Store that logs LVR recomputation at Debug level.
func New(logger *zap.Logger) *Store {
	return &Store{
		events:      make(map[string]*MonitoredEvent),
		marketStats: make(map[string]*MarketStatistics),
		logger:      logger,
	}
}

// Event returns the event for slug, if tracked.
func (s *Store) Event(slug string) (*MonitoredEvent, bool) {
	e, ok := s.events[slug]
	return e, ok
}

// Events returns every tracked event, in no particular order.
func (s *Store) Events() []*MonitoredEvent {
	out := make([]*MonitoredEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out
}

// Slugs returns every tracked event's slug.
func (s *Store) Slugs() []string {
	out := make([]string, 0, len(s.events))
	for slug := range s.events {
		out = append(out, slug)
	}
	return out
}

// RemoveEvent deletes an event and its markets from the store. The caller
// is responsible for having already extracted any alerts that depend on the
// prior state.
func (s *Store) RemoveEvent(slug string) {
	delete(s.events, slug)
}

// MarketStats returns the statistics for tokenID, if any observation has
// ever been folded in for it.
func (s *Store) MarketStats(tokenID string) (*MarketStatistics, bool) {
	ms, ok := s.marketStats[tokenID]
	return ms, ok
}

// AllMarketStats returns every tracked token's statistics, keyed by token id.
func (s *Store) AllMarketStats() map[string]*MarketStatistics {
	return s.marketStats
}

// TokenLabel identifies the event/outcome a token id belongs to, for
// annotating alerts that are otherwise keyed only by token id.
type TokenLabel struct {
	EventName string
	Outcome   string
}

// TokenLabels builds a token id -> (event name, outcome) lookup across all
// tracked events, for detectors that iterate per-token statistics but need
// to report a human-readable event/outcome in their alerts.
func (s *Store) TokenLabels() map[string]TokenLabel {
	out := make(map[string]TokenLabel)
	for _, e := range s.events {
		for _, m := range e.Markets {
			if !m.HasTokenID {
				continue
			}
			out[m.TokenID] = TokenLabel{EventName: e.Name, Outcome: m.Outcome}
		}
	}
	return out
}

// ActiveTokenIDs returns the token id of every non-closed market across all
// tracked events, the auto-derivation fallback for the orchestrator's token
// snapshot fetch when no config override is set.
func (s *Store) ActiveTokenIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.events {
		for _, m := range e.Markets {
			if m.IsClosed || !m.HasTokenID {
				continue
			}
			if !seen[m.TokenID] {
				seen[m.TokenID] = true
				out = append(out, m.TokenID)
			}
		}
	}
	return out
}

// ApplyEventSnapshot reconciles a freshly parsed event against existing
// state, matching markets by (question, outcome). The prior current_price
// becomes the new previous_price; an unmatched new market starts with no
// previous price (the first-observation rule). LVR is recomputed from the
// new volume/liquidity pair. Events absent from the snapshot are untouched;
// this only ever mutates the event named in parsed.
func (s *Store) ApplyEventSnapshot(parsed *ParsedEvent, now time.Time) *MonitoredEvent {
	existing, hadEvent := s.events[parsed.Slug]

	var priorByKey map[marketKey]*MonitoredMarket
	if hadEvent {
		priorByKey = make(map[marketKey]*MonitoredMarket, len(existing.Markets))
		for _, m := range existing.Markets {
			priorByKey[marketKey{question: m.Question, outcome: m.Outcome}] = m
		}
	}

	markets := make([]*MonitoredMarket, 0, len(parsed.Markets))
	for _, pm := range parsed.Markets {
		m := &MonitoredMarket{
			MarketID:       pm.MarketID,
			Question:       pm.Question,
			Outcome:        pm.Outcome,
			TokenID:        pm.TokenID,
			HasTokenID:     pm.HasTokenID,
			CurrentPrice:   pm.Price,
			CurrentPriceOK: pm.PriceOK,
			IsClosed:       pm.Closed,
			Volume24h:      pm.Volume24h,
			Volume24hOK:    pm.Volume24hOK,
			Liquidity:      pm.Liquidity,
			LiquidityOK:    pm.LiquidityOK,
		}

		if prior, ok := priorByKey[marketKey{question: pm.Question, outcome: pm.Outcome}]; ok {
			m.PreviousPrice, m.PreviousPriceOK = prior.CurrentPrice, prior.CurrentPriceOK
		}

		m.recomputeLVR()
		if m.LVROK {
			s.logger.Debug("LVR calculated",
				zap.String("question", m.Question),
				zap.String("outcome", m.Outcome),
				zap.Float64("lvr", m.LVR),
				zap.Float64("volume_24h", m.Volume24h),
				zap.Float64("liquidity", m.Liquidity),
			)
		}
		markets = append(markets, m)
	}

	event := &MonitoredEvent{
		Slug:        parsed.Slug,
		Name:        parsed.Name,
		Markets:     markets,
		LastUpdated: now,
	}
	s.events[parsed.Slug] = event
	return event
}

// ApplyTokenSnapshot folds a tick's token observations into the four
// rolling windows per token, lazily creating a MarketStatistics on first
// observation. Entries missing either component are skipped.
func (s *Store) ApplyTokenSnapshot(observations map[string]TokenObservation, now time.Time) {
	for tokenID, obs := range observations {
		if !obs.PriceOK || !obs.TotalBookSizeOK {
			continue
		}

		ms, ok := s.marketStats[tokenID]
		if !ok {
			ms = newMarketStatistics()
			s.marketStats[tokenID] = ms
		}

		ms.Volume1h.Add(obs.TotalBookSize, now)
		ms.Volume4h.Add(obs.TotalBookSize, now)
		ms.Price1h.Add(obs.Price, now)
		ms.Price4h.Add(obs.Price, now)
	}
}
