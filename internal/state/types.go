// Package state holds the in-memory market state: the events mapping, the
// per-token rolling-window statistics, and the event-snapshot parsing and
// reconciliation logic that keeps them in sync with upstream polls.
package state

import (
	"time"

	"polysentry/internal/stats"
)

const (
	volumeWindow1h = time.Hour
	volumeWindow4h = 4 * time.Hour
	priceWindow1h  = time.Hour
	priceWindow4h  = 4 * time.Hour
)

// MonitoredMarket is one (event, question, outcome) leg. Optional numeric
// fields carry an explicit presence flag rather than a sentinel value, so
// "absent" and "zero" are never confused.
type MonitoredMarket struct {
	MarketID        string
	Question        string
	Outcome         string
	TokenID         string
	HasTokenID      bool
	CurrentPrice    float64
	CurrentPriceOK  bool
	PreviousPrice   float64
	PreviousPriceOK bool
	IsClosed        bool
	Volume24h       float64
	Volume24hOK     bool
	Liquidity       float64
	LiquidityOK     bool
	LVR             float64
	LVROK           bool
}

// recomputeLVR derives LVR from the market's current volume/liquidity pair.
// Called whenever either input changes; never stored independent of them.
func (m *MonitoredMarket) recomputeLVR() {
	m.LVR, m.LVROK = stats.LVR(m.Volume24h, m.Liquidity, m.Volume24hOK, m.LiquidityOK)
}

// MonitoredEvent is a configured slug's current snapshot.
type MonitoredEvent struct {
	Slug        string
	Name        string
	Markets     []*MonitoredMarket
	LastUpdated time.Time
}

// MarketStatistics holds the four rolling windows owned by one token id.
type MarketStatistics struct {
	Volume1h *stats.RollingWindow
	Volume4h *stats.RollingWindow
	Price1h  *stats.RollingWindow
	Price4h  *stats.RollingWindow
}

func newMarketStatistics() *MarketStatistics {
	return &MarketStatistics{
		Volume1h: stats.NewRollingWindow(volumeWindow1h),
		Volume4h: stats.NewRollingWindow(volumeWindow4h),
		Price1h:  stats.NewRollingWindow(priceWindow1h),
		Price4h:  stats.NewRollingWindow(priceWindow4h),
	}
}

// Window looks up one of the four windows by metric and span, or nil for an
// unknown pair.
func (ms *MarketStatistics) Window(metric Metric, window Window) *stats.RollingWindow {
	switch {
	case metric == MetricVolume && window == Window1h:
		return ms.Volume1h
	case metric == MetricVolume && window == Window4h:
		return ms.Volume4h
	case metric == MetricPrice && window == Window1h:
		return ms.Price1h
	case metric == MetricPrice && window == Window4h:
		return ms.Price4h
	default:
		return nil
	}
}

// Metric names one of the two observation streams a window holds.
type Metric string

const (
	MetricVolume Metric = "volume"
	MetricPrice  Metric = "price"
)

// Window names one of the two rolling-window spans.
type Window string

const (
	Window1h Window = "1h"
	Window4h Window = "4h"
)

// AllWindowKeys is the fixed metric x window cross product of the four
// windows a MarketStatistics holds.
var AllWindowKeys = []struct {
	Metric Metric
	Window Window
}{
	{MetricVolume, Window1h},
	{MetricVolume, Window4h},
	{MetricPrice, Window1h},
	{MetricPrice, Window4h},
}
