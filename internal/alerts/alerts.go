// Package alerts defines the five tagged alert variants the detector suite
// produces and the Markdown formatting used to render them for the outbound
// chat channel.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"polysentry/internal/stats"
)

// Kind tags which of the five alert variants a value carries.
type Kind string

const (
	KindSpike            Kind = "spike"
	KindLiquidityWarning Kind = "liquidity_warning"
	KindZScore           Kind = "zscore"
	KindMAD              Kind = "mad"
	KindClosedMarket     Kind = "closed_market"
)

// Direction is the sign of a detected price move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Metric names the observation stream a statistical detector ran over.
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

// Spike is emitted when a market's price moves more than spike_threshold
// percent between consecutive event-snapshot polls.
type Spike struct {
	EventName      string
	MarketQuestion string
	Outcome        string
	PriceBefore    float64
	PriceAfter     float64
	ChangePercent  float64
	Direction      Direction
	DetectedAt     time.Time
}

// LiquidityWarning is emitted only alongside a Spike produced in the same
// cycle, for the same (event, question, outcome), when that market's LVR
// exceeds lvr_threshold.
type LiquidityWarning struct {
	EventName      string
	MarketQuestion string
	Outcome        string
	PriceBefore    float64
	PriceAfter     float64
	ChangePercent  float64
	Direction      Direction
	LVR            float64
	HealthStatus   stats.HealthStatus
	Volume24h      float64
	Liquidity      float64
	DetectedAt     time.Time
}

// ZScore is emitted when a token's volume window's MAD-scaled z-score
// exceeds the configured threshold in absolute value.
type ZScore struct {
	EventName    string
	Outcome      string
	TokenID      string
	Metric       Metric
	Window       Window
	CurrentValue float64
	Median       float64
	MAD          float64
	Score        float64
	Threshold    float64
	DetectedAt   time.Time
}

// MAD is emitted when a token's price window's current value deviates from
// the median by more than multiplier MADs.
type MAD struct {
	EventName    string
	Outcome      string
	TokenID      string
	Metric       Metric
	Window       Window
	CurrentValue float64
	Median       float64
	MAD          float64
	Multiplier   float64
	Threshold    float64
	AboveMedian  bool
	DetectedAt   time.Time
}

// ClosedMarket is emitted exactly on a market's false -> true closed
// transition.
type ClosedMarket struct {
	EventName      string
	EventSlug      string
	MarketQuestion string
	Outcome        string
	FinalPrice     float64
	FinalPriceOK   bool
	DetectedAt     time.Time
}

// Alert is the tagged sum over the five variants. Exactly one of the
// pointer fields is non-nil, selected by Kind.
type Alert struct {
	Kind             Kind
	Spike            *Spike
	LiquidityWarning *LiquidityWarning
	ZScore           *ZScore
	MAD              *MAD
	ClosedMarket     *ClosedMarket
}

func FromSpike(s Spike) Alert             { return Alert{Kind: KindSpike, Spike: &s} }
func FromLiquidityWarning(l LiquidityWarning) Alert {
	return Alert{Kind: KindLiquidityWarning, LiquidityWarning: &l}
}
func FromZScore(z ZScore) Alert       { return Alert{Kind: KindZScore, ZScore: &z} }
func FromMAD(m MAD) Alert             { return Alert{Kind: KindMAD, MAD: &m} }
func FromClosedMarket(c ClosedMarket) Alert {
	return Alert{Kind: KindClosedMarket, ClosedMarket: &c}
}

// markdownSpecialChars is the exact escape set the outbound boundary
// requires for any user-supplied string interpolated into a message body.
var markdownSpecialChars = []string{
	"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!",
}

// EscapeMarkdown prefixes every Markdown special character with a backslash.
func EscapeMarkdown(text string) string {
	var b strings.Builder
	for _, r := range text {
		c := string(r)
		for _, special := range markdownSpecialChars {
			if c == special {
				b.WriteByte('\\')
				break
			}
		}
		b.WriteString(c)
	}
	return b.String()
}

func directionArrow(d Direction) string {
	if d == DirectionUp {
		return "↑"
	}
	return "↓"
}

func directionSign(d Direction) string {
	if d == DirectionUp {
		return "+"
	}
	return "-"
}

const timeLayout = "2006-01-02 15:04:05"

// FormatMessage renders an Alert as a Telegram-Markdown message body.
func FormatMessage(a Alert) string {
	switch a.Kind {
	case KindSpike:
		return formatSpike(*a.Spike)
	case KindLiquidityWarning:
		return formatLiquidityWarning(*a.LiquidityWarning)
	case KindZScore:
		return formatZScore(*a.ZScore)
	case KindMAD:
		return formatMAD(*a.MAD)
	case KindClosedMarket:
		return formatClosedMarket(*a.ClosedMarket)
	default:
		return ""
	}
}

func formatSpike(s Spike) string {
	return fmt.Sprintf(
		"\U0001F6A8 *Price Spike Detected*\n\n"+
			"*Event*: %s\n"+
			"*Market*: %s\n"+
			"*Outcome*: %s\n"+
			"*Price*: %.4f %s %.4f (%s%.1f%%)\n"+
			"*Time*: %s UTC",
		EscapeMarkdown(s.EventName),
		EscapeMarkdown(s.MarketQuestion),
		s.Outcome,
		s.PriceBefore, directionArrow(s.Direction), s.PriceAfter,
		directionSign(s.Direction), s.ChangePercent,
		s.DetectedAt.UTC().Format(timeLayout),
	)
}

func formatLiquidityWarning(w LiquidityWarning) string {
	return fmt.Sprintf(
		"⚠️ *Liquidity Warning*\n\n"+
			"*Event*: %s\n"+
			"*Market*: %s\n"+
			"*Outcome*: %s\n"+
			"*Price*: %.4f %s %.4f (%s%.1f%%)\n"+
			"*LVR*: %.1f (%s)\n"+
			"*Time*: %s UTC",
		EscapeMarkdown(w.EventName),
		EscapeMarkdown(w.MarketQuestion),
		w.Outcome,
		w.PriceBefore, directionArrow(w.Direction), w.PriceAfter,
		directionSign(w.Direction), w.ChangePercent,
		w.LVR, w.HealthStatus,
		w.DetectedAt.UTC().Format(timeLayout),
	)
}

func formatZScore(z ZScore) string {
	return fmt.Sprintf(
		"\U0001F4C9 *Z-Score Anomaly*\n\n"+
			"*Event*: %s\n"+
			"*Outcome*: %s\n"+
			"*Metric*: %s (%s window)\n"+
			"*Value*: %.4f (median %.4f, MAD %.4f)\n"+
			"*Z-Score*: %.2f (threshold %.2f)\n"+
			"*Time*: %s UTC",
		EscapeMarkdown(z.EventName),
		z.Outcome,
		z.Metric, z.Window,
		z.CurrentValue, z.Median, z.MAD,
		z.Score, z.Threshold,
		z.DetectedAt.UTC().Format(timeLayout),
	)
}

func formatMAD(m MAD) string {
	rel := "above"
	if !m.AboveMedian {
		rel = "below"
	}
	return fmt.Sprintf(
		"\U0001F4CA *MAD Anomaly*\n\n"+
			"*Event*: %s\n"+
			"*Outcome*: %s\n"+
			"*Metric*: %s (%s window)\n"+
			"*Value*: %.4f is %s median %.4f by %.1fx MAD (threshold %.1fx)\n"+
			"*Time*: %s UTC",
		EscapeMarkdown(m.EventName),
		m.Outcome,
		m.Metric, m.Window,
		m.CurrentValue, rel, m.Median, m.Multiplier, m.Threshold,
		m.DetectedAt.UTC().Format(timeLayout),
	)
}

func formatClosedMarket(c ClosedMarket) string {
	priceStr := "unknown"
	if c.FinalPriceOK {
		priceStr = fmt.Sprintf("%.4f", c.FinalPrice)
	}
	return fmt.Sprintf(
		"\U0001F512 *Market Closed*\n\n"+
			"*Event*: %s\n"+
			"*Market*: %s\n"+
			"*Outcome*: %s\n"+
			"*Final Price*: %s\n"+
			"*Time*: %s UTC",
		EscapeMarkdown(c.EventName),
		EscapeMarkdown(c.MarketQuestion),
		c.Outcome,
		priceStr,
		c.DetectedAt.UTC().Format(timeLayout),
	)
}
