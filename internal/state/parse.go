package state

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawMarket is the on-wire shape of one entry in an event snapshot's
// "markets" array. outcomes/outcomePrices/clobTokenIds are left as raw JSON
// because upstream may encode each either as a native array or as a string
// containing JSON-encoded array text; volume24hr/liquidityNum may arrive as
// a JSON number or a numeric string.
type RawMarket struct {
	ConditionID   string          `json:"conditionId"`
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIds  json.RawMessage `json:"clobTokenIds"`
	Closed        bool            `json:"closed"`
	Volume24hr    json.RawMessage `json:"volume24hr"`
	LiquidityNum  json.RawMessage `json:"liquidityNum"`
}

// RawEventSnapshot is the on-wire shape of a single event-snapshot response.
type RawEventSnapshot struct {
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Markets []RawMarket `json:"markets"`
}

// ParsedMarket is one outcome-leg extracted from a RawEventSnapshot, before
// reconciliation against prior state.
type ParsedMarket struct {
	MarketID     string
	Question     string
	Outcome      string
	TokenID      string
	HasTokenID   bool
	Price        float64
	PriceOK      bool
	Closed       bool
	Volume24h    float64
	Volume24hOK  bool
	Liquidity    float64
	LiquidityOK  bool
}

// ParsedEvent is a fully-parsed event snapshot, one ParsedMarket per
// outcome, with no relation yet to any prior process state.
type ParsedEvent struct {
	Slug    string
	Name    string
	Markets []ParsedMarket
}

// ParseArrayField accepts a field that upstream may encode either as a
// native JSON array of strings or as a JSON string containing array text.
// Any other shape, or a parse failure, yields an empty slice rather than an
// error: callers never branch on the wire shape.
func ParseArrayField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		var nested []string
		if err := json.Unmarshal([]byte(encoded), &nested); err == nil {
			return nested
		}
	}

	return nil
}

// ParseOptionalFloat accepts a JSON number or a numeric string. A parse
// failure or null/absent field yields ok=false, never an error that would
// abort the surrounding snapshot.
func ParseOptionalFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}

	return 0, false
}

// ParseEventSnapshot converts a RawEventSnapshot into one ParsedMarket per
// outcome, with no cross-reference to existing process state.
func ParseEventSnapshot(raw RawEventSnapshot) *ParsedEvent {
	parsed := &ParsedEvent{Slug: raw.Slug, Name: raw.Title}

	for _, rm := range raw.Markets {
		outcomes := ParseArrayField(rm.Outcomes)
		prices := ParseArrayField(rm.OutcomePrices)
		tokenIDs := ParseArrayField(rm.ClobTokenIds)

		volume24h, volume24hOK := ParseOptionalFloat(rm.Volume24hr)
		liquidity, liquidityOK := ParseOptionalFloat(rm.LiquidityNum)

		marketID := rm.ConditionID
		if marketID == "" {
			marketID = rm.ID
		}

		for i, outcome := range outcomes {
			pm := ParsedMarket{
				MarketID:    marketID,
				Question:    rm.Question,
				Outcome:     outcome,
				Closed:      rm.Closed,
				Volume24h:   volume24h,
				Volume24hOK: volume24hOK,
				Liquidity:   liquidity,
				LiquidityOK: liquidityOK,
			}

			if i < len(prices) {
				if v, err := strconv.ParseFloat(prices[i], 64); err == nil {
					pm.Price, pm.PriceOK = v, true
				}
			}

			if i < len(tokenIDs) && tokenIDs[i] != "" {
				pm.TokenID, pm.HasTokenID = tokenIDs[i], true
			}

			parsed.Markets = append(parsed.Markets, pm)
		}
	}

	return parsed
}
