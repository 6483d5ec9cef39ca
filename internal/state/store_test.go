package state

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func rawSnapshot(t *testing.T, slug, title string, closed bool, prices []string) RawEventSnapshot {
	t.Helper()
	outcomes, _ := json.Marshal([]string{"Yes", "No"})
	priceArr, _ := json.Marshal(prices)
	tokenIDs, _ := json.Marshal([]string{"tok-yes", "tok-no"})
	return RawEventSnapshot{
		Slug:  slug,
		Title: title,
		Markets: []RawMarket{
			{
				ConditionID:   "cond-1",
				Question:      "Will it happen?",
				Outcomes:      outcomes,
				OutcomePrices: priceArr,
				ClobTokenIds:  tokenIDs,
				Closed:        closed,
				Volume24hr:    json.RawMessage(`"1000"`),
				LiquidityNum:  json.RawMessage(`8000`),
			},
		},
	}
}

func TestApplyEventSnapshotFirstObservationHasNoPreviousPrice(t *testing.T) {
	s := New(zap.NewNop())
	parsed := ParseEventSnapshot(rawSnapshot(t, "evt", "Event", false, []string{"0.50", "0.50"}))
	event := s.ApplyEventSnapshot(parsed, time.Now())

	if len(event.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(event.Markets))
	}
	for _, m := range event.Markets {
		if m.PreviousPriceOK {
			t.Fatalf("expected no previous price on first observation")
		}
		if !m.CurrentPriceOK || m.CurrentPrice != 0.50 {
			t.Fatalf("expected current price 0.50, got %v/%v", m.CurrentPrice, m.CurrentPriceOK)
		}
	}
}

func TestApplyEventSnapshotCarriesCurrentToPrevious(t *testing.T) {
	s := New(zap.NewNop())
	now := time.Now()
	s.ApplyEventSnapshot(ParseEventSnapshot(rawSnapshot(t, "evt", "Event", false, []string{"0.50", "0.50"})), now)
	event := s.ApplyEventSnapshot(ParseEventSnapshot(rawSnapshot(t, "evt", "Event", false, []string{"0.60", "0.40"})), now)

	yes := event.Markets[0]
	if !yes.PreviousPriceOK || yes.PreviousPrice != 0.50 {
		t.Fatalf("expected previous price 0.50, got %v/%v", yes.PreviousPrice, yes.PreviousPriceOK)
	}
	if !yes.CurrentPriceOK || yes.CurrentPrice != 0.60 {
		t.Fatalf("expected current price 0.60, got %v/%v", yes.CurrentPrice, yes.CurrentPriceOK)
	}
}

func TestApplyEventSnapshotIdempotentDoubleApply(t *testing.T) {
	s := New(zap.NewNop())
	now := time.Now()
	raw := rawSnapshot(t, "evt", "Event", false, []string{"0.70", "0.30"})
	s.ApplyEventSnapshot(ParseEventSnapshot(raw), now)
	event := s.ApplyEventSnapshot(ParseEventSnapshot(raw), now)

	for _, m := range event.Markets {
		if !m.PreviousPriceOK || m.PreviousPrice != m.CurrentPrice {
			t.Fatalf("expected previous == current after re-applying identical snapshot")
		}
	}
}

func TestApplyEventSnapshotRecomputesLVR(t *testing.T) {
	s := New(zap.NewNop())
	event := s.ApplyEventSnapshot(ParseEventSnapshot(rawSnapshot(t, "evt", "Event", false, []string{"0.50", "0.50"})), time.Now())
	m := event.Markets[0]
	if !m.LVROK || m.LVR != 1000.0/8000.0 {
		t.Fatalf("expected lvr = 0.125, got %v/%v", m.LVR, m.LVROK)
	}
}

func TestParseArrayFieldAcceptsJSONEncodedString(t *testing.T) {
	encoded, _ := json.Marshal(`["Yes","No"]`)
	got := ParseArrayField(encoded)
	if len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Fatalf("expected [Yes No], got %v", got)
	}
}

func TestParseArrayFieldAndNativeArrayAgree(t *testing.T) {
	native, _ := json.Marshal([]string{"Yes", "No"})
	asString, _ := json.Marshal(string(native))

	gotNative := ParseArrayField(native)
	gotString := ParseArrayField(asString)

	if len(gotNative) != len(gotString) {
		t.Fatalf("shapes disagree: %v vs %v", gotNative, gotString)
	}
	for i := range gotNative {
		if gotNative[i] != gotString[i] {
			t.Fatalf("shapes disagree at %d: %v vs %v", i, gotNative[i], gotString[i])
		}
	}
}

func TestParseOptionalFloatHandlesStringAndNumber(t *testing.T) {
	if v, ok := ParseOptionalFloat(json.RawMessage(`"12.5"`)); !ok || v != 12.5 {
		t.Fatalf("expected 12.5 from string, got %v/%v", v, ok)
	}
	if v, ok := ParseOptionalFloat(json.RawMessage(`12.5`)); !ok || v != 12.5 {
		t.Fatalf("expected 12.5 from number, got %v/%v", v, ok)
	}
	if _, ok := ParseOptionalFloat(json.RawMessage(`"not-a-number"`)); ok {
		t.Fatalf("expected parse failure to yield absent, not an error")
	}
	if _, ok := ParseOptionalFloat(nil); ok {
		t.Fatalf("expected absent field to yield absent")
	}
}

func TestApplyTokenSnapshotSkipsIncompleteEntries(t *testing.T) {
	s := New(zap.NewNop())
	now := time.Now()
	s.ApplyTokenSnapshot(map[string]TokenObservation{
		"tok-a": {Price: 0.5, PriceOK: true, TotalBookSizeOK: false},
		"tok-b": {Price: 0.6, PriceOK: true, TotalBookSize: 1000, TotalBookSizeOK: true},
	}, now)

	if _, ok := s.MarketStats("tok-a"); ok {
		t.Fatalf("expected tok-a to be skipped (missing book size)")
	}
	ms, ok := s.MarketStats("tok-b")
	if !ok {
		t.Fatalf("expected tok-b statistics to exist")
	}
	if ms.Price1h.Len() != 1 || ms.Volume1h.Len() != 1 {
		t.Fatalf("expected one observation folded into tok-b windows")
	}
}

func TestActiveTokenIDsExcludesClosedMarkets(t *testing.T) {
	s := New(zap.NewNop())
	s.ApplyEventSnapshot(ParseEventSnapshot(rawSnapshot(t, "evt", "Event", true, []string{"0.50", "0.50"})), time.Now())
	if ids := s.ActiveTokenIDs(); len(ids) != 0 {
		t.Fatalf("expected no active token ids for a fully closed event, got %v", ids)
	}
}

func TestRemoveEvent(t *testing.T) {
	s := New(zap.NewNop())
	s.ApplyEventSnapshot(ParseEventSnapshot(rawSnapshot(t, "evt", "Event", false, []string{"0.50", "0.50"})), time.Now())
	s.RemoveEvent("evt")
	if _, ok := s.Event("evt"); ok {
		t.Fatalf("expected event to be removed")
	}
}
