package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"polysentry/internal/alerts"
)

func testTelegram(t *testing.T, baseURL string) *Telegram {
	t.Helper()
	tg := New("bot-token", "chat-id", zap.NewNop())
	tg.apiBase = baseURL
	tg.httpClient = http.DefaultClient
	return tg
}

func sampleSpikeAlert() alerts.Alert {
	return alerts.FromSpike(alerts.Spike{
		EventName:      "Will it rain",
		MarketQuestion: "Will it rain tomorrow?",
		Outcome:        "Yes",
		PriceBefore:    0.50,
		PriceAfter:     0.60,
		ChangePercent:  20.0,
		Direction:      alerts.DirectionUp,
		DetectedAt:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestSendPostsFormattedMessage(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := testTelegram(t, server.URL)

	ok := tg.Send(context.Background(), sampleSpikeAlert())
	if !ok {
		t.Fatalf("expected send to succeed")
	}
	if gotPath == "" {
		t.Fatalf("expected a request to reach the server")
	}
}

func TestSendReturnsFalseOnAPIFailureDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	tg := testTelegram(t, server.URL)

	if tg.Send(context.Background(), sampleSpikeAlert()) {
		t.Fatalf("expected send to fail")
	}
}

func TestSendReturnsFalseOnRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tg := testTelegram(t, server.URL)

	if tg.Send(context.Background(), sampleSpikeAlert()) {
		t.Fatalf("expected send to fail when rate-limited")
	}
}

func TestSendAllCountsSuccessesOnly(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := testTelegram(t, server.URL)

	batch := []alerts.Alert{sampleSpikeAlert(), sampleSpikeAlert(), sampleSpikeAlert()}
	sent := tg.SendAll(context.Background(), batch)
	if sent != 2 {
		t.Fatalf("expected 2 sent out of 3, got %d", sent)
	}
}
