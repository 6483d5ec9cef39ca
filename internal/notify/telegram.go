// Package notify delivers formatted alert messages to the outbound chat
// channel. There is no persistent retry queue: a failed send is logged and
// the alert is dropped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"polysentry/internal/alerts"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

// Telegram sends alert bodies via the Telegram Bot API.
type Telegram struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Telegram notifier for the given bot token and chat id.
func New(botToken, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

type sendMessagePayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers one alert. Success is an HTTP 200 whose body acknowledges
// the send; 429 and any other failure are logged and swallowed.
func (t *Telegram) Send(ctx context.Context, a alerts.Alert) bool {
	message := alerts.FormatMessage(a)
	return t.sendRaw(ctx, message)
}

func (t *Telegram) sendRaw(ctx context.Context, message string) bool {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	body, err := json.Marshal(sendMessagePayload{
		ChatID:    t.chatID,
		Text:      message,
		ParseMode: "Markdown",
	})
	if err != nil {
		t.logger.Error("telegram payload marshal failed", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.logger.Error("telegram request build failed", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("telegram request error", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result sendMessageResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.logger.Error("telegram response decode failed", zap.Error(err))
			return false
		}
		if !result.OK {
			t.logger.Error("telegram api error", zap.String("description", result.Description))
			return false
		}
		t.logger.Info("telegram alert sent")
		return true
	case http.StatusTooManyRequests:
		t.logger.Warn("telegram rate limited, dropped")
		return false
	default:
		t.logger.Error("telegram http error", zap.Int("status", resp.StatusCode))
		return false
	}
}

// SendAll delivers every alert, logging and continuing past individual
// failures, and returns the number successfully sent.
func (t *Telegram) SendAll(ctx context.Context, batch []alerts.Alert) int {
	sent := 0
	for _, a := range batch {
		if t.Send(ctx, a) {
			sent++
		} else {
			t.logger.Warn("failed to deliver alert", zap.String("kind", string(a.Kind)))
		}
	}
	if len(batch) > 0 {
		t.logger.Info("delivered alert batch", zap.Int("sent", sent), zap.Int("total", len(batch)))
	}
	return sent
}
