package cycle

import (
	"context"

	"go.uber.org/zap"

	"polysentry/internal/alerts"
	"polysentry/internal/metrics"
	"polysentry/internal/notify"
	"polysentry/internal/publisher"
)

// broadcaster is the subset of opsserver.Server this package depends on,
// so cycle never imports the HTTP/WebSocket machinery directly.
type broadcaster interface {
	BroadcastAlert(a alerts.Alert)
}

// NotifySink delivers each alert to Telegram, fans it out over Redis, and
// mirrors it to the ops WebSocket stream. All three are best-effort and
// independent: a fan-out failure never suppresses the outbound notification
// or vice versa.
type NotifySink struct {
	notifier    *notify.Telegram
	publisher   *publisher.RedisPublisher
	broadcaster broadcaster
	metrics     *metrics.PrometheusMetrics
	logger      *zap.Logger
}

// NewNotifySink builds a Sink. publisher and broadcaster may be nil, in
// which case that leg of fan-out is skipped.
func NewNotifySink(notifier *notify.Telegram, pub *publisher.RedisPublisher, bc broadcaster, m *metrics.PrometheusMetrics, logger *zap.Logger) *NotifySink {
	return &NotifySink{
		notifier:    notifier,
		publisher:   pub,
		broadcaster: bc,
		metrics:     m,
		logger:      logger,
	}
}

// Send delivers a to every configured destination.
func (s *NotifySink) Send(ctx context.Context, a alerts.Alert) {
	if s.notifier.Send(ctx, a) {
		s.metrics.RecordNotification("sent")
	} else {
		s.metrics.RecordNotification("failed")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAlert(a); err != nil {
			s.logger.Debug("alert fan-out skipped", zap.String("kind", string(a.Kind)), zap.Error(err))
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastAlert(a)
	}
}
