// Package publisher fans out surviving alerts to Redis pub/sub, for
// external dashboards and auxiliary consumers. This is a side channel:
// alert delivery correctness rests on internal/notify, not on this
// package, and a publish failure here never drops the outbound
// notification.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"polysentry/internal/alerts"
)

// PublishMetrics tracks fan-out statistics.
type PublishMetrics struct {
	TotalEvents      int64         `json:"total_events"`
	SuccessfulEvents int64         `json:"successful_events"`
	FailedEvents     int64         `json:"failed_events"`
	ThrottledEvents  int64         `json:"throttled_events"`
	AverageLatency   time.Duration `json:"average_latency"`
	LastPublish      time.Time     `json:"last_publish"`
}

// RedisPublisher fans out alerts to Redis PubSub with throttling, so a
// downstream consumer burst never saturates the shared connection.
type RedisPublisher struct {
	client  *redis.Client
	logger  *zap.Logger
	metrics PublishMetrics
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	maxMessagesPerSecond int
	messageCount         int
	lastResetTime        time.Time
	throttleMutex        sync.Mutex
}

// NewRedisPublisher creates a RedisPublisher over an existing client.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisPublisher{
		client:               client,
		logger:               logger,
		ctx:                  ctx,
		cancel:               cancel,
		maxMessagesPerSecond: 100,
		lastResetTime:        time.Now(),
	}
}

// channelName is "polysentry:alerts:<kind>", one channel per alert kind.
func channelName(kind alerts.Kind) string {
	return fmt.Sprintf("polysentry:alerts:%s", kind)
}

// PublishAlert fans out one alert as JSON. A throttled or failed publish is
// logged and returned as an error; the caller's outbound notification path
// is unaffected either way.
func (rp *RedisPublisher) PublishAlert(a alerts.Alert) error {
	if !rp.checkThrottle() {
		rp.updateMetrics(false, 0, true)
		rp.logger.Debug("alert fan-out throttled", zap.String("kind", string(a.Kind)))
		return fmt.Errorf("alert fan-out throttled - rate limit exceeded")
	}

	start := time.Now()

	payload, err := json.Marshal(a)
	if err != nil {
		rp.updateMetrics(false, time.Since(start), false)
		rp.logger.Error("alert marshal failed", zap.String("kind", string(a.Kind)), zap.Error(err))
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := rp.client.Publish(rp.ctx, channelName(a.Kind), payload).Err(); err != nil {
		rp.updateMetrics(false, time.Since(start), false)
		rp.logger.Error("alert publish failed", zap.String("kind", string(a.Kind)), zap.Error(err))
		return fmt.Errorf("publish alert: %w", err)
	}

	rp.updateMetrics(true, time.Since(start), false)
	rp.logger.Debug("alert published", zap.String("kind", string(a.Kind)), zap.Duration("latency", time.Since(start)))
	return nil
}

// checkThrottle reports whether another publish is allowed this second.
func (rp *RedisPublisher) checkThrottle() bool {
	rp.throttleMutex.Lock()
	defer rp.throttleMutex.Unlock()

	now := time.Now()
	if now.Sub(rp.lastResetTime) >= time.Second {
		rp.messageCount = 0
		rp.lastResetTime = now
	}

	if rp.messageCount >= rp.maxMessagesPerSecond {
		return false
	}
	rp.messageCount++
	return true
}

// SetThrottleLimit sets the maximum alerts published per second.
func (rp *RedisPublisher) SetThrottleLimit(limit int) {
	rp.throttleMutex.Lock()
	defer rp.throttleMutex.Unlock()
	rp.maxMessagesPerSecond = limit
	rp.logger.Info("fan-out throttle limit updated", zap.Int("messages_per_second", limit))
}

func (rp *RedisPublisher) updateMetrics(success bool, latency time.Duration, throttled bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.metrics.TotalEvents++
	if throttled {
		rp.metrics.ThrottledEvents++
		return
	}

	if success {
		rp.metrics.SuccessfulEvents++
	} else {
		rp.metrics.FailedEvents++
	}

	samples := rp.metrics.SuccessfulEvents + rp.metrics.FailedEvents
	rp.metrics.AverageLatency = time.Duration(
		(int64(rp.metrics.AverageLatency)*(samples-1) + int64(latency)) / samples,
	)

	rp.metrics.LastPublish = time.Now()
}

// GetMetrics returns current fan-out metrics.
func (rp *RedisPublisher) GetMetrics() PublishMetrics {
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.metrics
}

// Health reports whether the Redis connection is reachable.
func (rp *RedisPublisher) Health() bool {
	if err := rp.client.Ping(rp.ctx).Err(); err != nil {
		rp.logger.Error("redis health check failed", zap.Error(err))
		return false
	}
	return true
}

// Close releases the publisher's background context.
func (rp *RedisPublisher) Close() error {
	rp.cancel()
	rp.logger.Info("alert publisher closed")
	return nil
}
