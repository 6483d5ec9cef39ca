package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics handles all Prometheus metrics for the surveillance service.
type PrometheusMetrics struct {
	// Cycle Metrics
	CyclesRun      prometheus.Counter
	CycleDuration  prometheus.Histogram
	CycleErrors    *prometheus.CounterVec

	// Fetch Metrics
	EventFetches *prometheus.CounterVec
	TokenFetches *prometheus.CounterVec

	// Detector Metrics
	AlertsEmitted      *prometheus.CounterVec
	AlertsSuppressed   *prometheus.CounterVec
	TrackedEvents      prometheus.Gauge
	TrackedTokens      prometheus.Gauge

	// Notification Metrics
	NotificationsSent *prometheus.CounterVec

	// Cross-check Metrics
	PriceMidpointDivergence prometheus.Histogram

	server *http.Server
}

// NewPrometheusMetrics creates and registers all Prometheus collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	metrics := &PrometheusMetrics{
		CyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polysentry_cycles_total",
			Help: "Total number of poll-detect-alert cycles run",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polysentry_cycle_duration_seconds",
			Help:    "Duration of one full cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_cycle_errors_total",
				Help: "Total number of cycle-level errors, by stage",
			},
			[]string{"stage"},
		),

		EventFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_event_fetches_total",
				Help: "Total Gamma API event-snapshot fetches, by outcome",
			},
			[]string{"slug", "outcome"},
		),

		TokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_token_fetches_total",
				Help: "Total CLOB API token-snapshot fetches, by outcome",
			},
			[]string{"outcome"},
		),

		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_alerts_emitted_total",
				Help: "Total alerts emitted, by detector kind",
			},
			[]string{"kind"},
		),

		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_alerts_suppressed_total",
				Help: "Total candidate alerts suppressed by the cooldown manager, by metric",
			},
			[]string{"metric"},
		),

		TrackedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polysentry_tracked_events",
			Help: "Number of events currently tracked",
		}),

		TrackedTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polysentry_tracked_tokens",
			Help: "Number of tokens with active rolling-window statistics",
		}),

		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysentry_notifications_total",
				Help: "Total outbound notification attempts, by result",
			},
			[]string{"result"},
		),

		PriceMidpointDivergence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polysentry_price_midpoint_divergence",
			Help:    "Absolute relative difference between CLOB last-traded price and midpoint, per token per cycle",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	prometheus.MustRegister(
		metrics.CyclesRun,
		metrics.CycleDuration,
		metrics.CycleErrors,
		metrics.EventFetches,
		metrics.TokenFetches,
		metrics.AlertsEmitted,
		metrics.AlertsSuppressed,
		metrics.TrackedEvents,
		metrics.TrackedTokens,
		metrics.NotificationsSent,
		metrics.PriceMidpointDivergence,
	)

	return metrics
}

// Start starts the Prometheus metrics HTTP server.
func (m *PrometheusMetrics) Start(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	log.Printf("starting metrics server on port %s", port)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server.
func (m *PrometheusMetrics) Stop() error {
	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.server.Shutdown(ctx)
}

// RecordCycle records one cycle's duration.
func (m *PrometheusMetrics) RecordCycle(duration time.Duration) {
	m.CyclesRun.Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// RecordCycleError records a cycle-level error at the named stage.
func (m *PrometheusMetrics) RecordCycleError(stage string) {
	m.CycleErrors.WithLabelValues(stage).Inc()
}

// RecordEventFetch records a Gamma API fetch outcome for a slug.
func (m *PrometheusMetrics) RecordEventFetch(slug, outcome string) {
	m.EventFetches.WithLabelValues(slug, outcome).Inc()
}

// RecordTokenFetch records a CLOB API fetch outcome.
func (m *PrometheusMetrics) RecordTokenFetch(outcome string) {
	m.TokenFetches.WithLabelValues(outcome).Inc()
}

// RecordAlert records one emitted alert of the given kind.
func (m *PrometheusMetrics) RecordAlert(kind string) {
	m.AlertsEmitted.WithLabelValues(kind).Inc()
}

// RecordSuppressed records one candidate alert suppressed by cooldown.
func (m *PrometheusMetrics) RecordSuppressed(metric string) {
	m.AlertsSuppressed.WithLabelValues(metric).Inc()
}

// SetTrackedEvents sets the current tracked-event count.
func (m *PrometheusMetrics) SetTrackedEvents(n int) {
	m.TrackedEvents.Set(float64(n))
}

// SetTrackedTokens sets the current tracked-token count.
func (m *PrometheusMetrics) SetTrackedTokens(n int) {
	m.TrackedTokens.Set(float64(n))
}

// RecordNotification records one outbound notification attempt's result.
func (m *PrometheusMetrics) RecordNotification(result string) {
	m.NotificationsSent.WithLabelValues(result).Inc()
}

// RecordPriceDivergence records the absolute relative difference between a
// token's CLOB last-traded price and its midpoint. Informational only; it
// never feeds a detector.
func (m *PrometheusMetrics) RecordPriceDivergence(divergence float64) {
	m.PriceMidpointDivergence.Observe(divergence)
}
