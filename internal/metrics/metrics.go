package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	UpdatesTotal   *prometheus.CounterVec
	UpdateDuration *prometheus.HistogramVec

	BankRequestsTotal   *prometheus.CounterVec
	BankRequestDuration *prometheus.HistogramVec
	TokenRefreshesTotal *prometheus.CounterVec

	PollCyclesTotal     *prometheus.CounterVec
	ActivePollers       prometheus.Gauge
	NotificationsTotal  *prometheus.CounterVec
	RateLimitHitsTotal  *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	LinkedAccountsTotal prometheus.Gauge
}

// New регистрирует метрики в reg. В тестах удобно передавать prometheus.NewRegistry(),
// чтобы не ловить panic на повторной регистрации.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		UpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_updates_total",
				Help: "Total number of telegram updates processed",
			},
			[]string{"type", "status"},
		),
		UpdateDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bank_bot_update_duration_seconds",
				Help:    "Telegram update handling duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"type"},
		),

		BankRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_bank_requests_total",
				Help: "Total number of bank data API requests",
			},
			[]string{"endpoint", "status"},
		),
		BankRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bank_bot_bank_request_duration_seconds",
				Help:    "Bank data API request duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		),
		TokenRefreshesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_token_refreshes_total",
				Help: "Total number of access token exchanges",
			},
			[]string{"kind", "status"},
		),

		PollCyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_poll_cycles_total",
				Help: "Total number of transaction check cycles by outcome",
			},
			[]string{"outcome"},
		),
		ActivePollers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bank_bot_active_pollers",
				Help: "Number of users with an armed transaction poller",
			},
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_notifications_total",
				Help: "Total number of notifications sent",
			},
			[]string{"kind", "status"},
		),
		RateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_bot_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"action"},
		),
		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bank_bot_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bank_bot_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
		LinkedAccountsTotal: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bank_bot_linked_accounts",
				Help: "Number of authorized users seen at startup",
			},
		),
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordUpdate(updType, status string, duration time.Duration) {
	m.UpdatesTotal.WithLabelValues(updType, status).Inc()
	m.UpdateDuration.WithLabelValues(updType).Observe(duration.Seconds())
}

func (m *Metrics) RecordBankRequest(endpoint, status string, duration time.Duration) {
	m.BankRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.BankRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenRefresh(kind, status string) {
	m.TokenRefreshesTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordPollCycle(outcome string) {
	m.PollCyclesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncActivePollers() {
	m.ActivePollers.Inc()
}

func (m *Metrics) DecActivePollers() {
	m.ActivePollers.Dec()
}

func (m *Metrics) RecordNotification(kind, status string) {
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordRateLimitHit(action string) {
	m.RateLimitHitsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) SetLinkedAccounts(count float64) {
	m.LinkedAccountsTotal.Set(count)
}
