package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the credit service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	GenerationsTotal      *prometheus.CounterVec
	GenerationDuration    *prometheus.HistogramVec
	CreditsChargedTotal   prometheus.Counter
	RefundsTotal          *prometheus.CounterVec
	RefundFailuresTotal   prometheus.Counter
	RateLimitDenialsTotal prometheus.Counter
	WebhookEventsTotal    *prometheus.CounterVec
	InviteRedemptions     *prometheus.CounterVec
	QuotaRefreshesTotal   *prometheus.CounterVec
	LedgerExportsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_generations_total",
				Help: "Generation requests by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replyfox_generation_duration_seconds",
				Help:    "End-to-end generation latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"outcome"},
		),
		CreditsChargedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replyfox_credits_charged_total",
			Help: "Credits charged for generations, before refunds",
		}),
		RefundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_generation_refunds_total",
				Help: "Refunded generation charges by failure reason",
			},
			[]string{"reason"},
		),
		RefundFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replyfox_generation_refund_failures_total",
			Help: "Refunds that could not be written",
		}),
		RateLimitDenialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replyfox_rate_limit_denials_total",
			Help: "Generation attempts rejected by the rate limiter",
		}),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_webhook_events_total",
				Help: "Payment webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		InviteRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_invite_redemptions_total",
				Help: "Invite redemption attempts by outcome",
			},
			[]string{"outcome"},
		),
		QuotaRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_quota_refreshes_total",
				Help: "Daily quota resets by trigger",
			},
			[]string{"trigger"},
		),
		LedgerExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyfox_ledger_exports_total",
				Help: "Ledger export runs by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.GenerationsTotal,
		m.GenerationDuration,
		m.CreditsChargedTotal,
		m.RefundsTotal,
		m.RefundFailuresTotal,
		m.RateLimitDenialsTotal,
		m.WebhookEventsTotal,
		m.InviteRedemptions,
		m.QuotaRefreshesTotal,
		m.LedgerExportsTotal,
	)
	return m
}

func (m *Metrics) ObserveGeneration(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) AddCreditsCharged(amount int64) {
	if m == nil {
		return
	}
	m.CreditsChargedTotal.Add(float64(amount))
}

func (m *Metrics) IncRefund(reason string) {
	if m == nil {
		return
	}
	m.RefundsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRefundFailure() {
	if m == nil {
		return
	}
	m.RefundFailuresTotal.Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitDenialsTotal.Inc()
}

func (m *Metrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncInvite(outcome string) {
	if m == nil {
		return
	}
	m.InviteRedemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncQuotaRefresh(trigger string) {
	if m == nil {
		return
	}
	m.QuotaRefreshesTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncLedgerExport(outcome string) {
	if m == nil {
		return
	}
	m.LedgerExportsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
