package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpass_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classpass_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpass_webhook_events_total",
			Help: "Total number of payment provider webhook events received",
		},
		[]string{"type", "outcome"},
	)

	WebhookVerifyFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classpass_webhook_verify_failures_total",
			Help: "Total number of webhook events rejected by signature verification",
		},
	)

	ActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpass_subscription_activations_total",
			Help: "Total number of applied subscription activations",
		},
		[]string{"plan", "source"},
	)

	DuplicateTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classpass_duplicate_transitions_total",
			Help: "Total number of suppressed duplicate activation requests",
		},
	)

	AccessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpass_access_checks_total",
			Help: "Total number of access gate checks",
		},
		[]string{"result"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classpass_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classpass_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordWebhookVerifyFailure() {
	WebhookVerifyFailuresTotal.Inc()
}

func RecordActivation(plan, source string) {
	ActivationsTotal.WithLabelValues(plan, source).Inc()
}

func RecordDuplicateTransition() {
	DuplicateTransitionsTotal.Inc()
}

func RecordAccessCheck(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	AccessChecksTotal.WithLabelValues(result).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
