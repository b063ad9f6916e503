package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		WebhooksReceived,
		WebhookSignatureFailures,
	)
}

var (
	// outcome: processed|duplicate|bad_payload|bad_signature|error
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_received_total",
			Help: "Inbound provider webhooks by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	WebhookSignatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_signature_failures_total",
			Help: "Webhook deliveries rejected for a bad or missing signature.",
		},
		[]string{"provider"},
	)
)
