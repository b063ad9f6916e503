package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		coinsCreditedTotal,
		duplicateCreditsSuppressed,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by terminal outcome (pending/success/failed).",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value (minor units) of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	coinsCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_coins_credited_total",
			Help: "Coins credited to wallets by source (one_time_purchase/subscription).",
		},
		[]string{"source"},
	)

	duplicateCreditsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_duplicate_credits_suppressed_total",
			Help: "Reconciliation attempts that found an existing ledger entry and skipped crediting.",
		},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amountMinor int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amountMinor))
}

func AddCoinsCredited(source string, coins int64) {
	coinsCreditedTotal.WithLabelValues(norm(source)).Add(float64(coins))
}

func IncDuplicateCreditSuppressed() {
	duplicateCreditsSuppressed.Inc()
}
