package node

import (
	"energytrade.dev/settle/covenant"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_settlements_total",
		Help: "Settlement attempts by transition and result code",
	}, []string{"transition", "code"})

	settlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "escrow_settlement_duration_seconds",
		Help:    "Duration of settlement evaluation and commit",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	recordsFundedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_records_funded_total",
		Help: "Records funded by covenant type",
	}, []string{"covenant_type"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordSettlement counts one settlement attempt; code is "OK" on accept.
func RecordSettlement(transition string, code string) {
	settlementsTotal.WithLabelValues(transition, code).Inc()
}

func covenantTypeLabel(t uint16) string {
	switch t {
	case covenant.COV_TYPE_ENERGY_ESCROW:
		return "energy_escrow"
	case covenant.COV_TYPE_TRADE_SETTLEMENT:
		return "trade_settlement"
	default:
		return "other"
	}
}
