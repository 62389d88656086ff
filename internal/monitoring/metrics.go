// Package monitoring exposes the marketplace's Prometheus counters.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ListingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_listings_created_total",
			Help: "Listings created by sellers",
		},
	)

	ListingsSplit = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_listings_split_total",
			Help: "Partial-sale splits performed",
		},
	)

	OrdersInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_orders_initiated_total",
			Help: "Orders that reached the payment gateway",
		},
	)

	OrdersCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_orders_completed_total",
			Help: "Orders confirmed as paid and sold",
		},
	)

	OrdersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_orders_failed_total",
			Help: "Orders that ended failed, by reason",
		},
		[]string{"reason"},
	)

	PayoutsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_payouts_recorded_total",
			Help: "Seller payout obligations recorded",
		},
	)
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
