package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	OrdersPendingPickupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_pending_pickup_total",
		Help: "Total number of orders that reached pending pickup",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersPickedUpTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_picked_up_total",
		Help: "Total number of orders handed over at pickup",
	})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	PaymentIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Total number of payment intents requested",
	})

	PaymentFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_fallback_total",
		Help: "Total number of intents downgraded to simulation",
	}, []string{"cause"})

	PaymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Total number of payment outcomes applied",
	}, []string{"status"})

	RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickup_redemptions_total",
		Help: "Total number of successful pickup redemptions",
	})

	RedemptionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickup_redemptions_failed_total",
		Help: "Total number of rejected pickup scans",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
