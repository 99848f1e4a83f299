package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_initiated_total",
		Help: "Total number of checkout sessions created",
	}, []string{"item_type"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of checkout attempts that did not produce a redirect",
	}, []string{"reason"})

	OrderInsertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_insert_failures_total",
		Help: "Checkout sessions created without a matching order row",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders transitioned to completed",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of stale orders cancelled by the sweeper",
	})

	ReconcileNotFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_not_found_total",
		Help: "Checkout returns with no matching order row",
	})

	PaymentSessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_session_latency_seconds",
		Help:    "Latency of checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	EventApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_approvals_total",
		Help: "Total number of approval changes by outcome",
	}, []string{"outcome"})

	NotificationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Total number of notifications created by source",
	}, []string{"source"})

	NotificationsPushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_pushed_total",
		Help: "Total number of realtime notification pushes delivered to inboxes",
	})

	RealtimeReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_reconnects_total",
		Help: "Total number of change feed reconnect attempts",
	})

	RealtimeMissedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_missed_total",
		Help: "Total number of changes not queued for a lagging subscriber",
	})

	OutboxRelayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relayed_total",
		Help: "Total number of outbox messages published to Kafka",
	})

	OutboxRelayFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relay_failures_total",
		Help: "Total number of failed outbox relay passes",
	})

	ConsumerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_retries_total",
		Help: "Total number of Kafka message handler retries",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Read cache lookups by namespace and result",
	}, []string{"namespace", "result"})

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
