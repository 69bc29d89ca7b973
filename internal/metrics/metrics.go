// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "usalli"

var TransfersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "transfer",
	Name:      "created_total",
	Help:      "Transfers created, by initial status.",
}, []string{"status"})

var UnlockCodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "unlock",
	Name:      "codes_issued_total",
	Help:      "Unlock codes issued, by step.",
}, []string{"step"})

var UnlockVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "unlock",
	Name:      "verifications_total",
	Help:      "Unlock code verifications, by result.",
}, []string{"result"})

var CreditDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credit",
	Name:      "decisions_total",
	Help:      "Credit request status updates, by requested status and whether they changed state.",
}, []string{"status", "applied"})

var OutboxDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "outbox",
	Name:      "events_dispatched_total",
	Help:      "Outbox events processed by the dispatcher, by result.",
}, []string{"result"})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests served, by method, route and status code.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)
