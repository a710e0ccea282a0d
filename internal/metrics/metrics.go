// Package metrics holds the Prometheus collectors exposed at /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event kinds
const (
	EventMessage  = "message"
	EventPostback = "postback"
	EventSkipped  = "skipped"
)

var (
	// DeliveriesTotal counts POST /webhook deliveries by response status
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_webhook_deliveries_total",
			Help: "Total number of webhook deliveries by HTTP response status",
		},
		[]string{"status"},
	)

	// EventsTotal counts messaging events by kind
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_events_total",
			Help: "Total number of messaging events by kind",
		},
		[]string{"kind"},
	)

	// SendsTotal counts outbound Send API calls by result
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_sends_total",
			Help: "Total number of outbound sends by result",
		},
		[]string{"result"},
	)

	// SendDuration tracks Send API latency
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "messenger_send_duration_seconds",
			Help:    "Send API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
