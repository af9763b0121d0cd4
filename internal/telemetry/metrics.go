package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, labelled by wire-level provider.
var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Inbound webhook deliveries accepted at the HTTP edge",
	}, []string{"provider"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed_total",
		Help: "Webhook events fully processed by the worker",
	}, []string{"provider"})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed_total",
		Help: "Webhook event processing failures (each one schedules a retry)",
	}, []string{"provider"})

	EventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_dead_lettered_total",
		Help: "Webhook events that exhausted their retry budget",
	}, []string{"provider"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_event_processing_seconds",
		Help:    "Per-event handler duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)
