package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created from quotes",
	})

	BookingsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_replayed_total",
		Help: "Total number of booking requests answered from an existing booking",
	})

	BookingsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_rejected_total",
		Help: "Total number of booking requests rejected before a booking was created",
	}, []string{"reason"})

	BookingItemCopyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_item_copy_failures_total",
		Help: "Total number of quote items that could not be copied onto a booking",
	})

	BookingItemsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_items_dispatched_total",
		Help: "Total number of booking items dispatched, by route and outcome",
	}, []string{"provider", "outcome"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Latency of inventory provider requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_errors_total",
		Help: "Total number of failed inventory provider requests",
	}, []string{"provider", "operation"})

	ConfirmationsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confirmations_recorded_total",
		Help: "Total number of booking confirmation rows recorded",
	}, []string{"provider", "status"})

	ReconfirmationPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconfirmation_polls_total",
		Help: "Total number of reconfirmation poll cycles",
	}, []string{"outcome"})

	ReconfirmationsFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconfirmations_found_total",
		Help: "Total number of hotel confirmation numbers written back",
	})

	ReconfirmationPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconfirmation_poll_duration_seconds",
		Help:    "Duration of a reconfirmation poll cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment webhook events received",
	}, []string{"type", "outcome"})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Total number of notifications handed to the broker",
	}, []string{"kind"})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Total number of notifications handed to the delivery collaborator",
	}, []string{"kind"})

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
