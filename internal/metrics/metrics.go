package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtsched_requests_submitted_total",
		Help: "Scheduled reservation requests accepted",
	})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtsched_executions_total",
		Help: "Completed executions by outcome",
	}, []string{"outcome"})

	LateExecutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtsched_late_executions_total",
		Help: "Executions fired after their trigger instant had already passed",
	})

	ReservationAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtsched_reservation_attempts_total",
		Help: "Individual court reservation submissions",
	})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "courtsched_resolve_duration_seconds",
		Help:    "Time from trigger instant to terminal outcome",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	CredentialReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtsched_credential_reloads_total",
		Help: "Session cookie snapshot reloads",
	})

	SessionAgeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtsched_session_age_seconds",
		Help: "Age of the current credential snapshot",
	})

	QuarantinedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtsched_quarantined_requests_total",
		Help: "Stored requests sidelined because they could not be interpreted",
	})
)
