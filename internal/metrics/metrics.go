// Package metrics defines and registers the custom Prometheus metrics of the
// transfer service. It is the single source of truth for metric names,
// labels, and help strings.
//
// All metrics are registered with the default registry on package init via
// promauto; the /metrics endpoint serves them next to the echo request
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sealnote"

// ── Authentication metrics ───────────────────────────────────────────────────

// AuthAttemptsTotal counts gateway decisions.
// Labels:
//   - scheme: "bearer", "apikey" or "none"
//   - outcome: "ok" or the rejection kind (e.g. "token_expired", "unknown_credential")
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication attempts, by scheme and outcome.",
	},
	[]string{"scheme", "outcome"},
)

// APIKeysEvictedTotal counts expired API keys removed on use or on listing.
var APIKeysEvictedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "apikeys_evicted_total",
		Help:      "Total number of expired API keys purged.",
	},
)

// SecondFactorChecksTotal counts one-time code verifications.
// Label:
//   - result: "ok", "rejected" or "error"
var SecondFactorChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "second_factor_checks_total",
		Help:      "Total number of second factor verifications, by result.",
	},
	[]string{"result"},
)

// ── Crypto pool metrics ──────────────────────────────────────────────────────

// CryptoQueueDepth tracks jobs waiting for a crypto worker.
var CryptoQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "crypto_queue_depth",
		Help:      "Current number of CPU-bound jobs waiting for a worker.",
	},
)

// CryptoJobDuration measures time spent running a job on a worker.
// Label:
//   - job: "keygen", "seal", "open"
var CryptoJobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "crypto_job_duration_seconds",
		Help:      "Duration of CPU-bound crypto jobs executed on the worker pool.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	},
	[]string{"job"},
)

// ── Domain metrics ───────────────────────────────────────────────────────────

// UsersRegisteredTotal counts successful registrations.
var UsersRegisteredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_registered_total",
		Help:      "Total number of registered users.",
	},
)

// TransfersCreatedTotal counts sent transfers.
// Label:
//   - currency: "EUR", "USD", …
var TransfersCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_created_total",
		Help:      "Total number of transfers created, by currency.",
	},
	[]string{"currency"},
)

// RotationsTotal counts password rotations.
// Label:
//   - result: "ok", "invalid_credentials", "validation", "busy", "failed"
var RotationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotations_total",
		Help:      "Total number of password rotations, by result.",
	},
	[]string{"result"},
)

// RotationDuration measures a whole rotation, key generation included.
var RotationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rotation_duration_seconds",
		Help:      "Duration of password rotations from verification to commit.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	},
)

// RotationNotesResealed counts notes re-encrypted by committed rotations.
var RotationNotesResealed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotation_notes_resealed_total",
		Help:      "Total number of notes re-encrypted by committed rotations.",
	},
)
