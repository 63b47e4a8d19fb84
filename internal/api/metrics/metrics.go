// Package metrics defines and registers the custom Prometheus metrics of the
// identity service. Metrics are registered with the default registry on
// import and exposed on /metrics by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Authentication ────────────────────────────────────────────────────────────

// AuthOperationsTotal counts authentication service outcomes.
// Labels:
//   - operation: signup, login, verify_email, request_reset, reset_password, refresh, logout
//   - result: "ok" or a short failure reason (e.g. "invalid_credentials", "expired")
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_operations_total",
		Help:      "Total number of authentication operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// AuthorizationDeniedTotal counts requests rejected by the auth middleware.
// Label:
//   - reason: "missing", "expired", "invalid", "unknown_user", "revoked", "role"
var AuthorizationDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_denied_total",
		Help:      "Total number of requests rejected by authorization middleware.",
	},
	[]string{"reason"},
)

// PasswordHashDuration measures bcrypt work per operation.
// Label:
//   - op: "hash" or "compare"
var PasswordHashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_hash_duration_seconds",
		Help:      "Duration of password hashing and comparison.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// ── Mail ──────────────────────────────────────────────────────────────────────

// MailSentTotal counts delivery attempts.
// Labels:
//   - kind: verification, reset_request, reset_confirmation
//   - result: "sent", "failed" or "dropped" (queue full)
var MailSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_sent_total",
		Help:      "Total number of notification emails, by kind and delivery result.",
	},
	[]string{"kind", "result"},
)

// MailQueueDepth tracks messages waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of notifications pending in each mail worker channel.",
	},
	[]string{"worker_id"},
)
