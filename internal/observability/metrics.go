package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolreg_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ApplicationsSubmitted counts admission applications accepted for review.
	ApplicationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schoolreg_applications_submitted_total",
		Help: "Total number of admission applications submitted",
	})

	// ApplicationDecisions counts review outcomes by decision and result.
	ApplicationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolreg_application_decisions_total",
		Help: "Total number of approve/reject decisions by outcome",
	}, []string{"decision", "outcome"})

	// ApprovalDuration records the latency of the provisioning transaction.
	ApprovalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schoolreg_approval_duration_seconds",
		Help:    "Duration of the approval transaction in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SideEffectFailures counts best-effort side effects that failed.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolreg_side_effect_failures_total",
		Help: "Total number of failed best-effort side effects by effect",
	}, []string{"effect"})

	// CodeAccessAttempts counts code-based access attempts by outcome.
	CodeAccessAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolreg_code_access_attempts_total",
		Help: "Total number of code-based access attempts by outcome",
	}, []string{"outcome"})
)

// Decision outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Side-effect labels.
const (
	EffectMirror       = "mirror"
	EffectNotification = "notification"
)
