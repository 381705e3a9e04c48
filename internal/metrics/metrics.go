package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth_core"

// Login outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid_credentials"
	OutcomeLocked        = "account_locked"
	OutcomeChallenge     = "two_factor_required"
	OutcomeUnknownEmail  = "unknown_email"
	OutcomeInvalidSecond = "invalid_second_factor"
)

var (
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Accounts moved into the locked state.",
	})

	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Completed registrations by account kind.",
		},
		[]string{"kind"},
	)

	EmailVerifications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "email_verifications_total",
		Help:      "Email addresses verified.",
	})

	PasswordResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Passwords changed through a reset token.",
	})

	BackupCodesUsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backup_codes_used_total",
		Help:      "Backup codes consumed at login.",
	})

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Mail and event deliveries that failed.",
		},
		[]string{"channel"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
