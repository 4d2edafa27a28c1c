package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"result"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"result"},
	)

	AccountLockoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Number of times an account reached the failed-login threshold.",
		},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of tokens issued or refreshed.",
		},
		[]string{"flow", "result"},
	)

	PasswordResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_resets_total",
			Help: "Password reset requests and completions.",
		},
		[]string{"stage", "result"},
	)

	PasswordHashSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_password_hash_seconds",
			Help:    "Time spent hashing or verifying passwords, including queueing for a slot.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	SweptRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_swept_records_total",
			Help: "Expired locks and reset tokens cleared by the sweeper.",
		},
		[]string{"kind"},
	)
)

// MustRegister registers every collector on reg with a constant service label.
func MustRegister(reg prometheus.Registerer, serviceName string) {
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, reg).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthRegistrationsTotal,
		AuthLoginsTotal,
		AccountLockoutsTotal,
		TokensIssuedTotal,
		PasswordResetsTotal,
		PasswordHashSeconds,
		SweptRecordsTotal,
	)
}
