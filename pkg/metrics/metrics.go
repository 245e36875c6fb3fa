package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "allclear"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sessions_created_total", Help: "Sessions created by subject kind."},
		[]string{"subject"},
	)
	SessionFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "session_fetches_total", Help: "Sliding session reads by result (hit|miss)."},
		[]string{"result"},
	)
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "auth_tokens_issued_total", Help: "One-time tokens sent by kind (auth|alert)."},
		[]string{"kind"},
	)
	TokensRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "auth_tokens_rate_limited_total", Help: "Token requests refused because too many were outstanding."},
	)
	TokenConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "auth_token_confirmations_total", Help: "Token confirmations by result (confirmed|failed)."},
		[]string{"result"},
	)
	StoreRoutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "store_route_selections_total", Help: "Persistence target selections by target (primary|replica)."},
		[]string{"target"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionsCreated)
	reg.MustRegister(SessionFetches)
	reg.MustRegister(TokensIssued)
	reg.MustRegister(TokensRateLimited)
	reg.MustRegister(TokenConfirmations)
	reg.MustRegister(StoreRoutes)
}
