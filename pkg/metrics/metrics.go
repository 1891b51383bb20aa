package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts handled HTTP requests partitioned by method, path and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubauth_http_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// HTTPDuration observes request latency per method and path.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hubauth_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// AuthAttempts counts credential logins by provider and result.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubauth_auth_attempts_total",
		Help: "Authentication attempts partitioned by provider and result.",
	}, []string{"provider", "result"})

	// OTPIssued counts verification codes issued per purpose.
	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubauth_otp_issued_total",
		Help: "One-time codes issued, partitioned by purpose.",
	}, []string{"purpose"})

	// OTPVerified counts successful code verifications per purpose.
	OTPVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubauth_otp_verified_total",
		Help: "One-time codes verified successfully, partitioned by purpose.",
	}, []string{"purpose"})

	// OTPRejected counts failed verifications by rejection reason.
	OTPRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubauth_otp_rejected_total",
		Help: "One-time code verifications rejected, partitioned by reason.",
	}, []string{"reason"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hubauth_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

// Rejection reasons recorded on OTPRejected.
const (
	ReasonExpired     = "expired"
	ReasonMismatch    = "mismatch"
	ReasonNotFound    = "not_found"
	ReasonMaxAttempts = "max_attempts"
	ReasonAlreadyUsed = "already_used"
)
