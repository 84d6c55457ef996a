package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var credentialOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_credential_operations_total",
		Help: "Credential operations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

var revokedTokens = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "identity_refresh_tokens_revoked_total",
		Help: "Refresh ledger entries revoked by logout, mass sign-out or deactivation",
	},
)

// observe records the outcome of op. The outcome is the error code of err
// when it carries one.
func observe(op string, err error) {
	credentialOps.WithLabelValues(op, outcome(err)).Inc()
}
