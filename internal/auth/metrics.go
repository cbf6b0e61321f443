// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the credential service Prometheus collectors.
type Metrics struct {
	Operations    *prometheus.CounterVec
	HashDuration  *prometheus.HistogramVec
	AuditFailures prometheus.Counter
}

// NewMetrics creates and registers credential service metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripwise_auth_operations_total",
				Help: "Total number of credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripwise_auth_hash_duration_seconds",
				Help:    "Time spent deriving password hashes",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"kind"},
		),
		AuditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tripwise_auth_audit_failures_total",
				Help: "Total number of audit entries that could not be written",
			},
		),
	}

	reg.MustRegister(m.Operations)
	reg.MustRegister(m.HashDuration)
	reg.MustRegister(m.AuditFailures)

	return m
}

func (m *Metrics) observeOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) observeHash(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.HashDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) auditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
