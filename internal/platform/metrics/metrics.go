// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics exposes Prometheus instrumentation for the Gatekeep API.

All collectors are registered on the default registry via promauto and served
from /metrics by the API server. Label cardinality is kept bounded: routes use
chi patterns (never raw paths), and decision labels are a closed enum.

Collector Families:

  - HTTP: request duration by method/route/status.
  - PDP: authorize() latency by decision and cache tier, with sub-millisecond
    buckets so the p95 < 50ms objective is actually observable.
  - Cache: hit/miss counters per tier (l1, l2).
  - Audit: append volume and chain verification failures.
  - Auth: login outcomes and refresh rotations.
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// # HTTP Surface

var httpRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gatekeep",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route pattern, and status code.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// ObserveHTTPRequest records one finished HTTP request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestDuration.
		WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(elapsed.Seconds())
}

// # Policy Decision Point

var (
	pdpDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gatekeep",
			Subsystem: "pdp",
			Name:      "decision_duration_seconds",
			Help:      "authorize() latency by decision and serving cache tier.",
			// Cached decisions complete in microseconds; cold paths hit Postgres.
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"decision", "tier"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "authz_cache",
			Name:      "lookups_total",
			Help:      "Permission snapshot cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "authz_cache",
			Name:      "invalidations_total",
			Help:      "Snapshot invalidations triggered by role or policy changes.",
		},
	)
)

// PDP decision outcomes and serving tiers (closed label sets).
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"

	TierL1    = "l1"
	TierL2    = "l2"
	TierStore = "store"
)

// ObservePDPDecision records one authorize() evaluation.
func ObservePDPDecision(decision, tier string, elapsed time.Duration) {
	pdpDecisionDuration.WithLabelValues(decision, tier).Observe(elapsed.Seconds())
}

// RecordCacheHit increments the hit counter for the given tier.
func RecordCacheHit(tier string) { cacheLookups.WithLabelValues(tier, "hit").Inc() }

// RecordCacheMiss increments the miss counter for the given tier.
func RecordCacheMiss(tier string) { cacheLookups.WithLabelValues(tier, "miss").Inc() }

// RecordCacheInvalidation increments the invalidation counter.
func RecordCacheInvalidation() { cacheInvalidations.Inc() }

// # Audit Trail

var (
	auditAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "audit",
			Name:      "appends_total",
			Help:      "Audit events appended to the hash chain, by event type.",
		},
		[]string{"event_type"},
	)

	auditVerifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "audit",
			Name:      "verify_failures_total",
			Help:      "Hash chain verification failures (tampering or corruption detected).",
		},
	)

	auditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because the async writer queue was full.",
		},
	)
)

// RecordAuditAppend increments the append counter for an event type.
func RecordAuditAppend(eventType string) { auditAppends.WithLabelValues(eventType).Inc() }

// RecordAuditVerifyFailure increments the verification failure counter.
func RecordAuditVerifyFailure() { auditVerifyFailures.Inc() }

// RecordAuditDropped increments the dropped-event counter.
func RecordAuditDropped() { auditDropped.Inc() }

// # Authentication

var (
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (success, invalid, banned, 2fa_required).",
		},
		[]string{"outcome"},
	)

	tokenRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeep",
			Subsystem: "auth",
			Name:      "token_rotations_total",
			Help:      "Refresh token rotations by outcome (rotated, reuse_detected, invalid).",
		},
		[]string{"outcome"},
	)
)

// RecordLoginAttempt increments the login counter for the given outcome.
func RecordLoginAttempt(outcome string) { loginAttempts.WithLabelValues(outcome).Inc() }

// RecordTokenRotation increments the rotation counter for the given outcome.
func RecordTokenRotation(outcome string) { tokenRotations.WithLabelValues(outcome).Inc() }
