package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricsManager manages Prometheus metrics for the routing core.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	routeAttempts      *prometheus.CounterVec
	handlerTransitions *prometheus.CounterVec
	policyDecisions    *prometheus.CounterVec
	policyViolations   *prometheus.CounterVec
	certVerifications  *prometheus.CounterVec
}

// NewMetricsManager creates a new metrics manager with its own registry.
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	mm.initMetrics()
	mm.registerMetrics()
	return mm
}

func (mm *MetricsManager) initMetrics() {
	mm.routeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unirouter_route_attempts_total",
			Help: "Routing attempts by network and outcome",
		},
		[]string{"network", "outcome"},
	)
	mm.handlerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unirouter_handler_state_transitions_total",
			Help: "Handler connection state transitions",
		},
		[]string{"network", "from", "to"},
	)
	mm.policyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unirouter_policy_decisions_total",
			Help: "Policy engine decisions by outcome",
		},
		[]string{"outcome"},
	)
	mm.policyViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unirouter_policy_violations_total",
			Help: "Policy violations by policy name",
		},
		[]string{"policy"},
	)
	mm.certVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unirouter_cert_verifications_total",
			Help: "Certificate verifications by result",
		},
		[]string{"result"},
	)
}

func (mm *MetricsManager) registerMetrics() {
	collectors := []prometheus.Collector{
		mm.routeAttempts,
		mm.handlerTransitions,
		mm.policyDecisions,
		mm.policyViolations,
		mm.certVerifications,
	}
	for _, c := range collectors {
		if err := mm.registry.Register(c); err != nil && mm.logger != nil {
			mm.logger.Warnw("Failed to register metric", "error", err)
		}
	}
}

// Registry exposes the underlying registry so a caller can mount an
// exporter around it.
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// RecordRouteAttempt records one routing attempt.
func (mm *MetricsManager) RecordRouteAttempt(network, outcome string) {
	if mm == nil {
		return
	}
	mm.routeAttempts.WithLabelValues(network, outcome).Inc()
}

// RecordHandlerTransition records a handler state transition.
func (mm *MetricsManager) RecordHandlerTransition(network, from, to string) {
	if mm == nil {
		return
	}
	mm.handlerTransitions.WithLabelValues(network, from, to).Inc()
}

// RecordPolicyDecision records an allow/deny evaluation outcome.
func (mm *MetricsManager) RecordPolicyDecision(allowed bool) {
	if mm == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	mm.policyDecisions.WithLabelValues(outcome).Inc()
}

// RecordPolicyViolation records one violation attributed to a policy.
func (mm *MetricsManager) RecordPolicyViolation(policy string) {
	if mm == nil {
		return
	}
	mm.policyViolations.WithLabelValues(policy).Inc()
}

// RecordCertVerification records a certificate verification result.
func (mm *MetricsManager) RecordCertVerification(result string) {
	if mm == nil {
		return
	}
	mm.certVerifications.WithLabelValues(result).Inc()
}
