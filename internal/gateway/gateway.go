// Package gateway ties the router, policy engine, trust store and
// security level profiles into one connection admission flow.
package gateway

import (
	"context"

	"go.uber.org/zap"

	"unirouter/internal/pki"
	"unirouter/internal/policy"
	"unirouter/internal/router"
	"unirouter/internal/seclevel"
	"unirouter/internal/storage"
)

// AdmissionRequest combines a routing request with the negotiated
// connection parameters a caller wants checked before bytes flow.
type AdmissionRequest struct {
	Routing            router.RoutingRequest `json:"routing"`
	TLSVersion         string                `json:"tls_version,omitempty"`
	CipherSuite        string                `json:"cipher_suite,omitempty"`
	CertificateSubject string                `json:"certificate_subject,omitempty"`
}

// AdmissionResult is the combined decision: routing outcome, policy
// verdict and, when a certificate was involved, its verification.
type AdmissionResult struct {
	Admitted    bool                    `json:"admitted"`
	Routing     *router.RoutingResponse `json:"routing"`
	Policy      policy.EvaluationResult `json:"policy"`
	Certificate *pki.VerificationResult `json:"certificate,omitempty"`
}

// Gateway owns one instance of each admission-control component. The
// persistence store is optional; without it all state is process-lifetime.
type Gateway struct {
	Router   *router.Router
	Policies *policy.Engine
	Trust    *pki.TrustStore
	Levels   *seclevel.Store

	store  *storage.BoltStore
	logger *zap.Logger
}

// New assembles a gateway around already-constructed components.
func New(r *router.Router, e *policy.Engine, ts *pki.TrustStore, levels *seclevel.Store, store *storage.BoltStore, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Router:   r,
		Policies: e,
		Trust:    ts,
		Levels:   levels,
		store:    store,
		logger:   logger,
	}
}

// Admit routes the request and evaluates the security policy against the
// negotiated connection context. Routing failures short-circuit; policy
// evaluation only runs for connections that actually resolved.
func (g *Gateway) Admit(ctx context.Context, req AdmissionRequest) AdmissionResult {
	if req.Routing.SecurityLevel == "" {
		req.Routing.SecurityLevel = g.Levels.CurrentLevel()
	}

	result := AdmissionResult{
		Policy: policy.EvaluationResult{
			Allowed:    true,
			Violations: []policy.RuleMatch{},
			Warnings:   []policy.RuleMatch{},
		},
	}

	result.Routing = g.Router.Route(ctx, req.Routing)
	if !result.Routing.Success {
		return result
	}

	connCtx := policy.ConnectionContext{
		Destination: req.Routing.Destination,
		TLSVersion:  req.TLSVersion,
		CipherSuite: req.CipherSuite,
	}

	certMissing := false
	if req.CertificateSubject != "" {
		if cert, ok := g.Trust.FindBySubject(req.CertificateSubject); ok {
			verification := g.Trust.VerifyCertificate(cert)
			result.Certificate = &verification

			// The stored trust bit is advisory; the recomputed verdict
			// is what the policy engine sees.
			cert.Trusted = verification.Trusted
			connCtx.Certificate = &cert
			connCtx.CertificateExpired = verification.HasError(pki.ReasonExpired)
		} else {
			// Evaluation degrades to certificate-free rules; make the
			// miss visible instead of admitting silently.
			certMissing = true
			g.logger.Warn("No stored certificate for subject, evaluating without it",
				zap.String("subject", req.CertificateSubject),
				zap.String("correlation_id", result.Routing.CorrelationID))
		}
	}

	result.Policy = g.Policies.Evaluate(connCtx)
	if certMissing {
		result.Policy.Warnings = append(result.Policy.Warnings, policy.RuleMatch{
			Kind:      policy.RuleCertificate,
			Condition: policy.CondUntrusted,
			Message:   "no stored certificate for subject " + req.CertificateSubject,
		})
	}
	result.Admitted = result.Policy.Allowed

	if !result.Admitted {
		g.logger.Warn("Connection vetoed by policy",
			zap.String("correlation_id", result.Routing.CorrelationID),
			zap.String("destination", req.Routing.Destination),
			zap.Int("violations", len(result.Policy.Violations)))
	}
	return result
}

// CreatePolicy creates and, when a store is attached, persists a policy.
// The pre-loaded baseline policy is never persisted, so restarts cannot
// duplicate it.
func (g *Gateway) CreatePolicy(name string, enforcement policy.Enforcement, rules []policy.SecurityRule) (policy.SecurityPolicy, error) {
	p := g.Policies.CreatePolicy(name, enforcement, rules)
	if g.store != nil {
		if err := g.store.SavePolicy(p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// ActivatePolicy activates a policy and persists the marker.
func (g *Gateway) ActivatePolicy(id string) bool {
	if !g.Policies.ActivatePolicy(id) {
		return false
	}
	if g.store != nil {
		if err := g.store.SetPolicyActive(id, true); err != nil {
			g.logger.Warn("Failed to persist policy activation", zap.String("id", id), zap.Error(err))
		}
	}
	return true
}

// DeactivatePolicy deactivates a policy and persists the marker.
func (g *Gateway) DeactivatePolicy(id string) bool {
	if !g.Policies.DeactivatePolicy(id) {
		return false
	}
	if g.store != nil {
		if err := g.store.SetPolicyActive(id, false); err != nil {
			g.logger.Warn("Failed to persist policy deactivation", zap.String("id", id), zap.Error(err))
		}
	}
	return true
}

// RemovePolicy removes a policy everywhere.
func (g *Gateway) RemovePolicy(id string) bool {
	if !g.Policies.RemovePolicy(id) {
		return false
	}
	if g.store != nil {
		if err := g.store.DeletePolicy(id); err != nil {
			g.logger.Warn("Failed to delete persisted policy", zap.String("id", id), zap.Error(err))
		}
	}
	return true
}

// AddCertificate stores and persists a certificate.
func (g *Gateway) AddCertificate(cert pki.Certificate) error {
	if err := g.Trust.AddCertificate(cert); err != nil {
		return err
	}
	if g.store != nil {
		return g.store.SaveCertificate(cert)
	}
	return nil
}

// GenerateSelfSignedCertificate mints, stores and persists a private
// certificate.
func (g *Gateway) GenerateSelfSignedCertificate(subject string, validityDays int) (pki.Certificate, error) {
	cert, err := g.Trust.GenerateSelfSignedCertificate(subject, validityDays)
	if err != nil {
		return cert, err
	}
	if g.store != nil {
		if err := g.store.SaveCertificate(cert); err != nil {
			return cert, err
		}
	}
	return cert, nil
}

// AddTrustedIssuer trusts an issuer and persists the identity.
func (g *Gateway) AddTrustedIssuer(issuer string) error {
	g.Trust.AddTrustedIssuer(issuer)
	if g.store != nil {
		return g.store.SaveTrustedIssuer(issuer)
	}
	return nil
}

// RemoveTrustedIssuer drops an issuer everywhere.
func (g *Gateway) RemoveTrustedIssuer(issuer string) bool {
	existed := g.Trust.RemoveTrustedIssuer(issuer)
	if existed && g.store != nil {
		if err := g.store.DeleteTrustedIssuer(issuer); err != nil {
			g.logger.Warn("Failed to delete persisted issuer", zap.String("issuer", issuer), zap.Error(err))
		}
	}
	return existed
}

// LoadState restores persisted policies, certificates and trusted
// issuers. It is a no-op without a store.
func (g *Gateway) LoadState() error {
	if g.store == nil {
		return nil
	}

	policies, active, err := g.store.LoadPolicies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		if !g.Policies.RestorePolicy(p) {
			continue
		}
		if active[p.ID] {
			g.Policies.ActivatePolicy(p.ID)
		}
	}

	certs, err := g.store.LoadCertificates()
	if err != nil {
		return err
	}
	for _, cert := range certs {
		if err := g.Trust.AddCertificate(cert); err != nil {
			g.logger.Warn("Skipping persisted certificate", zap.String("id", cert.ID), zap.Error(err))
		}
	}

	issuers, err := g.store.LoadTrustedIssuers()
	if err != nil {
		return err
	}
	for _, issuer := range issuers {
		g.Trust.AddTrustedIssuer(issuer)
	}

	g.logger.Info("Restored persisted state",
		zap.Int("policies", len(policies)),
		zap.Int("certificates", len(certs)),
		zap.Int("trusted_issuers", len(issuers)))
	return nil
}
