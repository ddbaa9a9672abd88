package policy

import "unirouter/internal/pki"

// Enforcement controls how a triggered rule is reported. Warn never flips
// the allowed flag; block and strict both produce violations.
type Enforcement string

const (
	EnforcementWarn   Enforcement = "warn"
	EnforcementBlock  Enforcement = "block"
	EnforcementStrict Enforcement = "strict"
)

// RuleKind is the rule family. Network and custom kinds are accepted but
// currently inert during evaluation.
type RuleKind string

const (
	RuleAntiDowngrade RuleKind = "anti-downgrade"
	RuleCertificate   RuleKind = "certificate"
	RuleNetwork       RuleKind = "network"
	RuleCustom        RuleKind = "custom"
)

// RuleAction is the declared action of a rule.
type RuleAction string

const (
	ActionAllow  RuleAction = "allow"
	ActionDeny   RuleAction = "deny"
	ActionPrompt RuleAction = "prompt"
)

// Rule conditions understood by the evaluator.
const (
	CondTLSFloor           = "tls-floor"
	CondWeakCipher         = "weak-cipher"
	CondCertificateExpired = "certificate-expired"
	CondUntrusted          = "untrusted"
)

// RuleParams is the optional parameter bag of a rule.
type RuleParams struct {
	MinTLSVersion string   `json:"min_tls_version,omitempty"`
	WeakCiphers   []string `json:"weak_ciphers,omitempty"`
}

// SecurityRule is immutable once attached to a policy.
type SecurityRule struct {
	Kind      RuleKind   `json:"kind"`
	Condition string     `json:"condition"`
	Action    RuleAction `json:"action"`
	Params    RuleParams `json:"params,omitempty"`
}

// SecurityPolicy is an ordered collection of rules with an enforcement
// level. Rule order is evaluation order; rules are independent.
type SecurityPolicy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Rules       []SecurityRule `json:"rules"`
	Enforcement Enforcement    `json:"enforcement"`
}

// clone returns a deep copy so stored policies never alias caller memory.
func (p SecurityPolicy) clone() SecurityPolicy {
	out := p
	out.Rules = make([]SecurityRule, len(p.Rules))
	copy(out.Rules, p.Rules)
	for i := range out.Rules {
		if len(p.Rules[i].Params.WeakCiphers) > 0 {
			out.Rules[i].Params.WeakCiphers = append([]string(nil), p.Rules[i].Params.WeakCiphers...)
		}
	}
	return out
}

// ConnectionContext is the evaluation input describing a negotiated (or
// about-to-be-negotiated) connection. CertificateExpired is precomputed by
// the PKI trust store; the engine never re-derives temporal validity.
type ConnectionContext struct {
	Destination        string           `json:"destination"`
	TLSVersion         string           `json:"tls_version,omitempty"`
	CipherSuite        string           `json:"cipher_suite,omitempty"`
	Certificate        *pki.Certificate `json:"certificate,omitempty"`
	CertificateExpired bool             `json:"certificate_expired,omitempty"`
}

// RuleMatch describes one triggered rule.
type RuleMatch struct {
	PolicyID   string   `json:"policy_id"`
	PolicyName string   `json:"policy_name"`
	Kind       RuleKind `json:"kind"`
	Condition  string   `json:"condition"`
	Message    string   `json:"message"`
}

// EvaluationResult aggregates the decision. Allowed is false iff at least
// one violation came from a non-warn policy. Both lists are always
// non-nil for uniform handling.
type EvaluationResult struct {
	Allowed    bool        `json:"allowed"`
	Violations []RuleMatch `json:"violations"`
	Warnings   []RuleMatch `json:"warnings"`
}
