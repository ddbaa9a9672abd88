// Package policy implements the declarative rule evaluation engine that
// admits or vetoes connections.
package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unirouter/internal/observability"
)

// DefaultWeakCiphers are the cipher fragments blocked by the baseline
// anti-downgrade policy.
var DefaultWeakCiphers = []string{"RC4", "DES", "3DES", "MD5"}

// DefaultMinTLSVersion is the baseline TLS floor.
const DefaultMinTLSVersion = "1.2"

// Engine holds the policy set and the active subset. Policies are stored
// by value; the active subset is a set of identifiers, not object
// references.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]SecurityPolicy
	order    []string // creation order, drives evaluation order across policies
	active   map[string]struct{}

	logger  *zap.Logger
	metrics *observability.MetricsManager
}

// NewEngine creates an engine pre-loaded with the active anti-downgrade
// baseline policy. The baseline ships at strict so the system fails
// closed with no further configuration.
func NewEngine(logger *zap.Logger, metrics *observability.MetricsManager) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		policies: make(map[string]SecurityPolicy),
		active:   make(map[string]struct{}),
		logger:   logger,
		metrics:  metrics,
	}

	baseline := e.CreatePolicy("Anti-Downgrade Protection", EnforcementStrict, []SecurityRule{
		{
			Kind:      RuleAntiDowngrade,
			Condition: CondTLSFloor,
			Action:    ActionDeny,
			Params:    RuleParams{MinTLSVersion: DefaultMinTLSVersion},
		},
		{
			Kind:      RuleAntiDowngrade,
			Condition: CondWeakCipher,
			Action:    ActionDeny,
			Params:    RuleParams{WeakCiphers: DefaultWeakCiphers},
		},
		{
			Kind:      RuleAntiDowngrade,
			Condition: CondCertificateExpired,
			Action:    ActionDeny,
		},
	})
	e.ActivatePolicy(baseline.ID)
	return e
}

// CreatePolicy stores a new policy and returns a copy of it. Policies are
// created inactive; activate explicitly.
func (e *Engine) CreatePolicy(name string, enforcement Enforcement, rules []SecurityRule) SecurityPolicy {
	p := SecurityPolicy{
		ID:          uuid.NewString(),
		Name:        name,
		Rules:       rules,
		Enforcement: enforcement,
	}.clone()

	e.mu.Lock()
	e.policies[p.ID] = p
	e.order = append(e.order, p.ID)
	e.mu.Unlock()

	e.logger.Info("Created security policy",
		zap.String("id", p.ID),
		zap.String("name", name),
		zap.String("enforcement", string(enforcement)),
		zap.Int("rules", len(p.Rules)))
	return p.clone()
}

// RestorePolicy inserts a previously persisted policy, keeping its ID.
// Returns false when the ID is already present.
func (e *Engine) RestorePolicy(p SecurityPolicy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.policies[p.ID]; exists {
		return false
	}
	stored := p.clone()
	e.policies[stored.ID] = stored
	e.order = append(e.order, stored.ID)
	return true
}

// GetPolicy returns a copy of the stored policy.
func (e *Engine) GetPolicy(id string) (SecurityPolicy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[id]
	if !ok {
		return SecurityPolicy{}, false
	}
	return p.clone(), true
}

// RemovePolicy deletes a policy and drops it from the active set. It
// returns true iff the policy existed.
func (e *Engine) RemovePolicy(id string) bool {
	e.mu.Lock()
	_, existed := e.policies[id]
	delete(e.policies, id)
	delete(e.active, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if existed {
		e.logger.Info("Removed security policy", zap.String("id", id))
	}
	return existed
}

// ActivatePolicy marks a policy active. Returns false for unknown IDs.
func (e *Engine) ActivatePolicy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[id]; !ok {
		return false
	}
	e.active[id] = struct{}{}
	return true
}

// DeactivatePolicy removes a policy from the active set. Returns false
// for unknown IDs.
func (e *Engine) DeactivatePolicy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[id]; !ok {
		return false
	}
	delete(e.active, id)
	return true
}

// ActivePolicies returns copies of the currently active policies in
// creation order.
func (e *Engine) ActivePolicies() []SecurityPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeSnapshotLocked()
}

func (e *Engine) activeSnapshotLocked() []SecurityPolicy {
	out := make([]SecurityPolicy, 0, len(e.active))
	for _, id := range e.order {
		if _, ok := e.active[id]; !ok {
			continue
		}
		out = append(out, e.policies[id].clone())
	}
	return out
}

// Evaluate runs every rule of every active policy against the connection
// context. The active set is snapshotted once, so concurrent policy
// mutations never interleave into a single decision.
func (e *Engine) Evaluate(ctx ConnectionContext) EvaluationResult {
	e.mu.RLock()
	snapshot := e.activeSnapshotLocked()
	e.mu.RUnlock()

	result := EvaluationResult{
		Allowed:    true,
		Violations: []RuleMatch{},
		Warnings:   []RuleMatch{},
	}

	for i := range snapshot {
		p := &snapshot[i]
		for _, rule := range p.Rules {
			message, triggered := e.testRule(rule, ctx)
			if !triggered {
				continue
			}
			match := RuleMatch{
				PolicyID:   p.ID,
				PolicyName: p.Name,
				Kind:       rule.Kind,
				Condition:  rule.Condition,
				Message:    message,
			}
			if p.Enforcement == EnforcementWarn {
				result.Warnings = append(result.Warnings, match)
				continue
			}
			result.Violations = append(result.Violations, match)
			result.Allowed = false
			e.metrics.RecordPolicyViolation(p.Name)
		}
	}

	e.metrics.RecordPolicyDecision(result.Allowed)
	e.logger.Debug("Evaluated connection",
		zap.String("destination", ctx.Destination),
		zap.Bool("allowed", result.Allowed),
		zap.Int("violations", len(result.Violations)),
		zap.Int("warnings", len(result.Warnings)))
	return result
}

// testRule returns the violation message and whether the rule triggered.
func (e *Engine) testRule(rule SecurityRule, ctx ConnectionContext) (string, bool) {
	switch rule.Kind {
	case RuleAntiDowngrade:
		return e.testAntiDowngrade(rule, ctx)
	case RuleCertificate:
		if rule.Condition == CondUntrusted && ctx.Certificate != nil && !ctx.Certificate.Trusted {
			return fmt.Sprintf("certificate issuer %q is not trusted", ctx.Certificate.Issuer), true
		}
		return "", false
	default:
		// Network and custom rule kinds are accepted but not yet
		// evaluated. Logged so a misconfigured rule is at least visible.
		e.logger.Debug("Skipping unevaluated rule kind",
			zap.String("kind", string(rule.Kind)),
			zap.String("condition", rule.Condition))
		return "", false
	}
}

func (e *Engine) testAntiDowngrade(rule SecurityRule, ctx ConnectionContext) (string, bool) {
	switch rule.Condition {
	case CondTLSFloor:
		minVersion := rule.Params.MinTLSVersion
		if minVersion == "" {
			minVersion = DefaultMinTLSVersion
		}
		if ctx.TLSVersion != "" && CompareTLSVersions(ctx.TLSVersion, minVersion) < 0 {
			return fmt.Sprintf("TLS version %s below minimum %s", ctx.TLSVersion, minVersion), true
		}
	case CondWeakCipher:
		ciphers := rule.Params.WeakCiphers
		if len(ciphers) == 0 {
			ciphers = DefaultWeakCiphers
		}
		if ctx.CipherSuite == "" {
			return "", false
		}
		upper := strings.ToUpper(ctx.CipherSuite)
		for _, weak := range ciphers {
			if strings.Contains(upper, strings.ToUpper(weak)) {
				return fmt.Sprintf("cipher suite %q contains weak algorithm %s", ctx.CipherSuite, weak), true
			}
		}
	case CondCertificateExpired:
		if ctx.CertificateExpired {
			return "certificate has expired", true
		}
	}
	return "", false
}
