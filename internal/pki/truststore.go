// Package pki holds known certificates and trusted issuer identities, and
// computes certificate validity and trust.
package pki

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unirouter/internal/observability"
)

// ErrDuplicateCertificate indicates a programming mistake: the same
// certificate ID was added twice.
var ErrDuplicateCertificate = errors.New("certificate already exists")

// Certificate is the stored certificate record. Trusted is the last-known
// advisory trust bit; authoritative trust is always recomputed by
// VerifyCertificate.
type Certificate struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	PublicKeyPEM string    `json:"public_key_pem,omitempty"`
	SerialNumber string    `json:"serial_number"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	IsPrivate    bool      `json:"is_private"`
	Trusted      bool      `json:"trusted"`
}

// Verification failure reasons.
const (
	ReasonNotYetValid = "certificate is not yet valid"
	ReasonExpired     = "certificate has expired"
)

// VerificationResult reports temporal validity and issuer trust
// separately. Errors are the reasons Valid is false; warnings are
// advisory and never invalidate.
type VerificationResult struct {
	Valid    bool     `json:"valid"`
	Trusted  bool     `json:"trusted"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// HasError reports whether the result contains the given failure reason.
func (r VerificationResult) HasError(reason string) bool {
	for _, e := range r.Errors {
		if e == reason {
			return true
		}
	}
	return false
}

// TrustStore owns certificates and the trusted issuer set. All
// cross-references are by subject or issuer string; no entity holds a
// pointer into another.
type TrustStore struct {
	mu             sync.RWMutex
	certificates   map[string]Certificate // keyed by ID
	trustedIssuers map[string]struct{}

	now func() time.Time

	logger  *zap.Logger
	metrics *observability.MetricsManager
}

// NewTrustStore creates an empty trust store.
func NewTrustStore(logger *zap.Logger, metrics *observability.MetricsManager) *TrustStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrustStore{
		certificates:   make(map[string]Certificate),
		trustedIssuers: make(map[string]struct{}),
		now:            time.Now,
		logger:         logger,
		metrics:        metrics,
	}
}

// SetClock overrides the time source. Intended for tests.
func (ts *TrustStore) SetClock(now func() time.Time) {
	ts.mu.Lock()
	ts.now = now
	ts.mu.Unlock()
}

// AddCertificate stores a certificate. Adding an ID twice is a caller
// misuse and fails hard.
func (ts *TrustStore) AddCertificate(cert Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, exists := ts.certificates[cert.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCertificate, cert.ID)
	}
	ts.certificates[cert.ID] = cert

	ts.logger.Info("Added certificate",
		zap.String("id", cert.ID),
		zap.String("subject", cert.Subject),
		zap.String("issuer", cert.Issuer),
		zap.Bool("private", cert.IsPrivate))
	return nil
}

// GetCertificate returns the certificate with the given ID.
func (ts *TrustStore) GetCertificate(id string) (Certificate, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	cert, ok := ts.certificates[id]
	return cert, ok
}

// FindBySubject returns the first certificate matching the subject.
func (ts *TrustStore) FindBySubject(subject string) (Certificate, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	for _, cert := range ts.certificates {
		if cert.Subject == subject {
			return cert, true
		}
	}
	return Certificate{}, false
}

// RemoveCertificate deletes a certificate. Returns true iff it existed.
func (ts *TrustStore) RemoveCertificate(id string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, existed := ts.certificates[id]
	delete(ts.certificates, id)
	return existed
}

// AddTrustedIssuer marks an issuer identity as trusted.
func (ts *TrustStore) AddTrustedIssuer(issuer string) {
	ts.mu.Lock()
	ts.trustedIssuers[issuer] = struct{}{}
	ts.mu.Unlock()
	ts.logger.Info("Added trusted issuer", zap.String("issuer", issuer))
}

// RemoveTrustedIssuer drops an issuer. Returns true iff it was trusted.
func (ts *TrustStore) RemoveTrustedIssuer(issuer string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, existed := ts.trustedIssuers[issuer]
	delete(ts.trustedIssuers, issuer)
	return existed
}

// IsTrustedIssuer reports whether the issuer is in the trusted set.
func (ts *TrustStore) IsTrustedIssuer(issuer string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok := ts.trustedIssuers[issuer]
	return ok
}

// TrustedIssuers returns a copy of the trusted issuer set.
func (ts *TrustStore) TrustedIssuers() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]string, 0, len(ts.trustedIssuers))
	for issuer := range ts.trustedIssuers {
		out = append(out, issuer)
	}
	return out
}

// VerifyCertificate computes temporal validity and issuer trust. The
// not-yet-valid and expired checks run independently so both reasons can
// surface at once. The ValidTo boundary is exclusive: a certificate whose
// ValidTo equals now is already expired. Trust holds iff the issuer is in
// the trusted set or the certificate is marked private; an untrusted
// non-private certificate yields a warning, never an error.
func (ts *TrustStore) VerifyCertificate(cert Certificate) VerificationResult {
	ts.mu.RLock()
	now := ts.now()
	_, issuerTrusted := ts.trustedIssuers[cert.Issuer]
	ts.mu.RUnlock()

	result := VerificationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if now.Before(cert.ValidFrom) {
		result.Valid = false
		result.Errors = append(result.Errors, ReasonNotYetValid)
	}
	if !now.Before(cert.ValidTo) {
		result.Valid = false
		result.Errors = append(result.Errors, ReasonExpired)
	}

	result.Trusted = issuerTrusted || cert.IsPrivate
	if !result.Trusted {
		result.Warnings = append(result.Warnings, fmt.Sprintf("issuer %q is not trusted", cert.Issuer))
	}

	outcome := "valid"
	if !result.Valid {
		outcome = "invalid"
	}
	ts.metrics.RecordCertVerification(outcome)
	ts.logger.Debug("Verified certificate",
		zap.String("subject", cert.Subject),
		zap.Bool("valid", result.Valid),
		zap.Bool("trusted", result.Trusted))
	return result
}
