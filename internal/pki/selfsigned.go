package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultValidityDays is the validity window used when a caller passes a
// non-positive day count.
const DefaultValidityDays = 365

// GenerateSelfSignedCertificate mints a private-infrastructure
// certificate: issuer equals subject, IsPrivate and Trusted are always
// set. The validity window starts now with day granularity; callers
// needing sub-day expiry precision must not rely on it. The certificate
// is stored before being returned.
func (ts *TrustStore) GenerateSelfSignedCertificate(subject string, validityDays int) (Certificate, error) {
	if validityDays <= 0 {
		validityDays = DefaultValidityDays
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return Certificate{}, fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	ts.mu.RLock()
	now := ts.now()
	ts.mu.RUnlock()

	cert := Certificate{
		ID:           uuid.NewString(),
		Subject:      subject,
		Issuer:       subject,
		PublicKeyPEM: string(pubPEM),
		SerialNumber: serial.String(),
		ValidFrom:    now,
		ValidTo:      now.Add(time.Duration(validityDays) * 24 * time.Hour),
		IsPrivate:    true,
		Trusted:      true,
	}

	if err := ts.AddCertificate(cert); err != nil {
		return Certificate{}, err
	}
	ts.logger.Info("Generated self-signed certificate",
		zap.String("subject", subject),
		zap.Int("validity_days", validityDays))
	return cert, nil
}
