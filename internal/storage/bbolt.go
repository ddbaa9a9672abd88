// Package storage persists policies, certificates and trusted issuers in
// a local bbolt database. The in-memory stores remain authoritative; this
// layer only reloads them across restarts.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"unirouter/internal/pki"
	"unirouter/internal/policy"
)

// Bucket names and schema metadata.
const (
	PoliciesBucket       = "policies"
	ActivePoliciesBucket = "active_policies"
	CertificatesBucket   = "certificates"
	TrustedIssuersBucket = "trusted_issuers"
	MetaBucket           = "meta"

	SchemaVersionKey     = "schema_version"
	CurrentSchemaVersion = uint64(1)
)

// BoltStore wraps bolt database operations
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string, logger *zap.SugaredLogger) (*BoltStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dbPath := filepath.Join(dataDir, "unirouter.db")

	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	store := &BoltStore{db: db, logger: logger}
	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return store, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// initBuckets creates required buckets and sets up schema
func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := []string{
			PoliciesBucket,
			ActivePoliciesBucket,
			CertificatesBucket,
			TrustedIssuersBucket,
			MetaBucket,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		metaBucket := tx.Bucket([]byte(MetaBucket))
		versionBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(versionBytes, CurrentSchemaVersion)
		return metaBucket.Put([]byte(SchemaVersionKey), versionBytes)
	})
}

// SchemaVersion returns the stored schema version.
func (s *BoltStore) SchemaVersion() (uint64, error) {
	var version uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(MetaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket not found")
		}
		versionBytes := bucket.Get([]byte(SchemaVersionKey))
		if versionBytes != nil {
			version = binary.LittleEndian.Uint64(versionBytes)
		}
		return nil
	})
	return version, err
}

// SavePolicy persists one policy by ID.
func (s *BoltStore) SavePolicy(p policy.SecurityPolicy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy %s: %w", p.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(PoliciesBucket)).Put([]byte(p.ID), data)
	})
}

// DeletePolicy removes a persisted policy and its active marker.
func (s *BoltStore) DeletePolicy(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(PoliciesBucket)).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(ActivePoliciesBucket)).Delete([]byte(id))
	})
}

// SetPolicyActive persists or clears the active marker for a policy.
func (s *BoltStore) SetPolicyActive(id string, active bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ActivePoliciesBucket))
		if active {
			return bucket.Put([]byte(id), []byte{1})
		}
		return bucket.Delete([]byte(id))
	})
}

// LoadPolicies returns all persisted policies and the set of active IDs.
func (s *BoltStore) LoadPolicies() ([]policy.SecurityPolicy, map[string]bool, error) {
	var policies []policy.SecurityPolicy
	active := make(map[string]bool)

	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(PoliciesBucket)).ForEach(func(_, v []byte) error {
			var p policy.SecurityPolicy
			if err := json.Unmarshal(v, &p); err != nil {
				s.logger.Warnw("Skipping undecodable policy record", "error", err)
				return nil
			}
			policies = append(policies, p)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket([]byte(ActivePoliciesBucket)).ForEach(func(k, _ []byte) error {
			active[string(k)] = true
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return policies, active, nil
}

// SaveCertificate persists one certificate by ID.
func (s *BoltStore) SaveCertificate(cert pki.Certificate) error {
	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("marshal certificate %s: %w", cert.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(CertificatesBucket)).Put([]byte(cert.ID), data)
	})
}

// DeleteCertificate removes a persisted certificate.
func (s *BoltStore) DeleteCertificate(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(CertificatesBucket)).Delete([]byte(id))
	})
}

// LoadCertificates returns all persisted certificates.
func (s *BoltStore) LoadCertificates() ([]pki.Certificate, error) {
	var certs []pki.Certificate
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(CertificatesBucket)).ForEach(func(_, v []byte) error {
			var cert pki.Certificate
			if err := json.Unmarshal(v, &cert); err != nil {
				s.logger.Warnw("Skipping undecodable certificate record", "error", err)
				return nil
			}
			certs = append(certs, cert)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return certs, nil
}

// SaveTrustedIssuer persists one trusted issuer identity.
func (s *BoltStore) SaveTrustedIssuer(issuer string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(TrustedIssuersBucket)).Put([]byte(issuer), []byte{1})
	})
}

// DeleteTrustedIssuer removes a persisted trusted issuer.
func (s *BoltStore) DeleteTrustedIssuer(issuer string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(TrustedIssuersBucket)).Delete([]byte(issuer))
	})
}

// LoadTrustedIssuers returns all persisted trusted issuers.
func (s *BoltStore) LoadTrustedIssuers() ([]string, error) {
	var issuers []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(TrustedIssuersBucket)).ForEach(func(k, _ []byte) error {
			issuers = append(issuers, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return issuers, nil
}
