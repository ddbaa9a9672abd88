// Package seclevel holds the named security level profiles consulted by
// the router for network selection and by callers parameterizing policy
// thresholds.
package seclevel

import (
	"sync"

	"go.uber.org/zap"
)

// Level is a named strictness tier.
type Level string

const (
	LevelStandard Level = "standard"
	LevelElevated Level = "elevated"
	LevelMaximum  Level = "maximum"
)

// Valid reports whether the level is one of the predefined tiers.
func (l Level) Valid() bool {
	switch l {
	case LevelStandard, LevelElevated, LevelMaximum:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }

// LevelConfig is the per-level profile. One instance per level, populated
// at startup, read-only thereafter.
type LevelConfig struct {
	MinTLSVersion         string `json:"min_tls_version"`
	RequireCertValidation bool   `json:"require_cert_validation"`
	AllowSelfSigned       bool   `json:"allow_self_signed"`
	RequireHSTS           bool   `json:"require_hsts"`
}

// Strictness is non-decreasing across the tiers: the TLS floor escalates
// to 1.3 at maximum, HSTS becomes mandatory from elevated up, and
// self-signed certificates are tolerated at no predefined level (private
// PKI must be trusted explicitly through the trust store).
var defaultConfigs = map[Level]LevelConfig{
	LevelStandard: {
		MinTLSVersion:         "1.2",
		RequireCertValidation: true,
		AllowSelfSigned:       false,
		RequireHSTS:           false,
	},
	LevelElevated: {
		MinTLSVersion:         "1.2",
		RequireCertValidation: true,
		AllowSelfSigned:       false,
		RequireHSTS:           true,
	},
	LevelMaximum: {
		MinTLSVersion:         "1.3",
		RequireCertValidation: true,
		AllowSelfSigned:       false,
		RequireHSTS:           true,
	},
}

// Store holds the level profiles and the single mutable current level.
type Store struct {
	mu      sync.RWMutex
	current Level
	configs map[Level]LevelConfig
	logger  *zap.Logger
}

// NewStore creates a store with the predefined profiles and the current
// level set to standard.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	configs := make(map[Level]LevelConfig, len(defaultConfigs))
	for level, cfg := range defaultConfigs {
		configs[level] = cfg
	}
	return &Store{
		current: LevelStandard,
		configs: configs,
		logger:  logger,
	}
}

// SetLevel changes the current level. Unknown levels are rejected.
func (s *Store) SetLevel(level Level) bool {
	if !level.Valid() {
		s.logger.Warn("Rejected unknown security level", zap.String("level", level.String()))
		return false
	}
	s.mu.Lock()
	s.current = level
	s.mu.Unlock()

	s.logger.Info("Security level changed", zap.String("level", level.String()))
	return true
}

// CurrentLevel returns the process-wide current level.
func (s *Store) CurrentLevel() Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetConfig returns the profile for the given level.
func (s *Store) GetConfig(level Level) (LevelConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[level]
	return cfg, ok
}

// CurrentConfig returns the profile of the current level.
func (s *Store) CurrentConfig() LevelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[s.current]
}
