package seclevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredefinedProfiles(t *testing.T) {
	s := NewStore(nil)

	tests := []struct {
		level         Level
		minTLS        string
		requireHSTS   bool
		allowSelfSign bool
	}{
		{LevelStandard, "1.2", false, false},
		{LevelElevated, "1.2", true, false},
		{LevelMaximum, "1.3", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			cfg, ok := s.GetConfig(tt.level)
			require.True(t, ok)
			assert.Equal(t, tt.minTLS, cfg.MinTLSVersion)
			assert.Equal(t, tt.requireHSTS, cfg.RequireHSTS)
			assert.Equal(t, tt.allowSelfSign, cfg.AllowSelfSigned)
			assert.True(t, cfg.RequireCertValidation)
		})
	}
}

func TestGetConfigUnknownLevel(t *testing.T) {
	s := NewStore(nil)
	_, ok := s.GetConfig(Level("paranoid"))
	assert.False(t, ok)
}

func TestSetLevel(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, LevelStandard, s.CurrentLevel())

	assert.True(t, s.SetLevel(LevelMaximum))
	assert.Equal(t, LevelMaximum, s.CurrentLevel())
	assert.Equal(t, "1.3", s.CurrentConfig().MinTLSVersion)

	// Unknown levels are rejected without changing state.
	assert.False(t, s.SetLevel(Level("paranoid")))
	assert.Equal(t, LevelMaximum, s.CurrentLevel())
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelStandard.Valid())
	assert.True(t, LevelElevated.Valid())
	assert.True(t, LevelMaximum.Valid())
	assert.False(t, Level("").Valid())
	assert.False(t, Level("ultra").Valid())
}
