package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unirouter/internal/seclevel"
	"unirouter/internal/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, transport.NetworkClearnet, cfg.DefaultNetwork)
	assert.Equal(t, seclevel.LevelStandard, cfg.SecurityLevel)
	assert.NoError(t, cfg.Validate())

	networks := make(map[transport.NetworkID]bool)
	for _, h := range cfg.Handlers {
		networks[h.Network] = true
	}
	for _, want := range []transport.NetworkID{
		transport.NetworkClearnet,
		transport.NetworkTor,
		transport.NetworkI2P,
		transport.NetworkGNUnet,
		transport.NetworkDVPN,
	} {
		assert.True(t, networks[want], "missing default handler for %s", want)
	}
}

func TestValidateDetailed(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errorFields []string
	}{
		{
			name:        "valid default",
			mutate:      func(_ *Config) {},
			errorFields: nil,
		},
		{
			name:        "missing default network",
			mutate:      func(c *Config) { c.DefaultNetwork = "" },
			errorFields: []string{"default_network"},
		},
		{
			name:        "unknown default network",
			mutate:      func(c *Config) { c.DefaultNetwork = "warp" },
			errorFields: []string{"default_network"},
		},
		{
			name:        "unknown security level",
			mutate:      func(c *Config) { c.SecurityLevel = "paranoid" },
			errorFields: []string{"security_level"},
		},
		{
			name: "duplicate handler",
			mutate: func(c *Config) {
				c.Handlers = append(c.Handlers, transport.HandlerConfig{Network: transport.NetworkTor})
			},
			errorFields: []string{"handlers[5]"},
		},
		{
			name: "handler port out of range",
			mutate: func(c *Config) {
				c.Handlers[1].Port = 70000
			},
			errorFields: []string{"handlers[1].port"},
		},
		{
			name: "default network without handler",
			mutate: func(c *Config) {
				c.DefaultNetwork = transport.NetworkDVPN
				c.Handlers = c.Handlers[:1] // clearnet only
			},
			errorFields: []string{"default_network"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			errs := cfg.ValidateDetailed()
			require.Len(t, errs, len(tt.errorFields))
			for i, field := range tt.errorFields {
				assert.Equal(t, field, errs[i].Field)
			}
			if len(tt.errorFields) > 0 {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unirouter.json")
	content := `{
		"data_dir": "` + filepath.ToSlash(filepath.Join(dir, "data")) + `",
		"default_network": "tor",
		"security_level": "maximum",
		"handlers": [
			{"network": "tor", "enabled": true, "proxy": "127.0.0.1:9050"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, transport.NetworkTor, cfg.DefaultNetwork)
	assert.Equal(t, seclevel.LevelMaximum, cfg.SecurityLevel)
	require.Len(t, cfg.Handlers, 1)
	assert.Equal(t, "127.0.0.1:9050", cfg.Handlers[0].Proxy)
	assert.DirExists(t, cfg.DataDir)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unirouter.json")
	content := `{
		"data_dir": "` + filepath.ToSlash(filepath.Join(dir, "data")) + `",
		"default_network": "warp",
		"handlers": [{"network": "warp", "enabled": true}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DefaultNetwork, loaded.DefaultNetwork)
	assert.Equal(t, len(cfg.Handlers), len(loaded.Handlers))
}
