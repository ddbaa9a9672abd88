package config

import (
	"unirouter/internal/seclevel"
	"unirouter/internal/transport"
)

// Config represents the main configuration structure
type Config struct {
	DataDir        string                    `json:"data_dir,omitempty"`
	DefaultNetwork transport.NetworkID       `json:"default_network"`
	SecurityLevel  seclevel.Level            `json:"security_level,omitempty"`
	Handlers       []transport.HandlerConfig `json:"handlers"`

	// PersistState enables the bbolt-backed store for policies,
	// certificates and trusted issuers.
	PersistState bool `json:"persist_state"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level"`
	EnableFile    bool   `json:"enable_file"`
	EnableConsole bool   `json:"enable_console"`
	Filename      string `json:"filename"`
	LogDir        string `json:"log_dir,omitempty"`
	MaxSize       int    `json:"max_size"`    // MB
	MaxBackups    int    `json:"max_backups"` // number of backup files
	MaxAge        int    `json:"max_age"`     // days
	Compress      bool   `json:"compress"`
	JSONFormat    bool   `json:"json_format"`
}

// DefaultConfig returns a configuration with every built-in transport
// registered and the clearnet as default. Overlay proxies point at the
// conventional local daemon ports.
func DefaultConfig() *Config {
	return &Config{
		DefaultNetwork: transport.NetworkClearnet,
		SecurityLevel:  seclevel.LevelStandard,
		PersistState:   false,
		Handlers: []transport.HandlerConfig{
			{Network: transport.NetworkClearnet, Enabled: true},
			{Network: transport.NetworkTor, Enabled: true, Proxy: "127.0.0.1:9050"},
			{Network: transport.NetworkI2P, Enabled: true, Proxy: "127.0.0.1:4444"},
			{Network: transport.NetworkGNUnet, Enabled: true},
			{Network: transport.NetworkDVPN, Enabled: true},
		},
	}
}
