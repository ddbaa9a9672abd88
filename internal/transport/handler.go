package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by Route when the handler has not been
// connected first. Callers are expected to connect-if-needed before routing.
var ErrNotConnected = errors.New("handler is not connected")

// HandlerConfig is the per-handler configuration. It is fixed at
// construction; only the enabled flag may change afterwards.
type HandlerConfig struct {
	Network NetworkID         `json:"network"`
	Enabled bool              `json:"enabled"`
	Proxy   string            `json:"proxy,omitempty"` // proxy endpoint, e.g. 127.0.0.1:9050
	Port    int               `json:"port,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// Handler is the capability set every transport family implements.
// Connect and Disconnect drive the connection state machine; Route maps a
// logical destination into a transport-specific connection descriptor.
type Handler interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Route(address string) (string, error)
	State() ConnectionState
	Info() ConnectionInfo
	Network() NetworkID
	Enabled() bool
	SetEnabled(enabled bool)
}

// base carries the state shared by all handler variants. The connect mutex
// serializes connect-or-reuse so at most one connect sequence per handler
// is in flight.
type base struct {
	cfg    HandlerConfig
	sm     *StateMachine
	logger *zap.Logger

	connectMu sync.Mutex

	enabledMu sync.RWMutex
	enabled   bool
}

func newBase(cfg HandlerConfig, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		cfg:     cfg,
		sm:      NewStateMachine(),
		logger:  logger.With(zap.String("network", cfg.Network.String())),
		enabled: cfg.Enabled,
	}
}

func (b *base) Network() NetworkID     { return b.cfg.Network }
func (b *base) State() ConnectionState { return b.sm.State() }
func (b *base) Info() ConnectionInfo   { return b.sm.Info() }

func (b *base) Enabled() bool {
	b.enabledMu.RLock()
	defer b.enabledMu.RUnlock()
	return b.enabled
}

func (b *base) SetEnabled(enabled bool) {
	b.enabledMu.Lock()
	b.enabled = enabled
	b.enabledMu.Unlock()
}

// Connect advances disconnected/error -> connecting -> connected. Calling
// it while already connected is a no-op success.
func (b *base) Connect(ctx context.Context) error {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if b.sm.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.sm.TransitionTo(StateConnecting); err != nil {
		return err
	}

	// Real transport negotiation lives in the excluded transport layer;
	// this core only models the lifecycle.
	if err := b.sm.TransitionTo(StateConnected); err != nil {
		b.sm.SetError(err)
		return err
	}
	b.logger.Debug("transport connected")
	return nil
}

// Disconnect always succeeds and leaves the handler disconnected.
func (b *base) Disconnect() error {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()
	b.sm.Reset()
	b.logger.Debug("transport disconnected")
	return nil
}

func (b *base) requireConnected() error {
	if !b.sm.IsConnected() {
		return fmt.Errorf("%s: %w", b.cfg.Network, ErrNotConnected)
	}
	return nil
}

// ClearnetHandler routes destinations unchanged.
type ClearnetHandler struct {
	base
}

// NewClearnetHandler creates the identity-mapping clearnet handler.
func NewClearnetHandler(cfg HandlerConfig, logger *zap.Logger) *ClearnetHandler {
	cfg.Network = NetworkClearnet
	return &ClearnetHandler{base: newBase(cfg, logger)}
}

func (h *ClearnetHandler) Route(address string) (string, error) {
	if err := h.requireConnected(); err != nil {
		return "", err
	}
	return address, nil
}

// ProxiedHandler routes destinations through a SOCKS proxy endpoint. Used
// for anonymity overlays such as tor and i2p.
type ProxiedHandler struct {
	base
}

// NewProxiedHandler creates a handler that prefixes the configured proxy
// endpoint onto each destination.
func NewProxiedHandler(cfg HandlerConfig, logger *zap.Logger) *ProxiedHandler {
	if cfg.Proxy == "" && cfg.Port > 0 {
		cfg.Proxy = fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
	return &ProxiedHandler{base: newBase(cfg, logger)}
}

func (h *ProxiedHandler) Route(address string) (string, error) {
	if err := h.requireConnected(); err != nil {
		return "", err
	}
	if h.cfg.Proxy == "" {
		return "", fmt.Errorf("%s: no proxy endpoint configured", h.cfg.Network)
	}
	return fmt.Sprintf("socks5h://%s/%s", h.cfg.Proxy, address), nil
}

// MeshHandler routes destinations by composing a protocol-scheme URI. Used
// for gnunet, dVPN meshes and custom transports.
type MeshHandler struct {
	base
	scheme string
}

// NewMeshHandler creates a scheme-prefixing handler. The scheme defaults to
// the network identifier when the options bag does not override it.
func NewMeshHandler(cfg HandlerConfig, logger *zap.Logger) *MeshHandler {
	scheme := cfg.Network.String()
	if s, ok := cfg.Options["scheme"]; ok && s != "" {
		scheme = s
	}
	return &MeshHandler{base: newBase(cfg, logger), scheme: scheme}
}

func (h *MeshHandler) Route(address string) (string, error) {
	if err := h.requireConnected(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s", h.scheme, address), nil
}

// NewHandler constructs the handler variant matching the configured
// network identifier.
func NewHandler(cfg HandlerConfig, logger *zap.Logger) (Handler, error) {
	if !cfg.Network.Known() {
		return nil, fmt.Errorf("unknown network identifier: %q", cfg.Network)
	}
	switch cfg.Network {
	case NetworkClearnet:
		return NewClearnetHandler(cfg, logger), nil
	case NetworkTor, NetworkI2P:
		return NewProxiedHandler(cfg, logger), nil
	default:
		return NewMeshHandler(cfg, logger), nil
	}
}
