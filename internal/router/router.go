// Package router dispatches routing requests to registered network
// handlers and performs security-level-based network selection.
package router

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"unirouter/internal/observability"
	"unirouter/internal/seclevel"
	"unirouter/internal/transport"
)

// RoutingRequest describes one outbound connection attempt. Destination is
// an already-resolved address or handle; handle resolution is the caller's
// concern. SpaceID is opaque to this layer and passed through to the
// response metadata.
type RoutingRequest struct {
	Destination      string              `json:"destination"`
	PreferredNetwork transport.NetworkID `json:"preferred_network,omitempty"`
	SecurityLevel    seclevel.Level      `json:"security_level,omitempty"`
	SpaceID          string              `json:"space_id,omitempty"`
}

// RoutingResponse is the terminal result of one routing attempt. It is
// never mutated after construction; all failure is encoded in Success and
// Error rather than a returned Go error.
type RoutingResponse struct {
	Success         bool                `json:"success"`
	Network         transport.NetworkID `json:"network,omitempty"`
	ResolvedAddress string              `json:"resolved_address,omitempty"`
	CorrelationID   string              `json:"correlation_id"`
	Metadata        map[string]string   `json:"metadata,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// Router owns the handler registry. Handlers are keyed by network
// identifier and never shared across Router instances.
type Router struct {
	mu             sync.RWMutex
	handlers       map[transport.NetworkID]transport.Handler
	defaultNetwork transport.NetworkID

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	logger  *zap.Logger
	metrics *observability.MetricsManager
}

// New creates a router with the given default network.
func New(defaultNetwork transport.NetworkID, logger *zap.Logger, metrics *observability.MetricsManager) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers:       make(map[transport.NetworkID]transport.Handler),
		defaultNetwork: defaultNetwork,
		entropy:        ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // correlation ids need uniqueness, not secrecy
		logger:         logger,
		metrics:        metrics,
	}
}

// DefaultNetwork returns the network used when a request names none.
func (r *Router) DefaultNetwork() transport.NetworkID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultNetwork
}

// RegisterHandler inserts or replaces the handler for its network
// identifier. Last registration wins.
func (r *Router) RegisterHandler(h transport.Handler) {
	r.mu.Lock()
	_, replaced := r.handlers[h.Network()]
	r.handlers[h.Network()] = h
	r.mu.Unlock()

	r.logger.Info("Registered network handler",
		zap.String("network", h.Network().String()),
		zap.Bool("replaced", replaced),
		zap.Bool("enabled", h.Enabled()))
}

// UnregisterHandler removes the handler for the given network. It returns
// true iff a handler existed.
func (r *Router) UnregisterHandler(id transport.NetworkID) bool {
	r.mu.Lock()
	_, existed := r.handlers[id]
	delete(r.handlers, id)
	r.mu.Unlock()

	if existed {
		r.logger.Info("Unregistered network handler", zap.String("network", id.String()))
	}
	return existed
}

// GetHandler returns the handler registered for the given network.
func (r *Router) GetHandler(id transport.NetworkID) (transport.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// RegisteredNetworks returns the sorted set of registered network
// identifiers.
func (r *Router) RegisteredNetworks() []transport.NetworkID {
	r.mu.RLock()
	ids := make([]transport.NetworkID, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Route resolves the target network, ensures the handler is connected and
// computes the transport-specific descriptor. It never returns a Go error:
// configuration failures are reported through the response so a caller can
// present them directly.
func (r *Router) Route(ctx context.Context, req RoutingRequest) *RoutingResponse {
	correlationID := r.nextCorrelationID()

	if req.SecurityLevel != "" && !req.SecurityLevel.Valid() {
		resp := &RoutingResponse{
			CorrelationID: correlationID,
			Error:         fmt.Sprintf("unknown security level %q", req.SecurityLevel),
		}
		r.finishRoute(resp, req)
		return resp
	}

	network := req.PreferredNetwork
	if network == "" {
		if req.SecurityLevel != "" {
			network = r.SelectNetworkForSecurity(req.SecurityLevel)
		} else {
			network = r.DefaultNetwork()
		}
	}

	resp := &RoutingResponse{
		Network:       network,
		CorrelationID: correlationID,
	}
	if req.SpaceID != "" {
		resp.Metadata = map[string]string{"space_id": req.SpaceID}
	}

	handler, ok := r.GetHandler(network)
	if !ok {
		resp.Error = fmt.Sprintf("no handler registered for network %q", network)
		r.finishRoute(resp, req)
		return resp
	}
	if !handler.Enabled() {
		resp.Error = fmt.Sprintf("network %q is disabled", network)
		r.finishRoute(resp, req)
		return resp
	}

	// Connect-if-needed; the handler serializes concurrent connects.
	if err := handler.Connect(ctx); err != nil {
		resp.Error = fmt.Sprintf("connect to network %q failed: %v", network, err)
		r.finishRoute(resp, req)
		return resp
	}

	resolved, err := handler.Route(req.Destination)
	if err != nil {
		resp.Error = fmt.Sprintf("routing over network %q failed: %v", network, err)
		r.finishRoute(resp, req)
		return resp
	}

	resp.Success = true
	resp.ResolvedAddress = resolved
	r.finishRoute(resp, req)
	return resp
}

func (r *Router) finishRoute(resp *RoutingResponse, req RoutingRequest) {
	outcome := "success"
	if !resp.Success {
		outcome = "failure"
	}
	r.metrics.RecordRouteAttempt(resp.Network.String(), outcome)

	if resp.Success {
		r.logger.Debug("Routed request",
			zap.String("correlation_id", resp.CorrelationID),
			zap.String("network", resp.Network.String()),
			zap.String("destination", req.Destination))
	} else {
		r.logger.Warn("Routing failed",
			zap.String("correlation_id", resp.CorrelationID),
			zap.String("network", resp.Network.String()),
			zap.String("destination", req.Destination),
			zap.String("error", resp.Error))
	}
}

// nextCorrelationID returns a fresh identifier, unique even under
// concurrent Route calls. Monotonic ULID entropy guarantees no collisions
// within one process.
func (r *Router) nextCorrelationID() string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// securityPreferences is the fixed per-level network preference table.
// The ordering is a compatibility contract, not a heuristic.
var securityPreferences = map[seclevel.Level][]transport.NetworkID{
	seclevel.LevelMaximum:  {transport.NetworkTor, transport.NetworkI2P},
	seclevel.LevelElevated: {transport.NetworkDVPN, transport.NetworkGNUnet, transport.NetworkTor},
}

// SelectNetworkForSecurity picks the network for a security level: maximum
// prefers tor then i2p, elevated prefers dvpn, gnunet then tor, standard
// always uses the default. Unavailable preferences fall back to the
// default network.
func (r *Router) SelectNetworkForSecurity(level seclevel.Level) transport.NetworkID {
	for _, candidate := range securityPreferences[level] {
		if h, ok := r.GetHandler(candidate); ok && h.Enabled() {
			return candidate
		}
	}
	return r.DefaultNetwork()
}

// ConnectAll connects every enabled handler. Disabled handlers are
// reported false and skipped, never an error.
func (r *Router) ConnectAll(ctx context.Context) map[transport.NetworkID]bool {
	results := make(map[transport.NetworkID]bool)
	for _, id := range r.RegisteredNetworks() {
		h, ok := r.GetHandler(id)
		if !ok {
			continue
		}
		if !h.Enabled() {
			results[id] = false
			continue
		}
		results[id] = h.Connect(ctx) == nil
	}
	return results
}

// DisconnectAll disconnects every enabled handler.
func (r *Router) DisconnectAll() map[transport.NetworkID]bool {
	results := make(map[transport.NetworkID]bool)
	for _, id := range r.RegisteredNetworks() {
		h, ok := r.GetHandler(id)
		if !ok {
			continue
		}
		if !h.Enabled() {
			results[id] = false
			continue
		}
		results[id] = h.Disconnect() == nil
	}
	return results
}
