package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unirouter/internal/seclevel"
	"unirouter/internal/transport"
)

func newTestRouter(t *testing.T, networks ...transport.NetworkID) *Router {
	t.Helper()
	r := New(transport.NetworkClearnet, nil, nil)
	for _, id := range networks {
		h, err := transport.NewHandler(transport.HandlerConfig{
			Network: id,
			Enabled: true,
			Proxy:   "127.0.0.1:9050",
		}, nil)
		require.NoError(t, err)
		r.RegisterHandler(h)
	}
	return r
}

func TestRegisterAndUnregister(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor)

	assert.Equal(t,
		[]transport.NetworkID{transport.NetworkClearnet, transport.NetworkTor},
		r.RegisteredNetworks())

	assert.True(t, r.UnregisterHandler(transport.NetworkTor))
	assert.False(t, r.UnregisterHandler(transport.NetworkTor))

	_, ok := r.GetHandler(transport.NetworkTor)
	assert.False(t, ok)
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet)

	replacement, err := transport.NewHandler(transport.HandlerConfig{
		Network: transport.NetworkClearnet,
		Enabled: false,
	}, nil)
	require.NoError(t, err)
	r.RegisterHandler(replacement)

	h, ok := r.GetHandler(transport.NetworkClearnet)
	require.True(t, ok)
	assert.False(t, h.Enabled())
	assert.Len(t, r.RegisteredNetworks(), 1)
}

func TestRouteSuccess(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor)

	resp := r.Route(context.Background(), RoutingRequest{
		Destination:      "hidden.onion",
		PreferredNetwork: transport.NetworkTor,
		SpaceID:          "space-7",
	})

	assert.True(t, resp.Success)
	assert.Equal(t, transport.NetworkTor, resp.Network)
	assert.Equal(t, "socks5h://127.0.0.1:9050/hidden.onion", resp.ResolvedAddress)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, "space-7", resp.Metadata["space_id"])
	assert.Empty(t, resp.Error)

	// Handler was auto-connected.
	h, _ := r.GetHandler(transport.NetworkTor)
	assert.Equal(t, transport.StateConnected, h.State())
}

func TestRouteDefaultsToConfiguredNetwork(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet)

	resp := r.Route(context.Background(), RoutingRequest{Destination: "example.org:443"})
	assert.True(t, resp.Success)
	assert.Equal(t, transport.NetworkClearnet, resp.Network)
	assert.Equal(t, "example.org:443", resp.ResolvedAddress)
}

func TestRouteUnregisteredNetwork(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet)

	resp := r.Route(context.Background(), RoutingRequest{
		Destination:      "example.i2p",
		PreferredNetwork: transport.NetworkI2P,
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "i2p")
	assert.Contains(t, resp.Error, "no handler registered")
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestRouteDisabledNetwork(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor)
	h, _ := r.GetHandler(transport.NetworkTor)
	h.SetEnabled(false)

	resp := r.Route(context.Background(), RoutingRequest{
		Destination:      "hidden.onion",
		PreferredNetwork: transport.NetworkTor,
	})

	// The failure names the network; no silent substitution.
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "tor")
	assert.Contains(t, resp.Error, "disabled")
	assert.Equal(t, transport.NetworkTor, resp.Network)
	assert.False(t, h.Enabled(), "routing must not auto-enable")
}

func TestRouteUnknownSecurityLevel(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet)

	resp := r.Route(context.Background(), RoutingRequest{
		Destination:   "example.org:443",
		SecurityLevel: "bogus",
	})

	// An unrecognized level is a configuration error, not a silent
	// fallback to the default network.
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown security level")
	assert.Contains(t, resp.Error, "bogus")
	assert.Empty(t, resp.ResolvedAddress)
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestCorrelationIDsUniqueUnderConcurrency(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet)

	const calls = 200
	ids := make(chan string, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := r.Route(context.Background(), RoutingRequest{Destination: "example.org"})
			ids <- resp.CorrelationID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, calls)
	for id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate correlation id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, calls)
}

func TestSelectNetworkForSecurity(t *testing.T) {
	r := newTestRouter(t,
		transport.NetworkClearnet,
		transport.NetworkTor,
		transport.NetworkI2P,
		transport.NetworkDVPN,
		transport.NetworkGNUnet,
	)

	tests := []struct {
		level seclevel.Level
		want  transport.NetworkID
	}{
		{seclevel.LevelMaximum, transport.NetworkTor},
		{seclevel.LevelElevated, transport.NetworkDVPN},
		{seclevel.LevelStandard, transport.NetworkClearnet},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, r.SelectNetworkForSecurity(tt.level))
		})
	}
}

func TestSelectNetworkForSecurityFallsBack(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkI2P)

	// tor unavailable: maximum falls through to i2p.
	assert.Equal(t, transport.NetworkI2P, r.SelectNetworkForSecurity(seclevel.LevelMaximum))

	// none of the elevated preferences registered: default.
	r.UnregisterHandler(transport.NetworkI2P)
	assert.Equal(t, transport.NetworkClearnet, r.SelectNetworkForSecurity(seclevel.LevelElevated))
}

func TestSelectNetworkSkipsDisabled(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor, transport.NetworkI2P)
	h, _ := r.GetHandler(transport.NetworkTor)
	h.SetEnabled(false)

	assert.Equal(t, transport.NetworkI2P, r.SelectNetworkForSecurity(seclevel.LevelMaximum))
}

func TestRouteWithSecurityLevelSelection(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor)

	resp := r.Route(context.Background(), RoutingRequest{
		Destination:   "hidden.onion",
		SecurityLevel: seclevel.LevelMaximum,
	})
	assert.True(t, resp.Success)
	assert.Equal(t, transport.NetworkTor, resp.Network)
}

func TestConnectAllAndDisconnectAll(t *testing.T) {
	r := newTestRouter(t, transport.NetworkClearnet, transport.NetworkTor, transport.NetworkGNUnet)
	h, _ := r.GetHandler(transport.NetworkGNUnet)
	h.SetEnabled(false)

	results := r.ConnectAll(context.Background())
	assert.True(t, results[transport.NetworkClearnet])
	assert.True(t, results[transport.NetworkTor])
	assert.False(t, results[transport.NetworkGNUnet])
	assert.Equal(t, transport.StateDisconnected, h.State())

	results = r.DisconnectAll()
	assert.True(t, results[transport.NetworkClearnet])
	assert.False(t, results[transport.NetworkGNUnet])

	clearnet, _ := r.GetHandler(transport.NetworkClearnet)
	assert.Equal(t, transport.StateDisconnected, clearnet.State())
}
