package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkID(t *testing.T) {
	tests := []struct {
		name     string
		id       NetworkID
		known    bool
		isCustom bool
	}{
		{name: "clearnet", id: NetworkClearnet, known: true},
		{name: "tor", id: NetworkTor, known: true},
		{name: "i2p", id: NetworkI2P, known: true},
		{name: "gnunet", id: NetworkGNUnet, known: true},
		{name: "dvpn", id: NetworkDVPN, known: true},
		{name: "custom", id: CustomNetwork("mesh1"), known: true, isCustom: true},
		{name: "bare custom prefix", id: NetworkID("custom-"), known: false, isCustom: true},
		{name: "unknown", id: NetworkID("carrier-pigeon"), known: false},
		{name: "empty", id: NetworkID(""), known: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.known, tt.id.Known())
			assert.Equal(t, tt.isCustom, tt.id.IsCustom())
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateDisconnected, sm.State())

	require.NoError(t, sm.TransitionTo(StateConnecting))
	assert.Equal(t, StateConnecting, sm.State())

	require.NoError(t, sm.TransitionTo(StateConnected))
	assert.True(t, sm.IsConnected())
	assert.Equal(t, 1, sm.Info().ConnectCount)
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	sm := NewStateMachine()

	// Disconnected cannot jump straight to connected.
	err := sm.TransitionTo(StateConnected)
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sm.State())
}

func TestStateMachineErrorAndRecovery(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.TransitionTo(StateConnecting))

	sm.SetError(assert.AnError)
	assert.Equal(t, StateError, sm.State())
	assert.Equal(t, assert.AnError, sm.Info().LastError)

	// Error is a valid connect source.
	require.NoError(t, sm.TransitionTo(StateConnecting))
	require.NoError(t, sm.TransitionTo(StateConnected))
	assert.Nil(t, sm.Info().LastError)
}

func TestStateMachineCallback(t *testing.T) {
	sm := NewStateMachine()

	var transitions [][2]ConnectionState
	sm.SetStateChangeCallback(func(oldState, newState ConnectionState, _ *ConnectionInfo) {
		transitions = append(transitions, [2]ConnectionState{oldState, newState})
	})

	require.NoError(t, sm.TransitionTo(StateConnecting))
	require.NoError(t, sm.TransitionTo(StateConnected))
	sm.Reset()

	require.Len(t, transitions, 3)
	assert.Equal(t, [2]ConnectionState{StateDisconnected, StateConnecting}, transitions[0])
	assert.Equal(t, [2]ConnectionState{StateConnecting, StateConnected}, transitions[1])
	assert.Equal(t, [2]ConnectionState{StateConnected, StateDisconnected}, transitions[2])
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}
