package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// NetworkID identifies a transport family. Custom transports use a
// "custom-" prefixed identifier.
type NetworkID string

const (
	NetworkClearnet NetworkID = "clearnet"
	NetworkTor      NetworkID = "tor"
	NetworkI2P      NetworkID = "i2p"
	NetworkGNUnet   NetworkID = "gnunet"
	NetworkDVPN     NetworkID = "dvpn"

	customPrefix = "custom-"
)

// CustomNetwork builds the NetworkID for a user-defined transport.
func CustomNetwork(name string) NetworkID {
	return NetworkID(customPrefix + name)
}

// IsCustom reports whether the identifier belongs to a user-defined transport.
func (n NetworkID) IsCustom() bool {
	return strings.HasPrefix(string(n), customPrefix)
}

// Known reports whether the identifier is one of the built-in transports
// or a well-formed custom identifier.
func (n NetworkID) Known() bool {
	switch n {
	case NetworkClearnet, NetworkTor, NetworkI2P, NetworkGNUnet, NetworkDVPN:
		return true
	}
	return n.IsCustom() && len(n) > len(customPrefix)
}

func (n NetworkID) String() string { return string(n) }

// ConnectionState represents the state of a transport connection
type ConnectionState int

const (
	// StateDisconnected indicates the transport is not connected
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the transport is negotiating a connection
	StateConnecting
	// StateConnected indicates the transport is ready to route
	StateConnected
	// StateError indicates the transport encountered an error
	StateError
)

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionInfo holds information about the current connection state
type ConnectionInfo struct {
	State          ConnectionState `json:"state"`
	LastError      error           `json:"last_error,omitempty"`
	ConnectCount   int             `json:"connect_count"`
	LastTransition time.Time       `json:"last_transition,omitempty"`
}

// StateMachine manages the state transitions for one handler's connection.
// Exactly one instance exists per handler; it is never shared.
type StateMachine struct {
	mu             sync.RWMutex
	currentState   ConnectionState
	lastError      error
	connectCount   int
	lastTransition time.Time

	onStateChange func(oldState, newState ConnectionState, info *ConnectionInfo)
}

// NewStateMachine creates a state machine starting at StateDisconnected.
func NewStateMachine() *StateMachine {
	return &StateMachine{currentState: StateDisconnected}
}

// SetStateChangeCallback sets a callback invoked after every transition.
func (sm *StateMachine) SetStateChangeCallback(callback func(oldState, newState ConnectionState, info *ConnectionInfo)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStateChange = callback
}

// State returns the current connection state
func (sm *StateMachine) State() ConnectionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// Info returns detailed connection information
func (sm *StateMachine) Info() ConnectionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ConnectionInfo{
		State:          sm.currentState,
		LastError:      sm.lastError,
		ConnectCount:   sm.connectCount,
		LastTransition: sm.lastTransition,
	}
}

// IsState checks if the current state matches the given state
func (sm *StateMachine) IsState(state ConnectionState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState == state
}

// IsConnected returns true if the connection is ready for routing
func (sm *StateMachine) IsConnected() bool {
	return sm.IsState(StateConnected)
}

// TransitionTo advances to a new state. Invalid transitions are rejected.
func (sm *StateMachine) TransitionTo(newState ConnectionState) error {
	sm.mu.Lock()
	oldState := sm.currentState

	if err := ValidateTransition(oldState, newState); err != nil {
		sm.mu.Unlock()
		return err
	}

	sm.currentState = newState
	sm.lastTransition = time.Now()
	if newState == StateConnected {
		sm.lastError = nil
		sm.connectCount++
	}

	info := ConnectionInfo{
		State:          sm.currentState,
		LastError:      sm.lastError,
		ConnectCount:   sm.connectCount,
		LastTransition: sm.lastTransition,
	}
	callback := sm.onStateChange
	sm.mu.Unlock()

	// Call the callback outside the lock to avoid deadlocks
	if callback != nil {
		callback(oldState, newState, &info)
	}
	return nil
}

// SetError records an error and transitions to StateError.
func (sm *StateMachine) SetError(err error) {
	sm.mu.Lock()
	oldState := sm.currentState
	sm.currentState = StateError
	sm.lastError = err
	sm.lastTransition = time.Now()

	info := ConnectionInfo{
		State:          sm.currentState,
		LastError:      sm.lastError,
		ConnectCount:   sm.connectCount,
		LastTransition: sm.lastTransition,
	}
	callback := sm.onStateChange
	sm.mu.Unlock()

	if callback != nil {
		callback(oldState, StateError, &info)
	}
}

// Reset returns the state machine to StateDisconnected from any state.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	oldState := sm.currentState
	sm.currentState = StateDisconnected
	sm.lastError = nil
	sm.lastTransition = time.Now()

	info := ConnectionInfo{
		State:          sm.currentState,
		LastTransition: sm.lastTransition,
		ConnectCount:   sm.connectCount,
	}
	callback := sm.onStateChange
	sm.mu.Unlock()

	if callback != nil {
		callback(oldState, StateDisconnected, &info)
	}
}

// ValidateTransition validates if a state transition is allowed
func ValidateTransition(from, to ConnectionState) error {
	validTransitions := map[ConnectionState][]ConnectionState{
		StateDisconnected: {StateConnecting, StateDisconnected},
		StateConnecting:   {StateConnected, StateError, StateDisconnected},
		StateConnected:    {StateConnected, StateError, StateDisconnected},
		StateError:        {StateConnecting, StateDisconnected},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid source state: %s", from)
	}
	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s", from, to)
}
