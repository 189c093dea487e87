package ha

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// MockClient implements HAClient in memory for testing
type MockClient struct {
	states       map[string]*State
	statesMu     sync.RWMutex
	connected    bool
	connMu       sync.RWMutex
	serviceCalls []ServiceCall
	callsMu      sync.Mutex
	failWith     error
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:       make(map[string]*State),
		serviceCalls: make([]ServiceCall, 0),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns the simulated connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// SetState sets an entity state
func (m *MockClient) SetState(entityID, state string) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	now := time.Now()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  make(map[string]interface{}),
		LastChanged: now,
		LastUpdated: now,
	}
}

// GetState returns an entity state set with SetState or a service call
func (m *MockClient) GetState(ctx context.Context, entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	copied := *state
	return &copied, nil
}

// FailWith makes every following service call return err, nil to recover
func (m *MockClient) FailWith(err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.failWith = err
}

// CallService records the call
func (m *MockClient) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	m.callsMu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.callsMu.Unlock()
		return err
	}
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	if domain == "input_boolean" {
		if entityID, ok := data["entity_id"].(string); ok {
			switch service {
			case "turn_on":
				m.SetState(entityID, "on")
			case "turn_off":
				m.SetState(entityID, "off")
			}
		}
	}
	return nil
}

// SetInputBoolean turns an input_boolean on or off
func (m *MockClient) SetInputBoolean(ctx context.Context, name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}
	return m.CallService(ctx, "input_boolean", service, map[string]interface{}{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// GetServiceCalls returns the recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls forgets the recorded service calls
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = make([]ServiceCall, 0)
}
