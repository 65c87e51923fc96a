package environment

import (
	"context"
	"sync/atomic"
)

var _ LuxReader = &MockLightSensor{}

// LightBehaviorFunc defines the function signature for light sensor behavior.
// It returns the lux value or an error.
type LightBehaviorFunc func(ctx context.Context) (uint32, error)

// MockLightSensor is a LuxReader driven by a behavior function, so code
// depending on measurements can run without a bus.
type MockLightSensor struct {
	behavior LightBehaviorFunc
	calls    atomic.Int64
}

// NewMockLightSensor creates a new mock light sensor with the given behavior function.
// The behavior function is called whenever ReadLux is invoked.
//
// Example usage:
//
//	// Static value
//	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
//		return 500, nil
//	})
//
//	// Error simulation
//	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
//		return 0, fmt.Errorf("sensor malfunction")
//	})
func NewMockLightSensor(behavior LightBehaviorFunc) *MockLightSensor {
	return &MockLightSensor{
		behavior: behavior,
	}
}

// ReadLux returns the lux value by calling the behavior function.
func (m *MockLightSensor) ReadLux(ctx context.Context) (uint32, error) {
	m.calls.Add(1)
	return m.behavior(ctx)
}

// Calls returns how many times ReadLux was invoked.
func (m *MockLightSensor) Calls() int {
	return int(m.calls.Load())
}
