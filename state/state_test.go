package state

import (
	"errors"
	"sync"
	"testing"
)

// Mock implementations for testing interfaces

type MockActuator struct {
	mu     sync.Mutex
	writes []bool
	err    error
	closed int
}

func (m *MockActuator) Write(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, on)
	return m.err
}

func (m *MockActuator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockActuator) Writes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.writes...)
}

type MockMotionSource struct {
	handler func()
}

func (m *MockMotionSource) OnTriggered(handler func()) {
	m.handler = handler
}

func TestLight_TurnOnTwice(t *testing.T) {
	actuator := &MockActuator{}
	light := NewLight(1, "GPIO4", actuator)

	light.TurnOn()
	light.TurnOn()

	if !light.IsOn() {
		t.Error("light should be on after TurnOn")
	}
	writes := actuator.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 actuator writes, got %d", len(writes))
	}
	for i, w := range writes {
		if !w {
			t.Errorf("write %d = false, expected true", i)
		}
	}
}

func TestLight_TurnOff(t *testing.T) {
	actuator := &MockActuator{}
	light := NewLight(3, "GPIO6", actuator)

	light.TurnOn()
	light.TurnOff()

	if light.IsOn() {
		t.Error("light should be off after TurnOff")
	}
	writes := actuator.Writes()
	if len(writes) != 2 || writes[0] != true || writes[1] != false {
		t.Errorf("writes = %v, expected [true false]", writes)
	}
}

func TestLight_Identity(t *testing.T) {
	light := NewLight(7, "stairway/step/7", nil)

	if light.ID() != 7 {
		t.Errorf("ID() = %d, expected 7", light.ID())
	}
	if light.Slot() != "stairway/step/7" {
		t.Errorf("Slot() = %s, expected stairway/step/7", light.Slot())
	}
	if !light.Simulated() {
		t.Error("light without actuator should be simulated")
	}
}

func TestLight_SimulationMode(t *testing.T) {
	light := NewLight(1, "GPIO4", nil)

	light.TurnOn()
	if !light.IsOn() {
		t.Error("simulated light should track on state")
	}
	light.TurnOff()
	if light.IsOn() {
		t.Error("simulated light should track off state")
	}
}

func TestLight_ActuatorFailureIgnored(t *testing.T) {
	actuator := &MockActuator{err: errors.New("pin busy")}
	light := NewLight(1, "GPIO4", actuator)

	light.TurnOn()

	if !light.IsOn() {
		t.Error("light state should change even when the actuator fails")
	}
	if len(actuator.Writes()) != 1 {
		t.Errorf("expected 1 write attempt, got %d", len(actuator.Writes()))
	}
}

func TestLight_Release(t *testing.T) {
	actuator := &MockActuator{}
	light := NewLight(1, "GPIO4", actuator)

	light.TurnOn()
	light.Release()
	light.Release()

	if actuator.closed != 1 {
		t.Errorf("actuator closed %d times, expected 1", actuator.closed)
	}
	if !light.Simulated() {
		t.Error("released light should fall back to simulation")
	}

	light.TurnOff()
	if len(actuator.Writes()) != 1 {
		t.Errorf("released actuator received %d writes, expected 1", len(actuator.Writes()))
	}
	if light.IsOn() {
		t.Error("released light should still track state")
	}
}

func TestLight_ReleaseKeepsLevel(t *testing.T) {
	actuator := &MockActuator{}
	light := NewLight(2, "GPIO5", actuator)

	light.TurnOn()
	light.Release()

	if !light.IsOn() {
		t.Error("release should not change the reported state")
	}
	if writes := actuator.Writes(); len(writes) != 1 || !writes[0] {
		t.Errorf("release should not write to the actuator, got %v", writes)
	}
}

func TestActuatorFunc(t *testing.T) {
	var got []bool
	var actuator Actuator = ActuatorFunc(func(on bool) error {
		got = append(got, on)
		return nil
	})

	if err := actuator.Write(true); err != nil {
		t.Errorf("Write returned error: %v", err)
	}
	if len(got) != 1 || !got[0] {
		t.Errorf("ActuatorFunc received %v, expected [true]", got)
	}
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		expected  string
	}{
		{"Idle", Idle, "idle"},
		{"Going down", GoingDown, "going_down"},
		{"Going up", GoingUp, "going_up"},
		{"Unknown", Direction(42), "idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.direction.String() != tt.expected {
				t.Errorf("String() = %s, expected %s", tt.direction.String(), tt.expected)
			}
			text, err := tt.direction.MarshalText()
			if err != nil {
				t.Fatalf("MarshalText returned error: %v", err)
			}
			if string(text) != tt.expected {
				t.Errorf("MarshalText() = %s, expected %s", text, tt.expected)
			}
		})
	}
}

func TestInterfaceCompatibility(t *testing.T) {
	var actuator Actuator = &MockActuator{}
	_ = actuator

	var source MotionSource = &MockMotionSource{}
	called := false
	source.OnTriggered(func() { called = true })
	source.(*MockMotionSource).handler()
	if !called {
		t.Error("registered handler should be invoked")
	}
	source.OnTriggered(nil)
	if source.(*MockMotionSource).handler != nil {
		t.Error("nil registration should clear the handler")
	}
}
