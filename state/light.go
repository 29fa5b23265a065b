package state

import (
	"io"
	"sync"

	. "github.com/elijahnyp/stairway_controller/util"
)

// Light is one addressable on/off output of the stairway.
// The id is its 1-based position and never changes after construction.
type Light struct {
	mu       sync.Mutex
	id       int
	slot     string
	on       bool
	actuator Actuator
	released bool
}

func NewLight(id int, slot string, actuator Actuator) *Light {
	return &Light{id: id, slot: slot, actuator: actuator}
}

func (l *Light) ID() int {
	return l.id
}

// Slot is the output identifier (pin name or topic) the light was built from.
func (l *Light) Slot() string {
	return l.slot
}

func (l *Light) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *Light) TurnOn() {
	l.set(true)
}

func (l *Light) TurnOff() {
	l.set(false)
}

// set always signals the actuator, even when the state does not change.
func (l *Light) set(on bool) {
	l.mu.Lock()
	l.on = on
	actuator := l.actuator
	l.mu.Unlock()
	if actuator == nil {
		return
	}
	if err := actuator.Write(on); err != nil {
		Logger.Warn().Msgf("light %d (%s) write %v failed: %v", l.id, l.slot, on, err)
	}
}

// Release frees the actuator. The light keeps working in simulation mode afterwards.
func (l *Light) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	actuator := l.actuator
	l.actuator = nil
	l.mu.Unlock()
	if closer, ok := actuator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			Logger.Warn().Msgf("releasing light %d (%s): %v", l.id, l.slot, err)
		}
	}
}

func (l *Light) Simulated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.actuator == nil
}
