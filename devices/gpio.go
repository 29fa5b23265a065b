package devices

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/elijahnyp/stairway_controller/state"
	. "github.com/elijahnyp/stairway_controller/util"
)

// edgePoll bounds how long a sensor loop blocks before checking for Close.
const edgePoll = 250 * time.Millisecond

var ErrPinNotFound = errors.New("gpio pin not found")

var (
	hostOnce sync.Once
	hostErr  error
)

// InitGPIO loads the periph host drivers once per process.
func InitGPIO() error {
	hostOnce.Do(func() {
		drivers, err := host.Init()
		if err != nil {
			hostErr = fmt.Errorf("periph host init: %w", err)
			return
		}
		Logger.Debug().Msgf("periph loaded %d drivers, %d skipped", len(drivers.Loaded), len(drivers.Skipped))
	})
	return hostErr
}

func lookupPin(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return pin, nil
}

func activeLevel(activeLow bool) gpio.Level {
	if activeLow {
		return gpio.Low
	}
	return gpio.High
}

// GPIOLight drives one output pin. With activeLow the light is on while the
// pin is low, as on most relay boards.
type GPIOLight struct {
	pin       gpio.PinOut
	activeLow bool
}

func NewGPIOLight(pin gpio.PinOut, activeLow bool) (*GPIOLight, error) {
	l := &GPIOLight{pin: pin, activeLow: activeLow}
	if err := l.Write(false); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *GPIOLight) Write(on bool) error {
	level := activeLevel(l.activeLow)
	if !on {
		level = !level
	}
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("%s out %v: %w", l.pin.Name(), level, err)
	}
	return nil
}

// Close releases the pin and leaves its level as it is.
func (l *GPIOLight) Close() error {
	return l.pin.Halt()
}

// GPIOBinder binds light slots to the pins of the same name.
func GPIOBinder(activeLow bool) func(slot string) (state.Actuator, error) {
	return func(slot string) (state.Actuator, error) {
		pin, err := lookupPin(slot)
		if err != nil {
			return nil, err
		}
		light, err := NewGPIOLight(pin, activeLow)
		if err != nil {
			return nil, err
		}
		return light, nil
	}
}

// GPIOMotion watches an input pin for the active edge of a motion sensor.
// Edges closer than the bounce time to the previous accepted one are dropped.
type GPIOMotion struct {
	pin       gpio.PinIn
	bounce    time.Duration
	activeLow bool

	mu      sync.Mutex
	handler func()
	last    time.Time

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewGPIOMotion(pin gpio.PinIn, bounce time.Duration, activeLow bool) (*GPIOMotion, error) {
	pull, edge := gpio.PullDown, gpio.RisingEdge
	if activeLow {
		pull, edge = gpio.PullUp, gpio.FallingEdge
	}
	if err := pin.In(pull, edge); err != nil {
		return nil, fmt.Errorf("%s in: %w", pin.Name(), err)
	}
	m := &GPIOMotion{
		pin:       pin,
		bounce:    bounce,
		activeLow: activeLow,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go m.watch()
	return m, nil
}

// OpenGPIOMotion looks the pin up by name, e.g. "GPIO23" or "23".
func OpenGPIOMotion(name string, bounce time.Duration, activeLow bool) (*GPIOMotion, error) {
	pin, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	return NewGPIOMotion(pin, bounce, activeLow)
}

func (m *GPIOMotion) OnTriggered(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *GPIOMotion) watch() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if !m.pin.WaitForEdge(edgePoll) {
			continue
		}
		if m.pin.Read() != activeLevel(m.activeLow) {
			continue
		}
		m.fire(time.Now())
	}
}

func (m *GPIOMotion) fire(now time.Time) {
	m.mu.Lock()
	if !m.last.IsZero() && now.Sub(m.last) < m.bounce {
		m.mu.Unlock()
		Logger.Trace().Msgf("%s edge within bounce time", m.pin.Name())
		return
	}
	m.last = now
	handler := m.handler
	m.mu.Unlock()
	Logger.Debug().Msgf("motion on %s", m.pin.Name())
	if handler != nil {
		handler()
	}
}

// Close stops the edge watcher and releases the pin.
func (m *GPIOMotion) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.OnTriggered(nil)
		close(m.done)
		<-m.stopped
		err = m.pin.Halt()
	})
	return err
}
