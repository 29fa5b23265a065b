package stairway

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/elijahnyp/stairway_controller/state"
)

const (
	DefaultStepDelay = 300 * time.Millisecond
	DefaultHoldDelay = 5000 * time.Millisecond
	DefaultLogLimit  = 1000
)

// Binder opens the physical output behind a light slot.
type Binder func(slot string) (state.Actuator, error)

type Option func(*Sequencer)

func WithStepDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.stepDelay = d }
}

func WithHoldDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.holdDelay = d }
}

// WithCooldown drops triggers arriving within d of the previous wave's end.
func WithCooldown(d time.Duration) Option {
	return func(s *Sequencer) { s.cooldown = d }
}

func WithInvoker(invoke Invoker) Option {
	return func(s *Sequencer) {
		if invoke != nil {
			s.invoke = invoke
		}
	}
}

func WithBinder(bind Binder) Option {
	return func(s *Sequencer) { s.bind = bind }
}

// WithLogLimit caps the number of retained log entries, 0 keeps everything.
func WithLogLimit(limit int) Option {
	return func(s *Sequencer) { s.logs.limit = limit }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}
