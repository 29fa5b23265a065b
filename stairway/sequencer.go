package stairway

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elijahnyp/stairway_controller/state"
	. "github.com/elijahnyp/stairway_controller/util"
)

const (
	StatusWaiting      = "Waiting for input..."
	StatusMotionTop    = "Motion detected on TOP of stairway."
	StatusMotionBottom = "Motion detected on BOTTOM of stairway."
)

// Sequencer owns the stairway lights and runs at most one wave at a time.
//
// The top sensor starts a GoDown wave (ascending ids), the bottom sensor a GoUp wave
// (descending ids). Triggers arriving while a wave runs are dropped, not queued.
type Sequencer struct {
	mu          sync.Mutex
	lights      []*state.Light
	slots       []string
	lastID      int
	direction   state.Direction
	busy        bool
	status      string
	pirTop      bool
	pirBottom   bool
	stepDelay   time.Duration
	holdDelay   time.Duration
	cooldown    time.Duration
	lastWaveEnd time.Time
	closed      bool

	// pending holds invoker work (light switches and notifications) in the order
	// the state changed. One goroutine at a time drains it with no lock held.
	pending  []func()
	draining bool

	top    state.MotionSource
	bottom state.MotionSource
	bind   Binder
	invoke Invoker
	logs   *logBook
	notes  *notifier
	logger zerolog.Logger

	waves     sync.WaitGroup
	closeOnce sync.Once
}

// Snapshot is a consistent copy of the observable state.
type Snapshot struct {
	Direction   state.Direction `json:"direction"`
	Busy        bool            `json:"busy"`
	Status      string          `json:"status"`
	PirTop      bool            `json:"pir_top"`
	PirBottom   bool            `json:"pir_bottom"`
	StepDelayMs int64           `json:"step_delay_ms"`
	HoldDelayMs int64           `json:"hold_delay_ms"`
	FreeSlots   int             `json:"free_slots"`
	Lights      []LightState    `json:"lights"`
}

type wavePlan struct {
	direction state.Direction
	lights    []*state.Light
	step      time.Duration
	hold      time.Duration
}

// New builds an idle sequencer over the ordered pool of light slots and registers
// the trigger handlers on both motion sources. Either source may be nil.
func New(bottom, top state.MotionSource, slots []string, opts ...Option) *Sequencer {
	s := &Sequencer{
		slots:     append([]string(nil), slots...),
		status:    StatusWaiting,
		stepDelay: DefaultStepDelay,
		holdDelay: DefaultHoldDelay,
		top:       top,
		bottom:    bottom,
		invoke:    passThrough,
		logs:      newLogBook(DefaultLogLimit),
		notes:     newNotifier(),
		logger:    Logger.With().Str("component", "stairway").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logs.add("Ready to operate")
	s.logs.add("Waiting for input")
	if top != nil {
		top.OnTriggered(s.GoDown)
	}
	if bottom != nil {
		bottom.OnTriggered(s.GoUp)
	}
	return s
}

// CreateStairs takes n slots off the front of the pool and builds lights for them,
// continuing the id sequence of earlier calls. It must not run concurrently with
// itself.
func (s *Sequencer) CreateStairs(n int) error {
	s.mu.Lock()
	available := len(s.slots)
	if n < 0 || n > available {
		s.mu.Unlock()
		return &InsufficientResourcesError{Requested: n, Available: available}
	}
	taken := s.slots[:n]
	s.slots = append([]string(nil), s.slots[n:]...)
	first := s.lastID + 1
	s.lastID += n
	s.mu.Unlock()

	created := make([]*state.Light, 0, n)
	for i, slot := range taken {
		created = append(created, state.NewLight(first+i, slot, s.bindSlot(slot)))
	}

	s.mu.Lock()
	s.lights = append(s.lights, created...)
	s.mu.Unlock()

	for _, light := range created {
		s.log(fmt.Sprintf("Just added stair #%d", light.ID()))
	}
	return nil
}

func (s *Sequencer) bindSlot(slot string) state.Actuator {
	if s.bind == nil {
		return nil
	}
	actuator, err := s.bind(slot)
	if err != nil {
		s.logger.Warn().Msgf("unable to bind slot %s, running it simulated: %v", slot, err)
		return nil
	}
	return actuator
}

// GoDown starts a wave in ascending id order unless one is already running.
func (s *Sequencer) GoDown() {
	s.trigger(state.GoingDown)
}

// GoUp starts a wave in descending id order unless one is already running.
func (s *Sequencer) GoUp() {
	s.trigger(state.GoingUp)
}

func (s *Sequencer) trigger(direction state.Direction) {
	s.mu.Lock()
	if s.closed || s.busy || len(s.lights) == 0 {
		s.mu.Unlock()
		return
	}
	if s.cooldown > 0 && !s.lastWaveEnd.IsZero() && time.Since(s.lastWaveEnd) < s.cooldown {
		s.mu.Unlock()
		s.log(fmt.Sprintf("Trigger %v ignored: stairway is in cooldown.", direction))
		return
	}
	s.busy = true
	s.direction = direction
	plan := wavePlan{
		direction: direction,
		lights:    make([]*state.Light, len(s.lights)),
		step:      s.stepDelay,
		hold:      s.holdDelay,
	}
	if direction == state.GoingDown {
		s.pirTop, s.pirBottom = true, false
		s.status = StatusMotionTop
		copy(plan.lights, s.lights)
	} else {
		s.pirTop, s.pirBottom = false, true
		s.status = StatusMotionBottom
		for i, light := range s.lights {
			plan.lights[len(s.lights)-1-i] = light
		}
	}
	status := s.status
	s.queueLocked(Change{Property: PropDirection, Value: direction})
	s.queueLocked(Change{Property: PropBusy, Value: true})
	s.queueLocked(Change{Property: PropStatus, Value: status})
	s.queueLocked(Change{Property: PropPirTop, Value: s.pirTop})
	s.queueLocked(Change{Property: PropPirBottom, Value: s.pirBottom})
	s.logLocked(status)
	s.waves.Add(1)
	s.mu.Unlock()

	s.logger.Info().Msg(status)
	s.deliver()
	go s.run(plan)
}

func (s *Sequencer) run(plan wavePlan) {
	started := time.Now()
	defer s.waves.Done()
	defer s.finish(plan, started)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Msgf("wave %v stopped abnormally: %v", plan.direction, r)
		}
	}()

	s.logger.Debug().Msgf("wave %v started over %d lights", plan.direction, len(plan.lights))
	for _, light := range plan.lights {
		s.switchLight(light, true)
		time.Sleep(plan.step)
	}
	time.Sleep(plan.hold)
	for _, light := range plan.lights {
		s.switchLight(light, false)
		time.Sleep(plan.step)
	}
}

func (s *Sequencer) switchLight(light *state.Light, on bool) {
	s.mu.Lock()
	s.pending = append(s.pending, func() {
		if on {
			light.TurnOn()
		} else {
			light.TurnOff()
		}
		s.notes.publish(Change{
			Property: PropLight,
			Value:    LightState{ID: light.ID(), Slot: light.Slot(), On: on},
		})
	})
	s.mu.Unlock()
	s.deliver()
}

// finish returns the stairway to idle whatever happened during the wave.
func (s *Sequencer) finish(plan wavePlan, started time.Time) {
	finished := time.Now()
	message := fmt.Sprintf("Wave %v finished in %v", plan.direction, finished.Sub(started).Round(time.Millisecond))

	s.mu.Lock()
	s.direction = state.Idle
	s.busy = false
	s.status = StatusWaiting
	s.pirTop, s.pirBottom = false, false
	s.lastWaveEnd = finished
	s.queueLocked(Change{Property: PropDirection, Value: state.Idle})
	s.queueLocked(Change{Property: PropBusy, Value: false})
	s.queueLocked(Change{Property: PropStatus, Value: StatusWaiting})
	s.queueLocked(Change{Property: PropPirTop, Value: false})
	s.queueLocked(Change{Property: PropPirBottom, Value: false})
	s.queueLocked(Change{Property: PropWave, Value: Wave{
		Direction: plan.direction,
		Started:   started,
		Finished:  finished,
		Lights:    len(plan.lights),
	}})
	s.logLocked(message)
	s.mu.Unlock()

	s.logger.Info().Msg(message)
	s.deliver()
}

func (s *Sequencer) log(message string) {
	s.mu.Lock()
	s.logLocked(message)
	s.mu.Unlock()
	s.logger.Info().Msg(message)
	s.deliver()
}

// logLocked adds a log entry and queues its change. s.mu must be held.
func (s *Sequencer) logLocked(message string) {
	entry := s.logs.add(message)
	s.queueLocked(Change{Property: PropLog, Value: entry})
}

// queueLocked queues a change notification. s.mu must be held.
func (s *Sequencer) queueLocked(c Change) {
	s.pending = append(s.pending, func() { s.notes.publish(c) })
}

// deliver hands pending work to the invoker in queue order. A caller that finds
// another goroutine draining leaves its work to that goroutine, so the invoker
// and subscribers may call back into the sequencer.
func (s *Sequencer) deliver() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		fn := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.runPending(fn)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// runPending contains a panicking actuator or subscriber to its own update.
func (s *Sequencer) runPending(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Msgf("stairway update failed: %v", r)
		}
	}()
	s.invoke(fn)
}

// Subscribe registers fn for every observable change. The returned func cancels
// the subscription.
func (s *Sequencer) Subscribe(fn func(Change)) func() {
	return s.notes.subscribe(fn)
}

// Wait blocks until the running wave, if any, has returned to idle.
func (s *Sequencer) Wait() {
	s.waves.Wait()
}

// Close deregisters the sensor handlers and releases every light. It is safe to
// call at any time, including mid-wave, and more than once.
func (s *Sequencer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		lights := append([]*state.Light(nil), s.lights...)
		s.mu.Unlock()

		for _, source := range []state.MotionSource{s.top, s.bottom} {
			if source == nil {
				continue
			}
			source.OnTriggered(nil)
			if closer, ok := source.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					s.logger.Warn().Msgf("error closing motion source: %v", err)
				}
			}
		}
		for _, light := range lights {
			light.Release()
		}
		s.logger.Info().Msgf("stairway released %d lights", len(lights))
	})
	return nil
}

func (s *Sequencer) Direction() state.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Sequencer) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sequencer) PirTop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pirTop
}

func (s *Sequencer) PirBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pirBottom
}

// Lights returns the lights in id order.
func (s *Sequencer) Lights() []LightState {
	s.mu.Lock()
	lights := append([]*state.Light(nil), s.lights...)
	s.mu.Unlock()
	out := make([]LightState, 0, len(lights))
	for _, light := range lights {
		out = append(out, LightState{ID: light.ID(), Slot: light.Slot(), On: light.IsOn()})
	}
	return out
}

// Logs returns the log entries, most recent first.
func (s *Sequencer) Logs() []string {
	return s.logs.list()
}

// AvailableSlots is the number of pool slots not yet consumed by CreateStairs.
func (s *Sequencer) AvailableSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *Sequencer) StepDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepDelay
}

func (s *Sequencer) HoldDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdDelay
}

func (s *Sequencer) Cooldown() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldown
}

// SetStepDelay changes the delay between consecutive lights. A running wave keeps
// the value it started with.
func (s *Sequencer) SetStepDelay(d time.Duration) error {
	if d < 0 {
		return ErrInvalidDelay
	}
	s.mu.Lock()
	s.stepDelay = d
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) SetHoldDelay(d time.Duration) error {
	if d < 0 {
		return ErrInvalidDelay
	}
	s.mu.Lock()
	s.holdDelay = d
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) SetCooldown(d time.Duration) error {
	if d < 0 {
		return ErrInvalidDelay
	}
	s.mu.Lock()
	s.cooldown = d
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Direction:   s.direction,
		Busy:        s.busy,
		Status:      s.status,
		PirTop:      s.pirTop,
		PirBottom:   s.pirBottom,
		StepDelayMs: s.stepDelay.Milliseconds(),
		HoldDelayMs: s.holdDelay.Milliseconds(),
		FreeSlots:   len(s.slots),
	}
	s.mu.Unlock()
	snap.Lights = s.Lights()
	return snap
}
