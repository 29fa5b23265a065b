package stairway

import (
	"sync"
	"time"

	"github.com/elijahnyp/stairway_controller/state"
)

// Property names carried by Change.
const (
	PropDirection = "direction"
	PropBusy      = "busy"
	PropStatus    = "status"
	PropLight     = "light"
	PropLog       = "log"
	PropPirTop    = "pir_top"
	PropPirBottom = "pir_bottom"
	PropWave      = "wave"
)

// Change describes one observable mutation of the sequencer.
type Change struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// LightState is the observable view of a single light.
type LightState struct {
	ID   int    `json:"id"`
	Slot string `json:"slot"`
	On   bool   `json:"on"`
}

// Wave records one completed illumination wave.
type Wave struct {
	Direction state.Direction `json:"direction"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Lights    int             `json:"lights"`
}

func (w Wave) Duration() time.Duration {
	return w.Finished.Sub(w.Started)
}

// Invoker runs fn on whatever goroutine owns the presentation layer.
type Invoker func(fn func())

func passThrough(fn func()) {
	fn()
}

type notifier struct {
	mu          sync.RWMutex
	subscribers map[int]func(Change)
	next        int
}

func newNotifier() *notifier {
	return &notifier{subscribers: make(map[int]func(Change))}
}

func (n *notifier) subscribe(fn func(Change)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subscribers[id] = fn
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subscribers, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(c Change) {
	n.mu.RLock()
	subs := make([]func(Change), 0, len(n.subscribers))
	for _, fn := range n.subscribers {
		subs = append(subs, fn)
	}
	n.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}
