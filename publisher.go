package main

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/elijahnyp/stairway_controller/stairway"
	"github.com/elijahnyp/stairway_controller/state"
	. "github.com/elijahnyp/stairway_controller/util"
)

const publishQueueSize = 128

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// StatePublisher mirrors the stairway state onto MQTT under the rig's state topic
// prefix. Publishing runs on its own goroutine.
type StatePublisher struct {
	rig     Rig
	seq     *stairway.Sequencer
	queue   chan stairway.Change
	publish func(topic string, retained bool, payload string) error
	wg      sync.WaitGroup
}

func NewStatePublisher(rig Rig, seq *stairway.Sequencer) *StatePublisher {
	return &StatePublisher{
		rig:     rig,
		seq:     seq,
		queue:   make(chan stairway.Change, publishQueueSize),
		publish: Publish,
	}
}

// Observe is a stairway change subscriber.
func (p *StatePublisher) Observe(c stairway.Change) {
	select {
	case p.queue <- c:
	default:
		Logger.Warn().Msgf("state publish queue full, dropping %s", c.Property)
	}
}

// PublishSnapshot queues the full current state. It runs after every connect.
func (p *StatePublisher) PublishSnapshot() {
	snap := p.seq.Snapshot()
	p.Observe(stairway.Change{Property: stairway.PropDirection, Value: snap.Direction})
	p.Observe(stairway.Change{Property: stairway.PropBusy, Value: snap.Busy})
	p.Observe(stairway.Change{Property: stairway.PropStatus, Value: snap.Status})
	p.Observe(stairway.Change{Property: stairway.PropPirTop, Value: snap.PirTop})
	p.Observe(stairway.Change{Property: stairway.PropPirBottom, Value: snap.PirBottom})
	for _, light := range snap.Lights {
		p.Observe(stairway.Change{Property: stairway.PropLight, Value: light})
	}
}

func (p *StatePublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *StatePublisher) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.queue:
			p.send(c)
		}
	}
}

// Wait blocks until the publisher goroutine has returned.
func (p *StatePublisher) Wait() {
	p.wg.Wait()
}

// message maps a change to its topic, payload and retain flag. ok is false for
// changes that are not mirrored.
func (p *StatePublisher) message(c stairway.Change) (topic, payload string, retained, ok bool) {
	switch v := c.Value.(type) {
	case bool:
		switch c.Property {
		case stairway.PropBusy, stairway.PropPirTop, stairway.PropPirBottom:
			return p.rig.StateTopic(c.Property), onOff(v), true, true
		}
	case state.Direction:
		return p.rig.StateTopic(c.Property), v.String(), true, true
	case string:
		switch c.Property {
		case stairway.PropStatus:
			return p.rig.StateTopic(c.Property), v, true, true
		case stairway.PropLog:
			return p.rig.StateTopic(c.Property), v, false, true
		}
	case stairway.LightState:
		return p.rig.StateTopic("light/" + strconv.Itoa(v.ID)), onOff(v.On), true, true
	case stairway.Wave:
		body, err := json.Marshal(v)
		if err != nil {
			Logger.Error().Msgf("unable to encode wave: %v", err)
			return "", "", false, false
		}
		return p.rig.StateTopic(c.Property), string(body), false, true
	}
	return "", "", false, false
}

func (p *StatePublisher) send(c stairway.Change) {
	topic, payload, retained, ok := p.message(c)
	if !ok {
		return
	}
	if err := p.publish(topic, retained, payload); err != nil {
		Logger.Debug().Msgf("unable to publish %s: %v", topic, err)
	}
}
