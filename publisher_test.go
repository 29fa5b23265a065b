package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elijahnyp/stairway_controller/stairway"
	"github.com/elijahnyp/stairway_controller/state"
	. "github.com/elijahnyp/stairway_controller/util"
)

type publishedMessage struct {
	topic    string
	payload  string
	retained bool
}

type publishRecorder struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (r *publishRecorder) publish(topic string, retained bool, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, publishedMessage{topic: topic, payload: payload, retained: retained})
	return r.err
}

func (r *publishRecorder) all() []publishedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publishedMessage(nil), r.messages...)
}

func (r *publishRecorder) byTopic() map[string]publishedMessage {
	out := make(map[string]publishedMessage)
	for _, m := range r.all() {
		out[m.topic] = m
	}
	return out
}

func testRig() Rig {
	return Rig{
		LightSlots:       []string{"4", "5", "6"},
		Count:            3,
		StepDelay:        time.Millisecond,
		HoldDelay:        time.Millisecond,
		LogLimit:         100,
		SensorMode:       MODE_SIM,
		ActuatorMode:     MODE_SIM,
		LightTopicPrefix: "stairway/light",
		StateTopicPrefix: "stairway",
	}
}

func newTestStairway(t *testing.T) *stairway.Sequencer {
	t.Helper()
	rig := testRig()
	seq := stairway.New(nil, nil, rig.LightSlots, sequencerOptions(rig)...)
	t.Cleanup(func() { _ = seq.Close() })
	if err := seq.CreateStairs(rig.Count); err != nil {
		t.Fatalf("CreateStairs failed: %v", err)
	}
	return seq
}

func TestStatePublisherMessage(t *testing.T) {
	p := NewStatePublisher(testRig(), nil)
	wave := stairway.Wave{Direction: state.GoingUp, Started: time.Unix(100, 0), Finished: time.Unix(102, 0), Lights: 3}
	waveJSON, _ := json.Marshal(wave)

	tests := []struct {
		name     string
		change   stairway.Change
		topic    string
		payload  string
		retained bool
		ok       bool
	}{
		{"Busy", stairway.Change{Property: stairway.PropBusy, Value: true}, "stairway/busy", "ON", true, true},
		{"Idle", stairway.Change{Property: stairway.PropBusy, Value: false}, "stairway/busy", "OFF", true, true},
		{"Top sensor", stairway.Change{Property: stairway.PropPirTop, Value: true}, "stairway/pir_top", "ON", true, true},
		{"Bottom sensor", stairway.Change{Property: stairway.PropPirBottom, Value: false}, "stairway/pir_bottom", "OFF", true, true},
		{"Direction", stairway.Change{Property: stairway.PropDirection, Value: state.GoingDown}, "stairway/direction", "going_down", true, true},
		{"Status", stairway.Change{Property: stairway.PropStatus, Value: stairway.StatusWaiting}, "stairway/status", stairway.StatusWaiting, true, true},
		{"Log", stairway.Change{Property: stairway.PropLog, Value: "entry"}, "stairway/log", "entry", false, true},
		{"Light", stairway.Change{Property: stairway.PropLight, Value: stairway.LightState{ID: 7, Slot: "26", On: true}}, "stairway/light/7", "ON", true, true},
		{"Wave", stairway.Change{Property: stairway.PropWave, Value: wave}, "stairway/wave", string(waveJSON), false, true},
		{"Unknown bool", stairway.Change{Property: "other", Value: true}, "", "", false, false},
		{"Unknown value", stairway.Change{Property: stairway.PropBusy, Value: 3}, "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, payload, retained, ok := p.message(tt.change)
			if ok != tt.ok {
				t.Fatalf("message ok = %v, expected %v", ok, tt.ok)
			}
			if topic != tt.topic || payload != tt.payload || retained != tt.retained {
				t.Errorf("message = (%q, %q, %v), expected (%q, %q, %v)", topic, payload, retained, tt.topic, tt.payload, tt.retained)
			}
		})
	}
}

func TestStatePublisherSendIgnoresErrors(t *testing.T) {
	rec := &publishRecorder{err: ErrNotConnected}
	p := NewStatePublisher(testRig(), nil)
	p.publish = rec.publish

	p.send(stairway.Change{Property: stairway.PropBusy, Value: true})
	p.send(stairway.Change{Property: "other", Value: 1})

	if got := rec.all(); len(got) != 1 {
		t.Errorf("expected 1 publish attempt, got %d", len(got))
	}
}

func TestStatePublisherFollowsWave(t *testing.T) {
	seq := newTestStairway(t)
	rec := &publishRecorder{}
	p := NewStatePublisher(testRig(), seq)
	p.publish = rec.publish
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancelSub := seq.Subscribe(p.Observe)
	defer cancelSub()

	seq.GoDown()
	seq.Wait()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := rec.byTopic()["stairway/wave"]; ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	p.Wait()

	topics := rec.byTopic()
	expected := map[string]string{
		"stairway/busy":      "OFF",
		"stairway/direction": "idle",
		"stairway/status":    stairway.StatusWaiting,
		"stairway/light/1":   "OFF",
		"stairway/light/3":   "OFF",
	}
	for topic, payload := range expected {
		if got, ok := topics[topic]; !ok || got.payload != payload {
			t.Errorf("last %s = %q, expected %q", topic, got.payload, payload)
		}
	}
	if _, ok := topics["stairway/wave"]; !ok {
		t.Error("completed wave was not published")
	}
}

func TestStatePublisherSnapshot(t *testing.T) {
	seq := newTestStairway(t)
	rec := &publishRecorder{}
	p := NewStatePublisher(testRig(), seq)
	p.publish = rec.publish

	p.PublishSnapshot()
	close(p.queue)
	for c := range p.queue {
		p.send(c)
	}

	got := rec.all()
	// five stairway properties plus one per light
	if len(got) != 8 {
		t.Fatalf("expected 8 messages, got %d: %+v", len(got), got)
	}
	for _, m := range got {
		if !m.retained {
			t.Errorf("snapshot message on %s should be retained", m.topic)
		}
	}
}

func TestStatePublisherQueueFull(t *testing.T) {
	p := NewStatePublisher(testRig(), nil)
	for i := 0; i < publishQueueSize+10; i++ {
		p.Observe(stairway.Change{Property: stairway.PropBusy, Value: true})
	}
	if len(p.queue) != publishQueueSize {
		t.Errorf("queue length = %d, expected %d", len(p.queue), publishQueueSize)
	}
}

func TestOnOff(t *testing.T) {
	if onOff(true) != "ON" || onOff(false) != "OFF" {
		t.Error("onOff should map to ON/OFF")
	}
}

func TestPublishErrorIsSentinel(t *testing.T) {
	// the real publisher reports a missing broker as ErrNotConnected
	Client = nil
	p := NewStatePublisher(testRig(), nil)
	if err := p.publish("stairway/busy", true, "ON"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("publish without broker = %v, expected ErrNotConnected", err)
	}
}
