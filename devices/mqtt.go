package devices

import (
	"strconv"
	"strings"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/elijahnyp/stairway_controller/state"
	. "github.com/elijahnyp/stairway_controller/util"
)

const ( // motion payload analysis
	MOTION_UNKNOWN = iota
	MOTION_START   = iota
	MOTION_STOP    = iota
)

// ParseMotionPayload accepts the payloads home sensors commonly send: integers
// (0 is stop), ON/OFF and CLOSED/OPEN contacts.
func ParseMotionPayload(data []byte) int {
	payload := strings.TrimSpace(string(data))
	if numd, err := strconv.Atoi(payload); err == nil {
		if numd == 0 {
			return MOTION_STOP
		}
		return MOTION_START
	}
	switch strings.ToUpper(payload) {
	case "OFF", "OPEN", "FALSE":
		return MOTION_STOP
	case "ON", "CLOSED", "TRUE":
		return MOTION_START
	}
	return MOTION_UNKNOWN
}

// MQTTLight publishes ON/OFF commands for one light on its command topic.
type MQTTLight struct {
	topic string
}

func NewMQTTLight(topic string) *MQTTLight {
	return &MQTTLight{topic: topic}
}

func (l *MQTTLight) Topic() string {
	return l.topic
}

func (l *MQTTLight) Write(on bool) error {
	payload := "OFF"
	if on {
		payload = "ON"
	}
	return Publish(l.topic, false, payload)
}

// MQTTBinder binds every light slot to an MQTTLight on the rig's command topic.
func MQTTBinder(rig Rig) func(slot string) (state.Actuator, error) {
	return func(slot string) (state.Actuator, error) {
		return NewMQTTLight(rig.LightTopic(slot)), nil
	}
}

// MQTTMotion is a motion sensor reporting on an MQTT topic. Only motion start
// fires the handler; retained messages are ignored so a reconnect does not
// replay old motion.
type MQTTMotion struct {
	topic   string
	mu      sync.Mutex
	handler func()
}

func NewMQTTMotion(topic string) *MQTTMotion {
	return &MQTTMotion{topic: topic}
}

func (m *MQTTMotion) Topic() string {
	return m.topic
}

func (m *MQTTMotion) OnTriggered(handler func()) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	if handler == nil {
		RegisterMQTTSubscription(m.topic, nil)
	} else {
		RegisterMQTTSubscription(m.topic, m.receive)
	}
}

func (m *MQTTMotion) receive(client MQTT.Client, message MQTT.Message) {
	if message.Retained() {
		Logger.Debug().Msgf("ignoring retained motion on %s", message.Topic())
		return
	}
	switch ParseMotionPayload(message.Payload()) {
	case MOTION_START:
		Logger.Debug().Msgf("motion start on %s", message.Topic())
		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler()
		}
	case MOTION_STOP:
		Logger.Trace().Msgf("motion stop on %s", message.Topic())
	default:
		Logger.Warn().Msgf("unrecognized motion payload on %s: %q", message.Topic(), string(message.Payload()))
	}
}

func (m *MQTTMotion) Close() error {
	m.OnTriggered(nil)
	return nil
}
