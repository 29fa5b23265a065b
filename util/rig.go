package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const ( // sensor and actuator modes
	MODE_SIM  = "sim"
	MODE_GPIO = "gpio"
	MODE_MQTT = "mqtt"
)

var ErrInvalidRig = errors.New("invalid stairway configuration")

// Rig is the hardware and timing description of the stairway read from the
// stairway.* keys.
type Rig struct {
	LightSlots       []string
	Count            int
	StepDelay        time.Duration
	HoldDelay        time.Duration
	Cooldown         time.Duration
	LogLimit         int
	SensorMode       string
	ActuatorMode     string
	TopSensor        string
	BottomSensor     string
	BounceTime       time.Duration
	ActiveLow        bool
	LightTopicPrefix string
	StateTopicPrefix string
}

// LoadRig reads the rig key by key so defaults apply to anything a config file
// leaves out.
func LoadRig() (Rig, error) {
	r := Rig{
		LightSlots:       Config.GetStringSlice("stairway.light_slots"),
		Count:            Config.GetInt("stairway.count"),
		StepDelay:        Config.GetDuration("stairway.step_delay"),
		HoldDelay:        Config.GetDuration("stairway.hold_delay"),
		Cooldown:         Config.GetDuration("stairway.cooldown"),
		LogLimit:         Config.GetInt("stairway.log_limit"),
		SensorMode:       strings.ToLower(Config.GetString("stairway.sensor_mode")),
		ActuatorMode:     strings.ToLower(Config.GetString("stairway.actuator_mode")),
		TopSensor:        Config.GetString("stairway.top_sensor"),
		BottomSensor:     Config.GetString("stairway.bottom_sensor"),
		BounceTime:       Config.GetDuration("stairway.bounce_time"),
		ActiveLow:        Config.GetBool("stairway.active_low"),
		LightTopicPrefix: strings.TrimSuffix(Config.GetString("stairway.light_topic_prefix"), "/"),
		StateTopicPrefix: strings.TrimSuffix(Config.GetString("stairway.state_topic_prefix"), "/"),
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func validMode(mode string) bool {
	switch mode {
	case MODE_SIM, MODE_GPIO, MODE_MQTT:
		return true
	}
	return false
}

// Validate reports the first inconsistency in the rig. A count larger than the
// slot pool is left to the sequencer to reject.
func (r Rig) Validate() error {
	if !validMode(r.SensorMode) {
		return fmt.Errorf("%w: unknown sensor mode %q", ErrInvalidRig, r.SensorMode)
	}
	if !validMode(r.ActuatorMode) {
		return fmt.Errorf("%w: unknown actuator mode %q", ErrInvalidRig, r.ActuatorMode)
	}
	if r.StepDelay < 0 || r.HoldDelay < 0 || r.Cooldown < 0 || r.BounceTime < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidRig)
	}
	if r.LogLimit < 0 {
		return fmt.Errorf("%w: log limit must not be negative", ErrInvalidRig)
	}
	if r.SensorMode != MODE_SIM && (r.TopSensor == "" || r.BottomSensor == "") {
		return fmt.Errorf("%w: %s sensors need top_sensor and bottom_sensor", ErrInvalidRig, r.SensorMode)
	}
	seen := make(map[string]bool, len(r.LightSlots))
	for _, slot := range r.LightSlots {
		if seen[slot] {
			return fmt.Errorf("%w: light slot %s listed twice", ErrInvalidRig, slot)
		}
		seen[slot] = true
	}
	return nil
}

// LightTopic is the command topic of an MQTT light slot.
func (r Rig) LightTopic(slot string) string {
	return r.LightTopicPrefix + "/" + slot + "/set"
}

// StateTopic is the topic a stairway property is published on.
func (r Rig) StateTopic(property string) string {
	return r.StateTopicPrefix + "/" + property
}
