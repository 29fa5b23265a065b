package util

import (
	"errors"
	"testing"
	"time"
)

func setRig(t *testing.T, values map[string]interface{}) {
	t.Helper()
	SetDefaults()
	for key, value := range values {
		Config.Set(key, value)
	}
	t.Cleanup(func() {
		for key := range values {
			Config.Set(key, nil)
		}
	})
}

func TestLoadRigDefaults(t *testing.T) {
	setRig(t, nil)

	rig, err := LoadRig()
	if err != nil {
		t.Fatalf("LoadRig returned error: %v", err)
	}

	if len(rig.LightSlots) != 13 || rig.Count != 13 {
		t.Errorf("rig has %d slots and count %d, expected 13/13", len(rig.LightSlots), rig.Count)
	}
	if rig.StepDelay != 300*time.Millisecond || rig.HoldDelay != 5*time.Second || rig.Cooldown != 0 {
		t.Errorf("unexpected delays %v/%v/%v", rig.StepDelay, rig.HoldDelay, rig.Cooldown)
	}
	if rig.SensorMode != MODE_SIM || rig.ActuatorMode != MODE_SIM {
		t.Errorf("modes = %s/%s, expected sim/sim", rig.SensorMode, rig.ActuatorMode)
	}
	if rig.TopSensor != "23" || rig.BottomSensor != "24" {
		t.Errorf("sensors = %s/%s, expected 23/24", rig.TopSensor, rig.BottomSensor)
	}
	if rig.BounceTime != time.Second {
		t.Errorf("bounce time = %v, expected 1s", rig.BounceTime)
	}
}

func TestLoadRigOverrides(t *testing.T) {
	setRig(t, map[string]interface{}{
		"stairway.light_slots":        []string{"GPIO4", "GPIO5"},
		"stairway.count":              2,
		"stairway.step_delay":         "50ms",
		"stairway.sensor_mode":        "MQTT",
		"stairway.top_sensor":         "home/stairs/top/motion",
		"stairway.light_topic_prefix": "home/stairs/",
	})

	rig, err := LoadRig()
	if err != nil {
		t.Fatalf("LoadRig returned error: %v", err)
	}

	if rig.StepDelay != 50*time.Millisecond {
		t.Errorf("step delay = %v, expected 50ms", rig.StepDelay)
	}
	if rig.SensorMode != MODE_MQTT {
		t.Errorf("sensor mode = %s, expected mqtt", rig.SensorMode)
	}
	if rig.LightTopic("GPIO4") != "home/stairs/GPIO4/set" {
		t.Errorf("LightTopic = %s", rig.LightTopic("GPIO4"))
	}
	if rig.StateTopic("busy") != "stairway/busy" {
		t.Errorf("StateTopic = %s", rig.StateTopic("busy"))
	}
}

func TestRigValidate(t *testing.T) {
	valid := Rig{
		LightSlots:   []string{"4", "5"},
		SensorMode:   MODE_GPIO,
		ActuatorMode: MODE_GPIO,
		TopSensor:    "23",
		BottomSensor: "24",
	}

	tests := []struct {
		name    string
		modify  func(*Rig)
		wantErr bool
	}{
		{"Valid", func(r *Rig) {}, false},
		{"Unknown sensor mode", func(r *Rig) { r.SensorMode = "zigbee" }, true},
		{"Unknown actuator mode", func(r *Rig) { r.ActuatorMode = "" }, true},
		{"Negative step", func(r *Rig) { r.StepDelay = -time.Millisecond }, true},
		{"Negative bounce", func(r *Rig) { r.BounceTime = -time.Second }, true},
		{"Negative log limit", func(r *Rig) { r.LogLimit = -1 }, true},
		{"Missing sensor", func(r *Rig) { r.TopSensor = "" }, true},
		{"Missing sensor simulated", func(r *Rig) { r.TopSensor = ""; r.SensorMode = MODE_SIM }, false},
		{"Duplicate slot", func(r *Rig) { r.LightSlots = []string{"4", "4"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := valid
			rig.LightSlots = append([]string(nil), valid.LightSlots...)
			tt.modify(&rig)

			err := rig.Validate()

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRig) {
					t.Errorf("Validate() = %v, expected ErrInvalidRig", err)
				}
			} else if err != nil {
				t.Errorf("Validate() returned error: %v", err)
			}
		})
	}
}
