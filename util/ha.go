package util

import (
	"encoding/json"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

const HA_DEVICE = "stairway_controller"

type HAAvdvertisementAvailability struct {
	Topic               string `json:"topic"`                 // : "hab/online"
	PayloadAvailable    string `json:"payload_available"`     // : "online"
	PayloadNotAvailable string `json:"payload_not_available"` // : "offline"
}

type HADeviceSpec struct {
	Name        string   `json:"name"` // : "stairway_controller"
	Identifiers []string `json:"ids"`  // : ["stairway_controller"]
}

type HAAdvertisement struct { //nolint:govet // struct layout optimized for JSON field order
	HAAvdvertisementAvailability []HAAvdvertisementAvailability `json:"availability"`
	Device                       HADeviceSpec                   `json:"device"`
	UniqueID                     string                         `json:"uniq_id"`     // "stairway-busy"
	Name                         string                         `json:"name"`        // : "stairway busy"
	StateTopic                   string                         `json:"state_topic"` // : "stairway/busy"
	PayloadOn                    string                         `json:"payload_on"`
	PayloadOff                   string                         `json:"payload_off"`
	DeviceClass                  string                         `json:"device_class"` // : "running"
	Platform                     string                         `json:"platform"`     // "binary_sensor"
	Qos                          int                            `json:"qos"`
}

// HAEntity is one stairway property exposed as a binary sensor.
type HAEntity struct {
	Property    string
	DeviceClass string
}

// HAEntities lists what the stairway advertises: the wave indicator and both
// motion sensors.
var HAEntities = []HAEntity{
	{Property: "busy", DeviceClass: "running"},
	{Property: "pir_top", DeviceClass: "motion"},
	{Property: "pir_bottom", DeviceClass: "motion"},
}

func (ha HAAdvertisement) ToJson() string {
	data, err := json.Marshal(ha)
	if err != nil {
		Logger.Error().Msgf("Error marshalling HAAdvertisement: %v", err)
		return ""
	}
	return string(data)
}

func ConstructHAAdvertisement(name, stateTopic, deviceClass string) HAAdvertisement {
	return HAAdvertisement{
		Name:       name,
		StateTopic: stateTopic,
		PayloadOn:  "true",
		PayloadOff: "false",
		HAAvdvertisementAvailability: []HAAvdvertisementAvailability{
			{
				Topic:               Config.GetString("online_topic"),
				PayloadAvailable:    "online",
				PayloadNotAvailable: "offline",
			},
		},
		Qos:         0,
		UniqueID:    HA_DEVICE + "-" + name,
		DeviceClass: deviceClass,
		Platform:    "binary_sensor",
		Device: HADeviceSpec{
			Name:        HA_DEVICE,
			Identifiers: []string{HA_DEVICE},
		},
	}
}

// AdvertiseHA publishes a discovery config for every entry of HAEntities.
func AdvertiseHA(rig Rig, client MQTT.Client) {
	base := Config.GetString("ha.name")
	for _, entity := range HAEntities {
		name := base + "_" + entity.Property
		ha := ConstructHAAdvertisement(name, rig.StateTopic(entity.Property), entity.DeviceClass)
		topic := "homeassistant/binary_sensor/" + base + "/" + entity.Property + "/config"
		if token := client.Publish(topic, 0, true, ha.ToJson()); token.WaitTimeout(mqttTimeout) && token.Error() != nil {
			Logger.Error().Msgf("Error Publishing %v: %v", topic, token.Error())
		}
	}
}
