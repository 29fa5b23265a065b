package util

import (
	"crypto/rand"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const ENV_PREFIX = ""

const CONFIG_NAME = "stairway_controller"

var Config = viper.New()

var (
	config_listeners []func()
	listenersMu      sync.Mutex
)

func RegisterNewConfigListener(new_listener func()) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, listener := range config_listeners {
		if reflect.ValueOf(new_listener).Pointer() == reflect.ValueOf(listener).Pointer() {
			Logger.Warn().Msg("config listener already registered")
			return
		}
	}
	config_listeners = append(config_listeners, new_listener)
}

func OnNewConfig() {
	listenersMu.Lock()
	listeners := append([]func(){}, config_listeners...)
	listenersMu.Unlock()
	for _, listener := range listeners {
		listener()
	}
}

func GetRandString(n int) string {
	const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		randBytes := make([]byte, 1)
		if _, err := rand.Read(randBytes); err != nil {
			b[i] = letterBytes[i%len(letterBytes)]
		} else {
			b[i] = letterBytes[int(randBytes[0])%len(letterBytes)]
		}
	}
	return string(b)
}

// SetDefaults registers every known key with its default value.
func SetDefaults() {
	// broker and process
	Config.SetDefault("Broker_URI", "tcp://mqtt")
	Config.SetDefault("Cleansess", false)
	Config.SetDefault("Id_base", CONFIG_NAME)
	Config.SetDefault("Username", "")
	Config.SetDefault("Password", "")
	Config.SetDefault("Mqtt_enabled", false)
	Config.SetDefault("Online_topic", "hab/online")
	Config.SetDefault("Frequency", 30)
	Config.SetDefault("Log_level", "info")
	Config.SetDefault("Details_port", 8080)
	Config.SetDefault("Ha.enabled", false)
	Config.SetDefault("Ha.name", "stairway")

	// stairway rig
	Config.SetDefault("Stairway.light_slots", []string{"4", "5", "6", "17", "13", "19", "26", "22", "16", "20", "21", "18", "25"})
	Config.SetDefault("Stairway.count", 13)
	Config.SetDefault("Stairway.step_delay", "300ms")
	Config.SetDefault("Stairway.hold_delay", "5s")
	Config.SetDefault("Stairway.cooldown", "0s")
	Config.SetDefault("Stairway.log_limit", 1000)
	Config.SetDefault("Stairway.sensor_mode", MODE_SIM)
	Config.SetDefault("Stairway.actuator_mode", MODE_SIM)
	Config.SetDefault("Stairway.top_sensor", "23")
	Config.SetDefault("Stairway.bottom_sensor", "24")
	Config.SetDefault("Stairway.bounce_time", "1s")
	Config.SetDefault("Stairway.active_low", false)
	Config.SetDefault("Stairway.light_topic_prefix", "stairway/light")
	Config.SetDefault("Stairway.state_topic_prefix", "stairway")

	// wave history
	Config.SetDefault("History.enabled", false)
	Config.SetDefault("History.path", "./stairway.db")
	Config.SetDefault("History.retention", "720h")
	Config.SetDefault("History.sweep_interval", "1h")

	// telemetry
	Config.SetDefault("Influxdb.enabled", false)
	Config.SetDefault("Influxdb.url", "http://localhost:8086")
	Config.SetDefault("Influxdb.token", "")
	Config.SetDefault("Influxdb.org", "home")
	Config.SetDefault("Influxdb.bucket", "stairway")
	Config.SetDefault("Influxdb.batch_size", 100)
	Config.SetDefault("Influxdb.flush_interval", "10s")
}

func SetupConfig() {
	Config.SetEnvPrefix(ENV_PREFIX)
	SetDefaults()

	// config file
	Config.SetConfigName(CONFIG_NAME)
	Config.AddConfigPath("/")
	Config.AddConfigPath("./")
	Config.AddConfigPath("./config")
	Config.AddConfigPath("/etc")
	Config.AddConfigPath("/" + CONFIG_NAME)
	Config.AddConfigPath("/" + CONFIG_NAME + "/config")

	err := Config.ReadInConfig()
	if err != nil {
		Logger.Error().Msgf("unable to read config file: %v", fmt.Errorf("%v", err))
	}

	// environment variables, STAIRWAY_COUNT for stairway.count
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv()

	// watch for changes
	Config.WatchConfig()
	Config.OnConfigChange(func(e fsnotify.Event) {
		Logger.Info().Msgf("Config file changed: %v", e.Name)
		Logger.Debug().Msgf("Config Additional Info: %v", e.String())
		OnNewConfig()
	})
}
