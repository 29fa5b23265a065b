package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/elijahnyp/stairway_controller/devices"
	"github.com/elijahnyp/stairway_controller/history"
	"github.com/elijahnyp/stairway_controller/stairway"
	"github.com/elijahnyp/stairway_controller/state"
	"github.com/elijahnyp/stairway_controller/telemetry"
	. "github.com/elijahnyp/stairway_controller/util"
)

const (
	onlineInterval      = 10 * time.Second
	advertiseInterval   = 5 * time.Minute
	shutdownGracePeriod = 5 * time.Second
)

// buildSensors opens the top and bottom motion sources for the rig's sensor mode.
// Simulated rigs have none.
func buildSensors(rig Rig) (bottom, top state.MotionSource, err error) {
	switch rig.SensorMode {
	case MODE_GPIO:
		t, err := devices.OpenGPIOMotion(rig.TopSensor, rig.BounceTime, rig.ActiveLow)
		if err != nil {
			return nil, nil, err
		}
		b, err := devices.OpenGPIOMotion(rig.BottomSensor, rig.BounceTime, rig.ActiveLow)
		if err != nil {
			_ = t.Close()
			return nil, nil, err
		}
		return b, t, nil
	case MODE_MQTT:
		return devices.NewMQTTMotion(rig.BottomSensor), devices.NewMQTTMotion(rig.TopSensor), nil
	}
	return nil, nil, nil
}

// buildBinder returns the light binder for the rig's actuator mode, nil when
// simulated.
func buildBinder(rig Rig) stairway.Binder {
	switch rig.ActuatorMode {
	case MODE_GPIO:
		return devices.GPIOBinder(rig.ActiveLow)
	case MODE_MQTT:
		return devices.MQTTBinder(rig)
	}
	return nil
}

func sequencerOptions(rig Rig) []stairway.Option {
	opts := []stairway.Option{
		stairway.WithStepDelay(rig.StepDelay),
		stairway.WithHoldDelay(rig.HoldDelay),
		stairway.WithCooldown(rig.Cooldown),
		stairway.WithLogLimit(rig.LogLimit),
	}
	if bind := buildBinder(rig); bind != nil {
		opts = append(opts, stairway.WithBinder(bind))
	}
	return opts
}

// applyTiming pushes the configured delays into a running sequencer. The slot
// layout and sensor wiring need a restart.
func applyTiming(seq *stairway.Sequencer) {
	rig, err := LoadRig()
	if err != nil {
		Logger.Error().Msgf("ignoring new stairway settings: %v", err)
		return
	}
	if err := seq.SetStepDelay(rig.StepDelay); err != nil {
		Logger.Error().Msgf("step delay: %v", err)
	}
	if err := seq.SetHoldDelay(rig.HoldDelay); err != nil {
		Logger.Error().Msgf("hold delay: %v", err)
	}
	if err := seq.SetCooldown(rig.Cooldown); err != nil {
		Logger.Error().Msgf("cooldown: %v", err)
	}
}

type brokerSettings struct {
	enabled   bool
	uri       string
	username  string
	password  string
	cleansess bool
}

func currentBrokerSettings() brokerSettings {
	return brokerSettings{
		enabled:   Config.GetBool("mqtt_enabled"),
		uri:       Config.GetString("broker_uri"),
		username:  Config.GetString("username"),
		password:  Config.GetString("password"),
		cleansess: Config.GetBool("cleansess"),
	}
}

func startMQTT() {
	if !Config.GetBool("mqtt_enabled") {
		MqttClose()
		return
	}
	if err := MqttInit(); err != nil {
		Logger.Error().Msgf("mqtt unavailable, running offline: %v", err)
	}
}

// mqttReloader reconnects only when the broker settings actually change.
func mqttReloader() func() {
	last := currentBrokerSettings()
	return func() {
		next := currentBrokerSettings()
		if next == last {
			return
		}
		last = next
		Logger.Info().Msg("broker settings changed, reconnecting")
		startMQTT()
	}
}

// OnlinePinger publishes the availability message until ctx ends.
func OnlinePinger(ctx context.Context) {
	ticker := time.NewTicker(onlineInterval)
	defer ticker.Stop()
	for {
		if err := Publish(Config.GetString("online_topic"), false, "online"); err != nil && !errors.Is(err, ErrNotConnected) {
			Logger.Error().Msgf("Error publishing online message: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HAAdvertiser - advertises Home Assistant discovery messages every 5 minutes
func HAAdvertiser(ctx context.Context, rig Rig) {
	ticker := time.NewTicker(advertiseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client, ok := ConnectedClient()
			if ok && Config.GetBool("ha.enabled") {
				Logger.Debug().Msg("Advertising Home Assistant discovery messages")
				AdvertiseHA(rig, client)
			}
		}
	}
}

func main() {
	LogInit("info")
	SetupConfig()
	SetLogLevel(Config.GetString("log_level"))

	rig, err := LoadRig()
	if err != nil {
		Logger.Fatal().Msgf("unable to load stairway: %v", err)
	}
	if (rig.SensorMode == MODE_MQTT || rig.ActuatorMode == MODE_MQTT) && !Config.GetBool("mqtt_enabled") {
		Logger.Warn().Msg("mqtt devices configured but mqtt_enabled is false")
	}
	if rig.SensorMode == MODE_GPIO || rig.ActuatorMode == MODE_GPIO {
		if err := devices.InitGPIO(); err != nil {
			Logger.Fatal().Msgf("unable to initialize gpio: %v", err)
		}
	}

	bottom, top, err := buildSensors(rig)
	if err != nil {
		Logger.Fatal().Msgf("unable to open motion sensors: %v", err)
	}
	seq := stairway.New(bottom, top, rig.LightSlots, sequencerOptions(rig)...)
	if err := seq.CreateStairs(rig.Count); err != nil {
		_ = seq.Close()
		Logger.Fatal().Msgf("unable to create stairs: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	workers, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var repo *history.WaveRepository
	var recorder *history.Recorder
	if Config.GetBool("history.enabled") {
		repo, err = history.NewWaveRepository(Config.GetString("history.path"))
		if err != nil {
			Logger.Error().Msgf("wave history disabled: %v", err)
			repo = nil
		} else {
			recorder = history.NewRecorder(repo)
			recorder.Start(workers, Config.GetDuration("history.retention"), Config.GetDuration("history.sweep_interval"))
			seq.Subscribe(recorder.Observe)
		}
	}

	tele, err := telemetry.Connect(telemetry.LoadSettings())
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		Logger.Debug().Msg("telemetry disabled")
	case err != nil:
		Logger.Error().Msgf("telemetry unavailable: %v", err)
	default:
		seq.Subscribe(tele.Observe)
	}

	publisher := NewStatePublisher(rig, seq)
	publisher.Start(workers)
	seq.Subscribe(publisher.Observe)

	hub := NewHub()
	go hub.Run(workers)
	seq.Subscribe(hub.Observe)

	monitor := NewMonitorServer()
	NewWebHandlers(seq, repo, hub).Register(monitor)
	if err := monitor.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}

	RegisterNewConfigListener(func() { SetLogLevel(Config.GetString("log_level")) })
	RegisterNewConfigListener(func() { applyTiming(seq) })
	RegisterNewConfigListener(func() { monitor.Restart() })
	RegisterNewConfigListener(mqttReloader())
	RegisterMQTTConnectHook("state", func(client MQTT.Client) { publisher.PublishSnapshot() })
	RegisterMQTTConnectHook("haadvertise", func(client MQTT.Client) {
		if Config.GetBool("ha.enabled") {
			AdvertiseHA(rig, client)
		}
	})
	startMQTT()

	go OnlinePinger(workers)
	go HAAdvertiser(workers, rig)
	Logger.Info().Msg("ready")

	<-ctx.Done()
	Logger.Info().Msg("shutting down")

	if err := seq.Close(); err != nil {
		Logger.Error().Msgf("Error closing stairway: %v", err)
	}
	stopWorkers()
	if recorder != nil {
		recorder.Wait()
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			Logger.Error().Msgf("Error closing wave history: %v", err)
		}
	}
	if tele != nil {
		if err := tele.Close(); err != nil {
			Logger.Error().Msgf("Error closing telemetry: %v", err)
		}
	}
	publisher.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		Logger.Error().Msgf("Error stopping monitor server: %v", err)
	}
	MqttClose()
}
