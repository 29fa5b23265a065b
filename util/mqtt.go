package util

import (
	"errors"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 5 * time.Second

var (
	ErrNotConnected  = errors.New("mqtt: client not connected")
	ErrPublishFailed = errors.New("mqtt: publish failed")
	ErrConnectFailed = errors.New("mqtt: connection failed")
)

var Client MQTT.Client

var (
	mqttMu          sync.Mutex
	subscriptions   map[string]MQTT.MessageHandler
	connectHandlers map[string]func(MQTT.Client)
)

var connectHandler MQTT.OnConnectHandler = func(client MQTT.Client) {
	Logger.Info().Msg("Connected")
	subscribe(client)
	client.Publish(Config.GetString("online_topic"), 0, false, "online").WaitTimeout(mqttTimeout)
	mqttMu.Lock()
	handlers := make([]func(MQTT.Client), 0, len(connectHandlers))
	for _, handler := range connectHandlers {
		handlers = append(handlers, handler)
	}
	mqttMu.Unlock()
	for _, handler := range handlers {
		handler(client)
	}
}

func RegisterMQTTConnectHook(name string, handler func(MQTT.Client)) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	if connectHandlers == nil {
		connectHandlers = make(map[string]func(client MQTT.Client))
	}
	if handler == nil {
		delete(connectHandlers, name)
	} else {
		connectHandlers[name] = handler
	}
}

// subscribe (re)subscribes every registered topic, used after each connect.
func subscribe(client MQTT.Client) {
	mqttMu.Lock()
	subs := make(map[string]MQTT.MessageHandler, len(subscriptions))
	for topic, handler := range subscriptions {
		subs[topic] = handler
	}
	mqttMu.Unlock()
	for topic, handler := range subs {
		if token := client.Subscribe(topic, 0, handler); token.WaitTimeout(mqttTimeout) && token.Error() != nil {
			Logger.Error().Msgf("Error Subscribing to %v: %v", topic, token.Error())
		}
	}
}

// RegisterMQTTSubscription records handler for topic so it survives reconnects. A
// connected client is subscribed (or unsubscribed for a nil handler) right away.
func RegisterMQTTSubscription(topic string, handler MQTT.MessageHandler) {
	mqttMu.Lock()
	if subscriptions == nil {
		subscriptions = make(map[string]MQTT.MessageHandler)
	}
	if handler == nil {
		delete(subscriptions, topic)
	} else {
		subscriptions[topic] = handler
	}
	client := Client
	mqttMu.Unlock()

	if client == nil || !client.IsConnected() {
		return
	}
	var token MQTT.Token
	if handler == nil {
		token = client.Unsubscribe(topic)
	} else {
		token = client.Subscribe(topic, 0, handler)
	}
	if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		Logger.Error().Msgf("Error updating subscription %v: %v", topic, token.Error())
	}
}

// Publish sends payload on topic through the global client.
func Publish(topic string, retained bool, payload string) error {
	client, ok := ConnectedClient()
	if !ok {
		return ErrNotConnected
	}
	token := client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, mqttTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// ConnectedClient returns the global client when it is connected.
func ConnectedClient() (MQTT.Client, bool) {
	mqttMu.Lock()
	client := Client
	mqttMu.Unlock()
	if client == nil || !client.IsConnected() {
		return nil, false
	}
	return client, true
}

func receiver(client MQTT.Client, message MQTT.Message) {
	Logger.Warn().Msgf("Received message on %v but no handler", message.Topic())
}

var connectLostHandler MQTT.ConnectionLostHandler = func(client MQTT.Client, err error) {
	Logger.Info().Msgf("Connect lost: %v", err)
}

func mqttOptions() *MQTT.ClientOptions {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(Config.GetString("broker_uri"))
	opts.SetClientID(Config.GetString("id_base") + "_" + GetRandString(6))
	opts.SetUsername(Config.GetString("username"))
	opts.SetPassword(Config.GetString("password"))
	opts.SetCleanSession(Config.GetBool("cleansess"))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttTimeout)
	opts.SetWill(Config.GetString("online_topic"), "offline", 0, false)
	opts.OnConnectionLost = connectLostHandler
	opts.OnConnect = connectHandler
	opts.SetDefaultPublishHandler(receiver)
	return opts
}

// MqttInit replaces the global client with a fresh one built from the current
// configuration and connects it.
func MqttInit() error {
	opts := mqttOptions()

	mqttMu.Lock()
	old := Client
	Client = nil
	mqttMu.Unlock()
	if old != nil {
		Logger.Debug().Msg("Client exists - destroying")
		if old.IsConnected() {
			old.Disconnect(1000)
		}
	}

	client := MQTT.NewClient(opts)
	mqttMu.Lock()
	Client = client
	mqttMu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(2 * mqttTimeout) {
		return fmt.Errorf("%w: timeout connecting to %v", ErrConnectFailed, Config.GetString("broker_uri"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return nil
}

// MqttClose publishes the offline state and disconnects the global client.
func MqttClose() {
	mqttMu.Lock()
	client := Client
	Client = nil
	mqttMu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}
	client.Publish(Config.GetString("online_topic"), 0, false, "offline").WaitTimeout(mqttTimeout)
	client.Disconnect(1000)
}
