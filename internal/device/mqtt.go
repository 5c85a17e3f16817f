package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"wakeuplight/internal/config"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttQos         = byte(1)
	mqttWaitTimeout = 10 * time.Second
	mqttMaxBri      = 254
)

// mqttPayload is the zigbee2mqtt light message, used for both commands on
// <topic>/set and state reports on <topic>
type mqttPayload struct {
	State      string     `json:"state,omitempty"`
	Brightness *int       `json:"brightness,omitempty"`
	Color      *mqttColor `json:"color,omitempty"`
}

type mqttColor struct {
	Hex string `json:"hex,omitempty"`
}

// MQTTLight drives a zigbee2mqtt style lamp
type MQTTLight struct {
	client MQTT.Client
	topic  string
	logger *zap.Logger
	notify *notifier

	mu    sync.Mutex
	state State
	known bool
}

// ConnectMQTT connects to the broker and subscribes to the lamp's state topic
func ConnectMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTLight, error) {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(client MQTT.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}

	client := MQTT.NewClient(opts)
	if err := waitToken(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))

	return NewMQTTLight(client, cfg.Topic, logger)
}

// NewMQTTLight wraps an already connected client
func NewMQTTLight(client MQTT.Client, topic string, logger *zap.Logger) (*MQTTLight, error) {
	l := &MQTTLight{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		logger: logger.With(zap.String("topic", topic)),
		notify: newNotifier(),
	}

	if err := waitToken(client.Subscribe(l.topic, mqttQos, l.onMessage)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", l.topic, err)
	}

	// Ask the lamp to report its current state
	if err := l.publish(map[string]string{"state": ""}, "/get"); err != nil {
		l.logger.Warn("Failed to request lamp state", zap.Error(err))
	}
	return l, nil
}

func (l *MQTTLight) Name() string {
	return l.topic
}

func (l *MQTTLight) State(ctx context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.known {
		return State{}, ErrStateUnknown
	}
	return l.state, nil
}

func (l *MQTTLight) SetPower(ctx context.Context, on bool) error {
	payload := mqttPayload{State: "OFF"}
	if on {
		payload.State = "ON"
	}
	if err := l.publish(payload, "/set"); err != nil {
		return err
	}
	l.update(func(s *State) {
		s.On = on
		if !on {
			s.Brightness = 0
		}
	})
	return nil
}

func (l *MQTTLight) SetBrightness(ctx context.Context, percent int) error {
	percent = clampPercent(percent)
	bri := int(math.Round(float64(percent) * mqttMaxBri / 100))
	payload := mqttPayload{State: "ON", Brightness: &bri}
	if percent == 0 {
		payload = mqttPayload{State: "OFF"}
	}
	if err := l.publish(payload, "/set"); err != nil {
		return err
	}
	l.update(func(s *State) {
		s.On = percent > 0
		s.Brightness = percent
	})
	return nil
}

func (l *MQTTLight) SetColor(ctx context.Context, rgb int) error {
	return l.publish(mqttPayload{Color: &mqttColor{Hex: HexColor(rgb)}}, "/set")
}

func (l *MQTTLight) Watch(handler ChangeHandler) (func(), error) {
	return l.notify.add(handler), nil
}

// update applies a commanded change to the cached state until the lamp
// reports back
func (l *MQTTLight) update(apply func(*State)) {
	l.mu.Lock()
	apply(&l.state)
	l.known = true
	l.mu.Unlock()
}

func (l *MQTTLight) publish(payload interface{}, suffix string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}
	topic := l.topic + suffix
	l.logger.Debug("Publishing", zap.String("to", topic), zap.ByteString("payload", data))
	if err := waitToken(l.client.Publish(topic, mqttQos, false, data)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (l *MQTTLight) onMessage(client MQTT.Client, msg MQTT.Message) {
	var payload mqttPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		l.logger.Warn("Ignoring malformed state report", zap.Error(err))
		return
	}

	l.mu.Lock()
	state := l.state
	switch strings.ToUpper(payload.State) {
	case "ON":
		state.On = true
	case "OFF":
		state.On = false
	}
	if payload.Brightness != nil {
		state.Brightness = clampPercent(int(math.Round(float64(*payload.Brightness) * 100 / mqttMaxBri)))
	}
	if !state.On {
		state.Brightness = 0
	}
	changed := !l.known || state != l.state
	l.state = state
	l.known = true
	l.mu.Unlock()

	if changed {
		l.notify.emit(state)
	}
}

func waitToken(token MQTT.Token) error {
	if !token.WaitTimeout(mqttWaitTimeout) {
		return fmt.Errorf("timed out after %s", mqttWaitTimeout)
	}
	return token.Error()
}
