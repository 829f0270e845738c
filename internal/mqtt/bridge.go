package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

const (
	commandTimeout = 10 * time.Second
	qos            = 1
	cyclePayload   = "cycle"
	nonePayload    = "None"
)

// Controller is the part of yamaha.Receiver the bridge drives.
type Controller interface {
	SubscribeAll(fn yamaha.Listener) (unsubscribe func())
	Snapshot() yamaha.State
	SetPower(ctx context.Context, on bool) error
	SetMuted(ctx context.Context, muted bool) error
	SetVolume(db float64) (float64, error)
	SetSource(ctx context.Context, source string) error
	SetShuffle(ctx context.Context, mode yamaha.PlayMode) error
	SetRepeat(ctx context.Context, mode yamaha.PlayMode) error
	CycleShuffle(ctx context.Context) (yamaha.PlayMode, error)
	CycleRepeat(ctx context.Context) (yamaha.PlayMode, error)
}

// Bridge mirrors receiver state to <prefix>/state/<property> and applies
// commands published to <prefix>/set/<property>.
type Bridge struct {
	client     paho.Client
	controller Controller
	prefix     string
	retain     bool
	logger     *log.Logger

	mu          sync.RWMutex
	connected   bool
	unsubscribe func()
}

// NewBridge creates a bridge for the broker in cfg. It does not connect.
func NewBridge(cfg config.Config, controller Controller, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	b := &Bridge{
		controller: controller,
		prefix:     cfg.MQTTTopicPrefix,
		retain:     cfg.MQTTRetain,
		logger:     logger,
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(AvailabilityTopic(b.prefix), "offline", qos, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		b.logger.Printf("MQTT: connected to %s", cfg.MQTTBroker)
		b.setConnected(true)
		b.onConnect()
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		b.logger.Printf("MQTT: connection lost: %v", err)
		b.setConnected(false)
	})

	b.client = paho.NewClient(opts)
	return b
}

// Start begins forwarding changes and connects to the broker. With connect
// retry enabled the first attempt does not fail on an unreachable broker.
func (b *Bridge) Start() error {
	b.mu.Lock()
	b.unsubscribe = b.controller.SubscribeAll(b.publishChange)
	b.mu.Unlock()

	token := b.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// Stop detaches from the receiver and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	if b.client.IsConnected() {
		b.publish(AvailabilityTopic(b.prefix), "offline")
	}
	b.client.Disconnect(250)
	b.setConnected(false)
}

// IsConnected returns the connection status.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bridge) setConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

// onConnect subscribes to commands and republishes the full state, since
// retained messages may have been lost while disconnected.
func (b *Bridge) onConnect() {
	topic := SetTopic(b.prefix, "+")
	token := b.client.Subscribe(topic, qos, b.handleSet)
	token.Wait()
	if err := token.Error(); err != nil {
		b.logger.Printf("MQTT: failed to subscribe to %s: %v", topic, err)
	} else {
		b.logger.Printf("MQTT: subscribed to %s", topic)
	}

	b.publish(AvailabilityTopic(b.prefix), "online")
	b.publishState(b.controller.Snapshot())
}

func (b *Bridge) publishState(state yamaha.State) {
	for _, prop := range yamaha.Properties {
		b.publish(StateTopic(b.prefix, prop), FormatValue(state.Value(prop)))
	}
}

func (b *Bridge) publishChange(change yamaha.Change) {
	b.publish(StateTopic(b.prefix, change.Property), FormatValue(change.Value))
}

// publish does not wait for the broker: it runs inside receiver listeners.
func (b *Bridge) publish(topic, payload string) {
	b.client.Publish(topic, qos, b.retain, payload)
}

func (b *Bridge) handleSet(_ paho.Client, msg paho.Message) {
	prop, ok := PropertyFromSetTopic(b.prefix, msg.Topic())
	if !ok {
		b.logger.Printf("MQTT: ignoring command on unknown topic %s", msg.Topic())
		return
	}
	payload := string(msg.Payload())

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	ctx = api.WithRequestID(ctx, "mqtt-"+uuid.NewString())

	if err := ApplyCommand(ctx, b.controller, prop, payload); err != nil {
		b.logger.Printf("MQTT: %s=%q failed: %v", prop, payload, err)
	}
}

// StateTopic is the retained topic carrying one property.
func StateTopic(prefix string, prop yamaha.Property) string {
	return prefix + "/state/" + string(prop)
}

// SetTopic is the command topic for one property.
func SetTopic(prefix string, prop yamaha.Property) string {
	return prefix + "/set/" + string(prop)
}

// AvailabilityTopic carries "online" or "offline".
func AvailabilityTopic(prefix string) string {
	return prefix + "/availability"
}

// PropertyFromSetTopic extracts the property a command topic addresses.
func PropertyFromSetTopic(prefix, topic string) (yamaha.Property, bool) {
	name, ok := strings.CutPrefix(topic, prefix+"/set/")
	if !ok {
		return "", false
	}
	for _, prop := range yamaha.Properties {
		if string(prop) == name {
			return prop, true
		}
	}
	return "", false
}

// FormatValue renders a property value as a topic payload.
func FormatValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "ON"
		}
		return "OFF"
	case float64:
		return strconv.FormatFloat(v, 'f', 1, 64)
	case yamaha.PlayMode:
		if v == yamaha.PlayModeNone {
			return nonePayload
		}
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// ErrInvalidPayload is returned for payloads a property cannot accept.
var ErrInvalidPayload = errors.New("invalid payload")

// ApplyCommand parses payload for prop and calls the matching setter.
// Shuffle and repeat accept "cycle" or a mode name.
func ApplyCommand(ctx context.Context, controller Controller, prop yamaha.Property, payload string) error {
	payload = strings.TrimSpace(payload)

	switch prop {
	case yamaha.PropertyPower:
		on, err := ParseSwitch(payload)
		if err != nil {
			return err
		}
		return controller.SetPower(ctx, on)
	case yamaha.PropertyMuted:
		muted, err := ParseSwitch(payload)
		if err != nil {
			return err
		}
		return controller.SetMuted(ctx, muted)
	case yamaha.PropertyVolume:
		db, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("%w: volume %q", ErrInvalidPayload, payload)
		}
		_, err = controller.SetVolume(db)
		return err
	case yamaha.PropertySource:
		if payload == "" {
			return fmt.Errorf("%w: empty source", ErrInvalidPayload)
		}
		return controller.SetSource(ctx, payload)
	case yamaha.PropertyShuffle:
		if strings.EqualFold(payload, cyclePayload) {
			_, err := controller.CycleShuffle(ctx)
			return err
		}
		mode, err := parseMode(payload, []yamaha.PlayMode{yamaha.ShuffleOff, yamaha.ShuffleOn, yamaha.ShuffleSongs, yamaha.ShuffleAlbums})
		if err != nil {
			return err
		}
		return controller.SetShuffle(ctx, mode)
	case yamaha.PropertyRepeat:
		if strings.EqualFold(payload, cyclePayload) {
			_, err := controller.CycleRepeat(ctx)
			return err
		}
		mode, err := parseMode(payload, yamaha.RepeatModes())
		if err != nil {
			return err
		}
		return controller.SetRepeat(ctx, mode)
	default:
		return fmt.Errorf("%w: unknown property %q", ErrInvalidPayload, prop)
	}
}

// ParseSwitch accepts ON/OFF, true/false and 1/0 in any case.
func ParseSwitch(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected ON or OFF, got %q", ErrInvalidPayload, payload)
	}
}

func parseMode(payload string, modes []yamaha.PlayMode) (yamaha.PlayMode, error) {
	for _, mode := range modes {
		if strings.EqualFold(string(mode), payload) {
			return mode, nil
		}
	}
	return yamaha.PlayModeNone, fmt.Errorf("%w: unknown mode %q", ErrInvalidPayload, payload)
}
