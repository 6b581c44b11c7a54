//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/samber/lo"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 30 * time.Second

	defaultPermitJoinTime = 254
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
}

// client is the part of the paho client the bridge uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Bridge connects the coordinator to MQTT the way zigbee2mqtt does: device
// state under <prefix>/<friendly_name>, commands on /set and /get, bridge
// requests under <prefix>/bridge/request and Home Assistant discovery
// derived from the device exposes.
type Bridge struct {
	client          client
	coord           *coordinator.Coordinator
	prefix          string
	discoveryPrefix string
	logger          *slog.Logger
	unsub           func()

	mu sync.Mutex
	// discovered holds the discovery topics published per IEEE.
	discovered map[string][]string
	// topics holds the state topic segment last used per IEEE.
	topics map[string]string
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "zigbee-catalog"
	}
	b := newBridge(coord, cfg, nil, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(b.bridgeTopic("state"), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := pahomqtt.NewClient(opts)
	b.client = c
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(coord *coordinator.Coordinator, cfg Config, c client, logger *slog.Logger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "zigbee2mqtt"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	return &Bridge{
		client:          c,
		coord:           coord,
		prefix:          cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		logger:          logger.With("component", "mqtt"),
		discovered:      make(map[string][]string),
		topics:          make(map[string]string),
	}
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishSync(b.bridgeTopic("state"), []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: the broker may have lost our
// retained messages and subscriptions.
func (b *Bridge) onConnect() {
	b.client.Subscribe(b.prefix+"/#", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	b.publish(b.bridgeTopic("state"), []byte("online"), true)
	b.publishBridgeInfo()
	b.publishDevices()
	devs, err := b.coord.Devices().ListDevices()
	if err != nil {
		b.logger.Error("list devices", "err", err)
		return
	}
	for _, dev := range devs {
		b.publishDiscovery(dev)
		if len(dev.State) > 0 {
			b.publishState(dev, dev.State)
		}
	}
}

func (b *Bridge) bridgeTopic(name string) string {
	return b.prefix + "/bridge/" + name
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch data := event.Data.(type) {
	case coordinator.StateChange:
		dev, err := b.coord.Devices().GetDevice(data.IEEE)
		if err != nil {
			return
		}
		b.publishState(dev, data.State)
	case coordinator.DeviceEvent:
		b.handleDeviceEvent(event.Type, data)
	default:
		if event.Type == coordinator.EventPermitJoin {
			b.publishBridgeInfo()
		}
	}
}

func (b *Bridge) handleDeviceEvent(typ string, data coordinator.DeviceEvent) {
	b.publishEvent(typ, data)
	switch typ {
	case coordinator.EventDeviceInterviewed, coordinator.EventExposesChanged:
		if dev, err := b.coord.Devices().GetDevice(data.IEEE); err == nil {
			b.publishDiscovery(dev)
		}
	case coordinator.EventDeviceRenamed:
		b.clearState(data.IEEE)
		if dev, err := b.coord.Devices().GetDevice(data.IEEE); err == nil {
			b.publishDiscovery(dev)
			b.publishState(dev, dev.State)
		}
	case coordinator.EventDeviceLeft, coordinator.EventDeviceRemoved:
		b.clearState(data.IEEE)
		b.removeDiscovery(data.IEEE)
	default:
		return
	}
	b.publishDevices()
}

// publishEvent mirrors device lifecycle events to <prefix>/bridge/event.
func (b *Bridge) publishEvent(typ string, data coordinator.DeviceEvent) {
	b.publish(b.bridgeTopic("event"), mustJSON(map[string]any{"type": typ, "data": data}), false)
}

func (b *Bridge) publishState(dev *store.Device, state map[string]any) {
	if len(state) == 0 {
		return
	}
	name := deviceTopicName(dev)
	b.mu.Lock()
	b.topics[dev.IEEEAddress] = name
	b.mu.Unlock()
	b.publish(b.prefix+"/"+name, mustJSON(state), true)
}

// clearState removes the retained state under the topic the device used
// last, so a renamed or removed device leaves nothing behind.
func (b *Bridge) clearState(ieee string) {
	b.mu.Lock()
	name, ok := b.topics[ieee]
	delete(b.topics, ieee)
	b.mu.Unlock()
	if ok {
		b.publish(b.prefix+"/"+name, nil, true)
	}
}

// publishDiscovery publishes the discovery payloads of a device and clears
// topics it published before that are no longer produced.
func (b *Bridge) publishDiscovery(dev *store.Device) {
	msgs := buildDiscovery(dev, b.coord.Definition(dev), b.coord.Exposes(dev), b.prefix, b.discoveryPrefix)
	topics := lo.Map(msgs, func(m discoveryMsg, _ int) string { return m.Topic })

	b.mu.Lock()
	stale := lo.Without(b.discovered[dev.IEEEAddress], topics...)
	if len(topics) > 0 {
		b.discovered[dev.IEEEAddress] = topics
	} else {
		delete(b.discovered, dev.IEEEAddress)
	}
	b.mu.Unlock()

	for _, m := range removeDiscovery(stale) {
		b.publish(m.Topic, nil, true)
	}
	for _, m := range msgs {
		b.publish(m.Topic, mustJSON(m.Payload), true)
	}
	if len(msgs) > 0 {
		b.logger.Info("published HA discovery", "ieee", dev.IEEEAddress, "name", dev.DisplayName(), "entities", len(msgs))
	}
}

func (b *Bridge) removeDiscovery(ieee string) {
	b.mu.Lock()
	topics := b.discovered[ieee]
	delete(b.discovered, ieee)
	b.mu.Unlock()
	for _, m := range removeDiscovery(topics) {
		b.publish(m.Topic, nil, true)
	}
}

// bridgeDevice is one entry of <prefix>/bridge/devices.
type bridgeDevice struct {
	IEEEAddress        string            `json:"ieee_address"`
	FriendlyName       string            `json:"friendly_name"`
	ModelID            string            `json:"model_id,omitempty"`
	Manufacturer       string            `json:"manufacturer,omitempty"`
	PowerSource        string            `json:"power_source,omitempty"`
	Supported          bool              `json:"supported"`
	InterviewCompleted bool              `json:"interview_completed"`
	Definition         *bridgeDefinition `json:"definition"`
}

type bridgeDefinition struct {
	Model       string            `json:"model"`
	Vendor      string            `json:"vendor"`
	Description string            `json:"description"`
	Exposes     []*exposes.Expose `json:"exposes"`
	Options     []*exposes.Expose `json:"options,omitempty"`
}

func (b *Bridge) publishDevices() {
	devs, err := b.coord.Devices().ListDevices()
	if err != nil {
		b.logger.Error("list devices", "err", err)
		return
	}
	out := make([]bridgeDevice, 0, len(devs))
	for _, dev := range devs {
		entry := bridgeDevice{
			IEEEAddress:        dev.IEEEAddress,
			FriendlyName:       dev.DisplayName(),
			ModelID:            dev.ModelID,
			Manufacturer:       dev.Manufacturer,
			PowerSource:        dev.PowerSource,
			InterviewCompleted: dev.Interviewed,
		}
		if def := b.coord.Definition(dev); def != nil {
			entry.Supported = true
			entry.Definition = &bridgeDefinition{
				Model:       def.Model,
				Vendor:      def.Vendor,
				Description: def.Description,
				Exposes:     b.coord.Exposes(dev),
				Options:     def.Options,
			}
		}
		out = append(out, entry)
	}
	b.publish(b.bridgeTopic("devices"), mustJSON(out), true)
}

func (b *Bridge) publishBridgeInfo() {
	info := map[string]any{
		"version":     "zigbee-catalog",
		"network":     b.coord.NetworkInfo(),
		"definitions": b.coord.Catalog().Len(),
	}
	b.publish(b.bridgeTopic("info"), mustJSON(info), true)
}

// handleMessage routes a message received under the topic prefix.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return
	}
	if req, ok := strings.CutPrefix(rest, "bridge/request/"); ok {
		b.handleBridgeRequest(req, payload)
		return
	}
	name, op, attr, ok := parseCommandTopic(rest)
	if !ok {
		return
	}
	dev, err := b.resolveTopicName(name)
	if err != nil {
		b.logger.Warn("command for unknown device", "name", name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.coord.Context(), commandTimeout)
	defer cancel()
	switch op {
	case "set":
		values, err := commandPayload(attr, payload)
		if err != nil {
			b.logger.Warn("invalid set payload", "name", name, "err", err)
			return
		}
		if _, err := b.coord.SetState(ctx, dev.IEEEAddress, values); err != nil {
			b.logger.Warn("set failed", "name", name, "err", err)
		}
	case "get":
		keys, err := getKeys(attr, payload)
		if err != nil {
			b.logger.Warn("invalid get payload", "name", name, "err", err)
			return
		}
		if _, err := b.coord.GetState(ctx, dev.IEEEAddress, keys); err != nil {
			b.logger.Warn("get failed", "name", name, "err", err)
		}
	}
}

// parseCommandTopic splits "<name>/set", "<name>/set/<attr>", "<name>/get"
// and "<name>/get/<attr>". Friendly names may contain slashes.
func parseCommandTopic(rest string) (name, op, attr string, ok bool) {
	for _, op := range []string{"set", "get"} {
		if name, found := strings.CutSuffix(rest, "/"+op); found && name != "" {
			return name, op, "", true
		}
		if i := strings.LastIndex(rest, "/"+op+"/"); i > 0 {
			attr := rest[i+len(op)+2:]
			if attr != "" && !strings.Contains(attr, "/") {
				return rest[:i], op, attr, true
			}
		}
	}
	return "", "", "", false
}

// resolveTopicName finds the device whose topic segment is name. IEEE
// addresses and unslugged friendly names are accepted too.
func (b *Bridge) resolveTopicName(name string) (*store.Device, error) {
	if dev, err := b.coord.Devices().GetDevice(name); err == nil {
		return dev, nil
	}
	devs, err := b.coord.Devices().ListDevices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devs {
		if deviceTopicName(dev) == name {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", name, store.ErrNotFound)
}

// commandPayload decodes a /set payload. For /set/<attr> the payload is the
// value itself; JSON values are decoded and anything else is taken as a
// string. A bare /set takes a JSON object, or a plain state such as "ON".
func commandPayload(attr string, payload []byte) (map[string]any, error) {
	if attr != "" {
		return map[string]any{attr: rawValue(payload)}, nil
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err == nil {
		return values, nil
	}
	s := strings.TrimSpace(string(payload))
	if s == "" || strings.HasPrefix(s, "{") {
		return nil, errors.New("expected a JSON object")
	}
	return map[string]any{"state": s}, nil
}

func rawValue(payload []byte) any {
	var v any
	if err := json.Unmarshal(payload, &v); err == nil {
		return v
	}
	return string(payload)
}

// getKeys decodes a /get payload: {"state": ""} asks for state, an empty
// payload asks for everything the device can be polled for.
func getKeys(attr string, payload []byte) ([]string, error) {
	if attr != "" {
		return []string{attr}, nil
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, err
	}
	keys := lo.Keys(values)
	slices.Sort(keys)
	return keys, nil
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func (b *Bridge) publishSync(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Warn("MQTT publish error", "topic", topic, "err", token.Error())
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
