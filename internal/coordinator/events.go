package coordinator

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	EventDeviceJoined      = "device_joined"
	EventDeviceLeft        = "device_left"
	EventDeviceAnnounce    = "device_announce"
	EventDeviceInterviewed = "device_interviewed"
	EventDeviceRenamed     = "device_renamed"
	EventDeviceRemoved     = "device_removed"
	EventStateChange       = "state_change"
	EventExposesChanged    = "exposes_changed"
	EventNetworkState      = "network_state"
	EventPermitJoin        = "permit_join"
)

// StateChange is the payload of EventStateChange. State is the full device
// state after the update; Update holds only the keys that changed.
type StateChange struct {
	IEEE         string         `json:"ieee"`
	FriendlyName string         `json:"friendly_name"`
	State        map[string]any `json:"state"`
	Update       map[string]any `json:"update"`
}

// DeviceEvent is the payload of device lifecycle events.
type DeviceEvent struct {
	IEEE         string `json:"ieee"`
	FriendlyName string `json:"friendly_name,omitempty"`
	// OldName is set for EventDeviceRenamed.
	OldName   string `json:"old_name,omitempty"`
	ShortAddr uint16 `json:"short_addr,omitempty"`
	Model     string `json:"model,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	// Supported is set for EventDeviceInterviewed when a definition matched.
	Supported bool `json:"supported,omitempty"`
}

// Event is published on the EventBus. Time is stamped by Emit when unset.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type EventHandler func(Event)

type subscriber struct {
	id      uint64
	types   map[string]struct{} // nil receives every type
	handler EventHandler
}

func (s *subscriber) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// EventBus fans coordinator events out to subscribers in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	nextID uint64
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe registers handler for the given event types, or for every event
// when none are given. The returned function removes the subscription.
func (eb *EventBus) Subscribe(handler EventHandler, types ...string) func() {
	sub := &subscriber{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	eb.mu.Lock()
	eb.nextID++
	sub.id = eb.nextID
	eb.subs = append(eb.subs, sub)
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { eb.remove(sub.id) })
	}
}

// On subscribes handler to a single event type.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.Subscribe(handler, eventType)
}

// OnAll subscribes handler to every event.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.Subscribe(handler)
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subs = slices.DeleteFunc(eb.subs, func(s *subscriber) bool { return s.id == id })
}

// Emit delivers event synchronously to every interested subscriber. A
// panicking handler is logged and does not stop delivery to the others.
func (eb *EventBus) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	targets := make([]EventHandler, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.wants(event.Type) {
			targets = append(targets, sub.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range targets {
		eb.deliver(h, event)
	}
}

func (eb *EventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
		}
	}()
	h(event)
}
