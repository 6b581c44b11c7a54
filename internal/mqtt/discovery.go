//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string         // e.g. "homeassistant/sensor/0x00158d0000000001/power/config"
	Payload map[string]any // nil means delete
}

// discoveryContext carries what every payload of one device shares.
type discoveryContext struct {
	dev             *store.Device
	discoveryPrefix string
	base            string // device state topic
	availability    string
	device          map[string]any
}

func (dc *discoveryContext) setTopic(property string) string {
	return dc.base + "/set/" + property
}

func (dc *discoveryContext) topic(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dc.discoveryPrefix, component, dc.dev.IEEEAddress, objectID)
}

// payload returns the fields common to every entity of the device.
func (dc *discoveryContext) payload(objectID string, name any) map[string]any {
	return map[string]any{
		"name":               name,
		"object_id":          slug.Make(dc.dev.DisplayName()) + "_" + objectID,
		"unique_id":          dc.dev.IEEEAddress + "_" + objectID + "_zigbee_catalog",
		"state_topic":        dc.base,
		"availability_topic": dc.availability,
		"device":             dc.device,
		"origin":             map[string]any{"name": "zigbee-catalog"},
	}
}

// objectID turns a property or expose name into a discovery object id.
func objectID(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "_")
}

func valueTemplate(property string) string {
	return fmt.Sprintf("{{ value_json.%s }}", property)
}

func endpointLabel(endpoint string) any {
	if endpoint == "" {
		return nil
	}
	return strings.ToUpper(endpoint[:1]) + endpoint[1:]
}

// buildDiscovery maps the exposes of a device to Home Assistant entities.
// Grouped exposes (switch, light, cover, lock, climate) become one entity
// each; remaining properties become sensors, binary sensors or, when they
// are settable, switches, numbers, selects and texts. def may be nil.
func buildDiscovery(dev *store.Device, def *definition.Definition, list []*exposes.Expose, topicPrefix, discoveryPrefix string) []discoveryMsg {
	if !dev.Interviewed || len(list) == 0 {
		return nil
	}
	device := map[string]any{
		"identifiers": []string{"zigbee_catalog_" + dev.IEEEAddress},
		"name":        dev.DisplayName(),
	}
	if def != nil {
		device["manufacturer"] = def.Vendor
		device["model"] = fmt.Sprintf("%s (%s)", def.Description, def.Model)
	} else if dev.Manufacturer != "" {
		device["manufacturer"] = dev.Manufacturer
		device["model"] = dev.ModelID
	}
	dc := &discoveryContext{
		dev:             dev,
		discoveryPrefix: discoveryPrefix,
		base:            topicPrefix + "/" + deviceTopicName(dev),
		availability:    topicPrefix + "/bridge/state",
		device:          device,
	}

	var msgs []discoveryMsg
	for _, e := range list {
		switch e.Type {
		case exposes.TypeSwitch:
			msgs = append(msgs, dc.switchEntity(e)...)
		case exposes.TypeLight:
			msgs = append(msgs, dc.light(e))
		case exposes.TypeCover:
			msgs = append(msgs, dc.cover(e))
		case exposes.TypeLock:
			msgs = append(msgs, dc.lock(e))
		case exposes.TypeClimate:
			msgs = append(msgs, dc.climate(e)...)
		default:
			if m, ok := dc.leaf(e); ok {
				msgs = append(msgs, m)
			}
		}
	}
	msgs = lo.UniqBy(msgs, func(m discoveryMsg) string { return m.Topic })

	if def != nil && def.Meta.OverrideHADiscovery != nil {
		for _, m := range msgs {
			def.Meta.OverrideHADiscovery(m.Payload)
		}
	}
	return msgs
}

func groupObjectID(typ, endpoint string) string {
	if endpoint == "" {
		return typ
	}
	return typ + "_" + objectID(endpoint)
}

func (dc *discoveryContext) switchEntity(e *exposes.Expose) []discoveryMsg {
	state := e.Feature("state")
	if state == nil {
		return nil
	}
	id := groupObjectID("switch", e.Endpoint)
	p := dc.payload(id, endpointLabel(e.Endpoint))
	p["value_template"] = valueTemplate(state.Property)
	p["command_topic"] = dc.base + "/set"
	p["command_template"] = fmt.Sprintf(`{"%s": "{{ value }}"}`, state.Property)
	p["payload_on"] = state.ValueOn
	p["payload_off"] = state.ValueOff
	p["state_on"] = state.ValueOn
	p["state_off"] = state.ValueOff
	return []discoveryMsg{{Topic: dc.topic("switch", id), Payload: p}}
}

func (dc *discoveryContext) light(e *exposes.Expose) discoveryMsg {
	id := groupObjectID("light", e.Endpoint)
	p := dc.payload(id, endpointLabel(e.Endpoint))
	p["schema"] = "json"
	p["command_topic"] = dc.base + "/set"
	modes := []string{"onoff"}
	if b := e.Feature("brightness"); b != nil {
		p["brightness"] = true
		p["brightness_scale"] = 254
		modes = []string{"brightness"}
	}
	p["supported_color_modes"] = modes
	return discoveryMsg{Topic: dc.topic("light", id), Payload: p}
}

func (dc *discoveryContext) cover(e *exposes.Expose) discoveryMsg {
	id := groupObjectID("cover", e.Endpoint)
	p := dc.payload(id, endpointLabel(e.Endpoint))
	if state := e.Feature("state"); state != nil {
		p["command_topic"] = dc.setTopic(state.Property)
		p["payload_open"] = "OPEN"
		p["payload_close"] = "CLOSE"
		p["payload_stop"] = "STOP"
		if state.Access.Has(exposes.AccessState) {
			p["value_template"] = valueTemplate(state.Property)
			p["state_open"] = "OPEN"
			p["state_closed"] = "CLOSE"
		} else {
			delete(p, "state_topic")
		}
	}
	if pos := e.Feature("position"); pos != nil {
		p["position_topic"] = dc.base
		p["position_template"] = valueTemplate(pos.Property)
		p["set_position_topic"] = dc.setTopic(pos.Property)
	}
	if tilt := e.Feature("tilt"); tilt != nil {
		p["tilt_status_topic"] = dc.base
		p["tilt_status_template"] = valueTemplate(tilt.Property)
		p["tilt_command_topic"] = dc.setTopic(tilt.Property)
	}
	return discoveryMsg{Topic: dc.topic("cover", id), Payload: p}
}

func (dc *discoveryContext) lock(e *exposes.Expose) discoveryMsg {
	id := groupObjectID("lock", e.Endpoint)
	p := dc.payload(id, endpointLabel(e.Endpoint))
	if state := e.Feature("state"); state != nil {
		p["command_topic"] = dc.setTopic(state.Property)
		p["value_template"] = valueTemplate(state.Property)
		p["payload_lock"] = state.ValueOn
		p["payload_unlock"] = state.ValueOff
		p["state_locked"] = state.ValueOn
		p["state_unlocked"] = state.ValueOff
	}
	return discoveryMsg{Topic: dc.topic("lock", id), Payload: p}
}

// climateFeatures are the climate features the climate entity itself
// covers; others get entities of their own.
var climateFeatures = []string{
	"local_temperature",
	"occupied_heating_setpoint",
	"current_heating_setpoint",
	"system_mode",
	"running_state",
}

const runningStateValues = `{% set values = {None:None,'idle':'idle','heat':'heating','cool':'cooling','fan_only':'fan'} %}`

func (dc *discoveryContext) climate(e *exposes.Expose) []discoveryMsg {
	id := groupObjectID("climate", e.Endpoint)
	p := dc.payload(id, endpointLabel(e.Endpoint))
	delete(p, "state_topic")
	if f := e.Feature("local_temperature"); f != nil {
		p["current_temperature_topic"] = dc.base
		p["current_temperature_template"] = valueTemplate(f.Property)
	}
	setpoint := e.Feature("occupied_heating_setpoint")
	if setpoint == nil {
		setpoint = e.Feature("current_heating_setpoint")
	}
	if setpoint != nil {
		p["temperature_state_topic"] = dc.base
		p["temperature_state_template"] = valueTemplate(setpoint.Property)
		p["temperature_command_topic"] = dc.setTopic(setpoint.Property)
		if setpoint.ValueMin != nil {
			p["min_temp"] = *setpoint.ValueMin
		}
		if setpoint.ValueMax != nil {
			p["max_temp"] = *setpoint.ValueMax
		}
		if setpoint.ValueStep != nil {
			p["temp_step"] = *setpoint.ValueStep
		}
	}
	if f := e.Feature("system_mode"); f != nil {
		p["mode_state_topic"] = dc.base
		p["mode_state_template"] = valueTemplate(f.Property)
		p["mode_command_topic"] = dc.setTopic(f.Property)
		p["modes"] = f.Values
	}
	if f := e.Feature("running_state"); f != nil {
		p["action_topic"] = dc.base
		p["action_template"] = runningStateValues + "{{ values[value_json." + f.Property + "] }}"
	}
	msgs := []discoveryMsg{{Topic: dc.topic("climate", id), Payload: p}}
	for _, f := range e.Features {
		if lo.Contains(climateFeatures, f.Name) {
			continue
		}
		if m, ok := dc.leaf(f); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// sensorClasses maps property names to Home Assistant device and state
// classes.
var sensorClasses = map[string][2]string{
	"temperature":       {"temperature", "measurement"},
	"local_temperature": {"temperature", "measurement"},
	"humidity":          {"humidity", "measurement"},
	"illuminance":       {"illuminance", "measurement"},
	"battery":           {"battery", "measurement"},
	"voltage":           {"voltage", "measurement"},
	"current":           {"current", "measurement"},
	"power":             {"power", "measurement"},
	"energy":            {"energy", "total_increasing"},
	"co2":               {"carbon_dioxide", "measurement"},
	"voc":               {"volatile_organic_compounds", "measurement"},
	"pressure":          {"pressure", "measurement"},
	"linkquality":       {"", "measurement"},
}

var binaryClasses = map[string]string{
	"occupancy":   "occupancy",
	"contact":     "door",
	"water_leak":  "moisture",
	"smoke":       "smoke",
	"tamper":      "tamper",
	"battery_low": "battery",
	"vibration":   "vibration",
}

// leaf maps a single property. Composites and lists have no entity.
func (dc *discoveryContext) leaf(e *exposes.Expose) (discoveryMsg, bool) {
	if e.Property == "" || (!e.Access.Has(exposes.AccessState) && !e.Access.Has(exposes.AccessSet)) {
		return discoveryMsg{}, false
	}
	id := objectID(e.Property)
	p := dc.payload(id, e.Label)
	p["value_template"] = valueTemplate(e.Property)
	settable := e.Access.Has(exposes.AccessSet)
	if settable {
		p["command_topic"] = dc.setTopic(e.Property)
	}
	if !e.Access.Has(exposes.AccessState) {
		delete(p, "state_topic")
		delete(p, "value_template")
	}
	if e.Unit != "" {
		p["unit_of_measurement"] = e.Unit
	}

	var component string
	switch e.Type {
	case exposes.TypeBinary:
		if settable {
			component = "switch"
			p["payload_on"] = e.ValueOn
			p["payload_off"] = e.ValueOff
			p["state_on"] = e.ValueOn
			p["state_off"] = e.ValueOff
		} else {
			component = "binary_sensor"
			p["payload_on"] = e.ValueOn
			p["payload_off"] = e.ValueOff
			if class, ok := binaryClasses[e.Name]; ok {
				p["device_class"] = class
			}
		}
	case exposes.TypeNumeric:
		if settable {
			component = "number"
			if e.ValueMin != nil {
				p["min"] = *e.ValueMin
			}
			if e.ValueMax != nil {
				p["max"] = *e.ValueMax
			}
			if e.ValueStep != nil {
				p["step"] = *e.ValueStep
			}
		} else {
			component = "sensor"
			if classes, ok := sensorClasses[e.Name]; ok {
				if classes[0] != "" {
					p["device_class"] = classes[0]
				}
				p["state_class"] = classes[1]
			}
		}
	case exposes.TypeEnum:
		if settable {
			component = "select"
			p["options"] = e.Values
		} else {
			component = "sensor"
		}
	case exposes.TypeText:
		if settable {
			component = "text"
		} else {
			component = "sensor"
		}
	default:
		return discoveryMsg{}, false
	}

	switch {
	case e.Name == "linkquality":
		p["entity_category"] = "diagnostic"
		p["enabled_by_default"] = false
	case e.Category == exposes.CategoryConfig && (component == "sensor" || component == "binary_sensor"):
		p["entity_category"] = "diagnostic"
	case e.Category != "":
		p["entity_category"] = e.Category
	}
	return discoveryMsg{Topic: dc.topic(component, id), Payload: p}, true
}

// removeDiscovery returns the messages clearing the given discovery topics.
func removeDiscovery(topics []string) []discoveryMsg {
	return lo.Map(topics, func(t string, _ int) discoveryMsg { return discoveryMsg{Topic: t} })
}

// deviceTopicName is the topic segment of a device: its friendly name with
// every path segment slugged.
func deviceTopicName(dev *store.Device) string {
	name := dev.FriendlyName
	if name == "" {
		return dev.IEEEAddress
	}
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = slug.Make(s)
		if segments[i] == "" {
			return dev.IEEEAddress
		}
	}
	return strings.Join(segments, "/")
}
