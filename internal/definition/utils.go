package definition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/zcl"
)

// LookupEntry maps a user-facing key to a raw attribute value.
type LookupEntry struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// Lookup is an ordered key/value table; the order is the order of the
// values published in exposes.
type Lookup []LookupEntry

// Keys returns the keys in declaration order.
func (l Lookup) Keys() []string {
	return lo.Map(l, func(e LookupEntry, _ int) string { return e.Key })
}

// Value returns the raw value for key. Keys match case-insensitively when
// there is no exact match.
func (l Lookup) Value(key any) (int, error) {
	s := fmt.Sprint(key)
	if e, ok := lo.Find(l, func(e LookupEntry) bool { return e.Key == s }); ok {
		return e.Value, nil
	}
	if e, ok := lo.Find(l, func(e LookupEntry) bool { return strings.EqualFold(e.Key, s) }); ok {
		return e.Value, nil
	}
	return 0, fmt.Errorf("value '%s' not found in: [%s]", s, strings.Join(l.Keys(), ", "))
}

// Key returns the key for a raw value.
func (l Lookup) Key(value any) (string, bool) {
	n, ok := zcl.ToInt64(value)
	if !ok {
		return "", false
	}
	e, ok := lo.Find(l, func(e LookupEntry) bool { return int64(e.Value) == n })
	return e.Key, ok
}

// ValidateValue rejects values outside allowed.
func ValidateValue(value any, allowed []string) error {
	s, ok := value.(string)
	if !ok || !lo.Contains(allowed, s) {
		return fmt.Errorf("value '%v' not allowed, expected one of [%s]", value, strings.Join(allowed, ", "))
	}
	return nil
}

// ToNumber converts a user-supplied value into a number; numeric strings
// are accepted.
func ToNumber(value any, key string) (float64, error) {
	if n, ok := zcl.ToFloat64(value); ok {
		return n, nil
	}
	if s, ok := value.(string); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%s is not a number, got %T (%v)", key, value, value)
}

// ToBool converts true/false and ON/OFF style values.
func ToBool(value any, key string) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToUpper(v) {
		case "ON", "TRUE":
			return true, nil
		case "OFF", "FALSE":
			return false, nil
		}
	}
	return false, fmt.Errorf("%s is not a boolean, got %T (%v)", key, value, value)
}

// PrecisionRound rounds v to precision decimal places.
func PrecisionRound(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// NumberWithinRange clamps v into [min, max].
func NumberWithinRange(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

func IsInRange(min, max, v float64) bool {
	return v >= min && v <= max
}

// BatteryVoltageToPercentage maps a battery voltage (mV) linearly onto 0..100.
func BatteryVoltageToPercentage(mv float64, r VoltageRange) float64 {
	if mv >= r.Max {
		return 100
	}
	if mv <= r.Min {
		return 0
	}
	return math.Round((mv - r.Min) / (r.Max - r.Min) * 100)
}

// EndpointName returns the name the definition gives ep, or "".
func EndpointName(def *Definition, ep Endpoint) string {
	if def == nil || ep == nil {
		return ""
	}
	name, _ := lo.FindKey(def.Endpoints, ep.ID())
	return name
}

// PostfixWithEndpointName appends "_<endpoint>" to value for messages from a
// named endpoint of a multi-endpoint device.
func PostfixWithEndpointName(value string, msg *Message, def *Definition) string {
	if def == nil || !def.Meta.MultiEndpoint || msg == nil {
		return value
	}
	if name := EndpointName(def, msg.Endpoint); name != "" {
		return value + "_" + name
	}
	return value
}

// HasAlreadyProcessedMessage reports whether id was the last id seen for the
// message's cluster and type on its endpoint, and records id. Devices that
// retransmit without a fresh sequence number are deduplicated this way.
func HasAlreadyProcessedMessage(msg *Message, id int) bool {
	key := "processed_" + msg.Cluster + "_" + msg.Type
	if last, ok := GetValue(msg.Endpoint, key); ok && last == id {
		return true
	}
	PutValue(msg.Endpoint, key, id)
	return false
}

// IsDummyDevice reports whether dev is a placeholder without endpoints, as
// used when rendering definitions without a paired device.
func IsDummyDevice(dev Device) bool {
	return dev == nil || len(dev.Endpoints()) == 0
}

// DeviceMetaInt returns an integer device meta value.
func DeviceMetaInt(dev Device, key string) (int64, bool) {
	if dev == nil {
		return 0, false
	}
	v, ok := dev.Meta(key)
	if !ok {
		return 0, false
	}
	return zcl.ToInt64(v)
}
