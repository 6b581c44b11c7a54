// Package tz holds the generic toZigbee converters shared by device
// definitions.
package tz

import (
	"context"
	"fmt"
	"math"
	"strings"

	"zigbee-go-catalog/internal/definition"
)

type (
	Values   = definition.Values
	Endpoint = definition.Endpoint
	TzMeta   = definition.TzMeta
	TzResult = definition.TzResult
)

var noOptions = definition.ZCLOptions{}

func result(key string, value any) *TzResult {
	return &TzResult{State: Values{key: value}}
}

// stateKey returns the state key of key for the endpoint the request
// addressed.
func stateKey(key string, meta *TzMeta) string {
	if meta.EndpointName == "" {
		return key
	}
	return key + "_" + meta.EndpointName
}

func read(cluster string, attrs ...string) func(context.Context, Endpoint, string, *TzMeta) error {
	return func(ctx context.Context, ep Endpoint, _ string, _ *TzMeta) error {
		_, err := ep.Read(ctx, cluster, attrs, noOptions)
		return err
	}
}

// lookupWrite writes the raw value of a lookup key and publishes the key.
func lookupWrite(cluster, attr string, lookup definition.Lookup) func(context.Context, Endpoint, string, any, *TzMeta) (*TzResult, error) {
	return func(ctx context.Context, ep Endpoint, key string, value any, _ *TzMeta) (*TzResult, error) {
		if s, ok := value.(string); ok {
			value = strings.ToLower(s)
		}
		raw, err := lookup.Value(value)
		if err != nil {
			return nil, err
		}
		if err := ep.Write(ctx, cluster, Values{attr: raw}, noOptions); err != nil {
			return nil, err
		}
		return result(key, value), nil
	}
}

func optionalNumber(values Values, key string, def float64) (float64, error) {
	v, ok := values[key]
	if !ok || v == nil {
		return def, nil
	}
	return definition.ToNumber(v, key)
}

var OnOff = &definition.ToZigbee{
	Keys: []string{"state", "on_time", "off_wait_time"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *TzMeta) (*TzResult, error) {
		msg := meta.Message
		if msg == nil {
			msg = Values{key: value}
		}
		s, _ := msg["state"].(string)
		state := strings.ToLower(s)
		if err := definition.ValidateValue(state, []string{"toggle", "off", "on"}); err != nil {
			return nil, err
		}

		if state == "on" && (msg.Has("on_time") || msg.Has("off_wait_time")) {
			onTime, err := optionalNumber(msg, "on_time", 0)
			if err != nil {
				return nil, err
			}
			offWait, err := optionalNumber(msg, "off_wait_time", 0)
			if err != nil {
				return nil, err
			}
			payload := Values{
				"ctrlbits":    0,
				"ontime":      math.Round(onTime * 10),
				"offwaittime": math.Round(offWait * 10),
			}
			if err := ep.Command(ctx, "genOnOff", "onWithTimedOff", payload, noOptions); err != nil {
				return nil, err
			}
			return result("state", "ON"), nil
		}

		if err := ep.Command(ctx, "genOnOff", state, nil, noOptions); err != nil {
			return nil, err
		}
		if state == "toggle" {
			current, ok := meta.State[stateKey("state", meta)].(string)
			if !ok {
				return nil, nil
			}
			if current == "OFF" {
				return result("state", "ON"), nil
			}
			return result("state", "OFF"), nil
		}
		return result("state", strings.ToUpper(state)), nil
	},
	ConvertGet: read("genOnOff", "onOff"),
}

// LightOnOffBrightness handles state and brightness of a dimmable light.
// brightness_percent is accepted as an alternative to brightness.
var LightOnOffBrightness = &definition.ToZigbee{
	Keys: []string{"state", "brightness", "brightness_percent", "transition", "on_time"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *TzMeta) (*TzResult, error) {
		msg := meta.Message
		if msg == nil {
			msg = Values{key: value}
		}
		transition, err := optionalNumber(msg, "transition", 0)
		if err != nil {
			return nil, err
		}
		s, _ := msg["state"].(string)
		hasBrightness := msg.Has("brightness") || msg.Has("brightness_percent")
		if !hasBrightness || strings.EqualFold(s, "off") {
			return OnOff.ConvertSet(ctx, ep, "state", msg["state"], meta)
		}

		var level float64
		if msg.Has("brightness_percent") {
			pct, err := definition.ToNumber(msg["brightness_percent"], "brightness_percent")
			if err != nil {
				return nil, err
			}
			level = math.Round(pct * 2.54)
		} else if level, err = definition.ToNumber(msg["brightness"], "brightness"); err != nil {
			return nil, err
		}
		level = definition.NumberWithinRange(level, 0, 254)

		payload := Values{"level": level, "transtime": math.Round(transition * 10)}
		if err := ep.Command(ctx, "genLevelCtrl", "moveToLevelWithOnOff", payload, noOptions); err != nil {
			return nil, err
		}
		state := "ON"
		if level == 0 {
			state = "OFF"
		}
		return &TzResult{State: Values{"state": state, "brightness": level}}, nil
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *TzMeta) error {
		if key == "brightness" || key == "brightness_percent" {
			_, err := ep.Read(ctx, "genLevelCtrl", []string{"currentLevel"}, noOptions)
			return err
		}
		_, err := ep.Read(ctx, "genOnOff", []string{"onOff"}, noOptions)
		return err
	},
}

var PowerOnBehavior = &definition.ToZigbee{
	Keys:       []string{"power_on_behavior"},
	ConvertSet: lookupWrite("genOnOff", "startUpOnOff", definition.PowerOnBehaviors),
	ConvertGet: read("genOnOff", "startUpOnOff"),
}

var coverCommands = map[string]string{"open": "upOpen", "close": "downClose", "stop": "stop"}

var CoverState = &definition.ToZigbee{
	Keys: []string{"state"},
	ConvertSet: func(ctx context.Context, ep Endpoint, _ string, value any, _ *TzMeta) (*TzResult, error) {
		s, _ := value.(string)
		command, ok := coverCommands[strings.ToLower(s)]
		if !ok {
			return nil, fmt.Errorf("value '%v' not allowed, expected one of [OPEN, CLOSE, STOP]", value)
		}
		return nil, ep.Command(ctx, "closuresWindowCovering", command, nil, noOptions)
	},
}

var CoverPositionTilt = &definition.ToZigbee{
	Keys: []string{"position", "tilt"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *TzMeta) (*TzResult, error) {
		v, err := definition.ToNumber(value, key)
		if err != nil {
			return nil, err
		}
		v = definition.NumberWithinRange(v, 0, 100)
		raw := 100 - v
		if invert, _ := meta.Options["invert_cover"].(bool); invert {
			raw = v
		}
		command, param := "goToLiftPercentage", "percentageliftvalue"
		if key == "tilt" {
			command, param = "goToTiltPercentage", "percentagetiltvalue"
		}
		if err := ep.Command(ctx, "closuresWindowCovering", command, Values{param: math.Round(raw)}, noOptions); err != nil {
			return nil, err
		}
		return result(key, v), nil
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *TzMeta) error {
		attr := "currentPositionLiftPercentage"
		if key == "tilt" {
			attr = "currentPositionTiltPercentage"
		}
		_, err := ep.Read(ctx, "closuresWindowCovering", []string{attr}, noOptions)
		return err
	},
}

// Warning starts or stops an IAS warning device.
var Warning = &definition.ToZigbee{
	Keys: []string{"warning"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *TzMeta) (*TzResult, error) {
		v, ok := value.(map[string]any)
		if !ok {
			if vv, isValues := value.(Values); isValues {
				v, ok = vv, true
			}
		}
		if !ok {
			return nil, fmt.Errorf("%s must be an object, got %T", key, value)
		}
		w := Values(v)

		modeName, level, strobeLevel := "emergency", "medium", "medium"
		if s, ok := w["mode"].(string); ok {
			modeName = s
		}
		if s, ok := w["level"].(string); ok {
			level = s
		}
		if s, ok := w["strobe_level"].(string); ok {
			strobeLevel = s
		}
		mode, err := definition.WarningModes.Value(modeName)
		if err != nil {
			return nil, err
		}
		lvl, err := definition.WarningLevels.Value(level)
		if err != nil {
			return nil, err
		}
		strobeLvl, err := definition.WarningLevels.Value(strobeLevel)
		if err != nil {
			return nil, err
		}
		strobe := true
		if b, ok := w["strobe"].(bool); ok {
			strobe = b
		}
		duration, err := optionalNumber(w, "duration", 10)
		if err != nil {
			return nil, err
		}
		dutyCycle, err := optionalNumber(w, "strobe_duty_cycle", 0)
		if err != nil {
			return nil, err
		}

		info := mode<<4 | lvl
		if strobe {
			info |= 1 << 2
		}
		payload := Values{
			"startwarninginfo": info,
			"warningduration":  duration,
			"strobedutycycle":  dutyCycle * 10,
			"strobelevel":      strobeLvl,
		}
		return nil, ep.Command(ctx, "ssIasWd", "startWarning", payload, noOptions)
	},
}

var Identify = &definition.ToZigbee{
	Keys: []string{"identify"},
	ConvertSet: func(ctx context.Context, ep Endpoint, _ string, _ any, meta *TzMeta) (*TzResult, error) {
		seconds, err := optionalNumber(meta.Options, "identify_timeout", 3)
		if err != nil {
			return nil, err
		}
		return nil, ep.Command(ctx, "genIdentify", "identify", Values{"identifytime": seconds}, noOptions)
	},
}

var BatteryPercentageRemaining = &definition.ToZigbee{
	Keys:       []string{"battery"},
	ConvertGet: read("genPowerCfg", "batteryPercentageRemaining"),
}

var BatteryVoltage = &definition.ToZigbee{
	Keys:       []string{"voltage"},
	ConvertGet: read("genPowerCfg", "batteryVoltage"),
}
