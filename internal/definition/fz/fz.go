// Package fz holds the generic fromZigbee converters shared by device
// definitions.
package fz

import (
	"context"
	"math"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

type (
	Values  = definition.Values
	Message = definition.Message
)

var attributeTypes = []string{definition.MsgAttributeReport, definition.MsgReadResponse}

func postfix(value string, msg *Message, def *definition.Definition) string {
	return definition.PostfixWithEndpointName(value, msg, def)
}

// calibrated applies the <name>_calibration and <name>_precision options.
func calibrated(v float64, name string, options Values) float64 {
	if c, ok := options.Number(name + "_calibration"); ok {
		v += c
	}
	precision := 2
	if p, ok := options.Number(name + "_precision"); ok {
		precision = int(p)
	}
	return definition.PrecisionRound(v, precision)
}

func calibrationOptions(name, unit string) []*exposes.Expose {
	return []*exposes.Expose{
		exposes.Numeric(name+"_calibration", exposes.AccessSet).
			WithUnit(unit).
			WithDescription("Calibrates the " + name + " value (absolute offset), takes into effect on next report of device."),
		exposes.Numeric(name+"_precision", exposes.AccessSet).
			WithValueMin(0).
			WithValueMax(3).
			WithDescription("Number of digits after decimal point for " + name + ", takes into effect on next report of device."),
	}
}

var Battery = &definition.FromZigbee{
	Cluster: "genPowerCfg",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		var battery *definition.BatteryMeta
		if def != nil {
			battery = def.Meta.Battery
		}
		if v, ok := msg.Data.Number("batteryPercentageRemaining"); ok && v < 255 {
			if battery == nil || !battery.DontDividePercentage {
				v /= 2
			}
			result["battery"] = definition.PrecisionRound(v, 2)
		}
		if v, ok := msg.Data.Number("batteryVoltage"); ok && v < 255 {
			mv := v * 100
			result["voltage"] = mv
			if battery != nil && battery.VoltageToPercentage != nil {
				result["battery"] = definition.BatteryVoltageToPercentage(mv, *battery.VoltageToPercentage)
			}
		}
		if v, ok := msg.Data.Uint("batteryAlarmState"); ok {
			result["battery_low"] = v&0x0000000F != 0 || v&0x00003C00 != 0 || v&0x00F00000 != 0
		}
		return result, nil
	},
}

var PowerSource = &definition.FromZigbee{
	Cluster: "genBasic",
	Types:   attributeTypes,
	Convert: func(_ context.Context, _ *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data["powerSource"]
		if !ok {
			return nil, nil
		}
		name, ok := definition.PowerSources.Key(v)
		if !ok {
			return nil, nil
		}
		return Values{"power_source": name}, nil
	},
}

var Temperature = &definition.FromZigbee{
	Cluster: "msTemperatureMeasurement",
	Types:   attributeTypes,
	Options: calibrationOptions("temperature", "°C"),
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, options Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data.Number("measuredValue")
		// 0x8000 (-32768) is the ZCL invalid value.
		if !ok || v == -32768 {
			return nil, nil
		}
		return Values{postfix("temperature", msg, def): calibrated(v/100, "temperature", options)}, nil
	},
}

var Humidity = &definition.FromZigbee{
	Cluster: "msRelativeHumidity",
	Types:   attributeTypes,
	Options: calibrationOptions("humidity", "%"),
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, options Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data.Number("measuredValue")
		if !ok {
			return nil, nil
		}
		humidity := calibrated(v/100, "humidity", options)
		if !definition.IsInRange(0, 100, humidity) {
			return nil, nil
		}
		return Values{postfix("humidity", msg, def): humidity}, nil
	},
}

// IlluminanceLux converts the logarithmic measuredValue to lux.
func IlluminanceLux(measured float64) float64 {
	if measured <= 0 {
		return 0
	}
	return math.Round(math.Pow(10, (measured-1)/10000))
}

var Illuminance = &definition.FromZigbee{
	Cluster: "msIlluminanceMeasurement",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data.Number("measuredValue")
		if !ok {
			return nil, nil
		}
		return Values{postfix("illuminance", msg, def): IlluminanceLux(v)}, nil
	},
}

var OnOff = &definition.FromZigbee{
	Cluster: "genOnOff",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data["onOff"]
		if !ok {
			return nil, nil
		}
		state := "OFF"
		if on, _ := zcl.ToBool(v); on {
			state = "ON"
		}
		return Values{postfix("state", msg, def): state}, nil
	},
}

func commandAction(action string) func(context.Context, *definition.Definition, *Message, definition.Publish, Values, *definition.ConvertMeta) (Values, error) {
	return func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		if definition.HasAlreadyProcessedMessage(msg, int(msg.Meta.Sequence)) {
			return nil, nil
		}
		return Values{"action": postfix(action, msg, def)}, nil
	}
}

var CommandOn = &definition.FromZigbee{
	Cluster: "genOnOff",
	Types:   []string{"commandOn"},
	Convert: commandAction("on"),
}

var CommandOff = &definition.FromZigbee{
	Cluster: "genOnOff",
	Types:   []string{"commandOff"},
	Convert: commandAction("off"),
}

var PowerOnBehavior = &definition.FromZigbee{
	Cluster: "genOnOff",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data["startUpOnOff"]
		if !ok {
			return nil, nil
		}
		name, ok := definition.PowerOnBehaviors.Key(v)
		if !ok {
			return nil, nil
		}
		return Values{postfix("power_on_behavior", msg, def): name}, nil
	},
}

var Brightness = &definition.FromZigbee{
	Cluster: "genLevelCtrl",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		v, ok := msg.Data.Number("currentLevel")
		if !ok {
			return nil, nil
		}
		return Values{postfix("brightness", msg, def): v}, nil
	},
}

var invertCoverOption = exposes.Binary("invert_cover", exposes.AccessSet, true, false).
	WithDescription("Inverts the cover position, false: open=100,close=0, true: open=0,close=100 (default false).")

// CoverPositionTilt reports position and tilt with 100 meaning open unless
// the invert_cover option is set.
var CoverPositionTilt = &definition.FromZigbee{
	Cluster: "closuresWindowCovering",
	Types:   attributeTypes,
	Options: []*exposes.Expose{invertCoverOption},
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, options Values, _ *definition.ConvertMeta) (Values, error) {
		invert, _ := options["invert_cover"].(bool)
		result := Values{}
		if v, ok := msg.Data.Number("currentPositionLiftPercentage"); ok && v <= 100 {
			position, closed := 100-v, v == 100
			if invert {
				position, closed = v, v == 0
			}
			result[postfix("position", msg, def)] = position
			state := "OPEN"
			if closed {
				state = "CLOSE"
			}
			result[postfix("state", msg, def)] = state
		}
		if v, ok := msg.Data.Number("currentPositionTiltPercentage"); ok && v <= 100 {
			tilt := 100 - v
			if invert {
				tilt = v
			}
			result[postfix("tilt", msg, def)] = tilt
		}
		return result, nil
	},
}

func zoneStatus(msg *Message) (uint64, bool) {
	if msg.Type == "commandStatusChangeNotification" {
		return msg.Data.Uint("zonestatus")
	}
	return msg.Data.Uint("zoneStatus")
}

// IASOccupancyAlarm1 maps zone status alarm 1 to occupancy.
var IASOccupancyAlarm1 = &definition.FromZigbee{
	Cluster: "ssIasZone",
	Types:   []string{"commandStatusChangeNotification"},
	Convert: func(_ context.Context, _ *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		status, ok := zoneStatus(msg)
		if !ok {
			return nil, nil
		}
		return Values{
			"occupancy":   status&1 != 0,
			"tamper":      status&(1<<2) != 0,
			"battery_low": status&(1<<3) != 0,
		}, nil
	},
}

// IgnoreIASZoneReport swallows zone status attribute reports of devices
// that also send status change notifications.
var IgnoreIASZoneReport = &definition.FromZigbee{
	Cluster: "ssIasZone",
	Types:   []string{definition.MsgAttributeReport},
	Convert: func(context.Context, *definition.Definition, *Message, definition.Publish, Values, *definition.ConvertMeta) (Values, error) {
		return nil, nil
	},
}
