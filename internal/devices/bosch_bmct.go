package devices

import (
	"context"
	"fmt"
	"math"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/extend"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/definition/tz"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

var (
	bmctDeviceModes = definition.Lookup{{Key: "light", Value: 0x04}, {Key: "shutter", Value: 0x01}, {Key: "disabled", Value: 0x00}}
	bmctMotorStates = definition.Lookup{{Key: "stopped", Value: 0x00}, {Key: "opening", Value: 0x01}, {Key: "closing", Value: 0x02}}
	bmctSwitchTypes = definition.Lookup{
		{Key: "button", Value: 0x01},
		{Key: "button_key_change", Value: 0x02},
		{Key: "rocker_switch", Value: 0x03},
		{Key: "rocker_switch_key_change", Value: 0x04},
	}
)

// Calibration keys and their attributes, stored in tenths of a second.
var bmctCalibrations = map[string]string{
	"calibration_opening_time":      "calibrationOpeningTime",
	"calibration_closing_time":      "calibrationClosingTime",
	"calibration_button_hold_time":  "calibrationButtonHoldTime",
	"calibration_motor_start_delay": "calibrationMotorStartDelay",
}

func bmctCluster() zcl.ClusterDef {
	return zcl.ClusterDef{
		ID:               0xfca0,
		Name:             "boschSpecific",
		ManufacturerCode: ManufacturerBosch,
		Attributes: []zcl.AttributeDef{
			{ID: 0x0000, Name: "deviceMode", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
			{ID: 0x0001, Name: "switchType", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
			{ID: 0x0002, Name: "calibrationOpeningTime", Type: zcl.TypeUint32, Access: zcl.AccessRW},
			{ID: 0x0003, Name: "calibrationClosingTime", Type: zcl.TypeUint32, Access: zcl.AccessRW},
			{ID: 0x0005, Name: "calibrationButtonHoldTime", Type: zcl.TypeUint8, Access: zcl.AccessRW},
			{ID: 0x0008, Name: "childLock", Type: zcl.TypeBool, Access: zcl.AccessRW},
			{ID: 0x000f, Name: "calibrationMotorStartDelay", Type: zcl.TypeUint8, Access: zcl.AccessRW},
			{ID: 0x0013, Name: "motorState", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		},
	}
}

var bmctReport = &definition.FromZigbee{
	Cluster: "boschSpecific",
	Types:   []string{definition.MsgAttributeReport, definition.MsgReadResponse},
	Convert: func(_ context.Context, def *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, meta *definition.ConvertMeta) (Values, error) {
		data := msg.Data
		result := Values{}
		if raw, ok := data["deviceMode"]; ok {
			result.Merge(lookupState("device_mode", bmctDeviceModes, raw))
			mode, _ := zcl.ToInt64(raw)
			if old, ok := definition.DeviceMetaInt(msg.Device, "deviceMode"); (!ok || old != mode) && msg.Device != nil {
				msg.Device.SetMeta("deviceMode", mode)
				if meta != nil && meta.DeviceExposesChanged != nil {
					meta.DeviceExposesChanged()
				}
			}
		}
		if raw, ok := data["switchType"]; ok {
			result.Merge(lookupState("switch_type", bmctSwitchTypes, raw))
		}
		for key, attr := range bmctCalibrations {
			if v, ok := data.Number(attr); ok {
				result[key] = v / 10
			}
		}
		if raw, ok := data["childLock"]; ok {
			on, _ := zcl.ToBool(raw)
			result[definition.PostfixWithEndpointName("child_lock", msg, def)] = map[bool]string{true: "ON", false: "OFF"}[on]
		}
		if raw, ok := data["motorState"]; ok {
			result.Merge(lookupState("motor_state", bmctMotorStates, raw))
		}
		return result, nil
	},
}

// bmctControl routes state to the cover on endpoint 1 and to the relays on
// the other endpoints.
var bmctControl = &definition.ToZigbee{
	Keys: []string{"device_mode", "switch_type", "child_lock", "state", "on_time", "off_wait_time"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *definition.TzMeta) (*definition.TzResult, error) {
		switch key {
		case "state":
			if ep.ID() == 1 {
				return tz.CoverState.ConvertSet(ctx, ep, key, value, meta)
			}
			return tz.OnOff.ConvertSet(ctx, ep, key, value, meta)
		case "on_time", "off_wait_time":
			if ep.ID() == 1 {
				return nil, nil
			}
			return tz.OnOff.ConvertSet(ctx, ep, key, value, meta)
		case "device_mode":
			v, err := bmctDeviceModes.Value(value)
			if err != nil {
				return nil, err
			}
			if err := ep.Write(ctx, "boschSpecific", Values{"deviceMode": v}, definition.ZCLOptions{}); err != nil {
				return nil, err
			}
			if _, err := ep.Read(ctx, "boschSpecific", []string{"deviceMode"}, definition.ZCLOptions{}); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		case "switch_type":
			v, err := bmctSwitchTypes.Value(value)
			if err != nil {
				return nil, err
			}
			if err := ep.Write(ctx, "boschSpecific", Values{"switchType": v}, definition.ZCLOptions{}); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		case "child_lock":
			v, err := stateOffOn.Value(value)
			if err != nil {
				return nil, err
			}
			if err := ep.Write(ctx, "boschSpecific", Values{"childLock": v}, definition.ZCLOptions{}); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		}
		return nil, fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *definition.TzMeta) error {
		var cluster, attr string
		switch key {
		case "state", "on_time", "off_wait_time":
			if ep.ID() == 1 {
				return nil
			}
			cluster, attr = "genOnOff", "onOff"
		case "device_mode":
			cluster, attr = "boschSpecific", "deviceMode"
		case "switch_type":
			cluster, attr = "boschSpecific", "switchType"
		case "child_lock":
			cluster, attr = "boschSpecific", "childLock"
		default:
			return fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
		}
		_, err := ep.Read(ctx, cluster, []string{attr}, definition.ZCLOptions{})
		return err
	},
}

var bmctCalibration = &definition.ToZigbee{
	Keys: []string{"calibration_closing_time", "calibration_opening_time", "calibration_button_hold_time", "calibration_motor_start_delay"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
		v, err := definition.ToNumber(value, key)
		if err != nil {
			return nil, err
		}
		if err := ep.Write(ctx, "boschSpecific", Values{bmctCalibrations[key]: math.Round(v * 10)}, definition.ZCLOptions{}); err != nil {
			return nil, err
		}
		return &definition.TzResult{State: Values{key: v}}, nil
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *definition.TzMeta) error {
		attr, ok := bmctCalibrations[key]
		if !ok {
			return fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
		}
		_, err := ep.Read(ctx, "boschSpecific", []string{attr}, definition.ZCLOptions{})
		return err
	},
}

func configureShutterControl(ctx context.Context, dev Device, _ *definition.Definition) error {
	ep1, err := endpoint(dev, 1)
	if err != nil {
		return err
	}
	if err := reporting.Bind(ctx, ep1, []string{"genIdentify", "closuresWindowCovering", "boschSpecific"}); err != nil {
		return err
	}
	if err := reporting.CurrentPositionLiftPercentage(ctx, ep1); err != nil {
		return err
	}
	attrs := []string{
		"deviceMode", "switchType", "motorState", "childLock",
		"calibrationOpeningTime", "calibrationClosingTime", "calibrationButtonHoldTime", "calibrationMotorStartDelay",
	}
	if _, err := ep1.Read(ctx, "boschSpecific", attrs, definition.ZCLOptions{}); err != nil {
		return err
	}
	for _, id := range []uint8{2, 3} {
		ep, err := endpoint(dev, id)
		if err != nil {
			return err
		}
		if _, err := ep.Read(ctx, "boschSpecific", []string{"childLock"}, definition.ZCLOptions{}); err != nil {
			return err
		}
		if err := reporting.Bind(ctx, ep, []string{"genIdentify", "genOnOff"}); err != nil {
			return err
		}
		if err := reporting.OnOff(ctx, ep); err != nil {
			return err
		}
	}
	return nil
}

func bmctChildLock() *exposes.Expose {
	return exposes.Binary("child_lock", exposes.AccessAll, "ON", "OFF").WithDescription("Enable/Disable child lock")
}

// shutterControlExposes depends on the mode the module runs in; until the
// mode is known only device_mode can be set.
func shutterControlExposes(dev Device, _ Values) []*exposes.Expose {
	mode := ""
	if !definition.IsDummyDevice(dev) {
		if ep := dev.Endpoint(1); ep != nil {
			if raw, ok := ep.ClusterAttributeValue("boschSpecific", "deviceMode"); ok {
				mode, _ = bmctDeviceModes.Key(raw)
			}
		}
	}

	switchType := exposes.Enum("switch_type", exposes.AccessAll, bmctSwitchTypes.Keys()).
		WithDescription("Module controlled by a rocker switch or a button")
	calibration := func(name, description string, min, max float64) *exposes.Expose {
		return exposes.Numeric(name, exposes.AccessAll).
			WithUnit("s").
			WithDescription(description).
			WithValueMin(min).WithValueMax(max).WithValueStep(0.1)
	}

	switch mode {
	case "light":
		return []*exposes.Expose{
			switchType,
			exposes.Switch().WithEndpoint("left"),
			exposes.Switch().WithEndpoint("right"),
			exposes.PowerOnBehavior().WithEndpoint("left"),
			exposes.PowerOnBehavior().WithEndpoint("right"),
			bmctChildLock().WithEndpoint("left"),
			bmctChildLock().WithEndpoint("right"),
		}
	case "shutter":
		return []*exposes.Expose{
			switchType,
			exposes.CoverPosition(),
			exposes.Enum("motor_state", exposes.AccessState, bmctMotorStates.Keys()).WithDescription("Current shutter motor state"),
			bmctChildLock(),
			calibration("calibration_closing_time", "Calibrate shutter closing time", 1, 90),
			calibration("calibration_opening_time", "Calibrate shutter opening time", 1, 90),
			calibration("calibration_button_hold_time", "Time to hold for long press", 0.1, 2),
			calibration("calibration_motor_start_delay", "Delay between command and motor start", 0, 20),
		}
	}
	return []*exposes.Expose{
		exposes.Enum("device_mode", exposes.AccessAll, bmctDeviceModes.Keys()).WithDescription("Device mode"),
	}
}

func boschActuators() []*definition.Definition {
	plug := &definition.Definition{
		ZigbeeModel: []string{"RBSH-SP-ZB-EU", "RBSH-SP-ZB-FR", "RBSH-SP-ZB-GB"},
		Model:       "BSP-FZ2",
		Vendor:      "Bosch",
		Description: "Plug compact EU",
		WhiteLabel: []definition.WhiteLabel{
			{Vendor: "Bosch", Model: "BSP-EZ2", Description: "Plug compact FR", Fingerprint: []definition.Fingerprint{{ModelID: "RBSH-SP-ZB-FR"}}},
			{Vendor: "Bosch", Model: "BSP-GZ2", Description: "Plug compact UK", Fingerprint: []definition.Fingerprint{{ModelID: "RBSH-SP-ZB-GB"}}},
		},
		Extend: []definition.ModernExtend{
			extend.OnOff(extend.OnOffArgs{PowerOnBehavior: true, ConfigureReporting: true}),
			extend.ElectricityMeter(extend.ElectricityMeterArgs{Power: true, Energy: true}),
		},
		OTA: true,
	}

	dimmer := &definition.Definition{
		ZigbeeModel: []string{"RBSH-MMD-ZB-EU"},
		Model:       "BMCT-DZ",
		Vendor:      "Bosch",
		Description: "Phase-cut dimmer",
		Extend: []definition.ModernExtend{
			extend.Identify(),
			extend.Light(extend.LightArgs{ConfigureReporting: true}),
		},
	}

	relay := &definition.Definition{
		ZigbeeModel: []string{"RBSH-MMR-ZB-EU"},
		Model:       "BMCT-RZ",
		Vendor:      "Bosch",
		Description: "Relay, potential free",
		Extend: []definition.ModernExtend{
			extend.OnOff(extend.OnOffArgs{ConfigureReporting: true}),
		},
	}

	shutter := &definition.Definition{
		ZigbeeModel:    []string{"RBSH-MMS-ZB-EU"},
		Model:          "BMCT-SLZ",
		Vendor:         "Bosch",
		Description:    "Light/shutter control unit II",
		CustomClusters: []zcl.ClusterDef{bmctCluster()},
		FromZigbee:     []*definition.FromZigbee{fz.OnOff, fz.PowerOnBehavior, fz.CoverPositionTilt, bmctReport},
		ToZigbee:       []*definition.ToZigbee{tz.PowerOnBehavior, tz.CoverPositionTilt, bmctControl, bmctCalibration},
		Configure:      configureShutterControl,
		DynamicExposes: shutterControlExposes,
		OTA:            true,
		Extend: []definition.ModernExtend{
			extend.DeviceEndpoints(map[string]uint8{"left": 2, "right": 3}),
			extend.ElectricityMeter(extend.ElectricityMeterArgs{Power: true, Energy: true}),
		},
	}

	return []*definition.Definition{plug, dimmer, relay, shutter}
}
