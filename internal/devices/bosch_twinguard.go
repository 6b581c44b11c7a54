package devices

import (
	"context"
	"fmt"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

// Twinguard endpoints.
const (
	twinguardEPMain         uint8 = 1
	twinguardEPMeasurements uint8 = 3
	twinguardEPPollControl  uint8 = 7
	twinguardEPAlarm        uint8 = 12
)

func twinguardClusters() []zcl.ClusterDef {
	return []zcl.ClusterDef{
		{
			ID: 0xe000, Name: "twinguardSmokeDetector", ManufacturerCode: ManufacturerBosch,
			Attributes: []zcl.AttributeDef{boschAttr(0x4003, "sensitivity", zcl.TypeUint16)},
			Commands:   []zcl.CommandDef{{ID: 0x00, Name: "initiateTestMode", Direction: zcl.DirectionToServer}},
		},
		{
			ID: 0xe002, Name: "twinguardMeasurements", ManufacturerCode: ManufacturerBosch,
			Attributes: []zcl.AttributeDef{
				boschAttr(0x4000, "humidity", zcl.TypeUint16),
				boschAttr(0x4003, "airpurity", zcl.TypeUint16),
				boschAttr(0x4004, "temperature", zcl.TypeInt16),
				boschAttr(0x4005, "illuminance", zcl.TypeUint16),
				boschAttr(0x4006, "battery", zcl.TypeUint16),
				boschAttr(0x4009, "pressure", zcl.TypeUint16),
			},
		},
		{
			ID: 0xe004, Name: "twinguardOptions", ManufacturerCode: ManufacturerBosch,
			Attributes: []zcl.AttributeDef{
				boschAttr(0x4000, "unknown1", zcl.TypeBitmap8),
				boschAttr(0x4001, "pre_alarm", zcl.TypeBitmap8),
			},
		},
		{
			ID: 0xe006, Name: "twinguardSetup", ManufacturerCode: ManufacturerBosch,
			Attributes: []zcl.AttributeDef{boschAttr(0x5005, "heartbeat", zcl.TypeBitmap8)},
			Commands:   []zcl.CommandDef{{ID: 0x01, Name: "pairingCompleted", Direction: zcl.DirectionToServer}},
		},
		{
			ID: 0xe007, Name: "twinguardAlarm", ManufacturerCode: ManufacturerBosch,
			Attributes: []zcl.AttributeDef{boschAttr(0x5000, "alarm_status", zcl.TypeBitmap32)},
			Commands: []zcl.CommandDef{
				{ID: 0x01, Name: "burglarAlarm", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeUint8}}},
			},
		},
	}
}

var (
	twinguardSensitivity = definition.Lookup{{Key: "low", Value: 0x03}, {Key: "medium", Value: 0x02}, {Key: "high", Value: 0x01}}
	twinguardAlarmStates = definition.Lookup{{Key: "stop", Value: 0x00}, {Key: "pre_alarm", Value: 0x01}, {Key: "fire", Value: 0x02}, {Key: "burglar", Value: 0x03}}

	// alarm_status bitmaps
	twinguardSirenStates = definition.Lookup{
		{Key: "clear", Value: 0x00200020},
		{Key: "self_test", Value: 0x01200020},
		{Key: "burglar", Value: 0x02200020},
		{Key: "pre_alarm", Value: 0x00200082},
		{Key: "fire", Value: 0x00200081},
		{Key: "silenced", Value: 0x00200040},
	}
	// genAlarms alarm codes
	twinguardAlarmCodes = definition.Lookup{
		{Key: "fire", Value: 0x10},
		{Key: "pre_alarm", Value: 0x11},
		{Key: "clear", Value: 0x14},
		{Key: "silenced", Value: 0x16},
	}
)

// airQualityFactors returns the VOC and CO2 multipliers for an air quality
// index.
func airQualityFactors(aqi float64) (voc, co2 float64) {
	switch {
	case aqi <= 50:
		return 6, 2
	case aqi <= 100:
		return 10, 4
	case aqi <= 150:
		return 20, 4
	case aqi <= 200:
		return 50, 4
	default:
		return 100, 4
	}
}

func twinguardFromZigbee() []*definition.FromZigbee {
	reports := []string{definition.MsgAttributeReport, definition.MsgReadResponse}
	return []*definition.FromZigbee{
		{
			Cluster: "twinguardSmokeDetector",
			Types:   reports,
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				if !msg.Data.Has("sensitivity") {
					return nil, nil
				}
				return lookupState("sensitivity", twinguardSensitivity, msg.Data["sensitivity"]), nil
			},
		},
		{
			Cluster: "twinguardMeasurements",
			Types:   reports,
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				result := Values{}
				if v, ok := msg.Data.Number("humidity"); ok {
					if h := v / 100; definition.IsInRange(0, 100, h) {
						result["humidity"] = h
					}
				}
				if aqi, ok := msg.Data.Number("airpurity"); ok {
					fv, fc := airQualityFactors(aqi)
					result["aqi"] = aqi
					result["voc"] = aqi * fv
					result["co2"] = aqi*fc + 400
				}
				if v, ok := msg.Data.Number("temperature"); ok {
					result["temperature"] = v / 100
				}
				if v, ok := msg.Data.Number("illuminance"); ok {
					result["illuminance"] = definition.PrecisionRound(v/2, 2)
				}
				if v, ok := msg.Data.Number("battery"); ok {
					result["battery"] = definition.PrecisionRound(v/2, 2)
				}
				return result, nil
			},
		},
		{
			Cluster: "twinguardOptions",
			Types:   reports,
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				if !msg.Data.Has("pre_alarm") {
					return nil, nil
				}
				return lookupState("pre_alarm", stateOffOn, msg.Data["pre_alarm"]), nil
			},
		},
		{
			Cluster: "twinguardSetup",
			Types:   reports,
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				if !msg.Data.Has("heartbeat") {
					return nil, nil
				}
				return lookupState("heartbeat", stateOffOn, msg.Data["heartbeat"]), nil
			},
		},
		{
			Cluster: "twinguardAlarm",
			Types:   reports,
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				status, ok := msg.Data.Uint("alarm_status")
				if !ok {
					return nil, nil
				}
				result := Values{
					"self_test": bit(status, 24),
					"smoke":     bit(status, 7),
				}
				result.Merge(lookupState("siren_state", twinguardSirenStates, status))
				return result, nil
			},
		},
		{
			Cluster: "genAlarms",
			Types:   []string{"commandAlarm", definition.MsgReadResponse},
			Convert: func(ctx context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, meta *definition.ConvertMeta) (Values, error) {
				code, ok := msg.Data.Uint("alarmcode")
				if !ok {
					return nil, nil
				}
				result := lookupState("siren_state", twinguardAlarmCodes, code)
				if code == 0x10 || code == 0x11 {
					params := Values{"alarmcode": code, "clusterid": 0xe000}
					if err := msg.Endpoint.CommandResponse(ctx, "genAlarms", "alarm", params, definition.ZCLOptions{}); err != nil && meta != nil && meta.Logger != nil {
						meta.Logger.Warn("alarm acknowledge failed", "device", msg.Endpoint.DeviceIEEE(), "err", err)
					}
				}
				return result, nil
			},
		},
	}
}

func twinguardAlarm(ctx context.Context, dev Device, state string) (*definition.TzResult, error) {
	main, err := endpoint(dev, twinguardEPMain)
	if err != nil {
		return nil, err
	}
	alarm, err := endpoint(dev, twinguardEPAlarm)
	if err != nil {
		return nil, err
	}
	respond := func(code int) error {
		return main.CommandResponse(ctx, "genAlarms", "alarm", Values{"alarmcode": code, "clusterid": 0xe000}, definition.ZCLOptions{})
	}

	switch state {
	case "stop":
		for _, code := range []int{0x16, 0x14} {
			if err := respond(code); err != nil {
				return nil, err
			}
		}
		// The device reports the cleared siren itself.
		return nil, alarm.Command(ctx, "twinguardAlarm", "burglarAlarm", Values{"data": 0x00}, boschOptions)
	case "pre_alarm", "fire":
		code, _ := twinguardAlarmCodes.Value(state)
		if err := respond(code); err != nil {
			return nil, err
		}
		return &definition.TzResult{State: Values{"siren_state": state}}, nil
	case "burglar":
		return nil, alarm.Command(ctx, "twinguardAlarm", "burglarAlarm", Values{"data": 0x01}, boschOptions)
	}
	return nil, fmt.Errorf("value '%s' not found in: %v", state, twinguardAlarmStates.Keys())
}

var twinguardToZigbee = &definition.ToZigbee{
	Keys: []string{"sensitivity", "pre_alarm", "self_test", "alarm", "heartbeat"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *definition.TzMeta) (*definition.TzResult, error) {
		switch key {
		case "sensitivity":
			v, err := twinguardSensitivity.Value(value)
			if err != nil {
				return nil, err
			}
			if err := ep.Write(ctx, "twinguardSmokeDetector", Values{"sensitivity": v}, boschOptions); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		case "pre_alarm", "heartbeat":
			v, err := stateOffOn.Value(value)
			if err != nil {
				return nil, err
			}
			cluster, target := "twinguardOptions", ep
			if key == "heartbeat" {
				cluster = "twinguardSetup"
				if target, err = endpoint(meta.Device, twinguardEPAlarm); err != nil {
					return nil, err
				}
			}
			if err := target.Write(ctx, cluster, Values{key: v}, boschOptions); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		case "self_test":
			on, err := definition.ToBool(value, key)
			if err != nil {
				return nil, err
			}
			if on {
				if err := ep.Command(ctx, "twinguardSmokeDetector", "initiateTestMode", Values{}, boschOptions); err != nil {
					return nil, err
				}
			}
			return nil, nil
		case "alarm":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("alarm must be a string, got %T", value)
			}
			return twinguardAlarm(ctx, meta.Device, s)
		}
		return nil, fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, meta *definition.TzMeta) error {
		switch key {
		case "sensitivity":
			_, err := ep.Read(ctx, "twinguardSmokeDetector", []string{"sensitivity"}, boschOptions)
			return err
		case "pre_alarm":
			_, err := ep.Read(ctx, "twinguardOptions", []string{"pre_alarm"}, boschOptions)
			return err
		case "heartbeat", "alarm", "self_test":
			target, err := endpoint(meta.Device, twinguardEPAlarm)
			if err != nil {
				return err
			}
			cluster, attr := "twinguardAlarm", "alarm_status"
			if key == "heartbeat" {
				cluster, attr = "twinguardSetup", "heartbeat"
			}
			_, err = target.Read(ctx, cluster, []string{attr}, boschOptions)
			return err
		}
		return fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
	},
}

func configureTwinguard(ctx context.Context, dev Device, _ *definition.Definition) error {
	eps := make(map[uint8]Endpoint)
	for _, id := range []uint8{twinguardEPMain, twinguardEPMeasurements, twinguardEPPollControl, twinguardEPAlarm} {
		ep, err := endpoint(dev, id)
		if err != nil {
			return err
		}
		eps[id] = ep
	}
	main, alarm := eps[twinguardEPMain], eps[twinguardEPAlarm]

	binds := []struct {
		ep       uint8
		clusters []string
	}{
		{twinguardEPPollControl, []string{"genPollCtrl"}},
		{twinguardEPMain, []string{"genAlarms", "twinguardSmokeDetector", "twinguardOptions"}},
		{twinguardEPMeasurements, []string{"twinguardMeasurements"}},
		{twinguardEPAlarm, []string{"twinguardSetup", "twinguardAlarm"}},
	}
	for _, b := range binds {
		if err := reporting.Bind(ctx, eps[b.ep], b.clusters); err != nil {
			return err
		}
	}

	if _, err := main.Read(ctx, "twinguardOptions", []string{"unknown1"}, boschOptions); err != nil {
		return err
	}
	if err := alarm.Command(ctx, "twinguardSetup", "pairingCompleted", Values{}, boschOptions); err != nil {
		return err
	}
	if err := main.Write(ctx, "twinguardSmokeDetector", Values{"sensitivity": 0x02}, boschOptions); err != nil {
		return err
	}
	if err := main.Write(ctx, "twinguardOptions", Values{"pre_alarm": 0x01}, boschOptions); err != nil {
		return err
	}
	if err := alarm.Write(ctx, "twinguardSetup", Values{"heartbeat": 0x01}, boschOptions); err != nil {
		return err
	}
	if _, err := main.Read(ctx, "twinguardSmokeDetector", []string{"sensitivity"}, boschOptions); err != nil {
		return err
	}
	if _, err := main.Read(ctx, "twinguardOptions", []string{"pre_alarm"}, boschOptions); err != nil {
		return err
	}
	_, err := alarm.Read(ctx, "twinguardSetup", []string{"heartbeat"}, boschOptions)
	return err
}

func twinguardExposes() []*exposes.Expose {
	measurement := func(e *exposes.Expose, min, max, step float64) *exposes.Expose {
		return e.WithValueMin(min).WithValueMax(max).WithValueStep(step)
	}
	return []*exposes.Expose{
		exposes.Smoke(),
		measurement(exposes.Temperature(), 0, 65, 0.1),
		measurement(exposes.Humidity(), 0, 100, 0.1),
		measurement(exposes.VOC(), 0, 50000, 1).WithUnit("µg/m³"),
		measurement(exposes.CO2(), 400, 2400, 1),
		exposes.Numeric("aqi", exposes.AccessState).
			WithValueMin(0).WithValueMax(500).WithValueStep(1).
			WithDescription("Air Quality Index"),
		exposes.Illuminance(),
		exposes.Numeric("battery", exposes.AccessState).
			WithUnit("%").
			WithValueMin(0).WithValueMax(100).
			WithDescription("Remaining battery in %").
			WithCategory(exposes.CategoryDiagnostic),
		exposes.Text("siren_state", exposes.AccessState).
			WithDescription("Siren state").
			WithCategory(exposes.CategoryDiagnostic),
		exposes.Enum("alarm", exposes.AccessAll, twinguardAlarmStates.Keys()).
			WithDescription("Alarm mode for siren"),
		exposes.Binary("self_test", exposes.AccessAll, true, false).
			WithDescription("Initiate self-test").
			WithCategory(exposes.CategoryConfig),
		exposes.Enum("sensitivity", exposes.AccessAll, twinguardSensitivity.Keys()).
			WithDescription("Sensitivity of the smoke detector").
			WithCategory(exposes.CategoryConfig),
		exposes.Binary("pre_alarm", exposes.AccessAll, "ON", "OFF").
			WithDescription("Enable/disable pre-alarm").
			WithCategory(exposes.CategoryConfig),
		exposes.Binary("heartbeat", exposes.AccessAll, "ON", "OFF").
			WithDescription("Enable/disable heartbeat (blue LED)").
			WithCategory(exposes.CategoryConfig),
	}
}

func boschTwinguard() *definition.Definition {
	return &definition.Definition{
		ZigbeeModel:    []string{"Champion"},
		Model:          "8750001213",
		Vendor:         "Bosch",
		Description:    "Twinguard",
		CustomClusters: twinguardClusters(),
		FromZigbee:     twinguardFromZigbee(),
		ToZigbee:       []*definition.ToZigbee{twinguardToZigbee},
		Configure:      configureTwinguard,
		Exposes:        twinguardExposes(),
	}
}
