package devices

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/extend"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/definition/tz"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
	"zigbee-go-catalog/internal/zcl/clusters"
)

// Outdoor siren settings
var (
	sirenVolumes      = definition.Lookup{{Key: "low", Value: 0x01}, {Key: "medium", Value: 0x02}, {Key: "high", Value: 0x03}}
	sirenLights       = definition.Lookup{{Key: "only_light", Value: 0x00}, {Key: "only_siren", Value: 0x01}, {Key: "siren_and_light", Value: 0x02}}
	outdoorSirenState = definition.Lookup{{Key: "ON", Value: 0x07}, {Key: "OFF", Value: 0x00}}
	sirenPowerSupply  = definition.Lookup{
		{Key: "solar_panel", Value: 0x01},
		{Key: "ac_power_supply", Value: 0x02},
		{Key: "dc_power_supply", Value: 0x03},
	}
)

func outdoorSirenClusters() []definition.ModernExtend {
	return []definition.ModernExtend{
		extend.DeviceAddCustomCluster("ssIasWd", zcl.ClusterDef{
			ID: clusters.IDIASWD,
			Attributes: []zcl.AttributeDef{
				boschAttr(0xa000, "sirenDuration", zcl.TypeUint8),
				boschAttr(0xa001, "sirenAndLight", zcl.TypeUint8),
				boschAttr(0xa002, "sirenVolume", zcl.TypeUint8),
				boschAttr(0xa003, "sirenDelay", zcl.TypeUint16),
				boschAttr(0xa004, "lightDelay", zcl.TypeUint16),
				boschAttr(0xa005, "lightDuration", zcl.TypeUint8),
			},
			Commands: []zcl.CommandDef{
				{ID: 0xf0, Name: "boschOutdoorSiren", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeUint8}}},
			},
		}),
		extend.DeviceAddCustomCluster("ssIasZone", zcl.ClusterDef{
			ID: clusters.IDIASZone,
			Commands: []zcl.CommandDef{
				{ID: 0xf3, Name: "boschTestTamper", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeUint8}}},
			},
		}),
		extend.DeviceAddCustomCluster("genPowerCfg", zcl.ClusterDef{
			ID:         clusters.IDPowerConfig,
			Attributes: []zcl.AttributeDef{boschAttr(0xa002, "sirenPowerSupply", zcl.TypeUint8)},
		}),
	}
}

// sirenSetting is one outdoor siren setting: a numeric attribute, or an
// enum attribute when lookup is set.
type sirenSetting struct {
	cluster   string
	attribute string
	lookup    definition.Lookup
}

var sirenSettings = map[string]sirenSetting{
	"light_delay":     {cluster: "ssIasWd", attribute: "lightDelay"},
	"siren_delay":     {cluster: "ssIasWd", attribute: "sirenDelay"},
	"light_duration":  {cluster: "ssIasWd", attribute: "lightDuration"},
	"siren_duration":  {cluster: "ssIasWd", attribute: "sirenDuration"},
	"siren_and_light": {cluster: "ssIasWd", attribute: "sirenAndLight", lookup: sirenLights},
	"siren_volume":    {cluster: "ssIasWd", attribute: "sirenVolume", lookup: sirenVolumes},
	"power_source":    {cluster: "genPowerCfg", attribute: "sirenPowerSupply", lookup: sirenPowerSupply},
}

var outdoorSiren = &definition.ToZigbee{
	Keys: append(lo.Keys(sirenSettings), "alarm_state"),
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *definition.TzMeta) (*definition.TzResult, error) {
		if key == "alarm_state" {
			data, err := outdoorSirenState.Value(value)
			if err != nil {
				return nil, err
			}
			target, err := endpoint(meta.Device, 1)
			if err != nil {
				return nil, err
			}
			if err := target.Command(ctx, "ssIasWd", "boschOutdoorSiren", Values{"data": data}, boschOptions); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: value}}, nil
		}

		s := sirenSettings[key]
		var raw any
		if s.lookup != nil {
			v, err := s.lookup.Value(value)
			if err != nil {
				return nil, err
			}
			raw = v
		} else {
			v, err := definition.ToNumber(value, key)
			if err != nil {
				return nil, err
			}
			raw = v
		}
		if err := ep.Write(ctx, s.cluster, Values{s.attribute: raw}, boschOptions); err != nil {
			return nil, err
		}
		return &definition.TzResult{State: Values{key: value}}, nil
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *definition.TzMeta) error {
		if key == "alarm_state" {
			_, err := ep.ReadIDs(ctx, "ssIasWd", []uint16{0xf0}, boschOptions)
			return err
		}
		s, ok := sirenSettings[key]
		if !ok {
			return fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
		}
		_, err := ep.Read(ctx, s.cluster, []string{s.attribute}, boschOptions)
		return err
	},
}

// outdoorSirenSettings publishes the siren settings read back from the
// device.
func outdoorSirenSettings(cluster string) *definition.FromZigbee {
	return &definition.FromZigbee{
		Cluster: cluster,
		Types:   []string{definition.MsgAttributeReport, definition.MsgReadResponse},
		Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
			result := Values{}
			for key, s := range sirenSettings {
				raw, ok := msg.Data[s.attribute]
				if !ok || s.cluster != cluster {
					continue
				}
				if s.lookup == nil {
					if n, ok := zcl.ToFloat64(raw); ok {
						result[key] = n
					}
					continue
				}
				result.Merge(lookupState(key, s.lookup, raw))
			}
			return result, nil
		},
	}
}

func configureOutdoorSiren(ctx context.Context, dev Device, _ *definition.Definition) error {
	ep, err := endpoint(dev, 1)
	if err != nil {
		return err
	}
	if err := reporting.Bind(ctx, ep, []string{"genPowerCfg", "ssIasZone", "ssIasWd", "genBasic"}); err != nil {
		return err
	}
	if err := reporting.BatteryVoltage(ctx, ep); err != nil {
		return err
	}
	attrs := []string{"sirenDuration", "sirenAndLight", "sirenVolume", "sirenDelay", "lightDelay", "lightDuration"}
	if _, err := ep.Read(ctx, "ssIasWd", attrs, boschOptions); err != nil {
		return err
	}
	if lo.Contains(ep.Binds(), "genPollCtrl") {
		return ep.Unbind(ctx, "genPollCtrl")
	}
	return nil
}

func outdoorSirenExposes() []*exposes.Expose {
	delay := func(name, description string) *exposes.Expose {
		return exposes.Numeric(name, exposes.AccessAll).
			WithValueMin(0).WithValueMax(30).WithValueStep(1).
			WithUnit("s").
			WithDescription(description)
	}
	duration := func(name, description string) *exposes.Expose {
		return exposes.Numeric(name, exposes.AccessAll).
			WithValueMin(1).WithValueMax(15).WithValueStep(1).
			WithUnit("m").
			WithDescription(description)
	}
	return []*exposes.Expose{
		exposes.Binary("alarm_state", exposes.AccessAll, "ON", "OFF").WithDescription("Alarm turn ON/OFF"),
		delay("light_delay", "Flashing light delay"),
		delay("siren_delay", "Siren alarm delay"),
		duration("siren_duration", "Duration of the alarm siren"),
		duration("light_duration", "Duration of the alarm light"),
		exposes.Enum("siren_volume", exposes.AccessAll, sirenVolumes.Keys()).WithDescription("Volume of the alarm"),
		exposes.Enum("siren_and_light", exposes.AccessAll, sirenLights.Keys()).WithDescription("Siren and Light behaviour during alarm"),
		exposes.Enum("power_source", exposes.AccessAll, sirenPowerSupply.Keys()).WithDescription("Siren power source"),
		exposes.Warning().
			RemoveFeature("strobe_level").
			RemoveFeature("strobe").
			RemoveFeature("strobe_duty_cycle").
			RemoveFeature("level").
			RemoveFeature("duration"),
		exposes.Test(),
		exposes.Battery(),
		exposes.BatteryVoltage(),
		exposes.Binary("ac_status", exposes.AccessState, true, false).WithDescription("Is the device plugged in"),
	}
}

// Zone status bits of the door/window contact.
var contactActions = definition.Lookup{{Key: "none", Value: 0}, {Key: "single", Value: 1}, {Key: "long", Value: 2}}

func zoneStatusOf(msg *definition.Message) (uint64, bool) {
	if msg.Type == "commandStatusChangeNotification" {
		return msg.Data.Uint("zonestatus")
	}
	return msg.Data.Uint("zoneStatus")
}

var zoneTypes = []string{"commandStatusChangeNotification", definition.MsgAttributeReport, definition.MsgReadResponse}

func bit(status uint64, n uint) bool { return status&(1<<n) != 0 }

func doorWindowContact(vibration bool) definition.ModernExtend {
	list := []*exposes.Expose{
		exposes.Binary("contact", exposes.AccessState, false, true).WithDescription("Indicates whether the device is opened or closed"),
		exposes.Enum("action", exposes.AccessState, contactActions.Keys()).
			WithDescription("Triggered action (e.g. a button click)").
			WithCategory(exposes.CategoryDiagnostic),
	}
	if vibration {
		list = append(list, exposes.Binary("vibration", exposes.AccessState, true, false).
			WithDescription("Indicates whether the device detected vibration"))
	}
	convert := func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		status, ok := zoneStatusOf(msg)
		if !ok {
			return nil, nil
		}
		result := Values{
			"contact":             !bit(status, 0),
			"vibration":           bit(status, 1),
			"tamper":              bit(status, 2),
			"battery_low":         bit(status, 3),
			"supervision_reports": bit(status, 4),
			"restore_reports":     bit(status, 5),
			"trouble":             bit(status, 6),
			"ac_status":           bit(status, 7),
			"test":                bit(status, 8),
			"battery_defect":      bit(status, 9),
		}
		if action, ok := contactActions.Key((status >> 11) & 3); ok && action != "none" {
			result["action"] = action
		}
		return result, nil
	}
	return definition.ModernExtend{
		Exposes:    list,
		FromZigbee: []*definition.FromZigbee{{Cluster: "ssIasZone", Types: zoneTypes, Convert: convert}},
	}
}

// Siren payloads of the smoke alarm's boschSmokeAlarmSiren command.
var (
	smokeAlarmSiren   = definition.Lookup{{Key: "OFF", Value: 0x0000}, {Key: "ON", Value: 0x3c00}}
	burglarAlarmSiren = definition.Lookup{{Key: "OFF", Value: 0x0001}, {Key: "ON", Value: 0xb401}}
)

func smokeAlarm() definition.ModernExtend {
	list := []*exposes.Expose{
		exposes.Smoke(),
		exposes.Binary("test", exposes.AccessState, true, false).
			WithDescription("Indicates whether the device is currently performing a test").
			WithCategory(exposes.CategoryDiagnostic),
		exposes.Binary("alarm_smoke", exposes.AccessAll, true, false).
			WithDescription("Toggle the smoke alarm siren").
			WithCategory(exposes.CategoryConfig),
		exposes.Binary("alarm_burglar", exposes.AccessAll, true, false).
			WithDescription("Toggle the burglar alarm siren").
			WithCategory(exposes.CategoryConfig),
	}
	convert := func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		status, ok := zoneStatusOf(msg)
		if !ok {
			return nil, nil
		}
		return Values{
			"smoke":               bit(status, 0),
			"alarm_smoke":         bit(status, 1),
			"battery_low":         bit(status, 3),
			"supervision_reports": bit(status, 4),
			"restore_reports":     bit(status, 5),
			"alarm_burglar":       bit(status, 7),
			"test":                bit(status, 8),
			"alarm_silenced":      bit(status, 11),
		}, nil
	}
	sirens := map[string]definition.Lookup{"alarm_smoke": smokeAlarmSiren, "alarm_burglar": burglarAlarmSiren}
	toZigbee := &definition.ToZigbee{
		Keys: []string{"alarm_smoke", "alarm_burglar"},
		ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
			on, err := definition.ToBool(value, key)
			if err != nil {
				return nil, err
			}
			data, _ := sirens[key].Value(lo.Ternary(on, "ON", "OFF"))
			if err := ep.Command(ctx, "ssIasZone", "boschSmokeAlarmSiren", Values{"data": data}, boschOptions); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: on}}, nil
		},
		ConvertGet: func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
			_, err := ep.Read(ctx, "ssIasZone", []string{"zoneStatus"}, definition.ZCLOptions{})
			return err
		},
	}
	return definition.ModernExtend{
		Exposes:    list,
		FromZigbee: []*definition.FromZigbee{{Cluster: "ssIasZone", Types: zoneTypes, Convert: convert}},
		ToZigbee:   []*definition.ToZigbee{toZigbee},
	}
}

var broadcastSirenStates = definition.Lookup{
	{Key: "smoke_off", Value: 0x0000},
	{Key: "smoke_on", Value: 0x3c00},
	{Key: "burglar_off", Value: 0x0001},
	{Key: "burglar_on", Value: 0xb401},
}

// broadcastAlarm sets the siren of every smoke alarm in the network at once.
func broadcastAlarm() definition.ModernExtend {
	return definition.ModernExtend{
		Exposes: []*exposes.Expose{
			exposes.Enum("broadcast_alarm", exposes.AccessSet, broadcastSirenStates.Keys()).
				WithDescription("Set siren state of all BSD-2 via broadcast").
				WithCategory(exposes.CategoryConfig),
		},
		ToZigbee: []*definition.ToZigbee{{
			Keys: []string{"broadcast_alarm"},
			ConvertSet: func(ctx context.Context, ep Endpoint, _ string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
				data, err := broadcastSirenStates.Value(value)
				if err != nil {
					return nil, err
				}
				return nil, ep.Broadcast(ctx, definition.BroadcastEndpoint, "ssIasZone", "boschSmokeAlarmSiren", Values{"data": data}, boschOptions)
			},
		}},
	}
}

func readAll(reads ...[2]string) definition.ConfigureFunc {
	return func(ctx context.Context, dev Device, _ *definition.Definition) error {
		ep, err := endpoint(dev, 1)
		if err != nil {
			return err
		}
		for _, r := range reads {
			opts := definition.ZCLOptions{}
			if r[0] == "boschSpecific" {
				opts = boschOptions
			}
			if _, err := ep.Read(ctx, r[0], []string{r[1]}, opts); err != nil {
				return err
			}
		}
		return nil
	}
}

func configureMotionSensor(id uint8) definition.ConfigureFunc {
	return func(ctx context.Context, dev Device, _ *definition.Definition) error {
		ep, err := endpoint(dev, id)
		if err != nil {
			return err
		}
		if err := reporting.Bind(ctx, ep, []string{"msTemperatureMeasurement", "genPowerCfg"}); err != nil {
			return err
		}
		if err := reporting.Temperature(ctx, ep); err != nil {
			return err
		}
		return reporting.BatteryVoltage(ctx, ep)
	}
}

func motionSensorExposes() []*exposes.Expose {
	return []*exposes.Expose{exposes.Temperature(), exposes.Battery(), exposes.Occupancy(), exposes.BatteryLow(), exposes.Tamper()}
}

var motionBattery = definition.Meta{Battery: &definition.BatteryMeta{VoltageToPercentage: &definition.VoltageRange{Min: 2500, Max: 3000}}}

func boschSecurity() []*definition.Definition {
	pollControl := extend.BindCluster(extend.BindClusterArgs{Cluster: "genPollCtrl", ClusterType: extend.ClusterInput})

	siren := &definition.Definition{
		ZigbeeModel: []string{"RBSH-OS-ZB-EU"},
		Model:       "BSIR-EZ",
		Vendor:      "Bosch",
		Description: "Outdoor siren",
		FromZigbee:  []*definition.FromZigbee{fz.Battery, fz.PowerSource, outdoorSirenSettings("ssIasWd")},
		ToZigbee:    []*definition.ToZigbee{outdoorSiren, tz.Warning},
		Meta:        definition.Meta{Battery: &definition.BatteryMeta{VoltageToPercentage: &definition.VoltageRange{Min: 2500, Max: 4200}}},
		Configure:   configureOutdoorSiren,
		Exposes:     outdoorSirenExposes(),
		Extend: append([]definition.ModernExtend{
			extend.IASZoneAlarm(extend.IASZoneAlarmArgs{ZoneType: "alarm", ZoneAttributes: []string{"alarm_1", "tamper", "battery_low"}}),
			extend.QuirkCheckinInterval(0),
		}, outdoorSirenClusters()...),
	}

	waterAlarm := &definition.Definition{
		ZigbeeModel: []string{"RBSH-WS-ZB-EU"},
		Model:       "BWA-1",
		Vendor:      "Bosch",
		Description: "Smart water alarm",
		Extend: []definition.ModernExtend{
			extend.DeviceAddCustomCluster("boschSpecific", zcl.ClusterDef{
				ID:               0xfcac,
				ManufacturerCode: ManufacturerBosch,
				Attributes: []zcl.AttributeDef{
					{ID: 0x0003, Name: "alarmOnMotion", Type: zcl.TypeBool, Access: zcl.AccessRW},
				},
			}),
			extend.IASZoneAlarm(extend.IASZoneAlarmArgs{ZoneType: "water_leak", ZoneAttributes: []string{"alarm_1", "tamper"}}),
			extend.Battery(extend.BatteryArgs{Percentage: true, LowStatus: true}),
			extend.Binary(extend.BinaryArgs{
				Name:           "alarm_on_motion",
				Cluster:        "boschSpecific",
				Attribute:      "alarmOnMotion",
				Description:    "Toggle audible alarm on motion",
				ValueOn:        definition.LookupEntry{Key: "ON", Value: 0x01},
				ValueOff:       definition.LookupEntry{Key: "OFF", Value: 0x00},
				ZCLOptions:     boschOptions,
				EntityCategory: exposes.CategoryConfig,
			}),
			pollControl,
		},
		Configure: readAll(
			[2]string{"genPowerCfg", "batteryPercentageRemaining"},
			[2]string{"ssIasZone", "zoneStatus"},
			[2]string{"boschSpecific", "alarmOnMotion"},
		),
	}

	smoke := &definition.Definition{
		ZigbeeModel: []string{"RBSH-SD-ZB-EU"},
		Model:       "BSD-2",
		Vendor:      "Bosch",
		Description: "Smoke alarm II",
		Extend: []definition.ModernExtend{
			extend.DeviceAddCustomCluster("ssIasZone", zcl.ClusterDef{
				ID: clusters.IDIASZone,
				Commands: []zcl.CommandDef{
					{ID: 0x80, Name: "boschSmokeAlarmSiren", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeUint16}}},
				},
			}),
			smokeAlarm(),
			extend.Battery(extend.BatteryArgs{Percentage: true}),
			extend.EnumLookup(extend.EnumLookupArgs{
				Name:           "sensitivity",
				Cluster:        "ssIasZone",
				Attribute:      "currentZoneSensitivityLevel",
				Description:    "Sensitivity of the smoke detector",
				Lookup:         definition.Lookup{{Key: "low", Value: 0x00}, {Key: "medium", Value: 0x01}, {Key: "high", Value: 0x02}},
				EntityCategory: exposes.CategoryConfig,
			}),
			broadcastAlarm(),
			pollControl,
		},
		Configure: readAll(
			[2]string{"genPowerCfg", "batteryPercentageRemaining"},
			[2]string{"ssIasZone", "zoneStatus"},
			[2]string{"ssIasZone", "currentZoneSensitivityLevel"},
		),
	}

	radion := &definition.Definition{
		ZigbeeModel: []string{
			"RFDL-ZB", "RFDL-ZB-EU", "RFDL-ZB-H", "RFDL-ZB-K", "RFDL-ZB-CHI", "RFDL-ZB-MS", "RFDL-ZB-ES",
			"RFPR-ZB", "RFPR-ZB-EU", "RFPR-ZB-CHI", "RFPR-ZB-ES", "RFPR-ZB-MS",
		},
		Model:       "RADION TriTech ZB",
		Vendor:      "Bosch",
		Description: "Wireless motion detector",
		FromZigbee:  []*definition.FromZigbee{fz.Temperature, fz.Battery, fz.IASOccupancyAlarm1},
		Meta:        motionBattery,
		Configure:   configureMotionSensor(1),
		Exposes:     motionSensorExposes(),
		Extend:      []definition.ModernExtend{extend.Illuminance()},
	}

	motion := &definition.Definition{
		ZigbeeModel: []string{"ISW-ZPR1-WP13"},
		Model:       "ISW-ZPR1-WP13",
		Vendor:      "Bosch",
		Description: "Motion sensor",
		FromZigbee:  []*definition.FromZigbee{fz.Temperature, fz.Battery, fz.IASOccupancyAlarm1, fz.IgnoreIASZoneReport},
		Meta:        motionBattery,
		Configure:   configureMotionSensor(5),
		Exposes:     motionSensorExposes(),
	}

	shMotion := &definition.Definition{
		ZigbeeModel: []string{"RFPR-ZB-SH-EU"},
		Model:       "RFPR-ZB-SH-EU",
		Vendor:      "Bosch",
		Description: "Wireless motion detector",
		FromZigbee:  []*definition.FromZigbee{fz.Temperature, fz.Battery, fz.IASOccupancyAlarm1},
		Meta:        motionBattery,
		Configure:   configureMotionSensor(1),
		Exposes:     motionSensorExposes(),
	}

	contact := func(zigbeeModel []string, model, description string, vibration bool) *definition.Definition {
		return &definition.Definition{
			ZigbeeModel: zigbeeModel,
			Model:       model,
			Vendor:      "Bosch",
			Description: description,
			Extend: []definition.ModernExtend{
				doorWindowContact(vibration),
				extend.Battery(extend.BatteryArgs{Percentage: true, LowStatus: true}),
				pollControl,
			},
			Configure: readAll(
				[2]string{"genPowerCfg", "batteryPercentageRemaining"},
				[2]string{"ssIasZone", "zoneStatus"},
			),
		}
	}

	return []*definition.Definition{
		siren,
		waterAlarm,
		smoke,
		radion,
		motion,
		shMotion,
		contact([]string{"RBSH-SWD-ZB", "RBSH-SWD2-ZB"}, "BSEN-C2", "Door/window contact II", false),
		contact([]string{"RBSH-SWDV-ZB"}, "BSEN-CV", "Door/window contact II plus", true),
	}
}
