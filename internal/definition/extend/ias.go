package extend

import (
	"context"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/exposes"
)

// IAS zone status bits.
var zoneStatusBits = map[string]uint{
	"alarm_1":             0,
	"alarm_2":             1,
	"tamper":              2,
	"battery_low":         3,
	"supervision_reports": 4,
	"restore_reports":     5,
	"trouble":             6,
	"ac_status":           7,
	"test":                8,
	"battery_defect":      9,
}

// alarmExposes maps a zone type to the expose used for alarm_1/alarm_2.
var alarmExposes = map[string]func() *exposes.Expose{
	"occupancy":       exposes.Occupancy,
	"contact":         exposes.Contact,
	"smoke":           exposes.Smoke,
	"water_leak":      exposes.WaterLeak,
	"vibration":       exposes.Vibration,
	"carbon_monoxide": func() *exposes.Expose { return exposes.Binary("carbon_monoxide", exposes.AccessState, true, false) },
	"alarm":           genericAlarm,
	"generic":         genericAlarm,
}

func genericAlarm() *exposes.Expose {
	return exposes.Binary("alarm", exposes.AccessState, true, false).
		WithDescription("Indicates whether the device detected an alarm")
}

type IASZoneAlarmArgs struct {
	// ZoneType is one of occupancy, contact, smoke, water_leak, vibration,
	// carbon_monoxide, alarm or generic.
	ZoneType string
	// ZoneAttributes are the zone status bits to publish, e.g. alarm_1,
	// tamper, battery_low.
	ZoneAttributes []string
	Description    string
}

func alarmName(zoneType string) string {
	if zoneType == "generic" || zoneType == "alarm" {
		return "alarm"
	}
	return zoneType
}

// IASZoneAlarm decodes ssIasZone status from notifications and attribute
// reports. Contact zones publish the inverse of alarm_1.
func IASZoneAlarm(args IASZoneAlarmArgs) definition.ModernExtend {
	newAlarm, ok := alarmExposes[args.ZoneType]
	if !ok {
		newAlarm = alarmExposes["generic"]
	}
	name := alarmName(args.ZoneType)

	var list []*exposes.Expose
	for _, attr := range args.ZoneAttributes {
		switch attr {
		case "alarm_1", "alarm_2":
			e := newAlarm()
			if attr == "alarm_2" || lo.Contains(args.ZoneAttributes, "alarm_2") {
				e = exposes.Binary(name+"_"+attr, exposes.AccessState, e.ValueOn, e.ValueOff).
					WithDescription(e.Description)
			}
			if args.Description != "" {
				e.WithDescription(args.Description)
			}
			list = append(list, e)
		case "tamper":
			list = append(list, exposes.Tamper())
		case "battery_low":
			list = append(list, exposes.BatteryLow())
		case "test":
			list = append(list, exposes.Test())
		default:
			list = append(list, exposes.Binary(attr, exposes.AccessState, true, false).
				WithCategory(exposes.CategoryDiagnostic))
		}
	}

	convert := func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ definition.Values, _ *definition.ConvertMeta) (definition.Values, error) {
		attr := "zoneStatus"
		if msg.Type == "commandStatusChangeNotification" {
			attr = "zonestatus"
		}
		status, ok := msg.Data.Uint(attr)
		if !ok {
			return nil, nil
		}
		result := definition.Values{}
		for _, a := range args.ZoneAttributes {
			bit, known := zoneStatusBits[a]
			if !known {
				continue
			}
			set := status&(1<<bit) != 0
			key := a
			if a == "alarm_1" || a == "alarm_2" {
				key = name
				if a == "alarm_2" || lo.Contains(args.ZoneAttributes, "alarm_2") {
					key = name + "_" + a
				}
				if args.ZoneType == "contact" {
					set = !set
				}
			}
			result[key] = set
		}
		return result, nil
	}

	return definition.ModernExtend{
		Exposes: list,
		FromZigbee: []*definition.FromZigbee{{
			Cluster: "ssIasZone",
			Types:   []string{"commandStatusChangeNotification", definition.MsgAttributeReport, definition.MsgReadResponse},
			Convert: convert,
		}},
	}
}
