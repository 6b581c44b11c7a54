package fz

import (
	"context"

	"zigbee-go-catalog/internal/definition"
)

var thermostatTemperatures = []struct{ attr, key string }{
	{"localTemp", "local_temperature"},
	{"outdoorTemp", "outdoor_temperature"},
	{"occupiedHeatingSetpoint", "occupied_heating_setpoint"},
	{"occupiedCoolingSetpoint", "occupied_cooling_setpoint"},
	{"unoccupiedHeatingSetpoint", "unoccupied_heating_setpoint"},
	{"unoccupiedCoolingSetpoint", "unoccupied_cooling_setpoint"},
	{"minHeatSetpointLimit", "min_heat_setpoint_limit"},
	{"maxHeatSetpointLimit", "max_heat_setpoint_limit"},
	{"minCoolSetpointLimit", "min_cool_setpoint_limit"},
	{"maxCoolSetpointLimit", "max_cool_setpoint_limit"},
	{"absMinHeatSetpointLimit", "abs_min_heat_setpoint_limit"},
	{"absMaxHeatSetpointLimit", "abs_max_heat_setpoint_limit"},
	{"absMinCoolSetpointLimit", "abs_min_cool_setpoint_limit"},
	{"absMaxCoolSetpointLimit", "abs_max_cool_setpoint_limit"},
	{"setpointChangeAmount", "setpoint_change_amount"},
}

var thermostatEnums = []struct {
	attr, key string
	lookup    definition.Lookup
}{
	{"systemMode", "system_mode", definition.ThermostatSystemModes},
	{"runningMode", "running_mode", definition.ThermostatSystemModes},
	{"programingOperMode", "programming_operation_mode", definition.ThermostatProgrammingOperationModes},
	{"ctrlSeqeOfOper", "control_sequence_of_operation", definition.ThermostatControlSequences},
	{"setpointChangeSource", "setpoint_change_source", definition.SetpointChangeSources},
}

// Thermostat converts the standard hvacThermostat attributes. Temperatures
// are in hundredths of a degree on the wire, the calibration in tenths.
var Thermostat = &definition.FromZigbee{
	Cluster: "hvacThermostat",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		set := func(key string, v any) { result[postfix(key, msg, def)] = v }

		for _, t := range thermostatTemperatures {
			if v, ok := msg.Data.Number(t.attr); ok && v != -32768 {
				set(t.key, definition.PrecisionRound(v/100, 2))
			}
		}
		for _, e := range thermostatEnums {
			if raw, ok := msg.Data[e.attr]; ok {
				if name, ok := e.lookup.Key(raw); ok {
					set(e.key, name)
				}
			}
		}
		if v, ok := msg.Data.Number("localTemperatureCalibration"); ok {
			set("local_temperature_calibration", definition.PrecisionRound(v/10, 1))
		}
		if v, ok := msg.Data.Uint("occupancy"); ok {
			set("occupancy", v&1 != 0)
		}
		if v, ok := msg.Data.Number("pIHeatingDemand"); ok {
			set("pi_heating_demand", definition.PrecisionRound(v, 0))
		}
		if v, ok := msg.Data.Number("pICoolingDemand"); ok {
			set("pi_cooling_demand", definition.PrecisionRound(v, 0))
		}
		if v, ok := msg.Data.Uint("runningState"); ok {
			set("running_state", definition.ThermostatRunningState(v))
		}
		if v, ok := msg.Data.Uint("tempSetpointHold"); ok {
			set("temperature_setpoint_hold", v == 1)
		}
		if v, ok := msg.Data.Number("tempSetpointHoldDuration"); ok {
			set("temperature_setpoint_hold_duration", v)
		}
		return result, nil
	},
}

var HvacUserInterface = &definition.FromZigbee{
	Cluster: "hvacUserInterfaceCfg",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		if raw, ok := msg.Data["keypadLockout"]; ok {
			if name, ok := definition.KeypadLockoutModes.Key(raw); ok {
				result[postfix("keypad_lockout", msg, def)] = name
			}
		}
		if raw, ok := msg.Data["tempDisplayMode"]; ok {
			if name, ok := definition.TemperatureDisplayModes.Key(raw); ok {
				result[postfix("temperature_display_mode", msg, def)] = name
			}
		}
		return result, nil
	},
}
