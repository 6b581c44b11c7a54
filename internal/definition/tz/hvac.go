package tz

import (
	"context"
	"math"

	"zigbee-go-catalog/internal/definition"
)

var ThermostatSystemMode = &definition.ToZigbee{
	Keys:       []string{"system_mode"},
	ConvertSet: lookupWrite("hvacThermostat", "systemMode", definition.ThermostatSystemModes),
	ConvertGet: read("hvacThermostat", "systemMode"),
}

// setpoint writes a temperature in hundredths of a degree after rounding to
// half degrees. The device reports the accepted value back.
func setpoint(key, attr string) *definition.ToZigbee {
	return &definition.ToZigbee{
		Keys: []string{key},
		ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *TzMeta) (*TzResult, error) {
			v, err := definition.ToNumber(value, key)
			if err != nil {
				return nil, err
			}
			raw := math.Round(v*2) / 2 * 100
			return nil, ep.Write(ctx, "hvacThermostat", Values{attr: raw}, noOptions)
		},
		ConvertGet: read("hvacThermostat", attr),
	}
}

var (
	ThermostatOccupiedHeatingSetpoint   = setpoint("occupied_heating_setpoint", "occupiedHeatingSetpoint")
	ThermostatOccupiedCoolingSetpoint   = setpoint("occupied_cooling_setpoint", "occupiedCoolingSetpoint")
	ThermostatUnoccupiedHeatingSetpoint = setpoint("unoccupied_heating_setpoint", "unoccupiedHeatingSetpoint")
)

var ThermostatLocalTemperatureCalibration = &definition.ToZigbee{
	Keys: []string{"local_temperature_calibration"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *TzMeta) (*TzResult, error) {
		v, err := definition.ToNumber(value, key)
		if err != nil {
			return nil, err
		}
		if err := ep.Write(ctx, "hvacThermostat", Values{"localTemperatureCalibration": math.Round(v * 10)}, noOptions); err != nil {
			return nil, err
		}
		return result(key, v), nil
	},
	ConvertGet: read("hvacThermostat", "localTemperatureCalibration"),
}

var ThermostatLocalTemperature = &definition.ToZigbee{
	Keys:       []string{"local_temperature"},
	ConvertGet: read("hvacThermostat", "localTemp"),
}

var ThermostatTemperatureSetpointHold = &definition.ToZigbee{
	Keys: []string{"temperature_setpoint_hold"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *TzMeta) (*TzResult, error) {
		hold, err := definition.ToBool(value, key)
		if err != nil {
			return nil, err
		}
		raw := 0
		if hold {
			raw = 1
		}
		if err := ep.Write(ctx, "hvacThermostat", Values{"tempSetpointHold": raw}, noOptions); err != nil {
			return nil, err
		}
		return result(key, hold), nil
	},
	ConvertGet: read("hvacThermostat", "tempSetpointHold"),
}

var ThermostatTemperatureDisplayMode = &definition.ToZigbee{
	Keys:       []string{"temperature_display_mode"},
	ConvertSet: lookupWrite("hvacUserInterfaceCfg", "tempDisplayMode", definition.TemperatureDisplayModes),
	ConvertGet: read("hvacUserInterfaceCfg", "tempDisplayMode"),
}

var ThermostatRunningState = &definition.ToZigbee{
	Keys:       []string{"running_state"},
	ConvertGet: read("hvacThermostat", "runningState"),
}

var ThermostatProgrammingOperationMode = &definition.ToZigbee{
	Keys:       []string{"programming_operation_mode"},
	ConvertSet: lookupWrite("hvacThermostat", "programingOperMode", definition.ThermostatProgrammingOperationModes),
	ConvertGet: read("hvacThermostat", "programingOperMode"),
}

var ThermostatKeypadLockout = &definition.ToZigbee{
	Keys:       []string{"keypad_lockout"},
	ConvertSet: lookupWrite("hvacUserInterfaceCfg", "keypadLockout", definition.KeypadLockoutModes),
	ConvertGet: read("hvacUserInterfaceCfg", "keypadLockout"),
}
