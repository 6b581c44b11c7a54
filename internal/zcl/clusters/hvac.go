package clusters

import "zigbee-go-catalog/internal/zcl"

const (
	IDWindowCovering  uint16 = 0x0102
	IDThermostat      uint16 = 0x0201
	IDThermostatUICfg uint16 = 0x0204
	IDColorCtrl       uint16 = 0x0300
)

var WindowCovering = zcl.ClusterDef{
	ID:   IDWindowCovering,
	Name: "closuresWindowCovering",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "windowCoveringType", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "configStatus", Type: zcl.TypeBitmap8, Access: zcl.AccessRead},
		{ID: 0x0008, Name: "currentPositionLiftPercentage", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0009, Name: "currentPositionTiltPercentage", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0017, Name: "windowCoveringMode", Type: zcl.TypeBitmap8, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "upOpen", Direction: zcl.DirectionToServer},
		{ID: 0x01, Name: "downClose", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "stop", Direction: zcl.DirectionToServer},
		{ID: 0x04, Name: "goToLiftValue", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "liftvalue", Type: zcl.TypeUint16},
		}},
		{ID: 0x05, Name: "goToLiftPercentage", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "percentageliftvalue", Type: zcl.TypeUint8},
		}},
		{ID: 0x08, Name: "goToTiltPercentage", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "percentagetiltvalue", Type: zcl.TypeUint8},
		}},
	},
}

var Thermostat = zcl.ClusterDef{
	ID:   IDThermostat,
	Name: "hvacThermostat",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "localTemp", Type: zcl.TypeInt16, Access: zcl.AccessRP},
		{ID: 0x0001, Name: "outdoorTemp", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "occupancy", Type: zcl.TypeBitmap8, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "absMinHeatSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0004, Name: "absMaxHeatSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0005, Name: "absMinCoolSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0006, Name: "absMaxCoolSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "pICoolingDemand", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0008, Name: "pIHeatingDemand", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0010, Name: "localTemperatureCalibration", Type: zcl.TypeInt8, Access: zcl.AccessRW},
		{ID: 0x0011, Name: "occupiedCoolingSetpoint", Type: zcl.TypeInt16, Access: zcl.AccessRWP},
		{ID: 0x0012, Name: "occupiedHeatingSetpoint", Type: zcl.TypeInt16, Access: zcl.AccessRWP},
		{ID: 0x0013, Name: "unoccupiedCoolingSetpoint", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x0014, Name: "unoccupiedHeatingSetpoint", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x0015, Name: "minHeatSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x0016, Name: "maxHeatSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x0017, Name: "minCoolSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x0018, Name: "maxCoolSetpointLimit", Type: zcl.TypeInt16, Access: zcl.AccessRW},
		{ID: 0x001B, Name: "ctrlSeqeOfOper", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
		{ID: 0x001C, Name: "systemMode", Type: zcl.TypeEnum8, Access: zcl.AccessRWP},
		{ID: 0x001E, Name: "runningMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0023, Name: "tempSetpointHold", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
		{ID: 0x0024, Name: "tempSetpointHoldDuration", Type: zcl.TypeUint16, Access: zcl.AccessRW},
		{ID: 0x0025, Name: "programingOperMode", Type: zcl.TypeBitmap8, Access: zcl.AccessRW},
		{ID: 0x0029, Name: "runningState", Type: zcl.TypeBitmap16, Access: zcl.AccessRP},
		{ID: 0x0030, Name: "setpointChangeSource", Type: zcl.TypeEnum8, Access: zcl.AccessRP},
		{ID: 0x0031, Name: "setpointChangeAmount", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0032, Name: "setpointChangeSourceTimeStamp", Type: zcl.TypeUTC, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "setpointRaiseLower", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "mode", Type: zcl.TypeUint8},
			{Name: "amount", Type: zcl.TypeInt8},
		}},
		{ID: 0x03, Name: "clearWeeklySchedule", Direction: zcl.DirectionToServer},
	},
}

var ThermostatUICfg = zcl.ClusterDef{
	ID:   IDThermostatUICfg,
	Name: "hvacUserInterfaceCfg",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "tempDisplayMode", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
		{ID: 0x0001, Name: "keypadLockout", Type: zcl.TypeEnum8, Access: zcl.AccessRWP},
		{ID: 0x0002, Name: "programmingVisibility", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
	},
}

var ColorCtrl = zcl.ClusterDef{
	ID:   IDColorCtrl,
	Name: "lightingColorCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentHue", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0001, Name: "currentSaturation", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0003, Name: "currentX", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0004, Name: "currentY", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0007, Name: "colorTemperature", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0008, Name: "colorMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x400A, Name: "colorCapabilities", Type: zcl.TypeBitmap16, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x07, Name: "moveToColor", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "colorx", Type: zcl.TypeUint16},
			{Name: "colory", Type: zcl.TypeUint16},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x0A, Name: "moveToColorTemp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "colortemp", Type: zcl.TypeUint16},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
	},
}
