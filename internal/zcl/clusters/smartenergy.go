package clusters

import "zigbee-go-catalog/internal/zcl"

const (
	IDMetering              uint16 = 0x0702
	IDElectricalMeasurement uint16 = 0x0B04
)

// ManufacturerMeazon is the manufacturer code Meazon meters expect on their
// vendor metering attributes.
const ManufacturerMeazon uint16 = 0x1136

var Metering = zcl.ClusterDef{
	ID:   IDMetering,
	Name: "seMetering",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentSummDelivered", Type: zcl.TypeUint48, Access: zcl.AccessRP},
		{ID: 0x0001, Name: "currentSummReceived", Type: zcl.TypeUint48, Access: zcl.AccessRead},
		{ID: 0x0200, Name: "status", Type: zcl.TypeBitmap8, Access: zcl.AccessRead},
		{ID: 0x0300, Name: "unitOfMeasure", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0301, Name: "multiplier", Type: zcl.TypeUint24, Access: zcl.AccessRead},
		{ID: 0x0302, Name: "divisor", Type: zcl.TypeUint24, Access: zcl.AccessRead},
		{ID: 0x0303, Name: "summaFormatting", Type: zcl.TypeBitmap8, Access: zcl.AccessRead},
		{ID: 0x0306, Name: "meteringDeviceType", Type: zcl.TypeBitmap8, Access: zcl.AccessRead},
		{ID: 0x0400, Name: "instantaneousDemand", Type: zcl.TypeInt24, Access: zcl.AccessRP},
	},
}

// MeazonMetering holds the vendor attributes Meazon meters add to
// seMetering. The configuration word at 0x1005 switches the meter into
// reporting mode; the measurement attributes are reported as singles
// except the line frequency, which is configured as int16.
var MeazonMetering = zcl.ClusterDef{
	ID: IDMetering,
	Attributes: []zcl.AttributeDef{
		{ID: 0x1005, Name: "meazonConfiguration", Type: zcl.TypeBitmap16, Access: zcl.AccessRW, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2000, Name: "meazonLineFrequency", Type: zcl.TypeInt16, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2001, Name: "meazonPower", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2004, Name: "meazonVoltage", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2007, Name: "meazonCurrent", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x200A, Name: "meazonReactivePower", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2015, Name: "meazonVoltageRMS", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x2018, Name: "meazonCurrentRMS", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x3000, Name: "meazonEnergyConsumed", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x3003, Name: "meazonEnergyProduced", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x3006, Name: "meazonReactiveSummation", Type: zcl.TypeFloat32, Access: zcl.AccessRP, ManufacturerCode: ManufacturerMeazon},
		{ID: 0x4018, Name: "meazonMeasureSerial", Type: zcl.TypeFloat32, Access: zcl.AccessRead, ManufacturerCode: ManufacturerMeazon},
	},
}

var ElectricalMeasurement = zcl.ClusterDef{
	ID:   IDElectricalMeasurement,
	Name: "haElectricalMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measurementType", Type: zcl.TypeBitmap32, Access: zcl.AccessRead},
		{ID: 0x0300, Name: "acFrequency", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0505, Name: "rmsVoltage", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0508, Name: "rmsCurrent", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x050B, Name: "activePower", Type: zcl.TypeInt16, Access: zcl.AccessRP},
		{ID: 0x050E, Name: "reactivePower", Type: zcl.TypeInt16, Access: zcl.AccessRP},
		{ID: 0x050F, Name: "apparentPower", Type: zcl.TypeUint16, Access: zcl.AccessRP},
		{ID: 0x0510, Name: "powerFactor", Type: zcl.TypeInt8, Access: zcl.AccessRP},
		{ID: 0x0600, Name: "acVoltageMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0601, Name: "acVoltageDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0602, Name: "acCurrentMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0603, Name: "acCurrentDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0604, Name: "acPowerMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0605, Name: "acPowerDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
	},
}
