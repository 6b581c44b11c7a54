package clusters

import "zigbee-go-catalog/internal/zcl"

const (
	IDIlluminance uint16 = 0x0400
	IDTemperature uint16 = 0x0402
	IDHumidity    uint16 = 0x0405
	IDOccupancy   uint16 = 0x0406
)

func measured(id uint16, name string, typ uint8) zcl.ClusterDef {
	return zcl.ClusterDef{
		ID:   id,
		Name: name,
		Attributes: []zcl.AttributeDef{
			{ID: 0x0000, Name: "measuredValue", Type: typ, Access: zcl.AccessRP},
			{ID: 0x0001, Name: "minMeasuredValue", Type: typ, Access: zcl.AccessRead},
			{ID: 0x0002, Name: "maxMeasuredValue", Type: typ, Access: zcl.AccessRead},
			{ID: 0x0003, Name: "tolerance", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		},
	}
}

var (
	Illuminance = func() zcl.ClusterDef {
		c := measured(IDIlluminance, "msIlluminanceMeasurement", zcl.TypeUint16)
		c.Attributes = append(c.Attributes, zcl.AttributeDef{ID: 0x0004, Name: "lightSensorType", Type: zcl.TypeEnum8, Access: zcl.AccessRead})
		return c
	}()
	Temperature = measured(IDTemperature, "msTemperatureMeasurement", zcl.TypeInt16)
	Humidity    = measured(IDHumidity, "msRelativeHumidity", zcl.TypeUint16)
)

var Occupancy = zcl.ClusterDef{
	ID:   IDOccupancy,
	Name: "msOccupancySensing",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "occupancy", Type: zcl.TypeBitmap8, Access: zcl.AccessRP},
		{ID: 0x0001, Name: "occupancySensorType", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0010, Name: "pirOToUDelay", Type: zcl.TypeUint16, Access: zcl.AccessRW},
	},
}
