package clusters

import "zigbee-go-catalog/internal/zcl"

const (
	IDIASZone uint16 = 0x0500
	IDIASWD   uint16 = 0x0502
)

var IASZone = zcl.ClusterDef{
	ID:   IDIASZone,
	Name: "ssIasZone",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zoneState", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "zoneType", Type: zcl.TypeEnum16, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "zoneStatus", Type: zcl.TypeBitmap16, Access: zcl.AccessRP},
		{ID: 0x0010, Name: "iasCieAddr", Type: zcl.TypeEUI64, Access: zcl.AccessRW},
		{ID: 0x0011, Name: "zoneId", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0012, Name: "numZoneSensitivityLevelsSupported", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0013, Name: "currentZoneSensitivityLevel", Type: zcl.TypeUint8, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "enrollRsp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "enrollrspcode", Type: zcl.TypeUint8},
			{Name: "zoneid", Type: zcl.TypeUint8},
		}},
		{ID: 0x01, Name: "initNormalOpMode", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "initTestMode", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "testmodeduration", Type: zcl.TypeUint8},
			{Name: "currentZoneSensitivityLevel", Type: zcl.TypeUint8},
		}},
		{ID: 0x00, Name: "statusChangeNotification", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "zonestatus", Type: zcl.TypeBitmap16},
			{Name: "extendedstatus", Type: zcl.TypeUint8},
			{Name: "zoneID", Type: zcl.TypeUint8},
			{Name: "delay", Type: zcl.TypeUint16},
		}},
		{ID: 0x01, Name: "enrollReq", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "zonetype", Type: zcl.TypeUint16},
			{Name: "manucode", Type: zcl.TypeUint16},
		}},
	},
}

var IASWD = zcl.ClusterDef{
	ID:   IDIASWD,
	Name: "ssIasWd",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "maxDuration", Type: zcl.TypeUint16, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "startWarning", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "startwarninginfo", Type: zcl.TypeUint8},
			{Name: "warningduration", Type: zcl.TypeUint16},
			{Name: "strobedutycycle", Type: zcl.TypeUint8},
			{Name: "strobelevel", Type: zcl.TypeUint8},
		}},
		{ID: 0x01, Name: "squawk", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "squawkinfo", Type: zcl.TypeUint8},
		}},
	},
}
