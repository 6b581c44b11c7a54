package clusters

import "zigbee-go-catalog/internal/zcl"

const (
	IDBasic       uint16 = 0x0000
	IDPowerConfig uint16 = 0x0001
	IDIdentify    uint16 = 0x0003
	IDOnOff       uint16 = 0x0006
	IDLevelCtrl   uint16 = 0x0008
	IDAlarms      uint16 = 0x0009
	IDTime        uint16 = 0x000A
	IDOTA         uint16 = 0x0019
	IDPollCtrl    uint16 = 0x0020
)

var Basic = zcl.ClusterDef{
	ID:   IDBasic,
	Name: "genBasic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zclVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "appVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "stackVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "hwVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0004, Name: "manufacturerName", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0005, Name: "modelId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0006, Name: "dateCode", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "powerSource", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x4000, Name: "swBuildId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "resetFactDefault", Direction: zcl.DirectionToServer},
	},
}

var PowerConfig = zcl.ClusterDef{
	ID:   IDPowerConfig,
	Name: "genPowerCfg",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "mainsVoltage", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0020, Name: "batteryVoltage", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0021, Name: "batteryPercentageRemaining", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0031, Name: "batterySize", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
		{ID: 0x0033, Name: "batteryQuantity", Type: zcl.TypeUint8, Access: zcl.AccessRW},
		{ID: 0x0034, Name: "batteryRatedVoltage", Type: zcl.TypeUint8, Access: zcl.AccessRW},
		{ID: 0x0035, Name: "batteryAlarmMask", Type: zcl.TypeBitmap8, Access: zcl.AccessRW},
		{ID: 0x0036, Name: "batteryVoltMinThres", Type: zcl.TypeUint8, Access: zcl.AccessRW},
		{ID: 0x003E, Name: "batteryAlarmState", Type: zcl.TypeBitmap32, Access: zcl.AccessRP},
	},
}

var Identify = zcl.ClusterDef{
	ID:   IDIdentify,
	Name: "genIdentify",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "identifyTime", Type: zcl.TypeUint16, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "identify", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "identifytime", Type: zcl.TypeUint16},
		}},
		{ID: 0x01, Name: "identifyQuery", Direction: zcl.DirectionToServer},
		{ID: 0x40, Name: "triggerEffect", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "effectid", Type: zcl.TypeUint8},
			{Name: "effectvariant", Type: zcl.TypeUint8},
		}},
		{ID: 0x00, Name: "identifyQueryRsp", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "timeout", Type: zcl.TypeUint16},
		}},
	},
}

var OnOff = zcl.ClusterDef{
	ID:   IDOnOff,
	Name: "genOnOff",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "onOff", Type: zcl.TypeBool, Access: zcl.AccessRP},
		{ID: 0x4000, Name: "globalSceneCtrl", Type: zcl.TypeBool, Access: zcl.AccessRead},
		{ID: 0x4001, Name: "onTime", Type: zcl.TypeUint16, Access: zcl.AccessRW},
		{ID: 0x4002, Name: "offWaitTime", Type: zcl.TypeUint16, Access: zcl.AccessRW},
		{ID: 0x4003, Name: "startUpOnOff", Type: zcl.TypeEnum8, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "off", Direction: zcl.DirectionToServer},
		{ID: 0x01, Name: "on", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "toggle", Direction: zcl.DirectionToServer},
		{ID: 0x40, Name: "offWithEffect", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "effectid", Type: zcl.TypeUint8},
			{Name: "effectvariant", Type: zcl.TypeUint8},
		}},
		{ID: 0x41, Name: "onWithRecallGlobalScene", Direction: zcl.DirectionToServer},
		{ID: 0x42, Name: "onWithTimedOff", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "ctrlbits", Type: zcl.TypeUint8},
			{Name: "ontime", Type: zcl.TypeUint16},
			{Name: "offwaittime", Type: zcl.TypeUint16},
		}},
	},
}

var LevelCtrl = zcl.ClusterDef{
	ID:   IDLevelCtrl,
	Name: "genLevelCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRP},
		{ID: 0x0001, Name: "remainingTime", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0010, Name: "onOffTransitionTime", Type: zcl.TypeUint16, Access: zcl.AccessRW},
		{ID: 0x0011, Name: "onLevel", Type: zcl.TypeUint8, Access: zcl.AccessRW},
		{ID: 0x4000, Name: "startUpCurrentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "moveToLevel", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x01, Name: "move", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "movemode", Type: zcl.TypeUint8},
			{Name: "rate", Type: zcl.TypeUint8},
		}},
		{ID: 0x02, Name: "step", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "stepmode", Type: zcl.TypeUint8},
			{Name: "stepsize", Type: zcl.TypeUint8},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x03, Name: "stop", Direction: zcl.DirectionToServer},
		{ID: 0x04, Name: "moveToLevelWithOnOff", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x05, Name: "moveWithOnOff", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "movemode", Type: zcl.TypeUint8},
			{Name: "rate", Type: zcl.TypeUint8},
		}},
		{ID: 0x07, Name: "stopWithOnOff", Direction: zcl.DirectionToServer},
	},
}

var Alarms = zcl.ClusterDef{
	ID:   IDAlarms,
	Name: "genAlarms",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "alarmCount", Type: zcl.TypeUint16, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "resetAlarm", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "alarmcode", Type: zcl.TypeUint8},
			{Name: "clusterid", Type: zcl.TypeUint16},
		}},
		{ID: 0x01, Name: "resetAll", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "getAlarm", Direction: zcl.DirectionToServer},
		{ID: 0x03, Name: "resetLog", Direction: zcl.DirectionToServer},
		{ID: 0x00, Name: "alarm", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "alarmcode", Type: zcl.TypeUint8},
			{Name: "clusterid", Type: zcl.TypeUint16},
		}},
	},
}

var Time = zcl.ClusterDef{
	ID:   IDTime,
	Name: "genTime",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "time", Type: zcl.TypeUTC, Access: zcl.AccessRW},
		{ID: 0x0001, Name: "timeStatus", Type: zcl.TypeBitmap8, Access: zcl.AccessRW},
		{ID: 0x0002, Name: "timeZone", Type: zcl.TypeInt32, Access: zcl.AccessRW},
		{ID: 0x0003, Name: "dstStart", Type: zcl.TypeUint32, Access: zcl.AccessRW},
		{ID: 0x0004, Name: "dstEnd", Type: zcl.TypeUint32, Access: zcl.AccessRW},
		{ID: 0x0005, Name: "dstShift", Type: zcl.TypeInt32, Access: zcl.AccessRW},
		{ID: 0x0006, Name: "standardTime", Type: zcl.TypeUint32, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "localTime", Type: zcl.TypeUint32, Access: zcl.AccessRead},
		{ID: 0x0008, Name: "lastSetTime", Type: zcl.TypeUTC, Access: zcl.AccessRead},
		{ID: 0x0009, Name: "validUntilTime", Type: zcl.TypeUTC, Access: zcl.AccessRW},
	},
}

var OTA = zcl.ClusterDef{
	ID:   IDOTA,
	Name: "genOta",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "upgradeServerId", Type: zcl.TypeEUI64, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "fileOffset", Type: zcl.TypeUint32, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "currentFileVersion", Type: zcl.TypeUint32, Access: zcl.AccessRead},
		{ID: 0x0006, Name: "imageUpgradeStatus", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x01, Name: "queryNextImageRequest", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "fieldControl", Type: zcl.TypeUint8},
			{Name: "manufacturerCode", Type: zcl.TypeUint16},
			{Name: "imageType", Type: zcl.TypeUint16},
			{Name: "fileVersion", Type: zcl.TypeUint32},
		}},
		{ID: 0x00, Name: "imageNotify", Direction: zcl.DirectionToClient},
		{ID: 0x02, Name: "queryNextImageResponse", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "status", Type: zcl.TypeUint8},
		}},
	},
}

var PollCtrl = zcl.ClusterDef{
	ID:   IDPollCtrl,
	Name: "genPollCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "checkinInterval", Type: zcl.TypeUint32, Access: zcl.AccessRW},
		{ID: 0x0001, Name: "longPollInterval", Type: zcl.TypeUint32, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "shortPollInterval", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "fastPollTimeout", Type: zcl.TypeUint16, Access: zcl.AccessRW},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "checkinRsp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "startFastPolling", Type: zcl.TypeBool},
			{Name: "fastPollTimeout", Type: zcl.TypeUint16},
		}},
		{ID: 0x01, Name: "fastPollStop", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "setLongPollInterval", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "newLongPollInterval", Type: zcl.TypeUint32},
		}},
		{ID: 0x00, Name: "checkin", Direction: zcl.DirectionToClient},
	},
}
