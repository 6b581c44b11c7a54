package devices

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/definitiontest"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

func model(t *testing.T, name string) *definition.Definition {
	t.Helper()
	def, ok := lo.Find(append(Bosch(), Meazon()...), func(d *definition.Definition) bool { return d.Model == name })
	require.True(t, ok, name)
	require.NoError(t, def.Finalize())
	require.NoError(t, def.Validate())
	return def
}

// convert runs every converter of def matching msg and merges the results.
func convert(t *testing.T, def *definition.Definition, msg *definition.Message, options Values, meta *definition.ConvertMeta) Values {
	t.Helper()
	out := Values{}
	for _, c := range def.FromZigbeeFor(msg.Type, msg.Cluster) {
		v, err := c.Convert(context.Background(), def, msg, nil, options, meta)
		require.NoError(t, err)
		out.Merge(v)
	}
	return out
}

func set(t *testing.T, def *definition.Definition, ep Endpoint, dev Device, key string, value any, state Values) (*definition.TzResult, error) {
	t.Helper()
	c := def.ToZigbeeFor(key, false)
	require.NotNil(t, c, key)
	meta := &definition.TzMeta{Message: Values{key: value}, Device: dev, Definition: def, State: state}
	return c.ConvertSet(context.Background(), ep, key, value, meta)
}

func newDevice(ieee, modelID string, ids ...uint8) *definitiontest.Device {
	eps := make([]*definitiontest.Endpoint, len(ids))
	for i, id := range ids {
		eps[i] = &definitiontest.Endpoint{EP: id}
	}
	definition.ClearDevice(ieee)
	return definitiontest.NewDevice(ieee, modelID, eps...)
}

func TestTwinguardMeasurements(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000001", "Champion", 1, 3, 7, 12)

	msg := &definition.Message{
		Type:     definition.MsgAttributeReport,
		Cluster:  "twinguardMeasurements",
		Endpoint: dev.Endpoint(3),
		Data: Values{
			"humidity":    uint64(4500),
			"airpurity":   uint64(120),
			"temperature": int64(2150),
			"illuminance": uint64(101),
			"battery":     uint64(200),
		},
	}
	assert.Equal(t, Values{
		"humidity":    45.0,
		"aqi":         120.0,
		"voc":         2400.0,
		"co2":         880.0,
		"temperature": 21.5,
		"illuminance": 50.5,
		"battery":     100.0,
	}, convert(t, def, msg, nil, nil))

	msg.Data = Values{"humidity": uint64(12000)}
	assert.Empty(t, convert(t, def, msg, nil, nil))
}

func TestAirQualityFactors(t *testing.T) {
	tests := []struct {
		aqi      float64
		voc, co2 float64
	}{
		{0, 6, 2},
		{50, 6, 2},
		{51, 10, 4},
		{150, 20, 4},
		{200, 50, 4},
		{201, 100, 4},
	}
	for _, tt := range tests {
		voc, co2 := airQualityFactors(tt.aqi)
		assert.Equal(t, tt.voc, voc, "aqi %v", tt.aqi)
		assert.Equal(t, tt.co2, co2, "aqi %v", tt.aqi)
	}
}

func TestTwinguardAlarmStatus(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000002", "Champion", 1, 3, 7, 12)

	msg := &definition.Message{
		Type:     definition.MsgReadResponse,
		Cluster:  "twinguardAlarm",
		Endpoint: dev.Endpoint(12),
		Data:     Values{"alarm_status": uint64(0x01200020)},
	}
	assert.Equal(t, Values{"self_test": true, "smoke": false, "siren_state": "self_test"}, convert(t, def, msg, nil, nil))

	msg.Data = Values{"alarm_status": uint64(0x00200081)}
	assert.Equal(t, Values{"self_test": false, "smoke": true, "siren_state": "fire"}, convert(t, def, msg, nil, nil))
}

func TestTwinguardSensitivityRoundTrip(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000007", "Champion", 1, 3, 7, 12)

	msg := &definition.Message{
		Type:     definition.MsgAttributeReport,
		Cluster:  "twinguardSmokeDetector",
		Endpoint: dev.Endpoint(1),
		Data:     Values{"sensitivity": uint64(2)},
	}
	assert.Equal(t, Values{"sensitivity": "medium"}, convert(t, def, msg, nil, nil))

	for _, level := range []string{"low", "medium", "high"} {
		dev.Reset()
		res, err := set(t, def, dev.Endpoint(1), dev, "sensitivity", level, nil)
		require.NoError(t, err)
		assert.Equal(t, Values{"sensitivity": level}, res.State)

		writes := dev.CallsOf(definitiontest.KindWrite)
		require.Len(t, writes, 1)
		msg.Data = Values{"sensitivity": writes[0].Values["sensitivity"]}
		assert.Equal(t, Values{"sensitivity": level}, convert(t, def, msg, nil, nil), "read back %s", level)
	}
}

func TestTwinguardAcknowledgesFireAlarm(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000003", "Champion", 1, 3, 7, 12)

	msg := &definition.Message{
		Type:     "commandAlarm",
		Cluster:  "genAlarms",
		Endpoint: dev.Endpoint(1),
		Data:     Values{"alarmcode": uint64(0x10), "clusterid": uint64(0xe000)},
	}
	assert.Equal(t, Values{"siren_state": "fire"}, convert(t, def, msg, nil, nil))
	responses := dev.CallsOf(definitiontest.KindCommandResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "alarm", responses[0].Command)
	assert.Equal(t, 0xe000, responses[0].Values["clusterid"])

	dev.Reset()
	msg.Data = Values{"alarmcode": uint64(0x16)}
	assert.Equal(t, Values{"siren_state": "silenced"}, convert(t, def, msg, nil, nil))
	assert.Empty(t, dev.CallsOf(definitiontest.KindCommandResponse))
}

func TestTwinguardAlarmStop(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000004", "Champion", 1, 3, 7, 12)

	res, err := set(t, def, dev.Endpoint(1), dev, "alarm", "stop", nil)
	require.NoError(t, err)
	assert.Nil(t, res, "stop leaves the siren state to the device report")

	responses := dev.CallsOf(definitiontest.KindCommandResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, 0x16, responses[0].Values["alarmcode"])
	assert.Equal(t, 0x14, responses[1].Values["alarmcode"])

	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, uint8(12), commands[0].Endpoint)
	assert.Equal(t, "burglarAlarm", commands[0].Command)
	assert.Equal(t, ManufacturerBosch, commands[0].Options.ManufacturerCode)

	_, err = set(t, def, dev.Endpoint(1), dev, "alarm", "panic", nil)
	assert.Error(t, err)
}

func TestTwinguardAlarmStates(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000006", "Champion", 1, 3, 7, 12)

	res, err := set(t, def, dev.Endpoint(1), dev, "alarm", "fire", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, Values{"siren_state": "fire"}, res.State)
	responses := dev.CallsOf(definitiontest.KindCommandResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, 0x10, responses[0].Values["alarmcode"])

	dev.Reset()
	res, err = set(t, def, dev.Endpoint(1), dev, "alarm", "pre_alarm", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, Values{"siren_state": "pre_alarm"}, res.State)

	dev.Reset()
	res, err = set(t, def, dev.Endpoint(1), dev, "alarm", "burglar", nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, Values{"data": 0x01}, commands[0].Values)
}

func TestTwinguardConfigure(t *testing.T) {
	def := model(t, "8750001213")
	dev := newDevice("0x0000000000000005", "Champion", 1, 3, 7, 12)

	require.NoError(t, def.RunConfigure(context.Background(), dev))
	binds := lo.Map(dev.CallsOf(definitiontest.KindBind), func(c definitiontest.Call, _ int) string { return c.Cluster })
	assert.Equal(t, []string{"genPollCtrl", "genAlarms", "twinguardSmokeDetector", "twinguardOptions", "twinguardMeasurements", "twinguardSetup", "twinguardAlarm"}, binds)

	writes := dev.CallsOf(definitiontest.KindWrite)
	require.Len(t, writes, 3)
	assert.Equal(t, Values{"heartbeat": 0x01}, writes[2].Values)
	assert.Equal(t, uint8(12), writes[2].Endpoint)
}

func pressFrame(seq, button, longPress uint8, duration uint16) []byte {
	return []byte{0x05, 0x09, 0x12, seq, button, longPress, byte(duration), byte(duration >> 8)}
}

func TestUniversalSwitchButtonPress(t *testing.T) {
	def := model(t, "BHI-US")
	dev := newDevice("0x0000000000000006", "RBSH-US4BTN-ZB-EU", 1)
	press := func(frame []byte) Values {
		msg := &definition.Message{Type: definition.MsgRaw, Cluster: "boschSpecific", Endpoint: dev.Endpoint(1), Raw: frame}
		return convert(t, def, msg, Values{}, &definition.ConvertMeta{})
	}

	assert.Equal(t, Values{"action": "button_top_right_release"}, press(pressFrame(1, 1, 0, 0)))
	confirm := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, confirm, 1)
	assert.Equal(t, "confirmButtonPressed", confirm[0].Command)
	assert.Equal(t, []byte{0x30, 0xff, 0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0x01}, confirm[0].Values["data"])

	assert.Empty(t, press(pressFrame(1, 1, 0, 0)), "retransmission")

	assert.Equal(t, Values{"action": "button_bottom_left_longpress"}, press(pressFrame(2, 2, 1, 5)))
	assert.Empty(t, press(pressFrame(3, 2, 1, 10)), "still held")
	assert.Equal(t, Values{"action": "button_bottom_left_longpress_release"}, press(pressFrame(4, 2, 1, 0)))
	assert.Len(t, dev.CallsOf(definitiontest.KindCommand), 2)

	assert.Empty(t, press(pressFrame(5, 9, 0, 0)), "unknown button")
}

func TestLEDResponseOption(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0x14, 0x93, 0x00, 0x01, 0x04, 0x01, 0x00, 0x01}, ledResponse(Values{"led_response": "ff1493000104010001"}, nil))
	assert.Equal(t, byte(0x30), ledResponse(Values{"led_response": "ff14"}, nil)[0])
	assert.Equal(t, byte(0x30), ledResponse(nil, nil)[0])
}

func TestUniversalSwitchLEDConfig(t *testing.T) {
	def := model(t, "BHI-US")
	dev := newDevice("0x0000000000000007", "RBSH-US4BTN-ZB-EU", 1)

	_, err := set(t, def, dev.Endpoint(1), dev, "config_led_top_left_press", "ff14", nil)
	require.ErrorContains(t, err, "invalid configuration length: 2")

	res, err := set(t, def, dev.Endpoint(1), dev, "config_led_bottom_right_longpress", "ff4200000502050001", nil)
	require.NoError(t, err)
	assert.Equal(t, "ff4200000502050001", res.State["config_led_bottom_right_longpress"])
	writes := dev.CallsOf(definitiontest.KindWriteTyped)
	require.Len(t, writes, 1)
	assert.Equal(t, uint16(0x23), writes[0].Records[0].ID)
	assert.Equal(t, zcl.TypeOctetStr, writes[0].Records[0].Type)

	msg := &definition.Message{
		Type:     definition.MsgReadResponse,
		Cluster:  "boschSpecific",
		Endpoint: dev.Endpoint(1),
		Data:     Values{"config_led_top_left_press": []byte{0xff, 0x00}},
	}
	assert.Equal(t, Values{"config_led_top_left_press": "ff00"}, convert(t, def, msg, nil, nil))
}

func TestShutterControlDeviceMode(t *testing.T) {
	def := model(t, "BMCT-SLZ")
	dev := newDevice("0x0000000000000008", "RBSH-MMS-ZB-EU", 1, 2, 3)

	changed := 0
	meta := &definition.ConvertMeta{DeviceExposesChanged: func() { changed++ }}
	msg := &definition.Message{
		Type:     definition.MsgReadResponse,
		Cluster:  "boschSpecific",
		Endpoint: dev.Endpoint(1),
		Device:   dev,
		Data:     Values{"deviceMode": uint64(0x04), "calibrationOpeningTime": uint64(250)},
	}
	out := convert(t, def, msg, nil, meta)
	assert.Equal(t, "light", out["device_mode"])
	assert.Equal(t, 25.0, out["calibration_opening_time"])
	assert.Equal(t, 1, changed)
	assert.Equal(t, int64(4), dev.MetaSnapshot()["deviceMode"])

	convert(t, def, msg, nil, meta)
	assert.Equal(t, 1, changed, "unchanged mode")

	msg.Endpoint = dev.Endpoint(3)
	msg.Data = Values{"childLock": true}
	assert.Equal(t, Values{"child_lock_right": "ON"}, convert(t, def, msg, nil, nil))
}

func TestShutterControlDynamicExposes(t *testing.T) {
	def := model(t, "BMCT-SLZ")
	names := func(dev Device) []string {
		return lo.Map(exposes.Flatten(def.ExposesFor(dev, nil)), func(e *exposes.Expose, _ int) string { return e.Property })
	}

	assert.Contains(t, names(nil), "device_mode")

	dev := newDevice("0x0000000000000009", "RBSH-MMS-ZB-EU", 1, 2, 3)
	dev.FakeEndpoint(1).Set("boschSpecific", "deviceMode", uint64(0x04))
	light := names(dev)
	assert.Contains(t, light, "state_left")
	assert.Contains(t, light, "child_lock_right")
	assert.NotContains(t, light, "motor_state")

	dev.FakeEndpoint(1).Set("boschSpecific", "deviceMode", uint64(0x01))
	shutter := names(dev)
	assert.Contains(t, shutter, "motor_state")
	assert.Contains(t, shutter, "calibration_motor_start_delay")
	assert.NotContains(t, shutter, "state_left")
}

func TestShutterControlState(t *testing.T) {
	def := model(t, "BMCT-SLZ")
	dev := newDevice("0x000000000000000a", "RBSH-MMS-ZB-EU", 1, 2, 3)

	_, err := set(t, def, dev.Endpoint(1), dev, "state", "OPEN", nil)
	require.NoError(t, err)
	res, err := set(t, def, dev.Endpoint(2), dev, "state", "ON", nil)
	require.NoError(t, err)
	assert.Equal(t, "ON", res.State["state"])

	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 2)
	assert.Equal(t, "closuresWindowCovering", commands[0].Cluster)
	assert.Equal(t, "upOpen", commands[0].Command)
	assert.Equal(t, "genOnOff", commands[1].Cluster)
	assert.Equal(t, uint8(2), commands[1].Endpoint)

	_, err = set(t, def, dev.Endpoint(1), dev, "calibration_closing_time", 12.5, nil)
	require.NoError(t, err)
	writes := dev.CallsOf(definitiontest.KindWrite)
	require.Len(t, writes, 1)
	assert.Equal(t, Values{"calibrationClosingTime": 125.0}, writes[0].Values)
}

func TestDoorWindowContact(t *testing.T) {
	def := model(t, "BSEN-CV")
	dev := newDevice("0x000000000000000b", "RBSH-SWDV-ZB", 1)

	msg := &definition.Message{
		Type:     "commandStatusChangeNotification",
		Cluster:  "ssIasZone",
		Endpoint: dev.Endpoint(1),
		Data:     Values{"zonestatus": uint64(1<<1 | 1<<3 | 1<<11)},
	}
	out := convert(t, def, msg, nil, nil)
	assert.Equal(t, true, out["contact"])
	assert.Equal(t, true, out["vibration"])
	assert.Equal(t, true, out["battery_low"])
	assert.Equal(t, "single", out["action"])

	msg.Data = Values{"zonestatus": uint64(1)}
	out = convert(t, def, msg, nil, nil)
	assert.Equal(t, false, out["contact"])
	assert.NotContains(t, out, "action")

	props := lo.Map(model(t, "BSEN-C2").Exposes, func(e *exposes.Expose, _ int) string { return e.Name })
	assert.NotContains(t, props, "vibration")
}

func TestSmokeAlarmSiren(t *testing.T) {
	def := model(t, "BSD-2")
	dev := newDevice("0x000000000000000c", "RBSH-SD-ZB-EU", 1)

	_, err := set(t, def, dev.Endpoint(1), dev, "alarm_smoke", true, nil)
	require.NoError(t, err)
	_, err = set(t, def, dev.Endpoint(1), dev, "alarm_burglar", "OFF", nil)
	require.NoError(t, err)
	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 2)
	assert.Equal(t, 0x3c00, commands[0].Values["data"])
	assert.Equal(t, 0x0001, commands[1].Values["data"])
	assert.Equal(t, ManufacturerBosch, commands[0].Options.ManufacturerCode)

	_, err = set(t, def, dev.Endpoint(1), dev, "broadcast_alarm", "burglar_on", nil)
	require.NoError(t, err)
	broadcasts := dev.CallsOf(definitiontest.KindBroadcast)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, uint8(255), broadcasts[0].DstEP)
	assert.Equal(t, 0xb401, broadcasts[0].Values["data"])

	msg := &definition.Message{
		Type:     definition.MsgAttributeReport,
		Cluster:  "ssIasZone",
		Endpoint: dev.Endpoint(1),
		Data:     Values{"zoneStatus": uint64(1 | 1<<8 | 1<<11)},
	}
	out := convert(t, def, msg, nil, nil)
	assert.Equal(t, true, out["smoke"])
	assert.Equal(t, true, out["test"])
	assert.Equal(t, true, out["alarm_silenced"])
	assert.Equal(t, false, out["alarm_burglar"])
}

func TestOutdoorSiren(t *testing.T) {
	def := model(t, "BSIR-EZ")
	dev := newDevice("0x000000000000000d", "RBSH-OS-ZB-EU", 1)
	ep := dev.FakeEndpoint(1)

	_, err := set(t, def, ep, dev, "alarm_state", "ON", nil)
	require.NoError(t, err)
	_, err = set(t, def, ep, dev, "siren_volume", "high", nil)
	require.NoError(t, err)
	_, err = set(t, def, ep, dev, "light_delay", 12, nil)
	require.NoError(t, err)

	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, "boschOutdoorSiren", commands[0].Command)
	assert.Equal(t, 0x07, commands[0].Values["data"])
	writes := dev.CallsOf(definitiontest.KindWrite)
	require.Len(t, writes, 2)
	assert.Equal(t, Values{"sirenVolume": 0x03}, writes[0].Values)
	assert.Equal(t, Values{"lightDelay": 12.0}, writes[1].Values)

	msg := &definition.Message{Type: definition.MsgReadResponse, Cluster: "genBasic", Endpoint: ep, Data: Values{"powerSource": uint64(3)}}
	assert.Equal(t, Values{"power_source": "battery"}, convert(t, def, msg, nil, nil))

	msg = &definition.Message{Type: definition.MsgAttributeReport, Cluster: "ssIasZone", Endpoint: ep, Data: Values{"zoneStatus": uint64(0x0001)}}
	assert.Equal(t, true, convert(t, def, msg, nil, nil)["alarm"])
	assert.Contains(t, lo.Map(def.Exposes, func(e *exposes.Expose, _ int) string { return e.Name }), "alarm")

	require.NoError(t, ep.Bind(context.Background(), "genPollCtrl"))
	dev.Reset()
	require.NoError(t, def.RunConfigure(context.Background(), dev))
	unbinds := dev.CallsOf(definitiontest.KindUnbind)
	require.Len(t, unbinds, 1)
	assert.Equal(t, "genPollCtrl", unbinds[0].Cluster)
	assert.Equal(t, 0, dev.MetaSnapshot()["checkinInterval"])
}

func TestValveAdaptProcess(t *testing.T) {
	def := model(t, "BTH-RA")
	dev := newDevice("0x000000000000000e", "RBSH-TRV0-ZB-EU", 1)

	_, err := set(t, def, dev.Endpoint(1), dev, "valve_adapt_process", true, Values{"valve_adapt_status": "none"})
	require.ErrorIs(t, err, errAdaptationNotPossible)

	res, err := set(t, def, dev.Endpoint(1), dev, "valve_adapt_process", true, Values{"valve_adapt_status": "ready_to_calibrate"})
	require.NoError(t, err)
	assert.Equal(t, true, res.State["valve_adapt_process"])
	commands := dev.CallsOf(definitiontest.KindCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, "calibrateValve", commands[0].Command)
}

func TestHeatingDemand(t *testing.T) {
	def := model(t, "BTH-RA")
	dev := newDevice("0x000000000000000f", "RBSH-TRV0-ZB-EU", 1)

	res, err := set(t, def, dev.Endpoint(1), dev, "pi_heating_demand", 150, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.State["pi_heating_demand"])

	msg := &definition.Message{Type: definition.MsgAttributeReport, Cluster: "hvacThermostat", Endpoint: dev.Endpoint(1), Data: Values{"heatingDemand": uint64(0)}}
	out := convert(t, def, msg, nil, nil)
	assert.Equal(t, "idle", out["running_state"])
	assert.Equal(t, 0.0, out["pi_heating_demand"])
}

func TestIgnoreDst(t *testing.T) {
	def := model(t, "BTH-RA")
	dev := newDevice("0x0000000000000010", "RBSH-TRV0-ZB-EU", 1)

	msg := &definition.Message{
		Type:       definition.MsgRead,
		Cluster:    "genTime",
		Endpoint:   dev.Endpoint(1),
		Attributes: []string{"time", "dstShift"},
		Meta:       definition.MessageMeta{Sequence: 42},
	}
	convert(t, def, msg, nil, nil)
	responses := dev.CallsOf(definitiontest.KindReadResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, uint8(42), responses[0].Sequence)
	assert.Len(t, responses[0].Read, 3)

	dev.Reset()
	msg.Attributes = []string{"time"}
	convert(t, def, msg, nil, nil)
	assert.Empty(t, dev.CallsOf(definitiontest.KindReadResponse))
}

func TestMotionSensorConfigureEndpoint(t *testing.T) {
	def := model(t, "ISW-ZPR1-WP13")
	dev := newDevice("0x0000000000000011", "ISW-ZPR1-WP13", 5)
	require.NoError(t, def.RunConfigure(context.Background(), dev))
	for _, c := range dev.Calls() {
		assert.Equal(t, uint8(5), c.Endpoint)
	}
	assert.Len(t, dev.CallsOf(definitiontest.KindConfigureReporting), 2)

	def = model(t, "RADION TriTech ZB")
	assert.Error(t, def.RunConfigure(context.Background(), newDevice("0x0000000000000012", "RFDL-ZB", 5)))
}
