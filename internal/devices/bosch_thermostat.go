package devices

import (
	"context"
	"errors"
	"strings"

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

func boschAttr(id uint16, name string, typ uint8) zcl.AttributeDef {
	return zcl.AttributeDef{ID: id, Name: name, Type: typ, Access: zcl.AccessRWP, ManufacturerCode: ManufacturerBosch}
}

func thermostatCluster() definition.ModernExtend {
	return extend.DeviceAddCustomCluster("hvacThermostat", zcl.ClusterDef{
		ID: clusters.IDThermostat,
		Attributes: []zcl.AttributeDef{
			boschAttr(0x4007, "operatingMode", zcl.TypeEnum8),
			boschAttr(0x4020, "heatingDemand", zcl.TypeEnum8),
			boschAttr(0x4022, "valveAdaptStatus", zcl.TypeEnum8),
			boschAttr(0x4040, "remoteTemperature", zcl.TypeInt16),
			boschAttr(0x4042, "windowDetection", zcl.TypeEnum8),
			boschAttr(0x4043, "boostHeating", zcl.TypeEnum8),
		},
		Commands: []zcl.CommandDef{
			{ID: 0x41, Name: "calibrateValve", Direction: zcl.DirectionToServer},
		},
	})
}

func userInterfaceCluster() definition.ModernExtend {
	return extend.DeviceAddCustomCluster("hvacUserInterfaceCfg", zcl.ClusterDef{
		ID: clusters.IDThermostatUICfg,
		Attributes: []zcl.AttributeDef{
			boschAttr(0x400b, "displayOrientation", zcl.TypeUint8),
			boschAttr(0x4039, "displayedTemperature", zcl.TypeEnum8),
			boschAttr(0x403a, "displayOntime", zcl.TypeEnum8),
			boschAttr(0x403b, "displayBrightness", zcl.TypeEnum8),
		},
	})
}

var statusReporting = &extend.ReportingArgs{Min: reporting.Seconds10, Max: reporting.Max}

func operatingMode() definition.ModernExtend {
	return extend.EnumLookup(extend.EnumLookupArgs{
		Name:        "operating_mode",
		Cluster:     "hvacThermostat",
		Attribute:   "operatingMode",
		Reporting:   statusReporting,
		Description: "Bosch-specific operating mode (overrides system mode)",
		Lookup:      definition.Lookup{{Key: "schedule", Value: 0x00}, {Key: "manual", Value: 0x01}, {Key: "pause", Value: 0x05}},
		ZCLOptions:  boschOptions,
	})
}

func windowDetection() definition.ModernExtend {
	return extend.Binary(extend.BinaryArgs{
		Name:        "window_detection",
		Cluster:     "hvacThermostat",
		Attribute:   "windowDetection",
		Description: "Enable/disable window open (Lo.) mode",
		ValueOn:     definition.LookupEntry{Key: "ON", Value: 0x01},
		ValueOff:    definition.LookupEntry{Key: "OFF", Value: 0x00},
		ZCLOptions:  boschOptions,
	})
}

func boostHeating() definition.ModernExtend {
	return extend.Binary(extend.BinaryArgs{
		Name:        "boost_heating",
		Cluster:     "hvacThermostat",
		Attribute:   "boostHeating",
		Reporting:   statusReporting,
		Description: "Activate boost heating (5 min. on TRV)",
		ValueOn:     definition.LookupEntry{Key: "ON", Value: 0x01},
		ValueOff:    definition.LookupEntry{Key: "OFF", Value: 0x00},
		ZCLOptions:  boschOptions,
	})
}

func childLock() definition.ModernExtend {
	return extend.Binary(extend.BinaryArgs{
		Name:        "child_lock",
		Cluster:     "hvacUserInterfaceCfg",
		Attribute:   "keypadLockout",
		Description: "Enables/disables physical input on the device",
		ValueOn:     definition.LookupEntry{Key: "LOCK", Value: 0x01},
		ValueOff:    definition.LookupEntry{Key: "UNLOCK", Value: 0x00},
	})
}

func displayOntime() definition.ModernExtend {
	return extend.Numeric(extend.NumericArgs{
		Name:        "display_ontime",
		Cluster:     "hvacUserInterfaceCfg",
		Attribute:   "displayOntime",
		Description: "Sets the display on-time",
		ValueMin:    lo.ToPtr(5.0),
		ValueMax:    lo.ToPtr(30.0),
		Unit:        "s",
		ZCLOptions:  boschOptions,
	})
}

func displayBrightness() definition.ModernExtend {
	return extend.Numeric(extend.NumericArgs{
		Name:        "display_brightness",
		Cluster:     "hvacUserInterfaceCfg",
		Attribute:   "displayBrightness",
		Description: "Sets brightness of the display",
		ValueMin:    lo.ToPtr(0.0),
		ValueMax:    lo.ToPtr(10.0),
		ZCLOptions:  boschOptions,
	})
}

var valveAdaptStatuses = definition.Lookup{
	{Key: "none", Value: 0x00},
	{Key: "ready_to_calibrate", Value: 0x01},
	{Key: "calibration_in_progress", Value: 0x02},
	{Key: "error", Value: 0x03},
	{Key: "success", Value: 0x04},
}

var errAdaptationNotPossible = errors.New("valve adaptation process not possible right now")

// valveAdaptProcess starts the valve calibration. The thermostat accepts it
// only while it waits for calibration or after a failed one.
func valveAdaptProcess() definition.ModernExtend {
	fromZigbee := &definition.FromZigbee{
		Cluster: "hvacThermostat",
		Types:   []string{definition.MsgAttributeReport, definition.MsgReadResponse},
		Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
			status, ok := msg.Data.Uint("valveAdaptStatus")
			if !ok {
				return nil, nil
			}
			return Values{"valve_adapt_process": status == 0x02}, nil
		},
	}
	toZigbee := &definition.ToZigbee{
		Keys: []string{"valve_adapt_process"},
		ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, meta *definition.TzMeta) (*definition.TzResult, error) {
			start, err := definition.ToBool(value, key)
			if err != nil {
				return nil, err
			}
			if start {
				status, err := valveAdaptStatuses.Value(meta.State["valve_adapt_status"])
				if err != nil || (status != 0x01 && status != 0x03) {
					return nil, errAdaptationNotPossible
				}
				if err := ep.Command(ctx, "hvacThermostat", "calibrateValve", nil, boschOptions); err != nil {
					return nil, err
				}
			}
			return &definition.TzResult{State: Values{key: start}}, nil
		},
		ConvertGet: func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
			_, err := ep.Read(ctx, "hvacThermostat", []string{"valveAdaptStatus"}, boschOptions)
			return err
		},
	}
	return definition.ModernExtend{
		Exposes: []*exposes.Expose{
			exposes.Binary("valve_adapt_process", exposes.AccessAll, true, false).
				WithLabel("Trigger adaptation process").
				WithDescription(`Trigger the valve adaptation process. Only possible when adaptation status is "ready_to_calibrate" or "error".`).
				WithCategory(exposes.CategoryConfig),
		},
		FromZigbee: []*definition.FromZigbee{fromZigbee},
		ToZigbee:   []*definition.ToZigbee{toZigbee},
	}
}

// heatingDemand maps the vendor valve demand onto pi_heating_demand and
// derives running_state from it.
func heatingDemand() definition.ModernExtend {
	readDemand := func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
		_, err := ep.Read(ctx, "hvacThermostat", []string{"heatingDemand"}, boschOptions)
		return err
	}
	return definition.ModernExtend{
		FromZigbee: []*definition.FromZigbee{{
			Cluster: "hvacThermostat",
			Types:   []string{definition.MsgAttributeReport, definition.MsgReadResponse},
			Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				demand, ok := msg.Data.Number("heatingDemand")
				if !ok {
					return nil, nil
				}
				state := "idle"
				if demand > 0 {
					state = "heat"
				}
				return Values{"pi_heating_demand": demand, "running_state": state}, nil
			},
		}},
		ToZigbee: []*definition.ToZigbee{
			{
				Keys: []string{"pi_heating_demand"},
				ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
					demand, err := definition.ToNumber(value, key)
					if err != nil {
						return nil, err
					}
					demand = definition.NumberWithinRange(demand, 0, 100)
					if err := ep.Write(ctx, "hvacThermostat", Values{"heatingDemand": demand}, boschOptions); err != nil {
						return nil, err
					}
					return &definition.TzResult{State: Values{key: demand}}, nil
				},
				ConvertGet: readDemand,
			},
			{Keys: []string{"running_state"}, ConvertGet: readDemand},
		},
	}
}

var dstAttributes = []string{"dstStart", "dstEnd", "dstShift"}

// ignoreDst answers the thermostat's genTime DST read with zeros so it
// keeps its own schedule instead of applying a second shift.
func ignoreDst() definition.ModernExtend {
	return definition.ModernExtend{
		FromZigbee: []*definition.FromZigbee{{
			Cluster: "genTime",
			Types:   []string{definition.MsgRead},
			Convert: func(ctx context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
				if !lo.Some(msg.Attributes, dstAttributes) {
					return nil, nil
				}
				records := []zcl.ReadRecord{
					{ID: 0x0003, Status: zcl.ZCLStatusSuccess, Type: zcl.TypeUint32, Value: uint32(0)},
					{ID: 0x0004, Status: zcl.ZCLStatusSuccess, Type: zcl.TypeUint32, Value: uint32(0)},
					{ID: 0x0005, Status: zcl.ZCLStatusSuccess, Type: zcl.TypeInt32, Value: int32(0)},
				}
				return nil, msg.Endpoint.ReadResponse(ctx, "genTime", msg.Meta.Sequence, records, definition.ZCLOptions{})
			},
		}},
	}
}

const (
	thermostatModeCommandTemplate = `{% set values = { 'auto':'schedule','heat':'manual','off':'pause'} %}` +
		`{"operating_mode": "{{ values[value] if value in values.keys() else 'pause' }}"}`
	thermostatModeStateTemplate = `{% set values = {'schedule':'auto','manual':'heat','pause':'off'} %}` +
		`{% set value = value_json.operating_mode %}{{ values[value] if value in values.keys() else 'off' }}`
)

// radiatorDiscovery drives the Home Assistant climate mode through
// operating_mode, since the valve only accepts system_mode heat.
func radiatorDiscovery(payload map[string]any) {
	topic, ok := payload["mode_command_topic"].(string)
	if !ok || !strings.HasSuffix(topic, "/system_mode") {
		return
	}
	payload["mode_command_topic"] = strings.TrimSuffix(topic, "/system_mode")
	payload["mode_command_template"] = thermostatModeCommandTemplate
	payload["mode_state_template"] = thermostatModeStateTemplate
	payload["modes"] = []string{"off", "heat", "auto"}
}

var setpointReporting = reporting.Override{Min: reporting.Seconds10, Max: reporting.Hour, Change: 50}

func configureRadiatorThermostat(ctx context.Context, dev Device, _ *definition.Definition) error {
	ep, err := endpoint(dev, 1)
	if err != nil {
		return err
	}
	if err := reporting.Bind(ctx, ep, []string{"hvacThermostat", "hvacUserInterfaceCfg"}); err != nil {
		return err
	}
	if err := reporting.ThermostatTemperature(ctx, ep); err != nil {
		return err
	}
	if err := reporting.ThermostatOccupiedHeatingSetpoint(ctx, ep, setpointReporting); err != nil {
		return err
	}
	if err := reporting.ThermostatKeypadLockMode(ctx, ep); err != nil {
		return err
	}
	demand := []definition.ReportingItem{{Attribute: "heatingDemand", MinInterval: reporting.Seconds10, MaxInterval: reporting.Max}}
	if err := ep.ConfigureReporting(ctx, "hvacThermostat", demand, boschOptions); err != nil {
		return err
	}

	reads := []struct {
		cluster string
		attrs   []string
		opts    definition.ZCLOptions
	}{
		{"genPowerCfg", []string{"batteryPercentageRemaining"}, definition.ZCLOptions{}},
		{"hvacThermostat", []string{"localTemperatureCalibration", "setpointChangeSource"}, definition.ZCLOptions{}},
		{"hvacThermostat", []string{"operatingMode", "heatingDemand", "valveAdaptStatus", "remoteTemperature", "windowDetection", "boostHeating"}, boschOptions},
		{"hvacUserInterfaceCfg", []string{"keypadLockout"}, definition.ZCLOptions{}},
		{"hvacUserInterfaceCfg", []string{"displayOrientation", "displayedTemperature", "displayOntime", "displayBrightness"}, boschOptions},
	}
	for _, r := range reads {
		if _, err := ep.Read(ctx, r.cluster, r.attrs, r.opts); err != nil {
			return err
		}
	}
	return nil
}

func configureRoomThermostat(battery bool) definition.ConfigureFunc {
	return func(ctx context.Context, dev Device, _ *definition.Definition) error {
		ep, err := endpoint(dev, 1)
		if err != nil {
			return err
		}
		if err := reporting.Bind(ctx, ep, []string{"hvacThermostat", "hvacUserInterfaceCfg"}); err != nil {
			return err
		}
		steps := []func(context.Context, Endpoint, ...reporting.Override) error{
			reporting.ThermostatSystemMode,
			reporting.ThermostatRunningState,
			reporting.ThermostatTemperature,
		}
		for _, step := range steps {
			if err := step(ctx, ep); err != nil {
				return err
			}
		}
		if err := reporting.ThermostatOccupiedHeatingSetpoint(ctx, ep, setpointReporting); err != nil {
			return err
		}
		if err := reporting.ThermostatOccupiedCoolingSetpoint(ctx, ep, setpointReporting); err != nil {
			return err
		}
		if err := reporting.ThermostatKeypadLockMode(ctx, ep); err != nil {
			return err
		}
		if battery {
			if _, err := ep.Read(ctx, "genPowerCfg", []string{"batteryVoltage"}, definition.ZCLOptions{}); err != nil {
				return err
			}
		}
		if _, err := ep.Read(ctx, "hvacThermostat", []string{"localTemperatureCalibration"}, definition.ZCLOptions{}); err != nil {
			return err
		}
		if _, err := ep.Read(ctx, "hvacThermostat", []string{"operatingMode", "windowDetection", "boostHeating"}, boschOptions); err != nil {
			return err
		}
		if _, err := ep.Read(ctx, "hvacUserInterfaceCfg", []string{"keypadLockout"}, definition.ZCLOptions{}); err != nil {
			return err
		}
		_, err = ep.Read(ctx, "hvacUserInterfaceCfg", []string{"displayOntime", "displayBrightness"}, boschOptions)
		return err
	}
}

func roomThermostatExposes() []*exposes.Expose {
	return []*exposes.Expose{
		exposes.Climate().
			WithLocalTemperature(exposes.AccessStateGet, "").
			WithSetpoint("occupied_heating_setpoint", 4.5, 30, 0.5).
			WithSetpoint("occupied_cooling_setpoint", 4.5, 30, 0.5).
			WithLocalTemperatureCalibration(-5, 5, 0.1).
			WithSystemMode([]string{"off", "heat", "cool"}).
			WithRunningState([]string{"idle", "heat", "cool"}, exposes.AccessStateGet),
	}
}

func roomThermostatToZigbee() []*definition.ToZigbee {
	return []*definition.ToZigbee{
		tz.ThermostatSystemMode,
		tz.ThermostatRunningState,
		tz.ThermostatOccupiedHeatingSetpoint,
		tz.ThermostatOccupiedCoolingSetpoint,
		tz.ThermostatProgrammingOperationMode,
		tz.ThermostatLocalTemperatureCalibration,
		tz.ThermostatLocalTemperature,
		tz.ThermostatTemperatureSetpointHold,
		tz.ThermostatTemperatureDisplayMode,
	}
}

func boschThermostats() []*definition.Definition {
	pollControl := extend.BindCluster(extend.BindClusterArgs{Cluster: "genPollCtrl", ClusterType: extend.ClusterInput})

	radiator := &definition.Definition{
		ZigbeeModel: []string{"RBSH-TRV0-ZB-EU", "RBSH-TRV1-ZB-EU"},
		Model:       "BTH-RA",
		Vendor:      "Bosch",
		Description: "Radiator thermostat II",
		Meta:        definition.Meta{OverrideHADiscovery: radiatorDiscovery},
		Exposes: []*exposes.Expose{
			exposes.Climate().
				WithLocalTemperature(exposes.AccessStateGet,
					"Temperature used by the heating algorithm. "+
						"This is the temperature measured on the device (by default) or the remote temperature (if set within the last 30 min).").
				WithLocalTemperatureCalibration(-5, 5, 0.1).
				WithSetpoint("occupied_heating_setpoint", 5, 30, 0.5).
				WithSystemMode([]string{"heat"}).
				WithRunningState([]string{"idle", "heat"}, exposes.AccessStateGet),
			exposes.PiHeatingDemand().WithAccess(exposes.AccessAll),
		},
		FromZigbee: []*definition.FromZigbee{fz.Thermostat},
		ToZigbee: []*definition.ToZigbee{
			tz.ThermostatSystemMode,
			tz.ThermostatOccupiedHeatingSetpoint,
			tz.ThermostatLocalTemperatureCalibration,
			tz.ThermostatLocalTemperature,
			tz.ThermostatKeypadLockout,
		},
		Extend: []definition.ModernExtend{
			thermostatCluster(),
			userInterfaceCluster(),
			extend.Battery(extend.BatteryArgs{Percentage: true}),
			operatingMode(),
			windowDetection(),
			boostHeating(),
			extend.Numeric(extend.NumericArgs{
				Name:        "remote_temperature",
				Cluster:     "hvacThermostat",
				Attribute:   "remoteTemperature",
				Description: "Input for remote temperature sensor. Required at least every 30 min. to prevent fallback to internal sensor!",
				ValueMin:    lo.ToPtr(0.0),
				ValueMax:    lo.ToPtr(35.0),
				ValueStep:   lo.ToPtr(0.01),
				Unit:        "°C",
				Scale:       100,
				Precision:   2,
				ZCLOptions:  boschOptions,
			}),
			extend.EnumLookup(extend.EnumLookupArgs{
				Name:        "setpoint_change_source",
				Cluster:     "hvacThermostat",
				Attribute:   "setpointChangeSource",
				Reporting:   statusReporting,
				Description: "Source of the current setpoint temperature",
				Lookup:      definition.SetpointChangeSources,
				Access:      exposes.AccessStateGet,
			}),
			childLock(),
			displayOntime(),
			displayBrightness(),
			extend.EnumLookup(extend.EnumLookupArgs{
				Name:        "display_orientation",
				Cluster:     "hvacUserInterfaceCfg",
				Attribute:   "displayOrientation",
				Description: "Sets orientation of the display",
				Lookup:      definition.Lookup{{Key: "normal", Value: 0x00}, {Key: "flipped", Value: 0x01}},
				ZCLOptions:  boschOptions,
			}),
			extend.EnumLookup(extend.EnumLookupArgs{
				Name:        "displayed_temperature",
				Cluster:     "hvacUserInterfaceCfg",
				Attribute:   "displayedTemperature",
				Description: "Temperature displayed on the TRV",
				Lookup:      definition.Lookup{{Key: "target", Value: 0x00}, {Key: "measured", Value: 0x01}},
				ZCLOptions:  boschOptions,
			}),
			extend.EnumLookup(extend.EnumLookupArgs{
				Name:        "valve_adapt_status",
				Cluster:     "hvacThermostat",
				Attribute:   "valveAdaptStatus",
				Reporting:   statusReporting,
				Description: "Specifies the current status of the valve adaptation",
				Lookup:      valveAdaptStatuses,
				Access:      exposes.AccessStateGet,
				ZCLOptions:  boschOptions,
			}),
			valveAdaptProcess(),
			heatingDemand(),
			ignoreDst(),
			pollControl,
		},
		OTA:       true,
		Configure: configureRadiatorThermostat,
	}

	battery := &definition.Definition{
		ZigbeeModel: []string{"RBSH-RTH0-BAT-ZB-EU"},
		Model:       "BTH-RM",
		Vendor:      "Bosch",
		Description: "Room thermostat II (Battery model)",
		Exposes:     roomThermostatExposes(),
		FromZigbee:  []*definition.FromZigbee{fz.Thermostat, fz.HvacUserInterface},
		ToZigbee:    roomThermostatToZigbee(),
		Extend: []definition.ModernExtend{
			thermostatCluster(),
			userInterfaceCluster(),
			extend.Battery(extend.BatteryArgs{
				VoltageToPercentage: &definition.VoltageRange{Min: 4400, Max: 6400},
				Percentage:          true,
				Voltage:             true,
				VoltageReporting:    true,
			}),
			extend.Humidity(),
			operatingMode(),
			windowDetection(),
			boostHeating(),
			childLock(),
			displayOntime(),
			displayBrightness(),
			pollControl,
		},
		OTA:       true,
		Configure: configureRoomThermostat(true),
	}

	mains := &definition.Definition{
		ZigbeeModel: []string{"RBSH-RTH0-ZB-EU"},
		Model:       "BTH-RM230Z",
		Vendor:      "Bosch",
		Description: "Room thermostat II 230V",
		Exposes:     roomThermostatExposes(),
		FromZigbee:  []*definition.FromZigbee{fz.Thermostat, fz.HvacUserInterface},
		ToZigbee:    roomThermostatToZigbee(),
		Extend: []definition.ModernExtend{
			thermostatCluster(),
			userInterfaceCluster(),
			extend.Humidity(),
			operatingMode(),
			windowDetection(),
			boostHeating(),
			childLock(),
			displayOntime(),
			displayBrightness(),
		},
		OTA:       true,
		Configure: configureRoomThermostat(false),
	}

	return []*definition.Definition{radiator, battery, mains}
}
