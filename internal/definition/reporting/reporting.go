// Package reporting holds the attribute reporting presets used by configure
// steps.
package reporting

import (
	"context"
	"fmt"

	"zigbee-go-catalog/internal/definition"
)

// Reporting intervals in seconds.
const (
	Seconds10 uint16 = 10
	Minute    uint16 = 60
	Minutes5  uint16 = 300
	Minutes10 uint16 = 600
	Hour      uint16 = 3600
	Max       uint16 = 62000
)

// Override replaces preset values; zero Min/Max and nil Change keep the
// preset.
type Override struct {
	Min    uint16
	Max    uint16
	Change any
}

func payload(attribute string, min, max uint16, change any, overrides []Override) []definition.ReportingItem {
	item := definition.ReportingItem{
		Attribute:        attribute,
		MinInterval:      min,
		MaxInterval:      max,
		ReportableChange: change,
	}
	for _, o := range overrides {
		if o.Min != 0 {
			item.MinInterval = o.Min
		}
		if o.Max != 0 {
			item.MaxInterval = o.Max
		}
		if o.Change != nil {
			item.ReportableChange = o.Change
		}
	}
	return []definition.ReportingItem{item}
}

// Bind binds each cluster of ep to the coordinator.
func Bind(ctx context.Context, ep definition.Endpoint, clusters []string) error {
	for _, cluster := range clusters {
		if err := ep.Bind(ctx, cluster); err != nil {
			return fmt.Errorf("bind %s on endpoint %d: %w", cluster, ep.ID(), err)
		}
	}
	return nil
}

func configure(ctx context.Context, ep definition.Endpoint, cluster string, items []definition.ReportingItem) error {
	if err := ep.ConfigureReporting(ctx, cluster, items, definition.ZCLOptions{}); err != nil {
		return fmt.Errorf("configure reporting %s.%s on endpoint %d: %w", cluster, items[0].Attribute, ep.ID(), err)
	}
	return nil
}

func OnOff(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "genOnOff", payload("onOff", 0, Max, nil, overrides))
}

func BatteryVoltage(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "genPowerCfg", payload("batteryVoltage", Hour, Max, 0, overrides))
}

func BatteryPercentageRemaining(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "genPowerCfg", payload("batteryPercentageRemaining", Hour, Max, 0, overrides))
}

func Temperature(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "msTemperatureMeasurement", payload("measuredValue", Seconds10, Hour, 100, overrides))
}

func Humidity(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "msRelativeHumidity", payload("measuredValue", Seconds10, Hour, 100, overrides))
}

func Illuminance(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "msIlluminanceMeasurement", payload("measuredValue", Seconds10, Hour, 5, overrides))
}

func ThermostatTemperature(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacThermostat", payload("localTemp", 0, Hour, 10, overrides))
}

func ThermostatOccupiedHeatingSetpoint(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacThermostat", payload("occupiedHeatingSetpoint", 0, Hour, 10, overrides))
}

func ThermostatOccupiedCoolingSetpoint(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacThermostat", payload("occupiedCoolingSetpoint", 0, Hour, 10, overrides))
}

func ThermostatSystemMode(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacThermostat", payload("systemMode", Seconds10, Hour, nil, overrides))
}

func ThermostatRunningState(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacThermostat", payload("runningState", Seconds10, Hour, nil, overrides))
}

func ThermostatKeypadLockMode(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "hvacUserInterfaceCfg", payload("keypadLockout", Seconds10, Hour, nil, overrides))
}

func CurrentPositionLiftPercentage(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "closuresWindowCovering", payload("currentPositionLiftPercentage", 1, Max, 1, overrides))
}

func Brightness(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "genLevelCtrl", payload("currentLevel", Seconds10, Hour, 1, overrides))
}

func ActivePower(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "haElectricalMeasurement", payload("activePower", 5, Hour, 1, overrides))
}

func RMSVoltage(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "haElectricalMeasurement", payload("rmsVoltage", 5, Hour, 1, overrides))
}

func RMSCurrent(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "haElectricalMeasurement", payload("rmsCurrent", 5, Hour, 1, overrides))
}

func CurrentSummDelivered(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "seMetering", payload("currentSummDelivered", 5, Hour, 1, overrides))
}

func InstantaneousDemand(ctx context.Context, ep definition.Endpoint, overrides ...Override) error {
	return configure(ctx, ep, "seMetering", payload("instantaneousDemand", 5, Hour, 1, overrides))
}
