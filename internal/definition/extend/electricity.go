package extend

import (
	"context"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/exposes"
)

// Meter clusters
const (
	MeterBoth       = "both"
	MeterMetering   = "metering"
	MeterElectrical = "electrical"
)

type ElectricityMeterArgs struct {
	// Cluster is one of MeterBoth (default), MeterMetering or MeterElectrical.
	Cluster string
	Power   bool
	Voltage bool
	Current bool
	Energy  bool
}

type meterAttribute struct {
	key, cluster, attribute string
	expose                  func() *exposes.Expose
	preset                  func(context.Context, Endpoint, ...reporting.Override) error
}

var (
	meterPower   = meterAttribute{"power", "haElectricalMeasurement", "activePower", exposes.Power, reporting.ActivePower}
	meterVoltage = meterAttribute{"voltage", "haElectricalMeasurement", "rmsVoltage", exposes.Voltage, reporting.RMSVoltage}
	meterCurrent = meterAttribute{"current", "haElectricalMeasurement", "rmsCurrent", exposes.Current, reporting.RMSCurrent}
	meterEnergy  = meterAttribute{"energy", "seMetering", "currentSummDelivered", exposes.Energy, reporting.CurrentSummDelivered}
	meterDemand  = meterAttribute{"power", "seMetering", "instantaneousDemand", exposes.Power, reporting.InstantaneousDemand}
)

var divisors = map[string][]string{
	"haElectricalMeasurement": {
		"acPowerMultiplier", "acPowerDivisor",
		"acVoltageMultiplier", "acVoltageDivisor",
		"acCurrentMultiplier", "acCurrentDivisor",
	},
	"seMetering": {"multiplier", "divisor"},
}

// ElectricityMeter exposes power, voltage, current and energy from
// haElectricalMeasurement and/or seMetering. Configure reads the
// multiplier/divisor attributes so converters can scale reports.
func ElectricityMeter(args ElectricityMeterArgs) definition.ModernExtend {
	cluster := args.Cluster
	if cluster == "" {
		cluster = MeterBoth
	}
	electrical := cluster != MeterMetering
	metering := cluster != MeterElectrical

	var attrs []meterAttribute
	if args.Power {
		if electrical {
			attrs = append(attrs, meterPower)
		} else {
			attrs = append(attrs, meterDemand)
		}
	}
	if electrical && args.Voltage {
		attrs = append(attrs, meterVoltage)
	}
	if electrical && args.Current {
		attrs = append(attrs, meterCurrent)
	}
	if metering && args.Energy {
		attrs = append(attrs, meterEnergy)
	}

	ext := definition.ModernExtend{}
	if electrical {
		ext.FromZigbee = append(ext.FromZigbee, fz.ElectricalMeasurement)
	}
	if metering {
		ext.FromZigbee = append(ext.FromZigbee, fz.Metering)
	}
	for _, a := range attrs {
		ext.Exposes = append(ext.Exposes, a.expose().WithAccess(exposes.AccessStateGet))
		ext.ToZigbee = append(ext.ToZigbee, &definition.ToZigbee{
			Keys: []string{a.key},
			ConvertGet: func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
				_, err := ep.Read(ctx, a.cluster, []string{a.attribute}, definition.ZCLOptions{})
				return err
			},
		})
	}

	ext.Configure = []definition.ConfigureFunc{func(ctx context.Context, dev Device, _ *definition.Definition) error {
		for _, a := range attrs {
			for _, ep := range InputEndpoints(dev, a.cluster) {
				if err := reporting.Bind(ctx, ep, []string{a.cluster}); err != nil {
					return err
				}
				if _, err := ep.Read(ctx, a.cluster, divisors[a.cluster], definition.ZCLOptions{}); err != nil {
					return err
				}
				if err := a.preset(ctx, ep); err != nil {
					return err
				}
			}
		}
		return nil
	}}
	return ext
}
