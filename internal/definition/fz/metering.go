package fz

import (
	"context"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/zcl"
)

// factor returns multiplier/divisor from the endpoint's cached attributes,
// defaulting to 1 for either when unknown or zero.
func factor(ep definition.Endpoint, cluster, multiplier, divisor string) float64 {
	mul, div := 1.0, 1.0
	if ep == nil {
		return 1
	}
	if v, ok := ep.ClusterAttributeValue(cluster, multiplier); ok {
		if n, ok := zcl.ToFloat64(v); ok && n != 0 {
			mul = n
		}
	}
	if v, ok := ep.ClusterAttributeValue(cluster, divisor); ok {
		if n, ok := zcl.ToFloat64(v); ok && n != 0 {
			div = n
		}
	}
	return mul / div
}

// Metering converts seMetering demand (kW on the wire) to W and
// summations to kWh.
var Metering = &definition.FromZigbee{
	Cluster: "seMetering",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		f := factor(msg.Endpoint, "seMetering", "multiplier", "divisor")
		result := Values{}
		if v, ok := msg.Data.Number("instantaneousDemand"); ok {
			result[postfix("power", msg, def)] = definition.PrecisionRound(v*f*1000, 2)
		}
		if v, ok := msg.Data.Number("currentSummDelivered"); ok {
			result[postfix("energy", msg, def)] = definition.PrecisionRound(v*f, 2)
		}
		if v, ok := msg.Data.Number("currentSummReceived"); ok {
			result[postfix("produced_energy", msg, def)] = definition.PrecisionRound(v*f, 2)
		}
		return result, nil
	},
}

var electricalMeasurements = []struct {
	attr, key, multiplier, divisor string
}{
	{"activePower", "power", "acPowerMultiplier", "acPowerDivisor"},
	{"reactivePower", "power_reactive", "acPowerMultiplier", "acPowerDivisor"},
	{"apparentPower", "power_apparent", "acPowerMultiplier", "acPowerDivisor"},
	{"rmsVoltage", "voltage", "acVoltageMultiplier", "acVoltageDivisor"},
	{"rmsCurrent", "current", "acCurrentMultiplier", "acCurrentDivisor"},
}

var ElectricalMeasurement = &definition.FromZigbee{
	Cluster: "haElectricalMeasurement",
	Types:   attributeTypes,
	Convert: func(_ context.Context, def *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		for _, m := range electricalMeasurements {
			v, ok := msg.Data.Number(m.attr)
			if !ok {
				continue
			}
			f := factor(msg.Endpoint, "haElectricalMeasurement", m.multiplier, m.divisor)
			result[postfix(m.key, msg, def)] = definition.PrecisionRound(v*f, 2)
		}
		if v, ok := msg.Data.Number("powerFactor"); ok {
			result[postfix("power_factor", msg, def)] = definition.PrecisionRound(v/100, 2)
		}
		return result, nil
	},
}

// MeazonMeter converts the Meazon manufacturer attributes of seMetering.
// Values are floats in SI units except the line frequency, which is
// reported in hundredths of a hertz.
var MeazonMeter = &definition.FromZigbee{
	Cluster: "seMetering",
	Types:   attributeTypes,
	Convert: func(_ context.Context, _ *definition.Definition, msg *Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		round := func(attr, key string) {
			if v, ok := msg.Data.Number(attr); ok {
				result[key] = definition.PrecisionRound(v, 2)
			}
		}
		if v, ok := msg.Data.Number("status"); ok {
			result["status"] = definition.PrecisionRound(v, 2)
		}
		if v, ok := msg.Data.Number("meazonLineFrequency"); ok {
			result["linefrequency"] = definition.PrecisionRound(v/100, 2)
		}
		round("meazonPower", "power")
		round("meazonVoltage", "voltage")
		round("meazonVoltageRMS", "voltage")
		round("meazonCurrent", "current")
		round("meazonCurrentRMS", "current")
		round("meazonReactivePower", "reactivepower")
		round("meazonEnergyConsumed", "energyconsumed")
		round("meazonEnergyConsumed", "energy")
		round("meazonEnergyProduced", "energyproduced")
		round("meazonReactiveSummation", "reactivesummation")
		round("meazonMeasureSerial", "measureserial")
		return result, nil
	},
}
