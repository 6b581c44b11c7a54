package devices

import (
	"context"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/definition/tz"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl/clusters"
)

const meazonEndpoint uint8 = 10

var meazonOptions = definition.ZCLOptions{ManufacturerCode: clusters.ManufacturerMeazon, DisableDefaultResponse: false}

// configureMeazon enables the vendor measurement reports. onOffReporting
// tunes the genOnOff report intervals, which differ between models.
func configureMeazon(onOffReporting ...reporting.Override) definition.ConfigureFunc {
	return func(ctx context.Context, dev Device, _ *definition.Definition) error {
		ep, err := endpoint(dev, meazonEndpoint)
		if err != nil {
			return err
		}
		if err := reporting.Bind(ctx, ep, []string{"genOnOff", "seMetering"}); err != nil {
			return err
		}
		if err := reporting.OnOff(ctx, ep, onOffReporting...); err != nil {
			return err
		}
		if err := ep.Write(ctx, "seMetering", Values{"meazonConfiguration": 0x063e}, meazonOptions); err != nil {
			return err
		}
		return ep.ConfigureReporting(ctx, "seMetering", []definition.ReportingItem{{
			Attribute:        "meazonLineFrequency",
			MinInterval:      1,
			MaxInterval:      reporting.Minutes5,
			ReportableChange: 1,
		}}, meazonOptions)
	}
}

// Meazon returns the Meazon meter definitions.
func Meazon() []*definition.Definition {
	fromZigbee := []*definition.FromZigbee{fz.CommandOn, fz.CommandOff, fz.OnOff, fz.MeazonMeter}
	return []*definition.Definition{
		{
			ZigbeeModel: []string{
				"101.301.001649", "101.301.001838", "101.301.001802", "101.301.001738",
				"101.301.001412", "101.301.001765", "101.301.001814",
			},
			Model:       "MEAZON_BIZY_PLUG",
			Vendor:      "Meazon",
			Description: "Bizy plug meter",
			FromZigbee:  fromZigbee,
			ToZigbee:    []*definition.ToZigbee{tz.OnOff},
			Exposes:     []*exposes.Expose{exposes.Switch(), exposes.Power(), exposes.Voltage(), exposes.Current(), exposes.Energy()},
			Configure:   configureMeazon(reporting.Override{Min: 1, Max: 0xfffe}),
		},
		{
			ZigbeeModel: []string{
				"102.106.000235", "102.106.001111", "102.106.000348",
				"102.106.000256", "102.106.001242", "102.106.000540",
			},
			Model:       "MEAZON_DINRAIL",
			Vendor:      "Meazon",
			Description: "DinRail 1-phase meter",
			FromZigbee:  fromZigbee,
			ToZigbee:    []*definition.ToZigbee{tz.OnOff},
			Exposes:     []*exposes.Expose{exposes.Switch(), exposes.Power(), exposes.Voltage(), exposes.Current()},
			Configure:   configureMeazon(),
		},
	}
}
