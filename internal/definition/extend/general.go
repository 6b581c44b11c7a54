package extend

import (
	"context"
	"fmt"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/definition/tz"
	"zigbee-go-catalog/internal/exposes"
)

type BatteryArgs struct {
	Percentage          bool
	Voltage             bool
	LowStatus           bool
	PercentageReporting bool
	VoltageReporting    bool
	// VoltageToPercentage derives the percentage from the voltage.
	VoltageToPercentage  *definition.VoltageRange
	DontDividePercentage bool
}

// Battery exposes genPowerCfg battery state.
func Battery(args BatteryArgs) definition.ModernExtend {
	ext := definition.ModernExtend{
		FromZigbee: []*definition.FromZigbee{fz.Battery},
	}
	if args.Percentage {
		ext.Exposes = append(ext.Exposes, exposes.Battery())
		ext.ToZigbee = append(ext.ToZigbee, tz.BatteryPercentageRemaining)
	}
	if args.Voltage {
		ext.Exposes = append(ext.Exposes, exposes.BatteryVoltage().WithAccess(exposes.AccessStateGet))
		ext.ToZigbee = append(ext.ToZigbee, tz.BatteryVoltage)
	}
	if args.LowStatus {
		ext.Exposes = append(ext.Exposes, exposes.BatteryLow())
	}
	if args.VoltageToPercentage != nil || args.DontDividePercentage {
		ext.Meta = &definition.Meta{Battery: &definition.BatteryMeta{
			VoltageToPercentage:  args.VoltageToPercentage,
			DontDividePercentage: args.DontDividePercentage,
		}}
	}
	if args.PercentageReporting || args.VoltageReporting {
		ext.Configure = []definition.ConfigureFunc{func(ctx context.Context, dev Device, _ *definition.Definition) error {
			for _, ep := range InputEndpoints(dev, "genPowerCfg") {
				if err := reporting.Bind(ctx, ep, []string{"genPowerCfg"}); err != nil {
					return err
				}
				var attrs []string
				if args.PercentageReporting {
					if err := reporting.BatteryPercentageRemaining(ctx, ep); err != nil {
						return err
					}
					attrs = append(attrs, "batteryPercentageRemaining")
				}
				if args.VoltageReporting {
					if err := reporting.BatteryVoltage(ctx, ep); err != nil {
						return err
					}
					attrs = append(attrs, "batteryVoltage")
				}
				if _, err := ep.Read(ctx, "genPowerCfg", attrs, definition.ZCLOptions{}); err != nil {
					return fmt.Errorf("read battery: %w", err)
				}
			}
			return nil
		}}
	}
	return ext
}

type OnOffArgs struct {
	PowerOnBehavior    bool
	ConfigureReporting bool
	// Endpoints names the endpoints carrying a switch; empty means one
	// switch for the device.
	Endpoints []string
}

// OnOff is a switch on genOnOff.
func OnOff(args OnOffArgs) definition.ModernExtend {
	ext := definition.ModernExtend{
		FromZigbee: []*definition.FromZigbee{fz.OnOff},
		ToZigbee:   []*definition.ToZigbee{tz.OnOff},
	}
	if len(args.Endpoints) == 0 {
		ext.Exposes = append(ext.Exposes, exposes.Switch())
	}
	for _, name := range args.Endpoints {
		ext.Exposes = append(ext.Exposes, exposes.Switch().WithEndpoint(name))
	}
	if args.PowerOnBehavior {
		ext.Exposes = append(ext.Exposes, exposes.PowerOnBehavior())
		ext.FromZigbee = append(ext.FromZigbee, fz.PowerOnBehavior)
		ext.ToZigbee = append(ext.ToZigbee, tz.PowerOnBehavior)
	}
	if args.ConfigureReporting {
		ext.Configure = []definition.ConfigureFunc{func(ctx context.Context, dev Device, def *definition.Definition) error {
			for _, ep := range namedEndpoints(dev, def, args.Endpoints, "genOnOff") {
				if err := reporting.Bind(ctx, ep, []string{"genOnOff"}); err != nil {
					return err
				}
				if err := reporting.OnOff(ctx, ep); err != nil {
					return err
				}
			}
			return nil
		}}
	}
	return ext
}

type LightArgs struct {
	ConfigureReporting bool
	Effect             bool
	PowerOnBehavior    bool
}

var effects = definition.Lookup{
	{Key: "blink", Value: 0},
	{Key: "breathe", Value: 1},
	{Key: "okay", Value: 2},
	{Key: "channel_change", Value: 11},
	{Key: "finish_effect", Value: 254},
	{Key: "stop_effect", Value: 255},
}

var effect = &definition.ToZigbee{
	Keys: []string{"effect"},
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
		id, err := effects.Value(value)
		if err != nil {
			return nil, err
		}
		params := Values{"effectid": id, "effectvariant": 0}
		return nil, ep.Command(ctx, "genIdentify", "triggerEffect", params, definition.ZCLOptions{})
	},
}

// Light is a dimmable light.
func Light(args LightArgs) definition.ModernExtend {
	ext := definition.ModernExtend{
		Exposes:    []*exposes.Expose{exposes.Light().WithBrightness()},
		FromZigbee: []*definition.FromZigbee{fz.OnOff, fz.Brightness},
		ToZigbee:   []*definition.ToZigbee{tz.LightOnOffBrightness},
	}
	if args.Effect {
		ext.Exposes = append(ext.Exposes, exposes.Enum("effect", exposes.AccessSet, effects.Keys()).
			WithDescription("Triggers an effect on the light (e.g. make light blink for a few seconds)"))
		ext.ToZigbee = append(ext.ToZigbee, effect)
	}
	if args.PowerOnBehavior {
		ext.Exposes = append(ext.Exposes, exposes.PowerOnBehavior())
		ext.FromZigbee = append(ext.FromZigbee, fz.PowerOnBehavior)
		ext.ToZigbee = append(ext.ToZigbee, tz.PowerOnBehavior)
	}
	if args.ConfigureReporting {
		ext.Configure = []definition.ConfigureFunc{func(ctx context.Context, dev Device, _ *definition.Definition) error {
			for _, ep := range InputEndpoints(dev, "genOnOff") {
				if err := reporting.Bind(ctx, ep, []string{"genOnOff", "genLevelCtrl"}); err != nil {
					return err
				}
				if err := reporting.OnOff(ctx, ep); err != nil {
					return err
				}
				if err := reporting.Brightness(ctx, ep); err != nil {
					return err
				}
			}
			return nil
		}}
	}
	return ext
}

// Identify lets the user make the device identify itself.
func Identify() definition.ModernExtend {
	return definition.ModernExtend{
		Exposes: []*exposes.Expose{
			exposes.Enum("identify", exposes.AccessSet, []string{"identify"}).
				WithDescription("Initiate device identification").
				WithCategory(exposes.CategoryConfig),
		},
		ToZigbee: []*definition.ToZigbee{tz.Identify},
	}
}

func measurement(cluster string, expose *exposes.Expose, converter *definition.FromZigbee, preset func(context.Context, Endpoint, ...reporting.Override) error) definition.ModernExtend {
	get := &definition.ToZigbee{
		Keys: []string{expose.Name},
		ConvertGet: func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
			_, err := ep.Read(ctx, cluster, []string{"measuredValue"}, definition.ZCLOptions{})
			return err
		},
	}
	configure := func(ctx context.Context, dev Device, _ *definition.Definition) error {
		for _, ep := range InputEndpoints(dev, cluster) {
			if err := reporting.Bind(ctx, ep, []string{cluster}); err != nil {
				return err
			}
			if err := preset(ctx, ep); err != nil {
				return err
			}
		}
		return nil
	}
	return definition.ModernExtend{
		Exposes:    []*exposes.Expose{expose.WithAccess(exposes.AccessStateGet)},
		FromZigbee: []*definition.FromZigbee{converter},
		ToZigbee:   []*definition.ToZigbee{get},
		Configure:  []definition.ConfigureFunc{configure},
	}
}

func Temperature() definition.ModernExtend {
	return measurement("msTemperatureMeasurement", exposes.Temperature(), fz.Temperature, reporting.Temperature)
}

func Humidity() definition.ModernExtend {
	return measurement("msRelativeHumidity", exposes.Humidity(), fz.Humidity, reporting.Humidity)
}

func Illuminance() definition.ModernExtend {
	return measurement("msIlluminanceMeasurement", exposes.Illuminance(), fz.Illuminance, reporting.Illuminance)
}
