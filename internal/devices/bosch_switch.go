package devices

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/fz"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

const (
	ledConfigLength     = 9
	defaultLEDResponse  = "30ff00000102010001"
	ledConfigFormatHelp = `0-2: RGB value (e.g. ffffff = white)
3: Light position (01=top, 02=bottom, 00=full)
4-7: Durations for sequence fade-in -> on -> fade-out -> off (e.g. 01020102)
8: Number of Repetitions (01=1 to ff=255)`
)

var switchButtons = []string{"top_left", "top_right", "bottom_left", "bottom_right"}

// ledConfigs maps the LED config keys to their boschSpecific attribute:
// 0x10+button for short presses, 0x20+button for long presses.
var ledConfigs = func() definition.Lookup {
	var l definition.Lookup
	for _, press := range []struct {
		suffix string
		base   int
	}{{"press", 0x10}, {"longpress", 0x20}} {
		for i, button := range switchButtons {
			l = append(l, definition.LookupEntry{Key: "config_led_" + button + "_" + press.suffix, Value: press.base + i})
		}
	}
	return l
}()

func universalSwitchCluster() zcl.ClusterDef {
	attrs := make([]zcl.AttributeDef, 0, len(ledConfigs)+1)
	for _, e := range ledConfigs {
		attrs = append(attrs, boschAttr(uint16(e.Value), e.Key, zcl.TypeOctetStr))
	}
	attrs = append(attrs, boschAttr(0x0024, "unknown24", zcl.TypeBitmap8))
	return zcl.ClusterDef{
		ID:               0xfca1,
		Name:             "boschSpecific",
		ManufacturerCode: ManufacturerBosch,
		Attributes:       attrs,
		Commands: []zcl.CommandDef{
			{ID: 0x10, Name: "confirmButtonPressed", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeBuffer}}},
			{ID: 0x12, Name: "pairingCompleted", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{{Name: "data", Type: zcl.TypeBuffer}}},
		},
	}
}

// ledResponse returns the confirmation pattern configured in options.
func ledResponse(options Values, logger *slog.Logger) []byte {
	fallback, _ := hex.DecodeString(defaultLEDResponse)
	s, ok := options["led_response"].(string)
	if !ok || s == "" {
		return fallback
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ledConfigLength {
		if logger != nil {
			logger.Error("invalid led_response", "value", s, "length", len(b))
		}
		return fallback
	}
	return b
}

var buttonPress = &definition.FromZigbee{
	Cluster: "boschSpecific",
	Types:   []string{definition.MsgRaw},
	Options: []*exposes.Expose{
		exposes.Text("led_response", exposes.AccessAll).
			WithLabel("LED config (confirmation response)").
			WithDescription("Specifies LED color (rgb) and pattern of the confirmation response as hex string.\n" + ledConfigFormatHelp + "\nExample: " + defaultLEDResponse),
	},
	Convert: func(ctx context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, options Values, meta *definition.ConvertMeta) (Values, error) {
		if len(msg.Raw) < 8 {
			return nil, fmt.Errorf("button press frame too short: %d bytes", len(msg.Raw))
		}
		seq := msg.Raw[3]
		buttonID := int(msg.Raw[4])
		longPress := msg.Raw[5] != 0
		duration := binary.LittleEndian.Uint16(msg.Raw[6:8])

		var logger *slog.Logger
		if meta != nil {
			logger = meta.Logger
		}
		confirmation := ledResponse(options, logger)

		if definition.HasAlreadyProcessedMessage(msg, int(seq)) {
			return nil, nil
		}
		if buttonID >= len(switchButtons) {
			if logger != nil {
				logger.Error("unknown button", "button", buttonID, "data", hex.EncodeToString(msg.Raw))
			}
			return nil, nil
		}
		button := switchButtons[buttonID]

		var command string
		if longPress && duration > 0 {
			if definition.HasValue(msg.Endpoint, button) {
				return nil, nil
			}
			definition.PutValue(msg.Endpoint, button, duration)
			command = "longpress"
		} else {
			definition.ClearValue(msg.Endpoint, button)
			command = "release"
			if longPress {
				command = "longpress_release"
			}
			if err := msg.Endpoint.Command(ctx, "boschSpecific", "confirmButtonPressed", Values{"data": confirmation}, definition.ZCLOptions{}); err != nil && logger != nil {
				logger.Debug("button confirmation failed", "device", msg.Endpoint.DeviceIEEE(), "err", err)
			}
		}
		return Values{"action": "button_" + button + "_" + command}, nil
	},
}

var ledConfigReport = &definition.FromZigbee{
	Cluster: "boschSpecific",
	Types:   []string{definition.MsgAttributeReport, definition.MsgReadResponse},
	Convert: func(_ context.Context, _ *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
		result := Values{}
		for _, e := range ledConfigs {
			switch v := msg.Data[e.Key].(type) {
			case []byte:
				result[e.Key] = hex.EncodeToString(v)
			case string:
				result[e.Key] = hex.EncodeToString([]byte(v))
			}
		}
		return result, nil
	},
}

var ledConfig = &definition.ToZigbee{
	Keys: ledConfigs.Keys(),
	ConvertSet: func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
		id, err := ledConfigs.Value(key)
		if err != nil {
			return nil, err
		}
		s, _ := value.(string)
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration %q: %w", s, err)
		}
		if len(b) != ledConfigLength {
			return nil, fmt.Errorf("invalid configuration length: %d (should be %d)", len(b), ledConfigLength)
		}
		record := zcl.AttributeRecord{ID: uint16(id), Type: zcl.TypeOctetStr, Value: b}
		if err := ep.WriteTyped(ctx, "boschSpecific", []zcl.AttributeRecord{record}, boschOptions); err != nil {
			return nil, err
		}
		return &definition.TzResult{State: Values{key: s}}, nil
	},
	ConvertGet: func(ctx context.Context, ep Endpoint, key string, _ *definition.TzMeta) error {
		if _, err := ledConfigs.Value(key); err != nil {
			return fmt.Errorf("%w: %s", definition.ErrUnsupportedKey, key)
		}
		_, err := ep.Read(ctx, "boschSpecific", []string{key}, boschOptions)
		return err
	},
}

func configureUniversalSwitch(ctx context.Context, dev Device, _ *definition.Definition) error {
	ep, err := endpoint(dev, 1)
	if err != nil {
		return err
	}
	keys := ledConfigs.Keys()
	// LED defaults are optional; older firmware does not answer.
	_, _ = ep.Read(ctx, "boschSpecific", keys[:4], boschOptions)
	_, _ = ep.Read(ctx, "boschSpecific", keys[4:], boschOptions)
	if _, err := ep.Read(ctx, "boschSpecific", []string{"unknown24"}, boschOptions); err != nil {
		return err
	}
	if err := ep.Command(ctx, "boschSpecific", "pairingCompleted", Values{"data": []byte{0x00}}, definition.ZCLOptions{}); err != nil {
		return err
	}
	if err := reporting.Bind(ctx, ep, []string{"genPowerCfg", "genBasic", "boschSpecific"}); err != nil {
		return err
	}
	if err := reporting.BatteryPercentageRemaining(ctx, ep); err != nil {
		return err
	}
	return reporting.BatteryVoltage(ctx, ep)
}

func universalSwitchExposes() []*exposes.Expose {
	list := []*exposes.Expose{exposes.BatteryLow(), exposes.BatteryVoltage()}
	labels := map[string]string{
		"top_left":     "top left",
		"top_right":    "top right",
		"bottom_left":  "bottom left",
		"bottom_right": "bottom right",
	}
	for i, e := range ledConfigs {
		button := switchButtons[i%len(switchButtons)]
		press, example := "short press", "ff1493000104010001"
		if i >= len(switchButtons) {
			press, example = "long press", "ff4200000502050001"
		}
		list = append(list, exposes.Text(e.Key, exposes.AccessAll).
			WithLabel(fmt.Sprintf("LED config (%s %s)", labels[button], press)).
			WithDescription(fmt.Sprintf("Specifies LED color (rgb) and pattern on %s as hex string.\n%s\nExample: %s", press, ledConfigFormatHelp, example)).
			WithCategory(exposes.CategoryConfig))
	}

	var actions []string
	for _, command := range []string{"release", "longpress", "longpress_release"} {
		for _, button := range switchButtons {
			actions = append(actions, "button_"+button+"_"+command)
		}
	}
	return append(list, exposes.Action(actions))
}

func boschUniversalSwitch() *definition.Definition {
	return &definition.Definition{
		ZigbeeModel:    []string{"RBSH-US4BTN-ZB-EU"},
		Model:          "BHI-US",
		Vendor:         "Bosch",
		Description:    "Universal Switch II",
		CustomClusters: []zcl.ClusterDef{universalSwitchCluster()},
		FromZigbee:     []*definition.FromZigbee{buttonPress, ledConfigReport, fz.Battery},
		ToZigbee:       []*definition.ToZigbee{ledConfig},
		Configure:      configureUniversalSwitch,
		Exposes:        universalSwitchExposes(),
	}
}
