package definition_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/definitiontest"
	"zigbee-go-catalog/internal/exposes"
)

func noopSet(context.Context, definition.Endpoint, string, any, *definition.TzMeta) (*definition.TzResult, error) {
	return nil, nil
}

func TestFinalizeMergesExtends(t *testing.T) {
	option := exposes.Numeric("temperature_calibration", exposes.AccessSet)
	d := &definition.Definition{
		ZigbeeModel: []string{"M1"},
		Model:       "M1",
		Vendor:      "Acme",
		Exposes:     []*exposes.Expose{exposes.Temperature()},
		FromZigbee: []*definition.FromZigbee{
			{Cluster: "msTemperatureMeasurement", Options: []*exposes.Expose{option}},
		},
		Extend: []definition.ModernExtend{
			{
				Exposes:    []*exposes.Expose{exposes.Battery()},
				FromZigbee: []*definition.FromZigbee{{Cluster: "genPowerCfg", Options: []*exposes.Expose{option}}},
				Endpoints:  map[string]uint8{"left": 1},
				Meta:       &definition.Meta{MultiEndpoint: true},
				OTA:        true,
			},
		},
	}
	require.NoError(t, d.Finalize())
	require.NoError(t, d.Finalize())

	names := make([]string, 0, len(d.Exposes))
	for _, e := range d.Exposes {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"temperature", "battery", "linkquality"}, names)
	assert.Len(t, d.FromZigbee, 2)
	assert.Len(t, d.Options, 1, "options are deduplicated by name")
	assert.True(t, d.Meta.MultiEndpoint)
	assert.True(t, d.OTA)
	id, ok := d.EndpointID("left")
	assert.True(t, ok)
	assert.Equal(t, uint8(1), id)
}

func TestFinalizeRequiresIdentity(t *testing.T) {
	assert.Error(t, (&definition.Definition{ZigbeeModel: []string{"x"}}).Finalize())
	assert.Error(t, (&definition.Definition{Model: "x", Vendor: "y"}).Finalize())
}

func TestRunConfigureOrder(t *testing.T) {
	var order []string
	step := func(name string) definition.ConfigureFunc {
		return func(context.Context, definition.Device, *definition.Definition) error {
			order = append(order, name)
			return nil
		}
	}
	d := &definition.Definition{
		ZigbeeModel: []string{"M1"},
		Model:       "M1",
		Vendor:      "Acme",
		Configure:   step("own"),
		Extend: []definition.ModernExtend{
			{Configure: []definition.ConfigureFunc{step("ext1")}},
			{Configure: []definition.ConfigureFunc{step("ext2")}},
		},
	}
	require.NoError(t, d.Finalize())
	assert.True(t, d.HasConfigure())
	require.NoError(t, d.RunConfigure(context.Background(), definitiontest.NewDevice("0x01", "M1")))
	assert.Equal(t, []string{"own", "ext1", "ext2"}, order)
}

func TestRunConfigureWrapsError(t *testing.T) {
	boom := errors.New("boom")
	d := &definition.Definition{
		ZigbeeModel: []string{"M1"},
		Model:       "M1",
		Vendor:      "Acme",
		Configure: func(context.Context, definition.Device, *definition.Definition) error {
			return boom
		},
	}
	require.NoError(t, d.Finalize())
	err := d.RunConfigure(context.Background(), definitiontest.NewDevice("0x01", "M1"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "configure M1 step 1")
}

func TestValidateSettableNeedsConverter(t *testing.T) {
	d := &definition.Definition{
		ZigbeeModel: []string{"M1"},
		Model:       "M1",
		Vendor:      "Acme",
		Exposes:     []*exposes.Expose{exposes.Switch(), exposes.Battery()},
	}
	require.NoError(t, d.Finalize())
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"state"`)
	assert.NotContains(t, err.Error(), "battery")

	d.ToZigbee = append(d.ToZigbee, &definition.ToZigbee{Keys: []string{"state"}, ConvertSet: noopSet})
	assert.NoError(t, d.Validate())
}

func TestToZigbeeForGetAndSet(t *testing.T) {
	getOnly := &definition.ToZigbee{
		Keys: []string{"battery"},
		ConvertGet: func(context.Context, definition.Endpoint, string, *definition.TzMeta) error {
			return nil
		},
	}
	setter := &definition.ToZigbee{Keys: []string{"battery"}, ConvertSet: noopSet}
	d := &definition.Definition{ToZigbee: []*definition.ToZigbee{getOnly, setter}}
	assert.Same(t, getOnly, d.ToZigbeeFor("battery", true))
	assert.Same(t, setter, d.ToZigbeeFor("battery", false))
	assert.Nil(t, d.ToZigbeeFor("state", false))
}

func TestMatchesAndWhiteLabel(t *testing.T) {
	d := &definition.Definition{
		ZigbeeModel: []string{"RBSH-SP-ZB-EU"},
		Fingerprint: []definition.Fingerprint{{ModelID: "RBSH-SP-ZB-FR", Manufacturer: "BOSCH"}},
		WhiteLabel: []definition.WhiteLabel{
			{Vendor: "Bosch", Model: "BSP-GZ2", Fingerprint: []definition.Fingerprint{{ModelID: "RBSH-SP-ZB-FR"}}},
		},
	}
	assert.True(t, d.Matches("RBSH-SP-ZB-EU", ""))
	assert.True(t, d.Matches("RBSH-SP-ZB-FR", "BOSCH"))
	assert.False(t, d.Matches("RBSH-SP-ZB-FR", "Other"))

	wl, ok := d.WhiteLabelFor("RBSH-SP-ZB-FR", "BOSCH")
	require.True(t, ok)
	assert.Equal(t, "BSP-GZ2", wl.Model)
	_, ok = d.WhiteLabelFor("RBSH-SP-ZB-EU", "")
	assert.False(t, ok)
}

func TestExposesForAppendsDynamic(t *testing.T) {
	d := &definition.Definition{
		Exposes: []*exposes.Expose{exposes.Battery()},
		DynamicExposes: func(definition.Device, definition.Values) []*exposes.Expose {
			return []*exposes.Expose{exposes.Switch()}
		},
	}
	list := d.ExposesFor(definitiontest.NewDevice("0x01", "M1"), nil)
	require.Len(t, list, 2)
	assert.Equal(t, exposes.TypeSwitch, list[1].Type)
	assert.Len(t, d.Exposes, 1)
}
