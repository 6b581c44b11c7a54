package devices_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/definitiontest"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/zcl"
)

const vendorFile = `{
  "clusters": [
    {
      "id": 64704,
      "name": "acmeSpecific",
      "manufacturer_code": 4660,
      "attributes": [{"id": 1, "name": "ledMode", "type": 48}]
    }
  ],
  "vendors": [
    {
      "name": "Acme",
      "models": [
        {
          "zigbee_model": ["ACME-PLUG-1"],
          "model": "AP-1",
          "description": "Smart plug",
          "white_label": [{"vendor": "Acme", "model": "AP-1-UK", "fingerprint": [{"model_id": "ACME-PLUG-1-UK"}]}],
          "extend": [
            {"type": "on_off", "power_on_behavior": true},
            {"type": "electricity_meter", "power": true, "energy": true},
            {
              "type": "enum_lookup",
              "name": "led_mode",
              "cluster": "acmeSpecific",
              "attribute": "ledMode",
              "manufacturer_code": 4660,
              "category": "config",
              "lookup": [{"key": "off", "value": 0}, {"key": "on", "value": 1}]
            }
          ],
          "bind": ["genOnOff"],
          "reporting": [{"cluster": "genOnOff", "attribute": "onOff", "min": 0, "max": 3600}]
        }
      ]
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme.json", vendorFile)
	writeFile(t, dir, "notes.txt", "ignored")

	registry := zcl.NewRegistry(testLogger())
	c := defaultCatalog(t)
	before := c.Len()
	require.NoError(t, devices.LoadDir(dir, registry, c, testLogger()))
	assert.Equal(t, before+1, c.Len())

	cl := registry.GetByName("acmeSpecific")
	require.NotNil(t, cl)
	assert.Equal(t, uint16(0xfcc0), cl.ID)

	m, ok := c.Find("ACME-PLUG-1-UK", "")
	require.True(t, ok)
	assert.Equal(t, "AP-1-UK", m.Model)
	assert.Equal(t, "AP-1", m.Definition.Model)
	assert.Equal(t, "Acme", m.Definition.Vendor)

	def := m.Definition
	assert.NotNil(t, def.ToZigbeeFor("state", false))
	assert.NotNil(t, def.ToZigbeeFor("led_mode", false))

	dev := definitiontest.NewDevice("0x00000000000000a1", "ACME-PLUG-1", &definitiontest.Endpoint{EP: 1})
	require.NoError(t, def.RunConfigure(context.Background(), dev))
	binds := dev.CallsOf(definitiontest.KindBind)
	require.NotEmpty(t, binds)
	assert.Equal(t, "genOnOff", binds[0].Cluster)
	reports := dev.CallsOf(definitiontest.KindConfigureReporting)
	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.Equal(t, "onOff", last.Reporting[0].Attribute)
	assert.Equal(t, uint16(3600), last.Reporting[0].MaxInterval)
}

func TestLoadDirOverridesBuiltIn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "override.json", `{"devices": [{
		"zigbee_model": ["RBSH-MMR-ZB-EU"],
		"model": "BMCT-RZ",
		"vendor": "Bosch",
		"description": "Relay from file",
		"extend": [{"type": "on_off"}]
	}]}`)

	c := defaultCatalog(t)
	before := c.Len()
	require.NoError(t, devices.LoadDir(dir, zcl.NewRegistry(testLogger()), c, testLogger()))
	assert.Equal(t, before, c.Len())
	m, ok := c.Find("RBSH-MMR-ZB-EU", "")
	require.True(t, ok)
	assert.Equal(t, "Relay from file", m.Description)
}

func TestLoadDirMissing(t *testing.T) {
	c := devices.NewCatalog(testLogger())
	require.NoError(t, devices.LoadDir(filepath.Join(t.TempDir(), "nope"), zcl.NewRegistry(testLogger()), c, testLogger()))
	assert.Zero(t, c.Len())
}

func TestLoadDirErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "bad.json", `{"devices": [`)
		err := devices.LoadDir(dir, zcl.NewRegistry(testLogger()), devices.NewCatalog(testLogger()), testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse")
	})

	t.Run("bad model keeps the rest", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "mixed.json", `{"devices": [
			{"zigbee_model": ["X"], "model": "X", "vendor": "Acme", "extend": [{"type": "teleport"}]},
			{"zigbee_model": ["Y"], "model": "Y", "vendor": "Acme", "extend": [{"type": "temperature"}]}
		]}`)
		c := devices.NewCatalog(testLogger())
		err := devices.LoadDir(dir, zcl.NewRegistry(testLogger()), c, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown extend "teleport"`)
		_, ok := c.FindByModel("Y")
		assert.True(t, ok)
		assert.Equal(t, 1, c.Len())
	})
}

func TestExtendSpecBuild(t *testing.T) {
	tests := []struct {
		name    string
		spec    devices.ExtendSpec
		wantErr string
	}{
		{"battery", devices.ExtendSpec{Type: "battery", Percentage: true, Voltage: true}, ""},
		{"enum without lookup", devices.ExtendSpec{Type: "enum_lookup", Name: "mode"}, "empty lookup"},
		{"binary without values", devices.ExtendSpec{Type: "binary", Name: "led"}, "value_on and value_off"},
		{"bad access", devices.ExtendSpec{Type: "numeric", Name: "level", Access: "rw"}, "unknown access"},
		{"bad cluster type", devices.ExtendSpec{Type: "bind_cluster", Cluster: "genPollCtrl", ClusterType: "both"}, "unknown cluster_type"},
		{"endpoints", devices.ExtendSpec{Type: "device_endpoints", EndpointMap: map[string]uint8{"l1": 1, "l2": 2}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := tt.spec.Build()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, isZero(ext))
		})
	}
}

func isZero(ext definition.ModernExtend) bool {
	return len(ext.Exposes) == 0 && len(ext.FromZigbee) == 0 && len(ext.Endpoints) == 0 && ext.Meta == nil
}
