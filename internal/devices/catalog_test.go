package devices_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/exposes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultCatalog(t *testing.T) *devices.Catalog {
	t.Helper()
	c, err := devices.Default(testLogger())
	require.NoError(t, err)
	return c
}

func TestDefaultRegistersEveryModel(t *testing.T) {
	c := defaultCatalog(t)
	models := []string{
		"BSIR-EZ", "BWA-1", "BSD-2", "RADION TriTech ZB", "ISW-ZPR1-WP13",
		"BTH-RA", "BTH-RM", "BTH-RM230Z", "8750001213", "RFPR-ZB-SH-EU",
		"BSP-FZ2", "BSEN-C2", "BSEN-CV", "BMCT-DZ", "BMCT-RZ", "BMCT-SLZ", "BHI-US",
		"MEAZON_BIZY_PLUG", "MEAZON_DINRAIL",
	}
	assert.Equal(t, len(models), c.Len())
	for _, m := range models {
		def, ok := c.FindByModel(m)
		if assert.True(t, ok, m) {
			assert.Equal(t, m, def.Model)
			assert.Equal(t, "linkquality", def.Exposes[len(def.Exposes)-1].Name, m)
		}
	}
}

func TestFind(t *testing.T) {
	c := defaultCatalog(t)

	tests := []struct {
		modelID, model, vendor, definition string
	}{
		{"RBSH-TRV0-ZB-EU", "BTH-RA", "Bosch", "BTH-RA"},
		{"Champion", "8750001213", "Bosch", "8750001213"},
		{"RFDL-ZB-MS", "RADION TriTech ZB", "Bosch", "RADION TriTech ZB"},
		{"RBSH-SP-ZB-EU", "BSP-FZ2", "Bosch", "BSP-FZ2"},
		{"RBSH-SP-ZB-FR", "BSP-EZ2", "Bosch", "BSP-FZ2"},
		{"RBSH-SP-ZB-GB", "BSP-GZ2", "Bosch", "BSP-FZ2"},
		{"102.106.000540", "MEAZON_DINRAIL", "Meazon", "MEAZON_DINRAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.modelID, func(t *testing.T) {
			m, ok := c.Find(tt.modelID, "")
			require.True(t, ok)
			assert.Equal(t, tt.model, m.Model)
			assert.Equal(t, tt.vendor, m.Vendor)
			assert.Equal(t, tt.definition, m.Definition.Model)
		})
	}

	_, ok := c.Find("lumi.sensor_ht", "LUMI")
	assert.False(t, ok)
}

func TestFindWhiteLabelDescription(t *testing.T) {
	m, ok := defaultCatalog(t).Find("RBSH-SP-ZB-GB", "")
	require.True(t, ok)
	assert.Equal(t, "Plug compact UK", m.Description)
}

func TestFindByModelCaseInsensitive(t *testing.T) {
	c := defaultCatalog(t)
	def, ok := c.FindByModel("bth-rm230z")
	require.True(t, ok)
	assert.Equal(t, "BTH-RM230Z", def.Model)

	def, ok = c.FindByModel("BSP-EZ2")
	require.True(t, ok)
	assert.Equal(t, "BSP-FZ2", def.Model)
}

func TestByVendorSorted(t *testing.T) {
	c := defaultCatalog(t)
	meazon := c.ByVendor("meazon")
	require.Len(t, meazon, 2)
	assert.Equal(t, "MEAZON_BIZY_PLUG", meazon[0].Model)
	assert.Equal(t, "MEAZON_DINRAIL", meazon[1].Model)
	assert.Len(t, c.ByVendor("Bosch"), 17)

	all := c.All()
	assert.Equal(t, "Bosch", all[0].Vendor)
	assert.Equal(t, "Meazon", all[len(all)-1].Vendor)
}

func TestRegisterRejectsSettableExposeWithoutConverter(t *testing.T) {
	c := devices.NewCatalog(testLogger())
	err := c.Register(&definition.Definition{
		ZigbeeModel: []string{"X1"},
		Model:       "X1",
		Vendor:      "Acme",
		Description: "Broken",
		Exposes:     []*exposes.Expose{exposes.Binary("child_lock", exposes.AccessAll, "LOCK", "UNLOCK")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child_lock")
	assert.Zero(t, c.Len())
}

func TestRegisterReplacesModel(t *testing.T) {
	c := defaultCatalog(t)
	before := c.Len()
	require.NoError(t, c.Register(&definition.Definition{
		ZigbeeModel: []string{"RBSH-MMR-ZB-EU"},
		Model:       "BMCT-RZ",
		Vendor:      "Bosch",
		Description: "Relay, overridden",
	}))
	assert.Equal(t, before, c.Len())
	m, ok := c.Find("RBSH-MMR-ZB-EU", "")
	require.True(t, ok)
	assert.Equal(t, "Relay, overridden", m.Description)
}

func TestRegisterReplacementDropsStaleIndexes(t *testing.T) {
	c := devices.NewCatalog(testLogger())
	require.NoError(t, c.Register(&definition.Definition{
		ZigbeeModel: []string{"ACME-OLD", "ACME-SHARED"},
		Model:       "A1",
		Vendor:      "Acme",
		Description: "First",
		WhiteLabel:  []definition.WhiteLabel{{Vendor: "Acme", Model: "A1-WL", Description: "Rebadged"}},
	}))

	require.NoError(t, c.Register(&definition.Definition{
		ZigbeeModel: []string{"ACME-NEW"},
		Model:       "A1",
		Vendor:      "Acme",
		Description: "Second",
	}))
	assert.Equal(t, 1, c.Len())
	for _, id := range []string{"ACME-OLD", "ACME-SHARED"} {
		_, ok := c.Find(id, "")
		assert.False(t, ok, "model id %s still indexed", id)
	}
	_, ok := c.FindByModel("A1-WL")
	assert.False(t, ok, "white label still indexed")
	m, ok := c.Find("ACME-NEW", "")
	require.True(t, ok)
	assert.Equal(t, "Second", m.Description)

	// A definition claiming another model's ID replaces that model.
	require.NoError(t, c.Register(&definition.Definition{
		ZigbeeModel: []string{"ACME-NEW"},
		Model:       "A2",
		Vendor:      "Acme",
		Description: "Third",
	}))
	assert.Equal(t, 1, c.Len())
	_, ok = c.FindByModel("A1")
	assert.False(t, ok)
	m, ok = c.Find("ACME-NEW", "")
	require.True(t, ok)
	assert.Equal(t, "A2", m.Model)
}

func TestSummarize(t *testing.T) {
	c := defaultCatalog(t)
	def, ok := c.FindByModel("BMCT-SLZ")
	require.True(t, ok)

	s := devices.Summarize(def, nil)
	assert.True(t, s.SupportsOTA)
	assert.True(t, s.Configure)
	names := lo.Map(s.Exposes, func(e *exposes.Expose, _ int) string { return e.Name })
	assert.Contains(t, names, "device_mode")
	assert.Contains(t, names, "power")
	assert.Contains(t, names, "energy")

	def, _ = c.FindByModel("BHI-US")
	s = devices.Summarize(def, nil)
	require.Len(t, s.Options, 1)
	assert.Equal(t, "led_response", s.Options[0].Name)
}
