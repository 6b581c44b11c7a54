package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/extend"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

// DefinitionFile is a device model declared in JSON. Behaviour is limited to
// the named modern extends plus plain bind/reporting configure steps.
type DefinitionFile struct {
	ZigbeeModel    []string                 `json:"zigbee_model,omitempty"`
	Fingerprint    []definition.Fingerprint `json:"fingerprint,omitempty"`
	Model          string                   `json:"model"`
	Vendor         string                   `json:"vendor"`
	Description    string                   `json:"description"`
	WhiteLabel     []definition.WhiteLabel  `json:"white_label,omitempty"`
	CustomClusters []zcl.ClusterDef         `json:"custom_clusters,omitempty"`
	Extend         []ExtendSpec             `json:"extend,omitempty"`
	Bind           []string                 `json:"bind,omitempty"`
	Reporting      []ReportingEntry         `json:"reporting,omitempty"`
	OTA            bool                     `json:"ota,omitempty"`
}

// ReportingEntry configures reporting of one attribute on one endpoint
// (endpoint 1 when zero).
type ReportingEntry struct {
	Endpoint  uint8  `json:"endpoint,omitempty"`
	Cluster   string `json:"cluster"`
	Attribute string `json:"attribute"`
	Min       uint16 `json:"min"`
	Max       uint16 `json:"max"`
	Change    any    `json:"change,omitempty"`
}

// ExtendSpec names a modern extend and carries its arguments. Only the
// fields the extend understands are read.
type ExtendSpec struct {
	Type string `json:"type"`

	// on_off, light
	PowerOnBehavior    bool     `json:"power_on_behavior,omitempty"`
	ConfigureReporting bool     `json:"configure_reporting,omitempty"`
	Effect             bool     `json:"effect,omitempty"`
	Endpoints          []string `json:"endpoints,omitempty"`

	// battery
	Percentage          bool                     `json:"percentage,omitempty"`
	Voltage             bool                     `json:"voltage,omitempty"`
	LowStatus           bool                     `json:"low_status,omitempty"`
	VoltageToPercentage *definition.VoltageRange `json:"voltage_to_percentage,omitempty"`

	// electricity_meter
	MeterCluster string `json:"meter_cluster,omitempty"`
	Power        bool   `json:"power,omitempty"`
	Current      bool   `json:"current,omitempty"`
	Energy       bool   `json:"energy,omitempty"`

	// ias_zone_alarm
	ZoneType       string   `json:"zone_type,omitempty"`
	ZoneAttributes []string `json:"zone_attributes,omitempty"`

	// enum_lookup, binary, numeric
	Name             string                  `json:"name,omitempty"`
	Cluster          string                  `json:"cluster,omitempty"`
	Attribute        string                  `json:"attribute,omitempty"`
	Description      string                  `json:"description,omitempty"`
	Endpoint         string                  `json:"endpoint,omitempty"`
	Access           string                  `json:"access,omitempty"`
	Category         string                  `json:"category,omitempty"`
	ManufacturerCode uint16                  `json:"manufacturer_code,omitempty"`
	Lookup           definition.Lookup       `json:"lookup,omitempty"`
	ValueOn          *definition.LookupEntry `json:"value_on,omitempty"`
	ValueOff         *definition.LookupEntry `json:"value_off,omitempty"`
	Unit             string                  `json:"unit,omitempty"`
	ValueMin         *float64                `json:"value_min,omitempty"`
	ValueMax         *float64                `json:"value_max,omitempty"`
	ValueStep        *float64                `json:"value_step,omitempty"`
	Scale            float64                 `json:"scale,omitempty"`
	Precision        int                     `json:"precision,omitempty"`
	Reporting        *extend.ReportingArgs   `json:"reporting,omitempty"`

	// bind_cluster
	ClusterType string `json:"cluster_type,omitempty"`

	// device_endpoints
	EndpointMap map[string]uint8 `json:"endpoint_map,omitempty"`

	// quirk_checkin_interval
	Seconds int `json:"seconds,omitempty"`
}

var accessNames = map[string]exposes.Access{
	"":          exposes.AccessAll,
	"all":       exposes.AccessAll,
	"state":     exposes.AccessState,
	"set":       exposes.AccessSet,
	"get":       exposes.AccessGet,
	"state_set": exposes.AccessStateSet,
	"state_get": exposes.AccessStateGet,
}

// Build turns the spec into a modern extend.
func (s ExtendSpec) Build() (definition.ModernExtend, error) {
	access, ok := accessNames[s.Access]
	if !ok {
		return definition.ModernExtend{}, fmt.Errorf("extend %s: unknown access %q", s.Type, s.Access)
	}
	opts := definition.ZCLOptions{ManufacturerCode: s.ManufacturerCode}

	switch s.Type {
	case "on_off":
		return extend.OnOff(extend.OnOffArgs{PowerOnBehavior: s.PowerOnBehavior, ConfigureReporting: s.ConfigureReporting, Endpoints: s.Endpoints}), nil
	case "light":
		return extend.Light(extend.LightArgs{ConfigureReporting: s.ConfigureReporting, Effect: s.Effect, PowerOnBehavior: s.PowerOnBehavior}), nil
	case "identify":
		return extend.Identify(), nil
	case "temperature":
		return extend.Temperature(), nil
	case "humidity":
		return extend.Humidity(), nil
	case "illuminance":
		return extend.Illuminance(), nil
	case "battery":
		return extend.Battery(extend.BatteryArgs{
			Percentage:          s.Percentage,
			Voltage:             s.Voltage,
			LowStatus:           s.LowStatus,
			PercentageReporting: s.ConfigureReporting && s.Percentage,
			VoltageReporting:    s.ConfigureReporting && s.Voltage,
			VoltageToPercentage: s.VoltageToPercentage,
		}), nil
	case "electricity_meter":
		return extend.ElectricityMeter(extend.ElectricityMeterArgs{
			Cluster: s.MeterCluster,
			Power:   s.Power,
			Voltage: s.Voltage,
			Current: s.Current,
			Energy:  s.Energy,
		}), nil
	case "ias_zone_alarm":
		return extend.IASZoneAlarm(extend.IASZoneAlarmArgs{ZoneType: s.ZoneType, ZoneAttributes: s.ZoneAttributes, Description: s.Description}), nil
	case "enum_lookup":
		if len(s.Lookup) == 0 {
			return definition.ModernExtend{}, fmt.Errorf("extend enum_lookup %s: empty lookup", s.Name)
		}
		return extend.EnumLookup(extend.EnumLookupArgs{
			Name: s.Name, Cluster: s.Cluster, Attribute: s.Attribute, Lookup: s.Lookup,
			Description: s.Description, Endpoint: s.Endpoint, Access: access,
			EntityCategory: s.Category, Reporting: s.Reporting, ZCLOptions: opts,
		}), nil
	case "binary":
		if s.ValueOn == nil || s.ValueOff == nil {
			return definition.ModernExtend{}, fmt.Errorf("extend binary %s: value_on and value_off are required", s.Name)
		}
		return extend.Binary(extend.BinaryArgs{
			Name: s.Name, Cluster: s.Cluster, Attribute: s.Attribute,
			ValueOn: *s.ValueOn, ValueOff: *s.ValueOff,
			Description: s.Description, Endpoint: s.Endpoint, Access: access,
			EntityCategory: s.Category, Reporting: s.Reporting, ZCLOptions: opts,
		}), nil
	case "numeric":
		return extend.Numeric(extend.NumericArgs{
			Name: s.Name, Cluster: s.Cluster, Attribute: s.Attribute,
			Description: s.Description, Unit: s.Unit,
			ValueMin: s.ValueMin, ValueMax: s.ValueMax, ValueStep: s.ValueStep,
			Scale: s.Scale, Precision: s.Precision,
			Endpoint: s.Endpoint, Access: access,
			EntityCategory: s.Category, Reporting: s.Reporting, ZCLOptions: opts,
		}), nil
	case "bind_cluster":
		clusterType := extend.ClusterInput
		switch s.ClusterType {
		case "", "input":
		case "output":
			clusterType = extend.ClusterOutput
		default:
			return definition.ModernExtend{}, fmt.Errorf("extend bind_cluster: unknown cluster_type %q", s.ClusterType)
		}
		return extend.BindCluster(extend.BindClusterArgs{Cluster: s.Cluster, ClusterType: clusterType, Endpoints: s.Endpoints}), nil
	case "device_endpoints":
		return extend.DeviceEndpoints(s.EndpointMap), nil
	case "quirk_checkin_interval":
		return extend.QuirkCheckinInterval(s.Seconds), nil
	}
	return definition.ModernExtend{}, fmt.Errorf("unknown extend %q", s.Type)
}

// Definition builds the definition the file describes.
func (f DefinitionFile) Definition() (*definition.Definition, error) {
	def := &definition.Definition{
		ZigbeeModel:    f.ZigbeeModel,
		Fingerprint:    f.Fingerprint,
		Model:          f.Model,
		Vendor:         f.Vendor,
		Description:    f.Description,
		WhiteLabel:     f.WhiteLabel,
		CustomClusters: f.CustomClusters,
		OTA:            f.OTA,
	}
	for _, spec := range f.Extend {
		ext, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Model, err)
		}
		def.Extend = append(def.Extend, ext)
	}
	if len(f.Bind) > 0 || len(f.Reporting) > 0 {
		def.Configure = f.configure
	}
	return def, nil
}

func (f DefinitionFile) configure(ctx context.Context, dev Device, _ *definition.Definition) error {
	if len(f.Bind) > 0 {
		ep, err := endpoint(dev, 1)
		if err != nil {
			return err
		}
		if err := reporting.Bind(ctx, ep, f.Bind); err != nil {
			return err
		}
	}
	for _, r := range f.Reporting {
		ep, err := endpoint(dev, max(r.Endpoint, 1))
		if err != nil {
			return err
		}
		item := definition.ReportingItem{
			Attribute:        r.Attribute,
			MinInterval:      r.Min,
			MaxInterval:      r.Max,
			ReportableChange: r.Change,
		}
		if err := ep.ConfigureReporting(ctx, r.Cluster, []definition.ReportingItem{item}, definition.ZCLOptions{}); err != nil {
			return fmt.Errorf("reporting %s.%s: %w", r.Cluster, r.Attribute, err)
		}
	}
	return nil
}

// VendorGroup groups models under one vendor name.
type VendorGroup struct {
	Name   string           `json:"name"`
	Models []DefinitionFile `json:"models"`
}

// deviceFile is the JSON structure for files in the devices directory.
type deviceFile struct {
	Clusters []zcl.ClusterDef `json:"clusters,omitempty"`
	Devices  []DefinitionFile `json:"devices,omitempty"`
	Vendors  []VendorGroup    `json:"vendors,omitempty"`
}

// LoadDir reads every *.json file in dir, registering shared clusters into
// registry and the definitions into c. Definitions replace built-ins with
// the same model. A missing or empty directory is not an error.
func LoadDir(dir string, registry *zcl.Registry, c *Catalog, logger *slog.Logger) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("glob devices dir: %w", err)
	}
	if len(matches) == 0 {
		logger.Info("no device definition files found", "dir", dir)
		return nil
	}

	var errs []error
	total := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var df deviceFile
		if err := json.Unmarshal(data, &df); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, cl := range df.Clusters {
			registry.Register(cl)
		}
		files := df.Devices
		for _, g := range df.Vendors {
			for _, m := range g.Models {
				m.Vendor = g.Name
				files = append(files, m)
			}
		}

		var defs []*definition.Definition
		for _, f := range files {
			def, err := f.Definition()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
				continue
			}
			defs = append(defs, def)
		}
		if err := c.Register(defs...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
		total += len(defs)
		logger.Info("loaded device file", "path", filepath.Base(path),
			"clusters", len(df.Clusters), "devices", len(defs))
	}

	logger.Info("device definitions loaded", "files", len(matches), "devices", total, "catalog", c.Len())
	return errors.Join(errs...)
}
