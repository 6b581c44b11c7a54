// Package definition is the device definition model: per-model metadata,
// fromZigbee/toZigbee converters, exposes and the configure step run when a
// device is paired. Definitions are assembled from plain fields and from
// ModernExtends, reusable bundles built in the extend package.
package definition

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

// Fingerprint matches a device by its genBasic identity.
type Fingerprint struct {
	ModelID      string `json:"model_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Matches reports whether modelID/manufacturer satisfy the fingerprint;
// empty fields match anything.
func (f Fingerprint) Matches(modelID, manufacturer string) bool {
	if f.ModelID != "" && f.ModelID != modelID {
		return false
	}
	return f.Manufacturer == "" || f.Manufacturer == manufacturer
}

// WhiteLabel is a rebranded variant of a definition.
type WhiteLabel struct {
	Vendor      string        `json:"vendor"`
	Model       string        `json:"model"`
	Description string        `json:"description,omitempty"`
	Fingerprint []Fingerprint `json:"fingerprint,omitempty"`
}

// VoltageRange is the usable battery voltage range in millivolts.
type VoltageRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type BatteryMeta struct {
	VoltageToPercentage  *VoltageRange `json:"voltage_to_percentage,omitempty"`
	DontDividePercentage bool          `json:"dont_divide_percentage,omitempty"`
}

// Meta holds definition-level quirks.
type Meta struct {
	Battery *BatteryMeta `json:"battery,omitempty"`
	// MultiEndpoint makes converters suffix state keys with the endpoint name.
	MultiEndpoint bool `json:"multi_endpoint,omitempty"`
	// OverrideHADiscovery rewrites each Home Assistant discovery payload
	// generated for the device.
	OverrideHADiscovery func(payload map[string]any) `json:"-"`
}

func (m *Meta) merge(other *Meta) {
	if other == nil {
		return
	}
	if m.Battery == nil {
		m.Battery = other.Battery
	}
	m.MultiEndpoint = m.MultiEndpoint || other.MultiEndpoint
	if m.OverrideHADiscovery == nil {
		m.OverrideHADiscovery = other.OverrideHADiscovery
	}
}

// ConfigureFunc runs once after a device is interviewed.
type ConfigureFunc func(ctx context.Context, dev Device, def *Definition) error

// ExposesFunc computes exposes from the live device.
type ExposesFunc func(dev Device, options Values) []*exposes.Expose

// ModernExtend is a reusable slice of a definition.
type ModernExtend struct {
	Exposes        []*exposes.Expose
	FromZigbee     []*FromZigbee
	ToZigbee       []*ToZigbee
	Configure      []ConfigureFunc
	CustomClusters []zcl.ClusterDef
	Endpoints      map[string]uint8
	Meta           *Meta
	OTA            bool
}

// Definition describes one device model.
type Definition struct {
	ZigbeeModel []string
	Fingerprint []Fingerprint
	Model       string
	Vendor      string
	Description string
	WhiteLabel  []WhiteLabel

	FromZigbee     []*FromZigbee
	ToZigbee       []*ToZigbee
	Exposes        []*exposes.Expose
	DynamicExposes ExposesFunc
	Configure      ConfigureFunc
	Meta           Meta
	OTA            bool
	Extend         []ModernExtend
	// CustomClusters are vendor clusters, or vendor extensions of standard
	// ones, known only to devices of this model.
	CustomClusters []zcl.ClusterDef
	// Endpoints names endpoints, e.g. {"left": 2, "right": 3}.
	Endpoints map[string]uint8
	// Options are user settings, collected from the converters.
	Options []*exposes.Expose

	finalized  bool
	configures []ConfigureFunc
}

// Finalize merges the extends into the definition and appends the
// linkquality expose. It is idempotent.
func (d *Definition) Finalize() error {
	if d.finalized {
		return nil
	}
	if d.Model == "" || d.Vendor == "" {
		return errors.New("definition: model and vendor are required")
	}
	if len(d.ZigbeeModel) == 0 && len(d.Fingerprint) == 0 {
		return fmt.Errorf("definition %s: no zigbeeModel or fingerprint", d.Model)
	}

	if d.Configure != nil {
		d.configures = append(d.configures, d.Configure)
	}
	for _, ext := range d.Extend {
		d.Exposes = append(d.Exposes, ext.Exposes...)
		d.FromZigbee = append(d.FromZigbee, ext.FromZigbee...)
		d.ToZigbee = append(d.ToZigbee, ext.ToZigbee...)
		d.configures = append(d.configures, ext.Configure...)
		d.CustomClusters = append(d.CustomClusters, ext.CustomClusters...)
		if len(ext.Endpoints) > 0 {
			if d.Endpoints == nil {
				d.Endpoints = make(map[string]uint8, len(ext.Endpoints))
			}
			maps.Copy(d.Endpoints, ext.Endpoints)
		}
		d.Meta.merge(ext.Meta)
		d.OTA = d.OTA || ext.OTA
	}

	for _, fz := range d.FromZigbee {
		for _, opt := range fz.Options {
			if !lo.ContainsBy(d.Options, func(o *exposes.Expose) bool { return o.Name == opt.Name }) {
				d.Options = append(d.Options, opt)
			}
		}
	}

	d.Exposes = append(d.Exposes, exposes.LinkQuality())
	d.finalized = true
	return nil
}

// RunConfigure runs the definition's own configure step followed by those
// of its extends, stopping at the first error.
func (d *Definition) RunConfigure(ctx context.Context, dev Device) error {
	for i, fn := range d.configures {
		if err := fn(ctx, dev, d); err != nil {
			return fmt.Errorf("configure %s step %d: %w", d.Model, i+1, err)
		}
	}
	return nil
}

// HasConfigure reports whether pairing needs a configure step.
func (d *Definition) HasConfigure() bool {
	return len(d.configures) > 0
}

// ExposesFor returns the static exposes followed by the dynamic ones for dev.
func (d *Definition) ExposesFor(dev Device, options Values) []*exposes.Expose {
	if d.DynamicExposes == nil {
		return d.Exposes
	}
	out := append([]*exposes.Expose(nil), d.Exposes...)
	return append(out, d.DynamicExposes(dev, options)...)
}

// FromZigbeeFor returns the converters for a message, in declaration order.
func (d *Definition) FromZigbeeFor(msgType, cluster string) []*FromZigbee {
	return lo.Filter(d.FromZigbee, func(c *FromZigbee, _ int) bool { return c.Matches(msgType, cluster) })
}

// ToZigbeeFor returns the first converter able to set (or get) key.
func (d *Definition) ToZigbeeFor(key string, get bool) *ToZigbee {
	c, _ := lo.Find(d.ToZigbee, func(c *ToZigbee) bool {
		if !c.Handles(key) {
			return false
		}
		if get {
			return c.ConvertGet != nil
		}
		return c.ConvertSet != nil
	})
	return c
}

// EndpointID resolves a named endpoint.
func (d *Definition) EndpointID(name string) (uint8, bool) {
	id, ok := d.Endpoints[name]
	return id, ok
}

// Matches reports whether the definition applies to a device reporting
// modelID and manufacturer.
func (d *Definition) Matches(modelID, manufacturer string) bool {
	if lo.Contains(d.ZigbeeModel, modelID) {
		return true
	}
	return lo.ContainsBy(d.Fingerprint, func(f Fingerprint) bool { return f.Matches(modelID, manufacturer) })
}

// WhiteLabelFor returns the white label whose fingerprint matches, if any.
func (d *Definition) WhiteLabelFor(modelID, manufacturer string) (WhiteLabel, bool) {
	return lo.Find(d.WhiteLabel, func(w WhiteLabel) bool {
		return lo.ContainsBy(w.Fingerprint, func(f Fingerprint) bool { return f.Matches(modelID, manufacturer) })
	})
}

// Validate checks that every settable static expose has a converter.
// Dynamic exposes cannot be checked without a device.
func (d *Definition) Validate() error {
	var errs []error
	for _, e := range exposes.Flatten(d.Exposes) {
		if e.Access.Has(exposes.AccessSet) && d.ToZigbeeFor(e.Name, false) == nil {
			errs = append(errs, fmt.Errorf("%s: %q is settable but has no toZigbee converter", d.Model, e.Name))
		}
	}
	return errors.Join(errs...)
}
