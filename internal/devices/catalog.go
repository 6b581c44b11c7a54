// Package devices is the built-in device catalog: per-model definitions for
// Bosch and Meazon products, plus definitions loaded from JSON files at
// runtime.
package devices

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/exposes"
)

type (
	Values   = definition.Values
	Endpoint = definition.Endpoint
	Device   = definition.Device
)

// Catalog indexes definitions by the model ID devices report in genBasic
// and by model name.
type Catalog struct {
	mu          sync.RWMutex
	definitions []*definition.Definition
	byModelID   map[string]*definition.Definition
	byModel     map[string]*definition.Definition
	logger      *slog.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		byModelID: make(map[string]*definition.Definition),
		byModel:   make(map[string]*definition.Definition),
		logger:    logger.With("component", "catalog"),
	}
}

// Default returns a catalog holding every built-in definition.
func Default(logger *slog.Logger) (*Catalog, error) {
	c := NewCatalog(logger)
	if err := c.Register(Bosch()...); err != nil {
		return nil, err
	}
	if err := c.Register(Meazon()...); err != nil {
		return nil, err
	}
	return c, nil
}

// Register finalizes, validates and indexes defs. A definition claiming a
// model ID or model name already present replaces the earlier one, so
// definition files can override built-ins.
func (c *Catalog) Register(defs ...*definition.Definition) error {
	var errs []error
	for _, def := range defs {
		if err := def.Finalize(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		c.add(def)
	}
	return errors.Join(errs...)
}

func (c *Catalog) add(def *definition.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, old := range c.conflicts(def) {
		c.logger.Info("definition replaced", "model", old.Model, "by", def.Model, "vendor", def.Vendor)
		c.remove(old)
	}
	c.definitions = append(c.definitions, def)
	c.byModel[def.Model] = def
	for _, wl := range def.WhiteLabel {
		c.byModel[wl.Model] = def
	}
	for _, id := range def.ZigbeeModel {
		c.byModelID[id] = def
	}
}

// conflicts returns the indexed definitions sharing a model name, white
// label or model ID with def.
func (c *Catalog) conflicts(def *definition.Definition) []*definition.Definition {
	var out []*definition.Definition
	claim := func(old *definition.Definition, ok bool) {
		if ok && !slices.Contains(out, old) {
			out = append(out, old)
		}
	}
	claim(c.lookupModel(def.Model))
	for _, wl := range def.WhiteLabel {
		claim(c.lookupModel(wl.Model))
	}
	for _, id := range def.ZigbeeModel {
		old, ok := c.byModelID[id]
		claim(old, ok)
	}
	return out
}

func (c *Catalog) lookupModel(model string) (*definition.Definition, bool) {
	d, ok := c.byModel[model]
	return d, ok
}

// remove drops old and every index entry pointing at it.
func (c *Catalog) remove(old *definition.Definition) {
	c.definitions = slices.DeleteFunc(c.definitions, func(d *definition.Definition) bool { return d == old })
	maps.DeleteFunc(c.byModel, func(_ string, d *definition.Definition) bool { return d == old })
	maps.DeleteFunc(c.byModelID, func(_ string, d *definition.Definition) bool { return d == old })
}

// Match is a resolved device identity. Model, Vendor and Description come
// from the white label when the device matches one.
type Match struct {
	Definition  *definition.Definition
	Model       string
	Vendor      string
	Description string
}

// Find resolves the definition for a device reporting modelID and
// manufacturer.
func (c *Catalog) Find(modelID, manufacturer string) (Match, bool) {
	c.mu.RLock()
	def, ok := c.byModelID[modelID]
	if !ok {
		def, ok = lo.Find(c.definitions, func(d *definition.Definition) bool {
			return d.Matches(modelID, manufacturer)
		})
	}
	c.mu.RUnlock()
	if !ok {
		return Match{}, false
	}

	m := Match{Definition: def, Model: def.Model, Vendor: def.Vendor, Description: def.Description}
	if wl, ok := def.WhiteLabelFor(modelID, manufacturer); ok {
		m.Model, m.Vendor = wl.Model, wl.Vendor
		if wl.Description != "" {
			m.Description = wl.Description
		}
	}
	return m, true
}

// FindByModel returns the definition of a model name; white label models
// resolve to the definition they relabel. Names match case-insensitively.
func (c *Catalog) FindByModel(model string) (*definition.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if def, ok := c.byModel[model]; ok {
		return def, true
	}
	for name, def := range c.byModel {
		if strings.EqualFold(name, model) {
			return def, true
		}
	}
	return nil, false
}

// ByVendor returns the definitions of a vendor, sorted by model.
func (c *Catalog) ByVendor(vendor string) []*definition.Definition {
	return lo.Filter(c.All(), func(d *definition.Definition, _ int) bool {
		return strings.EqualFold(d.Vendor, vendor)
	})
}

// All returns every definition sorted by vendor and model.
func (c *Catalog) All() []*definition.Definition {
	c.mu.RLock()
	out := slices.Clone(c.definitions)
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b *definition.Definition) int {
		return cmp.Or(cmp.Compare(a.Vendor, b.Vendor), cmp.Compare(a.Model, b.Model))
	})
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.definitions)
}

// Summary is the JSON form of a definition served by the API and printed
// by -list-definitions.
type Summary struct {
	Model       string                  `json:"model"`
	Vendor      string                  `json:"vendor"`
	Description string                  `json:"description"`
	ZigbeeModel []string                `json:"zigbee_model,omitempty"`
	WhiteLabel  []definition.WhiteLabel `json:"white_label,omitempty"`
	Exposes     []*exposes.Expose       `json:"exposes"`
	Options     []*exposes.Expose       `json:"options,omitempty"`
	SupportsOTA bool                    `json:"supports_ota"`
	Configure   bool                    `json:"configure"`
}

// Summarize describes def. With a nil dev the dynamic exposes are those of
// a device that has not reported anything yet.
func Summarize(def *definition.Definition, dev Device) Summary {
	return Summary{
		Model:       def.Model,
		Vendor:      def.Vendor,
		Description: def.Description,
		ZigbeeModel: def.ZigbeeModel,
		WhiteLabel:  def.WhiteLabel,
		Exposes:     def.ExposesFor(dev, nil),
		Options:     def.Options,
		SupportsOTA: def.OTA,
		Configure:   def.HasConfigure(),
	}
}

// endpoint returns endpoint id of dev or an error naming the device.
func endpoint(dev Device, id uint8) (Endpoint, error) {
	ep := dev.Endpoint(id)
	if ep == nil {
		return nil, fmt.Errorf("device %s has no endpoint %d", dev.IEEE(), id)
	}
	return ep, nil
}
