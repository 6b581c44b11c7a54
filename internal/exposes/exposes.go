// Package exposes describes the user-facing properties of a device: what a
// device reports, what can be set and what can be polled. The JSON form is
// the one zigbee2mqtt frontends and Home Assistant discovery consume.
package exposes

import (
	"strings"

	"github.com/samber/lo"
)

// Access is a bit set describing how a property can be used.
type Access uint8

const (
	// AccessState: the property is published in the device state.
	AccessState Access = 1
	// AccessSet: the property can be written with /set.
	AccessSet Access = 2
	// AccessGet: the property can be polled with /get.
	AccessGet Access = 4

	AccessStateSet = AccessState | AccessSet
	AccessStateGet = AccessState | AccessGet
	AccessAll      = AccessState | AccessSet | AccessGet
)

// Has reports whether all bits of flag are set.
func (a Access) Has(flag Access) bool { return a&flag == flag }

// Expose types
const (
	TypeBinary    = "binary"
	TypeNumeric   = "numeric"
	TypeEnum      = "enum"
	TypeText      = "text"
	TypeComposite = "composite"
	TypeList      = "list"
	TypeSwitch    = "switch"
	TypeLight     = "light"
	TypeCover     = "cover"
	TypeClimate   = "climate"
	TypeLock      = "lock"
)

// Categories
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// Preset is a named value suggested for a numeric expose.
type Preset struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// Expose describes one property or a group of properties.
type Expose struct {
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Label       string    `json:"label,omitempty"`
	Property    string    `json:"property,omitempty"`
	Access      Access    `json:"access,omitempty"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	ValueMin    *float64  `json:"value_min,omitempty"`
	ValueMax    *float64  `json:"value_max,omitempty"`
	ValueStep   *float64  `json:"value_step,omitempty"`
	Presets     []Preset  `json:"presets,omitempty"`
	Values      []string  `json:"values,omitempty"`
	ValueOn     any       `json:"value_on,omitempty"`
	ValueOff    any       `json:"value_off,omitempty"`
	ValueToggle any       `json:"value_toggle,omitempty"`
	ItemType    *Expose   `json:"item_type,omitempty"`
	Features    []*Expose `json:"features,omitempty"`
}

func newBase(typ, name string, access Access) *Expose {
	return &Expose{
		Type:     typ,
		Name:     name,
		Label:    defaultLabel(name),
		Property: name,
		Access:   access,
	}
}

// Binary is a two-state property.
func Binary(name string, access Access, valueOn, valueOff any) *Expose {
	e := newBase(TypeBinary, name, access)
	e.ValueOn = valueOn
	e.ValueOff = valueOff
	return e
}

// Numeric is a number-valued property.
func Numeric(name string, access Access) *Expose {
	return newBase(TypeNumeric, name, access)
}

// Enum is a property with a fixed set of string values.
func Enum(name string, access Access, values []string) *Expose {
	e := newBase(TypeEnum, name, access)
	e.Values = append([]string(nil), values...)
	return e
}

// Text is a free-form string property.
func Text(name string, access Access) *Expose {
	return newBase(TypeText, name, access)
}

// Composite groups features published as one object under property.
func Composite(name, property string, access Access) *Expose {
	e := newBase(TypeComposite, name, access)
	e.Property = property
	return e
}

// List is an array property whose items are described by itemType.
func List(name string, access Access, itemType *Expose) *Expose {
	e := newBase(TypeList, name, access)
	e.ItemType = itemType
	return e
}

// Clone returns a deep copy.
func (e *Expose) Clone() *Expose {
	if e == nil {
		return nil
	}
	c := *e
	c.Values = append([]string(nil), e.Values...)
	c.Presets = append([]Preset(nil), e.Presets...)
	c.ItemType = e.ItemType.Clone()
	c.Features = lo.Map(e.Features, func(f *Expose, _ int) *Expose { return f.Clone() })
	return &c
}

func (e *Expose) WithLabel(label string) *Expose {
	e.Label = label
	return e
}

func (e *Expose) WithDescription(description string) *Expose {
	e.Description = description
	return e
}

func (e *Expose) WithUnit(unit string) *Expose {
	e.Unit = unit
	return e
}

func (e *Expose) WithValueMin(v float64) *Expose {
	e.ValueMin = &v
	return e
}

func (e *Expose) WithValueMax(v float64) *Expose {
	e.ValueMax = &v
	return e
}

func (e *Expose) WithValueStep(v float64) *Expose {
	e.ValueStep = &v
	return e
}

func (e *Expose) WithValueToggle(v any) *Expose {
	e.ValueToggle = v
	return e
}

func (e *Expose) WithCategory(category string) *Expose {
	e.Category = category
	return e
}

func (e *Expose) WithPreset(name string, value float64, description string) *Expose {
	e.Presets = append(e.Presets, Preset{Name: name, Value: value, Description: description})
	return e
}

// WithAccess sets the access of the expose and of every feature.
func (e *Expose) WithAccess(access Access) *Expose {
	e.Access = access
	for _, f := range e.Features {
		f.WithAccess(access)
	}
	return e
}

// WithEndpoint binds the expose to a named endpoint. The property gains an
// "_<endpoint>" suffix. Features of device-specific groups (switch, light,
// ...) are bound too; composite features stay inside the composite object.
func (e *Expose) WithEndpoint(endpoint string) *Expose {
	e.Endpoint = endpoint
	if e.Property != "" {
		e.Property = e.Property + "_" + endpoint
	}
	if e.Type != TypeComposite {
		for _, f := range e.Features {
			f.WithEndpoint(endpoint)
		}
	}
	return e
}

func (e *Expose) WithFeature(f *Expose) *Expose {
	if e.Endpoint != "" && e.Type != TypeComposite {
		f.WithEndpoint(e.Endpoint)
	}
	e.Features = append(e.Features, f)
	return e
}

// RemoveFeature drops the feature with the given name.
func (e *Expose) RemoveFeature(name string) *Expose {
	e.Features = lo.Reject(e.Features, func(f *Expose, _ int) bool { return f.Name == name })
	return e
}

// Feature returns the feature with the given name, or nil.
func (e *Expose) Feature(name string) *Expose {
	f, _ := lo.Find(e.Features, func(f *Expose) bool { return f.Name == name })
	return f
}

// Flatten returns the leaf exposes, descending into grouped exposes.
func Flatten(list []*Expose) []*Expose {
	var out []*Expose
	for _, e := range list {
		if len(e.Features) > 0 && e.Type != TypeComposite {
			out = append(out, Flatten(e.Features)...)
			continue
		}
		out = append(out, e)
	}
	return out
}

// Properties returns the state keys exposed with the given access bit.
func Properties(list []*Expose, access Access) []string {
	leaves := lo.Filter(Flatten(list), func(e *Expose, _ int) bool { return e.Access.Has(access) })
	return lo.Uniq(lo.Map(leaves, func(e *Expose, _ int) string { return e.Property }))
}

// defaultLabel turns "battery_low" into "Battery low" and keeps known
// abbreviations upper case.
func defaultLabel(name string) string {
	if name == "" {
		return ""
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		switch w {
		case "voc", "co2", "ac", "dc", "led", "id", "pi":
			words[i] = strings.ToUpper(w)
		}
	}
	label := strings.Join(words, " ")
	return strings.ToUpper(label[:1]) + label[1:]
}
