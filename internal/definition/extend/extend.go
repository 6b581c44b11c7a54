// Package extend builds ModernExtends: reusable bundles of exposes,
// converters and configure steps that definitions compose.
package extend

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/definition/reporting"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

type (
	Values   = definition.Values
	Endpoint = definition.Endpoint
	Device   = definition.Device
)

var attributeTypes = []string{definition.MsgAttributeReport, definition.MsgReadResponse}

// ReportingArgs configures attribute reporting for an extend.
type ReportingArgs struct {
	Min    uint16
	Max    uint16
	Change any
}

// InputEndpoints returns the endpoints of dev serving cluster, or the first
// endpoint when none declares it.
func InputEndpoints(dev Device, cluster string) []Endpoint {
	all := dev.Endpoints()
	eps := lo.Filter(all, func(ep Endpoint, _ int) bool { return ep.SupportsInputCluster(cluster) })
	if len(eps) == 0 && len(all) > 0 {
		return all[:1]
	}
	return eps
}

// namedEndpoints resolves endpoint names through the definition, falling
// back to InputEndpoints when no names are given.
func namedEndpoints(dev Device, def *definition.Definition, names []string, cluster string) []Endpoint {
	if len(names) == 0 {
		return InputEndpoints(dev, cluster)
	}
	var eps []Endpoint
	for _, name := range names {
		id, ok := def.EndpointID(name)
		if !ok {
			continue
		}
		if ep := dev.Endpoint(id); ep != nil {
			eps = append(eps, ep)
		}
	}
	return eps
}

// DeviceAddCustomCluster registers a vendor cluster (or a vendor extension
// of a standard one) for devices of the definition.
func DeviceAddCustomCluster(name string, cluster zcl.ClusterDef) definition.ModernExtend {
	cluster.Name = name
	return definition.ModernExtend{CustomClusters: []zcl.ClusterDef{cluster}}
}

// attribute is the shared shape of EnumLookup, Binary and Numeric: one
// attribute of one cluster mapped to one state key.
type attribute struct {
	name      string
	cluster   string
	attribute string
	endpoint  string
	access    exposes.Access
	reporting *ReportingArgs
	opts      definition.ZCLOptions
	fromRaw   func(raw any) (any, bool)
	toRaw     func(key string, value any) (raw, state any, err error)
}

func (a attribute) extend(expose *exposes.Expose) definition.ModernExtend {
	if a.access == 0 {
		a.access = exposes.AccessAll
	}
	if a.endpoint != "" {
		expose.WithEndpoint(a.endpoint)
	}

	fromZigbee := &definition.FromZigbee{
		Cluster: a.cluster,
		Types:   attributeTypes,
		Convert: func(_ context.Context, def *definition.Definition, msg *definition.Message, _ definition.Publish, _ Values, _ *definition.ConvertMeta) (Values, error) {
			raw, ok := msg.Data[a.attribute]
			if !ok {
				return nil, nil
			}
			if a.endpoint != "" && definition.EndpointName(def, msg.Endpoint) != a.endpoint {
				return nil, nil
			}
			v, ok := a.fromRaw(raw)
			if !ok {
				return nil, nil
			}
			key := definition.PostfixWithEndpointName(a.name, msg, def)
			if a.endpoint != "" {
				key = a.name + "_" + a.endpoint
			}
			return Values{key: v}, nil
		},
	}

	toZigbee := &definition.ToZigbee{Keys: []string{a.name}}
	if a.access.Has(exposes.AccessSet) {
		toZigbee.ConvertSet = func(ctx context.Context, ep Endpoint, key string, value any, _ *definition.TzMeta) (*definition.TzResult, error) {
			raw, state, err := a.toRaw(key, value)
			if err != nil {
				return nil, err
			}
			if err := ep.Write(ctx, a.cluster, Values{a.attribute: raw}, a.opts); err != nil {
				return nil, err
			}
			return &definition.TzResult{State: Values{key: state}}, nil
		}
	}
	if a.access.Has(exposes.AccessGet) {
		toZigbee.ConvertGet = func(ctx context.Context, ep Endpoint, _ string, _ *definition.TzMeta) error {
			_, err := ep.Read(ctx, a.cluster, []string{a.attribute}, a.opts)
			return err
		}
	}

	ext := definition.ModernExtend{
		Exposes:    []*exposes.Expose{expose.WithAccess(a.access)},
		FromZigbee: []*definition.FromZigbee{fromZigbee},
		ToZigbee:   []*definition.ToZigbee{toZigbee},
	}
	if a.reporting != nil {
		ext.Configure = []definition.ConfigureFunc{a.configureReporting}
	}
	return ext
}

func (a attribute) configureReporting(ctx context.Context, dev Device, def *definition.Definition) error {
	var names []string
	if a.endpoint != "" {
		names = []string{a.endpoint}
	}
	item := definition.ReportingItem{
		Attribute:        a.attribute,
		MinInterval:      a.reporting.Min,
		MaxInterval:      a.reporting.Max,
		ReportableChange: a.reporting.Change,
	}
	for _, ep := range namedEndpoints(dev, def, names, a.cluster) {
		if err := reporting.Bind(ctx, ep, []string{a.cluster}); err != nil {
			return err
		}
		if err := ep.ConfigureReporting(ctx, a.cluster, []definition.ReportingItem{item}, a.opts); err != nil {
			return fmt.Errorf("configure reporting %s.%s: %w", a.cluster, a.attribute, err)
		}
	}
	return nil
}

type EnumLookupArgs struct {
	Name           string
	Cluster        string
	Attribute      string
	Lookup         definition.Lookup
	Description    string
	Label          string
	Endpoint       string
	Access         exposes.Access
	EntityCategory string
	Reporting      *ReportingArgs
	ZCLOptions     definition.ZCLOptions
}

// EnumLookup maps an enum attribute to named values.
func EnumLookup(args EnumLookupArgs) definition.ModernExtend {
	expose := exposes.Enum(args.Name, args.Access, args.Lookup.Keys()).
		WithDescription(args.Description).
		WithCategory(args.EntityCategory)
	if args.Label != "" {
		expose.WithLabel(args.Label)
	}
	return attribute{
		name:      args.Name,
		cluster:   args.Cluster,
		attribute: args.Attribute,
		endpoint:  args.Endpoint,
		access:    args.Access,
		reporting: args.Reporting,
		opts:      args.ZCLOptions,
		fromRaw:   func(raw any) (any, bool) { return args.Lookup.Key(raw) },
		toRaw: func(_ string, value any) (any, any, error) {
			raw, err := args.Lookup.Value(value)
			if err != nil {
				return nil, nil, err
			}
			key, _ := args.Lookup.Key(raw)
			return raw, key, nil
		},
	}.extend(expose)
}

type BinaryArgs struct {
	Name           string
	Cluster        string
	Attribute      string
	ValueOn        definition.LookupEntry
	ValueOff       definition.LookupEntry
	Description    string
	Label          string
	Endpoint       string
	Access         exposes.Access
	EntityCategory string
	Reporting      *ReportingArgs
	ZCLOptions     definition.ZCLOptions
}

// Binary maps an attribute with two raw values to an ON/OFF style key.
func Binary(args BinaryArgs) definition.ModernExtend {
	expose := exposes.Binary(args.Name, args.Access, args.ValueOn.Key, args.ValueOff.Key).
		WithDescription(args.Description).
		WithCategory(args.EntityCategory)
	if args.Label != "" {
		expose.WithLabel(args.Label)
	}
	lookup := definition.Lookup{args.ValueOn, args.ValueOff}
	return attribute{
		name:      args.Name,
		cluster:   args.Cluster,
		attribute: args.Attribute,
		endpoint:  args.Endpoint,
		access:    args.Access,
		reporting: args.Reporting,
		opts:      args.ZCLOptions,
		fromRaw: func(raw any) (any, bool) {
			if b, ok := raw.(bool); ok {
				if b {
					return args.ValueOn.Key, true
				}
				return args.ValueOff.Key, true
			}
			return lookup.Key(raw)
		},
		toRaw: func(key string, value any) (any, any, error) {
			if err := definition.ValidateValue(value, lookup.Keys()); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", key, err)
			}
			raw, err := lookup.Value(value)
			return raw, value, err
		},
	}.extend(expose)
}

type NumericArgs struct {
	Name           string
	Cluster        string
	Attribute      string
	Description    string
	Label          string
	Unit           string
	ValueMin       *float64
	ValueMax       *float64
	ValueStep      *float64
	Scale          float64
	Precision      int
	Endpoint       string
	Access         exposes.Access
	EntityCategory string
	Reporting      *ReportingArgs
	ZCLOptions     definition.ZCLOptions
}

// Numeric maps a numeric attribute to a key. The raw value is divided by
// Scale (1 when zero) and rounded to Precision decimals.
func Numeric(args NumericArgs) definition.ModernExtend {
	scale := args.Scale
	if scale == 0 {
		scale = 1
	}
	expose := exposes.Numeric(args.Name, args.Access).
		WithDescription(args.Description).
		WithUnit(args.Unit).
		WithCategory(args.EntityCategory)
	if args.Label != "" {
		expose.WithLabel(args.Label)
	}
	if args.ValueMin != nil {
		expose.WithValueMin(*args.ValueMin)
	}
	if args.ValueMax != nil {
		expose.WithValueMax(*args.ValueMax)
	}
	if args.ValueStep != nil {
		expose.WithValueStep(*args.ValueStep)
	}
	return attribute{
		name:      args.Name,
		cluster:   args.Cluster,
		attribute: args.Attribute,
		endpoint:  args.Endpoint,
		access:    args.Access,
		reporting: args.Reporting,
		opts:      args.ZCLOptions,
		fromRaw: func(raw any) (any, bool) {
			n, ok := zcl.ToFloat64(raw)
			if !ok {
				return nil, false
			}
			return definition.PrecisionRound(n/scale, args.Precision), true
		},
		toRaw: func(key string, value any) (any, any, error) {
			v, err := definition.ToNumber(value, key)
			if err != nil {
				return nil, nil, err
			}
			if args.ValueMin != nil && v < *args.ValueMin || args.ValueMax != nil && v > *args.ValueMax {
				return nil, nil, fmt.Errorf("%s: value %v out of range", key, v)
			}
			return math.Round(v * scale), v, nil
		},
	}.extend(expose)
}

type ClusterType int

const (
	ClusterInput ClusterType = iota
	ClusterOutput
)

type BindClusterArgs struct {
	Cluster     string
	ClusterType ClusterType
	Endpoints   []string
}

// BindCluster binds a cluster on every endpoint offering it.
func BindCluster(args BindClusterArgs) definition.ModernExtend {
	configure := func(ctx context.Context, dev Device, def *definition.Definition) error {
		eps := dev.Endpoints()
		if len(args.Endpoints) > 0 {
			eps = namedEndpoints(dev, def, args.Endpoints, args.Cluster)
		}
		for _, ep := range eps {
			supported := ep.SupportsInputCluster(args.Cluster)
			if args.ClusterType == ClusterOutput {
				supported = ep.SupportsOutputCluster(args.Cluster)
			}
			if !supported {
				continue
			}
			if err := reporting.Bind(ctx, ep, []string{args.Cluster}); err != nil {
				return err
			}
		}
		return nil
	}
	return definition.ModernExtend{Configure: []definition.ConfigureFunc{configure}}
}

// DeviceEndpoints names the endpoints of a multi-endpoint device.
func DeviceEndpoints(endpoints map[string]uint8) definition.ModernExtend {
	return definition.ModernExtend{
		Endpoints: endpoints,
		Meta:      &definition.Meta{MultiEndpoint: true},
	}
}

// QuirkCheckinInterval records the poll-control check-in interval so the
// device is not considered offline between check-ins.
func QuirkCheckinInterval(seconds int) definition.ModernExtend {
	configure := func(_ context.Context, dev Device, _ *definition.Definition) error {
		dev.SetMeta("checkinInterval", seconds)
		return dev.Save()
	}
	return definition.ModernExtend{Configure: []definition.ConfigureFunc{configure}}
}
