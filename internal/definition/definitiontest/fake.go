// Package definitiontest provides recording fakes of definition.Endpoint
// and definition.Device for converter and configure tests.
package definitiontest

import (
	"context"
	"maps"
	"slices"
	"sync"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/zcl"
)

// Call kinds
const (
	KindRead               = "read"
	KindReadIDs            = "readIDs"
	KindWrite              = "write"
	KindWriteTyped         = "writeTyped"
	KindCommand            = "command"
	KindCommandResponse    = "commandResponse"
	KindReadResponse       = "readResponse"
	KindBroadcast          = "broadcast"
	KindConfigureReporting = "configureReporting"
	KindBind               = "bind"
	KindUnbind             = "unbind"
)

// Call is one recorded endpoint request.
type Call struct {
	Kind       string
	Endpoint   uint8
	Cluster    string
	Attributes []string
	IDs        []uint16
	Values     definition.Values
	Records    []zcl.AttributeRecord
	Read       []zcl.ReadRecord
	Command    string
	Sequence   uint8
	DstEP      uint8
	Reporting  []definition.ReportingItem
	Options    definition.ZCLOptions
}

// Endpoint records requests and answers reads from Attributes.
type Endpoint struct {
	EP      uint8
	Inputs  []string
	Outputs []string
	// Attributes holds values by cluster then attribute name.
	Attributes map[string]definition.Values
	// Err, when set, fails every request.
	Err error

	dev   *Device
	binds []string
}

var _ definition.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) record(c Call) error {
	c.Endpoint = e.EP
	if e.dev != nil {
		e.dev.mu.Lock()
		e.dev.calls = append(e.dev.calls, c)
		e.dev.mu.Unlock()
	}
	return e.Err
}

// Set stores an attribute value returned by Read and ClusterAttributeValue.
func (e *Endpoint) Set(cluster, attribute string, value any) *Endpoint {
	if e.Attributes == nil {
		e.Attributes = make(map[string]definition.Values)
	}
	if e.Attributes[cluster] == nil {
		e.Attributes[cluster] = definition.Values{}
	}
	e.Attributes[cluster][attribute] = value
	return e
}

func (e *Endpoint) ID() uint8 { return e.EP }

func (e *Endpoint) DeviceIEEE() string {
	if e.dev == nil {
		return ""
	}
	return e.dev.ieee
}

func (e *Endpoint) Read(_ context.Context, cluster string, attributes []string, opts definition.ZCLOptions) (definition.Values, error) {
	if err := e.record(Call{Kind: KindRead, Cluster: cluster, Attributes: attributes, Options: opts}); err != nil {
		return nil, err
	}
	out := definition.Values{}
	for _, a := range attributes {
		if v, ok := e.Attributes[cluster][a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (e *Endpoint) ReadIDs(_ context.Context, cluster string, ids []uint16, opts definition.ZCLOptions) (definition.Values, error) {
	return definition.Values{}, e.record(Call{Kind: KindReadIDs, Cluster: cluster, IDs: ids, Options: opts})
}

func (e *Endpoint) Write(_ context.Context, cluster string, values definition.Values, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindWrite, Cluster: cluster, Values: values, Options: opts})
}

func (e *Endpoint) WriteTyped(_ context.Context, cluster string, records []zcl.AttributeRecord, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindWriteTyped, Cluster: cluster, Records: records, Options: opts})
}

func (e *Endpoint) Command(_ context.Context, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindCommand, Cluster: cluster, Command: command, Values: params, Options: opts})
}

func (e *Endpoint) CommandResponse(_ context.Context, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindCommandResponse, Cluster: cluster, Command: command, Values: params, Options: opts})
}

func (e *Endpoint) ReadResponse(_ context.Context, cluster string, seq uint8, records []zcl.ReadRecord, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindReadResponse, Cluster: cluster, Sequence: seq, Read: records, Options: opts})
}

func (e *Endpoint) Broadcast(_ context.Context, dstEndpoint uint8, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindBroadcast, DstEP: dstEndpoint, Cluster: cluster, Command: command, Values: params, Options: opts})
}

func (e *Endpoint) ConfigureReporting(_ context.Context, cluster string, items []definition.ReportingItem, opts definition.ZCLOptions) error {
	return e.record(Call{Kind: KindConfigureReporting, Cluster: cluster, Reporting: items, Options: opts})
}

func (e *Endpoint) Bind(_ context.Context, cluster string) error {
	if err := e.record(Call{Kind: KindBind, Cluster: cluster}); err != nil {
		return err
	}
	if !slices.Contains(e.binds, cluster) {
		e.binds = append(e.binds, cluster)
	}
	return nil
}

func (e *Endpoint) Unbind(_ context.Context, cluster string) error {
	if err := e.record(Call{Kind: KindUnbind, Cluster: cluster}); err != nil {
		return err
	}
	e.binds = slices.DeleteFunc(e.binds, func(c string) bool { return c == cluster })
	return nil
}

func (e *Endpoint) Binds() []string { return slices.Clone(e.binds) }

func (e *Endpoint) ClusterAttributeValue(cluster, attribute string) (any, bool) {
	v, ok := e.Attributes[cluster][attribute]
	return v, ok
}

func (e *Endpoint) SupportsInputCluster(cluster string) bool {
	return slices.Contains(e.Inputs, cluster)
}

func (e *Endpoint) SupportsOutputCluster(cluster string) bool {
	return slices.Contains(e.Outputs, cluster)
}

// Device is an in-memory device holding fake endpoints.
type Device struct {
	mu        sync.Mutex
	ieee      string
	model     string
	vendor    string
	endpoints []*Endpoint
	meta      map[string]any
	calls     []Call
	// Saves counts Save calls.
	Saves int
}

var _ definition.Device = (*Device)(nil)

// NewDevice returns a device with the given endpoints. Endpoints are
// attached so their calls are recorded on the device.
func NewDevice(ieee, modelID string, endpoints ...*Endpoint) *Device {
	d := &Device{ieee: ieee, model: modelID, meta: map[string]any{}}
	for _, ep := range endpoints {
		ep.dev = d
		d.endpoints = append(d.endpoints, ep)
	}
	return d
}

// WithManufacturer sets the manufacturer name.
func (d *Device) WithManufacturer(name string) *Device {
	d.vendor = name
	return d
}

// Calls returns the recorded calls of every endpoint, oldest first.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// CallsOf filters Calls by kind.
func (d *Device) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (d *Device) Reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func (d *Device) IEEE() string         { return d.ieee }
func (d *Device) ModelID() string      { return d.model }
func (d *Device) Manufacturer() string { return d.vendor }

func (d *Device) Endpoint(id uint8) definition.Endpoint {
	for _, ep := range d.endpoints {
		if ep.EP == id {
			return ep
		}
	}
	return nil
}

// FakeEndpoint returns the concrete fake endpoint with the given ID.
func (d *Device) FakeEndpoint(id uint8) *Endpoint {
	for _, ep := range d.endpoints {
		if ep.EP == id {
			return ep
		}
	}
	return nil
}

func (d *Device) Endpoints() []definition.Endpoint {
	out := make([]definition.Endpoint, len(d.endpoints))
	for i, ep := range d.endpoints {
		out[i] = ep
	}
	return out
}

func (d *Device) Meta(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.meta[key]
	return v, ok
}

func (d *Device) SetMeta(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta[key] = value
}

// MetaSnapshot returns a copy of the device meta.
func (d *Device) MetaSnapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.meta)
}

func (d *Device) Save() error {
	d.mu.Lock()
	d.Saves++
	d.mu.Unlock()
	return nil
}
