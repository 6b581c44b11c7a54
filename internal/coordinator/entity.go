package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

// coordinatorEndpoint is the adapter endpoint bindings point at.
const coordinatorEndpoint = 1

// ErrNoBroadcastTarget is returned when no known device implements the
// broadcast cluster on the addressed endpoint.
var ErrNoBroadcastTarget = errors.New("no device can receive the broadcast")

var (
	_ definition.Device   = (*entityDevice)(nil)
	_ definition.Endpoint = (*entityEndpoint)(nil)
)

// entityDevice adapts a stored device to definition.Device. It works on a
// snapshot of the device; attribute, binding and meta updates are applied to
// the snapshot and written through to the store.
type entityDevice struct {
	c      *Coordinator
	def    *definition.Definition
	reg    *zcl.Registry
	addr   uint64
	logger *slog.Logger

	mu        sync.Mutex
	dev       *store.Device
	metaDirty bool
}

func (c *Coordinator) entity(dev *store.Device, def *definition.Definition) *entityDevice {
	addr, err := ncp.ParseIEEE(dev.IEEEAddress)
	if err != nil {
		c.logger.Warn("device with malformed ieee address", "ieee", dev.IEEEAddress, "err", err)
	}
	logger := c.logger.With("ieee", dev.IEEEAddress)
	if def != nil {
		logger = logger.With("model", def.Model)
	}
	return &entityDevice{
		c:      c,
		def:    def,
		reg:    c.registryFor(def),
		addr:   addr,
		logger: logger,
		dev:    dev.Clone(),
	}
}

func (d *entityDevice) IEEE() string { return d.dev.IEEEAddress }

func (d *entityDevice) ModelID() string { return d.dev.ModelID }

func (d *entityDevice) Manufacturer() string { return d.dev.Manufacturer }

func (d *entityDevice) Endpoint(id uint8) definition.Endpoint {
	d.mu.Lock()
	ep, ok := d.dev.FindEndpoint(id)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return &entityEndpoint{d: d, ep: ep}
}

// endpoint returns the endpoint with the given ID, or a bare endpoint for
// devices whose descriptors were never read.
func (d *entityDevice) endpoint(id uint8) *entityEndpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	ep, ok := d.dev.FindEndpoint(id)
	if !ok {
		ep = store.Endpoint{ID: id}
	}
	return &entityEndpoint{d: d, ep: ep}
}

func (d *entityDevice) Endpoints() []definition.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.Map(d.dev.Endpoints, func(ep store.Endpoint, _ int) definition.Endpoint {
		return &entityEndpoint{d: d, ep: ep}
	})
}

// defaultEndpoint is the endpoint keys without an endpoint suffix address.
func (d *entityDevice) defaultEndpoint() uint8 {
	if d.def != nil {
		if id, ok := d.def.EndpointID("default"); ok {
			return id
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dev.Endpoints) > 0 {
		return d.dev.Endpoints[0].ID
	}
	return 1
}

func (d *entityDevice) Meta(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.dev.Meta[key]
	return v, ok
}

func (d *entityDevice) SetMeta(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev.Meta == nil {
		d.dev.Meta = make(map[string]any)
	}
	d.dev.Meta[key] = value
	d.metaDirty = true
}

// Save persists the device meta.
func (d *entityDevice) Save() error {
	meta := d.metaSnapshot()
	if meta == nil {
		return nil
	}
	return d.c.store.UpdateDevice(d.IEEE(), func(dev *store.Device) error {
		dev.Meta = meta
		return nil
	})
}

// metaSnapshot returns a copy of the meta if it was changed, else nil.
func (d *entityDevice) metaSnapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.metaDirty {
		return nil
	}
	return maps.Clone(d.dev.Meta)
}

func (d *entityDevice) state() definition.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return definition.Values(maps.Clone(d.dev.State))
}

func (d *entityDevice) mergeState(values definition.Values) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dev.State = definition.Values(d.dev.State).Merge(values)
}

func (d *entityDevice) options() definition.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return definition.Values(maps.Clone(d.dev.Options))
}

func (d *entityDevice) cacheLocal(key string, values definition.Values) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mergeAttributes(d.dev, key, values)
}

// cacheAttributes records attribute values on the snapshot and in the store.
func (d *entityDevice) cacheAttributes(key string, values definition.Values) {
	d.cacheLocal(key, values)
	err := d.c.store.UpdateDevice(d.IEEE(), func(dev *store.Device) error {
		mergeAttributes(dev, key, values)
		return nil
	})
	if err != nil {
		d.logger.Warn("cache attributes", "key", key, "err", err)
	}
}

func (d *entityDevice) updateBindings(fn func([]store.Binding) []store.Binding) error {
	d.mu.Lock()
	d.dev.Bindings = fn(d.dev.Bindings)
	d.mu.Unlock()
	return d.c.store.UpdateDevice(d.IEEE(), func(dev *store.Device) error {
		dev.Bindings = fn(dev.Bindings)
		return nil
	})
}

func (d *entityDevice) encodeCommand(cluster, command string, params definition.Values) (*zcl.ClusterDef, *zcl.CommandDef, []byte, error) {
	cl, err := d.reg.Lookup(cluster)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd := cl.CommandByName(command)
	if cmd == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s.%s", zcl.ErrUnknownCommand, cluster, command)
	}
	payload, err := zcl.EncodeCommandParams(cmd.Params, params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode %s.%s: %w", cluster, command, err)
	}
	return cl, cmd, payload, nil
}

func attrKey(ep uint8, cluster string) string {
	return strconv.Itoa(int(ep)) + "/" + cluster
}

func mergeAttributes(dev *store.Device, key string, values definition.Values) {
	if len(values) == 0 {
		return
	}
	if dev.Attributes == nil {
		dev.Attributes = make(map[string]map[string]any)
	}
	dev.Attributes[key] = definition.Values(dev.Attributes[key]).Merge(values)
}

// attributeName names an attribute, falling back to its decimal ID.
func attributeName(cl *zcl.ClusterDef, id uint16) string {
	if cl != nil {
		if a := cl.FindAttribute(id); a != nil {
			return a.Name
		}
	}
	return strconv.Itoa(int(id))
}

// entityEndpoint adapts one endpoint of an entityDevice.
type entityEndpoint struct {
	d  *entityDevice
	ep store.Endpoint
}

func (e *entityEndpoint) ID() uint8 { return e.ep.ID }

func (e *entityEndpoint) DeviceIEEE() string { return e.d.IEEE() }

// options maps converter options to a request header. Without an explicit
// manufacturer code the attribute's, then the cluster's, code is used.
func (e *entityEndpoint) options(cl *zcl.ClusterDef, opts definition.ZCLOptions, attr *zcl.AttributeDef) ncp.Options {
	o := ncp.Options{
		ManufacturerCode:       opts.ManufacturerCode,
		DisableDefaultResponse: opts.DisableDefaultResponse,
		Direction:              opts.Direction,
		SrcEndpoint:            opts.SrcEndpoint,
	}
	if o.ManufacturerCode == 0 {
		o.ManufacturerCode = cl.AttributeManufacturerCode(attr)
	}
	return o
}

func (e *entityEndpoint) Read(ctx context.Context, cluster string, attributes []string, opts definition.ZCLOptions) (definition.Values, error) {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return nil, err
	}
	var first *zcl.AttributeDef
	ids := make([]uint16, 0, len(attributes))
	for _, name := range attributes {
		a := cl.AttributeByName(name)
		if a == nil {
			return nil, fmt.Errorf("%w: %s.%s", zcl.ErrUnknownAttribute, cluster, name)
		}
		if first == nil {
			first = a
		}
		ids = append(ids, a.ID)
	}
	return e.read(ctx, cl, ids, e.options(cl, opts, first))
}

func (e *entityEndpoint) ReadIDs(ctx context.Context, cluster string, ids []uint16, opts definition.ZCLOptions) (definition.Values, error) {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return nil, err
	}
	var first *zcl.AttributeDef
	if len(ids) > 0 {
		first = cl.FindAttribute(ids[0])
	}
	return e.read(ctx, cl, ids, e.options(cl, opts, first))
}

// read issues the request and hands the answer to the device's converters
// as a readResponse message.
func (e *entityEndpoint) read(ctx context.Context, cl *zcl.ClusterDef, ids []uint16, o ncp.Options) (definition.Values, error) {
	records, err := ncp.ReadAttributes(ctx, e.d.c.ncp, ncp.ReadAttributesRequest{
		IEEE:      e.d.addr,
		DstEP:     e.ep.ID,
		ClusterID: cl.ID,
		AttrIDs:   ids,
		Options:   o,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cl.Name, err)
	}
	values := make(definition.Values, len(records))
	var failed *zcl.StatusError
	for _, r := range records {
		if r.Status != zcl.ZCLStatusSuccess {
			if failed == nil {
				failed = &zcl.StatusError{Status: r.Status, Attribute: r.ID}
			}
			continue
		}
		values[attributeName(cl, r.ID)] = r.Value
	}
	if len(values) == 0 && failed != nil {
		return nil, fmt.Errorf("read %s: %w", cl.Name, failed)
	}

	e.d.c.handleMessages(ctx, e.d, []*definition.Message{{
		Type:      definition.MsgReadResponse,
		Cluster:   cl.Name,
		ClusterID: cl.ID,
		Endpoint:  e,
		Device:    e.d,
		Data:      values,
	}}, 0, true)
	return values, nil
}

func (e *entityEndpoint) Write(ctx context.Context, cluster string, values definition.Values, opts definition.ZCLOptions) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	var first *zcl.AttributeDef
	records := make([]zcl.AttributeRecord, 0, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		a := cl.AttributeByName(name)
		if a == nil {
			return fmt.Errorf("%w: %s.%s", zcl.ErrUnknownAttribute, cluster, name)
		}
		if first == nil {
			first = a
		}
		records = append(records, zcl.AttributeRecord{ID: a.ID, Type: a.Type, Value: values[name]})
	}
	return e.write(ctx, cl, records, e.options(cl, opts, first))
}

func (e *entityEndpoint) WriteTyped(ctx context.Context, cluster string, records []zcl.AttributeRecord, opts definition.ZCLOptions) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	var first *zcl.AttributeDef
	if len(records) > 0 {
		first = cl.FindAttribute(records[0].ID)
	}
	return e.write(ctx, cl, records, e.options(cl, opts, first))
}

func (e *entityEndpoint) write(ctx context.Context, cl *zcl.ClusterDef, records []zcl.AttributeRecord, o ncp.Options) error {
	err := ncp.WriteAttributes(ctx, e.d.c.ncp, ncp.WriteAttributesRequest{
		IEEE:      e.d.addr,
		DstEP:     e.ep.ID,
		ClusterID: cl.ID,
		Records:   records,
		Options:   o,
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", cl.Name, err)
	}
	written := make(definition.Values, len(records))
	for _, r := range records {
		written[attributeName(cl, r.ID)] = r.Value
	}
	e.d.cacheAttributes(attrKey(e.ep.ID, cl.Name), written)
	return nil
}

func (e *entityEndpoint) Command(ctx context.Context, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	return e.command(ctx, cluster, command, params, opts)
}

func (e *entityEndpoint) CommandResponse(ctx context.Context, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	opts.Direction = zcl.ServerToClient
	opts.DisableDefaultResponse = true
	return e.command(ctx, cluster, command, params, opts)
}

func (e *entityEndpoint) command(ctx context.Context, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	cl, cmd, payload, err := e.d.encodeCommand(cluster, command, params)
	if err != nil {
		return err
	}
	req := ncp.ClusterCommandRequest{
		IEEE:      e.d.addr,
		DstEP:     e.ep.ID,
		ClusterID: cl.ID,
		CommandID: cmd.ID,
		Payload:   payload,
		Options:   e.options(cl, opts, nil),
	}
	if opts.DisableDefaultResponse {
		err = ncp.SendCommand(ctx, e.d.c.ncp, req)
	} else {
		err = ncp.SendCommandAck(ctx, e.d.c.ncp, req)
	}
	if err != nil {
		return fmt.Errorf("command %s.%s: %w", cluster, command, err)
	}
	return nil
}

func (e *entityEndpoint) ReadResponse(ctx context.Context, cluster string, seq uint8, records []zcl.ReadRecord, opts definition.ZCLOptions) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	payload, err := zcl.EncodeReadAttributesResponse(records)
	if err != nil {
		return fmt.Errorf("read response %s: %w", cluster, err)
	}
	var first *zcl.AttributeDef
	if len(records) > 0 {
		first = cl.FindAttribute(records[0].ID)
	}
	o := e.options(cl, opts, first)
	o.Direction = zcl.ServerToClient
	o.DisableDefaultResponse = true
	_, err = e.d.c.ncp.SendZCL(ctx, ncp.ZCLRequest{
		IEEE:      e.d.addr,
		DstEP:     e.ep.ID,
		ClusterID: cl.ID,
		Global:    true,
		Command:   zcl.FoundationReadAttributesResponse,
		Payload:   payload,
		Options:   o,
		Sequence:  seq,
		Reply:     true,
	})
	if err != nil {
		return fmt.Errorf("read response %s: %w", cluster, err)
	}
	return nil
}

// Broadcast sends the command to dstEndpoint of every known device whose
// endpoint implements the cluster, the sender included. The broadcast
// endpoint selects every such endpoint of a device. It fails when no
// device can receive the command.
func (e *entityEndpoint) Broadcast(ctx context.Context, dstEndpoint uint8, cluster, command string, params definition.Values, opts definition.ZCLOptions) error {
	cl, cmd, payload, err := e.d.encodeCommand(cluster, command, params)
	if err != nil {
		return err
	}
	devs, err := e.d.c.store.ListDevices()
	if err != nil {
		return fmt.Errorf("broadcast %s.%s: %w", cluster, command, err)
	}
	var (
		errs []error
		sent int
	)
	for _, dev := range devs {
		addr, err := ncp.ParseIEEE(dev.IEEEAddress)
		if err != nil {
			continue
		}
		for _, ep := range broadcastTargets(dev, dstEndpoint, cl.ID) {
			err := ncp.SendCommand(ctx, e.d.c.ncp, ncp.ClusterCommandRequest{
				IEEE:      addr,
				DstEP:     ep,
				ClusterID: cl.ID,
				CommandID: cmd.ID,
				Payload:   payload,
				Options:   e.options(cl, opts, nil),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("broadcast %s.%s to %s/%d: %w", cluster, command, dev.IEEEAddress, ep, err))
				continue
			}
			sent++
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if sent == 0 {
		return fmt.Errorf("broadcast %s.%s: %w", cluster, command, ErrNoBroadcastTarget)
	}
	return nil
}

// broadcastTargets lists the endpoints of dev a broadcast to dstEndpoint
// for clusterID reaches.
func broadcastTargets(dev *store.Device, dstEndpoint uint8, clusterID uint16) []uint8 {
	var out []uint8
	for _, ep := range dev.Endpoints {
		if dstEndpoint != definition.BroadcastEndpoint && ep.ID != dstEndpoint {
			continue
		}
		if slices.Contains(ep.InClusters, clusterID) {
			out = append(out, ep.ID)
		}
	}
	return out
}

func (e *entityEndpoint) ConfigureReporting(ctx context.Context, cluster string, items []definition.ReportingItem, opts definition.ZCLOptions) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	var first *zcl.AttributeDef
	configs := make([]zcl.ReportingConfig, 0, len(items))
	for _, it := range items {
		id, typ := it.ID, it.Type
		if it.Attribute != "" {
			a := cl.AttributeByName(it.Attribute)
			if a == nil {
				return fmt.Errorf("%w: %s.%s", zcl.ErrUnknownAttribute, cluster, it.Attribute)
			}
			id, typ = a.ID, a.Type
			if first == nil {
				first = a
			}
		}
		configs = append(configs, zcl.ReportingConfig{
			ID:               id,
			Type:             typ,
			MinInterval:      it.MinInterval,
			MaxInterval:      it.MaxInterval,
			ReportableChange: it.ReportableChange,
		})
	}
	err = ncp.ConfigureReporting(ctx, e.d.c.ncp, ncp.ConfigureReportingRequest{
		IEEE:      e.d.addr,
		DstEP:     e.ep.ID,
		ClusterID: cl.ID,
		Configs:   configs,
		Options:   e.options(cl, opts, first),
	})
	if err != nil {
		return fmt.Errorf("configure reporting %s: %w", cluster, err)
	}
	return nil
}

func (e *entityEndpoint) Bind(ctx context.Context, cluster string) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	err = e.d.c.ncp.Bind(ctx, ncp.BindRequest{IEEE: e.d.addr, SrcEP: e.ep.ID, ClusterID: cl.ID, DstEP: coordinatorEndpoint})
	if err != nil {
		return fmt.Errorf("bind %s: %w", cluster, err)
	}
	b := store.Binding{Endpoint: e.ep.ID, Cluster: cl.Name}
	return e.d.updateBindings(func(list []store.Binding) []store.Binding {
		if slices.Contains(list, b) {
			return list
		}
		return append(list, b)
	})
}

func (e *entityEndpoint) Unbind(ctx context.Context, cluster string) error {
	cl, err := e.d.reg.Lookup(cluster)
	if err != nil {
		return err
	}
	err = e.d.c.ncp.Unbind(ctx, ncp.BindRequest{IEEE: e.d.addr, SrcEP: e.ep.ID, ClusterID: cl.ID, DstEP: coordinatorEndpoint})
	if err != nil {
		return fmt.Errorf("unbind %s: %w", cluster, err)
	}
	b := store.Binding{Endpoint: e.ep.ID, Cluster: cl.Name}
	return e.d.updateBindings(func(list []store.Binding) []store.Binding {
		return slices.DeleteFunc(list, func(x store.Binding) bool { return x == b })
	})
}

func (e *entityEndpoint) Binds() []string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return lo.FilterMap(e.d.dev.Bindings, func(b store.Binding, _ int) (string, bool) {
		return b.Cluster, b.Endpoint == e.ep.ID
	})
}

func (e *entityEndpoint) ClusterAttributeValue(cluster, attribute string) (any, bool) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	v, ok := e.d.dev.Attributes[attrKey(e.ep.ID, cluster)][attribute]
	return v, ok
}

func (e *entityEndpoint) SupportsInputCluster(cluster string) bool {
	cl := e.d.reg.GetByName(cluster)
	return cl != nil && slices.Contains(e.ep.InClusters, cl.ID)
}

func (e *entityEndpoint) SupportsOutputCluster(cluster string) bool {
	cl := e.d.reg.GetByName(cluster)
	return cl != nil && slices.Contains(e.ep.OutClusters, cl.ID)
}
