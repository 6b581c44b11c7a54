package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/store"
)

// ErrUnsupportedDevice is returned for devices without a matching definition.
var ErrUnsupportedDevice = errors.New("device not supported")

// resolveEntity finds a device by IEEE address or friendly name together
// with its definition.
func (c *Coordinator) resolveEntity(id string) (*entityDevice, error) {
	dev, err := store.Resolve(c.store, id)
	if err != nil {
		return nil, err
	}
	def := c.Definition(dev)
	if def == nil {
		return nil, fmt.Errorf("%s (%s): %w", dev.DisplayName(), dev.ModelID, ErrUnsupportedDevice)
	}
	return c.entity(dev, def), nil
}

// splitEndpoint splits "state_left" into "state" and "left" for the named
// endpoints of a multi-endpoint definition.
func splitEndpoint(def *definition.Definition, key string) (base, endpoint string) {
	if !def.Meta.MultiEndpoint {
		return key, ""
	}
	names := slices.SortedFunc(maps.Keys(def.Endpoints), func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	for _, name := range names {
		if base, ok := strings.CutSuffix(key, "_"+name); ok && base != "" {
			return base, name
		}
	}
	return key, ""
}

// targetEndpoint resolves the endpoint a key addresses.
func (d *entityDevice) targetEndpoint(name string) *entityEndpoint {
	if name != "" {
		if id, ok := d.def.EndpointID(name); ok {
			return d.endpoint(id)
		}
	}
	return d.endpoint(d.defaultEndpoint())
}

// setOrder puts "state" first when switching on and last when switching off
// so that brightness and similar keys apply to a device that is on.
func setOrder(def *definition.Definition, payload map[string]any) []string {
	keys := slices.Sorted(maps.Keys(payload))
	rank := func(key string) int {
		base, _ := splitEndpoint(def, key)
		if base != "state" {
			return 0
		}
		if s, ok := payload[key].(string); ok && strings.EqualFold(s, "off") {
			return 1
		}
		return -1
	}
	slices.SortStableFunc(keys, func(a, b string) int { return cmp.Compare(rank(a), rank(b)) })
	return keys
}

// SetState applies a /set payload through the device's toZigbee converters
// and returns the state changes the converters reported. Keys without a
// converter and failing converters are reported in the joined error; the
// remaining keys are still applied.
func (c *Coordinator) SetState(ctx context.Context, id string, payload map[string]any) (definition.Values, error) {
	ed, err := c.resolveEntity(id)
	if err != nil {
		return nil, err
	}
	var (
		changes definition.Values
		errs    []error
		used    = make(map[string][]*definition.ToZigbee)
	)
	for _, key := range setOrder(ed.def, payload) {
		value := payload[key]
		base, epName := splitEndpoint(ed.def, key)
		conv := ed.def.ToZigbeeFor(base, false)
		if conv == nil {
			errs = append(errs, fmt.Errorf("%w for %q", definition.ErrNoConverter, key))
			continue
		}
		if slices.Contains(used[epName], conv) {
			continue
		}
		used[epName] = append(used[epName], conv)

		msg := definition.Values(maps.Clone(payload))
		msg[base] = value
		ep := ed.targetEndpoint(epName)
		meta := &definition.TzMeta{
			Message:      msg,
			Device:       ed,
			Definition:   ed.def,
			Options:      ed.options(),
			State:        ed.state(),
			EndpointName: epName,
			Logger:       ed.logger,
		}
		res, err := conv.ConvertSet(ctx, ep, base, value, meta)
		if err != nil {
			ed.logger.Warn("set failed", "key", key, "err", err)
			errs = append(errs, fmt.Errorf("set %s: %w", key, err))
			continue
		}
		if res == nil {
			continue
		}
		if len(res.State) > 0 {
			out := postfixKeys(res.State, epName)
			changes = changes.Merge(out)
			ed.mergeState(out)
		}
		if res.ReadAfterWriteTime > 0 && conv.ConvertGet != nil {
			c.readAfterWrite(ed, conv, ep, base, meta, time.Duration(res.ReadAfterWriteTime)*time.Millisecond)
		}
	}
	c.commit(ed, changes, nil, false, 0)
	return changes, errors.Join(errs...)
}

func postfixKeys(values definition.Values, endpoint string) definition.Values {
	if endpoint == "" {
		return values
	}
	out := make(definition.Values, len(values))
	for k, v := range values {
		if !strings.HasSuffix(k, "_"+endpoint) {
			k += "_" + endpoint
		}
		out[k] = v
	}
	return out
}

func (c *Coordinator) readAfterWrite(ed *entityDevice, conv *definition.ToZigbee, ep *entityEndpoint, key string, meta *definition.TzMeta, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if c.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, frameTimeout)
		defer cancel()
		if err := conv.ConvertGet(ctx, ep, key, meta); err != nil {
			ed.logger.Debug("read after write", "key", key, "err", err)
		}
	})
}

// GetState asks the device for the given keys through the toZigbee
// converters and returns the refreshed state. With no keys, every property
// exposed with GET access is refreshed and keys without a get converter are
// skipped.
func (c *Coordinator) GetState(ctx context.Context, id string, keys []string) (definition.Values, error) {
	ed, err := c.resolveEntity(id)
	if err != nil {
		return nil, err
	}
	explicit := len(keys) > 0
	if !explicit {
		keys = exposes.Properties(ed.def.ExposesFor(ed, ed.options()), exposes.AccessGet)
	}
	var (
		errs []error
		used = make(map[string][]*definition.ToZigbee)
	)
	for _, key := range keys {
		base, epName := splitEndpoint(ed.def, key)
		conv := ed.def.ToZigbeeFor(base, true)
		if conv == nil {
			if explicit {
				errs = append(errs, fmt.Errorf("%w for %q", definition.ErrNoConverter, key))
			}
			continue
		}
		if slices.Contains(used[epName], conv) {
			continue
		}
		used[epName] = append(used[epName], conv)

		meta := &definition.TzMeta{
			Message:      definition.Values{base: ""},
			Device:       ed,
			Definition:   ed.def,
			Options:      ed.options(),
			State:        ed.state(),
			EndpointName: epName,
			Logger:       ed.logger,
		}
		if err := conv.ConvertGet(ctx, ed.targetEndpoint(epName), base, meta); err != nil {
			ed.logger.Warn("get failed", "key", key, "err", err)
			errs = append(errs, fmt.Errorf("get %s: %w", key, err))
		}
	}
	return ed.state(), errors.Join(errs...)
}

// SetOptions merges user options into the device; a nil value removes the
// option. Exposes depending on options may change.
func (c *Coordinator) SetOptions(id string, opts map[string]any) (map[string]any, error) {
	dev, err := store.Resolve(c.store, id)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = c.store.UpdateDevice(dev.IEEEAddress, func(d *store.Device) error {
		if d.Options == nil {
			d.Options = make(map[string]any, len(opts))
		}
		for k, v := range opts {
			if v == nil {
				delete(d.Options, k)
				continue
			}
			d.Options[k] = v
		}
		out = maps.Clone(d.Options)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set options %s: %w", id, err)
	}
	c.events.Emit(Event{Type: EventExposesChanged, Data: DeviceEvent{IEEE: dev.IEEEAddress, FriendlyName: dev.FriendlyName}})
	return out, nil
}
