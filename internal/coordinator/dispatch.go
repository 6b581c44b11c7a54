package coordinator

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

const (
	frameQueueSize  = 64
	frameWorkerIdle = time.Minute
	frameTimeout    = 30 * time.Second
)

// frameQueue runs frame handling off the NCP read loop, one worker per
// device so that frames of a device are handled in arrival order.
// Converters may issue requests whose answers arrive on that same loop.
type frameQueue struct {
	ctx    context.Context
	handle func(ncp.ZCLFrameEvent)

	mu     sync.Mutex
	queues map[uint64]chan ncp.ZCLFrameEvent
	wg     sync.WaitGroup
}

func newFrameQueue(ctx context.Context, handle func(ncp.ZCLFrameEvent)) *frameQueue {
	return &frameQueue{
		ctx:    ctx,
		handle: handle,
		queues: make(map[uint64]chan ncp.ZCLFrameEvent),
	}
}

// push queues evt and reports false if it was dropped.
func (q *frameQueue) push(evt ncp.ZCLFrameEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return false
	}
	ch, ok := q.queues[evt.IEEEAddr]
	if !ok {
		ch = make(chan ncp.ZCLFrameEvent, frameQueueSize)
		q.queues[evt.IEEEAddr] = ch
		q.wg.Add(1)
		go q.run(evt.IEEEAddr, ch)
	}
	select {
	case ch <- evt:
		return true
	default:
		return false
	}
}

func (q *frameQueue) run(ieee uint64, ch chan ncp.ZCLFrameEvent) {
	defer q.wg.Done()
	idle := time.NewTimer(frameWorkerIdle)
	defer idle.Stop()
	for {
		select {
		case evt := <-ch:
			q.handle(evt)
			idle.Reset(frameWorkerIdle)
		case <-idle.C:
			q.mu.Lock()
			if len(ch) == 0 {
				delete(q.queues, ieee)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			idle.Reset(frameWorkerIdle)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *frameQueue) wait() {
	q.wg.Wait()
}

// HandleFrame turns an incoming ZCL frame into converter messages, runs the
// device's fromZigbee converters and publishes the merged result.
func (c *Coordinator) HandleFrame(evt ncp.ZCLFrameEvent) {
	ieee := ncp.FormatIEEE(evt.IEEEAddr)
	dev, err := c.store.GetDevice(ieee)
	if err != nil {
		c.logger.Debug("frame from unknown device", "ieee", ieee, "cluster", fmt.Sprintf("0x%04X", evt.ClusterID), "err", err)
		return
	}
	def := c.Definition(dev)
	ed := c.entity(dev, def)

	ctx, cancel := context.WithTimeout(c.ctx, frameTimeout)
	defer cancel()

	c.sendDefaultResponse(ctx, ed, evt)
	c.handleMessages(ctx, ed, c.decodeFrame(ed, evt), evt.LQI, true)
	c.devices.maybeConfigure(dev, def)
}

// decodeFrame builds the messages for a frame. Cluster-specific frames yield
// a command<Name> message when the command is modelled and always a raw
// message carrying the whole frame.
func (c *Coordinator) decodeFrame(ed *entityDevice, evt ncp.ZCLFrameEvent) []*definition.Message {
	cl := ed.reg.Get(evt.ClusterID)
	name := fmt.Sprintf("%d", evt.ClusterID)
	if cl != nil {
		name = cl.Name
	}
	h := evt.Frame.Header
	base := definition.Message{
		Cluster:     name,
		ClusterID:   evt.ClusterID,
		Endpoint:    ed.endpoint(evt.SrcEP),
		Device:      ed,
		Raw:         evt.Frame.Bytes(),
		Meta:        definition.MessageMeta{Sequence: h.Sequence, ManufacturerCode: h.ManufacturerCode},
		LinkQuality: evt.LQI,
	}
	logger := ed.logger.With("endpoint", evt.SrcEP, "cluster", name)

	if h.IsGlobal() {
		msg := base
		switch h.Command {
		case zcl.FoundationReportAttributes:
			records, err := zcl.DecodeReportAttributes(evt.Frame.Payload)
			if err != nil {
				logger.Warn("decode attribute report", "err", err)
				return nil
			}
			msg.Type = definition.MsgAttributeReport
			msg.Data = make(definition.Values, len(records))
			for _, r := range records {
				msg.Data[attributeName(cl, r.ID)] = r.Value
			}
		case zcl.FoundationReadAttributesResponse:
			records, err := zcl.DecodeReadAttributesResponse(evt.Frame.Payload)
			if err != nil {
				logger.Warn("decode read response", "err", err)
				return nil
			}
			msg.Type = definition.MsgReadResponse
			msg.Data = make(definition.Values, len(records))
			for _, r := range records {
				if r.Status == zcl.ZCLStatusSuccess {
					msg.Data[attributeName(cl, r.ID)] = r.Value
				}
			}
		case zcl.FoundationReadAttributes:
			ids, err := zcl.DecodeReadAttributes(evt.Frame.Payload)
			if err != nil {
				logger.Warn("decode read request", "err", err)
				return nil
			}
			msg.Type = definition.MsgRead
			for _, id := range ids {
				msg.Attributes = append(msg.Attributes, attributeName(cl, id))
			}
		default:
			logger.Debug("ignoring foundation command", "command", fmt.Sprintf("0x%02X", h.Command))
			return nil
		}
		return []*definition.Message{&msg}
	}

	var msgs []*definition.Message
	dir := zcl.DirectionToServer
	if h.Direction == zcl.ServerToClient {
		dir = zcl.DirectionToClient
	}
	if cl != nil {
		if cmd := cl.FindCommand(h.Command, dir); cmd != nil {
			params, err := zcl.DecodeCommandParams(cmd.Params, evt.Frame.Payload)
			if err != nil {
				logger.Warn("decode command", "command", cmd.Name, "err", err)
			} else {
				msg := base
				msg.Type = commandType(cmd.Name)
				msg.Data = params
				msgs = append(msgs, &msg)
			}
		}
	}
	raw := base
	raw.Type = definition.MsgRaw
	return append(msgs, &raw)
}

func commandType(name string) string {
	if name == "" {
		return "command"
	}
	return "command" + strings.ToUpper(name[:1]) + name[1:]
}

// sendDefaultResponse acknowledges reports and cluster commands that ask
// for it.
func (c *Coordinator) sendDefaultResponse(ctx context.Context, ed *entityDevice, evt ncp.ZCLFrameEvent) {
	h := evt.Frame.Header
	if h.DisableDefaultResponse || (h.IsGlobal() && h.Command != zcl.FoundationReportAttributes) {
		return
	}
	dir := zcl.ServerToClient
	if h.Direction == zcl.ServerToClient {
		dir = zcl.ClientToServer
	}
	_, err := c.ncp.SendZCL(ctx, ncp.ZCLRequest{
		IEEE:      evt.IEEEAddr,
		DstEP:     evt.SrcEP,
		ClusterID: evt.ClusterID,
		Global:    true,
		Command:   zcl.FoundationDefaultResponse,
		Payload:   []byte{h.Command, zcl.ZCLStatusSuccess},
		Options: ncp.Options{
			ManufacturerCode:       h.ManufacturerCode,
			DisableDefaultResponse: true,
			Direction:              dir,
		},
		Sequence: h.Sequence,
		Reply:    true,
	})
	if err != nil {
		ed.logger.Debug("default response", "cluster", fmt.Sprintf("0x%04X", evt.ClusterID), "err", err)
	}
}

// handleMessages caches attribute values, runs the matching converters of
// every message and commits the merged state. A failing converter is
// logged and skipped.
func (c *Coordinator) handleMessages(ctx context.Context, ed *entityDevice, msgs []*definition.Message, lqi uint8, seen bool) {
	var (
		update         definition.Values
		attrs          = make(map[string]definition.Values)
		exposesChanged bool
	)
	for _, msg := range msgs {
		if msg.Type == definition.MsgAttributeReport || msg.Type == definition.MsgReadResponse {
			key := attrKey(msg.Endpoint.ID(), msg.Cluster)
			attrs[key] = attrs[key].Merge(msg.Data)
			ed.cacheLocal(key, msg.Data)
		}
		if ed.def == nil {
			continue
		}
		for _, conv := range ed.def.FromZigbeeFor(msg.Type, msg.Cluster) {
			meta := &definition.ConvertMeta{
				State:                ed.state(),
				Device:               ed,
				Logger:               ed.logger,
				DeviceExposesChanged: func() { exposesChanged = true },
			}
			out, err := conv.Convert(ctx, ed.def, msg, c.publisher(ed), ed.options(), meta)
			if err != nil {
				ed.logger.Warn("converter failed", "cluster", msg.Cluster, "type", msg.Type, "endpoint", msg.Endpoint.ID(), "err", err)
				continue
			}
			if len(out) == 0 {
				continue
			}
			update = update.Merge(out)
			ed.mergeState(out)
		}
	}
	if len(update) > 0 && lqi > 0 {
		update["linkquality"] = lqi
	}
	c.commit(ed, update, attrs, seen, lqi)
	if exposesChanged {
		ed.logger.Info("device exposes changed")
		c.events.Emit(Event{Type: EventExposesChanged, Data: DeviceEvent{IEEE: ed.IEEE(), FriendlyName: ed.dev.FriendlyName}})
	}
}

// publisher lets converters publish state outside the message path.
func (c *Coordinator) publisher(ed *entityDevice) definition.Publish {
	return func(values definition.Values) {
		if len(values) == 0 {
			return
		}
		ed.mergeState(values)
		c.commit(ed, maps.Clone(values), nil, false, 0)
	}
}

// commit persists state, attribute cache, meta and liveness in one update
// and emits state_change when the state changed.
func (c *Coordinator) commit(ed *entityDevice, update definition.Values, attrs map[string]definition.Values, seen bool, lqi uint8) {
	meta := ed.metaSnapshot()
	if len(update) == 0 && len(attrs) == 0 && meta == nil && !seen {
		return
	}
	var snapshot *store.Device
	err := c.store.UpdateDevice(ed.IEEE(), func(dev *store.Device) error {
		if seen {
			dev.LastSeen = time.Now()
		}
		if lqi > 0 {
			dev.LQI = lqi
		}
		for key, values := range attrs {
			mergeAttributes(dev, key, values)
		}
		if meta != nil {
			dev.Meta = meta
		}
		if len(update) > 0 {
			dev.State = definition.Values(dev.State).Merge(update)
		}
		snapshot = dev.Clone()
		return nil
	})
	if err != nil {
		ed.logger.Error("save device state", "err", err)
		return
	}
	if len(update) == 0 {
		return
	}
	ed.logger.Debug("state update", "update", update)
	c.events.Emit(Event{Type: EventStateChange, Data: StateChange{
		IEEE:         snapshot.IEEEAddress,
		FriendlyName: snapshot.FriendlyName,
		State:        snapshot.State,
		Update:       update,
	}})
}
