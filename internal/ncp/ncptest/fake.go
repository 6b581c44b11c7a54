// Package ncptest provides an in-memory NCP for tests.
package ncptest

import (
	"context"
	"errors"
	"sync"

	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/zcl"
)

// AttrKey addresses one attribute on one device endpoint.
type AttrKey struct {
	IEEE      uint64
	Endpoint  uint8
	ClusterID uint16
	AttrID    uint16
}

// Fake records every request and answers foundation commands from an
// attribute table. Respond overrides the built-in answers when set.
type Fake struct {
	mu sync.Mutex

	Sent    []ncp.ZCLRequest
	Binds   []ncp.BindRequest
	Unbinds []ncp.BindRequest
	Left    []uint64
	Joins   []uint8
	Started *ncp.NetworkConfig

	Endpoints   map[uint64][]uint8
	Descriptors map[uint64]map[uint8]*ncp.SimpleDescriptor
	Attributes  map[AttrKey]zcl.ReadRecord

	// Respond, when non-nil, answers requests with WaitResponse set. A nil
	// frame with nil error falls through to the built-in answer.
	Respond func(req ncp.ZCLRequest) (*zcl.Frame, error)
	// BindErr is returned by Bind and Unbind when set.
	BindErr error

	Local uint64
	seq   uint8

	onJoined   func(ncp.DeviceJoinedEvent)
	onLeft     func(ncp.DeviceLeftEvent)
	onAnnounce func(ncp.DeviceAnnounceEvent)
	onFrame    func(ncp.ZCLFrameEvent)
}

// New returns an empty fake NCP.
func New() *Fake {
	return &Fake{
		Endpoints:   make(map[uint64][]uint8),
		Descriptors: make(map[uint64]map[uint8]*ncp.SimpleDescriptor),
		Attributes:  make(map[AttrKey]zcl.ReadRecord),
		Local:       0x00124b0000000001,
	}
}

var _ ncp.NCP = (*Fake)(nil)

// SetAttribute stores a value the fake returns for Read Attributes.
func (f *Fake) SetAttribute(ieee uint64, ep uint8, cluster, attr uint16, typ uint8, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attributes[AttrKey{ieee, ep, cluster, attr}] = zcl.ReadRecord{ID: attr, Type: typ, Value: value}
}

// AddEndpoint registers an endpoint with its simple descriptor.
func (f *Fake) AddEndpoint(ieee uint64, desc ncp.SimpleDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Endpoints[ieee] = append(f.Endpoints[ieee], desc.Endpoint)
	if f.Descriptors[ieee] == nil {
		f.Descriptors[ieee] = make(map[uint8]*ncp.SimpleDescriptor)
	}
	d := desc
	f.Descriptors[ieee][desc.Endpoint] = &d
}

// Requests returns a copy of the recorded ZCL requests.
func (f *Fake) Requests() []ncp.ZCLRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ncp.ZCLRequest(nil), f.Sent...)
}

// Reset clears the recorded requests.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = nil
	f.Binds = nil
	f.Unbinds = nil
}

func (f *Fake) Start(ctx context.Context, cfg ncp.NetworkConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = &cfg
	return nil
}

func (f *Fake) PermitJoin(ctx context.Context, duration uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Joins = append(f.Joins, duration)
	return nil
}

func (f *Fake) NetworkInfo(ctx context.Context) (*ncp.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := &ncp.NetworkInfo{IEEEAddress: f.Local}
	if f.Started != nil {
		info.Channel = f.Started.Channel
		info.PanID = f.Started.PanID
		info.ExtPanID = f.Started.ExtPanID
	}
	return info, nil
}

func (f *Fake) LocalIEEE() uint64 { return f.Local }

func (f *Fake) ActiveEndpoints(ctx context.Context, ieee uint64) ([]uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eps, ok := f.Endpoints[ieee]
	if !ok {
		return nil, ncp.ErrTimeout
	}
	return append([]uint8(nil), eps...), nil
}

func (f *Fake) SimpleDescriptor(ctx context.Context, ieee uint64, endpoint uint8) (*ncp.SimpleDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Descriptors[ieee][endpoint]
	if !ok {
		return nil, ncp.ErrTimeout
	}
	c := *d
	return &c, nil
}

func (f *Fake) Bind(ctx context.Context, req ncp.BindRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Binds = append(f.Binds, req)
	return f.BindErr
}

func (f *Fake) Unbind(ctx context.Context, req ncp.BindRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unbinds = append(f.Unbinds, req)
	return f.BindErr
}

func (f *Fake) Leave(ctx context.Context, ieee uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Left = append(f.Left, ieee)
	return nil
}

func (f *Fake) SendZCL(ctx context.Context, req ncp.ZCLRequest) (*zcl.Frame, error) {
	f.mu.Lock()
	if !req.Reply {
		f.seq++
		req.Sequence = f.seq
	}
	f.Sent = append(f.Sent, req)
	respond := f.Respond
	f.mu.Unlock()

	if !req.WaitResponse {
		return nil, nil
	}
	if respond != nil {
		frame, err := respond(req)
		if err != nil || frame != nil {
			return frame, err
		}
	}
	return f.answer(req)
}

// answer builds the response a well-behaved device would send.
func (f *Fake) answer(req ncp.ZCLRequest) (*zcl.Frame, error) {
	hdr := zcl.FrameHeader{
		FrameType:              zcl.FrameTypeGlobal,
		Direction:              zcl.ServerToClient,
		DisableDefaultResponse: true,
		Sequence:               req.Sequence,
	}
	if !req.Global {
		hdr.Command = zcl.FoundationDefaultResponse
		return &zcl.Frame{Header: hdr, Payload: []byte{req.Command, zcl.ZCLStatusSuccess}}, nil
	}
	switch req.Command {
	case zcl.FoundationReadAttributes:
		ids, err := zcl.DecodeReadAttributes(req.Payload)
		if err != nil {
			return nil, err
		}
		var records []zcl.ReadRecord
		f.mu.Lock()
		for _, id := range ids {
			r, ok := f.Attributes[AttrKey{req.IEEE, req.DstEP, req.ClusterID, id}]
			if !ok {
				r = zcl.ReadRecord{ID: id, Status: zcl.ZCLStatusUnsupportedAttr}
			}
			records = append(records, r)
		}
		f.mu.Unlock()
		payload, err := zcl.EncodeReadAttributesResponse(records)
		if err != nil {
			return nil, err
		}
		hdr.Command = zcl.FoundationReadAttributesResponse
		return &zcl.Frame{Header: hdr, Payload: payload}, nil
	case zcl.FoundationWriteAttributes:
		hdr.Command = zcl.FoundationWriteAttributesResp
		return &zcl.Frame{Header: hdr, Payload: []byte{zcl.ZCLStatusSuccess}}, nil
	case zcl.FoundationConfigReporting:
		hdr.Command = zcl.FoundationConfigReportingResp
		return &zcl.Frame{Header: hdr, Payload: []byte{zcl.ZCLStatusSuccess}}, nil
	}
	return nil, errors.New("ncptest: no answer for command")
}

func (f *Fake) OnDeviceJoined(h func(ncp.DeviceJoinedEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onJoined = h
}
func (f *Fake) OnDeviceLeft(h func(ncp.DeviceLeftEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLeft = h
}
func (f *Fake) OnDeviceAnnounce(h func(ncp.DeviceAnnounceEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAnnounce = h
}
func (f *Fake) OnZCLFrame(h func(ncp.ZCLFrameEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFrame = h
}

// Join simulates a device joining.
func (f *Fake) Join(evt ncp.DeviceJoinedEvent) {
	f.mu.Lock()
	h := f.onJoined
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// LeaveNetwork simulates a device leaving.
func (f *Fake) LeaveNetwork(evt ncp.DeviceLeftEvent) {
	f.mu.Lock()
	h := f.onLeft
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// Announce simulates a device announce.
func (f *Fake) Announce(evt ncp.DeviceAnnounceEvent) {
	f.mu.Lock()
	h := f.onAnnounce
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

// Deliver simulates an incoming ZCL frame.
func (f *Fake) Deliver(evt ncp.ZCLFrameEvent) {
	f.mu.Lock()
	h := f.onFrame
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *Fake) Close() error { return nil }
