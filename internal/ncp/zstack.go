package ncp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zstack"
	"go.bug.st/serial"

	"zigbee-go-catalog/internal/zcl"
)

const (
	adapterEndpoint   uint8  = 1
	profileHA         uint16 = 0x0104
	clusterOTA        uint16 = 0x0019
	otaQueryNextImage uint8  = 0x01
	otaQueryNextRsp   uint8  = 0x02

	zclRespTimeout = 10 * time.Second
	maxPermitJoin  = 254 * time.Second
)

// KnownNode is a previously paired device restored into the Z-Stack node
// table so that network addresses resolve without waiting for an announce.
type KnownNode struct {
	IEEE      uint64
	ShortAddr uint16
	LQI       uint8
	LastSeen  time.Time
}

// adapterInfo is the part of the Z-Stack host that reports the adapter's
// own addresses.
type adapterInfo interface {
	GetAdapterIEEEAddress(ctx context.Context) (zigbee.IEEEAddress, error)
	GetAdapterNetworkAddress(ctx context.Context) (zigbee.NetworkAddress, error)
}

type pendingResponse struct {
	ieee uint64
	ch   chan zcl.Frame
}

// ZStack implements NCP on top of a TI Z-Stack adapter.
type ZStack struct {
	port     serial.Port
	portName string
	z        *zstack.ZStack
	info     adapterInfo
	logger   *slog.Logger

	cfg NetworkConfig
	// localIEEE is read from the adapter once Start succeeds.
	localIEEE atomic.Uint64

	// ZCL sequence number for outgoing frames.
	zclSeq atomic.Uint32

	// ZCL response tracking (keyed by ZCL sequence number).
	zclPending map[uint8]pendingResponse
	zclMu      sync.Mutex

	// Indication callbacks.
	handlerMu  sync.RWMutex
	onJoined   func(DeviceJoinedEvent)
	onLeft     func(DeviceLeftEvent)
	onAnnounce func(DeviceAnnounceEvent)
	onFrame    func(ZCLFrameEvent)

	joinMu    sync.Mutex
	joinTimer *time.Timer

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenZStack opens the adapter serial port and prepares the Z-Stack host.
// The network is not touched until Start.
func OpenZStack(portName string, baudRate int, nodes []KnownNode, logger *slog.Logger) (*ZStack, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("zstack ncp: open %s: %w", portName, err)
	}
	_ = port.SetRTS(true)

	table := zstack.NewNodeTable()
	znodes := make([]zigbee.Node, 0, len(nodes))
	for _, n := range nodes {
		znodes = append(znodes, zigbee.Node{
			IEEEAddress:    zigbee.IEEEAddress(n.IEEE),
			NetworkAddress: zigbee.NetworkAddress(n.ShortAddr),
			LQI:            n.LQI,
			LastDiscovered: n.LastSeen,
			LastReceived:   n.LastSeen,
		})
	}
	table.Load(znodes)

	z := zstack.New(port, table)
	return &ZStack{
		port:       port,
		portName:   portName,
		z:          z,
		info:       z,
		logger:     logger,
		zclPending: make(map[uint8]pendingResponse),
		done:       make(chan struct{}),
	}, nil
}

// Start initialises the adapter with the network configuration, registers
// the coordinator endpoint and starts the event loop. Z-Stack resumes an
// existing network from its NV memory when the configuration matches.
func (n *ZStack) Start(ctx context.Context, cfg NetworkConfig) error {
	n.cfg = cfg
	netCfg := zigbee.NetworkConfiguration{
		PANID:         zigbee.PANID(cfg.PanID),
		ExtendedPANID: zigbee.ExtendedPANID(cfg.ExtPanID),
		NetworkKey:    zigbee.NetworkKey(cfg.NetworkKey),
		Channel:       cfg.Channel,
	}
	n.logger.Info("initialising z-stack", "port", n.portName, "channel", cfg.Channel, "pan_id", fmt.Sprintf("0x%04X", cfg.PanID))
	if err := n.z.Initialise(ctx, netCfg); err != nil {
		return fmt.Errorf("zstack initialise: %w", err)
	}
	if err := n.z.DenyJoin(ctx); err != nil {
		n.logger.Warn("deny join after init", "err", err)
	}

	in := []zigbee.ClusterID{0x0000, zigbee.ClusterID(clusterOTA), 0x000A}
	out := []zigbee.ClusterID{0x0000, 0x0003, 0x0006, 0x0008, 0x0500, 0x0502}
	if err := n.z.RegisterAdapterEndpoint(ctx, zigbee.Endpoint(adapterEndpoint), zigbee.ProfileHomeAutomation, 0x0005, 1, in, out); err != nil {
		return fmt.Errorf("zstack register endpoint: %w", err)
	}
	ieee, err := n.info.GetAdapterIEEEAddress(ctx)
	if err != nil {
		return fmt.Errorf("zstack adapter ieee: %w", err)
	}
	n.localIEEE.Store(uint64(ieee))

	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.wg.Add(1)
	go n.readLoop(loopCtx)
	return nil
}

// nextZCLSeq allocates the next ZCL sequence number.
func (n *ZStack) nextZCLSeq() uint8 {
	return uint8(n.zclSeq.Add(1))
}

func (n *ZStack) readLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		event, err := n.z.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Warn("zstack read event", "err", err)
			continue
		}

		n.handlerMu.RLock()
		onJoined, onLeft, onAnnounce := n.onJoined, n.onLeft, n.onAnnounce
		n.handlerMu.RUnlock()

		switch e := event.(type) {
		case zigbee.NodeJoinEvent:
			n.logger.Info("node joined", "ieee", FormatIEEE(uint64(e.Node.IEEEAddress)), "short", fmt.Sprintf("0x%04X", uint16(e.Node.NetworkAddress)))
			if onJoined != nil {
				onJoined(DeviceJoinedEvent{ShortAddr: uint16(e.Node.NetworkAddress), IEEEAddr: uint64(e.Node.IEEEAddress)})
			}
		case zigbee.NodeLeaveEvent:
			n.logger.Info("node left", "ieee", FormatIEEE(uint64(e.Node.IEEEAddress)))
			if onLeft != nil {
				onLeft(DeviceLeftEvent{ShortAddr: uint16(e.Node.NetworkAddress), IEEEAddr: uint64(e.Node.IEEEAddress)})
			}
		case zigbee.NodeUpdateEvent:
			if onAnnounce != nil {
				onAnnounce(DeviceAnnounceEvent{
					ShortAddr: uint16(e.Node.NetworkAddress),
					IEEEAddr:  uint64(e.Node.IEEEAddress),
					LQI:       e.Node.LQI,
				})
			}
		case zigbee.NodeIncomingMessageEvent:
			n.handleIncoming(e.IncomingMessage)
		}
	}
}

// handleIncoming decodes an application message, answers OTA queries,
// completes pending requests and forwards everything else.
func (n *ZStack) handleIncoming(msg zigbee.IncomingMessage) {
	app := msg.ApplicationMessage
	ieee := uint64(msg.SourceAddress.IEEEAddress)
	frame, err := zcl.DecodeFrame(app.Data)
	if err != nil {
		n.logger.Debug("drop non-zcl message", "ieee", FormatIEEE(ieee), "cluster", fmt.Sprintf("0x%04X", uint16(app.ClusterID)), "err", err)
		return
	}
	// Own copy: the payload outlives the zstack buffer.
	frame.Payload = append([]byte(nil), frame.Payload...)
	cluster := uint16(app.ClusterID)

	if !frame.Header.IsGlobal() && cluster == clusterOTA && frame.Header.Command == otaQueryNextImage {
		// Must run in a goroutine: the reply is sent through the same
		// zstack instance whose event this loop is still handling.
		n.logger.Info("OTA query from device, responding NO_IMAGE_AVAILABLE", "ieee", FormatIEEE(ieee), "ep", uint8(app.SourceEndpoint))
		go n.sendOTANoImageAvailable(ieee, uint8(app.SourceEndpoint), frame.Header.Sequence)
		return
	}

	evt := ZCLFrameEvent{
		IEEEAddr:  ieee,
		ShortAddr: uint16(msg.SourceAddress.NetworkAddress),
		SrcEP:     uint8(app.SourceEndpoint),
		DstEP:     uint8(app.DestinationEndpoint),
		ClusterID: cluster,
		Frame:     frame,
		LQI:       msg.LinkQuality,
	}

	if frame.Header.IsGlobal() && isResponseCommand(frame.Header.Command) {
		n.zclMu.Lock()
		p, ok := n.zclPending[frame.Header.Sequence]
		n.zclMu.Unlock()
		if ok && p.ieee == ieee {
			select {
			case p.ch <- frame:
			default:
			}
		}
		// Read responses also update state; the rest are consumed here.
		if frame.Header.Command != zcl.FoundationReadAttributesResponse {
			return
		}
	}

	n.handlerMu.RLock()
	onFrame := n.onFrame
	n.handlerMu.RUnlock()
	if onFrame != nil {
		onFrame(evt)
	}
}

func isResponseCommand(cmd uint8) bool {
	switch cmd {
	case zcl.FoundationReadAttributesResponse,
		zcl.FoundationWriteAttributesResp,
		zcl.FoundationConfigReportingResp,
		zcl.FoundationReadReportingConfigRsp,
		zcl.FoundationDiscoverAttributesResp,
		zcl.FoundationDefaultResponse:
		return true
	}
	return false
}

// sendOTANoImageAvailable responds to an OTA QueryNextImageRequest with NO_IMAGE_AVAILABLE.
func (n *ZStack) sendOTANoImageAvailable(ieee uint64, dstEP uint8, seq uint8) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := n.SendZCL(ctx, ZCLRequest{
		IEEE:      ieee,
		DstEP:     dstEP,
		ClusterID: clusterOTA,
		Command:   otaQueryNextRsp,
		Payload:   []byte{zcl.ZCLStatusNoImageAvailable},
		Options: Options{
			Direction:              zcl.ServerToClient,
			DisableDefaultResponse: true,
		},
		Sequence: seq,
		Reply:    true,
	})
	if err != nil {
		n.logger.Warn("OTA no-image response failed", "ieee", FormatIEEE(ieee), "err", err)
	}
}

// --- NCP interface: Network management ---

// PermitJoin opens the network for duration seconds; zero closes it.
// Z-Stack has no timed permit join, so the close is scheduled here.
func (n *ZStack) PermitJoin(ctx context.Context, duration uint8) error {
	n.joinMu.Lock()
	defer n.joinMu.Unlock()
	if n.joinTimer != nil {
		n.joinTimer.Stop()
		n.joinTimer = nil
	}
	if duration == 0 {
		return n.z.DenyJoin(ctx)
	}
	if err := n.z.PermitJoin(ctx, true); err != nil {
		return err
	}
	d := time.Duration(duration) * time.Second
	if d > maxPermitJoin {
		d = maxPermitJoin
	}
	n.joinTimer = time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.z.DenyJoin(ctx); err != nil {
			n.logger.Warn("close permit join", "err", err)
		}
	})
	return nil
}

// NetworkInfo queries the adapter for its current addresses.
func (n *ZStack) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	ieee, err := n.info.GetAdapterIEEEAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("adapter ieee: %w", err)
	}
	short, err := n.info.GetAdapterNetworkAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("adapter network address: %w", err)
	}
	n.localIEEE.Store(uint64(ieee))
	return &NetworkInfo{
		Channel:     n.cfg.Channel,
		PanID:       n.cfg.PanID,
		ExtPanID:    n.cfg.ExtPanID,
		IEEEAddress: uint64(ieee),
		ShortAddr:   uint16(short),
	}, nil
}

// LocalIEEE returns the adapter address read during Start, or zero before
// the network is up.
func (n *ZStack) LocalIEEE() uint64 {
	return n.localIEEE.Load()
}

// --- NCP interface: ZDO ---

func (n *ZStack) ActiveEndpoints(ctx context.Context, ieee uint64) ([]uint8, error) {
	eps, err := n.z.QueryNodeEndpoints(ctx, zigbee.IEEEAddress(ieee))
	if err != nil {
		return nil, fmt.Errorf("active endpoints %s: %w", FormatIEEE(ieee), err)
	}
	result := make([]uint8, len(eps))
	for i, ep := range eps {
		result[i] = uint8(ep)
	}
	return result, nil
}

func (n *ZStack) SimpleDescriptor(ctx context.Context, ieee uint64, endpoint uint8) (*SimpleDescriptor, error) {
	desc, err := n.z.QueryNodeEndpointDescription(ctx, zigbee.IEEEAddress(ieee), zigbee.Endpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("simple descriptor %s/%d: %w", FormatIEEE(ieee), endpoint, err)
	}
	sd := &SimpleDescriptor{
		Endpoint:  uint8(desc.Endpoint),
		ProfileID: uint16(desc.ProfileID),
		DeviceID:  desc.DeviceID,
		Version:   desc.DeviceVersion,
	}
	for _, c := range desc.InClusterList {
		sd.InClusters = append(sd.InClusters, uint16(c))
	}
	for _, c := range desc.OutClusterList {
		sd.OutClusters = append(sd.OutClusters, uint16(c))
	}
	return sd, nil
}

func (n *ZStack) Bind(ctx context.Context, req BindRequest) error {
	return n.z.BindNodeToController(ctx, zigbee.IEEEAddress(req.IEEE), zigbee.Endpoint(req.SrcEP), zigbee.Endpoint(req.DstEP), zigbee.ClusterID(req.ClusterID))
}

func (n *ZStack) Unbind(ctx context.Context, req BindRequest) error {
	return n.z.UnbindNodeFromController(ctx, zigbee.IEEEAddress(req.IEEE), zigbee.Endpoint(req.SrcEP), zigbee.Endpoint(req.DstEP), zigbee.ClusterID(req.ClusterID))
}

func (n *ZStack) Leave(ctx context.Context, ieee uint64) error {
	return n.z.RequestNodeLeave(ctx, zigbee.IEEEAddress(ieee))
}

// --- NCP interface: ZCL ---

func (n *ZStack) SendZCL(ctx context.Context, req ZCLRequest) (*zcl.Frame, error) {
	select {
	case <-n.done:
		return nil, ErrClosed
	default:
	}
	if !req.Reply {
		req.Sequence = n.nextZCLSeq()
	}
	srcEP := req.Options.SrcEndpoint
	if srcEP == 0 {
		srcEP = adapterEndpoint
	}
	frame := zcl.Frame{Header: req.Header(), Payload: req.Payload}

	var ch chan zcl.Frame
	if req.WaitResponse {
		ch = make(chan zcl.Frame, 1)
		n.zclMu.Lock()
		n.zclPending[req.Sequence] = pendingResponse{ieee: req.IEEE, ch: ch}
		n.zclMu.Unlock()
		defer func() {
			n.zclMu.Lock()
			delete(n.zclPending, req.Sequence)
			n.zclMu.Unlock()
		}()
	}

	n.logger.Debug("ZCL TX",
		"ieee", FormatIEEE(req.IEEE),
		"ep", req.DstEP,
		"cluster", fmt.Sprintf("0x%04X", req.ClusterID),
		"cmd", fmt.Sprintf("0x%02X", req.Command),
		"seq", req.Sequence,
		"payload", fmt.Sprintf("%X", req.Payload))

	app := zigbee.ApplicationMessage{
		ClusterID:           zigbee.ClusterID(req.ClusterID),
		SourceEndpoint:      zigbee.Endpoint(srcEP),
		DestinationEndpoint: zigbee.Endpoint(req.DstEP),
		Data:                frame.Bytes(),
	}
	if err := n.z.SendApplicationMessageToNode(ctx, zigbee.IEEEAddress(req.IEEE), app, false); err != nil {
		return nil, fmt.Errorf("send zcl to %s: %w", FormatIEEE(req.IEEE), err)
	}
	if !req.WaitResponse {
		return nil, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, zclRespTimeout)
		defer cancel()
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return &resp, nil
	case <-ctx.Done():
		n.logger.Warn("ZCL response timeout",
			"ieee", FormatIEEE(req.IEEE),
			"cluster", fmt.Sprintf("0x%04X", req.ClusterID),
			"seq", req.Sequence)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s cluster 0x%04X", ErrTimeout, FormatIEEE(req.IEEE), req.ClusterID)
		}
		return nil, ctx.Err()
	case <-n.done:
		return nil, ErrClosed
	}
}

// --- Indication callback setters ---

func (n *ZStack) OnDeviceJoined(handler func(DeviceJoinedEvent)) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.onJoined = handler
}
func (n *ZStack) OnDeviceLeft(handler func(DeviceLeftEvent)) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.onLeft = handler
}
func (n *ZStack) OnDeviceAnnounce(handler func(DeviceAnnounceEvent)) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.onAnnounce = handler
}
func (n *ZStack) OnZCLFrame(handler func(ZCLFrameEvent)) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.onFrame = handler
}

// Close stops the event loop, the Z-Stack host and the serial port.
func (n *ZStack) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		n.joinMu.Lock()
		if n.joinTimer != nil {
			n.joinTimer.Stop()
		}
		n.joinMu.Unlock()
		if n.cancel != nil {
			n.cancel()
		}
		n.z.Stop()
		err = n.port.Close()
		n.wg.Wait()

		n.zclMu.Lock()
		for seq, p := range n.zclPending {
			close(p.ch)
			delete(n.zclPending, seq)
		}
		n.zclMu.Unlock()
	})
	return err
}
