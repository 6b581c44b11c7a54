package ncp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/shimmeringbee/zigbee"

	"zigbee-go-catalog/internal/zcl"
)

func newTestZStack() *ZStack {
	return &ZStack{
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		zclPending: make(map[uint8]pendingResponse),
		done:       make(chan struct{}),
	}
}

func incoming(ieee uint64, cluster uint16, data []byte) zigbee.IncomingMessage {
	return zigbee.IncomingMessage{
		SourceAddress: zigbee.SourceAddress{
			IEEEAddress:    zigbee.IEEEAddress(ieee),
			NetworkAddress: 0x1234,
		},
		LinkQuality: 120,
		ApplicationMessage: zigbee.ApplicationMessage{
			ClusterID:           zigbee.ClusterID(cluster),
			SourceEndpoint:      1,
			DestinationEndpoint: 1,
			Data:                data,
		},
	}
}

func TestHandleIncomingReport(t *testing.T) {
	n := newTestZStack()
	var got []ZCLFrameEvent
	n.OnZCLFrame(func(e ZCLFrameEvent) { got = append(got, e) })

	// Report Attributes: measuredValue int16 = 2150
	n.handleIncoming(incoming(0xAA, 0x0402, []byte{0x18, 0x05, 0x0A, 0x00, 0x00, 0x29, 0x66, 0x08}))

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	e := got[0]
	if e.ClusterID != 0x0402 || e.IEEEAddr != 0xAA || e.LQI != 120 {
		t.Errorf("event = %+v", e)
	}
	if e.Frame.Header.Command != zcl.FoundationReportAttributes || e.Frame.Header.Sequence != 5 {
		t.Errorf("header = %+v", e.Frame.Header)
	}
}

func TestHandleIncomingCompletesPending(t *testing.T) {
	n := newTestZStack()
	ch := make(chan zcl.Frame, 1)
	n.zclPending[7] = pendingResponse{ieee: 0xAA, ch: ch}
	forwarded := 0
	n.OnZCLFrame(func(ZCLFrameEvent) { forwarded++ })

	// Write Attributes Response from another device with the same sequence is ignored.
	n.handleIncoming(incoming(0xBB, 0x0201, []byte{0x18, 0x07, 0x04, 0x00}))
	select {
	case <-ch:
		t.Fatal("response from wrong device delivered")
	default:
	}

	n.handleIncoming(incoming(0xAA, 0x0201, []byte{0x18, 0x07, 0x04, 0x00}))
	select {
	case f := <-ch:
		if f.Header.Command != zcl.FoundationWriteAttributesResp {
			t.Errorf("command = 0x%02X", f.Header.Command)
		}
	default:
		t.Fatal("pending response not delivered")
	}
	if forwarded != 0 {
		t.Errorf("write responses forwarded %d times, want 0", forwarded)
	}
}

func TestHandleIncomingReadResponseForwarded(t *testing.T) {
	n := newTestZStack()
	ch := make(chan zcl.Frame, 1)
	n.zclPending[3] = pendingResponse{ieee: 0xAA, ch: ch}
	forwarded := 0
	n.OnZCLFrame(func(ZCLFrameEvent) { forwarded++ })

	// Read Attributes Response: onOff bool = 1
	n.handleIncoming(incoming(0xAA, 0x0006, []byte{0x18, 0x03, 0x01, 0x00, 0x00, 0x00, 0x10, 0x01}))

	if len(ch) != 1 {
		t.Error("pending read not completed")
	}
	if forwarded != 1 {
		t.Errorf("forwarded = %d, want 1", forwarded)
	}
}

func TestHandleIncomingDropsGarbage(t *testing.T) {
	n := newTestZStack()
	n.OnZCLFrame(func(ZCLFrameEvent) { t.Fatal("garbage forwarded") })
	n.handleIncoming(incoming(0xAA, 0x0006, []byte{0x18}))
}

func TestRequestHeader(t *testing.T) {
	req := ZCLRequest{
		Command:  0x41,
		Sequence: 9,
		Options:  Options{ManufacturerCode: 0x1209, DisableDefaultResponse: true},
	}
	got := req.Header().Encode()
	want := []byte{0x15, 0x09, 0x12, 0x09, 0x41}
	if string(got) != string(want) {
		t.Errorf("header = % X, want % X", got, want)
	}
}

type stubAdapter struct {
	ieee    zigbee.IEEEAddress
	short   zigbee.NetworkAddress
	err     error
	queries int
}

func (a *stubAdapter) GetAdapterIEEEAddress(ctx context.Context) (zigbee.IEEEAddress, error) {
	a.queries++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.ieee, a.err
}

func (a *stubAdapter) GetAdapterNetworkAddress(ctx context.Context) (zigbee.NetworkAddress, error) {
	a.queries++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.short, a.err
}

func TestNetworkInfo(t *testing.T) {
	n := newTestZStack()
	n.cfg = NetworkConfig{Channel: 15, PanID: 0x1A62, ExtPanID: 0xDDDDDDDDDDDDDDDD}
	n.info = &stubAdapter{ieee: 0x00124b0001020304, short: 0x0000}

	if got := n.LocalIEEE(); got != 0 {
		t.Errorf("LocalIEEE before start = %#x, want 0", got)
	}
	info, err := n.NetworkInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := NetworkInfo{Channel: 15, PanID: 0x1A62, ExtPanID: 0xDDDDDDDDDDDDDDDD, IEEEAddress: 0x00124b0001020304}
	if *info != want {
		t.Errorf("info = %+v, want %+v", *info, want)
	}
	if got := n.LocalIEEE(); got != 0x00124b0001020304 {
		t.Errorf("LocalIEEE = %#x", got)
	}
}

func TestNetworkInfoAdapterError(t *testing.T) {
	n := newTestZStack()
	boom := errors.New("adapter not responding")
	n.info = &stubAdapter{err: boom}

	if _, err := n.NetworkInfo(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want adapter error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.info = &stubAdapter{ieee: 1}
	if _, err := n.NetworkInfo(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLocalIEEEIsCached(t *testing.T) {
	n := newTestZStack()
	stub := &stubAdapter{ieee: 0xAB}
	n.info = stub
	n.localIEEE.Store(0xAB)

	for range 3 {
		if got := n.LocalIEEE(); got != 0xAB {
			t.Fatalf("LocalIEEE = %#x", got)
		}
	}
	if stub.queries != 0 {
		t.Errorf("adapter queried %d times, want 0", stub.queries)
	}
}
