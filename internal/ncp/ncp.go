// Package ncp defines the interface for the Zigbee Network Co-Processor backend.
// Backend: Texas Instruments Z-Stack (CC253x/CC26x2 over UART).
package ncp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"zigbee-go-catalog/internal/zcl"
)

// ErrTimeout is returned when a device does not answer a ZCL request in time.
var ErrTimeout = errors.New("ncp: response timeout")

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("ncp: closed")

// NCP is the abstract interface for a Zigbee NCP device. Devices are
// addressed by IEEE address; the backend tracks network addresses.
type NCP interface {
	// Network management
	Start(ctx context.Context, cfg NetworkConfig) error
	PermitJoin(ctx context.Context, duration uint8) error
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
	LocalIEEE() uint64

	// ZDO
	ActiveEndpoints(ctx context.Context, ieee uint64) ([]uint8, error)
	SimpleDescriptor(ctx context.Context, ieee uint64, endpoint uint8) (*SimpleDescriptor, error)
	Bind(ctx context.Context, req BindRequest) error
	Unbind(ctx context.Context, req BindRequest) error
	Leave(ctx context.Context, ieee uint64) error

	// SendZCL transmits a ZCL frame. The backend assigns the transaction
	// sequence number; when req.WaitResponse is set it blocks until a frame
	// with the same sequence arrives from the device and returns it.
	SendZCL(ctx context.Context, req ZCLRequest) (*zcl.Frame, error)

	// Indication callbacks
	OnDeviceJoined(handler func(DeviceJoinedEvent))
	OnDeviceLeft(handler func(DeviceLeftEvent))
	OnDeviceAnnounce(handler func(DeviceAnnounceEvent))
	OnZCLFrame(handler func(ZCLFrameEvent))

	// Lifecycle
	Close() error
}

// NetworkConfig holds parameters for network formation.
type NetworkConfig struct {
	Channel    uint8
	PanID      uint16
	ExtPanID   uint64
	NetworkKey [16]byte
}

// NetworkInfo holds current network state.
type NetworkInfo struct {
	Channel     uint8  `json:"channel"`
	PanID       uint16 `json:"pan_id"`
	ExtPanID    uint64 `json:"ext_pan_id"`
	IEEEAddress uint64 `json:"ieee_address"`
	ShortAddr   uint16 `json:"short_address"`
}

// SimpleDescriptor describes an endpoint.
type SimpleDescriptor struct {
	Endpoint    uint8
	ProfileID   uint16
	DeviceID    uint16
	Version     uint8
	InClusters  []uint16
	OutClusters []uint16
}

// BindRequest binds a device cluster to the coordinator.
type BindRequest struct {
	IEEE      uint64
	SrcEP     uint8
	ClusterID uint16
	DstEP     uint8
}

// Options controls the ZCL header of an outgoing request.
type Options struct {
	ManufacturerCode       uint16
	DisableDefaultResponse bool
	Direction              zcl.Direction
	SrcEndpoint            uint8
}

// ZCLRequest is an outgoing ZCL frame. Sequence is filled in by the backend
// unless Reply is set, in which case the caller's sequence (the one being
// answered) is kept.
type ZCLRequest struct {
	IEEE         uint64
	DstEP        uint8
	ClusterID    uint16
	Global       bool
	Command      uint8
	Payload      []byte
	Options      Options
	Sequence     uint8
	Reply        bool
	WaitResponse bool
}

// Header builds the ZCL header for the request.
func (r ZCLRequest) Header() zcl.FrameHeader {
	h := zcl.FrameHeader{
		FrameType:              zcl.FrameTypeCluster,
		Direction:              r.Options.Direction,
		DisableDefaultResponse: r.Options.DisableDefaultResponse,
		ManufacturerCode:       r.Options.ManufacturerCode,
		ManufacturerSpecific:   r.Options.ManufacturerCode != 0,
		Sequence:               r.Sequence,
		Command:                r.Command,
	}
	if r.Global {
		h.FrameType = zcl.FrameTypeGlobal
	}
	return h
}

// DeviceJoinedEvent is emitted when a device joins the network.
type DeviceJoinedEvent struct {
	ShortAddr uint16
	IEEEAddr  uint64
}

// DeviceLeftEvent is emitted when a device leaves.
type DeviceLeftEvent struct {
	ShortAddr uint16
	IEEEAddr  uint64
}

// DeviceAnnounceEvent is emitted on device announce or network address change.
type DeviceAnnounceEvent struct {
	ShortAddr uint16
	IEEEAddr  uint64
	LQI       uint8
}

// ZCLFrameEvent is an incoming ZCL frame that did not answer a pending request.
type ZCLFrameEvent struct {
	IEEEAddr  uint64
	ShortAddr uint16
	SrcEP     uint8
	DstEP     uint8
	ClusterID uint16
	Frame     zcl.Frame
	LQI       uint8
}

// FormatIEEE renders an IEEE address as 0x-prefixed lowercase hex.
func FormatIEEE(ieee uint64) string {
	return fmt.Sprintf("0x%016x", ieee)
}

// ParseIEEE parses "0x00124b001234abcd", "00124B001234ABCD" or the
// colon-separated form into a uint64.
func ParseIEEE(s string) (uint64, error) {
	h := strings.ReplaceAll(s, ":", "")
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if len(h) != 16 {
		return 0, fmt.Errorf("parse ieee address %q: want 16 hex digits, got %d", s, len(h))
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ieee address %q: %w", s, err)
	}
	return v, nil
}
