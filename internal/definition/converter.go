package definition

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/samber/lo"

	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/zcl"
)

var (
	ErrUnsupportedKey = errors.New("definition: unsupported key")
	ErrNoConverter    = errors.New("definition: no converter")
)

// Message types besides "command<Name>" for cluster commands.
const (
	MsgAttributeReport = "attributeReport"
	MsgReadResponse    = "readResponse"
	MsgRead            = "read"
	MsgRaw             = "raw"
)

// Values is a property or attribute map: decoded message data, converter
// results, device state and user options all use it.
type Values map[string]any

func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Number returns the value at key as float64.
func (v Values) Number(key string) (float64, bool) {
	raw, ok := v[key]
	if !ok {
		return 0, false
	}
	return zcl.ToFloat64(raw)
}

// Uint returns the value at key as uint64.
func (v Values) Uint(key string) (uint64, bool) {
	raw, ok := v[key]
	if !ok {
		return 0, false
	}
	return zcl.ToUint64(raw)
}

// Merge copies other into v, allocating v if needed.
func (v Values) Merge(other Values) Values {
	if v == nil {
		v = make(Values, len(other))
	}
	maps.Copy(v, other)
	return v
}

// MessageMeta carries frame-level details of a received message.
type MessageMeta struct {
	Sequence         uint8
	ManufacturerCode uint16
}

// Message is a decoded ZCL frame handed to fromZigbee converters.
type Message struct {
	// Type is attributeReport, readResponse, read, raw or command<Name>.
	Type      string
	Cluster   string
	ClusterID uint16
	Endpoint  Endpoint
	Device    Device
	// Data holds attribute values for reports and responses and command
	// parameters for cluster commands.
	Data Values
	// Attributes lists the attributes a device asked for in a read.
	Attributes []string
	// Raw is the complete ZCL frame.
	Raw         []byte
	Meta        MessageMeta
	LinkQuality uint8
}

// Publish emits state outside the normal converter return path, e.g. from a
// timer.
type Publish func(Values)

// ConvertMeta is the context of a fromZigbee conversion.
type ConvertMeta struct {
	State  Values
	Device Device
	Logger *slog.Logger
	// DeviceExposesChanged tells the host the dynamic exposes of the device
	// must be recomputed.
	DeviceExposesChanged func()
}

// FromZigbee converts incoming messages of one cluster into state.
type FromZigbee struct {
	Cluster string
	Types   []string
	// Options are user settings the converter honours.
	Options []*exposes.Expose
	Convert func(ctx context.Context, def *Definition, msg *Message, publish Publish, options Values, meta *ConvertMeta) (Values, error)
}

// Matches reports whether the converter handles messages of this type and cluster.
func (c *FromZigbee) Matches(msgType, cluster string) bool {
	return c.Cluster == cluster && lo.Contains(c.Types, msgType)
}

// TzMeta is the context of a toZigbee conversion.
type TzMeta struct {
	// Message is the complete /set payload the key came from.
	Message      Values
	Device       Device
	Definition   *Definition
	Options      Values
	State        Values
	EndpointName string
	Logger       *slog.Logger
}

// TzResult is the outcome of ConvertSet. State is merged into the device
// state; a non-zero ReadAfterWriteTime (ms) schedules a ConvertGet.
type TzResult struct {
	State              Values
	ReadAfterWriteTime int
}

// ToZigbee converts user-facing keys into ZCL requests.
type ToZigbee struct {
	Keys       []string
	ConvertSet func(ctx context.Context, ep Endpoint, key string, value any, meta *TzMeta) (*TzResult, error)
	ConvertGet func(ctx context.Context, ep Endpoint, key string, meta *TzMeta) error
}

// Handles reports whether key is one of the converter's keys.
func (c *ToZigbee) Handles(key string) bool {
	return lo.Contains(c.Keys, key)
}
