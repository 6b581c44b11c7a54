package definition

import (
	"context"

	"zigbee-go-catalog/internal/zcl"
)

// BroadcastEndpoint is the Zigbee broadcast endpoint. Broadcasts to it
// reach every endpoint that implements the cluster.
const BroadcastEndpoint uint8 = 0xff

// ZCLOptions tune a single ZCL request.
type ZCLOptions struct {
	ManufacturerCode       uint16
	DisableDefaultResponse bool
	Direction              zcl.Direction
	SrcEndpoint            uint8
}

// ReportingItem configures reporting for one attribute. Attribute names a
// known attribute; for attributes missing from the cluster model set ID and
// Type instead.
type ReportingItem struct {
	Attribute        string
	ID               uint16
	Type             uint8
	MinInterval      uint16
	MaxInterval      uint16
	ReportableChange any
}

// Endpoint is the device endpoint converters and configure steps talk to.
// Clusters, attributes and commands are addressed by name and resolved
// against the device's cluster registry, custom clusters included.
type Endpoint interface {
	ID() uint8
	DeviceIEEE() string

	// Read requests attributes and returns the decoded values keyed by
	// attribute name. The response is also dispatched to the device's
	// fromZigbee converters as a readResponse message.
	Read(ctx context.Context, cluster string, attributes []string, opts ZCLOptions) (Values, error)
	// ReadIDs reads attributes by ID; unknown IDs are keyed by their decimal
	// value in the result.
	ReadIDs(ctx context.Context, cluster string, ids []uint16, opts ZCLOptions) (Values, error)
	Write(ctx context.Context, cluster string, values Values, opts ZCLOptions) error
	WriteTyped(ctx context.Context, cluster string, records []zcl.AttributeRecord, opts ZCLOptions) error

	Command(ctx context.Context, cluster, command string, params Values, opts ZCLOptions) error
	// CommandResponse sends a server-to-client cluster command.
	CommandResponse(ctx context.Context, cluster, command string, params Values, opts ZCLOptions) error
	// ReadResponse answers a read request issued by the device.
	ReadResponse(ctx context.Context, cluster string, seq uint8, records []zcl.ReadRecord, opts ZCLOptions) error
	// Broadcast sends a cluster command to dstEndpoint on every device of
	// the network that implements the cluster. BroadcastEndpoint targets
	// every endpoint implementing it.
	Broadcast(ctx context.Context, dstEndpoint uint8, cluster, command string, params Values, opts ZCLOptions) error

	ConfigureReporting(ctx context.Context, cluster string, items []ReportingItem, opts ZCLOptions) error
	Bind(ctx context.Context, cluster string) error
	Unbind(ctx context.Context, cluster string) error
	// Binds lists the clusters currently bound to the coordinator.
	Binds() []string

	// ClusterAttributeValue returns the last value seen for an attribute.
	ClusterAttributeValue(cluster, attribute string) (any, bool)
	SupportsInputCluster(cluster string) bool
	SupportsOutputCluster(cluster string) bool
}

// Device is a paired device.
type Device interface {
	IEEE() string
	ModelID() string
	Manufacturer() string
	// Endpoint returns nil if the device has no such endpoint.
	Endpoint(id uint8) Endpoint
	Endpoints() []Endpoint
	Meta(key string) (any, bool)
	SetMeta(key string, value any)
	Save() error
}
