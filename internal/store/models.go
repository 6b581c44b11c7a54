package store

import (
	"maps"
	"slices"
	"time"
)

// Device is a paired Zigbee device together with everything the catalog
// learned about it.
type Device struct {
	IEEEAddress  string `json:"ieee_address"`
	ShortAddress uint16 `json:"short_address"`
	Manufacturer string `json:"manufacturer,omitempty"`
	// ModelID is the genBasic modelId the device reports; Model and Vendor
	// come from the matched definition (white label included).
	ModelID      string     `json:"model_id,omitempty"`
	Model        string     `json:"model,omitempty"`
	Vendor       string     `json:"vendor,omitempty"`
	FriendlyName string     `json:"friendly_name,omitempty"`
	PowerSource  string     `json:"power_source,omitempty"`
	Endpoints    []Endpoint `json:"endpoints,omitempty"`
	Interviewed  bool       `json:"interviewed"`
	Configured   bool       `json:"configured"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastSeen     time.Time  `json:"last_seen"`
	LQI          uint8      `json:"lqi,omitempty"`

	// State is the last published property state.
	State map[string]any `json:"state,omitempty"`
	// Meta is definition-owned per-device data (e.g. deviceMode).
	Meta map[string]any `json:"meta,omitempty"`
	// Options are user settings handed to converters.
	Options  map[string]any `json:"options,omitempty"`
	Bindings []Binding      `json:"bindings,omitempty"`
	// Attributes caches the last attribute values by "<ep>/<cluster>".
	Attributes map[string]map[string]any `json:"attributes,omitempty"`
}

// Endpoint represents a device endpoint.
type Endpoint struct {
	ID          uint8    `json:"id"`
	ProfileID   uint16   `json:"profile_id"`
	DeviceID    uint16   `json:"device_id"`
	InClusters  []uint16 `json:"in_clusters"`
	OutClusters []uint16 `json:"out_clusters"`
}

// Binding is a cluster of a device endpoint bound to the coordinator.
type Binding struct {
	Endpoint uint8  `json:"endpoint"`
	Cluster  string `json:"cluster"`
}

// FindEndpoint returns the endpoint with the given ID.
func (d *Device) FindEndpoint(id uint8) (Endpoint, bool) {
	for _, ep := range d.Endpoints {
		if ep.ID == id {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// DisplayName returns the friendly name, falling back to the model and
// then to the IEEE address.
func (d *Device) DisplayName() string {
	switch {
	case d.FriendlyName != "":
		return d.FriendlyName
	case d.Model != "":
		return d.Model
	}
	return d.IEEEAddress
}

// Clone returns a copy that shares no maps or slices with d.
func (d *Device) Clone() *Device {
	c := *d
	c.Endpoints = slices.Clone(d.Endpoints)
	c.Bindings = slices.Clone(d.Bindings)
	c.State = maps.Clone(d.State)
	c.Meta = maps.Clone(d.Meta)
	c.Options = maps.Clone(d.Options)
	if d.Attributes != nil {
		c.Attributes = make(map[string]map[string]any, len(d.Attributes))
		for k, v := range d.Attributes {
			c.Attributes[k] = maps.Clone(v)
		}
	}
	return &c
}

// NetworkState holds persisted network configuration.
// NetworkKey is hidden from API/JSON serialization via json:"-".
type NetworkState struct {
	Channel    uint8  `json:"channel"`
	PanID      uint16 `json:"pan_id"`
	ExtPanID   string `json:"ext_pan_id"`
	NetworkKey string `json:"-"`
	Formed     bool   `json:"formed"`
}

// networkStateStorage is the internal struct used for DB serialization,
// preserving the network key on disk.
type networkStateStorage struct {
	Channel    uint8  `json:"channel"`
	PanID      uint16 `json:"pan_id"`
	ExtPanID   string `json:"ext_pan_id"`
	NetworkKey string `json:"network_key,omitempty"`
	Formed     bool   `json:"formed"`
}
