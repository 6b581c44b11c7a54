package coordinator

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/exposes"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

// Config holds coordinator configuration.
type Config struct {
	Channel    uint8
	PanID      uint16
	ExtPanID   uint64
	NetworkKey [16]byte
}

// NCPConfig holds NCP hardware/port configuration for display purposes.
type NCPConfig struct {
	Type string
	Port string
	Baud int
}

// ParseExtPanID parses "DD:DD:DD:DD:DD:DD:DD:DD", "0xDDDDDDDDDDDDDDDD" or
// plain hex into a uint64.
func ParseExtPanID(s string) (uint64, error) {
	v, err := ncp.ParseIEEE(s)
	if err != nil {
		return 0, fmt.Errorf("parse ext pan id: %w", err)
	}
	return v, nil
}

// ParsePanID parses "0x1A62" or "6754".
func ParsePanID(s string) (uint16, error) {
	digits, base := s, 10
	if h, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		digits, base = h, 16
	}
	v, err := strconv.ParseUint(digits, base, 16)
	if err != nil {
		return 0, fmt.Errorf("parse pan id %q: %w", s, err)
	}
	return uint16(v), nil
}

// ParseNetworkKey parses 16 bytes of hex, optionally colon separated.
func ParseNetworkKey(s string) ([16]byte, error) {
	var key [16]byte
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return key, fmt.Errorf("parse network key: %w", err)
	}
	if len(b) != len(key) {
		return key, fmt.Errorf("network key must be 16 bytes, got %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Coordinator manages the Zigbee network via an NCP backend and drives the
// device catalog: interview, configure, message conversion and state.
type Coordinator struct {
	ncp       ncp.NCP
	store     store.Store
	registry  *zcl.Registry
	catalog   *devices.Catalog
	events    *EventBus
	devices   *DeviceManager
	frames    *frameQueue
	logger    *slog.Logger
	config    Config
	ncpConfig NCPConfig
	ctx       context.Context
	cancel    context.CancelFunc

	// Per-model registries with the definition's custom clusters overlaid.
	regMu      sync.Mutex
	registries map[*definition.Definition]*zcl.Registry
}

// New creates a new Coordinator.
func New(backend ncp.NCP, st store.Store, registry *zcl.Registry, catalog *devices.Catalog, events *EventBus, cfg Config, ncpCfg NCPConfig, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		ncp:        backend,
		store:      st,
		registry:   registry,
		catalog:    catalog,
		events:     events,
		logger:     logger.With("component", "coordinator"),
		config:     cfg,
		ncpConfig:  ncpCfg,
		ctx:        ctx,
		cancel:     cancel,
		registries: make(map[*definition.Definition]*zcl.Registry),
	}
	c.devices = NewDeviceManager(c)
	c.frames = newFrameQueue(ctx, c.HandleFrame)
	c.registerIndicationHandlers()
	return c
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Start initializes the NCP with the configured network. The backend
// resumes a network formed earlier with the same parameters.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("starting network", "channel", c.config.Channel, "panID", fmt.Sprintf("0x%04X", c.config.PanID))
	if c.canResumeNetwork() {
		c.logger.Info("network parameters unchanged, resuming")
	}
	err := c.ncp.Start(ctx, ncp.NetworkConfig{
		Channel:    c.config.Channel,
		PanID:      c.config.PanID,
		ExtPanID:   c.config.ExtPanID,
		NetworkKey: c.config.NetworkKey,
	})
	if err != nil {
		return fmt.Errorf("start network: %w", err)
	}
	c.saveNetworkState()
	c.logger.Info("network started", "coordinator", ncp.FormatIEEE(c.ncp.LocalIEEE()))
	c.events.Emit(Event{Type: EventNetworkState, Data: "started"})
	return nil
}

// LocalIEEE returns the coordinator's own IEEE address.
func (c *Coordinator) LocalIEEE() string {
	return ncp.FormatIEEE(c.ncp.LocalIEEE())
}

func (c *Coordinator) saveNetworkState() {
	if err := c.store.SaveNetworkState(&store.NetworkState{
		Channel:    c.config.Channel,
		PanID:      c.config.PanID,
		ExtPanID:   ncp.FormatIEEE(c.config.ExtPanID),
		NetworkKey: hex.EncodeToString(c.config.NetworkKey[:]),
		Formed:     true,
	}); err != nil {
		c.logger.Error("save network state", "err", err)
	}
}

// canResumeNetwork checks if the previously formed network matches current config.
func (c *Coordinator) canResumeNetwork() bool {
	ns, err := c.store.GetNetworkState()
	if err != nil || !ns.Formed {
		return false
	}
	return ns.Channel == c.config.Channel &&
		ns.PanID == c.config.PanID &&
		ns.ExtPanID == ncp.FormatIEEE(c.config.ExtPanID) &&
		ns.NetworkKey == hex.EncodeToString(c.config.NetworkKey[:])
}

// Stop cancels the coordinator context and waits for frame workers and
// in-progress interviews.
func (c *Coordinator) Stop() {
	c.cancel()
	c.frames.wait()
	c.devices.CancelAllInterviews()
}

// PermitJoin opens or closes the network for device joining.
func (c *Coordinator) PermitJoin(ctx context.Context, duration uint8) error {
	if err := c.ncp.PermitJoin(ctx, duration); err != nil {
		return fmt.Errorf("permit join: %w", err)
	}
	c.logger.Info("permit join", "duration", duration)
	c.events.Emit(Event{Type: EventPermitJoin, Data: map[string]any{"duration": duration}})
	return nil
}

// NetworkInfo returns current network information from cached config.
func (c *Coordinator) NetworkInfo() map[string]any {
	return map[string]any{
		"channel":          c.config.Channel,
		"pan_id":           fmt.Sprintf("0x%04X", c.config.PanID),
		"ext_pan_id":       ncp.FormatIEEE(c.config.ExtPanID),
		"ncp_type":         c.ncpConfig.Type,
		"port":             c.ncpConfig.Port,
		"baud":             c.ncpConfig.Baud,
		"coordinator_ieee": c.LocalIEEE(),
	}
}

// NCP returns the underlying NCP backend.
func (c *Coordinator) NCP() ncp.NCP {
	return c.ncp
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Registry returns the ZCL registry.
func (c *Coordinator) Registry() *zcl.Registry {
	return c.registry
}

// Catalog returns the device definition catalog.
func (c *Coordinator) Catalog() *devices.Catalog {
	return c.catalog
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Devices returns the device manager.
func (c *Coordinator) Devices() *DeviceManager {
	return c.devices
}

// Definition returns the definition matching a stored device, or nil.
func (c *Coordinator) Definition(dev *store.Device) *definition.Definition {
	if c.catalog == nil || dev == nil || dev.ModelID == "" {
		return nil
	}
	m, ok := c.catalog.Find(dev.ModelID, dev.Manufacturer)
	if !ok {
		return nil
	}
	return m.Definition
}

// Exposes returns the exposes of a stored device, dynamic ones included.
func (c *Coordinator) Exposes(dev *store.Device) []*exposes.Expose {
	def := c.Definition(dev)
	if def == nil {
		return nil
	}
	return def.ExposesFor(c.entity(dev, def), definition.Values(dev.Options))
}

// registryFor returns the cluster registry a device of def resolves names
// against.
func (c *Coordinator) registryFor(def *definition.Definition) *zcl.Registry {
	if def == nil || len(def.CustomClusters) == 0 {
		return c.registry
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	reg, ok := c.registries[def]
	if !ok {
		reg = c.registry.Overlay(def.CustomClusters...)
		c.registries[def] = reg
	}
	return reg
}

func (c *Coordinator) registerIndicationHandlers() {
	c.ncp.OnDeviceJoined(func(evt ncp.DeviceJoinedEvent) {
		c.devices.HandleJoin(evt)
	})
	c.ncp.OnDeviceLeft(func(evt ncp.DeviceLeftEvent) {
		c.devices.HandleLeave(evt)
	})
	c.ncp.OnDeviceAnnounce(func(evt ncp.DeviceAnnounceEvent) {
		c.devices.HandleAnnounce(evt)
	})
	c.ncp.OnZCLFrame(func(evt ncp.ZCLFrameEvent) {
		c.frames.push(evt)
	})
}
