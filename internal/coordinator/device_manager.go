package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

// ErrInvalidName is returned by RenameDevice for unusable friendly names.
var ErrInvalidName = errors.New("invalid friendly name")

const (
	interviewTimeout  = 3 * time.Minute
	interviewRetries  = 3
	joinDebounce      = 3 * time.Second
	configureCooldown = 2 * time.Minute
)

// genBasic attributes read during the interview.
const (
	attrManufacturerName = 0x0004
	attrModelID          = 0x0005
	attrPowerSource      = 0x0007
)

type interviewEntry struct {
	cancel context.CancelFunc
	gen    uint64
}

// DeviceManager handles device lifecycle (join, leave, interview, configure).
type DeviceManager struct {
	coord  *Coordinator
	logger *slog.Logger

	// Interview cancellation: tracks active interview cancel funcs by IEEE.
	interviewMu      sync.Mutex
	interviewCancels map[string]interviewEntry
	interviewGen     atomic.Uint64
	interviewWg      sync.WaitGroup

	// Debounce duplicate announces (unsecure then secure rejoin).
	lastJoinMu sync.Mutex
	lastJoin   map[string]time.Time

	// Sleepy devices are configured when they next talk to us.
	configureMu       sync.Mutex
	configureAttempts map[string]time.Time
}

// NewDeviceManager creates a new device manager.
func NewDeviceManager(coord *Coordinator) *DeviceManager {
	return &DeviceManager{
		coord:             coord,
		logger:            coord.logger.With("component", "device_manager"),
		interviewCancels:  make(map[string]interviewEntry),
		lastJoin:          make(map[string]time.Time),
		configureAttempts: make(map[string]time.Time),
	}
}

// CancelAllInterviews cancels all running interview goroutines and waits for them.
func (dm *DeviceManager) CancelAllInterviews() {
	dm.interviewMu.Lock()
	for ieee, entry := range dm.interviewCancels {
		entry.cancel()
		delete(dm.interviewCancels, ieee)
	}
	dm.interviewMu.Unlock()
	dm.interviewWg.Wait()
}

func (dm *DeviceManager) cancelInterview(ieee string) {
	dm.interviewMu.Lock()
	if entry, ok := dm.interviewCancels[ieee]; ok {
		entry.cancel()
		delete(dm.interviewCancels, ieee)
	}
	dm.interviewMu.Unlock()
}

func (dm *DeviceManager) interviewing(ieee string) bool {
	dm.interviewMu.Lock()
	defer dm.interviewMu.Unlock()
	_, ok := dm.interviewCancels[ieee]
	return ok
}

// HandleJoin records a joining device. The interview starts on announce:
// before that the device may not hold the network key yet.
func (dm *DeviceManager) HandleJoin(evt ncp.DeviceJoinedEvent) {
	ieee := ncp.FormatIEEE(evt.IEEEAddr)
	now := time.Now()

	dev, err := dm.coord.Store().GetDevice(ieee)
	switch {
	case err == nil:
		dev.ShortAddress = evt.ShortAddr
		dev.LastSeen = now
	case errors.Is(err, store.ErrNotFound):
		dev = &store.Device{
			IEEEAddress:  ieee,
			ShortAddress: evt.ShortAddr,
			FriendlyName: ieee,
			JoinedAt:     now,
			LastSeen:     now,
		}
	default:
		dm.logger.Error("get device on join", "err", err, "ieee", ieee)
		return
	}

	dm.logger.Info("device joined", "ieee", ieee, "short", fmt.Sprintf("0x%04X", evt.ShortAddr), "name", dev.DisplayName())
	if err := dm.coord.Store().SaveDevice(dev); err != nil {
		dm.logger.Error("save device", "err", err, "ieee", ieee)
		return
	}
	dm.coord.Events().Emit(Event{Type: EventDeviceJoined, Data: DeviceEvent{
		IEEE:         ieee,
		FriendlyName: dev.FriendlyName,
		ShortAddr:    evt.ShortAddr,
	}})
}

// HandleLeave forgets a device that left the network.
func (dm *DeviceManager) HandleLeave(evt ncp.DeviceLeftEvent) {
	ieee := ncp.FormatIEEE(evt.IEEEAddr)
	dev, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		dm.logger.Debug("leave from unknown device", "ieee", ieee)
		return
	}
	dm.logger.Info("device left", "ieee", ieee, "name", dev.DisplayName())
	dm.forget(ieee)

	if err := dm.coord.Store().DeleteDevice(ieee); err != nil {
		dm.logger.Error("delete device on leave", "err", err, "ieee", ieee)
	}
	dm.coord.Events().Emit(Event{Type: EventDeviceLeft, Data: DeviceEvent{
		IEEE:         ieee,
		FriendlyName: dev.FriendlyName,
		Model:        dev.Model,
		Vendor:       dev.Vendor,
	}})
}

// forget drops every in-memory trace of a device.
func (dm *DeviceManager) forget(ieee string) {
	dm.cancelInterview(ieee)
	dm.lastJoinMu.Lock()
	delete(dm.lastJoin, ieee)
	dm.lastJoinMu.Unlock()
	dm.configureMu.Lock()
	delete(dm.configureAttempts, ieee)
	dm.configureMu.Unlock()
	definition.ClearDevice(ieee)
}

// HandleAnnounce updates the address of a device and interviews it unless
// it is already interviewed and configured.
func (dm *DeviceManager) HandleAnnounce(evt ncp.DeviceAnnounceEvent) {
	ieee := ncp.FormatIEEE(evt.IEEEAddr)
	now := time.Now()

	dev, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			dm.logger.Error("get device on announce", "err", err, "ieee", ieee)
			return
		}
		dev = &store.Device{IEEEAddress: ieee, FriendlyName: ieee, JoinedAt: now}
	}
	dev.ShortAddress = evt.ShortAddr
	dev.LastSeen = now
	if evt.LQI > 0 {
		dev.LQI = evt.LQI
	}
	if err := dm.coord.Store().SaveDevice(dev); err != nil {
		dm.logger.Error("save device on announce", "err", err, "ieee", ieee)
		return
	}
	dm.logger.Info("device announce", "ieee", ieee, "short", fmt.Sprintf("0x%04X", evt.ShortAddr), "name", dev.DisplayName())
	dm.coord.Events().Emit(Event{Type: EventDeviceAnnounce, Data: DeviceEvent{
		IEEE:         ieee,
		FriendlyName: dev.FriendlyName,
		ShortAddr:    evt.ShortAddr,
		Model:        dev.Model,
		Vendor:       dev.Vendor,
	}})

	if dev.Interviewed && dev.Configured {
		return
	}
	if dm.interviewing(ieee) {
		dm.logger.Info("announce during interview, address updated", "ieee", ieee, "name", dev.DisplayName())
		return
	}

	dm.lastJoinMu.Lock()
	if last, ok := dm.lastJoin[ieee]; ok && time.Since(last) < joinDebounce {
		dm.lastJoinMu.Unlock()
		dm.logger.Debug("duplicate announce, interview already started", "ieee", ieee)
		return
	}
	dm.lastJoin[ieee] = now
	if len(dm.lastJoin) > 50 {
		for k, t := range dm.lastJoin {
			if time.Since(t) > time.Minute {
				delete(dm.lastJoin, k)
			}
		}
	}
	dm.lastJoinMu.Unlock()

	dm.StartInterview(ieee)
}

// StartInterview interviews a device in the background, replacing any
// interview already running for it.
func (dm *DeviceManager) StartInterview(ieee string) {
	gen := dm.interviewGen.Add(1)
	ctx, cancel := context.WithTimeout(dm.coord.Context(), interviewTimeout)

	dm.interviewMu.Lock()
	if prev, ok := dm.interviewCancels[ieee]; ok {
		prev.cancel()
	}
	dm.interviewCancels[ieee] = interviewEntry{cancel: cancel, gen: gen}
	dm.interviewMu.Unlock()

	dm.interviewWg.Add(1)
	go func() {
		defer func() {
			cancel()
			dm.interviewMu.Lock()
			if entry, ok := dm.interviewCancels[ieee]; ok && entry.gen == gen {
				delete(dm.interviewCancels, ieee)
			}
			dm.interviewMu.Unlock()
			dm.interviewWg.Done()
		}()
		if err := dm.Interview(ctx, ieee); err != nil {
			dm.logger.Error("interview failed", "ieee", ieee, "err", err)
		}
	}()
}

// Interview reads the endpoints, descriptors and basic attributes of a
// device, matches it against the catalog and configures it. Failed attempts
// are retried with a jittered delay.
func (dm *DeviceManager) Interview(ctx context.Context, ieee string) error {
	addr, err := ncp.ParseIEEE(ieee)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; attempt <= interviewRetries; attempt++ {
		if attempt > 1 {
			delay := 5*time.Second + time.Duration(rand.IntN(3001))*time.Millisecond
			dm.logger.Info("interview: will retry", "ieee", ieee, "delay", delay, "err", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		dm.logger.Info("starting interview", "ieee", ieee, "attempt", attempt)
		lastErr = dm.interviewOnce(ctx, ieee, addr)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(lastErr, store.ErrNotFound) {
			return lastErr
		}
	}
	return fmt.Errorf("interview %s after %d attempts: %w", ieee, interviewRetries, lastErr)
}

func (dm *DeviceManager) interviewOnce(ctx context.Context, ieee string, addr uint64) error {
	n := dm.coord.NCP()
	ids, err := n.ActiveEndpoints(ctx, addr)
	if err != nil {
		return fmt.Errorf("active endpoints: %w", err)
	}
	endpoints := make([]store.Endpoint, 0, len(ids))
	for _, id := range ids {
		sd, err := n.SimpleDescriptor(ctx, addr, id)
		if err != nil {
			dm.logger.Warn("interview: simple descriptor", "err", err, "ieee", ieee, "ep", id)
			continue
		}
		endpoints = append(endpoints, store.Endpoint{
			ID:          id,
			ProfileID:   sd.ProfileID,
			DeviceID:    sd.DeviceID,
			InClusters:  sd.InClusters,
			OutClusters: sd.OutClusters,
		})
		dm.logger.Debug("endpoint discovered", "ieee", ieee, "ep", id,
			"profile", fmt.Sprintf("0x%04X", sd.ProfileID),
			"in_clusters", len(sd.InClusters), "out_clusters", len(sd.OutClusters))
	}
	if len(endpoints) == 0 {
		return errors.New("no endpoint descriptors")
	}

	basic, err := dm.readBasicAttributes(ctx, addr, basicEndpoint(endpoints))
	if err != nil {
		return err
	}

	var match struct {
		def           *definition.Definition
		model, vendor string
	}
	if cat := dm.coord.Catalog(); cat != nil {
		if m, ok := cat.Find(basic.modelID, basic.manufacturer); ok {
			match.def, match.model, match.vendor = m.Definition, m.Model, m.Vendor
		}
	}

	var dev *store.Device
	err = dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		d.Endpoints = endpoints
		d.ModelID = basic.modelID
		d.Manufacturer = basic.manufacturer
		if basic.powerSource != "" {
			d.PowerSource = basic.powerSource
		}
		d.Model, d.Vendor = match.model, match.vendor
		if d.FriendlyName == "" {
			d.FriendlyName = ieee
		}
		d.Interviewed = true
		d.Configured = false
		dev = d.Clone()
		return nil
	})
	if err != nil {
		return fmt.Errorf("save interview: %w", err)
	}

	supported := match.def != nil
	if supported {
		dm.logger.Info("interview complete", "ieee", ieee, "model", match.model, "vendor", match.vendor, "endpoints", len(endpoints))
	} else {
		dm.logger.Warn("interview complete, device not supported", "ieee", ieee, "model_id", basic.modelID, "manufacturer", basic.manufacturer)
	}
	dm.coord.Events().Emit(Event{Type: EventDeviceInterviewed, Data: DeviceEvent{
		IEEE:         ieee,
		FriendlyName: dev.FriendlyName,
		Model:        match.model,
		Vendor:       match.vendor,
		Supported:    supported,
	}})

	if supported {
		if err := dm.configure(ctx, dev, match.def); err != nil {
			// The device stays interviewed; configure is retried when it
			// next reports.
			dm.logger.Warn("configure failed", "ieee", ieee, "model", match.model, "err", err)
		}
	}
	return nil
}

type basicInfo struct {
	modelID      string
	manufacturer string
	powerSource  string
}

// basicEndpoint picks the endpoint serving genBasic.
func basicEndpoint(endpoints []store.Endpoint) uint8 {
	for _, ep := range endpoints {
		if slices.Contains(ep.InClusters, 0x0000) {
			return ep.ID
		}
	}
	return endpoints[0].ID
}

func (dm *DeviceManager) readBasicAttributes(ctx context.Context, addr uint64, ep uint8) (basicInfo, error) {
	var info basicInfo
	records, err := ncp.ReadAttributes(ctx, dm.coord.NCP(), ncp.ReadAttributesRequest{
		IEEE:      addr,
		DstEP:     ep,
		ClusterID: 0x0000,
		AttrIDs:   []uint16{attrManufacturerName, attrModelID, attrPowerSource},
	})
	if err != nil {
		return info, fmt.Errorf("read basic attributes: %w", err)
	}
	for _, r := range records {
		if r.Status != zcl.ZCLStatusSuccess {
			continue
		}
		switch r.ID {
		case attrManufacturerName:
			info.manufacturer, _ = r.Value.(string)
		case attrModelID:
			info.modelID, _ = r.Value.(string)
		case attrPowerSource:
			info.powerSource, _ = definition.PowerSources.Key(r.Value)
		}
	}
	// Some devices pad strings with NULs.
	info.modelID = strings.TrimRight(info.modelID, "\x00 ")
	info.manufacturer = strings.TrimRight(info.manufacturer, "\x00 ")
	if info.modelID == "" {
		return info, errors.New("device did not report a model id")
	}
	return info, nil
}

// configure runs the definition's configure steps through the entity
// adapter and marks the device configured.
func (dm *DeviceManager) configure(ctx context.Context, dev *store.Device, def *definition.Definition) error {
	dm.configureMu.Lock()
	dm.configureAttempts[dev.IEEEAddress] = time.Now()
	dm.configureMu.Unlock()

	if def.HasConfigure() {
		ed := dm.coord.entity(dev, def)
		ed.logger.Info("configuring device")
		if err := def.RunConfigure(ctx, ed); err != nil {
			return err
		}
		if err := ed.Save(); err != nil {
			return fmt.Errorf("save configure meta: %w", err)
		}
	}
	err := dm.coord.Store().UpdateDevice(dev.IEEEAddress, func(d *store.Device) error {
		d.Configured = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark configured: %w", err)
	}
	dm.logger.Info("device configured", "ieee", dev.IEEEAddress, "model", def.Model)
	return nil
}

// maybeConfigure retries configuration of an interviewed device that talks
// to us, at most once per cooldown.
func (dm *DeviceManager) maybeConfigure(dev *store.Device, def *definition.Definition) {
	if def == nil || !dev.Interviewed || dev.Configured || dm.interviewing(dev.IEEEAddress) {
		return
	}
	if dm.coord.Context().Err() != nil {
		return
	}
	dm.configureMu.Lock()
	if last, ok := dm.configureAttempts[dev.IEEEAddress]; ok && time.Since(last) < configureCooldown {
		dm.configureMu.Unlock()
		return
	}
	dm.configureAttempts[dev.IEEEAddress] = time.Now()
	dm.configureMu.Unlock()

	dm.interviewWg.Add(1)
	go func() {
		defer dm.interviewWg.Done()
		ctx, cancel := context.WithTimeout(dm.coord.Context(), interviewTimeout)
		defer cancel()
		if err := dm.configure(ctx, dev, def); err != nil {
			dm.logger.Warn("configure failed", "ieee", dev.IEEEAddress, "model", def.Model, "err", err)
		}
	}()
}

// Reconfigure runs the configure steps of a device again.
func (dm *DeviceManager) Reconfigure(ctx context.Context, id string) error {
	dev, err := store.Resolve(dm.coord.Store(), id)
	if err != nil {
		return err
	}
	def := dm.coord.Definition(dev)
	if def == nil {
		return fmt.Errorf("reconfigure %s: %w", dev.DisplayName(), ErrUnsupportedDevice)
	}
	if err := dm.configure(ctx, dev, def); err != nil {
		return fmt.Errorf("reconfigure %s: %w", dev.DisplayName(), err)
	}
	return nil
}

// RemoveDevice asks the device to leave and deletes it. With force the
// device is deleted even when the leave request fails.
func (dm *DeviceManager) RemoveDevice(ctx context.Context, id string, force bool) error {
	dev, err := store.Resolve(dm.coord.Store(), id)
	if err != nil {
		return err
	}
	ieee := dev.IEEEAddress
	dm.cancelInterview(ieee)

	addr, err := ncp.ParseIEEE(ieee)
	if err == nil {
		err = dm.coord.NCP().Leave(ctx, addr)
	}
	if err != nil {
		if !force {
			return fmt.Errorf("remove %s: %w", dev.DisplayName(), err)
		}
		dm.logger.Warn("leave request failed, removing anyway", "ieee", ieee, "name", dev.DisplayName(), "err", err)
	}

	if err := dm.coord.Store().DeleteDevice(ieee); err != nil {
		return fmt.Errorf("remove %s: %w", dev.DisplayName(), err)
	}
	dm.forget(ieee)
	dm.logger.Info("device removed", "ieee", ieee, "name", dev.DisplayName())
	dm.coord.Events().Emit(Event{Type: EventDeviceRemoved, Data: DeviceEvent{
		IEEE:         ieee,
		FriendlyName: dev.FriendlyName,
		Model:        dev.Model,
		Vendor:       dev.Vendor,
	}})
	return nil
}

// RenameDevice sets a unique friendly name. Names are used as MQTT topic
// levels, so wildcards and a trailing command segment are rejected.
func (dm *DeviceManager) RenameDevice(id, name string) (*store.Device, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, "#+"):
		return nil, fmt.Errorf("%w: %q contains an MQTT wildcard", ErrInvalidName, name)
	case strings.HasSuffix(name, "/set") || strings.HasSuffix(name, "/get"):
		return nil, fmt.Errorf("%w: %q ends with a command topic", ErrInvalidName, name)
	}

	dev, err := store.Resolve(dm.coord.Store(), id)
	if err != nil {
		return nil, err
	}
	devs, err := dm.coord.Store().ListDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.IEEEAddress != dev.IEEEAddress && (d.FriendlyName == name || d.IEEEAddress == strings.ToLower(name)) {
			return nil, fmt.Errorf("%w: %q is used by %s", ErrInvalidName, name, d.IEEEAddress)
		}
	}

	oldName := dev.FriendlyName
	var out *store.Device
	err = dm.coord.Store().UpdateDevice(dev.IEEEAddress, func(d *store.Device) error {
		d.FriendlyName = name
		out = d.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	dm.logger.Info("device renamed", "ieee", dev.IEEEAddress, "from", oldName, "to", name)
	dm.coord.Events().Emit(Event{Type: EventDeviceRenamed, Data: DeviceEvent{
		IEEE:         dev.IEEEAddress,
		FriendlyName: name,
		OldName:      oldName,
		Model:        dev.Model,
		Vendor:       dev.Vendor,
	}})
	return out, nil
}

// ListDevices returns all known devices.
func (dm *DeviceManager) ListDevices() ([]*store.Device, error) {
	return dm.coord.Store().ListDevices()
}

// GetDevice returns a device by IEEE address or friendly name.
func (dm *DeviceManager) GetDevice(id string) (*store.Device, error) {
	return store.Resolve(dm.coord.Store(), id)
}
