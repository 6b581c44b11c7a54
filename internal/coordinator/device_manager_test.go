package coordinator

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
)

// pairPlug makes the fake answer the interview of a BSP-FZ2 plug.
func pairPlug(h *harness) {
	h.ncp.AddEndpoint(plugIEEE, ncp.SimpleDescriptor{
		Endpoint:   1,
		ProfileID:  0x0104,
		DeviceID:   0x0051,
		InClusters: plugEndpoint.InClusters,
	})
	h.ncp.SetAttribute(plugIEEE, 1, 0x0000, attrManufacturerName, zcl.TypeCharStr, "BOSCH")
	h.ncp.SetAttribute(plugIEEE, 1, 0x0000, attrModelID, zcl.TypeCharStr, "RBSH-SP-ZB-EU")
	h.ncp.SetAttribute(plugIEEE, 1, 0x0000, attrPowerSource, zcl.TypeEnum8, 1)
	h.ncp.SetAttribute(plugIEEE, 1, 0x0b04, 0x0605, zcl.TypeUint16, 10)
	h.ncp.SetAttribute(plugIEEE, 1, 0x0702, 0x0302, zcl.TypeUint24, 1000)
}

func (h *harness) waitInterviews() {
	h.c.Devices().interviewWg.Wait()
}

func TestJoinCreatesDevice(t *testing.T) {
	h := newHarness(t)
	h.ncp.Join(ncp.DeviceJoinedEvent{IEEEAddr: plugIEEE, ShortAddr: 0x1234})

	dev := h.device(t, plugIEEE)
	if dev.ShortAddress != 0x1234 || dev.FriendlyName != "0x00158d0000000001" || dev.Interviewed {
		t.Errorf("device = %+v", dev)
	}
	evts := h.eventsOf(EventDeviceJoined)
	if len(evts) != 1 || evts[0].Data.(DeviceEvent).ShortAddr != 0x1234 {
		t.Errorf("joined events = %+v", evts)
	}
	if h.c.Devices().interviewing(dev.IEEEAddress) {
		t.Error("join must not start an interview")
	}
}

func TestAnnounceInterviewsAndConfigures(t *testing.T) {
	h := newHarness(t)
	pairPlug(h)

	h.ncp.Announce(ncp.DeviceAnnounceEvent{IEEEAddr: plugIEEE, ShortAddr: 0x1234})
	h.waitInterviews()

	dev := h.device(t, plugIEEE)
	if !dev.Interviewed || !dev.Configured {
		t.Fatalf("interviewed=%v configured=%v", dev.Interviewed, dev.Configured)
	}
	if dev.ModelID != "RBSH-SP-ZB-EU" || dev.Model != "BSP-FZ2" || dev.Vendor != "Bosch" {
		t.Errorf("identity = %q %q %q", dev.ModelID, dev.Model, dev.Vendor)
	}
	if dev.Manufacturer != "BOSCH" || dev.PowerSource != "mains_single_phase" {
		t.Errorf("manufacturer=%q power_source=%q", dev.Manufacturer, dev.PowerSource)
	}
	if len(dev.Endpoints) != 1 || dev.Endpoints[0].DeviceID != 0x0051 {
		t.Errorf("endpoints = %+v", dev.Endpoints)
	}

	var bound []uint16
	for _, b := range h.ncp.Binds {
		bound = append(bound, b.ClusterID)
		if b.DstEP != coordinatorEndpoint {
			t.Errorf("bind to endpoint %d", b.DstEP)
		}
	}
	if !slices.Equal(bound, []uint16{0x0006, 0x0b04, 0x0702}) {
		t.Errorf("bound clusters = %04X", bound)
	}
	for _, cl := range []string{"genOnOff", "haElectricalMeasurement", "seMetering"} {
		if !slices.Contains(dev.Bindings, store.Binding{Endpoint: 1, Cluster: cl}) {
			t.Errorf("binding %s not recorded: %+v", cl, dev.Bindings)
		}
	}
	if v := dev.Attributes["1/haElectricalMeasurement"]["acPowerDivisor"]; v == nil {
		t.Errorf("divisor not cached: %+v", dev.Attributes)
	}

	evts := h.eventsOf(EventDeviceInterviewed)
	if len(evts) != 1 {
		t.Fatalf("interviewed events = %d", len(evts))
	}
	if de := evts[0].Data.(DeviceEvent); !de.Supported || de.Model != "BSP-FZ2" {
		t.Errorf("interviewed event = %+v", de)
	}
}

func TestInterviewUnsupportedDevice(t *testing.T) {
	h := newHarness(t)
	h.ncp.AddEndpoint(otherIEEE, ncp.SimpleDescriptor{Endpoint: 1, ProfileID: 0x0104, InClusters: []uint16{0x0000, 0x0006}})
	h.ncp.SetAttribute(otherIEEE, 1, 0x0000, attrModelID, zcl.TypeCharStr, "lumi.plug\x00")

	h.ncp.Announce(ncp.DeviceAnnounceEvent{IEEEAddr: otherIEEE, ShortAddr: 0x2222})
	h.waitInterviews()

	dev := h.device(t, otherIEEE)
	if !dev.Interviewed || dev.Configured || dev.Model != "" {
		t.Errorf("device = %+v", dev)
	}
	if dev.ModelID != "lumi.plug" {
		t.Errorf("model id = %q, want trailing NUL trimmed", dev.ModelID)
	}
	if len(h.ncp.Binds) != 0 {
		t.Errorf("unsupported device was configured: %+v", h.ncp.Binds)
	}
	evts := h.eventsOf(EventDeviceInterviewed)
	if len(evts) != 1 || evts[0].Data.(DeviceEvent).Supported {
		t.Errorf("interviewed events = %+v", evts)
	}
}

func TestAnnounceSkipsConfiguredDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, plugIEEE, "RBSH-SP-ZB-EU", plugEndpoint)

	h.ncp.Announce(ncp.DeviceAnnounceEvent{IEEEAddr: plugIEEE, ShortAddr: 0x4321})
	h.waitInterviews()

	if dev := h.device(t, plugIEEE); dev.ShortAddress != 0x4321 {
		t.Errorf("short address = 0x%04X", dev.ShortAddress)
	}
	if len(h.ncp.Requests()) != 0 {
		t.Errorf("configured device was interviewed again: %d requests", len(h.ncp.Requests()))
	}
}

func TestAnnounceDebounce(t *testing.T) {
	h := newHarness(t)
	pairPlug(h)
	dm := h.c.Devices()
	ieee := ncp.FormatIEEE(plugIEEE)

	dm.lastJoinMu.Lock()
	dm.lastJoin[ieee] = time.Now()
	dm.lastJoinMu.Unlock()

	h.ncp.Announce(ncp.DeviceAnnounceEvent{IEEEAddr: plugIEEE, ShortAddr: 0x1234})
	h.waitInterviews()

	if h.device(t, plugIEEE).Interviewed {
		t.Error("announce within the debounce window started an interview")
	}
}

func TestLastJoinCleanup(t *testing.T) {
	h := newHarness(t)
	dm := h.c.Devices()

	dm.lastJoinMu.Lock()
	for i := range 60 {
		dm.lastJoin[ncp.FormatIEEE(uint64(i))] = time.Now().Add(-2 * time.Minute)
	}
	dm.lastJoinMu.Unlock()

	// Unknown to the fake: the interview fails fast and is cancelled below.
	h.ncp.Announce(ncp.DeviceAnnounceEvent{IEEEAddr: otherIEEE, ShortAddr: 0x3333})
	dm.CancelAllInterviews()

	dm.lastJoinMu.Lock()
	count := len(dm.lastJoin)
	dm.lastJoinMu.Unlock()
	if count != 1 {
		t.Errorf("after cleanup, lastJoin count = %d, want 1", count)
	}
}

func TestHandleLeaveDeletesDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, plugIEEE, "RBSH-SP-ZB-EU", plugEndpoint)

	h.ncp.LeaveNetwork(ncp.DeviceLeftEvent{IEEEAddr: plugIEEE})

	if _, err := h.store.GetDevice(ncp.FormatIEEE(plugIEEE)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("device still stored: %v", err)
	}
	evts := h.eventsOf(EventDeviceLeft)
	if len(evts) != 1 || evts[0].Data.(DeviceEvent).Model != "BSP-FZ2" {
		t.Errorf("left events = %+v", evts)
	}
}

func TestRemoveDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, plugIEEE, "RBSH-SP-ZB-EU", plugEndpoint)
	if _, err := h.c.Devices().RenameDevice(ncp.FormatIEEE(plugIEEE), "kitchen/plug"); err != nil {
		t.Fatal(err)
	}

	if err := h.c.Devices().RemoveDevice(context.Background(), "kitchen/plug", false); err != nil {
		t.Fatal(err)
	}
	if len(h.ncp.Left) != 1 || h.ncp.Left[0] != plugIEEE {
		t.Errorf("leave requests = %v", h.ncp.Left)
	}
	if _, err := h.store.GetDevice(ncp.FormatIEEE(plugIEEE)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("device still stored: %v", err)
	}
	evts := h.eventsOf(EventDeviceRemoved)
	if len(evts) != 1 || evts[0].Data.(DeviceEvent).FriendlyName != "kitchen/plug" {
		t.Errorf("removed events = %+v", evts)
	}

	if err := h.c.Devices().RemoveDevice(context.Background(), "kitchen/plug", true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestRenameDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, plugIEEE, "RBSH-SP-ZB-EU", plugEndpoint)
	h.addDevice(t, otherIEEE, "RBSH-SP-ZB-EU", plugEndpoint)
	dm := h.c.Devices()

	dev, err := dm.RenameDevice(ncp.FormatIEEE(plugIEEE), " living room plug ")
	if err != nil {
		t.Fatal(err)
	}
	if dev.FriendlyName != "living room plug" {
		t.Errorf("friendly name = %q", dev.FriendlyName)
	}
	evts := h.eventsOf(EventDeviceRenamed)
	if len(evts) != 1 {
		t.Fatalf("renamed events = %d", len(evts))
	}
	if de := evts[0].Data.(DeviceEvent); de.OldName != "0x00158d0000000001" || de.FriendlyName != "living room plug" {
		t.Errorf("renamed event = %+v", de)
	}

	for _, name := range []string{"", "plug/#", "a+b", "plug/set", "living room plug", "0x00158D0000000001"} {
		if _, err := dm.RenameDevice(ncp.FormatIEEE(otherIEEE), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("RenameDevice(%q) error = %v, want ErrInvalidName", name, err)
		}
	}

	// Renaming a device to its own name is allowed.
	if _, err := dm.RenameDevice("living room plug", "living room plug"); err != nil {
		t.Errorf("rename to same name: %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	h := newHarness(t)
	pairPlug(h)
	h.addDevice(t, plugIEEE, "RBSH-SP-ZB-EU", plugEndpoint)
	if err := h.store.UpdateDevice(ncp.FormatIEEE(plugIEEE), func(d *store.Device) error {
		d.Configured = false
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := h.c.Devices().Reconfigure(context.Background(), ncp.FormatIEEE(plugIEEE)); err != nil {
		t.Fatal(err)
	}
	if !h.device(t, plugIEEE).Configured {
		t.Error("device not marked configured")
	}
	if len(h.ncp.Binds) != 3 {
		t.Errorf("binds = %d, want 3", len(h.ncp.Binds))
	}

	h.addDevice(t, otherIEEE, "lumi.plug", plugEndpoint)
	if err := h.c.Devices().Reconfigure(context.Background(), ncp.FormatIEEE(otherIEEE)); !errors.Is(err, ErrUnsupportedDevice) {
		t.Errorf("reconfigure unsupported: %v", err)
	}
}
