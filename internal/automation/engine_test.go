//go:build !no_automation

package automation

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/ncp/ncptest"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
	"zigbee-go-catalog/internal/zcl/clusters"
)

const plugIEEE uint64 = 0x00158d0000000001

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type harness struct {
	e     *Engine
	mgr   *Manager
	coord *coordinator.Coordinator
	ncp   *ncptest.Fake
	store *store.Memory
}

// newHarness wires an engine to a coordinator on a fake NCP with one
// Bosch plug named "Kitchen Plug".
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := testLogger()
	reg := zcl.NewRegistry(logger)
	clusters.RegisterAll(reg)
	cat, err := devices.Default(logger)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{ncp: ncptest.New(), store: store.NewMemory()}
	h.coord = coordinator.New(h.ncp, h.store, reg, cat, coordinator.NewEventBus(logger),
		coordinator.Config{Channel: 15, PanID: 0x1a62}, coordinator.NCPConfig{Type: "zstack"}, logger)
	t.Cleanup(h.coord.Stop)

	dev := &store.Device{
		IEEEAddress:  ncp.FormatIEEE(plugIEEE),
		Manufacturer: "BOSCH",
		ModelID:      "RBSH-SP-ZB-EU",
		Model:        "BSP-FZ2",
		Vendor:       "Bosch",
		FriendlyName: "Kitchen Plug",
		Endpoints:    []store.Endpoint{{ID: 1, ProfileID: 0x0104, InClusters: []uint16{0x0000, 0x0006, 0x0702, 0x0b04}}},
		Interviewed:  true,
		Configured:   true,
		State:        map[string]any{"state": "OFF", "power": 12.5},
	}
	if err := h.store.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}

	h.mgr, err = NewManager(filepath.Join(t.TempDir(), "scripts"), logger)
	if err != nil {
		t.Fatal(err)
	}
	h.e = NewEngine(h.coord, h.mgr, cfg, logger)
	t.Cleanup(h.e.Stop)
	return h
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func (h *harness) onOffCommands() []uint8 {
	var cmds []uint8
	for _, r := range h.ncp.Requests() {
		if r.ClusterID == 0x0006 && !r.Global {
			cmds = append(cmds, r.Command)
		}
	}
	return cmds
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  any
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"uint16", uint16(1024), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"map", map[string]any{"a": 1}, lua.LTTable},
		{"slice", []any{1, 2, 3}, lua.LTTable},
		{"strings", []string{"off", "on"}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestGoToLuaNested(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	v := goToLua(L, map[string]any{"state": "ON", "list": []any{"a", "b"}})
	tbl, ok := v.(*lua.LTable)
	if !ok {
		t.Fatal("expected LTable")
	}
	if s := tbl.RawGetString("state"); s != lua.LString("ON") {
		t.Errorf("state = %v", s)
	}
	list, ok := tbl.RawGetString("list").(*lua.LTable)
	if !ok || list.Len() != 2 || list.RawGetInt(1) != lua.LString("a") {
		t.Errorf("list = %v", tbl.RawGetString("list"))
	}
}

func TestLuaToGo(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`_v = {state = "ON", brightness = 120, color = {x = 0.3}, modes = {"heat", "off"}}`); err != nil {
		t.Fatal(err)
	}
	got, ok := luaToGo(L.GetGlobal("_v")).(map[string]any)
	if !ok {
		t.Fatalf("luaToGo = %T", luaToGo(L.GetGlobal("_v")))
	}
	if got["state"] != "ON" || got["brightness"] != float64(120) {
		t.Errorf("scalars = %v", got)
	}
	if color, _ := got["color"].(map[string]any); color["x"] != 0.3 {
		t.Errorf("color = %v", got["color"])
	}
	if modes, _ := got["modes"].([]any); len(modes) != 2 || modes[0] != "heat" {
		t.Errorf("modes = %v", got["modes"])
	}
	if luaToGo(lua.LNil) != nil {
		t.Error("nil should map to nil")
	}
}

func TestMatchesHandler(t *testing.T) {
	change := coordinator.Event{Type: coordinator.EventStateChange, Data: coordinator.StateChange{
		IEEE:         "0x00158d0000000001",
		FriendlyName: "Kitchen Plug",
		Update:       map[string]any{"state": "ON"},
	}}
	joined := coordinator.Event{Type: coordinator.EventDeviceJoined, Data: coordinator.DeviceEvent{IEEE: "0x00158d0000000002"}}
	permit := coordinator.Event{Type: coordinator.EventPermitJoin, Data: map[string]any{"duration": 60}}

	tests := []struct {
		name    string
		handler luaEventHandler
		event   coordinator.Event
		want    bool
	}{
		{"type only", luaEventHandler{eventType: "state_change"}, change, true},
		{"wrong type", luaEventHandler{eventType: "device_joined"}, change, false},
		{"wildcard", luaEventHandler{eventType: "*"}, joined, true},
		{"by ieee", luaEventHandler{eventType: "state_change", device: "0x00158D0000000001"}, change, true},
		{"by name", luaEventHandler{eventType: "state_change", device: "Kitchen Plug"}, change, true},
		{"other device", luaEventHandler{eventType: "state_change", device: "Hall"}, change, false},
		{"property in update", luaEventHandler{eventType: "state_change", property: "state"}, change, true},
		{"property not in update", luaEventHandler{eventType: "state_change", property: "power"}, change, false},
		{"property on lifecycle event", luaEventHandler{eventType: "device_joined", property: "state"}, joined, false},
		{"map data", luaEventHandler{eventType: "permit_join"}, permit, true},
		{"map data with filter", luaEventHandler{eventType: "permit_join", device: "x"}, permit, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHandler(tt.handler, tt.event); got != tt.want {
				t.Errorf("matchesHandler() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventFields(t *testing.T) {
	f := eventFields(coordinator.Event{Type: coordinator.EventDeviceRenamed, Data: coordinator.DeviceEvent{
		IEEE: "0x1", FriendlyName: "new", OldName: "old", Model: "BSP-FZ2",
	}})
	if f["type"] != "device_renamed" || f["old_name"] != "old" || f["model"] != "BSP-FZ2" {
		t.Errorf("fields = %v", f)
	}
	f = eventFields(coordinator.Event{Type: coordinator.EventPermitJoin, Data: map[string]any{"duration": 60}})
	if f["duration"] != 60 {
		t.Errorf("fields = %v", f)
	}
}

func TestSandbox(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.e.RunLuaCode(`
		assert(io == nil and os == nil and require == nil and load == nil and dofile == nil)
		assert(string.upper("on") == "ON")
		assert(math.floor(2.5) == 2)
		log.info(#table.concat({"a", "b"}))
	`)
	if !res.OK {
		t.Fatalf("sandbox run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "2" {
		t.Errorf("logs = %v", res.Logs)
	}
}

func TestRunLuaCodeCapturesLogs(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.e.RunLuaCode(`
		log.info("hello", 42)
		log.warn("careful")
		zigbee.on("state_change", {property = "contact"}, function(ev)
			log.info(ev.type .. ":" .. ev.property)
		end)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	want := []string{"hello 42", "[warn] careful", "state_change:contact"}
	if strings.Join(res.Logs, "|") != strings.Join(want, "|") {
		t.Errorf("logs = %q, want %q", res.Logs, want)
	}
}

func TestRunLuaCodeErrors(t *testing.T) {
	h := newHarness(t, Config{Budget: 50 * time.Millisecond})

	if res := h.e.RunLuaCode(`this is not lua`); res.OK || res.Error == "" {
		t.Errorf("syntax error accepted: %+v", res)
	}
	res := h.e.RunLuaCode(`while true do end`)
	if res.OK || !strings.Contains(res.Error, "budget exceeded") {
		t.Errorf("runaway loop: %+v", res)
	}
	if res := h.e.RunLuaCode(`zigbee.every("whenever", function() end)`); res.OK || !strings.Contains(res.Error, "invalid schedule") {
		t.Errorf("bad schedule: %+v", res)
	}
	if res := h.e.RunScript("missing"); res.OK {
		t.Error("missing script ran")
	}
}

func TestZigbeeSetAndState(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.e.RunLuaCode(`
		local st = zigbee.state("Kitchen Plug")
		log.info(st.state, st.power)
		assert(zigbee.set("Kitchen Plug", {state = "ON"}))
		local ok, err = zigbee.set("Kitchen Plug", {bogus = 1})
		log.info(tostring(ok), err ~= nil)
		assert(zigbee.state("nobody") == nil)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 2 || res.Logs[0] != "OFF 12.5" || res.Logs[1] != "nil true" {
		t.Errorf("logs = %q", res.Logs)
	}
	if cmds := h.onOffCommands(); len(cmds) != 1 || cmds[0] != 0x01 {
		t.Errorf("on/off commands = %v", cmds)
	}
}

func TestZigbeeGet(t *testing.T) {
	h := newHarness(t, Config{})
	h.ncp.SetAttribute(plugIEEE, 1, 0x0006, 0x0000, zcl.TypeBool, true)
	res := h.e.RunLuaCode(`log.info(zigbee.get("0x00158d0000000001", "state"))`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "ON" {
		t.Errorf("logs = %q", res.Logs)
	}
}

func TestZigbeeDevices(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.e.RunLuaCode(`
		for _, d in ipairs(zigbee.devices()) do
			log.info(d.name, d.model, tostring(d.supported))
		end
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "Kitchen Plug BSP-FZ2 true" {
		t.Errorf("logs = %q", res.Logs)
	}
}

func TestZigbeeCommand(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.e.RunLuaCode(`assert(zigbee.command("Kitchen Plug", 1, "genOnOff", "toggle"))`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if cmds := h.onOffCommands(); len(cmds) != 1 || cmds[0] != 0x02 {
		t.Errorf("on/off commands = %v", cmds)
	}
	if res := h.e.RunLuaCode(`zigbee.command("Kitchen Plug", 0, "genOnOff", "toggle")`); res.OK {
		t.Error("endpoint 0 accepted")
	}
}

func TestEngineDispatchesEvents(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.mgr.Save(&Script{
		Meta: ScriptMeta{Name: "Echo", Enabled: true},
		LuaCode: `
zigbee.on("state_change", {device = "Kitchen Plug", property = "power"}, function(ev)
	if ev.value > 100 then
		zigbee.set(ev.ieee, {state = "OFF"})
	end
end)`,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.e.Start()
	if got := h.e.Running(); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("running = %v", got)
	}

	h.coord.Events().Emit(coordinator.Event{Type: coordinator.EventStateChange, Data: coordinator.StateChange{
		IEEE: "0x00158d0000000001", FriendlyName: "Kitchen Plug", Update: map[string]any{"power": 5.0},
	}})
	h.coord.Events().Emit(coordinator.Event{Type: coordinator.EventStateChange, Data: coordinator.StateChange{
		IEEE: "0x00158d0000000001", FriendlyName: "Kitchen Plug", Update: map[string]any{"power": 2300.0},
	}})
	if !waitFor(t, func() bool { return len(h.onOffCommands()) == 1 }) {
		t.Fatalf("on/off commands = %v", h.onOffCommands())
	}
	if cmd := h.onOffCommands()[0]; cmd != 0x00 {
		t.Errorf("command = %#x, want off", cmd)
	}
}

func TestEngineAfter(t *testing.T) {
	h := newHarness(t, Config{})
	if _, err := h.mgr.Save(&Script{
		ID:      "delayed",
		Meta:    ScriptMeta{Name: "Delayed", Enabled: true},
		LuaCode: `zigbee.after(20, function() zigbee.set("Kitchen Plug", {state = "ON"}) end)`,
	}); err != nil {
		t.Fatal(err)
	}
	h.e.Start()
	if !waitFor(t, func() bool { return len(h.onOffCommands()) == 1 }) {
		t.Errorf("on/off commands = %v", h.onOffCommands())
	}
}

func TestEngineReloadAndStop(t *testing.T) {
	h := newHarness(t, Config{})
	s, err := h.mgr.Save(&Script{Meta: ScriptMeta{Name: "Broken", Enabled: true}, LuaCode: `error("boom")`})
	if err != nil {
		t.Fatal(err)
	}
	h.e.Start()
	if len(h.e.Running()) != 0 {
		t.Fatal("broken script is running")
	}

	s.LuaCode = `log.info("fixed")`
	if _, err := h.mgr.Save(s); err != nil {
		t.Fatal(err)
	}
	if err := h.e.ReloadScript(s.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.e.Running(); len(got) != 1 {
		t.Fatalf("running = %v", got)
	}

	s.Meta.Enabled = false
	if _, err := h.mgr.Save(s); err != nil {
		t.Fatal(err)
	}
	if err := h.e.ReloadScript(s.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.e.Running(); len(got) != 0 {
		t.Errorf("disabled script still running: %v", got)
	}
}
