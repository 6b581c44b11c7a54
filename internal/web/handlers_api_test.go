package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/ncp/ncptest"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/zcl"
	"zigbee-go-catalog/internal/zcl/clusters"
)

const plugIEEE uint64 = 0x00158d0000000001

var plugAddr = ncp.FormatIEEE(plugIEEE)

type testServer struct {
	srv   *Server
	coord *coordinator.Coordinator
	ncp   *ncptest.Fake
	store *store.Memory
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServer builds a server over a coordinator on a fake NCP.
func newTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	logger := testLogger()
	reg := zcl.NewRegistry(logger)
	clusters.RegisterAll(reg)
	cat, err := devices.Default(logger)
	if err != nil {
		t.Fatal(err)
	}
	ts := &testServer{ncp: ncptest.New(), store: store.NewMemory()}
	ts.coord = coordinator.New(ts.ncp, ts.store, reg, cat, coordinator.NewEventBus(logger),
		coordinator.Config{Channel: 15, PanID: 0x1a62, ExtPanID: 0xdddddddddddddddd},
		coordinator.NCPConfig{Type: "zstack", Port: "/dev/ttyACM0", Baud: 115200}, logger)
	t.Cleanup(ts.coord.Stop)
	ts.srv = NewServer(ts.coord, logger, opts...)
	t.Cleanup(ts.srv.Stop)
	return ts
}

// addPlug stores a Bosch smart plug named "Kitchen Plug".
func (ts *testServer) addPlug(t *testing.T) {
	t.Helper()
	dev := &store.Device{
		IEEEAddress:  plugAddr,
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
	if err := ts.store.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (ts *testServer) onOffCommands() []uint8 {
	var cmds []uint8
	for _, r := range ts.ncp.Requests() {
		if r.ClusterID == 0x0006 && !r.Global {
			cmds = append(cmds, r.Command)
		}
	}
	return cmds
}

func TestAPIListDevices(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodGet, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	views := decodeJSON[[]DeviceView](t, rec)
	if len(views) != 1 {
		t.Fatalf("devices = %d, want 1", len(views))
	}
	v := views[0]
	if v.IEEEAddress != plugAddr || !v.Supported || v.Definition == nil {
		t.Fatalf("view = %+v", v)
	}
	if v.Definition.Model != "BSP-FZ2" || v.Definition.Vendor != "Bosch" {
		t.Errorf("definition = %s %s", v.Definition.Vendor, v.Definition.Model)
	}
	found := false
	for _, e := range v.Definition.Exposes {
		if e.Property == "power" {
			found = true
		}
	}
	if !found {
		t.Error("power not exposed")
	}
}

func TestAPIListDevicesUnsupported(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.store.SaveDevice(&store.Device{IEEEAddress: "0x00124b0000000009", ModelID: "mystery"}); err != nil {
		t.Fatal(err)
	}
	views := decodeJSON[[]DeviceView](t, ts.do(http.MethodGet, "/api/devices", nil))
	if len(views) != 1 || views[0].Supported || views[0].Definition != nil {
		t.Errorf("views = %+v", views)
	}
}

func TestAPIGetDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	for _, path := range []string{"/api/devices/" + plugAddr, "/api/devices/Kitchen%20Plug"} {
		rec := ts.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
			continue
		}
		if v := decodeJSON[DeviceView](t, rec); v.FriendlyName != "Kitchen Plug" {
			t.Errorf("%s: name = %q", path, v.FriendlyName)
		}
	}

	rec := ts.do(http.MethodGet, "/api/devices/0xdeadbeef", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device: status = %d, want 404", rec.Code)
	}
}

func TestAPIRenameDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/rename", renameDeviceRequest{FriendlyName: "Desk/Plug"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	dev, err := ts.store.GetDevice(plugAddr)
	if err != nil {
		t.Fatal(err)
	}
	if dev.FriendlyName != "Desk/Plug" {
		t.Errorf("name = %q", dev.FriendlyName)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/rename", renameDeviceRequest{FriendlyName: "bad#name"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wildcard name: status = %d, want 400", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/rename", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", rec.Code)
	}
}

func TestAPIDeleteDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodDelete, "/api/devices/Kitchen%20Plug", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(ts.ncp.Left) != 1 || ts.ncp.Left[0] != plugIEEE {
		t.Errorf("leave requests = %v", ts.ncp.Left)
	}
	if _, err := ts.store.GetDevice(plugAddr); err == nil {
		t.Error("device still stored")
	}
	if rec := ts.do(http.MethodDelete, "/api/devices/"+plugAddr, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestAPIGetStateCached(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodGet, "/api/devices/"+plugAddr+"/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	state := decodeJSON[map[string]any](t, rec)
	if state["state"] != "OFF" || state["power"] != 12.5 {
		t.Errorf("state = %v", state)
	}
	if len(ts.ncp.Requests()) != 0 {
		t.Error("cached read queried the device")
	}
}

func TestAPIGetStateRefresh(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)
	ts.ncp.SetAttribute(plugIEEE, 1, 0x0006, 0x0000, zcl.TypeBool, true)

	rec := ts.do(http.MethodGet, "/api/devices/"+plugAddr+"/state?keys=state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if state := decodeJSON[map[string]any](t, rec); state["state"] != "ON" {
		t.Errorf("state = %v", state)
	}
}

func TestAPISetState(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/state", map[string]any{"state": "ON"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if cmds := ts.onOffCommands(); len(cmds) != 1 || cmds[0] != 0x01 {
		t.Errorf("on/off commands = %v", cmds)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/state", map[string]any{"bogus": 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown key: status = %d, want 400", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/state", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty payload: status = %d, want 400", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/devices/0x01/state", map[string]any{"state": "ON"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device: status = %d, want 404", rec.Code)
	}
}

func TestAPISetOptions(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/options", map[string]any{"power_calibration": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	dev, err := ts.store.GetDevice(plugAddr)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Options["power_calibration"] == nil {
		t.Errorf("options = %v", dev.Options)
	}
}

func TestAPIConfigureUnsupported(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.store.SaveDevice(&store.Device{IEEEAddress: "0x00124b0000000009", ModelID: "mystery"}); err != nil {
		t.Fatal(err)
	}
	rec := ts.do(http.MethodPost, "/api/devices/0x00124b0000000009/configure", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAPIReadAttributes(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)
	ts.ncp.SetAttribute(plugIEEE, 1, 0x0006, 0x0000, zcl.TypeBool, true)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/read", readAttributesRequest{
		Endpoint: 1, Cluster: "genOnOff", Attributes: []string{"onOff"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	results := decodeJSON[[]coordinator.AttributeResult](t, rec)
	if len(results) != 1 || results[0].AttrName != "onOff" || results[0].Value != true {
		t.Errorf("results = %+v", results)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/read", readAttributesRequest{Endpoint: 1, Cluster: "genOnOff"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no attributes: status = %d, want 400", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/read", readAttributesRequest{
		Endpoint: 1, Cluster: "noSuchCluster", Attributes: []string{"x"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown cluster: status = %d, want 400", rec.Code)
	}
}

func TestAPISendCommand(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/command", sendCommandRequest{
		Endpoint: 1, Cluster: "genOnOff", Command: "toggle",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if cmds := ts.onOffCommands(); len(cmds) != 1 || cmds[0] != 0x02 {
		t.Errorf("on/off commands = %v", cmds)
	}
}

func TestAPIBind(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/bind", bindRequest{Endpoint: 1, Cluster: "genOnOff"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(ts.ncp.Binds) != 1 || ts.ncp.Binds[0].ClusterID != 0x0006 {
		t.Errorf("binds = %+v", ts.ncp.Binds)
	}
	rec = ts.do(http.MethodPost, "/api/devices/"+plugAddr+"/unbind", bindRequest{Endpoint: 1, Cluster: "genOnOff"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unbind status = %d: %s", rec.Code, rec.Body)
	}
	if len(ts.ncp.Unbinds) != 1 {
		t.Errorf("unbinds = %+v", ts.ncp.Unbinds)
	}
}

func TestAPIDefinitions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/definitions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	all := decodeJSON[[]devices.Summary](t, rec)
	if len(all) != ts.coord.Catalog().Len() {
		t.Errorf("definitions = %d, want %d", len(all), ts.coord.Catalog().Len())
	}

	bosch := decodeJSON[[]devices.Summary](t, ts.do(http.MethodGet, "/api/definitions?vendor=Bosch", nil))
	if len(bosch) == 0 {
		t.Fatal("no Bosch definitions")
	}
	for _, d := range bosch {
		if d.Vendor != "Bosch" {
			t.Errorf("vendor filter returned %s %s", d.Vendor, d.Model)
		}
	}

	rec = ts.do(http.MethodGet, "/api/definitions/BSP-FZ2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get definition: status = %d", rec.Code)
	}
	if d := decodeJSON[devices.Summary](t, rec); d.Model != "BSP-FZ2" || len(d.Exposes) == 0 {
		t.Errorf("definition = %+v", d)
	}

	if rec := ts.do(http.MethodGet, "/api/definitions/NOPE", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown model: status = %d, want 404", rec.Code)
	}
}

func TestAPIPermitJoin(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodPost, "/api/permit-join", map[string]int{"duration": 60}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec := ts.do(http.MethodPost, "/api/permit-join", nil); rec.Code != http.StatusOK {
		t.Fatalf("default duration: status = %d: %s", rec.Code, rec.Body)
	}
	if rec := ts.do(http.MethodPost, "/api/permit-join", map[string]int{"duration": 300}); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range: status = %d, want 400", rec.Code)
	}
	if len(ts.ncp.Joins) != 2 || ts.ncp.Joins[0] != 60 || ts.ncp.Joins[1] != 254 {
		t.Errorf("joins = %v", ts.ncp.Joins)
	}
}

func TestAPINetworkInfo(t *testing.T) {
	ts := newTestServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodGet, "/api/network", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	info := decodeJSON[map[string]any](t, rec)
	if info["channel"] != float64(15) || info["pan_id"] != "0x1A62" || info["device_count"] != float64(1) {
		t.Errorf("info = %v", info)
	}
}

func TestAPIClustersAndVersion(t *testing.T) {
	ts := newTestServer(t, WithVersion("1.2.3"))

	clustersList := decodeJSON[[]zcl.ClusterDef](t, ts.do(http.MethodGet, "/api/clusters", nil))
	found := false
	for _, c := range clustersList {
		if c.Name == "genOnOff" {
			found = true
		}
	}
	if !found {
		t.Error("genOnOff not listed")
	}

	v := decodeJSON[map[string]string](t, ts.do(http.MethodGet, "/api/version", nil))
	if v["version"] != "1.2.3" {
		t.Errorf("version = %v", v)
	}
}

func TestAPIBackupUnsupportedStore(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/api/backup", nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t, WithAPIKey("secret"))

	if rec := ts.do(http.MethodGet, "/api/devices", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/devices", nil, "X-API-Key", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/devices", nil, "X-API-Key", "secret"); rec.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, WithAllowedOrigins([]string{"http://home.local"}))

	rec := ts.do(http.MethodOptions, "/api/permit-join", nil, "Origin", "http://home.local")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight: status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://home.local" {
		t.Errorf("allow origin = %q", got)
	}

	rec = ts.do(http.MethodOptions, "/api/permit-join", nil, "Origin", "http://evil.example")
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign preflight: status = %d, want 403", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/permit-join", map[string]int{"duration": 0}, "Origin", "http://evil.example")
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign POST: status = %d, want 403", rec.Code)
	}
	if len(ts.ncp.Joins) != 0 {
		t.Error("forbidden request reached the NCP")
	}

	// Reads are not origin-checked.
	if rec := ts.do(http.MethodGet, "/api/devices", nil, "Origin", "http://evil.example"); rec.Code != http.StatusOK {
		t.Errorf("foreign GET: status = %d, want 200", rec.Code)
	}
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.srv.writeError(rec, "list devices", os.ErrPermission)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := decodeJSON[map[string]string](t, rec); body["error"] != "list devices failed" {
		t.Errorf("body = %v", body)
	}
}
