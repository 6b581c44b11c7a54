//go:build !no_automation

package web

import (
	"net/http"
	"path/filepath"
	"testing"

	"zigbee-go-catalog/internal/automation"
)

func newScriptServer(t *testing.T) (*testServer, *automation.Engine) {
	t.Helper()
	ts := newTestServer(t)
	mgr, err := automation.NewManager(filepath.Join(t.TempDir(), "scripts"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	engine := automation.NewEngine(ts.coord, mgr, automation.Config{}, testLogger())
	t.Cleanup(engine.Stop)
	WithAutomation(engine, mgr)(ts.srv)
	return ts, engine
}

type scriptResponse struct {
	Script scriptView `json:"script"`
	Error  string     `json:"error"`
}

func TestScriptsDisabled(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/api/scripts", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestScriptsCRUD(t *testing.T) {
	ts, engine := newScriptServer(t)

	rec := ts.do(http.MethodPost, "/api/scripts", automation.Script{
		Meta:    automation.ScriptMeta{Name: "Night Light", Enabled: true},
		LuaCode: `zigbee.on("state_change", function(e) end)`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body)
	}
	created := decodeJSON[scriptResponse](t, rec)
	if created.Script.ID != "night_light" || !created.Script.Running || created.Error != "" {
		t.Fatalf("created = %+v", created)
	}

	list := decodeJSON[[]scriptView](t, ts.do(http.MethodGet, "/api/scripts", nil))
	if len(list) != 1 || list[0].ID != "night_light" || !list[0].Running {
		t.Errorf("list = %+v", list)
	}

	rec = ts.do(http.MethodPut, "/api/scripts/night_light", automation.Script{
		Meta:    automation.ScriptMeta{Name: "Night Light", Enabled: false},
		LuaCode: `log.info("off")`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d: %s", rec.Code, rec.Body)
	}
	if updated := decodeJSON[scriptResponse](t, rec); updated.Script.Running {
		t.Error("disabled script still running")
	}
	if len(engine.Running()) != 0 {
		t.Errorf("running = %v", engine.Running())
	}

	got := decodeJSON[scriptView](t, ts.do(http.MethodGet, "/api/scripts/night_light", nil))
	if got.Meta.Enabled || got.LuaCode != "log.info(\"off\")\n" {
		t.Errorf("got = %+v", got)
	}

	if rec := ts.do(http.MethodDelete, "/api/scripts/night_light", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/scripts/night_light", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
	if rec := ts.do(http.MethodPut, "/api/scripts/night_light", automation.Script{}); rec.Code != http.StatusNotFound {
		t.Errorf("update missing: status = %d, want 404", rec.Code)
	}
}

func TestScriptsCreateValidation(t *testing.T) {
	ts, _ := newScriptServer(t)
	if rec := ts.do(http.MethodPost, "/api/scripts", automation.Script{LuaCode: "x = 1"}); rec.Code != http.StatusBadRequest {
		t.Errorf("no name: status = %d, want 400", rec.Code)
	}
}

func TestScriptsCreateWithSyntaxError(t *testing.T) {
	ts, _ := newScriptServer(t)
	rec := ts.do(http.MethodPost, "/api/scripts", automation.Script{
		Meta:    automation.ScriptMeta{Name: "Broken", Enabled: true},
		LuaCode: `this is not lua`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decodeJSON[scriptResponse](t, rec)
	if resp.Error == "" || resp.Script.Running {
		t.Errorf("resp = %+v", resp)
	}
}

func TestScriptsRun(t *testing.T) {
	ts, _ := newScriptServer(t)
	ts.addPlug(t)

	rec := ts.do(http.MethodPost, "/api/scripts/run", map[string]string{
		"lua_code": `log.info(zigbee.state("Kitchen Plug").state)`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decodeJSON[automation.RunResult](t, rec)
	if !res.OK || len(res.Logs) != 1 || res.Logs[0] != "OFF" {
		t.Errorf("inline result = %+v", res)
	}

	ts.do(http.MethodPost, "/api/scripts", automation.Script{
		Meta:    automation.ScriptMeta{Name: "Hello"},
		LuaCode: `log.info("hello")`,
	})
	res = decodeJSON[automation.RunResult](t, ts.do(http.MethodPost, "/api/scripts/hello/run", nil))
	if !res.OK || len(res.Logs) != 1 || res.Logs[0] != "hello" {
		t.Errorf("script result = %+v", res)
	}

	if rec := ts.do(http.MethodPost, "/api/scripts/missing/run", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing script: status = %d, want 404", rec.Code)
	}
}
