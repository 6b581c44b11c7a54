package web

import (
	"net/http"
	"slices"

	"zigbee-go-catalog/internal/automation"
)

// scriptView is a script with its runtime status.
type scriptView struct {
	*automation.Script
	Running bool `json:"running"`
}

func (s *Server) automationReady(w http.ResponseWriter) bool {
	if s.scriptMgr == nil || s.autoEngine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automation not enabled"})
		return false
	}
	return true
}

func (s *Server) isRunning(id string) bool {
	return slices.Contains(s.autoEngine.Running(), id)
}

func (s *Server) handleAPIListScripts(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	scripts, err := s.scriptMgr.List()
	if err != nil {
		s.writeError(w, "list scripts", err)
		return
	}
	views := make([]scriptView, 0, len(scripts))
	for _, sc := range scripts {
		views = append(views, scriptView{Script: sc, Running: s.isRunning(sc.ID)})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetScript(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	sc, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, "get script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, scriptView{Script: sc, Running: s.isRunning(sc.ID)})
}

func (s *Server) handleAPICreateScript(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	var sc automation.Script
	if !s.decodeBody(w, r, &sc) {
		return
	}
	if sc.Meta.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	// New scripts always get a fresh ID derived from the name.
	sc.ID = ""
	s.saveScript(w, &sc, http.StatusCreated)
}

func (s *Server) handleAPIUpdateScript(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.scriptMgr.Get(id); err != nil {
		s.writeError(w, "update script", err)
		return
	}
	var sc automation.Script
	if !s.decodeBody(w, r, &sc) {
		return
	}
	sc.ID = id
	s.saveScript(w, &sc, http.StatusOK)
}

// saveScript persists sc and restarts it so the engine runs the new code.
func (s *Server) saveScript(w http.ResponseWriter, sc *automation.Script, status int) {
	saved, err := s.scriptMgr.Save(sc)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp := map[string]any{}
	if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
		s.logger.Warn("script reload", "id", saved.ID, "err", err)
		resp["error"] = err.Error()
	}
	resp["script"] = scriptView{Script: saved, Running: s.isRunning(saved.ID)}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAPIDeleteScript(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	id := r.PathValue("id")
	s.autoEngine.StopScript(id)
	if err := s.scriptMgr.Delete(id); err != nil {
		s.writeError(w, "delete script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIRunScript(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.scriptMgr.Get(id); err != nil {
		s.writeError(w, "run script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunScript(id))
}

// handleAPIRunInline runs Lua code from the request body once.
func (s *Server) handleAPIRunInline(w http.ResponseWriter, r *http.Request) {
	if !s.automationReady(w) {
		return
	}
	var req struct {
		LuaCode string `json:"lua_code"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(req.LuaCode))
}
