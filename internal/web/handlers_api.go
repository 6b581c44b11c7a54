package web

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/definition"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/store"
)

// DeviceView is a stored device with its resolved definition.
type DeviceView struct {
	*store.Device
	Supported  bool             `json:"supported"`
	Definition *devices.Summary `json:"definition,omitempty"`
}

func (s *Server) deviceView(dev *store.Device) DeviceView {
	v := DeviceView{Device: dev}
	if def := s.coord.Definition(dev); def != nil {
		sum := devices.Summarize(def, nil)
		sum.Exposes = s.coord.Exposes(dev)
		v.Supported = true
		v.Definition = &sum
	}
	return v
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devs, err := s.coord.Devices().ListDevices()
	if err != nil {
		s.writeError(w, "list devices", err)
		return
	}
	views := make([]DeviceView, 0, len(devs))
	for _, dev := range devs {
		views = append(views, s.deviceView(dev))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.coord.Devices().GetDevice(r.PathValue("ieee"))
	if err != nil {
		s.writeError(w, "get device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deviceView(dev))
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("ieee")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := s.coord.Devices().RemoveDevice(r.Context(), id, force); err != nil {
		s.writeError(w, "remove device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameDeviceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	dev, err := s.coord.Devices().RenameDevice(r.PathValue("ieee"), req.FriendlyName)
	if err != nil {
		s.writeError(w, "rename device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": dev.FriendlyName})
}

// handleAPIGetState returns the cached state. With ?refresh or ?keys= the
// device is queried first.
func (s *Server) handleAPIGetState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("ieee")
	q := r.URL.Query()
	var keys []string
	if k := q.Get("keys"); k != "" {
		keys = strings.Split(k, ",")
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))
	if !refresh && len(keys) == 0 {
		dev, err := s.coord.Devices().GetDevice(id)
		if err != nil {
			s.writeError(w, "get state", err)
			return
		}
		state := dev.State
		if state == nil {
			state = map[string]any{}
		}
		s.writeJSON(w, http.StatusOK, state)
		return
	}
	state, err := s.coord.GetState(r.Context(), id, keys)
	if err != nil && state == nil {
		s.writeError(w, "get state", err)
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"state": state, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAPISetState(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if !s.decodeBody(w, r, &payload) {
		return
	}
	if len(payload) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty payload"})
		return
	}
	state, err := s.coord.SetState(r.Context(), r.PathValue("ieee"), payload)
	if err != nil && len(state) == 0 {
		s.writeError(w, "set state", err)
		return
	}
	if state == nil {
		state = definition.Values{}
	}
	resp := map[string]any{"state": state}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIConfigure(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Devices().Reconfigure(r.Context(), r.PathValue("ieee")); err != nil {
		s.writeError(w, "configure device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPISetOptions(w http.ResponseWriter, r *http.Request) {
	var opts map[string]any
	if !s.decodeBody(w, r, &opts) {
		return
	}
	out, err := s.coord.SetOptions(r.PathValue("ieee"), opts)
	if err != nil {
		s.writeError(w, "set options", err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

type readAttributesRequest struct {
	Endpoint   uint8    `json:"endpoint"`
	Cluster    string   `json:"cluster"`
	Attributes []string `json:"attributes"`
}

func (s *Server) handleAPIReadAttributes(w http.ResponseWriter, r *http.Request) {
	var req readAttributesRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Attributes) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "attributes must not be empty"})
		return
	}
	if len(req.Attributes) > 50 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "attributes limited to 50"})
		return
	}
	results, err := s.coord.ReadAttributes(r.Context(), r.PathValue("ieee"), req.Endpoint, req.Cluster, req.Attributes)
	if err != nil {
		s.writeError(w, "read attributes", err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

type writeAttributeRequest struct {
	Endpoint  uint8  `json:"endpoint"`
	Cluster   string `json:"cluster"`
	Attribute string `json:"attribute"`
	// DataType is only needed for attributes the cluster does not define.
	DataType uint8 `json:"data_type"`
	Value    any   `json:"value"`
}

func (s *Server) handleAPIWriteAttribute(w http.ResponseWriter, r *http.Request) {
	var req writeAttributeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	err := s.coord.WriteAttribute(r.Context(), r.PathValue("ieee"), req.Endpoint, req.Cluster, req.Attribute, req.DataType, req.Value)
	if err != nil {
		s.writeError(w, "write attribute", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendCommandRequest struct {
	Endpoint uint8          `json:"endpoint"`
	Cluster  string         `json:"cluster"`
	Command  string         `json:"command"`
	Params   map[string]any `json:"params"`
}

func (s *Server) handleAPISendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	err := s.coord.SendClusterCommand(r.Context(), r.PathValue("ieee"), req.Endpoint, req.Cluster, req.Command, req.Params)
	if err != nil {
		s.writeError(w, "send command", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bindRequest struct {
	Endpoint uint8  `json:"endpoint"`
	Cluster  string `json:"cluster"`
}

func (s *Server) handleAPIBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.coord.Bind(r.Context(), r.PathValue("ieee"), req.Endpoint, req.Cluster); err != nil {
		s.writeError(w, "bind", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIUnbind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.coord.Unbind(r.Context(), r.PathValue("ieee"), req.Endpoint, req.Cluster); err != nil {
		s.writeError(w, "unbind", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIListDefinitions lists the catalog, optionally filtered by
// ?vendor=.
func (s *Server) handleAPIListDefinitions(w http.ResponseWriter, r *http.Request) {
	var defs []*definition.Definition
	if vendor := r.URL.Query().Get("vendor"); vendor != "" {
		defs = s.coord.Catalog().ByVendor(vendor)
	} else {
		defs = s.coord.Catalog().All()
	}
	out := make([]devices.Summary, 0, len(defs))
	for _, def := range defs {
		out = append(out, devices.Summarize(def, nil))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.coord.Catalog().FindByModel(r.PathValue("model"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "definition not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, devices.Summarize(def, nil))
}

func (s *Server) handleAPINetworkInfo(w http.ResponseWriter, r *http.Request) {
	info := s.coord.NetworkInfo()
	devs, err := s.coord.Devices().ListDevices()
	if err != nil {
		s.writeError(w, "network info", err)
		return
	}
	info["device_count"] = len(devs)
	s.writeJSON(w, http.StatusOK, info)
}

// backuper is implemented by stores that can stream a snapshot of
// themselves.
type backuper interface {
	Backup(w io.Writer) (int64, error)
}

func (s *Server) handleAPIBackup(w http.ResponseWriter, r *http.Request) {
	b, ok := s.coord.Store().(backuper)
	if !ok {
		s.writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "store does not support backups"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="zigbee-catalog.db"`)
	n, err := b.Backup(w)
	if err != nil {
		// Headers are already sent once bytes were written.
		s.logger.Error("backup", "err", err, "written", n)
		if n == 0 {
			s.writeError(w, "backup", err)
		}
		return
	}
	s.logger.Info("backup served", "bytes", n)
}

type permitJoinRequest struct {
	Duration *int `json:"duration"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	if r.ContentLength != 0 && !s.decodeBody(w, r, &req) {
		return
	}
	duration := 254
	if req.Duration != nil {
		duration = *req.Duration
	}
	if duration < 0 || duration > 254 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must be 0-254"})
		return
	}
	if err := s.coord.PermitJoin(r.Context(), uint8(duration)); err != nil {
		s.writeError(w, "permit join", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "duration": duration})
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Registry().All())
}

// eventTypes lists the event types a /ws client may filter on.
var eventTypes = []string{
	coordinator.EventDeviceJoined,
	coordinator.EventDeviceLeft,
	coordinator.EventDeviceAnnounce,
	coordinator.EventDeviceInterviewed,
	coordinator.EventDeviceRenamed,
	coordinator.EventDeviceRemoved,
	coordinator.EventStateChange,
	coordinator.EventExposesChanged,
	coordinator.EventNetworkState,
	coordinator.EventPermitJoin,
}
