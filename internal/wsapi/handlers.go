package wsapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableSystem {
		featureDenied(w, "system")
		return
	}
	info, err := s.deps.Sys.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableUsage {
		featureDenied(w, "usage")
		return
	}
	usage, err := s.deps.Sys.Usage(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Config.Get().Stats.GPUEnabled && s.deps.GPU != nil {
		if gpuUsage, _ := s.deps.GPU.Get(r.Context()); gpuUsage != nil {
			writeJSON(w, http.StatusOK, usageWithGPU{usage, gpuUsage})
			return
		}
	}
	writeJSON(w, http.StatusOK, usage)
}

type usageWithGPU struct {
	Base any
	GPU  *events.GpuUsage
}

// MarshalJSON merges the static usage snapshot with the optional GPU
// reading so GET /api/usage returns one flat object whether or not a
// GPU is present.
func (u usageWithGPU) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(u.Base)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	gpuRaw, err := json.Marshal(u.GPU)
	if err != nil {
		return nil, err
	}
	m["gpu"] = gpuRaw
	return json.Marshal(m)
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableProcesses {
		featureDenied(w, "processes")
		return
	}
	list, err := s.deps.Proc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list.Processes)
}

func (s *Server) handleProcessDetail(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableProcesses {
		featureDenied(w, "processes")
		return
	}
	name := chi.URLParam(r, "name")
	details, err := s.deps.Proc.Details(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type killRequest struct {
	PID  *uint32 `json:"pid,omitempty"`
	Name *string `json:"name,omitempty"`
}

func (s *Server) handleProcessKill(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableProcesses {
		featureDenied(w, "processes")
		return
	}
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, err, "decode kill request"))
		return
	}

	count := 0
	switch {
	case req.PID != nil:
		if err := s.deps.Proc.KillByPID(r.Context(), *req.PID); err != nil {
			writeError(w, err)
			return
		}
		count = 1
	case req.Name != nil:
		killed, err := s.deps.Proc.KillByName(r.Context(), *req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		count = killed
	default:
		writeError(w, apperr.New(apperr.BadRequest, "pid or name required"))
		return
	}

	s.publishProcessFeedback(true, "kill", req.PID, req.Name, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "count": count})
}

type focusRequest struct {
	PID uint32 `json:"pid"`
}

func (s *Server) handleProcessFocus(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableProcesses {
		featureDenied(w, "processes")
		return
	}
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, err, "decode focus request"))
		return
	}
	if err := s.deps.Proc.Focus(r.Context(), req.PID); err != nil {
		s.publishProcessFeedback(false, "focus", &req.PID, nil, errMsg(err))
		writeError(w, err)
		return
	}
	s.publishProcessFeedback(true, "focus", &req.PID, nil, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type launchRequest struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

func (s *Server) handleProcessLaunch(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableProcesses {
		featureDenied(w, "processes")
		return
	}
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, err, "decode launch request"))
		return
	}
	if req.Path == "" {
		writeError(w, apperr.New(apperr.BadRequest, "path is required"))
		return
	}
	if _, err := s.deps.Proc.Launch(r.Context(), req.Path, req.Args); err != nil {
		s.publishProcessFeedback(false, "launch", nil, &req.Path, errMsg(err))
		writeError(w, err)
		return
	}
	s.publishProcessFeedback(true, "launch", nil, &req.Path, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePowerAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	cfg := s.deps.Config.Get()

	var (
		flagOK bool
		run    func(r *http.Request) error
	)
	switch action {
	case "shutdown":
		flagOK = cfg.Features.EnableShutdown
		run = func(r *http.Request) error { return s.deps.Power.Shutdown(r.Context()) }
	case "restart":
		flagOK = cfg.Features.EnableRestart
		run = func(r *http.Request) error { return s.deps.Power.Restart(r.Context()) }
	case "sleep":
		flagOK = cfg.Features.EnableSleep
		run = func(r *http.Request) error { return s.deps.Power.Sleep(r.Context()) }
	case "hibernate":
		flagOK = cfg.Features.EnableHibernate
		run = func(r *http.Request) error { return s.deps.Power.Hibernate(r.Context()) }
	default:
		writeError(w, apperr.New(apperr.BadRequest, "unknown power action"))
		return
	}

	if !flagOK {
		featureDenied(w, action)
		return
	}
	if s.deps.Power == nil {
		writeError(w, apperr.New(apperr.Internal, "power backend unavailable"))
		return
	}
	if err := run(r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMediaStatus(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableMedia {
		featureDenied(w, "media")
		return
	}
	status, err := s.deps.Media.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type mediaControlRequest struct {
	Action string `json:"action"`
	Value  *int   `json:"value,omitempty"`
}

func (s *Server) handleMediaControl(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Config.Get().Features.EnableMedia {
		featureDenied(w, "media")
		return
	}
	var req mediaControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.BadRequest, err, "decode media control request"))
		return
	}
	value := 0
	if req.Value != nil {
		value = *req.Value
	}
	if req.Action == "set_volume" && (value < 0 || value > 100) {
		writeError(w, apperr.New(apperr.BadRequest, "value must be in [0, 100]"))
		return
	}

	err := s.deps.Media.Control(r.Context(), req.Action, value)
	s.publishMediaFeedback(err == nil, req.Action, errMsg(err))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publishMediaFeedback(success bool, action string, message *string) {
	s.deps.Bus.Publish(events.NewMediaFeedback(events.OperationFeedback{
		Success: success, Action: action, Message: message,
	}))
}

func (s *Server) publishProcessFeedback(success bool, action string, pid *uint32, name *string, message *string) {
	s.deps.Bus.Publish(events.NewProcessFeedback(events.OperationFeedback{
		Success: success, Action: action, PID: pid, Name: name, Message: message,
	}))
}

func errMsg(err error) *string {
	if err == nil {
		return nil
	}
	m := err.Error()
	return &m
}
