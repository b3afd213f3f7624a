package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-scheduler/db"
	"github.com/thatsimonsguy/climate-scheduler/internal/model"
	"github.com/thatsimonsguy/climate-scheduler/internal/scheduler"
)

const defaultHistoryLimit = 50

type Server struct {
	controllers map[string]*scheduler.Controller
	history     *sql.DB
}

type DeviceResponse struct {
	ID                 string         `json:"id"`
	ActivePreset       string         `json:"active_preset"`
	TargetTemperature  *float64       `json:"target_temperature"`
	Mode               model.HVACMode `json:"hvac_mode"`
	ScheduleEnabled    bool           `json:"schedule_enabled"`
	NextTransitionTime string         `json:"next_transition_time,omitempty"`
	NextPreset         string         `json:"next_preset,omitempty"`
	NextTemperature    *float64       `json:"next_temperature,omitempty"`
}

type PresetRequest struct {
	Preset string `json:"preset"`
}

type TemperatureRequest struct {
	Temperature float64 `json:"temperature"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type ScheduleEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(controllers map[string]*scheduler.Controller, history *sql.DB) *Server {
	return &Server{
		controllers: controllers,
		history:     history,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", s.listDevices)
		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/", s.getDevice)
			r.Put("/preset", s.setPreset)
			r.Put("/temperature", s.setTemperature)
			r.Put("/mode", s.setMode)
			r.Put("/schedule", s.setScheduleEnabled)
			r.Get("/history", s.getHistory)
		})
	})

	return r
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Routes())
}

func (s *Server) controller(w http.ResponseWriter, r *http.Request) *scheduler.Controller {
	id := chi.URLParam(r, "deviceID")
	ctrl, ok := s.controllers[id]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown device %q", id))
		return nil
	}
	return ctrl
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(s.controllers))
	for id := range s.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}

	snap := ctrl.Snapshot()
	resp := DeviceResponse{
		ID:                ctrl.DeviceID(),
		ActivePreset:      snap.ActivePreset,
		TargetTemperature: snap.TargetTemperature,
		Mode:              snap.Mode,
		ScheduleEnabled:   ctrl.ScheduleEnabled(),
	}
	if slot, ok := ctrl.NextTransition(); ok {
		resp.NextTransitionTime = slot.Time.String()
		resp.NextPreset = slot.Preset
	}
	if temp, ok := ctrl.NextTemperature(); ok {
		resp.NextTemperature = &temp
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setPreset(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}

	var req PresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ctrl.SetPresetMode(req.Preset); err != nil {
		if errors.Is(err, scheduler.ErrInvalidPreset) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) setTemperature(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}

	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl.SetTemperature(req.Temperature)
	s.writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ctrl.SetHVACMode(model.HVACMode(req.Mode)); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) setScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}

	var req ScheduleEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl.SetScheduleEnabled(req.Enabled)
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if ctrl == nil {
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "transition history not available")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	transitions, err := db.GetRecentTransitions(s.history, ctrl.DeviceID(), limit)
	if err != nil {
		log.Error().Err(err).Str("device", ctrl.DeviceID()).Msg("Failed to query transition history")
		s.writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if transitions == nil {
		transitions = []db.Transition{}
	}

	s.writeJSON(w, http.StatusOK, transitions)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
