// Package adminapi exposes the job store over HTTP, grounded on the
// teacher's internal/api server: a chi.Router, one Server struct holding
// its collaborators, JSON in/out handlers.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/d10n/quartznet/internal/jobstore"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/telemetry"
	"github.com/d10n/quartznet/internal/trigger"
)

// Server wires HTTP handlers for operating the scheduler.
type Server struct {
	store *jobstore.Store
}

// New constructs the admin API server.
func New(store *jobstore.Store) *Server {
	return &Server{store: store}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleStoreJob)
	r.Get("/jobs/{group}/{name}", s.handleGetJob)
	r.Delete("/jobs/{group}/{name}", s.handleRemoveJob)

	r.Post("/triggers", s.handleStoreTrigger)
	r.Get("/triggers/{group}/{name}", s.handleGetTrigger)
	r.Delete("/triggers/{group}/{name}", s.handleRemoveTrigger)
	r.Post("/triggers/{group}/{name}/pause", s.handlePauseTrigger)
	r.Post("/triggers/{group}/{name}/resume", s.handleResumeTrigger)

	r.Post("/jobs/{group}/{name}/pause", s.handlePauseJob)
	r.Post("/jobs/{group}/{name}/resume", s.handleResumeJob)

	r.Get("/stats", s.handleStats)
	return r
}

type storeJobRequest struct {
	Group                          string         `json:"group"`
	Name                           string         `json:"name"`
	ImplType                       string         `json:"implType"`
	JobData                        map[string]any `json:"jobData"`
	ConcurrentExecutionDisallowed  bool           `json:"concurrentExecutionDisallowed"`
	PersistJobDataAfterExecution   bool           `json:"persistJobDataAfterExecution"`
	Durable                        bool           `json:"durable"`
	RequestsRecovery               bool           `json:"requestsRecovery"`
	ReplaceExisting                bool           `json:"replaceExisting"`
}

func (s *Server) handleStoreJob(w http.ResponseWriter, r *http.Request) {
	var req storeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job := model.JobDetail{
		Key:                           s.store.JobKey(req.Name, req.Group),
		ImplType:                      req.ImplType,
		JobData:                       req.JobData,
		ConcurrentExecutionDisallowed: req.ConcurrentExecutionDisallowed,
		PersistJobDataAfterExecution:  req.PersistJobDataAfterExecution,
		Durable:                       req.Durable,
		RequestsRecovery:              req.RequestsRecovery,
	}
	if err := s.store.StoreJob(r.Context(), job, req.ReplaceExisting); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jk := s.jobKeyFromURL(r)
	job, err := s.store.RetrieveJob(r.Context(), jk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	jk := s.jobKeyFromURL(r)
	removed, err := s.store.RemoveJob(r.Context(), jk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type storeTriggerRequest struct {
	Group           string `json:"group"`
	Name            string `json:"name"`
	JobGroup        string `json:"jobGroup"`
	JobName         string `json:"jobName"`
	Priority        int    `json:"priority"`
	ReplaceExisting bool   `json:"replaceExisting"`

	ScheduleKind           string `json:"scheduleKind"`
	IntervalSeconds        int    `json:"intervalSeconds"`
	RepeatCount            int    `json:"repeatCount"`
	CronExpr               string `json:"cronExpr"`
}

func (s *Server) handleStoreTrigger(w http.ResponseWriter, r *http.Request) {
	var req storeTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	priority := req.Priority
	if priority == 0 {
		priority = model.DefaultPriority
	}

	var sch model.Schedule
	now := time.Now()
	switch req.ScheduleKind {
	case "cron":
		cronSch, err := trigger.NewCron(req.CronExpr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sch = cronSch
	default:
		sch = trigger.NewSimple(now, time.Duration(req.IntervalSeconds)*time.Second, req.RepeatCount)
	}

	t := model.Trigger{
		Key:      s.store.TriggerKey(req.Name, req.Group),
		JobKey:   s.store.JobKey(req.JobName, req.JobGroup),
		Priority: priority,
		State:    model.StateWaiting,
		Schedule: sch,
	}
	t.ComputeFirstFireTime(nil, now.Add(-time.Nanosecond))

	if err := s.store.StoreTrigger(r.Context(), t, nil, req.ReplaceExisting, model.StateWaiting, false, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	tk := s.triggerKeyFromURL(r)
	trg, err := s.store.RetrieveTrigger(r.Context(), tk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trg == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, trg)
}

func (s *Server) handleRemoveTrigger(w http.ResponseWriter, r *http.Request) {
	tk := s.triggerKeyFromURL(r)
	removed, err := s.store.RemoveTrigger(r.Context(), tk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseTrigger(w http.ResponseWriter, r *http.Request) {
	tk := s.triggerKeyFromURL(r)
	if err := s.store.PauseTrigger(r.Context(), tk); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResumeTrigger(w http.ResponseWriter, r *http.Request) {
	tk := s.triggerKeyFromURL(r)
	if err := s.store.ResumeTrigger(r.Context(), tk); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jk := s.jobKeyFromURL(r)
	if err := s.store.PauseJob(r.Context(), jk); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	jk := s.jobKeyFromURL(r)
	if err := s.store.ResumeJob(r.Context(), jk); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	Jobs      int `json:"jobs"`
	Triggers  int `json:"triggers"`
	Calendars int `json:"calendars"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.GetNumberOfJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	triggers, err := s.store.GetNumberOfTriggers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	cals, err := s.store.GetNumberOfCalendars(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Jobs: jobs, Triggers: triggers, Calendars: cals})
}

func (s *Server) jobKeyFromURL(r *http.Request) key.JobKey {
	return s.store.JobKey(chi.URLParam(r, "name"), chi.URLParam(r, "group"))
}

func (s *Server) triggerKeyFromURL(r *http.Request) key.TriggerKey {
	return s.store.TriggerKey(chi.URLParam(r, "name"), chi.URLParam(r, "group"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
