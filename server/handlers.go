package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/teranos/briefing/delivery"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/pulse/schedule"
)

// JobResponse is a job plus its non-fatal configuration warnings.
type JobResponse struct {
	Job      *schedule.Job `json:"job"`
	Warnings []string      `json:"warnings"`
}

// ListJobsResponse is returned by GET /api/jobs
type ListJobsResponse struct {
	Jobs  []*schedule.Job `json:"jobs"`
	Count int             `json:"count"`
}

// ListExecutionsResponse is returned by GET /api/jobs/{id}/executions
type ListExecutionsResponse struct {
	Executions []*schedule.Execution `json:"executions"`
	Count      int                   `json:"count"`
	Total      int                   `json:"total"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	HasMore    bool                  `json:"has_more"`
}

// ToggleActiveRequest is the body of PUT /api/jobs/{id}/active
type ToggleActiveRequest struct {
	Active bool `json:"active"`
}

// PreviewRequest is the body of POST /api/jobs/{id}/preview
type PreviewRequest struct {
	Overrides map[string]string `json:"overrides"`
}

// BuildCronRequest is the body of POST /api/schedule/cron
type BuildCronRequest struct {
	Frequency  schedule.Frequency `json:"frequency"`
	Time       string             `json:"time"`
	Weekday    string             `json:"weekday,omitempty"`
	DayOfMonth int                `json:"day_of_month,omitempty"`
	Timezone   string             `json:"timezone,omitempty"`
}

// BuildCronResponse carries the expression and its next few fire times.
type BuildCronResponse struct {
	CronExpression string      `json:"cron_expression"`
	NextRuns       []time.Time `json:"next_runs"`
}

// HandleListJobs lists jobs. Query: state, active, limit, offset.
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	f := schedule.ListFilter{State: schedule.State(r.URL.Query().Get("state"))}
	if f.State != "" && !f.State.Valid() {
		writeError(w, http.StatusBadRequest, "unknown state "+strconv.Quote(string(f.State)))
		return
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		f.Active = &active
	}
	var err error
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeWrappedError(w, s.logger, err, "invalid limit")
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeWrappedError(w, s.logger, err, "invalid offset")
		return
	}

	jobs, err := s.svc.ListJobs(r.Context(), f)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*schedule.Job{}
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleCreateJob creates a job from a delivery.JobConfig body.
func (s *Server) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	var cfg delivery.JobConfig
	if !readJSON(w, r, &cfg) {
		return
	}
	job, err := s.svc.CreateJob(r.Context(), cfg)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to create job")
		return
	}
	logger.AddPulseSymbol(s.logger).Infow("Job created via API",
		logger.FieldJobID, job.ID,
		logger.FieldState, job.State)
	writeJSON(w, http.StatusCreated, s.jobResponse(job))
}

// HandleGetJob returns one job.
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, s.jobResponse(job))
}

// HandleUpdateJob applies a delivery.JobPatch body.
func (s *Server) HandleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var patch delivery.JobPatch
	if !readJSON(w, r, &patch) {
		return
	}
	job, err := s.svc.UpdateJob(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to update job")
		return
	}
	writeJSON(w, http.StatusOK, s.jobResponse(job))
}

// HandleArchiveJob soft-removes a job.
func (s *Server) HandleArchiveJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.ArchiveJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to archive job")
		return
	}
	writeJSON(w, http.StatusOK, s.jobResponse(job))
}

// HandleExecuteJob runs a job now and returns the outcome. A failed
// delivery is still a 200; the outcome's status says what happened.
func (s *Server) HandleExecuteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger.AddMailSymbol(s.logger).Infow("Execute now requested", logger.FieldJobID, id)

	out, err := s.svc.ExecuteNow(r.Context(), id)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to execute job")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleToggleActive pauses or resumes a job.
func (s *Server) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	var req ToggleActiveRequest
	if !readJSON(w, r, &req) {
		return
	}
	job, err := s.svc.ToggleActive(r.Context(), r.PathValue("id"), req.Active)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to toggle job")
		return
	}
	writeJSON(w, http.StatusOK, s.jobResponse(job))
}

// HandleDuplicateJob copies a job.
func (s *Server) HandleDuplicateJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.DuplicateJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to duplicate job")
		return
	}
	writeJSON(w, http.StatusCreated, s.jobResponse(job))
}

// HandlePreview renders a job with optional overrides, without sending.
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := s.svc.PreviewVariables(r.Context(), r.PathValue("id"), req.Overrides)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to preview job")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListExecutions pages through a job's execution history.
// Query: limit (default 50, max 100), offset, status.
func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeWrappedError(w, s.logger, err, "invalid limit")
		return
	}
	if limit == 0 || limit > 100 {
		limit = 50
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeWrappedError(w, s.logger, err, "invalid offset")
		return
	}
	status := schedule.ExecutionStatus(r.URL.Query().Get("status"))

	execs, total, err := s.svc.ListExecutions(r.Context(), r.PathValue("id"), limit, offset, status)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*schedule.Execution{}
	}
	writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: execs,
		Count:      len(execs),
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    offset+len(execs) < total,
	})
}

// HandleRefreshPresentation refreshes a presentation's data-bound elements.
func (s *Server) HandleRefreshPresentation(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RefreshPresentation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to refresh presentation")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleBuildCron turns a UI frequency choice into a cron expression.
func (s *Server) HandleBuildCron(w http.ResponseWriter, r *http.Request) {
	var req BuildCronRequest
	if !readJSON(w, r, &req) {
		return
	}

	weekday := time.Monday
	if req.Weekday != "" {
		d, err := schedule.ParseWeekday(req.Weekday)
		if err != nil {
			writeWrappedError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "invalid weekday")
			return
		}
		weekday = d
	}

	expr, err := schedule.BuildCron(req.Frequency, req.Time, weekday, req.DayOfMonth)
	if err != nil {
		writeWrappedError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "invalid schedule")
		return
	}

	tz := req.Timezone
	if tz == "" {
		tz = s.svc.Config().DefaultTimezone
	}
	sched := schedule.RecurringSchedule(expr, tz)
	resp := BuildCronResponse{CronExpression: expr, NextRuns: []time.Time{}}
	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		next, err := sched.Next(at)
		if err != nil {
			writeWrappedError(w, s.logger, errors.Mark(err, errors.ErrInvalidRequest), "invalid timezone")
			return
		}
		resp.NextRuns = append(resp.NextRuns, next)
		at = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth reports liveness and ticker statistics.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"ws_clients": s.hub.ClientCount(),
	}
	if s.ticker != nil {
		resp["ticker"] = s.ticker.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) jobResponse(job *schedule.Job) JobResponse {
	warnings := s.svc.Warnings(job)
	if warnings == nil {
		warnings = []string{}
	}
	return JobResponse{Job: job, Warnings: warnings}
}
