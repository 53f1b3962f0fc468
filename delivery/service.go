// Package delivery ties jobs, content, variables, rendering and mail
// together. Service is the single entry point for everything a user or
// the ticker can do to a scheduled report job.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/mail"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/refresh"
	"github.com/teranos/briefing/render"
	"github.com/teranos/briefing/variables"
)

// Deps are the collaborators a Service needs. Broadcaster and Now are
// optional.
type Deps struct {
	Jobs        *schedule.Store
	Executions  *schedule.ExecutionStore
	Content     *content.Store
	Resolver    *ContentResolver
	Variables   *variables.Resolver
	Renderer    *render.Renderer
	Mail        mail.Transport
	Broadcaster schedule.ExecutionBroadcaster
	Config      am.DeliveryConfig
	Now         func() time.Time
}

// Service implements the job operations.
type Service struct {
	jobs        *schedule.Store
	executions  *schedule.ExecutionStore
	content     *content.Store
	resolver    *ContentResolver
	variables   *variables.Resolver
	renderer    *render.Renderer
	mail        mail.Transport
	broadcaster schedule.ExecutionBroadcaster
	now         func() time.Time
	logger      *zap.SugaredLogger

	mu  sync.RWMutex
	cfg am.DeliveryConfig

	// one mutex per job id; a manual run and a tick never interleave
	locks sync.Map
}

// NewService checks deps and creates a Service.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Jobs == nil || d.Executions == nil:
		return nil, errors.New("delivery: job and execution stores are required")
	case d.Content == nil || d.Resolver == nil:
		return nil, errors.New("delivery: content store and resolver are required")
	case d.Variables == nil || d.Renderer == nil:
		return nil, errors.New("delivery: variable resolver and renderer are required")
	case d.Mail == nil:
		return nil, errors.New("delivery: mail transport is required")
	}
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		jobs:        d.Jobs,
		executions:  d.Executions,
		content:     d.Content,
		resolver:    d.Resolver,
		variables:   d.Variables,
		renderer:    d.Renderer,
		mail:        d.Mail,
		broadcaster: d.Broadcaster,
		now:         now,
		cfg:         d.Config,
		logger:      logger.ComponentLogger("delivery"),
	}, nil
}

// UpdateConfig swaps the delivery settings; called on config reload.
func (s *Service) UpdateConfig(cfg am.DeliveryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Config returns the current delivery settings.
func (s *Service) Config() am.DeliveryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetBroadcaster attaches a listener for execution events.
func (s *Service) SetBroadcaster(b schedule.ExecutionBroadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

func (s *Service) lock(jobID string) func() {
	v, _ := s.locks.LoadOrStore(jobID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// JobConfig is what a caller supplies to create a job.
type JobConfig struct {
	Name            string                        `json:"name" yaml:"name"`
	Description     string                        `json:"description,omitempty" yaml:"description,omitempty"`
	Content         schedule.ContentBinding       `json:"content" yaml:"content"`
	Schedule        schedule.Schedule             `json:"schedule" yaml:"schedule"`
	Recipients      schedule.Recipients           `json:"recipients" yaml:"recipients"`
	EmailTemplate   schedule.EmailTemplateBinding `json:"email_template" yaml:"email_template"`
	CustomVariables []schedule.CustomVariable     `json:"custom_variables,omitempty" yaml:"custom_variables,omitempty"`
	IsActive        *bool                         `json:"is_active,omitempty" yaml:"is_active,omitempty"` // nil = true
}

// ConfigOf returns the caller-supplied part of job, suitable for export
// and re-import.
func ConfigOf(job *schedule.Job) JobConfig {
	active := job.IsActive
	c := job.Clone()
	return JobConfig{
		Name:            c.Name,
		Description:     c.Description,
		Content:         c.Content,
		Schedule:        c.Schedule,
		Recipients:      c.Recipients,
		EmailTemplate:   c.EmailTemplate,
		CustomVariables: c.CustomVariables,
		IsActive:        &active,
	}
}

// JobPatch changes the fields that are set and leaves the rest alone.
type JobPatch struct {
	Name            *string                        `json:"name,omitempty"`
	Description     *string                        `json:"description,omitempty"`
	Content         *schedule.ContentBinding       `json:"content,omitempty"`
	Schedule        *schedule.Schedule             `json:"schedule,omitempty"`
	Recipients      *schedule.Recipients           `json:"recipients,omitempty"`
	EmailTemplate   *schedule.EmailTemplateBinding `json:"email_template,omitempty"`
	CustomVariables *[]schedule.CustomVariable     `json:"custom_variables,omitempty"`
	IsActive        *bool                          `json:"is_active,omitempty"`
}

func (p JobPatch) apply(j *schedule.Job) {
	if p.Name != nil {
		j.Name = *p.Name
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.Content != nil {
		j.Content = *p.Content
	}
	if p.Schedule != nil {
		j.Schedule = *p.Schedule
	}
	if p.Recipients != nil {
		j.Recipients = *p.Recipients
	}
	if p.EmailTemplate != nil {
		j.EmailTemplate = *p.EmailTemplate
	}
	if p.CustomVariables != nil {
		j.CustomVariables = *p.CustomVariables
	}
	if p.IsActive != nil {
		j.IsActive = *p.IsActive
	}
}

// CreateJob validates cfg and stores a new job. A recurring active job is
// scheduled immediately; a one-time job waits in draft for ExecuteNow.
func (s *Service) CreateJob(ctx context.Context, cfg JobConfig) (*schedule.Job, error) {
	now := s.now()
	job := &schedule.Job{
		ID:              schedule.NewJobID(),
		Name:            strings.TrimSpace(cfg.Name),
		Description:     cfg.Description,
		Content:         cfg.Content,
		Schedule:        cfg.Schedule,
		Recipients:      cfg.Recipients,
		EmailTemplate:   cfg.EmailTemplate,
		CustomVariables: cfg.CustomVariables,
		IsActive:        cfg.IsActive == nil || *cfg.IsActive,
		State:           schedule.StateDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if job.Schedule.Timezone == "" {
		job.Schedule.Timezone = s.Config().DefaultTimezone
	}
	if job.CustomVariables == nil {
		job.CustomVariables = []schedule.CustomVariable{}
	}

	if err := s.validate(ctx, job); err != nil {
		return nil, err
	}
	if err := job.Rest(now); err != nil {
		return nil, err
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Infow("Job created",
		logger.FieldJobID, job.ID,
		"name", job.Name,
		logger.FieldState, job.State,
		logger.FieldNextRun, job.NextExecution)
	return job, nil
}

// UpdateJob applies patch to a job and revalidates it. Archived jobs and
// one-time jobs that already ran are read-only; a job cannot be edited while
// it executes.
func (s *Service) UpdateJob(ctx context.Context, id string, patch JobPatch) (*schedule.Job, error) {
	unlock := s.lock(id)
	defer unlock()

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.CheckEditable(); err != nil {
		return nil, err
	}

	patch.apply(job)
	if job.CustomVariables == nil {
		job.CustomVariables = []schedule.CustomVariable{}
	}
	if err := s.validate(ctx, job); err != nil {
		return nil, err
	}

	now := s.now()
	if err := job.Rest(now); err != nil {
		return nil, err
	}
	job.UpdatedAt = now
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ToggleActive pauses or resumes a job. Pausing clears the next execution
// and leaves counters, cron expression and timezone untouched.
func (s *Service) ToggleActive(ctx context.Context, id string, active bool) (*schedule.Job, error) {
	unlock := s.lock(id)
	defer unlock()

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State == schedule.StateArchived {
		return nil, errors.Mark(errors.Newf("job %s is archived", id), errors.ErrTerminalState)
	}

	now := s.now()
	if active {
		if err := job.Resume(now); err != nil {
			return nil, err
		}
	} else {
		job.Pause()
	}
	job.UpdatedAt = now
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Infow("Job active flag changed",
		logger.FieldJobID, id,
		"active", active,
		logger.FieldState, job.State)
	return job, nil
}

// DuplicateJob stores an inactive copy of a job with fresh statistics.
func (s *Service) DuplicateJob(ctx context.Context, id string) (*schedule.Job, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	dup := job.Duplicate(s.now())
	if err := s.jobs.CreateJob(ctx, dup); err != nil {
		return nil, err
	}
	s.logger.Infow("Job duplicated", logger.FieldJobID, id, "copy_id", dup.ID)
	return dup, nil
}

// ArchiveJob soft-removes a job. Its execution history is kept.
func (s *Service) ArchiveJob(ctx context.Context, id string) (*schedule.Job, error) {
	unlock := s.lock(id)
	defer unlock()

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State == schedule.StateExecuting {
		return nil, errors.Mark(errors.Newf("job %s is executing", id), errors.ErrConflict)
	}
	job.Archive()
	job.UpdatedAt = s.now()
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob loads one job.
func (s *Service) GetJob(ctx context.Context, id string) (*schedule.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// ListJobs lists jobs matching f.
func (s *Service) ListJobs(ctx context.Context, f schedule.ListFilter) ([]*schedule.Job, error) {
	return s.jobs.ListJobs(ctx, f)
}

// ListExecutions returns a page of a job's execution history, newest first,
// and the total count.
func (s *Service) ListExecutions(ctx context.Context, jobID string, limit, offset int, status schedule.ExecutionStatus) ([]*schedule.Execution, int, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, 0, err
	}
	return s.executions.ListExecutions(ctx, jobID, limit, offset, status)
}

// RefreshPresentation refreshes a presentation's data-bound elements on
// demand. It is the same operation a template delivery runs before render.
func (s *Service) RefreshPresentation(ctx context.Context, presentationID string) (*refresh.Report, error) {
	return s.resolver.Refresh(ctx, presentationID)
}

// Recover closes out work left behind by a previous process: running
// execution records become failed and executing jobs are finished as
// failures.
func (s *Service) Recover(ctx context.Context) (executions int, jobs int, err error) {
	now := s.now()
	executions, err = s.executions.FailRunning(ctx, now, schedule.ErrInterrupted.Error())
	if err != nil {
		return 0, 0, err
	}
	jobs, err = s.jobs.RecoverInterrupted(ctx, now)
	if err != nil {
		return executions, 0, err
	}
	if executions > 0 || jobs > 0 {
		s.logger.Warnw("Recovered interrupted executions",
			"executions", executions,
			"jobs", jobs)
	}
	return executions, jobs, nil
}

// Warnings returns non-fatal configuration warnings for a job.
func (s *Service) Warnings(job *schedule.Job) []string {
	warnings, _ := schedule.Validate(job)
	return warnings
}

// validate runs the static checks plus the ones that need the renderer
// and the content store, reporting every problem at once.
func (s *Service) validate(ctx context.Context, job *schedule.Job) error {
	_, err := schedule.Validate(job)
	verr := &schedule.ValidationError{}
	if err != nil && !errors.As(err, &verr) {
		return err
	}

	if id := job.EmailTemplate.TemplateID; id != "" && !s.renderer.Has(id) {
		verr.Problems = append(verr.Problems, schedule.FieldError{
			Field:   "email_template.template_id",
			Message: fmt.Sprintf("unknown email template %q (have %s)", id, strings.Join(s.renderer.Skeletons(), ", ")),
		})
	}

	if job.Content.Validate() == nil {
		var cerr error
		if job.Content.Kind == schedule.ContentTemplate {
			_, cerr = s.content.GetTemplate(ctx, job.Content.TemplateID)
		} else {
			_, cerr = s.content.GetPresentation(ctx, job.Content.PresentationID)
		}
		switch {
		case errors.Is(cerr, errors.ErrContentNotFound):
			verr.Problems = append(verr.Problems, schedule.FieldError{
				Field:   "content",
				Message: fmt.Sprintf("%s %s does not exist", job.Content.Kind, job.Content.ContentID()),
			})
		case cerr != nil:
			return cerr
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// dashboardURL links to the delivered content in the web app.
func dashboardURL(base, contentID string) string {
	if base == "" || contentID == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/presentations/" + contentID
}
