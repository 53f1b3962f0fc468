package delivery

import (
	"context"
	"time"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/mail"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/refresh"
	"github.com/teranos/briefing/render"
	"github.com/teranos/briefing/variables"
)

// ExecutionOutcome is the result of one execution. A failed delivery is an
// outcome, not an error: Status is failed and Error says why.
type ExecutionOutcome struct {
	JobID            string                   `json:"job_id"`
	ExecutionID      string                   `json:"execution_id"`
	Status           schedule.ExecutionStatus `json:"status"`
	MessageID        string                   `json:"message_id,omitempty"`
	Error            string                   `json:"error,omitempty"`
	RefreshedCount   int                      `json:"refreshed_count"`
	FailedElementIDs []string                 `json:"failed_element_ids"`
	Job              *schedule.Job            `json:"job"`
}

// ExecuteNow runs a job immediately. A one-time job that already ran is
// rejected with errors.ErrTerminalState. The run is detached from ctx's
// cancellation; once started it finishes.
func (s *Service) ExecuteNow(ctx context.Context, id string) (*ExecutionOutcome, error) {
	unlock := s.lock(id)
	defer unlock()

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job, schedule.TriggerManual, s.now())
}

// ExecuteScheduled runs a job the ticker found due. If the job stopped
// being due while waiting for its lock (paused, edited or already run) it
// is skipped and (nil, nil) is returned.
func (s *Service) ExecuteScheduled(ctx context.Context, jobID string, triggeredAt time.Time) (*schedule.Execution, error) {
	unlock := s.lock(jobID)
	defer unlock()

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsActive || job.State != schedule.StateScheduled ||
		job.NextExecution == nil || job.NextExecution.After(triggeredAt) {
		s.logger.Debugw("Job no longer due, skipping",
			logger.FieldJobID, jobID,
			logger.FieldState, job.State)
		return nil, nil
	}

	out, err := s.run(ctx, job, schedule.TriggerScheduled, triggeredAt)
	if err != nil {
		return nil, err
	}
	return s.executions.GetExecution(ctx, out.ExecutionID)
}

// run drives one execution. The caller holds the job's lock.
func (s *Service) run(ctx context.Context, job *schedule.Job, trigger schedule.Trigger, triggeredAt time.Time) (*ExecutionOutcome, error) {
	ctx = context.WithoutCancel(ctx)

	prior, err := job.Begin()
	if err != nil {
		return nil, err
	}
	start := s.now()
	job.UpdatedAt = start
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	exec := schedule.NewExecution(job.ID, trigger, start)
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		job.State = prior
		if rerr := s.jobs.UpdateJob(ctx, job); rerr != nil {
			err = errors.WithSecondaryError(err, rerr)
		}
		return nil, err
	}

	ctx = logger.WithExecutionID(logger.WithJobID(ctx, job.ID), exec.ID)
	log := logger.AddMailSymbol(logger.LoggerFromContext(ctx))
	log.Infow("Execution started",
		logger.FieldTrigger, trigger,
		"name", job.Name,
		logger.FieldRecipients, job.Recipients.Count())
	s.broadcastStarted(job, exec)

	messageID, report, cause := s.deliver(ctx, job)

	now := s.now()
	exec.Complete(now, messageID, cause)
	if report != nil {
		exec.RefreshedCount = report.RefreshedCount
		exec.FailedElementIDs = append([]string{}, report.FailedElementIDs...)
	}

	if err := job.Finish(prior, triggeredAt, now, cause); err != nil {
		// only reachable if the stored cron stopped parsing
		log.Errorw("Could not compute next execution, pausing job", logger.FieldError, err)
		job.IsActive = false
		job.State = schedule.StatePaused
		job.NextExecution = nil
	}
	job.UpdatedAt = now

	var persistErr error
	if err := s.executions.UpdateExecution(ctx, exec); err != nil {
		persistErr = err
	}
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		persistErr = errors.CombineErrors(persistErr, err)
	}
	if persistErr != nil {
		log.Errorw("Failed to record execution outcome", logger.FieldError, persistErr)
		return nil, persistErr
	}

	if cause != nil {
		log.Warnw("Execution failed",
			logger.FieldStatus, exec.Status,
			logger.FieldDurationMS, *exec.DurationMs,
			logger.FieldError, cause)
	} else {
		log.Infow("Execution sent",
			logger.FieldStatus, exec.Status,
			logger.FieldMessageID, messageID,
			logger.FieldDurationMS, *exec.DurationMs)
	}
	s.broadcastCompleted(job, exec)

	out := &ExecutionOutcome{
		JobID:            job.ID,
		ExecutionID:      exec.ID,
		Status:           exec.Status,
		MessageID:        messageID,
		RefreshedCount:   exec.RefreshedCount,
		FailedElementIDs: exec.FailedElementIDs,
		Job:              job,
	}
	if cause != nil {
		out.Error = cause.Error()
	}
	return out, nil
}

// deliver resolves content, renders and sends. Refresh and query-variable
// failures degrade the email; content and transport failures fail it.
func (s *Service) deliver(ctx context.Context, job *schedule.Job) (string, *refresh.Report, error) {
	resolved, err := s.resolver.Resolve(ctx, job.Content)
	if err != nil {
		return "", nil, err
	}

	subject, body, _, err := s.compose(ctx, job, resolved, nil)
	if err != nil {
		return "", resolved.Refresh, err
	}

	messageID, err := s.mail.Send(ctx, mail.Message{
		To:      job.Recipients.To,
		CC:      job.Recipients.CC,
		BCC:     job.Recipients.BCC,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return "", resolved.Refresh, err
	}
	return messageID, resolved.Refresh, nil
}

// compose builds the variable map and renders subject and body.
func (s *Service) compose(ctx context.Context, job *schedule.Job, resolved *ResolvedContent, overrides map[string]string) (subject, body string, vars map[string]string, err error) {
	loc, err := job.Schedule.Location()
	if err != nil {
		return "", "", nil, errors.Mark(err, errors.ErrValidation)
	}

	slides := resolved.Slides
	vars = s.variables.Build(ctx, variables.Input{
		System: variables.SystemContext{
			ReportName:   job.Name,
			DashboardURL: dashboardURL(s.Config().DashboardBaseURL, job.Content.ContentID()),
			Metrics:      render.Metrics(slides),
			Now:          s.now(),
			Location:     loc,
		},
		Template:  job.EmailTemplate.TemplateVariables,
		Custom:    job.CustomVariables,
		Overrides: overrides,
	})

	subject = variables.Resolve(variables.NormalizeLegacy(job.EmailTemplate.Subject), vars)
	body, err = s.renderer.Render(render.Document{
		SkeletonID:    job.EmailTemplate.TemplateID,
		CustomContent: job.EmailTemplate.CustomContent,
		Slides:        slides,
		Vars:          vars,
	})
	if err != nil {
		return "", "", nil, err
	}
	return subject, body, vars, nil
}

func (s *Service) broadcastStarted(job *schedule.Job, exec *schedule.Execution) {
	if b := s.listener(); b != nil {
		b.BroadcastExecutionStarted(job.Clone(), exec)
	}
}

func (s *Service) broadcastCompleted(job *schedule.Job, exec *schedule.Execution) {
	if b := s.listener(); b != nil {
		b.BroadcastExecutionCompleted(job.Clone(), exec)
	}
}

func (s *Service) listener() schedule.ExecutionBroadcaster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcaster
}
