package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/internal/util"
	"github.com/teranos/briefing/variables"
)

func recurringJob() *Job {
	return &Job{
		ID:         NewJobID(),
		Name:       "Weekly ops",
		Content:    TemplateBinding("T1"),
		Schedule:   RecurringSchedule("0 9 * * 1", "Europe/Amsterdam"),
		Recipients: Recipients{To: []string{"ops@example.com"}},
		EmailTemplate: EmailTemplateBinding{
			TemplateID: "basic",
			Subject:    "{report_name} for {current_date}",
		},
		IsActive: true,
	}
}

func oneTimeJob() *Job {
	return &Job{
		ID:            NewJobID(),
		Name:          "Launch recap",
		Content:       ReportBinding("P1"),
		Schedule:      OneTimeSchedule("UTC"),
		Recipients:    Recipients{To: []string{"a@example.com"}},
		EmailTemplate: EmailTemplateBinding{TemplateID: "basic", Subject: "Recap"},
		IsActive:      true,
	}
}

func TestIDsArePrefixed(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewJobID(), "RJ_"))
	assert.True(t, strings.HasPrefix(NewExecutionID(), "EX_"))
	assert.NotEqual(t, NewJobID(), NewJobID())
}

func TestContentBindingInvariant(t *testing.T) {
	assert.NoError(t, ReportBinding("P1").Validate())
	assert.NoError(t, TemplateBinding("T1").Validate())

	assert.Error(t, ContentBinding{Kind: ContentReport}.Validate())
	assert.Error(t, ContentBinding{Kind: ContentReport, PresentationID: "P1", TemplateID: "T1"}.Validate())
	assert.Error(t, ContentBinding{Kind: ContentTemplate, PresentationID: "P1"}.Validate())
	assert.Error(t, ContentBinding{Kind: "slideshow", PresentationID: "P1"}.Validate())

	assert.Equal(t, "T1", TemplateBinding("T1").ContentID())
	assert.Equal(t, "P1", ReportBinding("P1").ContentID())
}

func TestCloneIsDeep(t *testing.T) {
	job := recurringJob()
	job.EmailTemplate.TemplateVariables = map[string]string{"team": "Ops"}
	job.CustomVariables = []CustomVariable{{Name: "x", Kind: variables.KindStatic, Value: "1"}}

	c := job.Clone()
	c.Recipients.To[0] = "changed@example.com"
	c.EmailTemplate.TemplateVariables["team"] = "Sales"
	*c.Schedule.CronExpression = "0 10 * * *"
	c.CustomVariables[0].Value = "2"

	assert.Equal(t, "ops@example.com", job.Recipients.To[0])
	assert.Equal(t, "Ops", job.EmailTemplate.TemplateVariables["team"])
	assert.Equal(t, "0 9 * * 1", *job.Schedule.CronExpression)
	assert.Equal(t, "1", job.CustomVariables[0].Value)
}

func TestRestRecurringActive(t *testing.T) {
	job := recurringJob()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday

	require.NoError(t, job.Rest(now))
	assert.Equal(t, StateScheduled, job.State)
	require.NotNil(t, job.NextExecution)
	// Monday 09:00 Amsterdam (CET, UTC+1) is 08:00 UTC
	assert.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), *job.NextExecution)
}

func TestRestRecurringInactive(t *testing.T) {
	job := recurringJob()
	job.IsActive = false
	require.NoError(t, job.Rest(time.Now()))
	assert.Equal(t, StatePaused, job.State)
	assert.Nil(t, job.NextExecution)
}

func TestRestOneTime(t *testing.T) {
	job := oneTimeJob()
	require.NoError(t, job.Rest(time.Now()))
	assert.Equal(t, StateDraft, job.State)
	assert.Nil(t, job.NextExecution)

	job.State = StateSent
	require.NoError(t, job.Rest(time.Now()))
	assert.Equal(t, StateSent, job.State)
}

func TestOneTimeRunsExactlyOnce(t *testing.T) {
	job := oneTimeJob()
	require.NoError(t, job.Rest(time.Now()))

	trigger := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	prior, err := job.Begin()
	require.NoError(t, err)
	assert.Equal(t, StateDraft, prior)
	assert.Equal(t, StateExecuting, job.State)

	require.NoError(t, job.Finish(prior, trigger, trigger.Add(time.Second), nil))
	assert.Equal(t, StateSent, job.State)
	assert.Equal(t, 1, job.ExecutionCount)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, trigger, *job.LastExecuted)
	assert.Nil(t, job.NextExecution)

	_, err = job.Begin()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTerminalState))
	assert.Equal(t, StateSent, job.State)
	assert.Equal(t, 1, job.ExecutionCount)
}

func TestOneTimeFailureIsTerminal(t *testing.T) {
	job := oneTimeJob()
	job.State = StateDraft

	prior, err := job.Begin()
	require.NoError(t, err)
	require.NoError(t, job.Finish(prior, time.Now(), time.Now(), errors.New("smtp: connection refused")))

	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, 1, job.ErrorCount)
	require.NotNil(t, job.LastError)
	assert.Contains(t, *job.LastError, "connection refused")

	err = job.CheckExecutable()
	assert.True(t, errors.Is(err, errors.ErrTerminalState))
}

func TestRecurringReturnsToScheduledRegardlessOfOutcome(t *testing.T) {
	job := recurringJob()
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, job.Rest(now.Add(-time.Hour)))

	prior, err := job.Begin()
	require.NoError(t, err)
	require.NoError(t, job.Finish(prior, now, now.Add(5*time.Second), errors.New("boom")))

	assert.Equal(t, StateScheduled, job.State)
	assert.Equal(t, 1, job.ErrorCount)
	require.NotNil(t, job.NextExecution)
	assert.Equal(t, time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC), *job.NextExecution)

	prior, err = job.Begin()
	require.NoError(t, err)
	require.NoError(t, job.Finish(prior, now, now.Add(5*time.Second), nil))
	assert.Equal(t, StateScheduled, job.State)
	assert.Nil(t, job.LastError)
	assert.Equal(t, 2, job.ExecutionCount)
	assert.Equal(t, 1, job.SuccessCount)
}

func TestManualRunOnPausedJobStaysPaused(t *testing.T) {
	job := recurringJob()
	job.IsActive = false
	require.NoError(t, job.Rest(time.Now()))

	prior, err := job.Begin()
	require.NoError(t, err)
	require.NoError(t, job.Finish(prior, time.Now(), time.Now(), nil))

	assert.Equal(t, StatePaused, job.State)
	assert.Nil(t, job.NextExecution)
	assert.Equal(t, 1, job.SuccessCount)
}

func TestBeginWhileExecutingConflicts(t *testing.T) {
	job := recurringJob()
	job.State = StateExecuting
	_, err := job.Begin()
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestPauseResumePreservesScheduleAndCounters(t *testing.T) {
	job := recurringJob()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, job.Rest(now))
	job.ExecutionCount, job.SuccessCount, job.ErrorCount = 5, 4, 1

	job.Pause()
	assert.False(t, job.IsActive)
	assert.Equal(t, StatePaused, job.State)
	assert.Nil(t, job.NextExecution)

	job.Pause()
	assert.Equal(t, StatePaused, job.State)

	require.NoError(t, job.Resume(now))
	assert.True(t, job.IsActive)
	assert.Equal(t, StateScheduled, job.State)
	require.NotNil(t, job.NextExecution)
	assert.Equal(t, "0 9 * * 1", *job.Schedule.CronExpression)
	assert.Equal(t, "Europe/Amsterdam", job.Schedule.Timezone)
	assert.Equal(t, 5, job.ExecutionCount)
	assert.Equal(t, 4, job.SuccessCount)
	assert.Equal(t, 1, job.ErrorCount)
}

func TestPauseOneTimeOnlyFlipsFlag(t *testing.T) {
	job := oneTimeJob()
	job.State = StateDraft
	job.Pause()
	assert.False(t, job.IsActive)
	assert.Equal(t, StateDraft, job.State)
}

func TestArchive(t *testing.T) {
	job := recurringJob()
	require.NoError(t, job.Rest(time.Now()))
	job.Archive()
	assert.Equal(t, StateArchived, job.State)
	assert.False(t, job.IsActive)
	assert.Nil(t, job.NextExecution)
	assert.True(t, errors.Is(job.CheckExecutable(), errors.ErrTerminalState))
}

func TestDuplicateResetsStats(t *testing.T) {
	job := recurringJob()
	job.Description = "Monday numbers"
	job.Recipients.CC = []string{"lead@example.com"}
	job.EmailTemplate.TemplateVariables = map[string]string{"team": "Ops"}
	job.CustomVariables = []CustomVariable{{Name: "region", Kind: variables.KindStatic, Value: "EMEA"}}
	require.NoError(t, job.Rest(time.Now()))
	job.ExecutionCount, job.SuccessCount, job.ErrorCount = 3, 2, 1
	job.LastExecuted = util.Ptr(time.Now())
	job.LastError = util.Ptr("boom")

	now := time.Now().UTC()
	dup := job.Duplicate(now)

	assert.NotEqual(t, job.ID, dup.ID)
	assert.Equal(t, job.Name, dup.Name)
	assert.Equal(t, job.Description, dup.Description)
	assert.Equal(t, job.Schedule.Kind, dup.Schedule.Kind)
	assert.Equal(t, job.Schedule.Timezone, dup.Schedule.Timezone)
	assert.Equal(t, job.Recipients, dup.Recipients)
	assert.Equal(t, job.EmailTemplate, dup.EmailTemplate)
	assert.Equal(t, job.CustomVariables, dup.CustomVariables)
	assert.Zero(t, dup.ExecutionCount)
	assert.Zero(t, dup.SuccessCount)
	assert.Zero(t, dup.ErrorCount)
	assert.Nil(t, dup.LastExecuted)
	assert.Nil(t, dup.NextExecution)
	assert.Nil(t, dup.LastError)
	assert.False(t, dup.IsActive)
	assert.Equal(t, StatePaused, dup.State)
	assert.Equal(t, job.Content, dup.Content)
	assert.Equal(t, *job.Schedule.CronExpression, *dup.Schedule.CronExpression)

	one := oneTimeJob()
	one.State = StateSent
	assert.Equal(t, StateDraft, one.Duplicate(now).State)

	// original untouched
	assert.Equal(t, 3, job.ExecutionCount)
	assert.Equal(t, "Weekly ops", job.Name)
}

func TestCheckEditable(t *testing.T) {
	one := oneTimeJob()
	require.NoError(t, one.Rest(time.Now()))
	assert.NoError(t, one.CheckEditable(), "a draft one-time job can be edited")

	for _, st := range []State{StateSent, StateFailed} {
		one.State = st
		err := one.CheckEditable()
		assert.True(t, errors.Is(err, errors.ErrTerminalState), st)
		assert.Contains(t, errors.GetAllHints(err), "duplicate the job to send it again")
	}

	rec := recurringJob()
	rec.State = StateFailed
	assert.NoError(t, rec.CheckEditable(), "recurring jobs stay editable after a failure")

	rec.State = StateExecuting
	assert.True(t, errors.Is(rec.CheckEditable(), errors.ErrConflict))

	rec.Archive()
	assert.True(t, errors.Is(rec.CheckEditable(), errors.ErrTerminalState))
}
