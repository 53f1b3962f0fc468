package schedule

import (
	"time"

	"github.com/teranos/briefing/errors"
)

// Rest recomputes the job's resting state and next execution from IsActive
// and the schedule. Terminal one-time jobs and archived jobs keep their state.
func (j *Job) Rest(now time.Time) error {
	if j.State == StateArchived {
		j.NextExecution = nil
		return nil
	}

	if !j.Schedule.Recurring() {
		j.NextExecution = nil
		switch j.State {
		case StateSent, StateFailed, StateDraft:
		default:
			j.State = StateDraft
		}
		return nil
	}

	if !j.IsActive {
		j.State = StatePaused
		j.NextExecution = nil
		return nil
	}

	next, err := j.Schedule.Next(now)
	if err != nil {
		return err
	}
	j.State = StateScheduled
	j.NextExecution = &next
	return nil
}

// CheckExecutable returns an error when the job may not start an execution.
func (j *Job) CheckExecutable() error {
	switch {
	case j.State == StateArchived:
		return errors.Mark(errors.Newf("job %s is archived", j.ID), errors.ErrTerminalState)
	case j.State == StateExecuting:
		return errors.Mark(errors.Newf("job %s is already executing", j.ID), errors.ErrConflict)
	case !j.Schedule.Recurring() && (j.State == StateSent || j.State == StateFailed):
		err := errors.Mark(errors.Newf("one-time job %s already ran (%s)", j.ID, j.State), errors.ErrTerminalState)
		return errors.WithHint(err, "duplicate the job to send it again")
	}
	return nil
}

// CheckEditable returns an error when the job's configuration may not change.
// A one-time job that already ran stays as it was sent.
func (j *Job) CheckEditable() error {
	switch {
	case j.State == StateArchived:
		return errors.Mark(errors.Newf("job %s is archived", j.ID), errors.ErrTerminalState)
	case j.State == StateExecuting:
		return errors.Mark(errors.Newf("job %s is executing", j.ID), errors.ErrConflict)
	case !j.Schedule.Recurring() && (j.State == StateSent || j.State == StateFailed):
		err := errors.Mark(errors.Newf("one-time job %s already ran (%s)", j.ID, j.State), errors.ErrTerminalState)
		return errors.WithHint(err, "duplicate the job to send it again")
	}
	return nil
}

// Begin moves the job into executing and returns the state it left, which
// Finish needs to return a recurring job to where it was.
func (j *Job) Begin() (State, error) {
	if err := j.CheckExecutable(); err != nil {
		return j.State, err
	}
	prior := j.State
	j.State = StateExecuting
	return prior, nil
}

// Finish records the outcome of the execution started by Begin. cause is nil
// on success. Recurring jobs return to their prior resting state; a scheduled
// job gets its next execution recomputed regardless of outcome.
func (j *Job) Finish(prior State, triggeredAt, now time.Time, cause error) error {
	at := triggeredAt
	j.LastExecuted = &at
	j.ExecutionCount++
	if cause == nil {
		j.SuccessCount++
		j.LastError = nil
	} else {
		j.ErrorCount++
		msg := cause.Error()
		j.LastError = &msg
	}

	if !j.Schedule.Recurring() {
		j.NextExecution = nil
		if cause == nil {
			j.State = StateSent
		} else {
			j.State = StateFailed
		}
		return nil
	}

	if prior == StateDraft {
		j.State = StateDraft
		return nil
	}
	return j.Rest(now)
}

// Pause deactivates the job. Only recurring jobs change state; counters,
// cron expression and timezone are untouched. Pausing twice is a no-op.
func (j *Job) Pause() {
	j.IsActive = false
	if !j.Schedule.Recurring() {
		return
	}
	if j.State == StateScheduled || j.State == StateDraft {
		j.State = StatePaused
	}
	j.NextExecution = nil
}

// Resume reactivates the job and recomputes its next execution.
func (j *Job) Resume(now time.Time) error {
	j.IsActive = true
	if !j.Schedule.Recurring() || j.State == StateArchived || j.State == StateExecuting {
		return nil
	}
	return j.Rest(now)
}

// Archive soft-removes the job; its execution history stays.
func (j *Job) Archive() {
	j.IsActive = false
	j.State = StateArchived
	j.NextExecution = nil
}

// Duplicate returns a copy of the job with a new id, identical configuration,
// statistics cleared and the copy left inactive.
func (j *Job) Duplicate(now time.Time) *Job {
	c := j.Clone()
	c.ID = NewJobID()
	c.IsActive = false
	c.ExecutionCount = 0
	c.SuccessCount = 0
	c.ErrorCount = 0
	c.LastExecuted = nil
	c.NextExecution = nil
	c.LastError = nil
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Schedule.Recurring() {
		c.State = StatePaused
	} else {
		c.State = StateDraft
	}
	return c
}
