package schedule

import "time"

// Execution is one attempt to deliver a job. Records are append-only
// history; the job's counters aggregate them.
type Execution struct {
	// Identity
	ID      string  `json:"id"` // EX_{uuid}
	JobID   string  `json:"job_id"`
	Trigger Trigger `json:"trigger"`

	Status ExecutionStatus `json:"status"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"` // nil while running
	DurationMs  *int64     `json:"duration_ms,omitempty"`

	// Outcome
	MessageID        *string  `json:"message_id,omitempty"`
	ErrorMessage     *string  `json:"error_message,omitempty"`
	RefreshedCount   int      `json:"refreshed_count"`
	FailedElementIDs []string `json:"failed_element_ids"`

	CreatedAt time.Time `json:"created_at"`
}

// Trigger records what started an execution.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// ExecutionStatus is the state of one execution record.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSent    ExecutionStatus = "sent"
	ExecutionFailed  ExecutionStatus = "failed"
)

// NewExecution starts a running execution record for jobID.
func NewExecution(jobID string, trigger Trigger, startedAt time.Time) *Execution {
	return &Execution{
		ID:               NewExecutionID(),
		JobID:            jobID,
		Trigger:          trigger,
		Status:           ExecutionRunning,
		StartedAt:        startedAt,
		FailedElementIDs: []string{},
		CreatedAt:        startedAt,
	}
}

// Complete closes the record. cause is nil on success.
func (e *Execution) Complete(now time.Time, messageID string, cause error) {
	done := now
	e.CompletedAt = &done
	ms := now.Sub(e.StartedAt).Milliseconds()
	e.DurationMs = &ms
	if cause != nil {
		e.Status = ExecutionFailed
		msg := cause.Error()
		e.ErrorMessage = &msg
		return
	}
	e.Status = ExecutionSent
	if messageID != "" {
		e.MessageID = &messageID
	}
}
