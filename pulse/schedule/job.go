// Package schedule holds scheduled report jobs: the job aggregate, its
// lifecycle state machine, execution history and the ticker that fires
// recurring jobs when they fall due.
package schedule

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/variables"
)

// Job is a configured report or template delivery.
type Job struct {
	ID              string               `json:"id" yaml:"id"`
	Name            string               `json:"name" yaml:"name"`
	Description     string               `json:"description,omitempty" yaml:"description,omitempty"`
	Content         ContentBinding       `json:"content" yaml:"content"`
	Schedule        Schedule             `json:"schedule" yaml:"schedule"`
	Recipients      Recipients           `json:"recipients" yaml:"recipients"`
	EmailTemplate   EmailTemplateBinding `json:"email_template" yaml:"email_template"`
	CustomVariables []CustomVariable     `json:"custom_variables" yaml:"custom_variables"`
	IsActive        bool                 `json:"is_active" yaml:"is_active"`
	State           State                `json:"state" yaml:"state"`

	ExecutionCount int        `json:"execution_count" yaml:"execution_count"`
	SuccessCount   int        `json:"success_count" yaml:"success_count"`
	ErrorCount     int        `json:"error_count" yaml:"error_count"`
	LastExecuted   *time.Time `json:"last_executed,omitempty" yaml:"last_executed,omitempty"`
	NextExecution  *time.Time `json:"next_execution,omitempty" yaml:"next_execution,omitempty"`
	LastError      *string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// CustomVariable is an author-defined variable resolved at render time.
type CustomVariable = variables.Custom

// ContentKind selects what a job delivers.
type ContentKind string

const (
	ContentReport   ContentKind = "report"   // a static presentation, sent as-is
	ContentTemplate ContentKind = "template" // a template whose data-bound elements refresh first
)

// ContentBinding points a job at exactly one presentation or template.
type ContentBinding struct {
	Kind           ContentKind `json:"kind" yaml:"kind"`
	PresentationID string      `json:"presentation_id,omitempty" yaml:"presentation_id,omitempty"`
	TemplateID     string      `json:"template_id,omitempty" yaml:"template_id,omitempty"`
}

// ReportBinding binds a job to a presentation.
func ReportBinding(presentationID string) ContentBinding {
	return ContentBinding{Kind: ContentReport, PresentationID: presentationID}
}

// TemplateBinding binds a job to a template.
func TemplateBinding(templateID string) ContentBinding {
	return ContentBinding{Kind: ContentTemplate, TemplateID: templateID}
}

// ContentID returns whichever id the binding carries.
func (b ContentBinding) ContentID() string {
	if b.Kind == ContentTemplate {
		return b.TemplateID
	}
	return b.PresentationID
}

// Validate checks that exactly one id is set and that it matches Kind.
func (b ContentBinding) Validate() error {
	switch b.Kind {
	case ContentReport:
		if b.PresentationID == "" || b.TemplateID != "" {
			return errors.Newf("report binding needs a presentation id and no template id")
		}
	case ContentTemplate:
		if b.TemplateID == "" || b.PresentationID != "" {
			return errors.Newf("template binding needs a template id and no presentation id")
		}
	default:
		return errors.Newf("unknown content kind %q", b.Kind)
	}
	return nil
}

// Recipients are the address lists of a delivery. Lists are kept exactly as
// entered; an address may appear in more than one list.
type Recipients struct {
	To  []string `json:"to" yaml:"to"`
	CC  []string `json:"cc,omitempty" yaml:"cc,omitempty"`
	BCC []string `json:"bcc,omitempty" yaml:"bcc,omitempty"`
}

// Count returns the total number of addresses across all lists.
func (r Recipients) Count() int {
	return len(r.To) + len(r.CC) + len(r.BCC)
}

// EmailTemplateBinding selects the email skeleton and its text.
type EmailTemplateBinding struct {
	TemplateID        string            `json:"template_id" yaml:"template_id"`
	Subject           string            `json:"subject" yaml:"subject"`
	CustomContent     string            `json:"custom_content,omitempty" yaml:"custom_content,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty" yaml:"template_variables,omitempty"`
}

// State is a job's lifecycle state.
type State string

const (
	StateDraft     State = "draft"     // never executed
	StateScheduled State = "scheduled" // recurring, active, has a next execution
	StatePaused    State = "paused"    // recurring, inactive
	StateExecuting State = "executing" // an execution is in flight
	StateSent      State = "sent"      // one-time job delivered
	StateFailed    State = "failed"    // one-time job failed
	StateArchived  State = "archived"  // soft-removed, kept for history
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateScheduled, StatePaused, StateExecuting, StateSent, StateFailed, StateArchived:
		return true
	}
	return false
}

// Terminal reports whether no further execution is allowed from s.
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed || s == StateArchived
}

// NewJobID returns a fresh job id.
func NewJobID() string {
	return "RJ_" + compactUUID()
}

// NewExecutionID returns a fresh execution id.
func NewExecutionID() string {
	return "EX_" + compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.Recipients = Recipients{
		To:  append([]string(nil), j.Recipients.To...),
		CC:  append([]string(nil), j.Recipients.CC...),
		BCC: append([]string(nil), j.Recipients.BCC...),
	}
	if j.EmailTemplate.TemplateVariables != nil {
		c.EmailTemplate.TemplateVariables = make(map[string]string, len(j.EmailTemplate.TemplateVariables))
		for k, v := range j.EmailTemplate.TemplateVariables {
			c.EmailTemplate.TemplateVariables[k] = v
		}
	}
	c.CustomVariables = append([]CustomVariable(nil), j.CustomVariables...)
	if j.Schedule.CronExpression != nil {
		expr := *j.Schedule.CronExpression
		c.Schedule.CronExpression = &expr
	}
	c.LastExecuted = copyTime(j.LastExecuted)
	c.NextExecution = copyTime(j.NextExecution)
	if j.LastError != nil {
		msg := *j.LastError
		c.LastError = &msg
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
