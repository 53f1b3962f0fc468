package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/teranos/briefing/errors"
)

// Store handles persistence of report jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `
	id, name, description, content_kind, presentation_id, template_id,
	schedule_kind, cron_expression, timezone,
	recipients, email_template, custom_variables,
	is_active, state, execution_count, success_count, error_count,
	last_executed, next_execution, last_error, created_at, updated_at`

// ListFilter narrows ListJobs. Zero values match everything; archived jobs
// are hidden unless State asks for them.
type ListFilter struct {
	Active *bool
	State  State
	Limit  int
	Offset int
}

// CreateJob inserts a new job. CreatedAt and UpdatedAt are set when zero.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	args, err := jobArgs(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO report_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Mark(errors.Wrapf(err, "job %s already exists", job.ID), errors.ErrConflict)
		}
		return errors.Wrap(err, "failed to create report job")
	}
	return nil
}

// UpdateJob overwrites every mutable column of an existing job and bumps
// UpdatedAt. Concurrent writers are last-writer-wins.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()

	args, err := jobArgs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE report_jobs SET
			name = ?, description = ?, content_kind = ?, presentation_id = ?, template_id = ?,
			schedule_kind = ?, cron_expression = ?, timezone = ?,
			recipients = ?, email_template = ?, custom_variables = ?,
			is_active = ?, state = ?, execution_count = ?, success_count = ?, error_count = ?,
			last_executed = ?, next_execution = ?, last_error = ?, updated_at = ?
		WHERE id = ?`

	// args[0] is id and args[20] is created_at
	updateArgs := append(append([]any{}, args[1:20]...), args[21], args[0])

	res, err := s.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return errors.Wrapf(err, "failed to update report job %s", job.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %s not found", job.ID)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("job %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get report job %s", id)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	var where []string
	var args []any

	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	} else {
		where = append(where, "state != ?")
		args = append(args, string(StateArchived))
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*f.Active))
	}

	query := `SELECT ` + jobColumns + ` FROM report_jobs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list report jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListJobsDue returns active recurring jobs whose next execution is at or
// before now, oldest first, at most 100 per call.
func (s *Store) ListJobsDue(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM report_jobs
		WHERE is_active = 1 AND state = ? AND next_execution IS NOT NULL AND next_execution <= ?
		ORDER BY next_execution ASC
		LIMIT 100`

	rows, err := s.db.QueryContext(ctx, query, string(StateScheduled), formatTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// NextScheduled returns the job that fires soonest, or nil if none is scheduled.
func (s *Store) NextScheduled(ctx context.Context) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM report_jobs
		WHERE is_active = 1 AND state = ? AND next_execution IS NOT NULL
		ORDER BY next_execution ASC
		LIMIT 1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, string(StateScheduled)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next scheduled job")
	}
	return job, nil
}

// ErrInterrupted is recorded against executions cut short by a restart.
var ErrInterrupted = errors.New("execution interrupted by process restart")

// RecoverInterrupted finishes jobs left in executing by a previous process
// as failed executions. It is called once at startup.
func (s *Store) RecoverInterrupted(ctx context.Context, now time.Time) (int, error) {
	jobs, err := s.ListJobs(ctx, ListFilter{State: StateExecuting})
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if err := job.Finish(StateScheduled, now, now, ErrInterrupted); err != nil {
			return 0, errors.Wrapf(err, "failed to recover job %s", job.ID)
		}
		if err := s.UpdateJob(ctx, job); err != nil {
			return 0, err
		}
	}
	return len(jobs), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan report job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate report jobs")
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var contentKind, scheduleKind, state string
	var presentationID, templateID, cronExpr sql.NullString
	var recipients, emailTemplate, customVars string
	var isActive int
	var lastExecuted, nextExecution, lastError sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID, &job.Name, &job.Description, &contentKind, &presentationID, &templateID,
		&scheduleKind, &cronExpr, &job.Schedule.Timezone,
		&recipients, &emailTemplate, &customVars,
		&isActive, &state, &job.ExecutionCount, &job.SuccessCount, &job.ErrorCount,
		&lastExecuted, &nextExecution, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Content = ContentBinding{
		Kind:           ContentKind(contentKind),
		PresentationID: presentationID.String,
		TemplateID:     templateID.String,
	}
	job.Schedule.Kind = ScheduleKind(scheduleKind)
	if cronExpr.Valid {
		expr := cronExpr.String
		job.Schedule.CronExpression = &expr
	}
	job.IsActive = isActive != 0
	job.State = State(state)

	if err := json.Unmarshal([]byte(recipients), &job.Recipients); err != nil {
		return nil, errors.Wrapf(err, "failed to decode recipients for job %s", job.ID)
	}
	if err := json.Unmarshal([]byte(emailTemplate), &job.EmailTemplate); err != nil {
		return nil, errors.Wrapf(err, "failed to decode email template for job %s", job.ID)
	}
	if err := json.Unmarshal([]byte(customVars), &job.CustomVariables); err != nil {
		return nil, errors.Wrapf(err, "failed to decode custom variables for job %s", job.ID)
	}

	// Parse timestamps (an unparseable value means schema drift or corruption)
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if job.LastExecuted, err = parseNullTime(lastExecuted); err != nil {
		return nil, errors.Wrapf(err, "failed to parse last_executed for job %s", job.ID)
	}
	if job.NextExecution, err = parseNullTime(nextExecution); err != nil {
		return nil, errors.Wrapf(err, "failed to parse next_execution for job %s", job.ID)
	}
	if lastError.Valid {
		msg := lastError.String
		job.LastError = &msg
	}
	return &job, nil
}

// jobArgs returns the column values in jobColumns order.
func jobArgs(job *Job) ([]any, error) {
	recipients, err := json.Marshal(job.Recipients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode recipients")
	}
	emailTemplate, err := json.Marshal(job.EmailTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode email template")
	}
	customVars := job.CustomVariables
	if customVars == nil {
		customVars = []CustomVariable{}
	}
	vars, err := json.Marshal(customVars)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode custom variables")
	}

	var cronExpr any
	if job.Schedule.CronExpression != nil {
		cronExpr = *job.Schedule.CronExpression
	}
	var lastError any
	if job.LastError != nil {
		lastError = *job.LastError
	}
	timezone := job.Schedule.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	return []any{
		job.ID, job.Name, job.Description, string(job.Content.Kind),
		nullString(job.Content.PresentationID), nullString(job.Content.TemplateID),
		string(job.Schedule.Kind), cronExpr, timezone,
		string(recipients), string(emailTemplate), string(vars),
		boolToInt(job.IsActive), string(job.State),
		job.ExecutionCount, job.SuccessCount, job.ErrorCount,
		formatNullTime(job.LastExecuted), formatNullTime(job.NextExecution), lastError,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
