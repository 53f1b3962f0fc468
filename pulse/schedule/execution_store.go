package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/briefing/errors"
)

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `
	id, job_id, trigger_kind, status, started_at, completed_at, duration_ms,
	message_id, error_message, refreshed_count, failed_element_ids, created_at`

// CreateExecution creates a new execution record
func (s *ExecutionStore) CreateExecution(ctx context.Context, exec *Execution) error {
	failed, err := encodeIDs(exec.FailedElementIDs)
	if err != nil {
		return err
	}

	query := `INSERT INTO report_executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		exec.ID,
		exec.JobID,
		string(exec.Trigger),
		string(exec.Status),
		formatTime(exec.StartedAt),
		formatNullTime(exec.CompletedAt),
		nullInt64(exec.DurationMs),
		nullStringPtr(exec.MessageID),
		nullStringPtr(exec.ErrorMessage),
		exec.RefreshedCount,
		failed,
		formatTime(exec.CreatedAt),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}
	return nil
}

// UpdateExecution writes the outcome columns of an existing execution
func (s *ExecutionStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	failed, err := encodeIDs(exec.FailedElementIDs)
	if err != nil {
		return err
	}

	query := `
		UPDATE report_executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    message_id = ?,
		    error_message = ?,
		    refreshed_count = ?,
		    failed_element_ids = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(exec.Status),
		formatNullTime(exec.CompletedAt),
		nullInt64(exec.DurationMs),
		nullStringPtr(exec.MessageID),
		nullStringPtr(exec.ErrorMessage),
		exec.RefreshedCount,
		failed,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("execution %s not found", exec.ID)
	}
	return nil
}

// GetExecution retrieves an execution by ID
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM report_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("execution %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListExecutions returns a job's executions newest first, with the total
// count for pagination. statusFilter may be empty.
func (s *ExecutionStore) ListExecutions(ctx context.Context, jobID string, limit, offset int, statusFilter ExecutionStatus) ([]*Execution, int, error) {
	baseQuery := ` FROM report_executions WHERE job_id = ?`
	args := []any{jobID}
	if statusFilter != "" {
		baseQuery += ` AND status = ?`
		args = append(args, string(statusFilter))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + executionColumns + baseQuery + `
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	executions := []*Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate executions")
	}
	return executions, total, nil
}

// FailRunning closes every execution still marked running. Used at startup
// to clean up after a crash.
func (s *ExecutionStore) FailRunning(ctx context.Context, now time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_executions
		SET status = ?, completed_at = ?, error_message = ?
		WHERE status = ?`,
		string(ExecutionFailed), formatTime(now), reason, string(ExecutionRunning))
	if err != nil {
		return 0, errors.Wrap(err, "failed to close running executions")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CleanupOldExecutions deletes finished executions older than retentionDays.
// Returns the number of deleted rows.
func (s *ExecutionStore) CleanupOldExecutions(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM report_executions
		WHERE started_at < ? AND status != ?`,
		formatTime(cutoff), string(ExecutionRunning))
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(n), nil
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var trigger, status, startedAt, failed, createdAt string
	var completedAt, messageID, errorMessage sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&trigger,
		&status,
		&startedAt,
		&completedAt,
		&durationMs,
		&messageID,
		&errorMessage,
		&exec.RefreshedCount,
		&failed,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Trigger = Trigger(trigger)
	exec.Status = ExecutionStatus(status)
	if exec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for execution %s", exec.ID)
	}
	if exec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for execution %s", exec.ID)
	}
	if exec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse completed_at for execution %s", exec.ID)
	}
	if durationMs.Valid {
		d := durationMs.Int64
		exec.DurationMs = &d
	}
	if messageID.Valid {
		exec.MessageID = &messageID.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}
	if err := json.Unmarshal([]byte(failed), &exec.FailedElementIDs); err != nil {
		return nil, errors.Wrapf(err, "failed to decode failed_element_ids for execution %s", exec.ID)
	}
	return &exec, nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode element ids")
	}
	return string(b), nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
