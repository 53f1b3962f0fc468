package schedule

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
	brieftest "github.com/teranos/briefing/internal/testing"
	"github.com/teranos/briefing/internal/util"
	"github.com/teranos/briefing/variables"
)

func TestCreateJob(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := recurringJob()
	job.Description = "Monday numbers"
	job.Recipients.CC = []string{"lead@example.com"}
	job.EmailTemplate.TemplateVariables = map[string]string{"team": "Ops"}
	job.CustomVariables = []CustomVariable{
		{Name: "open_tickets", Kind: variables.KindQuery, Value: "SELECT COUNT(*) FROM tickets"},
		{Name: "stamp", Kind: variables.KindTimestamp, Value: "YYYY-MM-DD"},
	}
	require.NoError(t, job.Rest(time.Now()))

	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, job.Content, got.Content)
	assert.Equal(t, ScheduleRecurring, got.Schedule.Kind)
	assert.Equal(t, "0 9 * * 1", *got.Schedule.CronExpression)
	assert.Equal(t, "Europe/Amsterdam", got.Schedule.Timezone)
	assert.Equal(t, job.Recipients, got.Recipients)
	assert.Equal(t, job.EmailTemplate, got.EmailTemplate)
	assert.Equal(t, job.CustomVariables, got.CustomVariables)
	assert.True(t, got.IsActive)
	assert.Equal(t, StateScheduled, got.State)
	require.NotNil(t, got.NextExecution)
	assert.WithinDuration(t, *job.NextExecution, *got.NextExecution, time.Second)
	assert.Nil(t, got.LastExecuted)
	assert.Nil(t, got.LastError)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateJobOneTimeStoresNullCron(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := oneTimeJob()
	job.State = StateDraft
	require.NoError(t, store.CreateJob(ctx, job))

	var cron *string
	require.NoError(t, db.QueryRow("SELECT cron_expression FROM report_jobs WHERE id = ?", job.ID).Scan(&cron))
	assert.Nil(t, cron)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Schedule.CronExpression)
	assert.Equal(t, ReportBinding("P1"), got.Content)
}

func TestCreateJobRejectsBrokenBinding(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)

	job := oneTimeJob()
	job.State = StateDraft
	job.Content.TemplateID = "T1" // both ids set

	assert.Error(t, store.CreateJob(context.Background(), job))
}

func TestCreateJobDuplicateID(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := oneTimeJob()
	job.State = StateDraft
	require.NoError(t, store.CreateJob(ctx, job))

	err := store.CreateJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestGetJobNotFound(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	_, err := NewStore(db).GetJob(context.Background(), "RJ_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateJob(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := recurringJob()
	require.NoError(t, job.Rest(time.Now()))
	require.NoError(t, store.CreateJob(ctx, job))
	created := job.CreatedAt

	now := time.Now().UTC()
	prior, err := job.Begin()
	require.NoError(t, err)
	require.NoError(t, job.Finish(prior, now, now, errors.New("smtp down")))
	job.Name = "Weekly ops v2"
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly ops v2", got.Name)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, "smtp down", *got.LastError)
	require.NotNil(t, got.LastExecuted)
	assert.WithinDuration(t, now, *got.LastExecuted, time.Second)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)
}

func TestUpdateJobNotFound(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	job := oneTimeJob()
	job.State = StateDraft
	err := NewStore(db).UpdateJob(context.Background(), job)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListJobsDue(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, next time.Time, active bool, state State) {
		job := recurringJob()
		job.ID = id
		job.IsActive = active
		job.State = state
		job.NextExecution = util.Ptr(next)
		require.NoError(t, store.CreateJob(ctx, job))
	}
	mk("RJ_past", now.Add(-10*time.Minute), true, StateScheduled)
	mk("RJ_now", now, true, StateScheduled)
	mk("RJ_future", now.Add(10*time.Minute), true, StateScheduled)
	mk("RJ_paused", now.Add(-5*time.Minute), false, StatePaused)
	mk("RJ_running", now.Add(-5*time.Minute), true, StateExecuting)

	due, err := store.ListJobsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "RJ_past", due[0].ID)
	assert.Equal(t, "RJ_now", due[1].ID)

	next, err := store.NextScheduled(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "RJ_past", next.ID)
}

func TestNextScheduledEmpty(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	next, err := NewStore(db).NextScheduled(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestListJobsFilters(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	active := recurringJob()
	require.NoError(t, active.Rest(time.Now()))
	require.NoError(t, store.CreateJob(ctx, active))

	paused := recurringJob()
	paused.IsActive = false
	require.NoError(t, paused.Rest(time.Now()))
	require.NoError(t, store.CreateJob(ctx, paused))

	archived := oneTimeJob()
	archived.Archive()
	require.NoError(t, store.CreateJob(ctx, archived))

	all, err := store.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := store.ListJobs(ctx, ListFilter{Active: util.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)

	arch, err := store.ListJobs(ctx, ListFilter{State: StateArchived})
	require.NoError(t, err)
	require.Len(t, arch, 1)
	assert.Equal(t, archived.ID, arch[0].ID)

	page, err := store.ListJobs(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestRecoverInterrupted(t *testing.T) {
	db := brieftest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rec := recurringJob()
	rec.State = StateExecuting
	require.NoError(t, store.CreateJob(ctx, rec))

	one := oneTimeJob()
	one.State = StateExecuting
	require.NoError(t, store.CreateJob(ctx, one))

	n, err := store.RecoverInterrupted(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.GetJob(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, got.State)
	assert.NotNil(t, got.NextExecution)
	assert.Equal(t, 1, got.ErrorCount)

	got, err = store.GetJob(ctx, one.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Contains(t, *got.LastError, "interrupted")
}

func TestListJobsDueQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs")).
		WithArgs("scheduled", "2026-03-09T08:00:00Z").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	jobs, err := NewStore(db).ListJobsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsDueDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM report_jobs").WillReturnError(errors.New("database is locked"))

	_, err = NewStore(db).ListJobsDue(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list due jobs")
	assert.Contains(t, err.Error(), "database is locked")
}
