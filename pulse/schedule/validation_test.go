package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/variables"
)

func problemFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	fields := make([]string, len(verr.Problems))
	for i, p := range verr.Problems {
		fields[i] = p.Field
	}
	return fields
}

func TestValidateAcceptsGoodJob(t *testing.T) {
	warnings, err := Validate(recurringJob())
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	job := &Job{
		Content:    ContentBinding{Kind: ContentReport, PresentationID: "P1", TemplateID: "T1"},
		Schedule:   Schedule{Kind: ScheduleOneTime, CronExpression: ptrString("0 9 * * *"), Timezone: "Nowhere/City"},
		Recipients: Recipients{To: []string{"not-an-address"}},
	}

	_, err := Validate(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.True(t, errors.IsInvalidRequestError(err))

	fields := problemFields(t, err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "content")
	assert.Contains(t, fields, "schedule.cron_expression")
	assert.Contains(t, fields, "schedule.timezone")
	assert.Contains(t, fields, "recipients.to[0]")
	assert.Contains(t, fields, "email_template.subject")
	assert.Contains(t, fields, "email_template.template_id")
}

func TestValidateRecurringNeedsCron(t *testing.T) {
	job := recurringJob()
	job.Schedule.CronExpression = nil
	fields := problemFields(t, second(Validate(job)))
	assert.Equal(t, []string{"schedule.cron_expression"}, fields)

	job.Schedule.CronExpression = ptrString("61 * * * *")
	fields = problemFields(t, second(Validate(job)))
	assert.Equal(t, []string{"schedule.cron_expression"}, fields)
}

func TestValidateRequiresRecipient(t *testing.T) {
	job := oneTimeJob()
	job.Recipients = Recipients{CC: []string{"cc@example.com"}}
	assert.Contains(t, problemFields(t, second(Validate(job))), "recipients.to")
}

func TestDuplicateRecipientsWarnOnly(t *testing.T) {
	job := oneTimeJob()
	job.Recipients = Recipients{
		To:  []string{"a@example.com"},
		CC:  []string{"A@example.com"},
		BCC: []string{"Alice <a@example.com>"},
	}

	warnings, err := Validate(job)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
	// lists are never rewritten
	assert.Len(t, job.Recipients.CC, 1)
	assert.Len(t, job.Recipients.BCC, 1)
}

func TestValidateCustomVariables(t *testing.T) {
	job := oneTimeJob()
	job.CustomVariables = []CustomVariable{
		{Name: "team", Kind: variables.KindStatic, Value: "Ops"},
		{Name: "team", Kind: variables.KindStatic, Value: "Sales"},
		{Name: "current_date", Kind: variables.KindStatic, Value: "x"},
		{Name: "9lives", Kind: variables.KindStatic},
		{Name: "open", Kind: variables.KindQuery},
		{Name: "odd", Kind: "lambda", Value: "x"},
		{Name: "empty_ok", Kind: variables.KindStatic},
	}

	fields := problemFields(t, second(Validate(job)))
	assert.ElementsMatch(t, []string{
		"custom_variables[1].name",
		"custom_variables[2].name",
		"custom_variables[3].name",
		"custom_variables[4].value",
		"custom_variables[5].kind",
	}, fields)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Problems: []FieldError{{Field: "name", Message: "is required"}}}
	assert.Equal(t, "invalid job: name: is required", err.Error())
}

func ptrString(s string) *string { return &s }

func second(_ []string, err error) error { return err }
