package schedule

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/variables"
)

// FieldError is one problem found while validating a job.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem with a job configuration. It
// unwraps to errors.ErrValidation.
type ValidationError struct {
	Problems []FieldError `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "invalid job: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return errors.ErrValidation }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a job configuration. Problems come back as a
// *ValidationError; warnings (such as an address listed twice) never fail
// validation.
func Validate(j *Job) (warnings []string, err error) {
	verr := &ValidationError{}

	if strings.TrimSpace(j.Name) == "" {
		verr.add("name", "is required")
	}

	if err := j.Content.Validate(); err != nil {
		verr.add("content", "%s", err.Error())
	}

	validateSchedule(j.Schedule, verr)
	warnings = validateRecipients(j.Recipients, verr)

	if strings.TrimSpace(j.EmailTemplate.Subject) == "" {
		verr.add("email_template.subject", "is required")
	}
	if j.EmailTemplate.TemplateID == "" {
		verr.add("email_template.template_id", "is required")
	}

	validateCustomVariables(j.CustomVariables, verr)

	if len(verr.Problems) > 0 {
		return warnings, verr
	}
	return warnings, nil
}

func validateSchedule(s Schedule, verr *ValidationError) {
	switch s.Kind {
	case ScheduleOneTime:
		if s.CronExpression != nil {
			verr.add("schedule.cron_expression", "must be empty for one-time jobs")
		}
	case ScheduleRecurring:
		if s.CronExpression == nil || strings.TrimSpace(*s.CronExpression) == "" {
			verr.add("schedule.cron_expression", "is required for recurring jobs")
		} else if _, err := ParseCron(*s.CronExpression); err != nil {
			verr.add("schedule.cron_expression", "%s", err.Error())
		}
	default:
		verr.add("schedule.kind", "unknown kind %q", s.Kind)
	}
	if _, err := s.Location(); err != nil {
		verr.add("schedule.timezone", "%s", err.Error())
	}
}

func validateRecipients(r Recipients, verr *ValidationError) []string {
	if len(r.To) == 0 {
		verr.add("recipients.to", "at least one recipient is required")
	}

	var warnings []string
	seen := make(map[string]string)
	check := func(list string, addrs []string) {
		for i, a := range addrs {
			parsed, err := mail.ParseAddress(a)
			if err != nil {
				verr.add(fmt.Sprintf("recipients.%s[%d]", list, i), "invalid address %q", a)
				continue
			}
			key := strings.ToLower(parsed.Address)
			if first, ok := seen[key]; ok {
				warnings = append(warnings, fmt.Sprintf("%s appears in both %s and %s", parsed.Address, first, list))
				continue
			}
			seen[key] = list
		}
	}
	check("to", r.To)
	check("cc", r.CC)
	check("bcc", r.BCC)
	return warnings
}

func validateCustomVariables(vars []CustomVariable, verr *ValidationError) {
	names := make(map[string]bool, len(vars))
	for i, v := range vars {
		field := fmt.Sprintf("custom_variables[%d]", i)
		switch {
		case !variables.ValidName(v.Name):
			verr.add(field+".name", "invalid name %q", v.Name)
		case variables.IsSystemName(v.Name):
			verr.add(field+".name", "%q is a system variable", v.Name)
		case names[v.Name]:
			verr.add(field+".name", "duplicate variable %q", v.Name)
		}
		names[v.Name] = true

		if !v.Kind.Valid() {
			verr.add(field+".kind", "unknown kind %q", v.Kind)
			continue
		}
		if v.Kind != variables.KindStatic && strings.TrimSpace(v.Value) == "" {
			verr.add(field+".value", "is required for %s variables", v.Kind)
		}
	}
}
