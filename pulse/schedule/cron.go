package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/briefing/errors"
)

// ScheduleKind distinguishes one-shot from cron-driven jobs.
type ScheduleKind string

const (
	ScheduleOneTime   ScheduleKind = "one_time"
	ScheduleRecurring ScheduleKind = "recurring"
)

// Schedule says when a job runs. CronExpression is nil exactly when Kind is
// one_time. Timezone is an IANA name the cron expression is evaluated in.
type Schedule struct {
	Kind           ScheduleKind `json:"kind" yaml:"kind"`
	CronExpression *string      `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty"`
	Timezone       string       `json:"timezone" yaml:"timezone"`
}

// OneTimeSchedule returns a schedule that runs once, on demand.
func OneTimeSchedule(timezone string) Schedule {
	return Schedule{Kind: ScheduleOneTime, Timezone: timezone}
}

// RecurringSchedule returns a cron-driven schedule.
func RecurringSchedule(expr, timezone string) Schedule {
	return Schedule{Kind: ScheduleRecurring, CronExpression: &expr, Timezone: timezone}
}

// Recurring reports whether the schedule is cron-driven.
func (s Schedule) Recurring() bool {
	return s.Kind == ScheduleRecurring
}

// Location loads the schedule's timezone; empty means UTC.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown timezone %q", s.Timezone)
	}
	return loc, nil
}

// Next returns the first fire time strictly after `after`, evaluated in the
// schedule's timezone and returned in UTC.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	if !s.Recurring() || s.CronExpression == nil {
		return time.Time{}, errors.New("one-time schedules have no next execution")
	}
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	sched, err := ParseCron(*s.CronExpression)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, errors.Newf("cron expression %q never fires", *s.CronExpression)
	}
	return next.UTC(), nil
}

// ParseCron parses a standard five-field cron expression. Descriptors such
// as @daily are accepted; TZ= prefixes are not, since the timezone lives on
// the schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		return nil, errors.WithHint(
			errors.Newf("cron expression %q carries a timezone", expr),
			"set the schedule timezone instead")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return sched, nil
}

// Frequency is the UI-level recurrence choice fed to BuildCron.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// BuildCron turns a frequency, a "HH:MM" time of day, a weekday (weekly) and
// a day of month (monthly) into a cron expression. Hourly schedules use only
// the minute of at.
//
//	BuildCron(FrequencyWeekly, "09:00", time.Monday, 0) -> "0 9 * * 1"
func BuildCron(freq Frequency, at string, weekday time.Weekday, dayOfMonth int) (string, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return "", err
	}

	switch freq {
	case FrequencyHourly:
		return fmt.Sprintf("%d * * * *", minute), nil
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case FrequencyWeekly:
		if weekday < time.Sunday || weekday > time.Saturday {
			return "", errors.Newf("weekday %d out of range", weekday)
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, int(weekday)), nil
	case FrequencyMonthly:
		if dayOfMonth < 1 || dayOfMonth > 31 {
			return "", errors.WithHint(
				errors.Newf("day of month %d out of range", dayOfMonth),
				"use 1-28 to fire every month; later days skip shorter months")
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, dayOfMonth), nil
	default:
		return "", errors.Newf("unknown frequency %q", freq)
	}
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, errors.Newf("unknown weekday %q", s)
}

func parseClock(at string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(at), ":")
	if !ok {
		return 0, 0, errors.Newf("time %q is not HH:MM", at)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Newf("hour in %q out of range", at)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Newf("minute in %q out of range", at)
	}
	return hour, minute, nil
}
