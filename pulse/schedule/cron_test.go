package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCronWeeklyMonday(t *testing.T) {
	expr, err := BuildCron(FrequencyWeekly, "09:00", time.Monday, 0)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1", expr)
}

func TestBuildCron(t *testing.T) {
	tests := []struct {
		name    string
		freq    Frequency
		at      string
		weekday time.Weekday
		dom     int
		want    string
	}{
		{"hourly uses minute only", FrequencyHourly, "13:15", 0, 0, "15 * * * *"},
		{"daily", FrequencyDaily, "07:30", 0, 0, "30 7 * * *"},
		{"weekly sunday", FrequencyWeekly, "18:05", time.Sunday, 0, "5 18 * * 0"},
		{"monthly", FrequencyMonthly, "06:00", 0, 15, "0 6 15 * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCron(tt.freq, tt.at, tt.weekday, tt.dom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			_, err = ParseCron(got)
			assert.NoError(t, err)
		})
	}
}

func TestBuildCronRejectsBadInput(t *testing.T) {
	_, err := BuildCron(FrequencyDaily, "24:00", 0, 0)
	assert.Error(t, err)
	_, err = BuildCron(FrequencyDaily, "9", 0, 0)
	assert.Error(t, err)
	_, err = BuildCron(FrequencyDaily, "09:60", 0, 0)
	assert.Error(t, err)
	_, err = BuildCron(FrequencyMonthly, "09:00", 0, 0)
	assert.Error(t, err)
	_, err = BuildCron("fortnightly", "09:00", 0, 0)
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("Fri")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestParseCronRejectsTimezonePrefix(t *testing.T) {
	_, err := ParseCron("CRON_TZ=Asia/Tokyo 0 9 * * *")
	assert.Error(t, err)
	_, err = ParseCron("not a cron")
	assert.Error(t, err)
	_, err = ParseCron("@daily")
	assert.NoError(t, err)
}

func TestScheduleNextInTimezone(t *testing.T) {
	s := RecurringSchedule("0 9 * * *", "America/New_York")
	after := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) // 08:00 EDT

	next, err := s.Next(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.UTC, next.Location())
}

func TestScheduleNextOneTime(t *testing.T) {
	_, err := OneTimeSchedule("UTC").Next(time.Now())
	assert.Error(t, err)
}

func TestScheduleUnknownTimezone(t *testing.T) {
	_, err := RecurringSchedule("0 9 * * *", "Mars/Olympus").Next(time.Now())
	assert.Error(t, err)
}
