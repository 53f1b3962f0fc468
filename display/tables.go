package display

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/briefing/pulse/schedule"
)

const timeLayout = "2006-01-02 15:04 MST"

// JobsTable renders jobs as a pterm table.
func JobsTable(jobs []*schedule.Job) error {
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}
	data := pterm.TableData{{"ID", "Name", "Content", "Schedule", "State", "Active", "Next", "Runs"}}
	for _, j := range jobs {
		data = append(data, []string{
			j.ID,
			j.Name,
			string(j.Content.Kind) + ":" + j.Content.ContentID(),
			scheduleLabel(j.Schedule),
			string(j.State),
			fmt.Sprintf("%t", j.IsActive),
			formatTime(j.NextExecution),
			fmt.Sprintf("%d/%d", j.SuccessCount, j.ExecutionCount),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// ExecutionsTable renders a page of executions.
func ExecutionsTable(execs []*schedule.Execution, total int) error {
	if len(execs) == 0 {
		pterm.Info.Println("No executions")
		return nil
	}
	data := pterm.TableData{{"ID", "Trigger", "Status", "Started", "Duration", "Refreshed", "Error"}}
	for _, e := range execs {
		duration := ""
		if e.DurationMs != nil {
			duration = (time.Duration(*e.DurationMs) * time.Millisecond).String()
		}
		errText := ""
		if e.ErrorMessage != nil {
			errText = *e.ErrorMessage
		}
		data = append(data, []string{
			e.ID,
			string(e.Trigger),
			statusLabel(e.Status),
			e.StartedAt.Format(timeLayout),
			duration,
			fmt.Sprintf("%d", e.RefreshedCount),
			errText,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Printf("%d of %d\n", len(execs), total)
	return nil
}

func statusLabel(s schedule.ExecutionStatus) string {
	switch s {
	case schedule.ExecutionSent:
		return pterm.Green(string(s))
	case schedule.ExecutionFailed:
		return pterm.Red(string(s))
	default:
		return pterm.Yellow(string(s))
	}
}

func scheduleLabel(s schedule.Schedule) string {
	if !s.Recurring() || s.CronExpression == nil {
		return "one-time"
	}
	return *s.CronExpression + " " + s.Timezone
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}
