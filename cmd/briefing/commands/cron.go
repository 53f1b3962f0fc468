package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/briefing/display"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/sym"
)

// CronCmd builds and checks schedule expressions
var CronCmd = &cobra.Command{
	Use:   "cron",
	Short: sym.Cron + " Build and check schedule expressions",
	Long: sym.Cron + ` cron — Build and check schedule expressions

Examples:
  briefing cron build daily 08:30
  briefing cron build weekly 09:00 --weekday fri --tz Europe/Amsterdam
  briefing cron build monthly 07:00 --day 1
  briefing cron next "0 9 * * 1" --tz UTC --count 5`,
}

var cronBuildCmd = &cobra.Command{
	Use:   "build <hourly|daily|weekly|monthly> <HH:MM>",
	Short: "Build a cron expression from a frequency and time of day",
	Args:  cobra.ExactArgs(2),
	RunE:  runCronBuild,
}

var cronNextCmd = &cobra.Command{
	Use:   "next <expression>",
	Short: "Show the next fire times of an expression",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronNext,
}

var (
	cronWeekday string
	cronDay     int
	cronTZ      string
	cronCount   int
)

func init() {
	cronBuildCmd.Flags().StringVar(&cronWeekday, "weekday", "monday", "Day of week for weekly schedules")
	cronBuildCmd.Flags().IntVar(&cronDay, "day", 1, "Day of month for monthly schedules (1-28)")
	CronCmd.PersistentFlags().StringVar(&cronTZ, "tz", "UTC", "IANA timezone the schedule runs in")
	CronCmd.PersistentFlags().IntVar(&cronCount, "count", 3, "Number of upcoming runs to show")

	CronCmd.AddCommand(cronBuildCmd, cronNextCmd)
}

func runCronBuild(cmd *cobra.Command, args []string) error {
	weekday, err := schedule.ParseWeekday(cronWeekday)
	if err != nil {
		return err
	}
	expr, err := schedule.BuildCron(schedule.Frequency(args[0]), args[1], weekday, cronDay)
	if err != nil {
		return err
	}
	return printCronRuns(cmd, expr)
}

func runCronNext(cmd *cobra.Command, args []string) error {
	if _, err := schedule.ParseCron(args[0]); err != nil {
		return err
	}
	return printCronRuns(cmd, args[0])
}

func printCronRuns(cmd *cobra.Command, expr string) error {
	runs, err := nextRuns(schedule.RecurringSchedule(expr, cronTZ), time.Now().UTC(), cronCount)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{"cron_expression": expr, "next_runs": runs})
	}

	fmt.Println(expr)
	loc, _ := schedule.RecurringSchedule(expr, cronTZ).Location()
	for _, r := range runs {
		pterm.Info.Println(r.In(loc).Format("Mon 2006-01-02 15:04 MST"))
	}
	return nil
}

func nextRuns(s schedule.Schedule, from time.Time, n int) ([]time.Time, error) {
	runs := make([]time.Time, 0, n)
	at := from
	for i := 0; i < n; i++ {
		next, err := s.Next(at)
		if err != nil {
			return nil, err
		}
		runs = append(runs, next)
		at = next
	}
	return runs, nil
}
