package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/briefing/cmd/briefing/commands"
	"github.com/teranos/briefing/logger"

	_ "time/tzdata" // schedules name IANA zones; hosts without zoneinfo still resolve them
)

var rootCmd = &cobra.Command{
	Use:   "briefing",
	Short: "briefing - Scheduled report and template delivery",
	Long: `briefing - Scheduled report and template delivery.

Jobs bind a presentation or template to a schedule and a recipient list.
On each run, templates refresh their data-bound elements against the
warehouse, the email subject and body are rendered with variables, and the
result is handed to the mail transport.

Available commands:
  jobs   - List, run and manage delivery jobs
  cron   - Build cron expressions from a frequency
  am     - Show and validate configuration
  db     - Migrations and statistics
  serve  - Start the HTTP API and the delivery ticker

Examples:
  briefing serve                 # Start the API and ticker
  briefing jobs ls               # List jobs
  briefing jobs run RJ_...       # Deliver a job now
  briefing cron build weekly 09:00 --weekday mon`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().Bool("json", false, "Print command results as JSON")

	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.CronCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
