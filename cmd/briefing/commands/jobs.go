package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/briefing/delivery"
	"github.com/teranos/briefing/display"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/sym"
)

// JobsCmd manages delivery jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Job + " Manage delivery jobs",
	Long: sym.Job + ` jobs — Manage delivery jobs

Examples:
  briefing jobs ls                       # List jobs
  briefing jobs ls --state scheduled     # Only scheduled jobs
  briefing jobs show RJ_...              # Show one job
  briefing jobs create -f weekly.yaml    # Create a job from a config file
  briefing jobs run RJ_...               # Deliver now
  briefing jobs preview RJ_...           # Render without sending
  briefing jobs pause RJ_...
  briefing jobs resume RJ_...
  briefing jobs executions RJ_...        # Delivery history
  briefing jobs export RJ_... --format json`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE:  runJobsLs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its configuration warnings",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job from a YAML or JSON config file",
	RunE:  runJobsCreate,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Deliver a job now",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRun,
}

var jobsPreviewCmd = &cobra.Command{
	Use:   "preview <job-id>",
	Short: "Render a job's subject and body without sending",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsPreview,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleJob(cmd, args[0], false)
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleJob(cmd, args[0], true)
	},
}

var jobsDuplicateCmd = &cobra.Command{
	Use:   "duplicate <job-id>",
	Short: "Copy a job into a new draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDuplicate,
}

var jobsArchiveCmd = &cobra.Command{
	Use:   "archive <job-id>",
	Short: "Archive a job; archived jobs never run again",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsArchive,
}

var jobsExecutionsCmd = &cobra.Command{
	Use:   "executions <job-id>",
	Short: "Show a job's delivery history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsExecutions,
}

var jobsExportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Print a job's configuration in a form 'jobs create' accepts",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsExport,
}

var (
	jobsDBPath      string
	jobsStateFlag   string
	jobsFileFlag    string
	jobsFormatFlag  string
	jobsLimitFlag   int
	jobsStatusFlag  string
	jobsVarOverride []string
)

func init() {
	JobsCmd.PersistentFlags().StringVar(&jobsDBPath, "db-path", "", "Custom database path (overrides config)")
	jobsLsCmd.Flags().StringVar(&jobsStateFlag, "state", "", "Filter by state (draft, scheduled, paused, executing, sent, failed, archived)")
	jobsCreateCmd.Flags().StringVarP(&jobsFileFlag, "file", "f", "", "Job config file (.yaml, .yml or .json)")
	_ = jobsCreateCmd.MarkFlagRequired("file")
	jobsExecutionsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Number of executions to show")
	jobsExecutionsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (running, sent, failed)")
	jobsExportCmd.Flags().StringVar(&jobsFormatFlag, "format", "yaml", "Output format: yaml, json")
	jobsPreviewCmd.Flags().StringArrayVar(&jobsVarOverride, "var", nil, "Override a variable (name=value); repeatable")

	JobsCmd.AddCommand(jobsLsCmd, jobsShowCmd, jobsCreateCmd, jobsRunCmd, jobsPreviewCmd,
		jobsPauseCmd, jobsResumeCmd, jobsDuplicateCmd, jobsArchiveCmd, jobsExecutionsCmd, jobsExportCmd)
}

// withApp opens the stack for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(jobsDBPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	f := schedule.ListFilter{State: schedule.State(jobsStateFlag)}
	if f.State != "" && !f.State.Valid() {
		return errors.Newf("unknown state %q", jobsStateFlag)
	}
	return withApp(func(ctx context.Context, a *app) error {
		jobs, err := a.svc.ListJobs(ctx, f)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(jobs)
		}
		return display.JobsTable(jobs)
	})
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		warnings := a.svc.Warnings(job)
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]interface{}{"job": job, "warnings": warnings})
		}
		if err := display.Write(os.Stdout, job, "yaml"); err != nil {
			return err
		}
		for _, w := range warnings {
			pterm.Warning.Println(w)
		}
		return nil
	})
}

func runJobsCreate(cmd *cobra.Command, args []string) error {
	cfg, err := readJobConfig(jobsFileFlag)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.CreateJob(ctx, cfg)
		if err != nil {
			return reportValidation(err)
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(job)
		}
		pterm.Success.Printf("Created %s (%s)\n", job.ID, job.State)
		if job.NextExecution != nil {
			pterm.Info.Printf("Next delivery: %s\n", job.NextExecution.Format("2006-01-02 15:04 MST"))
		}
		for _, w := range a.svc.Warnings(job) {
			pterm.Warning.Println(w)
		}
		return nil
	})
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		out, err := a.svc.ExecuteNow(ctx, args[0])
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(out)
		}
		if out.Status == schedule.ExecutionSent {
			pterm.Success.Printf("%s Sent %s (message %s)\n", sym.Mail, out.ExecutionID, out.MessageID)
		} else {
			pterm.Error.Printf("%s Failed %s: %s\n", sym.Mail, out.ExecutionID, out.Error)
		}
		if out.RefreshedCount > 0 || len(out.FailedElementIDs) > 0 {
			pterm.Info.Printf("%s Refreshed %d element(s), %d failed\n", sym.Refresh, out.RefreshedCount, len(out.FailedElementIDs))
		}
		return nil
	})
}

func runJobsPreview(cmd *cobra.Command, args []string) error {
	overrides, err := parseOverrides(jobsVarOverride)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		p, err := a.svc.PreviewVariables(ctx, args[0], overrides)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(p)
		}
		pterm.DefaultSection.Println(p.Subject)
		for _, w := range p.Warnings {
			pterm.Warning.Println(w)
		}
		if len(p.Missing) > 0 {
			pterm.Warning.Printf("Unresolved variables: %s\n", strings.Join(p.Missing, ", "))
		}
		pterm.Println(p.Body)
		return nil
	})
}

func toggleJob(cmd *cobra.Command, id string, active bool) error {
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.ToggleActive(ctx, id, active)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(job)
		}
		pterm.Success.Printf("%s is %s\n", job.ID, job.State)
		return nil
	})
}

func runJobsDuplicate(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.DuplicateJob(ctx, args[0])
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(job)
		}
		pterm.Success.Printf("Created %s %q\n", job.ID, job.Name)
		return nil
	})
}

func runJobsArchive(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.ArchiveJob(ctx, args[0])
		if err != nil {
			return err
		}
		pterm.Success.Printf("Archived %s\n", job.ID)
		return nil
	})
}

func runJobsExecutions(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		execs, total, err := a.svc.ListExecutions(ctx, args[0], jobsLimitFlag, 0, schedule.ExecutionStatus(jobsStatusFlag))
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(map[string]interface{}{"executions": execs, "total": total})
		}
		return display.ExecutionsTable(execs, total)
	})
}

func runJobsExport(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		job, err := a.svc.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		return display.Write(os.Stdout, delivery.ConfigOf(job), jobsFormatFlag)
	})
}

// readJobConfig decodes a job config file. JSON is valid YAML, so one
// decoder covers both; unknown keys are rejected.
func readJobConfig(path string) (delivery.JobConfig, error) {
	var cfg delivery.JobConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return cfg, errors.Newf("unsupported job file %s (use .yaml, .yml or .json)", path)
	}

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse %s", path)
	}
	return cfg, nil
}

func parseOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.Newf("invalid --var %q (want name=value)", p)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

// reportValidation prints field problems before returning the error.
func reportValidation(err error) error {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			pterm.Error.Printf("%s: %s\n", p.Field, p.Message)
		}
	}
	return err
}
