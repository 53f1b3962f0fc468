package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/server"
	"github.com/teranos/briefing/sym"
)

// ServeCmd starts the HTTP API and the delivery ticker
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: sym.Serve + " Start the HTTP API and the delivery ticker",
	Long: sym.Serve + ` serve — Start the HTTP API and the delivery ticker

On startup, executions left running by a previous process are recorded as
failed. The ticker then checks for due jobs every pulse.ticker_interval_seconds
(0 disables it; jobs still run via the API). Mail pacing, refresh
concurrency and delivery settings are reloaded when the config file changes.

Examples:
  briefing serve
  briefing serve --port 8821 --db-path tmp/briefing.db`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
		logger.SetVerbosity(verbosity)
	}

	a, err := newApp(serveDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.GetServerPort()
	if servePort != 0 {
		port = servePort
	}
	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = a.cfg.GetDatabasePath()
	}
	printStartupBanner(verbosity, dbPath, port, a.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executions, jobs, err := a.svc.Recover(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to recover interrupted executions")
	}
	if executions > 0 || jobs > 0 {
		pterm.Warning.Printf("Recovered %d interrupted execution(s) across %d job(s)\n", executions, jobs)
	}

	if err := a.warehouse.Ping(ctx); err != nil {
		pterm.Warning.Printf("%s Warehouse unreachable, data-bound elements will keep stale data: %v\n", sym.Warehouse, err)
	}

	var ticker *schedule.Ticker
	if a.cfg.Pulse.TickerIntervalSeconds > 0 {
		ticker = schedule.NewTicker(ctx, a.jobs, a.executions, a.svc, schedule.TickerConfig{
			Interval:      a.cfg.TickerInterval(),
			Workers:       a.cfg.Pulse.Workers,
			RetentionDays: a.cfg.Pulse.ExecutionRetentionDays,
		}, logger.ComponentLogger("ticker"))
		ticker.Start()
		defer ticker.Stop()
	} else {
		pterm.Info.Println("Ticker disabled (pulse.ticker_interval_seconds = 0)")
	}

	if path := am.ActiveConfigPath(); path != "" {
		watcher, err := am.NewConfigWatcher(path)
		if err != nil {
			logger.Warnw("Config hot reload unavailable", "path", path, "error", err)
		} else {
			watcher.OnReload(a.reload)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := server.New(a.svc, a.cfg.Server, ticker)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(port)
	}()

	// GRACE: first signal drains, second one exits
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
			defer done()
			shutdownDone <- srv.Shutdown(shutdownCtx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
