package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/sym"
	"github.com/teranos/briefing/version"
)

// printStartupBanner prints the serve startup summary
func printStartupBanner(verbosity int, dbPath string, port int, cfg *am.Config) {
	info := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println(sym.Job + "  briefing")

	ticker := "disabled"
	if cfg.Pulse.TickerIntervalSeconds > 0 {
		ticker = fmt.Sprintf("every %s, %d worker(s)", cfg.TickerInterval(), cfg.Pulse.Workers)
	}
	mailLimit := "unlimited"
	if cfg.Mail.MaxPerMinute > 0 {
		mailLimit = fmt.Sprintf("%d/min", cfg.Mail.MaxPerMinute)
	}

	pterm.DefaultTable.WithData(pterm.TableData{
		{"Version", fmt.Sprintf("%s (commit %s)", info.Version, info.Short())},
		{"Verbosity", logger.LevelName(verbosity)},
		{"Database", dbPath},
		{"Warehouse", cfg.Warehouse.Driver},
		{"Mail", fmt.Sprintf("%s, %s", cfg.Mail.Transport, mailLimit)},
		{sym.Pulse + " Ticker", ticker},
		{"API", fmt.Sprintf("http://localhost:%d", port)},
	}).Render()

	fmt.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
