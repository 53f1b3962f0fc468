package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/db"
	"github.com/teranos/briefing/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Migrations and statistics",
	Long: sym.DB + ` db — Migrations and statistics

Examples:
  briefing db migrate             # Apply pending migrations
  briefing db stats               # Row counts per table`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and applied migrations",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s Database is up to date (%d migrations applied)\n", sym.DB, len(versions))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := db.Stats(database)
	if err != nil {
		return err
	}
	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}

	path := dbPathFlag
	if path == "" {
		path, _ = am.GetDatabasePath()
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n", path)
	if len(versions) > 0 {
		fmt.Printf("Schema:        %s (%d migrations)\n", versions[len(versions)-1], len(versions))
	}
	fmt.Println()

	data := pterm.TableData{{"Table", "Rows"}}
	for _, s := range stats {
		data = append(data, []string{s.Table, fmt.Sprintf("%d", s.Rows)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
