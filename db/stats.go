package db

import (
	"database/sql"

	"github.com/teranos/briefing/errors"
)

// TableStat is a row count for one table.
type TableStat struct {
	Table string
	Rows  int64
}

// statTables are the tables reported by `briefing db stats`.
var statTables = []string{"presentations", "slides", "report_jobs", "report_executions"}

// Stats returns row counts for the application tables.
func Stats(db *sql.DB) ([]TableStat, error) {
	stats := make([]TableStat, 0, len(statTables))
	for _, table := range statTables {
		var n int64
		// table names come from statTables, never from input
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", table)
		}
		stats = append(stats, TableStat{Table: table, Rows: n})
	}
	return stats, nil
}
