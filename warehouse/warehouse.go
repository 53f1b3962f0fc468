// Package warehouse runs analytic queries against the reporting database.
package warehouse

import (
	"context"
	"fmt"
)

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is a tabular query result.
type Result struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Connector executes read-only SQL and returns rows.
type Connector interface {
	Execute(ctx context.Context, query string) (*Result, error)
}

// ColumnNames returns the names of the result columns in order.
func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Records converts rows to column-keyed maps, keeping at most limit rows
// when limit > 0.
func (r *Result) Records(limit int) []map[string]any {
	n := len(r.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]map[string]any, 0, n)
	for _, row := range r.Rows[:n] {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col.Name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Scalar returns the first column of the first row.
func (r *Result) Scalar() (any, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// ScalarString renders the first column of the first row as text,
// "" when there are no rows or the value is NULL.
func (r *Result) ScalarString() string {
	v, ok := r.Scalar()
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
