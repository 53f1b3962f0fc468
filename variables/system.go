package variables

import (
	"fmt"
	"time"
)

// System variable names. Custom variables may not reuse them.
const (
	ReportName     = "report_name"
	CurrentDate    = "current_date"
	CurrentTime    = "current_time"
	GenerationDate = "generation_date"
	GenerationTime = "generation_time"
	DashboardURL   = "dashboard_url"
)

// MaxMetrics is how many metric_N_value/label pairs the dashboard skeleton shows.
const MaxMetrics = 3

var systemNames = func() map[string]bool {
	names := map[string]bool{
		ReportName: true, CurrentDate: true, CurrentTime: true,
		GenerationDate: true, GenerationTime: true, DashboardURL: true,
	}
	for i := 1; i <= MaxMetrics; i++ {
		names[MetricValueName(i)] = true
		names[MetricLabelName(i)] = true
	}
	return names
}()

// IsSystemName reports whether name is reserved for a system variable.
func IsSystemName(name string) bool {
	return systemNames[name]
}

// MetricValueName returns "metric_<i>_value".
func MetricValueName(i int) string { return fmt.Sprintf("metric_%d_value", i) }

// MetricLabelName returns "metric_<i>_label".
func MetricLabelName(i int) string { return fmt.Sprintf("metric_%d_label", i) }

// Metric is one headline figure for the dashboard skeleton.
type Metric struct {
	Value string
	Label string
}

// SystemContext is what the system variables are computed from.
type SystemContext struct {
	ReportName   string
	DashboardURL string
	Metrics      []Metric // first MaxMetrics are used
	Now          time.Time
	Location     *time.Location // nil = UTC
}

// System computes the system variables for one render.
// current_* use the job's timezone, generation_* are UTC.
func System(sc SystemContext) map[string]string {
	loc := sc.Location
	if loc == nil {
		loc = time.UTC
	}
	local := sc.Now.In(loc)
	utc := sc.Now.UTC()

	vars := map[string]string{
		ReportName:     sc.ReportName,
		DashboardURL:   sc.DashboardURL,
		CurrentDate:    local.Format("January 2, 2006"),
		CurrentTime:    local.Format("3:04 PM MST"),
		GenerationDate: utc.Format("2006-01-02"),
		GenerationTime: utc.Format("15:04:05 UTC"),
	}
	for i := 1; i <= MaxMetrics; i++ {
		var m Metric
		if i <= len(sc.Metrics) {
			m = sc.Metrics[i-1]
		}
		vars[MetricValueName(i)] = m.Value
		vars[MetricLabelName(i)] = m.Label
	}
	return vars
}
