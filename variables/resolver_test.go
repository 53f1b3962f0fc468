package variables

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/warehouse"
)

// fakeWarehouse answers queries from a fixed table.
type fakeWarehouse struct {
	mu      sync.Mutex
	results map[string]*warehouse.Result
	calls   []string
}

func (f *fakeWarehouse) Execute(_ context.Context, query string) (*warehouse.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	res, ok := f.results[query]
	if !ok {
		return nil, errors.Mark(errors.Newf("no such table in %q", query), errors.ErrWarehouse)
	}
	return res, nil
}

func scalar(v any) *warehouse.Result {
	return &warehouse.Result{Columns: []warehouse.Column{{Name: "v"}}, Rows: [][]any{{v}}}
}

var fixedNow = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func TestSystemVariables(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	vars := System(SystemContext{
		ReportName:   "Support weekly",
		DashboardURL: "https://bi.example.com/p/T1",
		Metrics:      []Metric{{Value: "42", Label: "Open tickets"}},
		Now:          fixedNow,
		Location:     ams,
	})

	assert.Equal(t, "Support weekly", vars[ReportName])
	assert.Equal(t, "https://bi.example.com/p/T1", vars[DashboardURL])
	assert.Equal(t, "March 4, 2024", vars[CurrentDate])
	assert.Equal(t, "10:00 AM CET", vars[CurrentTime])
	assert.Equal(t, "2024-03-04", vars[GenerationDate])
	assert.Equal(t, "09:00:00 UTC", vars[GenerationTime])
	assert.Equal(t, "42", vars["metric_1_value"])
	assert.Equal(t, "Open tickets", vars["metric_1_label"])
	assert.Equal(t, "", vars["metric_3_value"], "missing metrics resolve to empty")
}

func TestIsSystemName(t *testing.T) {
	assert.True(t, IsSystemName("report_name"))
	assert.True(t, IsSystemName("metric_2_label"))
	assert.False(t, IsSystemName("metric_4_label"))
	assert.False(t, IsSystemName("team"))
}

func TestBuildPrecedence(t *testing.T) {
	r := NewResolver(nil)
	vars := r.Build(context.Background(), Input{
		System:    SystemContext{ReportName: "System name", Now: fixedNow},
		Template:  map[string]string{"greeting": "Hello", "team": "template"},
		Custom:    []Custom{{Name: "team", Kind: KindStatic, Value: "custom"}},
		Overrides: map[string]string{"greeting": "Preview hello"},
	})

	assert.Equal(t, "System name", vars[ReportName])
	assert.Equal(t, "custom", vars["team"], "custom beats template")
	assert.Equal(t, "Preview hello", vars["greeting"], "overrides win")
}

func TestBuildCustomKinds(t *testing.T) {
	wh := &fakeWarehouse{results: map[string]*warehouse.Result{
		"SELECT COUNT(*) FROM tickets": scalar(int64(17)),
		"SELECT name FROM empty":       {Columns: []warehouse.Column{{Name: "name"}}},
	}}
	r := NewResolver(wh)

	vars := r.Build(context.Background(), Input{
		System: SystemContext{ReportName: "Weekly", Now: fixedNow},
		Custom: []Custom{
			{Name: "team", Kind: KindStatic, Value: "Support"},
			{Name: "open", Kind: KindQuery, Value: "SELECT COUNT(*) FROM tickets"},
			{Name: "nobody", Kind: KindQuery, Value: "SELECT name FROM empty"},
			{Name: "week", Kind: KindTimestamp, Value: "[W/c] DD MMM"},
			{Name: "headline", Kind: KindFormula, Value: "{team}: {open} open ({report_name}) {later}"},
			{Name: "later", Kind: KindStatic, Value: "too late"},
		},
	})

	assert.Equal(t, "Support", vars["team"])
	assert.Equal(t, "17", vars["open"])
	assert.Equal(t, "", vars["nobody"])
	assert.Equal(t, "W/c 04 Mar", vars["week"])
	assert.Equal(t, "Support: 17 open (Weekly) {later}", vars["headline"],
		"formula sees only variables resolved before it")
}

func TestBuildFailingQueryResolvesEmpty(t *testing.T) {
	wh := &fakeWarehouse{results: map[string]*warehouse.Result{}}
	r := NewResolver(wh)

	vars := r.Build(context.Background(), Input{
		System: SystemContext{Now: fixedNow},
		Custom: []Custom{{Name: "broken", Kind: KindQuery, Value: "SELECT * FROM missing"}},
	})

	v, ok := vars["broken"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
	assert.Equal(t, "Total: ", Resolve("Total: {broken}", vars))
}

func TestBuildQueryIsDeterministic(t *testing.T) {
	wh := &fakeWarehouse{results: map[string]*warehouse.Result{"SELECT 1": scalar(int64(1))}}
	r := NewResolver(wh)
	in := Input{System: SystemContext{Now: fixedNow}, Custom: []Custom{{Name: "one", Kind: KindQuery, Value: "SELECT 1"}}}

	first := r.Build(context.Background(), in)
	second := r.Build(context.Background(), in)
	assert.Equal(t, first, second)
	assert.Len(t, wh.calls, 2)
}

func TestBuildWithoutWarehouse(t *testing.T) {
	vars := NewResolver(nil).Build(context.Background(), Input{
		System: SystemContext{Now: fixedNow},
		Custom: []Custom{{Name: "q", Kind: KindQuery, Value: "SELECT 1"}, {Name: "odd", Kind: Kind("lua"), Value: "x"}},
	})
	assert.Equal(t, "", vars["q"])
	assert.Equal(t, "", vars["odd"])
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindStatic, KindQuery, KindTimestamp, KindFormula} {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("script").Valid())
}
