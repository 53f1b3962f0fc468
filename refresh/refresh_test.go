package refresh

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/warehouse"
)

// stubWarehouse answers queries from a map; unknown queries fail
type stubWarehouse struct {
	mu       sync.Mutex
	results  map[string]*warehouse.Result
	calls    []string
	delay    time.Duration
	inflight int32
	peak     int32
}

func (s *stubWarehouse) Execute(ctx context.Context, query string) (*warehouse.Result, error) {
	n := atomic.AddInt32(&s.inflight, 1)
	defer atomic.AddInt32(&s.inflight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(s.delay)

	s.mu.Lock()
	s.calls = append(s.calls, query)
	s.mu.Unlock()

	if res, ok := s.results[query]; ok {
		return res, nil
	}
	return nil, errors.Mark(errors.Newf("no such table in %q", query), errors.ErrWarehouse)
}

func scalar(name string, v any) *warehouse.Result {
	return &warehouse.Result{
		Columns: []warehouse.Column{{Name: name, Type: "INTEGER"}},
		Rows:    [][]any{{v}},
	}
}

func metric(id, query string) *content.Element {
	return &content.Element{ID: id, Kind: content.KindMetric, DataSource: &content.DataSource{Query: query}}
}

func TestRefreshMetricElement(t *testing.T) {
	wh := &stubWarehouse{results: map[string]*warehouse.Result{
		"SELECT 42 AS v": scalar("v", int64(42)),
	}}
	el := metric("m1", "SELECT 42 AS v")

	report := NewEngine(wh, 2).Refresh(context.Background(), []*content.Element{el})

	assert.Equal(t, 1, report.RefreshedCount)
	assert.Empty(t, report.FailedElementIDs)
	assert.False(t, report.Failed())
	require.Len(t, el.Content.Data, 1)
	assert.Equal(t, int64(42), el.Content.Data[0]["v"])
	assert.Equal(t, []string{"v"}, el.Columns)
	assert.NotNil(t, el.RefreshedAt)
}

func TestRefreshQueryElementHonorsLimit(t *testing.T) {
	res := &warehouse.Result{
		Columns: []warehouse.Column{{Name: "region"}, {Name: "total"}},
		Rows:    [][]any{{"EU", 3}, {"US", 5}, {"APAC", 1}},
	}
	wh := &stubWarehouse{results: map[string]*warehouse.Result{"SELECT region, total FROM sales": res}}
	el := &content.Element{
		ID:         "q1",
		Kind:       content.KindQuery,
		DataSource: &content.DataSource{Query: "SELECT region, total FROM sales", Limit: 2},
	}

	report := NewEngine(wh, 0).Refresh(context.Background(), []*content.Element{el})

	assert.Equal(t, 1, report.RefreshedCount)
	require.Len(t, el.Data, 2)
	assert.Equal(t, "EU", el.Data[0]["region"])
	assert.Equal(t, []string{"region", "total"}, el.ColumnNames())
}

func TestRefreshFailureKeepsPreviousDataAndOthersProceed(t *testing.T) {
	wh := &stubWarehouse{results: map[string]*warehouse.Result{
		"SELECT 1": scalar("v", 1),
		"SELECT 2": scalar("v", 2),
	}}
	broken := metric("broken", "SELECT * FROM missing")
	broken.Content.Data = []map[string]any{{"v": "stale"}}

	els := []*content.Element{metric("a", "SELECT 1"), broken, metric("b", "SELECT 2")}
	report := NewEngine(wh, 3).Refresh(context.Background(), els)

	assert.Equal(t, 2, report.RefreshedCount)
	assert.Equal(t, []string{"broken"}, report.FailedElementIDs)
	assert.True(t, report.Failed())
	assert.Equal(t, "stale", broken.Content.Data[0]["v"])
	assert.Nil(t, broken.RefreshedAt)
	assert.Equal(t, 1, els[0].Content.Data[0]["v"])
	assert.Equal(t, 2, els[2].Content.Data[0]["v"])
}

func TestRefreshSkipsStaticElements(t *testing.T) {
	wh := &stubWarehouse{}
	els := []*content.Element{
		{ID: "t", Kind: content.KindText, Text: "hello"},
		{ID: "i", Kind: content.KindImage, ImageURL: "https://example.com/x.png"},
		{ID: "m", Kind: content.KindMetric}, // no data source
		{ID: "q", Kind: content.KindQuery, DataSource: &content.DataSource{Query: "   "}},
	}

	report := NewEngine(wh, 2).Refresh(context.Background(), els)
	assert.Zero(t, report.RefreshedCount)
	assert.Empty(t, report.FailedElementIDs)
	assert.Empty(t, wh.calls)
}

func TestRefreshBoundsConcurrency(t *testing.T) {
	results := map[string]*warehouse.Result{}
	var els []*content.Element
	for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3", "SELECT 4", "SELECT 5", "SELECT 6"} {
		results[q] = scalar("v", 1)
		els = append(els, metric(strings.ReplaceAll(q, " ", "_"), q))
	}
	wh := &stubWarehouse{results: results, delay: 15 * time.Millisecond}

	report := NewEngine(wh, 2).Refresh(context.Background(), els)
	assert.Equal(t, 6, report.RefreshedCount)
	assert.LessOrEqual(t, atomic.LoadInt32(&wh.peak), int32(2))
}

func TestRefreshIsIdempotent(t *testing.T) {
	wh := &stubWarehouse{results: map[string]*warehouse.Result{"SELECT 7": scalar("v", 7)}}
	el := metric("m", "SELECT 7")
	engine := NewEngine(wh, 1)

	engine.Refresh(context.Background(), []*content.Element{el})
	first := el.Content.Data
	engine.Refresh(context.Background(), []*content.Element{el})
	assert.Equal(t, first, el.Content.Data)
}

func TestRefreshWithoutWarehouse(t *testing.T) {
	el := metric("m", "SELECT 1")
	report := NewEngine(nil, 1).Refresh(context.Background(), []*content.Element{el})
	assert.Equal(t, []string{"m"}, report.FailedElementIDs)
}

func TestRefreshSlides(t *testing.T) {
	wh := &stubWarehouse{results: map[string]*warehouse.Result{"SELECT 9": scalar("v", 9)}}
	slides := []*content.Slide{
		{ID: "s1", Elements: []*content.Element{metric("m1", "SELECT 9")}},
		{ID: "s2", Elements: []*content.Element{{ID: "t", Kind: content.KindText}}},
	}
	report := NewEngine(wh, 2).RefreshSlides(context.Background(), slides)
	assert.Equal(t, 1, report.RefreshedCount)
	assert.Equal(t, 9, slides[0].Elements[0].Content.Data[0]["v"])
}

func TestSetMaxConcurrency(t *testing.T) {
	e := NewEngine(nil, 0)
	assert.Equal(t, DefaultMaxConcurrency, e.MaxConcurrency())
	e.SetMaxConcurrency(8)
	assert.Equal(t, 8, e.MaxConcurrency())
}
