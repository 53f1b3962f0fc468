// Package refresh re-runs the warehouse queries behind data-bound slide
// elements and stores the fresh rows on the elements.
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/warehouse"
)

// DefaultMaxConcurrency bounds concurrent queries when none is configured.
const DefaultMaxConcurrency = 4

// Report summarizes one refresh pass.
type Report struct {
	RefreshedCount   int      `json:"refreshed_count"`
	FailedElementIDs []string `json:"failed_element_ids"`
}

// Failed reports whether any element failed to refresh.
func (r Report) Failed() bool {
	return len(r.FailedElementIDs) > 0
}

// Engine refreshes data-bound elements against a warehouse.
type Engine struct {
	warehouse warehouse.Connector
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu             sync.RWMutex
	maxConcurrency int
}

// NewEngine creates an engine. maxConcurrency <= 0 uses DefaultMaxConcurrency.
func NewEngine(conn warehouse.Connector, maxConcurrency int) *Engine {
	e := &Engine{
		warehouse: conn,
		logger:    logger.AddRefreshSymbol(logger.ComponentLogger("refresh")),
		now:       time.Now,
	}
	e.SetMaxConcurrency(maxConcurrency)
	return e
}

// SetMaxConcurrency changes the query fan-out limit for later refreshes.
func (e *Engine) SetMaxConcurrency(n int) {
	if n <= 0 {
		n = DefaultMaxConcurrency
	}
	e.mu.Lock()
	e.maxConcurrency = n
	e.mu.Unlock()
}

// MaxConcurrency returns the current fan-out limit.
func (e *Engine) MaxConcurrency() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxConcurrency
}

// Refresh runs the query of every data-bound element and stores the rows on
// it. Elements that are not data-bound are skipped. A failing query is logged
// against its element, which keeps its previous data; other elements are
// unaffected. There are no retries. Refresh is idempotent apart from the
// refreshed-at stamp.
func (e *Engine) Refresh(ctx context.Context, elements []*content.Element) Report {
	var bound []*content.Element
	for _, el := range elements {
		if el != nil && el.DataBound() {
			bound = append(bound, el)
		}
	}
	report := Report{FailedElementIDs: []string{}}
	if len(bound) == 0 {
		return report
	}

	failed := make([]bool, len(bound))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.MaxConcurrency())

	start := e.now()
	for i, el := range bound {
		g.Go(func() error {
			if err := e.refreshElement(gctx, el); err != nil {
				failed[i] = true
				e.logger.Warnw("Element refresh failed, keeping previous data",
					logger.FieldElementID, el.ID,
					logger.FieldError, err)
			}
			// never cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	for i, el := range bound {
		if failed[i] {
			report.FailedElementIDs = append(report.FailedElementIDs, el.ID)
		} else {
			report.RefreshedCount++
		}
	}

	e.logger.Infow("Refresh complete",
		logger.FieldRefreshed, report.RefreshedCount,
		logger.FieldFailed, len(report.FailedElementIDs),
		logger.FieldDurationMS, e.now().Sub(start).Milliseconds())
	return report
}

// RefreshSlides refreshes every element on slides.
func (e *Engine) RefreshSlides(ctx context.Context, slides []*content.Slide) Report {
	return e.Refresh(ctx, content.AllElements(slides))
}

func (e *Engine) refreshElement(ctx context.Context, el *content.Element) error {
	if e.warehouse == nil {
		return errors.Mark(errors.Newf("no warehouse configured for element %s", el.ID), errors.ErrRefresh)
	}
	res, err := e.warehouse.Execute(ctx, el.DataSource.Query)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "refresh element %s", el.ID), errors.ErrRefresh)
	}
	el.SetRows(res.Records(el.DataSource.Limit), res.ColumnNames(), e.now().UTC())
	return nil
}
