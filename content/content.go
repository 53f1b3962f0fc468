// Package content models the analytic documents a report job delivers:
// presentations made of slides, slides made of positioned elements.
// Templates are presentations with IsTemplate set whose data-bound elements
// are refreshed before each delivery.
package content

import (
	"sort"
	"strings"
	"time"
)

// ElementKind is the type of a slide element
type ElementKind string

const (
	KindText   ElementKind = "text"
	KindImage  ElementKind = "image"
	KindMetric ElementKind = "metric"
	KindQuery  ElementKind = "query"
)

// Valid reports whether k is a known element kind.
func (k ElementKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindMetric, KindQuery:
		return true
	}
	return false
}

// Rect positions an element on its slide.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DataSource binds a metric or query element to a warehouse query.
type DataSource struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"` // 0 = connector default
}

// MetricContent is the payload of a metric element.
type MetricContent struct {
	Value string           `json:"value,omitempty"` // static fallback shown before the first refresh
	Label string           `json:"label,omitempty"`
	Data  []map[string]any `json:"data,omitempty"`
}

// Element is one positioned item on a slide.
type Element struct {
	ID          string            `json:"id"`
	Kind        ElementKind       `json:"kind"`
	Rect        Rect              `json:"rect"`
	Style       map[string]string `json:"style,omitempty"`
	Text        string            `json:"text,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Title       string            `json:"title,omitempty"`
	DataSource  *DataSource       `json:"data_source,omitempty"`
	Content     MetricContent     `json:"content"`        // metric payload
	Data        []map[string]any  `json:"data,omitempty"` // query payload
	Columns     []string          `json:"columns,omitempty"`
	RefreshedAt *time.Time        `json:"refreshed_at,omitempty"`
}

// DataBound reports whether the element is refreshed from the warehouse.
func (e *Element) DataBound() bool {
	if e.Kind != KindMetric && e.Kind != KindQuery {
		return false
	}
	return e.DataSource != nil && strings.TrimSpace(e.DataSource.Query) != ""
}

// SetRows stores refreshed rows on the payload field for the element's kind.
func (e *Element) SetRows(rows []map[string]any, columns []string, at time.Time) {
	switch e.Kind {
	case KindMetric:
		e.Content.Data = rows
	case KindQuery:
		e.Data = rows
	default:
		return
	}
	e.Columns = columns
	e.RefreshedAt = &at
}

// Rows returns the element's current data rows.
func (e *Element) Rows() []map[string]any {
	if e.Kind == KindMetric {
		return e.Content.Data
	}
	return e.Data
}

// ColumnNames returns the element's column order: as last returned by the
// warehouse, or the sorted keys of the first row for hand-authored data.
func (e *Element) ColumnNames() []string {
	if len(e.Columns) > 0 {
		return e.Columns
	}
	rows := e.Rows()
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Slide is one page of a presentation.
type Slide struct {
	ID              string     `json:"id"`
	PresentationID  string     `json:"presentation_id"`
	Position        int        `json:"position"`
	Elements        []*Element `json:"elements"` // z-order
	BackgroundImage *string    `json:"background_image,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Presentation is a fixed report, or a template when IsTemplate is set.
type Presentation struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsTemplate  bool      `json:"is_template"`
	SlideIDs    []string  `json:"slide_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AllElements flattens the elements of slides in slide then z-order.
func AllElements(slides []*Slide) []*Element {
	var out []*Element
	for _, s := range slides {
		out = append(out, s.Elements...)
	}
	return out
}

// MetricElements returns the metric elements of slides in document order.
func MetricElements(slides []*Slide) []*Element {
	var out []*Element
	for _, e := range AllElements(slides) {
		if e.Kind == KindMetric {
			out = append(out, e)
		}
	}
	return out
}
