// Package render turns resolved slides and variables into an HTML email body.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"math"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/variables"
)

//go:embed skeletons/*.html
var skeletonFS embed.FS

//go:embed slides.html.tmpl
var slidesTemplate string

// DefaultSkeleton is used when a job names no skeleton.
const DefaultSkeleton = "basic"

// Placeholders filled by the renderer itself.
const (
	BodyVar    = "body"
	ContentVar = "content"
)

// Renderer holds the parsed skeletons and slide template.
type Renderer struct {
	skeletons map[string]string
	slides    *template.Template
}

// Document is everything needed to render one email.
type Document struct {
	SkeletonID    string
	CustomContent string // author HTML; {{name}} normalized, placeholders resolved, values escaped
	Slides        []*content.Slide
	Vars          map[string]string
}

// New loads the embedded skeletons. {{name}} placeholders are normalized
// to {name} at load.
func New() (*Renderer, error) {
	entries, err := skeletonFS.ReadDir("skeletons")
	if err != nil {
		return nil, errors.Wrap(err, "read skeletons")
	}

	r := &Renderer{skeletons: map[string]string{}}
	for _, e := range entries {
		data, err := skeletonFS.ReadFile(path.Join("skeletons", e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read skeleton %s", e.Name())
		}
		id := strings.TrimSuffix(e.Name(), ".html")
		r.skeletons[id] = variables.NormalizeLegacy(string(data))
	}

	r.slides, err = template.New("email").Funcs(template.FuncMap{
		"metricValue": MetricValue,
		"metricLabel": MetricLabel,
		"style":       inlineStyle,
		"cell":        cell,
	}).Parse(slidesTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parse slide template")
	}
	return r, nil
}

// Skeletons returns the available skeleton IDs, sorted.
func (r *Renderer) Skeletons() []string {
	ids := make([]string, 0, len(r.skeletons))
	for id := range r.skeletons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether a skeleton exists. The empty ID means DefaultSkeleton.
func (r *Renderer) Has(id string) bool {
	if id == "" {
		id = DefaultSkeleton
	}
	_, ok := r.skeletons[id]
	return ok
}

// Render produces the HTML body for doc.
func (r *Renderer) Render(doc Document) (string, error) {
	id := doc.SkeletonID
	if id == "" {
		id = DefaultSkeleton
	}
	skeleton, ok := r.skeletons[id]
	if !ok {
		return "", errors.NewInvalidRequestError("unknown email template %q", id)
	}

	slidesHTML, err := r.RenderSlides(doc.Slides)
	if err != nil {
		return "", err
	}

	escaped := make(map[string]string, len(doc.Vars)+2)
	for k, v := range doc.Vars {
		escaped[k] = html.EscapeString(v)
	}
	escaped[BodyVar] = variables.Resolve(variables.NormalizeLegacy(doc.CustomContent), escaped)
	escaped[ContentVar] = slidesHTML

	return variables.Resolve(skeleton, escaped), nil
}

// RenderSlides renders slides to an HTML fragment.
func (r *Renderer) RenderSlides(slides []*content.Slide) (string, error) {
	var buf bytes.Buffer
	if err := r.slides.ExecuteTemplate(&buf, "slides", slides); err != nil {
		return "", errors.Wrap(err, "render slides")
	}
	return buf.String(), nil
}

// MetricValue is the headline figure of a metric element: the first value
// of the first refreshed row, else the static fallback.
func MetricValue(e *content.Element) string {
	rows := e.Content.Data
	if len(rows) > 0 {
		cols := e.ColumnNames()
		if len(cols) > 0 {
			return cell(rows[0][cols[0]])
		}
	}
	return e.Content.Value
}

// MetricLabel is the caption of a metric element.
func MetricLabel(e *content.Element) string {
	if e.Content.Label != "" {
		return e.Content.Label
	}
	return e.Title
}

// Metrics collects up to variables.MaxMetrics headline figures from slides.
func Metrics(slides []*content.Slide) []variables.Metric {
	var out []variables.Metric
	for _, e := range content.MetricElements(slides) {
		if len(out) == variables.MaxMetrics {
			break
		}
		out = append(out, variables.Metric{Value: MetricValue(e), Label: MetricLabel(e)})
	}
	return out
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		// JSON round trips turn integers into float64
		if math.Abs(t) < 1<<53 && t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// styleProperties are the element style keys copied into inline CSS.
var styleProperties = map[string]bool{
	"color": true, "background-color": true,
	"font-size": true, "font-weight": true, "font-style": true,
	"text-align": true, "text-decoration": true, "text-transform": true,
	"line-height": true, "letter-spacing": true, "vertical-align": true,
	"padding": true, "padding-top": true, "padding-right": true, "padding-bottom": true, "padding-left": true,
	"margin": true, "margin-top": true, "margin-right": true, "margin-bottom": true, "margin-left": true,
	"border": true, "border-top": true, "border-bottom": true, "border-radius": true,
	"width": true, "height": true, "max-width": true,
}

// styleValueRe admits plain keywords, lengths, hex colours and rgb()/hsl()
// colour functions. Quotes, url(), expression() and semicolons never match.
var styleValueRe = regexp.MustCompile(`^(?:[\w#%.,\s-]|(?:rgba?|hsla?)\([\d.,%\s]*\))+$`)

// inlineStyle renders an element style map as CSS declarations. Unknown
// properties and values outside styleValueRe are dropped.
func inlineStyle(style map[string]string) template.CSS {
	seen := make(map[string]bool, len(style))
	keys := make([]string, 0, len(style))
	for k := range style {
		k = strings.ToLower(strings.TrimSpace(k))
		if styleProperties[k] && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := strings.TrimSpace(styleValue(style, k))
		if v == "" || !styleValueRe.MatchString(v) || strings.Contains(v, "--") {
			continue
		}
		fmt.Fprintf(&b, "%s: %s; ", k, v)
	}
	return template.CSS(strings.TrimSpace(b.String()))
}

func styleValue(style map[string]string, key string) string {
	if v, ok := style[key]; ok {
		return v
	}
	for k, v := range style {
		if strings.ToLower(strings.TrimSpace(k)) == key {
			return v
		}
	}
	return ""
}
