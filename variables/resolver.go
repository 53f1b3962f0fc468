package variables

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/warehouse"
)

// Kind is how a custom variable's value is interpreted.
type Kind string

const (
	KindStatic    Kind = "static"    // value used verbatim
	KindQuery     Kind = "query"     // value is SQL; first scalar of first row
	KindTimestamp Kind = "timestamp" // value is a token format rendered against now
	KindFormula   Kind = "formula"   // value with earlier variables substituted, no arithmetic
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindStatic, KindQuery, KindTimestamp, KindFormula:
		return true
	}
	return false
}

// Custom is an author-defined variable attached to a job.
type Custom struct {
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Input collects every variable source for one render, lowest precedence first.
type Input struct {
	System    SystemContext
	Template  map[string]string
	Custom    []Custom
	Overrides map[string]string
}

// Resolver builds the variable map for a render.
type Resolver struct {
	warehouse warehouse.Connector
	logger    *zap.SugaredLogger
}

// NewResolver creates a resolver. conn may be nil, in which case query
// variables resolve to "".
func NewResolver(conn warehouse.Connector) *Resolver {
	return &Resolver{
		warehouse: conn,
		logger:    logger.ComponentLogger("variables"),
	}
}

// Build resolves system, template, custom and override variables into one
// map. Later sources override earlier ones. A failing query variable
// resolves to "" and is logged; it never fails the build.
func (r *Resolver) Build(ctx context.Context, in Input) map[string]string {
	vars := System(in.System)
	for k, v := range in.Template {
		vars[k] = v
	}

	loc := in.System.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.System.Now.In(loc)

	for _, cv := range in.Custom {
		vars[cv.Name] = r.resolveCustom(ctx, cv, vars, now)
	}

	for k, v := range in.Overrides {
		vars[k] = v
	}
	return vars
}

func (r *Resolver) resolveCustom(ctx context.Context, cv Custom, resolved map[string]string, now time.Time) string {
	switch cv.Kind {
	case KindStatic:
		return cv.Value
	case KindTimestamp:
		return FormatTimestamp(cv.Value, now)
	case KindFormula:
		return Resolve(cv.Value, resolved)
	case KindQuery:
		v, err := r.query(ctx, cv.Value)
		if err != nil {
			r.logger.Warnw("Query variable failed, substituting empty string",
				logger.FieldVariable, cv.Name,
				logger.FieldError, err)
			return ""
		}
		return v
	default:
		r.logger.Warnw("Unknown variable kind", logger.FieldVariable, cv.Name, "kind", cv.Kind)
		return ""
	}
}

func (r *Resolver) query(ctx context.Context, sql string) (string, error) {
	if r.warehouse == nil {
		return "", errors.Mark(errors.New("no warehouse configured"), errors.ErrWarehouse)
	}
	res, err := r.warehouse.Execute(ctx, sql)
	if err != nil {
		return "", err
	}
	return res.ScalarString(), nil
}
