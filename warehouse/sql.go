package warehouse

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrNotReadOnly is returned for statements other than SELECT or WITH.
var ErrNotReadOnly = errors.New("only read-only queries are allowed")

// Options tune an SQLConnector.
type Options struct {
	QueryTimeout     time.Duration // 0 = no per-query timeout
	MaxRows          int           // 0 = unlimited
	QueriesPerSecond float64       // 0 = unlimited
}

// SQLConnector runs queries over database/sql, paced by a token bucket.
type SQLConnector struct {
	db      *sql.DB
	opts    Options
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// Open connects to a warehouse with the given driver and DSN.
func Open(driver, dsn string, opts Options) (*SQLConnector, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.Newf("unsupported warehouse driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s warehouse", driver)
	}
	return NewSQLConnector(db, opts), nil
}

// NewSQLConnector wraps an open database handle.
func NewSQLConnector(db *sql.DB, opts Options) *SQLConnector {
	limit := rate.Inf
	burst := 1
	if opts.QueriesPerSecond > 0 {
		limit = rate.Limit(opts.QueriesPerSecond)
		burst = int(opts.QueriesPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &SQLConnector{
		db:      db,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.AddWarehouseSymbol(logger.ComponentLogger("warehouse")),
	}
}

// Execute runs a read-only query inside a read-only transaction that is
// always rolled back. Every failure is marked errors.ErrWarehouse.
func (c *SQLConnector) Execute(ctx context.Context, query string) (*Result, error) {
	query, err := readOnly(query)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrWarehouse)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "waiting for warehouse rate limit"), errors.ErrWarehouse)
	}

	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}

	// drivers that honour ReadOnly (postgres) refuse writes the lexical check missed
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to begin read-only transaction"), errors.ErrWarehouse)
	}
	defer tx.Rollback()

	start := time.Now()
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "warehouse query failed"), errors.ErrWarehouse)
	}
	defer rows.Close()

	result, err := scanResult(rows, c.opts.MaxRows)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrWarehouse)
	}

	c.logger.Debugw("Warehouse query complete",
		logger.FieldQuery, query,
		logger.FieldCount, len(result.Rows),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return result, nil
}

// Ping checks connectivity.
func (c *SQLConnector) Ping(ctx context.Context) error {
	return errors.Wrap(c.db.PingContext(ctx), "warehouse ping failed")
}

// Close closes the underlying database handle.
func (c *SQLConnector) Close() error {
	return c.db.Close()
}

func scanResult(rows *sql.Rows, maxRows int) (*Result, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read column types")
	}

	result := &Result{Columns: make([]Column, len(types)), Rows: [][]any{}}
	for i, ct := range types {
		result.Columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			break
		}
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "failed to scan warehouse row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "warehouse row iteration failed")
	}
	return result, nil
}

// readOnly accepts a single SELECT or WITH statement. Leading comments are
// skipped, quoted text and comments may hold semicolons, and a trailing
// semicolon is dropped. The returned query is what gets executed.
func readOnly(query string) (string, error) {
	body := skipComments(query)
	if body == "" {
		return "", errors.WithHint(ErrNotReadOnly, "query is empty")
	}

	end := statementEnd(query)
	if end < len(query) && skipComments(query[end+1:]) != "" {
		return "", errors.WithHint(ErrNotReadOnly, "multiple statements are not allowed")
	}

	keyword := strings.Fields(body)[0]
	if i := strings.IndexAny(keyword, "(;"); i > 0 {
		keyword = keyword[:i]
	}
	switch strings.ToUpper(keyword) {
	case "SELECT", "WITH":
		return strings.TrimSpace(query[:end]), nil
	}
	return "", errors.WithDetailf(ErrNotReadOnly, "statement starts with %s", keyword)
}

// skipComments drops leading whitespace and -- or /* */ comments.
func skipComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q[2:], "*/")
			if i < 0 {
				return ""
			}
			q = q[i+4:]
		default:
			return q
		}
	}
}

// statementEnd returns the index of the first semicolon outside quotes and
// comments, or len(q) when there is none.
func statementEnd(q string) int {
	for i := 0; i < len(q); i++ {
		switch c := q[i]; {
		case c == '\'' || c == '"' || c == '`':
			// doubled quotes ('it''s') close and reopen, which this handles
			j := strings.IndexByte(q[i+1:], c)
			if j < 0 {
				return len(q)
			}
			i += j + 1
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			j := strings.IndexByte(q[i:], '\n')
			if j < 0 {
				return len(q)
			}
			i += j
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			j := strings.Index(q[i+2:], "*/")
			if j < 0 {
				return len(q)
			}
			i += j + 3
		case c == ';':
			return i
		}
	}
	return len(q)
}
