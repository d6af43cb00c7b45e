// Package store implements the bulk-read capability of live views against
// Postgres, compiling filter and order specs into parameterized SQL.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberhealth/clinicflow/internal/liveview"
)

// identPattern restricts table and column names to plain identifiers;
// everything else is rejected before it can reach the SQL text.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// opSQL is the fixed translation table from the closed operator set to
// SQL comparison fragments. Is and In need special argument handling and
// are dispatched separately.
var opSQL = map[liveview.Op]string{
	liveview.OpEq:    "=",
	liveview.OpNeq:   "<>",
	liveview.OpGt:    ">",
	liveview.OpGte:   ">=",
	liveview.OpLt:    "<",
	liveview.OpLte:   "<=",
	liveview.OpLike:  "LIKE",
	liveview.OpILike: "ILIKE",
}

type queryDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresQuerier is a liveview.Querier over a pgx pool.
type PostgresQuerier struct {
	db queryDB
}

// NewPostgresQuerier initializes a querier backed by pgxpool.
func NewPostgresQuerier(pool *pgxpool.Pool) *PostgresQuerier {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &PostgresQuerier{db: pool}
}

// NewPostgresQuerierWithDB allows injecting a mock database for testing.
func NewPostgresQuerierWithDB(db queryDB) *PostgresQuerier {
	return &PostgresQuerier{db: db}
}

// Query runs one bulk read and returns rows as field-to-value maps.
func (q *PostgresQuerier) Query(ctx context.Context, req liveview.QueryRequest) ([]liveview.Row, error) {
	sql, args, err := buildQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", req.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []liveview.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("store: read row values: %w", err)
		}
		row := make(liveview.Row, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				row[string(fd.Name)] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

func buildQuery(req liveview.QueryRequest) (string, []any, error) {
	if err := checkIdent(req.Table); err != nil {
		return "", nil, err
	}
	if err := req.Filter.Validate(); err != nil {
		return "", nil, err
	}

	columns := "*"
	if len(req.Fields) > 0 {
		quoted := make([]string, len(req.Fields))
		for i, f := range req.Fields {
			if err := checkIdent(f); err != nil {
				return "", nil, err
			}
			quoted[i] = quoteIdent(f)
		}
		columns = strings.Join(quoted, ", ")
	}

	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, quoteIdent(req.Table))

	if len(req.Filter) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range req.Filter {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if err := checkIdent(c.Field); err != nil {
				return "", nil, err
			}
			clause, clauseArgs, err := conditionSQL(c, len(args)+1)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(clause)
			args = append(args, clauseArgs...)
		}
	}

	if req.Order != nil {
		if err := checkIdent(req.Order.Field); err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if req.Order.Direction == liveview.Descending {
			dir = "DESC"
		}
		nulls := "NULLS LAST"
		if req.Order.Nulls == liveview.NullsFirst {
			nulls = "NULLS FIRST"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s %s", quoteIdent(req.Order.Field), dir, nulls)
	}

	if req.Limit > 0 {
		args = append(args, req.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return b.String(), args, nil
}

func conditionSQL(c liveview.Condition, argIdx int) (string, []any, error) {
	field := quoteIdent(c.Field)
	switch c.Op {
	case liveview.OpIs:
		switch v := c.Operand.(type) {
		case nil:
			return field + " IS NULL", nil, nil
		case bool:
			if v {
				return field + " IS TRUE", nil, nil
			}
			return field + " IS FALSE", nil, nil
		default:
			return "", nil, fmt.Errorf("store: IS operand must be nil or bool, got %T", c.Operand)
		}
	case liveview.OpIn:
		return fmt.Sprintf("%s = ANY($%d)", field, argIdx), []any{c.Operand}, nil
	default:
		op, ok := opSQL[c.Op]
		if !ok {
			return "", nil, fmt.Errorf("store: operator %v has no SQL translation", c.Op)
		}
		return fmt.Sprintf("%s %s $%d", field, op, argIdx), []any{c.Operand}, nil
	}
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("store: invalid identifier %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
