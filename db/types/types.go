package types

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// Querier runs SQL queries against a mail store.
type Querier interface {
	TimeNow() time.Time
	ExecContext(ctx context.Context, sql string, arguments ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Filter narrows down the rows a model query returns. Where is a SQL condition
// with positional parameters bound from Args.
type Filter struct {
	Where string
	Args  []any
	Limit int
}

// NewFilter creates a new query filter.
func NewFilter(where string, args []any) *Filter {
	return &Filter{Where: where, Args: args}
}

// And returns a filter matching rows that match both f and other. The limit of
// f is kept.
func (f *Filter) And(other *Filter) *Filter {
	return f.join("AND", other)
}

// Or returns a filter matching rows that match either f or other. The limit of
// f is kept.
func (f *Filter) Or(other *Filter) *Filter {
	return f.join("OR", other)
}

// Each side is parenthesized, so that joined filters keep their precedence
// when combined further.
func (f *Filter) join(op string, other *Filter) *Filter {
	return &Filter{
		Where: fmt.Sprintf("(%s) %s (%s)", f.Where, op, other.Where),
		Args:  slices.Concat(f.Args, other.Args),
		Limit: f.Limit,
	}
}
