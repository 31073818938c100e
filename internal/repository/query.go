package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageWindow normalises page parameters into LIMIT/OFFSET values.
func pageWindow(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}

// whereBuilder accumulates positional postgres conditions.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a condition whose single placeholder is written as "?".
func (w *whereBuilder) add(condition string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, strings.ReplaceAll(condition, "?", fmt.Sprintf("$%d", len(w.args))))
}

// addRaw appends a condition without arguments.
func (w *whereBuilder) addRaw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *whereBuilder) clause() string {
	var b strings.Builder
	b.WriteString(" WHERE 1=1")
	for _, c := range w.conditions {
		b.WriteString(" AND ")
		b.WriteString(c)
	}
	return b.String()
}

// nextCode renders the next value of a postgres sequence through format.
func nextCode(ctx context.Context, db sqlx.QueryerContext, sequence, format string) (string, error) {
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, fmt.Sprintf("SELECT nextval('%s')", sequence)); err != nil {
		return "", fmt.Errorf("next %s: %w", sequence, err)
	}
	return fmt.Sprintf(format, n), nil
}

const nextReceiptQuery = `INSERT INTO receipt_counters (prefix, year, value) VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET value = receipt_counters.value + 1
RETURNING value`

// nextYearlyReceipt renders PREFIX-YYYY-000001 style receipt numbers. The
// counter starts over at 1 every year.
func nextYearlyReceipt(ctx context.Context, db sqlx.QueryerContext, prefix string, now time.Time) (string, error) {
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, nextReceiptQuery, prefix, now.Year()); err != nil {
		return "", fmt.Errorf("next %s receipt: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, now.Year(), n), nil
}

// setBuilder accumulates "column = $n" assignments for partial updates.
type setBuilder struct {
	columns []string
	args    []interface{}
}

func (s *setBuilder) set(column string, value interface{}) {
	s.args = append(s.args, value)
	s.columns = append(s.columns, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setBuilder) empty() bool { return len(s.columns) == 0 }

// update renders UPDATE table SET ... WHERE id = $n with id as the last argument.
func (s *setBuilder) update(table, id string) (string, []interface{}) {
	args := append(s.args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(s.columns, ", "), len(args)), args
}
