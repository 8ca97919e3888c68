package database

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Builder errors.
var (
	ErrNoTable         = errors.New("query has no table")
	ErrNoAssignments   = errors.New("query has no assignments")
	ErrInsertCondition = errors.New("insert cannot carry conditions")
	ErrUnsafeMutation  = errors.New("update or delete without conditions")
)

type verb int

const (
	verbSelect verb = iota
	verbInsert
	verbUpdate
	verbDelete
)

// Condition is one conjunct of a WHERE clause.
type Condition struct {
	Column string
	Op     string
	Value  any
}

type assignment struct {
	column string
	value  any
}

// Query is a small mutable SQL builder over a single table. Conditions are
// always ANDed together and can only be added, never removed. Values are
// rendered as pgx $n placeholders.
type Query struct {
	verb      verb
	table     string
	columns   []string
	sets      []assignment
	conds     []Condition
	never     bool
	orderBy   []string
	limit     int
	offset    int
	returning []string
}

// Select starts a SELECT over table. No columns means "*".
func Select(table string, columns ...string) *Query {
	return &Query{verb: verbSelect, table: table, columns: columns}
}

// Insert starts an INSERT into table.
func Insert(table string) *Query {
	return &Query{verb: verbInsert, table: table}
}

// Update starts an UPDATE of table.
func Update(table string) *Query {
	return &Query{verb: verbUpdate, table: table}
}

// Delete starts a DELETE from table.
func Delete(table string) *Query {
	return &Query{verb: verbDelete, table: table}
}

// Table returns the table the query targets.
func (q *Query) Table() string { return q.table }

// Set assigns a column value for INSERT or UPDATE.
func (q *Query) Set(column string, value any) *Query {
	q.sets = append(q.sets, assignment{column: column, value: value})
	return q
}

// Eq adds column = value.
func (q *Query) Eq(column string, value any) *Query {
	return q.Where(column, "=", value)
}

// Where adds "column op value". op must be a comparison operator.
func (q *Query) Where(column, op string, value any) *Query {
	q.conds = append(q.conds, Condition{Column: column, Op: op, Value: value})
	return q
}

// HasEq reports whether the query already constrains column = value.
func (q *Query) HasEq(column string, value any) bool {
	for _, c := range q.conds {
		if c.Column == column && c.Op == "=" && reflect.DeepEqual(c.Value, value) {
			return true
		}
	}
	return false
}

// Never makes the query match no rows.
func (q *Query) Never() *Query {
	q.never = true
	return q
}

// IsNever reports whether Never was called.
func (q *Query) IsNever() bool { return q.never }

// Conditions returns a copy of the WHERE conjuncts.
func (q *Query) Conditions() []Condition {
	return append([]Condition(nil), q.conds...)
}

// OrderBy appends an ORDER BY term. expr is trusted SQL.
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = append(q.orderBy, expr)
	return q
}

// Limit sets LIMIT; zero means none.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset sets OFFSET; zero means none.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Returning sets a RETURNING clause for INSERT, UPDATE or DELETE.
func (q *Query) Returning(columns ...string) *Query {
	q.returning = columns
	return q
}

// Build renders the statement and its arguments.
func (q *Query) Build() (string, []any, error) {
	if q.table == "" {
		return "", nil, ErrNoTable
	}

	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch q.verb {
	case verbSelect:
		cols := "*"
		if len(q.columns) > 0 {
			cols = strings.Join(q.columns, ", ")
		}
		fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, q.table)

	case verbInsert:
		if len(q.sets) == 0 {
			return "", nil, ErrNoAssignments
		}
		if len(q.conds) > 0 || q.never {
			return "", nil, ErrInsertCondition
		}
		cols := make([]string, len(q.sets))
		vals := make([]string, len(q.sets))
		for i, s := range q.sets {
			cols[i] = s.column
			vals[i] = arg(s.value)
		}
		fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", q.table, strings.Join(cols, ", "), strings.Join(vals, ", "))

	case verbUpdate:
		if len(q.sets) == 0 {
			return "", nil, ErrNoAssignments
		}
		if len(q.conds) == 0 && !q.never {
			return "", nil, ErrUnsafeMutation
		}
		sets := make([]string, len(q.sets))
		for i, s := range q.sets {
			sets[i] = fmt.Sprintf("%s = %s", s.column, arg(s.value))
		}
		fmt.Fprintf(&sb, "UPDATE %s SET %s", q.table, strings.Join(sets, ", "))

	case verbDelete:
		if len(q.conds) == 0 && !q.never {
			return "", nil, ErrUnsafeMutation
		}
		fmt.Fprintf(&sb, "DELETE FROM %s", q.table)
	}

	if q.verb != verbInsert {
		var where []string
		for _, c := range q.conds {
			where = append(where, fmt.Sprintf("%s %s %s", c.Column, c.Op, arg(c.Value)))
		}
		if q.never {
			where = append(where, "FALSE")
		}
		if len(where) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(where, " AND "))
		}
	}

	if q.verb == verbSelect {
		if len(q.orderBy) > 0 {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(strings.Join(q.orderBy, ", "))
		}
		if q.limit > 0 {
			sb.WriteString(" LIMIT " + arg(q.limit))
		}
		if q.offset > 0 {
			sb.WriteString(" OFFSET " + arg(q.offset))
		}
	} else if len(q.returning) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(q.returning, ", "))
	}

	return sb.String(), args, nil
}
