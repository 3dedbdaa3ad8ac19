package sqlbuild

import (
	"errors"
	"strings"
)

// ErrEmptyUpdate is returned when an update is requested with no fields to set.
var ErrEmptyUpdate = errors.New("no fields to update")

// Assignment is a single column=value pair of an UPDATE SET clause.
type Assignment struct {
	Column string
	Value  any
}

// Assign returns an Assignment of value to column.
func Assign(column string, value any) Assignment {
	return Assignment{Column: column, Value: value}
}

// Builder renders statements for a Dialect.
type Builder struct {
	dialect Dialect
}

// New returns a Builder for the given dialect. A nil dialect means Postgres.
func New(d Dialect) Builder {
	if d == nil {
		d = Postgres{}
	}
	return Builder{dialect: d}
}

// Dialect returns the dialect the builder renders for.
func (b Builder) Dialect() Dialect {
	if b.dialect == nil {
		return Postgres{}
	}
	return b.dialect
}

// Update renders a partial update of table for the row whose pkColumn equals pkValue.
//
// Assignments are emitted in the given order as column=$1, column=$2, ...;
// the primary key value is bound last. Duplicate columns are kept as is, so the
// last one wins when the statement runs. Column names must come from an
// allow-list, they are written to the statement verbatim.
//
// ErrEmptyUpdate is returned when assignments is empty.
func (b Builder) Update(table string, assignments []Assignment, pkColumn string, pkValue any) (Statement, error) {
	if table == "" || pkColumn == "" {
		panic("sqlbuild: Update requires a table and a primary key column")
	}
	if len(assignments) == 0 {
		return Statement{}, ErrEmptyUpdate
	}

	p := newBinder(b.Dialect())
	set := fragments{sep: ", "}
	for _, a := range assignments {
		set.add("%s=%s", a.Column, p.bind(a.Value))
	}
	where := pkColumn + "=" + p.bind(pkValue)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	sb.WriteString(set.String())
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	sb.WriteString(" RETURNING *")
	return Statement{Text: sb.String(), Args: p.args}, nil
}

// Update renders a partial update using the Postgres dialect. See [Builder.Update].
func Update(table string, assignments []Assignment, pkColumn string, pkValue any) (Statement, error) {
	return New(Postgres{}).Update(table, assignments, pkColumn, pkValue)
}
