package sqlbuild

import (
	"math"
	"strings"
)

// FilterKind is the comparison a Filter applies.
type FilterKind int

const (
	// KindContains matches rows whose column contains the value, ignoring case.
	KindContains FilterKind = iota
	// KindGreaterThan matches rows whose column is strictly greater than the value.
	KindGreaterThan
	// KindLessThan matches rows whose column is strictly less than the value.
	KindLessThan
)

func (k FilterKind) String() string {
	switch k {
	case KindContains:
		return "contains"
	case KindGreaterThan:
		return "greater_than"
	case KindLessThan:
		return "less_than"
	default:
		return "unknown"
	}
}

// Filter is an optional search criterion. A filter is absent when its value is
// nil or fails the type check of its kind: Contains needs a non-empty string,
// GreaterThan and LessThan need a finite number. Absent filters are skipped
// rather than reported, so a malformed query parameter only widens the search.
type Filter struct {
	Kind   FilterKind
	Column string
	Value  any
}

// Contains returns a case-insensitive substring filter on column.
func Contains(column string, value any) Filter {
	return Filter{Kind: KindContains, Column: column, Value: value}
}

// GreaterThan returns a strict lower bound filter on column.
func GreaterThan(column string, value any) Filter {
	return Filter{Kind: KindGreaterThan, Column: column, Value: value}
}

// LessThan returns a strict upper bound filter on column.
func LessThan(column string, value any) Filter {
	return Filter{Kind: KindLessThan, Column: column, Value: value}
}

// Present reports whether the filter takes part in the search, and returns
// the argument it binds.
func (f Filter) Present() (any, bool) {
	switch f.Kind {
	case KindContains:
		s, ok := f.Value.(string)
		if !ok || s == "" {
			return nil, false
		}
		return "%" + s + "%", true
	case KindGreaterThan, KindLessThan:
		if !IsNumber(f.Value) {
			return nil, false
		}
		return f.Value, true
	default:
		return nil, false
	}
}

// IsNumber reports whether v is a Go integer or a finite float.
func IsNumber(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(n)) && !math.IsInf(float64(n), 0)
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	default:
		return false
	}
}

// Search describes a filtered listing of Columns from Table. Present filters
// are combined with AND, in the order given.
type Search struct {
	Table   string
	Columns []string
	Filters []Filter
}

// Search renders q. When no filter is present the statement has no WHERE
// clause and no arguments. Checking that a lower bound does not exceed an upper
// bound is left to the caller.
func (b Builder) Search(q Search) Statement {
	if q.Table == "" || len(q.Columns) == 0 {
		panic("sqlbuild: Search requires a table and at least one column")
	}
	d := b.Dialect()
	p := newBinder(d)
	where := fragments{sep: " AND "}
	for _, f := range q.Filters {
		v, ok := f.Present()
		if !ok {
			continue
		}
		switch f.Kind {
		case KindContains:
			where.add("%s %s %s", f.Column, d.ContainsOperator(), p.bind(v))
		case KindGreaterThan:
			where.add("%s > %s", f.Column, p.bind(v))
		case KindLessThan:
			where.add("%s < %s", f.Column, p.bind(v))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)
	if !where.empty() {
		sb.WriteString(" WHERE ")
		sb.WriteString(where.String())
	}
	return Statement{Text: sb.String(), Args: p.args}
}

// Build renders q using the Postgres dialect. See [Builder.Search].
func (q Search) Build() Statement {
	return New(Postgres{}).Search(q)
}
