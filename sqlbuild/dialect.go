package sqlbuild

import "strconv"

// Dialect defines the SQL flavor specific parts of a statement.
type Dialect interface {
	// Placeholder returns the positional parameter marker for the given 1-based index.
	Placeholder(index int) string
	// ContainsOperator returns the case-insensitive pattern match operator.
	ContainsOperator() string
}

// Postgres renders $1, $2 placeholders and uses ILIKE.
type Postgres struct{}

// Placeholder returns $n.
func (Postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// ContainsOperator returns ILIKE.
func (Postgres) ContainsOperator() string {
	return "ILIKE"
}

// SQLite renders $1, $2 placeholders (bound in order of first appearance) and
// uses LIKE, which is case-insensitive for ASCII in SQLite.
type SQLite struct{}

// Placeholder returns $n.
func (SQLite) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// ContainsOperator returns LIKE.
func (SQLite) ContainsOperator() string {
	return "LIKE"
}
