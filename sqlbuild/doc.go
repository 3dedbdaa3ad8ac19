// Package sqlbuild composes parameterized SQL statements from a caller-chosen
// subset of fields.
//
// Two builders are provided:
//
//   - Update renders a partial UPDATE ... SET ... WHERE ... RETURNING * for the
//     columns the caller actually wants to change.
//   - Search renders a SELECT whose WHERE clause is the conjunction of the
//     filters that are present for a request (substring match, lower bound,
//     upper bound).
//
// Values never reach the statement text; each one is bound to a numbered
// placeholder. Column and table names are NOT validated here: callers must
// restrict them to a fixed allow-list before building.
//
// Builders are pure functions over their input and are safe for concurrent use.
package sqlbuild
