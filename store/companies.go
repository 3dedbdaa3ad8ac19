package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayjc/jobly/sqlbuild"
)

var companyColumns = []string{"handle", "name", "num_employees", "description", "logo_url"}

// CompanyUpdatableColumns lists the company columns a partial update may set,
// in the order assignments are emitted.
var CompanyUpdatableColumns = []string{"name", "num_employees", "description", "logo_url"}

func scanCompany(row rowScanner) (Company, error) {
	var c Company
	err := row.Scan(&c.Handle, &c.Name, &c.NumEmployees, &c.Description, &c.LogoURL)
	return c, err
}

// GetCompany returns the company with the given handle.
func (s *Store) GetCompany(ctx context.Context, handle string) (Company, error) {
	query, args, err := s.sb.Select(companyColumns...).
		From("companies").
		Where(sq.Eq{"handle": handle}).
		ToSql()
	if err != nil {
		return Company{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("GetCompany", query, args)

	c, err := scanCompany(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Company{}, fmt.Errorf("get company %q: %w", handle, classify(err))
	}
	return c, nil
}

// SearchCompanies lists companies matching the present filters, ordered by name.
func (s *Store) SearchCompanies(ctx context.Context, q CompanyQuery) ([]Company, error) {
	if sqlbuild.IsNumber(q.MinEmployees) && sqlbuild.IsNumber(q.MaxEmployees) &&
		asFloat(q.MinEmployees) > asFloat(q.MaxEmployees) {
		return nil, validationErrorf("min_employees cannot be greater than max_employees")
	}

	stmt := s.builder.Search(sqlbuild.Search{
		Table:   "companies",
		Columns: companyColumns,
		Filters: []sqlbuild.Filter{
			sqlbuild.Contains("name", q.Name),
			sqlbuild.GreaterThan("num_employees", q.MinEmployees),
			sqlbuild.LessThan("num_employees", q.MaxEmployees),
		},
	})
	query := stmt.Text + " ORDER BY name"
	s.debugQuery("SearchCompanies", query, stmt.Args)

	rows, err := s.db.QueryContext(ctx, query, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("search companies: %w", classify(err))
	}
	defer rows.Close() //nolint:errcheck // Rows.Err is checked below

	companies := []Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search companies: %w", err)
	}
	return companies, nil
}

// CreateCompany inserts c. A taken handle or name yields ErrConflict.
func (s *Store) CreateCompany(ctx context.Context, c Company) (Company, error) {
	query, args, err := s.sb.Insert("companies").
		Columns(companyColumns...).
		Values(c.Handle, c.Name, c.NumEmployees, c.Description, c.LogoURL).
		Suffix("RETURNING " + strings.Join(companyColumns, ", ")).
		ToSql()
	if err != nil {
		return Company{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("CreateCompany", query, args)

	created, err := scanCompany(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Company{}, fmt.Errorf("create company %q: %w", c.Handle, classify(err))
	}
	s.logger.Info().Str("handle", created.Handle).Msg("Company created")
	return created, nil
}

// UpdateCompany applies a partial update to the company with the given handle.
// Columns outside CompanyUpdatableColumns are rejected with a *ValidationError.
func (s *Store) UpdateCompany(ctx context.Context, handle string, assignments []sqlbuild.Assignment) (Company, error) {
	if err := checkColumns(assignments, CompanyUpdatableColumns); err != nil {
		return Company{}, err
	}
	stmt, err := s.builder.Update("companies", assignments, "handle", handle)
	if err != nil {
		return Company{}, err
	}
	s.debugQuery("UpdateCompany", stmt.Text, stmt.Args)

	c, err := scanCompany(s.db.QueryRowContext(ctx, stmt.Text, stmt.Args...))
	if err != nil {
		return Company{}, fmt.Errorf("update company %q: %w", handle, classify(err))
	}
	return c, nil
}

// DeleteCompany removes the company and, through the foreign key, its jobs.
func (s *Store) DeleteCompany(ctx context.Context, handle string) error {
	query, args, err := s.sb.Delete("companies").
		Where(sq.Eq{"handle": handle}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("DeleteCompany", query, args)
	return s.execOne(ctx, query, args, fmt.Sprintf("delete company %q", handle))
}

// asFloat converts a value accepted by sqlbuild.IsNumber to float64.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
