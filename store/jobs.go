package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayjc/jobly/sqlbuild"
)

var (
	jobColumns        = []string{"id", "title", "salary", "equity", "date_posted", "company_handle"}
	jobSummaryColumns = []string{"id", "title", "company_handle"}
)

// JobUpdatableColumns lists the job columns a partial update may set, in the
// order assignments are emitted.
var JobUpdatableColumns = []string{"title", "salary", "equity", "date_posted", "company_handle"}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Title, &j.Salary, &j.Equity, timestamp{&j.DatePosted}, &j.CompanyHandle)
	return j, err
}

// SearchJobs lists job summaries matching the present filters, ordered by title.
func (s *Store) SearchJobs(ctx context.Context, q JobQuery) ([]JobSummary, error) {
	stmt := s.builder.Search(sqlbuild.Search{
		Table:   "jobs",
		Columns: jobSummaryColumns,
		Filters: []sqlbuild.Filter{
			sqlbuild.Contains("title", q.Title),
			sqlbuild.GreaterThan("salary", q.MinSalary),
			sqlbuild.GreaterThan("equity", q.MinEquity),
		},
	})
	query := stmt.Text + " ORDER BY title, id"
	s.debugQuery("SearchJobs", query, stmt.Args)

	rows, err := s.db.QueryContext(ctx, query, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("search jobs: %w", classify(err))
	}
	defer rows.Close() //nolint:errcheck // Rows.Err is checked below

	jobs := []JobSummary{}
	for rows.Next() {
		var j JobSummary
		if err := rows.Scan(&j.ID, &j.Title, &j.CompanyHandle); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search jobs: %w", err)
	}
	return jobs, nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id int64) (Job, error) {
	query, args, err := s.sb.Select(jobColumns...).
		From("jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Job{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("GetJob", query, args)

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Job{}, fmt.Errorf("get job %d: %w", id, classify(err))
	}
	return j, nil
}

// GetJobDetail returns the job with the given id and the company that posted it.
func (s *Store) GetJobDetail(ctx context.Context, id int64) (JobDetail, error) {
	query, args, err := s.sb.Select(
		"j.id", "j.title", "j.salary", "j.equity", "j.date_posted", "j.company_handle",
		"c.handle", "c.name", "c.num_employees", "c.description", "c.logo_url",
	).
		From("jobs j").
		Join("companies c ON c.handle = j.company_handle").
		Where(sq.Eq{"j.id": id}).
		ToSql()
	if err != nil {
		return JobDetail{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("GetJobDetail", query, args)

	var d JobDetail
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&d.ID, &d.Title, &d.Salary, &d.Equity, timestamp{&d.DatePosted}, &d.CompanyHandle,
		&d.Company.Handle, &d.Company.Name, &d.Company.NumEmployees, &d.Company.Description, &d.Company.LogoURL,
	)
	if err != nil {
		return JobDetail{}, fmt.Errorf("get job %d: %w", id, classify(err))
	}
	return d, nil
}

// CreateJob inserts a job. An unknown company yields ErrInvalidReference and a
// salary or equity outside the allowed range yields ErrConstraint.
func (s *Store) CreateJob(ctx context.Context, nj NewJob) (Job, error) {
	columns := []string{"title", "salary", "equity", "company_handle"}
	values := []any{nj.Title, nj.Salary, nj.Equity, nj.CompanyHandle}
	if nj.DatePosted != nil {
		columns = append(columns, "date_posted")
		values = append(values, nj.DatePosted.UTC())
	}

	query, args, err := s.sb.Insert("jobs").
		Columns(columns...).
		Values(values...).
		Suffix("RETURNING " + strings.Join(jobColumns, ", ")).
		ToSql()
	if err != nil {
		return Job{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("CreateJob", query, args)

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Job{}, fmt.Errorf("create job for %q: %w", nj.CompanyHandle, classify(err))
	}
	s.logger.Info().Int64("id", j.ID).Str("company_handle", j.CompanyHandle).Msg("Job created")
	return j, nil
}

// UpdateJob applies a partial update to the job with the given id.
// Columns outside JobUpdatableColumns are rejected with a *ValidationError.
func (s *Store) UpdateJob(ctx context.Context, id int64, assignments []sqlbuild.Assignment) (Job, error) {
	if err := checkColumns(assignments, JobUpdatableColumns); err != nil {
		return Job{}, err
	}
	stmt, err := s.builder.Update("jobs", assignments, "id", id)
	if err != nil {
		return Job{}, err
	}
	s.debugQuery("UpdateJob", stmt.Text, stmt.Args)

	j, err := scanJob(s.db.QueryRowContext(ctx, stmt.Text, stmt.Args...))
	if err != nil {
		return Job{}, fmt.Errorf("update job %d: %w", id, classify(err))
	}
	return j, nil
}

// DeleteJob removes the job with the given id.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	query, args, err := s.sb.Delete("jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("DeleteJob", query, args)
	return s.execOne(ctx, query, args, fmt.Sprintf("delete job %d", id))
}
