package store

import "time"

// Company is a row of the companies table.
type Company struct {
	Handle       string  `json:"handle"`
	Name         string  `json:"name"`
	NumEmployees *int64  `json:"num_employees"`
	Description  *string `json:"description"`
	LogoURL      *string `json:"logo_url"`
}

// CompanyQuery holds the optional company search filters. Values are passed to
// the filter builder as is, so anything that is not a non-empty string (Name)
// or a number (the bounds) is ignored.
type CompanyQuery struct {
	Name         any
	MinEmployees any
	MaxEmployees any
}

// Job is a row of the jobs table.
type Job struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Salary        float64   `json:"salary"`
	Equity        float64   `json:"equity"`
	DatePosted    time.Time `json:"date_posted"`
	CompanyHandle string    `json:"company_handle"`
}

// JobSummary is the listing view of a job.
type JobSummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	CompanyHandle string `json:"company_handle"`
}

// JobDetail is a job together with the company that posted it.
type JobDetail struct {
	Job
	Company Company `json:"company"`
}

// NewJob is the input of CreateJob. A nil DatePosted lets the database set it.
type NewJob struct {
	Title         string
	Salary        float64
	Equity        float64
	DatePosted    *time.Time
	CompanyHandle string
}

// JobQuery holds the optional job search filters.
type JobQuery struct {
	Title     any
	MinSalary any
	MinEquity any
}

// User is a row of the users table. Password holds the bcrypt hash and is
// never serialized.
type User struct {
	Username  string  `json:"username"`
	Password  string  `json:"-"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	PhotoURL  *string `json:"photo_url"`
	IsAdmin   bool    `json:"is_admin"`
}
