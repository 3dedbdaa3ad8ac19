package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayjc/jobly/sqlbuild"
)

var userColumns = []string{"username", "password", "first_name", "last_name", "email", "photo_url", "is_admin"}

// UserUpdatableColumns lists the user columns a partial update may set, in the
// order assignments are emitted. The username is the key and never changes.
var UserUpdatableColumns = []string{"password", "first_name", "last_name", "email", "photo_url", "is_admin"}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Email, &u.PhotoURL, &u.IsAdmin)
	return u, err
}

// CreateUser inserts u. u.Password must already be hashed. A taken username or
// email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	query, args, err := s.sb.Insert("users").
		Columns(userColumns...).
		Values(u.Username, u.Password, u.FirstName, u.LastName, u.Email, u.PhotoURL, u.IsAdmin).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("CreateUser", query, args)

	created, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return User{}, fmt.Errorf("create user %q: %w", u.Username, classify(err))
	}
	s.logger.Info().Str("username", created.Username).Bool("is_admin", created.IsAdmin).Msg("User created")
	return created, nil
}

// GetUser returns the user with the given username, password hash included.
func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	query, args, err := s.sb.Select(userColumns...).
		From("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("GetUser", query, args)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", username, classify(err))
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	query, args, err := s.sb.Select(userColumns...).
		From("users").
		OrderBy("username").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("ListUsers", query, args)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", classify(err))
	}
	defer rows.Close() //nolint:errcheck // Rows.Err is checked below

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUser applies a partial update to the user with the given username.
// A password assignment must carry the hash, not the plain text.
func (s *Store) UpdateUser(ctx context.Context, username string, assignments []sqlbuild.Assignment) (User, error) {
	if err := checkColumns(assignments, UserUpdatableColumns); err != nil {
		return User{}, err
	}
	stmt, err := s.builder.Update("users", assignments, "username", username)
	if err != nil {
		return User{}, err
	}
	s.debugQuery("UpdateUser", stmt.Text, stmt.Args)

	u, err := scanUser(s.db.QueryRowContext(ctx, stmt.Text, stmt.Args...))
	if err != nil {
		return User{}, fmt.Errorf("update user %q: %w", username, classify(err))
	}
	return u, nil
}

// DeleteUser removes the user with the given username.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	query, args, err := s.sb.Delete("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	s.debugQuery("DeleteUser", query, args)
	return s.execOne(ctx, query, args, fmt.Sprintf("delete user %q", username))
}
