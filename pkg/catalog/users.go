package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coffrefort/pkg/models"
)

const userColumns = `id, email, password, quota_total, quota_used, is_admin, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.QuotaTotal, &user.QuotaUsed, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

const insertUser = `INSERT INTO users (email, password, quota_total, quota_used, is_admin, created_at) VALUES (?, ?, ?, 0, ?, ?)`

// CreateUser stores a new account. The email must not be taken.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, quotaTotal int64, isAdmin bool) (*models.User, error) {
	return s.createUser(ctx, insertUser, email, passwordHash, quotaTotal, isAdmin)
}

// CreateFirstUser stores a new account only while the users table is empty.
// The emptiness check and the insert are one statement. It returns
// ErrUsersExist when another account is already stored.
func (s *Store) CreateFirstUser(ctx context.Context, email, passwordHash string, quotaTotal int64, isAdmin bool) (*models.User, error) {
	return s.createUser(ctx, s.firstUserInsert(), email, passwordHash, quotaTotal, isAdmin)
}

// firstUserInsert casts the selected values on PostgreSQL, which cannot infer
// parameter types from an INSERT ... SELECT list.
func (s *Store) firstUserInsert() string {
	values := `?, ?, ?, 0, ?, ?`
	if s.driver == DriverPostgres {
		values = `CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS BIGINT), 0, CAST(? AS BOOLEAN), CAST(? AS TIMESTAMPTZ)`
	}
	return `INSERT INTO users (email, password, quota_total, quota_used, is_admin, created_at) SELECT ` + values +
		` WHERE NOT EXISTS (SELECT 1 FROM users)`
}

func (s *Store) createUser(ctx context.Context, query, email, passwordHash string, quotaTotal int64, isAdmin bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp(s.now())
	userID, err := s.insertReturningID(ctx, query, email, passwordHash, quotaTotal, isAdmin, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUsersExist
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.User{
		ID:           userID,
		Email:        email,
		PasswordHash: passwordHash,
		QuotaTotal:   quotaTotal,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
	}, nil
}

// FindUserByEmail looks a user up by exact email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := scanUser(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := scanUser(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return user, nil
}

// ListUsers returns every account ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	users := []models.User{}
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		users = append(users, *user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return users, nil
}

// DeleteUser removes an account. Its folders and files are left in place.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteByID(ctx, `DELETE FROM users WHERE id = ?`, userID, ErrUserNotFound)
}

// UpdateUserQuota sets the storage ceiling of a user.
func (s *Store) UpdateUserQuota(ctx context.Context, userID, quotaTotal int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET quota_total = ? WHERE id = ?`), quotaTotal, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return requireAffected(result, ErrUserNotFound)
}

// RefreshQuotaUsed recomputes the informational quota_used column from the user's files.
func (s *Store) RefreshQuotaUsed(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET quota_used = (SELECT CAST(COALESCE(SUM(size), 0) AS BIGINT) FROM files WHERE user_id = ?) WHERE id = ?`),
		userID, userID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return requireAffected(result, ErrUserNotFound)
}

// deleteByID runs a single-row delete and reports notFound when nothing matched.
// Callers hold the write lock.
func (s *Store) deleteByID(ctx context.Context, query string, id int64, notFound error) error {
	result, err := s.db.ExecContext(ctx, s.rebind(query), id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return requireAffected(result, notFound)
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
