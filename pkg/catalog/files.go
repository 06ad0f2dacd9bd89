package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"coffrefort/pkg/models"
)

const fileColumns = `id, user_id, folder_id, original_name, stored_name, mime, size, created_at`

// FileFilter narrows file listings. Nil fields do not filter.
type FileFilter struct {
	UserID   *int64
	FolderID *int64
}

func (f FileFilter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if f.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.FolderID != nil {
		clauses = append(clauses, "folder_id = ?")
		args = append(args, *f.FolderID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanFile(row rowScanner) (*models.File, error) {
	var (
		file     models.File
		folderID sql.NullInt64
	)
	err := row.Scan(&file.ID, &file.UserID, &folderID, &file.OriginalName, &file.StoredName, &file.Mime, &file.Size, &file.CreatedAt)
	if err != nil {
		return nil, err
	}
	file.FolderID = nullableInt64(folderID)
	return &file, nil
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...interface{}) ([]models.File, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	files := []models.File{}
	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		files = append(files, *file)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return files, nil
}

// ListFiles returns the files matching filter ordered by ID.
func (s *Store) ListFiles(ctx context.Context, filter FileFilter) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filter.where()
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files`+where+` ORDER BY id`, args...)
}

// ListFilesPage returns one page of files; offset is (page-1)*limit.
func (s *Store) ListFilesPage(ctx context.Context, filter FileFilter, limit, offset int) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filter.where()
	args = append(args, limit, offset)
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files`+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
}

// CountFiles counts the files matching filter.
func (s *Store) CountFiles(ctx context.Context, filter FileFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filter.where()
	var count int64
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM files`+where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return count, nil
}

// GetFile retrieves a file by ID.
func (s *Store) GetFile(ctx context.Context, fileID int64) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := scanFile(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+fileColumns+` FROM files WHERE id = ?`), fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return file, nil
}

// CreateFile inserts file and fills its ID. A zero CreatedAt is set to now.
func (s *Store) CreateFile(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.timestamp(file.CreatedAt)
	var folderID sql.NullInt64
	if file.FolderID != nil {
		folderID = sql.NullInt64{Int64: *file.FolderID, Valid: true}
	}

	fileID, err := s.insertReturningID(ctx,
		`INSERT INTO files (user_id, folder_id, original_name, stored_name, mime, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.UserID, folderID, file.OriginalName, file.StoredName, file.Mime, file.Size, createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	file.ID = fileID
	file.CreatedAt = createdAt
	return nil
}

// DeleteFile removes the file row. Versions and shares are kept for the download log.
func (s *Store) DeleteFile(ctx context.Context, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteByID(ctx, `DELETE FROM files WHERE id = ?`, fileID, ErrFileNotFound)
}

// RecentUploads returns up to limit files of a user, newest first.
func (s *Store) RecentUploads(ctx context.Context, userID int64, limit int) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
}

// TotalSize sums the size of every stored file across all users.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT CAST(COALESCE(SUM(size), 0) AS BIGINT) FROM files`).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return total, nil
}

// TotalSizeByUser sums the size of the files owned by one user.
func (s *Store) TotalSizeByUser(ctx context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT CAST(COALESCE(SUM(size), 0) AS BIGINT) FROM files WHERE user_id = ?`), userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return total, nil
}

// UserQuotaTotal returns the ceiling of a user, 0 when the user is unknown.
func (s *Store) UserQuotaTotal(ctx context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var quotaTotal int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT quota_total FROM users WHERE id = ?`), userID).Scan(&quotaTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return quotaTotal, nil
}
