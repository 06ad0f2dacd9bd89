package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coffrefort/pkg/models"
)

func scanFolder(row rowScanner) (*models.Folder, error) {
	var (
		folder   models.Folder
		parentID sql.NullInt64
	)
	if err := row.Scan(&folder.ID, &folder.UserID, &parentID, &folder.Name, &folder.CreatedAt); err != nil {
		return nil, err
	}
	folder.ParentID = nullableInt64(parentID)
	return &folder, nil
}

// FolderExists checks if a folder with the given ID exists.
func (s *Store) FolderExists(ctx context.Context, folderID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT EXISTS(SELECT 1 FROM folders WHERE id = ?)`), folderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return exists, nil
}

// ListFoldersByUser returns the folders owned by a user ordered by name.
func (s *Store) ListFoldersByUser(ctx context.Context, userID int64) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, parent_id, name, created_at FROM folders WHERE user_id = ? ORDER BY name ASC, id ASC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	folders := []models.Folder{}
	for rows.Next() {
		folder, scanErr := scanFolder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		folders = append(folders, *folder)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return folders, nil
}

// CreateFolder stores a folder. A nil parentID creates a root folder;
// the parent's existence is checked by the caller.
func (s *Store) CreateFolder(ctx context.Context, userID int64, name string, parentID *int64) (*models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp(s.now())
	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}

	folderID, err := s.insertReturningID(ctx,
		`INSERT INTO folders (user_id, parent_id, name, created_at) VALUES (?, ?, ?, ?)`,
		userID, parent, name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.Folder{
		ID:        folderID,
		UserID:    userID,
		ParentID:  parentID,
		Name:      name,
		CreatedAt: now,
	}, nil
}

// GetFolder retrieves a folder by ID.
func (s *Store) GetFolder(ctx context.Context, folderID int64) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folder, err := scanFolder(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, parent_id, name, created_at FROM folders WHERE id = ?`), folderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return folder, nil
}

// DeleteFolder removes the folder row only: child folders and files keep pointing at it.
func (s *Store) DeleteFolder(ctx context.Context, folderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteByID(ctx, `DELETE FROM folders WHERE id = ?`, folderID, ErrFolderNotFound)
}
