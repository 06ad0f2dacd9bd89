package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coffrefort/pkg/models"
)

// CreateFileVersion inserts a version row and fills its ID.
func (s *Store) CreateFileVersion(ctx context.Context, version *models.FileVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.timestamp(version.CreatedAt)
	versionID, err := s.insertReturningID(ctx,
		`INSERT INTO file_versions (file_id, version, stored_name, size, checksum, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		version.FileID, version.Version, version.StoredName, version.Size, version.Checksum, createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	version.ID = versionID
	version.CreatedAt = createdAt
	return nil
}

const versionColumns = `id, file_id, version, stored_name, size, checksum, created_at`

func (s *Store) queryVersion(ctx context.Context, query string, arg int64) (*models.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version := &models.FileVersion{}
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).
		Scan(&version.ID, &version.FileID, &version.Version, &version.StoredName, &version.Size, &version.Checksum, &version.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return version, nil
}

// LatestVersion returns the highest version of a file.
func (s *Store) LatestVersion(ctx context.Context, fileID int64) (*models.FileVersion, error) {
	return s.queryVersion(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = ? ORDER BY version DESC LIMIT 1`, fileID)
}

// GetFileVersion retrieves a version by ID.
func (s *Store) GetFileVersion(ctx context.Context, versionID int64) (*models.FileVersion, error) {
	return s.queryVersion(ctx, `SELECT `+versionColumns+` FROM file_versions WHERE id = ?`, versionID)
}

// CreateShare inserts a share and fills its ID.
func (s *Store) CreateShare(ctx context.Context, share *models.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.timestamp(share.CreatedAt)
	var expiresAt sql.NullTime
	if share.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: share.ExpiresAt.UTC(), Valid: true}
	}

	shareID, err := s.insertReturningID(ctx,
		`INSERT INTO shares (user_id, file_id, version_id, token, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		share.UserID, share.FileID, share.VersionID, share.Token, createdAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	share.ID = shareID
	share.CreatedAt = createdAt
	return nil
}

// GetShareByToken resolves a share token.
func (s *Store) GetShareByToken(ctx context.Context, token string) (*models.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		share     models.Share
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, file_id, version_id, token, created_at, expires_at FROM shares WHERE token = ?`), token,
	).Scan(&share.ID, &share.UserID, &share.FileID, &share.VersionID, &share.Token, &share.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	share.ExpiresAt = nullableTime(expiresAt)
	return &share, nil
}

// LogDownload appends an entry to the download log. A zero DownloadedAt is set to now.
func (s *Store) LogDownload(ctx context.Context, entry *models.DownloadLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	downloadedAt := s.timestamp(entry.DownloadedAt)
	logID, err := s.insertReturningID(ctx,
		`INSERT INTO downloads_log (share_id, version_id, downloaded_at, ip, user_agent, success) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ShareID, entry.VersionID, downloadedAt, entry.IP, entry.UserAgent, entry.Success,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	entry.ID = logID
	entry.DownloadedAt = downloadedAt
	return nil
}

// RecentDownloads returns up to limit downloads of shares owned by a user, newest first.
// FileName is empty when the file row no longer exists.
func (s *Store) RecentDownloads(ctx context.Context, userID int64, limit int) ([]models.DownloadLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT dl.id, dl.share_id, dl.version_id, dl.downloaded_at, dl.ip, dl.user_agent, dl.success, f.original_name
		 FROM downloads_log dl
		 LEFT JOIN shares s ON dl.share_id = s.id
		 LEFT JOIN file_versions fv ON dl.version_id = fv.id
		 LEFT JOIN files f ON fv.file_id = f.id
		 WHERE s.user_id = ?
		 ORDER BY dl.downloaded_at DESC, dl.id DESC
		 LIMIT ?`),
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	entries := []models.DownloadLogEntry{}
	for rows.Next() {
		var (
			entry    models.DownloadLogEntry
			fileName sql.NullString
		)
		scanErr := rows.Scan(&entry.ID, &entry.ShareID, &entry.VersionID, &entry.DownloadedAt,
			&entry.IP, &entry.UserAgent, &entry.Success, &fileName)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		entry.FileName = fileName.String
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return entries, nil
}
