package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/metrics"
	"coffrefort/pkg/models"
)

type createShareRequest struct {
	// ExpiresIn is the share lifetime in seconds. Zero means no expiry.
	ExpiresIn int64 `json:"expires_in" validate:"gte=0"`
}

var shareMessages = map[string]string{
	"expires_in": "expires_in must be a non-negative number of seconds",
}

func newShareToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// createShare publishes the latest version of a file under a random token.
func (s *Server) createShare(ctx echo.Context) error {
	file, user, err := s.loadFile(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	var req createShareRequest
	if err := bindAndValidate(ctx, &req, shareMessages); err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	version, err := s.catalog.LatestVersion(reqCtx, file.ID)
	if errors.Is(err, catalog.ErrVersionNotFound) {
		return s.respondError(ctx, apperr.NotFound("File version", err).With("file_id", file.ID))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to get file version", err))
	}

	now := s.now().UTC()
	share := &models.Share{
		UserID:    user.ID,
		FileID:    file.ID,
		VersionID: version.ID,
		Token:     newShareToken(),
		CreatedAt: now,
	}
	if req.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(req.ExpiresIn) * time.Second)
		share.ExpiresAt = &expiresAt
	}

	if err := s.catalog.CreateShare(reqCtx, share); err != nil {
		return s.respondError(ctx, apperr.Internal("failed to create share", err))
	}

	log.Info().
		Int64("share_id", share.ID).
		Int64("file_id", file.ID).
		Int("version", version.Version).
		Msg("Share created")

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"id":           share.ID,
		"token":        share.Token,
		"file_id":      share.FileID,
		"version_id":   share.VersionID,
		"created_at":   share.CreatedAt,
		"expires_at":   share.ExpiresAt,
		"download_url": "/shares/" + share.Token + "/download",
	})
}

// downloadShare serves a shared version without authentication. Every
// attempt on an existing share is written to the download log.
func (s *Server) downloadShare(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	share, err := s.catalog.GetShareByToken(reqCtx, ctx.Param("token"))
	if errors.Is(err, catalog.ErrShareNotFound) {
		s.metrics.ObserveDownload(metrics.DownloadShare, downloadNotFound)
		return s.respondError(ctx, apperr.NotFound("Share", err))
	}
	if err != nil {
		s.metrics.ObserveDownload(metrics.DownloadShare, downloadError)
		return s.respondError(ctx, apperr.Internal("failed to get share", err))
	}

	if share.Expired(s.now()) {
		s.logShareDownload(ctx, share, false)
		s.metrics.ObserveDownload(metrics.DownloadShare, downloadExpired)
		return s.respondError(ctx, apperr.Gone("Share expired"))
	}

	version, file, err := s.sharedObject(ctx, share)
	if err != nil {
		s.logShareDownload(ctx, share, false)
		s.metrics.ObserveDownload(metrics.DownloadShare, downloadError)
		return s.respondError(ctx, err)
	}

	reader, err := s.openObject(ctx, version.StoredName)
	if err != nil {
		s.logShareDownload(ctx, share, false)
		s.metrics.ObserveDownload(metrics.DownloadShare, outcomeOf(err))
		return s.respondError(ctx, err)
	}
	defer reader.Close()

	s.logShareDownload(ctx, share, true)
	s.metrics.ObserveDownload(metrics.DownloadShare, downloadSuccess)
	return streamAttachment(ctx, file.OriginalName, file.Mime, version.Size, reader)
}

func (s *Server) sharedObject(ctx echo.Context, share *models.Share) (*models.FileVersion, *models.File, error) {
	reqCtx := ctx.Request().Context()

	version, err := s.catalog.GetFileVersion(reqCtx, share.VersionID)
	if errors.Is(err, catalog.ErrVersionNotFound) {
		return nil, nil, apperr.NotFound("File version", err)
	}
	if err != nil {
		return nil, nil, apperr.Internal("failed to get file version", err)
	}

	file, err := s.catalog.GetFile(reqCtx, share.FileID)
	if errors.Is(err, catalog.ErrFileNotFound) {
		return nil, nil, apperr.NotFound("File", err)
	}
	if err != nil {
		return nil, nil, apperr.Internal("failed to get file", err)
	}
	return version, file, nil
}

func (s *Server) logShareDownload(ctx echo.Context, share *models.Share, success bool) {
	entry := &models.DownloadLogEntry{
		ShareID:   share.ID,
		VersionID: share.VersionID,
		IP:        ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
		Success:   success,
	}
	if err := s.catalog.LogDownload(ctx.Request().Context(), entry); err != nil {
		log.Warn().Err(err).Int64("share_id", share.ID).Msg("Failed to record download")
	}
}
