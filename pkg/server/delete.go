package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

// deleteFile removes the stored bytes, then the catalog row. The two steps are
// independent: missing bytes do not keep the row alive.
func (s *Server) deleteFile(ctx echo.Context) error {
	file, _, err := s.loadFile(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	s.discardObject(ctx, file.StoredName)

	err = s.catalog.DeleteFile(reqCtx, file.ID)
	if errors.Is(err, catalog.ErrFileNotFound) {
		return s.respondError(ctx, apperr.NotFound("File", err))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to delete file", err))
	}

	if err := s.catalog.RefreshQuotaUsed(reqCtx, file.UserID); err != nil {
		log.Warn().Err(err).Int64("user_id", file.UserID).Msg("Failed to refresh quota usage")
	}

	log.Info().
		Int64("file_id", file.ID).
		Str("stored_name", file.StoredName).
		Msg("File deleted")

	return ctx.JSON(http.StatusOK, map[string]string{"message": "File deleted"})
}

// discardObject deletes stored bytes best effort.
func (s *Server) discardObject(ctx echo.Context, name string) {
	err := s.store.Delete(ctx.Request().Context(), name)
	if err == nil {
		return
	}

	var notFoundErr objectstore.ObjectNotFoundError
	if errors.As(err, &notFoundErr) {
		log.Debug().Str("name", name).Msg("Stored object already gone")
		return
	}
	log.Warn().Err(err).Str("name", name).Msg("Failed to delete stored object")
}
