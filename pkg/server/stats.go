package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/activity"
	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/models"
)

// stats reports global totals next to the caller's own ceiling.
func (s *Server) stats(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	totalSize, err := s.catalog.TotalSize(reqCtx)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to compute total size", err))
	}
	fileCount, err := s.catalog.CountFiles(reqCtx, catalog.FileFilter{})
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to count files", err))
	}
	quotaBytes, err := s.catalog.UserQuotaTotal(reqCtx, user.ID)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to read quota", err))
	}

	return ctx.JSON(http.StatusOK, models.Stats{
		TotalSizeBytes: totalSize,
		QuotaBytes:     quotaBytes,
		FileCount:      fileCount,
	})
}

func (s *Server) myQuota(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	usage, err := s.ledger.Usage(ctx.Request().Context(), user.ID)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to compute quota usage", err))
	}
	return ctx.JSON(http.StatusOK, usage)
}

// myActivity returns the caller's merged upload and download feed.
func (s *Server) myActivity(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	feed, err := s.activity.Feed(ctx.Request().Context(), user.ID, activity.NormalizeLimit(limit))
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to load activity", err))
	}
	return ctx.JSON(http.StatusOK, feed)
}
