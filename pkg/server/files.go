package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/models"
)

const (
	defaultPage     = 1
	defaultPageSize = 3
	maxPageSize     = 100

	// maxPage keeps (page-1)*limit within int.
	maxPage = math.MaxInt / maxPageSize
)

// scopedFilter restricts non-admin callers to their own files.
func scopedFilter(user *models.User) catalog.FileFilter {
	if user.IsAdmin {
		return catalog.FileFilter{}
	}
	userID := user.ID
	return catalog.FileFilter{UserID: &userID}
}

// listFiles returns all visible files, or only those of ?folder=ID.
func (s *Server) listFiles(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	filter := scopedFilter(user)

	if raw := ctx.QueryParam("folder"); raw != "" {
		folderID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return s.respondError(ctx, apperr.NotFound("Folder", parseErr).With("folder_id", raw))
		}
		exists, err := s.catalog.FolderExists(reqCtx, folderID)
		if err != nil {
			return s.respondError(ctx, apperr.Internal("failed to look up folder", err))
		}
		if !exists {
			return s.respondError(ctx, apperr.NotFound("Folder", nil).With("folder_id", folderID))
		}
		filter.FolderID = &folderID
	}

	files, err := s.catalog.ListFiles(reqCtx, filter)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to list files", err))
	}
	if files == nil {
		files = []models.File{}
	}
	return ctx.JSON(http.StatusOK, files)
}

// listFilesPaginated returns one page of files and the total in X-Total-Count.
func (s *Server) listFilesPaginated(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	page := min(positiveQueryInt(ctx, "page", defaultPage), maxPage)
	limit := min(positiveQueryInt(ctx, "limit", defaultPageSize), maxPageSize)

	reqCtx := ctx.Request().Context()
	filter := scopedFilter(user)

	files, err := s.catalog.ListFilesPage(reqCtx, filter, limit, (page-1)*limit)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to list files", err))
	}
	total, err := s.catalog.CountFiles(reqCtx, filter)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to count files", err))
	}
	if files == nil {
		files = []models.File{}
	}

	ctx.Response().Header().Set(headerTotalCount, strconv.FormatInt(total, 10))
	return ctx.JSON(http.StatusOK, files)
}

func positiveQueryInt(ctx echo.Context, name string, fallback int) int {
	value, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

// loadFile fetches the file named by the :id parameter and checks that the
// caller owns it or is an admin.
func (s *Server) loadFile(ctx echo.Context) (*models.File, *models.User, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, nil, err
	}

	fileID, err := parseID(ctx, "id", "File")
	if err != nil {
		return nil, nil, err
	}

	file, err := s.catalog.GetFile(ctx.Request().Context(), fileID)
	if errors.Is(err, catalog.ErrFileNotFound) {
		return nil, nil, apperr.NotFound("File", err)
	}
	if err != nil {
		return nil, nil, apperr.Internal("failed to get file", err)
	}

	if !canAccess(user, file.UserID) {
		return nil, nil, apperr.Forbidden("access denied")
	}
	return file, user, nil
}

func (s *Server) getFileInfo(ctx echo.Context) error {
	file, _, err := s.loadFile(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, file)
}
