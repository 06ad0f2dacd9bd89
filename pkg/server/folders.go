package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/models"
	"coffrefort/pkg/objectstore"
)

type createFolderRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ParentID *int64 `json:"parent_id"`
	UserID   *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

var folderMessages = map[string]string{
	"name.required": "name is required",
	"name.max":      "name must be at most 255 characters",
	"user_id":       "user_id must be a positive integer",
}

func (s *Server) listFolders(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	folders, err := s.catalog.ListFoldersByUser(ctx.Request().Context(), user.ID)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to list folders", err))
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	return ctx.JSON(http.StatusOK, folders)
}

// createFolder creates a folder for the caller, or for user_id when the
// caller is an admin.
func (s *Server) createFolder(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	var req createFolderRequest
	if err := bindAndValidate(ctx, &req, folderMessages); err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	ownerID := user.ID
	if req.UserID != nil && *req.UserID != user.ID {
		if !user.IsAdmin {
			return s.respondError(ctx, apperr.Forbidden("admin access required"))
		}
		if _, err := s.catalog.GetUser(reqCtx, *req.UserID); err != nil {
			if errors.Is(err, catalog.ErrUserNotFound) {
				return s.respondError(ctx, apperr.NotFound("User", err).With("user_id", *req.UserID))
			}
			return s.respondError(ctx, apperr.Internal("failed to get user", err))
		}
		ownerID = *req.UserID
	}

	if req.ParentID != nil {
		exists, err := s.catalog.FolderExists(reqCtx, *req.ParentID)
		if err != nil {
			return s.respondError(ctx, apperr.Internal("failed to look up folder", err))
		}
		if !exists {
			return s.respondError(ctx, apperr.NotFound("Parent folder", nil).With("parent_id", *req.ParentID))
		}
	}

	folder, err := s.catalog.CreateFolder(reqCtx, ownerID, req.Name, req.ParentID)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to create folder", err))
	}

	log.Info().Int64("folder_id", folder.ID).Int64("user_id", ownerID).Msg("Folder created")

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"message":   "Folder created",
		"id":        folder.ID,
		"name":      folder.Name,
		"parent_id": folder.ParentID,
	})
}

// deleteFolder removes the folder row and, best effort, a stored object
// carrying the folder's name. Files and sub-folders are left in place.
func (s *Server) deleteFolder(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	folderID, err := parseID(ctx, "id", "Folder")
	if err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	folder, err := s.catalog.GetFolder(reqCtx, folderID)
	if errors.Is(err, catalog.ErrFolderNotFound) {
		return s.respondError(ctx, apperr.NotFound("Folder", err).With("folder_id", folderID))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to get folder", err))
	}
	if !canAccess(user, folder.UserID) {
		return s.respondError(ctx, apperr.Forbidden("access denied"))
	}

	err = s.catalog.DeleteFolder(reqCtx, folderID)
	if errors.Is(err, catalog.ErrFolderNotFound) {
		return s.respondError(ctx, apperr.NotFound("Folder", err).With("folder_id", folderID))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to delete folder", err))
	}

	if objectstore.ValidateName(folder.Name) {
		s.discardObject(ctx, folder.Name)
	}

	log.Info().Int64("folder_id", folderID).Msg("Folder deleted")
	return ctx.NoContent(http.StatusNoContent)
}
