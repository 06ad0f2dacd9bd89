package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/models"
)

// parseID reads a positive integer path parameter. Anything else is reported
// as the resource not being found.
func parseID(ctx echo.Context, name, resource string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NotFound(resource, err)
	}
	return id, nil
}

func (s *Server) listUsers(ctx echo.Context) error {
	users, err := s.catalog.ListUsers(ctx.Request().Context())
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to list users", err))
	}
	if users == nil {
		users = []models.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (s *Server) getUser(ctx echo.Context) error {
	userID, err := parseID(ctx, "id", "User")
	if err != nil {
		return s.respondError(ctx, err)
	}

	user, err := s.catalog.GetUser(ctx.Request().Context(), userID)
	if errors.Is(err, catalog.ErrUserNotFound) {
		return s.respondError(ctx, apperr.NotFound("User", err))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to get user", err))
	}
	return ctx.JSON(http.StatusOK, user)
}

func (s *Server) deleteUser(ctx echo.Context) error {
	userID, err := parseID(ctx, "id", "User")
	if err != nil {
		return s.respondError(ctx, err)
	}

	err = s.catalog.DeleteUser(ctx.Request().Context(), userID)
	if errors.Is(err, catalog.ErrUserNotFound) {
		return s.respondError(ctx, apperr.NotFound("User", err))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to delete user", err))
	}

	log.Info().Int64("user_id", userID).Msg("User deleted")
	return ctx.JSON(http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
