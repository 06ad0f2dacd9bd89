package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
)

type updateQuotaRequest struct {
	QuotaTotal *int64 `json:"quota_total" validate:"required,gt=0"`
	UserID     *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

var quotaMessages = map[string]string{
	"quota_total.required": "quota_total is required",
	"quota_total.gt":       "quota_total must be a positive integer",
	"user_id":              "user_id must be a positive integer",
}

// updateQuota sets a ceiling. Changing another user's ceiling needs admin.
func (s *Server) updateQuota(ctx echo.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	var req updateQuotaRequest
	if err := bindAndValidate(ctx, &req, quotaMessages); err != nil {
		return s.respondError(ctx, err)
	}

	targetID := user.ID
	if req.UserID != nil {
		targetID = *req.UserID
	}
	if !canAccess(user, targetID) {
		return s.respondError(ctx, apperr.Forbidden("admin access required"))
	}

	reqCtx := ctx.Request().Context()
	err = s.catalog.UpdateUserQuota(reqCtx, targetID, *req.QuotaTotal)
	if errors.Is(err, catalog.ErrUserNotFound) {
		return s.respondError(ctx, apperr.NotFound("User", err).With("user_id", targetID))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to update quota", err))
	}

	usage, err := s.ledger.Usage(reqCtx, targetID)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to compute quota usage", err))
	}

	log.Info().
		Int64("user_id", targetID).
		Int64("quota_total", usage.TotalBytes).
		Int64("updated_by", user.ID).
		Msg("Quota updated")

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"message":         "Quota updated",
		"user_id":         targetID,
		"quota_total":     usage.TotalBytes,
		"quota_used":      usage.UsedBytes,
		"quota_available": usage.AvailableBytes,
	})
}
