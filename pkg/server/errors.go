package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/log"
)

// respondError renders err as {"error": message, ...details}.
func (s *Server) respondError(ctx echo.Context, err error) error {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("internal server error", err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", ctx.Request().Method).
			Str("uri", ctx.Request().RequestURI).
			Msg(appErr.Message)
	} else {
		log.Debug().Err(err).Int("status", appErr.Status).Msg("Request rejected")
	}

	body := make(map[string]interface{}, len(appErr.Details)+1)
	for key, value := range appErr.Details {
		body[key] = value
	}
	body["error"] = appErr.Message
	return ctx.JSON(appErr.Status, body)
}

// httpErrorHandler renders errors returned by handlers and echo itself.
func (s *Server) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if httpErr.Message != nil {
			message = fmt.Sprint(httpErr.Message)
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(httpErr.Code)
		} else {
			err = ctx.JSON(httpErr.Code, map[string]string{"error": message})
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to write error response")
		}
		return
	}

	if writeErr := s.respondError(ctx, err); writeErr != nil {
		log.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
