package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/auth"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
)

type registerRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	QuotaTotal *int64 `json:"quota_total" validate:"omitempty,gte=0"`
	IsAdmin    bool   `json:"is_admin"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var registerMessages = map[string]string{
	"email.required":    "Email and password are required",
	"password.required": "Email and password are required",
	"email.email":       "Invalid email format",
	"password.min":      "Password must be at least 8 characters long",
	"quota_total":       "quota_total must be a non-negative integer",
}

var loginMessages = map[string]string{
	"email":    "Email and password are required",
	"password": "Email and password are required",
}

// register creates an account. Admin accounts can only be created by an
// admin, or as the very first account.
func (s *Server) register(ctx echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(ctx, &req, registerMessages); err != nil {
		return s.respondError(ctx, err)
	}

	reqCtx := ctx.Request().Context()
	createUser := s.catalog.CreateUser
	if req.IsAdmin {
		callerIsAdmin, err := s.callerIsAdmin(ctx)
		if err != nil {
			return s.respondError(ctx, err)
		}
		if !callerIsAdmin {
			createUser = s.catalog.CreateFirstUser
		}
	}

	quotaTotal := s.defaultQuota
	if req.QuotaTotal != nil {
		quotaTotal = *req.QuotaTotal
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return s.respondError(ctx, apperr.Validation("Password must be at most 72 bytes long", err))
	}
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to hash password", err))
	}

	user, err := createUser(reqCtx, req.Email, hash, quotaTotal, req.IsAdmin)
	switch {
	case errors.Is(err, catalog.ErrUsersExist):
		return s.respondError(ctx, apperr.Forbidden("admin access required"))
	case errors.Is(err, catalog.ErrEmailExists):
		return s.respondError(ctx, apperr.Conflict("Email already exists", err))
	case err != nil:
		return s.respondError(ctx, apperr.Internal("failed to create user", err))
	}

	log.Info().Int64("user_id", user.ID).Bool("is_admin", user.IsAdmin).Msg("User registered")

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"id":      user.ID,
		"email":   user.Email,
	})
}

// callerIsAdmin reports whether the request carries a token of an admin.
// A request without a bearer token is not an error.
func (s *Server) callerIsAdmin(ctx echo.Context) (bool, error) {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if _, ok := auth.BearerToken(header); !ok {
		return false, nil
	}
	caller, err := s.resolver.Resolve(ctx.Request().Context(), header)
	if err != nil {
		return false, err
	}
	return caller.IsAdmin, nil
}

// login exchanges credentials for a token. Unknown email and wrong password
// are indistinguishable.
func (s *Server) login(ctx echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(ctx, &req, loginMessages); err != nil {
		return s.respondError(ctx, err)
	}

	user, err := s.catalog.FindUserByEmail(ctx.Request().Context(), req.Email)
	if err != nil && !errors.Is(err, catalog.ErrUserNotFound) {
		return s.respondError(ctx, apperr.Internal("failed to look up user", err))
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.metrics.ObserveAuthFailure(http.StatusUnauthorized)
		log.Warn().Str("remote_ip", ctx.RealIP()).Msg("Failed login attempt")
		return s.respondError(ctx, apperr.Unauthorized("Invalid credentials", nil))
	}

	if !s.issuer.Configured() {
		return s.respondError(ctx, apperr.Misconfigured("jwt secret not configured", auth.ErrSecretNotConfigured))
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return s.respondError(ctx, apperr.Internal("failed to issue token", err))
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"jwt":        token,
		"token_type": "Bearer",
		"expires_in": int64(s.issuer.TTL().Seconds()),
	})
}
