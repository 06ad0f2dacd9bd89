package auth

import (
	"context"
	"errors"
	"strings"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/models"
)

const bearerScheme = "Bearer"

// UserLookup finds the user a token was issued for.
type UserLookup interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Resolver turns an Authorization header into a user.
type Resolver struct {
	issuer *Issuer
	users  UserLookup
}

func NewResolver(issuer *Issuer, users UserLookup) *Resolver {
	return &Resolver{issuer: issuer, users: users}
}

// Resolve checks, in order: header presence, secret configuration, token
// validity, email claim, user existence. Failures are *apperr.Error.
func (r *Resolver) Resolve(ctx context.Context, header string) (*models.User, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, apperr.Unauthorized("token missing", nil)
	}

	if !r.issuer.Configured() {
		log.Error().Msg("JWT secret is not configured")
		return nil, apperr.Misconfigured("jwt secret not configured", ErrSecretNotConfigured)
	}

	claims, err := r.issuer.Parse(token)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected bearer token")
		return nil, apperr.Unauthorized("invalid token", err)
	}

	if claims.Email == "" {
		return nil, apperr.Unauthorized("email missing in token", nil)
	}

	user, err := r.users.FindUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, catalog.ErrUserNotFound) {
			return nil, apperr.UnknownPrincipal("user not found", err)
		}
		return nil, apperr.Internal("failed to resolve user", err)
	}
	return user, nil
}

// BearerToken extracts the token of a "Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
