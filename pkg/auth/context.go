package auth

import (
	"context"

	"coffrefort/pkg/models"
)

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated user.
func WithPrincipal(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// PrincipalFrom returns the authenticated user stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(principalKey{}).(*models.User)
	return user, ok && user != nil
}
