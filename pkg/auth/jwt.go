// Package auth issues and verifies bearer tokens and resolves them to users.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coffrefort/pkg/models"
)

const (
	DefaultIssuer   = "coffre-fort"
	DefaultAudience = "coffre-fort-users"
	DefaultTokenTTL = time.Hour
)

var (
	ErrSecretNotConfigured = errors.New("jwt secret not configured")
	ErrInvalidToken        = errors.New("invalid token")
)

// Claims is the token payload. Email identifies the user on every request.
type Claims struct {
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// IssuerOptions configures token signing and verification.
type IssuerOptions struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

// Issuer signs and parses HS256 tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(opts IssuerOptions) *Issuer {
	issuer := &Issuer{
		secret:   []byte(opts.Secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		now:      opts.Now,
	}
	if issuer.issuer == "" {
		issuer.issuer = DefaultIssuer
	}
	if issuer.audience == "" {
		issuer.audience = DefaultAudience
	}
	if issuer.ttl <= 0 {
		issuer.ttl = DefaultTokenTTL
	}
	if issuer.now == nil {
		issuer.now = time.Now
	}
	return issuer
}

// Configured reports whether a signing secret is set.
func (i *Issuer) Configured() bool {
	return len(i.secret) > 0
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for user valid for the configured TTL.
func (i *Issuer) Issue(user *models.User) (string, error) {
	if !i.Configured() {
		return "", ErrSecretNotConfigured
	}

	issuedAt := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, algorithm, issuer, audience and expiry.
// Every verification failure is reported as ErrInvalidToken wrapping the cause.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	if !i.Configured() {
		return nil, ErrSecretNotConfigured
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
