package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/auth"
	"coffrefort/pkg/log"
	"coffrefort/pkg/models"
)

const (
	defaultAuthRate     = 5
	defaultAuthBurst    = 10
	rateLimitVisitorTTL = 3 * time.Minute
	headerTotalCount    = "X-Total-Count"
)

// requestLogger writes one zerolog line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Status >= http.StatusInternalServerError {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("Request")
			return nil
		},
	})
}

// authRateLimiter throttles credential endpoints per client IP.
func (s *Server) authRateLimiter() echo.MiddlewareFunc {
	limit, burst := s.authRateLimit, s.authRateBurst
	if limit <= 0 {
		limit = defaultAuthRate
	}
	if burst < 1 {
		burst = defaultAuthBurst
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     burst,
			ExpiresIn: rateLimitVisitorTTL,
		}),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": "unable to identify client"})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			log.Warn().Str("remote_ip", identifier).Str("uri", ctx.Request().RequestURI).Msg("Rate limit exceeded")
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	})
}

// requireAuth resolves the bearer token and stores the user in the request context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		user, err := s.resolver.Resolve(req.Context(), req.Header.Get(echo.HeaderAuthorization))
		if err != nil {
			s.metrics.ObserveAuthFailure(apperr.StatusOf(err))
			return s.respondError(ctx, err)
		}

		ctx.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), user)))
		return next(ctx)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		user, err := currentUser(ctx)
		if err != nil {
			return s.respondError(ctx, err)
		}
		if !user.IsAdmin {
			return s.respondError(ctx, apperr.Forbidden("admin access required"))
		}
		return next(ctx)
	}
}

func currentUser(ctx echo.Context) (*models.User, error) {
	user, ok := auth.PrincipalFrom(ctx.Request().Context())
	if !ok {
		return nil, apperr.Unauthorized("token missing", nil)
	}
	return user, nil
}

// canAccess reports whether user may act on a resource owned by ownerID.
func canAccess(user *models.User, ownerID int64) bool {
	return user.IsAdmin || user.ID == ownerID
}
