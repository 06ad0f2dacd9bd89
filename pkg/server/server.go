// Package server exposes the vault over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"coffrefort/pkg/activity"
	"coffrefort/pkg/auth"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/metrics"
	"coffrefort/pkg/objectstore"
	"coffrefort/pkg/quota"
	"coffrefort/pkg/upload"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultQuotaBytes      = 1 << 30
	bodyLimit              = "16M"
	readHeaderTimeout      = 10 * time.Second
	defaultWebDir          = "web"
)

// Options wires the server to its collaborators.
type Options struct {
	Catalog *catalog.Store
	Store   objectstore.Store
	Issuer  *auth.Issuer
	Ledger  *quota.Ledger
	Metrics *metrics.Metrics
	Version string
	Backend string
	// UploadDir is reported by /health for the disk backend.
	UploadDir string
	// WebDir holds swagger-ui.html and openapi.yml.
	WebDir          string
	DefaultQuota    int64
	AuthRateLimit   float64
	AuthRateBurst   int
	ShutdownTimeout time.Duration
}

type Server struct {
	echo            *echo.Echo
	catalog         *catalog.Store
	store           objectstore.Store
	issuer          *auth.Issuer
	resolver        *auth.Resolver
	ledger          *quota.Ledger
	uploads         *upload.Pipeline
	activity        *activity.Aggregator
	metrics         *metrics.Metrics
	version         string
	backend         string
	uploadDir       string
	webDir          string
	defaultQuota    int64
	authRateLimit   float64
	authRateBurst   int
	shutdownTimeout time.Duration
	startedAt       time.Time
	now             func() time.Time
}

func New(opts Options) *Server {
	srv := &Server{
		echo:            echo.New(),
		catalog:         opts.Catalog,
		store:           opts.Store,
		issuer:          opts.Issuer,
		ledger:          opts.Ledger,
		metrics:         opts.Metrics,
		version:         opts.Version,
		backend:         opts.Backend,
		uploadDir:       opts.UploadDir,
		webDir:          opts.WebDir,
		defaultQuota:    opts.DefaultQuota,
		authRateLimit:   opts.AuthRateLimit,
		authRateBurst:   opts.AuthRateBurst,
		shutdownTimeout: opts.ShutdownTimeout,
		startedAt:       time.Now(),
		now:             time.Now,
	}
	if srv.metrics == nil {
		srv.metrics = metrics.New()
	}
	if srv.ledger == nil {
		srv.ledger = quota.NewLedger(opts.Catalog, quota.ScopeGlobal)
	}
	if srv.defaultQuota == 0 {
		srv.defaultQuota = defaultQuotaBytes
	}
	if srv.webDir == "" {
		srv.webDir = defaultWebDir
	}
	if srv.shutdownTimeout <= 0 {
		srv.shutdownTimeout = defaultShutdownTimeout
	}

	srv.resolver = auth.NewResolver(opts.Issuer, opts.Catalog)
	srv.uploads = upload.New(upload.Options{
		Catalog:       opts.Catalog,
		Store:         opts.Store,
		Authenticator: srv.resolver,
		Quota:         srv.ledger,
		Observer:      srv.metrics,
	})
	srv.activity = activity.NewAggregator(opts.Catalog)

	srv.setupRoutes()
	return srv
}

// isUploadRoute reports the upload route, which caps its own body.
func isUploadRoute(ctx echo.Context) bool {
	return ctx.Request().Method == http.MethodPost && ctx.Path() == "/files"
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until SIGINT or SIGTERM, then shuts down.
func (s *Server) Start(addr string) error {
	s.echo.Server.ReadHeaderTimeout = readHeaderTimeout

	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", s.version).
			Str("storage_backend", s.backend).
			Str("db_driver", s.catalog.Driver()).
			Msg("Starting coffre-fort server")

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Validator = newRequestValidator()

	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{headerTotalCount, echo.HeaderContentDisposition},
	}))
	s.echo.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: isUploadRoute,
		Limit:   bodyLimit,
	}))

	authLimit := s.authRateLimiter()

	s.echo.GET("/", s.serveSwaggerUI)
	s.echo.GET("/openapi.yml", s.serveOpenAPISpec)
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	s.echo.POST("/auth/register", s.register, authLimit)
	s.echo.POST("/auth/login", s.login, authLimit)

	s.echo.GET("/files", s.listFiles, s.requireAuth)
	s.echo.GET("/filesPaginated", s.listFilesPaginated, s.requireAuth)
	s.echo.GET("/files/:id", s.getFileInfo, s.requireAuth)
	s.echo.GET("/files/:id/download", s.downloadFile, s.requireAuth)
	s.echo.POST("/files", s.uploadFile)
	s.echo.DELETE("/files/:id", s.deleteFile, s.requireAuth)
	s.echo.POST("/files/:id/shares", s.createShare, s.requireAuth)
	s.echo.GET("/shares/:token/download", s.downloadShare)

	s.echo.GET("/stats", s.stats, s.requireAuth)
	s.echo.PUT("/quota", s.updateQuota, s.requireAuth)
	s.echo.GET("/me/quota", s.myQuota, s.requireAuth)
	s.echo.GET("/me/activity", s.myActivity, s.requireAuth)

	s.echo.GET("/folders", s.listFolders, s.requireAuth)
	s.echo.POST("/folders", s.createFolder, s.requireAuth)
	s.echo.DELETE("/folders/:id", s.deleteFolder, s.requireAuth)

	s.echo.GET("/users", s.listUsers, s.requireAuth, s.requireAdmin)
	s.echo.GET("/users/:id", s.getUser, s.requireAuth, s.requireAdmin)
	s.echo.DELETE("/users/:id", s.deleteUser, s.requireAuth, s.requireAdmin)
}
