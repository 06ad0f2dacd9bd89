package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"coffrefort/pkg/auth"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/config"
	"coffrefort/pkg/log"
	"coffrefort/pkg/metrics"
	"coffrefort/pkg/objectstore"
	"coffrefort/pkg/objectstore/disk"
	"coffrefort/pkg/objectstore/s3"
	"coffrefort/pkg/quota"
	"coffrefort/pkg/server"
)

const startupTimeout = 30 * time.Second

//go:embed VERSION
var Version string

func main() {
	// Initialize logger first
	_ = log.Logger

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := log.Configure(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, err := catalog.Open(ctx, cfg.DBDriver, cfg.DatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Str("db_driver", cfg.DBDriver).Msg("Failed to open catalog")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close catalog")
		}
	}()

	objects, uploadDir, err := openObjectStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("storage_backend", cfg.StorageBackend).Msg("Failed to open object store")
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set, authenticated routes will fail")
	}

	srv := server.New(server.Options{
		Catalog: store,
		Store:   objects,
		Issuer: auth.NewIssuer(auth.IssuerOptions{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.TokenTTL,
		}),
		Ledger:          quota.NewLedger(store, quota.Scope(cfg.QuotaScope)),
		Metrics:         metrics.New(),
		Version:         strings.TrimSpace(Version),
		Backend:         cfg.StorageBackend,
		UploadDir:       uploadDir,
		WebDir:          cfg.WebDir,
		DefaultQuota:    cfg.DefaultQuota,
		AuthRateLimit:   cfg.AuthRateLimit,
		AuthRateBurst:   cfg.AuthRateBurst,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	if err := srv.Start(cfg.Addr); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
}

func openObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, string, error) {
	if cfg.StorageBackend == config.BackendS3 {
		store, err := s3.New(ctx, s3.Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, "", err
		}
		log.Info().Str("bucket", store.Bucket()).Msg("Using S3 object store")
		return store, "", nil
	}

	store := disk.New(cfg.UploadDir)
	log.Info().Str("upload_dir", store.Dir()).Msg("Using disk object store")
	return store, store.Dir(), nil
}
