// Package bootstrap provides dependency initialization for the beatstore API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/beatstore-api/internal/audio"
	"github.com/maauso/beatstore-api/internal/auth"
	"github.com/maauso/beatstore-api/internal/beat"
	"github.com/maauso/beatstore-api/internal/config"
	"github.com/maauso/beatstore-api/internal/media"
	"github.com/maauso/beatstore-api/internal/notify"
	"github.com/maauso/beatstore-api/internal/preview"
	"github.com/maauso/beatstore-api/internal/rpchealth"
	"github.com/maauso/beatstore-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	BeatService *beat.Service
	Previews    *preview.Encoder
	Hub         *notify.Hub
	Verifier    *auth.Verifier
	// Monitor is nil when no RPC endpoints are configured.
	Monitor *rpchealth.Monitor
	// Files is set only for local storage, which the server exposes under /files.
	Files storage.Storage

	closers []func() error
}

// Close releases database and cache connections.
func (d *Dependencies) Close() error {
	if d.Hub != nil {
		d.Hub.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// NewPreviewEncoder wires the audio decoders and the ffmpeg MP3 encoder.
func NewPreviewEncoder(ffmpegPath string, logger *slog.Logger) *preview.Encoder {
	decoder := audio.NewAutoDecoder(audio.WithFFmpegFallback(ffmpegPath))
	return preview.NewEncoder(decoder, media.NewFFmpegEncoder(ffmpegPath), logger)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	verifier, err := auth.NewVerifier(cfg.AuthJWTSecret, auth.WithIssuer(cfg.AuthIssuer))
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}
	deps.Verifier = verifier

	// Initialize storage
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend() == config.StorageLocal {
		deps.Files = store
	}

	// Initialize beat repository
	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	deps.Previews = NewPreviewEncoder(cfg.FFmpegPath, logger)
	deps.BeatService = beat.NewService(repo, store, deps.Previews, logger,
		beat.WithSignedURLTTL(cfg.SignedURLTTL),
	)

	// Initialize notifications
	filter, err := initDedup(ctx, cfg, logger, deps)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Hub = notify.NewHub(filter, logger)

	// Initialize RPC health monitor
	if cfg.RPCMonitorEnabled() {
		monitor, err := rpchealth.NewMonitor(rpchealth.Config{
			Endpoints:        cfg.RPCEndpoints,
			CheckInterval:    cfg.RPCCheckInterval,
			FailureThreshold: cfg.RPCFailureThreshold,
			Timeout:          cfg.RPCTimeout,
		}, rpchealth.NewHTTPChecker(), logger)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("create rpc monitor: %w", err)
		}
		deps.Monitor = monitor
		logger.Info("rpc monitor configured",
			slog.Int("endpoints", len(cfg.RPCEndpoints)),
			slog.Duration("interval", cfg.RPCCheckInterval),
		)
	}

	return deps, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageBackend() {
	case config.StorageS3:
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil

	case config.StorageMinIO:
		minioStore, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO storage: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure MinIO bucket: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
		)
		return minioStore, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.StorageDir, cfg.PublicFilesURL)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("dir", localStore.RootDir()),
	)
	return localStore, nil
}

// initRepository opens MySQL when DATABASE_DSN is set and falls back to memory.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (beat.Repository, error) {
	if cfg.DatabaseDSN == "" {
		logger.Info("in-memory beat catalog configured")
		return beat.NewMemoryRepository(), nil
	}

	db, err := beat.OpenMySQL(cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := beat.NewGormRepository(db)
	deps.closers = append(deps.closers, repo.Close)

	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("MySQL beat catalog configured")
	return repo, nil
}

// initDedup shares the dedup window through Redis when REDIS_ADDR is set.
func initDedup(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (notify.Filter, error) {
	if cfg.RedisAddr == "" {
		return notify.NewDeduper(cfg.NotifyDedupWindow, notify.SystemClock{}), nil
	}

	client, err := notify.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	deps.closers = append(deps.closers, client.Close)

	logger.Info("redis notification dedup configured", slog.String("addr", cfg.RedisAddr))
	return notify.NewRedisDeduper(client, cfg.NotifyDedupWindow, logger), nil
}
