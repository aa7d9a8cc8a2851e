// Package bootstrap provides dependency initialization for the avmerge API and CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/avmerge-api/internal/combine"
	"github.com/maauso/avmerge-api/internal/config"
	"github.com/maauso/avmerge-api/internal/job"
	"github.com/maauso/avmerge-api/internal/media"
	"github.com/maauso/avmerge-api/internal/storage"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Service   *job.CombineService
	Combiner  *combine.Combiner
	Inspector *media.FFprobeInspector
	Store     storage.Storage
}

// NewCombiner wires the ffprobe inspector and ffmpeg encoder into a Combiner.
// It needs no storage and is shared by the server and the CLI.
func NewCombiner(cfg *config.Config, logger *slog.Logger) (*combine.Combiner, *media.FFprobeInspector) {
	inspector := media.NewFFprobeInspector(cfg.FFprobePath)
	encoder := media.NewFFmpegEncoder(cfg.FFmpegPath, media.WithAudioBitrate(cfg.AudioBitrate))

	combiner := combine.NewCombiner(inspector, encoder,
		combine.WithTempRoot(cfg.TempDir),
		combine.WithLogger(logger),
	)
	return combiner, inspector
}

// NewDependencies creates and initializes all dependencies for the HTTP server.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	combiner, inspector := NewCombiner(cfg, logger)

	svc := job.NewCombineService(
		job.NewMemoryRepository(),
		combiner,
		store,
		job.WithTimeout(cfg.CombineTimeout),
		job.WithMaxConcurrent(cfg.MaxConcurrentCombines),
		job.WithLogger(logger),
	)

	return &Dependencies{
		Service:   svc,
		Combiner:  combiner,
		Inspector: inspector,
		Store:     store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", localStore.Dir()),
	)
	return localStore, nil
}
