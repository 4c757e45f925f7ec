// Package bootstrap provides dependency initialization for videomaker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/videomaker/internal/config"
	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/job"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/pipeline"
	"github.com/maauso/videomaker/internal/storage"
)

// Dependencies holds all initialized dependencies shared by the server and the CLI.
type Dependencies struct {
	Engine   *encoder.FFmpegEngine
	Pipeline *pipeline.Pipeline
	Service  *pipeline.Service
	Storage  storage.Storage

	logger *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
// The engine is created unloaded; call LoadEngine or LoadEngineAsync.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	engineOpts := []encoder.Option{
		encoder.WithBaseDir(cfg.TempDir),
		encoder.WithLogger(logger),
	}
	if cfg.FFmpegVersionPrefix != "" {
		engineOpts = append(engineOpts, encoder.WithVersionPrefix(cfg.FFmpegVersionPrefix))
	}
	engine := encoder.NewFFmpegEngine(cfg.FFmpegPath, engineOpts...)

	prober := media.NewFFprobeProber(cfg.FFprobePath, store,
		media.WithProbeTimeout(cfg.ProbeTimeout),
		media.WithProberLogger(logger),
	)

	p := pipeline.New(engine, prober,
		pipeline.WithRunTimeout(cfg.RunTimeout),
		pipeline.WithLogger(logger),
	)

	svc := pipeline.NewService(p, job.NewMemoryRepository(), store,
		pipeline.WithS3Publishing(cfg.S3Enabled()),
		pipeline.WithServiceLogger(logger),
	)

	return &Dependencies{
		Engine:   engine,
		Pipeline: p,
		Service:  svc,
		Storage:  store,
		logger:   logger,
	}, nil
}

// LoadEngine loads the encoder engine and blocks until it is ready or fails.
func (d *Dependencies) LoadEngine(ctx context.Context) error {
	if err := d.Engine.Load(ctx); err != nil {
		return fmt.Errorf("load encoder engine: %w", err)
	}
	return nil
}

// LoadEngineAsync starts loading the engine in the background. The returned
// channel receives the load result and is then closed.
func (d *Dependencies) LoadEngineAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := d.LoadEngine(ctx)
		if err != nil {
			d.logger.Error("encoder engine failed to load",
				slog.String("error", err.Error()),
			)
		}
		done <- err
	}()
	return done
}

// Close waits for background jobs and releases the engine namespace.
func (d *Dependencies) Close() error {
	d.Service.Wait()
	return d.Engine.Close()
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
