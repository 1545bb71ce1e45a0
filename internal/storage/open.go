package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sdrvault/sdrvault/internal/config"
	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/logging"
)

// Open builds the gateway selected by cfg.Backend. Backends holding local
// resources (sqlite) also implement io.Closer.
//
// The local backend removes temp files left by an interrupted write before
// it is returned.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Gateway, error) {
	logger = logging.WithComponent(logger, "storage")

	switch cfg.Backend {
	case config.BackendS3:
		gw, err := NewS3Gateway(ctx, S3Options{
			EndpointURL:        cfg.S3.EndpointURL,
			Region:             cfg.S3.Region,
			AccessKeyID:        cfg.S3.AccessKeyID,
			SecretAccessKey:    cfg.S3.SecretAccessKey,
			Bucket:             cfg.S3.BucketName,
			UsePathStyle:       cfg.S3.UsePathStyle,
			InsecureSkipVerify: cfg.S3.InsecureSkipVerify,
		}, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil

	case config.BackendGCS:
		gw, err := NewGCSGateway(ctx, cfg.GCS.Bucket, cfg.GCS.Project, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil

	case config.BackendAzure:
		gw, err := NewAzureGateway(cfg.Azure.Container, cfg.Azure.AccountURL, cfg.Azure.ConnectionString, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, sverr.ErrConfiguration.Wrap(err)
		}
		gw, err := NewSQLiteGateway(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("storage backend initialized", "backend", "sqlite", "path", cfg.SQLite.Path)
		return gw, nil

	case config.BackendLocal:
		gw, err := NewLocalGateway(cfg.Local.RootDir, cfg.Local.Bucket, logger)
		if err != nil {
			return nil, err
		}
		if err := gw.CleanTempFiles(); err != nil {
			logger.Warn("failed to clean temp files", "error", err)
		}
		logger.Info("storage backend initialized", "backend", "local", "root", cfg.Local.RootDir)
		return gw, nil

	case config.BackendMemory:
		logger.Warn("using the in-memory storage backend; recordings do not survive a restart")
		return NewMemoryGateway(), nil
	}
	return nil, sverr.ErrConfiguration.WithMessage("unknown storage backend %q", cfg.Backend)
}
