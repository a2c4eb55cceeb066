package icevault

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openlake/icevault/backup"
	"github.com/openlake/icevault/catalog"
	"github.com/openlake/icevault/repository"
	"github.com/openlake/icevault/retry"
	"github.com/openlake/icevault/store"
)

// RestoreRequest names the point in time to restore and where to put it.
type RestoreRequest = backup.RestoreRequest

// Client is the entry point: it wires the catalog, object store, and
// backup repository together and runs the pipelines.
type Client struct {
	config *Config
	logger *zap.Logger
	engine *backup.Engine
}

// NewClient creates a client from the given options. A nil logger
// disables logging.
func NewClient(ctx context.Context, logger *zap.Logger, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.CatalogURI == "" {
		return nil, fmt.Errorf("catalog URI is required: %w", ErrInvalidConfig)
	}
	if cfg.BackupBucket == "" {
		return nil, fmt.Errorf("backup bucket is required: %w", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := catalog.NewRESTCatalog(cfg.CatalogURI,
		catalog.WithName(cfg.CatalogName),
		catalog.WithToken(cfg.Token),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}

	s3cfg := &store.S3Config{}
	if cfg.S3Config != nil {
		s3cfg = &store.S3Config{
			Region:          cfg.S3Config.Region,
			Endpoint:        cfg.S3Config.Endpoint,
			AccessKeyID:     cfg.S3Config.AccessKeyID,
			SecretAccessKey: cfg.S3Config.SecretAccessKey,
			SessionToken:    cfg.S3Config.SessionToken,
			ForcePathStyle:  cfg.S3Config.ForcePathStyle,
		}
	}
	st, err := store.NewS3Store(ctx, s3cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	repo := repository.New(st, cfg.BackupBucket, cfg.BackupPrefix, logger.Named("repository"))

	engine, err := backup.NewEngine(backup.EngineConfig{
		Store:                st,
		Catalog:              cat,
		Repository:           repo,
		Retry:                retry.Policy{MaxRetries: cfg.MaxRetries, InitialInterval: cfg.RetryBackoff},
		Logger:               logger,
		CopyDataFiles:        cfg.CopyDataFiles,
		DataFileFailureRatio: cfg.DataFileFailureRatio,
	})
	if err != nil {
		return nil, err
	}

	return &Client{config: cfg, logger: logger, engine: engine}, nil
}

// Backup backs a table up under a backup name and returns the new PIT
// id. Running it repeatedly under the same name grows that name's chain.
func (c *Client) Backup(ctx context.Context, database, table, backupName string) (string, error) {
	if err := ValidateIdentifier("database", database); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return "", err
	}
	if err := ValidateBackupName(backupName); err != nil {
		return "", err
	}
	return c.engine.Backup(ctx, database, table, backupName)
}

// Restore materializes a backed-up point in time at a new location and
// registers it in the catalog. It returns the registered metadata
// location.
func (c *Client) Restore(ctx context.Context, req RestoreRequest) (string, error) {
	if err := ValidateBackupName(req.BackupName); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("target database", req.TargetDatabase); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("target table", req.TargetTable); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("target location", req.TargetLocation); err != nil {
		return "", err
	}
	return c.engine.Restore(ctx, req)
}

// ListPits returns a backup name's PIT chain, oldest first.
func (c *Client) ListPits(ctx context.Context, backupName string) (*repository.Index, error) {
	if err := ValidateBackupName(backupName); err != nil {
		return nil, err
	}
	return c.engine.ListPits(ctx, backupName)
}
