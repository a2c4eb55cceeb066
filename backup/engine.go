// Package backup orchestrates the two pipelines: backing an Iceberg
// table up into a point-in-time chain, and restoring a chosen point in
// time to a new table location.
package backup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openlake/icevault/catalog"
	"github.com/openlake/icevault/repository"
	"github.com/openlake/icevault/retry"
	"github.com/openlake/icevault/store"
)

// EngineConfig wires an Engine's collaborators and policies.
type EngineConfig struct {
	Store      store.Store
	Catalog    catalog.Catalog
	Repository *repository.Repository
	Retry      retry.Policy
	Logger     *zap.Logger

	// CopyDataFiles controls whether backup copies data file blobs into
	// the backup bucket. When off a backup holds metadata and manifests
	// only and is not independent of the source table's files.
	CopyDataFiles bool

	// DataFileFailureRatio is the fraction of failed best-effort data
	// file copies above which a backup is aborted.
	DataFileFailureRatio float64
}

// Engine runs backup and restore pipelines against a table catalog and
// an object store.
type Engine struct {
	store   store.Store
	catalog catalog.Catalog
	repo    *repository.Repository
	retry   retry.Policy
	logger  *zap.Logger

	copyDataFiles        bool
	dataFileFailureRatio float64
}

// NewEngine creates a pipeline engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DataFileFailureRatio <= 0 || cfg.DataFileFailureRatio > 1 {
		cfg.DataFileFailureRatio = 0.5
	}

	return &Engine{
		store:                cfg.Store,
		catalog:              cfg.Catalog,
		repo:                 cfg.Repository,
		retry:                cfg.Retry,
		logger:               cfg.Logger,
		copyDataFiles:        cfg.CopyDataFiles,
		dataFileFailureRatio: cfg.DataFileFailureRatio,
	}, nil
}

// ListPits returns the PIT chain recorded for a backup name, oldest
// first.
func (e *Engine) ListPits(ctx context.Context, backupName string) (*repository.Index, error) {
	idx := e.repo.GetIndex(ctx, backupName)
	if len(idx.Pits) == 0 {
		return nil, fmt.Errorf("backup %s: %w", backupName, ErrBackupNotFound)
	}
	return idx, nil
}

// get reads an object by absolute URI with retries.
func (e *Engine) get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := store.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return e.getKey(ctx, bucket, key)
}

func (e *Engine) getKey(ctx context.Context, bucket, key string) ([]byte, error) {
	var content []byte
	err := e.retry.Do(ctx, func() error {
		var err error
		content, err = e.store.Get(ctx, bucket, key)
		if store.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, &StorageError{Operation: "get", Bucket: bucket, Key: key, Cause: err}
	}
	return content, nil
}

func (e *Engine) put(ctx context.Context, bucket, key string, content []byte) error {
	err := e.retry.Do(ctx, func() error {
		return e.store.Put(ctx, bucket, key, content)
	})
	if err != nil {
		return &StorageError{Operation: "put", Bucket: bucket, Key: key, Cause: err}
	}
	return nil
}

func (e *Engine) copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	err := e.retry.Do(ctx, func() error {
		err := e.store.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey)
		if store.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return &StorageError{Operation: "copy", Bucket: srcBucket, Key: srcKey, Cause: err}
	}
	return nil
}
