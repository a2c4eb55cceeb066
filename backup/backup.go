package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openlake/icevault/catalog"
	"github.com/openlake/icevault/location"
	"github.com/openlake/icevault/repository"
	"github.com/openlake/icevault/spec"
	"github.com/openlake/icevault/store"
)

// Backup backs a table up under a backup name and returns the new PIT
// id. Each invocation appends one PIT to the name's chain, linked to the
// previous head.
//
// Already-uploaded blobs are not cleaned up on failure; re-running the
// backup under the same name is the recovery mechanism.
func (e *Engine) Backup(ctx context.Context, database, table, backupName string) (string, error) {
	logger := e.logger.With(
		zap.String("database", database),
		zap.String("table", table),
		zap.String("backup", backupName),
	)
	logger.Info("starting backup")

	info, err := e.catalog.GetTableInfo(ctx, database, table)
	if err != nil {
		return "", fmt.Errorf("failed to resolve table %s.%s: %w", database, table, err)
	}

	rawMetadata, err := e.get(ctx, info.MetadataLocation)
	if err != nil {
		if store.IsNotFound(err) {
			return "", fmt.Errorf("metadata file %s: %w", info.MetadataLocation, ErrMetadataNotFound)
		}
		return "", err
	}

	md, err := spec.ParseTableMetadata(rawMetadata)
	if err != nil {
		return "", &DecodeError{Path: info.MetadataLocation, Cause: err}
	}

	tableRoot := info.Location
	if tableRoot == "" {
		tableRoot = md.Location()
	}
	if tableRoot == "" {
		return "", fmt.Errorf("table %s.%s: %w", database, table, catalog.ErrNotIcebergTable)
	}
	tableRoot = location.Normalize(tableRoot)

	abstracted, trimmed := md.AbstractForBackup(tableRoot)
	if !trimmed {
		logger.Warn("current snapshot not found in metadata, keeping all snapshots")
	}
	abstractedJSON, err := abstracted.ToJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize abstracted metadata: %w", err)
	}

	files := e.collect(ctx, md, tableRoot)
	logger.Info("collected table files",
		zap.Int("manifest_lists", len(files.manifestLists)),
		zap.Int("manifests", len(files.manifests)),
		zap.Int("data_files", len(files.dataFiles)))

	parentPitID := e.repo.LastPitID(ctx, backupName)
	pitID := repository.NewPitID()
	createdAt := time.Now().UTC()

	manifest := &repository.PitManifest{
		PitID:              pitID,
		ParentPitID:        parentPitID,
		CreatedAt:          createdAt,
		BackupName:         backupName,
		OriginalDatabase:   database,
		OriginalTable:      table,
		OriginalLocation:   tableRoot,
		AbstractedMetadata: abstractedJSON,
	}
	for _, a := range files.manifestLists {
		manifest.ManifestLists = append(manifest.ManifestLists, a.relPath)
	}
	for _, a := range files.manifests {
		manifest.IndividualManifests = append(manifest.IndividualManifests, a.relPath)
	}
	for _, df := range files.dataFiles {
		manifest.DataFiles = append(manifest.DataFiles, location.Abstract(df, tableRoot))
	}

	if err := e.repo.SavePit(ctx, backupName, manifest); err != nil {
		return "", err
	}
	if err := e.repo.AppendToIndex(ctx, backupName, pitID, parentPitID, createdAt); err != nil {
		return "", err
	}

	if err := e.uploadArtifacts(ctx, logger, backupName, manifest, abstractedJSON, files); err != nil {
		return "", err
	}

	logger.Info("backup complete", zap.String("pit_id", pitID))
	return pitID, nil
}

// uploadArtifacts stores the backup's blobs: the metadata mirrors
// (fatal), the manifest files (best-effort), and the data file copies
// (best-effort up to the failure ratio).
func (e *Engine) uploadArtifacts(ctx context.Context, logger *zap.Logger, backupName string, manifest *repository.PitManifest, abstractedJSON []byte, files *collection) error {
	bucket := e.repo.Bucket()

	if err := e.put(ctx, bucket, e.repo.Key(backupName, "metadata.json"), abstractedJSON); err != nil {
		return err
	}
	mirror, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup manifest: %w", err)
	}
	if err := e.put(ctx, bucket, e.repo.Key(backupName, "backup_metadata.json"), mirror); err != nil {
		return err
	}

	for _, group := range [][]manifestArtifact{files.manifestLists, files.manifests} {
		for _, a := range group {
			if err := e.put(ctx, bucket, e.repo.Key(backupName, a.relPath), a.content); err != nil {
				logger.Warn("failed to upload manifest file, backup will have a hole",
					zap.String("path", a.relPath), zap.Error(err))
			}
		}
	}

	if !e.copyDataFiles {
		logger.Info("data file copies disabled, backup holds metadata only")
		return nil
	}

	failed := 0
	var samples []string
	for _, abs := range files.dataFiles {
		srcBucket, srcKey, err := store.ParseURI(abs)
		if err != nil {
			logger.Warn("skipping data file with unparseable location",
				zap.String("path", abs), zap.Error(err))
			failed++
			if len(samples) < 3 {
				samples = append(samples, abs)
			}
			continue
		}
		rel := location.Abstract(abs, manifest.OriginalLocation)
		if err := e.copy(ctx, srcBucket, srcKey, bucket, e.repo.Key(backupName, rel)); err != nil {
			logger.Warn("failed to copy data file", zap.String("path", abs), zap.Error(err))
			failed++
			if len(samples) < 3 {
				samples = append(samples, abs)
			}
		}
	}

	attempted := len(files.dataFiles)
	if attempted > 0 && float64(failed)/float64(attempted) > e.dataFileFailureRatio {
		return &PartialCopyError{Failed: failed, Attempted: attempted, Samples: samples}
	}
	if failed > 0 {
		logger.Warn("some data file copies failed",
			zap.Int("failed", failed), zap.Int("attempted", attempted))
	}
	return nil
}
