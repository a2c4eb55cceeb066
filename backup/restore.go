package backup

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlake/icevault/deletefile"
	"github.com/openlake/icevault/location"
	"github.com/openlake/icevault/spec"
	"github.com/openlake/icevault/store"
)

// RestoreRequest names the point in time to restore and where to put it.
type RestoreRequest struct {
	BackupName string

	// PitID selects a point in the chain. Empty means the chain head.
	PitID string

	TargetDatabase string
	TargetTable    string

	// TargetLocation is the root the restored table is materialized
	// under, e.g. s3://bucket/warehouse/db/table_restored.
	TargetLocation string
}

// restoredManifest is one manifest file staged for rewrite and upload.
type restoredManifest struct {
	relPath string
	data    *spec.ManifestData
}

// Restore materializes a backup at a new location and registers it in
// the catalog. Unlike backup's best-effort copies, every file must make
// it: restore either produces a fully usable table or fails.
//
// There is no rollback; a failed restore leaves unregistered objects at
// the target location for manual cleanup.
func (e *Engine) Restore(ctx context.Context, req RestoreRequest) (string, error) {
	logger := e.logger.With(
		zap.String("backup", req.BackupName),
		zap.String("target", req.TargetDatabase+"."+req.TargetTable),
	)
	logger.Info("starting restore")

	pitID := req.PitID
	if pitID == "" {
		pitID = e.repo.LastPitID(ctx, req.BackupName)
		if pitID == "" {
			return "", fmt.Errorf("backup %s: %w", req.BackupName, ErrBackupNotFound)
		}
	}
	logger = logger.With(zap.String("pit_id", pitID))

	manifest, err := e.repo.GetPitManifest(ctx, req.BackupName, pitID)
	if err != nil {
		if store.IsNotFound(err) {
			return "", fmt.Errorf("pit %s of backup %s: %w", pitID, req.BackupName, ErrPitNotFound)
		}
		return "", err
	}

	md, err := spec.ParseTableMetadata(manifest.AbstractedMetadata)
	if err != nil {
		return "", &DecodeError{Path: "abstracted metadata of " + pitID, Cause: err}
	}

	originalRoot := location.Normalize(manifest.OriginalLocation)
	targetRoot := location.Normalize(req.TargetLocation)

	manifests, deleteFiles, err := e.loadBackupManifests(ctx, req.BackupName, manifest.ManifestLists, manifest.IndividualManifests, originalRoot)
	if err != nil {
		return "", err
	}

	corrections, err := e.copyDataFilesToTarget(ctx, logger, req.BackupName, manifest.DataFiles, deleteFiles, originalRoot, targetRoot)
	if err != nil {
		return "", err
	}

	restored := md.RestoreForTarget(targetRoot)
	restoredJSON, err := restored.ToJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize restored metadata: %w", err)
	}

	metadataRel := fmt.Sprintf("metadata/00001-%s.metadata.json", uuid.NewString())
	metadataLocation := location.Restore(metadataRel, targetRoot)
	mdBucket, mdKey, err := store.ParseURI(metadataLocation)
	if err != nil {
		return "", err
	}
	if err := e.put(ctx, mdBucket, mdKey, restoredJSON); err != nil {
		return "", err
	}

	opts := spec.RewriteOptions{SizeCorrections: corrections}
	for _, m := range manifests {
		rewritten := m.data.RewritePaths(originalRoot, targetRoot, opts)
		encoded, err := rewritten.Encode()
		if err != nil {
			return "", fmt.Errorf("failed to re-encode manifest %s: %w", m.relPath, err)
		}
		dstBucket, dstKey, err := store.ParseURI(location.Restore(m.relPath, targetRoot))
		if err != nil {
			return "", err
		}
		if err := e.put(ctx, dstBucket, dstKey, encoded); err != nil {
			return "", err
		}
	}

	if err := e.catalog.RegisterTable(ctx, req.TargetDatabase, req.TargetTable, metadataLocation); err != nil {
		return "", fmt.Errorf("failed to register restored table: %w", err)
	}

	logger.Info("restore complete", zap.String("metadata_location", metadataLocation))
	return metadataLocation, nil
}

// loadBackupManifests reads and decodes every manifest file a PIT names.
// It also reports which backed-up data files are position deletes, keyed
// by their relative path, so the copy stage knows which files need their
// path column rewritten.
func (e *Engine) loadBackupManifests(ctx context.Context, backupName string, lists, individuals []string, originalRoot string) ([]restoredManifest, map[string]bool, error) {
	bucket := e.repo.Bucket()
	deleteFiles := make(map[string]bool)

	var manifests []restoredManifest
	for _, rel := range append(append([]string{}, lists...), individuals...) {
		content, err := e.getKey(ctx, bucket, e.repo.Key(backupName, rel))
		if err != nil {
			return nil, nil, err
		}
		data, err := spec.ReadManifestData(content)
		if err != nil {
			return nil, nil, &DecodeError{Path: rel, Cause: err}
		}
		manifests = append(manifests, restoredManifest{relPath: rel, data: data})

		if data.Kind != spec.KindManifest {
			continue
		}
		for _, rec := range data.Records {
			if spec.DataFileContent(rec) != spec.ContentPositionDeletes {
				continue
			}
			if p := spec.DataFilePath(rec); p != "" {
				deleteFiles[location.Abstract(location.Normalize(p), originalRoot)] = true
			}
		}
	}
	return manifests, deleteFiles, nil
}

// copyDataFilesToTarget moves every backed-up data file to the target
// root. Position-delete files are rewritten in flight; their re-encoded
// sizes are returned so manifest statistics can be corrected. Any
// failure is fatal.
func (e *Engine) copyDataFilesToTarget(ctx context.Context, logger *zap.Logger, backupName string, dataFiles []string, deleteFiles map[string]bool, originalRoot, targetRoot string) (map[string]int64, error) {
	bucket := e.repo.Bucket()
	corrections := make(map[string]int64)

	for _, rel := range dataFiles {
		dstBucket, dstKey, err := store.ParseURI(location.Restore(rel, targetRoot))
		if err != nil {
			return nil, err
		}

		if !deleteFiles[rel] {
			if err := e.copy(ctx, bucket, e.repo.Key(backupName, rel), dstBucket, dstKey); err != nil {
				return nil, err
			}
			continue
		}

		content, err := e.getKey(ctx, bucket, e.repo.Key(backupName, rel))
		if err != nil {
			return nil, err
		}
		res, err := deletefile.Rewrite(ctx, rel, content, originalRoot, targetRoot, logger)
		if err != nil {
			return nil, err
		}
		if err := e.put(ctx, dstBucket, dstKey, res.Content); err != nil {
			return nil, err
		}
		if res.Changed {
			corrections[rel] = res.NewSize
		}
	}

	logger.Info("copied data files to target",
		zap.Int("files", len(dataFiles)),
		zap.Int("rewritten_delete_files", len(corrections)))
	return corrections, nil
}
