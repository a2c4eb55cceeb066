// Package repository persists the point-in-time (PIT) chain of a backup
// name: an append-only index of PIT entries plus one immutable manifest
// per PIT. Successive backups of the same name link to their predecessor
// through parent PIT ids, forming a single linear history.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlake/icevault/store"
)

// PitManifest describes one backup of a table: where it came from, the
// abstracted metadata document, and the relative paths of every artifact
// stored under the backup root. It is immutable once persisted.
type PitManifest struct {
	PitID               string          `json:"pit_id"`
	ParentPitID         string          `json:"parent_pit_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	BackupName          string          `json:"backup_name"`
	OriginalDatabase    string          `json:"original_database"`
	OriginalTable       string          `json:"original_table"`
	OriginalLocation    string          `json:"original_location"`
	AbstractedMetadata  json.RawMessage `json:"abstracted_metadata"`
	ManifestLists       []string        `json:"manifest_lists"`
	IndividualManifests []string        `json:"individual_manifests"`
	DataFiles           []string        `json:"data_files"`
}

// IndexEntry is one PIT reference in a repository index.
type IndexEntry struct {
	PitID       string    `json:"pit_id"`
	CreatedAt   time.Time `json:"created_at"`
	ParentPitID string    `json:"parent_pit_id,omitempty"`
}

// Index is the ordered PIT history of one backup name. The last entry is
// the current head of the chain.
type Index struct {
	BackupName string       `json:"backup_name"`
	Pits       []IndexEntry `json:"pits"`
}

// Repository reads and writes PIT chains in a blob store bucket, under an
// optional key prefix.
type Repository struct {
	store  store.Store
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a repository rooted at bucket/prefix.
func New(s store.Store, bucket, prefix string, logger *zap.Logger) *Repository {
	return &Repository{
		store:  s,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Key returns the full object key for a path under a backup name,
// including the repository prefix.
func (r *Repository) Key(backupName string, parts ...string) string {
	segments := make([]string, 0, len(parts)+2)
	if r.prefix != "" {
		segments = append(segments, r.prefix)
	}
	segments = append(segments, backupName)
	segments = append(segments, parts...)
	return strings.Join(segments, "/")
}

// Bucket returns the repository bucket.
func (r *Repository) Bucket() string {
	return r.bucket
}

// NewPitID generates a globally unique, time-ordered PIT id of the form
// pit-<unix millis>-<8 hex chars>.
func NewPitID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("pit-%d-%s", time.Now().UnixMilli(), suffix)
}

// GetIndex reads the index of a backup name. A missing or unreadable
// index yields an empty one: this is how the first backup of a name is
// detected, so a corrupt index is indistinguishable from an absent one
// and starts a fresh chain.
func (r *Repository) GetIndex(ctx context.Context, backupName string) *Index {
	content, err := r.store.Get(ctx, r.bucket, r.Key(backupName, "index.json"))
	if err != nil {
		if !store.IsNotFound(err) {
			r.logger.Warn("could not read repository index, treating as empty",
				zap.String("backup", backupName), zap.Error(err))
		}
		return &Index{BackupName: backupName, Pits: []IndexEntry{}}
	}

	var idx Index
	if err := json.Unmarshal(content, &idx); err != nil {
		r.logger.Warn("corrupt repository index, treating as empty",
			zap.String("backup", backupName), zap.Error(err))
		return &Index{BackupName: backupName, Pits: []IndexEntry{}}
	}
	return &idx
}

// LastPitID returns the current head of a backup name's chain, or empty
// when no backup exists yet.
func (r *Repository) LastPitID(ctx context.Context, backupName string) string {
	idx := r.GetIndex(ctx, backupName)
	if len(idx.Pits) == 0 {
		return ""
	}
	return idx.Pits[len(idx.Pits)-1].PitID
}

// SavePit persists a PIT manifest under its id. Overwriting an existing
// manifest with identical content is harmless, so retried invocations
// are idempotent.
func (r *Repository) SavePit(ctx context.Context, backupName string, manifest *PitManifest) error {
	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pit manifest: %w", err)
	}
	key := r.Key(backupName, "pits", manifest.PitID, "manifest.json")
	if err := r.store.Put(ctx, r.bucket, key, content); err != nil {
		return fmt.Errorf("failed to persist pit %s: %w", manifest.PitID, err)
	}
	return nil
}

// GetPitManifest reads a PIT manifest by id.
func (r *Repository) GetPitManifest(ctx context.Context, backupName, pitID string) (*PitManifest, error) {
	key := r.Key(backupName, "pits", pitID, "manifest.json")
	content, err := r.store.Get(ctx, r.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read pit %s: %w", pitID, err)
	}

	var manifest PitManifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("corrupt pit manifest %s: %w", pitID, err)
	}
	return &manifest, nil
}

// AppendToIndex appends a PIT entry to a backup name's index.
//
// This is a read-modify-write with no conditional put: two concurrent
// backups under the same name can interleave and silently drop one
// entry from the index even though both manifests are persisted. Callers
// must ensure a single writer per backup name.
func (r *Repository) AppendToIndex(ctx context.Context, backupName, pitID, parentPitID string, createdAt time.Time) error {
	idx := r.GetIndex(ctx, backupName)
	idx.BackupName = backupName
	idx.Pits = append(idx.Pits, IndexEntry{
		PitID:       pitID,
		CreatedAt:   createdAt,
		ParentPitID: parentPitID,
	})

	content, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal repository index: %w", err)
	}
	if err := r.store.Put(ctx, r.bucket, r.Key(backupName, "index.json"), content); err != nil {
		return fmt.Errorf("failed to persist repository index: %w", err)
	}
	return nil
}
