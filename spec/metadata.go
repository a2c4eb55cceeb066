package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/openlake/icevault/location"
)

// TableMetadata is an Iceberg table metadata document. The document is
// kept as parsed JSON rather than a typed struct so that fields the
// backup engine never touches (schemas, partition specs, sort orders,
// statistics, future additions) survive the round trip untouched.
// Numbers are held as json.Number; snapshot ids exceed float64 precision.
type TableMetadata struct {
	doc map[string]any
}

// Snapshot is the typed view of one snapshot entry, limited to the fields
// traversal needs.
type Snapshot struct {
	SnapshotID   json.Number
	ManifestList string
}

// ParseTableMetadata parses a table metadata JSON document.
func ParseTableMetadata(data []byte) (*TableMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse table metadata: %w", err)
	}
	return &TableMetadata{doc: doc}, nil
}

// ToJSON serializes the metadata document.
func (m *TableMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m.doc, "", "  ")
}

// Location returns the table location.
func (m *TableMetadata) Location() string {
	s, _ := m.doc["location"].(string)
	return s
}

// CurrentSnapshotID returns the current snapshot id, if set.
func (m *TableMetadata) CurrentSnapshotID() (json.Number, bool) {
	n, ok := m.doc["current-snapshot-id"].(json.Number)
	if !ok || n.String() == "-1" {
		return "", false
	}
	return n, true
}

// Snapshots returns the snapshot entries of the document.
func (m *TableMetadata) Snapshots() []Snapshot {
	raw, _ := m.doc["snapshots"].([]any)
	snaps := make([]Snapshot, 0, len(raw))
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		snap := Snapshot{}
		snap.SnapshotID, _ = entry["snapshot-id"].(json.Number)
		snap.ManifestList, _ = entry["manifest-list"].(string)
		snaps = append(snaps, snap)
	}
	return snaps
}

// AbstractForBackup produces the backup form of the document: location
// cleared (it is filled in on restore), only the current snapshot kept
// with its manifest-list path abstracted against the table root, and the
// snapshot and metadata logs cleared. A restored table begins life as a
// single-snapshot table with no history.
//
// When current-snapshot-id does not match any snapshot entry, every
// snapshot is kept with an abstracted path instead. The second return
// reports whether the history was trimmed to the current snapshot.
func (m *TableMetadata) AbstractForBackup(tableRoot string) (*TableMetadata, bool) {
	doc := deepCopyJSON(m.doc).(map[string]any)

	doc["location"] = ""

	trimmed := false
	currentID, hasCurrent := doc["current-snapshot-id"].(json.Number)
	snapshots, _ := doc["snapshots"].([]any)

	if hasCurrent && len(snapshots) > 0 {
		for _, v := range snapshots {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := entry["snapshot-id"].(json.Number); ok && id == currentID {
				abstractManifestList(entry, tableRoot)
				doc["snapshots"] = []any{entry}
				trimmed = true
				break
			}
		}
	}

	if !trimmed {
		// Defensive fallback: the current snapshot is missing from the
		// list, keep everything with abstracted paths.
		for _, v := range snapshots {
			if entry, ok := v.(map[string]any); ok {
				abstractManifestList(entry, tableRoot)
			}
		}
	}

	doc["snapshot-log"] = []any{}
	doc["metadata-log"] = []any{}

	return &TableMetadata{doc: doc}, trimmed
}

// RestoreForTarget produces the restored form of a backup document: the
// location set to the target root and every retained snapshot's
// manifest-list path and metadata-log file pointer joined to it.
func (m *TableMetadata) RestoreForTarget(newRoot string) *TableMetadata {
	doc := deepCopyJSON(m.doc).(map[string]any)

	doc["location"] = newRoot

	if snapshots, ok := doc["snapshots"].([]any); ok {
		for _, v := range snapshots {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if ml, ok := entry["manifest-list"].(string); ok && ml != "" {
				entry["manifest-list"] = location.Restore(ml, newRoot)
			}
		}
	}

	if log, ok := doc["metadata-log"].([]any); ok {
		for _, v := range log {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if f, ok := entry["metadata-file"].(string); ok && f != "" {
				entry["metadata-file"] = location.Restore(f, newRoot)
			}
		}
	}

	return &TableMetadata{doc: doc}
}

func abstractManifestList(entry map[string]any, tableRoot string) {
	if ml, ok := entry["manifest-list"].(string); ok && ml != "" {
		entry["manifest-list"] = location.Abstract(ml, tableRoot)
	}
}

func deepCopyJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopyJSON(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopyJSON(inner)
		}
		return out
	default:
		return v
	}
}
