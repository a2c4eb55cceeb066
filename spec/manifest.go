// Package spec implements the Iceberg file formats the backup engine
// touches: the table metadata JSON document and the two Avro manifest
// record shapes (manifest list entries and manifest entries).
//
// Manifest records are kept in goavro's native form (maps keyed by field
// name, unions as single-entry maps) so that fields the engine never
// touches re-serialize exactly as they were read. The embedded writer
// schema decides how records are laid out on disk and is carried through
// every transform.
package spec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// EntryStatus is the status of a manifest entry.
type EntryStatus int

const (
	StatusExisting EntryStatus = 0
	StatusAdded    EntryStatus = 1
	StatusDeleted  EntryStatus = 2
)

// FileContent is the content type of a data file.
type FileContent int

const (
	ContentData            FileContent = 0
	ContentPositionDeletes FileContent = 1
	ContentEqualityDeletes FileContent = 2
)

// ManifestKind distinguishes the two record shapes a manifest Avro file
// can hold. It is decided once when the file is decoded.
type ManifestKind int

const (
	// KindManifestList holds one record per manifest (manifest_path field).
	KindManifestList ManifestKind = iota
	// KindManifest holds one record per data file (data_file field).
	KindManifest
)

// String returns a human-readable kind name.
func (k ManifestKind) String() string {
	if k == KindManifestList {
		return "manifest-list"
	}
	return "manifest"
}

// Record is one Avro record in goavro native form.
type Record = map[string]any

// Status returns the entry status of a manifest record. Records without
// a status field are treated as ADDED.
func Status(rec Record) EntryStatus {
	v, ok := rec["status"]
	if !ok || v == nil {
		return StatusAdded
	}
	return EntryStatus(asInt(v))
}

// ManifestPath returns the manifest_path of a manifest list record.
func ManifestPath(rec Record) string {
	s, _ := rec["manifest_path"].(string)
	return s
}

// DataFile returns the data_file record of a manifest entry, or nil.
func DataFile(rec Record) Record {
	df, _ := rec["data_file"].(map[string]any)
	return df
}

// DataFilePath returns the file_path of a manifest entry's data file.
func DataFilePath(rec Record) string {
	df := DataFile(rec)
	if df == nil {
		return ""
	}
	s, _ := df["file_path"].(string)
	return s
}

// DataFileContent returns the content type of a manifest entry's data
// file. Files written before content types existed default to data.
func DataFileContent(rec Record) FileContent {
	df := DataFile(rec)
	if df == nil {
		return ContentData
	}
	v, ok := df["content"]
	if !ok || v == nil {
		return ContentData
	}
	return FileContent(asInt(v))
}

// DataFileSize returns file_size_in_bytes of a manifest entry's data file.
func DataFileSize(rec Record) int64 {
	df := DataFile(rec)
	if df == nil {
		return 0
	}
	return asInt64(df["file_size_in_bytes"])
}

// statFields are the per-file statistics that become invalid when the
// physical file no longer matches the bytes the stats were computed from.
var statFields = []string{
	"column_sizes",
	"value_counts",
	"null_value_counts",
	"nan_value_counts",
	"lower_bounds",
	"upper_bounds",
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// unionValue unwraps a goavro union (a single-entry map keyed by the Avro
// type name) into its value.
func unionValue(v any, avroType string) (any, bool) {
	union, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := union[avroType]
	return inner, ok
}

// boundEntries returns a nullable bounds field in whichever of its two
// on-disk shapes the writer chose: an Avro map keyed by field id, or the
// Iceberg-standard array of {key, value} records (an array with the map
// logical type). Exactly one of the returns is non-nil for a present
// field; both are nil when the field is null or absent.
func boundEntries(df Record, field string) (map[string]any, []any) {
	v, ok := df[field]
	if !ok || v == nil {
		return nil, nil
	}
	if inner, ok := unionValue(v, "map"); ok {
		m, _ := inner.(map[string]any)
		return m, nil
	}
	if inner, ok := unionValue(v, "array"); ok {
		a, _ := inner.([]any)
		return nil, a
	}
	// Some writers emit the value without the union wrapper.
	switch val := v.(type) {
	case map[string]any:
		return val, nil
	case []any:
		return nil, val
	}
	return nil, nil
}

// boundsMap returns the string-keyed shape of a bounds field, or nil.
func boundsMap(df Record, field string) map[string]any {
	m, _ := boundEntries(df, field)
	return m
}

// boundAsText interprets a bound value as UTF-8 text. Bounds hold raw
// encoded bytes whose meaning depends on the column type; only valid
// UTF-8 values can be path-valued.
func boundAsText(v any) (string, bool) {
	b, ok := v.([]byte)
	if !ok {
		return "", false
	}
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// copyRecord deep-copies a native Avro record so transforms never alias
// the input.
func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// detectKind decides the record shape from the first record, falling back
// to the writer schema for empty files.
func detectKind(records []Record, schema string) (ManifestKind, error) {
	if len(records) > 0 {
		if _, ok := records[0]["manifest_path"]; ok {
			return KindManifestList, nil
		}
		if _, ok := records[0]["data_file"]; ok {
			return KindManifest, nil
		}
		return 0, fmt.Errorf("record has neither manifest_path nor data_file")
	}
	if strings.Contains(schema, `"manifest_entry"`) {
		return KindManifest, nil
	}
	return KindManifestList, nil
}
