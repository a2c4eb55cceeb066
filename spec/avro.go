package spec

import (
	"bytes"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/openlake/icevault/location"
)

// ManifestData is the decoded content of one manifest or manifest list
// Avro file together with everything needed to re-serialize it: the
// embedded writer schema, the compression codec name, and the OCF
// metadata block. Transforms return new ManifestData values and never
// mutate the receiver.
type ManifestData struct {
	Kind    ManifestKind
	Records []Record

	codec       *goavro.Codec
	compression string
	metadata    map[string][]byte
}

// ReadManifestData decodes a manifest or manifest list Avro file.
func ReadManifestData(content []byte) (*ManifestData, error) {
	ocf, err := goavro.NewOCFReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}

	var records []Record
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest record: %w", err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected record type %T", datum)
		}
		records = append(records, rec)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest file: %w", err)
	}

	codec := ocf.Codec()
	kind, err := detectKind(records, codec.Schema())
	if err != nil {
		return nil, err
	}

	// avro.schema and avro.codec are reconstructed by the writer; carrying
	// them through the metadata block would duplicate them.
	metadata := make(map[string][]byte)
	for k, v := range ocf.MetaData() {
		if k == "avro.schema" || k == "avro.codec" {
			continue
		}
		metadata[k] = v
	}

	return &ManifestData{
		Kind:        kind,
		Records:     records,
		codec:       codec,
		compression: ocf.CompressionName(),
		metadata:    metadata,
	}, nil
}

// Encode serializes the records back to Avro OCF with the carried writer
// schema, compression, and metadata. Records that were read and not
// modified round-trip exactly.
func (d *ManifestData) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           d.codec,
		CompressionName: d.compression,
		MetaData:        d.metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	for _, rec := range d.Records {
		if err := ocf.Append([]any{rec}); err != nil {
			return nil, fmt.Errorf("failed to append manifest record: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// Schema returns the embedded writer schema.
func (d *ManifestData) Schema() string {
	return d.codec.Schema()
}

// derive returns a ManifestData sharing the codec state but holding the
// given records.
func (d *ManifestData) derive(records []Record) *ManifestData {
	return &ManifestData{
		Kind:        d.Kind,
		Records:     records,
		codec:       d.codec,
		compression: d.compression,
		metadata:    d.metadata,
	}
}

// FilterActive drops manifest entries with status DELETED. Entries
// without a status field default to ADDED and are kept. Manifest lists
// carry no delete markers and pass through unchanged.
func (d *ManifestData) FilterActive() *ManifestData {
	if d.Kind != KindManifest {
		return d
	}
	kept := make([]Record, 0, len(d.Records))
	for _, rec := range d.Records {
		if Status(rec) == StatusDeleted {
			continue
		}
		kept = append(kept, rec)
	}
	return d.derive(kept)
}

// RewriteOptions carries optional per-file adjustments applied while
// rewriting paths.
type RewriteOptions struct {
	// SizeCorrections maps a data file's location-relative path to its
	// corrected physical size. Entries found here get the corrected
	// file_size_in_bytes and their recorded statistics dropped, since
	// those were computed against the original bytes.
	SizeCorrections map[string]int64
}

// RewritePaths replaces the oldRoot prefix with newRoot in every path the
// records carry: manifest_path for manifest lists; data_file.file_path
// and any UTF-8 decodable bound value for manifests. Bound values that
// are not valid UTF-8 are left untouched, they are not path-valued.
// Size corrections, when supplied, are applied per record regardless of
// whether a path was rewritten.
func (d *ManifestData) RewritePaths(oldRoot, newRoot string, opts RewriteOptions) *ManifestData {
	rewritten := make([]Record, len(d.Records))
	for i, rec := range d.Records {
		out := copyRecord(rec)
		if d.Kind == KindManifestList {
			if p := ManifestPath(out); p != "" {
				if np, ok := location.RewritePrefix(p, oldRoot, newRoot); ok {
					out["manifest_path"] = np
				}
			}
		} else {
			rewriteDataFile(out, oldRoot, newRoot, opts.SizeCorrections)
		}
		rewritten[i] = out
	}
	return d.derive(rewritten)
}

func rewriteDataFile(rec Record, oldRoot, newRoot string, corrections map[string]int64) {
	df := DataFile(rec)
	if df == nil {
		return
	}

	path, _ := df["file_path"].(string)
	if path != "" {
		if np, ok := location.RewritePrefix(path, oldRoot, newRoot); ok {
			df["file_path"] = np
		}
	}

	// Some table layouts store a data file's own path as a column bound,
	// so every textual bound value is checked, not just a known field id.
	for _, field := range []string{"lower_bounds", "upper_bounds"} {
		byID, entries := boundEntries(df, field)
		for id, v := range byID {
			if np, ok := rewriteBound(v, oldRoot, newRoot); ok {
				byID[id] = np
			}
		}
		for _, item := range entries {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if np, ok := rewriteBound(entry["value"], oldRoot, newRoot); ok {
				entry["value"] = np
			}
		}
	}

	rewriteCorrections(df, path, oldRoot, corrections)
}

// rewriteBound re-roots one bound value when it decodes as UTF-8 text
// with the old prefix.
func rewriteBound(v any, oldRoot, newRoot string) ([]byte, bool) {
	text, ok := boundAsText(v)
	if !ok {
		return nil, false
	}
	np, changed := location.RewritePrefix(text, oldRoot, newRoot)
	if !changed {
		return nil, false
	}
	return []byte(np), true
}

func rewriteCorrections(df Record, path, oldRoot string, corrections map[string]int64) {
	if len(corrections) == 0 {
		return
	}
	rel := location.Abstract(location.Normalize(path), oldRoot)
	size, ok := corrections[rel]
	if !ok {
		return
	}
	df["file_size_in_bytes"] = size
	for _, field := range statFields {
		df[field] = nil
	}
}

// ManifestPaths returns every manifest_path in a manifest list.
func (d *ManifestData) ManifestPaths() []string {
	if d.Kind != KindManifestList {
		return nil
	}
	paths := make([]string, 0, len(d.Records))
	for _, rec := range d.Records {
		if p := ManifestPath(rec); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// ActiveDataFiles returns the file_path of every non-deleted manifest
// entry.
func (d *ManifestData) ActiveDataFiles() []string {
	if d.Kind != KindManifest {
		return nil
	}
	paths := make([]string, 0, len(d.Records))
	for _, rec := range d.Records {
		if Status(rec) == StatusDeleted {
			continue
		}
		if p := DataFilePath(rec); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
