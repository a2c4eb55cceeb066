package spec

import (
	"bytes"
	"testing"

	"github.com/linkedin/goavro/v2"
)

const testManifestListSchema = `{
  "type": "record",
  "name": "manifest_file",
  "fields": [
    {"name": "manifest_path", "type": "string"},
    {"name": "manifest_length", "type": "long"},
    {"name": "partition_spec_id", "type": "int"},
    {"name": "added_snapshot_id", "type": "long"}
  ]
}`

const testManifestEntrySchema = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "snapshot_id", "type": ["null", "long"], "default": null},
    {"name": "data_file", "type": {
      "type": "record",
      "name": "data_file",
      "fields": [
        {"name": "content", "type": "int", "default": 0},
        {"name": "file_path", "type": "string"},
        {"name": "file_format", "type": "string"},
        {"name": "record_count", "type": "long"},
        {"name": "file_size_in_bytes", "type": "long"},
        {"name": "column_sizes", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "null_value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "nan_value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "lower_bounds", "type": ["null", {"type": "map", "values": "bytes"}], "default": null},
        {"name": "upper_bounds", "type": ["null", {"type": "map", "values": "bytes"}], "default": null}
      ]
    }}
  ]
}`

// Bounds in their standard on-disk shape: an array of key/value records
// carrying the map logical type, as engine-written manifests encode them.
const testArrayBoundsEntrySchema = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "data_file", "type": {
      "type": "record",
      "name": "data_file",
      "fields": [
        {"name": "file_path", "type": "string"},
        {"name": "file_size_in_bytes", "type": "long"},
        {"name": "lower_bounds", "type": ["null", {
          "type": "array",
          "logicalType": "map",
          "items": {
            "type": "record",
            "name": "k126_v127",
            "fields": [
              {"name": "key", "type": "int", "field-id": 126},
              {"name": "value", "type": "bytes", "field-id": 127}
            ]
          }
        }], "default": null},
        {"name": "upper_bounds", "type": ["null", {
          "type": "array",
          "logicalType": "map",
          "items": {
            "type": "record",
            "name": "k129_v130",
            "fields": [
              {"name": "key", "type": "int", "field-id": 129},
              {"name": "value", "type": "bytes", "field-id": 130}
            ]
          }
        }], "default": null}
      ]
    }}
  ]
}`

// statusless schema: entries without a status field must default to ADDED.
const testStatuslessEntrySchema = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "data_file", "type": {
      "type": "record",
      "name": "data_file",
      "fields": [
        {"name": "file_path", "type": "string"},
        {"name": "file_size_in_bytes", "type": "long"}
      ]
    }}
  ]
}`

func encodeAvro(t *testing.T, schema string, records []map[string]any) []byte {
	t.Helper()

	codec, err := goavro.NewCodec(schema)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	buf := new(bytes.Buffer)
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           codec,
		CompressionName: "deflate",
	})
	if err != nil {
		t.Fatalf("NewOCFWriter: %v", err)
	}
	for _, rec := range records {
		if err := ocf.Append([]any{rec}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return buf.Bytes()
}

func listRecord(path string) map[string]any {
	return map[string]any{
		"manifest_path":     path,
		"manifest_length":   int64(4096),
		"partition_spec_id": 0,
		"added_snapshot_id": int64(7742873502371437864),
	}
}

func entryRecord(status int, path string, size int64) map[string]any {
	return map[string]any{
		"status":      status,
		"snapshot_id": goavro.Union("long", int64(7742873502371437864)),
		"data_file": map[string]any{
			"content":            0,
			"file_path":          path,
			"file_format":        "PARQUET",
			"record_count":       int64(100),
			"file_size_in_bytes": size,
			"column_sizes":       nil,
			"value_counts":       nil,
			"null_value_counts":  nil,
			"nan_value_counts":   nil,
			"lower_bounds":       nil,
			"upper_bounds":       nil,
		},
	}
}

func TestReadManifestDataKinds(t *testing.T) {
	list := encodeAvro(t, testManifestListSchema, []map[string]any{
		listRecord("s3://b/db/t/metadata/m0.avro"),
	})
	data, err := ReadManifestData(list)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}
	if data.Kind != KindManifestList {
		t.Errorf("Kind = %v, want manifest-list", data.Kind)
	}

	manifest := encodeAvro(t, testManifestEntrySchema, []map[string]any{
		entryRecord(1, "s3://b/db/t/data/f.parquet", 1024),
	})
	data, err = ReadManifestData(manifest)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}
	if data.Kind != KindManifest {
		t.Errorf("Kind = %v, want manifest", data.Kind)
	}
}

func TestReadManifestDataMalformed(t *testing.T) {
	if _, err := ReadManifestData([]byte("not an avro file")); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	content := encodeAvro(t, testManifestEntrySchema, []map[string]any{
		entryRecord(1, "s3://b/db/t/data/f0.parquet", 1024),
		entryRecord(0, "s3://b/db/t/data/f1.parquet", 2048),
	})

	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	encoded, err := data.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	again, err := ReadManifestData(encoded)
	if err != nil {
		t.Fatalf("ReadManifestData after Encode: %v", err)
	}
	if len(again.Records) != 2 {
		t.Fatalf("record count = %d, want 2", len(again.Records))
	}
	if DataFilePath(again.Records[0]) != "s3://b/db/t/data/f0.parquet" {
		t.Errorf("file_path = %q", DataFilePath(again.Records[0]))
	}
	if DataFileSize(again.Records[1]) != 2048 {
		t.Errorf("file_size_in_bytes = %d, want 2048", DataFileSize(again.Records[1]))
	}
	if again.Schema() != data.Schema() {
		t.Error("writer schema not preserved across Encode")
	}
}

func TestFilterActive(t *testing.T) {
	content := encodeAvro(t, testManifestEntrySchema, []map[string]any{
		entryRecord(1, "s3://b/t/data/a0.parquet", 1),
		entryRecord(1, "s3://b/t/data/a1.parquet", 1),
		entryRecord(1, "s3://b/t/data/a2.parquet", 1),
		entryRecord(0, "s3://b/t/data/e0.parquet", 1),
		entryRecord(0, "s3://b/t/data/e1.parquet", 1),
		entryRecord(2, "s3://b/t/data/d0.parquet", 1),
		entryRecord(2, "s3://b/t/data/d1.parquet", 1),
	})

	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	filtered := data.FilterActive()
	if len(filtered.Records) != 5 {
		t.Errorf("filtered records = %d, want 5", len(filtered.Records))
	}
	if len(data.Records) != 7 {
		t.Errorf("input mutated: records = %d, want 7", len(data.Records))
	}
	for _, rec := range filtered.Records {
		if Status(rec) == StatusDeleted {
			t.Errorf("deleted entry survived: %s", DataFilePath(rec))
		}
	}

	// Filtering is idempotent.
	twice := filtered.FilterActive()
	if len(twice.Records) != len(filtered.Records) {
		t.Errorf("second filter changed record count: %d != %d", len(twice.Records), len(filtered.Records))
	}

	if got := data.ActiveDataFiles(); len(got) != 5 {
		t.Errorf("ActiveDataFiles = %d paths, want 5", len(got))
	}
}

func TestStatusDefaultsToAdded(t *testing.T) {
	content := encodeAvro(t, testStatuslessEntrySchema, []map[string]any{
		{"data_file": map[string]any{
			"file_path":          "s3://b/t/data/f.parquet",
			"file_size_in_bytes": int64(10),
		}},
	})

	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}
	if Status(data.Records[0]) != StatusAdded {
		t.Errorf("Status = %v, want ADDED", Status(data.Records[0]))
	}
	if got := data.FilterActive(); len(got.Records) != 1 {
		t.Errorf("statusless entry filtered out")
	}
}

func TestRewritePathsManifestList(t *testing.T) {
	content := encodeAvro(t, testManifestListSchema, []map[string]any{
		listRecord("s3://b/db/t/metadata/m0.avro"),
		listRecord("s3://elsewhere/m1.avro"),
	})

	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	out := data.RewritePaths("s3://b/db/t", "s3://b/db/t_copy", RewriteOptions{})
	if got := ManifestPath(out.Records[0]); got != "s3://b/db/t_copy/metadata/m0.avro" {
		t.Errorf("manifest_path = %q", got)
	}
	// Paths outside the old root pass through.
	if got := ManifestPath(out.Records[1]); got != "s3://elsewhere/m1.avro" {
		t.Errorf("manifest_path = %q, want unchanged", got)
	}
	// The input records are untouched.
	if got := ManifestPath(data.Records[0]); got != "s3://b/db/t/metadata/m0.avro" {
		t.Errorf("input mutated: %q", got)
	}
}

func TestRewritePathsBounds(t *testing.T) {
	rec := entryRecord(1, "s3://b/db/t/data/f.parquet", 1024)
	df := rec["data_file"].(map[string]any)
	df["lower_bounds"] = goavro.Union("map", map[string]any{
		"1":          []byte("s3://b/db/t/data/f.parquet"),
		"2147483546": []byte("s3://b/db/t/data/f.parquet"),
		"3":          []byte{0x00, 0xff, 0xfe, 0x01}, // not UTF-8, not a path
	})
	df["upper_bounds"] = goavro.Union("map", map[string]any{
		"1": []byte("zebra"),
	})

	content := encodeAvro(t, testManifestEntrySchema, []map[string]any{rec})
	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	out := data.RewritePaths("s3://b/db/t", "s3://b/db/t_copy", RewriteOptions{})
	odf := DataFile(out.Records[0])

	if got := DataFilePath(out.Records[0]); got != "s3://b/db/t_copy/data/f.parquet" {
		t.Errorf("file_path = %q", got)
	}

	lower := boundsMap(odf, "lower_bounds")
	if got := string(lower["1"].([]byte)); got != "s3://b/db/t_copy/data/f.parquet" {
		t.Errorf("lower bound 1 = %q", got)
	}
	if got := string(lower["2147483546"].([]byte)); got != "s3://b/db/t_copy/data/f.parquet" {
		t.Errorf("lower bound 2147483546 = %q", got)
	}
	if got := lower["3"].([]byte); !bytes.Equal(got, []byte{0x00, 0xff, 0xfe, 0x01}) {
		t.Errorf("non-UTF-8 bound modified: %v", got)
	}

	upper := boundsMap(odf, "upper_bounds")
	if got := string(upper["1"].([]byte)); got != "zebra" {
		t.Errorf("non-path upper bound modified: %q", got)
	}
}

func TestRewritePathsArrayBounds(t *testing.T) {
	rec := map[string]any{
		"status": 1,
		"data_file": map[string]any{
			"file_path":          "s3://b/db/t/data/f.parquet",
			"file_size_in_bytes": int64(1024),
			"lower_bounds": goavro.Union("array", []any{
				map[string]any{"key": 1, "value": []byte("s3://b/db/t/data/f.parquet")},
				map[string]any{"key": 3, "value": []byte{0x00, 0xff, 0xfe, 0x01}}, // not UTF-8
			}),
			"upper_bounds": goavro.Union("array", []any{
				map[string]any{"key": 1, "value": []byte("zebra")},
			}),
		},
	}

	content := encodeAvro(t, testArrayBoundsEntrySchema, []map[string]any{rec})
	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	out := data.RewritePaths("s3://b/db/t", "s3://b/db/t_copy", RewriteOptions{})
	odf := DataFile(out.Records[0])

	_, lower := boundEntries(odf, "lower_bounds")
	if len(lower) != 2 {
		t.Fatalf("lower bound entries = %d, want 2", len(lower))
	}
	first := lower[0].(map[string]any)
	if got := string(first["value"].([]byte)); got != "s3://b/db/t_copy/data/f.parquet" {
		t.Errorf("array-encoded lower bound = %q", got)
	}
	second := lower[1].(map[string]any)
	if got := second["value"].([]byte); !bytes.Equal(got, []byte{0x00, 0xff, 0xfe, 0x01}) {
		t.Errorf("non-UTF-8 bound modified: %v", got)
	}

	_, upper := boundEntries(odf, "upper_bounds")
	entry := upper[0].(map[string]any)
	if got := string(entry["value"].([]byte)); got != "zebra" {
		t.Errorf("non-path upper bound modified: %q", got)
	}

	// The input records are untouched.
	_, origLower := boundEntries(DataFile(data.Records[0]), "lower_bounds")
	orig := origLower[0].(map[string]any)
	if got := string(orig["value"].([]byte)); got != "s3://b/db/t/data/f.parquet" {
		t.Errorf("input mutated: %q", got)
	}

	// Rewritten array bounds still encode with the carried schema.
	encoded, err := out.Encode()
	if err != nil {
		t.Fatalf("Encode after rewrite: %v", err)
	}
	again, err := ReadManifestData(encoded)
	if err != nil {
		t.Fatalf("ReadManifestData after Encode: %v", err)
	}
	_, roundTrip := boundEntries(DataFile(again.Records[0]), "lower_bounds")
	rt := roundTrip[0].(map[string]any)
	if got := string(rt["value"].([]byte)); got != "s3://b/db/t_copy/data/f.parquet" {
		t.Errorf("bound after round trip = %q", got)
	}
}

func TestRewritePathsSizeCorrections(t *testing.T) {
	rec := entryRecord(1, "s3://b/db/t/data/del-0.parquet", 1024)
	df := rec["data_file"].(map[string]any)
	df["column_sizes"] = goavro.Union("map", map[string]any{"1": int64(512)})
	df["value_counts"] = goavro.Union("map", map[string]any{"1": int64(100)})
	df["lower_bounds"] = goavro.Union("map", map[string]any{"1": []byte("aaa")})
	df["upper_bounds"] = goavro.Union("map", map[string]any{"1": []byte("zzz")})

	plain := entryRecord(1, "s3://b/db/t/data/f.parquet", 2048)

	content := encodeAvro(t, testManifestEntrySchema, []map[string]any{rec, plain})
	data, err := ReadManifestData(content)
	if err != nil {
		t.Fatalf("ReadManifestData: %v", err)
	}

	out := data.RewritePaths("s3://b/db/t", "s3://b/db/t_copy", RewriteOptions{
		SizeCorrections: map[string]int64{"data/del-0.parquet": 999},
	})

	corrected := DataFile(out.Records[0])
	if got := asInt64(corrected["file_size_in_bytes"]); got != 999 {
		t.Errorf("file_size_in_bytes = %d, want 999", got)
	}
	for _, field := range statFields {
		if corrected[field] != nil {
			t.Errorf("%s not cleared after size correction", field)
		}
	}

	// The uncorrected entry keeps its size.
	if got := DataFileSize(out.Records[1]); got != 2048 {
		t.Errorf("uncorrected file_size_in_bytes = %d, want 2048", got)
	}

	// Corrected records still encode with the carried schema.
	if _, err := out.Encode(); err != nil {
		t.Fatalf("Encode after correction: %v", err)
	}
}
