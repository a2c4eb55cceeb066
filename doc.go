// Package icevault creates and restores portable, point-in-time chained
// backups of Apache Iceberg tables stored in S3-compatible object
// storage.
//
// A backup captures one snapshot of a table: its metadata document with
// history trimmed and paths made root-relative, its manifest lists and
// manifests (filtered to active entries), and copies of its data files.
// Repeated backups under one backup name form a linear chain of points
// in time, each linked to its predecessor.
//
// A restore materializes a chosen point in time at a new table location,
// rewriting every recorded path (including the file_path column of
// position-delete Parquet files) to the new root, and registers the
// result in an Iceberg REST catalog.
package icevault
