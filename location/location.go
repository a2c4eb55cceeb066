// Package location handles the translation between absolute object store
// paths and table-root-relative paths used inside a backup.
//
// Iceberg metadata written by different engines carries three historically
// equivalent URI schemes (s3://, s3a://, s3n://). All comparisons here
// normalize to s3:// first, so a table located at s3://bucket/db/t matches
// a manifest path recorded as s3a://bucket/db/t/data/x.parquet.
package location

import "strings"

// Abstract strips the table root prefix from a full path, yielding a
// root-relative path. Paths that do not live under the root are returned
// unchanged; they are treated as already relative.
func Abstract(fullPath, tableRoot string) string {
	root := strings.TrimRight(Normalize(tableRoot), "/")
	full := strings.TrimRight(Normalize(fullPath), "/")

	if strings.HasPrefix(full, root) {
		return strings.TrimLeft(full[len(root):], "/")
	}
	return full
}

// Restore joins a root-relative path to a new table root with exactly one
// separating slash.
func Restore(relativePath, newRoot string) string {
	root := strings.TrimRight(newRoot, "/")
	rel := strings.TrimLeft(relativePath, "/")
	return root + "/" + rel
}

// Resolve normalizes the scheme of a path and, when the path is relative,
// joins it to the base root.
func Resolve(path, baseRoot string) string {
	path = Normalize(path)
	if IsAbsolute(path) {
		return path
	}
	return Restore(path, baseRoot)
}

// IsAbsolute reports whether the path carries an object store scheme.
func IsAbsolute(path string) bool {
	return strings.HasPrefix(path, "s3://") ||
		strings.HasPrefix(path, "s3a://") ||
		strings.HasPrefix(path, "s3n://")
}

// Normalize rewrites the legacy s3a:// and s3n:// schemes to s3://.
func Normalize(path string) string {
	if strings.HasPrefix(path, "s3a://") || strings.HasPrefix(path, "s3n://") {
		return "s3://" + path[len("s3a://"):]
	}
	return path
}

// RewritePrefix replaces oldRoot with newRoot when the path starts with
// oldRoot (after scheme normalization). The second return reports whether
// a rewrite happened.
func RewritePrefix(path, oldRoot, newRoot string) (string, bool) {
	p := Normalize(path)
	old := strings.TrimRight(Normalize(oldRoot), "/")
	if !strings.HasPrefix(p, old) {
		return path, false
	}
	return strings.TrimRight(newRoot, "/") + p[len(old):], true
}
