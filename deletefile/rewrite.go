// Package deletefile rewrites Parquet position-delete files. A position
// delete references rows of another data file through an absolute
// file_path column, so relocating a table means rewriting those values
// to point at the new table root.
package deletefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/openlake/icevault/location"
)

// ErrRewriteFailed reports that a delete file could not be rewritten.
var ErrRewriteFailed = errors.New("failed to rewrite file content")

// RewriteError reports a failed rewrite of a position-delete file. It is
// fatal for the file in question.
type RewriteError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *RewriteError) Error() string {
	return fmt.Sprintf("failed to rewrite %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RewriteError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error.
func (e *RewriteError) Is(target error) bool {
	return target == ErrRewriteFailed
}

// Result is the outcome of a delete file rewrite.
type Result struct {
	// Content is the file to store: rewritten bytes when Changed, the
	// original bytes otherwise.
	Content []byte

	// NewSize is len(Content). The rewritten file's size differs from
	// the original, so recorded manifest statistics must be corrected.
	NewSize int64

	// Changed reports whether the file was re-encoded.
	Changed bool

	// RewrittenRows counts file_path values that received the new root.
	RewrittenRows int
}

// Rewrite re-roots the file_path column of a position-delete file from
// oldRoot to newRoot and re-encodes the file with Zstd compression and
// regenerated column statistics.
//
// A file without a file_path column, or with a non-string one, is passed
// through unchanged with a warning: it cannot reference rows by path, so
// there is nothing to re-root. Values outside oldRoot are kept as they
// are. Decode and encode failures return a RewriteError.
func Rewrite(ctx context.Context, path string, content []byte, oldRoot, newRoot string, logger *zap.Logger) (*Result, error) {
	pqReader, err := file.NewParquetReader(bytes.NewReader(content))
	if err != nil {
		return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to open parquet file: %w", err)}
	}
	defer pqReader.Close()

	mem := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to create arrow reader: %w", err)}
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to read parquet content: %w", err)}
	}
	defer tbl.Release()

	schema := tbl.Schema()
	pathCol := schema.FieldIndices("file_path")
	if len(pathCol) == 0 {
		logger.Warn("delete file has no file_path column, storing unchanged",
			zap.String("path", path))
		return &Result{Content: content, NewSize: int64(len(content))}, nil
	}
	colIdx := pathCol[0]

	if schema.Field(colIdx).Type.ID() != arrow.STRING {
		logger.Warn("delete file file_path column is not a string, storing unchanged",
			zap.String("path", path),
			zap.String("type", schema.Field(colIdx).Type.Name()))
		return &Result{Content: content, NewSize: int64(len(content))}, nil
	}

	buf := new(bytes.Buffer)
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	pqWriter, err := pqarrow.NewFileWriter(schema, buf, writerProps, arrowProps)
	if err != nil {
		return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to create parquet writer: %w", err)}
	}

	rewritten := 0
	reader := array.NewTableReader(tbl, tbl.NumRows())
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()

		paths, ok := rec.Column(colIdx).(*array.String)
		if !ok {
			pqWriter.Close()
			return nil, &RewriteError{Path: path, Cause: fmt.Errorf("unexpected file_path column type %T", rec.Column(colIdx))}
		}

		builder := array.NewStringBuilder(mem)
		for i := 0; i < paths.Len(); i++ {
			if paths.IsNull(i) {
				builder.AppendNull()
				continue
			}
			value := paths.Value(i)
			if np, changed := location.RewritePrefix(value, oldRoot, newRoot); changed {
				builder.Append(np)
				rewritten++
			} else {
				logger.Warn("delete file references a path outside the table root, keeping as is",
					zap.String("path", path), zap.String("referenced", value))
				builder.Append(value)
			}
		}
		newPaths := builder.NewArray()
		builder.Release()

		cols := make([]arrow.Array, rec.NumCols())
		for i := 0; i < int(rec.NumCols()); i++ {
			if i == colIdx {
				cols[i] = newPaths
			} else {
				cols[i] = rec.Column(i)
			}
		}
		out := array.NewRecord(schema, cols, rec.NumRows())

		err := pqWriter.WriteBuffered(out)
		out.Release()
		newPaths.Release()
		if err != nil {
			pqWriter.Close()
			return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to write record: %w", err)}
		}
	}

	if err := pqWriter.Close(); err != nil {
		return nil, &RewriteError{Path: path, Cause: fmt.Errorf("failed to close parquet writer: %w", err)}
	}

	return &Result{
		Content:       buf.Bytes(),
		NewSize:       int64(buf.Len()),
		Changed:       true,
		RewrittenRows: rewritten,
	}, nil
}
