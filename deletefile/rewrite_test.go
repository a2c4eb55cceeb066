package deletefile

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var positionDeleteSchema = arrow.NewSchema([]arrow.Field{
	{Name: "file_path", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "pos", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
}, nil)

func writeParquet(t *testing.T, schema *arrow.Schema, build func(*array.RecordBuilder)) []byte {
	t.Helper()

	mem := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	build(builder)

	rec := builder.NewRecord()
	defer rec.Release()

	buf := new(bytes.Buffer)
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(schema, buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	require.NoError(t, err)
	require.NoError(t, w.WriteBuffered(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writePositionDeletes(t *testing.T, paths []string, positions []int64) []byte {
	t.Helper()
	return writeParquet(t, positionDeleteSchema, func(b *array.RecordBuilder) {
		pathBuilder := b.Field(0).(*array.StringBuilder)
		posBuilder := b.Field(1).(*array.Int64Builder)
		for i, p := range paths {
			pathBuilder.Append(p)
			posBuilder.Append(positions[i])
		}
	})
}

func readPositionDeletes(t *testing.T, content []byte) (paths []string, positions []int64) {
	t.Helper()

	pqReader, err := file.NewParquetReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)

	tbl, err := arrowReader.ReadTable(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	reader := array.NewTableReader(tbl, tbl.NumRows())
	defer reader.Release()
	for reader.Next() {
		rec := reader.Record()
		pathCol := rec.Column(0).(*array.String)
		posCol := rec.Column(1).(*array.Int64)
		for i := 0; i < pathCol.Len(); i++ {
			paths = append(paths, pathCol.Value(i))
			positions = append(positions, posCol.Value(i))
		}
	}
	return paths, positions
}

func TestRewrite(t *testing.T) {
	content := writePositionDeletes(t,
		[]string{
			"s3://src/warehouse/orders/data/part-0.parquet",
			"s3://src/warehouse/orders/data/part-1.parquet",
		},
		[]int64{4, 17},
	)

	res, err := Rewrite(context.Background(), "data/del-0.parquet", content,
		"s3://src/warehouse/orders", "s3://dst/restored/orders", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.RewrittenRows)
	assert.Equal(t, int64(len(res.Content)), res.NewSize)

	paths, positions := readPositionDeletes(t, res.Content)
	assert.Equal(t, []string{
		"s3://dst/restored/orders/data/part-0.parquet",
		"s3://dst/restored/orders/data/part-1.parquet",
	}, paths)
	assert.Equal(t, []int64{4, 17}, positions)
}

func TestRewriteKeepsForeignPaths(t *testing.T) {
	content := writePositionDeletes(t,
		[]string{
			"s3://src/warehouse/orders/data/part-0.parquet",
			"s3://elsewhere/other/data/part-9.parquet",
		},
		[]int64{1, 2},
	)

	res, err := Rewrite(context.Background(), "data/del-1.parquet", content,
		"s3://src/warehouse/orders", "s3://dst/restored/orders", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RewrittenRows)

	paths, _ := readPositionDeletes(t, res.Content)
	assert.Equal(t, "s3://dst/restored/orders/data/part-0.parquet", paths[0])
	assert.Equal(t, "s3://elsewhere/other/data/part-9.parquet", paths[1])
}

func TestRewriteWithoutFilePathColumn(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}, nil)
	content := writeParquet(t, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	})

	res, err := Rewrite(context.Background(), "data/eq-del.parquet", content,
		"s3://src/warehouse/orders", "s3://dst/restored/orders", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, content, res.Content)
	assert.Equal(t, int64(len(content)), res.NewSize)
}

func TestRewriteMalformedContent(t *testing.T) {
	_, err := Rewrite(context.Background(), "data/bogus.parquet", []byte("not parquet"),
		"s3://src", "s3://dst", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRewriteFailed), "got %v", err)

	var rewriteErr *RewriteError
	require.ErrorAs(t, err, &rewriteErr)
	assert.Equal(t, "data/bogus.parquet", rewriteErr.Path)
}
