package scheduler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/optimizer"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func newScheduler(t *testing.T, base string) *LocalScheduler {
	t.Helper()
	local, err := storage.NewLocalStorage(base)
	require.NoError(t, err)
	return NewLocalScheduler(storage.NewResolver(local, storage.DefaultS3Config()), nil, Config{ReadConcurrency: 2, BatchSize: 2})
}

func metricsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "host", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "value", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
}

func physicalPlan(t *testing.T, table types.TableSchema, columns []string, limit, offset int64) *query.PhysicalPlan {
	t.Helper()
	plan, err := optimizer.NewDefaultOptimizer().Optimize(context.Background(), &query.QueryPlan{
		Table:   meta.TableRef{Database: table.DB(), Table: table.Name()},
		Schema:  table,
		Columns: columns,
		Limit:   limit,
		Offset:  offset,
	}, nil)
	require.NoError(t, err)
	return plan
}

func TestSchedule_CSVWithHeader(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "metrics", "a.csv"), []byte("host,value\na,1\nb,2\nc,3\n"))
	writeFile(t, filepath.Join(base, "metrics", "b.csv"), []byte("host,value\nd,4\ne,\n"))
	writeFile(t, filepath.Join(base, "metrics", "notes.txt"), []byte("ignored"))

	table := &types.ExternalTableSchema{
		Database: "public", Table: "metrics", FileType: "CSV", HasHeader: true,
		Location: "metrics", Schema: metricsSchema(),
	}
	out, err := newScheduler(t, base).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, query.OutputStreamData, out.Kind)
	assert.EqualValues(t, 5, out.NumRows())
	rows := out.Rows()
	assert.Equal(t, []interface{}{"a", int64(1)}, rows[0])
	assert.Equal(t, []interface{}{"e", nil}, rows[4])
}

func TestSchedule_CSVProjectionAndWindow(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "m", "a.csv"), []byte("a;1\nb;2\nc;3\nd;4\ne;5\n"))

	table := &types.ExternalTableSchema{
		Database: "public", Table: "m", FileType: "csv", Delimiter: ';',
		Location: "m", Schema: metricsSchema(),
	}
	out, err := newScheduler(t, base).Schedule(context.Background(), physicalPlan(t, table, []string{"value"}, 2, 1), nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, []string{"value"}, out.ColumnNames())
	assert.Equal(t, [][]interface{}{{int64(2)}, {int64(3)}}, out.Rows())
}

func TestSchedule_GzipJSON(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"host":"a","value":10}` + "\n" + `{"host":"b","value":20}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "j", "part-0.json.gz"), buf.Bytes())
	writeFile(t, filepath.Join(base, "j", "part-1.json"), []byte(`{"host":"skipped","value":1}`))

	table := &types.ExternalTableSchema{
		Database: "public", Table: "j", FileType: "JSON", FileCompressionType: "GZIP",
		Location: "j", Schema: metricsSchema(),
	}
	out, err := newScheduler(t, base).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, [][]interface{}{{"a", int64(10)}, {"b", int64(20)}}, out.Rows())
}

func TestSchedule_XzCSV(t *testing.T) {
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte("host,value\na,1\nb,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "x", "part-0.csv.xz"), buf.Bytes())

	table := &types.ExternalTableSchema{
		Database: "public", Table: "x", FileType: "CSV", HasHeader: true, FileCompressionType: "XZ",
		Location: "x", Schema: metricsSchema(),
	}
	out, err := newScheduler(t, base).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, [][]interface{}{{"a", int64(1)}, {"b", int64(2)}}, out.Rows())
}

func TestSchedule_EmptyLocation(t *testing.T) {
	table := &types.ExternalTableSchema{
		Database: "public", Table: "none", FileType: "CSV", Location: "none", Schema: metricsSchema(),
	}
	out, err := newScheduler(t, t.TempDir()).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	require.NoError(t, err)
	assert.Zero(t, out.NumRows())
	assert.Equal(t, []string{"host", "value"}, out.ColumnNames())
}

func TestSchedule_UnsupportedFormat(t *testing.T) {
	table := &types.ExternalTableSchema{
		Database: "public", Table: "p", FileType: "PARQUET", Location: "p", Schema: metricsSchema(),
	}
	_, err := newScheduler(t, t.TempDir()).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeUnsupportedFileType), "got %v", err)
}

type stubScanner struct {
	rows  int
	fetch int64
}

func (s *stubScanner) Scan(_ context.Context, table *types.TskvTableSchema, fetch int64) ([]arrow.Record, error) {
	s.fetch = fetch
	b := array.NewRecordBuilder(memory.DefaultAllocator, table.ToArrowSchema())
	defer b.Release()
	for i := 0; i < s.rows; i++ {
		b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(i))
		b.Field(1).(*array.StringBuilder).Append("h")
		b.Field(2).(*array.Float64Builder).Append(float64(i))
	}
	return []arrow.Record{b.NewRecord()}, nil
}

func TestSchedule_Tskv(t *testing.T) {
	table := types.NewTskvTableSchema("public", "cpu", []types.TableColumn{
		types.NewTimeColumn(0),
		types.NewTagColumn(1, "host"),
		types.NewFieldColumn(2, "usage", types.ValueTypeFloat),
	})
	scanner := &stubScanner{rows: 5}
	s := NewLocalScheduler(nil, scanner, Config{})

	out, err := s.Schedule(context.Background(), physicalPlan(t, table, []string{"usage"}, 3, 1), nil)
	require.NoError(t, err)
	defer out.Release()

	assert.EqualValues(t, 4, scanner.fetch)
	assert.Equal(t, [][]interface{}{{1.0}, {2.0}, {3.0}}, out.Rows())

	empty, err := NewLocalScheduler(nil, nil, Config{}).Schedule(context.Background(), physicalPlan(t, table, nil, -1, 0), nil)
	require.NoError(t, err)
	assert.Zero(t, empty.NumRows())
}

func int64Records(sizes []int) []arrow.Record {
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}, nil)
	recs := make([]arrow.Record, 0, len(sizes))
	next := int64(0)
	for _, n := range sizes {
		b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
		for i := 0; i < n; i++ {
			b.Field(0).(*array.Int64Builder).Append(next)
			next++
		}
		recs = append(recs, b.NewRecord())
		b.Release()
	}
	return recs
}

func TestProperty_WindowKeepsContiguousRows(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("window returns rows [offset, offset+limit) in order", prop.ForAll(
		func(sizes []int, offset int64, limit int64) bool {
			total := int64(0)
			for _, n := range sizes {
				total += int64(n)
			}
			out := window(int64Records(sizes), offset, limit)
			defer releaseAll(out)

			want := total - offset
			if want < 0 {
				want = 0
			}
			if limit >= 0 && limit < want {
				want = limit
			}

			next := offset
			var got int64
			for _, rec := range out {
				col := rec.Column(0).(*array.Int64)
				for i := 0; i < col.Len(); i++ {
					if col.Value(i) != next {
						return false
					}
					next++
				}
				got += rec.NumRows()
			}
			return got == want
		},
		gen.SliceOf(gen.IntRange(0, 6)),
		gen.Int64Range(0, 20),
		gen.Int64Range(-1, 20),
	))

	properties.TestingRun(t)
}
