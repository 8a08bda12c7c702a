package planner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/parser"
	"github.com/g302ge/cnosdb/pkg/types"
)

type fixture struct {
	store   *meta.SQLiteStore
	planner *DefaultLogicalPlanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := meta.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("public")))
	require.NoError(t, store.CreateTable(ctx, "cnosdb", types.NewTskvTableSchema("public", "cpu", []types.TableColumn{
		types.NewTimeColumn(0),
		types.NewTagColumn(0, "host"),
		types.NewFieldColumn(0, "usage", types.ValueTypeFloat),
	})))
	return &fixture{store: store, planner: NewDefaultLogicalPlanner(4)}
}

func (f *fixture) plan(t *testing.T, sql string) (query.LogicalPlan, error) {
	t.Helper()
	stmts, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	q := query.NewQuery(query.QueryContext{}, sql)
	session := query.NewDefaultSessionFactory("", "").CreateSession(q.Context())
	view := meta.NewCatalogView(f.store).WithCatalog(session.Catalog()).WithDatabase(session.Database())
	sm := query.NewQueryStateMachine(types.QueryID{}, q, session, view)
	return f.planner.CreateLogicalPlan(context.Background(), stmts[0], sm)
}

func TestPlanSelect(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plan(t, "SELECT host, usage FROM cpu LIMIT 10 OFFSET 5")
	require.NoError(t, err)
	qp, ok := plan.(*query.QueryPlan)
	require.True(t, ok, "expected QueryPlan, got %T", plan)
	assert.Equal(t, meta.TableRef{Database: "public", Table: "cpu"}, qp.Table)
	assert.Equal(t, []string{"host", "usage"}, qp.Columns)
	assert.EqualValues(t, 10, qp.Limit)
	assert.EqualValues(t, 5, qp.Offset)

	plan, err = f.plan(t, "SELECT * FROM public.cpu")
	require.NoError(t, err)
	assert.EqualValues(t, -1, plan.(*query.QueryPlan).Limit)
}

func TestPlanSelectErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.plan(t, "SELECT * FROM missing")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableNotFound), "got %v", err)

	_, err = f.plan(t, "SELECT nope FROM cpu")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidSchema), "got %v", err)
}

func TestPlanCreateDatabase(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plan(t, "CREATE DATABASE IF NOT EXISTS db1 WITH TTL '30d' SHARD 3 VNODE_DURATION '12h' REPLICA 2 PRECISION 'ms'")
	require.NoError(t, err)
	cd := plan.(*query.CreateDatabasePlan)
	assert.Equal(t, "db1", cd.Name)
	assert.True(t, cd.IfNotExists)
	assert.Equal(t, types.Duration{TimeNum: 30, Unit: types.DurationUnitDay}, cd.Options.TTL)
	assert.Equal(t, types.Duration{TimeNum: 12, Unit: types.DurationUnitHour}, cd.Options.VnodeDuration)
	assert.EqualValues(t, 3, cd.Options.ShardNum)
	assert.EqualValues(t, 2, cd.Options.Replica)
	assert.Equal(t, types.PrecisionMS, cd.Options.Precision)

	plan, err = f.plan(t, "CREATE DATABASE db2")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultDatabaseOptions(), plan.(*query.CreateDatabasePlan).Options)

	for _, sql := range []string{
		"CREATE DATABASE db3 WITH TTL '10x'",
		"CREATE DATABASE db3 WITH PRECISION 'ps'",
		"CREATE DATABASE db3 WITH SHARD 0",
	} {
		_, err := f.plan(t, sql)
		assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption), "%s: got %v", sql, err)
	}
}

func TestPlanCreateTable(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plan(t, "CREATE TABLE db1.air (visibility DOUBLE, pressure BIGINT UNSIGNED CODEC(gorilla), TAGS(station))")
	require.NoError(t, err)
	ct := plan.(*query.CreateTablePlan)
	assert.Equal(t, "db1.air", ct.Name)
	require.NotNil(t, ct.Schema)
	assert.Equal(t, "db1", ct.Schema.DB())

	cols := ct.Schema.Columns()
	require.Len(t, cols, 4)
	assert.True(t, cols[0].ColumnType.IsTime())
	assert.Equal(t, types.FieldColumnType(types.ValueTypeFloat), cols[1].ColumnType)
	assert.Equal(t, types.FieldColumnType(types.ValueTypeUnsigned), cols[2].ColumnType)
	assert.Equal(t, types.EncodingGorilla, cols[2].Encoding)
	assert.True(t, cols[3].ColumnType.IsTag())

	_, err = f.plan(t, "CREATE TABLE t (a DECIMAL)")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeUnsupportedType), "got %v", err)

	_, err = f.plan(t, "CREATE TABLE t (a DOUBLE, TAGS(a))")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidSchema), "got %v", err)

	_, err = f.plan(t, "CREATE TABLE t (a DOUBLE CODEC(lz4))")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption), "got %v", err)
}

func TestPlanCreateExternalTable(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plan(t, "CREATE EXTERNAL TABLE ext (ts TIMESTAMP, v DOUBLE) STORED AS csv WITH HEADER ROW COMPRESSION TYPE gzip LOCATION '/data/ext'")
	require.NoError(t, err)
	ce := plan.(*query.CreateExternalTablePlan)
	s := ce.Schema
	assert.Equal(t, "public", s.DB())
	assert.Equal(t, "CSV", s.FileType)
	assert.Equal(t, 4, s.TargetPartitions)
	require.Equal(t, 2, s.Schema.NumFields())
	assert.Equal(t, arrow.TIMESTAMP, s.Schema.Field(0).Type.ID())
	assert.Equal(t, arrow.FLOAT64, s.Schema.Field(1).Type.ID())

	_, err = f.plan(t, "CREATE EXTERNAL TABLE e (a BIGINT) STORED AS orc LOCATION '/x'")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeUnsupportedFileType), "got %v", err)

	_, err = f.plan(t, "CREATE EXTERNAL TABLE e (a BIGINT) STORED AS csv COMPRESSION TYPE lz4 LOCATION '/x'")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption), "got %v", err)

	_, err = f.plan(t, "CREATE EXTERNAL TABLE e STORED AS json LOCATION '/x'")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidSchema), "got %v", err)

	_, err = f.plan(t, "CREATE EXTERNAL TABLE e STORED AS parquet LOCATION '/x'")
	assert.NoError(t, err)
}

func TestPlanIntrospection(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		sql  string
		want query.LogicalPlan
	}{
		{"DROP TABLE IF EXISTS db1.cpu", &query.DropPlan{Table: meta.TableRef{Database: "db1", Table: "cpu"}, IfExist: true, ObjType: query.ObjectTable}},
		{`DROP TABLE "a.b"`, &query.DropPlan{Table: meta.TableRef{Database: "public", Table: "a.b"}, ObjType: query.ObjectTable}},
		{"DROP DATABASE db1", &query.DropPlan{Name: "db1", ObjType: query.ObjectDatabase}},
		{"DESCRIBE DATABASE db1", &query.DescribeDatabasePlan{Name: "db1"}},
		{"DESCRIBE TABLE cpu", &query.DescribeTablePlan{Table: meta.TableRef{Database: "public", Table: "cpu"}}},
		{`DESCRIBE TABLE "a.b"`, &query.DescribeTablePlan{Table: meta.TableRef{Database: "public", Table: "a.b"}}},
		{"SHOW DATABASES", &query.ShowDatabasesPlan{}},
		{"SHOW TABLES ON db1", &query.ShowTablesPlan{Database: "db1"}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			plan, err := f.plan(t, tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
		})
	}
}

func TestPlanUserStatementsNotImplemented(t *testing.T) {
	f := newFixture(t)
	for _, sql := range []string{"CREATE USER bob", "DROP USER bob"} {
		_, err := f.plan(t, sql)
		assert.True(t, errors.Is(err, ErrNotImplemented), "%s: got %v", sql, err)
	}
}
