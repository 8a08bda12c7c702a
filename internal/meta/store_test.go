package meta

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestShardedStore(t *testing.T) *ShardedStore {
	t.Helper()
	store, err := NewShardedStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("failed to create sharded store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func cpuTable(db string) *types.TskvTableSchema {
	return types.NewTskvTableSchema(db, "cpu", []types.TableColumn{
		types.NewTimeColumn(100),
		types.NewTagColumn(100, "host"),
		types.NewFieldColumn(100, "usage", types.ValueTypeFloat),
	})
}

func forEachClient(t *testing.T, fn func(t *testing.T, c Client)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("sharded", func(t *testing.T) { fn(t, newTestShardedStore(t)) })
}

func TestClient_DatabaseLifecycle(t *testing.T) {
	forEachClient(t, func(t *testing.T, c Client) {
		ctx := context.Background()

		schema := types.NewDatabaseSchema("db1")
		schema.Options.ShardNum = 3
		schema.Options.Precision = types.PrecisionMS
		if err := c.CreateDatabase(ctx, "cnosdb", schema); err != nil {
			t.Fatalf("create database failed: %v", err)
		}

		err := c.CreateDatabase(ctx, "cnosdb", schema)
		if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseExists) {
			t.Fatalf("expected DATABASE_EXISTS, got %v", err)
		}

		got, err := c.Database(ctx, "cnosdb", "db1")
		if err != nil {
			t.Fatalf("get database failed: %v", err)
		}
		if got != schema {
			t.Errorf("database mismatch: got %+v, want %+v", got, schema)
		}

		// catalogs are isolated
		if _, err := c.Database(ctx, "other", "db1"); !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseNotFound) {
			t.Errorf("expected DATABASE_NOT_FOUND in other catalog, got %v", err)
		}

		if err := c.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("db0")); err != nil {
			t.Fatalf("create database failed: %v", err)
		}
		names, err := c.ListDatabases(ctx, "cnosdb")
		if err != nil {
			t.Fatalf("list databases failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"db0", "db1"}) {
			t.Errorf("databases mismatch: got %v", names)
		}

		if err := c.DropDatabase(ctx, "cnosdb", "db1"); err != nil {
			t.Fatalf("drop database failed: %v", err)
		}
		err = c.DropDatabase(ctx, "cnosdb", "db1")
		if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseNotFound) {
			t.Errorf("expected DATABASE_NOT_FOUND, got %v", err)
		}
	})
}

func TestClient_TableLifecycle(t *testing.T) {
	forEachClient(t, func(t *testing.T, c Client) {
		ctx := context.Background()

		err := c.CreateTable(ctx, "cnosdb", cpuTable("db1"))
		if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseNotFound) {
			t.Fatalf("expected DATABASE_NOT_FOUND, got %v", err)
		}

		if err := c.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("db1")); err != nil {
			t.Fatalf("create database failed: %v", err)
		}
		if err := c.CreateTable(ctx, "cnosdb", cpuTable("db1")); err != nil {
			t.Fatalf("create table failed: %v", err)
		}
		err = c.CreateTable(ctx, "cnosdb", cpuTable("db1"))
		if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableExists) {
			t.Fatalf("expected TABLE_EXISTS, got %v", err)
		}

		got, err := c.Table(ctx, "cnosdb", "db1", "cpu")
		if err != nil {
			t.Fatalf("get table failed: %v", err)
		}
		tskv, ok := got.(*types.TskvTableSchema)
		if !ok {
			t.Fatalf("expected tskv schema, got %T", got)
		}
		for i, col := range tskv.Columns() {
			if col.ID != types.ColumnID(i) {
				t.Errorf("column %s id mismatch: got %d, want %d", col.Name, col.ID, i)
			}
		}
		if idx, ok := tskv.ColumnIndex("usage"); !ok || idx != 2 {
			t.Errorf("index mismatch after reload: got %d (%v)", idx, ok)
		}
		if tskv.SchemaID != 0 {
			t.Errorf("schema id mismatch: got %d, want 0", tskv.SchemaID)
		}

		names, err := c.ListTables(ctx, "cnosdb", "db1")
		if err != nil {
			t.Fatalf("list tables failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"cpu"}) {
			t.Errorf("tables mismatch: got %v", names)
		}

		if err := c.DropTable(ctx, "cnosdb", "db1", "cpu"); err != nil {
			t.Fatalf("drop table failed: %v", err)
		}
		if _, err := c.Table(ctx, "cnosdb", "db1", "cpu"); !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableNotFound) {
			t.Errorf("expected TABLE_NOT_FOUND, got %v", err)
		}
		err = c.DropTable(ctx, "cnosdb", "db1", "cpu")
		if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeTableNotFound) {
			t.Errorf("expected TABLE_NOT_FOUND on second drop, got %v", err)
		}
	})
}

func TestSQLiteStore_DropDatabaseRemovesTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("db1")); err != nil {
		t.Fatalf("create database failed: %v", err)
	}
	if err := store.CreateTable(ctx, "cnosdb", cpuTable("db1")); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := store.DropDatabase(ctx, "cnosdb", "db1"); err != nil {
		t.Fatalf("drop database failed: %v", err)
	}
	if err := store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("db1")); err != nil {
		t.Fatalf("recreate database failed: %v", err)
	}
	names, err := store.ListTables(ctx, "cnosdb", "db1")
	if err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no tables after drop, got %v", names)
	}
}

func TestSQLiteStore_RejectsInvalidTskvSchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("db1")); err != nil {
		t.Fatalf("create database failed: %v", err)
	}
	noTime := types.NewTskvTableSchema("db1", "bad", []types.TableColumn{types.NewTagColumn(0, "a")})
	err := store.CreateTable(ctx, "cnosdb", noTime)
	if !cerrors.HasCode(err, cerrors.ErrCategoryValidation, cerrors.CodeInvalidSchema) {
		t.Errorf("expected INVALID_SCHEMA, got %v", err)
	}
}

func TestSQLiteStore_ExternalTable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema("public")); err != nil {
		t.Fatalf("create database failed: %v", err)
	}
	ext := &types.ExternalTableSchema{
		Database:  "public",
		Table:     "events",
		FileType:  "CSV",
		Location:  "/data/events/",
		HasHeader: true,
		Delimiter: ',',
		Schema: arrow.NewSchema([]arrow.Field{
			{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		}, nil),
	}
	if err := store.CreateTable(ctx, "cnosdb", ext); err != nil {
		t.Fatalf("create external table failed: %v", err)
	}

	got, err := store.Table(ctx, "cnosdb", "public", "events")
	if err != nil {
		t.Fatalf("get table failed: %v", err)
	}
	decoded, ok := got.(*types.ExternalTableSchema)
	if !ok {
		t.Fatalf("expected external schema, got %T", got)
	}
	if decoded.Location != ext.Location || !decoded.Schema.Equal(ext.Schema) {
		t.Errorf("external table mismatch: %+v", decoded)
	}
}

func TestSQLiteStore_CorruptBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.Exec(
		"INSERT INTO tables (catalog, db, name, kind, schema_id, schema, created_at) VALUES (?, ?, ?, ?, 0, ?, 0)",
		"cnosdb", "public", "broken", "tskv", []byte("not snappy"),
	)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	_, err = store.Table(ctx, "cnosdb", "public", "broken")
	if !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeCorruptionDetected) {
		t.Errorf("expected CORRUPTION_DETECTED, got %v", err)
	}
}

func TestShardedStore_SpreadsDatabases(t *testing.T) {
	store := newTestShardedStore(t)
	ctx := context.Background()

	used := map[*SQLiteStore]bool{}
	for i := 0; i < 30; i++ {
		name := "db" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if err := store.CreateDatabase(ctx, "cnosdb", types.NewDatabaseSchema(name)); err != nil {
			t.Fatalf("create database %s failed: %v", name, err)
		}
		used[store.shardFor("cnosdb", name)] = true
	}
	if len(used) < 2 {
		t.Errorf("expected databases on several shards, got %d", len(used))
	}
	names, err := store.ListDatabases(ctx, "cnosdb")
	if err != nil {
		t.Fatalf("list databases failed: %v", err)
	}
	if len(names) != 30 {
		t.Errorf("database count mismatch: got %d, want 30", len(names))
	}
}

func TestCatalogView(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	view := NewCatalogView(store).WithCatalog("cnosdb").WithDatabase("db1")

	if err := view.CreateDatabase(ctx, types.NewDatabaseSchema("db1")); err != nil {
		t.Fatalf("create database failed: %v", err)
	}
	if err := view.CreateTable(ctx, cpuTable("db1")); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	if _, err := view.Table(ctx, TableRef{Table: "cpu"}); err != nil {
		t.Errorf("unqualified lookup failed: %v", err)
	}
	if _, err := view.Table(ctx, TableRef{Database: "db1", Table: "cpu"}); err != nil {
		t.Errorf("qualified lookup failed: %v", err)
	}
	names, err := view.ListTables(ctx, "")
	if err != nil || len(names) != 1 {
		t.Errorf("list tables mismatch: %v (%v)", names, err)
	}

	other := view.WithDatabase("db2")
	if other.CurrentDatabase() != "db2" || view.CurrentDatabase() != "db1" {
		t.Error("WithDatabase should return an independent copy")
	}
}

func TestTableRefString(t *testing.T) {
	tests := []struct {
		ref  TableRef
		want string
	}{
		{TableRef{Table: "t"}, "t"},
		{TableRef{Database: "db", Table: "t"}, "db.t"},
	}
	for _, tt := range tests {
		if got := tt.ref.String(); got != tt.want {
			t.Errorf("string mismatch: got %s, want %s", got, tt.want)
		}
	}
}
