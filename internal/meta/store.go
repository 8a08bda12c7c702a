package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/pkg/types"
)

// SQLiteStore implements Client on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Serializes check-then-write sequences

	now func() time.Time
}

// NewSQLiteStore opens or creates the catalog store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("meta: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("meta: failed to initialize schema: %w", err)
	}

	// The read pool is opened after the file exists so query-only mode can attach.
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_query_only=true")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("meta: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	log.Debug().Str("path", dbPath).Msg("meta store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

// CreateDatabase registers a database.
func (s *SQLiteStore) CreateDatabase(ctx context.Context, catalog string, schema types.DatabaseSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.databaseExists(ctx, s.db, catalog, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return cerrors.DatabaseExists(schema.Name)
	}

	blob, err := encodeBlob(schema.Options)
	if err != nil {
		return fmt.Errorf("meta: failed to encode database options: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO databases (catalog, name, options, created_at) VALUES (?, ?, ?, ?)",
		catalog, schema.Name, blob, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("meta: failed to insert database: %w", err)
	}
	return nil
}

// DropDatabase removes a database and all of its tables atomically.
func (s *SQLiteStore) DropDatabase(ctx context.Context, catalog, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("meta: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM databases WHERE catalog = ? AND name = ?", catalog, name)
	if err != nil {
		return fmt.Errorf("meta: failed to delete database: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.DatabaseNotFound(name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tables WHERE catalog = ? AND db = ?", catalog, name); err != nil {
		return fmt.Errorf("meta: failed to delete tables of %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("meta: failed to commit drop database: %w", err)
	}
	return nil
}

// Database returns a database schema.
func (s *SQLiteStore) Database(ctx context.Context, catalog, name string) (types.DatabaseSchema, error) {
	var blob []byte
	err := s.readDB.QueryRowContext(ctx,
		"SELECT options FROM databases WHERE catalog = ? AND name = ?", catalog, name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DatabaseSchema{}, cerrors.DatabaseNotFound(name)
	}
	if err != nil {
		return types.DatabaseSchema{}, fmt.Errorf("meta: failed to get database %s: %w", name, err)
	}

	schema := types.DatabaseSchema{Name: name}
	if err := decodeBlob(blob, &schema.Options); err != nil {
		return types.DatabaseSchema{}, corruption(fmt.Sprintf("database %s", name), err)
	}
	return schema, nil
}

// ListDatabases returns database names in ascending order.
func (s *SQLiteStore) ListDatabases(ctx context.Context, catalog string) ([]string, error) {
	return s.queryNames(ctx, "SELECT name FROM databases WHERE catalog = ? ORDER BY name", catalog)
}

// CreateTable registers a table. The owning database must exist. Tskv
// columns are renumbered by position and the schema version starts at 0.
func (s *SQLiteStore) CreateTable(ctx context.Context, catalog string, schema types.TableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbName, name := schema.DB(), schema.Name()
	exists, err := s.databaseExists(ctx, s.db, catalog, dbName)
	if err != nil {
		return err
	}
	if !exists {
		return cerrors.DatabaseNotFound(dbName)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tables WHERE catalog = ? AND db = ? AND name = ?", catalog, dbName, name,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("meta: failed to check table %s.%s: %w", dbName, name, err)
	}
	if count > 0 {
		return cerrors.TableExists(name)
	}

	var schemaID types.SchemaID
	if tskv, ok := schema.(*types.TskvTableSchema); ok {
		tskv = assignColumnIDs(tskv)
		if err := tskv.Validate(); err != nil {
			return cerrors.Wrap(cerrors.ErrCategoryValidation, cerrors.CodeInvalidSchema,
				fmt.Sprintf("table %s", name), err)
		}
		schema, schemaID = tskv, tskv.SchemaID
	}

	blob, err := encodeTable(schema)
	if err != nil {
		return fmt.Errorf("meta: failed to encode table %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO tables (catalog, db, name, kind, schema_id, schema, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		catalog, dbName, name, string(schema.Kind()), schemaID, blob, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("meta: failed to insert table: %w", err)
	}
	return nil
}

// DropTable removes a table.
func (s *SQLiteStore) DropTable(ctx context.Context, catalog, db, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tables WHERE catalog = ? AND db = ? AND name = ?", catalog, db, name)
	if err != nil {
		return fmt.Errorf("meta: failed to delete table: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.TableNotFound(name)
	}
	return nil
}

// Table returns a table schema.
func (s *SQLiteStore) Table(ctx context.Context, catalog, db, name string) (types.TableSchema, error) {
	var kind string
	var blob []byte
	err := s.readDB.QueryRowContext(ctx,
		"SELECT kind, schema FROM tables WHERE catalog = ? AND db = ? AND name = ?", catalog, db, name,
	).Scan(&kind, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.TableNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("meta: failed to get table %s.%s: %w", db, name, err)
	}

	schema, err := decodeTable(types.TableKind(kind), blob)
	if err != nil {
		return nil, corruption(fmt.Sprintf("table %s.%s", db, name), err)
	}
	return schema, nil
}

// ListTables returns the table names of db in ascending order.
func (s *SQLiteStore) ListTables(ctx context.Context, catalog, db string) ([]string, error) {
	exists, err := s.databaseExists(ctx, s.readDB, catalog, db)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, cerrors.DatabaseNotFound(db)
	}
	return s.queryNames(ctx, "SELECT name FROM tables WHERE catalog = ? AND db = ? ORDER BY name", catalog, db)
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	readErr := s.readDB.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return readErr
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) databaseExists(ctx context.Context, q queryer, catalog, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM databases WHERE catalog = ? AND name = ?", catalog, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("meta: failed to check database %s: %w", name, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) queryNames(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("meta: failed to list: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("meta: failed to scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// assignColumnIDs returns a copy of schema whose column ids follow column order.
func assignColumnIDs(schema *types.TskvTableSchema) *types.TskvTableSchema {
	cols := schema.Columns()
	for i := range cols {
		cols[i].ID = types.ColumnID(i)
	}
	out := types.NewTskvTableSchema(schema.DB(), schema.Name(), cols)
	out.SchemaID = 0
	return out
}

func corruption(what string, cause error) error {
	return cerrors.Wrap(cerrors.ErrCategoryCatalog, cerrors.CodeCorruptionDetected,
		fmt.Sprintf("failed to decode %s", what), cause)
}
