// Package meta provides the catalog of databases and tables: a Client
// interface for mutation and lookup, a scoped CatalogView used by the query
// layer, and SQLite-backed implementations.
package meta

import (
	"context"

	"github.com/g302ge/cnosdb/pkg/types"
)

// Client mutates and reads the catalog. Every operation is scoped to a
// catalog (tenant). Implementations return catalog errors from
// internal/errors for missing or duplicate objects.
type Client interface {
	// CreateDatabase registers a database. Fails with DATABASE_EXISTS if present.
	CreateDatabase(ctx context.Context, catalog string, schema types.DatabaseSchema) error

	// DropDatabase removes a database together with its tables.
	DropDatabase(ctx context.Context, catalog, name string) error

	// Database returns a database schema.
	Database(ctx context.Context, catalog, name string) (types.DatabaseSchema, error)

	// ListDatabases returns database names in ascending order.
	ListDatabases(ctx context.Context, catalog string) ([]string, error)

	// CreateTable registers a table in its database. Column ids of tskv
	// tables are assigned by the store.
	CreateTable(ctx context.Context, catalog string, schema types.TableSchema) error

	// DropTable removes a table.
	DropTable(ctx context.Context, catalog, db, name string) error

	// Table returns a table schema.
	Table(ctx context.Context, catalog, db, name string) (types.TableSchema, error)

	// ListTables returns table names of a database in ascending order.
	ListTables(ctx context.Context, catalog, db string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// TableRef names a table, optionally qualified by its database.
type TableRef struct {
	Database string
	Table    string
}

func (r TableRef) String() string {
	if r.Database == "" {
		return r.Table
	}
	return r.Database + "." + r.Table
}

// CatalogView is a Client bound to a catalog and a current database. It is
// an immutable value; With* return modified copies.
type CatalogView struct {
	client   Client
	catalog  string
	database string
}

// NewCatalogView returns a view over client with no catalog or database selected.
func NewCatalogView(client Client) CatalogView {
	return CatalogView{client: client}
}

// WithCatalog returns a copy of the view bound to catalog.
func (v CatalogView) WithCatalog(catalog string) CatalogView {
	v.catalog = catalog
	return v
}

// WithDatabase returns a copy of the view whose current database is db.
func (v CatalogView) WithDatabase(db string) CatalogView {
	v.database = db
	return v
}

// Catalog returns the bound catalog.
func (v CatalogView) Catalog() string { return v.catalog }

// CurrentDatabase returns the current database.
func (v CatalogView) CurrentDatabase() string { return v.database }

// Client returns the underlying client.
func (v CatalogView) Client() Client { return v.client }

// Resolve fills an unqualified reference with the current database.
func (v CatalogView) Resolve(ref TableRef) TableRef {
	if ref.Database == "" {
		ref.Database = v.database
	}
	return ref
}

func (v CatalogView) CreateDatabase(ctx context.Context, schema types.DatabaseSchema) error {
	return v.client.CreateDatabase(ctx, v.catalog, schema)
}

func (v CatalogView) DropDatabase(ctx context.Context, name string) error {
	return v.client.DropDatabase(ctx, v.catalog, name)
}

func (v CatalogView) Database(ctx context.Context, name string) (types.DatabaseSchema, error) {
	return v.client.Database(ctx, v.catalog, name)
}

func (v CatalogView) ListDatabases(ctx context.Context) ([]string, error) {
	return v.client.ListDatabases(ctx, v.catalog)
}

func (v CatalogView) CreateTable(ctx context.Context, schema types.TableSchema) error {
	return v.client.CreateTable(ctx, v.catalog, schema)
}

func (v CatalogView) DropTable(ctx context.Context, ref TableRef) error {
	ref = v.Resolve(ref)
	return v.client.DropTable(ctx, v.catalog, ref.Database, ref.Table)
}

func (v CatalogView) Table(ctx context.Context, ref TableRef) (types.TableSchema, error) {
	ref = v.Resolve(ref)
	return v.client.Table(ctx, v.catalog, ref.Database, ref.Table)
}

// ListTables lists the tables of db, or of the current database when db is empty.
func (v CatalogView) ListTables(ctx context.Context, db string) ([]string, error) {
	if db == "" {
		db = v.database
	}
	return v.client.ListTables(ctx, v.catalog, db)
}
