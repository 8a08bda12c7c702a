package meta

// SQL schema of the catalog store (meta.db). Schemas are stored as
// snappy-compressed JSON blobs.

// CreateDatabasesTableSQL creates the databases table.
const CreateDatabasesTableSQL = `
CREATE TABLE IF NOT EXISTS databases (
    catalog TEXT NOT NULL,
    name TEXT NOT NULL,
    options BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (catalog, name)
)`

// CreateTablesTableSQL creates the tables table.
const CreateTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    catalog TEXT NOT NULL,
    db TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    schema_id INTEGER NOT NULL DEFAULT 0,
    schema BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (catalog, db, name)
)`

// CreateMetaIndexesSQL creates secondary indexes.
var CreateMetaIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_tables_db ON tables(catalog, db)`,
}

// AllSchemaSQL returns all schema statements in execution order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateDatabasesTableSQL,
		CreateTablesTableSQL,
	}
	return append(stmts, CreateMetaIndexesSQL...)
}
