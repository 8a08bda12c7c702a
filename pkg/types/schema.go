// Package types provides the catalog schema model shared by the query and meta layers.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
)

// TimeFieldName is the fixed name of the time column of every tskv table.
const TimeFieldName = "time"

// DefaultDatabase is the database assumed when a table schema carries none.
const DefaultDatabase = "public"

// ColumnID identifies a column within a table.
type ColumnID = uint32

// SchemaID is the version of a table schema.
type SchemaID = uint32

// TableSchema is the closed set of table kinds stored in the catalog:
// *TskvTableSchema and *ExternalTableSchema.
type TableSchema interface {
	// Name returns the table name.
	Name() string
	// DB returns the owning database name.
	DB() string
	// Kind returns the table kind.
	Kind() TableKind

	tableSchema()
}

// TableKind discriminates TableSchema variants.
type TableKind string

const (
	// TableKindTskv is a table stored in the time-series engine.
	TableKindTskv TableKind = "tskv"

	// TableKindExternal is a table backed by files at an external location.
	TableKindExternal TableKind = "external"
)

// TskvTableSchema describes a time-series table. The ordered column list and
// the name index are always updated together.
type TskvTableSchema struct {
	Database string
	Table    string
	SchemaID SchemaID

	columns      []TableColumn
	columnsIndex map[string]int
}

// NewTskvTableSchema creates a schema from an ordered column list. When two
// columns share a name only the first one is kept.
func NewTskvTableSchema(db, name string, columns []TableColumn) *TskvTableSchema {
	if db == "" {
		db = DefaultDatabase
	}
	s := &TskvTableSchema{
		Database:     db,
		Table:        name,
		columns:      make([]TableColumn, 0, len(columns)),
		columnsIndex: make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		s.AddColumn(col)
	}
	return s
}

func (s *TskvTableSchema) tableSchema() {}

// Name returns the table name.
func (s *TskvTableSchema) Name() string { return s.Table }

// DB returns the owning database name.
func (s *TskvTableSchema) DB() string { return s.Database }

// Kind returns TableKindTskv.
func (s *TskvTableSchema) Kind() TableKind { return TableKindTskv }

// AddColumn appends col unless a column with the same name already exists.
func (s *TskvTableSchema) AddColumn(col TableColumn) {
	if s.columnsIndex == nil {
		s.columnsIndex = make(map[string]int)
	}
	if _, ok := s.columnsIndex[col.Name]; ok {
		return
	}
	s.columnsIndex[col.Name] = len(s.columns)
	s.columns = append(s.columns, col)
}

// Column returns the column with the given name.
func (s *TskvTableSchema) Column(name string) (TableColumn, bool) {
	idx, ok := s.columnsIndex[name]
	if !ok {
		return TableColumn{}, false
	}
	return s.columns[idx], true
}

// ColumnIndex returns the position of the named column.
func (s *TskvTableSchema) ColumnIndex(name string) (int, bool) {
	idx, ok := s.columnsIndex[name]
	return idx, ok
}

// ColumnByIndex returns the column at position idx.
func (s *TskvTableSchema) ColumnByIndex(idx int) (TableColumn, bool) {
	if idx < 0 || idx >= len(s.columns) {
		return TableColumn{}, false
	}
	return s.columns[idx], true
}

// Columns returns a copy of the ordered column list.
func (s *TskvTableSchema) Columns() []TableColumn {
	out := make([]TableColumn, len(s.columns))
	copy(out, s.columns)
	return out
}

// Fields returns the field columns in declaration order.
func (s *TskvTableSchema) Fields() []TableColumn {
	fields := make([]TableColumn, 0, len(s.columns))
	for _, col := range s.columns {
		if col.ColumnType.IsField() {
			fields = append(fields, col)
		}
	}
	return fields
}

// FieldNum returns the number of field columns.
func (s *TskvTableSchema) FieldNum() int {
	n := 0
	for _, col := range s.columns {
		if col.ColumnType.IsField() {
			n++
		}
	}
	return n
}

// FieldsID maps each field column id to its rank among the sorted field ids.
func (s *TskvTableSchema) FieldsID() map[ColumnID]int {
	ids := make([]ColumnID, 0, len(s.columns))
	for _, col := range s.columns {
		if col.ColumnType.IsField() {
			ids = append(ids, col.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[ColumnID]int, len(ids))
	for i, id := range ids {
		out[id] = i
	}
	return out
}

// Size returns an approximate in-memory footprint in bytes. It is used for
// cache accounting only and is not exact.
func (s *TskvTableSchema) Size() int {
	size := int(unsafe.Sizeof(*s)) + len(s.Database) + len(s.Table)
	for _, col := range s.columns {
		size += col.size()
	}
	return size
}

// ToArrowSchema returns the physical view of the table.
func (s *TskvTableSchema) ToArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.columns))
	for _, col := range s.columns {
		fields = append(fields, col.ArrowField())
	}
	return arrow.NewSchema(fields, nil)
}

// Validate checks that the table has exactly one time column and that column
// names and ids are unique.
func (s *TskvTableSchema) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("%w: table name is empty", ErrInvalidSchema)
	}
	timeCols := 0
	ids := make(map[ColumnID]string, len(s.columns))
	for _, col := range s.columns {
		if col.ColumnType.IsTime() {
			timeCols++
		}
		if prev, ok := ids[col.ID]; ok {
			return fmt.Errorf("%w: column id %d used by %q and %q", ErrInvalidSchema, col.ID, prev, col.Name)
		}
		ids[col.ID] = col.Name
	}
	if timeCols != 1 {
		return fmt.Errorf("%w: expected exactly one time column, found %d", ErrInvalidSchema, timeCols)
	}
	return nil
}

type tskvTableSchemaJSON struct {
	DB       string        `json:"db"`
	Name     string        `json:"name"`
	SchemaID SchemaID      `json:"schema_id"`
	Columns  []TableColumn `json:"columns"`
}

// MarshalJSON encodes the schema with its ordered columns.
func (s *TskvTableSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(tskvTableSchemaJSON{
		DB:       s.Database,
		Name:     s.Table,
		SchemaID: s.SchemaID,
		Columns:  s.columns,
	})
}

// UnmarshalJSON decodes the schema and rebuilds the name index.
func (s *TskvTableSchema) UnmarshalJSON(data []byte) error {
	var raw tskvTableSchemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := NewTskvTableSchema(raw.DB, raw.Name, raw.Columns)
	decoded.SchemaID = raw.SchemaID
	*s = *decoded
	return nil
}

// TableColumn is a single column of a tskv table.
type TableColumn struct {
	ID         ColumnID   `json:"id"`
	Name       string     `json:"name"`
	ColumnType ColumnType `json:"column_type"`
	Encoding   Encoding   `json:"encoding"`
}

// NewTableColumn creates a column.
func NewTableColumn(id ColumnID, name string, ct ColumnType, enc Encoding) TableColumn {
	return TableColumn{ID: id, Name: name, ColumnType: ct, Encoding: enc}
}

// NewTimeColumn creates the time column.
func NewTimeColumn(id ColumnID) TableColumn {
	return TableColumn{ID: id, Name: TimeFieldName, ColumnType: TimeColumnType(), Encoding: EncodingDefault}
}

// NewTagColumn creates a tag column.
func NewTagColumn(id ColumnID, name string) TableColumn {
	return TableColumn{ID: id, Name: name, ColumnType: TagColumnType(), Encoding: EncodingDefault}
}

// NewFieldColumn creates a field column of the given value type.
func NewFieldColumn(id ColumnID, name string, vt ValueType) TableColumn {
	return TableColumn{ID: id, Name: name, ColumnType: FieldColumnType(vt), Encoding: EncodingDefault}
}

// Nullable reports whether the column may hold nulls. Only the time column
// is mandatory.
func (c TableColumn) Nullable() bool {
	return !c.ColumnType.IsTime()
}

func (c TableColumn) size() int {
	return int(unsafe.Sizeof(c)) + len(c.Name)
}
