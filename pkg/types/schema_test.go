package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleTskvSchema() *TskvTableSchema {
	return NewTskvTableSchema("public", "cpu", []TableColumn{
		NewTimeColumn(0),
		NewTagColumn(1, "host"),
		NewFieldColumn(4, "usage", ValueTypeFloat),
		NewTagColumn(2, "region"),
		NewFieldColumn(3, "count", ValueTypeInteger),
	})
}

func TestTskvTableSchema_FieldNum(t *testing.T) {
	s := NewTskvTableSchema("public", "t", []TableColumn{
		NewTimeColumn(0),
		NewTagColumn(1, "a"),
		NewFieldColumn(2, "x", ValueTypeFloat),
		NewFieldColumn(3, "y", ValueTypeString),
	})

	if got := s.FieldNum(); got != 2 {
		t.Errorf("field count mismatch: got %d, want 2", got)
	}
	fields := s.Fields()
	if len(fields) != 2 || fields[0].Name != "x" || fields[1].Name != "y" {
		t.Errorf("fields mismatch: got %+v", fields)
	}
}

func TestTskvTableSchema_AddColumnIdempotent(t *testing.T) {
	s := sampleTskvSchema()
	before := len(s.Columns())

	s.AddColumn(NewFieldColumn(9, "usage", ValueTypeString))
	if got := len(s.Columns()); got != before {
		t.Fatalf("column count mismatch after duplicate add: got %d, want %d", got, before)
	}
	col, ok := s.Column("usage")
	if !ok {
		t.Fatal("expected usage column")
	}
	if col.ID != 4 || col.ColumnType != FieldColumnType(ValueTypeFloat) {
		t.Errorf("duplicate add replaced the column: %+v", col)
	}

	s.AddColumn(NewFieldColumn(5, "temp", ValueTypeFloat))
	idx, ok := s.ColumnIndex("temp")
	if !ok || idx != before {
		t.Errorf("index mismatch: got %d (%v), want %d", idx, ok, before)
	}
}

func TestTskvTableSchema_DuplicateConstructorKeepsFirst(t *testing.T) {
	s := NewTskvTableSchema("public", "t", []TableColumn{
		NewTimeColumn(0),
		NewFieldColumn(1, "x", ValueTypeFloat),
		NewFieldColumn(2, "x", ValueTypeInteger),
	})
	if got := len(s.Columns()); got != 2 {
		t.Fatalf("column count mismatch: got %d, want 2", got)
	}
	col, _ := s.Column("x")
	if col.ID != 1 {
		t.Errorf("expected first x to win, got id %d", col.ID)
	}
}

func TestTskvTableSchema_ColumnByIndex(t *testing.T) {
	s := sampleTskvSchema()

	col, ok := s.ColumnByIndex(1)
	if !ok || col.Name != "host" {
		t.Errorf("column 1 mismatch: got %+v", col)
	}
	if _, ok := s.ColumnByIndex(-1); ok {
		t.Error("expected negative index to miss")
	}
	if _, ok := s.ColumnByIndex(len(s.Columns())); ok {
		t.Error("expected out of range index to miss")
	}
	if _, ok := s.Column("missing"); ok {
		t.Error("expected unknown name to miss")
	}
}

func TestTskvTableSchema_ColumnsReturnsCopy(t *testing.T) {
	s := sampleTskvSchema()
	cols := s.Columns()
	cols[0].Name = "mutated"

	if col, _ := s.ColumnByIndex(0); col.Name != TimeFieldName {
		t.Errorf("schema mutated through Columns(): %s", col.Name)
	}
}

func TestTskvTableSchema_FieldsID(t *testing.T) {
	s := NewTskvTableSchema("public", "t", []TableColumn{
		NewTimeColumn(0),
		NewTagColumn(1, "a"),
		NewFieldColumn(7, "x", ValueTypeFloat),
		NewFieldColumn(3, "y", ValueTypeFloat),
		NewFieldColumn(5, "z", ValueTypeFloat),
	})

	got := s.FieldsID()
	want := map[ColumnID]int{3: 0, 5: 1, 7: 2}
	if len(got) != len(want) {
		t.Fatalf("size mismatch: got %v, want %v", got, want)
	}
	for id, pos := range want {
		if got[id] != pos {
			t.Errorf("position of %d mismatch: got %d, want %d", id, got[id], pos)
		}
	}
}

func TestTskvTableSchema_Validate(t *testing.T) {
	if err := sampleTskvSchema().Validate(); err != nil {
		t.Fatalf("expected valid schema, got %v", err)
	}

	tests := []struct {
		name    string
		columns []TableColumn
	}{
		{"no time column", []TableColumn{NewTagColumn(1, "a")}},
		{"duplicate ids", []TableColumn{NewTimeColumn(0), NewTagColumn(0, "a")}},
		{"two time columns", []TableColumn{NewTimeColumn(0), NewTableColumn(1, "t2", TimeColumnType(), EncodingDefault)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTskvTableSchema("public", "t", tt.columns).Validate()
			if !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestTskvTableSchema_SizeGrowsWithColumns(t *testing.T) {
	s := NewTskvTableSchema("public", "t", []TableColumn{NewTimeColumn(0)})
	before := s.Size()
	s.AddColumn(NewFieldColumn(1, "value", ValueTypeFloat))
	if after := s.Size(); after <= before {
		t.Errorf("expected size to grow, got %d -> %d", before, after)
	}
}

func TestTskvTableSchema_JSONRebuildsIndex(t *testing.T) {
	s := sampleTskvSchema()
	s.SchemaID = 3

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded TskvTableSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Name() != "cpu" || decoded.DB() != "public" || decoded.SchemaID != 3 {
		t.Errorf("header mismatch: %s.%s v%d", decoded.DB(), decoded.Name(), decoded.SchemaID)
	}
	idx, ok := decoded.ColumnIndex("region")
	if !ok || idx != 3 {
		t.Errorf("index not rebuilt: got %d (%v), want 3", idx, ok)
	}
	col, _ := decoded.Column("count")
	if col.ColumnType != FieldColumnType(ValueTypeInteger) {
		t.Errorf("column type mismatch: got %s, want i64", col.ColumnType)
	}
}

func TestNewTskvTableSchema_DefaultDatabase(t *testing.T) {
	s := NewTskvTableSchema("", "t", nil)
	if s.DB() != DefaultDatabase {
		t.Errorf("database mismatch: got %s, want %s", s.DB(), DefaultDatabase)
	}
}

func TestTableColumn_Nullable(t *testing.T) {
	if NewTimeColumn(0).Nullable() {
		t.Error("time column must not be nullable")
	}
	if !NewTagColumn(1, "a").Nullable() {
		t.Error("tag column must be nullable")
	}
	if !NewFieldColumn(2, "x", ValueTypeBoolean).Nullable() {
		t.Error("field column must be nullable")
	}
}

func TestColumnType_String(t *testing.T) {
	tests := []struct {
		ct   ColumnType
		want string
	}{
		{TagColumnType(), "tag"},
		{TimeColumnType(), "time"},
		{FieldColumnType(ValueTypeFloat), "f64"},
		{FieldColumnType(ValueTypeInteger), "i64"},
		{FieldColumnType(ValueTypeUnsigned), "u64"},
		{FieldColumnType(ValueTypeBoolean), "bool"},
		{FieldColumnType(ValueTypeString), "string"},
		{FieldColumnType(ValueTypeUnknown), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("string mismatch: got %s, want %s", got, tt.want)
		}
		parsed, err := ParseColumnType(tt.want)
		if err != nil || parsed != tt.ct {
			t.Errorf("parse %s mismatch: got %v (%v)", tt.want, parsed, err)
		}
	}
}

func TestColumnTypeFromCode(t *testing.T) {
	for code := int32(0); code < 5; code++ {
		ct := ColumnTypeFromCode(code)
		if !ct.IsField() || int32(ct.FieldTypeCode()) != code {
			t.Errorf("code %d mismatch: got %s (code %d)", code, ct, ct.FieldTypeCode())
		}
	}
	if ct := ColumnTypeFromCode(5); !ct.IsTime() {
		t.Errorf("code 5 mismatch: got %s, want time", ct)
	}
	if ct := ColumnTypeFromCode(42); ct != FieldColumnType(ValueTypeUnknown) {
		t.Errorf("code 42 mismatch: got %s, want unknown", ct)
	}
}

func TestParseEncoding(t *testing.T) {
	enc, ok := ParseEncoding("gorilla")
	if !ok || enc != EncodingGorilla {
		t.Errorf("encoding mismatch: got %s (%v), want GORILLA", enc, ok)
	}
	if _, ok := ParseEncoding("lz77"); ok {
		t.Error("expected unknown codec to fail")
	}
	for e := EncodingDefault; e <= EncodingDictionary; e++ {
		parsed, ok := ParseEncoding(e.String())
		if !ok || parsed != e {
			t.Errorf("round trip of %s failed", e)
		}
	}
}
