package query

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// OutputKind distinguishes statements without a result set from those with one.
type OutputKind int

const (
	OutputNil OutputKind = iota
	OutputStreamData
)

func (k OutputKind) String() string {
	if k == OutputStreamData {
		return "StreamData"
	}
	return "Nil"
}

// Output is the result of one statement.
type Output struct {
	Kind    OutputKind
	Schema  *arrow.Schema
	Records []arrow.Record
}

// NilOutput is the result of a statement that produces no rows.
func NilOutput() Output {
	return Output{Kind: OutputNil}
}

// StreamOutput wraps record batches sharing schema.
func StreamOutput(schema *arrow.Schema, records []arrow.Record) Output {
	return Output{Kind: OutputStreamData, Schema: schema, Records: records}
}

// NumRows returns the total row count across batches.
func (o Output) NumRows() int64 {
	var n int64
	for _, rec := range o.Records {
		n += rec.NumRows()
	}
	return n
}

// ColumnNames returns the output schema field names.
func (o Output) ColumnNames() []string {
	if o.Schema == nil {
		return nil
	}
	names := make([]string, o.Schema.NumFields())
	for i, f := range o.Schema.Fields() {
		names[i] = f.Name
	}
	return names
}

// Rows materializes all batches as rows of JSON-friendly values.
func (o Output) Rows() [][]interface{} {
	rows := make([][]interface{}, 0, o.NumRows())
	for _, rec := range o.Records {
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make([]interface{}, rec.NumCols())
			for c := 0; c < int(rec.NumCols()); c++ {
				col := rec.Column(c)
				if col.IsNull(r) {
					continue
				}
				row[c] = col.GetOneForMarshal(r)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Release releases every record batch.
func (o Output) Release() {
	for _, rec := range o.Records {
		rec.Release()
	}
}

// StringOutput builds a single-batch output of nullable Utf8 columns. A nil
// cell is appended as null.
func StringOutput(columns []string, rows [][]*string) (Output, error) {
	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builders := make([]*array.StringBuilder, len(columns))
	for i := range columns {
		builders[i] = array.NewStringBuilder(memory.DefaultAllocator)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for n, row := range rows {
		if len(row) != len(columns) {
			return Output{}, fmt.Errorf("row %d has %d values, want %d", n, len(row), len(columns))
		}
		for i, v := range row {
			if v == nil {
				builders[i].AppendNull()
				continue
			}
			builders[i].Append(*v)
		}
	}

	cols := make([]arrow.Array, len(columns))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	record := array.NewRecord(schema, cols, int64(len(rows)))
	for _, c := range cols {
		c.Release()
	}
	return StreamOutput(schema, []arrow.Record{record}), nil
}
