package types

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
)

// Arrow field metadata keys.
const (
	FieldIDKey = "_field_id"
	TagKey     = "_tag"
)

// ArrowType returns the arrow data type backing a column type.
func (t ColumnType) ArrowType() arrow.DataType {
	switch t.Kind {
	case KindTag:
		return arrow.BinaryTypes.String
	case KindTime:
		return &arrow.TimestampType{Unit: arrow.Nanosecond}
	}
	switch t.Value {
	case ValueTypeFloat:
		return arrow.PrimitiveTypes.Float64
	case ValueTypeInteger:
		return arrow.PrimitiveTypes.Int64
	case ValueTypeUnsigned:
		return arrow.PrimitiveTypes.Uint64
	case ValueTypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case ValueTypeString:
		return arrow.BinaryTypes.String
	default:
		return arrow.Null
	}
}

// ColumnTypeFromArrow maps an arrow type to a field column type. Only
// Float64, Int64, Uint64, Utf8 and Boolean are accepted; tag and time
// columns cannot be recovered from the data type alone.
func ColumnTypeFromArrow(dt arrow.DataType) (ColumnType, error) {
	switch dt.ID() {
	case arrow.FLOAT64:
		return FieldColumnType(ValueTypeFloat), nil
	case arrow.INT64:
		return FieldColumnType(ValueTypeInteger), nil
	case arrow.UINT64:
		return FieldColumnType(ValueTypeUnsigned), nil
	case arrow.STRING:
		return FieldColumnType(ValueTypeString), nil
	case arrow.BOOL:
		return FieldColumnType(ValueTypeBoolean), nil
	default:
		return ColumnType{}, fmt.Errorf("%w: %s", ErrUnsupportedFieldType, dt)
	}
}

// ArrowField returns the arrow field of the column, carrying the column id
// and tag flag as metadata.
func (c TableColumn) ArrowField() arrow.Field {
	md := arrow.NewMetadata(
		[]string{FieldIDKey, TagKey},
		[]string{strconv.FormatUint(uint64(c.ID), 10), strconv.FormatBool(c.ColumnType.IsTag())},
	)
	return arrow.Field{
		Name:     c.Name,
		Type:     c.ColumnType.ArrowType(),
		Nullable: c.Nullable(),
		Metadata: md,
	}
}

// TableColumnFromArrowField rebuilds a column from a field produced by
// ArrowField, using the metadata to recover tag and time columns.
func TableColumnFromArrowField(f arrow.Field) (TableColumn, error) {
	var id ColumnID
	if idx := f.Metadata.FindKey(FieldIDKey); idx >= 0 {
		v, err := strconv.ParseUint(f.Metadata.Values()[idx], 10, 32)
		if err != nil {
			return TableColumn{}, fmt.Errorf("invalid %s metadata on %q: %w", FieldIDKey, f.Name, err)
		}
		id = ColumnID(v)
	}

	if idx := f.Metadata.FindKey(TagKey); idx >= 0 && f.Metadata.Values()[idx] == "true" {
		return NewTagColumn(id, f.Name), nil
	}
	if IsTimeField(f) && f.Type.ID() == arrow.TIMESTAMP {
		return NewTimeColumn(id), nil
	}

	ct, err := ColumnTypeFromArrow(f.Type)
	if err != nil {
		return TableColumn{}, err
	}
	return NewTableColumn(id, f.Name, ct, EncodingDefault), nil
}

// IsTimeField reports whether f is the time column.
func IsTimeField(f arrow.Field) bool {
	return f.Name == TimeFieldName
}
