package types

import (
	"fmt"
	"strings"
)

// ValueType is the value type of a field column.
type ValueType uint8

const (
	ValueTypeUnknown ValueType = iota
	ValueTypeFloat
	ValueTypeInteger
	ValueTypeUnsigned
	ValueTypeBoolean
	ValueTypeString
)

// String returns the short type name.
func (v ValueType) String() string {
	switch v {
	case ValueTypeFloat:
		return "f64"
	case ValueTypeInteger:
		return "i64"
	case ValueTypeUnsigned:
		return "u64"
	case ValueTypeBoolean:
		return "bool"
	case ValueTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ColumnKind tells tag, time and field columns apart.
type ColumnKind uint8

const (
	KindField ColumnKind = iota
	KindTag
	KindTime
)

// ColumnType is Tag, Time or Field(ValueType). Value is only meaningful for
// field columns. The zero value is Field(Unknown).
type ColumnType struct {
	Kind  ColumnKind
	Value ValueType
}

// TagColumnType returns the tag column type.
func TagColumnType() ColumnType { return ColumnType{Kind: KindTag} }

// TimeColumnType returns the time column type.
func TimeColumnType() ColumnType { return ColumnType{Kind: KindTime} }

// FieldColumnType returns a field column type of the given value type.
func FieldColumnType(vt ValueType) ColumnType { return ColumnType{Kind: KindField, Value: vt} }

func (t ColumnType) IsTag() bool   { return t.Kind == KindTag }
func (t ColumnType) IsTime() bool  { return t.Kind == KindTime }
func (t ColumnType) IsField() bool { return t.Kind == KindField }

// String returns tag, time, f64, i64, u64, bool, string or unknown.
func (t ColumnType) String() string {
	switch t.Kind {
	case KindTag:
		return "tag"
	case KindTime:
		return "time"
	default:
		return t.Value.String()
	}
}

// FieldTypeCode returns the wire code of a field type. Non-field and unknown
// types encode as 0.
func (t ColumnType) FieldTypeCode() uint8 {
	if t.Kind != KindField {
		return 0
	}
	switch t.Value {
	case ValueTypeInteger:
		return 1
	case ValueTypeUnsigned:
		return 2
	case ValueTypeBoolean:
		return 3
	case ValueTypeString:
		return 4
	default:
		return 0
	}
}

// ColumnTypeFromCode decodes a wire type code. 5 is the time column;
// unrecognised codes decode to Field(Unknown).
func ColumnTypeFromCode(code int32) ColumnType {
	switch code {
	case 0:
		return FieldColumnType(ValueTypeFloat)
	case 1:
		return FieldColumnType(ValueTypeInteger)
	case 2:
		return FieldColumnType(ValueTypeUnsigned)
	case 3:
		return FieldColumnType(ValueTypeBoolean)
	case 4:
		return FieldColumnType(ValueTypeString)
	case 5:
		return TimeColumnType()
	default:
		return FieldColumnType(ValueTypeUnknown)
	}
}

// ParseColumnType parses the String form of a column type.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(s) {
	case "tag":
		return TagColumnType(), nil
	case "time":
		return TimeColumnType(), nil
	case "f64":
		return FieldColumnType(ValueTypeFloat), nil
	case "i64":
		return FieldColumnType(ValueTypeInteger), nil
	case "u64":
		return FieldColumnType(ValueTypeUnsigned), nil
	case "bool":
		return FieldColumnType(ValueTypeBoolean), nil
	case "string":
		return FieldColumnType(ValueTypeString), nil
	case "unknown":
		return FieldColumnType(ValueTypeUnknown), nil
	default:
		return ColumnType{}, fmt.Errorf("%w: %q", ErrUnknownColumnType, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(text []byte) error {
	ct, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = ct
	return nil
}
