package meta

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/g302ge/cnosdb/pkg/types"
)

func encodeBlob(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodeBlob(blob []byte, v interface{}) error {
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return fmt.Errorf("snappy decode: %w", err)
	}
	return json.Unmarshal(data, v)
}

func encodeTable(schema types.TableSchema) ([]byte, error) {
	switch s := schema.(type) {
	case *types.TskvTableSchema, *types.ExternalTableSchema:
		return encodeBlob(s)
	default:
		return nil, fmt.Errorf("unsupported table schema %T", schema)
	}
}

func decodeTable(kind types.TableKind, blob []byte) (types.TableSchema, error) {
	switch kind {
	case types.TableKindTskv:
		var s types.TskvTableSchema
		if err := decodeBlob(blob, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case types.TableKindExternal:
		var s types.ExternalTableSchema
		if err := decodeBlob(blob, &s); err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
}
