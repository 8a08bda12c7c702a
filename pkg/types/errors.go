package types

import "errors"

// Schema model errors
var (
	// ErrUnsupportedFieldType is returned when an arrow type has no field column equivalent
	ErrUnsupportedFieldType = errors.New("error field type not supported")

	// ErrInvalidSchema is returned by table schema validation
	ErrInvalidSchema = errors.New("invalid table schema")

	// ErrUnknownColumnType is returned when a column type name cannot be parsed
	ErrUnknownColumnType = errors.New("unknown column type")

	// ErrUnknownEncoding is returned when a codec name cannot be parsed
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrUnsupportedFileType is returned for external tables with an unknown file type
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrUnsupportedCompression is returned when a compression type cannot be used for listing
	ErrUnsupportedCompression = errors.New("only known compression types can be listing tables")
)

// Query id errors
var (
	// ErrInvalidQueryIDLength is returned when a query id string has incorrect length
	ErrInvalidQueryIDLength = errors.New("invalid query id length")

	// ErrInvalidQueryIDCharacter is returned when a query id string contains invalid characters
	ErrInvalidQueryIDCharacter = errors.New("invalid query id character")
)
