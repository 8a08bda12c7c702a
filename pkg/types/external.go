package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// FileType is the format of the files behind an external table.
type FileType string

const (
	FileTypeCSV     FileType = "CSV"
	FileTypeParquet FileType = "PARQUET"
	FileTypeAvro    FileType = "AVRO"
	FileTypeJSON    FileType = "JSON"
)

// ParseFileType parses a file type name case-insensitively.
func ParseFileType(s string) (FileType, error) {
	switch ft := FileType(strings.ToUpper(s)); ft {
	case FileTypeCSV, FileTypeParquet, FileTypeAvro, FileTypeJSON:
		return ft, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, s)
	}
}

// Extension returns the file extension of the type, e.g. ".csv".
func (t FileType) Extension() string {
	return "." + strings.ToLower(string(t))
}

// CompressionType is the compression applied to CSV and JSON files.
type CompressionType string

const (
	CompressionUncompressed CompressionType = "UNCOMPRESSED"
	CompressionGzip         CompressionType = "GZIP"
	CompressionBzip2        CompressionType = "BZIP2"
	CompressionXz           CompressionType = "XZ"
	CompressionZstd         CompressionType = "ZSTD"
)

// ParseCompressionType parses a compression name case-insensitively. The
// empty string means uncompressed.
func ParseCompressionType(s string) (CompressionType, error) {
	if s == "" {
		return CompressionUncompressed, nil
	}
	switch ct := CompressionType(strings.ToUpper(s)); ct {
	case CompressionUncompressed, CompressionGzip, CompressionBzip2, CompressionXz, CompressionZstd:
		return ct, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
	}
}

// Extension returns the suffix appended to compressed files.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionBzip2:
		return ".bz2"
	case CompressionXz:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// FileFormat describes how files of an external table are decoded.
type FileFormat struct {
	Type        FileType
	HasHeader   bool
	Delimiter   byte
	Compression CompressionType
}

// ListingOptions is the access view of an external table used by the scan.
type ListingOptions struct {
	Format             FileFormat
	CollectStat        bool
	FileExtension      string
	TargetPartitions   int
	TablePartitionCols []string
}

// ExternalTableSchema is a table backed by files at Location.
type ExternalTableSchema struct {
	Database            string
	Table               string
	FileCompressionType string
	FileType            string
	Location            string
	TargetPartitions    int
	TablePartitionCols  []string
	HasHeader           bool
	Delimiter           byte
	Schema              *arrow.Schema
}

func (s *ExternalTableSchema) tableSchema() {}

// Name returns the table name.
func (s *ExternalTableSchema) Name() string { return s.Table }

// DB returns the owning database name.
func (s *ExternalTableSchema) DB() string { return s.Database }

// Kind returns TableKindExternal.
func (s *ExternalTableSchema) Kind() TableKind { return TableKindExternal }

// TableOptions derives the listing options. Compression only applies to
// CSV and JSON; parquet and avro files ignore it.
func (s *ExternalTableSchema) TableOptions() (ListingOptions, error) {
	ft, err := ParseFileType(s.FileType)
	if err != nil {
		return ListingOptions{}, err
	}

	format := FileFormat{Type: ft, Compression: CompressionUncompressed}
	switch ft {
	case FileTypeCSV:
		ct, err := ParseCompressionType(s.FileCompressionType)
		if err != nil {
			return ListingOptions{}, err
		}
		format.HasHeader = s.HasHeader
		format.Delimiter = s.Delimiter
		if format.Delimiter == 0 {
			format.Delimiter = ','
		}
		format.Compression = ct
	case FileTypeJSON:
		ct, err := ParseCompressionType(s.FileCompressionType)
		if err != nil {
			return ListingOptions{}, err
		}
		format.Compression = ct
	}

	partitionCols := make([]string, len(s.TablePartitionCols))
	copy(partitionCols, s.TablePartitionCols)

	return ListingOptions{
		Format:             format,
		CollectStat:        false,
		FileExtension:      ft.Extension() + format.Compression.Extension(),
		TargetPartitions:   s.TargetPartitions,
		TablePartitionCols: partitionCols,
	}, nil
}

type externalTableSchemaJSON struct {
	DB                  string   `json:"db"`
	Name                string   `json:"name"`
	FileCompressionType string   `json:"file_compression_type"`
	FileType            string   `json:"file_type"`
	Location            string   `json:"location"`
	TargetPartitions    int      `json:"target_partitions"`
	TablePartitionCols  []string `json:"table_partition_cols"`
	HasHeader           bool     `json:"has_header"`
	Delimiter           byte     `json:"delimiter"`
	Schema              []byte   `json:"schema,omitempty"`
}

// MarshalJSON encodes the table with its arrow schema in IPC form.
func (s *ExternalTableSchema) MarshalJSON() ([]byte, error) {
	raw := externalTableSchemaJSON{
		DB:                  s.Database,
		Name:                s.Table,
		FileCompressionType: s.FileCompressionType,
		FileType:            s.FileType,
		Location:            s.Location,
		TargetPartitions:    s.TargetPartitions,
		TablePartitionCols:  s.TablePartitionCols,
		HasHeader:           s.HasHeader,
		Delimiter:           s.Delimiter,
	}
	if s.Schema != nil {
		raw.Schema = flight.SerializeSchema(s.Schema, memory.DefaultAllocator)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a table written by MarshalJSON.
func (s *ExternalTableSchema) UnmarshalJSON(data []byte) error {
	var raw externalTableSchemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var schema *arrow.Schema
	if len(raw.Schema) > 0 {
		var err error
		schema, err = flight.DeserializeSchema(raw.Schema, memory.DefaultAllocator)
		if err != nil {
			return fmt.Errorf("decode external table schema: %w", err)
		}
	}
	*s = ExternalTableSchema{
		Database:            raw.DB,
		Table:               raw.Name,
		FileCompressionType: raw.FileCompressionType,
		FileType:            raw.FileType,
		Location:            raw.Location,
		TargetPartitions:    raw.TargetPartitions,
		TablePartitionCols:  raw.TablePartitionCols,
		HasHeader:           raw.HasHeader,
		Delimiter:           raw.Delimiter,
		Schema:              schema,
	}
	return nil
}
