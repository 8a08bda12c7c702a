package scheduler

import (
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

// recordReader is the common surface of the arrow CSV and JSON readers.
type recordReader interface {
	Next() bool
	Record() arrow.Record
	Err() error
	Release()
}

// scanExternal lists the table's files and decodes them in listing order,
// stopping once fetch rows are read (fetch < 0 reads everything).
func (s *LocalScheduler) scanExternal(ctx context.Context, table *types.ExternalTableSchema, fetch int64) ([]arrow.Record, error) {
	opts, err := table.TableOptions()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption, table.Name(), err)
	}
	switch opts.Format.Type {
	case types.FileTypeCSV, types.FileTypeJSON:
	default:
		return nil, cerrors.NewValidationError(cerrors.CodeUnsupportedFileType,
			fmt.Sprintf("scanning %s files is not supported", opts.Format.Type))
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("scheduler: no object storage configured for external table %s", table.Name())
	}

	store, prefix, err := s.resolver.Resolve(ctx, table.Location)
	if err != nil {
		return nil, err
	}
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeDownloadFailed,
			fmt.Sprintf("failed to list %s", table.Location), err)
	}
	paths := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj == prefix || strings.HasSuffix(obj, opts.FileExtension) {
			paths = append(paths, obj)
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}

	result, err := storage.NewBatchReader(store, s.concurrency).Read(ctx, paths)
	if err != nil {
		return nil, err
	}
	if err := result.FirstError(paths); err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeDownloadFailed,
			fmt.Sprintf("failed to read %s", table.Location), err)
	}

	var (
		records []arrow.Record
		rows    int64
	)
	for _, path := range paths {
		if fetch >= 0 && rows >= fetch {
			break
		}
		recs, err := s.decodeFile(result.Data[path], table.Schema, opts.Format)
		if err != nil {
			releaseAll(records)
			return nil, fmt.Errorf("scheduler: decode %s: %w", path, err)
		}
		for _, rec := range recs {
			rows += rec.NumRows()
		}
		records = append(records, recs...)
	}
	return records, nil
}

func (s *LocalScheduler) decodeFile(data []byte, schema *arrow.Schema, format types.FileFormat) ([]arrow.Record, error) {
	r, err := decompress(bytes.NewReader(data), format.Compression)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var rdr recordReader
	switch format.Type {
	case types.FileTypeCSV:
		rdr = csv.NewReader(r, schema,
			csv.WithHeader(format.HasHeader),
			csv.WithComma(rune(format.Delimiter)),
			csv.WithChunk(s.batchSize),
			csv.WithNullReader(true, ""),
		)
	case types.FileTypeJSON:
		rdr = array.NewJSONReader(r, schema, array.WithChunk(s.batchSize))
	default:
		return nil, fmt.Errorf("unsupported file type %s", format.Type)
	}
	defer rdr.Release()

	var records []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := rdr.Err(); err != nil {
		releaseAll(records)
		return nil, err
	}
	return records, nil
}

func decompress(r io.Reader, ct types.CompressionType) (io.ReadCloser, error) {
	switch ct {
	case types.CompressionUncompressed, "":
		return io.NopCloser(r), nil
	case types.CompressionGzip:
		return gzip.NewReader(r)
	case types.CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case types.CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case types.CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	default:
		return nil, fmt.Errorf("%w: %s is not readable", types.ErrUnsupportedCompression, ct)
	}
}
