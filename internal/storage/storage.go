// Package storage provides read access to the object storage behind
// external tables.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrDownloadFailed  = errors.New("download failed")
	ErrInvalidLocation = errors.New("invalid location")
)

// ObjectStorage abstracts object storage reads.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Open returns a reader over the object content. The caller closes it.
	// Returns ErrObjectNotFound if the object does not exist.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	// A prefix naming a single object lists that object.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
