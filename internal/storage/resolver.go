package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// S3Factory opens a storage for one bucket.
type S3Factory func(ctx context.Context, bucket string, cfg S3Config) (ObjectStorage, error)

// Resolver maps an external table location to a storage and an object prefix.
//
//	s3://bucket/prefix  -> S3 storage of bucket, "prefix"
//	file:///abs/path    -> filesystem, "/abs/path"
//	/abs/path           -> filesystem, "/abs/path"
//	relative/path       -> the default storage, "relative/path"
type Resolver struct {
	defaultStorage ObjectStorage
	root           *LocalStorage
	s3Config       S3Config
	newS3          S3Factory

	mu      sync.Mutex
	buckets map[string]ObjectStorage
}

// NewResolver creates a resolver. defaultStorage serves relative locations
// and may be nil, in which case they resolve against the working directory.
func NewResolver(defaultStorage ObjectStorage, s3Config S3Config) *Resolver {
	root := &LocalStorage{}
	if defaultStorage == nil {
		defaultStorage = root
	}
	return &Resolver{
		defaultStorage: defaultStorage,
		root:           root,
		s3Config:       s3Config,
		newS3: func(ctx context.Context, bucket string, cfg S3Config) (ObjectStorage, error) {
			return NewS3Storage(ctx, bucket, cfg)
		},
		buckets: make(map[string]ObjectStorage),
	}
}

// WithS3Factory replaces the constructor used for s3:// locations.
func (r *Resolver) WithS3Factory(f S3Factory) *Resolver {
	r.newS3 = f
	return r
}

// Resolve returns the storage holding location and the object prefix in it.
func (r *Resolver) Resolve(ctx context.Context, location string) (ObjectStorage, string, error) {
	if location == "" {
		return nil, "", fmt.Errorf("%w: empty location", ErrInvalidLocation)
	}

	switch {
	case strings.HasPrefix(location, "s3://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
		if u.Host == "" {
			return nil, "", fmt.Errorf("%w: missing bucket in %q", ErrInvalidLocation, location)
		}
		store, err := r.bucket(ctx, u.Host)
		if err != nil {
			return nil, "", err
		}
		return store, strings.TrimPrefix(u.Path, "/"), nil
	case strings.HasPrefix(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
		return r.root, u.Path, nil
	case strings.HasPrefix(location, "/"):
		return r.root, location, nil
	case strings.Contains(location, "://"):
		return nil, "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidLocation, location)
	default:
		return r.defaultStorage, location, nil
	}
}

func (r *Resolver) bucket(ctx context.Context, name string) (ObjectStorage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.buckets[name]; ok {
		return store, nil
	}
	store, err := r.newS3(ctx, name, r.s3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", name, err)
	}
	r.buckets[name] = store
	return store, nil
}
