package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchReader reads several objects in parallel into memory.
type BatchReader struct {
	storage     ObjectStorage
	concurrency int
}

// BatchResult contains the outcome of a batch read. Data and Errors are
// keyed by object path.
type BatchResult struct {
	Data   map[string][]byte
	Errors map[string]error
	Bytes  int64
}

// FirstError returns the error of the first path in paths that failed.
func (r *BatchResult) FirstError(paths []string) error {
	for _, p := range paths {
		if err, ok := r.Errors[p]; ok {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// NewBatchReader creates a new batch reader.
// concurrency: maximum number of parallel reads (values < 1 mean 1)
func NewBatchReader(storage ObjectStorage, concurrency int) *BatchReader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchReader{storage: storage, concurrency: concurrency}
}

// Read fetches all paths. Individual failures are reported in the result;
// the returned error is only set when the context ends before all reads
// were started.
func (b *BatchReader) Read(ctx context.Context, paths []string) (*BatchResult, error) {
	result := &BatchResult{
		Data:   make(map[string][]byte, len(paths)),
		Errors: make(map[string]error),
	}
	if len(paths) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, fmt.Errorf("semaphore acquire failed: %w", err)
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := b.readOne(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[path] = err
				return
			}
			result.Data[path] = data
			result.Bytes += int64(len(data))
		}(p)
	}

	wg.Wait()
	return result, nil
}

func (b *BatchReader) readOne(ctx context.Context, path string) ([]byte, error) {
	rc, err := b.storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return buf.Bytes(), nil
}
