// Package scheduler runs physical plans on the local node: external tables
// are scanned from object storage with arrow readers, tskv tables through a
// pluggable scanner.
package scheduler

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/rs/zerolog/log"

	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

// DefaultBatchSize is the number of rows per decoded record batch.
const DefaultBatchSize = 8192

// TskvScanner reads the rows of a tskv table. Records must use the table's
// full arrow schema; projection and row windows are applied by the scheduler.
type TskvScanner interface {
	Scan(ctx context.Context, table *types.TskvTableSchema, fetch int64) ([]arrow.Record, error)
}

// EmptyTskvScanner returns no rows. It stands in for the storage engine,
// which is not part of the query server.
type EmptyTskvScanner struct{}

func (EmptyTskvScanner) Scan(context.Context, *types.TskvTableSchema, int64) ([]arrow.Record, error) {
	return nil, nil
}

// Config configures a LocalScheduler.
type Config struct {
	// ReadConcurrency bounds parallel object reads per scan.
	ReadConcurrency int
	// BatchSize is the number of rows per decoded batch.
	BatchSize int
}

// LocalScheduler executes scans in-process.
type LocalScheduler struct {
	resolver    *storage.Resolver
	tskv        TskvScanner
	concurrency int
	batchSize   int
}

// NewLocalScheduler creates a scheduler. A nil tskv scanner is replaced by
// EmptyTskvScanner.
func NewLocalScheduler(resolver *storage.Resolver, tskv TskvScanner, cfg Config) *LocalScheduler {
	if tskv == nil {
		tskv = EmptyTskvScanner{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &LocalScheduler{
		resolver:    resolver,
		tskv:        tskv,
		concurrency: cfg.ReadConcurrency,
		batchSize:   cfg.BatchSize,
	}
}

// Schedule scans the plan's table and returns the projected row window.
func (s *LocalScheduler) Schedule(ctx context.Context, plan *query.PhysicalPlan, sm *query.QueryStateMachine) (query.Output, error) {
	if plan == nil {
		return query.Output{}, fmt.Errorf("scheduler: nil plan")
	}

	var (
		records []arrow.Record
		err     error
	)
	switch t := plan.Source.(type) {
	case *types.TskvTableSchema:
		records, err = s.tskv.Scan(ctx, t, plan.Fetch)
	case *types.ExternalTableSchema:
		records, err = s.scanExternal(ctx, t, plan.Fetch)
	default:
		err = fmt.Errorf("scheduler: unsupported table schema %T", plan.Source)
	}
	if err != nil {
		return query.Output{}, err
	}

	out := window(project(records, plan), plan.Offset, plan.Limit)
	releaseAll(records)

	if sm != nil {
		log.Debug().
			Str("query_id", sm.QueryID.String()).
			Str("table", plan.Table.String()).
			Int("batches", len(out)).
			Msg("scan finished")
	}
	return query.StreamOutput(plan.OutputSchema, out), nil
}

// project returns new records holding the projected columns. Inputs keep
// their own references.
func project(records []arrow.Record, plan *query.PhysicalPlan) []arrow.Record {
	out := make([]arrow.Record, 0, len(records))
	for _, rec := range records {
		cols := make([]arrow.Array, len(plan.Projection))
		for i, idx := range plan.Projection {
			cols[i] = rec.Column(idx)
		}
		out = append(out, array.NewRecord(plan.OutputSchema, cols, rec.NumRows()))
	}
	return out
}

// window skips offset rows and keeps at most limit rows (negative limit
// means no limit). It consumes records, releasing what it drops.
func window(records []arrow.Record, offset, limit int64) []arrow.Record {
	out := make([]arrow.Record, 0, len(records))
	for _, rec := range records {
		n := rec.NumRows()
		if offset >= n || limit == 0 {
			offset -= min(offset, n)
			rec.Release()
			continue
		}
		end := n
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		if offset == 0 && end == n {
			out = append(out, rec)
		} else {
			out = append(out, rec.NewSlice(offset, end))
			rec.Release()
		}
		if limit > 0 {
			limit -= end - offset
		}
		offset = 0
	}
	return out
}

func releaseAll(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}
