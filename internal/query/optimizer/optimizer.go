// Package optimizer lowers query plans to table scans with a resolved
// projection and a pushed-down row limit.
package optimizer

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/pkg/types"
)

// DefaultOptimizer resolves projections against the table schema.
type DefaultOptimizer struct{}

// NewDefaultOptimizer creates an optimizer.
func NewDefaultOptimizer() *DefaultOptimizer {
	return &DefaultOptimizer{}
}

// Optimize builds the physical plan for plan.
func (o *DefaultOptimizer) Optimize(ctx context.Context, plan *query.QueryPlan, sm *query.QueryStateMachine) (*query.PhysicalPlan, error) {
	if plan == nil {
		return nil, fmt.Errorf("optimizer: nil plan")
	}
	if plan.Offset < 0 {
		return nil, fmt.Errorf("optimizer: negative offset %d", plan.Offset)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := SourceSchema(plan.Schema)
	if err != nil {
		return nil, err
	}

	projection, err := resolveProjection(source, plan.Columns)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %s: %w", plan.Table, err)
	}
	fields := make([]arrow.Field, len(projection))
	for i, idx := range projection {
		fields[i] = source.Field(idx)
	}
	meta := source.Metadata()

	fetch := int64(-1)
	if plan.Limit >= 0 {
		fetch = plan.Offset + plan.Limit
	}

	return &query.PhysicalPlan{
		Table:        plan.Table,
		Source:       plan.Schema,
		Projection:   projection,
		OutputSchema: arrow.NewSchema(fields, &meta),
		Fetch:        fetch,
		Limit:        plan.Limit,
		Offset:       plan.Offset,
	}, nil
}

// SourceSchema returns the arrow schema a scan of the table produces before
// projection.
func SourceSchema(schema types.TableSchema) (*arrow.Schema, error) {
	switch t := schema.(type) {
	case *types.TskvTableSchema:
		return t.ToArrowSchema(), nil
	case *types.ExternalTableSchema:
		if t.Schema == nil {
			return nil, fmt.Errorf("optimizer: external table %s has no schema", t.Name())
		}
		return t.Schema, nil
	default:
		return nil, fmt.Errorf("optimizer: unsupported table schema %T", schema)
	}
}

// resolveProjection maps column names to source indices. No names selects
// every column.
func resolveProjection(source *arrow.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		all := make([]int, source.NumFields())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	projection := make([]int, len(columns))
	for i, name := range columns {
		indices := source.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("column %q not found", name)
		}
		projection[i] = indices[0]
	}
	return projection, nil
}
