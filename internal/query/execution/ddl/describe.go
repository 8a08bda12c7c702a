package ddl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/pkg/types"
)

// DescribeDatabaseTask returns the options of one database as a single row.
type DescribeDatabaseTask struct {
	plan *query.DescribeDatabasePlan
}

var describeDatabaseColumns = []string{"TTL", "SHARD", "VNODE_DURATION", "REPLICA", "PRECISION"}

func (t *DescribeDatabaseTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	db, err := sm.Meta.Database(ctx, t.plan.Name)
	if err != nil {
		return query.Output{}, err
	}
	opts := db.Options
	row := []*string{
		str(opts.TTL.String()),
		str(strconv.FormatUint(opts.ShardNum, 10)),
		str(opts.VnodeDuration.String()),
		str(strconv.FormatUint(opts.Replica, 10)),
		str(opts.Precision.String()),
	}
	return query.StringOutput(describeDatabaseColumns, [][]*string{row})
}

// DescribeTableTask lists the columns of a table.
type DescribeTableTask struct {
	plan *query.DescribeTablePlan
}

func (t *DescribeTableTask) Execute(ctx context.Context, sm *query.QueryStateMachine) (query.Output, error) {
	schema, err := sm.Meta.Table(ctx, sm.Meta.Resolve(t.plan.Table))
	if err != nil {
		return query.Output{}, err
	}

	switch s := schema.(type) {
	case *types.TskvTableSchema:
		return describeTskvTable(s)
	case *types.ExternalTableSchema:
		return describeExternalTable(s)
	default:
		return query.Output{}, fmt.Errorf("ddl: cannot describe %T", schema)
	}
}

func describeTskvTable(s *types.TskvTableSchema) (query.Output, error) {
	cols := s.Columns()
	rows := make([][]*string, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, []*string{
			str(c.Name),
			str(sqlTypeName(c.ColumnType)),
			str(strconv.FormatBool(c.ColumnType.IsTag())),
			str(c.Encoding.String()),
		})
	}
	return query.StringOutput([]string{"FIELDNAME", "TYPE", "ISTAG", "COMPRESSION"}, rows)
}

func describeExternalTable(s *types.ExternalTableSchema) (query.Output, error) {
	var rows [][]*string
	if s.Schema != nil {
		for _, f := range s.Schema.Fields() {
			rows = append(rows, []*string{str(f.Name), str(f.Type.String())})
		}
	}
	return query.StringOutput([]string{"FIELDNAME", "TYPE"}, rows)
}

// sqlTypeName renders a column type with the names CREATE TABLE accepts.
func sqlTypeName(t types.ColumnType) string {
	switch t.Kind {
	case types.KindTime:
		return "TIMESTAMP"
	case types.KindTag:
		return "STRING"
	}
	switch t.Value {
	case types.ValueTypeFloat:
		return "DOUBLE"
	case types.ValueTypeInteger:
		return "BIGINT"
	case types.ValueTypeUnsigned:
		return "BIGINT UNSIGNED"
	case types.ValueTypeBoolean:
		return "BOOLEAN"
	case types.ValueTypeString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

func str(s string) *string { return &s }
