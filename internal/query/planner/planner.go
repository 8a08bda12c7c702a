// Package planner turns parsed statements into logical plans, resolving
// names against the session's catalog view.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/parser"
	"github.com/g302ge/cnosdb/pkg/types"
)

// ErrNotImplemented is returned for statements that parse but cannot be planned.
var ErrNotImplemented = errors.New("not implemented")

// DefaultLogicalPlanner plans the statements produced by parser.SQLParser.
type DefaultLogicalPlanner struct {
	targetPartitions int
}

// NewDefaultLogicalPlanner creates a planner. targetPartitions is copied into
// external table schemas; values below 1 become 1.
func NewDefaultLogicalPlanner(targetPartitions int) *DefaultLogicalPlanner {
	if targetPartitions < 1 {
		targetPartitions = 1
	}
	return &DefaultLogicalPlanner{targetPartitions: targetPartitions}
}

// CreateLogicalPlan plans one statement.
func (p *DefaultLogicalPlanner) CreateLogicalPlan(ctx context.Context, stmt parser.Statement, sm *query.QueryStateMachine) (query.LogicalPlan, error) {
	if stmt == nil {
		return nil, fmt.Errorf("planner: nil statement")
	}
	view := sm.Meta

	switch s := stmt.(type) {
	case *parser.SelectStatement:
		return p.planSelect(ctx, s, view)
	case *parser.CreateDatabaseStatement:
		return planCreateDatabase(s)
	case *parser.CreateTableStatement:
		return planCreateTable(s, view)
	case *parser.CreateExternalTableStatement:
		return p.planCreateExternalTable(s, view)
	case *parser.DropStatement:
		if s.ObjType == parser.ObjectDatabase {
			return &query.DropPlan{Name: s.Name.String(), IfExist: s.IfExist, ObjType: query.ObjectDatabase}, nil
		}
		ref := view.Resolve(meta.TableRef{Database: s.Name.Database, Table: s.Name.Name})
		return &query.DropPlan{Table: ref, IfExist: s.IfExist, ObjType: query.ObjectTable}, nil
	case *parser.DescribeDatabaseStatement:
		return &query.DescribeDatabasePlan{Name: s.Name}, nil
	case *parser.DescribeTableStatement:
		ref := view.Resolve(meta.TableRef{Database: s.Name.Database, Table: s.Name.Name})
		return &query.DescribeTablePlan{Table: ref}, nil
	case *parser.ShowDatabasesStatement:
		return &query.ShowDatabasesPlan{}, nil
	case *parser.ShowTablesStatement:
		return &query.ShowTablesPlan{Database: s.Database}, nil
	case *parser.CreateUserStatement, *parser.DropUserStatement:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, s.String())
	default:
		return nil, fmt.Errorf("planner: unsupported statement %T", stmt)
	}
}

func (p *DefaultLogicalPlanner) planSelect(ctx context.Context, s *parser.SelectStatement, view meta.CatalogView) (*query.QueryPlan, error) {
	ref := view.Resolve(meta.TableRef{Database: s.From.Database, Table: s.From.Name})
	schema, err := view.Table(ctx, ref)
	if err != nil {
		return nil, err
	}

	for _, col := range s.Columns {
		if !hasColumn(schema, col) {
			return nil, cerrors.NewValidationError(cerrors.CodeInvalidSchema,
				fmt.Sprintf("column %q not found in table %s", col, ref))
		}
	}

	plan := &query.QueryPlan{
		Table:   ref,
		Schema:  schema,
		Columns: append([]string(nil), s.Columns...),
		Limit:   -1,
	}
	if s.Limit != nil {
		plan.Limit = *s.Limit
	}
	if s.Offset != nil {
		plan.Offset = *s.Offset
	}
	return plan, nil
}

func hasColumn(schema types.TableSchema, name string) bool {
	switch t := schema.(type) {
	case *types.TskvTableSchema:
		_, ok := t.Column(name)
		return ok
	case *types.ExternalTableSchema:
		if t.Schema == nil {
			return false
		}
		return len(t.Schema.FieldIndices(name)) > 0
	default:
		return false
	}
}

func planCreateDatabase(s *parser.CreateDatabaseStatement) (*query.CreateDatabasePlan, error) {
	opts := types.DefaultDatabaseOptions()
	if s.Options.TTL != nil {
		d, ok := types.ParseDuration(*s.Options.TTL)
		if !ok {
			return nil, invalidOption("TTL", *s.Options.TTL)
		}
		opts.TTL = d
	}
	if s.Options.ShardNum != nil {
		if *s.Options.ShardNum == 0 {
			return nil, invalidOption("SHARD", "0")
		}
		opts.ShardNum = *s.Options.ShardNum
	}
	if s.Options.VnodeDuration != nil {
		d, ok := types.ParseDuration(*s.Options.VnodeDuration)
		if !ok {
			return nil, invalidOption("VNODE_DURATION", *s.Options.VnodeDuration)
		}
		opts.VnodeDuration = d
	}
	if s.Options.Replica != nil {
		if *s.Options.Replica == 0 {
			return nil, invalidOption("REPLICA", "0")
		}
		opts.Replica = *s.Options.Replica
	}
	if s.Options.Precision != nil {
		prec, ok := types.ParsePrecision(*s.Options.Precision)
		if !ok {
			return nil, invalidOption("PRECISION", *s.Options.Precision)
		}
		opts.Precision = prec
	}
	return &query.CreateDatabasePlan{Name: s.Name, IfNotExists: s.IfNotExists, Options: opts}, nil
}

func invalidOption(name, value string) error {
	return cerrors.NewValidationError(cerrors.CodeInvalidOption,
		fmt.Sprintf("invalid value %q for option %s", value, name))
}

// planCreateTable builds a tskv schema with a leading time column. Column
// ids are left at zero for the meta client to assign.
func planCreateTable(s *parser.CreateTableStatement, view meta.CatalogView) (*query.CreateTablePlan, error) {
	ref := view.Resolve(meta.TableRef{Database: s.Name.Database, Table: s.Name.Name})

	cols := []types.TableColumn{types.NewTimeColumn(0)}
	seen := map[string]bool{types.TimeFieldName: true}
	for _, c := range s.Columns {
		if seen[c.Name] {
			return nil, cerrors.NewValidationError(cerrors.CodeInvalidSchema,
				fmt.Sprintf("duplicate column %q in table %s", c.Name, ref))
		}
		seen[c.Name] = true

		if c.IsTag {
			cols = append(cols, types.NewTagColumn(0, c.Name))
			continue
		}
		vt, err := fieldValueType(c.DataType)
		if err != nil {
			return nil, err
		}
		enc := types.EncodingDefault
		if c.Encoding != "" {
			var ok bool
			if enc, ok = types.ParseEncoding(c.Encoding); !ok {
				return nil, invalidOption("CODEC", c.Encoding)
			}
		}
		cols = append(cols, types.NewTableColumn(0, c.Name, types.FieldColumnType(vt), enc))
	}

	return &query.CreateTablePlan{
		Name:        ref.String(),
		IfNotExists: s.IfNotExists,
		Schema:      types.NewTskvTableSchema(ref.Database, ref.Table, cols),
	}, nil
}

func (p *DefaultLogicalPlanner) planCreateExternalTable(s *parser.CreateExternalTableStatement, view meta.CatalogView) (*query.CreateExternalTablePlan, error) {
	ref := view.Resolve(meta.TableRef{Database: s.Name.Database, Table: s.Name.Name})

	ft, err := types.ParseFileType(s.FileType)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCategoryValidation, cerrors.CodeUnsupportedFileType, err.Error(), err)
	}
	if len(s.Columns) == 0 && (ft == types.FileTypeCSV || ft == types.FileTypeJSON) {
		return nil, cerrors.NewValidationError(cerrors.CodeInvalidSchema,
			fmt.Sprintf("external table %s stored as %s requires a column list", ref, ft))
	}

	fields := make([]arrow.Field, 0, len(s.Columns))
	seen := make(map[string]bool)
	for _, c := range s.Columns {
		if seen[c.Name] {
			return nil, cerrors.NewValidationError(cerrors.CodeInvalidSchema,
				fmt.Sprintf("duplicate column %q in table %s", c.Name, ref))
		}
		seen[c.Name] = true
		dt, err := externalArrowType(c.DataType)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: dt, Nullable: true})
	}

	schema := &types.ExternalTableSchema{
		Database:            ref.Database,
		Table:               ref.Table,
		FileCompressionType: s.Compression,
		FileType:            string(ft),
		Location:            s.Location,
		TargetPartitions:    p.targetPartitions,
		TablePartitionCols:  s.PartitionedBy,
		HasHeader:           s.HasHeader,
		Delimiter:           s.Delimiter,
		Schema:              arrow.NewSchema(fields, nil),
	}
	if _, err := schema.TableOptions(); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCategoryValidation, cerrors.CodeInvalidOption, err.Error(), err)
	}
	return &query.CreateExternalTablePlan{Schema: schema, IfNotExists: s.IfNotExists}, nil
}

// fieldValueType maps a SQL type name to a tskv field type.
func fieldValueType(dataType string) (types.ValueType, error) {
	switch strings.ToUpper(dataType) {
	case "BIGINT", "INT", "INTEGER":
		return types.ValueTypeInteger, nil
	case "BIGINT UNSIGNED", "INT UNSIGNED", "INTEGER UNSIGNED":
		return types.ValueTypeUnsigned, nil
	case "DOUBLE", "FLOAT":
		return types.ValueTypeFloat, nil
	case "BOOLEAN", "BOOL":
		return types.ValueTypeBoolean, nil
	case "STRING", "VARCHAR", "TEXT":
		return types.ValueTypeString, nil
	default:
		return types.ValueTypeUnknown, cerrors.NewValidationError(cerrors.CodeUnsupportedType,
			fmt.Sprintf("unsupported column type %s", dataType))
	}
}

// externalArrowType maps a SQL type name to an arrow type; TIMESTAMP is
// allowed for file columns.
func externalArrowType(dataType string) (arrow.DataType, error) {
	if strings.EqualFold(dataType, "TIMESTAMP") {
		return types.TimeColumnType().ArrowType(), nil
	}
	vt, err := fieldValueType(dataType)
	if err != nil {
		return nil, err
	}
	return types.FieldColumnType(vt).ArrowType(), nil
}
